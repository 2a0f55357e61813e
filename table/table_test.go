package table

import (
	"bytes"
	"testing"

	"github.com/go-sqfs/sqfs/compressor"
)

func TestWriteReadRoundTrip(t *testing.T) {
	comp, err := compressor.New(compressor.GZip)
	if err != nil {
		t.Fatalf("compressor.New: %v", err)
	}

	records := make([]uint32, 5000)
	for i := range records {
		records[i] = uint32(i * 7)
	}

	var buf bytes.Buffer
	locations, err := Write(&buf, 0, records, IDCodec, comp)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(locations) == 0 {
		t.Fatal("expected at least one chunk location")
	}

	got, err := Read(bytes.NewReader(buf.Bytes()), locations, len(records), IDCodec, comp)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != len(records) {
		t.Fatalf("got %d records, want %d", len(got), len(records))
	}
	for i := range records {
		if got[i] != records[i] {
			t.Fatalf("record %d: got %d, want %d", i, got[i], records[i])
		}
	}
}

func TestIDTableDedup(t *testing.T) {
	tbl := NewIDTable()
	a, _ := tbl.Intern(1000)
	b, _ := tbl.Intern(2000)
	c, _ := tbl.Intern(1000)
	if a != c {
		t.Fatalf("expected duplicate intern to return same index, got %d and %d", a, c)
	}
	if a == b {
		t.Fatal("expected distinct values to get distinct indices")
	}
	if len(tbl.Values()) != 2 {
		t.Fatalf("expected 2 distinct values, got %d", len(tbl.Values()))
	}
}

func TestXattrPoolDedupesIdenticalSets(t *testing.T) {
	pool := NewXattrPool()
	set := []XattrKV{{Prefix: XattrUser, Key: "selinux", Value: []byte("unconfined_u")}}
	i1 := pool.InternSet(set)
	i2 := pool.InternSet(append([]XattrKV(nil), set...))
	if i1 != i2 {
		t.Fatalf("identical xattr sets should share one id-table entry, got %d and %d", i1, i2)
	}
	if len(pool.Sets()) != 1 {
		t.Fatalf("expected 1 distinct set, got %d", len(pool.Sets()))
	}
}
