package tar

import (
	"bytes"
	"testing"
	"time"
)

func TestWriteReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	h := &Header{
		Name:     "hello.txt",
		Typeflag: TypeReg,
		Size:     5,
		Mode:     0o644,
		Uid:      1000,
		Gid:      1000,
		Uname:    "alice",
		Gname:    "alice",
		ModTime:  time.Unix(1700000000, 0).UTC(),
	}
	if err := w.WriteHeader(h); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if _, err := w.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if buf.Len()%blockSize != 0 {
		t.Fatalf("archive length %d not a multiple of %d", buf.Len(), blockSize)
	}

	r := NewReader(bytes.NewReader(buf.Bytes()))
	got, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got.Name != "hello.txt" {
		t.Fatalf("got name %q, want hello.txt", got.Name)
	}
	if got.Size != 5 {
		t.Fatalf("got size %d, want 5", got.Size)
	}
	data := make([]byte, 5)
	if _, err := r.Read(data); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("got data %q, want hello", data)
	}

	if _, err := r.Next(); err == nil {
		t.Fatal("expected EOF after single entry")
	}
}

func TestLongNameUsesPaxHeader(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	longName := ""
	for len(longName) < 200 {
		longName += "abcdefghij/"
	}
	longName += "file.txt"

	h := &Header{Name: longName, Typeflag: TypeReg, Size: 0, Mode: 0o644}
	if err := w.WriteHeader(h); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r := NewReader(bytes.NewReader(buf.Bytes()))
	got, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got.Name != longName {
		t.Fatalf("got name %q, want %q", got.Name, longName)
	}
}

func TestPAXRecordRoundTrip(t *testing.T) {
	line := formatPAXRecord("path", "foo/bar")
	pd, err := parsePAXRecords([]byte(line))
	if err != nil {
		t.Fatalf("parsePAXRecords: %v", err)
	}
	if pd.records["path"] != "foo/bar" {
		t.Fatalf("got %q, want foo/bar", pd.records["path"])
	}
}

func TestPAXGNUSparse00MultiRegion(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(formatPAXRecord(paxGNUSparseOffset, "0"))
	buf.WriteString(formatPAXRecord(paxGNUSparseNumByte, "100"))
	buf.WriteString(formatPAXRecord(paxGNUSparseOffset, "512"))
	buf.WriteString(formatPAXRecord(paxGNUSparseNumByte, "50"))
	buf.WriteString(formatPAXRecord(paxGNUSparseRealSz, "1000"))

	pd, err := parsePAXRecords(buf.Bytes())
	if err != nil {
		t.Fatalf("parsePAXRecords: %v", err)
	}
	if len(pd.sparseOffsets) != 2 || len(pd.sparseLens) != 2 {
		t.Fatalf("got %d offsets / %d lens, want 2/2 (repeated keys must not collapse)", len(pd.sparseOffsets), len(pd.sparseLens))
	}

	h := &Header{}
	if err := applyPAXRecords(h, pd); err != nil {
		t.Fatalf("applyPAXRecords: %v", err)
	}
	want := []SparseEntry{{Offset: 0, Length: 100}, {Offset: 512, Length: 50}}
	if len(h.Sparse) != len(want) || h.Sparse[0] != want[0] || h.Sparse[1] != want[1] {
		t.Fatalf("got sparse map %v, want %v", h.Sparse, want)
	}
	if h.Size != 1000 {
		t.Fatalf("got size %d, want 1000", h.Size)
	}
}

func TestGNUSparse01Decode(t *testing.T) {
	sp, err := parseGNUSparse01("0,100,200,50")
	if err != nil {
		t.Fatalf("parseGNUSparse01: %v", err)
	}
	want := []SparseEntry{{Offset: 0, Length: 100}, {Offset: 200, Length: 50}}
	if len(sp) != len(want) || sp[0] != want[0] || sp[1] != want[1] {
		t.Fatalf("got %v, want %v", sp, want)
	}
}

func TestChecksumMismatchRejected(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	h := &Header{Name: "x", Typeflag: TypeReg, Size: 0, Mode: 0o644}
	if err := w.WriteHeader(h); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	corrupt := buf.Bytes()
	corrupt[0] ^= 0xff // flip a byte of the name field

	r := NewReader(bytes.NewReader(corrupt))
	if _, err := r.Next(); err == nil {
		t.Fatal("expected checksum validation to reject corrupted header")
	}
}
