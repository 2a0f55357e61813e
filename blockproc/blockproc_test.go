package blockproc

import (
	"bytes"
	"testing"

	"github.com/go-sqfs/sqfs/compressor"
	"github.com/go-sqfs/sqfs/fstree"
)

type memSource struct{ data []byte }

func (m memSource) Size() int64 { return int64(len(m.data)) }
func (m memSource) Open() (fstree.ReadCloser, error) {
	return memReader{bytes.NewReader(m.data)}, nil
}

type memReader struct{ *bytes.Reader }

func (memReader) Close() error { return nil }

func newTestProcessor(t *testing.T, out *bytes.Buffer, blockSize int) *Processor {
	t.Helper()
	comp, err := compressor.New(compressor.GZip)
	if err != nil {
		t.Fatalf("new compressor: %v", err)
	}
	p := New(out, comp, Config{BlockSize: blockSize, Serial: true})
	t.Cleanup(p.Close)
	return p
}

func TestSmallFileRoutesToFragment(t *testing.T) {
	var out bytes.Buffer
	p := newTestProcessor(t, &out, 128*1024)

	node := &fstree.Node{Name: "hello.txt", Source: memSource{[]byte("Hello, World!\n")}}
	res, err := p.Process(node)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Fragment == nil {
		t.Fatal("expected small file to route to a fragment")
	}
	if len(res.Blocks) != 0 {
		t.Fatalf("expected no full blocks, got %d", len(res.Blocks))
	}
	if err := p.FlushFragment(); err != nil {
		t.Fatalf("flush fragment: %v", err)
	}
	if p.FragmentTable().Len() != 1 {
		t.Fatalf("expected one fragment block, got %d", p.FragmentTable().Len())
	}
}

func TestSparseBlockSkipped(t *testing.T) {
	var out bytes.Buffer
	p := newTestProcessor(t, &out, 4096)

	zero := make([]byte, 4096)
	node := &fstree.Node{Name: "sparse.bin", Source: memSource{zero}}
	res, err := p.Process(node)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(res.Blocks) != 1 || res.Blocks[0].Size != 0 {
		t.Fatalf("expected single zero-size sparse block, got %+v", res.Blocks)
	}
}

// TestSparseFinalTailSkipsFragment covers a file whose last, short
// (sub-block-size) chunk is entirely zero: spec.md §4.H orders sparse
// detection ahead of fragment eligibility, so this must produce a
// zero-size sparse block entry and no fragment, not a fragment holding
// zero bytes.
func TestSparseFinalTailSkipsFragment(t *testing.T) {
	var out bytes.Buffer
	p := newTestProcessor(t, &out, 4096)

	data := make([]byte, 4096+100) // one full block, then a 100-byte zero tail
	for i := range data[:4096] {
		data[i] = 0x7A
	}

	node := &fstree.Node{Name: "trailing-hole.bin", Source: memSource{data}}
	res, err := p.Process(node)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Fragment != nil {
		t.Fatalf("expected no fragment for an all-zero tail, got %+v", res.Fragment)
	}
	if len(res.Blocks) != 2 {
		t.Fatalf("expected 2 block entries, got %d", len(res.Blocks))
	}
	if res.Blocks[1].Size != 0 {
		t.Fatalf("expected zero-size sparse block for the tail, got %+v", res.Blocks[1])
	}
}

func TestIdenticalBlocksDedupLocation(t *testing.T) {
	var out bytes.Buffer
	p := newTestProcessor(t, &out, 128*1024)

	content := bytes.Repeat([]byte{0xAB, 0xCD, 0xEF, 0x01}, 256*1024) // 1 MiB, non-zero

	n1 := &fstree.Node{Name: "a.bin", Source: memSource{content}}
	r1, err := p.Process(n1)
	if err != nil {
		t.Fatalf("process a: %v", err)
	}

	posAfterFirst := p.Pos()

	n2 := &fstree.Node{Name: "b.bin", Source: memSource{content}}
	r2, err := p.Process(n2)
	if err != nil {
		t.Fatalf("process b: %v", err)
	}

	if p.Pos() != posAfterFirst {
		t.Fatalf("expected no new bytes written for duplicate file, pos grew from %d to %d", posAfterFirst, p.Pos())
	}
	if len(r1.Blocks) != len(r2.Blocks) {
		t.Fatalf("block count mismatch: %d vs %d", len(r1.Blocks), len(r2.Blocks))
	}
	for i := range r1.Blocks {
		if r1.Blocks[i].Start != r2.Blocks[i].Start {
			t.Fatalf("block %d: expected same location, got %d vs %d", i, r1.Blocks[i].Start, r2.Blocks[i].Start)
		}
	}
}
