// Package blockproc implements the block processor of spec.md §4.H: it
// turns a file's byte stream into compressed (or raw) data blocks plus a
// fragment tail, using threadpool.Pool for worker concurrency and
// util.XXHash32 plus table.FragmentTable for dedup and fragment
// bookkeeping. No pack repo implements this pipeline; its shape is
// mirrored directly from spec.md §4.H/§5 rather than any one example
// file, the way SPEC_FULL.md's design notes call out.
package blockproc

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-sqfs/sqfs/compressor"
	"github.com/go-sqfs/sqfs/fstree"
	"github.com/go-sqfs/sqfs/table"
	"github.com/go-sqfs/sqfs/threadpool"
	"github.com/go-sqfs/sqfs/util"
)

// BlockCompressedFlag is set in a stored block size when the block's
// bytes are stored raw (compression did not shrink it, or DONT_COMPRESS
// was set), mirroring the SquashFS on-disk convention for block sizes.
const BlockCompressedFlag = 1 << 24

// BlockRef locates one data block already written to the output stream.
// Size carries BlockCompressedFlag set when the payload is raw; a
// zero Size (with Start meaningless) denotes a sparse hole.
type BlockRef struct {
	Start uint64
	Size  uint32
}

// FragmentRef locates a file's tail inside a (possibly still-open)
// fragment block.
type FragmentRef struct {
	Index  uint32
	Offset uint32
}

// FileResult is what Process hands back for one file (spec.md §4.H's
// "updated file inode carrying block_sizes[]/fragment_index/
// fragment_offset/sparse_byte_count").
type FileResult struct {
	Blocks      []BlockRef
	Fragment    *FragmentRef
	SparseBytes int64
	Size        int64
}

// Config configures a Processor.
type Config struct {
	BlockSize       int
	DeviceBlockSize int
	Workers         int
	MaxBacklog      int
	Serial          bool  // force the deterministic serial threadpool fallback
	StartOffset     int64 // output stream position the processor's first write lands at
}

// Processor is the single owner of the output stream's write position,
// the block dedup table, and the open fragment block (spec.md §5,
// "Shared state"). It is not safe for concurrent use by more than one
// goroutine calling Process; internal concurrency is the worker pool.
type Processor struct {
	cfg  Config
	comp compressor.Compressor
	out  io.Writer
	pos  int64

	pool threadpool.Interface

	blockDedup map[uint32][]dedupEntry

	fragBuf   []byte
	fragDedup map[uint32][]fragDedupEntry
	fragTable *table.FragmentTable

	firstErr error
}

type dedupEntry struct {
	hash    uint32
	content []byte
	ref     BlockRef
}

type fragDedupEntry struct {
	hash    uint32
	content []byte
	index   uint32
	offset  uint32
}

// New creates a Processor writing compressed blocks to out using comp.
func New(out io.Writer, comp compressor.Compressor, cfg Config) *Processor {
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = 128 * 1024
	}
	if cfg.DeviceBlockSize <= 0 {
		cfg.DeviceBlockSize = 4096
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxBacklog <= 0 {
		cfg.MaxBacklog = cfg.Workers * 2
	}

	p := &Processor{
		cfg:        cfg,
		comp:       comp,
		out:        out,
		pos:        cfg.StartOffset,
		blockDedup: make(map[uint32][]dedupEntry),
		fragDedup:  make(map[uint32][]fragDedupEntry),
		fragTable:  table.NewFragmentTable(),
	}
	if cfg.Serial {
		p.pool = threadpool.NewSerial()
	} else {
		p.pool = threadpool.New(cfg.Workers, cfg.MaxBacklog)
	}
	return p
}

// Pos reports the processor's current output write offset.
func (p *Processor) Pos() int64 { return p.pos }

// Status returns the first latched worker error, if any (spec.md §4.H,
// "Cancellation / failure").
func (p *Processor) Status() error {
	if p.firstErr != nil {
		return p.firstErr
	}
	return p.pool.Status()
}

// Close shuts down the worker pool. It does not flush any open fragment
// block; call FlushFragment first if one is pending.
func (p *Processor) Close() { p.pool.Close() }

// Process reads all of node's data through the block pipeline and
// returns the resulting block/fragment layout.
func (p *Processor) Process(node *fstree.Node) (*FileResult, error) {
	if err := p.Status(); err != nil {
		return nil, err
	}
	if node.Source == nil {
		return &FileResult{}, nil
	}

	rc, err := node.Source.Open()
	if err != nil {
		return nil, fmt.Errorf("blockproc: open source for %q: %w", node.Name, err)
	}
	defer rc.Close()

	if node.Flags&fstree.Align != 0 && p.pos%int64(p.cfg.DeviceBlockSize) != 0 {
		if err := p.pad(int64(p.cfg.DeviceBlockSize) - p.pos%int64(p.cfg.DeviceBlockSize)); err != nil {
			return nil, err
		}
	}

	res := &FileResult{}
	var tickets []int
	var blockIdx []int // position in res.Blocks each ticket corresponds to

	buf := make([]byte, p.cfg.BlockSize)
	var lastBlock []byte
	haveLast := false

	flushPending := func() error {
		for i, t := range tickets {
			val, err := p.pool.Dequeue()
			if err != nil {
				p.firstErr = err
				return err
			}
			ref := val.(BlockRef)
			if ref.Size == 0 {
				// submitted blocks are always full-sized
				res.SparseBytes += int64(p.cfg.BlockSize)
			}
			res.Blocks[blockIdx[i]] = ref
			_ = t
		}
		tickets = tickets[:0]
		blockIdx = blockIdx[:0]
		return nil
	}

	submit := func(data []byte) error {
		idx := len(res.Blocks)
		res.Blocks = append(res.Blocks, BlockRef{})
		cp := make([]byte, len(data))
		copy(cp, data)
		flags := node.Flags
		t, err := p.pool.Submit(func(workerID int) (any, error) {
			return p.compressBlock(cp, flags)
		})
		if err != nil {
			return err
		}
		tickets = append(tickets, t)
		blockIdx = append(blockIdx, idx)
		if len(tickets) >= p.cfg.MaxBacklog {
			return flushPending()
		}
		return nil
	}

	for {
		n, rerr := io.ReadFull(rc, buf)
		if n > 0 {
			if haveLast {
				if err := submit(lastBlock); err != nil {
					return nil, err
				}
			}
			lastBlock = append(lastBlock[:0], buf[:n]...)
			haveLast = true
			res.Size += int64(n)
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			return nil, fmt.Errorf("blockproc: read %q: %w", node.Name, rerr)
		}
	}

	if err := flushPending(); err != nil {
		return nil, err
	}

	if haveLast {
		isFinal := len(lastBlock) < p.cfg.BlockSize
		isZero := node.Flags&fstree.NoSparse == 0 && isAllZero(lastBlock)
		switch {
		case isZero:
			// spec.md §4.H orders sparse detection (step 1) before fragment
			// eligibility (step 3): an all-zero tail becomes a size-0 block
			// entry, never a fragment, same as any other all-zero block.
			res.Blocks = append(res.Blocks, BlockRef{Size: 0})
			res.SparseBytes += int64(len(lastBlock))
		case isFinal && node.Flags&fstree.DontFragment == 0:
			p.addFragmentTail(res, lastBlock)
		default:
			ref, err := p.compressBlock(lastBlock, node.Flags)
			if err != nil {
				return nil, err
			}
			res.Blocks = append(res.Blocks, ref)
		}
	}

	return res, nil
}

// compressBlock implements spec.md §4.H's per-block policy steps 1, 2,
// and 4 (sparse detection, compress-or-raw, content dedup). Fragment
// routing (step 3) is handled by the caller before this is invoked.
func (p *Processor) compressBlock(raw []byte, flags fstree.Flags) (BlockRef, error) {
	if flags&fstree.NoSparse == 0 && isAllZero(raw) {
		return BlockRef{Size: 0}, nil
	}

	hash := util.XXHash32(raw, 0)
	if ref, ok := p.lookupDedup(hash, raw); ok {
		return ref, nil
	}

	var payload []byte
	compressed := false
	if flags&fstree.DontCompress == 0 {
		out, ok, err := p.comp.CompressBlock(raw)
		if err != nil {
			return BlockRef{}, fmt.Errorf("blockproc: compress: %w", err)
		}
		if ok && len(out) < len(raw) {
			payload = out
			compressed = true
		}
	}
	if !compressed {
		payload = raw
	}

	start := p.pos
	if err := p.write(payload); err != nil {
		return BlockRef{}, err
	}

	size := uint32(len(payload))
	if !compressed {
		size |= BlockCompressedFlag
	}
	ref := BlockRef{Start: uint64(start), Size: size}
	p.storeDedup(hash, raw, ref)
	return ref, nil
}

func (p *Processor) lookupDedup(hash uint32, content []byte) (BlockRef, bool) {
	for _, e := range p.blockDedup[hash] {
		if len(e.content) == len(content) && string(e.content) == string(content) {
			return e.ref, true
		}
	}
	return BlockRef{}, false
}

func (p *Processor) storeDedup(hash uint32, content []byte, ref BlockRef) {
	cp := make([]byte, len(content))
	copy(cp, content)
	p.blockDedup[hash] = append(p.blockDedup[hash], dedupEntry{hash: hash, content: cp, ref: ref})
}

// addFragmentTail appends tail to the currently open fragment block,
// flushing it first if tail would not fit (spec.md §4.H, "Fragment
// packing").
func (p *Processor) addFragmentTail(res *FileResult, tail []byte) {
	if len(p.fragBuf)+len(tail) > p.cfg.BlockSize {
		p.flushFragment()
	}
	offset := uint32(len(p.fragBuf))
	p.fragBuf = append(p.fragBuf, tail...)
	res.Fragment = &FragmentRef{Index: uint32(p.fragTable.Len()), Offset: offset}
}

// FlushFragment closes any currently open fragment block. Call once
// after processing all files.
func (p *Processor) FlushFragment() error {
	return p.flushFragmentErr()
}

func (p *Processor) flushFragment() { _ = p.flushFragmentErr() }

func (p *Processor) flushFragmentErr() error {
	if len(p.fragBuf) == 0 {
		return nil
	}
	hash := util.XXHash32(p.fragBuf, 0)
	for _, e := range p.fragDedup[hash] {
		if len(e.content) == len(p.fragBuf) && string(e.content) == string(p.fragBuf) {
			p.fragBuf = p.fragBuf[:0]
			return nil
		}
	}

	out, ok, err := p.comp.CompressBlock(p.fragBuf)
	if err != nil {
		p.firstErr = err
		return fmt.Errorf("blockproc: compress fragment: %w", err)
	}
	payload := p.fragBuf
	compressed := false
	if ok && len(out) < len(p.fragBuf) {
		payload = out
		compressed = true
	}

	start := uint64(p.pos)
	if err := p.write(payload); err != nil {
		return err
	}
	size := uint32(len(payload))
	if !compressed {
		size |= BlockCompressedFlag
	}
	p.fragTable.Add(start, size)

	cp := make([]byte, len(p.fragBuf))
	copy(cp, p.fragBuf)
	p.fragDedup[hash] = append(p.fragDedup[hash], fragDedupEntry{hash: hash, content: cp})

	p.fragBuf = p.fragBuf[:0]
	return nil
}

// FragmentTable exposes the accumulated fragment table for the writer
// to serialize (spec.md §4.J step 5).
func (p *Processor) FragmentTable() *table.FragmentTable { return p.fragTable }

func (p *Processor) write(b []byte) error {
	n, err := p.out.Write(b)
	p.pos += int64(n)
	if err != nil {
		return fmt.Errorf("blockproc: write: %w", err)
	}
	return nil
}

func (p *Processor) pad(n int64) error {
	if n <= 0 {
		return nil
	}
	zeros := make([]byte, n)
	return p.write(zeros)
}

func isAllZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// ErrProcessorClosed is not returned anywhere in this package: after the
// pool has latched an error or been closed, Process returns the pool's own
// error instead.
var ErrProcessorClosed = errors.New("blockproc: processor closed")
