package meta

import (
	"fmt"
	"io"

	"github.com/go-sqfs/sqfs/compressor"
)

// ErrOutOfBounds is returned when a seek targets a location outside the
// reader's configured [start, limit) file window, per spec.md §4.C.
var ErrOutOfBounds = fmt.Errorf("meta: seek out of bounds")

// Reader provides random-access reads over a meta-block stream bounded to
// a [start, limit) byte window of the underlying file. It caches the most
// recently decoded block so sequential reads within one block don't
// re-decompress on every call.
type Reader struct {
	r     io.ReaderAt
	comp  compressor.Compressor
	start int64
	limit int64

	blockAt     int64  // file offset of the cached block (absolute)
	nextBlockAt int64  // file offset immediately after the cached block
	blockBuf    []byte // decoded payload of the cached block
	pos         int    // read cursor within blockBuf
}

// NewReader creates a Reader bounded to [start, limit) in r.
func NewReader(r io.ReaderAt, start, limit int64, comp compressor.Compressor) *Reader {
	return &Reader{r: r, comp: comp, start: start, limit: limit, blockAt: -1}
}

// Seek positions the cursor at the meta-block beginning blockOffset bytes
// into the window, with a byte offset within that block's uncompressed
// payload.
func (rd *Reader) Seek(blockOffset uint32, byteOffset uint16) error {
	at := rd.start + int64(blockOffset)
	if at < rd.start || at >= rd.limit {
		return ErrOutOfBounds
	}
	if rd.blockAt != at {
		if err := rd.loadBlock(at); err != nil {
			return err
		}
	}
	if int(byteOffset) > len(rd.blockBuf) {
		return ErrOutOfBounds
	}
	rd.pos = int(byteOffset)
	return nil
}

func (rd *Reader) loadBlock(at int64) error {
	data, wireLen, err := DecodeBlock(rd.r, at, rd.comp)
	if err != nil {
		return err
	}
	rd.blockAt = at
	rd.blockBuf = data
	rd.nextBlockAt = at + wireLen
	rd.pos = 0
	return nil
}

// Read implements io.Reader, transparently crossing meta-block boundaries
// by fetching successor blocks as needed (spec.md §4.C).
func (rd *Reader) Read(p []byte) (int, error) {
	if rd.blockAt < 0 {
		if err := rd.loadBlock(rd.start); err != nil {
			return 0, err
		}
	}
	total := 0
	for total < len(p) {
		if rd.pos >= len(rd.blockBuf) {
			if rd.nextBlockAt >= rd.limit {
				if total > 0 {
					return total, nil
				}
				return 0, io.EOF
			}
			if err := rd.loadBlock(rd.nextBlockAt); err != nil {
				return total, err
			}
		}
		n := copy(p[total:], rd.blockBuf[rd.pos:])
		rd.pos += n
		total += n
	}
	return total, nil
}

// ReadAddress returns the reader's current position as a meta-block
// Address relative to the window start, suitable for storing as an inode
// reference or directory "parent inode reference".
func (rd *Reader) ReadAddress() Address {
	return MakeAddress(uint32(rd.blockAt-rd.start), uint16(rd.pos))
}
