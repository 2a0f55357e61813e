package meta

import (
	"io"

	"github.com/go-sqfs/sqfs/compressor"
)

// Writer buffers appended bytes and flushes them as 8 KiB meta-blocks.
// Append is streaming: a logical record may straddle a flush, so callers
// that need to record an Address must call Pos() *before* appending
// (spec.md §4.C).
type Writer struct {
	w    io.Writer
	comp compressor.Compressor

	buf     []byte
	written int64 // bytes written to w so far (this writer's own offset space)
}

func NewWriter(w io.Writer, comp compressor.Compressor) *Writer {
	return &Writer{w: w, comp: comp}
}

// Pos returns the Address the next Append will start writing at, relative
// to this writer's own byte-offset-zero.
func (w *Writer) Pos() Address {
	return MakeAddress(uint32(w.written), uint16(len(w.buf)))
}

// Append writes data into the buffered meta-block stream, flushing
// whenever the 8 KiB buffer fills, and may split data across multiple
// flushed blocks.
func (w *Writer) Append(data []byte) error {
	for len(data) > 0 {
		room := MaxBlockSize - len(w.buf)
		n := len(data)
		if n > room {
			n = room
		}
		w.buf = append(w.buf, data[:n]...)
		data = data[n:]
		if len(w.buf) == MaxBlockSize {
			if err := w.flush(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Writer) flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	block, err := EncodeBlock(w.buf, w.comp)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(block); err != nil {
		return err
	}
	w.written += int64(len(block))
	w.buf = w.buf[:0]
	return nil
}

// Flush forces out any partially filled final block. Safe to call once at
// the end of a table.
func (w *Writer) Flush() error {
	return w.flush()
}
