package table

import (
	"encoding/binary"

	"github.com/go-sqfs/sqfs/meta"
)

// xattrKVHeader is the on-disk shape of one key/value pair inside the
// meta-block-addressed KV list: a 16-bit type (namespace in the low byte,
// xattrOutOfLine flag in bit 8), the key bytes, a 32-bit value length, and
// then either the value inline or an 8-byte out-of-line value-table
// position.
//
// Grounded on include/sqfs/xattr.h (original_source); the teacher has no
// xattr support at all.
type xattrKVHeader struct {
	Type  uint16
	Size  uint16 // key length
	VSize uint32 // value length (the real length also when out-of-line)
}

// XattrWriter serializes a writer-side XattrPool's sets into the
// meta-block stream and value blob table, producing the XattrIDEntry rows
// ready to hand to Write for the top-level id table.
type XattrWriter struct {
	kvWriter    *meta.Writer
	valueWriter *meta.Writer
	valueBase   int64 // file offset where valueWriter's stream begins

	pool *XattrPool
}

func NewXattrWriter(kv, values *meta.Writer, valueBase int64, pool *XattrPool) *XattrWriter {
	return &XattrWriter{kvWriter: kv, valueWriter: values, valueBase: valueBase, pool: pool}
}

// WriteAll serializes every set registered in the pool and returns the
// fully populated id-table rows in registration order.
func (w *XattrWriter) WriteAll() ([]XattrIDEntry, error) {
	for idx, kvs := range w.pool.Sets() {
		pos := w.kvWriter.Pos()
		size := 0
		for _, kv := range kvs {
			n, err := w.writeKV(kv)
			if err != nil {
				return nil, err
			}
			size += n
		}
		w.pool.SetEntry(uint32(idx), uint64(pos), uint32(size))
	}
	if err := w.kvWriter.Flush(); err != nil {
		return nil, err
	}
	if err := w.valueWriter.Flush(); err != nil {
		return nil, err
	}
	return w.pool.SetIDEntries(), nil
}

func (w *XattrWriter) writeKV(kv XattrKV) (int, error) {
	typ := uint16(kv.Prefix)
	ool := IsOutOfLine(len(kv.Value))
	if ool {
		typ |= xattrOutOfLine
	}

	hdr := make([]byte, 4+len(kv.Key))
	binary.LittleEndian.PutUint16(hdr[0:], typ)
	binary.LittleEndian.PutUint16(hdr[2:], uint16(len(kv.Key)))
	copy(hdr[4:], kv.Key)
	if err := w.kvWriter.Append(hdr); err != nil {
		return 0, err
	}

	if !ool {
		vhdr := make([]byte, 4+len(kv.Value))
		binary.LittleEndian.PutUint32(vhdr[0:], uint32(len(kv.Value)))
		copy(vhdr[4:], kv.Value)
		if err := w.kvWriter.Append(vhdr); err != nil {
			return 0, err
		}
		return len(hdr) + len(vhdr), nil
	}

	valuePos := w.valueWriter.Pos()
	vbuf := make([]byte, 4+len(kv.Value))
	binary.LittleEndian.PutUint32(vbuf[0:], uint32(len(kv.Value)))
	copy(vbuf[4:], kv.Value)
	if err := w.valueWriter.Append(vbuf); err != nil {
		return 0, err
	}

	ref := make([]byte, 12)
	binary.LittleEndian.PutUint32(ref[0:], uint32(len(kv.Value)))
	binary.LittleEndian.PutUint64(ref[4:], uint64(valuePos))
	if err := w.kvWriter.Append(ref); err != nil {
		return 0, err
	}
	return len(hdr) + len(ref), nil
}
