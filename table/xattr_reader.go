package table

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-sqfs/sqfs/meta"
)

// XattrReader resolves an inode's xattr index (spec.md §3) back into its
// full attribute set, reading through the id table and then the KV-list
// and value-table meta-block streams.
type XattrReader struct {
	ids    []XattrIDEntry
	kv     *meta.Reader
	values *meta.Reader
}

func NewXattrReader(ids []XattrIDEntry, kv, values *meta.Reader) *XattrReader {
	return &XattrReader{ids: ids, kv: kv, values: values}
}

// Set returns the full decoded attribute set for the given xattr index.
func (r *XattrReader) Set(index uint32) ([]XattrKV, error) {
	if int(index) >= len(r.ids) {
		return nil, fmt.Errorf("table: xattr index %d out of range", index)
	}
	entry := r.ids[index]
	addr := meta.Address(entry.Ref)
	if err := r.kv.Seek(addr.BlockStart(), addr.ByteOffset()); err != nil {
		return nil, err
	}

	out := make([]XattrKV, 0, entry.Count)
	for i := uint32(0); i < entry.Count; i++ {
		kv, err := r.readOne()
		if err != nil {
			return nil, err
		}
		out = append(out, kv)
	}
	return out, nil
}

func (r *XattrReader) readOne() (XattrKV, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r.kv, hdr[:]); err != nil {
		return XattrKV{}, err
	}
	typ := binary.LittleEndian.Uint16(hdr[0:])
	keyLen := binary.LittleEndian.Uint16(hdr[2:])

	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r.kv, key); err != nil {
		return XattrKV{}, err
	}

	ool := typ&xattrOutOfLine != 0
	prefix := XattrPrefix(typ &^ xattrOutOfLine)

	if !ool {
		var vlen [4]byte
		if _, err := io.ReadFull(r.kv, vlen[:]); err != nil {
			return XattrKV{}, err
		}
		value := make([]byte, binary.LittleEndian.Uint32(vlen[:]))
		if _, err := io.ReadFull(r.kv, value); err != nil {
			return XattrKV{}, err
		}
		return XattrKV{Prefix: prefix, Key: string(key), Value: value}, nil
	}

	var ref [12]byte
	if _, err := io.ReadFull(r.kv, ref[:]); err != nil {
		return XattrKV{}, err
	}
	vlen := binary.LittleEndian.Uint32(ref[0:])
	vaddr := meta.Address(binary.LittleEndian.Uint64(ref[4:]))

	if err := r.values.Seek(vaddr.BlockStart(), vaddr.ByteOffset()); err != nil {
		return XattrKV{}, err
	}
	var vhdr [4]byte
	if _, err := io.ReadFull(r.values, vhdr[:]); err != nil {
		return XattrKV{}, err
	}
	if binary.LittleEndian.Uint32(vhdr[:]) != vlen {
		return XattrKV{}, fmt.Errorf("table: xattr value length mismatch")
	}
	value := make([]byte, vlen)
	if _, err := io.ReadFull(r.values, value); err != nil {
		return XattrKV{}, err
	}
	return XattrKV{Prefix: prefix, Key: string(key), Value: value}, nil
}
