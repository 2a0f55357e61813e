package table

import (
	"encoding/binary"

	"github.com/go-sqfs/sqfs/util"
)

// XattrPrefix identifies the extended-attribute namespace, packed into the
// low bits of the on-disk key type (spec.md §3, "Xattr model").
type XattrPrefix uint16

const (
	XattrUser XattrPrefix = iota
	XattrTrusted
	XattrSecurity
)

// xattrOutOfLine marks a value stored in the value table rather than
// inline in the key/value list, set when the value is larger than the
// inline threshold used by SquashFS (spec.md §3).
const xattrOutOfLine = 0x0100

const inlineValueLimit = 0xffff - 8 // leaves room for the out-of-line ref header if needed; SquashFS never places more than 64k-1 bytes inline

// XattrKV is one decoded extended attribute.
type XattrKV struct {
	Prefix XattrPrefix
	Key    string
	Value  []byte
}

// XattrIDEntry is the three-level table's top level: one entry per
// distinct xattr *set* (inodes sharing an identical attribute set share an
// entry), pointing at the KV list for that set (spec.md §3).
type XattrIDEntry struct {
	Ref   uint64 // meta.Address into the KV-list meta-block stream
	Count uint32
	Size  uint32 // total serialized size of this set's KV list, uncompressed
}

const xattrIDEntrySize = 16

var XattrIDCodec = RecordCodec[XattrIDEntry]{
	Size: xattrIDEntrySize,
	Encode: func(e XattrIDEntry) []byte {
		b := make([]byte, xattrIDEntrySize)
		binary.LittleEndian.PutUint64(b[0:], e.Ref)
		binary.LittleEndian.PutUint32(b[8:], e.Count)
		binary.LittleEndian.PutUint32(b[12:], e.Size)
		return b
	},
	Decode: func(b []byte) XattrIDEntry {
		return XattrIDEntry{
			Ref:   binary.LittleEndian.Uint64(b[0:]),
			Count: binary.LittleEndian.Uint32(b[8:]),
			Size:  binary.LittleEndian.Uint32(b[12:]),
		}
	},
}

// XattrPool is the writer-side aggregate of all three xattr table levels:
// a key string table, the value blob table, and the per-set id table
// built by interning whole attribute sets.
//
// Keys are interned into a util.StrTable when a set is registered, but
// every serialized KV entry carries its key bytes inline. Values are not
// deduplicated: each out-of-line value is written once per set that holds
// it. Only identical whole sets share one id-table entry.
type XattrPool struct {
	keys   *util.StrTable
	values map[string]uint64 // content -> value-table meta offset, once flushed

	sets map[string]uint32 // serialized-set signature -> XattrIDEntry index
	ids  []XattrIDEntry
	kvs  [][]XattrKV // kvs[i] are the raw pairs for ids[i], kept for re-serialization
}

func NewXattrPool() *XattrPool {
	return &XattrPool{
		keys:   util.NewStrTable(),
		values: make(map[string]uint64),
		sets:   make(map[string]uint32),
	}
}

// InternSet registers an inode's full attribute set and returns its index
// into the xattr id table (what inodes actually store), deduplicating
// identical sets.
func (p *XattrPool) InternSet(kvs []XattrKV) uint32 {
	sig := setSignature(kvs)
	if idx, ok := p.sets[sig]; ok {
		return idx
	}
	for _, kv := range kvs {
		p.keys.Intern(kv.Key)
	}
	idx := uint32(len(p.ids))
	p.sets[sig] = idx
	p.kvs = append(p.kvs, kvs)
	p.ids = append(p.ids, XattrIDEntry{}) // filled in by Flush
	return idx
}

func setSignature(kvs []XattrKV) string {
	var b []byte
	for _, kv := range kvs {
		b = append(b, byte(kv.Prefix))
		b = append(b, kv.Key...)
		b = append(b, 0)
		b = append(b, kv.Value...)
		b = append(b, 0)
	}
	return string(b)
}

// IsOutOfLine reports whether a value of this size is stored in the value
// table rather than inline in the KV list.
func IsOutOfLine(valueLen int) bool { return valueLen > inlineValueLimit }

func (p *XattrPool) Sets() [][]XattrKV { return p.kvs }

func (p *XattrPool) SetIDEntries() []XattrIDEntry { return p.ids }

// SetEntry updates the id-table entry for setIdx once its KV list has been
// serialized into the meta-block stream at ref, covering size bytes.
func (p *XattrPool) SetEntry(setIdx uint32, ref uint64, size uint32) {
	p.ids[setIdx].Ref = ref
	p.ids[setIdx].Count = uint32(len(p.kvs[setIdx]))
	p.ids[setIdx].Size = size
}
