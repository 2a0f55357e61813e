package table

import "encoding/binary"

// IDCodec is the RecordCodec for the 32-bit uid/gid table (spec.md §3,
// "id table"). SquashFS stores uids/gids indirectly: inodes carry a 16-bit
// index into this table rather than the raw 32-bit value.
var IDCodec = RecordCodec[uint32]{
	Size:   4,
	Encode: func(v uint32) []byte { b := make([]byte, 4); binary.LittleEndian.PutUint32(b, v); return b },
	Decode: func(b []byte) uint32 { return binary.LittleEndian.Uint32(b) },
}

// IDTable deduplicates uid/gid values into a table plus 16-bit indices, the
// same indirection scheme the on-disk format uses.
type IDTable struct {
	values []uint32
	index  map[uint32]uint16
}

func NewIDTable() *IDTable {
	return &IDTable{index: make(map[uint32]uint16)}
}

// Intern returns the table index for v, adding it if not already present.
func (t *IDTable) Intern(v uint32) (uint16, error) {
	if i, ok := t.index[v]; ok {
		return i, nil
	}
	if len(t.values) >= 0xffff {
		return 0, errTooManyIDs
	}
	i := uint16(len(t.values))
	t.values = append(t.values, v)
	t.index[v] = i
	return i, nil
}

func (t *IDTable) Values() []uint32 { return t.values }

var errTooManyIDs = errTable("table: more than 65535 distinct ids")

type errTable string

func (e errTable) Error() string { return string(e) }
