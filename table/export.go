package table

import "encoding/binary"

// ExportCodec is the RecordCodec for the export (NFS root-inode lookup)
// table: a flat array of 64-bit meta-block inode references indexed by
// inode number minus one (spec.md §3, "export table"). Entries are only
// meaningful when the superblock's EXPORTABLE flag is set, and every
// reference in the table must point at an inode already written earlier
// in the inode table — the reason fstree's post-process step reorders
// hard-link targets ahead of their links (spec.md §4.G).
var ExportCodec = RecordCodec[uint64]{
	Size:   8,
	Encode: func(v uint64) []byte { b := make([]byte, 8); binary.LittleEndian.PutUint64(b, v); return b },
	Decode: func(b []byte) uint64 { return binary.LittleEndian.Uint64(b) },
}

// ExportTable maps 1-based inode numbers to their meta-block inode
// reference, built once every inode has been written.
type ExportTable struct {
	refs []uint64 // refs[i] is the reference for inode number i+1
}

func NewExportTable(inodeCount int) *ExportTable {
	return &ExportTable{refs: make([]uint64, inodeCount)}
}

// Set records the inode reference for the given 1-based inode number.
func (t *ExportTable) Set(inodeNumber uint32, ref uint64) {
	t.refs[inodeNumber-1] = ref
}

func (t *ExportTable) Refs() []uint64 { return t.refs }
