package table

import "encoding/binary"

// FragmentEntry describes one packed fragment block: its on-disk location,
// compressed size (bit 24 set means stored uncompressed, mirroring the
// data-block size field convention), and padding (spec.md §3, "fragment
// table").
type FragmentEntry struct {
	StartBlock uint64
	Size       uint32
	_          uint32 // reserved, always zero on write
}

const fragmentEntrySize = 16

var FragmentCodec = RecordCodec[FragmentEntry]{
	Size: fragmentEntrySize,
	Encode: func(e FragmentEntry) []byte {
		b := make([]byte, fragmentEntrySize)
		binary.LittleEndian.PutUint64(b[0:], e.StartBlock)
		binary.LittleEndian.PutUint32(b[8:], e.Size)
		return b
	},
	Decode: func(b []byte) FragmentEntry {
		return FragmentEntry{
			StartBlock: binary.LittleEndian.Uint64(b[0:]),
			Size:       binary.LittleEndian.Uint32(b[8:]),
		}
	},
}

// FragmentTable accumulates fragment blocks as the block processor packs
// them, assigning each a stable index used by file inodes' fragment
// references.
type FragmentTable struct {
	entries []FragmentEntry
}

func NewFragmentTable() *FragmentTable {
	return &FragmentTable{}
}

// Add registers a newly-written fragment block and returns its index.
func (t *FragmentTable) Add(startBlock uint64, size uint32) uint32 {
	idx := uint32(len(t.entries))
	t.entries = append(t.entries, FragmentEntry{StartBlock: startBlock, Size: size})
	return idx
}

func (t *FragmentTable) Entries() []FragmentEntry { return t.entries }

func (t *FragmentTable) Len() int { return len(t.entries) }
