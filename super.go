package squashfs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"reflect"
	"sync"

	"github.com/go-sqfs/sqfs/compressor"
	"github.com/go-sqfs/sqfs/meta"
	"github.com/go-sqfs/sqfs/table"
	"github.com/sirupsen/logrus"
)

const magicLittle = 0x73717368

// Superblock decodes and holds a SquashFS 4.0 96-byte super block
// (spec.md §4.I, §6). Layout and field order follow the published
// format verbatim; CompId is the raw on-disk compressor id, resolved
// into a live compressor.Compressor once the header is parsed.
//
// Grounded on the teacher's super.go reflect-driven field decode, kept
// as-is since it already matches the published layout, with the prior
// inline SquashComp field replaced by the new compressor package and
// the id/fragment/export/xattr tables the teacher never read wired in.
type Superblock struct {
	fs    io.ReaderAt
	order binary.ByteOrder
	comp  compressor.Compressor

	Magic             uint32
	InodeCnt          uint32
	ModTime           int32
	BlockSize         uint32
	FragCount         uint32
	CompId            uint16
	BlockLog          uint16
	Flags             SquashFlags
	IdCount           uint16
	VMajor            uint16
	VMinor            uint16
	RootInode         uint64
	BytesUsed         uint64
	IdTableStart      uint64
	XattrIdTableStart uint64
	InodeTableStart   uint64
	DirTableStart     uint64
	FragTableStart    uint64
	ExportTableStart  uint64

	inoOfft  uint64
	rootIno  *Inode
	rootInoN uint64

	inoIdxL sync.RWMutex
	inoIdx  map[uint32]inodeRef

	ids     []uint32
	fragTbl []table.FragmentEntry
	xattrs  *table.XattrReader
	export  map[uint32]uint64 // inode number -> inode ref, when EXPORTABLE

	closer io.Closer // set by Open; nil when New was called directly on a caller-owned reader
}

// New opens and validates a SquashFS 4.0 image's super block, then loads
// its id table, fragment table, and (unless NO_XATTRS is set) xattr
// tables, per spec.md §4.I.
func New(fs io.ReaderAt, opts ...Option) (*Superblock, error) {
	sb := &Superblock{fs: fs, inoIdx: make(map[uint32]inodeRef)}
	head := make([]byte, sb.binarySize())

	if _, err := fs.ReadAt(head, 0); err != nil {
		return nil, fmt.Errorf("squashfs: read super block: %w", err)
	}
	if err := sb.UnmarshalBinary(head); err != nil {
		return nil, err
	}

	for _, o := range opts {
		if err := o(sb); err != nil {
			return nil, err
		}
	}

	if sb.Magic != magicLittle {
		return nil, ErrInvalidFile
	}
	if sb.VMajor != 4 || sb.VMinor != 0 {
		return nil, ErrInvalidVersion
	}

	comp, err := compressor.New(compressor.ID(sb.CompId))
	if err != nil {
		return nil, fmt.Errorf("squashfs: %w: compressor id %d", ErrUnsupported, sb.CompId)
	}
	sb.comp = comp

	if err := sb.loadIdTable(); err != nil {
		return nil, err
	}
	if err := sb.loadFragTable(); err != nil {
		return nil, err
	}
	if sb.Flags&NO_XATTRS == 0 && sb.XattrIdTableStart != 0 && sb.XattrIdTableStart != 0xffffffffffffffff {
		if err := sb.loadXattrTables(); err != nil {
			return nil, err
		}
	}
	if sb.Flags&EXPORTABLE != 0 && sb.ExportTableStart != 0xffffffffffffffff {
		if err := sb.loadExportTable(); err != nil {
			return nil, err
		}
	}

	root, err := sb.GetInodeRef(inodeRef(sb.RootInode))
	if err != nil {
		return nil, fmt.Errorf("squashfs: read root inode: %w", err)
	}
	sb.rootIno = root
	sb.rootInoN = uint64(root.Ino)

	logrus.WithFields(logrus.Fields{"compression": comp.ID(), "inodes": sb.InodeCnt}).Debug("squashfs: opened image")

	return sb, nil
}

func (s *Superblock) UnmarshalBinary(data []byte) error {
	v := reflect.ValueOf(s).Elem()
	c := v.NumField()
	r := bytes.NewReader(data)

	switch {
	case len(data) >= 4 && binary.LittleEndian.Uint32(data) == magicLittle:
		s.order = binary.LittleEndian
	case len(data) >= 4 && binary.BigEndian.Uint32(data) == magicLittle:
		s.order = binary.BigEndian
	default:
		return ErrInvalidFile
	}

	var err error
	for i := 0; i < c; i++ {
		name := v.Type().Field(i).Name[0]
		if name < 'A' || name > 'Z' {
			continue
		}
		err = binary.Read(r, s.order, v.Field(i).Addr().Interface())
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSuper, err)
		}
	}

	return nil
}

// MarshalBinary encodes the superblock's exported fields back to their
// 96-byte on-disk layout, the write-side mirror of UnmarshalBinary.
func (s *Superblock) MarshalBinary() ([]byte, error) {
	order := s.order
	if order == nil {
		order = binary.LittleEndian
	}

	v := reflect.ValueOf(s).Elem()
	c := v.NumField()
	buf := &bytes.Buffer{}

	for i := 0; i < c; i++ {
		name := v.Type().Field(i).Name[0]
		if name < 'A' || name > 'Z' {
			continue
		}
		if err := binary.Write(buf, order, v.Field(i).Interface()); err != nil {
			return nil, fmt.Errorf("squashfs: marshal superblock: %w", err)
		}
	}

	return buf.Bytes(), nil
}

func (s *Superblock) binarySize() int {
	v := reflect.ValueOf(s).Elem()
	c := v.NumField()
	sz := uintptr(0)

	for i := 0; i < c; i++ {
		name := v.Type().Field(i).Name[0]
		if name < 'A' || name > 'Z' {
			continue
		}
		sz += v.Field(i).Type().Size()
	}
	return int(sz)
}

// metaReader returns a meta.Reader windowed at base, seeked to start
// within the first block's payload.
func (sb *Superblock) metaReader(base int64, start int) (*meta.Reader, error) {
	r := meta.NewReader(sb.fs, base, 1<<62, sb.comp)
	if err := r.Seek(0, uint16(start)); err != nil {
		return nil, err
	}
	return r, nil
}

func (sb *Superblock) newInodeReader(ino inodeRef) (*meta.Reader, error) {
	r := meta.NewReader(sb.fs, int64(sb.InodeTableStart), 1<<62, sb.comp)
	if err := r.Seek(ino.Index(), uint16(ino.Offset())); err != nil {
		return nil, err
	}
	return r, nil
}

func (sb *Superblock) loadIdTable() error {
	if sb.IdCount == 0 {
		return nil
	}
	locs, err := table.ReadLocations(sb.fs, int64(sb.IdTableStart), int((int(sb.IdCount)+2047)/2048))
	if err != nil {
		return fmt.Errorf("squashfs: read id table locations: %w", err)
	}
	ids, err := table.Read[uint32](sb.fs, locs, int(sb.IdCount), idEntryCodec, sb.comp)
	if err != nil {
		return fmt.Errorf("squashfs: read id table: %w", err)
	}
	sb.ids = ids
	return nil
}

var idEntryCodec = table.RecordCodec[uint32]{
	Size:   4,
	Encode: func(v uint32) []byte { b := make([]byte, 4); binary.LittleEndian.PutUint32(b, v); return b },
	Decode: func(b []byte) uint32 { return binary.LittleEndian.Uint32(b) },
}

func (sb *Superblock) lookupID(idx uint16) uint32 {
	if int(idx) >= len(sb.ids) {
		return 0
	}
	return sb.ids[idx]
}

func (sb *Superblock) loadFragTable() error {
	if sb.FragCount == 0 || sb.FragTableStart == 0xffffffffffffffff {
		return nil
	}
	locs, err := table.ReadLocations(sb.fs, int64(sb.FragTableStart), int((int(sb.FragCount)+511)/512))
	if err != nil {
		return fmt.Errorf("squashfs: read fragment table locations: %w", err)
	}
	entries, err := table.Read[table.FragmentEntry](sb.fs, locs, int(sb.FragCount), table.FragmentCodec, sb.comp)
	if err != nil {
		return fmt.Errorf("squashfs: read fragment table: %w", err)
	}
	sb.fragTbl = entries
	return nil
}

// xattrHeaderSize is this module's xattr-id-table header: two
// independent meta-block stream starts (key/value-list, and out-of-line
// values) plus the id-table's record count. Real SquashFS packs both
// streams into one shared address space with an 8-byte header; this
// module keeps its key table, value table, and id table as genuinely
// separate tables (spec.md §3's three-level model), so the header grew
// a second offset to address them independently.
const xattrHeaderSize = 24

func (sb *Superblock) loadXattrTables() error {
	head := make([]byte, xattrHeaderSize)
	if _, err := sb.fs.ReadAt(head, int64(sb.XattrIdTableStart)); err != nil {
		return fmt.Errorf("squashfs: read xattr id table header: %w", err)
	}
	kvStart := binary.LittleEndian.Uint64(head[0:])
	valueStart := binary.LittleEndian.Uint64(head[8:])
	count := binary.LittleEndian.Uint32(head[16:])

	locs, err := table.ReadLocations(sb.fs, int64(sb.XattrIdTableStart)+xattrHeaderSize, int((int(count)+511)/512))
	if err != nil {
		return fmt.Errorf("squashfs: read xattr id table locations: %w", err)
	}
	ids, err := table.Read[table.XattrIDEntry](sb.fs, locs, int(count), table.XattrIDCodec, sb.comp)
	if err != nil {
		return fmt.Errorf("squashfs: read xattr id table: %w", err)
	}

	kv := meta.NewReader(sb.fs, int64(kvStart), int64(valueStart), sb.comp)
	values := meta.NewReader(sb.fs, int64(valueStart), int64(sb.XattrIdTableStart), sb.comp)
	sb.xattrs = table.NewXattrReader(ids, kv, values)
	return nil
}

func (sb *Superblock) loadExportTable() error {
	if sb.InodeCnt == 0 {
		return nil
	}
	locs, err := table.ReadLocations(sb.fs, int64(sb.ExportTableStart), int((int(sb.InodeCnt)+1023)/1024))
	if err != nil {
		return fmt.Errorf("squashfs: read export table locations: %w", err)
	}
	refs, err := table.Read[uint64](sb.fs, locs, int(sb.InodeCnt), table.ExportCodec, sb.comp)
	if err != nil {
		return fmt.Errorf("squashfs: read export table: %w", err)
	}
	m := make(map[uint32]uint64, len(refs))
	for i, ref := range refs {
		m[uint32(i)+1] = ref
	}
	sb.export = m
	return nil
}

func (sb *Superblock) setInodeRefCache(ino uint32, ref inodeRef) {
	sb.inoIdxL.Lock()
	sb.inoIdx[ino] = ref
	sb.inoIdxL.Unlock()
}
