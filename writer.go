package squashfs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/go-sqfs/sqfs/blockproc"
	"github.com/go-sqfs/sqfs/compressor"
	"github.com/go-sqfs/sqfs/fstree"
	"github.com/go-sqfs/sqfs/meta"
	"github.com/go-sqfs/sqfs/table"
)

// superblockSize is the on-disk size of a SquashFS 4.0 superblock
// (spec.md §4.I, §6).
const superblockSize = 96

// dirIndexInterval mirrors the 256-entries-per-header grouping the
// on-disk directory format uses (spec.md §3); it also bounds how many
// consecutive entries one inoNum2 int16 delta run may span, since
// entries are additionally split whenever the referenced inode crosses
// into a new inode-table meta-block.
const dirIndexInterval = 256

// Writer builds a SquashFS 4.0 image from a post-processed fstree.Fstree,
// writing the output in a single streaming pass (spec.md §4.J).
//
// Grounded on the teacher's writer.go for the overall shape (WriterOption
// pattern, placeholder-then-patch superblock, table write order), with its
// inode-position/block-position convergence loop dropped: meta.Writer.Pos
// already reports a correct address before every Append, so a single
// children-before-parent pass (the order fstree.Fstree.Nodes already
// produces) is enough to know every directory entry's target address by
// the time its parent is serialized.
type Writer struct {
	out io.WriteSeeker

	blockSize  uint32
	compID     compressor.ID
	comp       compressor.Compressor
	modTime    int32
	workers    int
	exportable bool
	noXattrs   bool
}

// WriterOption configures a Writer.
type WriterOption func(*Writer) error

// WithBlockSize sets the data block size (default: 131072, matching the
// teacher's default).
func WithBlockSize(size uint32) WriterOption {
	return func(w *Writer) error {
		w.blockSize = size
		return nil
	}
}

// WithCompressor sets the compression format (default: GZip, which is
// always linked regardless of build tags).
func WithCompressor(id compressor.ID) WriterOption {
	return func(w *Writer) error {
		w.compID = id
		return nil
	}
}

// WithModTime sets the filesystem modification time (default: now).
func WithModTime(t time.Time) WriterOption {
	return func(w *Writer) error {
		w.modTime = int32(t.Unix())
		return nil
	}
}

// WithWorkers sets the block processor's worker count (default: 1).
func WithWorkers(n int) WriterOption {
	return func(w *Writer) error {
		w.workers = n
		return nil
	}
}

// WithExportable builds the NFS export table, so inodes can be looked up
// by inode number alone (spec.md §3, "export table").
func WithExportable() WriterOption {
	return func(w *Writer) error {
		w.exportable = true
		return nil
	}
}

// WithoutXattrs skips xattr table construction even if the tree carries
// attribute sets, setting the NO_XATTRS flag.
func WithoutXattrs() WriterOption {
	return func(w *Writer) error {
		w.noXattrs = true
		return nil
	}
}

// NewWriter prepares a Writer over out, which must support Seek since the
// 96-byte superblock is written as a placeholder first and patched once
// every table's final position is known.
func NewWriter(out io.WriteSeeker, opts ...WriterOption) (*Writer, error) {
	w := &Writer{
		out:       out,
		blockSize: 131072,
		compID:    compressor.GZip,
		modTime:   int32(time.Now().Unix()),
		workers:   1,
	}
	for _, o := range opts {
		if err := o(w); err != nil {
			return nil, err
		}
	}

	comp, err := compressor.New(w.compID)
	if err != nil {
		return nil, fmt.Errorf("squashfs: %w: compressor %s", ErrUnsupported, w.compID)
	}
	w.comp = comp

	return w, nil
}

// countingWriter tracks the absolute output offset across a run of
// sequential writes, since nothing after file data is written through
// blockproc.Processor (which tracks its own position instead).
type countingWriter struct {
	w   io.Writer
	pos int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.pos += int64(n)
	return n, err
}

// Build serializes t as a complete SquashFS image. t is post-processed
// automatically if it has not been already.
func (w *Writer) Build(t *fstree.Fstree) error {
	if !t.Processed() {
		if err := t.PostProcess(); err != nil {
			return err
		}
	}

	if _, err := w.out.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("squashfs: seek start: %w", err)
	}
	if _, err := w.out.Write(make([]byte, superblockSize)); err != nil {
		return fmt.Errorf("squashfs: write superblock placeholder: %w", err)
	}

	bp := blockproc.New(w.out, w.comp, blockproc.Config{
		BlockSize:   int(w.blockSize),
		Workers:     w.workers,
		StartOffset: superblockSize,
	})

	fileResults := make(map[*fstree.Node]*blockproc.FileResult, len(t.Files()))
	for _, f := range t.Files() {
		res, err := bp.Process(f)
		if err != nil {
			bp.Close()
			return fmt.Errorf("squashfs: write data for %q: %w", f.Name, err)
		}
		fileResults[f] = res
	}
	if err := bp.FlushFragment(); err != nil {
		bp.Close()
		return err
	}
	bp.Close()
	if err := bp.Status(); err != nil {
		return err
	}

	cw := &countingWriter{w: w.out, pos: bp.Pos()}

	ids := table.NewIDTable()
	var xpool *table.XattrPool
	if !w.noXattrs {
		xpool = table.NewXattrPool()
	}

	dirBuf := &bytes.Buffer{}
	inoBuf := &bytes.Buffer{}
	dirW := meta.NewWriter(dirBuf, w.comp)
	inoW := meta.NewWriter(inoBuf, w.comp)

	inoAddr := make(map[*fstree.Node]meta.Address, len(t.Nodes()))

	for _, n := range t.Nodes() {
		uidIdx, err := ids.Intern(n.Uid)
		if err != nil {
			return err
		}
		gidIdx, err := ids.Intern(n.Gid)
		if err != nil {
			return err
		}

		xattrIdx := uint32(0xffffffff)
		hasXattr := xpool != nil && len(n.Xattrs) > 0
		if hasXattr {
			kvs, err := xattrKVsForNode(n)
			if err != nil {
				return err
			}
			xattrIdx = xpool.InternSet(kvs)
		}

		var data []byte
		switch {
		case n.IsDir():
			dirAddr, dirSize, err := w.writeDirEntries(dirW, n, inoAddr)
			if err != nil {
				return fmt.Errorf("squashfs: directory %q: %w", n.Name, err)
			}
			data, err = buildDirInode(n, uidIdx, gidIdx, xattrIdx, hasXattr, dirAddr, dirSize)
			if err != nil {
				return err
			}
		case n.IsRegular():
			data, err = buildFileInode(n, uidIdx, gidIdx, xattrIdx, hasXattr, fileResults[n])
			if err != nil {
				return err
			}
		case n.IsSymlink():
			data, err = buildSymlinkInode(n, uidIdx, gidIdx, xattrIdx, hasXattr)
			if err != nil {
				return err
			}
		default:
			data, err = buildSpecialInode(n, uidIdx, gidIdx, xattrIdx, hasXattr)
			if err != nil {
				return err
			}
		}

		addr := inoW.Pos()
		if err := inoW.Append(data); err != nil {
			return err
		}
		inoAddr[n] = addr
	}

	if err := dirW.Flush(); err != nil {
		return err
	}
	if err := inoW.Flush(); err != nil {
		return err
	}

	dirTableStart := cw.pos
	if _, err := cw.Write(dirBuf.Bytes()); err != nil {
		return fmt.Errorf("squashfs: write directory table: %w", err)
	}
	inodeTableStart := cw.pos
	if _, err := cw.Write(inoBuf.Bytes()); err != nil {
		return fmt.Errorf("squashfs: write inode table: %w", err)
	}

	idTableStart, err := writeLocatedTable(cw, ids.Values(), table.IDCodec, w.comp)
	if err != nil {
		return fmt.Errorf("squashfs: write id table: %w", err)
	}

	fragTableStart := uint64(0xffffffffffffffff)
	if bp.FragmentTable().Len() > 0 {
		fragTableStart, err = writeLocatedTable(cw, bp.FragmentTable().Entries(), table.FragmentCodec, w.comp)
		if err != nil {
			return fmt.Errorf("squashfs: write fragment table: %w", err)
		}
	}

	flags := SquashFlags(0)
	xattrIdTableStart := uint64(0xffffffffffffffff)
	if xpool == nil {
		flags |= NO_XATTRS
	} else if sets := xpool.Sets(); len(sets) > 0 {
		xattrIdTableStart, err = w.writeXattrTables(cw, xpool)
		if err != nil {
			return fmt.Errorf("squashfs: write xattr tables: %w", err)
		}
	} else {
		flags |= NO_XATTRS
	}

	exportTableStart := uint64(0xffffffffffffffff)
	if w.exportable {
		flags |= EXPORTABLE
		refs := make([]uint64, len(t.Nodes()))
		for _, n := range t.Nodes() {
			refs[n.InodeNumber-1] = uint64(inoAddr[n])
		}
		exportTableStart, err = writeLocatedTable(cw, refs, table.ExportCodec, w.comp)
		if err != nil {
			return fmt.Errorf("squashfs: write export table: %w", err)
		}
	}

	sb := &Superblock{
		order:             binary.LittleEndian,
		Magic:             magicLittle,
		InodeCnt:          uint32(len(t.Nodes())),
		ModTime:           w.modTime,
		BlockSize:         w.blockSize,
		FragCount:         uint32(bp.FragmentTable().Len()),
		CompId:            uint16(w.comp.ID()),
		BlockLog:          blockLog(w.blockSize),
		Flags:             flags,
		IdCount:           uint16(len(ids.Values())),
		VMajor:            4,
		VMinor:            0,
		RootInode:         uint64(inoAddr[t.Root]),
		BytesUsed:         uint64(cw.pos),
		IdTableStart:      idTableStart,
		XattrIdTableStart: xattrIdTableStart,
		InodeTableStart:   uint64(inodeTableStart),
		DirTableStart:     uint64(dirTableStart),
		FragTableStart:    fragTableStart,
		ExportTableStart:  exportTableStart,
	}

	head, err := sb.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := w.out.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("squashfs: seek to patch superblock: %w", err)
	}
	if _, err := w.out.Write(head); err != nil {
		return fmt.Errorf("squashfs: write final superblock: %w", err)
	}

	return nil
}

// writeLocatedTable writes records as a chunked, compressed table
// immediately followed by its location array, and returns the location
// array's offset — the value a SquashFS superblock table-start field
// holds (spec.md §4.D).
func writeLocatedTable[T any](cw *countingWriter, records []T, codec table.RecordCodec[T], comp compressor.Compressor) (uint64, error) {
	base := cw.pos
	locs, err := table.Write(cw, base, records, codec, comp)
	if err != nil {
		return 0, err
	}
	tableStart := uint64(cw.pos)
	if err := table.WriteLocations(cw, locs); err != nil {
		return 0, err
	}
	return tableStart, nil
}

// writeXattrTables serializes xpool's key/value sets and returns the
// xattr id table header's offset (spec.md §3's three-level model,
// xattrHeaderSize's layout in super.go).
func (w *Writer) writeXattrTables(cw *countingWriter, xpool *table.XattrPool) (uint64, error) {
	kvBuf := &bytes.Buffer{}
	valuesBuf := &bytes.Buffer{}
	kvW := meta.NewWriter(kvBuf, w.comp)
	valuesW := meta.NewWriter(valuesBuf, w.comp)

	entries, err := table.NewXattrWriter(kvW, valuesW, 0, xpool).WriteAll()
	if err != nil {
		return 0, err
	}

	kvStart := cw.pos
	if _, err := cw.Write(kvBuf.Bytes()); err != nil {
		return 0, err
	}
	valueStart := cw.pos
	if _, err := cw.Write(valuesBuf.Bytes()); err != nil {
		return 0, err
	}

	headerStart := cw.pos
	header := make([]byte, xattrHeaderSize)
	binary.LittleEndian.PutUint64(header[0:], uint64(kvStart))
	binary.LittleEndian.PutUint64(header[8:], uint64(valueStart))
	binary.LittleEndian.PutUint32(header[16:], uint32(len(entries)))
	if _, err := cw.Write(header); err != nil {
		return 0, err
	}

	base := cw.pos
	locs, err := table.Write(cw, base, entries, table.XattrIDCodec, w.comp)
	if err != nil {
		return 0, err
	}
	if err := table.WriteLocations(cw, locs); err != nil {
		return 0, err
	}

	return uint64(headerStart), nil
}

// xattrKVsForNode decodes a node's flat "prefix.key" -> value map back
// into the three-namespace pairs table.XattrPool interns (the inverse of
// fstree/build.go's encoding of diriter.Xattr into Node.Xattrs).
func xattrKVsForNode(n *fstree.Node) ([]table.XattrKV, error) {
	out := make([]table.XattrKV, 0, len(n.Xattrs))
	for k, v := range n.Xattrs {
		prefixName := k
		key := ""
		for i := 0; i < len(k); i++ {
			if k[i] == '.' {
				prefixName = k[:i]
				key = k[i+1:]
				break
			}
		}
		var prefix table.XattrPrefix
		switch prefixName {
		case "user":
			prefix = table.XattrUser
		case "trusted":
			prefix = table.XattrTrusted
		case "security":
			prefix = table.XattrSecurity
		default:
			return nil, fmt.Errorf("%w: xattr namespace %q", ErrUnsupported, prefixName)
		}
		out = append(out, table.XattrKV{Prefix: prefix, Key: key, Value: []byte(v)})
	}
	return out, nil
}

// dirEntry is one resolved, address-carrying directory listing row, built
// once every child of a directory has already been serialized.
type dirEntry struct {
	name string
	addr meta.Address
	num  uint32
	typ  Type
}

// writeDirEntries appends n's directory listing (its children, hard links
// resolved to their target's inode) to dirW and returns the address and
// on-disk size field of the listing just written.
func (w *Writer) writeDirEntries(dirW *meta.Writer, n *fstree.Node, inoAddr map[*fstree.Node]meta.Address) (meta.Address, uint32, error) {
	children := n.SortedChildren()
	if len(children) == 0 {
		return dirW.Pos(), 3, nil
	}

	entries := make([]dirEntry, len(children))
	for i, c := range children {
		target := c
		if c.Flags&fstree.HardLink != 0 && c.HardLinkTo != nil {
			target = c.HardLinkTo
		}
		addr, ok := inoAddr[target]
		if !ok {
			return 0, 0, fmt.Errorf("inode for %q not yet written", c.Name)
		}
		entries[i] = dirEntry{name: c.Name, addr: addr, num: target.InodeNumber, typ: basicType(target)}
	}

	startAddr := dirW.Pos()
	total := 0

	for i := 0; i < len(entries); {
		j := i + 1
		blockStart := entries[i].addr.BlockStart()
		for j < len(entries) && j-i < dirIndexInterval && entries[j].addr.BlockStart() == blockStart {
			j++
		}
		chunk := entries[i:j]

		buf := make([]byte, 0, 12+len(chunk)*16)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(chunk)-1))
		buf = binary.LittleEndian.AppendUint32(buf, blockStart)
		buf = binary.LittleEndian.AppendUint32(buf, chunk[0].num)
		for _, e := range chunk {
			buf = binary.LittleEndian.AppendUint16(buf, e.addr.ByteOffset())
			buf = binary.LittleEndian.AppendUint16(buf, uint16(int16(int32(e.num)-int32(chunk[0].num))))
			buf = binary.LittleEndian.AppendUint16(buf, uint16(e.typ))
			buf = binary.LittleEndian.AppendUint16(buf, uint16(len(e.name)-1))
			buf = append(buf, e.name...)
		}

		if err := dirW.Append(buf); err != nil {
			return 0, 0, err
		}
		total += len(buf)
		i = j
	}

	return startAddr, uint32(total) + 3, nil
}

// basicType returns n's non-extended on-disk type, the type directory
// listings always carry regardless of whether the inode itself is a
// basic or extended variant (spec.md §3).
func basicType(n *fstree.Node) Type {
	switch {
	case n.IsDir():
		return DirType
	case n.IsRegular():
		return FileType
	case n.IsSymlink():
		return SymlinkType
	case n.Mode&fs.ModeNamedPipe != 0:
		return FifoType
	case n.Mode&fs.ModeSocket != 0:
		return SocketType
	case n.Mode&fs.ModeCharDevice != 0:
		return CharDevType
	case n.Mode&fs.ModeDevice != 0:
		return BlockDevType
	default:
		return FileType
	}
}

func inodeHeader(t Type, perm uint32, uidIdx, gidIdx uint16, modTime int32, ino uint32) []byte {
	buf := make([]byte, 0, 16)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(t))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(perm&0777))
	buf = binary.LittleEndian.AppendUint16(buf, uidIdx)
	buf = binary.LittleEndian.AppendUint16(buf, gidIdx)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(modTime))
	buf = binary.LittleEndian.AppendUint32(buf, ino)
	return buf
}

// buildDirInode serializes n's own inode. It always uses the extended
// type when n carries xattrs (the basic type has no XattrIdx field to
// carry them) and never emits a directory index — every consumer in this
// module ignores IdxCount, so there is nothing for an index to speed up.
func buildDirInode(n *fstree.Node, uidIdx, gidIdx uint16, xattrIdx uint32, hasXattr bool, dirAddr meta.Address, dirSize uint32) ([]byte, error) {
	parentIno := n.InodeNumber
	if n.Parent != nil {
		parentIno = n.Parent.InodeNumber
	}
	nlink := uint32(2)
	for _, c := range n.Children {
		if c.IsDir() {
			nlink++
		}
	}

	t := DirType
	if hasXattr {
		t = XDirType
	}
	buf := inodeHeader(t, n.Perm, uidIdx, gidIdx, int32(n.ModTime.Unix()), n.InodeNumber)

	if !hasXattr {
		buf = binary.LittleEndian.AppendUint32(buf, dirAddr.BlockStart())
		buf = binary.LittleEndian.AppendUint32(buf, nlink)
		buf = binary.LittleEndian.AppendUint16(buf, uint16(dirSize))
		buf = binary.LittleEndian.AppendUint16(buf, dirAddr.ByteOffset())
		buf = binary.LittleEndian.AppendUint32(buf, parentIno)
		return buf, nil
	}

	buf = binary.LittleEndian.AppendUint32(buf, nlink)
	buf = binary.LittleEndian.AppendUint32(buf, dirSize)
	buf = binary.LittleEndian.AppendUint32(buf, dirAddr.BlockStart())
	buf = binary.LittleEndian.AppendUint32(buf, parentIno)
	buf = binary.LittleEndian.AppendUint16(buf, 0) // IdxCount: no directory index
	buf = binary.LittleEndian.AppendUint16(buf, dirAddr.ByteOffset())
	buf = binary.LittleEndian.AppendUint32(buf, xattrIdx)
	return buf, nil
}

// buildFileInode serializes a regular file's inode, promoting to the
// extended type when it carries xattrs, sparse holes, or a size the
// basic type's 32-bit field cannot hold.
func buildFileInode(n *fstree.Node, uidIdx, gidIdx uint16, xattrIdx uint32, hasXattr bool, res *blockproc.FileResult) ([]byte, error) {
	if res == nil {
		res = &blockproc.FileResult{}
	}

	fragBlock := uint32(0xffffffff)
	fragOfft := uint32(0)
	if res.Fragment != nil {
		fragBlock = res.Fragment.Index
		fragOfft = res.Fragment.Offset
	}

	var startBlock uint64
	if len(res.Blocks) > 0 {
		startBlock = res.Blocks[0].Start
	}

	size := uint64(n.Size)
	// the basic file type has no NLink field at all, so any file with
	// extra hard links must be promoted regardless of its other fields.
	extended := hasXattr || res.SparseBytes > 0 || size > 0xffffffff || n.NLink > 0

	t := FileType
	if extended {
		t = XFileType
	}
	buf := inodeHeader(t, n.Perm, uidIdx, gidIdx, int32(n.ModTime.Unix()), n.InodeNumber)

	if !extended {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(startBlock))
		buf = binary.LittleEndian.AppendUint32(buf, fragBlock)
		buf = binary.LittleEndian.AppendUint32(buf, fragOfft)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(size))
	} else {
		buf = binary.LittleEndian.AppendUint64(buf, startBlock)
		buf = binary.LittleEndian.AppendUint64(buf, size)
		buf = binary.LittleEndian.AppendUint64(buf, uint64(res.SparseBytes))
		buf = binary.LittleEndian.AppendUint32(buf, nlinkOf(n))
		buf = binary.LittleEndian.AppendUint32(buf, fragBlock)
		buf = binary.LittleEndian.AppendUint32(buf, fragOfft)
		buf = binary.LittleEndian.AppendUint32(buf, xattrIdx)
	}

	for _, b := range res.Blocks {
		buf = binary.LittleEndian.AppendUint32(buf, b.Size)
	}

	return buf, nil
}

// buildSymlinkInode serializes a symlink's inode, promoting to the
// extended type only when it carries xattrs (the only extra field type
// 10 adds over type 3).
func buildSymlinkInode(n *fstree.Node, uidIdx, gidIdx uint16, xattrIdx uint32, hasXattr bool) ([]byte, error) {
	target := []byte(n.LinkTarget)
	if len(target) > 4096 {
		return nil, fmt.Errorf("%w: symlink target length %d", ErrOverflow, len(target))
	}

	t := SymlinkType
	if hasXattr {
		t = XSymlinkType
	}
	buf := inodeHeader(t, n.Perm, uidIdx, gidIdx, int32(n.ModTime.Unix()), n.InodeNumber)
	buf = binary.LittleEndian.AppendUint32(buf, nlinkOf(n))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(target)))
	buf = append(buf, target...)
	if hasXattr {
		buf = binary.LittleEndian.AppendUint32(buf, xattrIdx)
	}
	return buf, nil
}

// buildSpecialInode serializes a device, fifo, or socket node's inode.
func buildSpecialInode(n *fstree.Node, uidIdx, gidIdx uint16, xattrIdx uint32, hasXattr bool) ([]byte, error) {
	basic := basicType(n)
	t := basic
	if hasXattr {
		t = basic + 7
	}
	buf := inodeHeader(t, n.Perm, uidIdx, gidIdx, int32(n.ModTime.Unix()), n.InodeNumber)
	buf = binary.LittleEndian.AppendUint32(buf, nlinkOf(n))

	switch basic {
	case BlockDevType, CharDevType:
		buf = binary.LittleEndian.AppendUint32(buf, n.Rdev)
	}
	if hasXattr {
		switch basic {
		case BlockDevType, CharDevType, FifoType, SocketType:
			buf = binary.LittleEndian.AppendUint32(buf, xattrIdx)
		}
	}
	return buf, nil
}

// nlinkOf returns a node's on-disk link count: itself plus however many
// additional hard links fstree.PostProcess resolved onto it.
func nlinkOf(n *fstree.Node) uint32 { return n.NLink + 1 }

// blockLog returns the superblock's block_log field: log2 of blockSize.
func blockLog(blockSize uint32) uint16 {
	var log uint16
	for s := uint32(1); s < blockSize; s <<= 1 {
		log++
	}
	return log
}
