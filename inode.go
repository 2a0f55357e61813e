package squashfs

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"sync/atomic"

	"github.com/go-sqfs/sqfs/table"
	"github.com/sirupsen/logrus"
)

// Inode is a decoded SquashFS inode (spec.md §4.I). Field layout mirrors
// the teacher's original struct; only the table lookups backing
// ReadAt's fragment/block decompression changed, from ad hoc reads
// against Superblock.Comp to the shared compressor/meta/table packages.
type Inode struct {
	// refcnt is first value to get guaranteed 64bits alignment, if not sync/atomic will panic
	refcnt uint64 // for fuse

	sb *Superblock

	Type    uint16
	Perm    uint16
	UidIdx  uint16
	GidIdx  uint16
	ModTime int32
	Ino     uint32 // inode number

	StartBlock uint64
	NLink      uint32
	Size       uint64 // Careful, actual on disk size varies depending on type
	Offset     uint32 // uint16 for directories
	ParentIno  uint32 // for directories
	SymTarget  []byte // The target path this symlink points to
	IdxCount   uint16 // index count for advanced directories
	XattrIdx   uint32 // xattr table index (if relevant)
	Sparse     uint64

	// fragment
	FragBlock uint32
	FragOfft  uint32

	// file blocks (some have value 0x1001000)
	Blocks     []uint32
	BlocksOfft []uint64
}

func (sb *Superblock) GetInode(ino uint64) (*Inode, error) {
	if ino == 1 {
		return sb.rootIno, nil
	}
	if ino == sb.rootInoN {
		ino = 1
	}

	sb.inoIdxL.RLock()
	inor, ok := sb.inoIdx[uint32(ino)]
	sb.inoIdxL.RUnlock()
	if ok {
		return sb.GetInodeRef(inor)
	}

	if sb.export != nil {
		if ref, ok := sb.export[uint32(ino)]; ok {
			return sb.GetInodeRef(inodeRef(ref))
		}
	}

	return nil, fmt.Errorf("%w: inode %d", ErrInodeNotExported, ino)
}

func (sb *Superblock) GetInodeRef(inor inodeRef) (*Inode, error) {
	r, err := sb.newInodeReader(inor)
	if err != nil {
		return nil, fmt.Errorf("squashfs: locate inode %s: %w", inor, err)
	}

	ino := &Inode{sb: sb}

	if err := binary.Read(r, sb.order, &ino.Type); err != nil {
		return nil, err
	}
	if err := binary.Read(r, sb.order, &ino.Perm); err != nil {
		return nil, err
	}
	if err := binary.Read(r, sb.order, &ino.UidIdx); err != nil {
		return nil, err
	}
	if err := binary.Read(r, sb.order, &ino.GidIdx); err != nil {
		return nil, err
	}
	if err := binary.Read(r, sb.order, &ino.ModTime); err != nil {
		return nil, err
	}
	if err := binary.Read(r, sb.order, &ino.Ino); err != nil {
		return nil, err
	}

	switch ino.Type {
	case 1: // Basic Directory
		var u32 uint32
		if err := binary.Read(r, sb.order, &u32); err != nil {
			return nil, err
		}
		ino.StartBlock = uint64(u32)

		if err := binary.Read(r, sb.order, &ino.NLink); err != nil {
			return nil, err
		}

		var u16 uint16
		if err := binary.Read(r, sb.order, &u16); err != nil {
			return nil, err
		}
		ino.Size = uint64(u16)

		if err := binary.Read(r, sb.order, &u16); err != nil {
			return nil, err
		}
		ino.Offset = uint32(u16)

		if err := binary.Read(r, sb.order, &ino.ParentIno); err != nil {
			return nil, err
		}
	case 8: // Extended dir
		var u32 uint32
		var u16 uint16

		if err := binary.Read(r, sb.order, &ino.NLink); err != nil {
			return nil, err
		}
		if err := binary.Read(r, sb.order, &u32); err != nil {
			return nil, err
		}
		ino.Size = uint64(u32)

		if err := binary.Read(r, sb.order, &u32); err != nil {
			return nil, err
		}
		ino.StartBlock = uint64(u32)

		if err := binary.Read(r, sb.order, &ino.ParentIno); err != nil {
			return nil, err
		}
		if err := binary.Read(r, sb.order, &ino.IdxCount); err != nil {
			return nil, err
		}
		if err := binary.Read(r, sb.order, &u16); err != nil {
			return nil, err
		}
		ino.Offset = uint32(u16)

		if err := binary.Read(r, sb.order, &ino.XattrIdx); err != nil {
			return nil, err
		}
	case 2: // Basic file
		var u32 uint32
		if err := binary.Read(r, sb.order, &u32); err != nil {
			return nil, err
		}
		ino.StartBlock = uint64(u32)

		if err := binary.Read(r, sb.order, &ino.FragBlock); err != nil {
			return nil, err
		}
		if err := binary.Read(r, sb.order, &ino.FragOfft); err != nil {
			return nil, err
		}
		if err := binary.Read(r, sb.order, &u32); err != nil {
			return nil, err
		}
		ino.Size = uint64(u32)

		if err := ino.readBlockList(r); err != nil {
			return nil, err
		}
	case 9: // extended file
		if err := binary.Read(r, sb.order, &ino.StartBlock); err != nil {
			return nil, err
		}
		if err := binary.Read(r, sb.order, &ino.Size); err != nil {
			return nil, err
		}
		if err := binary.Read(r, sb.order, &ino.Sparse); err != nil {
			return nil, err
		}
		if err := binary.Read(r, sb.order, &ino.NLink); err != nil {
			return nil, err
		}
		if err := binary.Read(r, sb.order, &ino.FragBlock); err != nil {
			return nil, err
		}
		if err := binary.Read(r, sb.order, &ino.FragOfft); err != nil {
			return nil, err
		}
		if err := binary.Read(r, sb.order, &ino.XattrIdx); err != nil {
			return nil, err
		}

		if err := ino.readBlockList(r); err != nil {
			return nil, err
		}
	case 3, 10: // basic/extended symlink
		if err := binary.Read(r, sb.order, &ino.NLink); err != nil {
			return nil, err
		}

		var u32 uint32
		if err := binary.Read(r, sb.order, &u32); err != nil {
			return nil, err
		}
		if u32 > 4096 {
			return nil, fmt.Errorf("%w: symlink target length %d", ErrCorrupted, u32)
		}
		ino.Size = uint64(u32)

		buf := make([]byte, u32)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		ino.SymTarget = buf

		if ino.Type == 10 {
			if err := binary.Read(r, sb.order, &ino.XattrIdx); err != nil {
				return nil, err
			}
		}
	case 4, 5, 6, 7, 11, 12, 13, 14: // device / fifo / socket, basic and extended
		if err := binary.Read(r, sb.order, &ino.NLink); err != nil {
			return nil, err
		}
		if ino.Type == 4 || ino.Type == 5 {
			var rdev uint32
			if err := binary.Read(r, sb.order, &rdev); err != nil {
				return nil, err
			}
			ino.StartBlock = uint64(rdev)
		} else if ino.Type == 11 || ino.Type == 12 {
			var rdev uint32
			if err := binary.Read(r, sb.order, &rdev); err != nil {
				return nil, err
			}
			ino.StartBlock = uint64(rdev)
			if err := binary.Read(r, sb.order, &ino.XattrIdx); err != nil {
				return nil, err
			}
		} else if ino.Type == 13 || ino.Type == 14 {
			if err := binary.Read(r, sb.order, &ino.XattrIdx); err != nil {
				return nil, err
			}
		}
	default:
		logrus.WithField("type", ino.Type).Warn("squashfs: unsupported inode type")
		return ino, nil
	}

	return ino, nil
}

// readBlockList reads a regular file's block_sizes[] array, whose length
// is implied by size/block_size and whether the file ends in a fragment.
func (ino *Inode) readBlockList(r io.Reader) error {
	sb := ino.sb
	blocks := int(ino.Size / uint64(sb.BlockSize))
	if ino.FragBlock == 0xffffffff {
		if ino.Size%uint64(sb.BlockSize) != 0 {
			blocks++
		}
	}

	ino.Blocks = make([]uint32, blocks)
	ino.BlocksOfft = make([]uint64, blocks)

	offt := uint64(0)
	for i := 0; i < blocks; i++ {
		var u32 uint32
		if err := binary.Read(r, sb.order, &u32); err != nil {
			return err
		}
		ino.Blocks[i] = u32
		ino.BlocksOfft[i] = offt
		offt += uint64(u32) &^ BlockCompressedFlag
	}

	if ino.FragBlock != 0xffffffff {
		ino.Blocks = append(ino.Blocks, 0xffffffff)
	}
	return nil
}

// BlockCompressedFlag mirrors blockproc.BlockCompressedFlag's on-disk
// convention (bit 24 of a stored block size means "stored raw").
const BlockCompressedFlag = 1 << 24

func (i *Inode) ReadAt(p []byte, off int64) (int, error) {
	switch i.Type {
	case 2, 9: // regular file
		if uint64(off) >= i.Size {
			return 0, io.EOF
		}
		if uint64(off+int64(len(p))) > i.Size {
			p = p[:int64(i.Size)-off]
		}

		block := int(off / int64(i.sb.BlockSize))
		offset := int(off % int64(i.sb.BlockSize))
		n := 0

		for {
			var buf []byte

			if i.Blocks[block] == 0xffffffff {
				fb, err := i.readFragment()
				if err != nil {
					return n, err
				}
				buf = fb
			} else if i.Blocks[block] == 0 {
				buf = make([]byte, i.sb.BlockSize)
			} else {
				raw := make([]byte, i.Blocks[block]&^BlockCompressedFlag)
				if _, err := i.sb.fs.ReadAt(raw, int64(i.StartBlock+i.BlocksOfft[block])); err != nil {
					return n, err
				}
				if i.Blocks[block]&BlockCompressedFlag == 0 {
					d, err := i.sb.comp.DecompressBlock(raw, int(i.sb.BlockSize))
					if err != nil {
						return n, err
					}
					buf = d
				} else {
					buf = raw
				}
			}

			if offset > 0 {
				buf = buf[offset:]
			}

			l := copy(p, buf)
			n += l
			if l == len(p) {
				return n, nil
			}

			p = p[l:]
			block++
			offset = 0
		}
	}
	return 0, fmt.Errorf("%w: inode type %d", ErrNotFile, i.Type)
}

// readFragment decodes this inode's tail out of the packed fragment
// block it was written into, using the loaded fragment table instead of
// the teacher's one-off fragment-table-location probe.
func (i *Inode) readFragment() ([]byte, error) {
	sb := i.sb
	if int(i.FragBlock) >= len(sb.fragTbl) {
		return nil, fmt.Errorf("%w: fragment index %d", ErrOutOfBounds, i.FragBlock)
	}
	entry := sb.fragTbl[i.FragBlock]

	var buf []byte
	if entry.Size&BlockCompressedFlag != 0 {
		buf = make([]byte, entry.Size&^BlockCompressedFlag)
		if _, err := sb.fs.ReadAt(buf, int64(entry.StartBlock)); err != nil {
			return nil, err
		}
	} else {
		raw := make([]byte, entry.Size)
		if _, err := sb.fs.ReadAt(raw, int64(entry.StartBlock)); err != nil {
			return nil, err
		}
		d, err := sb.comp.DecompressBlock(raw, int(sb.BlockSize))
		if err != nil {
			return nil, err
		}
		buf = d
	}

	if i.FragOfft != 0 {
		buf = buf[i.FragOfft:]
	}
	return buf, nil
}

func (i *Inode) LookupRelativeInode(ctx context.Context, name string) (*Inode, error) {
	switch i.Type {
	case 1, 8:
		dr, err := i.sb.dirReader(i, nil)
		if err != nil {
			return nil, err
		}
		for {
			ename, inoR, err := dr.next()
			if err != nil {
				if err == io.EOF {
					return nil, fs.ErrNotExist
				}
				return nil, err
			}

			if name == ename {
				found, err := i.sb.GetInodeRef(inoR)
				if err != nil {
					return nil, err
				}
				i.sb.setInodeRefCache(found.Ino, inoR)
				return found, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: inode %d is not a directory", ErrNotDirectory, i.Ino)
}

func (i *Inode) LookupRelativeInodePath(ctx context.Context, name string) (*Inode, error) {
	cur := i

	for {
		if len(name) == 0 {
			return cur, nil
		}
		pos := strings.IndexByte(name, '/')
		if pos == -1 {
			return cur.LookupRelativeInode(ctx, name)
		}
		if pos == 0 {
			name = name[1:]
			continue
		}
		t, err := cur.LookupRelativeInode(ctx, name[:pos])
		if err != nil {
			return nil, err
		}
		cur = t
		name = name[pos+1:]
	}
}

func (i *Inode) Mode() fs.FileMode {
	return UnixToMode(uint32(i.Perm)) | Type(i.Type).Mode()
}

// Uid resolves this inode's owning uid through the superblock's id table.
func (i *Inode) Uid() uint32 {
	return i.sb.lookupID(i.UidIdx)
}

// Gid resolves this inode's owning gid through the superblock's id table.
func (i *Inode) Gid() uint32 {
	return i.sb.lookupID(i.GidIdx)
}

func (i *Inode) IsDir() bool {
	switch i.Type {
	case 1, 8:
		return true
	}
	return false
}

func (i *Inode) Readlink() ([]byte, error) {
	switch i.Type {
	case 3, 10:
		return i.SymTarget, nil
	}
	return nil, fmt.Errorf("%w: inode %d is not a symlink", ErrUnsupported, i.Ino)
}

// Xattrs returns this inode's decoded extended attributes, or nil if it
// carries none or the image has NO_XATTRS set.
func (i *Inode) Xattrs() ([]table.XattrKV, error) {
	if i.sb.xattrs == nil || i.XattrIdx == 0xffffffff {
		return nil, nil
	}
	return i.sb.xattrs.Set(i.XattrIdx)
}

func (i *Inode) AddRef(count uint64) uint64 {
	return atomic.AddUint64(&i.refcnt, count)
}

func (i *Inode) DelRef(count uint64) uint64 {
	return atomic.AddUint64(&i.refcnt, ^(count - 1))
}
