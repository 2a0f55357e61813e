// Package diriter implements the polymorphic directory iterator
// abstraction of spec.md §4.F: a uniform walk interface over a host
// filesystem tree, a tar archive stream, or an already-opened SquashFS
// image, plus a stacked hard-link filter usable over any of them.
//
// Grounded on the teacher's dir.go (KarpelesLab/squashfs) for the
// directory-entry vocabulary (name/type/inode-ref), generalized from
// "decode one on-disk directory" to "yield entries from any one of three
// sources behind one interface", and on other_examples' rawtar-derived
// tar package (this module's own tar package) for the tar-iterator
// implementation.
package diriter

import (
	"io"
	"io/fs"
	"time"
)

// EntryType mirrors the basic SquashFS inode type vocabulary, the common
// ground all three iterator sources can express.
type EntryType int

const (
	TypeDir EntryType = iota
	TypeFile
	TypeSymlink
	TypeBlockDev
	TypeCharDev
	TypeFifo
	TypeSocket
)

// Entry is one directory entry yielded by Next (spec.md §4.F).
type Entry struct {
	Name    string
	Type    EntryType
	Mode    fs.FileMode // permission bits
	Uid     uint32
	Gid     uint32
	ModTime time.Time
	Rdev    uint32
	Size    int64

	HardLink bool   // true when this entry is a hard link to an earlier one
	LinkRef  string // hard-link filter's key for the earlier occurrence

	// FullPath is set by flat sources (the tar iterator) that have no
	// OpenSubdir recursion to derive tree position from; empty for
	// hierarchical sources, which use Name at each recursion level instead.
	FullPath string

	dev, ino uint64 // identity used by the hard-link filter; source-specific
}

// Iterator is the directory-walk abstraction of spec.md §4.F.
type Iterator interface {
	// Next advances to the next entry, returning io.EOF when exhausted.
	Next() (*Entry, error)

	// ReadLink returns a symlink's (or unresolved hard link's) target.
	// Valid only immediately after Next returned such an entry.
	ReadLink() (string, error)

	// OpenSubdir opens an iterator over the directory entry most
	// recently returned by Next. Valid only for TypeDir entries.
	OpenSubdir() (Iterator, error)

	// IgnoreSubdir tells a recursive iterator to skip descending into
	// the directory entry most recently returned by Next.
	IgnoreSubdir()

	// OpenFileRO opens the regular-file entry most recently returned by
	// Next for reading.
	OpenFileRO() (io.ReadCloser, error)

	// ReadXattr returns the extended attributes of the entry most
	// recently returned by Next, or nil if it carries none.
	ReadXattr() ([]Xattr, error)
}

// Xattr is one extended attribute as yielded by an iterator, independent
// of the three-level on-disk encoding table.XattrKV uses.
type Xattr struct {
	Prefix string // "user", "trusted", "security"
	Key    string
	Value  []byte
}
