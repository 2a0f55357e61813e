// Package fstree builds the in-memory hierarchical filesystem tree that
// feeds the SquashFS writer (spec.md §4.G): nodes accumulated from
// description files, host directories, or tar archives, then
// post-processed into a depth-first-numbered, hard-link-resolved,
// export-safe shape.
//
// Grounded on the teacher's dir.go/inode.go (KarpelesLab/squashfs) for the
// node/type vocabulary (fs.FileMode-based typing, Uid/Gid/ModTime fields)
// generalized from "decoded on-disk inode" to "in-memory tree node still
// being assembled", plus include/fstree.h (original_source) for the
// construction and post-process algorithm shape the teacher never had.
package fstree

import (
	"io/fs"
	"time"
)

// DataSource supplies a regular file's bytes to the block processor. Host
// files, tar-stream members, and already-packed squashfs files are all
// valid sources (spec.md §4.F's "open_file_ro").
type DataSource interface {
	Open() (ReadCloser, error)
	Size() int64
}

// ReadCloser is the minimal stream DataSource.Open returns.
type ReadCloser interface {
	Read(p []byte) (int, error)
	Close() error
}

// Flags carries the per-file block-processor hints the spec's sort-file
// and description formats expose (spec.md §4.G, §4.H).
type Flags uint8

const (
	DontCompress Flags = 1 << iota
	DontFragment
	Align
	NoSparse
	HardLink // set on nodes still awaiting hard-link resolution
)

// Node is one filesystem entry: a directory, regular file, symlink,
// device, fifo, or socket, in whatever state of construction the tree is
// currently in.
type Node struct {
	Name string
	Mode fs.FileMode // type bits only; permission bits live in Perm
	Perm uint32      // unix permission bits (0-0777, plus setuid/setgid/sticky)

	Uid, Gid   uint32
	ModTime    time.Time
	Rdev       uint32 // device entries: encoded major/minor
	LinkTarget string // symlink target, or (pre-resolution) hard-link source path

	Parent   *Node // non-owning back-reference; nil for the tree root
	Children map[string]*Node

	Source DataSource // regular files only
	Size   int64

	Xattrs map[string]string // flat key -> value; namespace prefix embedded in key

	Priority int
	Flags    Flags

	HardLinkTo *Node // resolved target, once PostProcess runs
	NLink      uint32

	InodeNumber uint32
	Implicit    bool // directory created implicitly by an intermediate path component
}

func newDir(name string) *Node {
	return &Node{
		Name:     name,
		Mode:     fs.ModeDir,
		Perm:     0o755,
		Children: make(map[string]*Node),
		ModTime:  time.Unix(0, 0).UTC(),
	}
}

func (n *Node) IsDir() bool     { return n.Mode&fs.ModeDir != 0 }
func (n *Node) IsSymlink() bool { return n.Mode&fs.ModeSymlink != 0 }
func (n *Node) IsRegular() bool { return n.Mode&fs.ModeType == 0 }

// child returns the named immediate child, or nil.
func (n *Node) child(name string) *Node {
	if n.Children == nil {
		return nil
	}
	return n.Children[name]
}

// SortedChildren returns this directory's children in lexicographic name
// order, the presentation order spec.md §4.F requires of tree iteration
// and the order the writer serializes directory entries in.
func (n *Node) SortedChildren() []*Node {
	names := n.sortedChildNames()
	out := make([]*Node, len(names))
	for i, name := range names {
		out[i] = n.Children[name]
	}
	return out
}

// sortedChildNames returns this directory's child names in lexicographic
// order, the presentation order spec.md §4.F requires of tree iteration.
func (n *Node) sortedChildNames() []string {
	names := make([]string, 0, len(n.Children))
	for name := range n.Children {
		names = append(names, name)
	}
	insertionSort(names)
	return names
}

func insertionSort(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
