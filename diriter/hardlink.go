package diriter

import (
	"fmt"
	"io"
)

// HardLinkFilter wraps any Iterator and converts repeat (dev, ino) pairs
// into hard-link entries referring back to the first occurrence, the way
// the teacher's own fstree scan collapses duplicate inodes when walking
// a host directory (spec.md §4.F, "Hard-link filter").
type HardLinkFilter struct {
	inner Iterator
	seen  map[[2]uint64]string // (dev, ino) -> path of first occurrence
	path  []string             // current directory-name stack
	cur   *Entry
}

// NewHardLinkFilter stacks identity-based hard-link detection over inner.
func NewHardLinkFilter(inner Iterator) *HardLinkFilter {
	return &HardLinkFilter{inner: inner, seen: make(map[[2]uint64]string)}
}

func (f *HardLinkFilter) Next() (*Entry, error) {
	e, err := f.inner.Next()
	if err != nil {
		return nil, err
	}
	f.cur = e

	if e.Type == TypeDir || (e.dev == 0 && e.ino == 0) {
		return e, nil
	}
	key := [2]uint64{e.dev, e.ino}
	full := joinPath(f.path, e.Name)
	if first, ok := f.seen[key]; ok {
		dup := *e
		dup.HardLink = true
		dup.LinkRef = first
		dup.Type = TypeSymlink
		f.cur = &dup
		return &dup, nil
	}
	f.seen[key] = full
	return e, nil
}

func (f *HardLinkFilter) ReadLink() (string, error) {
	if f.cur != nil && f.cur.HardLink {
		return f.cur.LinkRef, nil
	}
	return f.inner.ReadLink()
}

func (f *HardLinkFilter) OpenSubdir() (Iterator, error) {
	sub, err := f.inner.OpenSubdir()
	if err != nil {
		return nil, err
	}
	child := NewHardLinkFilter(sub)
	child.seen = f.seen
	child.path = append(append([]string{}, f.path...), f.cur.Name)
	return child, nil
}

func (f *HardLinkFilter) IgnoreSubdir() { f.inner.IgnoreSubdir() }

func (f *HardLinkFilter) OpenFileRO() (io.ReadCloser, error) {
	if f.cur != nil && f.cur.HardLink {
		return nil, fmt.Errorf("diriter: OpenFileRO called on a hard-link entry")
	}
	return f.inner.OpenFileRO()
}

func (f *HardLinkFilter) ReadXattr() ([]Xattr, error) { return f.inner.ReadXattr() }

func joinPath(dirs []string, name string) string {
	s := ""
	for _, d := range dirs {
		s += d + "/"
	}
	return s + name
}
