package diriter

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// TreeOptions configures a TreeIterator (spec.md §4.F, "Tree iterator").
type TreeOptions struct {
	XDev        bool
	Glob        string // matched against either basename or full path
	GlobOnPath  bool   // match Glob against the full relative path instead of basename
	FixedTime   *time.Time
	FixedUid    *uint32
	FixedGid    *uint32
	PathPrefix  string
}

// TreeIterator walks a host filesystem directory, depth-first,
// lexicographically sorted within each directory.
type TreeIterator struct {
	root    string
	rel     string // path of this directory relative to root
	opts    TreeOptions
	rootDev uint64

	entries []os.DirEntry
	pos     int
	cur     *Entry
	curPath string
	ignored bool
}

// NewTreeIterator opens an iterator rooted at dir.
func NewTreeIterator(dir string, opts TreeOptions) (*TreeIterator, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var rootDev uint64
	if opts.XDev {
		if info, err := os.Stat(dir); err == nil {
			rootDev = deviceOf(info)
		}
	}
	return &TreeIterator{root: dir, opts: opts, rootDev: rootDev, entries: entries}, nil
}

func (it *TreeIterator) Next() (*Entry, error) {
	for it.pos < len(it.entries) {
		de := it.entries[it.pos]
		it.pos++

		p := filepath.Join(it.root, de.Name())
		info, err := de.Info()
		if err != nil {
			return nil, err
		}

		if it.opts.Glob != "" {
			target := de.Name()
			if it.opts.GlobOnPath {
				target = filepath.ToSlash(filepath.Join(it.rel, de.Name()))
			}
			if ok, _ := filepath.Match(it.opts.Glob, target); !ok {
				continue
			}
		}

		e := &Entry{Name: de.Name(), Mode: info.Mode().Perm(), ModTime: info.ModTime(), Size: info.Size()}
		e.Uid, e.Gid = ownerOf(info)
		if it.opts.FixedTime != nil {
			e.ModTime = *it.opts.FixedTime
		}
		if it.opts.FixedUid != nil {
			e.Uid = *it.opts.FixedUid
		}
		if it.opts.FixedGid != nil {
			e.Gid = *it.opts.FixedGid
		}
		e.dev, e.ino = identityOf(info)

		switch {
		case info.IsDir():
			e.Type = TypeDir
			if it.opts.XDev && e.dev != it.rootDev {
				continue
			}
		case info.Mode()&fs.ModeSymlink != 0:
			e.Type = TypeSymlink
		case info.Mode()&fs.ModeNamedPipe != 0:
			e.Type = TypeFifo
		case info.Mode()&fs.ModeSocket != 0:
			e.Type = TypeSocket
		case info.Mode()&fs.ModeCharDevice != 0:
			e.Type = TypeCharDev
			e.Rdev = rdevOf(info)
		case info.Mode()&fs.ModeDevice != 0:
			e.Type = TypeBlockDev
			e.Rdev = rdevOf(info)
		default:
			e.Type = TypeFile
		}

		it.cur = e
		it.curPath = p
		it.ignored = false
		return e, nil
	}
	return nil, io.EOF
}

func (it *TreeIterator) ReadLink() (string, error) {
	if it.cur == nil || it.cur.Type != TypeSymlink {
		return "", fmt.Errorf("diriter: ReadLink called without a symlink entry")
	}
	return os.Readlink(it.curPath)
}

func (it *TreeIterator) OpenSubdir() (Iterator, error) {
	if it.cur == nil || it.cur.Type != TypeDir {
		return nil, fmt.Errorf("diriter: OpenSubdir called without a directory entry")
	}
	sub := it.opts
	child, err := NewTreeIterator(it.curPath, sub)
	if err != nil {
		return nil, err
	}
	child.rel = filepath.Join(it.rel, it.cur.Name)
	child.rootDev = it.rootDev
	return child, nil
}

func (it *TreeIterator) IgnoreSubdir() { it.ignored = true }

func (it *TreeIterator) OpenFileRO() (io.ReadCloser, error) {
	if it.cur == nil || it.cur.Type != TypeFile {
		return nil, fmt.Errorf("diriter: OpenFileRO called without a regular-file entry")
	}
	return os.Open(it.curPath)
}

func (it *TreeIterator) ReadXattr() ([]Xattr, error) {
	return readHostXattrs(it.curPath)
}
