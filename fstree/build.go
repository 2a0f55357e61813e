package fstree

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"

	"github.com/go-sqfs/sqfs/diriter"
)

// FromDir builds a tree from a host filesystem directory (spec.md §4.G,
// "from_dir"), walking it with a diriter.TreeIterator.
func FromDir(root string, opts diriter.TreeOptions) (*Fstree, error) {
	it, err := diriter.NewTreeIterator(root, opts)
	if err != nil {
		return nil, err
	}
	t := NewFstree()
	if err := addFromIterator(t, it, "/"); err != nil {
		return nil, err
	}
	return t, nil
}

// FromTar builds a tree from a tar archive stream (spec.md §4.G,
// "from_tar"). Regular-file content is spooled to a temporary file as it
// streams by, since the tar iterator is forward-only and the block
// processor may visit files in a different order later.
func FromTar(r io.Reader) (*Fstree, error) {
	it := diriter.NewTarIterator(r)
	t := NewFstree()
	if err := addFromIterator(t, it, "/"); err != nil {
		return nil, err
	}
	return t, nil
}

// addFromIterator walks it, adding every entry to t under destDir. it may
// be hierarchical (OpenSubdir works, entries carry only a basename) or
// flat (entries carry FullPath and OpenSubdir always fails); both shapes
// are handled uniformly.
func addFromIterator(t *Fstree, it diriter.Iterator, destDir string) error {
	for {
		e, err := it.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		p := path.Join(destDir, e.Name)
		if e.FullPath != "" {
			p = "/" + e.FullPath
		}

		meta := NodeMeta{
			Perm:    uint32(e.Mode.Perm()),
			Uid:     e.Uid,
			Gid:     e.Gid,
			ModTime: e.ModTime,
			Rdev:    e.Rdev,
		}

		var source DataSource
		switch {
		case e.HardLink:
			meta.IsHardLink = true
			meta.LinkTarget = path.Join("/", e.LinkRef)
		case e.Type == diriter.TypeDir:
			meta.IsDir = true
		case e.Type == diriter.TypeSymlink:
			target, err := it.ReadLink()
			if err != nil {
				return fmt.Errorf("fstree: %s: %w", p, err)
			}
			meta.IsSymlink = true
			meta.LinkTarget = target
		case e.Type == diriter.TypeBlockDev:
			meta.Mode = fs.ModeDevice
		case e.Type == diriter.TypeCharDev:
			meta.Mode = fs.ModeDevice | fs.ModeCharDevice
		case e.Type == diriter.TypeFifo:
			meta.Mode = fs.ModeNamedPipe
		case e.Type == diriter.TypeSocket:
			meta.Mode = fs.ModeSocket
		default:
			rc, err := it.OpenFileRO()
			if err != nil {
				return fmt.Errorf("fstree: %s: %w", p, err)
			}
			src, err := spoolToTemp(rc)
			rc.Close()
			if err != nil {
				return fmt.Errorf("fstree: %s: %w", p, err)
			}
			source = src
		}

		node, err := t.AddGeneric(p, meta, source)
		if err != nil {
			return err
		}

		if xattrs, err := it.ReadXattr(); err == nil && len(xattrs) > 0 {
			node.Xattrs = make(map[string]string, len(xattrs))
			for _, x := range xattrs {
				node.Xattrs[x.Prefix+"."+x.Key] = string(x.Value)
			}
		}

		// Flat sources (FullPath set) emit every entry through this same
		// loop already; only hierarchical sources need an explicit
		// descent into the directory just added.
		if e.Type == diriter.TypeDir && !e.HardLink && e.FullPath == "" {
			sub, err := it.OpenSubdir()
			if err != nil {
				return fmt.Errorf("fstree: %s: %w", p, err)
			}
			if err := addFromIterator(t, sub, p); err != nil {
				return err
			}
		}
	}
}

// spoolToTemp copies r into a temporary file, returning a DataSource that
// reopens it by path, mirroring hostFileSource's lazy-open shape for
// sources that cannot themselves be reopened (spec.md §4.F's tar stream).
func spoolToTemp(r io.Reader) (DataSource, error) {
	f, err := os.CreateTemp("", "sqfs-tar-*")
	if err != nil {
		return nil, err
	}
	n, err := io.Copy(f, r)
	cerr := f.Close()
	if err != nil {
		os.Remove(f.Name())
		return nil, err
	}
	if cerr != nil {
		os.Remove(f.Name())
		return nil, cerr
	}
	return &hostFileSource{path: f.Name(), size: n}, nil
}
