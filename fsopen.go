package squashfs

import (
	"context"
	"io/fs"
	"os"
	"strings"
)

// Open opens path as a SquashFS image and parses its super block, closing
// the underlying file automatically on a later Close (spec.md §6's CLI
// convenience entrypoint; grounded on the teacher's own squashfs_test.go
// usage of a package-level Open returning an fs.FS-compatible value).
func Open(path string) (*Superblock, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	sb, err := New(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	sb.closer = f
	return sb, nil
}

// Close releases the file Open opened. It is a no-op if the Superblock was
// built directly with New against a caller-owned reader.
func (sb *Superblock) Close() error {
	if sb.closer == nil {
		return nil
	}
	return sb.closer.Close()
}

var _ fs.FS = (*Superblock)(nil)
var _ fs.StatFS = (*Superblock)(nil)

// Open implements fs.FS, resolving name against the image's root directory.
func (sb *Superblock) Open(name string) (fs.File, error) {
	ino := sb.rootIno
	rel := strings.Trim(name, "/")
	if rel != "" && rel != "." {
		var err error
		ino, err = ino.LookupRelativeInodePath(context.Background(), rel)
		if err != nil {
			return nil, &fs.PathError{Op: "open", Path: name, Err: err}
		}
	}
	return ino.OpenFile(name), nil
}

// Stat implements fs.StatFS.
func (sb *Superblock) Stat(name string) (fs.FileInfo, error) {
	f, err := sb.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.Stat()
}
