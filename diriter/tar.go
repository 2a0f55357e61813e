package diriter

import (
	"fmt"
	"io"
	"io/fs"

	star "github.com/go-sqfs/sqfs/tar"
)

// TarIterator reads a tar archive sequentially and emits exactly one flat
// entry per header. It locks itself after each Next until the caller
// fully consumes (or never opened) the prior entry's data stream, which
// is this format's only way to detect "caller skipped a file's bytes"
// (spec.md §4.F, "Tar iterator").
type TarIterator struct {
	tr     *star.Reader
	cur    *star.Header
	opened *tarFileStream
	locked bool
}

func NewTarIterator(r io.Reader) *TarIterator {
	return &TarIterator{tr: star.NewReader(r)}
}

func (it *TarIterator) Next() (*Entry, error) {
	if it.locked {
		return nil, fmt.Errorf("diriter: tar iterator locked: previous file stream not consumed")
	}
	h, err := it.tr.Next()
	if err != nil {
		return nil, err
	}
	it.cur = h

	e := &Entry{
		Name:     baseName(h.Name),
		FullPath: h.Name,
		Mode:     fs.FileMode(h.Mode) & fs.ModePerm,
		Uid:      uint32(h.Uid),
		Gid:      uint32(h.Gid),
		ModTime:  h.ModTime,
		Size:     h.Size,
		Rdev:     uint32(h.Devmajor)<<8 | uint32(h.Devminor),
	}

	switch h.Typeflag {
	case star.TypeDir:
		e.Type = TypeDir
	case star.TypeSymlink:
		e.Type = TypeSymlink
	case star.TypeChar:
		e.Type = TypeCharDev
	case star.TypeBlock:
		e.Type = TypeBlockDev
	case star.TypeFifo:
		e.Type = TypeFifo
	case star.TypeLink:
		// hard links are emitted with symlink mode bits plus HardLink set,
		// per spec.md §4.F; LinkRef is the archive path of the earlier
		// occurrence and is resolved against names already seen by the
		// caller (fstree's from_tar), not against dev/inode identity.
		e.Type = TypeSymlink
		e.HardLink = true
		e.LinkRef = h.Linkname
	default:
		e.Type = TypeFile
		it.locked = true
	}
	return e, nil
}

func (it *TarIterator) ReadLink() (string, error) {
	if it.cur == nil {
		return "", fmt.Errorf("diriter: ReadLink called without an entry")
	}
	return it.cur.Linkname, nil
}

func (it *TarIterator) OpenSubdir() (Iterator, error) {
	return nil, fmt.Errorf("diriter: tar iterator is flat, OpenSubdir is not supported")
}

func (it *TarIterator) IgnoreSubdir() {}

func (it *TarIterator) OpenFileRO() (io.ReadCloser, error) {
	if it.cur == nil || it.cur.Typeflag != star.TypeReg {
		return nil, fmt.Errorf("diriter: OpenFileRO called without a regular-file entry")
	}
	s := &tarFileStream{it: it, remaining: it.cur.Size}
	it.opened = s
	return s, nil
}

func (it *TarIterator) ReadXattr() ([]Xattr, error) { return nil, nil }

// tarFileStream bounds reads to the current entry's declared size and
// unlocks the iterator on Close or EOF, matching spec.md §4.F's "unlocks
// on close/EOF".
type tarFileStream struct {
	it        *TarIterator
	remaining int64
}

func (s *tarFileStream) Read(p []byte) (int, error) {
	if int64(len(p)) > s.remaining {
		p = p[:s.remaining]
	}
	if s.remaining == 0 {
		s.it.locked = false
		return 0, io.EOF
	}
	n, err := s.it.tr.Read(p)
	s.remaining -= int64(n)
	if s.remaining == 0 {
		s.it.locked = false
	}
	return n, err
}

func (s *tarFileStream) Close() error {
	s.it.locked = false
	return nil
}

func baseName(name string) string {
	i := len(name) - 1
	for i >= 0 && name[i] == '/' {
		i--
	}
	end := i + 1
	for i >= 0 && name[i] != '/' {
		i--
	}
	return name[i+1 : end]
}
