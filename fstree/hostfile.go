package fstree

import "os"

// hostFileSource is a DataSource backed by a path on the local
// filesystem, opened lazily so construction-time description parsing
// doesn't need every referenced file held open simultaneously.
type hostFileSource struct {
	path string
	size int64
}

func openHostFile(p string) (DataSource, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	return &hostFileSource{path: p, size: info.Size()}, nil
}

func (s *hostFileSource) Size() int64 { return s.size }

func (s *hostFileSource) Open() (ReadCloser, error) {
	return os.Open(s.path)
}
