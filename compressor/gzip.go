package compressor

import (
	"compress/gzip"
	"io"
)

// gzipCompressor uses the standard library, exactly as the teacher's
// comp.go/GZip path does (no build tag — gzip is always linked).
type gzipCompressor struct{ level int }

func init() {
	Register(GZip, func() Compressor { return &gzipCompressor{level: gzip.DefaultCompression} })
}

func (g *gzipCompressor) ID() ID { return GZip }

func (g *gzipCompressor) CompressBlock(in []byte) ([]byte, bool, error) {
	out, err := blockFromStream(in, func(w io.Writer) (io.WriteCloser, error) {
		return gzip.NewWriterLevel(w, g.level)
	})
	if err != nil {
		return nil, false, err
	}
	if len(out) >= len(in) {
		return in, false, nil
	}
	return out, true, nil
}

func (g *gzipCompressor) DecompressBlock(in []byte, maxOut int) ([]byte, error) {
	return decompressFromStream(in, maxOut, func(r io.Reader) (io.ReadCloser, error) {
		return gzip.NewReader(r)
	})
}

func (g *gzipCompressor) NewStreamReader(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

func (g *gzipCompressor) NewStreamWriter(w io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriterLevel(w, g.level)
}

// Multimember is false for gzip: spec.md §4.A singles gzip out as the one
// format the toolkit treats as single-member per its usage pattern.
func (g *gzipCompressor) Multimember() bool { return false }

func (g *gzipCompressor) Clone() Compressor { return &gzipCompressor{level: g.level} }
