//go:build xz

package compressor

import (
	"io"

	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

// xzCompressor and lzmaCompressor are gated behind the "xz" build tag,
// exactly as the teacher's comp_xz.go is — the plain `go build` of this
// module does not require cgo or a heavier always-on dependency for a
// format most callers don't need.
type xzCompressor struct{}

func init() {
	Register(XZ, func() Compressor { return &xzCompressor{} })
	Register(LZMA, func() Compressor { return &lzmaCompressor{} })
}

func (c *xzCompressor) ID() ID { return XZ }

func (c *xzCompressor) CompressBlock(in []byte) ([]byte, bool, error) {
	out, err := blockFromStream(in, func(w io.Writer) (io.WriteCloser, error) { return xz.NewWriter(w) })
	if err != nil {
		return nil, false, err
	}
	if len(out) >= len(in) {
		return in, false, nil
	}
	return out, true, nil
}

func (c *xzCompressor) DecompressBlock(in []byte, maxOut int) ([]byte, error) {
	return decompressFromStream(in, maxOut, func(r io.Reader) (io.ReadCloser, error) {
		rc, err := xz.NewReader(r)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(rc), nil
	})
}

func (c *xzCompressor) NewStreamReader(r io.Reader) (io.ReadCloser, error) {
	rc, err := xz.NewReader(r)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(rc), nil
}

func (c *xzCompressor) NewStreamWriter(w io.Writer) (io.WriteCloser, error) {
	return xz.NewWriter(w)
}

func (c *xzCompressor) Multimember() bool { return true }

func (c *xzCompressor) Clone() Compressor { return &xzCompressor{} }

type lzmaCompressor struct{}

func (c *lzmaCompressor) ID() ID { return LZMA }

func (c *lzmaCompressor) CompressBlock(in []byte) ([]byte, bool, error) {
	out, err := blockFromStream(in, func(w io.Writer) (io.WriteCloser, error) { return lzma.NewWriter(w) })
	if err != nil {
		return nil, false, err
	}
	if len(out) >= len(in) {
		return in, false, nil
	}
	return out, true, nil
}

func (c *lzmaCompressor) DecompressBlock(in []byte, maxOut int) ([]byte, error) {
	return decompressFromStream(in, maxOut, func(r io.Reader) (io.ReadCloser, error) {
		rc, err := lzma.NewReader(r)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(rc), nil
	})
}

func (c *lzmaCompressor) NewStreamReader(r io.Reader) (io.ReadCloser, error) {
	rc, err := lzma.NewReader(r)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(rc), nil
}

func (c *lzmaCompressor) NewStreamWriter(w io.Writer) (io.WriteCloser, error) {
	return lzma.NewWriter(w)
}

func (c *lzmaCompressor) Multimember() bool { return true }

func (c *lzmaCompressor) Clone() Compressor { return &lzmaCompressor{} }
