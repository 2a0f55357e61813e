package compressor

import (
	"io"

	"github.com/pierrec/lz4/v4"
)

// lz4Compressor uses github.com/pierrec/lz4/v4, adopted from the
// diskfs-go-diskfs and keeword-go-diskfs pack members (both depend on the
// v1 "github.com/pierrec/lz4" module; this toolkit uses the v4 rewrite of
// the same library for its io.Reader/io.Writer-native API). No build tag:
// unlike xz/zstd this is a small pure-Go dependency with no meaningful link
// cost, so it is always available — matching the teacher's enum listing
// LZ4 as a first-class id.
type lz4Compressor struct{}

func init() {
	Register(LZ4, func() Compressor { return &lz4Compressor{} })
}

func (c *lz4Compressor) ID() ID { return LZ4 }

func (c *lz4Compressor) CompressBlock(in []byte) ([]byte, bool, error) {
	out, err := blockFromStream(in, func(w io.Writer) (io.WriteCloser, error) {
		return lz4.NewWriter(w), nil
	})
	if err != nil {
		return nil, false, err
	}
	if len(out) >= len(in) {
		return in, false, nil
	}
	return out, true, nil
}

func (c *lz4Compressor) DecompressBlock(in []byte, maxOut int) ([]byte, error) {
	return decompressFromStream(in, maxOut, func(r io.Reader) (io.ReadCloser, error) {
		return io.NopCloser(lz4.NewReader(r)), nil
	})
}

func (c *lz4Compressor) NewStreamReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}

func (c *lz4Compressor) NewStreamWriter(w io.Writer) (io.WriteCloser, error) {
	return lz4.NewWriter(w), nil
}

func (c *lz4Compressor) Multimember() bool { return true }

func (c *lz4Compressor) Clone() Compressor { return &lz4Compressor{} }
