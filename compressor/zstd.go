//go:build zstd

package compressor

import (
	"io"

	"github.com/klauspost/compress/zstd"
)

// zstdCompressor is gated behind the "zstd" build tag, mirroring the
// teacher's comp_zstd.go exactly — that file only ever registered a
// decompressor; here CompressBlock is filled in too since the writer
// (§4.J) needs a working encoder for this id.
type zstdCompressor struct{}

func init() {
	Register(ZSTD, func() Compressor { return &zstdCompressor{} })
}

func (c *zstdCompressor) ID() ID { return ZSTD }

func (c *zstdCompressor) CompressBlock(in []byte) ([]byte, bool, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, false, err
	}
	defer enc.Close()
	out := enc.EncodeAll(in, nil)
	if len(out) >= len(in) {
		return in, false, nil
	}
	return out, true, nil
}

func (c *zstdCompressor) DecompressBlock(in []byte, maxOut int) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	out, err := dec.DecodeAll(in, make([]byte, 0, maxOut))
	if err != nil {
		return nil, err
	}
	if len(out) > maxOut {
		return nil, errDecompressTooLarge
	}
	return out, nil
}

func (c *zstdCompressor) NewStreamReader(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}

func (c *zstdCompressor) NewStreamWriter(w io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(w)
}

func (c *zstdCompressor) Multimember() bool { return true }

func (c *zstdCompressor) Clone() Compressor { return &zstdCompressor{} }
