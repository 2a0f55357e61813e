package compressor

import "io"

// lzoCompressor registers the LZO id so callers see a recognizable
// ErrUnsupported rather than a "no such compressor" failure; no pure-Go
// LZO implementation exists anywhere in the retrieved example corpus (see
// SPEC_FULL.md), and LZO's patent history has kept it out of most Go
// ecosystems generally.
type lzoCompressor struct{}

func init() {
	Register(LZO, func() Compressor { return &lzoCompressor{} })
}

func (c *lzoCompressor) ID() ID { return LZO }

func (c *lzoCompressor) CompressBlock(in []byte) ([]byte, bool, error) {
	return nil, false, ErrUnsupported
}

func (c *lzoCompressor) DecompressBlock(in []byte, maxOut int) ([]byte, error) {
	return nil, ErrUnsupported
}

func (c *lzoCompressor) NewStreamReader(r io.Reader) (io.ReadCloser, error) {
	return nil, ErrUnsupported
}

func (c *lzoCompressor) NewStreamWriter(w io.Writer) (io.WriteCloser, error) {
	return nil, ErrUnsupported
}

func (c *lzoCompressor) Multimember() bool { return false }

func (c *lzoCompressor) Clone() Compressor { return &lzoCompressor{} }
