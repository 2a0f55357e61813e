package compressor

import (
	"compress/bzip2"
	"fmt"
	"io"
)

// bzip2Compressor is decompress-only: compress/bzip2 in the standard
// library has never shipped a writer, and no pure-Go bzip2 encoder appears
// anywhere in the retrieved example corpus either (see SPEC_FULL.md).
// CompressBlock therefore always reports "incompressible", which is a
// legal response under spec.md §4.B (compress_block may signal that
// compression would not help).
type bzip2Compressor struct{}

func init() {
	Register(compIDBZip2, func() Compressor { return &bzip2Compressor{} })
}

// compIDBZip2 is not part of the official SquashFS compressor id space (the
// format never shipped bzip2 support on-disk); it exists here only so the
// tar codec (which does need to read/write bzip2-compressed tar archives
// per spec.md §1's auxiliary-file scope) can share the Compressor
// interface instead of a bespoke bzip2 shim.
const compIDBZip2 ID = 0x7a32

func (c *bzip2Compressor) ID() ID { return compIDBZip2 }

func (c *bzip2Compressor) CompressBlock(in []byte) ([]byte, bool, error) {
	return in, false, nil
}

func (c *bzip2Compressor) DecompressBlock(in []byte, maxOut int) ([]byte, error) {
	return decompressFromStream(in, maxOut, func(r io.Reader) (io.ReadCloser, error) {
		return io.NopCloser(bzip2.NewReader(r)), nil
	})
}

func (c *bzip2Compressor) NewStreamReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(bzip2.NewReader(r)), nil
}

func (c *bzip2Compressor) NewStreamWriter(w io.Writer) (io.WriteCloser, error) {
	return nil, fmt.Errorf("%w: bzip2 encoding", ErrUnsupported)
}

func (c *bzip2Compressor) Multimember() bool { return true }

func (c *bzip2Compressor) Clone() Compressor { return &bzip2Compressor{} }
