// Package compressor implements the uniform block-compress/block-decompress
// and streaming encode/decode surface of spec.md §4.B for each SquashFS
// compressor id, plus a deep-copy hook workers use to get a private
// instance (§5 "workers hold a per-worker deep-copied compressor").
//
// Grounded on the teacher's comp.go/comp_xz.go/comp_zstd.go (registration
// pattern and build tags) generalized to every format §2 component B lists,
// using the libraries named in SPEC_FULL.md's ambient-stack table.
package compressor

import (
	"bytes"
	"fmt"
	"io"
)

// ID identifies a SquashFS compressor, matching the on-disk compression_id
// field of the superblock.
type ID uint16

const (
	GZip ID = 1
	LZMA ID = 2
	LZO  ID = 3
	XZ   ID = 4
	LZ4  ID = 5
	ZSTD ID = 6
)

func (id ID) String() string {
	switch id {
	case GZip:
		return "gzip"
	case LZMA:
		return "lzma"
	case LZO:
		return "lzo"
	case XZ:
		return "xz"
	case LZ4:
		return "lz4"
	case ZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("compressor(%d)", id)
	}
}

// ErrUnsupported is returned by compressors for known-but-unimplemented
// constructs, per spec.md §7's "unsupported" error category.
var ErrUnsupported = fmt.Errorf("compressor: unsupported")

var errDecompressTooLarge = fmt.Errorf("compressor: decompressed output exceeds limit")

// Compressor is a block-oriented, streaming-capable codec for one format.
// Implementations must be safe to use from a single goroutine; Clone
// returns an independent instance for another goroutine to own.
type Compressor interface {
	ID() ID

	// CompressBlock compresses in. If compression would not shrink the
	// input, ok is false and the caller should store the data raw
	// (spec.md §4.B: "never enlarges output").
	CompressBlock(in []byte) (out []byte, ok bool, err error)

	// DecompressBlock decompresses in into a buffer of at most maxOut
	// bytes.
	DecompressBlock(in []byte, maxOut int) ([]byte, error)

	// NewStreamReader/NewStreamWriter back iostream.Codec for framed
	// multi-member streams (tar-over-gzip/xz/zstd/bzip2).
	NewStreamReader(r io.Reader) (io.ReadCloser, error)
	NewStreamWriter(w io.Writer) (io.WriteCloser, error)
	Multimember() bool

	// Clone returns a deep, independent copy for exclusive use by another
	// worker goroutine.
	Clone() Compressor
}

var registry = map[ID]func() Compressor{}

// Register installs a constructor for id. Build-tag-gated files (xz/zstd)
// call this from their own init(), exactly as the teacher's
// RegisterCompHandler does.
func Register(id ID, ctor func() Compressor) {
	registry[id] = ctor
}

// New returns a fresh Compressor for id, or ErrUnsupported if no backend
// was registered (XZ, LZMA or ZSTD in a build without the xz/zstd tags).
// LZO is registered, but its methods return ErrUnsupported.
func New(id ID) (Compressor, error) {
	ctor, ok := registry[id]
	if !ok {
		return nil, fmt.Errorf("%w: compressor id %s", ErrUnsupported, id)
	}
	return ctor(), nil
}

// blockFromStream is a small helper used by the gzip, lz4, xz and lzma
// CompressBlock implementations: it drives a streaming writer over an
// in-memory buffer so those backends don't need bespoke block code paths.
func blockFromStream(in []byte, newWriter func(w io.Writer) (io.WriteCloser, error)) ([]byte, error) {
	var buf bytes.Buffer
	w, err := newWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(in); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressFromStream(in []byte, maxOut int, newReader func(r io.Reader) (io.ReadCloser, error)) ([]byte, error) {
	r, err := newReader(bytes.NewReader(in))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]byte, 0, maxOut)
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
			if len(out) > maxOut {
				return nil, fmt.Errorf("compressor: decompressed output exceeds %d bytes", maxOut)
			}
		}
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
