package iostream

import (
	"bufio"
	"io"
)

// Codec is the minimal streaming compressor/decompressor surface the
// transform streams need. compressor.Compressor does not implement it
// directly: its stream methods are named NewStreamReader/NewStreamWriter.
type Codec interface {
	NewReader(r io.Reader) (io.ReadCloser, error)
	NewWriter(w io.Writer) (io.WriteCloser, error)
	// Multimember reports whether consecutive compressed members should be
	// concatenated transparently on decode (true for every format except
	// gzip, per spec.md §4.A).
	Multimember() bool
}

// DecompressReader wraps an InStream with transparent decompression. If
// the codec is multimember, consecutive compressed members are
// concatenated into one logical stream.
func DecompressReader(in InStream, codec Codec) (InStream, error) {
	pr, pw := io.Pipe()
	go func() {
		defer pw.Close()
		src := &inStreamReader{in: in}
		for {
			rc, err := codec.NewReader(src)
			if err != nil {
				if err == io.EOF {
					return
				}
				pw.CloseWithError(err)
				return
			}
			if _, err := io.Copy(pw, rc); err != nil {
				rc.Close()
				pw.CloseWithError(err)
				return
			}
			rc.Close()
			if !codec.Multimember() {
				return
			}
			if src.exhausted() {
				return
			}
		}
	}()
	return FromReader(pr, in.Filename()), nil
}

// CompressWriter wraps an OutStream with transparent compression; the
// returned stream's Flush closes the underlying compressor member.
func CompressWriter(out OutStream, codec Codec) (OutStream, error) {
	w := &outStreamWriter{out: out}
	cw, err := codec.NewWriter(w)
	if err != nil {
		return nil, err
	}
	return &compressStream{out: out, cw: cw, bw: bufio.NewWriter(w)}, nil
}

type compressStream struct {
	out OutStream
	cw  io.WriteCloser
	bw  *bufio.Writer
}

func (c *compressStream) Filename() string { return c.out.Filename() }

func (c *compressStream) Append(buf []byte) error {
	_, err := c.cw.Write(buf)
	return err
}

func (c *compressStream) AppendSparse(n int64) error {
	const chunk = 65536
	zero := make([]byte, chunk)
	for n > 0 {
		c2 := int64(chunk)
		if n < c2 {
			c2 = n
		}
		if _, err := c.cw.Write(zero[:c2]); err != nil {
			return err
		}
		n -= c2
	}
	return nil
}

func (c *compressStream) Flush() error {
	if err := c.cw.Close(); err != nil {
		return err
	}
	return c.out.Flush()
}

type inStreamReader struct {
	in    InStream
	ended bool
}

func (r *inStreamReader) Read(p []byte) (int, error) {
	chunk, err := r.in.GetBufferedData(len(p))
	if len(chunk) == 0 {
		r.ended = true
		if err == nil {
			err = io.EOF
		}
		return 0, err
	}
	n := copy(p, chunk)
	if aerr := r.in.Advance(n); aerr != nil {
		return n, aerr
	}
	if len(chunk) < len(p) {
		r.ended = true
	}
	return n, nil
}

func (r *inStreamReader) exhausted() bool { return r.ended }

type outStreamWriter struct{ out OutStream }

func (w *outStreamWriter) Write(p []byte) (int, error) {
	if err := w.out.Append(p); err != nil {
		return 0, err
	}
	return len(p), nil
}
