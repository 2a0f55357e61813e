// Package iostream defines the sequential byte-stream interfaces used
// throughout the toolkit (§4.A of the specification): an input stream with
// a peek-then-advance read model and an output stream with sparse-write
// support, plus the small helpers (read_exact, read_line, skip, splice)
// built on top of them.
//
// Grounded on include/io/istream.h and include/io/ostream.h
// (original_source). The teacher (KarpelesLab/squashfs) has no equivalent
// abstraction — it reads directly from an io.ReaderAt — so this package
// follows the C header shape rather than adapting teacher code, and is
// consumed by the tar codec and the fstree tar/dir builders exactly the
// way sqfs2tar/tar2sqfs consume fstream.h in the original.
package iostream

import (
	"errors"
	"io"
)

// ErrSequence is returned when a caller misuses the streaming API, e.g.
// advancing past the bytes currently buffered, mirroring spec.md §7's
// "sequence" error category.
var ErrSequence = errors.New("iostream: sequence error")

// InStream is a sequential, read-once byte source. Implementations buffer
// internally; GetBufferedData never blocks for more than "want" bytes but
// may return fewer at EOF.
type InStream interface {
	// Filename returns a human-readable name for diagnostics.
	Filename() string

	// GetBufferedData returns up to "want" bytes without consuming them.
	// A returned slice shorter than want signals EOF was reached while
	// filling the buffer.
	GetBufferedData(want int) ([]byte, error)

	// Advance consumes n bytes previously returned by GetBufferedData.
	Advance(n int) error
}

// OutStream is a sequential, append-only byte sink.
type OutStream interface {
	Filename() string

	// Append writes buf to the stream.
	Append(buf []byte) error

	// AppendSparse logically writes n zero bytes; implementations may
	// special-case this into a hole instead of materializing zeroes.
	AppendSparse(n int64) error

	Flush() error
}

// ReadExact fills buf completely from in, returning io.ErrUnexpectedEOF if
// the stream ends early.
func ReadExact(in InStream, buf []byte) error {
	for len(buf) > 0 {
		chunk, err := in.GetBufferedData(len(buf))
		if err != nil {
			return err
		}
		if len(chunk) == 0 {
			return io.ErrUnexpectedEOF
		}
		n := copy(buf, chunk)
		if err := in.Advance(n); err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}

// LineFlags controls ReadLine's post-processing.
type LineFlags int

const (
	// LineTrim strips a trailing \r and/or \n.
	LineTrim LineFlags = 1 << iota
	// LineSkipEmpty causes ReadLine to silently skip blank lines.
	LineSkipEmpty
)

// ReadLine reads one newline-terminated line from in, applying flags. It
// returns io.EOF only once no further bytes are available at all.
func ReadLine(in InStream, flags LineFlags) (string, error) {
	for {
		var line []byte
		for {
			chunk, err := in.GetBufferedData(4096)
			if len(chunk) == 0 {
				if err != nil && err != io.EOF {
					return "", err
				}
				if len(line) == 0 {
					return "", io.EOF
				}
				goto got
			}
			if idx := indexByte(chunk, '\n'); idx >= 0 {
				line = append(line, chunk[:idx+1]...)
				if aerr := in.Advance(idx + 1); aerr != nil {
					return "", aerr
				}
				goto got
			}
			line = append(line, chunk...)
			if aerr := in.Advance(len(chunk)); aerr != nil {
				return "", aerr
			}
		}
	got:
		if flags&LineTrim != 0 {
			for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
				line = line[:len(line)-1]
			}
		}
		if flags&LineSkipEmpty != 0 && len(line) == 0 {
			continue
		}
		return string(line), nil
	}
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// Skip discards n bytes from in.
func Skip(in InStream, n int64) error {
	for n > 0 {
		want := int64(65536)
		if n < want {
			want = n
		}
		chunk, err := in.GetBufferedData(int(want))
		if len(chunk) == 0 {
			if err != nil {
				return err
			}
			return io.ErrUnexpectedEOF
		}
		if err := in.Advance(len(chunk)); err != nil {
			return err
		}
		n -= int64(len(chunk))
	}
	return nil
}

// Splice copies n bytes (or, if n < 0, until EOF) from in to out.
func Splice(in InStream, out OutStream, n int64) (int64, error) {
	var total int64
	for n != 0 {
		want := 65536
		if n > 0 && int64(want) > n {
			want = int(n)
		}
		chunk, err := in.GetBufferedData(want)
		if len(chunk) == 0 {
			if err == io.EOF || err == nil {
				return total, nil
			}
			return total, err
		}
		if err := out.Append(chunk); err != nil {
			return total, err
		}
		if err := in.Advance(len(chunk)); err != nil {
			return total, err
		}
		total += int64(len(chunk))
		if n > 0 {
			n -= int64(len(chunk))
		}
	}
	return total, nil
}
