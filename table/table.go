// Package table implements the generic compressed-table codec of
// spec.md §4.D — a fixed-size-record array broken into 8 KiB uncompressed
// chunks, each independently meta-block-compressed, addressed by a
// trailing array of 64-bit chunk file offsets ("locations") — plus the
// concrete id, fragment, export, and three-level xattr tables built on it.
//
// Grounded on include/table.h and include/sqfs/frag_table.h
// (original_source) for the chunked/located-array shape; the teacher
// (KarpelesLab/squashfs) never implements this — its reader parses
// FragTableStart/XattrIdTableStart into the superblock but never reads
// through them — so this package is new relative to the teacher's code
// and built directly from the spec instead of being adapted from a
// teacher file.
package table

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-sqfs/sqfs/compressor"
	"github.com/go-sqfs/sqfs/meta"
)

// RecordCodec encodes/decodes one fixed-size record to/from bytes.
type RecordCodec[T any] struct {
	Size   int
	Encode func(T) []byte
	Decode func([]byte) T
}

// Write serializes records into chunked, compressed table data, writes the
// chunks to w, and returns locations, which holds each chunk's absolute
// file offset given that the first chunk lands at base.
func Write[T any](w io.Writer, base int64, records []T, codec RecordCodec[T], comp compressor.Compressor) (locations []uint64, err error) {
	perChunk := meta.MaxBlockSize / codec.Size
	if perChunk == 0 {
		return nil, fmt.Errorf("table: record size %d too large for meta block", codec.Size)
	}

	offset := base
	for i := 0; i < len(records); i += perChunk {
		end := i + perChunk
		if end > len(records) {
			end = len(records)
		}
		buf := make([]byte, 0, (end-i)*codec.Size)
		for _, r := range records[i:end] {
			buf = append(buf, codec.Encode(r)...)
		}
		block, err := meta.EncodeBlock(buf, comp)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(block); err != nil {
			return nil, err
		}
		locations = append(locations, uint64(offset))
		offset += int64(len(block))
	}
	return locations, nil
}

// Read decodes a table given its record count and the chunk location
// array, reading compressed chunks from r.
func Read[T any](r io.ReaderAt, locations []uint64, count int, codec RecordCodec[T], comp compressor.Compressor) ([]T, error) {
	perChunk := meta.MaxBlockSize / codec.Size
	out := make([]T, 0, count)

	for _, loc := range locations {
		data, _, err := meta.DecodeBlock(r, int64(loc), comp)
		if err != nil {
			return nil, fmt.Errorf("table: chunk at %d: %w", loc, err)
		}
		for off := 0; off+codec.Size <= len(data) && len(out) < count; off += codec.Size {
			out = append(out, codec.Decode(data[off:off+codec.Size]))
		}
	}
	if len(out) != count {
		return nil, fmt.Errorf("table: decoded %d records, want %d", len(out), count)
	}
	_ = perChunk
	return out, nil
}

// WriteLocations serializes a location array as the trailing indirect
// table SquashFS places after every chunked table (spec.md §4.D).
func WriteLocations(w io.Writer, locations []uint64) error {
	buf := make([]byte, 8)
	for _, loc := range locations {
		binary.LittleEndian.PutUint64(buf, loc)
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

// ReadLocations reads n 64-bit little-endian location entries starting at
// offset in r.
func ReadLocations(r io.ReaderAt, offset int64, n int) ([]uint64, error) {
	buf := make([]byte, 8*n)
	if _, err := r.ReadAt(buf, offset); err != nil {
		return nil, err
	}
	out := make([]uint64, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(buf[i*8:])
	}
	return out, nil
}
