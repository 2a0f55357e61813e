// Package meta implements the SquashFS 8 KiB compressed meta-block stream
// (spec.md §4.C): a writer that buffers and flushes 2-byte-prefixed
// compressed-or-raw blocks, and a reader with a seekable
// "(block offset, byte offset)" cursor model.
//
// Grounded on the teacher's tablereader.go (KarpelesLab/squashfs): the
// 2-byte length-prefix format with the 0x8000 "stored raw" flag, and the
// buffer-then-drain Read loop. The teacher also carried a byte-identical
// second copy in inodereader.go (apparently a mid-refactor leftover); this
// package is the single generalized replacement for both, addressed by
// block-relative offsets instead of being hardwired to the inode table.
package meta

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-sqfs/sqfs/compressor"
)

// MaxBlockSize is the largest number of uncompressed payload bytes a single
// meta-block may carry (spec.md §6).
const MaxBlockSize = 8192

// Address encodes a meta-block reference as
// (block_start << 16) | byte_offset_in_uncompressed_block, per spec.md §3.
type Address uint64

func MakeAddress(blockStart uint32, byteOffset uint16) Address {
	return Address(uint64(blockStart)<<16 | uint64(byteOffset))
}

func (a Address) BlockStart() uint32 { return uint32(a >> 16) }
func (a Address) ByteOffset() uint16 { return uint16(a & 0xffff) }

// EncodeBlock compresses data (must be <= MaxBlockSize) and returns the
// on-disk 2-byte-prefixed block: the compressed form if it is strictly
// smaller, otherwise the raw form with the 0x8000 flag set. The encoded
// length never exceeds len(data)+2, satisfying spec.md §8's round-trip
// property.
func EncodeBlock(data []byte, comp compressor.Compressor) ([]byte, error) {
	if len(data) > MaxBlockSize {
		return nil, fmt.Errorf("meta: block of %d bytes exceeds %d byte limit", len(data), MaxBlockSize)
	}

	var compressed []byte
	var ok bool
	if comp != nil {
		var err error
		compressed, ok, err = comp.CompressBlock(data)
		if err != nil {
			return nil, err
		}
	}

	out := make([]byte, 2, 2+len(data))
	if ok && len(compressed) < len(data) {
		binary.LittleEndian.PutUint16(out, uint16(len(compressed)))
		out = append(out, compressed...)
	} else {
		binary.LittleEndian.PutUint16(out, uint16(len(data))|0x8000)
		out = append(out, data...)
	}
	return out, nil
}

// DecodeBlock reads one meta-block starting at offset at of r and returns its uncompressed payload plus the number of on-disk bytes
// consumed.
func DecodeBlock(r io.ReaderAt, at int64, comp compressor.Compressor) (data []byte, wireLen int64, err error) {
	hdr := make([]byte, 2)
	if _, err := r.ReadAt(hdr, at); err != nil {
		return nil, 0, err
	}
	lenN := binary.LittleEndian.Uint16(hdr)
	raw := lenN&0x8000 != 0
	lenN &= 0x7fff

	buf := make([]byte, int(lenN))
	if _, err := r.ReadAt(buf, at+2); err != nil {
		return nil, 0, err
	}

	if raw {
		return buf, int64(2 + len(buf)), nil
	}
	if comp == nil {
		return nil, 0, fmt.Errorf("meta: compressed block but no compressor configured")
	}
	out, err := comp.DecompressBlock(buf, MaxBlockSize)
	if err != nil {
		return nil, 0, fmt.Errorf("meta: decompress: %w", err)
	}
	return out, int64(2 + len(buf)), nil
}
