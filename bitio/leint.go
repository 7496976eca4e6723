// Package bitio provides the primitive byte- and bit-level decoding helpers
// shared by every binary-format parser in this module: fixed-width
// little/big-endian integer decoding from byte-slice prefixes, and two
// flavors of bit reader (byte-granular and 16-bit-little-endian-granular)
// for the Huffman-coded compression formats.
package bitio

import "encoding/binary"

// The LE*/BE* functions decode a fixed-width integer from the prefix of b.
// Like the teacher's direct binary.LittleEndian.UintN calls, a slice shorter
// than the type's width is a programmer error: parsers must pre-check
// length (spec.md requires this; there is no recoverable error case here).

func LE16(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }
func LE32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }
func LE64(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }

func BE16(b []byte) uint16 { return binary.BigEndian.Uint16(b) }
func BE32(b []byte) uint32 { return binary.BigEndian.Uint32(b) }
func BE64(b []byte) uint64 { return binary.BigEndian.Uint64(b) }

func LEI16(b []byte) int16 { return int16(LE16(b)) }
func LEI32(b []byte) int32 { return int32(LE32(b)) }
func LEI64(b []byte) int64 { return int64(LE64(b)) }

func BEI16(b []byte) int16 { return int16(BE16(b)) }
func BEI32(b []byte) int32 { return int32(BE32(b)) }
func BEI64(b []byte) int64 { return int64(BE64(b)) }

// LE24 decodes a 3-byte little-endian unsigned integer, used by
// BitReader.ReadU24LE.
func LE24(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}

// BE24 decodes a 3-byte big-endian unsigned integer.
func BE24(b []byte) uint32 {
	return uint32(b[2]) | uint32(b[1])<<8 | uint32(b[0])<<16
}
