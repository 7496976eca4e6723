// Package kwaj implements Microsoft's pre-CAB single-file compressors:
// SZDD, its SZ variant, and KWAJ (which wraps one of five storage methods,
// including SZ-style, raw, and MSZIP).
package kwaj

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/laenix/binms/ring"
)

// Magic byte sequences, each read before dispatching to the matching
// decompressor.
var (
	SZDDMagic = []byte{0x53, 0x5A, 0x44, 0x44, 0x88, 0xF0, 0x27, 0x33}
	SZMagic   = []byte{0x53, 0x5A, 0x20, 0x88, 0xF0, 0x27, 0x33, 0xD1}
	KWAJMagic = []byte{0x4B, 0x57, 0x41, 0x4A, 0x88, 0xF0, 0x27, 0xD1}
)

const windowSize = 4096

var ErrUnknownCompressionMethod = errors.New("kwaj: unknown compression method")

// DecompressSZDD decompresses an SZDD payload, assuming the 8-byte magic
// has already been consumed. The 6-byte header is 'A', a reserved byte,
// and a little-endian 32-bit decompressed size.
func DecompressSZDD(r io.Reader, w io.Writer) error {
	var header [6]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return err
	}
	if header[0] != 'A' {
		return ErrUnknownCompressionMethod
	}
	decompressedSize := binary.LittleEndian.Uint32(header[2:6])
	return decompressGeneric(r, w, decompressedSize, 16)
}

// DecompressSZ decompresses an SZ payload, assuming the 8-byte magic has
// already been consumed. The 4-byte header is a little-endian 32-bit
// decompressed size.
func DecompressSZ(r io.Reader, w io.Writer) error {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return err
	}
	decompressedSize := binary.LittleEndian.Uint32(header[:])
	return decompressGeneric(r, w, decompressedSize, 18)
}

// decompressGeneric implements the shared SZDD/SZ LZ77-like algorithm: a
// 4096-byte window initialized to 0x20, starting at windowSize minus
// initialPositionFromEnd, driven by control bytes whose bits (LSB to MSB)
// select a literal byte or a two-byte match (position, length-3).
func decompressGeneric(r io.Reader, w io.Writer, decompressedSize uint32, initialPositionFromEnd int) error {
	win := ring.New(windowSize, 0x20)
	win.SetPosition(windowSize - initialPositionFromEnd)

	var bytesWritten uint32
	for {
		var controlBuf [1]byte
		n, err := r.Read(controlBuf[:])
		if n == 0 {
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			return nil
		}
		controlByte := controlBuf[0]

		for shift := 0; shift < 8; shift++ {
			if controlByte&(1<<uint(shift)) != 0 {
				var lit [1]byte
				if _, err := io.ReadFull(r, lit[:]); err != nil {
					return err
				}
				if _, err := w.Write(lit[:]); err != nil {
					return err
				}
				bytesWritten++
				if bytesWritten == decompressedSize {
					return nil
				}
				win.Push(lit[0])
				continue
			}

			var matchBuf [2]byte
			if _, err := io.ReadFull(r, matchBuf[:]); err != nil {
				return err
			}
			matchPosition := int(matchBuf[0]) | (int(matchBuf[1]&0xF0) << 4)
			matchLength := int(matchBuf[1]&0x0F) + 3

			for i := 0; i < matchLength; i++ {
				b := win.AsSlice()[matchPosition]
				matchPosition = (matchPosition + 1) % windowSize

				if _, err := w.Write([]byte{b}); err != nil {
					return err
				}
				bytesWritten++
				if bytesWritten == decompressedSize {
					return nil
				}
				win.Push(b)
			}
		}
	}
}
