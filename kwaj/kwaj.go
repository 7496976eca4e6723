package kwaj

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/laenix/binms/mszip"
)

// Compression type byte values, per the one-byte field following the KWAJ
// magic.
const (
	CompressionNone       = 0x00
	CompressionXORMasked  = 0x01
	CompressionSZ         = 0x02
	CompressionLZH        = 0x03
	CompressionMSZIP      = 0x04
)

var (
	ErrDataOffsetWithinHeader = errors.New("kwaj: data offset points within the header")
	ErrLZHNotSupported        = errors.New("kwaj: LZH decompression is not implemented")
)

const kwajHeaderAlreadyRead = 8 + 1 + 2

// Decompress decompresses a KWAJ payload, assuming the 8-byte magic has
// already been consumed: a compression-type byte, a big-endian 16-bit data
// offset, and any padding bytes before the compressed data begins.
func Decompress(r io.Reader, w io.Writer) error {
	var typeBuf [1]byte
	if _, err := io.ReadFull(r, typeBuf[:]); err != nil {
		return err
	}

	var offsetBuf [2]byte
	if _, err := io.ReadFull(r, offsetBuf[:]); err != nil {
		return err
	}
	dataOffset := binary.BigEndian.Uint16(offsetBuf[:])

	if dataOffset < kwajHeaderAlreadyRead {
		return ErrDataOffsetWithinHeader
	}
	padding := make([]byte, dataOffset-kwajHeaderAlreadyRead)
	if _, err := io.ReadFull(r, padding); err != nil {
		return err
	}

	switch typeBuf[0] {
	case CompressionNone, CompressionXORMasked:
		buf := make([]byte, 4096)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				chunk := buf[:n]
				if typeBuf[0] == CompressionXORMasked {
					for i := range chunk {
						chunk[i] ^= 0xFF
					}
				}
				if _, werr := w.Write(chunk); werr != nil {
					return werr
				}
			}
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
		}
	case CompressionSZ:
		return szStyleDecompress(r, w)
	case CompressionLZH:
		return ErrLZHNotSupported
	case CompressionMSZIP:
		out, err := mszip.DecodeStream(r)
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	default:
		return ErrUnknownCompressionMethod
	}
}

// szStyleDecompress is KWAJ's type-0x02 "SZ" variant, distinct from the
// standalone SZ container: same control-byte/match algorithm as SZDD/SZ but
// without a length-prefixed header, decoding until the input is exhausted.
func szStyleDecompress(r io.Reader, w io.Writer) error {
	return decompressGeneric(r, w, ^uint32(0), 16)
}
