package bitio

import (
	"encoding/binary"
	"io"
)

// BitReader16LE pulls bits 16 at a time, as a little-endian word, consuming
// bits most-significant-bit-first within each word. This is LZX's framing:
// unlike DEFLATE's byte-granular LSB-first stream, LZX reads whole 16-bit
// units and numbers their bits from the top down.
type BitReader16LE struct {
	r        io.Reader
	msbFirst bool

	cur      uint16
	haveUnit bool
	bitIndex uint8

	totalBits uint64
}

// NewBitReader16LE creates a 16-bit-granular bit reader. LZX always uses
// msbFirst=true; the flag is kept for symmetry with BitReader.
func NewBitReader16LE(r io.Reader, msbFirst bool) *BitReader16LE {
	return &BitReader16LE{r: r, msbFirst: msbFirst}
}

func (br *BitReader16LE) ReadBit() (bit bool, ok bool, err error) {
	if br.bitIndex == 0 {
		var buf [2]byte
		n, rerr := io.ReadFull(br.r, buf[:])
		if n == 0 {
			if rerr == io.EOF {
				return false, false, nil
			}
			return false, false, rerr
		}
		if rerr != nil {
			return false, false, ErrShortRead
		}
		br.cur = binary.LittleEndian.Uint16(buf[:])
		br.haveUnit = true
	}

	actualIndex := br.bitIndex
	if br.msbFirst {
		actualIndex = 15 - br.bitIndex
	}
	bitSet := (br.cur & (1 << actualIndex)) != 0

	br.bitIndex++
	if br.bitIndex == 16 {
		br.bitIndex = 0
		br.haveUnit = false
	}
	br.totalBits++

	return bitSet, true, nil
}

func (br *BitReader16LE) ReadBitStrict() (bool, error) {
	bit, ok, err := br.ReadBit()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrShortRead
	}
	return bit, nil
}

// ReadBits reads n (<=16) bits, packed MSB-first or LSB-first per the
// reader's configured direction, matching BitReader.ReadBits.
func (br *BitReader16LE) ReadBits(n int) (uint32, error) {
	var ret uint32
	for i := 0; i < n; i++ {
		bit, err := br.ReadBitStrict()
		if err != nil {
			return 0, err
		}
		if br.msbFirst {
			ret <<= 1
			if bit {
				ret |= 1
			}
		} else if bit {
			ret |= 1 << uint(i)
		}
	}
	return ret, nil
}

func (br *BitReader16LE) ReadU1() (uint8, error)   { v, err := br.ReadBits(1); return uint8(v), err }
func (br *BitReader16LE) ReadU2() (uint8, error)   { v, err := br.ReadBits(2); return uint8(v), err }
func (br *BitReader16LE) ReadU3() (uint8, error)   { v, err := br.ReadBits(3); return uint8(v), err }
func (br *BitReader16LE) ReadU4() (uint8, error)   { v, err := br.ReadBits(4); return uint8(v), err }
func (br *BitReader16LE) ReadU5() (uint8, error)   { v, err := br.ReadBits(5); return uint8(v), err }
func (br *BitReader16LE) ReadU6() (uint8, error)   { v, err := br.ReadBits(6); return uint8(v), err }
func (br *BitReader16LE) ReadU7() (uint8, error)   { v, err := br.ReadBits(7); return uint8(v), err }
func (br *BitReader16LE) ReadU8() (uint8, error)   { v, err := br.ReadBits(8); return uint8(v), err }
func (br *BitReader16LE) ReadU9() (uint16, error)  { v, err := br.ReadBits(9); return uint16(v), err }
func (br *BitReader16LE) ReadU10() (uint16, error) { v, err := br.ReadBits(10); return uint16(v), err }
func (br *BitReader16LE) ReadU11() (uint16, error) { v, err := br.ReadBits(11); return uint16(v), err }
func (br *BitReader16LE) ReadU12() (uint16, error) { v, err := br.ReadBits(12); return uint16(v), err }
func (br *BitReader16LE) ReadU13() (uint16, error) { v, err := br.ReadBits(13); return uint16(v), err }
func (br *BitReader16LE) ReadU14() (uint16, error) { v, err := br.ReadBits(14); return uint16(v), err }
func (br *BitReader16LE) ReadU15() (uint16, error) { v, err := br.ReadBits(15); return uint16(v), err }
func (br *BitReader16LE) ReadU16() (uint16, error) { v, err := br.ReadBits(16); return uint16(v), err }

// AtUnitBoundary reports whether the next read starts a fresh 16-bit unit;
// LZX's uncompressed block needs to pad to this boundary before reading its
// raw 32-bit words.
func (br *BitReader16LE) AtUnitBoundary() bool {
	return br.bitIndex == 0
}

// DropRestOfUnit discards the remaining unread bits of the current 16-bit
// unit.
func (br *BitReader16LE) DropRestOfUnit() {
	if br.bitIndex > 0 {
		br.totalBits += uint64(16 - br.bitIndex)
	}
	br.bitIndex = 0
	br.haveUnit = false
}

func (br *BitReader16LE) TotalBitsRead() uint64 {
	return br.totalBits
}

// ReadExact fills buf one byte at a time via two ReadU8 calls per uint16 is
// unnecessary; bytes are read directly through the bit-accumulation path so
// alignment (odd bitIndex) is handled transparently.
func (br *BitReader16LE) ReadExact(buf []byte) error {
	for i := range buf {
		v, err := br.ReadU8()
		if err != nil {
			return err
		}
		buf[i] = v
	}
	return nil
}
