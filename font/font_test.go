package font

import (
	"encoding/binary"
	"errors"
	"testing"
)

func buildV2Header(firstChar, lastChar uint8, pixelHeight uint16) []byte {
	charEntryCount := int(lastChar-firstChar) + 2
	size := uint32(118 + charEntryCount*4 + 1) // +1 byte of glyph data, filled in by caller

	buf := make([]byte, 118)
	binary.LittleEndian.PutUint16(buf[0:2], 0x0200)
	binary.LittleEndian.PutUint16(buf[88:90], pixelHeight)
	buf[95] = firstChar
	buf[96] = lastChar
	buf[117] = 0 // reserved

	binary.LittleEndian.PutUint32(buf[2:6], size)
	return buf
}

func TestParseV2SingleOneBitWideChar(t *testing.T) {
	const first, last uint8 = 'A', 'A'
	charEntryCount := int(last-first) + 2
	const pixelHeight = 2

	buf := buildV2Header(first, last, pixelHeight)

	// character table: two entries (A, and the sentinel past-last entry)
	bitsOffset := uint32(118 + charEntryCount*4)
	charTable := make([]byte, charEntryCount*4)
	binary.LittleEndian.PutUint16(charTable[0:2], 8) // width=8 bits -> 1 byte
	binary.LittleEndian.PutUint16(charTable[2:4], uint16(bitsOffset))

	binary.LittleEndian.PutUint32(buf[101:105], 0) // device name offset
	binary.LittleEndian.PutUint32(buf[105:109], 0) // name offset
	binary.LittleEndian.PutUint32(buf[113:117], bitsOffset)

	glyphBytes := []byte{0xAA, 0x55} // pixelHeight=2 rows, 1 byte each, transposed trivially (1 column)

	data := append(buf, charTable...)
	data = append(data, glyphBytes...)

	// fix up size to cover everything
	binary.LittleEndian.PutUint32(data[2:6], uint32(len(data)))

	f, rest, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(rest) != 0 {
		t.Errorf("len(rest) = %d, want 0", len(rest))
	}
	if f.Version != 0x0200 {
		t.Errorf("Version = %#06x, want 0x0200", f.Version)
	}
	if f.FirstChar != first || f.LastChar != last {
		t.Errorf("FirstChar/LastChar = %d/%d, want %d/%d", f.FirstChar, f.LastChar, first, last)
	}

	rows, err := f.GlyphRows('A')
	if err != nil {
		t.Fatalf("GlyphRows: %v", err)
	}
	if len(rows) != pixelHeight {
		t.Fatalf("len(rows) = %d, want %d", len(rows), pixelHeight)
	}
	if rows[0][0] != 0xAA || rows[1][0] != 0x55 {
		t.Errorf("rows = %v, want [[0xAA] [0x55]]", rows)
	}
}

func TestParseRejectsUnsupportedVersion(t *testing.T) {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint16(buf[0:2], 0x0400)
	if _, _, err := Parse(buf); err == nil {
		t.Error("err = nil, want ErrUnsupportedVersion")
	}
}

func TestParseRejectsLastBeforeFirst(t *testing.T) {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint16(buf[0:2], 0x0100)
	binary.LittleEndian.PutUint32(buf[2:6], headerSize)
	buf[95] = 10 // first_char
	buf[96] = 5  // last_char
	if _, _, err := Parse(buf); !errors.Is(err, ErrLastCharBeforeFirst) {
		t.Errorf("err = %v, want ErrLastCharBeforeFirst", err)
	}
}

func TestTransposeBytesRoundTrip(t *testing.T) {
	// 2 columns, 3 rows: source is column-major
	src := []byte{1, 2, 3, 4, 5, 6}
	got := transposeBytes(src, 2, 3)
	want := []byte{1, 4, 2, 5, 3, 6}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transposeBytes()[%d] = %d, want %d", i, got[i], want[i])
			break
		}
	}
}
