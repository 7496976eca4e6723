package bitmap

import (
	"encoding/binary"
	"testing"
)

// TestStrideMatchesFormula is P4: for every width>0 and supported bit
// depth, the row stride equals ((width*bit_count+31)/32)*4.
func TestStrideMatchesFormula(t *testing.T) {
	for _, width := range []int{1, 3, 7, 8, 15, 16, 17, 32, 100} {
		for _, bitCount := range []uint16{1, 4, 8, 16, 24, 32} {
			got := Stride(width, bitCount)
			want := ((width*int(bitCount) + 31) / 32) * 4
			if got != want {
				t.Errorf("Stride(%d, %d) = %d, want %d", width, bitCount, got, want)
			}
		}
	}
}

func buildHeader(width, height int32, bitCount uint16, compression Compression, colorsUsed uint32) []byte {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(buf[0:4], headerSize)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(width))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(height))
	binary.LittleEndian.PutUint16(buf[12:14], 1)
	binary.LittleEndian.PutUint16(buf[14:16], bitCount)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(compression))
	binary.LittleEndian.PutUint32(buf[32:36], colorsUsed)
	return buf
}

// TestParseNonIconUsesFullHeight guards the fix for the non-icon
// height-halving defect: an 8bpp, height-32 non-icon bitmap must decode
// all 32 rows, not 16.
func TestParseNonIconUsesFullHeight(t *testing.T) {
	const width, height = 4, 32
	buf := buildHeader(width, height, 8, CompressionRGB, 0)
	buf = append(buf, make([]byte, 256*4)...) // 256-color palette
	stride := Stride(width, 8)
	buf = append(buf, make([]byte, stride*height)...)

	bmp, rest, err := Parse(buf, false)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(bmp.Rows) != height {
		t.Errorf("len(Rows) = %d, want %d", len(bmp.Rows), height)
	}
	if len(rest) != 0 {
		t.Errorf("len(rest) = %d, want 0", len(rest))
	}
}

// TestParseIconHalvesHeight is P5: for an icon-flagged bitmap, the visible
// height is half the declared header height, and the transparency buffer
// length equals ceil(width/8) * visible_height.
func TestParseIconHalvesHeight(t *testing.T) {
	const width, declaredHeight = 16, 32
	const visibleHeight = declaredHeight / 2
	buf := buildHeader(width, declaredHeight, 8, CompressionRGB, 0)
	buf = append(buf, make([]byte, 256*4)...)
	stride := Stride(width, 8)
	buf = append(buf, make([]byte, stride*visibleHeight)...)
	alphaStride := Stride(width, 1)
	buf = append(buf, make([]byte, alphaStride*visibleHeight)...)

	bmp, _, err := Parse(buf, true)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(bmp.Rows) != visibleHeight {
		t.Errorf("len(Rows) = %d, want %d", len(bmp.Rows), visibleHeight)
	}
	wantAlphaRowLen := (width + 7) / 8
	for i, row := range bmp.Transparency {
		if len(row) != wantAlphaRowLen {
			t.Errorf("Transparency[%d] len = %d, want %d", i, len(row), wantAlphaRowLen)
		}
	}
	if len(bmp.Transparency) != visibleHeight {
		t.Errorf("len(Transparency) = %d, want %d", len(bmp.Transparency), visibleHeight)
	}
}

// TestToRGBA8SixteenBySixteenIcon is part of P10.2: an 8bpp 16x16 icon
// (declared height 32) round-trips to a 1024-byte RGBA buffer.
func TestToRGBA8SixteenBySixteenIcon(t *testing.T) {
	const width, declaredHeight = 16, 32
	buf := buildHeader(width, declaredHeight, 8, CompressionRGB, 2)
	buf = append(buf, []byte{255, 0, 0, 0, 0, 255, 0, 0}...) // 2-color palette (B,G,R,0 entries): blue, green
	stride := Stride(width, 8)
	visibleHeight := declaredHeight / 2
	buf = append(buf, make([]byte, stride*visibleHeight)...)
	alphaStride := Stride(width, 1)
	buf = append(buf, make([]byte, alphaStride*visibleHeight)...)

	bmp, _, err := Parse(buf, true)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	rgba := bmp.ToRGBA8()
	if len(rgba) != width*visibleHeight*4 {
		t.Errorf("len(ToRGBA8()) = %d, want %d", len(rgba), width*visibleHeight*4)
	}
}

func TestParseRejectsWrongHeaderSize(t *testing.T) {
	buf := buildHeader(1, 1, 8, CompressionRGB, 0)
	binary.LittleEndian.PutUint32(buf[0:4], 38)
	if _, _, err := Parse(buf, false); err != ErrWrongHeaderSize {
		t.Errorf("err = %v, want ErrWrongHeaderSize", err)
	}
}

func TestParseRejectsNonPositiveWidth(t *testing.T) {
	buf := buildHeader(0, 1, 8, CompressionRGB, 0)
	if _, _, err := Parse(buf, false); err != ErrNonPositiveWidth {
		t.Errorf("err = %v, want ErrNonPositiveWidth", err)
	}
}

func TestParseRejectsOverlyLargePalette(t *testing.T) {
	buf := buildHeader(1, 1, 1, CompressionRGB, 5) // 1bpp allows max 2 colors
	if _, _, err := Parse(buf, false); err != ErrOverlyLargePalette {
		t.Errorf("err = %v, want ErrOverlyLargePalette", err)
	}
}
