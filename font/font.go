// Package font decodes the Windows bitmap font format (FNT), versions
// 0x0100 through 0x0300, and exports glyphs to the textual BDF format.
package font

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTooShort               = errors.New("font: buffer too short")
	ErrUnsupportedVersion     = errors.New("font: unsupported format version")
	ErrSizeTooSmall           = errors.New("font: size field smaller than minimum header size")
	ErrOffsetBeyondEnd        = errors.New("font: an offset field points past the end of the font data")
	ErrLastCharBeforeFirst    = errors.New("font: last_char precedes first_char")
)

const headerSize = 117

// WidthOffset16 is a v2 character-table entry.
type WidthOffset16 struct {
	Width  uint16
	Offset uint16
}

// WidthOffset32 is a v3 character-table entry.
type WidthOffset32 struct {
	Width  uint16
	Offset uint32
}

// V3ExtHeader is the 30-byte extended header that follows the common
// 117-byte header in version 0x0300 fonts.
type V3ExtHeader struct {
	Flags       uint32
	ASpace      uint16
	BSpace      uint16
	CSpace      uint16
	ColorPointer uint32
}

// VersionSpecific holds the per-format-version glyph index.
type VersionSpecific struct {
	// V1 only: offsets (in bits) into a single packed bitmap, one more
	// entry than there are characters (the last entry is the end bit
	// offset of the final character).
	BitOffsets []uint16

	// V2 only.
	CharTableV2 []WidthOffset16

	// V3 only.
	ExtHeader   *V3ExtHeader
	CharTableV3 []WidthOffset32
}

// Font is a fully decoded bitmap font resource.
type Font struct {
	Version           uint16
	Size              uint32
	Copyright         [60]byte
	FontType          uint16
	PointSize         uint16
	VerticalDPI       uint16
	HorizontalDPI     uint16
	Ascent            uint16
	InternalLeading   uint16
	ExternalLeading   uint16
	Italic            uint8
	Underline         uint8
	StrikeOut         uint8
	Weight            uint16
	CharSet           uint8
	PixelWidth        uint16
	PixelHeight       uint16
	PitchAndFamily    uint8
	AverageWidth      uint16
	MaxWidth          uint16
	FirstChar         uint8
	LastChar          uint8
	DefaultChar       uint8
	BreakCharRelative uint8
	BytesPerRow       uint16
	DeviceNameOffset  uint32
	NameOffset        uint32
	BitsPointer       uint32
	BitsOffset        uint32
	VersionSpecific   VersionSpecific

	DeviceName string
	Name       string
	Bitmap     []byte
}

func nulTerminatedASCIIString(b []byte) (string, bool) {
	end := len(b)
	for i, c := range b {
		if c == 0 {
			end = i
			break
		}
		if c > 0x7F {
			return "", false
		}
	}
	return string(b[:end]), true
}

// Parse decodes one bitmap font resource from data, returning the font
// and the bytes remaining after it (data may hold more than one font
// back-to-back, as in a raw FON resource stream).
func Parse(data []byte) (*Font, []byte, error) {
	if len(data) < headerSize {
		return nil, nil, ErrTooShort
	}

	version := binary.LittleEndian.Uint16(data[0:2])
	size := binary.LittleEndian.Uint32(data[2:6])

	var minHeaderLength uint32
	switch version {
	case 0x0100:
		minHeaderLength = 117
	case 0x0200:
		minHeaderLength = 118
	case 0x0300:
		minHeaderLength = 148
	default:
		return nil, nil, fmt.Errorf("%w: %#06x", ErrUnsupportedVersion, version)
	}
	if len(data) < int(minHeaderLength) {
		return nil, nil, ErrTooShort
	}
	if size < minHeaderLength {
		return nil, nil, fmt.Errorf("%w: got %d, want at least %d", ErrSizeTooSmall, size, minHeaderLength)
	}
	if len(data) < int(size) {
		return nil, nil, ErrTooShort
	}

	fontBytes, rest := data[:size], data[size:]

	f := &Font{
		Version:           version,
		Size:              size,
		FontType:          binary.LittleEndian.Uint16(fontBytes[66:68]),
		PointSize:         binary.LittleEndian.Uint16(fontBytes[68:70]),
		VerticalDPI:       binary.LittleEndian.Uint16(fontBytes[70:72]),
		HorizontalDPI:     binary.LittleEndian.Uint16(fontBytes[72:74]),
		Ascent:            binary.LittleEndian.Uint16(fontBytes[74:76]),
		InternalLeading:   binary.LittleEndian.Uint16(fontBytes[76:78]),
		ExternalLeading:   binary.LittleEndian.Uint16(fontBytes[78:80]),
		Italic:            fontBytes[80],
		Underline:         fontBytes[81],
		StrikeOut:         fontBytes[82],
		Weight:            binary.LittleEndian.Uint16(fontBytes[83:85]),
		CharSet:           fontBytes[85],
		PixelWidth:        binary.LittleEndian.Uint16(fontBytes[86:88]),
		PixelHeight:       binary.LittleEndian.Uint16(fontBytes[88:90]),
		PitchAndFamily:    fontBytes[90],
		AverageWidth:      binary.LittleEndian.Uint16(fontBytes[91:93]),
		MaxWidth:          binary.LittleEndian.Uint16(fontBytes[93:95]),
		FirstChar:         fontBytes[95],
		LastChar:          fontBytes[96],
		DefaultChar:       fontBytes[97],
		BreakCharRelative: fontBytes[98],
		BytesPerRow:       binary.LittleEndian.Uint16(fontBytes[99:101]),
		DeviceNameOffset:  binary.LittleEndian.Uint32(fontBytes[101:105]),
		NameOffset:        binary.LittleEndian.Uint32(fontBytes[105:109]),
		BitsPointer:       binary.LittleEndian.Uint32(fontBytes[109:113]),
		BitsOffset:        binary.LittleEndian.Uint32(fontBytes[113:117]),
	}
	copy(f.Copyright[:], fontBytes[6:66])

	if f.LastChar < f.FirstChar {
		return nil, nil, fmt.Errorf("%w: last=%#02x first=%#02x", ErrLastCharBeforeFirst, f.LastChar, f.FirstChar)
	}

	for name, offset := range map[string]uint32{
		"device name": f.DeviceNameOffset,
		"name":        f.NameOffset,
		"bits":        f.BitsOffset,
	} {
		if int(offset) >= len(fontBytes) {
			return nil, nil, fmt.Errorf("%w: %s offset %d, font size %d", ErrOffsetBeyondEnd, name, offset, len(fontBytes))
		}
	}

	if f.DeviceNameOffset != 0 {
		s, ok := nulTerminatedASCIIString(fontBytes[f.DeviceNameOffset:])
		if !ok {
			return nil, nil, fmt.Errorf("font: device name is not valid ASCII")
		}
		f.DeviceName = s
	}
	if f.NameOffset != 0 {
		s, ok := nulTerminatedASCIIString(fontBytes[f.NameOffset:])
		if !ok {
			return nil, nil, fmt.Errorf("font: name is not valid ASCII")
		}
		f.Name = s
	}

	charEntryCount := int(f.LastChar-f.FirstChar) + 2

	var bitmapByteCount int
	switch version {
	case 0x0100:
		const bitOffsetsOffset = 117
		byteCount := charEntryCount * 2
		if len(fontBytes) < bitOffsetsOffset+byteCount {
			return nil, nil, ErrTooShort
		}
		bitOffsets := make([]uint16, charEntryCount)
		for i := 0; i < charEntryCount; i++ {
			off := bitOffsetsOffset + i*2
			bitOffsets[i] = binary.LittleEndian.Uint16(fontBytes[off : off+2])
		}
		f.VersionSpecific.BitOffsets = bitOffsets
		bitmapByteCount = int(f.PixelHeight) * int(f.BytesPerRow)

	case 0x0200:
		const charTableOffset = 118
		byteCount := charEntryCount * 4
		if len(fontBytes) < charTableOffset+byteCount {
			return nil, nil, ErrTooShort
		}
		charTable := make([]WidthOffset16, charEntryCount)
		totalWidthBytes := 0
		for i := 0; i < charEntryCount; i++ {
			off := charTableOffset + i*4
			w := binary.LittleEndian.Uint16(fontBytes[off : off+2])
			o := binary.LittleEndian.Uint16(fontBytes[off+2 : off+4])
			charTable[i] = WidthOffset16{Width: w, Offset: o}
			totalWidthBytes += int(w+7) / 8
		}
		f.VersionSpecific.CharTableV2 = charTable
		bitmapByteCount = int(f.PixelHeight) * totalWidthBytes

	case 0x0300:
		flags := binary.LittleEndian.Uint32(fontBytes[118:122])
		aSpace := binary.LittleEndian.Uint16(fontBytes[122:124])
		bSpace := binary.LittleEndian.Uint16(fontBytes[124:126])
		cSpace := binary.LittleEndian.Uint16(fontBytes[126:128])
		colorPointer := binary.LittleEndian.Uint32(fontBytes[128:132])
		f.VersionSpecific.ExtHeader = &V3ExtHeader{
			Flags: flags, ASpace: aSpace, BSpace: bSpace, CSpace: cSpace, ColorPointer: colorPointer,
		}

		const charTableOffset = 148
		byteCount := charEntryCount * 6
		if len(fontBytes) < charTableOffset+byteCount {
			return nil, nil, ErrTooShort
		}
		charTable := make([]WidthOffset32, charEntryCount)
		totalWidthBytes := 0
		for i := 0; i < charEntryCount; i++ {
			off := charTableOffset + i*6
			w := binary.LittleEndian.Uint16(fontBytes[off : off+2])
			o := binary.LittleEndian.Uint32(fontBytes[off+2 : off+6])
			charTable[i] = WidthOffset32{Width: w, Offset: o}
			totalWidthBytes += int(w+7) / 8
		}
		f.VersionSpecific.CharTableV3 = charTable
		bitmapByteCount = int(f.PixelHeight) * totalWidthBytes
	}

	if int(f.BitsOffset)+bitmapByteCount > len(fontBytes) {
		return nil, nil, ErrTooShort
	}
	f.Bitmap = append([]byte(nil), fontBytes[f.BitsOffset:int(f.BitsOffset)+bitmapByteCount]...)

	return f, rest, nil
}

// transposeBytes undoes the column-major glyph packing used by v2/v3
// characters: transposed[row*widthBytes+col] = source[col*pixelHeight+row].
func transposeBytes(src []byte, widthBytes, pixelHeight int) []byte {
	out := make([]byte, len(src))
	for col := 0; col < widthBytes; col++ {
		for row := 0; row < pixelHeight; row++ {
			sourceIndex := col*pixelHeight + row
			targetIndex := row*widthBytes + col
			if sourceIndex < len(src) {
				out[targetIndex] = src[sourceIndex]
			}
		}
	}
	return out
}

// GlyphRows returns the glyph for the given character code (which must be
// within [FirstChar, LastChar]) as one byte slice per pixel row, already
// transposed back into row-major order for v2/v3 fonts.
func (f *Font) GlyphRows(char uint8) ([][]byte, error) {
	if char < f.FirstChar || char > f.LastChar {
		return nil, fmt.Errorf("font: character %#02x outside [%#02x, %#02x]", char, f.FirstChar, f.LastChar)
	}
	index := int(char - f.FirstChar)

	switch f.Version {
	case 0x0100:
		rowLen := int(f.BytesPerRow)
		rows := make([][]byte, f.PixelHeight)
		for r := 0; r < int(f.PixelHeight); r++ {
			start := r * rowLen
			if start+rowLen > len(f.Bitmap) {
				break
			}
			rows[r] = f.Bitmap[start : start+rowLen]
		}
		return rows, nil

	case 0x0200:
		wo := f.VersionSpecific.CharTableV2[index]
		widthBytes := int(wo.Width+7) / 8
		bitmapOffset := int(wo.Offset) - int(f.BitsOffset)
		totalBytes := widthBytes * int(f.PixelHeight)
		if bitmapOffset < 0 || bitmapOffset+totalBytes > len(f.Bitmap) {
			return nil, fmt.Errorf("font: glyph %#02x offset out of range", char)
		}
		transposed := transposeBytes(f.Bitmap[bitmapOffset:bitmapOffset+totalBytes], widthBytes, int(f.PixelHeight))
		return splitRows(transposed, widthBytes), nil

	case 0x0300:
		wo := f.VersionSpecific.CharTableV3[index]
		widthBytes := int(wo.Width+7) / 8
		bitmapOffset := int(wo.Offset) - int(f.BitsOffset)
		totalBytes := widthBytes * int(f.PixelHeight)
		if bitmapOffset < 0 || bitmapOffset+totalBytes > len(f.Bitmap) {
			return nil, fmt.Errorf("font: glyph %#02x offset out of range", char)
		}
		transposed := transposeBytes(f.Bitmap[bitmapOffset:bitmapOffset+totalBytes], widthBytes, int(f.PixelHeight))
		return splitRows(transposed, widthBytes), nil
	}
	return nil, fmt.Errorf("%w: %#06x", ErrUnsupportedVersion, f.Version)
}

func splitRows(data []byte, rowLen int) [][]byte {
	rows := make([][]byte, 0, len(data)/rowLen)
	for i := 0; i+rowLen <= len(data); i += rowLen {
		rows = append(rows, data[i:i+rowLen])
	}
	return rows
}

func (f *Font) charWidth(index int) uint16 {
	switch f.Version {
	case 0x0100:
		return f.VersionSpecific.BitOffsets[index+1] - f.VersionSpecific.BitOffsets[index]
	case 0x0200:
		return f.VersionSpecific.CharTableV2[index].Width
	case 0x0300:
		return f.VersionSpecific.CharTableV3[index].Width
	}
	return 0
}

// ToBDF renders the font to the textual BDF (Glyph Bitmap Distribution
// Format) representation.
func (f *Font) ToBDF() string {
	var b strings.Builder

	charCount := int(f.LastChar-f.FirstChar) + 1

	maxWidth := uint16(0)
	for i := 0; i < charCount; i++ {
		if w := f.charWidth(i); w > maxWidth {
			maxWidth = w
		}
	}

	fmt.Fprintln(&b, "STARTFONT 2.1")
	fmt.Fprintf(&b, "FONT %s\n", f.Name)
	fmt.Fprintf(&b, "SIZE %d %d %d\n", f.PointSize, f.PixelWidth, f.PixelHeight)
	fmt.Fprintf(&b, "FONTBOUNDINGBOX %d %d 0 0\n", maxWidth, f.PixelHeight)
	fmt.Fprintln(&b, "STARTPROPERTIES 2")
	fmt.Fprintf(&b, "FONT_ASCENT %d\n", f.Ascent)
	fmt.Fprintf(&b, "FONT_DESCENT %d\n", f.PixelHeight-f.Ascent)
	fmt.Fprintln(&b, "ENDPROPERTIES")
	fmt.Fprintf(&b, "CHARS %d\n", charCount)

	for i := 0; i < charCount; i++ {
		codePoint := int(f.FirstChar) + i
		charWidth := f.charWidth(i)

		denominator := uint64(f.PixelWidth)
		if denominator == 0 {
			denominator = 72
		}
		afmWidth := 72000 * uint64(charWidth) / denominator

		fmt.Fprintf(&b, "STARTCHAR U+%04X\n", codePoint)
		fmt.Fprintf(&b, "ENCODING %d\n", codePoint)
		fmt.Fprintf(&b, "SWIDTH %d 0\n", afmWidth)
		fmt.Fprintf(&b, "DWIDTH %d 0\n", charWidth)
		fmt.Fprintf(&b, "BBX %d %d 0 0\n", charWidth, f.PixelHeight)
		fmt.Fprintln(&b, "BITMAP")

		rows, err := f.GlyphRows(uint8(codePoint))
		if err == nil {
			for _, row := range rows {
				for _, byteVal := range row {
					fmt.Fprintf(&b, "%02X", byteVal)
				}
				fmt.Fprintln(&b)
			}
		}

		fmt.Fprintln(&b, "ENDCHAR")
	}

	fmt.Fprintln(&b, "ENDFONT")
	return b.String()
}
