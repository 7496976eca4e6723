package mz

import (
	"bytes"
	"testing"
)

func buildMZImage(t *testing.T, relocOffset uint16, relocs []RelocationEntry, trailing []byte) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	buf.WriteString("MZ")

	header := make([]byte, 26)
	putU16 := func(off int, v uint16) {
		header[off] = byte(v)
		header[off+1] = byte(v >> 8)
	}
	putU16(0, 0x0080)          // LastPageBytes
	putU16(2, 0x0002)          // Pages
	putU16(4, uint16(len(relocs))) // relocation item count
	putU16(6, 0x0004)          // HeaderSizeParagraphs
	putU16(22, relocOffset)    // RelocationTableOffset
	buf.Write(header)

	// padding up to relocOffset
	for uint16(buf.Len()) < relocOffset {
		buf.WriteByte(0)
	}
	for _, e := range relocs {
		var b [4]byte
		b[0], b[1] = byte(e.Offset), byte(e.Offset>>8)
		b[2], b[3] = byte(e.Segment), byte(e.Segment>>8)
		buf.Write(b[:])
	}
	buf.Write(trailing)
	return buf.Bytes()
}

func TestReadMZHeaderAndRelocations(t *testing.T) {
	relocs := []RelocationEntry{{Offset: 0x10, Segment: 0x20}, {Offset: 0x30, Segment: 0x40}}
	data := buildMZImage(t, 0x40, relocs, nil)

	h, err := Read(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if h.RelocationTableOffset != 0x40 {
		t.Errorf("RelocationTableOffset = %#x, want 0x40", h.RelocationTableOffset)
	}
	if len(h.RelocationEntries) != len(relocs) {
		t.Fatalf("len(RelocationEntries) = %d, want %d", len(h.RelocationEntries), len(relocs))
	}
	for i, want := range relocs {
		if h.RelocationEntries[i] != want {
			t.Errorf("RelocationEntries[%d] = %+v, want %+v", i, h.RelocationEntries[i], want)
		}
	}
}

func TestReadMZBadSignature(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte("ZZgarbage")))
	if err != ErrBadSignature {
		t.Fatalf("Read: err = %v, want ErrBadSignature", err)
	}
}

func TestExtensionHeaderOffset(t *testing.T) {
	data := buildMZImage(t, 0x40, nil, nil)
	for uint16(len(data)) < 0x40 {
		data = append(data, 0)
	}
	var extOff [4]byte
	extOff[0], extOff[1], extOff[2], extOff[3] = 0x80, 0x00, 0x00, 0x00
	for len(data) < 0x3C+4 {
		data = append(data, 0)
	}
	copy(data[0x3C:0x40], extOff[:])

	off, err := ExtensionHeaderOffset(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ExtensionHeaderOffset: %v", err)
	}
	if off != 0x80 {
		t.Errorf("ExtensionHeaderOffset = %#x, want 0x80", off)
	}
}
