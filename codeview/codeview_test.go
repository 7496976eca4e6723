package codeview

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

// buildSubsectionDirectoryHeader constructs the 16-byte header with
// entryCount, nextDirectoryOffset, and flags each written to their own
// correct byte range.
func buildSubsectionDirectoryHeader(entryCount, nextDirectoryOffset, flags uint32) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint16(buf[0:2], 16)
	binary.LittleEndian.PutUint16(buf[2:4], 12)
	binary.LittleEndian.PutUint32(buf[4:8], entryCount)
	binary.LittleEndian.PutUint32(buf[8:12], nextDirectoryOffset)
	binary.LittleEndian.PutUint32(buf[12:16], flags)
	return buf
}

// TestReadSubsectionDirectoryHeaderFieldsDoNotAlias regresses the bug where
// entry_count, next_directory_offset, and flags were all read from bytes
// [4:8]: with three distinct nonzero values, each field must come back
// exactly as written, not collapsed to the same value.
func TestReadSubsectionDirectoryHeaderFieldsDoNotAlias(t *testing.T) {
	buf := buildSubsectionDirectoryHeader(7, 0xAABBCCDD, 0x11223344)
	h, err := readSubsectionDirectoryHeader(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("readSubsectionDirectoryHeader: %v", err)
	}
	if h.EntryCount != 7 {
		t.Errorf("EntryCount = %d, want 7", h.EntryCount)
	}
	if h.NextDirectoryOffset != 0xAABBCCDD {
		t.Errorf("NextDirectoryOffset = %#x, want 0xAABBCCDD", h.NextDirectoryOffset)
	}
	if h.Flags != 0x11223344 {
		t.Errorf("Flags = %#x, want 0x11223344", h.Flags)
	}
}

func TestReadSubsectionDirectoryHeaderRejectsBadLengths(t *testing.T) {
	buf := buildSubsectionDirectoryHeader(0, 0, 0)
	binary.LittleEndian.PutUint16(buf[0:2], 15)
	if _, err := readSubsectionDirectoryHeader(bytes.NewReader(buf)); !errors.Is(err, ErrWrongHeaderLength) {
		t.Errorf("err = %v, want ErrWrongHeaderLength", err)
	}

	buf2 := buildSubsectionDirectoryHeader(0, 0, 0)
	binary.LittleEndian.PutUint16(buf2[2:4], 11)
	if _, err := readSubsectionDirectoryHeader(bytes.NewReader(buf2)); !errors.Is(err, ErrWrongEntryLength) {
		t.Errorf("err = %v, want ErrWrongEntryLength", err)
	}
}

func TestReadBadSignature(t *testing.T) {
	buf := make([]byte, 8)
	copy(buf, "XX\x00\x00")
	if _, err := Read(bytes.NewReader(buf)); err != ErrBadSignature {
		t.Errorf("err = %v, want ErrBadSignature", err)
	}
}

func TestReadNumericLeafImmediate(t *testing.T) {
	buf := []byte{0x34, 0x12} // 0x1234, below the 0x8000 tagged-leaf threshold
	leaf, err := readNumericLeaf(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("readNumericLeaf: %v", err)
	}
	if leaf.Tag != 0x1234 {
		t.Errorf("Tag = %#x, want 0x1234", leaf.Tag)
	}
	if v, ok := leaf.Value.(uint16); !ok || v != 0x1234 {
		t.Errorf("Value = %v, want uint16(0x1234)", leaf.Value)
	}
}

func TestReadNumericLeafUnsignedLong(t *testing.T) {
	buf := []byte{0x04, 0x80, 0x78, 0x56, 0x34, 0x12}
	leaf, err := readNumericLeaf(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("readNumericLeaf: %v", err)
	}
	if leaf.Tag != 0x8004 {
		t.Errorf("Tag = %#x, want 0x8004", leaf.Tag)
	}
	if v, ok := leaf.Value.(uint32); !ok || v != 0x12345678 {
		t.Errorf("Value = %v, want uint32(0x12345678)", leaf.Value)
	}
}

func TestReadNumericLeafString(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x10, 0x80}) // tag 0x8010
	buf.Write([]byte{3, 0})       // length prefix, 3 bytes
	buf.WriteString("abc")
	leaf, err := readNumericLeaf(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("readNumericLeaf: %v", err)
	}
	if s, ok := leaf.Value.(string); !ok || s != "abc" {
		t.Errorf("Value = %v, want \"abc\"", leaf.Value)
	}
}

func TestReadModuleSubsectionNoSegments(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // overlay
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // library index
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // code segment count
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // debugging style
	buf.WriteByte(4)
	buf.WriteString("main")

	m, err := readModuleSubsection(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("readModuleSubsection: %v", err)
	}
	if m.Name != "main" {
		t.Errorf("Name = %q, want %q", m.Name, "main")
	}
	if len(m.SegmentInfo) != 0 {
		t.Errorf("len(SegmentInfo) = %d, want 0", len(m.SegmentInfo))
	}
}

func TestReadLibrariesSubsection(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(3)
	buf.WriteString("foo")
	buf.WriteByte(4)
	buf.WriteString("barr")

	libs, err := readLibrariesSubsection(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("readLibrariesSubsection: %v", err)
	}
	if len(libs.Libraries) != 2 || libs.Libraries[0] != "foo" || libs.Libraries[1] != "barr" {
		t.Errorf("Libraries = %v, want [foo barr]", libs.Libraries)
	}
}

func TestReadTypeLeafModifier(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint16(LeafModifier))
	binary.Write(&buf, binary.LittleEndian, uint16(0x0001)) // CONST
	binary.Write(&buf, binary.LittleEndian, uint16(42))     // base type index

	leaf, err := readTypeLeaf(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("readTypeLeaf: %v", err)
	}
	mod, ok := leaf.Body.(ModifierTypeLeaf)
	if !ok {
		t.Fatalf("Body = %#v, want ModifierTypeLeaf", leaf.Body)
	}
	if mod.BaseTypeIndex != 42 {
		t.Errorf("BaseTypeIndex = %d, want 42", mod.BaseTypeIndex)
	}
}
