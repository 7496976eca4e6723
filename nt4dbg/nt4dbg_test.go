package nt4dbg

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func buildHeader(sectionCount, exportedNamesSize, debugDirCount uint32) []byte {
	buf := make([]byte, 48)
	binary.LittleEndian.PutUint16(buf[0:2], wantSignature)
	binary.LittleEndian.PutUint32(buf[24:28], sectionCount)
	binary.LittleEndian.PutUint32(buf[28:32], exportedNamesSize)
	binary.LittleEndian.PutUint32(buf[32:36], debugDirCount)
	return buf
}

func TestReadNoSectionsNoNamesNoDirs(t *testing.T) {
	buf := buildHeader(0, 0, 0)
	f, err := Read(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(f.Sections.Entries) != 0 {
		t.Errorf("len(Sections.Entries) = %d, want 0", len(f.Sections.Entries))
	}
	if len(f.ExportedNames) != 1 || len(f.ExportedNames[0]) != 0 {
		t.Errorf("ExportedNames = %v, want one empty entry", f.ExportedNames)
	}
}

func TestReadExportedNamesSplitOnNul(t *testing.T) {
	names := []byte("foo\x00bar\x00")
	buf := buildHeader(0, uint32(len(names)), 0)
	buf = append(buf, names...)
	f, err := Read(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(f.ExportedNames) != 2 || string(f.ExportedNames[0]) != "foo" || string(f.ExportedNames[1]) != "bar" {
		t.Errorf("ExportedNames = %v, want [foo bar]", f.ExportedNames)
	}
}

func TestReadRejectsWrongSignature(t *testing.T) {
	buf := buildHeader(0, 0, 0)
	binary.LittleEndian.PutUint16(buf[0:2], 0x1234)
	if _, err := Read(bytes.NewReader(buf)); err == nil {
		t.Error("err = nil, want signature mismatch error")
	}
}

func TestDebugTypeString(t *testing.T) {
	if DebugTypeCodeView.String() != "CodeView" {
		t.Errorf("String() = %q, want CodeView", DebugTypeCodeView.String())
	}
	if DebugType(999).String() != "Other(999)" {
		t.Errorf("String() = %q, want Other(999)", DebugType(999).String())
	}
}
