package ne

import (
	"bytes"
	"testing"
)

// buildMinimalNEImage constructs a byte-exact NE file with empty segment,
// resource, and non-resident-name tables: just enough for Read to succeed
// end to end (contributes to property P10.1, the MZ-driven NE/PE dispatch).
func buildMinimalNEImage(t *testing.T) []byte {
	t.Helper()

	buf := make([]byte, 130)
	buf[0], buf[1] = 'M', 'Z'

	putU16 := func(off int, v uint16) {
		buf[off] = byte(v)
		buf[off+1] = byte(v >> 8)
	}
	putU16(6, 0)         // relocation item count (header relative offset 4..6, signature is 2 bytes)
	putU16(24, 0x0040)   // RelocationTableOffset field (header relative offset 22..24)

	// NE header placed at absolute offset 64 ("NE" signature begins there).
	const neHeaderOffset = 64
	putU32At := func(off int, v uint32) {
		buf[off] = byte(v)
		buf[off+1] = byte(v >> 8)
		buf[off+2] = byte(v >> 16)
		buf[off+3] = byte(v >> 24)
	}
	putU32At(0x3C, neHeaderOffset)

	buf[neHeaderOffset] = 'N'
	buf[neHeaderOffset+1] = 'E'

	h := neHeaderOffset + 2 // start of the 62-byte fixed header
	buf[h+0] = 5            // linker version
	buf[h+1] = 10           // linker revision

	setU16 := func(rel int, v uint16) {
		buf[h+rel] = byte(v)
		buf[h+rel+1] = byte(v >> 8)
	}
	setU32 := func(rel int, v uint32) {
		buf[h+rel] = byte(v)
		buf[h+rel+1] = byte(v >> 8)
		buf[h+rel+2] = byte(v >> 16)
		buf[h+rel+3] = byte(v >> 24)
	}

	const tablesRelOffset = 64 // relative to neHeaderOffset: right after the 62-byte fixed header + 2-byte signature

	setU16(2, uint16(tablesRelOffset+1)) // entry_table_offset (terminator byte after the resident-name terminator)
	setU32(6, 0xDEADBEEF)                // crc32
	setU16(10, uint16(ExeFlagLibraryModule))
	setU16(26, 0) // segment_table_entries
	setU16(28, 0) // module_reference_table_entries
	setU16(30, 0) // non_resident_name_table_entries
	setU16(32, uint16(tablesRelOffset))  // segment_table_offset
	setU16(34, uint16(tablesRelOffset))  // resource_table_offset == resident_name_table_offset: skip resource read
	setU16(36, uint16(tablesRelOffset))  // resident_name_table_offset
	setU16(38, 0)                        // module_reference_table_offset
	setU16(40, 0)                        // imported_names_table_offset
	setU32(42, 0)                        // non_resident_name_table_offset (absolute; unused, 0 entries)
	setU16(48, 0)                        // logical_sector_alignment_shift_count
	buf[h+52] = 1                        // executable_type

	// tables region: resident-name terminator, then entry-table terminator
	buf[neHeaderOffset+tablesRelOffset] = 0x00
	buf[neHeaderOffset+tablesRelOffset+1] = 0x00

	return buf
}

func TestReadMinimalNEFile(t *testing.T) {
	data := buildMinimalNEImage(t)
	f, err := Read(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if f.LinkerVersion != 5 || f.LinkerRevision != 10 {
		t.Errorf("linker version/revision = %d/%d, want 5/10", f.LinkerVersion, f.LinkerRevision)
	}
	if !f.Flags.Has(ExeFlagLibraryModule) {
		t.Errorf("Flags missing ExeFlagLibraryModule")
	}
	if len(f.SegmentTable) != 0 {
		t.Errorf("len(SegmentTable) = %d, want 0", len(f.SegmentTable))
	}
	if len(f.ResidentNameTable) != 0 {
		t.Errorf("len(ResidentNameTable) = %d, want 0", len(f.ResidentNameTable))
	}
	if len(f.EntryTable) != 0 {
		t.Errorf("len(EntryTable) = %d, want 0", len(f.EntryTable))
	}
}

func TestReadNERejectsWrongRelocationOffset(t *testing.T) {
	data := buildMinimalNEImage(t)
	// Corrupt the MZ relocation table offset so it no longer equals 0x0040.
	data[24] = 0x41
	_, err := Read(bytes.NewReader(data))
	if err != ErrNotAnNEFile {
		t.Fatalf("Read: err = %v, want ErrNotAnNEFile", err)
	}
}

func TestReadNEBadSignature(t *testing.T) {
	data := buildMinimalNEImage(t)
	data[64], data[65] = 'X', 'X'
	_, err := Read(bytes.NewReader(data))
	if err != ErrBadSignature {
		t.Fatalf("Read: err = %v, want ErrBadSignature", err)
	}
}
