package pe

import (
	"bytes"
	"testing"
)

func TestSectionTableVirtualToRawRoundTrip(t *testing.T) {
	st := &SectionTable{Entries: []SectionTableEntry{
		{Name: [8]byte{'.', 't', 'e', 'x', 't'}, VirtualSize: 0x1000, VirtualAddress: 0x1000, RawDataSize: 0x1000, RawDataPointer: 0x400},
		{Name: [8]byte{'.', 'd', 'a', 't', 'a'}, VirtualSize: 0x500, VirtualAddress: 0x2000, RawDataSize: 0x200, RawDataPointer: 0x1400},
	}}

	cases := []uint32{0x1000, 0x1050, 0x1FFF, 0x2000, 0x2100}
	for _, rva := range cases {
		raw, ok := st.VirtualToRaw(rva)
		if !ok {
			t.Fatalf("VirtualToRaw(%#x): not mapped", rva)
		}
		back, ok := st.RawToVirtual(raw)
		if !ok {
			t.Fatalf("RawToVirtual(%#x): not mapped", raw)
		}
		if back != rva {
			t.Errorf("round trip broke: rva %#x -> raw %#x -> rva %#x", rva, raw, back)
		}
	}

	if _, ok := st.VirtualToRaw(0x2500); ok {
		t.Errorf("VirtualToRaw(0x2500): expected not-mapped, beyond .data's virtual extent")
	}
}

func TestSectionTableHasOverlapEmptyAfterBSSFilter(t *testing.T) {
	st := &SectionTable{Entries: []SectionTableEntry{
		{Name: [8]byte{'.', 'b', 's', 's'}, Characteristics: characteristicUninitializedData, VirtualAddress: 0x1000, VirtualSize: 0x1000, RawDataPointer: 0, RawDataSize: 0},
	}}
	if st.HasOverlap() {
		t.Fatalf("HasOverlap: expected false when every section is BSS, not a panic or false positive")
	}
}

func TestSectionTableHasOverlapEmptyEntries(t *testing.T) {
	st := &SectionTable{}
	if st.HasOverlap() {
		t.Fatalf("HasOverlap: expected false for an empty section table")
	}
}

func TestSectionTableHasOverlapDetectsRawOverlap(t *testing.T) {
	st := &SectionTable{Entries: []SectionTableEntry{
		{Name: [8]byte{'.', 't', 'e', 'x', 't'}, VirtualAddress: 0x1000, VirtualSize: 0x1000, RawDataPointer: 0x400, RawDataSize: 0x1000},
		{Name: [8]byte{'.', 'd', 'a', 't', 'a'}, VirtualAddress: 0x2000, VirtualSize: 0x1000, RawDataPointer: 0x800, RawDataSize: 0x1000},
	}}
	if !st.HasOverlap() {
		t.Errorf("HasOverlap: expected true, raw ranges [0x400,0x1400) and [0x800,0x1800) overlap")
	}
}

func TestFixMissingVirtualSizes(t *testing.T) {
	st := &SectionTable{Entries: []SectionTableEntry{
		{Name: [8]byte{'.', 't', 'e', 'x', 't'}, VirtualAddress: 0x1000, VirtualSize: 0, RawDataSize: 0x250, RawDataPointer: 0x400},
		{Name: [8]byte{'.', 'd', 'a', 't', 'a'}, VirtualAddress: 0x2000, VirtualSize: 0, RawDataSize: 0x100, RawDataPointer: 0x700},
	}}
	st.FixMissingVirtualSizes(0x1000)

	if st.Entries[0].VirtualSize != 0x1000 {
		t.Errorf(".text VirtualSize = %#x, want 0x1000 (0x250 rounded up to alignment)", st.Entries[0].VirtualSize)
	}
	if st.Entries[1].VirtualSize != 0x1000 {
		t.Errorf(".data VirtualSize = %#x, want 0x1000", st.Entries[1].VirtualSize)
	}
}

func TestReadPE32PlusOptionalHeader(t *testing.T) {
	buf := make([]byte, 0, 112)
	put16 := func(v uint16) { buf = append(buf, byte(v), byte(v>>8)) }
	put32 := func(v uint32) {
		buf = append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
	}
	put64 := func(v uint64) {
		for i := 0; i < 8; i++ {
			buf = append(buf, byte(v>>(8*i)))
		}
	}

	put16(MagicPE32Plus)
	buf = append(buf, 14, 0) // linker version
	put32(0x1000)            // SizeOfCode
	put32(0x2000)            // SizeOfInitializedData
	put32(0)                 // SizeOfUninitializedData
	put32(0x1500)            // AddressOfEntryPoint
	put32(0x1000)            // BaseOfCode
	// no BaseOfData for PE32+
	put64(0x140000000) // ImageBase
	put32(0x1000)       // SectionAlignment
	put32(0x200)        // FileAlignment
	put16(6)            // OS major
	put16(0)            // OS minor
	put16(0)            // image major
	put16(0)            // image minor
	put16(6)            // subsystem major
	put16(0)            // subsystem minor
	put32(0)            // Win32VersionValue
	put32(0x5000)       // SizeOfImage
	put32(0x400)        // SizeOfHeaders
	put32(0)            // CheckSum
	put16(3)            // Subsystem
	put16(0x8140)       // DllCharacteristics
	put64(0x100000)     // SizeOfStackReserve
	put64(0x1000)       // SizeOfStackCommit
	put64(0x100000)     // SizeOfHeapReserve
	put64(0x1000)       // SizeOfHeapCommit
	put32(0)            // LoaderFlags
	put32(2)            // NumberOfRvaAndSizes
	put32(0x3000)
	put32(0x40) // export table dir
	put32(0)
	put32(0) // import table dir (empty)

	r := bytes.NewReader(buf)
	oh, err := readOptionalHeader(r, uint16(len(buf)))
	if err != nil {
		t.Fatalf("readOptionalHeader: %v", err)
	}
	if oh.Magic != MagicPE32Plus {
		t.Errorf("Magic = %#x, want PE32+ magic", oh.Magic)
	}
	if oh.BaseOfData != 0 {
		t.Errorf("BaseOfData = %#x, want 0 for PE32+", oh.BaseOfData)
	}
	if oh.ImageBase != 0x140000000 {
		t.Errorf("ImageBase = %#x, want 0x140000000", oh.ImageBase)
	}
	if len(oh.DataDirectories) != 2 {
		t.Fatalf("len(DataDirectories) = %d, want 2", len(oh.DataDirectories))
	}
	if oh.DataDirectories[0].VirtualAddress != 0x3000 || oh.DataDirectories[0].Size != 0x40 {
		t.Errorf("DataDirectories[0] = %+v, want {0x3000 0x40}", oh.DataDirectories[0])
	}
	if !oh.DataDirectories[1].IsZero() {
		t.Errorf("DataDirectories[1] expected zero (absent import table)")
	}
}

func TestReadOptionalHeaderTruncatedStopsAtThreshold(t *testing.T) {
	buf := make([]byte, 28)
	buf[0], buf[1] = byte(MagicPE32), byte(MagicPE32>>8)
	r := bytes.NewReader(buf)
	oh, err := readOptionalHeader(r, uint16(len(buf)))
	if err != nil {
		t.Fatalf("readOptionalHeader: %v", err)
	}
	if oh.ImageBase != 0 {
		t.Errorf("expected zero-value Windows fields when header is truncated before them")
	}
	if len(oh.DataDirectories) != 0 {
		t.Errorf("expected no data directories when header is truncated before them")
	}
}

func TestReadOptionalHeaderTooSmallReturnsNil(t *testing.T) {
	r := bytes.NewReader([]byte{1})
	oh, err := readOptionalHeader(r, 1)
	if err != nil {
		t.Fatalf("readOptionalHeader: %v", err)
	}
	if oh != nil {
		t.Errorf("expected nil optional header for size < 2")
	}
}
