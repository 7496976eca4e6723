// Package pe parses Portable Executable (PE) images: the COFF file header,
// the PE32/PE32+ optional header and its data directories, the section
// table, and (in export.go/resource.go) the export table and resource
// directory tree those data directories point at.
package pe

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/laenix/binms/mz"
)

var (
	ErrBadSignature       = errors.New("pe: missing \"PE\\0\\0\" signature")
	ErrUnknownOptionalMagic = errors.New("pe: unrecognized optional header magic")
	ErrSectionsOverlap    = errors.New("pe: section table has overlapping entries")
	ErrAddressNotMapped   = errors.New("pe: address not covered by any section")
)

const signatureOffset = 0x3C

const (
	MagicPE32  = 0x010B
	MagicPE32Plus = 0x020B
)

// Known data-directory indices.
const (
	DirExportTable = iota
	DirImportTable
	DirResourceTable
	DirExceptionTable
	DirCertificateTable
	DirBaseRelocationTable
	DirDebug
	DirArchitecture
	DirGlobalPtr
	DirTLSTable
	DirLoadConfigTable
	DirBoundImport
	DirImportAddressTable
	DirDelayImportDescriptor
	DirCLRRuntimeHeader
	DirReserved15
	numKnownDataDirectories
)

// DataDirectory is one (virtual_address, size) pair, per spec.md §3.3.
type DataDirectory struct {
	VirtualAddress uint32
	Size           uint32
}

func (d DataDirectory) IsZero() bool { return d.VirtualAddress == 0 && d.Size == 0 }

// OptionalHeader is the PE32 or PE32+ optional header, normalized to a
// single shape (ImageBase widens to uint64 for both variants).
type OptionalHeader struct {
	Magic                    uint16
	MajorLinkerVersion       uint8
	MinorLinkerVersion       uint8
	SizeOfCode               uint32
	SizeOfInitializedData    uint32
	SizeOfUninitializedData  uint32
	AddressOfEntryPoint      uint32
	BaseOfCode               uint32
	BaseOfData               uint32 // PE32 only; zero on PE32+

	ImageBase                uint64
	SectionAlignment         uint32
	FileAlignment            uint32
	MajorOSVersion           uint16
	MinorOSVersion           uint16
	MajorImageVersion        uint16
	MinorImageVersion        uint16
	MajorSubsystemVersion    uint16
	MinorSubsystemVersion    uint16
	Win32VersionValue        uint32
	SizeOfImage              uint32
	SizeOfHeaders            uint32
	CheckSum                 uint32
	Subsystem                uint16
	DllCharacteristics       uint16
	SizeOfStackReserve       uint64
	SizeOfStackCommit        uint64
	SizeOfHeapReserve        uint64
	SizeOfHeapCommit         uint64
	LoaderFlags              uint32

	DataDirectories []DataDirectory
}

// DataDirectoryEntry looks up a known data-directory entry; ok is false if the
// optional header doesn't carry that many entries.
func (oh *OptionalHeader) DataDirectoryEntry(index int) (DataDirectory, bool) {
	if index < 0 || index >= len(oh.DataDirectories) {
		return DataDirectory{}, false
	}
	return oh.DataDirectories[index], true
}

// SectionTableEntry is one 40-byte section record.
type SectionTableEntry struct {
	Name               [8]byte
	VirtualSize        uint32
	VirtualAddress     uint32
	RawDataSize        uint32
	RawDataPointer     uint32
	RelocationsPointer uint32
	LineNumbersPointer uint32
	RelocationsCount   uint16
	LineNumbersCount   uint16
	Characteristics    uint32
}

const characteristicUninitializedData = 0x00000080

func (e *SectionTableEntry) NameString() string {
	n := 0
	for n < len(e.Name) && e.Name[n] != 0 {
		n++
	}
	return string(e.Name[:n])
}

// SectionTable is the ordered section list plus the RVA<->raw-offset
// conversions every data directory reader depends on.
type SectionTable struct {
	Entries []SectionTableEntry
}

// FixMissingVirtualSizes fills in a zero VirtualSize by rounding RawDataSize
// up to sectionAlignment, clipped so as not to overlap the next section by
// virtual address — per spec.md §3.4 and the teacher's convention of
// normalizing lenient/malformed section tables rather than rejecting them.
func (st *SectionTable) FixMissingVirtualSizes(sectionAlignment uint32) {
	if sectionAlignment == 0 {
		sectionAlignment = 1
	}
	sorted := make([]int, len(st.Entries))
	for i := range sorted {
		sorted[i] = i
	}
	// stable order by (virtual_address, virtual_size, name), matching the
	// original's sort key.
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0; j-- {
			a, b := st.Entries[sorted[j-1]], st.Entries[sorted[j]]
			if sectionKeyLess(b, a) {
				sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
			} else {
				break
			}
		}
	}

	for pos, idx := range sorted {
		entry := &st.Entries[idx]
		if entry.VirtualSize != 0 {
			continue
		}
		newSize := ((entry.RawDataSize + sectionAlignment - 1) / sectionAlignment) * sectionAlignment
		if pos+1 < len(sorted) {
			next := st.Entries[sorted[pos+1]]
			if entry.VirtualAddress+newSize > next.VirtualAddress {
				newSize = next.VirtualAddress - entry.VirtualAddress
			}
		}
		entry.VirtualSize = newSize
	}
}

func sectionKeyLess(a, b SectionTableEntry) bool {
	if a.VirtualAddress != b.VirtualAddress {
		return a.VirtualAddress < b.VirtualAddress
	}
	if a.VirtualSize != b.VirtualSize {
		return a.VirtualSize < b.VirtualSize
	}
	return string(a.Name[:]) < string(b.Name[:])
}

// HasOverlap reports whether any two sections overlap in raw (file) space
// (ignoring sections that contain only uninitialized data, i.e. BSS) or in
// virtual (memory) space. Both checks guard against an empty filtered
// slice independently — unlike the single top-level emptiness check in the
// original, which would panic taking the first element of an empty
// raw-entries slice whenever every section is BSS.
func (st *SectionTable) HasOverlap() bool {
	if len(st.Entries) == 0 {
		return false
	}

	raw := make([]SectionTableEntry, 0, len(st.Entries))
	for _, e := range st.Entries {
		if e.Characteristics&characteristicUninitializedData == 0 {
			raw = append(raw, e)
		}
	}
	if len(raw) > 0 {
		sortByRaw(raw)
		for i := 1; i < len(raw); i++ {
			prev, cur := raw[i-1], raw[i]
			if prev.RawDataPointer+prev.RawDataSize > cur.RawDataPointer {
				return true
			}
		}
	}

	virt := append([]SectionTableEntry(nil), st.Entries...)
	if len(virt) > 0 {
		sortByVirtual(virt)
		for i := 1; i < len(virt); i++ {
			prev, cur := virt[i-1], virt[i]
			if prev.VirtualAddress+prev.VirtualSize > cur.VirtualAddress {
				return true
			}
		}
	}

	return false
}

func sortByRaw(s []SectionTableEntry) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0; j-- {
			a, b := s[j-1], s[j]
			less := b.RawDataPointer < a.RawDataPointer ||
				(b.RawDataPointer == a.RawDataPointer && b.RawDataSize < a.RawDataSize)
			if less {
				s[j-1], s[j] = s[j], s[j-1]
			} else {
				break
			}
		}
	}
}

func sortByVirtual(s []SectionTableEntry) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0; j-- {
			a, b := s[j-1], s[j]
			less := b.VirtualAddress < a.VirtualAddress ||
				(b.VirtualAddress == a.VirtualAddress && b.VirtualSize < a.VirtualSize)
			if less {
				s[j-1], s[j] = s[j], s[j-1]
			} else {
				break
			}
		}
	}
}

// VirtualToRaw maps a virtual address (RVA) to a file offset by linearly
// scanning the section table.
func (st *SectionTable) VirtualToRaw(rva uint32) (uint32, bool) {
	for _, e := range st.Entries {
		if rva >= e.VirtualAddress && rva < e.VirtualAddress+e.VirtualSize {
			offset := rva - e.VirtualAddress
			if offset >= e.RawDataSize {
				return 0, false
			}
			return e.RawDataPointer + offset, true
		}
	}
	return 0, false
}

// RawToVirtual maps a file offset to a virtual address (RVA).
func (st *SectionTable) RawToVirtual(raw uint32) (uint32, bool) {
	for _, e := range st.Entries {
		if raw >= e.RawDataPointer && raw < e.RawDataPointer+e.RawDataSize {
			offset := raw - e.RawDataPointer
			if offset >= e.VirtualSize {
				return 0, false
			}
			return e.VirtualAddress + offset, true
		}
	}
	return 0, false
}

// File is a fully parsed PE image: its MZ header, COFF header, optional
// header, and section table.
type File struct {
	MZ *mz.Header

	MachineType         uint16
	SectionCount        uint16
	TimeDateStamp       uint32
	SymbolTablePointer  uint32
	SymbolTableCount    uint32
	OptionalHeaderSize  uint16
	Characteristics     uint16

	OptionalHeader *OptionalHeader
	Sections       SectionTable
}

// Read parses a complete PE file from r. The data-directory readers in
// export.go/resource.go likewise need only Read and Seek.
func Read(r io.ReadSeeker) (*File, error) {
	mzHeader, err := mz.Read(r)
	if err != nil {
		return nil, fmt.Errorf("pe: reading MZ header: %w", err)
	}

	peHeaderOffset, err := mz.ExtensionHeaderOffset(r)
	if err != nil {
		return nil, err
	}
	if _, err := r.Seek(int64(peHeaderOffset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("pe: seeking to PE header: %w", err)
	}

	var sig [4]byte
	if _, err := io.ReadFull(r, sig[:]); err != nil {
		return nil, fmt.Errorf("pe: reading signature: %w", err)
	}
	if sig != [4]byte{'P', 'E', 0, 0} {
		return nil, ErrBadSignature
	}

	var coffBuf [20]byte
	if _, err := io.ReadFull(r, coffBuf[:]); err != nil {
		return nil, fmt.Errorf("pe: reading COFF header: %w", err)
	}

	file := &File{
		MZ:                 mzHeader,
		MachineType:        binary.LittleEndian.Uint16(coffBuf[0:2]),
		SectionCount:       binary.LittleEndian.Uint16(coffBuf[2:4]),
		TimeDateStamp:      binary.LittleEndian.Uint32(coffBuf[4:8]),
		SymbolTablePointer: binary.LittleEndian.Uint32(coffBuf[8:12]),
		SymbolTableCount:   binary.LittleEndian.Uint32(coffBuf[12:16]),
		OptionalHeaderSize: binary.LittleEndian.Uint16(coffBuf[16:18]),
		Characteristics:    binary.LittleEndian.Uint16(coffBuf[18:20]),
	}

	optHdr, err := readOptionalHeader(r, file.OptionalHeaderSize)
	if err != nil {
		return nil, err
	}
	file.OptionalHeader = optHdr

	if _, err := r.Seek(int64(peHeaderOffset)+24+int64(file.OptionalHeaderSize), io.SeekStart); err != nil {
		return nil, fmt.Errorf("pe: seeking to section table: %w", err)
	}

	sections := make([]SectionTableEntry, file.SectionCount)
	var sectBuf [40]byte
	for i := range sections {
		if _, err := io.ReadFull(r, sectBuf[:]); err != nil {
			return nil, fmt.Errorf("pe: reading section header %d: %w", i, err)
		}
		copy(sections[i].Name[:], sectBuf[0:8])
		sections[i].VirtualSize = binary.LittleEndian.Uint32(sectBuf[8:12])
		sections[i].VirtualAddress = binary.LittleEndian.Uint32(sectBuf[12:16])
		sections[i].RawDataSize = binary.LittleEndian.Uint32(sectBuf[16:20])
		sections[i].RawDataPointer = binary.LittleEndian.Uint32(sectBuf[20:24])
		sections[i].RelocationsPointer = binary.LittleEndian.Uint32(sectBuf[24:28])
		sections[i].LineNumbersPointer = binary.LittleEndian.Uint32(sectBuf[28:32])
		sections[i].RelocationsCount = binary.LittleEndian.Uint16(sectBuf[32:34])
		sections[i].LineNumbersCount = binary.LittleEndian.Uint16(sectBuf[34:36])
		sections[i].Characteristics = binary.LittleEndian.Uint32(sectBuf[36:40])
	}
	file.Sections = SectionTable{Entries: sections}
	if optHdr != nil {
		file.Sections.FixMissingVirtualSizes(optHdr.SectionAlignment)
	}

	return file, nil
}

// readOptionalHeader reads either the PE32 or PE32+ optional header,
// including its trailing data-directory entries.
func readOptionalHeader(r io.Reader, size uint16) (*OptionalHeader, error) {
	if size < 2 {
		return nil, nil
	}

	var magicBuf [2]byte
	if _, err := io.ReadFull(r, magicBuf[:]); err != nil {
		return nil, fmt.Errorf("pe: reading optional header magic: %w", err)
	}
	magic := binary.LittleEndian.Uint16(magicBuf[:])

	var coffSize uint16
	var is64 bool
	switch magic {
	case MagicPE32:
		coffSize, is64 = 28, false
	case MagicPE32Plus:
		coffSize, is64 = 24, true
	default:
		return nil, fmt.Errorf("%w: %#04x", ErrUnknownOptionalMagic, magic)
	}
	if size < coffSize {
		return nil, fmt.Errorf("pe: optional header size %d too small for magic %#04x", size, magic)
	}

	coffBuf := make([]byte, coffSize-2)
	if _, err := io.ReadFull(r, coffBuf); err != nil {
		return nil, fmt.Errorf("pe: reading optional header standard fields: %w", err)
	}

	oh := &OptionalHeader{
		Magic:                   magic,
		MajorLinkerVersion:      coffBuf[0],
		MinorLinkerVersion:      coffBuf[1],
		SizeOfCode:              binary.LittleEndian.Uint32(coffBuf[2:6]),
		SizeOfInitializedData:   binary.LittleEndian.Uint32(coffBuf[6:10]),
		SizeOfUninitializedData: binary.LittleEndian.Uint32(coffBuf[10:14]),
		AddressOfEntryPoint:     binary.LittleEndian.Uint32(coffBuf[14:18]),
		BaseOfCode:              binary.LittleEndian.Uint32(coffBuf[18:22]),
	}
	if !is64 {
		oh.BaseOfData = binary.LittleEndian.Uint32(coffBuf[22:26])
	}

	var windowsSize, windowsRequirement uint16
	if is64 {
		windowsSize, windowsRequirement = 88, 112
	} else {
		windowsSize, windowsRequirement = 68, 96
	}
	if size < windowsRequirement {
		return oh, nil
	}

	winBuf := make([]byte, windowsSize)
	if _, err := io.ReadFull(r, winBuf); err != nil {
		return nil, fmt.Errorf("pe: reading optional header windows fields: %w", err)
	}

	i := 0
	if is64 {
		oh.ImageBase = binary.LittleEndian.Uint64(winBuf[i : i+8])
		i += 8
	} else {
		oh.ImageBase = uint64(binary.LittleEndian.Uint32(winBuf[i : i+4]))
		i += 4
	}
	oh.SectionAlignment = binary.LittleEndian.Uint32(winBuf[i : i+4])
	i += 4
	oh.FileAlignment = binary.LittleEndian.Uint32(winBuf[i : i+4])
	i += 4
	oh.MajorOSVersion = binary.LittleEndian.Uint16(winBuf[i : i+2])
	i += 2
	oh.MinorOSVersion = binary.LittleEndian.Uint16(winBuf[i : i+2])
	i += 2
	oh.MajorImageVersion = binary.LittleEndian.Uint16(winBuf[i : i+2])
	i += 2
	oh.MinorImageVersion = binary.LittleEndian.Uint16(winBuf[i : i+2])
	i += 2
	oh.MajorSubsystemVersion = binary.LittleEndian.Uint16(winBuf[i : i+2])
	i += 2
	oh.MinorSubsystemVersion = binary.LittleEndian.Uint16(winBuf[i : i+2])
	i += 2
	oh.Win32VersionValue = binary.LittleEndian.Uint32(winBuf[i : i+4])
	i += 4
	oh.SizeOfImage = binary.LittleEndian.Uint32(winBuf[i : i+4])
	i += 4
	oh.SizeOfHeaders = binary.LittleEndian.Uint32(winBuf[i : i+4])
	i += 4
	oh.CheckSum = binary.LittleEndian.Uint32(winBuf[i : i+4])
	i += 4
	oh.Subsystem = binary.LittleEndian.Uint16(winBuf[i : i+2])
	i += 2
	oh.DllCharacteristics = binary.LittleEndian.Uint16(winBuf[i : i+2])
	i += 2

	readWidth := func() uint64 {
		if is64 {
			v := binary.LittleEndian.Uint64(winBuf[i : i+8])
			i += 8
			return v
		}
		v := uint64(binary.LittleEndian.Uint32(winBuf[i : i+4]))
		i += 4
		return v
	}
	oh.SizeOfStackReserve = readWidth()
	oh.SizeOfStackCommit = readWidth()
	oh.SizeOfHeapReserve = readWidth()
	oh.SizeOfHeapCommit = readWidth()

	oh.LoaderFlags = binary.LittleEndian.Uint32(winBuf[i : i+4])
	i += 4
	dataDirCount := binary.LittleEndian.Uint32(winBuf[i : i+4])

	dataDirBytes := uint32(dataDirCount) * 8
	if uint32(windowsRequirement)+dataDirBytes > uint32(size) {
		return oh, nil
	}

	oh.DataDirectories = make([]DataDirectory, dataDirCount)
	var entryBuf [8]byte
	for idx := range oh.DataDirectories {
		if _, err := io.ReadFull(r, entryBuf[:]); err != nil {
			return nil, fmt.Errorf("pe: reading data directory %d: %w", idx, err)
		}
		oh.DataDirectories[idx] = DataDirectory{
			VirtualAddress: binary.LittleEndian.Uint32(entryBuf[0:4]),
			Size:           binary.LittleEndian.Uint32(entryBuf[4:8]),
		}
	}

	return oh, nil
}
