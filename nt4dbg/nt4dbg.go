// Package nt4dbg decodes the standalone .dbg symbol file format used
// alongside Windows NT 4-era PE images, identified by a 0x4944 ("ID")
// signature.
package nt4dbg

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/laenix/binms/pe"
)

const wantSignature = 0x4944

// DebugType identifies the contents of one DebugDirectory entry.
type DebugType uint32

const (
	DebugTypeUnknown                    DebugType = 0
	DebugTypeCoff                       DebugType = 1
	DebugTypeCodeView                   DebugType = 2
	DebugTypeFramePointerOmission       DebugType = 3
	DebugTypeDbgFileLocation            DebugType = 4
	DebugTypeException                  DebugType = 5
	DebugTypeFixup                      DebugType = 6
	DebugTypeOmapToSource               DebugType = 7
	DebugTypeOmapFromSource             DebugType = 8
	DebugTypeBorland                    DebugType = 9
	DebugTypeClsid                      DebugType = 11
	DebugTypeReproducibility            DebugType = 16
	DebugTypeEmbeddedData               DebugType = 17
	DebugTypeSymbolFileHash             DebugType = 19
	DebugTypeExtendedDllCharacteristics DebugType = 20
)

func (t DebugType) String() string {
	switch t {
	case DebugTypeUnknown:
		return "Unknown"
	case DebugTypeCoff:
		return "Coff"
	case DebugTypeCodeView:
		return "CodeView"
	case DebugTypeFramePointerOmission:
		return "FramePointerOmission"
	case DebugTypeDbgFileLocation:
		return "DbgFileLocation"
	case DebugTypeException:
		return "Exception"
	case DebugTypeFixup:
		return "Fixup"
	case DebugTypeOmapToSource:
		return "OmapToSource"
	case DebugTypeOmapFromSource:
		return "OmapFromSource"
	case DebugTypeBorland:
		return "Borland"
	case DebugTypeClsid:
		return "Clsid"
	case DebugTypeReproducibility:
		return "Reproducibility"
	case DebugTypeEmbeddedData:
		return "EmbeddedData"
	case DebugTypeSymbolFileHash:
		return "SymbolFileHash"
	case DebugTypeExtendedDllCharacteristics:
		return "ExtendedDllCharacteristics"
	default:
		return fmt.Sprintf("Other(%d)", uint32(t))
	}
}

// Header is the 48-byte fixed .dbg file header.
type Header struct {
	Signature              uint16
	Flags                  uint16
	Machine                uint16
	Characteristics        uint16
	TimeDateStamp          uint32
	ImageChecksum          uint32
	ImageBase              uint32
	ImageSize              uint32
	SectionCount           uint32
	ExportedNamesTableSize uint32
	DebugDirectoriesSize   uint32
	Unknown                [12]byte
}

func readHeader(r io.Reader) (Header, error) {
	var buf [48]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, err
	}
	h := Header{
		Signature:              binary.LittleEndian.Uint16(buf[0:2]),
		Flags:                  binary.LittleEndian.Uint16(buf[2:4]),
		Machine:                binary.LittleEndian.Uint16(buf[4:6]),
		Characteristics:        binary.LittleEndian.Uint16(buf[6:8]),
		TimeDateStamp:          binary.LittleEndian.Uint32(buf[8:12]),
		ImageChecksum:          binary.LittleEndian.Uint32(buf[12:16]),
		ImageBase:              binary.LittleEndian.Uint32(buf[16:20]),
		ImageSize:              binary.LittleEndian.Uint32(buf[20:24]),
		SectionCount:           binary.LittleEndian.Uint32(buf[24:28]),
		ExportedNamesTableSize: binary.LittleEndian.Uint32(buf[28:32]),
		DebugDirectoriesSize:   binary.LittleEndian.Uint32(buf[32:36]),
	}
	copy(h.Unknown[:], buf[36:48])
	if h.Signature != wantSignature {
		return Header{}, fmt.Errorf("nt4dbg: signature %#06x, want %#06x", h.Signature, wantSignature)
	}
	return h, nil
}

// DebugDirectory is one 28-byte debug directory entry.
type DebugDirectory struct {
	Characteristics uint32
	TimeDateStamp   uint32
	MajorVersion    uint16
	MinorVersion    uint16
	Kind            DebugType
	Size            uint32
	VirtualAddress  uint32
	RawDataPointer  uint32
}

func readDebugDirectory(r io.Reader) (DebugDirectory, error) {
	var buf [28]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return DebugDirectory{}, err
	}
	return DebugDirectory{
		Characteristics: binary.LittleEndian.Uint32(buf[0:4]),
		TimeDateStamp:   binary.LittleEndian.Uint32(buf[4:8]),
		MajorVersion:    binary.LittleEndian.Uint16(buf[8:10]),
		MinorVersion:    binary.LittleEndian.Uint16(buf[10:12]),
		Kind:            DebugType(binary.LittleEndian.Uint32(buf[12:16])),
		Size:            binary.LittleEndian.Uint32(buf[16:20]),
		VirtualAddress:  binary.LittleEndian.Uint32(buf[20:24]),
		RawDataPointer:  binary.LittleEndian.Uint32(buf[24:28]),
	}, nil
}

func readSectionTableEntry(r io.Reader) (pe.SectionTableEntry, error) {
	var buf [40]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return pe.SectionTableEntry{}, err
	}
	var e pe.SectionTableEntry
	copy(e.Name[:], buf[0:8])
	e.VirtualSize = binary.LittleEndian.Uint32(buf[8:12])
	e.VirtualAddress = binary.LittleEndian.Uint32(buf[12:16])
	e.RawDataSize = binary.LittleEndian.Uint32(buf[16:20])
	e.RawDataPointer = binary.LittleEndian.Uint32(buf[20:24])
	e.RelocationsPointer = binary.LittleEndian.Uint32(buf[24:28])
	e.LineNumbersPointer = binary.LittleEndian.Uint32(buf[28:32])
	e.RelocationsCount = binary.LittleEndian.Uint16(buf[32:34])
	e.LineNumbersCount = binary.LittleEndian.Uint16(buf[34:36])
	e.Characteristics = binary.LittleEndian.Uint32(buf[36:40])
	return e, nil
}

// File is a fully decoded standalone .dbg symbol file.
type File struct {
	Header          Header
	Sections        pe.SectionTable
	ExportedNames   [][]byte
	DebugDirectories []DebugDirectory
}

// Read parses a .dbg file from r, which reuses the PE section-table
// layout verbatim (the format was built to sit alongside stripped PE
// images and mirrors their section table byte for byte).
func Read(r io.Reader) (*File, error) {
	header, err := readHeader(r)
	if err != nil {
		return nil, fmt.Errorf("nt4dbg: reading header: %w", err)
	}

	sections := make([]pe.SectionTableEntry, header.SectionCount)
	for i := range sections {
		sections[i], err = readSectionTableEntry(r)
		if err != nil {
			return nil, fmt.Errorf("nt4dbg: reading section %d: %w", i, err)
		}
	}

	exportedNamesBuf := make([]byte, header.ExportedNamesTableSize)
	if _, err := io.ReadFull(r, exportedNamesBuf); err != nil {
		return nil, fmt.Errorf("nt4dbg: reading exported-names table: %w", err)
	}
	for len(exportedNamesBuf) > 0 && exportedNamesBuf[len(exportedNamesBuf)-1] == 0 {
		exportedNamesBuf = exportedNamesBuf[:len(exportedNamesBuf)-1]
	}
	var exportedNames [][]byte
	start := 0
	for i, b := range exportedNamesBuf {
		if b == 0 {
			exportedNames = append(exportedNames, append([]byte(nil), exportedNamesBuf[start:i]...))
			start = i + 1
		}
	}
	if start <= len(exportedNamesBuf) {
		exportedNames = append(exportedNames, append([]byte(nil), exportedNamesBuf[start:]...))
	}

	debugDirectories := make([]DebugDirectory, header.DebugDirectoriesSize)
	for i := range debugDirectories {
		debugDirectories[i], err = readDebugDirectory(r)
		if err != nil {
			return nil, fmt.Errorf("nt4dbg: reading debug directory %d: %w", i, err)
		}
	}

	return &File{
		Header:           header,
		Sections:         pe.SectionTable{Entries: sections},
		ExportedNames:    exportedNames,
		DebugDirectories: debugDirectories,
	}, nil
}
