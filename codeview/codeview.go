// Package codeview parses CodeView debugging information: the subsection
// directory that PE/NE debug data points at, and the module, symbol,
// source-line, library, and type subsections it indexes.
//
// Structures are derived from the CodeView format documented at
// https://www.os2site.com/sw/dev/openwatcom/docs/codeview.pdf.
package codeview

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var (
	ErrBadSignature         = errors.New("codeview: signature does not start with \"NB\"")
	ErrWrongHeaderLength    = errors.New("codeview: subsection directory header length mismatch")
	ErrWrongEntryLength     = errors.New("codeview: subsection directory entry length is not 12")
)

// DebugInfo is a complete parsed CodeView debug-information stream.
type DebugInfo struct {
	Signature                  [4]byte
	DirectoryOffset             uint32
	SubsectionDirectoryHeader   SubsectionDirectoryHeader
	SubsectionDirectoryEntries  []SubsectionDirectoryEntry
}

// Read parses a CodeView stream starting at the reader's current position.
func Read(r io.ReadSeeker) (*DebugInfo, error) {
	base, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("codeview: locating stream start: %w", err)
	}

	var headerBuf [8]byte
	if _, err := io.ReadFull(r, headerBuf[:]); err != nil {
		return nil, fmt.Errorf("codeview: reading signature: %w", err)
	}

	var sig [4]byte
	copy(sig[:], headerBuf[0:4])
	if sig[0] != 'N' || sig[1] != 'B' {
		return nil, ErrBadSignature
	}
	directoryOffset := binary.LittleEndian.Uint32(headerBuf[4:8])

	if _, err := r.Seek(base+int64(directoryOffset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("codeview: seeking to subsection directory: %w", err)
	}

	dirHeader, err := readSubsectionDirectoryHeader(r)
	if err != nil {
		return nil, err
	}

	metadata := make([]subsectionDirectoryEntryMetadata, 0, dirHeader.EntryCount)
	for i := uint32(0); i < dirHeader.EntryCount; i++ {
		m, err := readSubsectionDirectoryEntryMetadata(r)
		if err != nil {
			return nil, fmt.Errorf("codeview: reading subsection directory entry %d: %w", i, err)
		}
		metadata = append(metadata, m)
	}

	entries := make([]SubsectionDirectoryEntry, 0, len(metadata))
	for _, m := range metadata {
		if _, err := r.Seek(base+int64(m.Offset), io.SeekStart); err != nil {
			return nil, fmt.Errorf("codeview: seeking to subsection %s: %w", m.SubsectionType, err)
		}
		raw := make([]byte, m.SizeBytes)
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, fmt.Errorf("codeview: reading subsection %s data: %w", m.SubsectionType, err)
		}

		data, err := decodeSubsection(m.SubsectionType, raw)
		if err != nil {
			return nil, fmt.Errorf("codeview: decoding subsection %s: %w", m.SubsectionType, err)
		}

		entries = append(entries, SubsectionDirectoryEntry{
			SubsectionType: m.SubsectionType,
			ModuleIndex:    m.ModuleIndex,
			Offset:         m.Offset,
			SizeBytes:      m.SizeBytes,
			Data:           data,
		})
	}

	return &DebugInfo{
		Signature:                 sig,
		DirectoryOffset:            directoryOffset,
		SubsectionDirectoryHeader:  dirHeader,
		SubsectionDirectoryEntries: entries,
	}, nil
}

// SubsectionDirectoryHeader is the 16-byte header preceding the directory's
// entry array.
type SubsectionDirectoryHeader struct {
	HeaderLength        uint16
	EntryLength         uint16
	EntryCount          uint32
	NextDirectoryOffset uint32
	Flags               uint32
}

func readSubsectionDirectoryHeader(r io.Reader) (SubsectionDirectoryHeader, error) {
	var buf [16]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return SubsectionDirectoryHeader{}, fmt.Errorf("codeview: reading subsection directory header: %w", err)
	}

	headerLength := binary.LittleEndian.Uint16(buf[0:2])
	if int(headerLength) != len(buf) {
		return SubsectionDirectoryHeader{}, fmt.Errorf("%w: announced %d, expected %d", ErrWrongHeaderLength, headerLength, len(buf))
	}
	entryLength := binary.LittleEndian.Uint16(buf[2:4])
	if entryLength != 12 {
		return SubsectionDirectoryHeader{}, fmt.Errorf("%w: announced %d", ErrWrongEntryLength, entryLength)
	}

	// Each field occupies its own 4 bytes — unlike a known-buggy reading that
	// took entry_count, next_directory_offset, and flags all from the same
	// bytes [4:8].
	return SubsectionDirectoryHeader{
		HeaderLength:        headerLength,
		EntryLength:         entryLength,
		EntryCount:          binary.LittleEndian.Uint32(buf[4:8]),
		NextDirectoryOffset: binary.LittleEndian.Uint32(buf[8:12]),
		Flags:               binary.LittleEndian.Uint32(buf[12:16]),
	}, nil
}

// SubsectionType identifies the kind of data a directory entry points at.
type SubsectionType uint16

const (
	SubsectionModule              SubsectionType = 0x120
	SubsectionTypes                SubsectionType = 0x121
	SubsectionPublicSymbolsLegacy  SubsectionType = 0x122
	SubsectionPublicSymbols        SubsectionType = 0x123
	SubsectionSymbols              SubsectionType = 0x124
	SubsectionAlignSymbols         SubsectionType = 0x125
	SubsectionSourceLineSegment    SubsectionType = 0x126
	SubsectionSourceLineModule     SubsectionType = 0x127
	SubsectionLibraries            SubsectionType = 0x128
	SubsectionGlobalSymbols        SubsectionType = 0x129
	SubsectionGlobalPublicSymbols  SubsectionType = 0x12A
	SubsectionGlobalTypes          SubsectionType = 0x12B
	SubsectionMakePCode            SubsectionType = 0x12C
	SubsectionSegmentMap           SubsectionType = 0x12D
	SubsectionSegmentName          SubsectionType = 0x12E
	SubsectionPreCompile           SubsectionType = 0x12F
	SubsectionFileIndex            SubsectionType = 0x133
	SubsectionStaticSymbols        SubsectionType = 0x134
)

func (t SubsectionType) String() string {
	switch t {
	case SubsectionModule:
		return "Module"
	case SubsectionTypes:
		return "Types"
	case SubsectionPublicSymbolsLegacy:
		return "PublicSymbolsLegacy"
	case SubsectionPublicSymbols:
		return "PublicSymbols"
	case SubsectionSymbols:
		return "Symbols"
	case SubsectionAlignSymbols:
		return "AlignSymbols"
	case SubsectionSourceLineSegment:
		return "SourceLineSegment"
	case SubsectionSourceLineModule:
		return "SourceLineModule"
	case SubsectionLibraries:
		return "Libraries"
	case SubsectionGlobalSymbols:
		return "GlobalSymbols"
	case SubsectionGlobalPublicSymbols:
		return "GlobalPublicSymbols"
	case SubsectionGlobalTypes:
		return "GlobalTypes"
	case SubsectionMakePCode:
		return "MakePCode"
	case SubsectionSegmentMap:
		return "SegmentMap"
	case SubsectionSegmentName:
		return "SegmentName"
	case SubsectionPreCompile:
		return "PreCompile"
	case SubsectionFileIndex:
		return "FileIndex"
	case SubsectionStaticSymbols:
		return "StaticSymbols"
	default:
		return fmt.Sprintf("Other(%#04x)", uint16(t))
	}
}

type subsectionDirectoryEntryMetadata struct {
	SubsectionType SubsectionType
	ModuleIndex    uint16
	Offset         uint32
	SizeBytes      uint32
}

func readSubsectionDirectoryEntryMetadata(r io.Reader) (subsectionDirectoryEntryMetadata, error) {
	var buf [12]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return subsectionDirectoryEntryMetadata{}, err
	}
	return subsectionDirectoryEntryMetadata{
		SubsectionType: SubsectionType(binary.LittleEndian.Uint16(buf[0:2])),
		ModuleIndex:    binary.LittleEndian.Uint16(buf[2:4]),
		Offset:         binary.LittleEndian.Uint32(buf[4:8]),
		SizeBytes:      binary.LittleEndian.Uint32(buf[8:12]),
	}, nil
}

// SubsectionDirectoryEntry is one decoded directory entry: its metadata
// plus the subsection-specific payload (or raw bytes, for kinds this
// package doesn't decode structurally).
type SubsectionDirectoryEntry struct {
	SubsectionType SubsectionType
	ModuleIndex    uint16
	Offset         uint32
	SizeBytes      uint32
	Data           any
}

func decodeSubsection(t SubsectionType, raw []byte) (any, error) {
	r := bytes.NewReader(raw)
	switch t {
	case SubsectionModule:
		return readModuleSubsection(r)
	case SubsectionSymbols, SubsectionAlignSymbols:
		return readSymbolsSubsection(r)
	case SubsectionSourceLineModule:
		return readSourceLineModuleSubsection(r)
	case SubsectionLibraries:
		return readLibrariesSubsection(r)
	case SubsectionGlobalSymbols, SubsectionGlobalPublicSymbols, SubsectionStaticSymbols:
		return readGlobalSymbolsSubsection(r)
	case SubsectionGlobalTypes:
		return readGlobalTypesSubsection(r)
	default:
		return raw, nil
	}
}

// readPascalByteString reads a 1-byte length prefix followed by that many
// raw bytes, the encoding used for module/library/object names throughout
// CodeView.
func readPascalByteString(r io.Reader) (string, error) {
	var lenBuf [1]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", err
	}
	buf := make([]byte, lenBuf[0])
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
