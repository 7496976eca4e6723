// Package ne parses the NE (New Executable, also called Segmented
// Executable) format introduced with Windows 1.0 and supplanted by PE in
// Windows NT 3.1 and Windows 95.
package ne

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/laenix/binms/mz"
)

var (
	ErrBadSignature    = errors.New("ne: missing \"NE\" signature")
	ErrNotAnNEFile     = errors.New("ne: MZ relocation table offset is not 0x0040")
)

const segmentedHeaderOffsetOffset = 0x3C

// ExeFlags is the NE header's module-type flags field.
type ExeFlags uint16

const (
	ExeFlagSingleData   ExeFlags = 0x0001
	ExeFlagMultipleData ExeFlags = 0x0002
	ExeFlagLinkErrors   ExeFlags = 0x2000
	ExeFlagLibraryModule ExeFlags = 0x8000
)

func (f ExeFlags) Has(bit ExeFlags) bool { return f&bit != 0 }

// SegmentFlags is a segment-table entry's flags field.
type SegmentFlags uint16

const (
	SegmentFlagData               SegmentFlags = 0x0001
	SegmentFlagMoveable           SegmentFlags = 0x0010
	SegmentFlagPreload            SegmentFlags = 0x0040
	SegmentFlagHasRelocationInfo  SegmentFlags = 0x0100
	SegmentFlagDiscard            SegmentFlags = 0xF000
)

func (f SegmentFlags) Has(bit SegmentFlags) bool { return f&bit != 0 }

// ResourceFlags is a resource entry's flags field.
type ResourceFlags uint16

const (
	ResourceFlagMoveable ResourceFlags = 0x0010
	ResourceFlagPure     ResourceFlags = 0x0020
	ResourceFlagPreload  ResourceFlags = 0x0040
)

// SegmentEntryFlags is an entry-table (fixed or moveable) entry's flags byte.
type SegmentEntryFlags uint8

const (
	SegmentEntryFlagExported   SegmentEntryFlags = 0x01
	SegmentEntryFlagSharedData SegmentEntryFlags = 0x02
)

// SegmentAndOffset is a 16:16 real-mode segment:offset pair, used for the
// header's CS:IP and SS:SP fields.
type SegmentAndOffset struct {
	Offset        uint16
	SegmentNumber uint16
}

// File is a fully parsed NE executable.
type File struct {
	MZ *mz.Header

	LinkerVersion  uint8
	LinkerRevision uint8
	CRC32          uint32
	Flags          ExeFlags
	AutoDataSegmentNumber uint16
	InitialHeapSize       uint16
	InitialStackSize      uint16
	CSIP                  SegmentAndOffset
	SSSP                  SegmentAndOffset
	LogicalSectorAlignmentShiftCount uint16
	ExecutableType                   uint8
	Reserved                         [9]byte

	SegmentTable          []SegmentTableEntry
	ResourceTable         ResourceTable
	ResidentNameTable     []NameTableEntry
	EntryTable            []EntryBundle
	NonResidentNameTable  []NameTableEntry
}

// Read parses a complete NE file from r.
func Read(r io.ReadSeeker) (*File, error) {
	mzHeader, err := mz.Read(r)
	if err != nil {
		return nil, fmt.Errorf("ne: reading MZ header: %w", err)
	}
	if mzHeader.RelocationTableOffset != 0x0040 {
		return nil, ErrNotAnNEFile
	}

	if _, err := r.Seek(segmentedHeaderOffsetOffset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("ne: seeking to segmented header offset field: %w", err)
	}
	var offBuf [4]byte
	if _, err := io.ReadFull(r, offBuf[:]); err != nil {
		return nil, fmt.Errorf("ne: reading segmented header offset: %w", err)
	}
	neHeaderOffset := uint64(binary.LittleEndian.Uint32(offBuf[:]))

	if _, err := r.Seek(int64(neHeaderOffset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("ne: seeking to NE header: %w", err)
	}
	var sig [2]byte
	if _, err := io.ReadFull(r, sig[:]); err != nil {
		return nil, fmt.Errorf("ne: reading signature: %w", err)
	}
	if sig != [2]byte{'N', 'E'} {
		return nil, ErrBadSignature
	}

	var hdr [62]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("ne: reading header: %w", err)
	}

	file := &File{
		MZ:                    mzHeader,
		LinkerVersion:         hdr[0],
		LinkerRevision:        hdr[1],
		CRC32:                 binary.LittleEndian.Uint32(hdr[6:10]),
		Flags:                 ExeFlags(binary.LittleEndian.Uint16(hdr[10:12])),
		AutoDataSegmentNumber: binary.LittleEndian.Uint16(hdr[12:14]),
		InitialHeapSize:       binary.LittleEndian.Uint16(hdr[14:16]),
		InitialStackSize:      binary.LittleEndian.Uint16(hdr[16:18]),
		CSIP: SegmentAndOffset{
			Offset:        binary.LittleEndian.Uint16(hdr[18:20]),
			SegmentNumber: binary.LittleEndian.Uint16(hdr[20:22]),
		},
		SSSP: SegmentAndOffset{
			Offset:        binary.LittleEndian.Uint16(hdr[22:24]),
			SegmentNumber: binary.LittleEndian.Uint16(hdr[24:26]),
		},
		LogicalSectorAlignmentShiftCount: binary.LittleEndian.Uint16(hdr[48:50]),
		ExecutableType:                   hdr[52],
	}
	copy(file.Reserved[:], hdr[53:62])

	entryTableOffset := binary.LittleEndian.Uint16(hdr[2:4])
	segmentTableEntries := binary.LittleEndian.Uint16(hdr[26:28])
	nonResidentNameTableEntries := binary.LittleEndian.Uint16(hdr[30:32])
	segmentTableOffset := binary.LittleEndian.Uint16(hdr[32:34])
	resourceTableOffset := binary.LittleEndian.Uint16(hdr[34:36])
	residentNameTableOffset := binary.LittleEndian.Uint16(hdr[36:38])
	moduleReferenceTableOffset := binary.LittleEndian.Uint16(hdr[38:40])
	importedNamesTableOffset := binary.LittleEndian.Uint16(hdr[40:42])
	nonResidentNameTableOffset := binary.LittleEndian.Uint32(hdr[42:46])

	moduleRefTableAbs := neHeaderOffset + uint64(moduleReferenceTableOffset)
	importedNamesTableAbs := neHeaderOffset + uint64(importedNamesTableOffset)

	if _, err := r.Seek(int64(neHeaderOffset)+int64(segmentTableOffset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("ne: seeking to segment table: %w", err)
	}
	file.SegmentTable = make([]SegmentTableEntry, 0, segmentTableEntries)
	for i := uint16(0); i < segmentTableEntries; i++ {
		entry, err := readSegmentTableEntry(r, file.LogicalSectorAlignmentShiftCount, moduleRefTableAbs, importedNamesTableAbs)
		if err != nil {
			return nil, fmt.Errorf("ne: reading segment table entry %d: %w", i, err)
		}
		file.SegmentTable = append(file.SegmentTable, entry)
	}

	if resourceTableOffset != residentNameTableOffset {
		if _, err := r.Seek(int64(neHeaderOffset)+int64(resourceTableOffset), io.SeekStart); err != nil {
			return nil, fmt.Errorf("ne: seeking to resource table: %w", err)
		}
		rt, err := readResourceTable(r)
		if err != nil {
			return nil, fmt.Errorf("ne: reading resource table: %w", err)
		}
		file.ResourceTable = rt
	}

	if _, err := r.Seek(int64(neHeaderOffset)+int64(residentNameTableOffset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("ne: seeking to resident name table: %w", err)
	}
	residentNames, err := readNameTable(r, -1)
	if err != nil {
		return nil, fmt.Errorf("ne: reading resident name table: %w", err)
	}
	file.ResidentNameTable = residentNames

	if _, err := r.Seek(int64(neHeaderOffset)+int64(entryTableOffset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("ne: seeking to entry table: %w", err)
	}
	entries, err := readEntryTable(r)
	if err != nil {
		return nil, fmt.Errorf("ne: reading entry table: %w", err)
	}
	file.EntryTable = entries

	if _, err := r.Seek(int64(nonResidentNameTableOffset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("ne: seeking to non-resident name table: %w", err)
	}
	nonResidentNames, err := readNameTable(r, int(nonResidentNameTableEntries))
	if err != nil {
		return nil, fmt.Errorf("ne: reading non-resident name table: %w", err)
	}
	file.NonResidentNameTable = nonResidentNames

	return file, nil
}

func seekTell(r io.Seeker) (int64, error) { return r.Seek(0, io.SeekCurrent) }
