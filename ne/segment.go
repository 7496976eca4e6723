package ne

import (
	"encoding/binary"
	"fmt"
	"io"
)

// RelocationEntrySourceType is the raw source-type byte of a relocation
// record. NE defines several source encodings (byte/16-bit/pointer/offset
// variants); unrecognized values are kept verbatim rather than rejected.
type RelocationEntrySourceType uint8

// RelocationEntryTargetType is the low 3 bits of a relocation record's
// second byte.
type RelocationEntryTargetType uint8

const (
	TargetInternalReference   RelocationEntryTargetType = 0
	TargetImportOrdinal       RelocationEntryTargetType = 1
	TargetImportName          RelocationEntryTargetType = 2
	TargetOperatingSystemFixup RelocationEntryTargetType = 3
)

// RelocationEntryFlags is the high 5 bits of a relocation record's second
// byte.
type RelocationEntryFlags uint8

const RelocationFlagAdditive RelocationEntryFlags = 0x04

// RelocationTarget is the union of a relocation record's final 4 bytes,
// interpreted according to its target type.
type RelocationTarget struct {
	Kind RelocationEntryTargetType

	// InternalReference (fixed segment)
	SegmentNumber     uint8
	OffsetIntoSegment uint16

	// InternalReference (moveable segment, SegmentNumber == 0xFF)
	EntryTableIndex uint16

	// ImportName / ImportOrdinal
	ModuleName      string
	ProcedureName   string // ImportName only
	ProcedureOrdinal uint16 // ImportOrdinal only

	// OperatingSystemFixup
	FixupType uint16
}

// RelocationEntry is one fixup record in a segment's relocation table.
type RelocationEntry struct {
	SourceType       RelocationEntrySourceType
	Flags            RelocationEntryFlags
	SourceChainOffset uint16
	Target           RelocationTarget
}

// SegmentTableEntry is one NE segment descriptor, plus its relocation
// table if SegmentFlagHasRelocationInfo is set.
type SegmentTableEntry struct {
	LogicalSectorOffset  uint16
	SegmentLength        uint16
	Flags                SegmentFlags
	MinAllocationSizeBytes uint16
	RelocationEntries    []RelocationEntry
}

func readSegmentTableEntry(r io.ReadSeeker, alignmentShift uint16, moduleRefTableAbs, importedNamesTableAbs uint64) (SegmentTableEntry, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return SegmentTableEntry{}, err
	}

	entry := SegmentTableEntry{
		LogicalSectorOffset:    binary.LittleEndian.Uint16(buf[0:2]),
		SegmentLength:          binary.LittleEndian.Uint16(buf[2:4]),
		Flags:                  SegmentFlags(binary.LittleEndian.Uint16(buf[4:6])),
		MinAllocationSizeBytes: binary.LittleEndian.Uint16(buf[6:8]),
	}

	if !entry.Flags.Has(SegmentFlagHasRelocationInfo) {
		return entry, nil
	}

	segmentTablePos, err := seekTell(r)
	if err != nil {
		return SegmentTableEntry{}, err
	}

	sectorOffset := uint64(entry.LogicalSectorOffset) * (uint64(1) << alignmentShift)
	if _, err := r.Seek(int64(sectorOffset+uint64(entry.SegmentLength)), io.SeekStart); err != nil {
		return SegmentTableEntry{}, err
	}

	var countBuf [2]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return SegmentTableEntry{}, err
	}
	recordCount := binary.LittleEndian.Uint16(countBuf[:])

	records := make([]RelocationEntry, 0, recordCount)
	for i := uint16(0); i < recordCount; i++ {
		rec, err := readRelocationEntry(r, moduleRefTableAbs, importedNamesTableAbs)
		if err != nil {
			return SegmentTableEntry{}, fmt.Errorf("relocation record %d: %w", i, err)
		}
		records = append(records, rec)
	}
	entry.RelocationEntries = records

	if _, err := r.Seek(segmentTablePos, io.SeekStart); err != nil {
		return SegmentTableEntry{}, err
	}
	return entry, nil
}

func readRelocationEntry(r io.ReadSeeker, moduleRefTableAbs, importedNamesTableAbs uint64) (RelocationEntry, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return RelocationEntry{}, err
	}

	sourceType := RelocationEntrySourceType(buf[0])
	targetAndFlags := buf[1]
	sourceChainOffset := binary.LittleEndian.Uint16(buf[2:4])
	targetType := RelocationEntryTargetType(targetAndFlags & 0b0000_0111)
	flags := RelocationEntryFlags(targetAndFlags & 0b1111_1000)

	var target RelocationTarget
	target.Kind = targetType

	switch targetType {
	case TargetInternalReference:
		segmentNumber := buf[4]
		if segmentNumber == 0xFF {
			target.SegmentNumber = 0xFF
			target.EntryTableIndex = binary.LittleEndian.Uint16(buf[6:8])
		} else {
			target.SegmentNumber = segmentNumber
			target.OffsetIntoSegment = binary.LittleEndian.Uint16(buf[6:8])
		}

	case TargetImportName:
		moduleRefIndex := binary.LittleEndian.Uint16(buf[4:6]) - 1
		procNameOffset := binary.LittleEndian.Uint16(buf[6:8])

		position, err := seekTell(r)
		if err != nil {
			return RelocationEntry{}, err
		}
		moduleName, err := readImportedModuleName(r, moduleRefTableAbs, importedNamesTableAbs, moduleRefIndex)
		if err != nil {
			return RelocationEntry{}, err
		}
		procName, err := readLengthPrefixedStringAt(r, importedNamesTableAbs+uint64(procNameOffset))
		if err != nil {
			return RelocationEntry{}, err
		}
		if _, err := r.Seek(position, io.SeekStart); err != nil {
			return RelocationEntry{}, err
		}
		target.ModuleName = moduleName
		target.ProcedureName = procName

	case TargetImportOrdinal:
		moduleRefIndex := binary.LittleEndian.Uint16(buf[4:6]) - 1
		procOrdinal := binary.LittleEndian.Uint16(buf[6:8])

		position, err := seekTell(r)
		if err != nil {
			return RelocationEntry{}, err
		}
		moduleName, err := readImportedModuleName(r, moduleRefTableAbs, importedNamesTableAbs, moduleRefIndex)
		if err != nil {
			return RelocationEntry{}, err
		}
		if _, err := r.Seek(position, io.SeekStart); err != nil {
			return RelocationEntry{}, err
		}
		target.ModuleName = moduleName
		target.ProcedureOrdinal = procOrdinal

	case TargetOperatingSystemFixup:
		target.FixupType = binary.LittleEndian.Uint16(buf[4:6])

	default:
		return RelocationEntry{}, fmt.Errorf("ne: unrecognized relocation target type %d", targetType)
	}

	return RelocationEntry{
		SourceType:        sourceType,
		Flags:             flags,
		SourceChainOffset: sourceChainOffset,
		Target:            target,
	}, nil
}

// readImportedModuleName double-dereferences through the module-reference
// table (a table of u16 offsets into the imported-names table) to the
// module's length-prefixed name.
func readImportedModuleName(r io.ReadSeeker, moduleRefTableAbs, importedNamesTableAbs uint64, moduleRefIndex uint16) (string, error) {
	if _, err := r.Seek(int64(moduleRefTableAbs+uint64(moduleRefIndex)*2), io.SeekStart); err != nil {
		return "", err
	}
	var offBuf [2]byte
	if _, err := io.ReadFull(r, offBuf[:]); err != nil {
		return "", err
	}
	moduleNameOffset := binary.LittleEndian.Uint16(offBuf[:])
	return readLengthPrefixedStringAt(r, importedNamesTableAbs+uint64(moduleNameOffset))
}

func readLengthPrefixedStringAt(r io.ReadSeeker, absOffset uint64) (string, error) {
	if _, err := r.Seek(int64(absOffset), io.SeekStart); err != nil {
		return "", err
	}
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
