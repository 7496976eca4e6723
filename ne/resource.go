package ne

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ResourceID is a resource type or instance identifier: either a numeric
// value (top bit of the raw u16 set) or an offset-encoded name (top bit
// clear) resolved against the resource table's own start position.
type ResourceID struct {
	IsNumbered bool
	Number     uint16
	Name       string
}

func (id ResourceID) String() string {
	if id.IsNumbered {
		return fmt.Sprintf("#%d", id.Number)
	}
	return id.Name
}

func readResourceID(r io.ReadSeeker, value uint16, resourceTablePos int64) (ResourceID, error) {
	if value&0x8000 != 0 {
		return ResourceID{IsNumbered: true, Number: value}, nil
	}

	returnHere, err := seekTell(r)
	if err != nil {
		return ResourceID{}, err
	}
	if _, err := r.Seek(resourceTablePos+int64(value), io.SeekStart); err != nil {
		return ResourceID{}, err
	}
	var lenBuf [1]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return ResourceID{}, err
	}
	buf := make([]byte, lenBuf[0])
	if _, err := io.ReadFull(r, buf); err != nil {
		return ResourceID{}, err
	}
	if _, err := r.Seek(returnHere, io.SeekStart); err != nil {
		return ResourceID{}, err
	}
	return ResourceID{Name: string(buf)}, nil
}

// Resource is one resource instance: its location/size (in alignment
// units), flags, id, and the data itself.
type Resource struct {
	OffsetUnits uint16
	LengthUnits uint16
	Flags       ResourceFlags
	ID          ResourceID
	Reserved    uint32
	Data        []byte
}

// ResourceTypeGroup is all resources sharing one type id.
type ResourceTypeGroup struct {
	TypeID    ResourceID
	Reserved  uint32
	Resources map[string]Resource // keyed by ResourceID.String()
}

// ResourceTable is the NE resource directory: an alignment shift and a set
// of type groups, each holding its own resources.
type ResourceTable struct {
	AlignmentShiftCount uint16
	Types               map[string]ResourceTypeGroup // keyed by ResourceID.String()
}

func readResourceTable(r io.ReadSeeker) (ResourceTable, error) {
	resourceTablePos, err := seekTell(r)
	if err != nil {
		return ResourceTable{}, err
	}

	var shiftBuf [2]byte
	if _, err := io.ReadFull(r, shiftBuf[:]); err != nil {
		return ResourceTable{}, err
	}
	alignmentShift := binary.LittleEndian.Uint16(shiftBuf[:])

	table := ResourceTable{
		AlignmentShiftCount: alignmentShift,
		Types:               make(map[string]ResourceTypeGroup),
	}

	for {
		var typeIDBuf [2]byte
		if _, err := io.ReadFull(r, typeIDBuf[:]); err != nil {
			return ResourceTable{}, err
		}
		typeIDValue := binary.LittleEndian.Uint16(typeIDBuf[:])
		if typeIDValue == 0 {
			break
		}
		typeID, err := readResourceID(r, typeIDValue, resourceTablePos)
		if err != nil {
			return ResourceTable{}, err
		}

		var countReservedBuf [6]byte
		if _, err := io.ReadFull(r, countReservedBuf[:]); err != nil {
			return ResourceTable{}, err
		}
		count := binary.LittleEndian.Uint16(countReservedBuf[0:2])
		reserved := binary.LittleEndian.Uint32(countReservedBuf[2:6])

		group := ResourceTypeGroup{TypeID: typeID, Reserved: reserved, Resources: make(map[string]Resource, count)}
		for i := uint16(0); i < count; i++ {
			res, err := readResourceEntry(r, alignmentShift, resourceTablePos)
			if err != nil {
				return ResourceTable{}, fmt.Errorf("resource %d of type %s: %w", i, typeID, err)
			}
			group.Resources[res.ID.String()] = res
		}
		table.Types[typeID.String()] = group
	}

	return table, nil
}

func readResourceEntry(r io.ReadSeeker, alignmentShift uint16, resourceTablePos int64) (Resource, error) {
	var buf [12]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Resource{}, err
	}

	offsetUnits := binary.LittleEndian.Uint16(buf[0:2])
	lengthUnits := binary.LittleEndian.Uint16(buf[2:4])
	flags := ResourceFlags(binary.LittleEndian.Uint16(buf[4:6]))
	idValue := binary.LittleEndian.Uint16(buf[6:8])
	reserved := binary.LittleEndian.Uint32(buf[8:12])

	fileOffsetBytes := uint64(offsetUnits) * (uint64(1) << alignmentShift)
	lengthBytes := uint64(lengthUnits) * (uint64(1) << alignmentShift)

	id, err := readResourceID(r, idValue, resourceTablePos)
	if err != nil {
		return Resource{}, err
	}

	location, err := seekTell(r)
	if err != nil {
		return Resource{}, err
	}
	if _, err := r.Seek(int64(fileOffsetBytes), io.SeekStart); err != nil {
		return Resource{}, err
	}
	data := make([]byte, lengthBytes)
	if _, err := io.ReadFull(r, data); err != nil {
		return Resource{}, err
	}
	if _, err := r.Seek(location, io.SeekStart); err != nil {
		return Resource{}, err
	}

	return Resource{
		OffsetUnits: offsetUnits,
		LengthUnits: lengthUnits,
		Flags:       flags,
		ID:          id,
		Reserved:    reserved,
		Data:        data,
	}, nil
}

// NameTableEntry is one resident- or non-resident-name-table record: a
// length-prefixed name plus its ordinal.
type NameTableEntry struct {
	Name           string
	OrdinalNumber  uint16
}

// readNameTable reads entries until a zero-length entry (when maxEntries <
// 0, the resident-table convention) or until maxEntries have been read
// (the non-resident-table convention, which carries its own count instead
// of a sentinel).
func readNameTable(r io.Reader, maxEntries int) ([]NameTableEntry, error) {
	var table []NameTableEntry
	for maxEntries < 0 || len(table) < maxEntries {
		var lenBuf [1]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return nil, err
		}
		if lenBuf[0] == 0 {
			break
		}
		name := make([]byte, lenBuf[0])
		if _, err := io.ReadFull(r, name); err != nil {
			return nil, err
		}
		var ordBuf [2]byte
		if _, err := io.ReadFull(r, ordBuf[:]); err != nil {
			return nil, err
		}
		table = append(table, NameTableEntry{
			Name:          string(name),
			OrdinalNumber: binary.LittleEndian.Uint16(ordBuf[:]),
		})
	}
	return table, nil
}

// FixedSegmentEntry is one 3-byte entry-table record for a fixed segment.
type FixedSegmentEntry struct {
	Flags             SegmentEntryFlags
	EntryPointOffset  uint16
}

// MoveableSegmentEntry is one 6-byte entry-table record for a moveable
// segment (segment indicator 0xFF).
type MoveableSegmentEntry struct {
	Flags            SegmentEntryFlags
	Int3Fh           [2]byte
	SegmentNumber    uint8
	EntryPointOffset uint16
}

// EntryBundleKind discriminates the three entry-bundle shapes.
type EntryBundleKind int

const (
	BundleUnused EntryBundleKind = iota
	BundleFixed
	BundleMoveable
)

// EntryBundle is one run of entry-table records sharing a segment
// indicator, terminated by a bundle with EntryCount == 0.
type EntryBundle struct {
	Kind          EntryBundleKind
	EntryCount    uint8
	SegmentNumber uint8 // BundleFixed only
	Fixed         []FixedSegmentEntry
	Moveable      []MoveableSegmentEntry
}

func readEntryTable(r io.Reader) ([]EntryBundle, error) {
	var bundles []EntryBundle
	for {
		var countBuf [1]byte
		if _, err := io.ReadFull(r, countBuf[:]); err != nil {
			return nil, err
		}
		entryCount := countBuf[0]
		if entryCount == 0 {
			break
		}

		var indicatorBuf [1]byte
		if _, err := io.ReadFull(r, indicatorBuf[:]); err != nil {
			return nil, err
		}
		segmentIndicator := indicatorBuf[0]

		switch segmentIndicator {
		case 0x00:
			bundles = append(bundles, EntryBundle{Kind: BundleUnused, EntryCount: entryCount})

		case 0xFF:
			entries := make([]MoveableSegmentEntry, 0, entryCount)
			for i := uint8(0); i < entryCount; i++ {
				var buf [6]byte
				if _, err := io.ReadFull(r, buf[:]); err != nil {
					return nil, err
				}
				entries = append(entries, MoveableSegmentEntry{
					Flags:            SegmentEntryFlags(buf[0]),
					Int3Fh:           [2]byte{buf[1], buf[2]},
					SegmentNumber:    buf[3],
					EntryPointOffset: binary.LittleEndian.Uint16(buf[4:6]),
				})
			}
			bundles = append(bundles, EntryBundle{Kind: BundleMoveable, EntryCount: entryCount, Moveable: entries})

		default:
			entries := make([]FixedSegmentEntry, 0, entryCount)
			for i := uint8(0); i < entryCount; i++ {
				var buf [3]byte
				if _, err := io.ReadFull(r, buf[:]); err != nil {
					return nil, err
				}
				entries = append(entries, FixedSegmentEntry{
					Flags:            SegmentEntryFlags(buf[0]),
					EntryPointOffset: binary.LittleEndian.Uint16(buf[1:3]),
				})
			}
			bundles = append(bundles, EntryBundle{Kind: BundleFixed, EntryCount: entryCount, SegmentNumber: segmentIndicator, Fixed: entries})
		}
	}
	return bundles, nil
}
