package pe

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ExportAddressKind distinguishes a code export from one forwarded to
// another module's export.
type ExportAddressKind int

const (
	ExportCode ExportAddressKind = iota
	ExportForwarder
)

// ExportAddressTableEntry is one resolved address-table slot: either a code
// RVA, or — when that RVA falls inside the export directory itself — a
// NUL-terminated forwarder string "OtherModule.ExportedName".
type ExportAddressTableEntry struct {
	Kind      ExportAddressKind
	CodeRVA   uint32
	Forwarder string
}

// ExportTable is a PE image's export directory, decoded into two maps: one
// from ordinal to resolved address, and one from exported name to ordinal
// (kept distinct because names are stored sorted for binary search, while
// the ordinal numbering need not be contiguous from OrdinalBase).
type ExportTable struct {
	Flags          uint32
	TimeDateStamp  uint32
	MajorVersion   uint16
	MinorVersion   uint16
	Name           string
	OrdinalBase    uint32
	OrdinalToEntry map[uint32]ExportAddressTableEntry
	NameToOrdinal  map[string]uint32
}

// ReadExportTable decodes the export directory described by dir, following
// every RVA it contains through the section table (property P6 exercises
// this round trip). Returns ErrSectionsOverlap first, matching the original
// decoder's precondition.
func ReadExportTable(r io.ReadSeeker, dir DataDirectory, sections *SectionTable) (*ExportTable, error) {
	if sections.HasOverlap() {
		return nil, ErrSectionsOverlap
	}

	dirRaw, ok := sections.VirtualToRaw(dir.VirtualAddress)
	if !ok {
		return nil, fmt.Errorf("%w: export directory RVA %#x", ErrAddressNotMapped, dir.VirtualAddress)
	}
	if _, err := r.Seek(int64(dirRaw), io.SeekStart); err != nil {
		return nil, err
	}

	var buf [40]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, fmt.Errorf("pe: reading export directory: %w", err)
	}

	nameRVA := binary.LittleEndian.Uint32(buf[12:16])
	ordinalBase := binary.LittleEndian.Uint32(buf[16:20])
	addressTableCount := binary.LittleEndian.Uint32(buf[20:24])
	namePointerCount := binary.LittleEndian.Uint32(buf[24:28])
	addressTableRVA := binary.LittleEndian.Uint32(buf[28:32])
	namePointerRVA := binary.LittleEndian.Uint32(buf[32:36])
	ordinalTableRVA := binary.LittleEndian.Uint32(buf[36:40])

	table := &ExportTable{
		Flags:          binary.LittleEndian.Uint32(buf[0:4]),
		TimeDateStamp:  binary.LittleEndian.Uint32(buf[4:8]),
		MajorVersion:   binary.LittleEndian.Uint16(buf[8:10]),
		MinorVersion:   binary.LittleEndian.Uint16(buf[10:12]),
		OrdinalBase:    ordinalBase,
		OrdinalToEntry: make(map[uint32]ExportAddressTableEntry),
		NameToOrdinal:  make(map[string]uint32),
	}

	name, err := readAtRVA(r, sections, nameRVA, readNULTerminatedASCII)
	if err != nil {
		return nil, fmt.Errorf("pe: reading export table name: %w", err)
	}
	table.Name = name

	addrRaw, ok := sections.VirtualToRaw(addressTableRVA)
	if !ok {
		return nil, fmt.Errorf("%w: address table RVA %#x", ErrAddressNotMapped, addressTableRVA)
	}
	if _, err := r.Seek(int64(addrRaw), io.SeekStart); err != nil {
		return nil, err
	}
	for i := uint32(0); i < addressTableCount; i++ {
		var addrBuf [4]byte
		if _, err := io.ReadFull(r, addrBuf[:]); err != nil {
			return nil, fmt.Errorf("pe: reading export address table entry %d: %w", i, err)
		}
		address := binary.LittleEndian.Uint32(addrBuf[:])
		if address == 0 {
			continue
		}
		ordinal := ordinalBase + i
		if address >= dir.VirtualAddress && address < dir.VirtualAddress+dir.Size {
			pos, _ := seekTell(r)
			forwarder, err := readAtRVA(r, sections, address, readNULTerminatedASCII)
			if err != nil {
				return nil, fmt.Errorf("pe: reading forwarder string for ordinal %d: %w", ordinal, err)
			}
			if _, err := r.Seek(pos, io.SeekStart); err != nil {
				return nil, err
			}
			table.OrdinalToEntry[ordinal] = ExportAddressTableEntry{Kind: ExportForwarder, Forwarder: forwarder}
		} else {
			table.OrdinalToEntry[ordinal] = ExportAddressTableEntry{Kind: ExportCode, CodeRVA: address}
		}
	}

	names := make([]string, 0, namePointerCount)
	namePtrRaw, ok := sections.VirtualToRaw(namePointerRVA)
	if !ok {
		return nil, fmt.Errorf("%w: name pointer table RVA %#x", ErrAddressNotMapped, namePointerRVA)
	}
	if _, err := r.Seek(int64(namePtrRaw), io.SeekStart); err != nil {
		return nil, err
	}
	for i := uint32(0); i < namePointerCount; i++ {
		var addrBuf [4]byte
		if _, err := io.ReadFull(r, addrBuf[:]); err != nil {
			return nil, fmt.Errorf("pe: reading name pointer %d: %w", i, err)
		}
		address := binary.LittleEndian.Uint32(addrBuf[:])
		pos, _ := seekTell(r)
		name, err := readAtRVA(r, sections, address, readNULTerminatedASCII)
		if err != nil {
			return nil, fmt.Errorf("pe: reading exported name %d: %w", i, err)
		}
		if _, err := r.Seek(pos, io.SeekStart); err != nil {
			return nil, err
		}
		names = append(names, name)
	}

	ordinalsRaw, ok := sections.VirtualToRaw(ordinalTableRVA)
	if !ok {
		return nil, fmt.Errorf("%w: ordinal table RVA %#x", ErrAddressNotMapped, ordinalTableRVA)
	}
	if _, err := r.Seek(int64(ordinalsRaw), io.SeekStart); err != nil {
		return nil, err
	}
	for i := uint32(0); i < namePointerCount && int(i) < len(names); i++ {
		var ordBuf [2]byte
		if _, err := io.ReadFull(r, ordBuf[:]); err != nil {
			return nil, fmt.Errorf("pe: reading name ordinal %d: %w", i, err)
		}
		relativeOrdinal := binary.LittleEndian.Uint16(ordBuf[:])
		table.NameToOrdinal[names[i]] = ordinalBase + uint32(relativeOrdinal)
	}

	return table, nil
}

func seekTell(r io.Seeker) (int64, error) {
	return r.Seek(0, io.SeekCurrent)
}

func readAtRVA(r io.ReadSeeker, sections *SectionTable, rva uint32, read func(io.Reader) (string, error)) (string, error) {
	raw, ok := sections.VirtualToRaw(rva)
	if !ok {
		return "", fmt.Errorf("%w: %#x", ErrAddressNotMapped, rva)
	}
	if _, err := r.Seek(int64(raw), io.SeekStart); err != nil {
		return "", err
	}
	return read(r)
}

var errUnterminatedString = errors.New("pe: string is missing its NUL terminator")

func readNULTerminatedASCII(r io.Reader) (string, error) {
	var b []byte
	var one [1]byte
	for {
		if _, err := io.ReadFull(r, one[:]); err != nil {
			if err == io.EOF {
				return "", errUnterminatedString
			}
			return "", err
		}
		if one[0] == 0 {
			return string(b), nil
		}
		b = append(b, one[0])
	}
}
