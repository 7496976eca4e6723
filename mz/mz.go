// Package mz parses the MZ (Mark Zbikowski) executable header: the DOS
// native executable format that every NE and PE executable also begins
// with.
package mz

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var ErrBadSignature = errors.New("mz: missing \"MZ\" signature")

// RelocationEntry is one (segment:offset) fixup record from the relocation
// table.
type RelocationEntry struct {
	Offset  uint16
	Segment uint16
}

// Header is the 26-byte MZ header plus its relocation table.
type Header struct {
	LastPageBytes               uint16
	Pages                       uint16
	HeaderSizeParagraphs        uint16
	RequiredAllocationParas     uint16
	RequestedAllocationParas    uint16
	InitialSS                   uint16
	InitialSP                   uint16
	Checksum                    uint16
	InitialIP                   uint16
	InitialCS                   uint16
	RelocationTableOffset       uint16
	Overlay                     uint16
	RelocationEntries           []RelocationEntry
}

const bytesPerParagraph = 16
const bytesPerPage = 512

// Read parses the MZ header starting at the reader's current position
// (normally the start of the file), then seeks to and consumes the
// relocation table. On return, the reader's position is just past the
// relocation table.
func Read(r io.ReadSeeker) (*Header, error) {
	var sig [2]byte
	if _, err := io.ReadFull(r, sig[:]); err != nil {
		return nil, fmt.Errorf("mz: reading signature: %w", err)
	}
	if sig != [2]byte{'M', 'Z'} {
		return nil, ErrBadSignature
	}

	var buf [26]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, fmt.Errorf("mz: reading header: %w", err)
	}

	h := &Header{
		LastPageBytes:            binary.LittleEndian.Uint16(buf[0:2]),
		Pages:                    binary.LittleEndian.Uint16(buf[2:4]),
		HeaderSizeParagraphs:     binary.LittleEndian.Uint16(buf[6:8]),
		RequiredAllocationParas:  binary.LittleEndian.Uint16(buf[8:10]),
		RequestedAllocationParas: binary.LittleEndian.Uint16(buf[10:12]),
		InitialSS:                binary.LittleEndian.Uint16(buf[12:14]),
		InitialSP:                binary.LittleEndian.Uint16(buf[14:16]),
		Checksum:                 binary.LittleEndian.Uint16(buf[16:18]),
		InitialIP:                binary.LittleEndian.Uint16(buf[18:20]),
		InitialCS:                binary.LittleEndian.Uint16(buf[20:22]),
		RelocationTableOffset:    binary.LittleEndian.Uint16(buf[22:24]),
		Overlay:                  binary.LittleEndian.Uint16(buf[24:26]),
	}
	relocationItems := binary.LittleEndian.Uint16(buf[4:6])

	if _, err := r.Seek(int64(h.RelocationTableOffset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("mz: seeking to relocation table: %w", err)
	}

	h.RelocationEntries = make([]RelocationEntry, 0, relocationItems)
	var entryBuf [4]byte
	for i := uint16(0); i < relocationItems; i++ {
		if _, err := io.ReadFull(r, entryBuf[:]); err != nil {
			return nil, fmt.Errorf("mz: reading relocation entry %d: %w", i, err)
		}
		h.RelocationEntries = append(h.RelocationEntries, RelocationEntry{
			Offset:  binary.LittleEndian.Uint16(entryBuf[0:2]),
			Segment: binary.LittleEndian.Uint16(entryBuf[2:4]),
		})
	}

	return h, nil
}

// ExtensionHeaderOffset reads the 32-bit offset at file offset 0x3C, used
// by both NE and PE to locate their own header (NE additionally requires
// the MZ relocation table offset to be 0x0040; PE has no such constraint).
func ExtensionHeaderOffset(r io.ReadSeeker) (uint32, error) {
	if _, err := r.Seek(0x3C, io.SeekStart); err != nil {
		return 0, fmt.Errorf("mz: seeking to extension header offset field: %w", err)
	}
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("mz: reading extension header offset: %w", err)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}
