// Package clr decodes the CLR header (the data directory at index 14 in
// a PE optional header) and the chain of wrapped .NET resource containers
// it can point at.
package clr

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrTooShort = errors.New("clr: buffer too short")
	ErrHeaderTooSmall = errors.New("clr: header size field smaller than minimum")
)

// Flags are the CLR header's runtime flags.
type Flags uint32

const FlagClrOnly Flags = 0b0000_0001

// AddressAndLength is an (RVA, byte length) pair used throughout the CLR
// header for each optional table it may point at.
type AddressAndLength struct {
	Address uint32
	Length  uint32
}

func readAddressAndLength(data []byte) (AddressAndLength, []byte, error) {
	if len(data) < 8 {
		return AddressAndLength{}, nil, ErrTooShort
	}
	return AddressAndLength{
		Address: binary.LittleEndian.Uint32(data[0:4]),
		Length:  binary.LittleEndian.Uint32(data[4:8]),
	}, data[8:], nil
}

// Header is the CLR header (a.k.a. COR20 header).
type Header struct {
	RuntimeVersionMajor        uint16
	RuntimeVersionMinor        uint16
	MetadataRange              AddressAndLength
	Flags                      Flags
	EntryPointToken            uint32
	ResourcesRange             AddressAndLength
	StrongNameSignatureRange   AddressAndLength
	CodeManagerTableRange      AddressAndLength
	VTableFixupsRange          AddressAndLength
	ExportAddressTableJumpsRange AddressAndLength
	ManagedNativeHeaderRange   AddressAndLength
}

// ReadHeader decodes a CLR header from data. Everything past the
// mandatory fixed fields (entry point token and earlier) is read
// defensively: older/truncated headers simply leave the trailing ranges
// zeroed rather than failing, matching how the PE loader treats this
// header as forward-compatible.
func ReadHeader(data []byte) (*Header, error) {
	if len(data) < 4 {
		return nil, ErrTooShort
	}
	headerSize := binary.LittleEndian.Uint32(data[0:4])
	rest := data[4:]

	if headerSize < 24 {
		return nil, fmt.Errorf("%w: got %d, want at least 24", ErrHeaderTooSmall, headerSize)
	}
	restAtLeast := int(headerSize - 4)
	if len(rest) < restAtLeast {
		return nil, ErrTooShort
	}

	if len(rest) < 20 {
		return nil, ErrTooShort
	}
	h := &Header{
		RuntimeVersionMajor: binary.LittleEndian.Uint16(rest[0:2]),
		RuntimeVersionMinor: binary.LittleEndian.Uint16(rest[2:4]),
	}
	metadataRange, _, err := readAddressAndLength(rest[4:12])
	if err != nil {
		return nil, err
	}
	h.MetadataRange = metadataRange
	h.Flags = Flags(binary.LittleEndian.Uint32(rest[12:16]))
	h.EntryPointToken = binary.LittleEndian.Uint32(rest[16:20])
	rest = rest[20:]

	for _, dst := range []*AddressAndLength{
		&h.ResourcesRange,
		&h.StrongNameSignatureRange,
		&h.CodeManagerTableRange,
		&h.VTableFixupsRange,
		&h.ExportAddressTableJumpsRange,
		&h.ManagedNativeHeaderRange,
	} {
		if len(rest) < 8 {
			break
		}
		rng, newRest, err := readAddressAndLength(rest[:8])
		if err != nil {
			return nil, err
		}
		*dst = rng
		rest = newRest
	}

	return h, nil
}
