package clr

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	ErrWrongMagic                     = errors.New("clr: wrong resource container magic")
	ErrInvalidText                    = errors.New("clr: invalid text")
	ErrInvalidTypeIndex                = errors.New("clr: unknown resource type index")
	ErrVariableLengthIntegerLength    = errors.New("clr: variable-length integer exceeds 5 bytes")
	ErrVariableLengthIntegerNotMinimal = errors.New("clr: variable-length integer is not minimally encoded")
)

const resourceContainerMagic = 0xBEEFCACE

// ResourceType identifies the type of a single resource's data. Custom
// holds the raw, already-subtracted custom-type index (the wire value
// minus 64).
type ResourceType struct {
	Name   string
	Custom *uint64
}

var namedResourceTypes = map[uint64]string{
	0: "Null", 1: "String", 2: "Boolean", 3: "Char", 4: "Byte", 5: "SignedByte",
	6: "Int16", 7: "UInt16", 8: "Int32", 9: "UInt32", 10: "Int64", 11: "UInt64",
	12: "Single", 13: "Double", 14: "Decimal", 15: "DateTime", 16: "TimeSpan",
	32: "ByteArray", 33: "Stream",
}

func resourceTypeFromIndex(index uint64) (ResourceType, error) {
	if name, ok := namedResourceTypes[index]; ok {
		return ResourceType{Name: name}, nil
	}
	if index >= 64 {
		custom := index - 64
		return ResourceType{Name: "Custom", Custom: &custom}, nil
	}
	return ResourceType{}, fmt.Errorf("%w: %d", ErrInvalidTypeIndex, index)
}

// Resource is one decoded entry from a resource container's data section.
type Resource struct {
	Name         string
	NameHash     uint32
	ResourceType ResourceType
	Data         []byte
}

// ResourceContainer is one decoded .NET resource set (the payload of one
// wrapped resource container, per ReadWrappedContainers).
type ResourceContainer struct {
	ReaderCount         uint32
	ReaderAssembly      string
	ReaderType          string
	Version             uint32
	CustomResourceTypes []string
	Resources           []Resource
}

// takeVariableLengthInteger decodes the 7-bit-payload, continuation-bit
// variable-length integer used throughout the resource container format.
// Per the fix text: a sole zero first byte (encoding 0) is a valid
// minimal encoding; a zero byte anywhere AFTER the first is never valid,
// since it can only arise from a non-minimal (padded) encoding.
func takeVariableLengthInteger(data []byte) (uint64, []byte, error) {
	if len(data) < 1 {
		return 0, nil, ErrTooShort
	}
	var value uint64
	rest := data
	for i := 0; ; i++ {
		if i == 5 {
			return 0, nil, ErrVariableLengthIntegerLength
		}
		if len(rest) < 1 {
			return 0, nil, ErrTooShort
		}
		b := rest[0]
		rest = rest[1:]
		if i > 0 && b == 0 {
			return 0, nil, ErrVariableLengthIntegerNotMinimal
		}
		value |= uint64(b&0x7F) << (7 * i)
		if b&0x80 == 0 {
			break
		}
	}
	return value, rest, nil
}

func takeLengthPrefixedBytes(data []byte) ([]byte, []byte, error) {
	length, rest, err := takeVariableLengthInteger(data)
	if err != nil {
		return nil, nil, err
	}
	if uint64(len(rest)) < length {
		return nil, nil, ErrTooShort
	}
	return rest[:length], rest[length:], nil
}

func utf16LEBytesToString(data []byte) (string, error) {
	if len(data)%2 != 0 {
		return "", ErrInvalidText
	}
	utf16le := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	utf8Data, _, err := transform.Bytes(utf16le.NewDecoder(), data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidText, err)
	}
	return string(utf8Data), nil
}

type resourceEntry struct {
	name     string
	nameHash uint32
	offset   uint32
}

// ReadResourceContainer decodes one resource container's payload (the
// `data` field of a wrapped container from ReadWrappedContainers).
func ReadResourceContainer(data []byte) (*ResourceContainer, error) {
	if len(data) < 14 {
		return nil, ErrTooShort
	}
	magic := binary.LittleEndian.Uint32(data[0:4])
	if magic != resourceContainerMagic {
		return nil, fmt.Errorf("%w: got %#010x", ErrWrongMagic, magic)
	}
	rest := data[4:]

	readerCount := binary.LittleEndian.Uint32(rest[0:4])
	rest = rest[4:]

	readerAssemblyAndTypeSize := binary.LittleEndian.Uint32(rest[0:4])
	rest = rest[4:]
	if uint64(len(rest)) < uint64(readerAssemblyAndTypeSize) {
		return nil, ErrTooShort
	}
	raatsSection, rest := rest[:readerAssemblyAndTypeSize], rest[readerAssemblyAndTypeSize:]

	readerAssemblyBytes, raatsSection, err := takeLengthPrefixedBytes(raatsSection)
	if err != nil {
		return nil, err
	}
	readerTypeBytes, _, err := takeLengthPrefixedBytes(raatsSection)
	if err != nil {
		return nil, err
	}

	if len(rest) < 12 {
		return nil, ErrTooShort
	}
	version := binary.LittleEndian.Uint32(rest[0:4])
	resourceCount := binary.LittleEndian.Uint32(rest[4:8])
	customResourceTypeCount := binary.LittleEndian.Uint32(rest[8:12])
	rest = rest[12:]

	customResourceTypes := make([]string, 0, customResourceTypeCount)
	for i := uint32(0); i < customResourceTypeCount; i++ {
		var typeBytes []byte
		typeBytes, rest, err = takeLengthPrefixedBytes(rest)
		if err != nil {
			return nil, err
		}
		customResourceTypes = append(customResourceTypes, string(typeBytes))
	}

	// realign to an 8-byte boundary, measured from the start of data
	hithertoRead := len(data) - len(rest)
	alignSkip := (8 - (hithertoRead % 8)) % 8
	if len(rest) < alignSkip {
		return nil, ErrTooShort
	}
	rest = rest[alignSkip:]

	nameHashes := make([]uint32, resourceCount)
	for i := range nameHashes {
		if len(rest) < 4 {
			return nil, ErrTooShort
		}
		nameHashes[i] = binary.LittleEndian.Uint32(rest[0:4])
		rest = rest[4:]
	}

	nameOffsets := make([]uint32, resourceCount)
	for i := range nameOffsets {
		if len(rest) < 4 {
			return nil, ErrTooShort
		}
		nameOffsets[i] = binary.LittleEndian.Uint32(rest[0:4])
		rest = rest[4:]
	}

	if len(rest) < 4 {
		return nil, ErrTooShort
	}
	dataSectionOffset := binary.LittleEndian.Uint32(rest[0:4])
	namesAndOffsets := rest[4:]

	entries := make([]resourceEntry, resourceCount)
	for i, offset := range nameOffsets {
		if uint64(offset) >= uint64(len(namesAndOffsets)) {
			return nil, ErrTooShort
		}
		resourceSlice := namesAndOffsets[offset:]
		nameBytes, resRest, err := takeLengthPrefixedBytes(resourceSlice)
		if err != nil {
			return nil, err
		}
		name, err := utf16LEBytesToString(nameBytes)
		if err != nil {
			return nil, err
		}
		if len(resRest) < 4 {
			return nil, ErrTooShort
		}
		dataOffset := binary.LittleEndian.Uint32(resRest[0:4])
		entries[i] = resourceEntry{name: name, nameHash: nameHashes[i], offset: dataOffset}
	}

	if uint64(dataSectionOffset) >= uint64(len(data)) {
		return nil, ErrTooShort
	}
	dataSection := data[dataSectionOffset:]

	sort.Slice(entries, func(i, j int) bool { return entries[i].offset < entries[j].offset })

	resources := make([]Resource, 0, len(entries))
	for i, e := range entries {
		var length uint32
		if i+1 < len(entries) {
			length = entries[i+1].offset - e.offset
		} else {
			length = uint32(len(dataSection)) - e.offset
		}
		if uint64(e.offset) >= uint64(len(dataSection)) {
			return nil, ErrTooShort
		}
		if uint64(e.offset)+uint64(length) > uint64(len(dataSection)) {
			return nil, ErrTooShort
		}
		resourceData := dataSection[e.offset : e.offset+length]

		typeIndex, actualData, err := takeVariableLengthInteger(resourceData)
		if err != nil {
			return nil, err
		}
		resourceType, err := resourceTypeFromIndex(typeIndex)
		if err != nil {
			return nil, err
		}
		resources = append(resources, Resource{
			Name:         e.name,
			NameHash:     e.nameHash,
			ResourceType: resourceType,
			Data:         append([]byte(nil), actualData...),
		})
	}

	return &ResourceContainer{
		ReaderCount:         readerCount,
		ReaderAssembly:      string(readerAssemblyBytes),
		ReaderType:          string(readerTypeBytes),
		Version:             version,
		CustomResourceTypes: customResourceTypes,
		Resources:           resources,
	}, nil
}

// ReadWrappedContainers splits a byte slice into its length-prefixed
// (and u32-padded) wrapped resource containers.
func ReadWrappedContainers(data []byte) [][]byte {
	var containers [][]byte
	rest := data
	for len(rest) >= 4 {
		length := binary.LittleEndian.Uint32(rest[0:4])
		rest = rest[4:]
		if uint64(len(rest)) < uint64(length) {
			break
		}
		containers = append(containers, append([]byte(nil), rest[:length]...))
		rest = rest[length:]

		padding := (4 - (length % 4)) % 4
		if uint64(len(rest)) < uint64(padding) {
			break
		}
		rest = rest[padding:]
	}
	return containers
}
