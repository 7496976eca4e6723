package codeview

import (
	"encoding/binary"
	"fmt"
	"io"
)

// NumericLeaf is a CodeView numeric value: either an immediate 16-bit value
// (tag < 0x8000) or a tagged, variable-width representation (tag >= 0x8000)
// covering every integer width, IEEE float widths, fixed-width "extended"
// floats, complex pairs, and a length-prefixed byte string.
type NumericLeaf struct {
	Tag   uint16
	Value any
}

func readNumericLeaf(r io.Reader) (NumericLeaf, error) {
	var tagBuf [2]byte
	if _, err := io.ReadFull(r, tagBuf[:]); err != nil {
		return NumericLeaf{}, err
	}
	tag := binary.LittleEndian.Uint16(tagBuf[:])

	readN := func(n int) ([]byte, error) {
		buf := make([]byte, n)
		_, err := io.ReadFull(r, buf)
		return buf, err
	}

	if tag < 0x8000 {
		return NumericLeaf{Tag: tag, Value: tag}, nil
	}

	switch tag {
	case 0x8000:
		b, err := readN(1)
		if err != nil {
			return NumericLeaf{}, err
		}
		return NumericLeaf{Tag: tag, Value: int8(b[0])}, nil
	case 0x8001:
		b, err := readN(2)
		if err != nil {
			return NumericLeaf{}, err
		}
		return NumericLeaf{Tag: tag, Value: int16(binary.LittleEndian.Uint16(b))}, nil
	case 0x8002:
		b, err := readN(2)
		if err != nil {
			return NumericLeaf{}, err
		}
		return NumericLeaf{Tag: tag, Value: binary.LittleEndian.Uint16(b)}, nil
	case 0x8003:
		b, err := readN(4)
		if err != nil {
			return NumericLeaf{}, err
		}
		return NumericLeaf{Tag: tag, Value: int32(binary.LittleEndian.Uint32(b))}, nil
	case 0x8004:
		b, err := readN(4)
		if err != nil {
			return NumericLeaf{}, err
		}
		return NumericLeaf{Tag: tag, Value: binary.LittleEndian.Uint32(b)}, nil
	case 0x8005:
		b, err := readN(4)
		if err != nil {
			return NumericLeaf{}, err
		}
		return NumericLeaf{Tag: tag, Value: binary.LittleEndian.Uint32(b)}, nil // raw IEEE-754 bit pattern
	case 0x8006:
		b, err := readN(8)
		if err != nil {
			return NumericLeaf{}, err
		}
		return NumericLeaf{Tag: tag, Value: binary.LittleEndian.Uint64(b)}, nil // raw IEEE-754 bit pattern
	case 0x8007:
		b, err := readN(10)
		if err != nil {
			return NumericLeaf{}, err
		}
		return NumericLeaf{Tag: tag, Value: b}, nil // 80-bit extended float, kept as raw bytes
	case 0x8008:
		b, err := readN(16)
		if err != nil {
			return NumericLeaf{}, err
		}
		return NumericLeaf{Tag: tag, Value: b}, nil // 128-bit float, kept as raw bytes
	case 0x8009:
		b, err := readN(8)
		if err != nil {
			return NumericLeaf{}, err
		}
		return NumericLeaf{Tag: tag, Value: int64(binary.LittleEndian.Uint64(b))}, nil
	case 0x800A:
		b, err := readN(8)
		if err != nil {
			return NumericLeaf{}, err
		}
		return NumericLeaf{Tag: tag, Value: binary.LittleEndian.Uint64(b)}, nil
	case 0x800B:
		b, err := readN(6)
		if err != nil {
			return NumericLeaf{}, err
		}
		return NumericLeaf{Tag: tag, Value: b}, nil // 48-bit float, kept as raw bytes
	case 0x800C:
		b, err := readN(8)
		if err != nil {
			return NumericLeaf{}, err
		}
		return NumericLeaf{Tag: tag, Value: [2]uint32{binary.LittleEndian.Uint32(b[0:4]), binary.LittleEndian.Uint32(b[4:8])}}, nil
	case 0x800D:
		b, err := readN(16)
		if err != nil {
			return NumericLeaf{}, err
		}
		return NumericLeaf{Tag: tag, Value: [2]uint64{binary.LittleEndian.Uint64(b[0:8]), binary.LittleEndian.Uint64(b[8:16])}}, nil
	case 0x800E:
		b, err := readN(20)
		if err != nil {
			return NumericLeaf{}, err
		}
		return NumericLeaf{Tag: tag, Value: [2][]byte{b[0:10], b[10:20]}}, nil
	case 0x800F:
		b, err := readN(32)
		if err != nil {
			return NumericLeaf{}, err
		}
		return NumericLeaf{Tag: tag, Value: [2][]byte{b[0:16], b[16:32]}}, nil
	case 0x8010:
		lenBuf, err := readN(2)
		if err != nil {
			return NumericLeaf{}, err
		}
		length := binary.LittleEndian.Uint16(lenBuf)
		str, err := readN(int(length))
		if err != nil {
			return NumericLeaf{}, err
		}
		return NumericLeaf{Tag: tag, Value: string(str)}, nil
	default:
		return NumericLeaf{}, fmt.Errorf("codeview: unknown numeric leaf tag %#06x", tag)
	}
}

// TypeLeafIndex identifies the shape of a type leaf.
type TypeLeafIndex uint16

const (
	LeafModifier                  TypeLeafIndex = 0x0001
	LeafPointer                   TypeLeafIndex = 0x0002
	LeafArray                     TypeLeafIndex = 0x0003
	LeafClass                     TypeLeafIndex = 0x0004
	LeafStructure                 TypeLeafIndex = 0x0005
	LeafUnion                     TypeLeafIndex = 0x0006
	LeafEnum                      TypeLeafIndex = 0x0007
	LeafProcedure                 TypeLeafIndex = 0x0008
	LeafMemberFunction             TypeLeafIndex = 0x0009
	LeafVirtualFunctionTableShape TypeLeafIndex = 0x000A
	LeafArgumentList              TypeLeafIndex = 0x0201
	LeafFieldList                 TypeLeafIndex = 0x0204
	LeafDerivedClasses            TypeLeafIndex = 0x0205
	LeafBitFields                 TypeLeafIndex = 0x0206
	LeafMethodList                TypeLeafIndex = 0x0207
	LeafRealBaseClass             TypeLeafIndex = 0x0400
	LeafEnumerationNameAndValue   TypeLeafIndex = 0x0403
	LeafDataMember                TypeLeafIndex = 0x0406
	LeafStaticDataMember          TypeLeafIndex = 0x0407
	LeafMethod                    TypeLeafIndex = 0x0408
	LeafNestedTypeDefinition      TypeLeafIndex = 0x0409
	LeafVirtualFunctionTablePointer TypeLeafIndex = 0x040A
	LeafOneMethod                 TypeLeafIndex = 0x040C
)

func (k TypeLeafIndex) String() string {
	switch k {
	case LeafModifier:
		return "Modifier"
	case LeafPointer:
		return "Pointer"
	case LeafArray:
		return "Array"
	case LeafClass:
		return "Class"
	case LeafStructure:
		return "Structure"
	case LeafUnion:
		return "Union"
	case LeafEnum:
		return "Enum"
	case LeafProcedure:
		return "Procedure"
	case LeafMemberFunction:
		return "MemberFunction"
	case LeafVirtualFunctionTableShape:
		return "VirtualFunctionTableShape"
	case LeafArgumentList:
		return "ArgumentList"
	case LeafFieldList:
		return "FieldList"
	case LeafDerivedClasses:
		return "DerivedClasses"
	case LeafBitFields:
		return "BitFields"
	case LeafMethodList:
		return "MethodList"
	case LeafRealBaseClass:
		return "RealBaseClass"
	case LeafEnumerationNameAndValue:
		return "EnumerationNameAndValue"
	case LeafDataMember:
		return "DataMember"
	case LeafStaticDataMember:
		return "StaticDataMember"
	case LeafMethod:
		return "Method"
	case LeafNestedTypeDefinition:
		return "NestedTypeDefinition"
	case LeafVirtualFunctionTablePointer:
		return "VirtualFunctionTablePointer"
	case LeafOneMethod:
		return "OneMethod"
	default:
		return fmt.Sprintf("Other(%#06x)", uint16(k))
	}
}

// ModifierTypeLeaf wraps a base type with const/volatile/unaligned
// attributes.
type ModifierTypeLeaf struct {
	Attributes    uint16
	BaseTypeIndex uint16
}

func readModifierTypeLeaf(r io.Reader) (ModifierTypeLeaf, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return ModifierTypeLeaf{}, err
	}
	return ModifierTypeLeaf{
		Attributes:    binary.LittleEndian.Uint16(buf[0:2]),
		BaseTypeIndex: binary.LittleEndian.Uint16(buf[2:4]),
	}, nil
}

// PointerTypeLeaf is a pointer, reference, or pointer-to-member type. The
// variant-specific trailer (based-pointer segment/type, or the
// pointer-to-member class and format) is kept as raw bytes: the attribute
// word alone is enough to tell near/far/huge pointers apart, which covers
// what callers of this package need from a pointer leaf.
type PointerTypeLeaf struct {
	Attribute       uint16
	PointeeTypeIndex uint16
	VariantData     []byte
}

func readPointerTypeLeaf(r io.Reader) (PointerTypeLeaf, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return PointerTypeLeaf{}, err
	}
	rest, err := io.ReadAll(r)
	if err != nil {
		return PointerTypeLeaf{}, err
	}
	return PointerTypeLeaf{
		Attribute:        binary.LittleEndian.Uint16(header[0:2]),
		PointeeTypeIndex: binary.LittleEndian.Uint16(header[2:4]),
		VariantData:      rest,
	}, nil
}

// ArrayTypeLeaf describes an array's element and index types, its size as
// a NumericLeaf, and its name.
type ArrayTypeLeaf struct {
	ElementTypeIndex uint16
	IndexTypeIndex   uint16
	Length           NumericLeaf
	Name             string
}

func readArrayTypeLeaf(r io.Reader) (ArrayTypeLeaf, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return ArrayTypeLeaf{}, err
	}
	length, err := readNumericLeaf(r)
	if err != nil {
		return ArrayTypeLeaf{}, err
	}
	name, err := readPascalByteString(r)
	if err != nil {
		return ArrayTypeLeaf{}, err
	}
	return ArrayTypeLeaf{
		ElementTypeIndex: binary.LittleEndian.Uint16(header[0:2]),
		IndexTypeIndex:   binary.LittleEndian.Uint16(header[2:4]),
		Length:           length,
		Name:             name,
	}, nil
}

// ArgumentListTypeLeaf is a function or method's parameter-type list.
type ArgumentListTypeLeaf struct {
	ArgumentTypeIndexes []uint16
}

func readArgumentListTypeLeaf(r io.Reader) (ArgumentListTypeLeaf, error) {
	var countBuf [2]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return ArgumentListTypeLeaf{}, err
	}
	count := binary.LittleEndian.Uint16(countBuf[:])
	buf := make([]byte, 2*int(count))
	if _, err := io.ReadFull(r, buf); err != nil {
		return ArgumentListTypeLeaf{}, err
	}
	indexes := make([]uint16, count)
	for i := range indexes {
		indexes[i] = binary.LittleEndian.Uint16(buf[2*i : 2*i+2])
	}
	return ArgumentListTypeLeaf{ArgumentTypeIndexes: indexes}, nil
}

// FieldListTypeLeaf is a run of member-describing leaves (DataMember,
// Method, RealBaseClass, and similar 0x0400-series kinds) packed back to
// back and padded to a 4-byte boundary between records.
type FieldListTypeLeaf struct {
	Fields []TypeLeaf
}

// readFieldListTypeLeaf decodes a field list from its full remaining body.
// Each field leaf is followed by 0-3 padding bytes (value > 0xF0) inserted
// to 4-byte-align the next field; a byte <= 0xF0 there is the next field's
// own kind tag, not padding.
func readFieldListTypeLeaf(r io.Reader) (FieldListTypeLeaf, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return FieldListTypeLeaf{}, err
	}

	var fields []TypeLeaf
	pos := 0
	for pos < len(raw) {
		field, consumed, err := readTypeLeafFromSlice(raw[pos:])
		if err != nil {
			return FieldListTypeLeaf{}, err
		}
		fields = append(fields, field)
		pos += consumed

		if pos < len(raw) && raw[pos] > 0xF0 {
			padding := int(raw[pos]&0x0F) - 1
			pos++
			if padding > 0 {
				pos += padding
			}
		}
	}

	return FieldListTypeLeaf{Fields: fields}, nil
}

// readTypeLeafFromSlice decodes one type leaf from the start of data and
// reports how many bytes it consumed, for callers that need to continue
// parsing a packed run (field lists) rather than a single standalone leaf.
func readTypeLeafFromSlice(data []byte) (TypeLeaf, int, error) {
	br := bytesReaderWithCount{data: data}
	leaf, err := readTypeLeaf(&br)
	return leaf, br.pos, err
}

type bytesReaderWithCount struct {
	data []byte
	pos  int
}

func (r *bytesReaderWithCount) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}

// TypeLeaf is one decoded type-table record: its kind and a structured
// body for the handful of kinds this package decodes (Modifier, Pointer,
// Array, ArgumentList, FieldList — the shapes needed to walk a type graph);
// every other kind keeps its raw body bytes, same fallback FieldList uses
// for member kinds it doesn't structurally decode.
type TypeLeaf struct {
	Kind TypeLeafIndex
	Body any
}

func readTypeLeaf(r io.Reader) (TypeLeaf, error) {
	var kindBuf [2]byte
	if _, err := io.ReadFull(r, kindBuf[:]); err != nil {
		return TypeLeaf{}, err
	}
	kind := TypeLeafIndex(binary.LittleEndian.Uint16(kindBuf[:]))

	switch kind {
	case LeafModifier:
		body, err := readModifierTypeLeaf(r)
		return TypeLeaf{Kind: kind, Body: body}, err
	case LeafPointer:
		body, err := readPointerTypeLeaf(r)
		return TypeLeaf{Kind: kind, Body: body}, err
	case LeafArray:
		body, err := readArrayTypeLeaf(r)
		return TypeLeaf{Kind: kind, Body: body}, err
	case LeafArgumentList:
		body, err := readArgumentListTypeLeaf(r)
		return TypeLeaf{Kind: kind, Body: body}, err
	case LeafFieldList:
		body, err := readFieldListTypeLeaf(r)
		return TypeLeaf{Kind: kind, Body: body}, err
	default:
		raw, err := io.ReadAll(r)
		return TypeLeaf{Kind: kind, Body: raw}, err
	}
}
