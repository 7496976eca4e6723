package codeview

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// SymbolEntryType is the kind tag of a symbol entry.
type SymbolEntryType uint16

const (
	SymCompileFlags                   SymbolEntryType = 0x0001
	SymRegisterVariable                SymbolEntryType = 0x0002
	SymConstant                        SymbolEntryType = 0x0003
	SymUserDefinedType                 SymbolEntryType = 0x0004
	SymStartSearch                     SymbolEntryType = 0x0005
	SymEnd                             SymbolEntryType = 0x0006
	SymSkip                            SymbolEntryType = 0x0007
	SymCodeViewReserved                SymbolEntryType = 0x0008
	SymObjectName                      SymbolEntryType = 0x0009
	SymEndArguments                    SymbolEntryType = 0x000A
	SymMicrofocusCobolUserDefinedType  SymbolEntryType = 0x000B
	SymManyRegisters                   SymbolEntryType = 0x000C
	SymReturnDescription               SymbolEntryType = 0x000D
	SymEntryThisPointer                SymbolEntryType = 0x000E

	SymBpRelative16_16                SymbolEntryType = 0x0100
	SymLocalData16_16                 SymbolEntryType = 0x0101
	SymGlobalData16_16                SymbolEntryType = 0x0102
	SymPublicSymbol16_16               SymbolEntryType = 0x0103
	SymLocalProcedure16_16             SymbolEntryType = 0x0104
	SymGlobalProcedure16_16            SymbolEntryType = 0x0105
	SymThunk16_16                      SymbolEntryType = 0x0106
	SymBlock16_16                      SymbolEntryType = 0x0107
	SymWith16_16                       SymbolEntryType = 0x0108
	SymLabel16_16                      SymbolEntryType = 0x0109
	SymChangeExecutionModel16_16       SymbolEntryType = 0x010A
	SymVirtualFunctionTablePath16_16   SymbolEntryType = 0x010B
	SymRegisterRelativeOffset16_16     SymbolEntryType = 0x010C

	SymBpRelative16_32                SymbolEntryType = 0x0200
	SymLocalData16_32                 SymbolEntryType = 0x0201
	SymGlobalData16_32                SymbolEntryType = 0x0202
	SymPublicSymbol16_32               SymbolEntryType = 0x0203
	SymLocalProcedure16_32             SymbolEntryType = 0x0204
	SymGlobalProcedure16_32            SymbolEntryType = 0x0205
	SymThunk16_32                      SymbolEntryType = 0x0206
	SymBlock16_32                      SymbolEntryType = 0x0207
	SymWith16_32                       SymbolEntryType = 0x0208
	SymLabel16_32                      SymbolEntryType = 0x0209
	SymChangeExecutionModel16_32       SymbolEntryType = 0x020A
	SymVirtualFunctionTablePath16_32   SymbolEntryType = 0x020B
	SymRegisterRelativeOffset16_32     SymbolEntryType = 0x020C
	SymLocalThreadData16_32            SymbolEntryType = 0x020D
	SymGlobalThreadData16_32           SymbolEntryType = 0x020E

	SymLocalProcedureMips              SymbolEntryType = 0x0300
	SymGlobalProcedureMips             SymbolEntryType = 0x0301

	SymProcedureReference              SymbolEntryType = 0x0400
	SymDataReference                   SymbolEntryType = 0x0401
	SymPageAlignment                   SymbolEntryType = 0x0402
)

func (k SymbolEntryType) String() string {
	switch k {
	case SymCompileFlags:
		return "CompileFlags"
	case SymRegisterVariable:
		return "RegisterVariable"
	case SymConstant:
		return "Constant"
	case SymUserDefinedType:
		return "UserDefinedType"
	case SymStartSearch:
		return "StartSearch"
	case SymEnd:
		return "End"
	case SymSkip:
		return "Skip"
	case SymObjectName:
		return "ObjectName"
	case SymEndArguments:
		return "EndArguments"
	case SymManyRegisters:
		return "ManyRegisters"
	case SymReturnDescription:
		return "ReturnDescription"
	case SymEntryThisPointer:
		return "EntryThisPointer"
	case SymBpRelative16_16, SymBpRelative16_32:
		return "BpRelative"
	case SymLocalData16_16, SymLocalData16_32:
		return "LocalData"
	case SymGlobalData16_16, SymGlobalData16_32:
		return "GlobalData"
	case SymPublicSymbol16_16, SymPublicSymbol16_32:
		return "PublicSymbol"
	case SymLocalProcedure16_16, SymLocalProcedure16_32, SymLocalProcedureMips:
		return "LocalProcedure"
	case SymGlobalProcedure16_16, SymGlobalProcedure16_32, SymGlobalProcedureMips:
		return "GlobalProcedure"
	case SymThunk16_16, SymThunk16_32:
		return "Thunk"
	case SymBlock16_16, SymBlock16_32:
		return "Block"
	case SymWith16_16, SymWith16_32:
		return "With"
	case SymLabel16_16, SymLabel16_32:
		return "Label"
	case SymChangeExecutionModel16_16, SymChangeExecutionModel16_32:
		return "ChangeExecutionModel"
	case SymVirtualFunctionTablePath16_16, SymVirtualFunctionTablePath16_32:
		return "VirtualFunctionTablePath"
	case SymRegisterRelativeOffset16_16, SymRegisterRelativeOffset16_32:
		return "RegisterRelativeOffset"
	case SymLocalThreadData16_32:
		return "LocalThreadData"
	case SymGlobalThreadData16_32:
		return "GlobalThreadData"
	case SymProcedureReference:
		return "ProcedureReference"
	case SymDataReference:
		return "DataReference"
	case SymPageAlignment:
		return "PageAlignment"
	default:
		return fmt.Sprintf("Other(%#06x)", uint16(k))
	}
}

// CompileFlags is the structured body of a CompileFlags symbol entry: a
// machine byte followed by a 3-byte bitfield the compiler packs LSB to MSB,
// then a Pascal-string compiler version.
type CompileFlags struct {
	Machine        uint8
	Language       uint8
	PCodePresent   bool
	FloatPrecision uint8 // 2 bits
	FloatPackage   uint8 // 2 bits
	AmbientData    uint8 // 3 bits
	AmbientCode    uint8 // 3 bits
	Mode32         bool
	Reserved       uint8 // 4 bits
	Version        string
}

func readCompileFlags(r io.Reader) (CompileFlags, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return CompileFlags{}, err
	}

	flags := uint32(buf[1]) | uint32(buf[2])<<8 | uint32(buf[3])<<16

	version, err := readPascalByteString(r)
	if err != nil {
		return CompileFlags{}, err
	}

	return CompileFlags{
		Machine:        buf[0],
		Language:       uint8(flags & 0xFF),
		PCodePresent:   flags&(1<<8) != 0,
		FloatPrecision: uint8((flags >> 9) & 0b11),
		FloatPackage:   uint8((flags >> 11) & 0b11),
		AmbientData:    uint8((flags >> 13) & 0b111),
		AmbientCode:    uint8((flags >> 16) & 0b111),
		Mode32:         flags&(1<<19) != 0,
		Reserved:       uint8((flags >> 20) & 0b1111),
		Version:        version,
	}, nil
}

// SymbolEntry is one decoded symbol record: its length, kind, and body.
// Body holds a structured type for kinds this package decodes (currently
// just CompileFlags, the richest and most load-bearing kind); every other
// kind keeps its raw data bytes, same as the subsection directory does for
// subsection types it doesn't recognize.
type SymbolEntry struct {
	Length uint16
	Kind   SymbolEntryType
	Body   any
}

func readSymbolEntry(r io.Reader) (SymbolEntry, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return SymbolEntry{}, err
	}
	length := binary.LittleEndian.Uint16(header[0:2])
	if length < 2 {
		return SymbolEntry{}, fmt.Errorf("codeview: symbol entry length %d leaves no room for its kind field", length)
	}
	kind := SymbolEntryType(binary.LittleEndian.Uint16(header[2:4]))

	dataLength := int(length) - 2
	data := make([]byte, dataLength)
	if _, err := io.ReadFull(r, data); err != nil {
		return SymbolEntry{}, err
	}

	var body any = data
	if kind == SymCompileFlags {
		cf, err := readCompileFlags(bytes.NewReader(data))
		if err == nil {
			body = cf
		}
	}

	return SymbolEntry{Length: length, Kind: kind, Body: body}, nil
}
