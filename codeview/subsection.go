package codeview

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

var errBadSymbolsSignature = errors.New("codeview: symbols subsection signature is not 0x00000001")

// ModuleSegmentInfo is one code-segment record within a Module subsection.
type ModuleSegmentInfo struct {
	Segment    uint16
	Padding    uint16
	CodeOffset uint32
	CodeSize   uint32
}

func readModuleSegmentInfo(r io.Reader) (ModuleSegmentInfo, error) {
	var buf [12]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return ModuleSegmentInfo{}, err
	}
	return ModuleSegmentInfo{
		Segment:    binary.LittleEndian.Uint16(buf[0:2]),
		Padding:    binary.LittleEndian.Uint16(buf[2:4]),
		CodeOffset: binary.LittleEndian.Uint32(buf[4:8]),
		CodeSize:   binary.LittleEndian.Uint32(buf[8:12]),
	}, nil
}

// ModuleSubsection names one source module and the segments its code lives
// in.
type ModuleSubsection struct {
	OverlayNumber    uint16
	LibraryIndex     uint16
	CodeSegmentCount uint16
	DebuggingStyle   uint16
	SegmentInfo      []ModuleSegmentInfo
	Name             string
}

func readModuleSubsection(r io.Reader) (ModuleSubsection, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return ModuleSubsection{}, err
	}
	m := ModuleSubsection{
		OverlayNumber:    binary.LittleEndian.Uint16(header[0:2]),
		LibraryIndex:     binary.LittleEndian.Uint16(header[2:4]),
		CodeSegmentCount: binary.LittleEndian.Uint16(header[4:6]),
		DebuggingStyle:   binary.LittleEndian.Uint16(header[6:8]),
	}

	m.SegmentInfo = make([]ModuleSegmentInfo, 0, m.CodeSegmentCount)
	for i := uint16(0); i < m.CodeSegmentCount; i++ {
		seg, err := readModuleSegmentInfo(r)
		if err != nil {
			return ModuleSubsection{}, err
		}
		m.SegmentInfo = append(m.SegmentInfo, seg)
	}

	name, err := readPascalByteString(r)
	if err != nil {
		return ModuleSubsection{}, err
	}
	m.Name = name
	return m, nil
}

// readLengthPrefixedSymbolBlob reads one symbol entry's raw bytes (its own
// 2-byte length covering kind+data, included in the returned slice) from a
// stream of concatenated entries. A clean end of stream before any length
// byte is reported by returning (nil, nil); any other short read is an
// error, distinguishing "no more entries" from a truncated entry.
func readLengthPrefixedSymbolBlob(r io.Reader) ([]byte, error) {
	var b0 [1]byte
	n, err := r.Read(b0[:])
	if err != nil && err != io.EOF {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	var b1 [1]byte
	if _, err := io.ReadFull(r, b1[:]); err != nil {
		return nil, err
	}

	length := uint16(b0[0]) | uint16(b1[0])<<8
	data := make([]byte, int(length)+2)
	data[0], data[1] = b0[0], b1[0]
	if _, err := io.ReadFull(r, data[2:]); err != nil {
		return nil, err
	}
	return data, nil
}

// SymbolsSubsection is a sequence of symbol entries, used by both the
// Symbols and AlignSymbols subsection types.
type SymbolsSubsection struct {
	Signature uint32
	Symbols   []SymbolEntry
}

func readSymbolsSubsection(r io.Reader) (SymbolsSubsection, error) {
	var sigBuf [4]byte
	if _, err := io.ReadFull(r, sigBuf[:]); err != nil {
		return SymbolsSubsection{}, err
	}
	signature := binary.LittleEndian.Uint32(sigBuf[:])
	if signature != 0x00000001 {
		return SymbolsSubsection{}, errBadSymbolsSignature
	}

	var symbols []SymbolEntry
	for {
		blob, err := readLengthPrefixedSymbolBlob(r)
		if err != nil {
			return SymbolsSubsection{}, err
		}
		if blob == nil {
			break
		}
		sym, err := readSymbolEntry(bytes.NewReader(blob))
		if err != nil {
			return SymbolsSubsection{}, err
		}
		symbols = append(symbols, sym)
	}

	return SymbolsSubsection{Signature: signature, Symbols: symbols}, nil
}

// SourceLineSegment carries line/address pairs for one segment within a
// source file.
type SourceLineSegment struct {
	SegmentIndex  uint16
	LinePairCount uint16
	LineOffsets   []uint32
	LineNumbers   []uint16
	Padding       *uint16
}

func readSourceLineSegment(r io.Reader) (SourceLineSegment, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return SourceLineSegment{}, err
	}
	s := SourceLineSegment{
		SegmentIndex:  binary.LittleEndian.Uint16(header[0:2]),
		LinePairCount: binary.LittleEndian.Uint16(header[2:4]),
	}

	offsetsBuf := make([]byte, 4*int(s.LinePairCount))
	if _, err := io.ReadFull(r, offsetsBuf); err != nil {
		return SourceLineSegment{}, err
	}
	s.LineOffsets = make([]uint32, s.LinePairCount)
	for i := range s.LineOffsets {
		s.LineOffsets[i] = binary.LittleEndian.Uint32(offsetsBuf[4*i : 4*i+4])
	}

	numbersBuf := make([]byte, 2*int(s.LinePairCount))
	if _, err := io.ReadFull(r, numbersBuf); err != nil {
		return SourceLineSegment{}, err
	}
	s.LineNumbers = make([]uint16, s.LinePairCount)
	for i := range s.LineNumbers {
		s.LineNumbers[i] = binary.LittleEndian.Uint16(numbersBuf[2*i : 2*i+2])
	}

	if s.LinePairCount%2 != 0 {
		var padBuf [2]byte
		if _, err := io.ReadFull(r, padBuf[:]); err != nil {
			return SourceLineSegment{}, err
		}
		pad := binary.LittleEndian.Uint16(padBuf[:])
		s.Padding = &pad
	}

	return s, nil
}

// SourceLineFile is one source file's line-number table within a
// SourceLineModule subsection.
type SourceLineFile struct {
	SegmentCount       uint16
	Padding            uint16
	SourceLineOffsets  []uint32
	SegmentStartsEnds  [][2]uint32
	Name               string
	Segments           []SourceLineSegment
}

func readSourceLineFile(r io.Reader) (SourceLineFile, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return SourceLineFile{}, err
	}
	f := SourceLineFile{
		SegmentCount: binary.LittleEndian.Uint16(header[0:2]),
		Padding:      binary.LittleEndian.Uint16(header[2:4]),
	}
	n := int(f.SegmentCount)

	offsetsBuf := make([]byte, 4*n)
	if _, err := io.ReadFull(r, offsetsBuf); err != nil {
		return SourceLineFile{}, err
	}
	f.SourceLineOffsets = make([]uint32, n)
	for i := range f.SourceLineOffsets {
		f.SourceLineOffsets[i] = binary.LittleEndian.Uint32(offsetsBuf[4*i : 4*i+4])
	}

	startsEndsBuf := make([]byte, 8*n)
	if _, err := io.ReadFull(r, startsEndsBuf); err != nil {
		return SourceLineFile{}, err
	}
	f.SegmentStartsEnds = make([][2]uint32, n)
	for i := range f.SegmentStartsEnds {
		f.SegmentStartsEnds[i] = [2]uint32{
			binary.LittleEndian.Uint32(startsEndsBuf[8*i : 8*i+4]),
			binary.LittleEndian.Uint32(startsEndsBuf[8*i+4 : 8*i+8]),
		}
	}

	name, err := readPascalByteString(r)
	if err != nil {
		return SourceLineFile{}, err
	}
	f.Name = name

	// Pad the record (1-byte length prefix + name) out to a u32 boundary.
	switch (len(name)+1)%4 {
	case 1:
		var pad [3]byte
		if _, err := io.ReadFull(r, pad[:]); err != nil {
			return SourceLineFile{}, err
		}
	case 2:
		var pad [2]byte
		if _, err := io.ReadFull(r, pad[:]); err != nil {
			return SourceLineFile{}, err
		}
	case 3:
		var pad [1]byte
		if _, err := io.ReadFull(r, pad[:]); err != nil {
			return SourceLineFile{}, err
		}
	}

	f.Segments = make([]SourceLineSegment, 0, n)
	for i := 0; i < n; i++ {
		seg, err := readSourceLineSegment(r)
		if err != nil {
			return SourceLineFile{}, err
		}
		f.Segments = append(f.Segments, seg)
	}

	return f, nil
}

// SourceLineModuleSubsection maps a module's segments to the source files
// and line numbers that generated them.
type SourceLineModuleSubsection struct {
	SourceFileCount   uint16
	SegmentCount      uint16
	SourceFileOffsets []uint32
	SegmentStartsEnds [][2]uint32
	SegmentIndices    []uint16
	Padding           *uint16
	SourceFiles       []SourceLineFile
}

func readSourceLineModuleSubsection(r io.Reader) (SourceLineModuleSubsection, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return SourceLineModuleSubsection{}, err
	}
	m := SourceLineModuleSubsection{
		SourceFileCount: binary.LittleEndian.Uint16(header[0:2]),
		SegmentCount:    binary.LittleEndian.Uint16(header[2:4]),
	}

	offsetsBuf := make([]byte, 4*int(m.SourceFileCount))
	if _, err := io.ReadFull(r, offsetsBuf); err != nil {
		return SourceLineModuleSubsection{}, err
	}
	m.SourceFileOffsets = make([]uint32, m.SourceFileCount)
	for i := range m.SourceFileOffsets {
		m.SourceFileOffsets[i] = binary.LittleEndian.Uint32(offsetsBuf[4*i : 4*i+4])
	}

	startsEndsBuf := make([]byte, 8*int(m.SegmentCount))
	if _, err := io.ReadFull(r, startsEndsBuf); err != nil {
		return SourceLineModuleSubsection{}, err
	}
	m.SegmentStartsEnds = make([][2]uint32, m.SegmentCount)
	for i := range m.SegmentStartsEnds {
		m.SegmentStartsEnds[i] = [2]uint32{
			binary.LittleEndian.Uint32(startsEndsBuf[8*i : 8*i+4]),
			binary.LittleEndian.Uint32(startsEndsBuf[8*i+4 : 8*i+8]),
		}
	}

	indicesBuf := make([]byte, 2*int(m.SegmentCount))
	if _, err := io.ReadFull(r, indicesBuf); err != nil {
		return SourceLineModuleSubsection{}, err
	}
	m.SegmentIndices = make([]uint16, m.SegmentCount)
	for i := range m.SegmentIndices {
		m.SegmentIndices[i] = binary.LittleEndian.Uint16(indicesBuf[2*i : 2*i+2])
	}

	if m.SegmentCount%2 != 0 {
		var padBuf [2]byte
		if _, err := io.ReadFull(r, padBuf[:]); err != nil {
			return SourceLineModuleSubsection{}, err
		}
		pad := binary.LittleEndian.Uint16(padBuf[:])
		m.Padding = &pad
	}

	m.SourceFiles = make([]SourceLineFile, 0, m.SourceFileCount)
	for i := uint16(0); i < m.SourceFileCount; i++ {
		f, err := readSourceLineFile(r)
		if err != nil {
			return SourceLineModuleSubsection{}, err
		}
		m.SourceFiles = append(m.SourceFiles, f)
	}

	return m, nil
}

// LibrariesSubsection lists the names of libraries linked into the module,
// as a run of Pascal-prefixed strings filling the subsection.
type LibrariesSubsection struct {
	Libraries []string
}

func readLibrariesSubsection(r io.Reader) (LibrariesSubsection, error) {
	var libraries []string
	for {
		var lenBuf [1]byte
		n, err := r.Read(lenBuf[:])
		if err != nil && err != io.EOF {
			return LibrariesSubsection{}, err
		}
		if n == 0 {
			break
		}
		name := make([]byte, lenBuf[0])
		if _, err := io.ReadFull(r, name); err != nil {
			return LibrariesSubsection{}, err
		}
		libraries = append(libraries, string(name))
	}
	return LibrariesSubsection{Libraries: libraries}, nil
}

// GlobalSymbolsSubsection is the linker-built symbol index shared by the
// GlobalSymbols, GlobalPublicSymbols, and StaticSymbols subsection types.
type GlobalSymbolsSubsection struct {
	SymbolHashFunctionIndex  uint16
	AddressHashFunctionIndex uint16
	SymbolsLength            uint32
	SymbolHashTableLength    uint32
	AddressHashTableLength   uint32
	Symbols                  []SymbolEntry
	SymbolHashTable          []byte
	AddressHashTable         []byte
}

func readGlobalSymbolsSubsection(r io.Reader) (GlobalSymbolsSubsection, error) {
	var header [16]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return GlobalSymbolsSubsection{}, err
	}
	g := GlobalSymbolsSubsection{
		SymbolHashFunctionIndex:  binary.LittleEndian.Uint16(header[0:2]),
		AddressHashFunctionIndex: binary.LittleEndian.Uint16(header[2:4]),
		SymbolsLength:            binary.LittleEndian.Uint32(header[4:8]),
		SymbolHashTableLength:    binary.LittleEndian.Uint32(header[8:12]),
		AddressHashTableLength:   binary.LittleEndian.Uint32(header[12:16]),
	}

	symbolBytes := make([]byte, g.SymbolsLength)
	if _, err := io.ReadFull(r, symbolBytes); err != nil {
		return GlobalSymbolsSubsection{}, err
	}
	g.SymbolHashTable = make([]byte, g.SymbolHashTableLength)
	if _, err := io.ReadFull(r, g.SymbolHashTable); err != nil {
		return GlobalSymbolsSubsection{}, err
	}
	g.AddressHashTable = make([]byte, g.AddressHashTableLength)
	if _, err := io.ReadFull(r, g.AddressHashTable); err != nil {
		return GlobalSymbolsSubsection{}, err
	}

	symbolReader := bytes.NewReader(symbolBytes)
	for {
		blob, err := readLengthPrefixedSymbolBlob(symbolReader)
		if err != nil {
			return GlobalSymbolsSubsection{}, err
		}
		if blob == nil {
			break
		}
		sym, err := readSymbolEntry(bytes.NewReader(blob))
		if err != nil {
			return GlobalSymbolsSubsection{}, err
		}
		g.Symbols = append(g.Symbols, sym)
	}

	return g, nil
}

// GlobalTypesSubsection is the linker-built type table: a header naming how
// many types follow, an offset table, and the type leaves themselves.
//
// Offsets in NB09 streams run from the position of the first type leaf;
// earlier format versions count from the subsection's own start. This
// package only sees NB09-style streams in practice, so offsets are always
// resolved relative to the first type leaf.
type GlobalTypesSubsection struct {
	Flags       uint32
	TypeCount   uint32
	TypeOffsets []uint32
	TypeLeaves  []TypeLeaf
}

func readGlobalTypesSubsection(r io.ReadSeeker) (GlobalTypesSubsection, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return GlobalTypesSubsection{}, err
	}
	g := GlobalTypesSubsection{
		Flags:     binary.LittleEndian.Uint32(header[0:4]),
		TypeCount: binary.LittleEndian.Uint32(header[4:8]),
	}

	offsetsBuf := make([]byte, 4*int(g.TypeCount))
	if _, err := io.ReadFull(r, offsetsBuf); err != nil {
		return GlobalTypesSubsection{}, err
	}
	g.TypeOffsets = make([]uint32, g.TypeCount)
	for i := range g.TypeOffsets {
		g.TypeOffsets[i] = binary.LittleEndian.Uint32(offsetsBuf[4*i : 4*i+4])
	}

	firstTypePos, err := seekTellSeeker(r)
	if err != nil {
		return GlobalTypesSubsection{}, err
	}

	g.TypeLeaves = make([]TypeLeaf, 0, g.TypeCount)
	for _, off := range g.TypeOffsets {
		if _, err := r.Seek(firstTypePos+int64(off), io.SeekStart); err != nil {
			return GlobalTypesSubsection{}, err
		}
		var lenBuf [2]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return GlobalTypesSubsection{}, err
		}
		length := binary.LittleEndian.Uint16(lenBuf[:])
		leafBuf := make([]byte, length)
		if _, err := io.ReadFull(r, leafBuf); err != nil {
			return GlobalTypesSubsection{}, err
		}
		leaf, err := readTypeLeaf(bytes.NewReader(leafBuf))
		if err != nil {
			return GlobalTypesSubsection{}, err
		}
		g.TypeLeaves = append(g.TypeLeaves, leaf)
	}

	return g, nil
}

func seekTellSeeker(r io.Seeker) (int64, error) {
	return r.Seek(0, io.SeekCurrent)
}
