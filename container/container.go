// Package container identifies a byte blob's container format and exposes
// a uniform capability surface over it: list+read-by-path for archive-like
// formats, read-the-one-file for single-file compressors, or list-symbols
// for executables that export a symbol table.
package container

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/laenix/binms/cab"
	"github.com/laenix/binms/fat"
	"github.com/laenix/binms/kwaj"
	"github.com/laenix/binms/mz"
	"github.com/laenix/binms/ne"
	"github.com/laenix/binms/pe"
)

// PathSequence is an ordered list of path parts, one per container level
// (a file inside a folder inside a disk image, say).
type PathSequence []string

func (p PathSequence) String() string {
	s := ""
	for i, part := range p {
		if i > 0 {
			s += "/"
		}
		s += part
	}
	return s
}

// Symbol names one exported symbol, by name, by ordinal, or both.
type Symbol struct {
	Name    *string
	Ordinal *uint32
}

func SymbolByName(name string) Symbol { return Symbol{Name: &name} }
func SymbolByOrdinal(ordinal uint32) Symbol { return Symbol{Ordinal: &ordinal} }
func SymbolByNameAndOrdinal(name string, ordinal uint32) Symbol {
	return Symbol{Name: &name, Ordinal: &ordinal}
}

// MultiFileLister lists the files a multi-file container holds.
type MultiFileLister interface {
	ListFiles() ([]PathSequence, error)
}

// PathReader reads one file out of a multi-file container by path.
type PathReader interface {
	ReadFile(path PathSequence) ([]byte, error)
}

// SingleFileReader reads the sole payload of a single-file container.
type SingleFileReader interface {
	ReadFile() ([]byte, error)
}

// SymbolLister lists the exported symbols of an executable.
type SymbolLister interface {
	ListSymbols() ([]Symbol, error)
}

// IdentifiedFile is the polymorphic handle returned by InterpretFile. It
// is always exactly one of MultiFileContainer, SingleFileContainer,
// SymbolExporter, or Unidentified — use a type switch to dispatch.
type IdentifiedFile interface {
	identifiedFile()
}

// MultiFileContainer is an archive-like container: a FAT image or CAB
// cabinet, each offering ListFiles and ReadFile by path.
type MultiFileContainer struct {
	MultiFileLister
	PathReader
}

func (MultiFileContainer) identifiedFile() {}

// SingleFileContainer wraps a single-file compressor (KWAJ, SZDD).
type SingleFileContainer struct {
	SingleFileReader
}

func (SingleFileContainer) identifiedFile() {}

// SymbolExporter wraps an executable whose symbol table (PE export table
// or NE/CodeView-adjacent name table) can be listed.
type SymbolExporter struct {
	SymbolLister
}

func (SymbolExporter) identifiedFile() {}

// Unidentified is returned when no known container format's magic
// matched.
type Unidentified struct{}

func (Unidentified) identifiedFile() {}

var ErrEmpty = errors.New("container: empty input")

// InterpretFile sniffs data's leading bytes against every container
// format's magic (per the catalogue in §6.1: MZ, MSCF, KWAJ/SZDD/SZ) and
// returns the matching capability wrapper, or Unidentified if none match.
func InterpretFile(data []byte) (IdentifiedFile, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}

	switch {
	case bytes.HasPrefix(data, []byte("MZ")):
		return interpretMZFamily(data)
	case bytes.HasPrefix(data, []byte("MSCF")):
		return interpretCAB(data)
	case bytes.HasPrefix(data, []byte("KWAJ\x88\xF0\x27\xD1")):
		return interpretKWAJFamily(data, kwaj.Decompress)
	case bytes.HasPrefix(data, []byte("SZDD\x88\xF0\x27\x33")):
		return interpretKWAJFamily(data, kwaj.DecompressSZDD)
	case bytes.HasPrefix(data, []byte("SZ \x88\xF0\x27\x33\xD1")):
		return interpretKWAJFamily(data, kwaj.DecompressSZ)
	case isFATHint(data):
		return interpretFAT(data)
	}

	return Unidentified{}, nil
}

type decompressFunc func(r io.Reader, w io.Writer) error

func interpretKWAJFamily(data []byte, decompress decompressFunc) (IdentifiedFile, error) {
	return SingleFileContainer{SingleFileReader: singleFileReaderFunc(func() ([]byte, error) {
		var out bytes.Buffer
		// The decompressors expect the 8-byte magic to be consumed already.
		if err := decompress(bytes.NewReader(data[8:]), &out); err != nil {
			return nil, fmt.Errorf("container: decompressing single-file payload: %w", err)
		}
		return out.Bytes(), nil
	})}, nil
}

type singleFileReaderFunc func() ([]byte, error)

func (f singleFileReaderFunc) ReadFile() ([]byte, error) { return f() }

func interpretCAB(data []byte) (IdentifiedFile, error) {
	r, err := cab.Open(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("container: opening CAB: %w", err)
	}
	return MultiFileContainer{
		MultiFileLister: multiFileListerFunc(func() ([]PathSequence, error) {
			names := r.ListFiles()
			paths := make([]PathSequence, len(names))
			for i, n := range names {
				paths[i] = PathSequence{n}
			}
			return paths, nil
		}),
		PathReader: pathReaderFunc(func(path PathSequence) ([]byte, error) {
			if len(path) != 1 {
				return nil, fmt.Errorf("container: CAB paths are single-component, got %v", path)
			}
			return r.ReadFile(path[0])
		}),
	}, nil
}

// isFATHint applies the weak x86-jump-prefix heuristic from §6.1: a FAT
// boot sector's first three bytes are either a short jump (EB ?? 90) or a
// near jump (E9 ?? ??).
func isFATHint(data []byte) bool {
	if len(data) < 3 {
		return false
	}
	if data[0] == 0xEB && data[2] == 0x90 {
		return true
	}
	return data[0] == 0xE9
}

func interpretFAT(data []byte) (IdentifiedFile, error) {
	// FAT images don't declare their own sector size in a fixed header
	// field accessible before parsing, but every BIOS parameter block
	// variant places it at offset 11; 512 is by far the most common and
	// is what fat.SliceReader needs as a starting guess.
	const defaultSectorSize = 512
	reader, err := fat.NewSliceReader(data, defaultSectorSize)
	if err != nil {
		return nil, fmt.Errorf("container: wrapping FAT image: %w", err)
	}
	fs, err := fat.Open(reader)
	if err != nil {
		return nil, fmt.Errorf("container: opening FAT volume: %w", err)
	}
	return MultiFileContainer{
		MultiFileLister: multiFileListerFunc(func() ([]PathSequence, error) {
			names, err := fs.ListFiles()
			if err != nil {
				return nil, err
			}
			paths := make([]PathSequence, len(names))
			for i, n := range names {
				paths[i] = PathSequence{n}
			}
			return paths, nil
		}),
		PathReader: pathReaderFunc(func(path PathSequence) ([]byte, error) {
			if len(path) != 1 {
				return nil, fmt.Errorf("container: FAT paths are single-component, got %v", path)
			}
			return fs.ReadFile(path[0])
		}),
	}, nil
}

type multiFileListerFunc func() ([]PathSequence, error)

func (f multiFileListerFunc) ListFiles() ([]PathSequence, error) { return f() }

type pathReaderFunc func(PathSequence) ([]byte, error)

func (f pathReaderFunc) ReadFile(path PathSequence) ([]byte, error) { return f(path) }

// interpretMZFamily reads the MZ header and its extension-header offset
// to decide between NE and PE, both of which are SymbolExporters (NE via
// its resident/non-resident name tables, PE via its export table).
func interpretMZFamily(data []byte) (IdentifiedFile, error) {
	r := bytes.NewReader(data)
	if _, err := mz.Read(r); err != nil {
		return nil, fmt.Errorf("container: reading MZ header: %w", err)
	}

	extOffset, err := mz.ExtensionHeaderOffset(r)
	if err != nil {
		return nil, fmt.Errorf("container: locating extension header: %w", err)
	}
	if int(extOffset)+4 > len(data) {
		return Unidentified{}, nil
	}

	switch {
	case bytes.Equal(data[extOffset:extOffset+2], []byte("NE")):
		return interpretNE(data)
	case bytes.Equal(data[extOffset:extOffset+4], []byte("PE\x00\x00")):
		return interpretPE(data)
	default:
		return Unidentified{}, nil
	}
}

func interpretNE(data []byte) (IdentifiedFile, error) {
	file, err := ne.Read(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("container: reading NE executable: %w", err)
	}
	return SymbolExporter{SymbolLister: symbolListerFunc(func() ([]Symbol, error) {
		symbols := make([]Symbol, 0, len(file.ResidentNameTable)+len(file.NonResidentNameTable))
		for _, n := range file.ResidentNameTable {
			symbols = append(symbols, SymbolByNameAndOrdinal(n.Name, uint32(n.OrdinalNumber)))
		}
		for _, n := range file.NonResidentNameTable {
			symbols = append(symbols, SymbolByNameAndOrdinal(n.Name, uint32(n.OrdinalNumber)))
		}
		return symbols, nil
	})}, nil
}

func interpretPE(data []byte) (IdentifiedFile, error) {
	file, err := pe.Read(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("container: reading PE executable: %w", err)
	}
	return SymbolExporter{SymbolLister: symbolListerFunc(func() ([]Symbol, error) {
		dir, ok := file.OptionalHeader.DataDirectoryEntry(pe.DirExportTable)
		if !ok || dir.VirtualAddress == 0 {
			return nil, nil
		}
		table, err := pe.ReadExportTable(bytes.NewReader(data), dir, &file.Sections)
		if err != nil {
			return nil, fmt.Errorf("container: reading export table: %w", err)
		}
		symbols := make([]Symbol, 0, len(table.NameToOrdinal))
		for name, ordinal := range table.NameToOrdinal {
			symbols = append(symbols, SymbolByNameAndOrdinal(name, ordinal))
		}
		return symbols, nil
	})}, nil
}

type symbolListerFunc func() ([]Symbol, error)

func (f symbolListerFunc) ListSymbols() ([]Symbol, error) { return f() }
