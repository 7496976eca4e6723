// Package cab reads the Microsoft Cabinet (CAB) format: a header, a table
// of folders (compression streams), a table of files referencing those
// folders by uncompressed offset and length, and the folders' data blocks.
package cab

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/laenix/binms/lzx"
	"github.com/laenix/binms/mszip"
	"github.com/laenix/binms/ring"
)

// Flags are the cabinet header's CabFlags bits.
type Flags uint16

const (
	FlagPrevCabinet     Flags = 0x0001
	FlagNextCabinet     Flags = 0x0002
	FlagReservePresent  Flags = 0x0004
)

var (
	ErrBadSignature  = errors.New("cab: bad \"MSCF\" signature")
	ErrSpannedFile   = errors.New("cab: file spans multiple cabinets, unsupported")
	ErrFileNotFound  = errors.New("cab: file not found")
	ErrQuantumUnsupported = errors.New("cab: Quantum decompression is not implemented")
	ErrUnknownCompression = errors.New("cab: unknown folder compression type")
)

// Header is the cabinet's fixed preamble plus its optional reserved areas
// and spanning-cabinet names.
type Header struct {
	TotalSizeBytes     uint32
	FirstFileOffset    uint32
	MinorVersion       uint8
	MajorVersion       uint8
	FolderCount        uint16
	FileCount          uint16
	Flags              Flags
	SetID              uint16
	CabinetIndexInSet  uint16

	FolderReservedLength uint8
	DataReservedLength   uint8
	ReservedData         []byte

	PreviousCabinetName []byte
	PreviousDiskName    []byte
	NextCabinetName     []byte
	NextDiskName        []byte
}

func (h Header) hasFlag(f Flags) bool { return h.Flags&f != 0 }

// ReadHeader parses a cabinet header, including its optional reserved areas
// and (if the corresponding flags are set) previous/next spanning-cabinet
// names.
func ReadHeader(r io.Reader) (*Header, error) {
	var sig [4]byte
	if _, err := io.ReadFull(r, sig[:]); err != nil {
		return nil, err
	}
	if string(sig[:]) != "MSCF" {
		return nil, ErrBadSignature
	}

	var fixed [32]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return nil, err
	}

	h := &Header{}
	// reserved1 u32 (fixed[0:4]), total_size_bytes u32, reserved2 u32,
	// first_file_offset u32, reserved3 u32, minor/major u8, folder/file
	// counts u16, flags u16, set_id u16, cabinet_index_in_set u16.
	h.TotalSizeBytes = binary.LittleEndian.Uint32(fixed[4:8])
	h.FirstFileOffset = binary.LittleEndian.Uint32(fixed[12:16])
	h.MinorVersion = fixed[20]
	h.MajorVersion = fixed[21]
	h.FolderCount = binary.LittleEndian.Uint16(fixed[22:24])
	h.FileCount = binary.LittleEndian.Uint16(fixed[24:26])
	h.Flags = Flags(binary.LittleEndian.Uint16(fixed[26:28]))
	h.SetID = binary.LittleEndian.Uint16(fixed[28:30])
	h.CabinetIndexInSet = binary.LittleEndian.Uint16(fixed[30:32])

	if h.hasFlag(FlagReservePresent) {
		var rl [4]byte
		if _, err := io.ReadFull(r, rl[:]); err != nil {
			return nil, err
		}
		headerReservedLength := binary.LittleEndian.Uint16(rl[0:2])
		h.FolderReservedLength = rl[2]
		h.DataReservedLength = rl[3]

		h.ReservedData = make([]byte, headerReservedLength)
		if _, err := io.ReadFull(r, h.ReservedData); err != nil {
			return nil, err
		}
	}

	if h.hasFlag(FlagPrevCabinet) {
		var err error
		if h.PreviousCabinetName, err = readUntilZero(r); err != nil {
			return nil, err
		}
		if h.PreviousDiskName, err = readUntilZero(r); err != nil {
			return nil, err
		}
	}
	if h.hasFlag(FlagNextCabinet) {
		var err error
		if h.NextCabinetName, err = readUntilZero(r); err != nil {
			return nil, err
		}
		if h.NextDiskName, err = readUntilZero(r); err != nil {
			return nil, err
		}
	}

	return h, nil
}

// CompressionType is a folder's base compression method (the low nibble of
// the on-disk compression_type field).
type CompressionType uint16

const (
	CompressionNone    CompressionType = 0x0000
	CompressionMSZIP   CompressionType = 0x0001
	CompressionQuantum CompressionType = 0x0002
	CompressionLZX     CompressionType = 0x0003
)

// Folder describes one compression stream: its first data block's absolute
// file offset, how many data blocks it has, and its compression method and
// parameter (for LZX, the window size exponent).
type Folder struct {
	StartOffset          uint32
	DataCount            uint16
	CompressionType       CompressionType
	CompressionParameter uint16
	ReservedData         []byte
}

// ReadFolder parses one folder table entry.
func ReadFolder(r io.Reader, header *Header) (*Folder, error) {
	var fixed [8]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return nil, err
	}
	raw := binary.LittleEndian.Uint16(fixed[6:8])

	f := &Folder{
		StartOffset:          binary.LittleEndian.Uint32(fixed[0:4]),
		DataCount:            binary.LittleEndian.Uint16(fixed[4:6]),
		CompressionType:       CompressionType(raw & 0x0F),
		CompressionParameter: raw,
	}

	f.ReservedData = make([]byte, header.FolderReservedLength)
	if _, err := io.ReadFull(r, f.ReservedData); err != nil {
		return nil, err
	}
	return f, nil
}

// LZXWindowSizeExponent returns the LZX window size exponent encoded in
// the folder's compression parameter, valid only when CompressionType is
// CompressionLZX.
func (f *Folder) LZXWindowSizeExponent() int {
	return int((f.CompressionParameter >> 4) & 0xFF)
}

// FolderIndex sentinels marking a file as spanning multiple cabinets.
const (
	FolderContinuedFromPrevious       uint16 = 0xFFFD
	FolderContinuedToNext             uint16 = 0xFFFE
	FolderContinuedPreviousAndNext    uint16 = 0xFFFF
)

// File is one entry in the cabinet's file table.
type File struct {
	UncompressedSizeBytes      uint32
	UncompressedOffsetInFolder uint32
	FolderIndex                uint16
	Date                       uint16
	Time                       uint16
	Attributes                 uint16
	Name                       string
}

// IsSpanned reports whether this file's folder index is one of the three
// reserved values indicating it spans multiple cabinet files.
func (f *File) IsSpanned() bool {
	switch f.FolderIndex {
	case FolderContinuedFromPrevious, FolderContinuedToNext, FolderContinuedPreviousAndNext:
		return true
	default:
		return false
	}
}

// ReadFile parses one file table entry.
func ReadFile(r io.Reader) (*File, error) {
	var fixed [16]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return nil, err
	}
	name, err := readUntilZero(r)
	if err != nil {
		return nil, err
	}

	return &File{
		UncompressedSizeBytes:      binary.LittleEndian.Uint32(fixed[0:4]),
		UncompressedOffsetInFolder: binary.LittleEndian.Uint32(fixed[4:8]),
		FolderIndex:                binary.LittleEndian.Uint16(fixed[8:10]),
		Date:                       binary.LittleEndian.Uint16(fixed[10:12]),
		Time:                       binary.LittleEndian.Uint16(fixed[12:14]),
		Attributes:                 binary.LittleEndian.Uint16(fixed[14:16]),
		Name:                       string(name),
	}, nil
}

// DataBlock is one compressed chunk within a folder.
type DataBlock struct {
	Checksum              uint32
	CompressedByteCount   uint16
	UncompressedByteCount uint16
	ReservedData          []byte
	Payload               []byte
}

// ReadDataBlock parses one data block header and its payload, given r
// positioned at the block's start.
func ReadDataBlock(r io.Reader, header *Header) (*DataBlock, error) {
	var fixed [8]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return nil, err
	}
	d := &DataBlock{
		Checksum:              binary.LittleEndian.Uint32(fixed[0:4]),
		CompressedByteCount:   binary.LittleEndian.Uint16(fixed[4:6]),
		UncompressedByteCount: binary.LittleEndian.Uint16(fixed[6:8]),
	}
	d.ReservedData = make([]byte, header.DataReservedLength)
	if _, err := io.ReadFull(r, d.ReservedData); err != nil {
		return nil, err
	}
	d.Payload = make([]byte, d.CompressedByteCount)
	if _, err := io.ReadFull(r, d.Payload); err != nil {
		return nil, err
	}
	return d, nil
}

func readUntilZero(r io.Reader) ([]byte, error) {
	var out []byte
	var b [1]byte
	for {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, err
		}
		if b[0] == 0x00 {
			return out, nil
		}
		out = append(out, b[0])
	}
}

// Reader is a cabinet opened for random-access file extraction.
type Reader struct {
	r       io.ReadSeeker
	Header  *Header
	Folders []*Folder
	Files   []*File
}

// Open reads the header, folder table, and file table from r, leaving it
// positioned to parse the tables of a spanning cabinet if the caller wants
// to chase PreviousCabinetName/NextCabinetName.
func Open(r io.ReadSeeker) (*Reader, error) {
	header, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	folders := make([]*Folder, header.FolderCount)
	for i := range folders {
		f, err := ReadFolder(r, header)
		if err != nil {
			return nil, err
		}
		folders[i] = f
	}

	if _, err := r.Seek(int64(header.FirstFileOffset), io.SeekStart); err != nil {
		return nil, err
	}
	files := make([]*File, header.FileCount)
	for i := range files {
		f, err := ReadFile(r)
		if err != nil {
			return nil, err
		}
		files[i] = f
	}

	return &Reader{r: r, Header: header, Folders: folders, Files: files}, nil
}

// ListFiles returns every file name in the cabinet's file table.
func (cr *Reader) ListFiles() []string {
	names := make([]string, len(cr.Files))
	for i, f := range cr.Files {
		names[i] = f.Name
	}
	return names
}

// ReadFile decompresses and returns the named file's contents. Spanned
// files are rejected with ErrSpannedFile.
func (cr *Reader) ReadFile(name string) ([]byte, error) {
	var file *File
	for _, f := range cr.Files {
		if f.Name == name {
			file = f
			break
		}
	}
	if file == nil {
		return nil, fmt.Errorf("%w: %q", ErrFileNotFound, name)
	}
	if file.IsSpanned() {
		return nil, ErrSpannedFile
	}
	if int(file.FolderIndex) >= len(cr.Folders) {
		return nil, ErrFileNotFound
	}
	folder := cr.Folders[file.FolderIndex]

	needed := file.UncompressedOffsetInFolder + file.UncompressedSizeBytes
	decoded, err := cr.decompressFolderPrefix(folder, needed)
	if err != nil {
		return nil, err
	}
	if uint32(len(decoded)) < needed {
		return nil, io.ErrUnexpectedEOF
	}
	return decoded[file.UncompressedOffsetInFolder:needed], nil
}

// decompressFolderPrefix decompresses data blocks of folder in order until
// at least minBytes of uncompressed output have been produced (or the
// folder is exhausted).
func (cr *Reader) decompressFolderPrefix(folder *Folder, minBytes uint32) ([]byte, error) {
	if _, err := cr.r.Seek(int64(folder.StartOffset), io.SeekStart); err != nil {
		return nil, err
	}

	switch folder.CompressionType {
	case CompressionNone:
		var out []byte
		for i := uint16(0); i < folder.DataCount && uint32(len(out)) < minBytes; i++ {
			block, err := ReadDataBlock(cr.r, cr.Header)
			if err != nil {
				return nil, err
			}
			out = append(out, block.Payload...)
		}
		return out, nil

	case CompressionMSZIP:
		var out []byte
		var lookback *ring.Window
		for i := uint16(0); i < folder.DataCount && uint32(len(out)) < minBytes; i++ {
			block, err := ReadDataBlock(cr.r, cr.Header)
			if err != nil {
				return nil, err
			}
			chunk, nextLookback, err := mszip.DecodeBlock(bytes.NewReader(block.Payload), lookback)
			if err != nil {
				return nil, err
			}
			out = append(out, chunk...)
			lookback = nextLookback
		}
		return out, nil

	case CompressionLZX:
		var payload bytes.Buffer
		for i := uint16(0); i < folder.DataCount; i++ {
			block, err := ReadDataBlock(cr.r, cr.Header)
			if err != nil {
				return nil, err
			}
			payload.Write(block.Payload)
		}
		dec, err := lzx.New(&payload, folder.LZXWindowSizeExponent())
		if err != nil {
			return nil, err
		}
		var out []byte
		for uint32(len(out)) < minBytes {
			if err := dec.DecompressBlock(&out); err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
					break
				}
				return nil, err
			}
		}
		return out, nil

	case CompressionQuantum:
		return nil, ErrQuantumUnsupported

	default:
		return nil, ErrUnknownCompression
	}
}
