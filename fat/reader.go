package fat

import "fmt"

// Reader is the sector-addressable source a FAT file system is parsed
// against. Mirrors the teacher module's filesystem.Reader contract so the
// same adapter shape works for disk images, embedded volumes, or (as here)
// an in-memory byte slice.
type Reader interface {
	ReadSector(sectorNumber uint64) ([]byte, error)
	ReadSectors(startSector, count uint64) ([]byte, error)
	ReadBytes(offset, size uint64) ([]byte, error)
	GetSectorSize() uint32
	GetSectorCount() uint64
}

// SliceReader is a Reader backed by an in-memory byte slice — a whole disk
// image, or a single partition already carved out of one.
type SliceReader struct {
	data       []byte
	sectorSize uint32
}

// NewSliceReader wraps data as a Reader with the given sector size. Returns
// an error if data's length isn't a whole number of sectors.
func NewSliceReader(data []byte, sectorSize uint32) (*SliceReader, error) {
	if sectorSize == 0 {
		return nil, fmt.Errorf("fat: sector size must be non-zero")
	}
	if len(data)%int(sectorSize) != 0 {
		return nil, fmt.Errorf("fat: image length %d is not a multiple of sector size %d", len(data), sectorSize)
	}
	return &SliceReader{data: data, sectorSize: sectorSize}, nil
}

func (r *SliceReader) GetSectorSize() uint32 { return r.sectorSize }

func (r *SliceReader) GetSectorCount() uint64 { return uint64(len(r.data)) / uint64(r.sectorSize) }

func (r *SliceReader) ReadSector(sectorNumber uint64) ([]byte, error) {
	return r.ReadSectors(sectorNumber, 1)
}

func (r *SliceReader) ReadSectors(startSector, count uint64) ([]byte, error) {
	start := startSector * uint64(r.sectorSize)
	length := count * uint64(r.sectorSize)
	if start+length > uint64(len(r.data)) {
		return nil, fmt.Errorf("fat: sector range [%d,%d) out of bounds (image has %d sectors)", startSector, startSector+count, r.GetSectorCount())
	}
	out := make([]byte, length)
	copy(out, r.data[start:start+length])
	return out, nil
}

func (r *SliceReader) ReadBytes(offset, size uint64) ([]byte, error) {
	if offset+size > uint64(len(r.data)) {
		return nil, fmt.Errorf("fat: byte range [%d,%d) out of bounds (image is %d bytes)", offset, offset+size, len(r.data))
	}
	out := make([]byte, size)
	copy(out, r.data[offset:offset+size])
	return out, nil
}
