package pe

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ResourceIdentifier is a resource directory key: either a name (Pascal
// UTF-16LE string) or a numeric id.
type ResourceIdentifier struct {
	IsName bool
	Name   string
	ID     uint32
}

func (id ResourceIdentifier) String() string {
	if id.IsName {
		return id.Name
	}
	return fmt.Sprintf("#%d", id.ID)
}

// ResourceData is a leaf resource: the data directory's (RVA, size,
// codepage, reserved) plus the bytes themselves, read at the mapped raw
// offset.
type ResourceData struct {
	DataRVA  uint32
	Size     uint32
	Codepage uint32
	Reserved uint32
	Data     []byte // nil if the RVA could not be resolved or read
}

// ResourceNode is either a leaf (Data set) or an interior directory
// (Children set) of the three-level type/id/language resource tree.
type ResourceNode struct {
	Characteristics uint32
	Timestamp       uint32
	MajorVersion    uint16
	MinorVersion    uint16

	Data     *ResourceData
	Children map[ResourceIdentifier]*ResourceNode
}

// ResourceChild pairs one directory key with the node it leads to, in the
// order SortedChildren returns them.
type ResourceChild struct {
	Key  ResourceIdentifier
	Node *ResourceNode
}

// less orders names before ids, matching the on-disk directory layout
// (name entries always precede id entries) and sorting alphabetically
// within names and numerically within ids.
func (id ResourceIdentifier) less(other ResourceIdentifier) bool {
	if id.IsName != other.IsName {
		return id.IsName
	}
	if id.IsName {
		return id.Name < other.Name
	}
	return id.ID < other.ID
}

// SortedChildren returns n's children in name-then-id order, per spec.md
// §5's resource-tree ordering guarantee. Map iteration order is otherwise
// unspecified, so callers that depend on a deterministic traversal (e.g.
// picking "the first" child of a given kind) must go through this rather
// than ranging over Children directly.
func (n *ResourceNode) SortedChildren() []ResourceChild {
	children := make([]ResourceChild, 0, len(n.Children))
	for key, node := range n.Children {
		children = append(children, ResourceChild{Key: key, Node: node})
	}
	sort.Slice(children, func(i, j int) bool {
		return children[i].Key.less(children[j].Key)
	})
	return children
}

// ReadResourceTree decodes the resource directory tree rooted at dir,
// following RVAs through sections. As with exports, it refuses to proceed
// if the section table has overlapping entries.
func ReadResourceTree(r io.ReadSeeker, dir DataDirectory, sections *SectionTable) (*ResourceNode, error) {
	if sections.HasOverlap() {
		return nil, ErrSectionsOverlap
	}
	rootRaw, ok := sections.VirtualToRaw(dir.VirtualAddress)
	if !ok {
		return nil, fmt.Errorf("%w: resource directory RVA %#x", ErrAddressNotMapped, dir.VirtualAddress)
	}
	if _, err := r.Seek(int64(rootRaw), io.SeekStart); err != nil {
		return nil, err
	}
	return readResourceDirectory(r, dir.VirtualAddress, sections)
}

func readResourceDirectory(r io.ReadSeeker, resourcesStartVirtual uint32, sections *SectionTable) (*ResourceNode, error) {
	var header [16]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("pe: reading resource directory header: %w", err)
	}

	node := &ResourceNode{
		Characteristics: binary.LittleEndian.Uint32(header[0:4]),
		Timestamp:       binary.LittleEndian.Uint32(header[4:8]),
		MajorVersion:    binary.LittleEndian.Uint16(header[8:10]),
		MinorVersion:    binary.LittleEndian.Uint16(header[10:12]),
		Children:        make(map[ResourceIdentifier]*ResourceNode),
	}
	nameEntryCount := binary.LittleEndian.Uint16(header[12:14])
	idEntryCount := binary.LittleEndian.Uint16(header[14:16])

	total := int(nameEntryCount) + int(idEntryCount)
	entryBytes := make([]byte, total*8)
	if _, err := io.ReadFull(r, entryBytes); err != nil {
		return nil, fmt.Errorf("pe: reading resource directory entries: %w", err)
	}

	afterEntriesPos, err := seekTell(r)
	if err != nil {
		return nil, err
	}

	rest := entryBytes
	for i := 0; i < int(nameEntryCount); i++ {
		nameOffset := binary.LittleEndian.Uint32(rest[0:4])
		valueOffset := binary.LittleEndian.Uint32(rest[4:8])
		rest = rest[8:]

		if nameOffset&0x80000000 == 0 {
			return nil, fmt.Errorf("pe: named resource entry offset %#x is missing the top bit", nameOffset)
		}
		namePosVirtual := resourcesStartVirtual + (nameOffset &^ 0x80000000)
		namePosRaw, ok := sections.VirtualToRaw(namePosVirtual)
		if !ok {
			return nil, fmt.Errorf("%w: resource name at RVA %#x", ErrAddressNotMapped, namePosVirtual)
		}
		if _, err := r.Seek(int64(namePosRaw), io.SeekStart); err != nil {
			return nil, err
		}
		name, err := readPascalUTF16LE(r)
		if err != nil {
			return nil, fmt.Errorf("pe: reading resource name: %w", err)
		}

		child, err := readResourceChild(r, resourcesStartVirtual, valueOffset, sections)
		if err != nil {
			return nil, err
		}
		key := ResourceIdentifier{IsName: true, Name: name}
		if _, exists := node.Children[key]; exists {
			return nil, fmt.Errorf("pe: duplicate resource key %q", name)
		}
		node.Children[key] = child
	}

	for i := 0; i < int(idEntryCount); i++ {
		id := binary.LittleEndian.Uint32(rest[0:4])
		valueOffset := binary.LittleEndian.Uint32(rest[4:8])
		rest = rest[8:]

		child, err := readResourceChild(r, resourcesStartVirtual, valueOffset, sections)
		if err != nil {
			return nil, err
		}
		key := ResourceIdentifier{ID: id}
		if _, exists := node.Children[key]; exists {
			return nil, fmt.Errorf("pe: duplicate resource key #%d", id)
		}
		node.Children[key] = child
	}

	// Restore position for any sibling directories still to be read by the
	// caller's loop, mirroring the original's seek-back-to-start discipline.
	if _, err := r.Seek(afterEntriesPos, io.SeekStart); err != nil {
		return nil, err
	}

	return node, nil
}

func readResourceChild(r io.ReadSeeker, resourcesStartVirtual, valueOffsetVirtual uint32, sections *SectionTable) (*ResourceNode, error) {
	pos, err := seekTell(r)
	if err != nil {
		return nil, err
	}

	var child *ResourceNode
	if valueOffsetVirtual&0x80000000 == 0 {
		dataLocVirtual := resourcesStartVirtual + valueOffsetVirtual
		dataLocRaw, ok := sections.VirtualToRaw(dataLocVirtual)
		if !ok {
			return nil, fmt.Errorf("%w: resource data at RVA %#x", ErrAddressNotMapped, dataLocVirtual)
		}
		if _, err := r.Seek(int64(dataLocRaw), io.SeekStart); err != nil {
			return nil, err
		}
		data, err := readResourceData(r, sections)
		if err != nil {
			return nil, err
		}
		child = &ResourceNode{Data: data}
	} else {
		subdirLocVirtual := resourcesStartVirtual + (valueOffsetVirtual &^ 0x80000000)
		subdirLocRaw, ok := sections.VirtualToRaw(subdirLocVirtual)
		if !ok {
			return nil, fmt.Errorf("%w: resource subdirectory at RVA %#x", ErrAddressNotMapped, subdirLocVirtual)
		}
		if _, err := r.Seek(int64(subdirLocRaw), io.SeekStart); err != nil {
			return nil, err
		}
		child, err = readResourceDirectory(r, resourcesStartVirtual, sections)
		if err != nil {
			return nil, err
		}
	}

	if _, err := r.Seek(pos, io.SeekStart); err != nil {
		return nil, err
	}
	return child, nil
}

func readResourceData(r io.ReadSeeker, sections *SectionTable) (*ResourceData, error) {
	var header [16]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("pe: reading resource data header: %w", err)
	}
	rd := &ResourceData{
		DataRVA:  binary.LittleEndian.Uint32(header[0:4]),
		Size:     binary.LittleEndian.Uint32(header[4:8]),
		Codepage: binary.LittleEndian.Uint32(header[8:12]),
		Reserved: binary.LittleEndian.Uint32(header[12:16]),
	}

	if dataRaw, ok := sections.VirtualToRaw(rd.DataRVA); ok {
		if _, err := r.Seek(int64(dataRaw), io.SeekStart); err == nil {
			buf := make([]byte, rd.Size)
			if _, err := io.ReadFull(r, buf); err == nil {
				rd.Data = buf
			}
		}
	}
	return rd, nil
}

// readPascalUTF16LE reads a u16 character count followed by that many
// UTF-16LE code units, per spec.md §4.7's resource-name encoding.
func readPascalUTF16LE(r io.Reader) (string, error) {
	var countBuf [2]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return "", err
	}
	count := binary.LittleEndian.Uint16(countBuf[:])

	raw := make([]byte, int(count)*2)
	if _, err := io.ReadFull(r, raw); err != nil {
		return "", err
	}

	utf16le := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	decoded, _, err := transform.Bytes(utf16le.NewDecoder(), raw)
	if err != nil {
		return "", fmt.Errorf("pe: decoding UTF-16LE resource name: %w", err)
	}
	return string(decoded), nil
}
