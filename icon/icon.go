// Package icon decodes the two resource formats that point at or carry a
// bitmap icon image: the RT_GROUP_ICON directory (an ordered list of
// candidate sizes/depths, each naming an RT_ICON resource by id) and the
// standalone Windows 1.0 ICO resource format that predates RT_ICON.
package icon

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrTooShort         = errors.New("icon: buffer too short")
	ErrWrongReserved    = errors.New("icon: reserved field is not 0")
	ErrWrongGroupType   = errors.New("icon: group type is not 1")
	ErrUnknownIndicator = errors.New("icon: unknown format indicator")
)

// GroupIcon is one candidate entry in an icon group directory: its
// declared dimensions and color depth, and the resource id of the
// RT_ICON resource holding the actual bitmap.
type GroupIcon struct {
	Width       uint8
	Height      uint8
	ColorCount  uint8
	Reserved    uint8
	Planes      uint16
	BitCount    uint16
	ByteCount   uint32
	ID          uint16
}

// Group is a decoded RT_GROUP_ICON resource: a header plus one entry per
// candidate icon size/depth.
type Group struct {
	Icons []GroupIcon
}

// ParseGroup decodes an icon group resource: a 6-byte header (reserved
// u16 = 0, type u16 = 1, count u16) followed by count 14-byte records.
func ParseGroup(data []byte) (*Group, error) {
	if len(data) < 6 {
		return nil, fmt.Errorf("%w: header", ErrTooShort)
	}
	reserved := binary.LittleEndian.Uint16(data[0:2])
	groupType := binary.LittleEndian.Uint16(data[2:4])
	count := binary.LittleEndian.Uint16(data[4:6])
	if reserved != 0 {
		return nil, ErrWrongReserved
	}
	if groupType != 1 {
		return nil, ErrWrongGroupType
	}

	rest := data[6:]
	if len(rest) < int(count)*14 {
		return nil, fmt.Errorf("%w: records", ErrTooShort)
	}

	icons := make([]GroupIcon, count)
	for i := range icons {
		rec := rest[i*14 : i*14+14]
		icons[i] = GroupIcon{
			Width:      rec[0],
			Height:     rec[1],
			ColorCount: rec[2],
			Reserved:   rec[3],
			Planes:     binary.LittleEndian.Uint16(rec[4:6]),
			BitCount:   binary.LittleEndian.Uint16(rec[6:8]),
			ByteCount:  binary.LittleEndian.Uint32(rec[8:12]),
			ID:         binary.LittleEndian.Uint16(rec[12:14]),
		}
	}
	return &Group{Icons: icons}, nil
}

// indicator values for the Windows 1.0 ICO resource format.
const (
	indicatorDeviceIndependentOnly uint16 = 0x0001
	indicatorDeviceDependentOnly   uint16 = 0x0101
	indicatorBoth                  uint16 = 0x0201
)

// Data is one 12-byte-header AND/XOR image pair from a Windows 1.0 icon
// resource.
type Data struct {
	CursorHotspotX uint16
	CursorHotspotY uint16
	WidthPixels    uint16
	HeightPixels   uint16
	WidthBytes     uint16
	CursorColor    uint16
	AndBytes       []byte
	XorBytes       []byte
}

func readData(data []byte) (Data, []byte, error) {
	if len(data) < 12 {
		return Data{}, nil, fmt.Errorf("%w: record header", ErrTooShort)
	}
	d := Data{
		CursorHotspotX: binary.LittleEndian.Uint16(data[0:2]),
		CursorHotspotY: binary.LittleEndian.Uint16(data[2:4]),
		WidthPixels:    binary.LittleEndian.Uint16(data[4:6]),
		HeightPixels:   binary.LittleEndian.Uint16(data[6:8]),
		WidthBytes:     binary.LittleEndian.Uint16(data[8:10]),
		CursorColor:    binary.LittleEndian.Uint16(data[10:12]),
	}
	rest := data[12:]

	pixelByteCount := int(d.WidthBytes) * int(d.HeightPixels)
	if len(rest) < pixelByteCount*2 {
		return Data{}, nil, fmt.Errorf("%w: mask planes", ErrTooShort)
	}
	d.AndBytes = append([]byte(nil), rest[:pixelByteCount]...)
	rest = rest[pixelByteCount:]
	d.XorBytes = append([]byte(nil), rest[:pixelByteCount]...)
	rest = rest[pixelByteCount:]

	return d, rest, nil
}

// V1 is a decoded Windows 1.0 icon resource: it carries a
// device-independent record, a device-dependent record, or both,
// depending on the format indicator.
type V1 struct {
	DeviceIndependent *Data
	DeviceDependent   *Data
}

// ParseV1 decodes a Windows 1.0 icon resource from its 2-byte format
// indicator and the Data record(s) that follow.
func ParseV1(data []byte) (*V1, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: indicator", ErrTooShort)
	}
	indicator := binary.LittleEndian.Uint16(data[0:2])
	rest := data[2:]

	v := &V1{}
	switch indicator {
	case indicatorDeviceIndependentOnly:
		d, _, err := readData(rest)
		if err != nil {
			return nil, err
		}
		v.DeviceIndependent = &d
	case indicatorDeviceDependentOnly:
		d, _, err := readData(rest)
		if err != nil {
			return nil, err
		}
		v.DeviceDependent = &d
	case indicatorBoth:
		di, rest2, err := readData(rest)
		if err != nil {
			return nil, err
		}
		dd, _, err := readData(rest2)
		if err != nil {
			return nil, err
		}
		v.DeviceIndependent = &di
		v.DeviceDependent = &dd
	default:
		return nil, fmt.Errorf("%w: %#06x", ErrUnknownIndicator, indicator)
	}
	return v, nil
}
