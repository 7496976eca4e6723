package icon

import (
	"encoding/binary"
	"testing"
)

func buildGroup(entries []GroupIcon) []byte {
	buf := make([]byte, 6)
	binary.LittleEndian.PutUint16(buf[0:2], 0)
	binary.LittleEndian.PutUint16(buf[2:4], 1)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(len(entries)))
	for _, e := range entries {
		rec := make([]byte, 14)
		rec[0] = e.Width
		rec[1] = e.Height
		rec[2] = e.ColorCount
		rec[3] = e.Reserved
		binary.LittleEndian.PutUint16(rec[4:6], e.Planes)
		binary.LittleEndian.PutUint16(rec[6:8], e.BitCount)
		binary.LittleEndian.PutUint32(rec[8:12], e.ByteCount)
		binary.LittleEndian.PutUint16(rec[12:14], e.ID)
		buf = append(buf, rec...)
	}
	return buf
}

// TestParseGroupSingleEntry is part of P10.2's setup: a 16x16 icon-group
// resource with count = 1 and id = 5.
func TestParseGroupSingleEntry(t *testing.T) {
	buf := buildGroup([]GroupIcon{
		{Width: 16, Height: 16, ColorCount: 0, Planes: 1, BitCount: 8, ByteCount: 1128, ID: 5},
	})
	g, err := ParseGroup(buf)
	if err != nil {
		t.Fatalf("ParseGroup: %v", err)
	}
	if len(g.Icons) != 1 {
		t.Fatalf("len(Icons) = %d, want 1", len(g.Icons))
	}
	if g.Icons[0].Width != 16 || g.Icons[0].Height != 16 || g.Icons[0].ID != 5 {
		t.Errorf("Icons[0] = %+v, want width=16 height=16 id=5", g.Icons[0])
	}
}

func TestParseGroupRejectsWrongType(t *testing.T) {
	buf := buildGroup(nil)
	binary.LittleEndian.PutUint16(buf[2:4], 2)
	if _, err := ParseGroup(buf); err != ErrWrongGroupType {
		t.Errorf("err = %v, want ErrWrongGroupType", err)
	}
}

func TestParseV1DeviceIndependentOnly(t *testing.T) {
	var buf []byte
	indicator := make([]byte, 2)
	binary.LittleEndian.PutUint16(indicator, indicatorDeviceIndependentOnly)
	buf = append(buf, indicator...)

	const widthBytes, heightPixels = 2, 4
	header := make([]byte, 12)
	binary.LittleEndian.PutUint16(header[8:10], widthBytes)
	binary.LittleEndian.PutUint16(header[6:8], heightPixels)
	buf = append(buf, header...)
	buf = append(buf, make([]byte, widthBytes*heightPixels)...) // AND
	buf = append(buf, make([]byte, widthBytes*heightPixels)...) // XOR

	v, err := ParseV1(buf)
	if err != nil {
		t.Fatalf("ParseV1: %v", err)
	}
	if v.DeviceIndependent == nil {
		t.Fatal("DeviceIndependent = nil, want non-nil")
	}
	if v.DeviceDependent != nil {
		t.Error("DeviceDependent != nil, want nil")
	}
	if len(v.DeviceIndependent.AndBytes) != widthBytes*heightPixels {
		t.Errorf("len(AndBytes) = %d, want %d", len(v.DeviceIndependent.AndBytes), widthBytes*heightPixels)
	}
}

func TestParseV1RejectsUnknownIndicator(t *testing.T) {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, 0x9999)
	if _, err := ParseV1(buf); err == nil {
		t.Error("err = nil, want ErrUnknownIndicator")
	}
}
