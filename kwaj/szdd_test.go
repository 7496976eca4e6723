package kwaj

import (
	"bytes"
	"testing"
)

// TestSZDDSingleControlByte is property P3: a payload consisting of a
// single control byte 0xFF (all eight bits "literal") followed by 8 literal
// bytes decompresses to exactly those 8 bytes. The window's initial
// position (4080) is checked by TestDecompressGenericInitialWindowPosition.
func TestSZDDSingleControlByte(t *testing.T) {
	var header [6]byte
	header[0] = 'A'
	header[1] = 0x00
	header[2], header[3], header[4], header[5] = 8, 0, 0, 0

	payload := append(header[:], 0xFF)
	payload = append(payload, []byte("abcdefgh")...)

	var out bytes.Buffer
	if err := DecompressSZDD(bytes.NewReader(payload), &out); err != nil {
		t.Fatalf("DecompressSZDD: %v", err)
	}
	if out.String() != "abcdefgh" {
		t.Fatalf("got %q, want %q", out.String(), "abcdefgh")
	}
}

func TestDecompressGenericInitialWindowPosition(t *testing.T) {
	// the window must start at size-16 for SZDD so that backreferences
	// near the start of output resolve to the space-filled region. The first
	// literal 'x' lands at the initial position, so a match at 4080 only
	// reproduces it (rather than 0x20 fill) if decoding started there.
	var header [6]byte
	header[0] = 'A'
	header[2] = 4 // decompressed size
	payload := append(header[:], 0x01, 'x') // control: literal, then match
	payload = append(payload, 0xF0, 0xF0)   // match position 4080, length 3

	var out bytes.Buffer
	if err := DecompressSZDD(bytes.NewReader(payload), &out); err != nil {
		t.Fatalf("DecompressSZDD: %v", err)
	}
	if out.String() != "xxxx" {
		t.Fatalf("expected initial position 4080 (output %q), got output %q", "xxxx", out.String())
	}
}
