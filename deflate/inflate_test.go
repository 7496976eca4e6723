package deflate

import (
	"bytes"
	"testing"
)

// TestInflateRoundTrip is property P2: a known-good zlib raw-deflate stream
// (produced by CPython's zlib.compress(data, wbits=-15)) must inflate back
// to the exact original plaintext, one block at a time.
func TestInflateRoundTrip(t *testing.T) {
	deflated := []byte("KL\xcaIUHN\x04\x91i`2\x1dL\x16\x83\xc9\x120\x99X\x04\xa6R\xf2\xc1Tj\x1e\x98\xca\xc9\x84\xa8\x83()\x85\x08\x96B\xb4\x95\x81\xe5\x00")
	plaintext := []byte("able cable fable gable sable table arable doable enable liable stable unable usable viable")

	inf := New(bytes.NewReader(deflated))

	var output []byte
	for {
		final, err := inf.InflateBlock(&output)
		if err != nil {
			t.Fatalf("InflateBlock: %v", err)
		}
		if final {
			break
		}
	}

	if !bytes.Equal(output, plaintext) {
		t.Fatalf("inflate mismatch:\n got: %q\nwant: %q", output, plaintext)
	}
}

func TestInflateStoredBlock(t *testing.T) {
	// BFINAL=1, BTYPE=00 (stored), then byte-aligned LEN/NLEN/data.
	// Bits (LSB-first): 1 (final), 00 (stored) -> byte 0b00000001 = 0x01.
	var buf bytes.Buffer
	buf.WriteByte(0x01)
	buf.WriteByte(0x03)
	buf.WriteByte(0x00)
	buf.WriteByte(0xFC)
	buf.WriteByte(0xFF)
	buf.Write([]byte("abc"))

	inf := New(&buf)
	var output []byte
	final, err := inf.InflateBlock(&output)
	if err != nil {
		t.Fatalf("InflateBlock: %v", err)
	}
	if !final {
		t.Fatal("expected final block")
	}
	if string(output) != "abc" {
		t.Fatalf("got %q, want %q", output, "abc")
	}
}
