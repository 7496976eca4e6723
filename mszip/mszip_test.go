package mszip

import (
	"bytes"
	"testing"
)

// TestDecodeBlockStoredChunk builds a minimal "CK"-framed DEFLATE stored
// block by hand and checks DecodeBlock reproduces its payload and returns a
// lookback window primed for a following chunk.
func TestDecodeBlockStoredChunk(t *testing.T) {
	data := []byte{
		'C', 'K',
		0x01,       // BFINAL=1, BTYPE=00 (stored), rest of byte unused
		0x04, 0x00, // LEN = 4 (little-endian)
		0x00, 0x00, // ~LEN, not validated
		't', 'e', 's', 't',
	}

	output, lookback, err := DecodeBlock(bytes.NewReader(data), nil)
	if err != nil {
		t.Fatalf("DecodeBlock: %v", err)
	}
	if string(output) != "test" {
		t.Fatalf("output = %q, want %q", output, "test")
	}
	if lookback == nil {
		t.Fatal("lookback = nil, want a window to carry into the next chunk")
	}
}

// TestDecodeBlockMissingSignature checks the "CK" signature is enforced.
func TestDecodeBlockMissingSignature(t *testing.T) {
	_, _, err := DecodeBlock(bytes.NewReader([]byte("XX\x01\x00\x00\x00\x00")), nil)
	if err != ErrMissingSignature {
		t.Fatalf("err = %v, want ErrMissingSignature", err)
	}
}

// TestDecodeStreamTwoChunks checks back-to-back chunks share lookback
// state and concatenate their output, as a KWAJ type-0x04 payload would.
func TestDecodeStreamTwoChunks(t *testing.T) {
	chunk := func(payload string) []byte {
		n := len(payload)
		return append([]byte{
			'C', 'K',
			0x01,
			byte(n), byte(n >> 8),
			0x00, 0x00,
		}, payload...)
	}

	var data []byte
	data = append(data, chunk("foo")...)
	data = append(data, chunk("bar")...)

	output, err := DecodeStream(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeStream: %v", err)
	}
	if string(output) != "foobar" {
		t.Fatalf("output = %q, want %q", output, "foobar")
	}
}
