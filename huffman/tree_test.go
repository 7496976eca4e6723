package huffman

import (
	"bytes"
	"testing"

	"github.com/laenix/binms/bitio"
)

// encodeSequence turns a string of '0'/'1' characters into a byte stream a
// BitReader can read back bit-for-bit, MSB-first within each byte so the
// mapping is unambiguous regardless of direction.
func encodeSequence(seq string) []byte {
	var buf bytes.Buffer
	var cur byte
	var nbits int
	for i := 0; i < len(seq); i++ {
		cur <<= 1
		if seq[i] == '1' {
			cur |= 1
		}
		nbits++
		if nbits == 8 {
			buf.WriteByte(cur)
			cur = 0
			nbits = 0
		}
	}
	if nbits > 0 {
		cur <<= uint(8 - nbits)
		buf.WriteByte(cur)
	}
	return buf.Bytes()
}

// TestCanonicalRoundTrip is property P1: for a code-length vector with no
// overflow, building a canonical tree and decoding from the sequence
// assigned to each symbol returns that symbol.
func TestCanonicalRoundTrip(t *testing.T) {
	lengths := []int{2, 1, 3, 3}
	tree, err := NewCanonical(lengths)
	if err != nil {
		t.Fatalf("NewCanonical: %v", err)
	}

	// manually derive the expected assignment using the documented
	// algorithm: sort by (length, symbol), assign increasing codes.
	expected := map[int]string{
		1: "0",
		0: "10",
		2: "110",
		3: "111",
	}

	for sym, seq := range expected {
		data := encodeSequence(seq)
		br := bitio.NewBitReader(bytes.NewReader(data), true)
		got, ok, err := tree.Decode(br)
		if err != nil {
			t.Fatalf("symbol %d: decode error: %v", sym, err)
		}
		if !ok {
			t.Fatalf("symbol %d: unexpected EOF", sym)
		}
		if got != sym {
			t.Errorf("symbol %d: got %d", sym, got)
		}
	}
}

func TestCanonicalSingleSymbol(t *testing.T) {
	tree, err := NewCanonical([]int{0, 1, 0})
	if err != nil {
		t.Fatalf("NewCanonical: %v", err)
	}
	br := bitio.NewBitReader(bytes.NewReader(nil), true)
	got, ok, err := tree.Decode(br)
	if err != nil || !ok {
		t.Fatalf("decode: got=%d ok=%v err=%v", got, ok, err)
	}
	if got != 1 {
		t.Errorf("expected symbol 1, got %d", got)
	}
}

func TestExplicitMappingPrefixRejected(t *testing.T) {
	_, err := New(map[string]int{
		"0":  1,
		"01": 2,
	})
	if err == nil {
		t.Fatal("expected prefix error")
	}
}

func TestExplicitMappingIncompleteRejected(t *testing.T) {
	_, err := New(map[string]int{
		"0": 1,
	})
	if err == nil {
		t.Fatal("expected incomplete-branches error")
	}
}

func TestDecodeEOFBeforeFirstBit(t *testing.T) {
	tree, err := New(map[string]int{"0": 1, "1": 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	br := bitio.NewBitReader(bytes.NewReader(nil), true)
	_, ok, err := tree.Decode(br)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false at clean EOF")
	}
}
