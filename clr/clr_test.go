package clr

import (
	"errors"
	"testing"
)

// TestTakeVariableLengthIntegerMinimality is P9.
func TestTakeVariableLengthIntegerMinimality(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
		want uint64
	}{
		{"zero", []byte{0x00}, 0},
		{"maxSingleByte", []byte{0x7F}, 127},
		{"twoByteMinimal", []byte{0x80, 0x01}, 128},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, rest, err := takeVariableLengthInteger(c.in)
			if err != nil {
				t.Fatalf("takeVariableLengthInteger: %v", err)
			}
			if got != c.want {
				t.Errorf("value = %d, want %d", got, c.want)
			}
			if len(rest) != 0 {
				t.Errorf("len(rest) = %d, want 0", len(rest))
			}
		})
	}
}

func TestTakeVariableLengthIntegerRejectsNonMinimal(t *testing.T) {
	_, _, err := takeVariableLengthInteger([]byte{0x80, 0x00})
	if err != ErrVariableLengthIntegerNotMinimal {
		t.Errorf("err = %v, want ErrVariableLengthIntegerNotMinimal", err)
	}
}

func TestTakeVariableLengthIntegerRejectsTooLong(t *testing.T) {
	_, _, err := takeVariableLengthInteger([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01})
	if err != ErrVariableLengthIntegerLength {
		t.Errorf("err = %v, want ErrVariableLengthIntegerLength", err)
	}
}

func TestReadWrappedContainersPadsToU32(t *testing.T) {
	// one 3-byte container, padded by 1 byte to reach a 4-byte boundary
	data := []byte{3, 0, 0, 0, 'a', 'b', 'c', 0xFF}
	containers := ReadWrappedContainers(data)
	if len(containers) != 1 {
		t.Fatalf("len(containers) = %d, want 1", len(containers))
	}
	if string(containers[0]) != "abc" {
		t.Errorf("containers[0] = %q, want %q", containers[0], "abc")
	}
}

func TestReadHeaderRejectsUndersizedHeader(t *testing.T) {
	buf := make([]byte, 4)
	buf[0] = 10 // header size field < 24
	if _, err := ReadHeader(buf); !errors.Is(err, ErrHeaderTooSmall) {
		t.Errorf("err = %v, want ErrHeaderTooSmall", err)
	}
}
