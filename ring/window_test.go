package ring

import "testing"

func TestWindowRecallOverlappingBackReference(t *testing.T) {
	w := New(8, 0x00)
	w.Extend([]byte("ABCD"))

	// distance (4) equals the amount of history available, and length (6)
	// exceeds it, so Recall must read bytes it is itself writing partway
	// through the call — the classic LZ77 run-length overlap.
	got := w.Recall(4, 6)
	want := "ABCDAB"
	if string(got) != want {
		t.Fatalf("Recall(4, 6) = %q, want %q", got, want)
	}

	if w.Position() != 2 {
		t.Errorf("Position() = %d, want 2", w.Position())
	}
}

func TestWindowRecallNonOverlapping(t *testing.T) {
	w := New(16, 0x00)
	w.Extend([]byte("hello"))

	got := w.Recall(5, 3)
	if string(got) != "hel" {
		t.Fatalf("Recall(5, 3) = %q, want %q", got, "hel")
	}
}

func TestWindowPushAndExtend(t *testing.T) {
	w := New(4, 0xAA)
	w.Push('x')
	if w.AsSlice()[0] != 'x' {
		t.Fatalf("AsSlice()[0] = %q, want 'x'", w.AsSlice()[0])
	}
	if w.Position() != 1 {
		t.Errorf("Position() = %d, want 1", w.Position())
	}

	w.Extend([]byte{1, 2, 3})
	if w.Position() != 0 {
		t.Errorf("Position() = %d, want 0 after wrapping", w.Position())
	}
}

func TestWindowSetPositionAndSetAt(t *testing.T) {
	w := New(4, 0x00)
	w.SetAt(2, 'z')
	if w.AsSlice()[2] != 'z' {
		t.Fatalf("AsSlice()[2] = %q, want 'z'", w.AsSlice()[2])
	}

	w.SetPosition(3)
	if w.Position() != 3 {
		t.Errorf("Position() = %d, want 3", w.Position())
	}
}
