package cab

import "testing"

// TestSpannedFileRejected is property P8: a file whose folder index is one
// of the three reserved spanning sentinels must be rejected.
func TestSpannedFileRejected(t *testing.T) {
	for _, idx := range []uint16{FolderContinuedFromPrevious, FolderContinuedToNext, FolderContinuedPreviousAndNext} {
		f := &File{FolderIndex: idx}
		if !f.IsSpanned() {
			t.Errorf("folder index %#04x: expected IsSpanned() true", idx)
		}
	}

	regular := &File{FolderIndex: 0}
	if regular.IsSpanned() {
		t.Error("folder index 0: expected IsSpanned() false")
	}
}

func TestReaderRejectsSpannedFile(t *testing.T) {
	cr := &Reader{
		Header:  &Header{},
		Folders: []*Folder{{}},
		Files: []*File{
			{Name: "SPANNED.BIN", FolderIndex: FolderContinuedToNext},
		},
	}

	_, err := cr.ReadFile("SPANNED.BIN")
	if err != ErrSpannedFile {
		t.Fatalf("expected ErrSpannedFile, got %v", err)
	}
}
