package container

import "testing"

func TestInterpretFileRejectsEmpty(t *testing.T) {
	if _, err := InterpretFile(nil); err != ErrEmpty {
		t.Errorf("err = %v, want ErrEmpty", err)
	}
}

func TestInterpretFileUnidentifiedFallback(t *testing.T) {
	data := []byte("not a recognized container format at all")
	f, err := InterpretFile(data)
	if err != nil {
		t.Fatalf("InterpretFile: %v", err)
	}
	if _, ok := f.(Unidentified); !ok {
		t.Errorf("got %T, want Unidentified", f)
	}
}

func TestInterpretFileKWAJMagicIdentifiesAsSingleFile(t *testing.T) {
	// Magic alone is enough to classify the container; the embedded
	// payload here is deliberately empty/invalid, since only
	// classification is under test, not decompression.
	data := append([]byte("KWAJ\x88\xF0\x27\xD1"), 0, 0)
	f, err := InterpretFile(data)
	if err != nil {
		t.Fatalf("InterpretFile: %v", err)
	}
	if _, ok := f.(SingleFileContainer); !ok {
		t.Errorf("got %T, want SingleFileContainer", f)
	}
}

func TestInterpretFileSZDDMagicIdentifiesAsSingleFile(t *testing.T) {
	data := append([]byte("SZDD\x88\xF0\x27\x33"), 0, 0)
	f, err := InterpretFile(data)
	if err != nil {
		t.Fatalf("InterpretFile: %v", err)
	}
	if _, ok := f.(SingleFileContainer); !ok {
		t.Errorf("got %T, want SingleFileContainer", f)
	}
}

func TestInterpretFileMSCFMagicRoutesToCAB(t *testing.T) {
	// An MSCF prefix with a truncated/invalid header fails inside
	// cab.Open, which should surface as an error rather than silently
	// falling back to Unidentified.
	data := []byte("MSCF\x00\x00\x00\x00")
	if _, err := InterpretFile(data); err == nil {
		t.Error("err = nil, want an error opening a malformed CAB")
	}
}

func TestIsFATHintShortJump(t *testing.T) {
	if !isFATHint([]byte{0xEB, 0x3C, 0x90, 0, 0}) {
		t.Error("isFATHint = false, want true for EB ?? 90")
	}
}

func TestIsFATHintNearJump(t *testing.T) {
	if !isFATHint([]byte{0xE9, 0x00, 0x01, 0, 0}) {
		t.Error("isFATHint = false, want true for E9 ?? ??")
	}
}

func TestIsFATHintRejectsShortInput(t *testing.T) {
	if isFATHint([]byte{0xEB, 0x00}) {
		t.Error("isFATHint = true, want false for input shorter than 3 bytes")
	}
}

func TestIsFATHintRejectsUnrelatedBytes(t *testing.T) {
	if isFATHint([]byte{0x00, 0x01, 0x02}) {
		t.Error("isFATHint = true, want false for non-jump prefix")
	}
}

func TestPathSequenceString(t *testing.T) {
	p := PathSequence{"SUBDIR", "FILE.TXT"}
	if got, want := p.String(), "SUBDIR/FILE.TXT"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestSymbolConstructors(t *testing.T) {
	byName := SymbolByName("foo")
	if byName.Name == nil || *byName.Name != "foo" || byName.Ordinal != nil {
		t.Errorf("SymbolByName = %+v, want Name=foo Ordinal=nil", byName)
	}

	byOrdinal := SymbolByOrdinal(7)
	if byOrdinal.Ordinal == nil || *byOrdinal.Ordinal != 7 || byOrdinal.Name != nil {
		t.Errorf("SymbolByOrdinal = %+v, want Ordinal=7 Name=nil", byOrdinal)
	}

	both := SymbolByNameAndOrdinal("bar", 9)
	if both.Name == nil || *both.Name != "bar" || both.Ordinal == nil || *both.Ordinal != 9 {
		t.Errorf("SymbolByNameAndOrdinal = %+v, want Name=bar Ordinal=9", both)
	}
}
