package bin

import "testing"

func TestMemMemFindsFirstOccurrence(t *testing.T) {
	hay := []byte("abcXYZabcXYZ")
	if off := MemMem(hay, []byte("XYZ")); off != 3 {
		t.Fatalf("expected offset 3, got %d", off)
	}
}

func TestMemMemAbsent(t *testing.T) {
	if off := MemMem([]byte("abc"), []byte("xyz")); off != -1 {
		t.Fatalf("expected -1, got %d", off)
	}
}

func TestMemMemMaskedWildcardsIgnored(t *testing.T) {
	hay := []byte{0x11, 0x22, 0x33, 0x44}
	needle := []byte{0x11, 0x00, 0x33, 0x44}
	mask := []byte{0xff, 0x00, 0xff, 0xff}
	if off := MemMemMasked(hay, needle, mask); off != 0 {
		t.Fatalf("expected match at 0, got %d", off)
	}
}

func TestMemMemReverseBiasesLatest(t *testing.T) {
	hay := []byte("XYZ....XYZ")
	if off := MemMemReverse(hay, []byte("XYZ")); off != 7 {
		t.Fatalf("expected offset 7 (latest), got %d", off)
	}
}

func TestAlignUp(t *testing.T) {
	cases := []struct{ n, align, want uint64 }{
		{0, 0x1000, 0},
		{1, 0x1000, 0x1000},
		{0x1000, 0x1000, 0x1000},
		{0x1001, 0x1000, 0x2000},
		{15, 16, 16},
	}
	for _, c := range cases {
		if got := AlignUp(c.n, c.align); got != c.want {
			t.Errorf("AlignUp(%#x,%#x) = %#x, want %#x", c.n, c.align, got, c.want)
		}
	}
}
