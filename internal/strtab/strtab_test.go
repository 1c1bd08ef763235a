package strtab

import "testing"

func TestEmptyStringAtOffsetZero(t *testing.T) {
	b := New()
	if off := b.Offset(""); off != 0 {
		t.Fatalf("expected empty string at offset 0, got %d", off)
	}
}

func TestNoDuplicateNames(t *testing.T) {
	b := New()
	a1 := b.Add(".text")
	a2 := b.Add(".text")
	if a1 != a2 {
		t.Fatalf("expected stable offset for repeated add, got %d and %d", a1, a2)
	}
	if len(b.order) != 2 { // "" + ".text"
		t.Fatalf("expected 2 interned entries, got %d", len(b.order))
	}
}

func TestBytesNulTerminatedAndAligned(t *testing.T) {
	b := New()
	b.Add(".text")
	b.Add(".rodata")
	buf := b.Bytes()
	if len(buf)%16 != 0 {
		t.Fatalf("expected 16-byte aligned buffer, got length %d", len(buf))
	}
	textOff := b.Offset(".text")
	if string(buf[textOff:textOff+5]) != ".text" || buf[textOff+5] != 0 {
		t.Fatalf("expected NUL-terminated .text at offset %d", textOff)
	}
}
