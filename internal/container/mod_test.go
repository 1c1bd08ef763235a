package container

import (
	"encoding/binary"
	"testing"
)

func TestModPointerOffset(t *testing.T) {
	file := make([]byte, 64)
	binary.LittleEndian.PutUint32(file[0:], 0)
	binary.LittleEndian.PutUint32(file[4:], 0x20)

	off, ok := modPointerOffset(file, 0)
	if !ok {
		t.Fatalf("expected modPointerOffset to succeed")
	}
	if off != 0x20 {
		t.Errorf("off = %#x, want 0x20", off)
	}
}

func TestModPointerOffsetTruncated(t *testing.T) {
	file := make([]byte, 4)
	if _, ok := modPointerOffset(file, 0); ok {
		t.Fatalf("expected failure on truncated ModPointer")
	}
}

func TestReadModHeader(t *testing.T) {
	file := make([]byte, 128)
	headerOff := 0x20
	copy(file[headerOff:], modMagic[:])
	binary.LittleEndian.PutUint32(file[headerOff+offDynamicOffset:], uint32(int32(16)))
	binary.LittleEndian.PutUint32(file[headerOff+offBssStart:], uint32(int32(40)))
	binary.LittleEndian.PutUint32(file[headerOff+offBssEnd:], uint32(int32(60)))
	ehStart, ehEnd := int32(-10), int32(-2)
	binary.LittleEndian.PutUint32(file[headerOff+offEhStart:], uint32(ehStart))
	binary.LittleEndian.PutUint32(file[headerOff+offEhEnd:], uint32(ehEnd))
	binary.LittleEndian.PutUint32(file[headerOff+offModuleObject:], uint32(int32(80)))

	h, ok := readModHeader(file, headerOff)
	if !ok {
		t.Fatalf("expected readModHeader to succeed")
	}
	if h.dynamicOffset != 16 || h.bssStartOffset != 40 || h.bssEndOffset != 60 {
		t.Errorf("header = %+v", h)
	}
	if h.ehStartOffset != -10 || h.ehEndOffset != -2 {
		t.Errorf("negative offsets not preserved: %+v", h)
	}

	if got := modGetOffset(headerOff, h.dynamicOffset); got != uint64(headerOff+16) {
		t.Errorf("modGetOffset(dynamicOffset) = %#x, want %#x", got, headerOff+16)
	}
	if got := modGetOffset(headerOff, h.ehStartOffset); got != uint64(headerOff-10) {
		t.Errorf("modGetOffset(ehStartOffset) = %#x, want %#x", got, headerOff-10)
	}
}

func TestReadModHeaderBadMagic(t *testing.T) {
	file := make([]byte, 64)
	if _, ok := readModHeader(file, 0); ok {
		t.Fatalf("expected failure on missing MOD0 magic")
	}
}
