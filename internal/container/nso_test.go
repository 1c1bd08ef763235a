package container

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func buildNSOFile(t *testing.T) []byte {
	t.Helper()

	const (
		textFileOff   = 256
		textMemOff    = 0
		textMemSize   = 16
		rodataFileOff = 272
		rodataMemOff  = 16
		rodataMemSize = 16
		dataFileOff   = 288
		dataMemOff    = 32
		dataMemSize   = 16
		dataBssAlign  = 16
	)

	hdr := make([]byte, nsoHeaderSize)
	copy(hdr[0:4], nsoMagic[:])
	binary.LittleEndian.PutUint32(hdr[offFlags:], 0) // all segments uncompressed

	putSeg := func(i int, fo, mo, ms, ba uint32) {
		base := offSegments + i*segmentHeaderSize
		binary.LittleEndian.PutUint32(hdr[base:], fo)
		binary.LittleEndian.PutUint32(hdr[base+4:], mo)
		binary.LittleEndian.PutUint32(hdr[base+8:], ms)
		binary.LittleEndian.PutUint32(hdr[base+12:], ba)
	}
	putSeg(int(Text), textFileOff, textMemOff, textMemSize, 0)
	putSeg(int(Rodata), rodataFileOff, rodataMemOff, rodataMemSize, 0)
	putSeg(int(Data), dataFileOff, dataMemOff, dataMemSize, dataBssAlign)

	putFileSize := func(i int, sz uint32) {
		binary.LittleEndian.PutUint32(hdr[offSegmentFileSizes+i*4:], sz)
	}
	putFileSize(int(Text), textMemSize)
	putFileSize(int(Rodata), rodataMemSize)
	putFileSize(int(Data), dataMemSize)

	binary.LittleEndian.PutUint32(hdr[offDynstr:], 0x10)
	binary.LittleEndian.PutUint32(hdr[offDynstr+4:], 0x8)
	binary.LittleEndian.PutUint32(hdr[offDynsym:], 0x20)
	binary.LittleEndian.PutUint32(hdr[offDynsym+4:], 0x18)

	var buf bytes.Buffer
	buf.Write(hdr)
	buf.Write(bytes.Repeat([]byte{0xAA}, textMemSize))
	buf.Write(bytes.Repeat([]byte{0xBB}, rodataMemSize))
	buf.Write(bytes.Repeat([]byte{0xCC}, dataMemSize))
	return buf.Bytes()
}

func TestIsNso(t *testing.T) {
	file := buildNSOFile(t)
	if !isNso(file) {
		t.Fatalf("expected isNso to recognize a valid NSO header")
	}
	if isNso(file[:4]) {
		t.Fatalf("isNso must reject a truncated buffer")
	}
}

func TestLoadNSOUncompressed(t *testing.T) {
	file := buildNSOFile(t)
	l, err := loadNSO(file)
	if err != nil {
		t.Fatalf("loadNSO: %v", err)
	}

	if l.FileType != Nso {
		t.Errorf("FileType = %v, want Nso", l.FileType)
	}
	if len(l.Image) != 64 {
		t.Fatalf("image size = %d, want 64", len(l.Image))
	}
	if !bytes.Equal(l.Image[0:16], bytes.Repeat([]byte{0xAA}, 16)) {
		t.Errorf("text region mismatch")
	}
	if !bytes.Equal(l.Image[16:32], bytes.Repeat([]byte{0xBB}, 16)) {
		t.Errorf("rodata region mismatch")
	}
	if !bytes.Equal(l.Image[32:48], bytes.Repeat([]byte{0xCC}, 16)) {
		t.Errorf("data region mismatch")
	}
	if !bytes.Equal(l.Image[48:64], make([]byte, 16)) {
		t.Errorf("bss tail must be zero-filled")
	}

	if l.Dynstr.Offset != 0x10 || l.Dynstr.Size != 0x8 {
		t.Errorf("Dynstr = %+v", l.Dynstr)
	}
	if l.Dynsym.Offset != 0x20 || l.Dynsym.Size != 0x18 {
		t.Errorf("Dynsym = %+v", l.Dynsym)
	}
}

func TestLoadNSOTruncatedSegment(t *testing.T) {
	file := buildNSOFile(t)
	if _, err := loadNSO(file[:260]); err == nil {
		t.Fatalf("expected error when a segment's file bytes are truncated")
	}
}
