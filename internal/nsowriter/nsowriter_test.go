package nsowriter

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/xyproto/nx2elf/internal/container"
)

func fakeHeader(flags uint32, segs [container.NumSegments]container.Segment) []byte {
	hdr := make([]byte, headerSize)
	copy(hdr[0:4], []byte{'N', 'S', 'O', '0'})
	binary.LittleEndian.PutUint32(hdr[offFlags:], flags)
	for i, s := range segs {
		base := offSegments + i*segmentHeaderSize
		binary.LittleEndian.PutUint32(hdr[base:], s.FileOffset)
		binary.LittleEndian.PutUint32(hdr[base+4:], s.MemOffset)
		binary.LittleEndian.PutUint32(hdr[base+8:], s.MemSize)
		binary.LittleEndian.PutUint32(hdr[base+12:], s.BssAlign)
	}
	return hdr
}

func testLoaded() (*container.Loaded, []byte) {
	segs := [container.NumSegments]container.Segment{
		{FileOffset: 0x100, MemOffset: 0x000, MemSize: 0x40},
		{FileOffset: 0x140, MemOffset: 0x040, MemSize: 0x20},
		{FileOffset: 0x160, MemOffset: 0x060, MemSize: 0x10, BssAlign: 0x1000},
	}
	image := make([]byte, 0x70)
	for i := range image {
		image[i] = byte(i)
	}
	hdr := fakeHeader(0x7, segs)
	l := &container.Loaded{FileType: container.Nso, Image: image, Segments: segs}
	return l, hdr
}

func TestWriteClearsCompressionFlags(t *testing.T) {
	l, hdr := testLoaded()
	var buf bytes.Buffer
	if err := WriteUncompressed(&buf, hdr, l); err != nil {
		t.Fatalf("WriteUncompressed: %v", err)
	}
	out := buf.Bytes()
	flags := binary.LittleEndian.Uint32(out[offFlags:])
	if flags&0x7 != 0 {
		t.Fatalf("low 3 bits not cleared: flags=%#x", flags)
	}
}

func TestWriteSegmentFileOffsetsFollowHeader(t *testing.T) {
	l, hdr := testLoaded()
	var buf bytes.Buffer
	if err := WriteUncompressed(&buf, hdr, l); err != nil {
		t.Fatalf("WriteUncompressed: %v", err)
	}
	out := buf.Bytes()
	for i, seg := range l.Segments {
		base := offSegments + i*segmentHeaderSize
		fo := binary.LittleEndian.Uint32(out[base:])
		if fo != seg.MemOffset+headerSize {
			t.Errorf("segment %d file_offset = %#x, want %#x", i, fo, seg.MemOffset+headerSize)
		}
		fs := binary.LittleEndian.Uint32(out[offSegmentFileSizes+i*4:])
		if fs != seg.MemSize {
			t.Errorf("segment %d file_size = %#x, want %#x", i, fs, seg.MemSize)
		}
	}
}

func TestWriteBssAlignOverrides(t *testing.T) {
	l, hdr := testLoaded()
	var buf bytes.Buffer
	if err := WriteUncompressed(&buf, hdr, l); err != nil {
		t.Fatalf("WriteUncompressed: %v", err)
	}
	out := buf.Bytes()
	textBA := binary.LittleEndian.Uint32(out[offSegments+int(container.Text)*segmentHeaderSize+12:])
	if textBA != 0x100 {
		t.Errorf("text.bss_align = %#x, want 0x100", textBA)
	}
	rodataBA := binary.LittleEndian.Uint32(out[offSegments+int(container.Rodata)*segmentHeaderSize+12:])
	if rodataBA != 0 {
		t.Errorf("rodata.bss_align = %#x, want 0", rodataBA)
	}
}

func TestWriteOutputLayout(t *testing.T) {
	l, hdr := testLoaded()
	var buf bytes.Buffer
	if err := WriteUncompressed(&buf, hdr, l); err != nil {
		t.Fatalf("WriteUncompressed: %v", err)
	}
	out := buf.Bytes()
	data := l.Segments[container.Data]
	wantLen := headerSize + int(data.MemOffset+data.MemSize)
	if len(out) != wantLen {
		t.Fatalf("len(out) = %d, want %d", len(out), wantLen)
	}
	if !bytes.Equal(out[headerSize:], l.Image[:data.MemOffset+data.MemSize]) {
		t.Fatalf("image region not copied verbatim")
	}
}

// Re-running WriteUncompressed over its own output (with the same segment
// table, since an uncompressed NSO's segments reconstruct to the same
// flat image) must reproduce identical bytes: spec.md §8 property 6.
func TestWriteIdempotent(t *testing.T) {
	l, hdr := testLoaded()
	var buf1 bytes.Buffer
	if err := WriteUncompressed(&buf1, hdr, l); err != nil {
		t.Fatalf("WriteUncompressed (1st): %v", err)
	}
	out1 := buf1.Bytes()

	data := l.Segments[container.Data]
	end := data.MemOffset + data.MemSize
	l2 := &container.Loaded{
		FileType: container.Nso,
		Image:    append([]byte(nil), out1[headerSize:headerSize+end]...),
		Segments: l.Segments,
	}
	var buf2 bytes.Buffer
	if err := WriteUncompressed(&buf2, out1[:headerSize], l2); err != nil {
		t.Fatalf("WriteUncompressed (2nd): %v", err)
	}
	out2 := buf2.Bytes()

	if !bytes.Equal(out1, out2) {
		t.Fatalf("WriteUncompressed is not idempotent")
	}
}

func TestWriteTruncatedHeader(t *testing.T) {
	l, _ := testLoaded()
	var buf bytes.Buffer
	if err := WriteUncompressed(&buf, make([]byte, 10), l); err == nil {
		t.Fatal("expected error for truncated header")
	}
}
