// Package nsowriter reconstructs an uncompressed NSO from an inferred
// container, so the result can be loaded by tools that don't implement
// LZ4 decompression (spec.md §4.9).
package nsowriter

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/xyproto/nx2elf/internal/container"
)

// NsoHeader field offsets, bit-exact per spec.md §6. Duplicated from the
// wire layout rather than imported, since nsowriter only ever touches the
// header's compression-related fields, not container's parsing internals.
const (
	offFlags            = 12
	offSegments         = 16
	segmentHeaderSize   = 16
	offSegmentFileSizes = 96
	headerSize          = 256
)

// WriteUncompressed copies rawHeader (the original container's first 256
// bytes), rewrites it to describe an uncompressed layout, and writes it to
// w followed by the image region spanned by the three segments. Per
// spec.md §4.9: clear the low 3 compression-flag bits, point each
// segment's file_offset directly past the header, set
// segment_file_sizes[i] = mem_size (no more LZ4 framing), and force
// text.bss_align=0x100, rodata.bss_align=0 — the values an uncompressed
// NSO is expected to carry regardless of what the compressed original had.
func WriteUncompressed(w io.Writer, rawHeader []byte, l *container.Loaded) error {
	if len(rawHeader) < headerSize {
		return fmt.Errorf("nsowriter: header truncated: got %d bytes, want %d", len(rawHeader), headerSize)
	}

	hdr := make([]byte, headerSize)
	copy(hdr, rawHeader[:headerSize])

	flags := binary.LittleEndian.Uint32(hdr[offFlags:])
	binary.LittleEndian.PutUint32(hdr[offFlags:], flags&^0x7)

	for i := 0; i < int(container.NumSegments); i++ {
		seg := l.Segments[i]
		base := offSegments + i*segmentHeaderSize
		binary.LittleEndian.PutUint32(hdr[base:], seg.MemOffset+headerSize)
		binary.LittleEndian.PutUint32(hdr[offSegmentFileSizes+i*4:], seg.MemSize)
	}

	textBase := offSegments + int(container.Text)*segmentHeaderSize
	binary.LittleEndian.PutUint32(hdr[textBase+12:], 0x100)
	rodataBase := offSegments + int(container.Rodata)*segmentHeaderSize
	binary.LittleEndian.PutUint32(hdr[rodataBase+12:], 0)

	data := l.Segments[container.Data]
	end := uint64(data.MemOffset) + uint64(data.MemSize)
	if end > uint64(len(l.Image)) {
		return fmt.Errorf("nsowriter: data extent %#x exceeds image size %#x", end, len(l.Image))
	}

	if _, err := w.Write(hdr); err != nil {
		return fmt.Errorf("nsowriter: %w", err)
	}
	if _, err := w.Write(l.Image[:end]); err != nil {
		return fmt.Errorf("nsowriter: %w", err)
	}
	return nil
}
