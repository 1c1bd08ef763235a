package container

import (
	"fmt"

	"github.com/pierrec/lz4/v4"
	"github.com/xyproto/nx2elf/internal/bin"
	"github.com/xyproto/nx2elf/internal/diag"
)

// Byte offsets of an NsoHeader's fixed fields, per spec.md §6's bit-exact
// layout.
const (
	offFlags             = 12
	offSegments          = 16
	segmentHeaderSize    = 16
	offGnuBuildID        = 64
	offSegmentFileSizes  = 96
	offDynstr            = 144
	offDynsym            = 152
)

func isNso(file []byte) bool {
	return len(file) >= nsoHeaderSize && matchMagic(file, nsoMagicOffset, nsoMagic)
}

// loadNSO parses an NsoHeader and reconstructs the flat image, decompressing
// each flagged segment with LZ4 (spec.md §4.1's "NSO" case). The LZ4 step
// wires github.com/pierrec/lz4/v4, the concrete implementation of the
// spec's external lz4_decompress_safe collaborator.
func loadNSO(file []byte) (*Loaded, error) {
	r := bin.New(file)

	var segs [NumSegments]Segment
	for i := 0; i < int(NumSegments); i++ {
		base := offSegments + i*segmentHeaderSize
		fo, _ := r.U32(base)
		mo, _ := r.U32(base + 4)
		ms, _ := r.U32(base + 8)
		ba, _ := r.U32(base + 12)
		segs[i] = Segment{FileOffset: fo, MemOffset: mo, MemSize: ms, BssAlign: ba}
	}

	var fileSizes [NumSegments]uint32
	for i := 0; i < int(NumSegments); i++ {
		fileSizes[i], _ = r.U32(offSegmentFileSizes + i*4)
	}

	flags, err := r.U32(offFlags)
	if err != nil {
		return nil, fmt.Errorf("nso: %w: %v", diag.ErrTruncatedHeader, err)
	}

	dataSeg := segs[Data]
	imageSize := uint64(dataSeg.MemOffset) + uint64(dataSeg.MemSize) + uint64(dataSeg.BssAlign)
	image := make([]byte, imageSize)

	for i := 0; i < int(NumSegments); i++ {
		seg := segs[i]
		fileSize := fileSizes[i]
		src, err := r.Slice(int(seg.FileOffset), int(fileSize))
		if err != nil {
			return nil, fmt.Errorf("nso: segment %d: %w: %v", i, diag.ErrSizeMismatch, err)
		}
		dst := image[seg.MemOffset : seg.MemOffset+seg.MemSize]
		if flags&(1<<uint(i)) != 0 {
			n, err := lz4.UncompressBlock(src, dst)
			if err != nil || uint32(n) != seg.MemSize {
				return nil, fmt.Errorf("nso: segment %d: %w: got %d want %d (%v)", i, diag.ErrDecompressFailed, n, seg.MemSize, err)
			}
		} else {
			copy(dst, src)
		}
	}

	var buildID [32]byte
	bidBytes, _ := r.Slice(offGnuBuildID, 32)
	copy(buildID[:], bidBytes)

	dynstrOff, _ := r.U32(offDynstr)
	dynstrSize, _ := r.U32(offDynstr + 4)
	dynsymOff, _ := r.U32(offDynsym)
	dynsymSize, _ := r.U32(offDynsym + 4)

	return &Loaded{
		FileType:   Nso,
		Image:      image,
		Segments:   segs,
		GnuBuildID: buildID,
		Dynstr:     DataExtent{Offset: dynstrOff, Size: dynstrSize},
		Dynsym:     DataExtent{Offset: dynsymOff, Size: dynsymSize},
	}, nil
}

func matchMagic(buf []byte, off int, magic [4]byte) bool {
	if off+4 > len(buf) {
		return false
	}
	return buf[off] == magic[0] && buf[off+1] == magic[1] && buf[off+2] == magic[2] && buf[off+3] == magic[3]
}
