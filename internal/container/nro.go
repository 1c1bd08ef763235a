package container

import (
	"fmt"

	"github.com/xyproto/nx2elf/internal/bin"
	"github.com/xyproto/nx2elf/internal/diag"
)

func isNro(file []byte) bool {
	return len(file) >= nroHeaderOffset+nroHeaderSize && matchMagic(file, nroHeaderOffset, nroMagic)
}

// loadNRO treats the file as already being the flat image and synthesizes
// an NSO-shaped segment table from the NRO's three DataExtents (spec.md
// §4.1's "NRO" case).
func loadNRO(file []byte) (*Loaded, error) {
	r := bin.New(file)
	base := nroHeaderOffset

	fileSize, err := r.U32(base + 8)
	if err != nil {
		return nil, fmt.Errorf("nro: %w: %v", diag.ErrTruncatedHeader, err)
	}
	if uint64(fileSize) != uint64(len(file)) {
		return nil, fmt.Errorf("nro: %w: file_size=%#x actual=%#x", diag.ErrSizeMismatch, fileSize, len(file))
	}

	var segs [NumSegments]Segment
	for i := 0; i < int(NumSegments); i++ {
		off, _ := r.U32(base + 16 + i*8)
		size, _ := r.U32(base + 16 + i*8 + 4)
		segs[i] = Segment{FileOffset: off, MemOffset: off, MemSize: size}
	}
	bssSize, _ := r.U32(base + 40)
	segs[Text].BssAlign = 0x100
	segs[Rodata].BssAlign = 1
	segs[Data].BssAlign = bssSize

	var buildID [32]byte
	bidBytes, _ := r.Slice(base+48, 32)
	copy(buildID[:], bidBytes)

	dynstrOff, _ := r.U32(base + 96)
	dynstrSize, _ := r.U32(base + 100)
	dynsymOff, _ := r.U32(base + 104)
	dynsymSize, _ := r.U32(base + 108)

	image := make([]byte, len(file))
	copy(image, file)

	return &Loaded{
		FileType:   Nro,
		Image:      image,
		Segments:   segs,
		GnuBuildID: buildID,
		Dynstr:     DataExtent{Offset: dynstrOff, Size: dynstrSize},
		Dynsym:     DataExtent{Offset: dynsymOff, Size: dynsymSize},
	}, nil
}
