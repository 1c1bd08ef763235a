package infer

import "github.com/xyproto/nx2elf/internal/bin"

const (
	retInstruction    = 0xD65F03C0
	branchOpcodeMask  = 0xFF000000
	branchOpcodeValue = 0x14000000
	finiScanWords     = 32
)

// InitLength infers the size of .init as the byte length from addr up to
// and including the first `ret` instruction found by linear scan (spec.md
// §4.7). Absence
// within the buffer disables the section.
func InitLength(r *bin.Reader, addr uint64) (size uint32, ok bool) {
	for i := 0; ; i++ {
		word, err := r.U32(int(addr) + i*4)
		if err != nil {
			return 0, false
		}
		if word == retInstruction {
			return uint32(i+1) * 4, true
		}
	}
}

// FiniLength infers the size of .fini as the byte length from addr up to
// and including the first unconditional branch (top byte 0x14) found
// within the first 32 words (spec.md §4.7).
func FiniLength(r *bin.Reader, addr uint64) (size uint32, ok bool) {
	for i := 0; i < finiScanWords; i++ {
		word, err := r.U32(int(addr) + i*4)
		if err != nil {
			return 0, false
		}
		if word&branchOpcodeMask == branchOpcodeValue {
			return uint32(i+1) * 4, true
		}
	}
	return 0, false
}
