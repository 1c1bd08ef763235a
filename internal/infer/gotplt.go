package infer

import (
	"encoding/binary"

	"github.com/xyproto/nx2elf/internal/bin"
	"github.com/xyproto/nx2elf/internal/dynamic"
)

// JumpSlotEnd computes the end of .got.plt: the maximum r_offset+8 across
// R_AARCH64_JUMP_SLOT relocations in the JMPREL table (spec.md §4.6).
// found is false if there are no jump-slot relocations at all, or if
// jmprel is 0 (no JMPREL table).
func JumpSlotEnd(r *bin.Reader, jmprel, pltrelsz uint64) (end uint64, found bool) {
	if jmprel == 0 {
		return 0, false
	}
	dynamic.IterRelaTable(r, jmprel, pltrelsz, func(rel dynamic.Rela) bool {
		if rel.Type() == dynamic.RAarch64JumpSlot {
			if v := rel.Offset + 8; v > end {
				end = v
			}
			found = true
		}
		return true
	})
	return end, found
}

// FindGOT locates .got by scanning the image, starting at searchStart
// (.got.plt's end), for an 8-byte little-endian value equal to
// dynamicFileOffset — the image-relative offset of the dynamic table
// (spec.md §4.6).
func FindGOT(image []byte, searchStart uint64, dynamicFileOffset uint64) (addr uint64, found bool) {
	if searchStart >= uint64(len(image)) {
		return 0, false
	}
	needle := make([]byte, 8)
	binary.LittleEndian.PutUint64(needle, dynamicFileOffset)
	off := bin.MemMem(image[searchStart:], needle)
	if off < 0 {
		return 0, false
	}
	return searchStart + uint64(off), true
}

// GlobDatEnd computes the end of .got: the maximum r_offset+8 across
// R_AARCH64_GLOB_DAT relocations in the main rela table, bounded below by
// gotAddr (spec.md §4.6).
func GlobDatEnd(r *bin.Reader, rela, relasz uint64, gotAddr uint64) uint64 {
	end := gotAddr
	dynamic.IterRelaTable(r, rela, relasz, func(rel dynamic.Rela) bool {
		if rel.Type() == dynamic.RAarch64GlobDat {
			if v := rel.Offset + 8; v > end {
				end = v
			}
		}
		return true
	})
	return end
}
