// Package infer implements the structural-inference passes of spec.md §4:
// PLT detection, GOT/GOT.PLT boundary inference, .init/.fini length
// inference, .eh_frame measurement, and GNU build-id note discovery. None
// of these read section-header metadata — the containers don't carry any
// — they all work from the dynamic table, relocation entries, symbol
// section indices, and raw instruction-pattern scans.
package infer

import (
	"encoding/binary"

	"github.com/xyproto/nx2elf/internal/bin"
	"github.com/xyproto/nx2elf/internal/dynamic"
)

var pltPattern = buildPattern(
	[8]uint32{0xa9bf7bf0, 0x00000000, 0xf9008a11, 0x91004210, 0xd6000220, 0xd503201f, 0xd503201f, 0xd503201f},
	[8]uint32{0xffffffff, 0x00000000, 0xff000000, 0xff000000, 0xff000000, 0xffffffff, 0xffffffff, 0xffffffff},
)

func buildPattern(words, masks [8]uint32) [2][32]byte {
	var out [2][32]byte
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[0][i*4:], w)
	}
	for i, m := range masks {
		binary.LittleEndian.PutUint32(out[1][i*4:], m)
	}
	return out
}

// ResolvePLT scans buf for the AArch64 PLT resolver thunk (spec.md §4.2).
// pltrelsz is DT_PLTRELSZ; if zero the PLT is absent and no scan happens.
// Matching is the FIRST occurrence — no collision handling is defined
// for code that happens to embed the resolver prologue (SPEC_FULL.md
// §11, open question a).
func ResolvePLT(buf []byte, pltrelsz uint64) (addr uint64, size uint64, ok bool) {
	if pltrelsz == 0 {
		return 0, 0, false
	}
	off := bin.MemMemMasked(buf, pltPattern[0][:], pltPattern[1][:])
	if off < 0 {
		return 0, 0, false
	}
	n := pltrelsz / dynamic.RelaSize
	return uint64(off), 32 + 16*n, true
}
