package modsynth

import (
	"encoding/binary"
	"testing"

	"github.com/xyproto/nx2elf/internal/dynamic"
)

func writeSym(buf []byte, off int, name uint32, info, other uint8, shndx uint16, value, size uint64) {
	binary.LittleEndian.PutUint32(buf[off:], name)
	buf[off+4] = info
	buf[off+5] = other
	binary.LittleEndian.PutUint16(buf[off+6:], shndx)
	binary.LittleEndian.PutUint64(buf[off+8:], value)
	binary.LittleEndian.PutUint64(buf[off+16:], size)
}

func writePLTPattern(buf []byte, off int) {
	words := []uint32{0xa9bf7bf0, 0x12345678, 0xf9008a11, 0x91004210, 0xd6000220, 0xd503201f, 0xd503201f, 0xd503201f}
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[off+i*4:], w)
	}
}

func buildModImage(t *testing.T) ([]byte, *dynamic.Table, uint64, uint64) {
	t.Helper()

	const (
		dataSegStart = 4352
		imageLen     = 8192
		symtabOff    = 0x1000
	)

	image := make([]byte, imageLen)
	writePLTPattern(image, 0)

	// 4 symbols, one STT_SECTION at shndx=3 marking the data segment start.
	writeSym(image, symtabOff+0*24, 0, 0, 0, 1, 0, 0)
	writeSym(image, symtabOff+1*24, 0, 0, 0, 2, 0, 0)
	writeSym(image, symtabOff+2*24, 0, dynamic.SttSection, 0, 3, dataSegStart, 0)
	writeSym(image, symtabOff+3*24, 0, 0, 0, 4, 0, 0)

	dyn := &dynamic.Table{
		Info: dynamic.Info{
			Pltrelsz: dynamic.RelaSize, // n=1 -> pltSize = 32+16 = 48
			Symtab:   symtabOff,
			Strtab:   symtabOff + 4*24,
		},
	}

	return image, dyn, 5000, 5100
}

func TestSynthesize(t *testing.T) {
	image, dyn, bssStart, bssEnd := buildModImage(t)

	res, err := Synthesize(image, dyn, bssStart, bssEnd)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	wantTextSize := uint32(0 + 48)
	if res.Text.MemSize != wantTextSize {
		t.Errorf("Text.MemSize = %d, want %d", res.Text.MemSize, wantTextSize)
	}
	if res.Text.BssAlign != textAlign {
		t.Errorf("Text.BssAlign = %d, want %d", res.Text.BssAlign, textAlign)
	}

	wantRodataOffset := uint32(0x1000)
	if res.Rodata.MemOffset != wantRodataOffset {
		t.Errorf("Rodata.MemOffset = %#x, want %#x", res.Rodata.MemOffset, wantRodataOffset)
	}
	wantRodataSize := uint32(4352 - 0x1000)
	if res.Rodata.MemSize != wantRodataSize {
		t.Errorf("Rodata.MemSize = %d, want %d", res.Rodata.MemSize, wantRodataSize)
	}
	if res.Rodata.BssAlign != rodataAlign {
		t.Errorf("Rodata.BssAlign = %d, want %d", res.Rodata.BssAlign, rodataAlign)
	}

	if res.Data.MemOffset != 4352 {
		t.Errorf("Data.MemOffset = %d, want 4352", res.Data.MemOffset)
	}
	wantDataSize := uint32(len(image) - 4352)
	if res.Data.MemSize != wantDataSize {
		t.Errorf("Data.MemSize = %d, want %d", res.Data.MemSize, wantDataSize)
	}
	wantBssAlign := uint32(4096 + 1) // align_up(100, 0x1000) + 1
	if res.Data.BssAlign != wantBssAlign {
		t.Errorf("Data.BssAlign = %d, want %d", res.Data.BssAlign, wantBssAlign)
	}

	if res.DynstrRebase != wantRodataOffset || res.DynsymRebase != wantRodataOffset {
		t.Errorf("rebase values = %d/%d, want %d", res.DynstrRebase, res.DynsymRebase, wantRodataOffset)
	}
	if wantDynsymSize := uint32(dyn.Info.Strtab - dyn.Info.Symtab); res.DynsymSize != wantDynsymSize {
		t.Errorf("DynsymSize = %d, want %d", res.DynsymSize, wantDynsymSize)
	}
	if res.PLTAddr != 0 || res.PLTSize != 48 {
		t.Errorf("PLT = %d/%d, want 0/48", res.PLTAddr, res.PLTSize)
	}
}

func TestSynthesizeNoPLT(t *testing.T) {
	image, dyn, bssStart, bssEnd := buildModImage(t)
	for i := 0; i < 32; i++ {
		image[i] = 0
	}
	if _, err := Synthesize(image, dyn, bssStart, bssEnd); err != ErrNoPLT {
		t.Fatalf("err = %v, want ErrNoPLT", err)
	}
}

func TestSynthesizeBadOrdering(t *testing.T) {
	image, dyn, bssStart, bssEnd := buildModImage(t)
	dyn.Info.Strtab = dyn.Info.Symtab // violates symtab < strtab
	if _, err := Synthesize(image, dyn, bssStart, bssEnd); err != ErrBadOrdering {
		t.Fatalf("err = %v, want ErrBadOrdering", err)
	}
}

func TestSynthesizeBadShndxCount(t *testing.T) {
	image, dyn, bssStart, bssEnd := buildModImage(t)
	// collapse to 3 distinct shndx values instead of 4
	writeSym(image, 0x1000+3*24, 0, 0, 0, 1, 0, 0)
	if _, err := Synthesize(image, dyn, bssStart, bssEnd); err != ErrBadShndxCount {
		t.Fatalf("err = %v, want ErrBadShndxCount", err)
	}
}
