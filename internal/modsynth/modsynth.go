// Package modsynth synthesizes a segment table for raw-MOD inputs, which
// carry no outer header describing segment layout (spec.md §4.3). The
// table is derived purely from the symbol table's section-index structure
// and a PLT scan over the whole image.
package modsynth

import (
	"errors"
	"sort"

	"github.com/xyproto/nx2elf/internal/bin"
	"github.com/xyproto/nx2elf/internal/dynamic"
	"github.com/xyproto/nx2elf/internal/infer"
)

const (
	textAlign   = 0x100
	rodataAlign = 1
	pageSize    = 0x1000
)

// ErrNoPLT, ErrBadOrdering, ErrBadShndxCount, and ErrNoDataStart name the
// four distinct ways MOD synthesis can fail, per spec.md §4.3 steps 1-4.
var (
	ErrNoPLT         = errors.New("PLT resolver thunk not found in raw-MOD image")
	ErrBadOrdering   = errors.New("dynsym/dynstr ordering invariant violated")
	ErrBadShndxCount = errors.New("expected exactly 4 distinct section indices in dynsym")
	ErrNoDataStart   = errors.New("could not locate data segment start via STT_SECTION symbol")
)

// Segment mirrors container.Segment without importing the container
// package, keeping modsynth a leaf the loader can depend on.
type Segment struct {
	FileOffset uint32
	MemOffset  uint32
	MemSize    uint32
	BssAlign   uint32
}

// Result is the synthesized segment table plus the rodata-relative
// adjustment to apply to the dynstr/dynsym extents, and the resolved PLT.
type Result struct {
	Text, Rodata, Data Segment
	DynstrRebase       uint32
	DynsymRebase       uint32
	DynsymSize         uint32
	PLTAddr, PLTSize   uint64
}

// Synthesize derives Result from a raw-MOD image per spec.md §4.3.
// bssStart/bssEnd are the ModHeader's bss offsets (image-relative).
func Synthesize(image []byte, dyn *dynamic.Table, bssStart, bssEnd uint64) (Result, error) {
	r := bin.New(image)

	pltAddr, pltSize, ok := infer.ResolvePLT(image, dyn.Info.Pltrelsz)
	if !ok {
		return Result{}, ErrNoPLT
	}

	if !(dyn.Info.Symtab < dyn.Info.Strtab) {
		return Result{}, ErrBadOrdering
	}
	dynsymSize := dyn.Info.Strtab - dyn.Info.Symtab

	shndxSet := map[uint16]bool{}
	err := dynamic.IterDynsym(r, dyn.Info.Symtab, dynsymSize, func(sym dynamic.Sym) bool {
		if sym.Shndx != dynamic.ShnUndef && sym.Shndx < dynamic.ShnLoreserve {
			shndxSet[sym.Shndx] = true
		}
		return true
	})
	if err != nil {
		return Result{}, ErrBadShndxCount
	}

	sortedShndx := make([]uint16, 0, len(shndxSet))
	for s := range shndxSet {
		sortedShndx = append(sortedShndx, s)
	}
	sort.Slice(sortedShndx, func(i, j int) bool { return sortedShndx[i] < sortedShndx[j] })

	if len(sortedShndx) != 4 {
		return Result{}, ErrBadShndxCount
	}
	dataShndx := sortedShndx[2]

	var dataSegStart uint64
	var haveDataStart bool
	err = dynamic.IterDynsym(r, dyn.Info.Symtab, dynsymSize, func(sym dynamic.Sym) bool {
		if sym.Type() == dynamic.SttSection && sym.Shndx == dataShndx {
			dataSegStart = sym.Value
			haveDataStart = true
			return false
		}
		return true
	})
	if err != nil || !haveDataStart {
		return Result{}, ErrNoDataStart
	}

	textSize := pltAddr + pltSize
	rodataOffset := bin.AlignUp(textSize, pageSize)
	rodataSize := dataSegStart - rodataOffset
	dataSize := uint64(len(image)) - dataSegStart
	bssAlign := uint32(bin.AlignUp(bssEnd-bssStart, pageSize) + 1)

	return Result{
		Text: Segment{
			FileOffset: 0,
			MemOffset:  0,
			MemSize:    uint32(textSize),
			BssAlign:   textAlign,
		},
		Rodata: Segment{
			FileOffset: uint32(rodataOffset),
			MemOffset:  uint32(rodataOffset),
			MemSize:    uint32(rodataSize),
			BssAlign:   rodataAlign,
		},
		Data: Segment{
			FileOffset: uint32(dataSegStart),
			MemOffset:  uint32(dataSegStart),
			MemSize:    uint32(dataSize),
			BssAlign:   bssAlign,
		},
		DynstrRebase: uint32(rodataOffset),
		DynsymRebase: uint32(rodataOffset),
		DynsymSize:   uint32(dynsymSize),
		PLTAddr:      pltAddr,
		PLTSize:      pltSize,
	}, nil
}
