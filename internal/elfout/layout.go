package elfout

import (
	"fmt"
	"sort"

	"github.com/xyproto/nx2elf/internal/bin"
	"github.com/xyproto/nx2elf/internal/container"
	"github.com/xyproto/nx2elf/internal/diag"
	"github.com/xyproto/nx2elf/internal/dynamic"
	"github.com/xyproto/nx2elf/internal/strtab"
)

// section is an in-progress Elf64_Shdr entry. addr/size/offset are filled
// in as they become known; offset is only finalized once file layout is
// computed. idxHint records the slot of a section seated by dynsym
// discovery or insertMissingCanonical, used by insertOrdered's containment
// check; it stays 0 for sections placed by insertOrdered/insertUnordered,
// so those never raise the starting slot.
type section struct {
	name    string
	nameOff uint32
	shType  uint32
	flags   uint64
	addr    uint64
	offset  uint64
	size    uint64
	link    uint32
	info    uint32
	align   uint64
	entsize uint64
	idxHint int
}

// layout tracks the sparse slot → section map. Slot numbers double as the
// section header table index, since .dynsym's st_shndx fields are reserved
// indices into that same table (spec.md §4.8).
type layout struct {
	slots map[int]*section
	names *strtab.Builder
}

func newLayout() *layout {
	return &layout{slots: map[int]*section{}, names: strtab.New()}
}

func (lo *layout) maxSlot() int {
	max := 0
	for i := range lo.slots {
		if i > max {
			max = i
		}
	}
	return max
}

func (lo *layout) nextFree(from int) int {
	for i := from; ; i++ {
		if _, used := lo.slots[i]; !used {
			return i
		}
	}
}

// placeKnown records a section at a reserved index discovered via dynsym
// scanning — it never competes for a free slot, it occupies its observed
// index directly.
func (lo *layout) placeKnown(idx int, s *section) {
	if _, exists := lo.slots[idx]; exists {
		return
	}
	s.nameOff = lo.names.Add(s.name)
	lo.slots[idx] = s
}

// insertOrdered places s at the lowest free slot (insert_shdr(shdr,
// ordered) in nx2elf.cpp). When ordered is true, the scan starts at or
// after any known section whose [addr, addr+size) contains s.addr,
// falling back to an unconstrained scan (with a diagnostic) if the
// constrained search can never succeed — in practice the constrained
// scan always succeeds since it merely raises the starting point, so
// the fallback exists for completeness and mirrors the source's
// defensive retry. When ordered is false, the scan always starts at 1,
// matching the original's plain nextFree for the sections it never
// constrains by containment.
func (lo *layout) insertOrdered(s *section, d *diag.Collector, ordered bool) int {
	start := 1
	if ordered {
		for _, known := range lo.slots {
			if s.addr >= known.addr && s.addr < known.addr+known.size && known.size > 0 {
				if known.idxHint+1 > start {
					start = known.idxHint + 1
				}
			}
		}
	}
	idx := lo.nextFree(start)
	if ordered && idx < start {
		d.Warn(diag.StageEmit, "ordered insertion of %s failed, retrying unconstrained", s.name)
		idx = lo.nextFree(1)
	}
	s.nameOff = lo.names.Add(s.name)
	lo.slots[idx] = s
	return idx
}

func (lo *layout) insertUnordered(s *section) int {
	idx := lo.nextFree(1)
	s.nameOff = lo.names.Add(s.name)
	lo.slots[idx] = s
	return idx
}

func (lo *layout) find(name string) (int, *section) {
	for i, s := range lo.slots {
		if s.name == name {
			return i, s
		}
	}
	return 0, nil
}

// classifySegment maps a symbol's st_value into the canonical section it
// belongs to: inside a segment's mapped range, or immediately past data's
// end and within its BSS tail (spec.md §4.8).
func classifySegment(segs [container.NumSegments]container.Segment, value uint64) (name string, shType uint32, flags uint64, addr, size uint64, ok bool) {
	text := segs[container.Text]
	if value >= uint64(text.MemOffset) && value < uint64(text.MemOffset)+uint64(text.MemSize) {
		return ".text", shtProgbits, shfAlloc | shfExecinstr, uint64(text.MemOffset), uint64(text.MemSize), true
	}
	rodata := segs[container.Rodata]
	if value >= uint64(rodata.MemOffset) && value < uint64(rodata.MemOffset)+uint64(rodata.MemSize) {
		return ".rodata", shtProgbits, shfAlloc, uint64(rodata.MemOffset), uint64(rodata.MemSize), true
	}
	data := segs[container.Data]
	if value >= uint64(data.MemOffset) && value < uint64(data.MemOffset)+uint64(data.MemSize) {
		return ".data", shtProgbits, shfAlloc | shfWrite, uint64(data.MemOffset), uint64(data.MemSize), true
	}
	bssStart := uint64(data.MemOffset) + uint64(data.MemSize)
	bssEnd := bssStart + uint64(data.BssAlign)
	if value >= bssStart && value < bssEnd {
		return ".bss", shtNobits, shfAlloc | shfWrite, bssStart, uint64(data.BssAlign), true
	}
	return "", 0, 0, 0, 0, false
}

// discoverKnownSections iterates .dynsym and synthesizes section headers
// for every distinct st_shndx it references (spec.md §4.8 "Section
// discovery"). It returns the dynsym symbol count and the 0-based index
// of the last STB_LOCAL symbol, needed later for .dynsym's sh_info.
func (lo *layout) discoverKnownSections(img []byte, segs [container.NumSegments]container.Segment, l *container.Loaded) (symCount uint64, lastLocal int, err error) {
	r := bin.New(img)
	lastLocal = -1
	symCount = uint64(l.Dynsym.Size) / dynamic.SymEntSize
	walkErr := dynamic.IterDynsym(r, l.Dyn.Info.Symtab, uint64(l.Dynsym.Size), func(sym dynamic.Sym) bool {
		if sym.Bind() == dynamic.StbLocal {
			lastLocal = int(sym.Index)
		}
		if sym.Shndx == dynamic.ShnUndef || sym.Shndx >= dynamic.ShnLoreserve {
			return true
		}
		idx := int(sym.Shndx)
		if _, known := lo.slots[idx]; known {
			return true
		}
		name, shType, flags, addr, size, ok := classifySegment(segs, sym.Value)
		if !ok {
			return true
		}
		s := &section{name: name, shType: shType, flags: flags, addr: addr, size: size, idxHint: idx}
		lo.placeKnown(idx, s)
		return true
	})
	if walkErr != nil {
		return 0, 0, fmt.Errorf("elfout: dynsym scan: %w", walkErr)
	}
	return symCount, lastLocal, nil
}

// insertMissingCanonical inserts any of .text/.rodata/.data/.bss not
// already discovered via dynsym, at the lowest free slot, in that fixed
// order, skipping zero-sized segments and names already interned.
func (lo *layout) insertMissingCanonical(segs [container.NumSegments]container.Segment) {
	type cand struct {
		name   string
		shType uint32
		flags  uint64
		addr   uint64
		size   uint64
	}
	data := segs[container.Data]
	cands := []cand{
		{".text", shtProgbits, shfAlloc | shfExecinstr, uint64(segs[container.Text].MemOffset), uint64(segs[container.Text].MemSize)},
		{".rodata", shtProgbits, shfAlloc, uint64(segs[container.Rodata].MemOffset), uint64(segs[container.Rodata].MemSize)},
		{".data", shtProgbits, shfAlloc | shfWrite, uint64(data.MemOffset), uint64(data.MemSize)},
		{".bss", shtNobits, shfAlloc | shfWrite, uint64(data.MemOffset) + uint64(data.MemSize), uint64(data.BssAlign)},
	}
	for _, c := range cands {
		if c.size == 0 {
			continue
		}
		if _, s := lo.find(c.name); s != nil {
			continue
		}
		if lo.names.Has(c.name) {
			continue
		}
		idx := lo.nextFree(1)
		s := &section{name: c.name, shType: c.shType, flags: c.flags, addr: c.addr, size: c.size, idxHint: idx}
		lo.placeKnown(idx, s)
	}
}

// orderedSlots returns occupied slot indices in ascending order, for
// deterministic emission.
func (lo *layout) orderedSlots() []int {
	out := make([]int, 0, len(lo.slots))
	for i := range lo.slots {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
