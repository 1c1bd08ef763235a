// Package dynamic parses the ELF dynamic table embedded in a loaded NSO/
// NRO/MOD image and provides iterators over .dynsym and the rela tables,
// shared by MOD synthesis, structural inference, and the ELF emitter.
package dynamic

import "github.com/xyproto/nx2elf/internal/bin"

// DT_* tags recognized by the parser. Unrecognized tags are skipped, as in
// the original nx2elf.cpp switch statement.
const (
	DTNull        = 0
	DTSymtab      = 6
	DTRela        = 7
	DTRelasz      = 8
	DTStrtab      = 5
	DTStrsz       = 10
	DTPltgot      = 3
	DTHash        = 4
	DTGnuHash     = 0x6ffffef5
	DTInit        = 12
	DTFini        = 13
	DTInitArray   = 25
	DTInitArraysz = 27
	DTFiniArray   = 26
	DTFiniArraysz = 28
	DTPltrelsz    = 2
	DTJmprel      = 23
)

const (
	DynEntSize = 16 // sizeof(Elf64_Dyn)
	SymEntSize = 24 // sizeof(Elf64_Sym)
	RelaSize   = 24 // sizeof(Elf64_Rela)

	ShnUndef      = 0
	ShnLoreserve  = 0xff00
	SttSection    = 3
	StbLocal      = 0
	RAarch64JumpSlot = 1026
	RAarch64GlobDat  = 1025
)

// Info holds the recognized dynamic-tag values. All are virtual addresses
// or byte sizes; 0 means absent (spec.md §3).
type Info struct {
	Symtab, Rela, Relasz, Jmprel, Pltrelsz     uint64
	Strtab, Strsz, Pltgot, Hash, GnuHash       uint64
	Init, Fini, InitArray, InitArraysz         uint64
	FiniArray, FiniArraysz                     uint64
}

// Table is the parsed dynamic table: its image-relative start offset, the
// terminating count, and the recognized Info.
type Table struct {
	Offset int // offset of the first Elf64_Dyn within the image
	Count  int // number of entries, including the terminator
	Info   Info
}

// Parse walks the dynamic table starting at offset `start` within image
// until a zero tag, populating Info. Mirrors the `for (auto dyn = dynamic;
// dyn->d_tag; dyn++)` loop in nx2elf.cpp.
func Parse(r *bin.Reader, start int) (*Table, error) {
	t := &Table{Offset: start}
	off := start
	for {
		tag, err := r.U64(off)
		if err != nil {
			return nil, err
		}
		val, err := r.U64(off + 8)
		if err != nil {
			return nil, err
		}
		t.Count++
		off += DynEntSize
		if tag == DTNull {
			break
		}
		switch tag {
		case DTSymtab:
			t.Info.Symtab = val
		case DTRela:
			t.Info.Rela = val
		case DTRelasz:
			t.Info.Relasz = val
		case DTJmprel:
			t.Info.Jmprel = val
		case DTPltrelsz:
			t.Info.Pltrelsz = val
		case DTStrtab:
			t.Info.Strtab = val
		case DTStrsz:
			t.Info.Strsz = val
		case DTPltgot:
			t.Info.Pltgot = val
		case DTHash:
			t.Info.Hash = val
		case DTGnuHash:
			t.Info.GnuHash = val
		case DTInit:
			t.Info.Init = val
		case DTFini:
			t.Info.Fini = val
		case DTInitArray:
			t.Info.InitArray = val
		case DTInitArraysz:
			t.Info.InitArraysz = val
		case DTFiniArray:
			t.Info.FiniArray = val
		case DTFiniArraysz:
			t.Info.FiniArraysz = val
		}
	}
	return t, nil
}

// ByteSize returns the byte size of the dynamic table including the
// terminator entry, used for PT_DYNAMIC.p_filesz (spec.md §8 property 2).
func (t *Table) ByteSize() uint64 {
	return uint64(t.Count) * DynEntSize
}

// Sym is a decoded Elf64_Sym.
type Sym struct {
	Index           uint32
	Name            uint32
	Info, Other     uint8
	Shndx           uint16
	Value, Size     uint64
}

func (s Sym) Type() uint8    { return s.Info & 0xf }
func (s Sym) Bind() uint8    { return s.Info >> 4 }

// IterDynsym walks the .dynsym table (symtab address, symsize bytes),
// calling yield for each entry until it returns false or the table is
// exhausted. Shared by MOD synthesis, ELF section discovery, and the
// verbose dump — the original's single `iter_dynsym` helper used by the
// same three call sites.
func IterDynsym(r *bin.Reader, symtab uint64, symsize uint64, yield func(Sym) bool) error {
	count := symsize / SymEntSize
	for i := uint64(0); i < count; i++ {
		off := int(symtab) + int(i)*SymEntSize
		name, err := r.U32(off)
		if err != nil {
			return err
		}
		info, err := r.Slice(off+4, 1)
		if err != nil {
			return err
		}
		other, err := r.Slice(off+5, 1)
		if err != nil {
			return err
		}
		shndx, err := r.U16(off + 6)
		if err != nil {
			return err
		}
		value, err := r.U64(off + 8)
		if err != nil {
			return err
		}
		size, err := r.U64(off + 16)
		if err != nil {
			return err
		}
		sym := Sym{Index: uint32(i), Name: name, Info: info[0], Other: other[0], Shndx: shndx, Value: value, Size: size}
		if !yield(sym) {
			return nil
		}
	}
	return nil
}

// Rela is a decoded Elf64_Rela.
type Rela struct {
	Offset, Info uint64
	Addend       int64
}

func (rel Rela) Type() uint32 { return uint32(rel.Info) }
func (rel Rela) Sym() uint32  { return uint32(rel.Info >> 32) }

// IterRelaTable walks a sequence of Elf64_Rela entries at addr, covering
// size bytes. Used for both .rela.dyn (DT_RELA/DT_RELASZ) and .rela.plt
// (DT_JMPREL/DT_PLTRELSZ) — the original's duplicated DT_ASSIGN_PTR/
// DT_ASSIGN_U64 handling for `rela` and `jmprel` collapses into one helper.
func IterRelaTable(r *bin.Reader, addr, size uint64, yield func(Rela) bool) error {
	count := size / RelaSize
	for i := uint64(0); i < count; i++ {
		off := int(addr) + int(i)*RelaSize
		offset, err := r.U64(off)
		if err != nil {
			return err
		}
		info, err := r.U64(off + 8)
		if err != nil {
			return err
		}
		addend, err := r.U64(off + 16)
		if err != nil {
			return err
		}
		rel := Rela{Offset: offset, Info: info, Addend: int64(addend)}
		if !yield(rel) {
			return nil
		}
	}
	return nil
}
