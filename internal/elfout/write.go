package elfout

import (
	"fmt"
	"io"

	"github.com/xyproto/nx2elf/internal/bin"
	"github.com/xyproto/nx2elf/internal/container"
	"github.com/xyproto/nx2elf/internal/diag"
	"github.com/xyproto/nx2elf/internal/infer"
)

// Write assembles a standard 64-bit AArch64 ELF shared object from l and
// writes it to w (spec.md §4.8). d records soft inference failures that
// merely omit a section; Write itself only fails for conditions that
// would produce a corrupt file.
func Write(w io.Writer, l *container.Loaded, d *diag.Collector) error {
	lo := newLayout()
	r := bin.New(l.Image)

	_, lastLocal, err := lo.discoverKnownSections(l.Image, l.Segments, l)
	if err != nil {
		return err
	}
	lo.insertMissingCanonical(l.Segments)

	dynstrIdx := lo.insertOrdered(&section{
		name: ".dynstr", shType: shtStrtab, flags: shfAlloc,
		addr: l.Dyn.Info.Strtab, size: l.Dyn.Info.Strsz, align: 1,
	}, d, false)
	dynsymIdx := lo.insertOrdered(&section{
		name: ".dynsym", shType: shtDynsym, flags: shfAlloc,
		addr: l.Dyn.Info.Symtab, size: uint64(l.Dynsym.Size),
		link: uint32(dynstrIdx), info: uint32(lastLocal + 1),
		align: 8, entsize: symSize,
	}, d, false)
	lo.insertOrdered(&section{
		name: ".dynamic", shType: shtDynamic, flags: shfAlloc | shfWrite,
		addr: uint64(l.DynamicOffset), size: l.Dyn.ByteSize(),
		link: uint32(dynstrIdx), align: 8, entsize: dynSize,
	}, d, false)

	var pltIdx int
	havePLT := l.PLT.Found
	if havePLT {
		pltIdx = lo.insertOrdered(&section{
			name: ".plt", shType: shtProgbits, flags: shfAlloc | shfExecinstr,
			addr: l.PLT.Addr, size: l.PLT.Size, align: 16, entsize: 16,
		}, d, true)
	}

	jmprelEnd, haveJumpSlots := infer.JumpSlotEnd(r, l.Dyn.Info.Jmprel, l.Dyn.Info.Pltrelsz)
	haveGotPlt := haveJumpSlots && l.Dyn.Info.Pltgot != 0
	if haveGotPlt {
		lo.insertOrdered(&section{
			name: ".got.plt", shType: shtProgbits, flags: shfAlloc | shfWrite,
			addr: l.Dyn.Info.Pltgot, size: jmprelEnd - l.Dyn.Info.Pltgot, align: 8, entsize: 8,
		}, d, true)
	}

	if haveGotPlt && l.Dyn.Info.Jmprel != 0 && l.Dyn.Info.Pltrelsz != 0 {
		relaPlt := &section{
			name: ".rela.plt", shType: shtRela, flags: shfAlloc,
			addr: l.Dyn.Info.Jmprel, size: l.Dyn.Info.Pltrelsz,
			link: uint32(dynsymIdx), align: 8, entsize: relaSize,
		}
		if havePLT {
			relaPlt.info = uint32(pltIdx)
			relaPlt.flags |= shfInfoLink
		}
		lo.insertOrdered(relaPlt, d, false)
	}

	if gotAddr, found := infer.FindGOT(l.Image, jmprelEnd, uint64(l.DynamicOffset)); found && l.Dyn.Info.Rela != 0 {
		gotEnd := infer.GlobDatEnd(r, l.Dyn.Info.Rela, l.Dyn.Info.Relasz, gotAddr)
		lo.insertOrdered(&section{
			name: ".got", shType: shtProgbits, flags: shfAlloc | shfWrite,
			addr: gotAddr, size: gotEnd - gotAddr, align: 8, entsize: 8,
		}, d, true)
	}

	if l.Dyn.Info.Hash != 0 {
		nbucket, _ := r.U32(int(l.Dyn.Info.Hash))
		nchain, _ := r.U32(int(l.Dyn.Info.Hash) + 4)
		lo.insertOrdered(&section{
			name: ".hash", shType: shtHash, flags: shfAlloc,
			addr: l.Dyn.Info.Hash, size: 8 + uint64(nbucket+nchain)*4,
			link: uint32(dynsymIdx), align: 8, entsize: 4,
		}, d, false)
	}

	if l.Dyn.Info.GnuHash != 0 {
		nbuckets, _ := r.U32(int(l.Dyn.Info.GnuHash))
		symndx, _ := r.U32(int(l.Dyn.Info.GnuHash) + 4)
		maskwords, _ := r.U32(int(l.Dyn.Info.GnuHash) + 8)
		symCount := uint64(l.Dynsym.Size) / symSize
		size := uint64(16) + uint64(maskwords)*8 + uint64(nbuckets)*4 + (symCount-uint64(symndx))*4
		lo.insertOrdered(&section{
			name: ".gnu.hash", shType: shtGnuHash, flags: shfAlloc,
			addr: l.Dyn.Info.GnuHash, size: size,
			link: uint32(dynsymIdx), align: 8, entsize: 4,
		}, d, false)
	}

	if l.Dyn.Info.InitArray != 0 && l.Dyn.Info.InitArraysz != 0 {
		lo.insertOrdered(&section{
			name: ".init_array", shType: shtInitArray, flags: shfAlloc | shfWrite,
			addr: l.Dyn.Info.InitArray, size: l.Dyn.Info.InitArraysz, align: 8, entsize: 8,
		}, d, true)
	}
	if l.Dyn.Info.FiniArray != 0 && l.Dyn.Info.FiniArraysz != 0 {
		lo.insertOrdered(&section{
			name: ".fini_array", shType: shtFiniArray, flags: shfAlloc | shfWrite,
			addr: l.Dyn.Info.FiniArray, size: l.Dyn.Info.FiniArraysz, align: 8, entsize: 8,
		}, d, true)
	}

	if l.Note.Found {
		lo.insertOrdered(&section{
			name: ".note", shType: shtNote, flags: shfAlloc,
			addr: uint64(l.Note.Offset), size: infer.NoteTotalSize(l.Image, l.Note.Offset), align: 4,
		}, d, false)
	} else {
		d.Warn(diag.StageEmit, ".note omitted: no build-id note found")
	}

	if l.Dyn.Info.Init != 0 {
		if size, ok := infer.InitLength(r, l.Dyn.Info.Init); ok {
			lo.insertOrdered(&section{
				name: ".init", shType: shtProgbits, flags: shfAlloc | shfExecinstr,
				addr: l.Dyn.Info.Init, size: uint64(size), align: 4,
			}, d, true)
		} else {
			d.Warn(diag.StageEmit, ".init omitted: ret instruction not found within scan budget")
		}
	}
	if l.Dyn.Info.Fini != 0 {
		if size, ok := infer.FiniLength(r, l.Dyn.Info.Fini); ok {
			lo.insertOrdered(&section{
				name: ".fini", shType: shtProgbits, flags: shfAlloc | shfExecinstr,
				addr: l.Dyn.Info.Fini, size: uint64(size), align: 4,
			}, d, true)
		} else {
			d.Warn(diag.StageEmit, ".fini omitted: unconditional branch not found within scan budget")
		}
	}

	if l.EH.Valid {
		lo.insertOrdered(&section{
			name: ".eh_frame_hdr", shType: shtProgbits, flags: shfAlloc,
			addr: l.EH.HdrAddr, size: l.EH.HdrSize, align: 4,
		}, d, true)
		lo.insertOrdered(&section{
			name: ".eh_frame", shType: shtProgbits, flags: shfAlloc,
			addr: l.EH.FrameAddr, size: l.EH.FrameSize, align: 8,
		}, d, true)
	} else {
		d.Warn(diag.StageEmit, ".eh_frame_hdr/.eh_frame omitted: EH measurement failed")
	}

	lo.insertOrdered(&section{
		name: ".rela.dyn", shType: shtRela, flags: shfAlloc,
		addr: l.Dyn.Info.Rela, size: l.Dyn.Info.Relasz,
		link: uint32(dynsymIdx), align: 8, entsize: relaSize,
	}, d, false)

	shstrtabSec := &section{name: ".shstrtab", shType: shtStrtab, flags: 0, align: 1}
	shstrtabIdx := lo.insertUnordered(shstrtabSec)
	shstrtabSec.size = uint64(len(lo.names.Bytes()))

	return assemble(w, l, lo, shstrtabIdx)
}

func assemble(w io.Writer, l *container.Loaded, lo *layout, shstrtabIdx int) error {
	numShdrs := lo.maxSlot() + 1
	shstrtabBytes := lo.names.Bytes()

	headerBlock := ehSize + phNum*phSize + numShdrs*shSize + len(shstrtabBytes)
	shift := bin.AlignUp(uint64(headerBlock), 0x1000)

	text := l.Segments[container.Text]
	rodata := l.Segments[container.Rodata]
	data := l.Segments[container.Data]

	textOff := shift + uint64(text.MemOffset)
	rodataOff := shift + uint64(rodata.MemOffset)
	dataOff := shift + uint64(data.MemOffset)

	phoff := uint64(ehSize)
	shoff := phoff + uint64(phNum)*phSize

	bw := bin.NewWriter()

	// e_ident
	bw.U8(0x7f)
	bw.U8('E')
	bw.U8('L')
	bw.U8('F')
	bw.U8(elfClass64)
	bw.U8(elfData2LSB)
	bw.U8(evCurrent)
	bw.U8(elfOSABINone)
	bw.Pad(8)

	bw.U16(etDyn)
	bw.U16(emAArch64)
	bw.U32(evCurrent)
	bw.U64(uint64(text.MemOffset))
	bw.U64(phoff)
	bw.U64(shoff)
	bw.U32(0) // e_flags
	bw.U16(ehSize)
	bw.U16(phSize)
	bw.U16(phNum)
	bw.U16(shSize)
	bw.U16(uint16(numShdrs))
	bw.U16(uint16(shstrtabIdx))

	dynFilesz := l.Dyn.ByteSize()

	writePhdr := func(typ, flags uint32, offset, vaddr, filesz, memsz, align uint64) {
		bw.U32(typ)
		bw.U32(flags)
		bw.U64(offset)
		bw.U64(vaddr)
		bw.U64(vaddr)
		bw.U64(filesz)
		bw.U64(memsz)
		bw.U64(align)
	}

	textAlign := uint64(text.BssAlign)
	if textAlign < 1 {
		textAlign = 1
	}
	writePhdr(ptLoad, pfR|pfX, textOff, uint64(text.MemOffset), uint64(text.MemSize), uint64(text.MemSize), textAlign)
	writePhdr(ptLoad, pfR, rodataOff, uint64(rodata.MemOffset), uint64(rodata.MemSize), uint64(rodata.MemSize), 1)
	writePhdr(ptLoad, pfR|pfW, dataOff, uint64(data.MemOffset), uint64(data.MemSize), uint64(data.MemSize)+uint64(data.BssAlign), 1)
	writePhdr(ptDynamic, pfR|pfW, shift+uint64(l.DynamicOffset), uint64(l.DynamicOffset), dynFilesz, dynFilesz, 8)
	if l.EH.Valid {
		writePhdr(ptGnuEhFrame, pfR, shift+l.EH.HdrAddr, l.EH.HdrAddr, l.EH.HdrSize, l.EH.HdrSize, 4)
	} else {
		writePhdr(ptGnuEhFrame, pfR, 0, 0, 0, 0, 4)
	}

	for i := 0; i < numShdrs; i++ {
		s, ok := lo.slots[i]
		if !ok {
			bw.Pad(shSize)
			continue
		}
		off := sectionFileOffset(s, shift, shstrtabIdx == i, uint64(headerBlock-len(shstrtabBytes)))
		bw.U32(s.nameOff)
		bw.U32(s.shType)
		bw.U64(s.flags)
		bw.U64(s.addr)
		bw.U64(off)
		bw.U64(s.size)
		bw.U32(s.link)
		bw.U32(s.info)
		align := s.align
		if align == 0 {
			align = 1
		}
		bw.U64(align)
		bw.U64(s.entsize)
	}

	bw.RawBytes(shstrtabBytes)
	if pad := int(shift) - bw.Len(); pad > 0 {
		bw.Pad(pad)
	}

	dataEnd := uint64(data.MemOffset) + uint64(data.MemSize)
	bw.RawBytes(l.Image[text.MemOffset:dataEnd])

	_, err := w.Write(bw.Bytes())
	if err != nil {
		return fmt.Errorf("elfout: write: %w", err)
	}
	return nil
}

// sectionFileOffset computes sh_offset: for the section-name string table
// it is the fixed position right after the section header array; .bss
// (SHT_NOBITS) has no file backing at all, matching vaddr_to_foffset's
// behavior for a NOBITS section in nx2elf.cpp; every other allocated
// section's content lives inside the copied image, so its file offset is
// simply shift + sh_addr (spec.md §4.8's uniform image translation).
func sectionFileOffset(s *section, shift uint64, isShstrtab bool, shstrtabFileOff uint64) uint64 {
	if isShstrtab {
		return shstrtabFileOff
	}
	if s.shType == shtNull || s.shType == shtNobits {
		return 0
	}
	return shift + s.addr
}
