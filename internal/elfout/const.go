// Package elfout emits a standard 64-bit AArch64 ELF shared object from a
// loaded container (spec.md §4.8). No section-header metadata survives
// from the input, so every section header is synthesized from dynsym
// indices, dynamic-tag presence, and the inference results recorded on
// container.Loaded.
package elfout

const (
	ehSize   = 64 // ELF64 header size
	phSize   = 56 // program header entry size
	shSize   = 64 // section header entry size
	dynSize  = 16 // Elf64_Dyn
	symSize  = 24 // Elf64_Sym
	relaSize = 24 // Elf64_Rela

	phNum = 5 // 3×PT_LOAD + PT_DYNAMIC + PT_GNU_EH_FRAME

	etDyn        = 3
	emAArch64    = 183
	evCurrent    = 1
	elfClass64   = 2
	elfData2LSB  = 1
	elfOSABINone = 0

	ptLoad       = 1
	ptDynamic    = 2
	ptGnuEhFrame = 0x6474e550

	pfX = 1
	pfW = 2
	pfR = 4

	shtNull      = 0
	shtProgbits  = 1
	shtSymtab    = 2
	shtStrtab    = 3
	shtRela      = 4
	shtHash      = 5
	shtDynamic   = 6
	shtNote      = 7
	shtNobits    = 8
	shtDynsym    = 11
	shtInitArray = 14
	shtFiniArray = 15
	shtGnuHash   = 0x6ffffff6

	shfWrite     = 0x1
	shfAlloc     = 0x2
	shfExecinstr = 0x4
	shfInfoLink  = 0x40
)
