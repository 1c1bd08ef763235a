// Package container recognizes and loads NSO, NRO, and raw-MOD Nintendo
// Switch executable containers into a flat virtual-memory image plus a
// canonical segment table and dynamic-linking metadata (spec.md §4.1).
package container

import "github.com/xyproto/nx2elf/internal/dynamic"

// SegmentType indexes the fixed three-segment table: text, rodata, data.
type SegmentType int

const (
	Text SegmentType = iota
	Rodata
	Data
	NumSegments
)

// FileType identifies which of the three container variants was loaded.
type FileType int

const (
	Unknown FileType = iota
	Nso
	Nro
	Mod
)

func (t FileType) String() string {
	switch t {
	case Nso:
		return "NSO"
	case Nro:
		return "NRO"
	case Mod:
		return "MOD"
	default:
		return "unknown"
	}
}

// Segment is one entry of the segment table (spec.md §3): file_offset and
// mem_offset diverge only for NSO inputs, where file_offset locates the
// segment's bytes in the container file (NRO and MOD-synthesized layouts
// set them equal); for the data segment, BssAlign holds the uninitialized
// BSS tail size.
type Segment struct {
	FileOffset uint32
	MemOffset  uint32
	MemSize    uint32
	BssAlign   uint32
}

// DataExtent is a plain {offset, size} pair, as used for dynstr/dynsym in
// both the NSO and NRO on-disk headers.
type DataExtent struct {
	Offset uint32
	Size   uint32
}

// On-disk layout sizes (bytes), bit-exact per spec.md §6.
const (
	nsoMagicOffset  = 0
	nsoHeaderSize   = 256
	nroPointerSize  = 8  // sizeof(ModPointer)
	nroHeaderOffset = 16 // align_up(sizeof(ModPointer), 16)
	nroHeaderSize   = 112
	modPointerSize  = 8
	modHeaderSize   = 28
)

var (
	nsoMagic = [4]byte{'N', 'S', 'O', '0'}
	nroMagic = [4]byte{'N', 'R', 'O', '0'}
	modMagic = [4]byte{'M', 'O', 'D', '0'}
)

// EHInfo is the result of DWARF unwind-info measurement (spec.md §4.5).
type EHInfo struct {
	HdrAddr, HdrSize     uint64
	FrameAddr, FrameSize uint64
	Valid                bool
}

// PLTInfo is the result of PLT resolver-thunk detection (spec.md §4.2).
type PLTInfo struct {
	Addr, Size uint64
	Found      bool
}

// Loaded is the output of Load: a flat image, its segment table, and the
// recognized dynamic-linking metadata. All cross-references are offsets
// into Image, never pointers.
type Loaded struct {
	FileType   FileType
	Image      []byte
	Segments   [NumSegments]Segment
	GnuBuildID [32]byte

	Dynstr DataExtent // rodata-segment-relative
	Dynsym DataExtent // rodata-segment-relative

	DynamicOffset int // image-relative offset of the first Elf64_Dyn
	Dyn           *dynamic.Table

	PLT  PLTInfo
	EH   EHInfo
	Note NotePtr

	// ModBssStart/ModBssEnd are the raw ModHeader bss offsets, image-
	// relative. Only meaningful for FileType == Mod, where modsynth needs
	// them to compute the data segment's BssAlign quirk.
	ModBssStart uint64
	ModBssEnd   uint64
}

// NotePtr is the image offset of a discovered GNU build-id note header, or
// absent.
type NotePtr struct {
	Offset int
	Found  bool
}
