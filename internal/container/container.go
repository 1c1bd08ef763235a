package container

import (
	"fmt"

	"github.com/xyproto/nx2elf/internal/bin"
	"github.com/xyproto/nx2elf/internal/diag"
	"github.com/xyproto/nx2elf/internal/dynamic"
	"github.com/xyproto/nx2elf/internal/infer"
	"github.com/xyproto/nx2elf/internal/modsynth"
)

// Load recognizes and parses an NSO, NRO, or raw-MOD byte slice into a flat
// image plus segment table and dynamic-linking metadata (spec.md §4.1). A
// non-nil *diag.Collector records soft inference failures (missing PLT,
// missing EH info, missing build-id note) without aborting conversion;
// structural failures (bad magic, size mismatch, decompress mismatch, a
// raw-MOD image that cannot be synthesized) are returned as errors wrapping
// one of the diag sentinel errors.
func Load(file []byte, d *diag.Collector) (*Loaded, error) {
	var (
		l   *Loaded
		err error
	)
	switch {
	case isNso(file):
		l, err = loadNSO(file)
	case isNro(file):
		l, err = loadNRO(file)
	default:
		image := make([]byte, len(file))
		copy(image, file)
		l = &Loaded{FileType: Mod, Image: image}
	}
	if err != nil {
		return nil, err
	}

	headerOff, ok := modPointerOffset(l.Image, 0)
	if !ok {
		return nil, fmt.Errorf("container: %w: truncated ModPointer", diag.ErrTruncatedHeader)
	}
	header, ok := readModHeader(l.Image, headerOff)
	if !ok {
		return nil, fmt.Errorf("container: %w: MOD0 magic absent at %#x", diag.ErrBadMagic, headerOff)
	}

	l.DynamicOffset = int(modGetOffset(headerOff, header.dynamicOffset))
	r := bin.New(l.Image)
	dyn, err := dynamic.Parse(r, l.DynamicOffset)
	if err != nil {
		return nil, fmt.Errorf("container: dynamic table: %w: %v", diag.ErrTruncatedHeader, err)
	}
	l.Dyn = dyn

	l.ModBssStart = modGetOffset(headerOff, header.bssStartOffset)
	l.ModBssEnd = modGetOffset(headerOff, header.bssEndOffset)

	ehStart := modGetOffset(headerOff, header.ehStartOffset)
	ehEnd := modGetOffset(headerOff, header.ehEndOffset)
	if res, ok := infer.MeasureEH(r, ehStart, ehEnd-ehStart); ok {
		l.EH = EHInfo{HdrAddr: ehStart, HdrSize: res.HdrSize, FrameAddr: res.FrameAddr, FrameSize: res.FrameSize, Valid: true}
	} else {
		d.Warn(diag.StageInfer, "eh_frame_hdr measurement failed at %#x; PT_GNU_EH_FRAME will be zeroed and .eh_frame_hdr/.eh_frame omitted", ehStart)
	}

	switch l.FileType {
	case Nso, Nro:
		text := l.Segments[Text]
		textBuf := l.Image[text.MemOffset : text.MemOffset+text.MemSize]
		if addr, size, ok := infer.ResolvePLT(textBuf, l.Dyn.Info.Pltrelsz); ok {
			l.PLT = PLTInfo{Addr: uint64(text.MemOffset) + addr, Size: size, Found: true}
		} else if l.Dyn.Info.Pltrelsz != 0 {
			d.Warn(diag.StageInfer, "PLT resolver thunk not found; .plt will be omitted")
		}
	case Mod:
		res, err := modsynth.Synthesize(l.Image, l.Dyn, l.ModBssStart, l.ModBssEnd)
		if err != nil {
			d.Error(diag.StageModsynth, "%v; please report this", err)
			return nil, fmt.Errorf("container: %w: %v", diag.ErrUnsupportedContainerShape, err)
		}
		l.Segments[Text] = Segment(res.Text)
		l.Segments[Rodata] = Segment(res.Rodata)
		l.Segments[Data] = Segment(res.Data)
		l.Dynstr = DataExtent{Offset: uint32(l.Dyn.Info.Strtab) - res.DynstrRebase, Size: uint32(l.Dyn.Info.Strsz)}
		l.Dynsym = DataExtent{Offset: uint32(l.Dyn.Info.Symtab) - res.DynsymRebase, Size: res.DynsymSize}
		l.PLT = PLTInfo{Addr: res.PLTAddr, Size: res.PLTSize, Found: true}
	}

	discoverBuildIDNote(l, d)

	return l, nil
}

func discoverBuildIDNote(l *Loaded, d *diag.Collector) {
	order := [3]SegmentType{Rodata, Text, Data}
	for _, st := range order {
		seg := l.Segments[st]
		if seg.MemSize == 0 {
			continue
		}
		region := l.Image[seg.MemOffset : seg.MemOffset+seg.MemSize]
		if off, ok := infer.FindBuildIDNote(region); ok {
			abs := int(seg.MemOffset) + off
			l.Note = NotePtr{Offset: abs, Found: true}
			if l.FileType == Mod {
				desc := infer.NoteDescription(l.Image, abs)
				copy(l.GnuBuildID[:], desc)
			}
			return
		}
	}
	d.Warn(diag.StageInfer, "GNU build-id note not found; .note will be omitted")
}
