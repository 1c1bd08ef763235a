// Package dump reproduces the original nx2elf.cpp's verbose diagnostic
// dumps (NsoFile::Dump/DumpElfInfo) — header fields, the segment table,
// the dynamic tag list, .rela.dyn/.rela.plt entries, and .dynsym (SPEC_FULL.md
// §6 supplemented feature 1). The command prints Header for every input
// file; Dynamic, Relocations and Symbols only with --verbose. It lives outside
// internal/diag because diag is a dependency of internal/container, and
// these dumps need to read a fully loaded container.Loaded.
package dump

import (
	"fmt"
	"io"

	"github.com/xyproto/nx2elf/internal/bin"
	"github.com/xyproto/nx2elf/internal/container"
	"github.com/xyproto/nx2elf/internal/diag"
	"github.com/xyproto/nx2elf/internal/dynamic"
)

var segProt = [container.NumSegments]string{"r-x", "r--", "rw-"}

// Header prints the segment table, GNU build-id, and rodata-relative
// dynstr/dynsym extents, mirroring NsoFile::Dump's non-verbose fields.
// Segment and image sizes are also rendered human-readable alongside the
// raw hex fields.
func Header(w io.Writer, l *container.Loaded) {
	fmt.Fprintf(w, "gnu_build_id: %x\n", l.GnuBuildID)
	fmt.Fprintf(w, "image size: %s\n", diag.HumanBytes(uint64(len(l.Image))))
	fmt.Fprintf(w, "         %-8s %-8s %-8s %-8s %-8s %s\n", "file off", "file len", "mem off", "mem len", "bss/algn", "size")
	for i, seg := range l.Segments {
		fmt.Fprintf(w, "%d [%-3s]: %8x %8x %8x %8x %8x %s\n", i, segProt[i], seg.FileOffset, seg.MemSize, seg.MemOffset, seg.MemSize, seg.BssAlign, diag.HumanBytes(uint64(seg.MemSize)))
	}
	fmt.Fprintf(w, ".rodata-relative:\n")
	fmt.Fprintf(w, "  .dynstr: %8x %8x (%s)\n", l.Dynstr.Offset, l.Dynstr.Size, diag.HumanBytes(uint64(l.Dynstr.Size)))
	fmt.Fprintf(w, "  .dynsym: %8x %8x (%s)\n", l.Dynsym.Offset, l.Dynsym.Size, diag.HumanBytes(uint64(l.Dynsym.Size)))
}

// Dynamic prints every (tag, value) pair in the dynamic table, mirroring
// DumpElfInfo's `for (auto dyn = dynamic; dyn->d_tag; dyn++)` loop.
func Dynamic(w io.Writer, r *bin.Reader, t *dynamic.Table) {
	fmt.Fprintln(w, "dynamic:")
	off := t.Offset
	for i := 0; i < t.Count; i++ {
		tag, _ := r.U64(off)
		val, _ := r.U64(off + 8)
		fmt.Fprintf(w, "%16x %16x\n", tag, val)
		off += dynamic.DynEntSize
		if tag == dynamic.DTNull {
			break
		}
	}
}

// Relocations prints .rela.dyn then .rela.plt (jmprel), mirroring
// DumpElfInfo's two relocation-table loops.
func Relocations(w io.Writer, r *bin.Reader, t *dynamic.Table) {
	fmt.Fprintln(w, "rela:")
	dynamic.IterRelaTable(r, t.Info.Rela, t.Info.Relasz, func(rel dynamic.Rela) bool {
		fmt.Fprintf(w, "%16x %8x %8x %16x\n", rel.Offset, rel.Sym(), rel.Type(), rel.Addend)
		return true
	})
	fmt.Fprintln(w, "jmprel:")
	dynamic.IterRelaTable(r, t.Info.Jmprel, t.Info.Pltrelsz, func(rel dynamic.Rela) bool {
		fmt.Fprintf(w, "%16x %8x %8x %16xx\n", rel.Offset, rel.Sym(), rel.Type(), rel.Addend)
		return true
	})
}

// Symbols prints every .dynsym entry with its resolved name, mirroring
// DumpElfInfo's iter_dynsym call. Names are resolved against the rodata-
// relative dynstr extent, since that's how the original reads them.
func Symbols(w io.Writer, r *bin.Reader, l *container.Loaded, t *dynamic.Table, dynsymSize uint64) {
	fmt.Fprintln(w, "symbols:")
	rodata := l.Segments[container.Rodata]
	dynstrBase := int(rodata.MemOffset) + int(l.Dynstr.Offset)
	dynamic.IterDynsym(r, t.Info.Symtab, dynsymSize, func(sym dynamic.Sym) bool {
		name := cString(r, dynstrBase+int(sym.Name))
		fmt.Fprintf(w, "%x %x %x %4x %16x %16x %s\n",
			sym.Bind(), sym.Type(), sym.Other&0x3, sym.Shndx, sym.Value, sym.Size, name)
		return true
	})
}

func cString(r *bin.Reader, off int) string {
	buf := r.Bytes()
	end := off
	for end < len(buf) && buf[end] != 0 {
		end++
	}
	if off < 0 || off > len(buf) {
		return ""
	}
	return string(buf[off:end])
}
