// Package strtab builds a deterministic concatenated C-string table, used
// by the ELF emitter for .shstrtab (.dynstr is copied from the image).
package strtab

import "github.com/xyproto/nx2elf/internal/bin"

// Builder collects unique NUL-terminated strings and assigns each a
// monotonically increasing byte offset, offset 0 reserved for "".
//
// Grounded on the original StringTable in nx2elf.cpp: insertion order is
// irrelevant to correctness but is iterated in insertion order when
// emitting, so builds are reproducible (SPEC_FULL.md §10, property 7/8).
type Builder struct {
	offsets   map[string]uint32
	order     []string
	watermark uint32
}

// New returns a Builder with the empty string already interned at offset 0.
func New() *Builder {
	b := &Builder{offsets: make(map[string]uint32)}
	b.Add("")
	return b
}

// Add interns s if not already present and returns its offset.
func (b *Builder) Add(s string) uint32 {
	if off, ok := b.offsets[s]; ok {
		return off
	}
	off := b.watermark
	b.offsets[s] = off
	b.order = append(b.order, s)
	b.watermark += uint32(len(s)) + 1
	return off
}

// Offset returns the offset of a previously-added string, or 0 if it was
// never interned (matching the original's GetOffset, which returns 0 for
// unknown strings — offset 0 is also the empty string, so callers that
// care about the distinction must track membership themselves).
func (b *Builder) Offset(s string) uint32 {
	return b.offsets[s]
}

// Has reports whether s has been interned.
func (b *Builder) Has(s string) bool {
	_, ok := b.offsets[s]
	return ok
}

// Bytes returns the concatenated, NUL-terminated buffer, aligned up to 16
// bytes as required for .shstrtab placement (SPEC_FULL.md / spec.md §3).
func (b *Builder) Bytes() []byte {
	raw := make([]byte, b.watermark)
	for _, s := range b.order {
		off := b.offsets[s]
		copy(raw[off:], s)
		raw[off+uint32(len(s))] = 0
	}
	aligned := bin.AlignUp(uint64(len(raw)), 16)
	if uint64(len(raw)) == aligned {
		return raw
	}
	out := make([]byte, aligned)
	copy(out, raw)
	return out
}

// RawSize returns the unaligned size of the interned buffer (watermark).
func (b *Builder) RawSize() uint32 {
	return b.watermark
}
