package infer

import (
	"encoding/binary"

	"github.com/xyproto/nx2elf/internal/bin"
)

const nhdrSize = 12 // sizeof(Elf64_Nhdr): n_namesz, n_descsz, n_type

// buildIDNeedle constructs the Elf64_Nhdr + name("GNU\0") needle used to
// locate a GNU build-id note: namesz=4, descsz (16 for MD5, 20 for SHA1),
// type=3 (NT_GNU_BUILD_ID), name="GNU\0" (spec.md §4.4).
func buildIDNeedle(descsz uint32) []byte {
	n := make([]byte, nhdrSize+4)
	binary.LittleEndian.PutUint32(n[0:], 4)
	binary.LittleEndian.PutUint32(n[4:], descsz)
	binary.LittleEndian.PutUint32(n[8:], 3)
	copy(n[12:], "GNU\x00")
	return n
}

var (
	md5Needle  = buildIDNeedle(16)
	sha1Needle = buildIDNeedle(20)
)

// FindBuildIDNote scans buf in reverse for a GNU build-id note whose
// descsz is either 16 (MD5) or 20 (SHA1) bytes, returning the offset of
// the note header within buf. Reverse search biases to the latest
// occurrence (spec.md §4.4).
func FindBuildIDNote(buf []byte) (offset int, ok bool) {
	if off := bin.MemMemReverse(buf, md5Needle); off >= 0 {
		return off, true
	}
	if off := bin.MemMemReverse(buf, sha1Needle); off >= 0 {
		return off, true
	}
	return 0, false
}

// NoteDescription returns the raw build-id bytes (n_descsz long) following
// a note header located at offset within image.
func NoteDescription(image []byte, offset int) []byte {
	descsz := binary.LittleEndian.Uint32(image[offset+4:])
	nameLen := 4 // namesz is always 4 ("GNU\0"), already 4-byte aligned
	payloadOff := offset + nhdrSize + nameLen
	return image[payloadOff : payloadOff+int(descsz)]
}

// NoteTotalSize returns sizeof(Elf64_Nhdr) + n_namesz + n_descsz, the
// .note section's sh_size (spec.md §4.8).
func NoteTotalSize(image []byte, offset int) uint64 {
	namesz := binary.LittleEndian.Uint32(image[offset:])
	descsz := binary.LittleEndian.Uint32(image[offset+4:])
	return uint64(nhdrSize) + uint64(namesz) + uint64(descsz)
}
