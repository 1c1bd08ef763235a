package infer

import "github.com/xyproto/nx2elf/internal/bin"

// DWARF pointer-encoding constants needed to decode the single pointer
// field in .eh_frame_hdr that this measurement cares about.
const (
	pePcrel  = 0x10
	peUdata4 = 0x03
	peSdata4 = 0x0b
	peUdata8 = 0x04
	peSdata8 = 0x0c
	peAbsptr = 0x00
)

// EHResult is the outcome of measuring .eh_frame_hdr/.eh_frame (spec.md
// §4.5), already rounded up to 16 bytes ("the fudge" — SPEC_FULL.md §11
// open question c, preserved verbatim).
type EHResult struct {
	HdrSize   uint64
	FrameAddr uint64
	FrameSize uint64
}

// MeasureEH parses the .eh_frame_hdr at hdrAddr per the DWARF EH header
// encoding, then walks .eh_frame as a sequence of length-prefixed records
// until a zero-length terminator. hdrSize is the already-known raw size
// of the header region (from the MOD header's eh_start/eh_end offsets);
// it is rounded up to 16 bytes alongside the measured frame size. Absence
// of a valid header (bad version, unsupported pointer encoding, or the
// pointer running out of bounds) returns ok=false and disables EH section
// emission (spec.md §4.5).
func MeasureEH(r *bin.Reader, hdrAddr uint64, hdrSize uint64) (EHResult, bool) {
	version, err := r.Slice(int(hdrAddr), 1)
	if err != nil || version[0] != 1 {
		return EHResult{}, false
	}
	encs, err := r.Slice(int(hdrAddr)+1, 3)
	if err != nil {
		return EHResult{}, false
	}
	ehFramePtrEnc := encs[0]

	ptrFieldOff := int(hdrAddr) + 4
	frameAddr, ok := decodeEHPtr(r, ptrFieldOff, ehFramePtrEnc)
	if !ok {
		return EHResult{}, false
	}

	frameSize, ok := measureFrameRecords(r, frameAddr)
	if !ok {
		return EHResult{}, false
	}

	return EHResult{
		HdrSize:   bin.AlignUp(hdrSize, 16),
		FrameAddr: frameAddr,
		FrameSize: bin.AlignUp(frameSize, 16),
	}, true
}

// decodeEHPtr reads a DWARF-encoded pointer at fieldOff and resolves it to
// an absolute image offset, supporting the encodings actually emitted by
// the Switch's toolchain: pc-relative 4-byte and 8-byte, signed or
// unsigned, and an absolute 8-byte pointer.
func decodeEHPtr(r *bin.Reader, fieldOff int, enc byte) (uint64, bool) {
	format := enc & 0x0f
	application := enc & 0xf0

	var raw int64
	var consumed int
	switch format {
	case peUdata4:
		v, err := r.U32(fieldOff)
		if err != nil {
			return 0, false
		}
		raw, consumed = int64(v), 4
	case peSdata4:
		v, err := r.S32(fieldOff)
		if err != nil {
			return 0, false
		}
		raw, consumed = int64(v), 4
	case peUdata8, peSdata8, peAbsptr:
		v, err := r.U64(fieldOff)
		if err != nil {
			return 0, false
		}
		raw, consumed = int64(v), 8
	default:
		return 0, false
	}
	_ = consumed

	if application == pePcrel {
		return uint64(int64(fieldOff) + raw), true
	}
	if application == 0x00 {
		return uint64(raw), true
	}
	return 0, false
}

// measureFrameRecords walks .eh_frame's length-prefixed records starting
// at addr until a zero-length terminator, summing record_total =
// length_field + sizeof(length_field), with 64-bit extended length when
// the initial 32-bit length field is 0xFFFFFFFF (spec.md §4.5).
func measureFrameRecords(r *bin.Reader, addr uint64) (uint64, bool) {
	pos := int(addr)
	var total uint64
	for {
		length, err := r.U32(pos)
		if err != nil {
			return 0, false
		}
		if length == 0 {
			break
		}
		var recordTotal uint64
		if length == 0xFFFFFFFF {
			length64, err := r.U64(pos + 4)
			if err != nil {
				return 0, false
			}
			recordTotal = length64 + 12
		} else {
			recordTotal = uint64(length) + 4
		}
		total += recordTotal
		pos += int(recordTotal)
	}
	return total, true
}
