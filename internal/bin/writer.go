package bin

import "encoding/binary"

// Writer accumulates bytes for ELF emission with the same explicit,
// field-at-a-time style as Reader's accessors — no struct reflection, no
// encoding/binary.Write over a whole struct.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Len() int { return len(w.buf) }

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) U8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) U16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) U32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) S32(v int32) {
	w.U32(uint32(v))
}

func (w *Writer) U64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// RawBytes appends an arbitrary-length byte slice verbatim.
func (w *Writer) RawBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// Pad appends n zero bytes.
func (w *Writer) Pad(n int) {
	for i := 0; i < n; i++ {
		w.buf = append(w.buf, 0)
	}
}

// AlignTo zero-pads until Len() is a multiple of align.
func (w *Writer) AlignTo(align int) {
	if align <= 1 {
		return
	}
	rem := len(w.buf) % align
	if rem != 0 {
		w.Pad(align - rem)
	}
}

// PutAt overwrites existing bytes starting at off — used for backpatching
// header fields whose values (e_shoff, e_shstrndx) are only known once the
// rest of the file has been laid out.
func (w *Writer) PutAt(off int, b []byte) {
	copy(w.buf[off:], b)
}
