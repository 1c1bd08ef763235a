package dynamic

import (
	"encoding/binary"
	"testing"

	"github.com/xyproto/nx2elf/internal/bin"
)

func putDyn(buf []byte, off int, tag, val uint64) {
	binary.LittleEndian.PutUint64(buf[off:], tag)
	binary.LittleEndian.PutUint64(buf[off+8:], val)
}

func TestParseStopsAtTerminator(t *testing.T) {
	buf := make([]byte, 64)
	putDyn(buf, 0, DTSymtab, 0x1000)
	putDyn(buf, 16, DTStrtab, 0x2000)
	putDyn(buf, 32, DTNull, 0)
	r := bin.New(buf)
	tbl, err := Parse(r, 0)
	if err != nil {
		t.Fatal(err)
	}
	if tbl.Count != 3 {
		t.Fatalf("expected 3 entries (2 tags + terminator), got %d", tbl.Count)
	}
	if tbl.Info.Symtab != 0x1000 || tbl.Info.Strtab != 0x2000 {
		t.Fatalf("unexpected info: %+v", tbl.Info)
	}
	if tbl.ByteSize() != 3*DynEntSize {
		t.Fatalf("unexpected byte size: %d", tbl.ByteSize())
	}
}

func TestIterDynsymYieldsEachEntry(t *testing.T) {
	buf := make([]byte, SymEntSize*2)
	binary.LittleEndian.PutUint32(buf[0:], 1)           // st_name
	buf[4] = (StbLocal << 4) | SttSection               // st_info
	binary.LittleEndian.PutUint16(buf[6:], 1)           // st_shndx
	binary.LittleEndian.PutUint64(buf[8:], 0x4000)      // st_value
	binary.LittleEndian.PutUint32(buf[SymEntSize:], 2)  // second symbol's name
	r := bin.New(buf)
	var got []Sym
	err := IterDynsym(r, 0, uint64(len(buf)), func(s Sym) bool {
		got = append(got, s)
		return true
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 symbols, got %d", len(got))
	}
	if got[0].Value != 0x4000 || got[0].Type() != SttSection {
		t.Fatalf("unexpected first symbol: %+v", got[0])
	}
}
