package emmap

import (
	"reflect"
	"testing"
)

// TestBuildHuffTableCanonical checks canonical code assignment on the
// RFC 1951 §3.2.2 example alphabet: lengths (2,1,3,3) give codes
// A=10, B=0, C=110, D=111.
func TestBuildHuffTableCanonical(t *testing.T) {
	tab, err := buildHuffTable([]uint8{2, 1, 3, 3})
	if err != nil {
		t.Fatalf("buildHuffTable: %v", err)
	}
	if tab.maxLen != 3 {
		t.Fatalf("maxLen: got %d, want 3", tab.maxLen)
	}
	// Decode expectations, expressed as the LSB-first bit strings the
	// stream would carry: B=0, A=01, C=011, D=111.
	cases := []struct {
		stream byte
		nbits  uint8
		sym    uint16
	}{
		{0b000, 1, 1}, // B
		{0b001, 2, 0}, // A (code 10 reversed = 01)
		{0b011, 3, 2}, // C (code 110 reversed = 011)
		{0b111, 3, 3}, // D
	}
	for _, tc := range cases {
		if got := tab.sym[tc.stream]; got != tc.sym {
			t.Errorf("sym[%03b]: got %d, want %d", tc.stream, got, tc.sym)
		}
		if got := tab.len[tc.stream]; got != tc.nbits {
			t.Errorf("len[%03b]: got %d, want %d", tc.stream, got, tc.nbits)
		}
	}
}

// TestBuildHuffTableDeterministic verifies the table is a pure function
// of the length vector.
func TestBuildHuffTableDeterministic(t *testing.T) {
	lens := []uint8{3, 3, 3, 3, 3, 2, 4, 4}
	a, err := buildHuffTable(lens)
	if err != nil {
		t.Fatal(err)
	}
	b, err := buildHuffTable(lens)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a.sym, b.sym) || !reflect.DeepEqual(a.len, b.len) {
		t.Error("identical length vectors produced different tables")
	}
}

// TestBuildHuffTableEmpty rejects an all-zero length vector.
func TestBuildHuffTableEmpty(t *testing.T) {
	if _, err := buildHuffTable(make([]uint8, 19)); err == nil {
		t.Error("expected error for all-zero lengths")
	}
}

// TestFixedTablesDecode spot-checks the precomputed fixed tables: the
// 7-bit code 0000000 is end-of-block, 8-bit 01110001 is literal 'A'.
func TestFixedTablesDecode(t *testing.T) {
	b, src := bitsOver([]byte{0x00})
	src.closeEnd()
	sym, err := fixedLitTable.decodeSym(b)
	if err != nil {
		t.Fatalf("decodeSym: %v", err)
	}
	if sym != 256 {
		t.Errorf("all-zero 7 bits: got symbol %d, want 256", sym)
	}

	// Literal 'A' (65): code 0x30+65 = 0x71, 8 bits, sent MSB-first.
	var w bitWriter
	w.writeFixedLiteral('A')
	b2, src2 := bitsOver(w.flush())
	src2.closeEnd()
	sym, err = fixedLitTable.decodeSym(b2)
	if err != nil {
		t.Fatalf("decodeSym literal: %v", err)
	}
	if sym != 'A' {
		t.Errorf("literal decode: got %d, want %d", sym, 'A')
	}
}

// TestDecodeSymSuspends verifies the open-stream underflow surfaces as
// errNeedMore without consuming.
func TestDecodeSymSuspends(t *testing.T) {
	tab, err := buildHuffTable([]uint8{2, 2, 2, 2})
	if err != nil {
		t.Fatal(err)
	}
	b, src := bitsOver(nil)
	if _, err := tab.decodeSym(b); err != errNeedMore {
		t.Fatalf("decodeSym on open underflow: got %v, want errNeedMore", err)
	}
	if b.pending() != 0 {
		t.Fatalf("suspension left %d pending bits", b.pending())
	}
	src.append([]byte{0xFF})
	src.closeEnd()
	sym, err := tab.decodeSym(b)
	if err != nil {
		t.Fatalf("decodeSym after refill: %v", err)
	}
	if sym != 3 {
		t.Errorf("got symbol %d, want 3", sym)
	}
}
