package emmap

import (
	"encoding/binary"
	"fmt"
)

// RFC 1951 §3.2.5 length and distance tables.
var (
	lengthBase = [29]int{
		3, 4, 5, 6, 7, 8, 9, 10, 11, 13, 15, 17, 19, 23, 27, 31,
		35, 43, 51, 59, 67, 83, 99, 115, 131, 163, 195, 227, 258,
	}
	lengthExtra = [29]uint{
		0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2,
		3, 3, 3, 3, 4, 4, 4, 4, 5, 5, 5, 5, 0,
	}
	distBase = [30]int{
		1, 2, 3, 4, 5, 7, 9, 13, 17, 25, 33, 49, 65, 97, 129, 193,
		257, 385, 513, 769, 1025, 1537, 2049, 3073, 4097, 6145,
		8193, 12289, 16385, 24577,
	}
	distExtra = [30]uint{
		0, 0, 0, 0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 6,
		7, 7, 8, 8, 9, 9, 10, 10, 11, 11, 12, 12, 13, 13,
	}

	// Order in which the code-length alphabet's lengths are transmitted
	// in a dynamic block header (RFC 1951 §3.2.7).
	clOrder = [19]int{16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15}
)

// maxMatchLen is the longest back-reference DEFLATE can encode.
const maxMatchLen = 258

// inflator decodes a DEFLATE bit stream (RFC 1951). The decoded output
// vector doubles as the LZ77 history: the map reader consumes the whole
// stream, so nothing older than 32 KiB is ever trimmed and back-references
// read straight from the tail of out.
//
// Resume discipline: before each block the inflator snapshots the
// chunkBuffer cursor, the bitReader accumulator, and the output length.
// On underflow with the stream still open it restores the snapshot and
// reports errNeedMore; the caller retries the whole block once more
// input has arrived. Underflow with the stream closed is ErrTruncated.
type inflator struct {
	bits *bitReader
	out  []byte
	done bool // final block fully decoded
}

func newInflator(src *chunkBuffer) *inflator {
	return &inflator{bits: &bitReader{src: src}}
}

// run decodes blocks until the final block completes or input runs out.
// Returns nil when the stream is fully inflated, errNeedMore when
// suspended, or a fatal error.
func (f *inflator) run() error {
	for !f.done {
		srcCp := f.bits.src.checkpoint()
		bitCp := f.bits.checkpoint()
		outLen := len(f.out)
		// The snapshot is now the oldest rewind target; everything
		// before it can go.
		f.bits.src.compact()

		err := f.block()
		if err == errNeedMore {
			if rerr := f.bits.src.restore(srcCp); rerr != nil {
				return rerr
			}
			f.bits.restore(bitCp)
			f.out = f.out[:outLen]
			return errNeedMore
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// block decodes one DEFLATE block.
func (f *inflator) block() error {
	bfinal, err := f.bits.shift(1)
	if err != nil {
		return err
	}
	btype, err := f.bits.shift(2)
	if err != nil {
		return err
	}

	switch btype {
	case 0:
		err = f.storedBlock()
	case 1:
		err = f.huffmanBlock(fixedLitTable, fixedDistTable)
	case 2:
		var lit, dist *huffTable
		lit, dist, err = f.dynamicTables()
		if err == nil {
			err = f.huffmanBlock(lit, dist)
		}
	default:
		return fmt.Errorf("%w: reserved BTYPE=3", ErrInvalidDeflateBlock)
	}
	if err != nil {
		return err
	}
	if bfinal == 1 {
		f.done = true
	}
	return nil
}

// storedBlock copies LEN raw bytes (RFC 1951 §3.2.4).
func (f *inflator) storedBlock() error {
	f.bits.alignByte()
	hdr, err := f.bits.takeAligned(4)
	if err != nil {
		return err
	}
	length := int(binary.LittleEndian.Uint16(hdr[0:2]))
	nlen := binary.LittleEndian.Uint16(hdr[2:4])
	if uint16(length) != ^nlen {
		return fmt.Errorf("%w: stored block LEN %#04x vs NLEN %#04x", ErrInvalidDeflateBlock, length, nlen)
	}
	data, err := f.bits.takeAligned(length)
	if err != nil {
		return err
	}
	f.out = append(f.out, data...)
	return nil
}

// dynamicTables reads the dynamic block header and builds the
// literal/length and distance tables (RFC 1951 §3.2.7).
func (f *inflator) dynamicTables() (*huffTable, *huffTable, error) {
	hlit, err := f.bits.shift(5)
	if err != nil {
		return nil, nil, err
	}
	hdist, err := f.bits.shift(5)
	if err != nil {
		return nil, nil, err
	}
	hclen, err := f.bits.shift(4)
	if err != nil {
		return nil, nil, err
	}
	nLit := int(hlit) + 257
	nDist := int(hdist) + 1
	nCl := int(hclen) + 4

	var clLens [19]uint8
	for i := 0; i < nCl; i++ {
		v, err := f.bits.shift(3)
		if err != nil {
			return nil, nil, err
		}
		clLens[clOrder[i]] = uint8(v)
	}
	clTable, err := buildHuffTable(clLens[:])
	if err != nil {
		return nil, nil, err
	}

	// Literal/length and distance code lengths share one run-length
	// encoded sequence.
	lens := make([]uint8, nLit+nDist)
	for i := 0; i < len(lens); {
		sym, err := clTable.decodeSym(f.bits)
		if err != nil {
			return nil, nil, err
		}
		switch {
		case sym < 16:
			lens[i] = uint8(sym)
			i++
		case sym == 16:
			if i == 0 {
				return nil, nil, fmt.Errorf("%w: repeat-previous at position 0", ErrInvalidDeflateBlock)
			}
			n, err := f.bits.shift(2)
			if err != nil {
				return nil, nil, err
			}
			i, err = repeatLen(lens, i, 3+int(n), lens[i-1])
			if err != nil {
				return nil, nil, err
			}
		case sym == 17:
			n, err := f.bits.shift(3)
			if err != nil {
				return nil, nil, err
			}
			i, err = repeatLen(lens, i, 3+int(n), 0)
			if err != nil {
				return nil, nil, err
			}
		case sym == 18:
			n, err := f.bits.shift(7)
			if err != nil {
				return nil, nil, err
			}
			i, err = repeatLen(lens, i, 11+int(n), 0)
			if err != nil {
				return nil, nil, err
			}
		default:
			return nil, nil, fmt.Errorf("%w: code-length symbol %d", ErrInvalidHuffmanSymbol, sym)
		}
	}

	lit, err := buildHuffTable(lens[:nLit])
	if err != nil {
		return nil, nil, err
	}
	// A literal-only block may declare no distance codes at all (a
	// single zero length). The block is then valid as long as no match
	// symbol appears.
	var dist *huffTable
	if !allZero(lens[nLit:]) {
		if dist, err = buildHuffTable(lens[nLit:]); err != nil {
			return nil, nil, err
		}
	}
	return lit, dist, nil
}

func allZero(lens []uint8) bool {
	for _, l := range lens {
		if l != 0 {
			return false
		}
	}
	return true
}

// repeatLen writes count copies of v at lens[i:], rejecting overruns.
func repeatLen(lens []uint8, i, count int, v uint8) (int, error) {
	if i+count > len(lens) {
		return 0, fmt.Errorf("%w: code-length repeat overruns table (%d+%d > %d)",
			ErrInvalidDeflateBlock, i, count, len(lens))
	}
	for k := 0; k < count; k++ {
		lens[i+k] = v
	}
	return i + count, nil
}

// huffmanBlock decodes literal/length symbols until the end-of-block
// marker (256).
func (f *inflator) huffmanBlock(lit, dist *huffTable) error {
	for {
		sym, err := lit.decodeSym(f.bits)
		if err != nil {
			return err
		}
		switch {
		case sym < 256:
			f.out = append(f.out, byte(sym))
		case sym == 256:
			return nil
		case sym <= 285:
			if err := f.copyMatch(int(sym)-257, dist); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: length symbol %d > 285", ErrInvalidHuffmanSymbol, sym)
		}
	}
}

// copyMatch decodes one length/distance pair and copies the match
// byte-by-byte from the output tail. Overlapping copies (distance <
// length) are intentional and produce run-length extension.
func (f *inflator) copyMatch(lenIdx int, dist *huffTable) error {
	if dist == nil {
		return fmt.Errorf("%w: match symbol in a block with no distance codes", ErrInvalidDeflateBlock)
	}
	extra, err := f.bits.shift(lengthExtra[lenIdx])
	if err != nil {
		return err
	}
	length := lengthBase[lenIdx] + int(extra)
	if length > maxMatchLen {
		length = maxMatchLen
	}

	dsym, err := dist.decodeSym(f.bits)
	if err != nil {
		return err
	}
	if dsym > 29 {
		return fmt.Errorf("%w: distance symbol %d > 29", ErrInvalidHuffmanSymbol, dsym)
	}
	dextra, err := f.bits.shift(distExtra[dsym])
	if err != nil {
		return err
	}
	distance := distBase[dsym] + int(dextra)
	if distance > len(f.out) {
		return fmt.Errorf("%w: back-reference distance %d exceeds %d decoded bytes",
			ErrInvalidDeflateBlock, distance, len(f.out))
	}
	for i := 0; i < length; i++ {
		f.out = append(f.out, f.out[len(f.out)-distance])
	}
	return nil
}
