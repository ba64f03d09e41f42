package emmap

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"math"
	"testing"

	kgzip "github.com/klauspost/compress/gzip"
)

// gzipCompress compresses plain with the klauspost gzip writer. Decoding
// its output with our inflater is the cross-implementation round-trip
// check used throughout these tests.
func gzipCompress(t testing.TB, plain []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := kgzip.NewWriter(&buf)
	if _, err := w.Write(plain); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

// bitWriter builds deflate bit streams by hand, LSB-first within each
// byte, for fixtures whose exact block structure matters.
type bitWriter struct {
	out []byte
	cur uint32
	n   uint
}

// writeBits appends an n-bit value LSB-first (header fields, extra bits).
func (w *bitWriter) writeBits(v uint32, n uint) {
	w.cur |= v << w.n
	w.n += n
	for w.n >= 8 {
		w.out = append(w.out, byte(w.cur))
		w.cur >>= 8
		w.n -= 8
	}
}

// writeCode appends a Huffman code, most significant code bit first, as
// RFC 1951 §3.1.1 packs them.
func (w *bitWriter) writeCode(code uint32, n uint) {
	for i := int(n) - 1; i >= 0; i-- {
		w.writeBits(code>>uint(i)&1, 1)
	}
}

// flush pads the final partial byte with zero bits.
func (w *bitWriter) flush() []byte {
	if w.n > 0 {
		w.out = append(w.out, byte(w.cur))
		w.cur, w.n = 0, 0
	}
	return w.out
}

// fixedLitCode returns the fixed-Huffman code for a literal/length symbol
// (RFC 1951 §3.2.6).
func fixedLitCode(sym int) (code uint32, bits uint) {
	switch {
	case sym < 144:
		return uint32(0x30 + sym), 8
	case sym < 256:
		return uint32(0x190 + sym - 144), 9
	case sym < 280:
		return uint32(sym - 256), 7
	default:
		return uint32(0xC0 + sym - 280), 8
	}
}

// writeFixedLiteral emits one literal byte as a fixed-Huffman symbol.
func (w *bitWriter) writeFixedLiteral(b byte) {
	code, n := fixedLitCode(int(b))
	w.writeCode(code, n)
}

// writeFixedMatch emits a length/distance pair using the fixed tables.
// Only the (length, distance) combinations used by fixtures are handled.
func (w *bitWriter) writeFixedMatch(t testing.TB, length, distance int) {
	t.Helper()
	li := -1
	for i := len(lengthBase) - 1; i >= 0; i-- {
		if lengthBase[i] <= length && length-lengthBase[i] < 1<<lengthExtra[i] {
			li = i
			break
		}
	}
	if li < 0 {
		t.Fatalf("no length code for %d", length)
	}
	code, n := fixedLitCode(257 + li)
	w.writeCode(code, n)
	w.writeBits(uint32(length-lengthBase[li]), lengthExtra[li])

	di := -1
	for i := len(distBase) - 1; i >= 0; i-- {
		if distBase[i] <= distance && distance-distBase[i] < 1<<distExtra[i] {
			di = i
			break
		}
	}
	if di < 0 {
		t.Fatalf("no distance code for %d", distance)
	}
	w.writeCode(uint32(di), 5)
	w.writeBits(uint32(distance-distBase[di]), distExtra[di])
}

// gzipWrap frames a raw deflate body as a single gzip member with a
// correct CRC32/ISIZE trailer for plain.
func gzipWrap(deflateBody, plain []byte) []byte {
	out := []byte{0x1F, 0x8B, 8, 0, 0, 0, 0, 0, 0, 0}
	out = append(out, deflateBody...)
	var tr [8]byte
	binary.LittleEndian.PutUint32(tr[0:4], crc32.ChecksumIEEE(plain))
	binary.LittleEndian.PutUint32(tr[4:8], uint32(len(plain)))
	return append(out, tr[:]...)
}

// fixedHuffmanGzip builds a one-block fixed-Huffman gzip of plain,
// emitting every byte as a literal.
func fixedHuffmanGzip(plain []byte) []byte {
	var w bitWriter
	w.writeBits(1, 1) // BFINAL
	w.writeBits(1, 2) // BTYPE fixed
	for _, b := range plain {
		w.writeFixedLiteral(b)
	}
	code, n := fixedLitCode(256)
	w.writeCode(code, n)
	return gzipWrap(w.flush(), plain)
}

// testMapParams configures the synthetic CCP4 fixtures.
type testMapParams struct {
	size    [3]int
	mode    int
	symOps  []string // each padded to one 80-byte record
	values  []float32
	axes    [3]int
	badSize int // when nonzero, overrides the payload length
}

// buildCcp4 serialises a synthetic CCP4 map (header + symmetry block +
// payload). AMIN/AMAX/AMEAN are computed from the values; ARMS is a
// fixed 1.25.
func buildCcp4(t testing.TB, p testMapParams) []byte {
	t.Helper()
	if p.axes == ([3]int{}) {
		p.axes = [3]int{1, 2, 3}
	}
	n := p.size[0] * p.size[1] * p.size[2]
	if p.values == nil {
		p.values = make([]float32, n)
		for i := range p.values {
			p.values[i] = float32(i % 251)
		}
	}
	if len(p.values) != n {
		t.Fatalf("buildCcp4: %d values for %v grid", len(p.values), p.size)
	}

	min, max := p.values[0], p.values[0]
	var sum float64
	for _, v := range p.values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += float64(v)
	}
	mean := float32(sum / float64(n))

	hdr := make([]byte, ccp4HeaderBytes)
	putWord := func(i int, v uint32) { binary.LittleEndian.PutUint32(hdr[i*4:], v) }
	putInt := func(i, v int) { putWord(i, uint32(int32(v))) }
	putFloat := func(i int, v float32) { putWord(i, math.Float32bits(v)) }

	for i := 0; i < 3; i++ {
		putInt(0+i, p.size[i])
		putInt(4+i, -p.size[i]/2) // arbitrary start offsets
		putInt(7+i, p.size[i])
		putFloat(10+i, float32(p.size[i])*1.05) // cell edges in Å
		putFloat(13+i, 90)
		putInt(16+i, p.axes[i])
	}
	putInt(3, p.mode)
	putFloat(19, min)
	putFloat(20, max)
	putFloat(21, mean)
	putInt(22, 1) // P1
	putInt(23, len(p.symOps)*symRecordBytes)
	putWord(52, ccp4MagicWord)
	putFloat(54, 1.25)

	out := hdr
	for _, op := range p.symOps {
		rec := make([]byte, symRecordBytes)
		for i := range rec {
			rec[i] = ' '
		}
		copy(rec, op)
		out = append(out, rec...)
	}

	payloadLen := n * 4
	if p.mode == 0 {
		payloadLen = n
	}
	if p.badSize != 0 {
		payloadLen = p.badSize
	}
	payload := make([]byte, payloadLen)
	switch p.mode {
	case 0:
		for i := 0; i < len(payload) && i < n; i++ {
			payload[i] = byte(int8(int(p.values[i])))
		}
	case 2:
		for i := 0; i < n && i*4+4 <= len(payload); i++ {
			binary.LittleEndian.PutUint32(payload[i*4:], math.Float32bits(p.values[i]))
		}
	}
	return append(out, payload...)
}

// decodeAll pushes the whole stream in one chunk and closes.
func decodeAll(t *testing.T, stream []byte, opts Options) (*DensityMap, error) {
	t.Helper()
	d := NewStreamDecoder(opts)
	if err := d.Push(stream); err != nil {
		return nil, err
	}
	if err := d.CloseEnd(); err != nil {
		return nil, err
	}
	return d.Map()
}

// decodeChunked pushes the stream in fixed-size chunks and closes.
func decodeChunked(t *testing.T, stream []byte, chunk int, opts Options) (*DensityMap, error) {
	t.Helper()
	d := NewStreamDecoder(opts)
	for off := 0; off < len(stream); off += chunk {
		end := off + chunk
		if end > len(stream) {
			end = len(stream)
		}
		if err := d.Push(stream[off:end]); err != nil {
			return nil, err
		}
	}
	if err := d.CloseEnd(); err != nil {
		return nil, err
	}
	return d.Map()
}
