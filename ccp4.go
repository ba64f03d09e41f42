package emmap

import (
	"encoding/binary"
	"fmt"
	"math"
)

// CCP4/MRC layout constants. The header is 256 little-endian 32-bit
// words; word 52 holds the "MAP " identifier.
const (
	ccp4HeaderBytes = 1024
	ccp4MagicWord   = 0x2050414D // "MAP " read little-endian
	symRecordBytes  = 80
)

// Input sanity limits, all far above any real EMDB entry.
const (
	// maxMapDim: the largest EMDB maps are ~2000 voxels per axis; cap at
	// 100000 per dimension before sizing allocations from header words.
	maxMapDim = 100000

	// maxVoxels caps the Data allocation at 1 GiB of float32.
	maxVoxels = 1 << 28

	// maxSymBytes: symmetry blocks are a handful of 80-byte records;
	// space group 230 tops out under 200 operators.
	maxSymBytes = 1 << 20
)

// ccp4Header holds the decoded fixed header fields.
type ccp4Header struct {
	size      [3]int // NC, NR, NS
	mode      int
	start     [3]int
	intervals [3]int
	cellSize  [3]float64
	cellAngle [3]float64
	axes      [3]int // MAPC, MAPR, MAPS
	amin      float32
	amax      float32
	amean     float32
	arms      float32
	ispg      int
	nsymbt    int
	lskflg    int
	skwmat    [3][3]float64
	skwtrn    [3]float64
}

// parseCcp4Header decodes and validates the 1024-byte header. b must be
// at least ccp4HeaderBytes long.
func parseCcp4Header(b []byte) (*ccp4Header, error) {
	if len(b) < ccp4HeaderBytes {
		return nil, fmt.Errorf("ccp4 header: need %d bytes, got %d: %w", ccp4HeaderBytes, len(b), ErrTruncated)
	}
	word := func(i int) uint32 { return binary.LittleEndian.Uint32(b[i*4 : i*4+4]) }
	iword := func(i int) int { return int(int32(word(i))) }
	fword := func(i int) float32 { return math.Float32frombits(word(i)) }

	if word(52) != ccp4MagicWord {
		return nil, fmt.Errorf("%w: word 52 = %#08x, want %#08x", ErrBadCcp4Magic, word(52), uint32(ccp4MagicWord))
	}

	h := &ccp4Header{
		size:      [3]int{iword(0), iword(1), iword(2)},
		mode:      iword(3),
		start:     [3]int{iword(4), iword(5), iword(6)},
		intervals: [3]int{iword(7), iword(8), iword(9)},
		cellSize:  [3]float64{float64(fword(10)), float64(fword(11)), float64(fword(12))},
		cellAngle: [3]float64{float64(fword(13)), float64(fword(14)), float64(fword(15))},
		axes:      [3]int{iword(16), iword(17), iword(18)},
		amin:      fword(19),
		amax:      fword(20),
		amean:     fword(21),
		ispg:      iword(22),
		nsymbt:    iword(23),
		lskflg:    iword(24),
		arms:      fword(54),
	}
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			h.skwmat[r][c] = float64(fword(25 + r*3 + c))
		}
		h.skwtrn[r] = float64(fword(34 + r))
	}

	if h.mode != 0 && h.mode != 2 {
		return nil, fmt.Errorf("%w: MODE=%d (supported: 0, 2)", ErrUnsupportedMode, h.mode)
	}
	for i, n := range h.size {
		if n < 1 || n > maxMapDim {
			return nil, fmt.Errorf("%w: axis %d size %d outside [1, %d]", ErrSizeMismatch, i, n, maxMapDim)
		}
	}
	if v := h.voxelCount(); v > maxVoxels {
		return nil, fmt.Errorf("%w: %d voxels exceeds maximum %d", ErrSizeMismatch, v, maxVoxels)
	}
	if h.nsymbt < 0 || h.nsymbt%4 != 0 || h.nsymbt > maxSymBytes {
		return nil, fmt.Errorf("%w: NSYMBT=%d", ErrSymmetryMisalignment, h.nsymbt)
	}
	if !isAxisPermutation(h.axes) {
		return nil, fmt.Errorf("%w: MAPC/MAPR/MAPS = %v is not a permutation of 1..3", ErrSizeMismatch, h.axes)
	}
	for _, f := range []float32{h.amin, h.amax, h.amean, h.arms} {
		f64 := float64(f)
		if math.IsNaN(f64) || math.IsInf(f64, 0) {
			return nil, fmt.Errorf("%w: non-finite scalar statistic %v", ErrSizeMismatch, f)
		}
	}
	return h, nil
}

func isAxisPermutation(axes [3]int) bool {
	var seen [4]bool
	for _, a := range axes {
		if a < 1 || a > 3 || seen[a] {
			return false
		}
		seen[a] = true
	}
	return true
}

// bytesPerVoxel returns the storage width for the header's MODE.
func (h *ccp4Header) bytesPerVoxel() int {
	if h.mode == 0 {
		return 1
	}
	return 4
}

// voxelCount returns NC·NR·NS in 64-bit arithmetic.
func (h *ccp4Header) voxelCount() int64 {
	return int64(h.size[0]) * int64(h.size[1]) * int64(h.size[2])
}

// expectedTotal returns the exact decoded stream length the header
// implies: 1024 + NSYMBT + bytesPerVoxel·NC·NR·NS.
func (h *ccp4Header) expectedTotal() int64 {
	return ccp4HeaderBytes + int64(h.nsymbt) + int64(h.bytesPerVoxel())*h.voxelCount()
}

// readVoxels materialises the payload as float32. Mode 2 reinterprets
// little-endian IEEE-754 words; mode 0 widens signed bytes.
func (h *ccp4Header) readVoxels(payload []byte) ([]float32, error) {
	n := int(h.voxelCount())
	if want := n * h.bytesPerVoxel(); len(payload) != want {
		return nil, fmt.Errorf("%w: voxel payload %d bytes, want %d", ErrSizeMismatch, len(payload), want)
	}
	data := make([]float32, n)
	switch h.mode {
	case 0:
		for i := range data {
			data[i] = float32(int8(payload[i]))
		}
	case 2:
		for i := range data {
			data[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4:]))
		}
	}
	return data, nil
}

// buildMap assembles the immutable DensityMap from the validated header,
// symmetry block, and voxel payload.
func (h *ccp4Header) buildMap(symBlock, payload []byte, opts Options) (*DensityMap, error) {
	if opts.ExpandSymmetry && h.nsymbt > 0 {
		return nil, fmt.Errorf("%d symmetry bytes present: %w", h.nsymbt, ErrSymmetryExpansion)
	}
	ops, err := parseSymmetryBlock(symBlock)
	if err != nil {
		return nil, err
	}
	data, err := h.readVoxels(payload)
	if err != nil {
		return nil, err
	}
	m := &DensityMap{
		Size:        h.size,
		Start:       h.start,
		Intervals:   h.intervals,
		Axes:        h.axes,
		CellSize:    h.cellSize,
		CellAngles:  h.cellAngle,
		Min:         h.amin,
		Max:         h.amax,
		Mean:        h.amean,
		RMS:         h.arms,
		SpaceGroup:  h.ispg,
		Data:        data,
		SymmetryOps: ops,
	}
	if h.lskflg != 0 {
		skwmat, skwtrn := h.skwmat, h.skwtrn
		m.SkewMatrix = &skwmat
		m.SkewTranslation = &skwtrn
	}
	return m, nil
}

// parseSymmetryBlock splits the NSYMBT bytes into 80-byte records and
// parses each. All-blank padding records are skipped.
func parseSymmetryBlock(block []byte) ([][4][4]float64, error) {
	if len(block)%symRecordBytes != 0 {
		return nil, fmt.Errorf("%w: %d symmetry bytes is not a whole number of %d-byte records",
			ErrSymmetryMisalignment, len(block), symRecordBytes)
	}
	var ops [][4][4]float64
	for off := 0; off < len(block); off += symRecordBytes {
		rec := block[off : off+symRecordBytes]
		if isBlankRecord(rec) {
			continue
		}
		op, err := parseSymmetryOperator(string(rec))
		if err != nil {
			return nil, fmt.Errorf("symmetry record %d: %w", off/symRecordBytes, err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func isBlankRecord(rec []byte) bool {
	for _, b := range rec {
		if b != ' ' && b != 0 {
			return false
		}
	}
	return true
}
