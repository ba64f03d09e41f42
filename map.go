package emmap

// DensityMap is a decoded CCP4/MRC electron-density map: a dense float32
// grid plus the crystallographic metadata needed to place it. Values are
// stored row-major in stored-axis order, column (NC) fastest:
// data[(s*NR + r)*NC + c].
//
// A DensityMap is populated once by the decoder and immutable afterwards.
type DensityMap struct {
	Size      [3]int // NC, NR, NS: column/row/section counts of the stored grid
	Start     [3]int // NCSTART, NRSTART, NSSTART
	Intervals [3]int // MX, MY, MZ: sampling intervals along the cell axes
	Axes      [3]int // MAPC, MAPR, MAPS: stored axis → crystallographic axis (1..3)

	CellSize   [3]float64 // a, b, c in Å
	CellAngles [3]float64 // α, β, γ in degrees

	Min, Max, Mean, RMS float32

	SpaceGroup int

	// Skew transformation (header words 24..36). Parsed when LSKFLG is
	// nonzero, never applied; orthogonalisation is a consumer concern.
	SkewMatrix      *[3][3]float64
	SkewTranslation *[3]float64

	Data []float32

	// SymmetryOps holds one affine 4×4 matrix per 80-byte symmetry
	// record, bottom row (0,0,0,1). Empty when NSYMBT is zero.
	SymmetryOps [][4][4]float64
}

// At returns the voxel at stored-grid position (c, r, s) with c the
// fastest-varying index.
func (m *DensityMap) At(c, r, s int) float32 {
	return m.Data[(s*m.Size[1]+r)*m.Size[0]+c]
}

// NumVoxels returns NC·NR·NS.
func (m *DensityMap) NumVoxels() int {
	return m.Size[0] * m.Size[1] * m.Size[2]
}

// Cell returns the unit-cell frame for fractional↔Cartesian conversion.
func (m *DensityMap) Cell() Cell {
	return Cell{
		A: m.CellSize[0], B: m.CellSize[1], C: m.CellSize[2],
		Alpha: m.CellAngles[0], Beta: m.CellAngles[1], Gamma: m.CellAngles[2],
	}
}
