package emmap

import "math"

// Cell is a crystallographic unit cell: edge lengths in Å and angles in
// degrees. The zero value is not meaningful; build one from a decoded
// map via DensityMap.Cell.
type Cell struct {
	A, B, C            float64
	Alpha, Beta, Gamma float64
}

// Volume returns the cell volume in Å³.
func (c Cell) Volume() float64 {
	ca := math.Cos(toRad(c.Alpha))
	cb := math.Cos(toRad(c.Beta))
	cg := math.Cos(toRad(c.Gamma))
	return c.A * c.B * c.C * math.Sqrt(1-ca*ca-cb*cb-cg*cg+2*ca*cb*cg)
}

// OrthoMatrix returns the 3×3 fractional→Cartesian orthogonalisation
// matrix in the standard PDB convention: a along X, b in the XY plane.
func (c Cell) OrthoMatrix() [3][3]float64 {
	α := toRad(c.Alpha)
	β := toRad(c.Beta)
	γ := toRad(c.Gamma)
	cosα, cosβ, cosγ := math.Cos(α), math.Cos(β), math.Cos(γ)
	sinγ := math.Sin(γ)

	// c* projection terms.
	cx := c.C * cosβ
	cy := c.C * (cosα - cosβ*cosγ) / sinγ
	cz := math.Sqrt(c.C*c.C - cx*cx - cy*cy)

	return [3][3]float64{
		{c.A, c.B * cosγ, cx},
		{0, c.B * sinγ, cy},
		{0, 0, cz},
	}
}

// FracToCart converts fractional coordinates to Cartesian Å.
func (c Cell) FracToCart(fx, fy, fz float64) (x, y, z float64) {
	m := c.OrthoMatrix()
	x = m[0][0]*fx + m[0][1]*fy + m[0][2]*fz
	y = m[1][0]*fx + m[1][1]*fy + m[1][2]*fz
	z = m[2][0]*fx + m[2][1]*fy + m[2][2]*fz
	return
}

// VoxelSpacing returns the sampling step along each cell axis in Å,
// cell edge over interval count.
func (m *DensityMap) VoxelSpacing() [3]float64 {
	var sp [3]float64
	for i := range sp {
		if m.Intervals[i] != 0 {
			sp[i] = m.CellSize[i] / float64(m.Intervals[i])
		}
	}
	return sp
}

func toRad(d float64) float64 { return d * math.Pi / 180 }
