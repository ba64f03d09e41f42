package emmap

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
)

// Slice extracts a 2-D plane from the map along the given stored axis
// (0 = column, 1 = row, 2 = section) at an integer index, normalised to
// 8-bit grayscale by v ↦ round((d − Min)/(Max − Min) · 255) and
// vertically mirrored so row 0 renders at the bottom. Requires
// Max > Min.
func (m *DensityMap) Slice(axis, index int) (*image.Gray, error) {
	if axis < 0 || axis > 2 {
		return nil, fmt.Errorf("slice: axis %d outside [0, 2]", axis)
	}
	if index < 0 || index >= m.Size[axis] {
		return nil, fmt.Errorf("slice: index %d outside [0, %d) on axis %d", index, m.Size[axis], axis)
	}
	if !(m.Max > m.Min) {
		return nil, fmt.Errorf("slice: degenerate value range [%v, %v]", m.Min, m.Max)
	}

	// The two remaining stored axes, in order, become image (x, y).
	var u, v int
	switch axis {
	case 0:
		u, v = 1, 2
	case 1:
		u, v = 0, 2
	case 2:
		u, v = 0, 1
	}
	w, hgt := m.Size[u], m.Size[v]
	img := image.NewGray(image.Rect(0, 0, w, hgt))

	scale := 255 / float64(m.Max-m.Min)
	var idx [3]int
	idx[axis] = index
	for y := 0; y < hgt; y++ {
		idx[v] = y
		for x := 0; x < w; x++ {
			idx[u] = x
			d := float64(m.At(idx[0], idx[1], idx[2]))
			g := math.Round((d - float64(m.Min)) * scale)
			if g < 0 {
				g = 0
			} else if g > 255 {
				g = 255
			}
			// Vertical mirror: voxel row 0 at the image bottom.
			img.SetGray(x, hgt-1-y, color.Gray{Y: byte(g)})
		}
	}
	return img, nil
}

// WriteSlicePNG renders a slice and PNG-encodes it to w.
func (m *DensityMap) WriteSlicePNG(w io.Writer, axis, index int) error {
	img, err := m.Slice(axis, index)
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}
