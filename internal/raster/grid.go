// Package raster holds the in-memory elevation grid and the operations
// that produce and refine it: Esri ASCII parsing and writing, tile
// mosaicking, resampling, slope and Gaussian filtering.
package raster

import "math"

// NoData marks cells without a valid elevation sample.
const NoData = -9999.0

// Grid is a georeferenced raster in a projected CRS. Row 0 is the
// northernmost row, matching the Esri ASCII layout the providers serve.
type Grid struct {
	Ncols, Nrows uint
	// Xll, Yll locate the lower-left corner of the lower-left cell.
	Xll, Yll float64
	CellSize float64
	NoData   float64
	Data     [][]float64
}

// NewGrid allocates a grid filled with the no-data marker.
func NewGrid(ncols, nrows uint, xll, yll, cellSize float64) *Grid {
	data := make([][]float64, nrows)
	for r := range data {
		row := make([]float64, ncols)
		for c := range row {
			row[c] = NoData
		}
		data[r] = row
	}
	return &Grid{
		Ncols: ncols, Nrows: nrows,
		Xll: xll, Yll: yll,
		CellSize: cellSize, NoData: NoData,
		Data: data,
	}
}

// Dims returns the dimensions of the grid.
func (g *Grid) Dims() (c, r uint) {
	return g.Ncols, g.Nrows
}

// Z returns the value at (c, r). It will panic if c or r are out of
// bounds for the grid.
func (g *Grid) Z(c, r uint) float64 {
	return g.Data[r][c]
}

// SetZ writes the value at (c, r).
func (g *Grid) SetZ(c, r uint, v float64) {
	g.Data[r][c] = v
}

// IsNoData reports whether the value at (c, r) is the no-data marker.
func (g *Grid) IsNoData(c, r uint) bool {
	return g.Data[r][c] == g.NoData
}

// X returns the centre coordinate of the column at index c.
func (g *Grid) X(c uint) float64 {
	return g.Xll + (float64(c)+0.5)*g.CellSize
}

// Y returns the centre coordinate of the row at index r. Row 0 is the
// top of the grid.
func (g *Grid) Y(r uint) float64 {
	return g.Yll + (float64(g.Nrows-1-r)+0.5)*g.CellSize
}

// Col returns the column index containing projected coordinate x, and
// whether it is inside the grid.
func (g *Grid) Col(x float64) (uint, bool) {
	c := math.Floor((x - g.Xll) / g.CellSize)
	if c < 0 || c >= float64(g.Ncols) {
		return 0, false
	}
	return uint(c), true
}

// Row returns the row index containing projected coordinate y, and
// whether it is inside the grid.
func (g *Grid) Row(y float64) (uint, bool) {
	fromBottom := math.Floor((y - g.Yll) / g.CellSize)
	if fromBottom < 0 || fromBottom >= float64(g.Nrows) {
		return 0, false
	}
	return g.Nrows - 1 - uint(fromBottom), true
}

// Clone returns a deep copy of the grid.
func (g *Grid) Clone() *Grid {
	out := *g
	out.Data = make([][]float64, g.Nrows)
	for r := range g.Data {
		row := make([]float64, g.Ncols)
		copy(row, g.Data[r])
		out.Data[r] = row
	}
	return &out
}

// MinMax scans for the smallest and largest valid values. ok is false
// when the grid holds no valid cell at all.
func (g *Grid) MinMax() (min, max float64, ok bool) {
	min, max = math.Inf(1), math.Inf(-1)
	for r := uint(0); r < g.Nrows; r++ {
		for c := uint(0); c < g.Ncols; c++ {
			v := g.Data[r][c]
			if v == g.NoData {
				continue
			}
			ok = true
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
	}
	return min, max, ok
}

// Sample returns the bilinear interpolation of the four cell centres
// around the projected point (x, y). Points outside the grid or next
// to no-data cells return (0, false).
func (g *Grid) Sample(x, y float64) (float64, bool) {
	// continuous position in cell-centre space
	fc := (x-g.Xll)/g.CellSize - 0.5
	fr := float64(g.Nrows-1) - ((y-g.Yll)/g.CellSize - 0.5)

	c0 := math.Floor(fc)
	r0 := math.Floor(fr)
	tc := fc - c0
	tr := fr - r0

	ci, ri := int(c0), int(r0)
	// clamp edge samples onto the border cells
	if ci < 0 && fc >= -0.5 {
		ci, tc = 0, 0
	}
	if ri < 0 && fr >= -0.5 {
		ri, tr = 0, 0
	}
	if ci == int(g.Ncols)-1 && tc > 0 {
		tc = 0
	}
	if ri == int(g.Nrows)-1 && tr > 0 {
		tr = 0
	}
	ci2, ri2 := ci, ri
	if tc > 0 {
		ci2 = ci + 1
	}
	if tr > 0 {
		ri2 = ri + 1
	}
	if ci < 0 || ri < 0 || ci2 >= int(g.Ncols) || ri2 >= int(g.Nrows) {
		return 0, false
	}

	z00 := g.Data[ri][ci]
	z10 := g.Data[ri][ci2]
	z01 := g.Data[ri2][ci]
	z11 := g.Data[ri2][ci2]
	if z00 == g.NoData || z10 == g.NoData || z01 == g.NoData || z11 == g.NoData {
		return 0, false
	}

	top := z00*(1-tc) + z10*tc
	bottom := z01*(1-tc) + z11*tc
	return top*(1-tr) + bottom*tr, true
}
