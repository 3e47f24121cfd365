package raster

import (
	"context"
	"math"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"
)

var sem = semaphore.NewWeighted(int64(runtime.NumCPU()))

// SetWorkers bounds the number of concurrent row workers used by the
// filters. Values below 1 keep the CPU-count default. Call it before
// any filter runs; the bound is not meant to change mid-computation.
func SetWorkers(n int) {
	if n < 1 {
		return
	}
	sem = semaphore.NewWeighted(int64(n))
}

// SlopeDegrees computes the per-cell slope angle from central
// differences. Border cells use one-sided differences. Cells adjacent
// to no-data keep a zero slope, so data gaps never masquerade as
// cliffs.
func SlopeDegrees(g *Grid) [][]float64 {
	slope := make([][]float64, g.Nrows)

	wg := sync.WaitGroup{}
	for r := uint(0); r < g.Nrows; r++ {
		wg.Add(1)
		go func(r uint) {
			defer wg.Done()
			sem.Acquire(context.Background(), 1)
			defer sem.Release(1)

			row := make([]float64, g.Ncols)
			for c := uint(0); c < g.Ncols; c++ {
				dzdx, okX := gradient(g, c, r, true)
				dzdy, okY := gradient(g, c, r, false)
				if !okX || !okY {
					continue
				}
				row[c] = math.Atan(math.Hypot(dzdx, dzdy)) * 180 / math.Pi
			}
			slope[r] = row
		}(r)
	}
	wg.Wait()

	return slope
}

func gradient(g *Grid, c, r uint, alongX bool) (float64, bool) {
	get := func(c, r int) (float64, bool) {
		if c < 0 || r < 0 || c >= int(g.Ncols) || r >= int(g.Nrows) {
			return 0, false
		}
		v := g.Data[r][c]
		return v, v != g.NoData
	}

	ci, ri := int(c), int(r)
	dc, dr := 1, 0
	if !alongX {
		dc, dr = 0, 1
	}

	prev, okPrev := get(ci-dc, ri-dr)
	next, okNext := get(ci+dc, ri+dr)
	cur, okCur := get(ci, ri)
	if !okCur {
		return 0, false
	}
	switch {
	case okPrev && okNext:
		return (next - prev) / (2 * g.CellSize), true
	case okNext:
		return (next - cur) / g.CellSize, true
	case okPrev:
		return (cur - prev) / g.CellSize, true
	}
	return 0, false
}

// GaussianSmooth applies a separable Gaussian blur with the given sigma
// in cells and returns a new grid. Sigma values at or below zero
// return an unchanged copy. No-data cells are left untouched and do
// not bleed into their neighbours.
func GaussianSmooth(g *Grid, sigma float64) *Grid {
	if sigma <= 0 {
		return g.Clone()
	}

	kernel := gaussianKernel(sigma)
	half := len(kernel) / 2

	// horizontal pass
	tmp := g.Clone()
	wg := sync.WaitGroup{}
	for r := uint(0); r < g.Nrows; r++ {
		wg.Add(1)
		go func(r uint) {
			defer wg.Done()
			sem.Acquire(context.Background(), 1)
			defer sem.Release(1)
			convolveRow(g.Data[r], tmp.Data[r], kernel, half, g.NoData)
		}(r)
	}
	wg.Wait()

	// vertical pass, over transposed access
	out := tmp.Clone()
	wg2 := sync.WaitGroup{}
	for c := uint(0); c < g.Ncols; c++ {
		wg2.Add(1)
		go func(c uint) {
			defer wg2.Done()
			sem.Acquire(context.Background(), 1)
			defer sem.Release(1)

			colIn := make([]float64, g.Nrows)
			colOut := make([]float64, g.Nrows)
			for r := uint(0); r < g.Nrows; r++ {
				colIn[r] = tmp.Data[r][c]
			}
			convolveRow(colIn, colOut, kernel, half, g.NoData)
			for r := uint(0); r < g.Nrows; r++ {
				out.Data[r][c] = colOut[r]
			}
		}(c)
	}
	wg2.Wait()

	return out
}

// convolveRow convolves in with the kernel, renormalizing at borders
// and around no-data cells so valid samples keep their weight.
func convolveRow(in, out []float64, kernel []float64, half int, noData float64) {
	n := len(in)
	for i := 0; i < n; i++ {
		if in[i] == noData {
			out[i] = noData
			continue
		}
		var sum, weight float64
		for k := -half; k <= half; k++ {
			j := i + k
			if j < 0 || j >= n || in[j] == noData {
				continue
			}
			w := kernel[k+half]
			sum += in[j] * w
			weight += w
		}
		out[i] = sum / weight
	}
}

// SmoothField blurs a plain scalar field with a separable Gaussian.
// Unlike GaussianSmooth it has no no-data handling; mask fields treat
// every value as valid.
func SmoothField(field [][]float64, sigma float64) [][]float64 {
	nrows := len(field)
	if nrows == 0 || sigma <= 0 {
		out := make([][]float64, nrows)
		for r := range field {
			out[r] = append([]float64(nil), field[r]...)
		}
		return out
	}
	ncols := len(field[0])
	kernel := gaussianKernel(sigma)
	half := len(kernel) / 2

	tmp := make([][]float64, nrows)
	wg := sync.WaitGroup{}
	for r := 0; r < nrows; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			sem.Acquire(context.Background(), 1)
			defer sem.Release(1)
			row := make([]float64, ncols)
			convolveRow(field[r], row, kernel, half, math.Inf(-1))
			tmp[r] = row
		}(r)
	}
	wg.Wait()

	out := make([][]float64, nrows)
	for r := range out {
		out[r] = make([]float64, ncols)
	}
	wg2 := sync.WaitGroup{}
	for c := 0; c < ncols; c++ {
		wg2.Add(1)
		go func(c int) {
			defer wg2.Done()
			sem.Acquire(context.Background(), 1)
			defer sem.Release(1)
			colIn := make([]float64, nrows)
			colOut := make([]float64, nrows)
			for r := 0; r < nrows; r++ {
				colIn[r] = tmp[r][c]
			}
			convolveRow(colIn, colOut, kernel, half, math.Inf(-1))
			for r := 0; r < nrows; r++ {
				out[r][c] = colOut[r]
			}
		}(c)
	}
	wg2.Wait()

	return out
}

func gaussianKernel(sigma float64) []float64 {
	half := int(math.Ceil(3 * sigma))
	kernel := make([]float64, 2*half+1)
	var sum float64
	for i := -half; i <= half; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		kernel[i+half] = v
		sum += v
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// Resample builds a new grid over the same extent at a different cell
// size, bilinearly interpolating source values. Cells whose
// interpolation stencil touches no-data become no-data.
func Resample(g *Grid, cellSize float64) *Grid {
	if cellSize == g.CellSize {
		return g.Clone()
	}
	width := float64(g.Ncols) * g.CellSize
	height := float64(g.Nrows) * g.CellSize
	ncols := uint(width/cellSize + 0.5)
	nrows := uint(height/cellSize + 0.5)

	out := NewGrid(ncols, nrows, g.Xll, g.Yll, cellSize)
	for r := uint(0); r < nrows; r++ {
		for c := uint(0); c < ncols; c++ {
			if v, ok := g.Sample(out.X(c), out.Y(r)); ok {
				out.Data[r][c] = v
			}
		}
	}
	return out
}
