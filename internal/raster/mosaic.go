package raster

import "fmt"

// NoDataGapError means the mosaicked tiles leave holes inside the
// requested extent. A source that cannot cover the whole area is
// unusable, the caller falls back to the next one.
type NoDataGapError struct {
	Missing uint
	Total   uint
}

func (e *NoDataGapError) Error() string {
	return fmt.Sprintf("mosaic has %d of %d cells without data", e.Missing, e.Total)
}

// Mosaic resamples the tiles onto one grid covering the given extent
// at cellSize. Where tiles overlap, contributions are averaged to hide
// seams between requests. Every cell must end up with at least one
// sample or the whole mosaic fails with a NoDataGapError.
func Mosaic(tiles []*Grid, minX, minY, maxX, maxY, cellSize float64) (*Grid, error) {
	if len(tiles) == 0 {
		return nil, fmt.Errorf("mosaic needs at least one tile")
	}
	if cellSize <= 0 || maxX <= minX || maxY <= minY {
		return nil, fmt.Errorf("invalid mosaic extent")
	}

	ncols := uint((maxX-minX)/cellSize + 0.5)
	nrows := uint((maxY-minY)/cellSize + 0.5)
	if ncols == 0 || nrows == 0 {
		return nil, fmt.Errorf("mosaic extent smaller than one cell")
	}

	out := NewGrid(ncols, nrows, minX, minY, cellSize)
	var missing uint

	for r := uint(0); r < nrows; r++ {
		for c := uint(0); c < ncols; c++ {
			x := out.X(c)
			y := out.Y(r)

			var sum float64
			var n int
			for _, t := range tiles {
				if v, ok := t.Sample(x, y); ok {
					sum += v
					n++
				}
			}
			if n == 0 {
				missing++
				continue
			}
			out.Data[r][c] = sum / float64(n)
		}
	}

	if missing > 0 {
		return nil, &NoDataGapError{Missing: missing, Total: ncols * nrows}
	}
	return out, nil
}
