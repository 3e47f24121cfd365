package raster

import (
	"fmt"
	"image"
	"io"

	"golang.org/x/image/tiff"
)

// ParseTIFFGrid decodes an integer grayscale TIFF into a grid. Some
// providers can only serve TIFF, so this covers the 8 and 16 bit
// integer cases; the grid is georeferenced from the known request
// extent since the baseline TIFF tags carry no CRS.
func ParseTIFFGrid(r io.Reader, xll, yll, cellSize float64) (*Grid, error) {
	img, err := tiff.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode tiff: %w", err)
	}

	b := img.Bounds()
	ncols, nrows := uint(b.Dx()), uint(b.Dy())
	out := NewGrid(ncols, nrows, xll, yll, cellSize)

	switch im := img.(type) {
	case *image.Gray16:
		for r := uint(0); r < nrows; r++ {
			for c := uint(0); c < ncols; c++ {
				out.Data[r][c] = float64(im.Gray16At(b.Min.X+int(c), b.Min.Y+int(r)).Y)
			}
		}
	case *image.Gray:
		for r := uint(0); r < nrows; r++ {
			for c := uint(0); c < ncols; c++ {
				out.Data[r][c] = float64(im.GrayAt(b.Min.X+int(c), b.Min.Y+int(r)).Y)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported tiff pixel format %T", img)
	}
	return out, nil
}
