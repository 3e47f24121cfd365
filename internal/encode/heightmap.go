// Package encode turns the refined grid and its masks into the files a
// world editor imports: a 16-bit quantized heightmap, per-surface mask
// PNGs, an Esri ASCII grid with real elevations, preview downscales and
// a metadata JSON describing the shared grid geometry.
package encode

import (
	"errors"
	"image"
	"math"

	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/raster"
)

/*
	The 16-bit heightmap stores elevations as

	height = offset + value * step

	with step = (max - min) / 65535 over the grid's valid range. Solving
	for value gives

	value = round((height - offset) / step)

	so decoding an encoded value reproduces the original height to within
	half a step, and re-encoding a decoded value is exact (the round trip
	is idempotent).
*/

// Quantization maps grid elevations onto the 16-bit range and back.
type Quantization struct {
	// OffsetM is the elevation encoded as 0.
	OffsetM float64
	// StepM is the elevation difference of one 16-bit step.
	StepM float64
}

// NewQuantization spans the quantization over [min, max]. A flat grid
// gets a one-metre step so decoding stays well defined.
func NewQuantization(min, max float64) Quantization {
	step := (max - min) / 65535
	if step <= 0 {
		step = 1.0 / 65535
	}
	return Quantization{OffsetM: min, StepM: step}
}

// Encode quantizes one elevation, clamping to the covered range.
func (q Quantization) Encode(z float64) uint16 {
	v := math.Round((z - q.OffsetM) / q.StepM)
	if v < 0 {
		v = 0
	}
	if v > 65535 {
		v = 65535
	}
	return uint16(v)
}

// Decode returns the elevation a quantized value stands for.
func (q Quantization) Decode(v uint16) float64 {
	return q.OffsetM + float64(v)*q.StepM
}

// HeightmapImage renders the grid as a 16-bit grayscale image, row 0 at
// the top. The returned quantization is what the metadata records so
// importers can recover real elevations.
func HeightmapImage(g *raster.Grid) (*image.Gray16, Quantization, error) {
	min, max, ok := g.MinMax()
	if !ok {
		return nil, Quantization{}, errors.New("heightmap: grid holds no valid cells")
	}
	q := NewQuantization(min, max)

	img := image.NewGray16(image.Rect(0, 0, int(g.Ncols), int(g.Nrows)))
	for r := uint(0); r < g.Nrows; r++ {
		for c := uint(0); c < g.Ncols; c++ {
			z := g.Z(c, r)
			if z == g.NoData {
				z = min
			}
			v := q.Encode(z)
			i := img.PixOffset(int(c), int(r))
			img.Pix[i] = uint8(v >> 8)
			img.Pix[i+1] = uint8(v)
		}
	}
	return img, q, nil
}

// MaskImage renders an 8-bit weight raster as a grayscale image with
// the same orientation as the heightmap.
func MaskImage(weights [][]uint8) *image.Gray {
	nrows := len(weights)
	ncols := 0
	if nrows > 0 {
		ncols = len(weights[0])
	}
	img := image.NewGray(image.Rect(0, 0, ncols, nrows))
	for r := 0; r < nrows; r++ {
		copy(img.Pix[r*img.Stride:], weights[r])
	}
	return img
}
