package geo

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/twpayne/go-proj/v11"
)

// Transformer converts WGS84 coordinates into a projected CRS and back.
// National elevation services expect their requests in the native CRS of
// the dataset, so each source gets one of these.
type Transformer struct {
	pj *proj.PJ
	// axis order of the target CRS; geographic CRSs and some national
	// grids are lat/lng (northing/easting) first
	targetNorthingFirst bool
}

// NewTransformer builds a WGS84-to-target transformer. The target is an
// authority string such as "epsg:25833".
func NewTransformer(targetCRS string, northingFirst bool) (*Transformer, error) {
	pj, err := proj.NewCRSToCRS("epsg:4326", targetCRS, nil)
	if err != nil {
		return nil, fmt.Errorf("create transform to %s: %w", targetCRS, err)
	}
	return &Transformer{pj: pj, targetNorthingFirst: northingFirst}, nil
}

// Forward projects a WGS84 (lng, lat) point into the target CRS,
// returning (x, y) in easting/northing order regardless of the CRS's
// declared axis order.
func (t *Transformer) Forward(lng, lat float64) (x, y float64, err error) {
	// proj's 4326 pipeline wants lat first
	out, err := t.pj.Forward(proj.NewCoord(lat, lng, 0, 0))
	if err != nil {
		return 0, 0, err
	}
	if t.targetNorthingFirst {
		return out.Y(), out.X(), nil
	}
	return out.X(), out.Y(), nil
}

// Inverse projects a target-CRS (x, y) back to WGS84 (lng, lat).
func (t *Transformer) Inverse(x, y float64) (lng, lat float64, err error) {
	in := proj.NewCoord(x, y, 0, 0)
	if t.targetNorthingFirst {
		in = proj.NewCoord(y, x, 0, 0)
	}
	out, err := t.pj.Inverse(in)
	if err != nil {
		return 0, 0, err
	}
	return out.Y(), out.X(), nil
}

// ForwardBBox projects all four corners of a WGS84 bbox and returns the
// axis-aligned envelope in the target CRS. Projecting only two corners
// under-covers curved graticules, so all four go through.
func (t *Transformer) ForwardBBox(b BBox) (minX, minY, maxX, maxY float64, err error) {
	corners := [4][2]float64{
		{b.West, b.South}, {b.East, b.South},
		{b.East, b.North}, {b.West, b.North},
	}
	for i, c := range corners {
		x, y, err := t.Forward(c[0], c[1])
		if err != nil {
			return 0, 0, 0, 0, err
		}
		if i == 0 {
			minX, minY, maxX, maxY = x, y, x, y
			continue
		}
		if x < minX {
			minX = x
		}
		if x > maxX {
			maxX = x
		}
		if y < minY {
			minY = y
		}
		if y > maxY {
			maxY = y
		}
	}
	return minX, minY, maxX, maxY, nil
}

// envelopeSteps is the per-edge sample count used when inverting a
// projected envelope back to WGS84.
const envelopeSteps = 16

// InverseBBox inverse-projects a target-CRS envelope to the WGS84
// bounding box of its footprint. Points are sampled along all four
// edges, not just the corners: away from the projection's central
// meridian the grid convergence rotates the envelope, so its extreme
// longitudes and latitudes sit on the edges.
func (t *Transformer) InverseBBox(minX, minY, maxX, maxY float64) (BBox, error) {
	var b BBox
	first := true
	add := func(x, y float64) error {
		lng, lat, err := t.Inverse(x, y)
		if err != nil {
			return err
		}
		if first {
			b = BBox{West: lng, South: lat, East: lng, North: lat}
			first = false
			return nil
		}
		b.West = min(b.West, lng)
		b.East = max(b.East, lng)
		b.South = min(b.South, lat)
		b.North = max(b.North, lat)
		return nil
	}
	for i := 0; i <= envelopeSteps; i++ {
		f := float64(i) / envelopeSteps
		x := minX + f*(maxX-minX)
		y := minY + f*(maxY-minY)
		for _, p := range [4][2]float64{{x, minY}, {x, maxY}, {minX, y}, {maxX, y}} {
			if err := add(p[0], p[1]); err != nil {
				return BBox{}, err
			}
		}
	}
	return b, nil
}

// RingContains reports whether a WGS84 point lies inside the ring, by
// even-odd crossing count.
func RingContains(ring orb.Ring, p orb.Point) bool {
	inside := false
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := ring[i], ring[j]
		if (a[1] > p[1]) != (b[1] > p[1]) {
			xCross := (b[0]-a[0])*(p[1]-a[1])/(b[1]-a[1]) + a[0]
			if p[0] < xCross {
				inside = !inside
			}
		}
	}
	return inside
}
