// Package geo holds the area-of-interest model and coordinate helpers.
package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// ValidationError reports a malformed input polygon or extent. It is fatal
// before any fetch begins.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid area of interest: " + e.Reason
}

// BBox is a WGS84 bounding box.
type BBox struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// AreaOfInterest is a validated, immutable user-drawn polygon in WGS84.
// Construct it with NewAreaOfInterest only.
type AreaOfInterest struct {
	ring    orb.Ring
	bbox    BBox
	widthM  float64
	heightM float64
}

// NewAreaOfInterest validates a closed ring of (lng, lat) vertices.
// The ring must be closed, simple and no larger than maxExtentM per axis.
func NewAreaOfInterest(coords [][2]float64, maxExtentM float64) (*AreaOfInterest, error) {
	if len(coords) < 4 {
		return nil, &ValidationError{Reason: "polygon needs at least 3 distinct vertices"}
	}

	first, last := coords[0], coords[len(coords)-1]
	if first != last {
		return nil, &ValidationError{Reason: "polygon ring is not closed"}
	}

	ring := make(orb.Ring, len(coords))
	for i, c := range coords {
		lng, lat := c[0], c[1]
		if lng < -180 || lng > 180 || lat < -90 || lat > 90 {
			return nil, &ValidationError{Reason: fmt.Sprintf("vertex %d outside valid WGS84 range", i)}
		}
		ring[i] = orb.Point{lng, lat}
	}

	if selfIntersects(ring) {
		return nil, &ValidationError{Reason: "polygon is self-intersecting"}
	}

	b := ring.Bound()
	bbox := BBox{West: b.Min[0], South: b.Min[1], East: b.Max[0], North: b.Max[1]}

	widthM, heightM := bbox.DimensionsM()
	if maxExtentM > 0 && (widthM > maxExtentM || heightM > maxExtentM) {
		return nil, &ValidationError{Reason: fmt.Sprintf(
			"extent %.0fx%.0f m exceeds maximum %.0f m per axis", widthM, heightM, maxExtentM)}
	}
	if widthM <= 0 || heightM <= 0 {
		return nil, &ValidationError{Reason: "polygon has zero extent"}
	}

	return &AreaOfInterest{ring: ring, bbox: bbox, widthM: widthM, heightM: heightM}, nil
}

// Ring returns a copy of the polygon ring.
func (a *AreaOfInterest) Ring() orb.Ring {
	return append(orb.Ring(nil), a.ring...)
}

// BBox returns the derived WGS84 bounding box.
func (a *AreaOfInterest) BBox() BBox { return a.bbox }

// ExtentM returns the metric width and height of the bounding box.
func (a *AreaOfInterest) ExtentM() (widthM, heightM float64) {
	return a.widthM, a.heightM
}

// DimensionsM estimates the width and height of the bbox in metres using
// the metre-per-degree approximation at the centre latitude.
func (b BBox) DimensionsM() (widthM, heightM float64) {
	latMid := (b.South + b.North) / 2
	mPerDegLat := 111320.0
	mPerDegLng := 111320.0 * math.Cos(latMid*math.Pi/180)
	return (b.East - b.West) * mPerDegLng, (b.North - b.South) * mPerDegLat
}

// PadM widens the box by m metres on every side, using the
// metre-per-degree approximation at the centre latitude.
func (b BBox) PadM(m float64) BBox {
	latMid := (b.South + b.North) / 2
	dLat := m / 111320.0
	dLng := m / (111320.0 * math.Cos(latMid*math.Pi/180))
	return BBox{
		West:  b.West - dLng,
		South: b.South - dLat,
		East:  b.East + dLng,
		North: b.North + dLat,
	}
}

// Center returns the bbox centre point as (lng, lat).
func (b BBox) Center() (lng, lat float64) {
	return (b.West + b.East) / 2, (b.South + b.North) / 2
}

// selfIntersects checks every non-adjacent segment pair. Rings here have a
// handful of user-drawn vertices, so the quadratic scan is fine.
func selfIntersects(ring orb.Ring) bool {
	n := len(ring) - 1 // last vertex repeats the first
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			// skip adjacent segments (they share an endpoint)
			if j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			if segmentsCross(ring[i], ring[i+1], ring[j], ring[j+1]) {
				return true
			}
		}
	}
	return false
}

func segmentsCross(p1, p2, q1, q2 orb.Point) bool {
	d1 := cross(q1, q2, p1)
	d2 := cross(q1, q2, p2)
	d3 := cross(p1, p2, q1)
	d4 := cross(p1, p2, q2)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

func cross(o, a, b orb.Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}
