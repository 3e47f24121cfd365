package geo

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func squareAround(lng, lat, halfDeg float64) [][2]float64 {
	return [][2]float64{
		{lng - halfDeg, lat - halfDeg},
		{lng + halfDeg, lat - halfDeg},
		{lng + halfDeg, lat + halfDeg},
		{lng - halfDeg, lat + halfDeg},
		{lng - halfDeg, lat - halfDeg},
	}
}

func TestNewAreaOfInterest(t *testing.T) {
	aoi, err := NewAreaOfInterest(squareAround(10.4, 63.4, 0.05), 20000)
	if err != nil {
		t.Fatalf("valid polygon rejected: %v", err)
	}

	b := aoi.BBox()
	if b.West != 10.35 || b.East != 10.45 || b.South != 63.35 || b.North != 63.45 {
		t.Errorf("unexpected bbox: %+v", b)
	}

	w, h := aoi.ExtentM()
	// 0.1 deg of latitude is ~11.1 km; longitude shrinks by cos(63.4)
	if math.Abs(h-11132) > 50 {
		t.Errorf("height = %.0f m, want ~11132", h)
	}
	if math.Abs(w-11132*math.Cos(63.4*math.Pi/180)) > 50 {
		t.Errorf("width = %.0f m, want ~%.0f", w, 11132*math.Cos(63.4*math.Pi/180))
	}
}

func TestNewAreaOfInterestRejects(t *testing.T) {
	cases := []struct {
		name   string
		coords [][2]float64
		maxM   float64
	}{
		{
			name:   "unclosed ring",
			coords: [][2]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}},
			maxM:   0,
		},
		{
			name:   "too few vertices",
			coords: [][2]float64{{0, 0}, {1, 1}, {0, 0}},
			maxM:   0,
		},
		{
			name:   "out of range latitude",
			coords: [][2]float64{{0, 0}, {1, 0}, {1, 95}, {0, 0}},
			maxM:   0,
		},
		{
			name: "self intersecting bowtie",
			coords: [][2]float64{
				{0, 0}, {1, 1}, {1, 0}, {0, 1}, {0, 0},
			},
			maxM: 0,
		},
		{
			name:   "extent over limit",
			coords: squareAround(10, 60, 0.5),
			maxM:   20000,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewAreaOfInterest(tc.coords, tc.maxM)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %T: %v", err, err)
			}
		})
	}
}

func TestRingContains(t *testing.T) {
	ring := orb.Ring{{0, 0}, {4, 0}, {4, 4}, {0, 4}, {0, 0}}
	if !RingContains(ring, orb.Point{2, 2}) {
		t.Error("interior point reported outside")
	}
	if RingContains(ring, orb.Point{5, 2}) {
		t.Error("exterior point reported inside")
	}
}

func TestBBoxCenter(t *testing.T) {
	b := BBox{West: 10, South: 60, East: 11, North: 61}
	lng, lat := b.Center()
	if lng != 10.5 || lat != 60.5 {
		t.Errorf("center = (%v, %v), want (10.5, 60.5)", lng, lat)
	}
}
