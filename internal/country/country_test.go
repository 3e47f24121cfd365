package country

import (
	"math"
	"testing"

	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/geo"
)

func mustAOI(t *testing.T, lng, lat, halfDeg float64) *geo.AreaOfInterest {
	t.Helper()
	aoi, err := geo.NewAreaOfInterest([][2]float64{
		{lng - halfDeg, lat - halfDeg},
		{lng + halfDeg, lat - halfDeg},
		{lng + halfDeg, lat + halfDeg},
		{lng - halfDeg, lat + halfDeg},
		{lng - halfDeg, lat - halfDeg},
	}, 0)
	if err != nil {
		t.Fatalf("build aoi: %v", err)
	}
	return aoi
}

func TestDetectSingleCountry(t *testing.T) {
	// Trondheim, well inside Norway
	d := Detect(mustAOI(t, 10.4, 63.4, 0.05))
	if d.Primary != "NO" {
		t.Errorf("primary = %q, want NO", d.Primary)
	}
}

func TestDetectBorderRegion(t *testing.T) {
	// Tornio river valley on the Sweden/Finland border
	d := Detect(mustAOI(t, 23.9, 65.9, 0.3))
	found := map[string]bool{}
	for _, c := range d.Codes {
		found[c] = true
	}
	if !found["SE"] || !found["FI"] {
		t.Errorf("codes = %v, want both SE and FI", d.Codes)
	}
	if d.Primary != "SE" && d.Primary != "FI" {
		t.Errorf("primary = %q, want SE or FI", d.Primary)
	}
}

func TestDetectOutsideSupportedRegion(t *testing.T) {
	// Mid-Atlantic
	d := Detect(mustAOI(t, -35, 40, 0.1))
	if d.Primary != "" || len(d.Codes) != 0 {
		t.Errorf("expected empty detection, got %+v", d)
	}
}

func TestTreelineInterpolation(t *testing.T) {
	cases := []struct {
		code string
		lat  float64
		want float64
	}{
		{"NO", 58.0, 1200}, // southern edge
		{"NO", 71.0, 800},  // northern edge
		{"NO", 64.5, 1000}, // midpoint
		{"NO", 50.0, 1200}, // clamped south
		{"FI", 65.0, 550},
		{"DK", 56.0, 9999},
		{"PL", 50.0, 1400},
		{"XX", 50.0, 1200}, // unknown code default
	}
	for _, tc := range cases {
		got := TreelineElevation(tc.code, tc.lat)
		if math.Abs(got-tc.want) > 0.5 {
			t.Errorf("TreelineElevation(%s, lat %.1f) = %.0f, want %.0f", tc.code, tc.lat, got, tc.want)
		}
	}
}

func TestLookup(t *testing.T) {
	info, ok := Lookup("FI")
	if !ok {
		t.Fatal("FI not found")
	}
	if info.CRS != "epsg:3067" {
		t.Errorf("FI CRS = %q, want epsg:3067", info.CRS)
	}
	if _, ok := Lookup("ZZ"); ok {
		t.Error("unexpected match for ZZ")
	}
}
