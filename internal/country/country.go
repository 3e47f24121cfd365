// Package country maps areas of interest to countries and carries
// per-country geographic metadata.
package country

import (
	"sort"

	"github.com/paulmach/orb"

	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/geo"
)

// Info describes one supported country.
type Info struct {
	Code   string // ISO 3166-1 alpha-2
	Name   string
	Bounds geo.BBox // approximate WGS84 bounding box
	CRS    string   // recommended projected CRS, e.g. "epsg:3006"
}

// bounds are approximate and intentionally generous; they gate which
// elevation sources get tried, nothing more.
var countries = map[string]Info{
	"SE": {Code: "SE", Name: "Sweden", Bounds: geo.BBox{West: 10.96, South: 55.34, East: 24.17, North: 69.06}, CRS: "epsg:3006"},
	"NO": {Code: "NO", Name: "Norway", Bounds: geo.BBox{West: 4.64, South: 57.97, East: 31.17, North: 71.19}, CRS: "epsg:25833"},
	"DK": {Code: "DK", Name: "Denmark", Bounds: geo.BBox{West: 8.07, South: 54.56, East: 15.20, North: 57.75}, CRS: "epsg:25832"},
	"FI": {Code: "FI", Name: "Finland", Bounds: geo.BBox{West: 20.55, South: 59.81, East: 31.59, North: 70.09}, CRS: "epsg:3067"},
	"EE": {Code: "EE", Name: "Estonia", Bounds: geo.BBox{West: 21.76, South: 57.52, East: 28.21, North: 59.68}, CRS: "epsg:3301"},
	"LV": {Code: "LV", Name: "Latvia", Bounds: geo.BBox{West: 20.97, South: 55.67, East: 28.24, North: 58.09}, CRS: "epsg:3059"},
	"LT": {Code: "LT", Name: "Lithuania", Bounds: geo.BBox{West: 20.93, South: 53.90, East: 26.84, North: 56.45}, CRS: "epsg:4258"},
	"DE": {Code: "DE", Name: "Germany", Bounds: geo.BBox{West: 5.90, South: 47.30, East: 15.00, North: 55.10}, CRS: "epsg:25832"},
	"PL": {Code: "PL", Name: "Poland", Bounds: geo.BBox{West: 14.10, South: 49.00, East: 24.20, North: 54.80}, CRS: "epsg:2180"},
	"GB": {Code: "GB", Name: "United Kingdom", Bounds: geo.BBox{West: -8.20, South: 49.90, East: 1.80, North: 60.90}, CRS: "epsg:27700"},
	"FR": {Code: "FR", Name: "France", Bounds: geo.BBox{West: -5.10, South: 42.30, East: 8.20, North: 51.10}, CRS: "epsg:2154"},
	"ES": {Code: "ES", Name: "Spain", Bounds: geo.BBox{West: -9.30, South: 36.00, East: 3.30, North: 43.80}, CRS: "epsg:25830"},
	"IT": {Code: "IT", Name: "Italy", Bounds: geo.BBox{West: 6.60, South: 36.60, East: 18.50, North: 47.10}, CRS: "epsg:32632"},
	"AT": {Code: "AT", Name: "Austria", Bounds: geo.BBox{West: 9.50, South: 46.40, East: 17.20, North: 49.00}, CRS: "epsg:31287"},
	"CH": {Code: "CH", Name: "Switzerland", Bounds: geo.BBox{West: 5.90, South: 45.80, East: 10.50, North: 47.80}, CRS: "epsg:2056"},
	"CZ": {Code: "CZ", Name: "Czech Republic", Bounds: geo.BBox{West: 12.10, South: 48.50, East: 18.90, North: 51.10}},
	"NL": {Code: "NL", Name: "Netherlands", Bounds: geo.BBox{West: 3.40, South: 50.80, East: 7.20, North: 53.50}},
	"BE": {Code: "BE", Name: "Belgium", Bounds: geo.BBox{West: 2.50, South: 49.50, East: 6.40, North: 51.50}},
	"IE": {Code: "IE", Name: "Ireland", Bounds: geo.BBox{West: -10.50, South: 51.40, East: -6.00, North: 55.40}},
	"IS": {Code: "IS", Name: "Iceland", Bounds: geo.BBox{West: -24.50, South: 63.30, East: -13.50, North: 66.50}},
	"PT": {Code: "PT", Name: "Portugal", Bounds: geo.BBox{West: -9.50, South: 37.00, East: -6.20, North: 42.20}},
}

// Lookup returns the Info for code and whether it is known.
func Lookup(code string) (Info, bool) {
	info, ok := countries[code]
	return info, ok
}

// Detection is the result of matching an area of interest against the
// country table. Primary is the country with the largest bbox overlap
// area; Codes lists every overlapping country, sorted.
type Detection struct {
	Primary string
	Codes   []string
}

// Detect intersects the area's bounding box with every known country
// bounds. An empty Primary means the area is outside the supported
// region and only global elevation sources apply.
func Detect(aoi *geo.AreaOfInterest) Detection {
	b := aoi.BBox()
	var codes []string
	var primary string
	var best float64

	for code, info := range countries {
		overlap := overlapArea(b, info.Bounds)
		if overlap <= 0 {
			continue
		}
		codes = append(codes, code)
		if overlap > best || (overlap == best && (primary == "" || code < primary)) {
			best = overlap
			primary = code
		}
	}
	sort.Strings(codes)
	return Detection{Primary: primary, Codes: codes}
}

func overlapArea(a, b geo.BBox) float64 {
	w := min(a.East, b.East) - max(a.West, b.West)
	h := min(a.North, b.North) - max(a.South, b.South)
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// treeline ranges: metres at the southern edge of the country down to
// metres at the northern edge, interpolated by centre latitude.
type treelineRange struct {
	minLat, maxLat float64
	south, north   float64
}

var treelineRanges = map[string]treelineRange{
	"NO": {58.0, 71.0, 1200, 800},
	"SE": {55.5, 69.0, 1100, 800},
	"FI": {60.0, 70.0, 700, 400},
}

// flat countries where no terrain reaches a treeline get a sentinel
// high enough that the rock mask never triggers on elevation alone
var treelineFlat = map[string]float64{
	"NO": 1100, "SE": 1000, "FI": 600,
	"DK": 9999, "EE": 9999, "LV": 9999, "LT": 9999,
	"PL": 1400,
}

// TreelineElevation returns the treeline height in metres for a country
// at the given latitude. Nordic countries interpolate linearly between a
// southern and a northern value; others use a fixed table, defaulting to
// 1200 m for unknown codes.
func TreelineElevation(code string, lat float64) float64 {
	if r, ok := treelineRanges[code]; ok {
		t := (lat - r.minLat) / (r.maxLat - r.minLat)
		if t < 0 {
			t = 0
		}
		if t > 1 {
			t = 1
		}
		return r.south + t*(r.north-r.south)
	}
	if v, ok := treelineFlat[code]; ok {
		return v
	}
	return 1200
}

// ContainsPoint reports whether a WGS84 point falls inside a country's
// approximate bounds.
func ContainsPoint(code string, p orb.Point) bool {
	info, ok := countries[code]
	if !ok {
		return false
	}
	b := info.Bounds
	return p[0] >= b.West && p[0] <= b.East && p[1] >= b.South && p[1] <= b.North
}
