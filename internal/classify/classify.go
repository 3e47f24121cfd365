// Package classify derives the surface masks from the refined elevation
// grid, its slope, and the fetched vector features. Each mask is an
// independent weight raster on the exact grid geometry of the heightmap;
// the export stage composites them by priority.
package classify

import (
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/country"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/features"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/raster"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/roads"
)

// Mask names one of the five surface weight rasters.
type Mask string

const (
	MaskGrass    Mask = "grass"
	MaskForest   Mask = "forest_floor"
	MaskRock     Mask = "rock"
	MaskAsphalt  Mask = "asphalt"
	MaskSandDirt Mask = "sand_dirt"
)

// Masks lists the surface rasters in export order.
var Masks = []Mask{MaskGrass, MaskForest, MaskRock, MaskAsphalt, MaskSandDirt}

// Params holds the classification thresholds.
type Params struct {
	// SlopeRockStartDeg and SlopeRockFullDeg bound the slope ramp:
	// below start no rock, above full pure rock.
	SlopeRockStartDeg float64
	SlopeRockFullDeg  float64
	// TreelineRampM is the elevation band above the treeline over
	// which rock weight ramps from 0 to 1.
	TreelineRampM float64
	// ShorelineM is the width of the sand band around water.
	ShorelineM float64
	// UrbanWeight scales built-up land-use polygons in the asphalt
	// mask; road corridors and buildings stay at full weight.
	UrbanWeight float64
	// EdgeSigmaCells softens mask edges with a Gaussian blur measured
	// in cells. Zero disables the blur.
	EdgeSigmaCells float64
}

// DefaultParams mirrors the thresholds the terrain export was tuned
// with.
func DefaultParams() Params {
	return Params{
		SlopeRockStartDeg: 30,
		SlopeRockFullDeg:  45,
		TreelineRampM:     200,
		ShorelineM:        8,
		UrbanWeight:       0.4,
		EdgeSigmaCells:    1,
	}
}

// Input carries everything the classifier reads.
type Input struct {
	Elevation *raster.Grid
	Features  *features.Set
	Roads     []roads.Road
	// CountryCode and CenterLat select the treeline elevation. The
	// grid spans at most tens of kilometres, so one latitude serves
	// the whole raster.
	CountryCode string
	CenterLat   float64
	Project     ProjectFunc
	Params      Params
}

// Result holds the five masks as 8-bit weight rasters plus the water
// cell mask, which the refiner shares for leveling.
type Result struct {
	Weights map[Mask][][]uint8
	Water   [][]bool
}

// Generate computes the five surface masks. Missing feature categories
// simply contribute nothing; the affected cells stay grass.
func Generate(in Input) (*Result, error) {
	g := in.Elevation
	p := in.Params
	if p.SlopeRockFullDeg <= p.SlopeRockStartDeg {
		p = DefaultParams()
	}
	set := in.Features
	if set == nil {
		set = &features.Set{}
	}

	slope := raster.SlopeDegrees(g)
	treeline := country.TreelineElevation(in.CountryCode, in.CenterLat)

	rock := make([][]float64, g.Nrows)
	for r := uint(0); r < g.Nrows; r++ {
		row := make([]float64, g.Ncols)
		for c := uint(0); c < g.Ncols; c++ {
			if g.IsNoData(c, r) {
				continue
			}
			w := ramp(slope[r][c], p.SlopeRockStartDeg, p.SlopeRockFullDeg)
			if alt := ramp(g.Z(c, r), treeline, treeline+p.TreelineRampM); alt > w {
				w = alt
			}
			row[c] = w
		}
		rock[r] = row
	}

	water, err := PolygonMask(g, set.Features(features.CategoryWater), in.Project, nil)
	if err != nil {
		return nil, err
	}
	forestCells, err := PolygonMask(g, set.Features(features.CategoryForests), in.Project, nil)
	if err != nil {
		return nil, err
	}
	buildings, err := PolygonMask(g, set.Features(features.CategoryBuildings), in.Project, nil)
	if err != nil {
		return nil, err
	}
	urban, err := PolygonMask(g, set.Features(features.CategoryLandUse), in.Project, urbanLanduse)
	if err != nil {
		return nil, err
	}
	bare, err := PolygonMask(g, set.Features(features.CategoryLandUse), in.Project, bareLanduse)
	if err != nil {
		return nil, err
	}

	paved, unpaved, err := roadCorridors(g, in.Roads, in.Project)
	if err != nil {
		return nil, err
	}

	shoreCells := int(p.ShorelineM/g.CellSize + 0.5)
	shore := Dilate(water, shoreCells)

	forest := make([][]float64, g.Nrows)
	asphalt := make([][]float64, g.Nrows)
	sand := make([][]float64, g.Nrows)
	for r := uint(0); r < g.Nrows; r++ {
		forest[r] = make([]float64, g.Ncols)
		asphalt[r] = make([]float64, g.Ncols)
		sand[r] = make([]float64, g.Ncols)
		for c := uint(0); c < g.Ncols; c++ {
			if forestCells[r][c] {
				forest[r][c] = 1 - rock[r][c]
			}
			switch {
			case paved[r][c] || buildings[r][c]:
				asphalt[r][c] = 1
			case urban[r][c]:
				asphalt[r][c] = p.UrbanWeight
			}
			switch {
			case unpaved[r][c]:
				sand[r][c] = 1
			case shore[r][c] || bare[r][c]:
				sand[r][c] = 0.7
			}
		}
	}

	if p.EdgeSigmaCells > 0 {
		forest = raster.SmoothField(forest, p.EdgeSigmaCells)
		asphalt = raster.SmoothField(asphalt, p.EdgeSigmaCells)
		sand = raster.SmoothField(sand, p.EdgeSigmaCells)
	}

	grass := make([][]float64, g.Nrows)
	for r := uint(0); r < g.Nrows; r++ {
		grass[r] = make([]float64, g.Ncols)
		for c := uint(0); c < g.Ncols; c++ {
			claimed := rock[r][c]
			for _, w := range [3]float64{forest[r][c], asphalt[r][c], sand[r][c]} {
				if w > claimed {
					claimed = w
				}
			}
			grass[r][c] = 1 - clamp01(claimed)
		}
	}

	return &Result{
		Weights: map[Mask][][]uint8{
			MaskGrass:    quantize(grass),
			MaskForest:   quantize(forest),
			MaskRock:     quantize(rock),
			MaskAsphalt:  quantize(asphalt),
			MaskSandDirt: quantize(sand),
		},
		Water: water,
	}, nil
}

// roadCorridors splits the classified roads into paved and unpaved
// corridor masks.
func roadCorridors(g *raster.Grid, rds []roads.Road, project ProjectFunc) (paved, unpaved [][]bool, err error) {
	var pavedLines, unpavedLines []BufferedLine
	for _, rd := range rds {
		line, err := ProjectLine(rd.Line, project)
		if err != nil {
			return nil, nil, err
		}
		bl := BufferedLine{Line: line, WidthM: rd.WidthM}
		if rd.Surface == roads.SurfaceAsphalt {
			pavedLines = append(pavedLines, bl)
		} else {
			unpavedLines = append(unpavedLines, bl)
		}
	}
	return LineMask(g, pavedLines), LineMask(g, unpavedLines), nil
}

func urbanLanduse(f *geojson.Feature) bool {
	switch prop(f, "landuse") {
	case "residential", "industrial", "commercial", "retail":
		return true
	}
	return false
}

func bareLanduse(f *geojson.Feature) bool {
	switch prop(f, "landuse") {
	case "farmland", "farmyard", "quarry", "allotments":
		return true
	}
	switch prop(f, "natural") {
	case "beach", "sand", "scree", "bare_rock":
		return true
	}
	return false
}

func prop(f *geojson.Feature, key string) string {
	if v, ok := f.Properties[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func ramp(v, lo, hi float64) float64 {
	if hi <= lo {
		if v >= hi {
			return 1
		}
		return 0
	}
	return clamp01((v - lo) / (hi - lo))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func quantize(field [][]float64) [][]uint8 {
	out := make([][]uint8, len(field))
	for r, row := range field {
		bytes := make([]uint8, len(row))
		for c, v := range row {
			bytes[c] = uint8(clamp01(v)*255 + 0.5)
		}
		out[r] = bytes
	}
	return out
}
