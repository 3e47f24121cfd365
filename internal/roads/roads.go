// Package roads classifies OSM road features into surface material,
// width and engine prefab.
package roads

import (
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// Surface is the road surface material.
type Surface string

const (
	SurfaceAsphalt Surface = "asphalt"
	SurfaceGravel  Surface = "gravel"
	SurfaceDirt    Surface = "dirt"
)

// Road is one classified road segment.
type Road struct {
	OSMID   int64
	Name    string
	Highway string
	Surface Surface
	WidthM  float64
	Prefab  string
	Line    orb.LineString
}

// typeDefaults holds the per-highway-type width, surface and prefab.
type typeDefaults struct {
	width   float64
	surface Surface
	prefab  string
}

var osmRoadTags = map[string]typeDefaults{
	"motorway":       {14, SurfaceAsphalt, "RG_Road_Asphalt_14m"},
	"motorway_link":  {8, SurfaceAsphalt, "RG_Road_Asphalt_8m"},
	"trunk":          {10, SurfaceAsphalt, "RG_Road_Asphalt_10m"},
	"trunk_link":     {7, SurfaceAsphalt, "RG_Road_Asphalt_8m"},
	"primary":        {8, SurfaceAsphalt, "RG_Road_Asphalt_8m"},
	"primary_link":   {6, SurfaceAsphalt, "RG_Road_Asphalt_6m"},
	"secondary":      {7, SurfaceAsphalt, "RG_Road_Asphalt_7m"},
	"secondary_link": {5, SurfaceAsphalt, "RG_Road_Asphalt_5m"},
	"tertiary":       {6, SurfaceAsphalt, "RG_Road_Asphalt_6m"},
	"tertiary_link":  {5, SurfaceAsphalt, "RG_Road_Asphalt_5m"},
	"residential":    {5, SurfaceAsphalt, "RG_Road_Asphalt_5m"},
	"unclassified":   {4, SurfaceAsphalt, "RG_Road_Asphalt_4m"},
	"service":        {3.5, SurfaceAsphalt, "RG_Road_Asphalt_4m"},
	"track":          {3, SurfaceGravel, "RG_Road_Gravel_4m"},
	"living_street":  {4, SurfaceAsphalt, "RG_Road_Asphalt_4m"},
	"path":           {1.5, SurfaceDirt, "RG_Road_Dirt_2m"},
	"footway":        {1.5, SurfaceDirt, "RG_Road_Dirt_2m"},
	"cycleway":       {2, SurfaceAsphalt, "RG_Road_Asphalt_2m"},
	"bridleway":      {2, SurfaceDirt, "RG_Road_Dirt_2m"},
}

// countryRules captures national conventions for unpaved roads.
type countryRules struct {
	trackSurface      Surface
	residentialRural  Surface
	forestRoadSurface Surface
}

var defaultRules = countryRules{SurfaceGravel, SurfaceAsphalt, SurfaceGravel}

var roadRulesByCountry = map[string]countryRules{
	"NO": {SurfaceGravel, SurfaceGravel, SurfaceGravel},
	"SE": {SurfaceGravel, SurfaceAsphalt, SurfaceGravel},
	"FI": {SurfaceGravel, SurfaceGravel, SurfaceGravel},
	"DK": {SurfaceGravel, SurfaceAsphalt, SurfaceGravel},
	"EE": {SurfaceGravel, SurfaceGravel, SurfaceDirt},
	"LV": {SurfaceGravel, SurfaceGravel, SurfaceDirt},
	"LT": {SurfaceGravel, SurfaceAsphalt, SurfaceGravel},
}

// explicit OSM surface tags normalized to our three materials
var surfaceTagMap = map[string]Surface{
	"asphalt": SurfaceAsphalt, "paved": SurfaceAsphalt, "concrete": SurfaceAsphalt,
	"concrete:plates": SurfaceAsphalt, "concrete:lanes": SurfaceAsphalt,
	"sett": SurfaceAsphalt, "cobblestone": SurfaceAsphalt, "paving_stones": SurfaceAsphalt,
	"gravel": SurfaceGravel, "fine_gravel": SurfaceGravel, "compacted": SurfaceGravel,
	"unpaved": SurfaceGravel,
	"dirt":    SurfaceDirt, "earth": SurfaceDirt, "ground": SurfaceDirt,
	"mud": SurfaceDirt, "sand": SurfaceDirt, "grass": SurfaceDirt,
}

// InferSurface resolves the surface material for a road. An explicit
// OSM surface tag wins; otherwise national conventions decide how
// minor roads are built.
func InferSurface(highway, osmSurface, countryCode string, inForest, inUrban bool) Surface {
	if osmSurface != "" {
		if s, ok := surfaceTagMap[osmSurface]; ok {
			return s
		}
		return SurfaceGravel
	}

	rules, ok := roadRulesByCountry[countryCode]
	if !ok {
		rules = defaultRules
	}

	switch highway {
	case "motorway", "motorway_link", "trunk", "trunk_link",
		"primary", "primary_link", "secondary", "secondary_link",
		"tertiary", "tertiary_link":
		return SurfaceAsphalt
	case "residential":
		if inUrban {
			return SurfaceAsphalt
		}
		return rules.residentialRural
	case "unclassified", "service":
		if inUrban {
			return SurfaceAsphalt
		}
		return SurfaceGravel
	case "track":
		if inForest {
			return rules.forestRoadSurface
		}
		return rules.trackSurface
	case "path", "footway", "bridleway":
		return SurfaceDirt
	case "cycleway":
		if inUrban {
			return SurfaceAsphalt
		}
		return SurfaceGravel
	}
	return SurfaceGravel
}

// InferWidth resolves the road width in metres: explicit width tag,
// then lane count, then the per-type default.
func InferWidth(highway, osmWidth, osmLanes string, surface Surface) float64 {
	if osmWidth != "" {
		w := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(osmWidth), "m"))
		if f, err := strconv.ParseFloat(w, 64); err == nil && f > 0 {
			return f
		}
	}
	if osmLanes != "" {
		if lanes, err := strconv.Atoi(strings.TrimSpace(osmLanes)); err == nil && lanes > 0 {
			laneWidth := 2.5
			if surface == SurfaceAsphalt {
				laneWidth = 3.5
			}
			return float64(lanes) * laneWidth
		}
	}
	if d, ok := osmRoadTags[highway]; ok {
		return d.width
	}
	return 4.0
}

// Prefab picks the engine road prefab for a type, falling back to a
// name derived from the inferred surface and width.
func Prefab(highway string, surface Surface, widthM float64) string {
	if d, ok := osmRoadTags[highway]; ok && d.surface == surface {
		return d.prefab
	}
	caser := strings.ToUpper(string(surface)[:1]) + string(surface)[1:]
	return "RG_Road_" + caser + "_" + strconv.Itoa(int(widthM)) + "m"
}

// Env locates roads in their surroundings: forest polygons and urban
// land use decide how untagged minor roads are surfaced. The zero Env
// treats every road as rural open ground.
type Env struct {
	forests []orb.Polygon
	urban   []orb.Polygon
}

// urban landuse values, matching what the surface classifier treats
// as built-up ground
var urbanLanduse = map[string]bool{
	"residential": true, "industrial": true, "commercial": true, "retail": true,
}

// NewEnv collects the polygon context from the fetched forest and
// land-use features.
func NewEnv(forests, landuse *geojson.FeatureCollection) Env {
	var e Env
	e.forests = collectPolygons(forests, nil)
	e.urban = collectPolygons(landuse, func(f *geojson.Feature) bool {
		return urbanLanduse[stringProp(f, "landuse")]
	})
	return e
}

func collectPolygons(fc *geojson.FeatureCollection, keep func(*geojson.Feature) bool) []orb.Polygon {
	if fc == nil {
		return nil
	}
	var polys []orb.Polygon
	for _, f := range fc.Features {
		if keep != nil && !keep(f) {
			continue
		}
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			polys = append(polys, g)
		case orb.MultiPolygon:
			polys = append(polys, g...)
		}
	}
	return polys
}

func (e Env) inForest(p orb.Point) bool { return containsAny(e.forests, p) }
func (e Env) inUrban(p orb.Point) bool  { return containsAny(e.urban, p) }

func containsAny(polys []orb.Polygon, p orb.Point) bool {
	for _, poly := range polys {
		if planar.PolygonContains(poly, p) {
			return true
		}
	}
	return false
}

// midpoint picks the representative point of a road: the middle
// vertex of its centerline.
func midpoint(line orb.LineString) orb.Point {
	return line[len(line)/2]
}

// Classify processes a road feature collection into classified
// segments. Features without LineString geometry are skipped; each
// road's surface is resolved with the forest and urban context at its
// midpoint.
func Classify(fc *geojson.FeatureCollection, countryCode string, env Env) []Road {
	var out []Road
	for _, f := range fc.Features {
		line, ok := f.Geometry.(orb.LineString)
		if !ok {
			continue
		}
		highway := stringProp(f, "highway")
		if highway == "" {
			continue
		}
		mid := midpoint(line)
		surface := InferSurface(highway, stringProp(f, "surface"), countryCode,
			env.inForest(mid), env.inUrban(mid))
		width := InferWidth(highway, stringProp(f, "width"), stringProp(f, "lanes"), surface)

		out = append(out, Road{
			OSMID:   int64Prop(f, "osm_id"),
			Name:    stringProp(f, "name"),
			Highway: highway,
			Surface: surface,
			WidthM:  width,
			Prefab:  Prefab(highway, surface, width),
			Line:    line,
		})
	}
	return out
}

func stringProp(f *geojson.Feature, key string) string {
	if v, ok := f.Properties[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func int64Prop(f *geojson.Feature, key string) int64 {
	switch v := f.Properties[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}
