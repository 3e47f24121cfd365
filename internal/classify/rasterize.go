package classify

import (
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/raster"
)

// ProjectFunc maps a WGS84 (lng, lat) coordinate into the CRS of the
// grid being rasterized onto.
type ProjectFunc func(lng, lat float64) (x, y float64, err error)

// PolygonMask burns the polygon features of a collection into a binary
// cell mask aligned with g. keep filters features; nil keeps all.
// Line features are ignored, holes punch through their outer ring.
func PolygonMask(g *raster.Grid, fc *geojson.FeatureCollection, project ProjectFunc, keep func(*geojson.Feature) bool) ([][]bool, error) {
	mask := newMask(g)
	if fc == nil {
		return mask, nil
	}
	for _, f := range fc.Features {
		if keep != nil && !keep(f) {
			continue
		}
		var polys []orb.Polygon
		switch geom := f.Geometry.(type) {
		case orb.Polygon:
			polys = []orb.Polygon{geom}
		case orb.MultiPolygon:
			polys = geom
		default:
			continue
		}
		for _, poly := range polys {
			rings, err := projectRings(poly, project)
			if err != nil {
				return nil, fmt.Errorf("project feature %v: %w", f.ID, err)
			}
			fillRings(mask, g, rings)
		}
	}
	return mask, nil
}

// LineMask burns buffered line corridors into a binary cell mask. Each
// line is widened to its width; lines narrower than a cell still mark
// the cells they cross.
func LineMask(g *raster.Grid, lines []BufferedLine) [][]bool {
	mask := newMask(g)
	for _, l := range lines {
		stampLine(mask, g, l.Line, l.WidthM)
	}
	return mask
}

// BufferedLine is a projected centerline with a corridor width.
type BufferedLine struct {
	Line   orb.LineString
	WidthM float64
}

// ProjectLine converts a WGS84 line into grid coordinates.
func ProjectLine(line orb.LineString, project ProjectFunc) (orb.LineString, error) {
	out := make(orb.LineString, 0, len(line))
	for _, p := range line {
		x, y, err := project(p[0], p[1])
		if err != nil {
			return nil, err
		}
		out = append(out, orb.Point{x, y})
	}
	return out, nil
}

func newMask(g *raster.Grid) [][]bool {
	mask := make([][]bool, g.Nrows)
	for r := range mask {
		mask[r] = make([]bool, g.Ncols)
	}
	return mask
}

func projectRings(poly orb.Polygon, project ProjectFunc) ([]orb.Ring, error) {
	rings := make([]orb.Ring, 0, len(poly))
	for _, ring := range poly {
		out := make(orb.Ring, 0, len(ring))
		for _, p := range ring {
			x, y, err := project(p[0], p[1])
			if err != nil {
				return nil, err
			}
			out = append(out, orb.Point{x, y})
		}
		rings = append(rings, out)
	}
	return rings, nil
}

// fillRings scanline-fills one polygon's rings with even-odd parity, so
// inner rings cut holes.
func fillRings(mask [][]bool, g *raster.Grid, rings []orb.Ring) {
	for r := uint(0); r < g.Nrows; r++ {
		y := g.Y(r)
		var crossings []float64
		for _, ring := range rings {
			n := len(ring)
			for i := 0; i < n; i++ {
				a, b := ring[i], ring[(i+1)%n]
				if (a[1] > y) == (b[1] > y) {
					continue
				}
				crossings = append(crossings, a[0]+(y-a[1])/(b[1]-a[1])*(b[0]-a[0]))
			}
		}
		sort.Float64s(crossings)
		for i := 0; i+1 < len(crossings); i += 2 {
			c0 := int(math.Ceil((crossings[i]-g.Xll)/g.CellSize - 0.5))
			c1 := int(math.Floor((crossings[i+1]-g.Xll)/g.CellSize - 0.5))
			if c0 < 0 {
				c0 = 0
			}
			if c1 >= int(g.Ncols) {
				c1 = int(g.Ncols) - 1
			}
			for c := c0; c <= c1; c++ {
				mask[r][c] = true
			}
		}
	}
}

func stampLine(mask [][]bool, g *raster.Grid, line orb.LineString, widthM float64) {
	radius := widthM / 2
	if radius < g.CellSize/2 {
		radius = g.CellSize / 2
	}
	step := g.CellSize / 2

	stamp := func(x, y float64) {
		cells := int(math.Ceil(radius / g.CellSize))
		c, okC := g.Col(x)
		r, okR := g.Row(y)
		if !okC || !okR {
			// outside the grid, but the disc may still clip the border
			c, r = clampIndex(g, x, y)
		}
		for dr := -cells; dr <= cells; dr++ {
			for dc := -cells; dc <= cells; dc++ {
				rr, cc := int(r)+dr, int(c)+dc
				if rr < 0 || cc < 0 || rr >= int(g.Nrows) || cc >= int(g.Ncols) {
					continue
				}
				if math.Hypot(g.X(uint(cc))-x, g.Y(uint(rr))-y) <= radius {
					mask[rr][cc] = true
				}
			}
		}
	}

	for i := 0; i+1 < len(line); i++ {
		a, b := line[i], line[i+1]
		segLen := math.Hypot(b[0]-a[0], b[1]-a[1])
		steps := int(segLen/step) + 1
		for s := 0; s <= steps; s++ {
			t := float64(s) / float64(steps)
			stamp(a[0]+t*(b[0]-a[0]), a[1]+t*(b[1]-a[1]))
		}
	}
}

func clampIndex(g *raster.Grid, x, y float64) (c, r uint) {
	fc := (x - g.Xll) / g.CellSize
	if fc < 0 {
		fc = 0
	}
	if fc > float64(g.Ncols)-1 {
		fc = float64(g.Ncols) - 1
	}
	fromBottom := (y - g.Yll) / g.CellSize
	if fromBottom < 0 {
		fromBottom = 0
	}
	if fromBottom > float64(g.Nrows)-1 {
		fromBottom = float64(g.Nrows) - 1
	}
	return uint(fc), g.Nrows - 1 - uint(fromBottom)
}

// Dilate grows a mask outward by the given number of cells, using
// 4-connected breadth-first rings.
func Dilate(mask [][]bool, cells int) [][]bool {
	nrows := len(mask)
	if nrows == 0 || cells <= 0 {
		out := make([][]bool, nrows)
		for r := range mask {
			out[r] = append([]bool(nil), mask[r]...)
		}
		return out
	}
	ncols := len(mask[0])

	out := make([][]bool, nrows)
	dist := make([][]int, nrows)
	type cell struct{ r, c int }
	var frontier []cell
	for r := range mask {
		out[r] = append([]bool(nil), mask[r]...)
		dist[r] = make([]int, ncols)
		for c := range dist[r] {
			dist[r][c] = -1
			if mask[r][c] {
				dist[r][c] = 0
				frontier = append(frontier, cell{r, c})
			}
		}
	}

	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		d := dist[cur.r][cur.c]
		if d >= cells {
			continue
		}
		for _, n := range [4]cell{{cur.r - 1, cur.c}, {cur.r + 1, cur.c}, {cur.r, cur.c - 1}, {cur.r, cur.c + 1}} {
			if n.r < 0 || n.c < 0 || n.r >= nrows || n.c >= ncols || dist[n.r][n.c] >= 0 {
				continue
			}
			dist[n.r][n.c] = d + 1
			out[n.r][n.c] = true
			frontier = append(frontier, n)
		}
	}
	return out
}
