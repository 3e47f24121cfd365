// Package refine turns a raw elevation mosaic into game-ready terrain:
// roads are flattened along their centerlines, water bodies become
// level surfaces, and a final smoothing pass removes sensor noise.
// The passes run in that order so the smoothing also softens the edges
// the first two introduce.
package refine

import (
	"math"

	"github.com/paulmach/orb"

	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/raster"
)

// RoadPath is one road centerline in the working CRS with its total
// corridor width.
type RoadPath struct {
	Line   orb.LineString
	WidthM float64
}

// ShoulderM widens every road corridor on both sides so embankments
// get graded, not clipped.
const ShoulderM = 2.0

// profileKnotM is the grade knot spacing along centerline elevation
// profiles. Stations between knots sit on a straight grade, so roads
// become constant-grade ramps long enough to kill per-cell noise.
const profileKnotM = 60.0

// FlattenRoads grades the terrain under each road: the centerline
// elevation profile is resampled into constant-grade ramps, the road
// surface is set to the graded profile, and the shoulder blends back
// into the surrounding terrain with linearly decaying weight. Roads
// never fight each other; where corridors overlap the strongest
// weight wins. A grid whose corridors already carry their graded
// profile comes back unchanged, so repeated flattening with the same
// road set is a no-op.
func FlattenRoads(g *raster.Grid, paths []RoadPath) *raster.Grid {
	out := g.Clone()
	if len(paths) == 0 {
		return out
	}

	// per-cell strongest stamp so crossing roads blend cleanly; on
	// equal weight the nearest station keeps the cell, which pins
	// every road surface cell to its own station
	st := stamps{
		weight: make([][]float64, g.Nrows),
		target: make([][]float64, g.Nrows),
		dist:   make([][]float64, g.Nrows),
	}
	for r := range st.weight {
		st.weight[r] = make([]float64, g.Ncols)
		st.target[r] = make([]float64, g.Ncols)
		st.dist[r] = make([]float64, g.Ncols)
		for c := range st.dist[r] {
			st.dist[r][c] = math.Inf(1)
		}
	}

	for _, p := range paths {
		stations := sampleStations(g, p.Line)
		if len(stations) == 0 {
			continue
		}
		gradeProfile(stations, int(profileKnotM/g.CellSize))

		core := p.WidthM / 2
		for _, s := range stations {
			stamp(g, st, s, core, core+ShoulderM)
		}
	}

	if corridorsMatch(g, st) {
		return out
	}

	for r := uint(0); r < g.Nrows; r++ {
		for c := uint(0); c < g.Ncols; c++ {
			w := st.weight[r][c]
			if w <= 0 || g.IsNoData(c, r) {
				continue
			}
			if w >= 1 {
				out.Data[r][c] = st.target[r][c]
			} else {
				out.Data[r][c] = g.Data[r][c]*(1-w) + st.target[r][c]*w
			}
		}
	}
	return out
}

// stamps is the per-cell composite of all road corridors.
type stamps struct {
	weight [][]float64
	target [][]float64
	dist   [][]float64
}

// corridorsMatch reports whether every full-weight corridor cell
// already holds its target elevation. The road surface is written
// exactly, so a grid produced by a previous flattening of the same
// road set matches and the whole pass backs off.
func corridorsMatch(g *raster.Grid, st stamps) bool {
	for r := uint(0); r < g.Nrows; r++ {
		for c := uint(0); c < g.Ncols; c++ {
			if st.weight[r][c] < 1 || g.IsNoData(c, r) {
				continue
			}
			if math.Abs(g.Data[r][c]-st.target[r][c]) > 1e-9 {
				return false
			}
		}
	}
	return true
}

type station struct {
	x, y, z float64
}

// sampleStations walks the centerline at cell-size steps and snaps
// each stop to its grid cell centre, one station per cell. Snapping
// makes the station list a pure function of the line geometry and the
// grid, so repeated passes over the same road see the same stations.
// Segments outside the grid and nodata cells contribute nothing.
func sampleStations(g *raster.Grid, line orb.LineString) []station {
	var stations []station
	step := g.CellSize
	lastCol, lastRow := -1, -1

	add := func(x, y float64) {
		col, okC := g.Col(x)
		row, okR := g.Row(y)
		if !okC || !okR {
			return
		}
		if int(col) == lastCol && int(row) == lastRow {
			return
		}
		if g.IsNoData(col, row) {
			return
		}
		stations = append(stations, station{g.X(col), g.Y(row), g.Z(col, row)})
		lastCol, lastRow = int(col), int(row)
	}

	for i := 0; i+1 < len(line); i++ {
		x0, y0 := line[i][0], line[i][1]
		x1, y1 := line[i+1][0], line[i+1][1]
		segLen := math.Hypot(x1-x0, y1-y0)
		if segLen == 0 {
			continue
		}
		n := int(segLen/step) + 1
		for j := 0; j < n; j++ {
			t := float64(j) / float64(n)
			add(x0+t*(x1-x0), y0+t*(y1-y0))
		}
	}
	// closing vertex
	if len(line) > 0 {
		add(line[len(line)-1][0], line[len(line)-1][1])
	}
	return stations
}

// gradeProfile resamples the station elevations piecewise linearly:
// every knotSpacing-th station keeps its sampled elevation, stations
// between knots sit on the straight grade connecting them. The
// resampling is a projection, so an already graded profile comes back
// unchanged.
func gradeProfile(stations []station, knotSpacing int) {
	if knotSpacing < 2 || len(stations) < 3 {
		return
	}
	last := len(stations) - 1
	for a := 0; a < last; a += knotSpacing {
		b := a + knotSpacing
		if b > last {
			b = last
		}
		za, zb := stations[a].z, stations[b].z
		for i := a + 1; i < b; i++ {
			f := float64(i-a) / float64(b-a)
			stations[i].z = za + (zb-za)*f
		}
	}
}

// stamp records the station's graded elevation into the cells of its
// corridor disc. Cells within coreRadius of the centerline carry full
// weight; the weight decays linearly to zero across the shoulder. The
// strongest weight per cell wins, and on equal weight the nearest
// station does.
func stamp(g *raster.Grid, st stamps, s station, coreRadius, radius float64) {
	rCells := int(radius/g.CellSize) + 1
	centerCol, okC := g.Col(s.x)
	centerRow, okR := g.Row(s.y)
	if !okC || !okR {
		return
	}

	for dr := -rCells; dr <= rCells; dr++ {
		for dc := -rCells; dc <= rCells; dc++ {
			col := int(centerCol) + dc
			row := int(centerRow) + dr
			if col < 0 || row < 0 || col >= int(g.Ncols) || row >= int(g.Nrows) {
				continue
			}
			d := math.Hypot(g.X(uint(col))-s.x, g.Y(uint(row))-s.y)
			if d > radius {
				continue
			}
			w := 1.0
			if d > coreRadius {
				w = 1 - (d-coreRadius)/(radius-coreRadius)
			}
			if w > st.weight[row][col] || (w == st.weight[row][col] && d < st.dist[row][col]) {
				st.weight[row][col] = w
				st.target[row][col] = s.z
				st.dist[row][col] = d
			}
		}
	}
}

// LevelWater flattens every connected water region to its minimum
// sampled elevation, the level water would actually settle at. A
// transition band outside the shoreline ramps the bank linearly onto
// the water level over transitionCells.
func LevelWater(g *raster.Grid, waterMask [][]bool, transitionCells int) *raster.Grid {
	out := g.Clone()
	if len(waterMask) == 0 {
		return out
	}

	visited := make([][]bool, g.Nrows)
	for r := range visited {
		visited[r] = make([]bool, g.Ncols)
	}
	levels := make([][]float64, g.Nrows)
	for r := range levels {
		levels[r] = make([]float64, g.Ncols)
		for c := range levels[r] {
			levels[r][c] = math.NaN()
		}
	}

	for r := uint(0); r < g.Nrows; r++ {
		for c := uint(0); c < g.Ncols; c++ {
			if !waterMask[r][c] || visited[r][c] {
				continue
			}
			region := floodFill(waterMask, visited, c, r)
			level := math.Inf(1)
			for _, cell := range region {
				v := g.Data[cell[1]][cell[0]]
				if v != g.NoData && v < level {
					level = v
				}
			}
			if math.IsInf(level, 1) {
				continue
			}
			for _, cell := range region {
				out.Data[cell[1]][cell[0]] = level
				levels[cell[1]][cell[0]] = level
			}
		}
	}

	if transitionCells > 0 {
		blendShoreline(g, out, waterMask, levels, transitionCells)
	}
	return out
}

// floodFill collects the 4-connected region containing (c, r).
func floodFill(mask [][]bool, visited [][]bool, c, r uint) [][2]uint {
	ncols := uint(len(mask[0]))
	nrows := uint(len(mask))
	var region [][2]uint
	queue := [][2]uint{{c, r}}
	visited[r][c] = true

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		region = append(region, cur)

		cc, cr := cur[0], cur[1]
		for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			nc, nr := int(cc)+d[0], int(cr)+d[1]
			if nc < 0 || nr < 0 || nc >= int(ncols) || nr >= int(nrows) {
				continue
			}
			if mask[nr][nc] && !visited[nr][nc] {
				visited[nr][nc] = true
				queue = append(queue, [2]uint{uint(nc), uint(nr)})
			}
		}
	}
	return region
}

// blendShoreline ramps bank cells toward the nearest water level with
// linearly decaying weight per ring of distance from the shoreline.
func blendShoreline(orig, out *raster.Grid, waterMask [][]bool, levels [][]float64, transitionCells int) {
	type bankCell struct {
		c, r  uint
		level float64
		dist  int
	}

	// ring 1: land cells touching water
	var frontier []bankCell
	seen := make([][]bool, orig.Nrows)
	for r := range seen {
		seen[r] = make([]bool, orig.Ncols)
	}
	for r := uint(0); r < orig.Nrows; r++ {
		for c := uint(0); c < orig.Ncols; c++ {
			if waterMask[r][c] {
				continue
			}
			for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
				nc, nr := int(c)+d[0], int(r)+d[1]
				if nc < 0 || nr < 0 || nc >= int(orig.Ncols) || nr >= int(orig.Nrows) {
					continue
				}
				if waterMask[nr][nc] && !math.IsNaN(levels[nr][nc]) {
					frontier = append(frontier, bankCell{c, r, levels[nr][nc], 1})
					seen[r][c] = true
					break
				}
			}
		}
	}

	for len(frontier) > 0 {
		var next []bankCell
		for _, b := range frontier {
			if b.dist > transitionCells {
				continue
			}
			w := 1 - float64(b.dist)/float64(transitionCells+1)
			v := orig.Data[b.r][b.c]
			if v != orig.NoData {
				out.Data[b.r][b.c] = v*(1-w) + b.level*w
			}
			for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
				nc, nr := int(b.c)+d[0], int(b.r)+d[1]
				if nc < 0 || nr < 0 || nc >= int(orig.Ncols) || nr >= int(orig.Nrows) {
					continue
				}
				if !waterMask[nr][nc] && !seen[nr][nc] {
					seen[nr][nc] = true
					next = append(next, bankCell{uint(nc), uint(nr), b.level, b.dist + 1})
				}
			}
		}
		frontier = next
	}
}

// Smooth applies the final Gaussian pass.
func Smooth(g *raster.Grid, sigma float64) *raster.Grid {
	return raster.GaussianSmooth(g, sigma)
}
