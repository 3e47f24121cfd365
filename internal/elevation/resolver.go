// Package elevation resolves an area of interest into one clean
// elevation grid by walking the source fallback chain: national
// services first, global datasets last.
package elevation

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/config"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/country"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/fetch"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/geo"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/logging"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/raster"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/sources"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/tiling"
)

// fallbackCRS is used when the area matches no supported country.
const fallbackCRS = "epsg:3857"

// Attempt records the outcome of one source in the chain.
type Attempt struct {
	SourceID string `json:"source_id"`
	Skipped  bool   `json:"skipped,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Result is the resolved elevation grid plus provenance.
type Result struct {
	Grid       *raster.Grid
	Source     sources.Source
	WorkingCRS string
	Attempts   []Attempt
}

// Resolver walks the source chain for an area of interest.
type Resolver struct {
	Client  *fetch.Client
	Planner *tiling.Planner
	Cfg     *config.Config
	Log     logging.Logger

	// Chain builds the source fallback chain; tests swap it to point
	// sources at local servers.
	Chain func(primary string, codes []string, centerLat float64) []sources.Source
}

// NewResolver wires a resolver from process configuration.
func NewResolver(cfg *config.Config, client *fetch.Client, log logging.Logger) *Resolver {
	if log == nil {
		log = logging.Noop()
	}
	return &Resolver{
		Client:  client,
		Planner: &tiling.Planner{OverlapM: cfg.TileOverlapM},
		Cfg:     cfg,
		Log:     log,
		Chain:   sources.Chain,
	}
}

// Resolve tries every source in the chain until one delivers a
// gap-free grid covering the area. A source failing on any tile is
// abandoned whole; partial mosaics never leak downstream.
func (r *Resolver) Resolve(ctx context.Context, aoi *geo.AreaOfInterest, det country.Detection) (*Result, error) {
	workingCRS := fallbackCRS
	if info, ok := country.Lookup(det.Primary); ok && info.CRS != "" {
		workingCRS = info.CRS
	}
	workingTf, err := geo.NewTransformer(workingCRS, false)
	if err != nil {
		return nil, err
	}
	minX, minY, maxX, maxY, err := workingTf.ForwardBBox(aoi.BBox())
	if err != nil {
		return nil, err
	}

	_, centerLat := aoi.BBox().Center()
	chainFn := r.Chain
	if chainFn == nil {
		chainFn = sources.Chain
	}
	chain := chainFn(det.Primary, det.Codes, centerLat)
	if len(chain) == 0 {
		return nil, errors.New("no elevation sources apply to this area")
	}

	result := &Result{WorkingCRS: workingCRS}
	for _, src := range chain {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !src.HasCredentials(r.Cfg.Credentials) {
			r.Log.Info(ctx, "skipping source, credentials not configured",
				logging.String("source", src.ID))
			result.Attempts = append(result.Attempts, Attempt{SourceID: src.ID, Skipped: true})
			continue
		}

		grid, err := r.resolveSource(ctx, src, workingTf, minX, minY, maxX, maxY)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.Log.Warn(ctx, "source failed, falling back",
				logging.String("source", src.ID),
				logging.Err(err))
			result.Attempts = append(result.Attempts, Attempt{SourceID: src.ID, Error: err.Error()})
			continue
		}

		r.Log.Info(ctx, "elevation resolved",
			logging.String("source", src.ID),
			logging.Int("cols", int(grid.Ncols)),
			logging.Int("rows", int(grid.Nrows)))
		result.Grid = grid
		result.Source = src
		return result, nil
	}

	return nil, fmt.Errorf("every elevation source failed for this area: %s", summarize(result.Attempts))
}

func summarize(attempts []Attempt) string {
	s := ""
	for i, a := range attempts {
		if i > 0 {
			s += "; "
		}
		switch {
		case a.Skipped:
			s += a.SourceID + " skipped (missing credentials)"
		default:
			s += a.SourceID + ": " + a.Error
		}
	}
	return s
}

func (r *Resolver) resolveSource(ctx context.Context, src sources.Source, workingTf *geo.Transformer, minX, minY, maxX, maxY float64) (*raster.Grid, error) {
	switch src.Kind {
	case sources.KindSTAC:
		return r.resolveSTAC(ctx, src, workingTf, minX, minY, maxX, maxY)
	case sources.KindOpenTopo:
		return r.resolveGlobal(ctx, src, workingTf, minX, minY, maxX, maxY)
	default:
		return r.resolveWCS(ctx, src, workingTf, minX, minY, maxX, maxY)
	}
}

// fetchBBox is the WGS84 footprint the source must cover: the working
// envelope inverted edge by edge, widened by one source cell so edge
// samples stay interior. The drawn area's bbox is NOT enough; grid
// convergence bends the envelope's corners past it.
func (r *Resolver) fetchBBox(workingTf *geo.Transformer, src sources.Source, minX, minY, maxX, maxY float64) (geo.BBox, error) {
	box, err := workingTf.InverseBBox(minX, minY, maxX, maxY)
	if err != nil {
		return geo.BBox{}, err
	}
	return box.PadM(src.ResolutionM), nil
}

// resolveWCS plans tiles in the source's native CRS, fetches them
// concurrently and mosaics the result. The first tile failure cancels
// the remaining fetches.
func (r *Resolver) resolveWCS(ctx context.Context, src sources.Source, workingTf *geo.Transformer, minX, minY, maxX, maxY float64) (*raster.Grid, error) {
	srcTf, err := geo.NewTransformer(src.NativeCRS, false)
	if err != nil {
		return nil, err
	}

	// project the working footprint into the source CRS for planning
	box, err := r.fetchBBox(workingTf, src, minX, minY, maxX, maxY)
	if err != nil {
		return nil, err
	}
	sMinX, sMinY, sMaxX, sMaxY, err := srcTf.ForwardBBox(box)
	if err != nil {
		return nil, err
	}

	plan, err := r.Planner.Plan(src, sMinX, sMinY, sMaxX, sMaxY)
	if err != nil {
		return nil, err
	}
	r.Log.Info(ctx, "planned elevation tiles",
		logging.String("source", src.ID),
		logging.Int("cols", plan.Cols),
		logging.Int("rows", plan.Rows))

	grids := make([]*raster.Grid, len(plan.Tiles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.Cfg.IOWorkers)
	for i, tile := range plan.Tiles {
		i, tile := i, tile
		g.Go(func() error {
			grid, err := r.Client.FetchTile(gctx, src, tile)
			if err != nil {
				return fmt.Errorf("tile %d/%d: %w", tile.Index+1, len(plan.Tiles), err)
			}
			grids[i] = grid
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	cellSize := r.cellSize(src)
	mosaic, err := raster.Mosaic(grids, sMinX, sMinY, sMaxX, sMaxY, cellSize)
	if err != nil {
		return nil, err
	}
	// resample onto the working extent even when the CRSs match; the
	// round trip through WGS84 costs little and keeps one code path
	return reproject(mosaic, srcTf, workingTf, minX, minY, maxX, maxY, cellSize)
}

func (r *Resolver) resolveSTAC(ctx context.Context, src sources.Source, workingTf *geo.Transformer, minX, minY, maxX, maxY float64) (*raster.Grid, error) {
	box, err := r.fetchBBox(workingTf, src, minX, minY, maxX, maxY)
	if err != nil {
		return nil, err
	}
	grids, err := r.Client.FetchSTAC(ctx, src, box)
	if err != nil {
		return nil, err
	}
	srcTf, err := geo.NewTransformer(src.NativeCRS, false)
	if err != nil {
		return nil, err
	}
	cellSize := r.cellSize(src)

	// mosaic in the source CRS over the union of the item extents
	sMinX, sMinY := grids[0].Xll, grids[0].Yll
	sMaxX := grids[0].Xll + float64(grids[0].Ncols)*grids[0].CellSize
	sMaxY := grids[0].Yll + float64(grids[0].Nrows)*grids[0].CellSize
	for _, g := range grids[1:] {
		sMinX = min(sMinX, g.Xll)
		sMinY = min(sMinY, g.Yll)
		sMaxX = max(sMaxX, g.Xll+float64(g.Ncols)*g.CellSize)
		sMaxY = max(sMaxY, g.Yll+float64(g.Nrows)*g.CellSize)
	}
	mosaic, err := raster.Mosaic(grids, sMinX, sMinY, sMaxX, sMaxY, cellSize)
	if err != nil {
		return nil, err
	}
	return reproject(mosaic, srcTf, workingTf, minX, minY, maxX, maxY, cellSize)
}

// resolveGlobal fetches the working footprint as one WGS84 request.
// Global datasets allow far larger extents than any terrain we build,
// so no tiling is needed.
func (r *Resolver) resolveGlobal(ctx context.Context, src sources.Source, workingTf *geo.Transformer, minX, minY, maxX, maxY float64) (*raster.Grid, error) {
	b, err := r.fetchBBox(workingTf, src, minX, minY, maxX, maxY)
	if err != nil {
		return nil, err
	}
	tile := tiling.Tile{MinX: b.West, MinY: b.South, MaxX: b.East, MaxY: b.North}
	grid, err := r.Client.FetchTile(ctx, src, tile)
	if err != nil {
		return nil, err
	}
	return reprojectDegrees(grid, workingTf, minX, minY, maxX, maxY, r.cellSize(src))
}

// cellSize picks the working resolution: never finer than the source
// provides, never coarser than the configured grid.
func (r *Resolver) cellSize(src sources.Source) float64 {
	if src.ResolutionM > r.Cfg.GridCellSizeM {
		return src.ResolutionM
	}
	return r.Cfg.GridCellSizeM
}

// reproject resamples a grid from its source CRS onto the working
// extent. Every target cell centre is inverse projected to WGS84 and
// forward projected into the source CRS for bilinear sampling.
func reproject(src *raster.Grid, srcTf, workingTf *geo.Transformer, minX, minY, maxX, maxY, cellSize float64) (*raster.Grid, error) {
	ncols := uint((maxX-minX)/cellSize + 0.5)
	nrows := uint((maxY-minY)/cellSize + 0.5)
	out := raster.NewGrid(ncols, nrows, minX, minY, cellSize)

	var missing uint
	for row := uint(0); row < nrows; row++ {
		for col := uint(0); col < ncols; col++ {
			lng, lat, err := workingTf.Inverse(out.X(col), out.Y(row))
			if err != nil {
				return nil, err
			}
			sx, sy, err := srcTf.Forward(lng, lat)
			if err != nil {
				return nil, err
			}
			if v, ok := src.Sample(sx, sy); ok {
				out.Data[row][col] = v
			} else {
				missing++
			}
		}
	}
	if missing > 0 {
		return nil, &raster.NoDataGapError{Missing: missing, Total: ncols * nrows}
	}
	return out, nil
}

// reprojectDegrees maps a WGS84 grid onto the working extent.
func reprojectDegrees(src *raster.Grid, workingTf *geo.Transformer, minX, minY, maxX, maxY, cellSize float64) (*raster.Grid, error) {
	ncols := uint((maxX-minX)/cellSize + 0.5)
	nrows := uint((maxY-minY)/cellSize + 0.5)
	out := raster.NewGrid(ncols, nrows, minX, minY, cellSize)

	var missing uint
	for row := uint(0); row < nrows; row++ {
		for col := uint(0); col < ncols; col++ {
			lng, lat, err := workingTf.Inverse(out.X(col), out.Y(row))
			if err != nil {
				return nil, err
			}
			if v, ok := src.Sample(lng, lat); ok {
				out.Data[row][col] = v
			} else {
				missing++
			}
		}
	}
	if missing > 0 {
		return nil, &raster.NoDataGapError{Missing: missing, Total: ncols * nrows}
	}
	return out, nil
}
