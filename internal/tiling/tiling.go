// Package tiling splits an elevation request into per-source tiles that
// respect the provider's pixel and ground-extent limits.
package tiling

import (
	"fmt"
	"math"

	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/sources"
)

// Tile is one rectangular request in the source's native CRS.
type Tile struct {
	Index      int // row-major position in the plan
	Col, Row   int
	MinX, MinY float64
	MaxX, MaxY float64
	// WidthPx and HeightPx are the raster dimensions to request,
	// derived from the source resolution.
	WidthPx, HeightPx int
}

// Plan covers a projected extent with tiles.
type Plan struct {
	Source     sources.Source
	Cols, Rows int
	Tiles      []Tile
	// OverlapM is the seam overlap applied between neighbouring tiles.
	OverlapM float64
}

// PlanningError means the extent cannot be covered under the source's
// limits at all.
type PlanningError struct {
	SourceID string
	Reason   string
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("cannot plan tiles for %s: %s", e.SourceID, e.Reason)
}

// Planner builds tile plans. OverlapM widens every tile on each shared
// edge so that the mosaic can blend seams.
type Planner struct {
	OverlapM float64
}

// Plan covers the projected extent [minX,maxX]x[minY,maxY] for src.
// The per-axis tile count is the ceiling of extent over the source's
// effective limit, so a 12 km axis against a 10 km limit yields two
// tiles, never a truncated single request.
func (p *Planner) Plan(src sources.Source, minX, minY, maxX, maxY float64) (*Plan, error) {
	extentX := maxX - minX
	extentY := maxY - minY
	if extentX <= 0 || extentY <= 0 {
		return nil, &PlanningError{SourceID: src.ID, Reason: "empty extent"}
	}
	if src.ResolutionM <= 0 {
		return nil, &PlanningError{SourceID: src.ID, Reason: "source has no resolution"}
	}

	limit := p.axisLimitM(src)
	if limit <= 0 {
		return nil, &PlanningError{SourceID: src.ID, Reason: "source has no usable request limit"}
	}
	if p.OverlapM >= limit {
		return nil, &PlanningError{SourceID: src.ID,
			Reason: fmt.Sprintf("overlap %.0f m exceeds per-request limit %.0f m", p.OverlapM, limit)}
	}

	cols := int(math.Ceil(extentX / limit))
	rows := int(math.Ceil(extentY / limit))

	stepX := extentX / float64(cols)
	stepY := extentY / float64(rows)

	plan := &Plan{Source: src, Cols: cols, Rows: rows, OverlapM: p.OverlapM}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			t := Tile{
				Index: r*cols + c,
				Col:   c, Row: r,
				MinX: minX + float64(c)*stepX,
				MaxX: minX + float64(c+1)*stepX,
				MinY: minY + float64(r)*stepY,
				MaxY: minY + float64(r+1)*stepY,
			}
			// widen interior edges for seam blending
			if c > 0 {
				t.MinX -= p.OverlapM
			}
			if c < cols-1 {
				t.MaxX += p.OverlapM
			}
			if r > 0 {
				t.MinY -= p.OverlapM
			}
			if r < rows-1 {
				t.MaxY += p.OverlapM
			}
			t.WidthPx = int(math.Ceil((t.MaxX - t.MinX) / src.ResolutionM))
			t.HeightPx = int(math.Ceil((t.MaxY - t.MinY) / src.ResolutionM))
			if src.MaxRequestPx > 0 && (t.WidthPx > src.MaxRequestPx || t.HeightPx > src.MaxRequestPx) {
				return nil, &PlanningError{SourceID: src.ID,
					Reason: fmt.Sprintf("tile %dx%d px exceeds request cap %d", t.WidthPx, t.HeightPx, src.MaxRequestPx)}
			}
			plan.Tiles = append(plan.Tiles, t)
		}
	}
	return plan, nil
}

// axisLimitM is the tighter of the ground-extent cap and the pixel cap
// expressed in metres, minus headroom for overlap widening.
func (p *Planner) axisLimitM(src sources.Source) float64 {
	// interior tiles grow by up to 2*overlap, keep them under the caps
	limit := math.Inf(1)
	if src.MaxAreaM > 0 {
		limit = src.MaxAreaM - 2*p.OverlapM
	}
	if src.MaxRequestPx > 0 {
		pxLimit := float64(src.MaxRequestPx)*src.ResolutionM - 2*p.OverlapM
		if pxLimit < limit {
			limit = pxLimit
		}
	}
	if math.IsInf(limit, 1) {
		return 0
	}
	return limit
}
