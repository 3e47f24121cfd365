// Package pipeline sequences one terrain generation job through its 13
// steps, tracking progress, degradation and failures for the job layer.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"path"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/classify"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/config"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/country"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/elevation"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/encode"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/features"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/fetch"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/geo"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/imagery"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/logging"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/raster"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/refine"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/roads"
)

// shoreline transition band width in metres when leveling water
const shorelineBandM = 6.0

// ElevationResolver resolves the elevation grid for an area.
type ElevationResolver interface {
	Resolve(ctx context.Context, aoi *geo.AreaOfInterest, det country.Detection) (*elevation.Result, error)
}

// FeatureFetcher pulls the vector feature set for an area.
type FeatureFetcher interface {
	FetchAll(ctx context.Context, bbox geo.BBox) (*features.Set, error)
}

// ImageryFetcher pulls the satellite preview image for an area.
type ImageryFetcher interface {
	Fetch(ctx context.Context, bbox geo.BBox, widthPx, heightPx int) (image.Image, error)
}

// Pipeline runs generation jobs. One Pipeline serves many jobs; all
// per-job state lives in the run.
type Pipeline struct {
	Cfg       *config.Config
	Log       logging.Logger
	Elevation ElevationResolver
	Features  FeatureFetcher
	Imagery   ImageryFetcher
	Exporter  Exporter
	Classify  classify.Params
}

// New wires a pipeline with the default collaborators.
func New(cfg *config.Config, log logging.Logger) *Pipeline {
	if log == nil {
		log = logging.Noop()
	}
	raster.SetWorkers(cfg.CPUWorkers)
	client := fetch.NewClient(cfg, log)
	return &Pipeline{
		Cfg:       cfg,
		Log:       log,
		Elevation: elevation.NewResolver(cfg, client, log),
		Features:  features.NewClient(nil, cfg.MirrorPasses, log),
		Imagery:   imagery.NewClient(cfg, log),
		Exporter:  FilesystemExporter{},
		Classify:  classify.DefaultParams(),
	}
}

// run accumulates the job state the steps hand to each other.
type run struct {
	job    *Job
	outDir string

	det      country.Detection
	elev     *elevation.Result
	tf       *geo.Transformer
	set      *features.Set
	rds      []roads.Road
	refined  *raster.Grid
	quant    encode.Quantization
	geometry encode.GridGeometry
	meta     encode.Metadata
}

// Run executes every step in order. The first step failure fails the
// job; degradations are tracked but do not stop it.
func (p *Pipeline) Run(ctx context.Context, job *Job, outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	job.setStatus(StatusRunning)
	job.logf("info", "job %s started", job.ID)

	st := &run{job: job, outDir: outDir}
	steps := []struct {
		step Step
		fn   func(context.Context, *run) (map[string]any, bool, error)
	}{
		{StepCountryDetection, p.countryDetection},
		{StepElevationDownload, p.elevationDownload},
		{StepOSMFeatures, p.osmFeatures},
		{StepHeightmap, p.heightmap},
		{StepSurfaceMasks, p.surfaceMasks},
		{StepSatelliteImagery, p.satelliteImagery},
		{StepRoadProcessing, p.roadProcessing},
		{StepFeatureExtraction, p.featureExtraction},
		{StepCoordTransform, p.coordinateTransform},
		{StepMetadata, p.metadata},
		{StepEnfusionProject, p.enfusionProject},
		{StepSetupGuide, p.setupGuide},
		{StepExportOrganized, p.exportOrganized},
	}

	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			job.setStatus(StatusCancelled)
			job.logf("warn", "job cancelled before step %s", s.step)
			return err
		}

		job.startStep(s.step)
		start := time.Now()
		summary, degraded, err := s.fn(ctx, st)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				job.finishStep(s.step, StepFailed, summary, err.Error())
				job.setStatus(StatusCancelled)
				job.logf("warn", "job cancelled during step %s", s.step)
				return err
			}
			job.finishStep(s.step, StepFailed, summary, err.Error())
			job.setStatus(StatusFailed)
			job.logf("error", "step %s failed: %v", s.step, err)
			return fmt.Errorf("step %s: %w", s.step, err)
		}

		status := StepCompleted
		if degraded {
			status = StepDegraded
			job.logf("warn", "step %s finished degraded", s.step)
		}
		job.finishStep(s.step, status, summary, "")
		p.Log.Info(ctx, "pipeline step finished",
			logging.String("job", job.ID.String()),
			logging.String("step", string(s.step)),
			logging.String("status", string(status)),
			logging.Float("seconds", time.Since(start).Seconds()))
	}

	job.setStatus(StatusCompleted)
	job.logf("info", "job %s completed", job.ID)
	return nil
}

func (p *Pipeline) countryDetection(ctx context.Context, st *run) (map[string]any, bool, error) {
	st.det = country.Detect(st.job.AOI)
	summary := map[string]any{
		"primary":   st.det.Primary,
		"countries": st.det.Codes,
	}
	// unknown territory still generates via the global sources
	return summary, st.det.Primary == "", nil
}

func (p *Pipeline) elevationDownload(ctx context.Context, st *run) (map[string]any, bool, error) {
	res, err := p.Elevation.Resolve(ctx, st.job.AOI, st.det)
	if err != nil {
		return nil, false, err
	}
	st.elev = res

	tf, err := geo.NewTransformer(res.WorkingCRS, false)
	if err != nil {
		return nil, false, err
	}
	st.tf = tf

	summary := map[string]any{
		"source":       res.Source.ID,
		"resolution_m": res.Source.ResolutionM,
		"attempts":     res.Attempts,
	}
	// any prior attempt means a fallback source delivered
	return summary, len(res.Attempts) > 0, nil
}

func (p *Pipeline) osmFeatures(ctx context.Context, st *run) (map[string]any, bool, error) {
	set, err := p.Features.FetchAll(ctx, st.job.AOI.BBox())
	if err != nil {
		return nil, false, err
	}
	st.set = set

	summary := map[string]any{}
	for _, cat := range features.Categories {
		summary[string(cat)] = len(set.Features(cat).Features)
	}
	if len(set.Degraded) > 0 {
		summary["degraded"] = set.Degraded
	}
	return summary, len(set.Degraded) > 0, nil
}

func (p *Pipeline) heightmap(ctx context.Context, st *run) (map[string]any, bool, error) {
	g := st.elev.Grid
	env := roads.NewEnv(st.set.Features(features.CategoryForests), st.set.Features(features.CategoryLandUse))
	st.rds = roads.Classify(st.set.Features(features.CategoryRoads), st.det.Primary, env)

	paths := make([]refine.RoadPath, 0, len(st.rds))
	for _, rd := range st.rds {
		line, err := classify.ProjectLine(rd.Line, st.tf.Forward)
		if err != nil {
			return nil, false, err
		}
		paths = append(paths, refine.RoadPath{Line: line, WidthM: rd.WidthM})
	}

	water, err := classify.PolygonMask(g, st.set.Features(features.CategoryWater), st.tf.Forward, nil)
	if err != nil {
		return nil, false, err
	}

	refined := refine.FlattenRoads(g, paths)
	refined = refine.LevelWater(refined, water, int(shorelineBandM/g.CellSize))
	refined = refine.Smooth(refined, p.Cfg.SmoothingSigma)
	st.refined = refined

	q, err := encode.WriteHeightmap(st.outDir, refined)
	if err != nil {
		return nil, false, err
	}
	st.quant = q

	min, max, _ := refined.MinMax()
	return map[string]any{
		"min_m":  min,
		"max_m":  max,
		"step_m": q.StepM,
		"roads":  len(paths),
	}, false, nil
}

func (p *Pipeline) surfaceMasks(ctx context.Context, st *run) (map[string]any, bool, error) {
	_, centerLat := st.job.AOI.BBox().Center()
	res, err := classify.Generate(classify.Input{
		Elevation:   st.refined,
		Features:    st.set,
		Roads:       st.rds,
		CountryCode: st.det.Primary,
		CenterLat:   centerLat,
		Project:     st.tf.Forward,
		Params:      p.Classify,
	})
	if err != nil {
		return nil, false, err
	}

	masks := make(map[string][][]uint8, len(res.Weights))
	for name, w := range res.Weights {
		masks[string(name)] = w
	}
	if err := encode.WriteMasks(st.outDir, masks); err != nil {
		return nil, false, err
	}
	return map[string]any{"masks": len(masks)}, false, nil
}

func (p *Pipeline) satelliteImagery(ctx context.Context, st *run) (map[string]any, bool, error) {
	img, err := p.Imagery.Fetch(ctx, st.job.AOI.BBox(), int(st.refined.Ncols), int(st.refined.Nrows))
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		// imagery is a preview nicety, never fatal
		p.Log.Warn(ctx, "satellite imagery unavailable, continuing without preview",
			logging.String("job", st.job.ID.String()),
			logging.Err(err))
		return map[string]any{"error": err.Error()}, true, nil
	}
	if err := encode.WritePreviews(st.outDir, img); err != nil {
		return nil, false, err
	}
	return map[string]any{
		"width":  img.Bounds().Dx(),
		"height": img.Bounds().Dy(),
	}, false, nil
}

func (p *Pipeline) roadProcessing(ctx context.Context, st *run) (map[string]any, bool, error) {
	fc := geojson.NewFeatureCollection()
	paved := 0
	for _, rd := range st.rds {
		f := geojson.NewFeature(rd.Line)
		f.Properties["osm_id"] = rd.OSMID
		f.Properties["highway"] = rd.Highway
		f.Properties["surface"] = string(rd.Surface)
		f.Properties["width_m"] = rd.WidthM
		f.Properties["prefab"] = rd.Prefab
		if rd.Name != "" {
			f.Properties["name"] = rd.Name
		}
		fc.Append(f)
		if rd.Surface == roads.SurfaceAsphalt {
			paved++
		}
	}
	if err := writeGeoJSON(path.Join(st.outDir, "roads.geojson"), fc); err != nil {
		return nil, false, err
	}
	return map[string]any{"roads": len(st.rds), "paved": paved}, false, nil
}

func (p *Pipeline) featureExtraction(ctx context.Context, st *run) (map[string]any, bool, error) {
	summary := map[string]any{}
	for _, cat := range features.Categories {
		if cat == features.CategoryRoads {
			continue // written by road_processing with full attributes
		}
		fc := st.set.Features(cat)
		name := fmt.Sprintf("features_%s.geojson", cat)
		if err := writeGeoJSON(path.Join(st.outDir, name), fc); err != nil {
			return nil, false, err
		}
		summary[string(cat)] = len(fc.Features)
	}
	return summary, false, nil
}

func (p *Pipeline) coordinateTransform(ctx context.Context, st *run) (map[string]any, bool, error) {
	g := st.refined
	st.geometry = encode.GridGeometry{
		Ncols:     g.Ncols,
		Nrows:     g.Nrows,
		CellSizeM: g.CellSize,
		OriginX:   g.Xll,
		OriginY:   g.Yll,
		CRS:       st.elev.WorkingCRS,
	}
	return map[string]any{
		"crs":         st.geometry.CRS,
		"ncols":       st.geometry.Ncols,
		"nrows":       st.geometry.Nrows,
		"cell_size_m": st.geometry.CellSizeM,
		"origin_x":    st.geometry.OriginX,
		"origin_y":    st.geometry.OriginY,
	}, false, nil
}

func (p *Pipeline) metadata(ctx context.Context, st *run) (map[string]any, bool, error) {
	centerLng, centerLat := st.job.AOI.BBox().Center()
	var degraded []string
	for _, s := range st.job.Degraded() {
		degraded = append(degraded, string(s))
	}

	st.meta = encode.Metadata{
		Name:          st.job.Name,
		GeneratedAt:   time.Now().UTC(),
		Geometry:      st.geometry,
		HeightOffsetM: st.quant.OffsetM,
		HeightStepM:   st.quant.StepM,
		SourceID:      st.elev.Source.ID,
		ResolutionM:   st.elev.Source.ResolutionM,
		CenterLat:     centerLat,
		CenterLng:     centerLng,
		Countries:     st.det.Codes,
		Degraded:      degraded,
	}
	if err := encode.WriteMetadata(path.Join(st.outDir, "meta.json"), st.meta); err != nil {
		return nil, false, err
	}
	return map[string]any{"file": "meta.json"}, false, nil
}

func (p *Pipeline) enfusionProject(ctx context.Context, st *run) (map[string]any, bool, error) {
	if err := p.Exporter.WriteProject(ctx, st.outDir, st.meta); err != nil {
		return nil, false, err
	}
	return map[string]any{"file": "project.json"}, false, nil
}

func (p *Pipeline) setupGuide(ctx context.Context, st *run) (map[string]any, bool, error) {
	if err := p.Exporter.WriteSetupGuide(ctx, st.outDir, st.meta); err != nil {
		return nil, false, err
	}
	return map[string]any{"file": "SETUP.md"}, false, nil
}

func (p *Pipeline) exportOrganized(ctx context.Context, st *run) (map[string]any, bool, error) {
	if err := p.Exporter.Organize(ctx, st.outDir); err != nil {
		return nil, false, err
	}
	return map[string]any{"dir": st.outDir}, false, nil
}

func writeGeoJSON(filename string, fc *geojson.FeatureCollection) error {
	data, err := json.Marshal(fc)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0o644)
}
