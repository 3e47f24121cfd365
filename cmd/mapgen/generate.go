package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/config"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/geo"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/logging"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/pipeline"
)

func runGenerate(flagSet *flag.FlagSet) {
	start := time.Now()

	outputPtr := flagSet.String("out", "", "Path to output directory")
	aoiPtr := flagSet.String("aoi", "", "Path to a GeoJSON file holding the AOI polygon")
	namePtr := flagSet.String("name", "terrain", "World name used in the artifacts")

	flagSet.Parse(os.Args[2:])

	// make sure both flags are present
	if *outputPtr == "" || *aoiPtr == "" {
		flagSet.PrintDefaults()
		os.Exit(1)
	}

	cfg := config.Load()
	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	coords, err := readAOI(*aoiPtr)
	if err != nil {
		log.Fatal(err)
	}
	aoi, err := geo.NewAreaOfInterest(coords, cfg.MaxExtentM)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	job := pipeline.NewJob(*namePtr, aoi)
	fmt.Printf("▶️  Generating %s (job %s)\n", *namePtr, job.ID)

	runErr := pipeline.New(cfg, logger).Run(ctx, job, *outputPtr)

	for _, rec := range job.StepRecords() {
		switch rec.Status {
		case pipeline.StepCompleted:
			fmt.Printf("✔️  %-20s %s\n", rec.Step, rec.FinishedAt.Sub(rec.StartedAt).Round(time.Millisecond))
		case pipeline.StepDegraded:
			fmt.Printf("⚠️  %-20s degraded\n", rec.Step)
		case pipeline.StepFailed:
			fmt.Printf("❌  %-20s %s\n", rec.Step, rec.Error)
		}
	}

	if runErr != nil {
		log.Fatal(runErr)
	}
	fmt.Printf("\n    🎉  Finished in %s\n", time.Since(start).Round(time.Millisecond).String())
}

// readAOI accepts a GeoJSON Feature, FeatureCollection or bare Polygon
// geometry and returns the outer ring.
func readAOI(filename string) ([][2]float64, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var geom orb.Geometry
	if fc, err := geojson.UnmarshalFeatureCollection(data); err == nil && len(fc.Features) > 0 {
		geom = fc.Features[0].Geometry
	} else if f, err := geojson.UnmarshalFeature(data); err == nil {
		geom = f.Geometry
	} else {
		var g geojson.Geometry
		if err := json.Unmarshal(data, &g); err != nil {
			return nil, fmt.Errorf("parse %s: %w", filename, err)
		}
		geom = g.Geometry()
	}

	poly, ok := geom.(orb.Polygon)
	if !ok || len(poly) == 0 {
		return nil, errors.New("AOI file must hold a polygon")
	}
	ring := poly[0]
	coords := make([][2]float64, 0, len(ring))
	for _, p := range ring {
		coords = append(coords, [2]float64{p[0], p[1]})
	}
	return coords, nil
}
