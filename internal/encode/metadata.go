package encode

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// GridGeometry pins the raster layout shared by the heightmap and every
// surface mask. Importers rely on these being identical, so they are
// recorded once.
type GridGeometry struct {
	Ncols     uint    `json:"ncols"`
	Nrows     uint    `json:"nrows"`
	CellSizeM float64 `json:"cellSizeM"`
	// OriginX, OriginY locate the lower-left corner of the lower-left
	// cell in the working CRS.
	OriginX float64 `json:"originX"`
	OriginY float64 `json:"originY"`
	CRS     string  `json:"crs"`
}

// Metadata is the meta.json written next to the artifacts.
type Metadata struct {
	Name        string       `json:"name"`
	GeneratedAt time.Time    `json:"generatedAt"`
	Geometry    GridGeometry `json:"geometry"`

	// HeightOffsetM and HeightStepM decode heightmap.png:
	// height = offset + value * step.
	HeightOffsetM float64 `json:"heightOffsetM"`
	HeightStepM   float64 `json:"heightStepM"`

	SourceID    string  `json:"sourceId"`
	ResolutionM float64 `json:"resolutionM"`

	CenterLat float64  `json:"centerLat"`
	CenterLng float64  `json:"centerLng"`
	Countries []string `json:"countries"`

	// Degraded lists the pipeline steps or feature categories that
	// fell back or came back empty.
	Degraded []string `json:"degraded,omitempty"`
}

// WriteMetadata writes meta.json, indented for human readers.
func WriteMetadata(filename string, meta Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, append(data, '\n'), 0o644)
}

// ReadMetadata reads a meta.json back.
func ReadMetadata(filename string) (Metadata, error) {
	var meta Metadata
	data, err := os.ReadFile(filename)
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("parse %s: %w", filename, err)
	}
	return meta, nil
}
