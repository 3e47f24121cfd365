package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/encode"
)

// Exporter produces the world-editor facing deliverables from the
// artifacts the pipeline wrote. Project-file templating and packaging
// live behind this boundary.
type Exporter interface {
	// WriteProject writes the editor project descriptor into dir.
	WriteProject(ctx context.Context, dir string, meta encode.Metadata) error
	// WriteSetupGuide writes the human import instructions into dir.
	WriteSetupGuide(ctx context.Context, dir string, meta encode.Metadata) error
	// Organize arranges the artifacts in dir into their final layout.
	Organize(ctx context.Context, dir string) error
}

// FilesystemExporter is the plain Exporter writing everything as files
// under the job's output directory.
type FilesystemExporter struct{}

type projectFile struct {
	Name         string   `json:"name"`
	WorldSizeM   float64  `json:"worldSizeM"`
	CellSizeM    float64  `json:"cellSizeM"`
	Heightmap    string   `json:"heightmap"`
	HeightmapASC string   `json:"heightmapAsc"`
	Masks        []string `json:"masks"`
	Metadata     string   `json:"metadata"`
}

func (FilesystemExporter) WriteProject(ctx context.Context, dir string, meta encode.Metadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	masks, err := filepath.Glob(path.Join(dir, "mask_*.png"))
	if err != nil {
		return err
	}
	for i, m := range masks {
		masks[i] = filepath.Base(m)
	}

	p := projectFile{
		Name:         meta.Name,
		WorldSizeM:   float64(meta.Geometry.Ncols) * meta.Geometry.CellSizeM,
		CellSizeM:    meta.Geometry.CellSizeM,
		Heightmap:    "heightmap.png",
		HeightmapASC: "heightmap.asc",
		Masks:        masks,
		Metadata:     "meta.json",
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path.Join(dir, "project.json"), append(data, '\n'), 0o644)
}

func (FilesystemExporter) WriteSetupGuide(ctx context.Context, dir string, meta encode.Metadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", meta.Name)
	fmt.Fprintf(&b, "Generated terrain, %dx%d cells at %.1f m.\n\n",
		meta.Geometry.Ncols, meta.Geometry.Nrows, meta.Geometry.CellSizeM)
	b.WriteString("## Import\n\n")
	fmt.Fprintf(&b, "1. Import `heightmap.png` as a 16-bit heightmap. Decode heights as `%.3f + value * %.6f` metres.\n",
		meta.HeightOffsetM, meta.HeightStepM)
	b.WriteString("2. Assign each `mask_*.png` to its surface layer; the masks share the heightmap's grid exactly.\n")
	fmt.Fprintf(&b, "3. Register the terrain at origin (%.1f, %.1f) in %s.\n",
		meta.Geometry.OriginX, meta.Geometry.OriginY, meta.Geometry.CRS)
	if len(meta.Degraded) > 0 {
		fmt.Fprintf(&b, "\nDegraded during generation: %s.\n", strings.Join(meta.Degraded, ", "))
	}
	return os.WriteFile(path.Join(dir, "SETUP.md"), []byte(b.String()), 0o644)
}

// Organize groups the flat artifact files into subdirectories:
// terrain/, surfacemasks/, vectors/ and preview/. The descriptor files
// stay at the root.
func (FilesystemExporter) Organize(ctx context.Context, dir string) error {
	moves := map[string]func(name string) bool{
		"terrain": func(n string) bool {
			return strings.HasPrefix(n, "heightmap.")
		},
		"surfacemasks": func(n string) bool {
			return strings.HasPrefix(n, "mask_")
		},
		"vectors": func(n string) bool {
			return strings.HasSuffix(n, ".geojson")
		},
		"preview": func(n string) bool {
			return strings.HasPrefix(n, "preview")
		},
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for sub, match := range moves {
		if err := ctx.Err(); err != nil {
			return err
		}
		target := path.Join(dir, sub)
		for _, e := range entries {
			if e.IsDir() || !match(e.Name()) {
				continue
			}
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			if err := os.Rename(path.Join(dir, e.Name()), path.Join(target, e.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}
