package encode

import (
	"image"
	"os"
	"path"
	"testing"
	"time"

	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/raster"
)

func rampTestGrid() *raster.Grid {
	g := raster.NewGrid(8, 6, 500000, 6900000, 2)
	for r := uint(0); r < g.Nrows; r++ {
		for c := uint(0); c < g.Ncols; c++ {
			g.SetZ(c, r, 100+float64(r)*3+float64(c)*0.25)
		}
	}
	return g
}

func TestQuantizationRoundTrip(t *testing.T) {
	q := NewQuantization(100, 350)

	for _, z := range []float64{100, 350, 123.456, 349.999} {
		v := q.Encode(z)
		back := q.Decode(v)
		if diff := back - z; diff > q.StepM/2 || diff < -q.StepM/2 {
			t.Errorf("Decode(Encode(%v)) = %v, off by more than half a step (%v)", z, back, q.StepM)
		}
		// re-encoding a decoded value must be exact
		if again := q.Encode(back); again != v {
			t.Errorf("Encode(Decode(%d)) = %d, want identical value", v, again)
		}
	}

	if q.Encode(-500) != 0 {
		t.Error("below-range elevation should clamp to 0")
	}
	if q.Encode(10000) != 65535 {
		t.Error("above-range elevation should clamp to 65535")
	}
}

func TestQuantizationFlatGrid(t *testing.T) {
	q := NewQuantization(42, 42)
	if q.StepM <= 0 {
		t.Fatalf("flat-range step = %v, want positive", q.StepM)
	}
	if got := q.Decode(q.Encode(42)); got != 42 {
		t.Errorf("flat grid round trip = %v, want 42", got)
	}
}

func TestHeightmapImage(t *testing.T) {
	g := rampTestGrid()
	img, q, err := HeightmapImage(g)
	if err != nil {
		t.Fatalf("HeightmapImage: %v", err)
	}
	if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 6 {
		t.Fatalf("image bounds = %v, want 8x6", img.Bounds())
	}

	// lowest elevation sits at row 0, col 0 of the grid
	if v := img.Gray16At(0, 0).Y; v != 0 {
		t.Errorf("min cell encodes to %d, want 0", v)
	}
	if v := img.Gray16At(7, 5).Y; v != 65535 {
		t.Errorf("max cell encodes to %d, want 65535", v)
	}

	// spot-check a middle cell against the quantization
	want := q.Encode(g.Z(3, 2))
	if v := img.Gray16At(3, 2).Y; v != want {
		t.Errorf("cell (3,2) = %d, want %d", v, want)
	}
}

func TestHeightmapImageEmptyGrid(t *testing.T) {
	g := raster.NewGrid(4, 4, 0, 0, 2)
	if _, _, err := HeightmapImage(g); err == nil {
		t.Fatal("expected error for all-nodata grid")
	}
}

func TestMaskImage(t *testing.T) {
	m := MaskImage([][]uint8{{0, 128}, {255, 64}})
	if m.Bounds().Dx() != 2 || m.Bounds().Dy() != 2 {
		t.Fatalf("bounds = %v", m.Bounds())
	}
	if m.GrayAt(1, 0).Y != 128 || m.GrayAt(0, 1).Y != 255 {
		t.Errorf("pixels = %v", m.Pix)
	}
}

func TestWriteArtifacts(t *testing.T) {
	dir := t.TempDir()
	g := rampTestGrid()

	q, err := WriteHeightmap(dir, g)
	if err != nil {
		t.Fatalf("WriteHeightmap: %v", err)
	}
	if q.StepM <= 0 {
		t.Errorf("quantization step = %v", q.StepM)
	}
	for _, name := range []string{"heightmap.png", "heightmap.asc"} {
		if _, err := os.Stat(path.Join(dir, name)); err != nil {
			t.Errorf("missing artifact %s: %v", name, err)
		}
	}

	masks := map[string][][]uint8{
		"grass": {{255, 255}, {255, 255}},
		"rock":  {{0, 0}, {0, 0}},
	}
	if err := WriteMasks(dir, masks); err != nil {
		t.Fatalf("WriteMasks: %v", err)
	}
	if _, err := os.Stat(path.Join(dir, "mask_grass.png")); err != nil {
		t.Errorf("missing mask artifact: %v", err)
	}

	if err := WritePreviews(dir, image.NewRGBA(image.Rect(0, 0, 300, 300))); err != nil {
		t.Fatalf("WritePreviews: %v", err)
	}
	if _, err := os.Stat(path.Join(dir, "preview_128.png")); err != nil {
		t.Errorf("missing preview downscale: %v", err)
	}
	// no upscales past the source size
	if _, err := os.Stat(path.Join(dir, "preview_512.png")); err == nil {
		t.Error("preview_512.png written for a 300px source")
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	dir := t.TempDir()
	meta := Metadata{
		Name:        "kvarnbyn",
		GeneratedAt: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		Geometry: GridGeometry{
			Ncols: 4000, Nrows: 4000, CellSizeM: 2,
			OriginX: 500000, OriginY: 6900000, CRS: "epsg:3006",
		},
		HeightOffsetM: 12.5,
		HeightStepM:   0.01,
		SourceID:      "lantmateriet_hojd",
		ResolutionM:   1,
		CenterLat:     62.1,
		CenterLng:     16.2,
		Countries:     []string{"SE"},
		Degraded:      []string{"satellite_imagery"},
	}

	file := path.Join(dir, "meta.json")
	if err := WriteMetadata(file, meta); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}
	back, err := ReadMetadata(file)
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if back.Geometry != meta.Geometry {
		t.Errorf("geometry round trip = %+v, want %+v", back.Geometry, meta.Geometry)
	}
	if back.SourceID != meta.SourceID || back.HeightStepM != meta.HeightStepM {
		t.Errorf("metadata round trip mismatch: %+v", back)
	}
	if !back.GeneratedAt.Equal(meta.GeneratedAt) {
		t.Errorf("timestamp round trip = %v", back.GeneratedAt)
	}
}
