package encode

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path"
	"sort"

	"github.com/nfnt/resize"

	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/raster"
)

// previewSizes are the downscale heights written next to the full
// preview image.
var previewSizes = []uint{128, 256, 512, 1024}

// SavePNG writes an image as PNG, creating or truncating the file.
func SavePNG(filename string, img image.Image) error {
	out, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := png.Encode(out, img); err != nil {
		out.Close()
		return fmt.Errorf("encode %s: %w", filename, err)
	}
	return out.Close()
}

// WriteHeightmap writes heightmap.png plus heightmap.asc into dir and
// returns the quantization the PNG was written with.
func WriteHeightmap(dir string, g *raster.Grid) (Quantization, error) {
	img, q, err := HeightmapImage(g)
	if err != nil {
		return Quantization{}, err
	}
	if err := SavePNG(path.Join(dir, "heightmap.png"), img); err != nil {
		return Quantization{}, err
	}

	asc, err := os.Create(path.Join(dir, "heightmap.asc"))
	if err != nil {
		return Quantization{}, err
	}
	if err := raster.WriteASCIIGrid(asc, g); err != nil {
		asc.Close()
		return Quantization{}, fmt.Errorf("write heightmap.asc: %w", err)
	}
	return q, asc.Close()
}

// WriteMasks writes one 8-bit grayscale PNG per surface mask, named
// mask_<surface>.png, in deterministic order.
func WriteMasks(dir string, masks map[string][][]uint8) error {
	names := make([]string, 0, len(masks))
	for name := range masks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := SavePNG(path.Join(dir, "mask_"+name+".png"), MaskImage(masks[name])); err != nil {
			return err
		}
	}
	return nil
}

// WritePreviews writes the full preview image plus fixed-height
// downscales, preview_<h>.png each.
func WritePreviews(dir string, img image.Image) error {
	if err := SavePNG(path.Join(dir, "preview.png"), img); err != nil {
		return err
	}
	h := img.Bounds().Dy()
	w := img.Bounds().Dx()
	for _, size := range previewSizes {
		if int(size) >= h {
			continue
		}
		factor := float64(size) / float64(h)
		scaled := resize.Resize(uint(float64(w)*factor), size, img, resize.MitchellNetravali)
		if err := SavePNG(path.Join(dir, fmt.Sprintf("preview_%d.png", size)), scaled); err != nil {
			return err
		}
	}
	return nil
}
