package raster

import (
	"bytes"
	"math"
	"strings"
	"testing"
)

const sampleGrid = `ncols 4
nrows 3
xllcorner 380000
yllcorner 7200000
cellsize 2
NODATA_value -32768
10 11 12 13
20 21 -32768 23
30 31 32 33
`

func TestParseASCIIGrid(t *testing.T) {
	g, err := ParseASCIIGrid(strings.NewReader(sampleGrid))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if g.Ncols != 4 || g.Nrows != 3 {
		t.Fatalf("dims = %dx%d, want 4x3", g.Ncols, g.Nrows)
	}
	if g.Xll != 380000 || g.Yll != 7200000 || g.CellSize != 2 {
		t.Errorf("georef = (%v, %v, %v)", g.Xll, g.Yll, g.CellSize)
	}
	if g.Z(0, 0) != 10 || g.Z(3, 2) != 33 {
		t.Errorf("corner values wrong: %v, %v", g.Z(0, 0), g.Z(3, 2))
	}
	// provider no-data marker gets normalized
	if !g.IsNoData(2, 1) {
		t.Error("no-data cell not recognized")
	}
	if g.NoData != NoData {
		t.Errorf("NoData = %v, want %v", g.NoData, NoData)
	}
}

func TestParseASCIIGridCenterRegistration(t *testing.T) {
	in := `ncols 2
nrows 2
xllcenter 101
yllcenter 201
cellsize 2
1 2
3 4
`
	g, err := ParseASCIIGrid(strings.NewReader(in))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	// centre registration shifts the corner by half a cell
	if g.Xll != 100 || g.Yll != 200 {
		t.Errorf("corner = (%v, %v), want (100, 200)", g.Xll, g.Yll)
	}
}

func TestParseASCIIGridErrors(t *testing.T) {
	cases := map[string]string{
		"missing headers": "ncols 2\nnrows 2\n1 2\n3 4\n",
		"short row":       "ncols 3\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize 1\n1 2\n",
		"truncated rows":  "ncols 2\nnrows 3\nxllcorner 0\nyllcorner 0\ncellsize 1\n1 2\n3 4\n",
		"zero cellsize":   "ncols 2\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize 0\n1 2\n",
		"empty":           "",
	}
	for name, in := range cases {
		if _, err := ParseASCIIGrid(strings.NewReader(in)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestWriteASCIIGridRoundTrip(t *testing.T) {
	g, err := ParseASCIIGrid(strings.NewReader(sampleGrid))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteASCIIGrid(&buf, g); err != nil {
		t.Fatalf("write: %v", err)
	}
	back, err := ParseASCIIGrid(&buf)
	if err != nil {
		t.Fatalf("re-parse: %v", err)
	}
	if back.Ncols != g.Ncols || back.Nrows != g.Nrows || back.Xll != g.Xll {
		t.Fatalf("round trip changed georeference")
	}
	for r := uint(0); r < g.Nrows; r++ {
		for c := uint(0); c < g.Ncols; c++ {
			if back.Z(c, r) != g.Z(c, r) {
				t.Fatalf("value (%d,%d) changed: %v != %v", c, r, back.Z(c, r), g.Z(c, r))
			}
		}
	}
}

func TestGridSample(t *testing.T) {
	g, _ := ParseASCIIGrid(strings.NewReader(sampleGrid))

	// exact cell centre of (0,0): top-left, x=380001, y=7200005
	v, ok := g.Sample(380001, 7200005)
	if !ok || v != 10 {
		t.Errorf("sample at cell centre = %v (%v), want 10", v, ok)
	}

	// midway between 30 and 31 on the bottom row
	v, ok = g.Sample(380002, 7200001)
	if !ok || math.Abs(v-30.5) > 1e-9 {
		t.Errorf("interpolated sample = %v (%v), want 30.5", v, ok)
	}

	// outside the grid
	if _, ok := g.Sample(379000, 7200001); ok {
		t.Error("sample outside grid reported ok")
	}

	// stencil touching the no-data cell
	if _, ok := g.Sample(380004, 7200003); ok {
		t.Error("sample next to no-data reported ok")
	}
}
