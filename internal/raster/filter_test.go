package raster

import (
	"math"
	"runtime"
	"testing"
)

func TestSlopeDegreesFlat(t *testing.T) {
	g := constGrid(8, 8, 0, 0, 2, 100)
	slope := SlopeDegrees(g)
	for r := range slope {
		for c, v := range slope[r] {
			if v != 0 {
				t.Fatalf("flat grid slope (%d,%d) = %v, want 0", c, r, v)
			}
		}
	}
}

func TestSlopeDegreesRamp(t *testing.T) {
	// plane rising 1 m per metre along x is a 45 degree slope
	g := NewGrid(8, 8, 0, 0, 2)
	for r := uint(0); r < 8; r++ {
		for c := uint(0); c < 8; c++ {
			g.Data[r][c] = float64(c) * g.CellSize
		}
	}
	slope := SlopeDegrees(g)
	if math.Abs(slope[4][4]-45) > 1e-9 {
		t.Errorf("interior slope = %v, want 45", slope[4][4])
	}
	// one-sided difference at the border gives the same answer on a plane
	if math.Abs(slope[4][0]-45) > 1e-9 {
		t.Errorf("border slope = %v, want 45", slope[4][0])
	}
}

func TestSlopeDegreesNoData(t *testing.T) {
	g := constGrid(5, 5, 0, 0, 2, 100)
	g.Data[2][2] = NoData
	slope := SlopeDegrees(g)
	if slope[2][2] != 0 {
		t.Errorf("no-data cell slope = %v, want 0", slope[2][2])
	}
}

func TestGaussianSmoothPreservesConstant(t *testing.T) {
	g := constGrid(16, 16, 0, 0, 2, 50)
	out := GaussianSmooth(g, 1.5)
	for r := uint(0); r < 16; r++ {
		for c := uint(0); c < 16; c++ {
			if math.Abs(out.Z(c, r)-50) > 1e-9 {
				t.Fatalf("constant grid changed at (%d,%d): %v", c, r, out.Z(c, r))
			}
		}
	}
}

func TestGaussianSmoothReducesSpike(t *testing.T) {
	g := constGrid(15, 15, 0, 0, 2, 0)
	g.Data[7][7] = 100
	out := GaussianSmooth(g, 1.0)
	if out.Z(7, 7) >= 50 {
		t.Errorf("spike survived smoothing: %v", out.Z(7, 7))
	}
	// mass moves to neighbours, not away
	if out.Z(6, 7) <= 0 || out.Z(7, 6) <= 0 {
		t.Error("smoothing did not spread the spike")
	}
}

func TestGaussianSmoothSkipsNoData(t *testing.T) {
	g := constGrid(9, 9, 0, 0, 2, 10)
	g.Data[4][4] = NoData
	out := GaussianSmooth(g, 1.0)
	if !out.IsNoData(4, 4) {
		t.Error("no-data cell was filled by smoothing")
	}
	// the surrounding constant field stays constant because weights
	// renormalize around the hole
	if math.Abs(out.Z(3, 4)-10) > 1e-9 {
		t.Errorf("neighbour of no-data = %v, want 10", out.Z(3, 4))
	}
}

func TestGaussianSmoothZeroSigma(t *testing.T) {
	g := constGrid(4, 4, 0, 0, 2, 3)
	g.Data[1][2] = 9
	out := GaussianSmooth(g, 0)
	if out.Z(2, 1) != 9 {
		t.Error("zero sigma must not change values")
	}
}

func TestResampleHalvesResolution(t *testing.T) {
	g := constGrid(10, 10, 0, 0, 2, 5)
	out := Resample(g, 4)
	if out.Ncols != 5 || out.Nrows != 5 {
		t.Fatalf("dims = %dx%d, want 5x5", out.Ncols, out.Nrows)
	}
	if out.CellSize != 4 || out.Xll != 0 || out.Yll != 0 {
		t.Errorf("georef changed: %+v", out)
	}
	v, ok := sampleAt(out, 10, 10)
	if !ok || v != 5 {
		t.Errorf("resampled value = %v, want 5", v)
	}
}

func TestSetWorkersBoundsTheFilters(t *testing.T) {
	t.Cleanup(func() { SetWorkers(runtime.NumCPU()) })

	g := constGrid(16, 16, 0, 0, 2, 50)
	g.Data[8][8] = 150
	want := GaussianSmooth(g, 1)

	// a single worker must produce the same result as the default pool
	SetWorkers(1)
	got := GaussianSmooth(g, 1)
	for r := uint(0); r < g.Nrows; r++ {
		for c := uint(0); c < g.Ncols; c++ {
			if want.Z(c, r) != got.Z(c, r) {
				t.Fatalf("single-worker smooth differs at (%d,%d): %v vs %v", c, r, got.Z(c, r), want.Z(c, r))
			}
		}
	}

	// out-of-range values keep the current bound
	SetWorkers(0)
	if out := GaussianSmooth(g, 1); out.Z(8, 8) >= 150 {
		t.Error("smoothing broke after SetWorkers(0)")
	}
}
