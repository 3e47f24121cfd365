package elevation

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/config"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/country"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/fetch"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/geo"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/logging"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/sources"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/tiling"
)

func testConfig() *config.Config {
	return &config.Config{
		MaxExtentM:    20000,
		GridCellSizeM: 2,
		TileOverlapM:  40,
		FetchTimeout:  10 * time.Second,
		FetchRetries:  1,
		IOWorkers:     4,
		Credentials: config.Credentials{
			NLSFinlandAPIKey:     "fi-key",
			OpenTopographyAPIKey: "ot-key",
		},
	}
}

func testResolver(t *testing.T, cfg *config.Config, chain []sources.Source) *Resolver {
	t.Helper()
	client := &fetch.Client{
		HTTP:        &http.Client{Timeout: cfg.FetchTimeout},
		Retries:     cfg.FetchRetries,
		BackoffBase: time.Millisecond,
		Creds:       cfg.Credentials,
		Log:         logging.Noop(),
	}
	r := NewResolver(cfg, client, nil)
	r.Chain = func(string, []string, float64) []sources.Source { return chain }
	return r
}

// finlandAOI spans roughly 12x12 km in central Finland, larger than
// the 10 km per-request cap of the national service.
func finlandAOI(t *testing.T) *geo.AreaOfInterest {
	t.Helper()
	aoi, err := geo.NewAreaOfInterest([][2]float64{
		{25.0, 62.0}, {25.23, 62.0}, {25.23, 62.112}, {25.0, 62.112}, {25.0, 62.0},
	}, 0)
	if err != nil {
		t.Fatal(err)
	}
	return aoi
}

// wcsTestServer answers WCS 2.0.1 GetCoverage requests with a constant
// elevation grid matching the requested subset.
func wcsTestServer(t *testing.T, calls *atomic.Int64, value float64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		q := r.URL.Query()
		var minE, maxE, minN, maxN float64
		for _, s := range q["SUBSET"] {
			var lo, hi float64
			if _, err := fmt.Sscanf(s, "E(%f,%f)", &lo, &hi); err == nil {
				minE, maxE = lo, hi
				continue
			}
			if _, err := fmt.Sscanf(s, "N(%f,%f)", &lo, &hi); err == nil {
				minN, maxN = lo, hi
			}
		}
		var cols, rows int
		fmt.Sscanf(q.Get("SCALESIZE"), "E(%d),N(%d)", &cols, &rows)
		if cols == 0 || rows == 0 || maxE <= minE || maxN <= minN {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		// pad a cell on each side so the response fully covers the
		// subset even when the axes round differently
		cell := (maxE - minE) / float64(cols)
		rows = int((maxN-minN)/cell) + 2
		writeConstantGrid(w, cols+2, rows, minE-cell, minN-cell, cell, value)
	}))
}

func writeConstantGrid(w http.ResponseWriter, cols, rows int, xll, yll, cellSize, value float64) {
	var b strings.Builder
	fmt.Fprintf(&b, "ncols %d\nnrows %d\nxllcorner %f\nyllcorner %f\ncellsize %f\nNODATA_value -9999\n", cols, rows, xll, yll, cellSize)
	val := strconv.FormatFloat(value, 'f', -1, 64)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if c > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(val)
		}
		b.WriteByte('\n')
	}
	fmt.Fprint(w, b.String())
}

// coarse Finland source pointed at a local server; the coarse
// resolution keeps test grids small
func testFinlandSource(endpoint string) sources.Source {
	src, _ := sources.ForCountry("FI")
	src.Endpoint = endpoint
	src.ResolutionM = 100
	return src
}

func TestResolveSplitsAndMosaics(t *testing.T) {
	var calls atomic.Int64
	srv := wcsTestServer(t, &calls, 123)
	defer srv.Close()

	cfg := testConfig()
	r := testResolver(t, cfg, []sources.Source{testFinlandSource(srv.URL)})

	aoi := finlandAOI(t)
	res, err := r.Resolve(context.Background(), aoi, country.Detection{Primary: "FI", Codes: []string{"FI"}})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// a 12 km axis against the 10 km cap must fan out into 2x2 tiles
	if calls.Load() != 4 {
		t.Errorf("server saw %d tile requests, want 4", calls.Load())
	}
	if res.WorkingCRS != "epsg:3067" {
		t.Errorf("working crs = %s, want epsg:3067", res.WorkingCRS)
	}
	if res.Source.ID != "nls_korkeusmalli" {
		t.Errorf("source = %s", res.Source.ID)
	}
	if len(res.Attempts) != 0 {
		t.Errorf("unexpected failed attempts: %+v", res.Attempts)
	}

	// the grid must be gap free with the served constant value
	for row := uint(0); row < res.Grid.Nrows; row++ {
		for col := uint(0); col < res.Grid.Ncols; col++ {
			if res.Grid.IsNoData(col, row) {
				t.Fatalf("gap at (%d,%d)", col, row)
			}
			if v := res.Grid.Z(col, row); v != 123 {
				t.Fatalf("cell (%d,%d) = %v, want 123", col, row, v)
			}
		}
	}
}

// openTopoTestServer answers global DEM requests in WGS84 degrees.
func openTopoTestServer(t *testing.T, value float64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		west, _ := strconv.ParseFloat(q.Get("west"), 64)
		south, _ := strconv.ParseFloat(q.Get("south"), 64)
		east, _ := strconv.ParseFloat(q.Get("east"), 64)
		north, _ := strconv.ParseFloat(q.Get("north"), 64)
		// pad one cell on every side so edge samples stay interior
		const cols = 80
		cell := (east - west) / cols
		rows := int((north-south)/cell) + 2
		writeConstantGrid(w, cols+2, rows, west-cell, south-cell, cell, value)
	}))
}

func globalTestSource(endpoint string) sources.Source {
	src := sources.GlobalFallbacks(0)[0]
	src.Endpoint = endpoint
	src.ResolutionM = 100
	return src
}

func TestResolveFallsBackToGlobal(t *testing.T) {
	national := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer national.Close()
	global := openTopoTestServer(t, 55)
	defer global.Close()

	cfg := testConfig()
	r := testResolver(t, cfg, []sources.Source{
		testFinlandSource(national.URL),
		globalTestSource(global.URL),
	})

	res, err := r.Resolve(context.Background(), finlandAOI(t), country.Detection{Primary: "FI", Codes: []string{"FI"}})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Source.ID != "opentopo_cop30" {
		t.Errorf("source = %s, want opentopo_cop30", res.Source.ID)
	}
	if len(res.Attempts) != 1 || res.Attempts[0].SourceID != "nls_korkeusmalli" || res.Attempts[0].Skipped {
		t.Errorf("attempts = %+v, want one failed national attempt", res.Attempts)
	}
	if v := res.Grid.Z(res.Grid.Ncols/2, res.Grid.Nrows/2); v != 55 {
		t.Errorf("centre cell = %v, want 55", v)
	}
}

// The working grid spans the projected envelope of the area, and off
// the CRS's central meridian that envelope's corners invert to WGS84
// points outside the drawn bbox. The fetch must cover the envelope
// footprint, or the corner cells stay unfillable. The server here
// serves exactly what is requested, so a fetch of the bare drawn bbox
// would leave gaps and fail the source.
func TestResolveGlobalFetchCoversWorkingEnvelope(t *testing.T) {
	var mu sync.Mutex
	var got geo.BBox
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		west, _ := strconv.ParseFloat(q.Get("west"), 64)
		south, _ := strconv.ParseFloat(q.Get("south"), 64)
		east, _ := strconv.ParseFloat(q.Get("east"), 64)
		north, _ := strconv.ParseFloat(q.Get("north"), 64)
		mu.Lock()
		got = geo.BBox{West: west, South: south, East: east, North: north}
		mu.Unlock()
		const cols = 120
		cell := (east - west) / cols
		rows := int((north-south)/cell) + 1
		writeConstantGrid(w, cols, rows, west, south, cell, 9)
	}))
	defer srv.Close()

	cfg := testConfig()
	r := testResolver(t, cfg, []sources.Source{globalTestSource(srv.URL)})

	aoi := finlandAOI(t)
	res, err := r.Resolve(context.Background(), aoi, country.Detection{Primary: "FI", Codes: []string{"FI"}})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	b := aoi.BBox()
	if got.West >= b.West || got.East <= b.East || got.South >= b.South || got.North <= b.North {
		t.Errorf("fetched bbox %+v does not extend past the drawn bbox %+v", got, b)
	}
	// every corner of the working grid found data
	for _, cell := range [4][2]uint{{0, 0}, {res.Grid.Ncols - 1, 0}, {0, res.Grid.Nrows - 1}, {res.Grid.Ncols - 1, res.Grid.Nrows - 1}} {
		if res.Grid.IsNoData(cell[0], cell[1]) {
			t.Fatalf("corner cell (%d,%d) has no data", cell[0], cell[1])
		}
		if v := res.Grid.Z(cell[0], cell[1]); v != 9 {
			t.Errorf("corner cell (%d,%d) = %v, want 9", cell[0], cell[1], v)
		}
	}
}

func TestResolveSkipsSourceWithoutCredentials(t *testing.T) {
	global := openTopoTestServer(t, 7)
	defer global.Close()

	cfg := testConfig()
	cfg.Credentials.NLSFinlandAPIKey = ""
	r := testResolver(t, cfg, []sources.Source{
		testFinlandSource("http://127.0.0.1:1"), // must never be contacted
		globalTestSource(global.URL),
	})

	res, err := r.Resolve(context.Background(), finlandAOI(t), country.Detection{Primary: "FI", Codes: []string{"FI"}})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(res.Attempts) != 1 || !res.Attempts[0].Skipped {
		t.Errorf("attempts = %+v, want one skipped attempt", res.Attempts)
	}
}

func TestResolveAllSourcesFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := testConfig()
	r := testResolver(t, cfg, []sources.Source{testFinlandSource(srv.URL)})

	_, err := r.Resolve(context.Background(), finlandAOI(t), country.Detection{Primary: "FI", Codes: []string{"FI"}})
	if err == nil {
		t.Fatal("expected failure when every source fails")
	}
	if !strings.Contains(err.Error(), "nls_korkeusmalli") {
		t.Errorf("error does not name the failed source: %v", err)
	}
}

func TestResolveCancelledContext(t *testing.T) {
	var calls atomic.Int64
	srv := wcsTestServer(t, &calls, 1)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := testConfig()
	r := testResolver(t, cfg, []sources.Source{testFinlandSource(srv.URL)})
	if _, err := r.Resolve(ctx, finlandAOI(t), country.Detection{Primary: "FI"}); err == nil {
		t.Fatal("expected error with cancelled context")
	}
}

// tilingCompat pins the planner behaviour the resolver depends on.
func TestResolverPlannerContract(t *testing.T) {
	src := testFinlandSource("http://example.invalid")
	p := &tiling.Planner{OverlapM: 40}
	plan, err := p.Plan(src, 0, 0, 12000, 12000)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Cols != 2 || plan.Rows != 2 {
		t.Errorf("12 km against a 10 km cap plans %dx%d, want 2x2", plan.Cols, plan.Rows)
	}
}
