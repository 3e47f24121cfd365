package features

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	overpass "github.com/serjvanilla/go-overpass"

	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/geo"
)

var testBBox = geo.BBox{West: 25.0, South: 62.0, East: 25.2, North: 62.1}

func TestBuildQuery(t *testing.T) {
	for _, cat := range Categories {
		q, err := buildQuery(cat, testBBox)
		if err != nil {
			t.Fatalf("buildQuery(%s): %v", cat, err)
		}
		if !strings.Contains(q, "[out:json]") {
			t.Errorf("%s: missing output format: %q", cat, q)
		}
		// Overpass bbox order is south,west,north,east.
		if !strings.Contains(q, "[bbox:62.000000,25.000000,62.100000,25.200000]") {
			t.Errorf("%s: wrong bbox clause: %q", cat, q)
		}
		if !strings.Contains(q, "out skel qt;") {
			t.Errorf("%s: missing recursion tail: %q", cat, q)
		}
	}

	q, _ := buildQuery(CategoryRoads, testBBox)
	if !strings.Contains(q, `way["highway"~`) {
		t.Errorf("roads query missing highway filter: %q", q)
	}
	q, _ = buildQuery(CategoryWater, testBBox)
	if !strings.Contains(q, `way["waterway"~"^(river|stream|canal|ditch|drain)$"];`) {
		t.Errorf("water query missing waterway filter: %q", q)
	}

	if _, err := buildQuery(Category("volcanoes"), testBBox); err == nil {
		t.Fatal("expected error for unknown category")
	}
}

func node(id int64, lon, lat float64) *overpass.Node {
	n := &overpass.Node{Lon: lon, Lat: lat}
	n.ID = id
	return n
}

func way(id int64, tags map[string]string, nodes ...*overpass.Node) *overpass.Way {
	w := &overpass.Way{Nodes: nodes}
	w.ID = id
	w.Tags = tags
	return w
}

func TestConvertWays(t *testing.T) {
	road := way(10, map[string]string{"highway": "track"},
		node(1, 25.00, 62.00), node(2, 25.01, 62.00))
	bare := way(11, nil, node(1, 25.00, 62.00), node(2, 25.01, 62.00))

	res := &overpass.Result{Ways: map[int64]*overpass.Way{10: road, 11: bare}}
	fc := convert(CategoryRoads, res)

	if len(fc.Features) != 1 {
		t.Fatalf("got %d features, want 1 (bare ways skipped)", len(fc.Features))
	}
	f := fc.Features[0]
	line, ok := f.Geometry.(orb.LineString)
	if !ok {
		t.Fatalf("geometry = %T, want LineString", f.Geometry)
	}
	if len(line) != 2 || line[0] != (orb.Point{25.00, 62.00}) {
		t.Errorf("unexpected geometry %v", line)
	}
	if f.Properties["highway"] != "track" {
		t.Errorf("highway property = %v", f.Properties["highway"])
	}
	if f.Properties["osm_id"] != int64(10) {
		t.Errorf("osm_id property = %v", f.Properties["osm_id"])
	}
}

func TestConvertClosedWays(t *testing.T) {
	ring := []*overpass.Node{
		node(1, 25.00, 62.00), node(2, 25.01, 62.00),
		node(3, 25.01, 62.01), node(1, 25.00, 62.00),
	}
	pond := way(20, map[string]string{"natural": "water"}, ring...)
	loop := way(21, map[string]string{"highway": "residential"}, ring...)

	fc := convert(CategoryWater, &overpass.Result{Ways: map[int64]*overpass.Way{20: pond}})
	if len(fc.Features) != 1 {
		t.Fatalf("got %d water features, want 1", len(fc.Features))
	}
	if _, ok := fc.Features[0].Geometry.(orb.Polygon); !ok {
		t.Errorf("closed water way should be a Polygon, got %T", fc.Features[0].Geometry)
	}

	// A closed road stays a line, roundabouts are not areas.
	fc = convert(CategoryRoads, &overpass.Result{Ways: map[int64]*overpass.Way{21: loop}})
	if _, ok := fc.Features[0].Geometry.(orb.LineString); !ok {
		t.Errorf("closed road should stay a LineString, got %T", fc.Features[0].Geometry)
	}
}

func TestConvertRelations(t *testing.T) {
	member := way(30, nil,
		node(1, 25.00, 62.00), node(2, 25.01, 62.00),
		node(3, 25.01, 62.01), node(1, 25.00, 62.00))
	tagged := way(31, map[string]string{"natural": "wood"},
		node(4, 25.02, 62.00), node(5, 25.03, 62.00))

	rel := &overpass.Relation{
		Members: []overpass.RelationMember{
			{Way: member},
			{Way: tagged}, // already emitted from Ways, must not duplicate
		},
	}
	rel.ID = 100
	rel.Tags = map[string]string{"landuse": "forest"}

	res := &overpass.Result{
		Ways:      map[int64]*overpass.Way{30: member, 31: tagged},
		Relations: map[int64]*overpass.Relation{100: rel},
	}
	fc := convert(CategoryForests, res)

	if len(fc.Features) != 2 {
		t.Fatalf("got %d features, want 2", len(fc.Features))
	}
	var fromRel *geojson.Feature
	for _, f := range fc.Features {
		if f.Properties["osm_id"] == int64(30) {
			fromRel = f
		}
	}
	if fromRel == nil {
		t.Fatal("relation member way missing from output")
	}
	if fromRel.Properties["landuse"] != "forest" {
		t.Errorf("member way did not inherit relation tags: %v", fromRel.Properties)
	}
	if _, ok := fromRel.Geometry.(orb.Polygon); !ok {
		t.Errorf("closed forest member should be a Polygon, got %T", fromRel.Geometry)
	}
}

func TestSetFeaturesNeverNil(t *testing.T) {
	s := &Set{Collections: map[Category]*geojson.FeatureCollection{}}
	fc := s.Features(CategoryWater)
	if fc == nil || len(fc.Features) != 0 {
		t.Fatalf("Features on missing category = %v, want empty collection", fc)
	}
}

func TestRejectingTransportClassifiesStatuses(t *testing.T) {
	status := new(atomic.Int32)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overpass says no", int(status.Load()))
	}))
	defer srv.Close()

	client := &http.Client{Transport: &rejectingTransport{base: http.DefaultTransport}}

	// overload responses pass through untouched so the pool retries them
	for _, s := range []int{http.StatusTooManyRequests, http.StatusBadGateway, http.StatusGatewayTimeout} {
		status.Store(int32(s))
		resp, err := client.Get(srv.URL)
		if err != nil {
			t.Fatalf("status %d: %v", s, err)
		}
		resp.Body.Close()
		if resp.StatusCode != s {
			t.Errorf("status %d came back as %d", s, resp.StatusCode)
		}
	}

	// a deterministic rejection becomes a typed error
	status.Store(http.StatusBadRequest)
	_, err := client.Get(srv.URL)
	var rejected *QueryRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected QueryRejectedError, got %v", err)
	}
	if rejected.Status != http.StatusBadRequest {
		t.Errorf("rejected status = %d, want 400", rejected.Status)
	}
}

func TestFetchStopsOnRejectedQuery(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "static error: bad query", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient([]string{srv.URL, srv.URL}, 2, nil)
	_, err := c.Fetch(context.Background(), CategoryRoads, testBBox)
	if err == nil {
		t.Fatal("expected error for a rejected query")
	}
	var rejected *QueryRejectedError
	if !errors.As(err, &rejected) || rejected.Status != http.StatusBadRequest {
		t.Fatalf("error does not carry the rejection: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("rejected query hit the pool %d times, want 1", got)
	}
}
