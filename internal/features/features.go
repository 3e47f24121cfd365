// Package features pulls the OpenStreetMap vector data a terrain needs:
// roads, water, forests, buildings and land use.
package features

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	overpass "github.com/serjvanilla/go-overpass"
	"golang.org/x/sync/errgroup"

	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/geo"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/logging"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/mirror"
)

// DefaultEndpoints is the Overpass mirror pool, ordered by capacity.
// The main overpass-api.de instance goes last since it is the most
// overloaded one.
var DefaultEndpoints = []string{
	"https://maps.mail.ru/osm/tools/overpass/api/interpreter",
	"https://overpass.private.coffee/api/interpreter",
	"https://overpass.kumi.systems/api/interpreter",
	"https://overpass-api.de/api/interpreter",
}

const queryTimeoutS = 180

// Category names one of the five feature groups.
type Category string

const (
	CategoryRoads     Category = "roads"
	CategoryWater     Category = "water"
	CategoryForests   Category = "forests"
	CategoryBuildings Category = "buildings"
	CategoryLandUse   Category = "land_use"
)

// Categories lists all feature groups in fetch order.
var Categories = []Category{CategoryRoads, CategoryWater, CategoryForests, CategoryBuildings, CategoryLandUse}

// Set holds the fetched features per category plus the categories that
// failed and came back empty. A degraded set still drives mask
// generation; the missing surfaces simply stay grass.
type Set struct {
	Collections map[Category]*geojson.FeatureCollection
	Degraded    []Category
}

// Features returns the collection for a category, never nil.
func (s *Set) Features(cat Category) *geojson.FeatureCollection {
	if fc, ok := s.Collections[cat]; ok && fc != nil {
		return fc
	}
	return geojson.NewFeatureCollection()
}

// Client fetches OSM data through the Overpass mirror pool.
type Client struct {
	pool    *mirror.Pool[*overpass.Result]
	log     logging.Logger
	mu      sync.Mutex
	clients map[string]*overpass.Client
	http    *http.Client
}

// NewClient builds a client over the given endpoints. Nil or empty
// endpoints fall back to the default pool.
func NewClient(endpoints []string, passes int, log logging.Logger) *Client {
	if len(endpoints) == 0 {
		endpoints = DefaultEndpoints
	}
	if log == nil {
		log = logging.Noop()
	}
	return &Client{
		pool:    mirror.New[*overpass.Result](endpoints, passes, log),
		log:     log,
		clients: make(map[string]*overpass.Client),
		http: &http.Client{
			Timeout:   (queryTimeoutS + 30) * time.Second,
			Transport: &rejectingTransport{base: http.DefaultTransport},
		},
	}
}

// QueryRejectedError is a deterministic rejection of the request
// itself, as opposed to an endpoint being down or overloaded.
type QueryRejectedError struct {
	Status int
}

func (e *QueryRejectedError) Error() string {
	return fmt.Sprintf("query rejected with status %d", e.Status)
}

// rejectingTransport surfaces deterministic 4xx responses as
// QueryRejectedError underneath the Overpass client, so a rejected
// query is not replayed against every mirror. Rate limits, request
// timeouts and server errors pass through and stay retryable.
type rejectingTransport struct {
	base http.RoundTripper
}

func (t *rejectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 &&
		resp.StatusCode != http.StatusTooManyRequests &&
		resp.StatusCode != http.StatusRequestTimeout {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, &QueryRejectedError{Status: resp.StatusCode}
	}
	return resp, nil
}

func (c *Client) clientFor(endpoint string) *overpass.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.clients[endpoint]; ok {
		return cl
	}
	cl := overpass.NewWithSettings(endpoint, 1, c.http)
	c.clients[endpoint] = &cl
	return &cl
}

// FetchAll runs the five category queries concurrently. A category
// whose query fails on every endpoint is recorded as degraded and
// returns no features instead of failing the whole job.
func (c *Client) FetchAll(ctx context.Context, bbox geo.BBox) (*Set, error) {
	set := &Set{Collections: make(map[Category]*geojson.FeatureCollection)}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	for _, cat := range Categories {
		cat := cat
		g.Go(func() error {
			fc, err := c.Fetch(ctx, cat, bbox)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.log.Warn(ctx, "feature category failed on all endpoints, continuing without it",
					logging.String("category", string(cat)),
					logging.Err(err))
				set.Degraded = append(set.Degraded, cat)
				set.Collections[cat] = geojson.NewFeatureCollection()
				return nil
			}
			set.Collections[cat] = fc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return set, nil
}

// Fetch runs one category query through the mirror pool.
func (c *Client) Fetch(ctx context.Context, cat Category, bbox geo.BBox) (*geojson.FeatureCollection, error) {
	query, err := buildQuery(cat, bbox)
	if err != nil {
		return nil, err
	}

	result, err := c.pool.Do(ctx, func(ctx context.Context, endpoint string) (*overpass.Result, error) {
		res, err := c.clientFor(endpoint).Query(query)
		if err != nil {
			var rejected *QueryRejectedError
			if errors.As(err, &rejected) {
				return nil, mirror.Permanent(err)
			}
			return nil, err
		}
		return &res, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", cat, err)
	}
	return convert(cat, result), nil
}

// buildQuery renders the Overpass QL for a category. The tag filters
// match what the surface classifier understands.
func buildQuery(cat Category, bbox geo.BBox) (string, error) {
	b := fmt.Sprintf("%f,%f,%f,%f", bbox.South, bbox.West, bbox.North, bbox.East)

	var body string
	switch cat {
	case CategoryRoads:
		body = `way["highway"~"^(motorway|motorway_link|trunk|trunk_link|primary|primary_link|secondary|secondary_link|tertiary|tertiary_link|residential|unclassified|service|track|path|footway|cycleway|bridleway|living_street)$"];`
	case CategoryWater:
		body = `way["natural"="water"];
relation["natural"="water"];
way["waterway"~"^(river|stream|canal|ditch|drain)$"];
way["natural"="coastline"];
way["natural"="wetland"];
relation["natural"="wetland"];`
	case CategoryForests:
		body = `way["natural"="wood"];
relation["natural"="wood"];
way["landuse"="forest"];
relation["landuse"="forest"];
way["natural"="scrub"];
way["natural"="heath"];
way["natural"="tree_row"];`
	case CategoryBuildings:
		body = `way["building"];
relation["building"];`
	case CategoryLandUse:
		body = `way["landuse"~"^(farmland|meadow|orchard|vineyard|residential|industrial|commercial|retail|quarry|cemetery|allotments|recreation_ground|military|farmyard)$"];
relation["landuse"~"^(farmland|meadow|orchard|vineyard|residential|industrial|commercial|retail|quarry|cemetery|allotments|recreation_ground|military|farmyard)$"];
way["leisure"~"^(park|garden|pitch|playground|golf_course)$"];
way["natural"~"^(beach|sand|bare_rock|scree|grassland|fell)$"];`
	default:
		return "", fmt.Errorf("unknown feature category %q", cat)
	}

	return fmt.Sprintf("[out:json][timeout:%d][bbox:%s];\n(\n%s\n);\nout body;\n>;\nout skel qt;\n", queryTimeoutS, b, body), nil
}

// polygonal reports whether closed ways of a category describe areas
// rather than rings of a line feature.
func polygonal(cat Category) bool {
	return cat != CategoryRoads
}

// convert turns an Overpass result into GeoJSON features. Ways become
// LineStrings, closed ways of area categories become Polygons, and
// relation members contribute their ways individually.
func convert(cat Category, result *overpass.Result) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	seen := make(map[int64]bool)

	addWay := func(way *overpass.Way, extraTags map[string]string) {
		if way == nil || seen[way.ID] || len(way.Nodes) < 2 {
			return
		}
		seen[way.ID] = true

		line := make(orb.LineString, 0, len(way.Nodes))
		for _, n := range way.Nodes {
			if n == nil {
				continue
			}
			line = append(line, orb.Point{n.Lon, n.Lat})
		}
		if len(line) < 2 {
			return
		}

		var f *geojson.Feature
		closed := line[0] == line[len(line)-1]
		if closed && polygonal(cat) && len(line) >= 4 {
			f = geojson.NewFeature(orb.Polygon{orb.Ring(line)})
		} else {
			f = geojson.NewFeature(line)
		}
		f.ID = way.ID
		for k, v := range extraTags {
			f.Properties[k] = v
		}
		for k, v := range way.Tags {
			f.Properties[k] = v
		}
		f.Properties["osm_id"] = way.ID
		fc.Append(f)
	}

	for _, way := range result.Ways {
		// skip bare geometry ways pulled in by relation expansion
		if len(way.Tags) == 0 {
			continue
		}
		addWay(way, nil)
	}
	for _, rel := range result.Relations {
		for _, member := range rel.Members {
			if member.Way != nil {
				addWay(member.Way, rel.Tags)
			}
		}
	}
	return fc
}
