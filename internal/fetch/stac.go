package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/geo"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/raster"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/sources"
)

// stacItem is the subset of a STAC item we care about.
type stacItem struct {
	ID     string `json:"id"`
	BBox   []float64
	Assets map[string]struct {
		Href string `json:"href"`
		Type string `json:"type"`
	} `json:"assets"`
}

type stacSearchResponse struct {
	Features []stacItem `json:"features"`
}

// FetchSTAC queries a STAC catalog for items covering the WGS84 bbox
// and downloads every matching raster asset. The Swedish national
// elevation service is the only STAC source in the catalog.
func (c *Client) FetchSTAC(ctx context.Context, src sources.Source, bbox geo.BBox) ([]*raster.Grid, error) {
	if !src.HasCredentials(c.Creds) {
		return nil, &UnauthorizedError{SourceID: src.ID, MissingCredential: true}
	}

	poly := orb.Polygon{orb.Ring{
		{bbox.West, bbox.South}, {bbox.East, bbox.South},
		{bbox.East, bbox.North}, {bbox.West, bbox.North},
		{bbox.West, bbox.South},
	}}
	body, err := json.Marshal(map[string]any{
		"intersects": geojson.NewGeometry(poly),
		"limit":      50,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, src.Endpoint+"search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.Creds.LantmaterietUsername, c.Creds.LantmaterietPassword)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &UnauthorizedError{SourceID: src.ID, StatusCode: resp.StatusCode}
	case retryableStatus(resp.StatusCode):
		return nil, &TransientError{StatusCode: resp.StatusCode, Err: fmt.Errorf("stac search: %s", resp.Status)}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("stac search against %s: unexpected status %s", src.ID, resp.Status)
	}

	var search stacSearchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&search); err != nil {
		return nil, fmt.Errorf("decode stac search response: %w", err)
	}
	if len(search.Features) == 0 {
		return nil, fmt.Errorf("stac source %s has no items covering the area", src.ID)
	}

	// deterministic download order
	sort.Slice(search.Features, func(i, j int) bool {
		return search.Features[i].ID < search.Features[j].ID
	})

	var grids []*raster.Grid
	for _, item := range search.Features {
		href := rasterAssetHref(item)
		if href == "" {
			continue
		}
		grid, err := c.fetchSTACAsset(ctx, src, href)
		if err != nil {
			// one bad item abandons the source, same as a failed tile
			return nil, fmt.Errorf("stac item %s: %w", item.ID, err)
		}
		grids = append(grids, grid)
	}
	if len(grids) == 0 {
		return nil, fmt.Errorf("stac source %s returned no usable raster assets", src.ID)
	}
	return grids, nil
}

func rasterAssetHref(item stacItem) string {
	for _, key := range []string{"data", "elevation", "dem"} {
		if a, ok := item.Assets[key]; ok {
			return a.Href
		}
	}
	for _, a := range item.Assets {
		if a.Type == "image/tiff; application=geotiff" || a.Type == "image/tiff" {
			return a.Href
		}
	}
	return ""
}

func (c *Client) fetchSTACAsset(ctx context.Context, src sources.Source, href string) (*raster.Grid, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.Creds.LantmaterietUsername, c.Creds.LantmaterietPassword)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if retryableStatus(resp.StatusCode) {
			return nil, &TransientError{StatusCode: resp.StatusCode, Err: fmt.Errorf("asset download: %s", resp.Status)}
		}
		return nil, fmt.Errorf("asset download from %s: unexpected status %s", SanitizeURL(href), resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	if looksLikeTIFF(body) {
		return nil, fmt.Errorf("asset %s is a floating point geotiff, no decoder available", SanitizeURL(href))
	}
	return raster.ParseASCIIGrid(bytes.NewReader(body))
}
