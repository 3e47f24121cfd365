// Package imagery fetches satellite orthophoto coverage for the area of
// interest from the Sentinel-2 cloudless WMS mosaic.
package imagery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nfnt/resize"

	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/config"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/fetch"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/geo"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/logging"
)

// DefaultEndpoint serves the EOX Sentinel-2 cloudless mosaic without
// authentication.
const DefaultEndpoint = "https://tiles.maps.eox.at/wms"

const layerName = "s2cloudless-2020"

// maxRequestPx keeps GetMap requests inside what the mosaic service
// accepts per axis.
const maxRequestPx = 4096

const maxImageBytes = 128 << 20

// Client fetches the satellite image. Transient failures retry with the
// same bounded backoff as elevation tiles.
type Client struct {
	HTTP        *http.Client
	Endpoint    string
	Retries     uint
	BackoffBase time.Duration
	Log         logging.Logger
}

// NewClient builds an imagery client from process configuration.
func NewClient(cfg *config.Config, log logging.Logger) *Client {
	if log == nil {
		log = logging.Noop()
	}
	return &Client{
		HTTP:        &http.Client{Timeout: cfg.FetchTimeout},
		Endpoint:    DefaultEndpoint,
		Retries:     cfg.FetchRetries,
		BackoffBase: 5 * time.Second,
		Log:         log,
	}
}

// Fetch downloads the Sentinel-2 mosaic over bbox and resizes it to
// widthPx x heightPx, the heightmap dimensions.
func (c *Client) Fetch(ctx context.Context, bbox geo.BBox, widthPx, heightPx int) (image.Image, error) {
	if widthPx <= 0 || heightPx <= 0 {
		return nil, fmt.Errorf("imagery: invalid target size %dx%d", widthPx, heightPx)
	}
	reqW, reqH := capSize(widthPx, heightPx)

	rawURL := c.mapURL(bbox, reqW, reqH)
	body, err := c.getWithRetry(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("imagery: decode response: %w", err)
	}
	if img.Bounds().Dx() != widthPx || img.Bounds().Dy() != heightPx {
		img = resize.Resize(uint(widthPx), uint(heightPx), img, resize.MitchellNetravali)
	}
	return img, nil
}

// capSize shrinks the requested raster proportionally until both axes
// fit the per-request pixel limit.
func capSize(w, h int) (int, int) {
	for w > maxRequestPx || h > maxRequestPx {
		w /= 2
		h /= 2
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// mapURL renders a WMS 1.1.1 GetMap request. The 1.1.1 axis order is
// lng/lat on EPSG:4326, which keeps the bbox unambiguous.
func (c *Client) mapURL(bbox geo.BBox, w, h int) string {
	q := url.Values{}
	q.Set("service", "WMS")
	q.Set("version", "1.1.1")
	q.Set("request", "GetMap")
	q.Set("layers", layerName)
	q.Set("styles", "")
	q.Set("srs", "EPSG:4326")
	q.Set("bbox", fmt.Sprintf("%f,%f,%f,%f", bbox.West, bbox.South, bbox.East, bbox.North))
	q.Set("width", fmt.Sprintf("%d", w))
	q.Set("height", fmt.Sprintf("%d", h))
	q.Set("format", "image/jpeg")
	return c.Endpoint + "?" + q.Encode()
}

func (c *Client) getWithRetry(ctx context.Context, rawURL string) ([]byte, error) {
	policy := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(c.BackoffBase),
			backoff.WithMaxElapsedTime(0),
		), uint64(c.Retries)), ctx)

	var body []byte
	op := func() error {
		b, err := c.getOnce(ctx, rawURL)
		if err != nil {
			var transient *fetch.TransientError
			if errors.As(err, &transient) {
				c.Log.Warn(ctx, "transient imagery failure, backing off",
					logging.String("url", fetch.SanitizeURL(rawURL)),
					logging.Err(err))
				return err
			}
			return backoff.Permanent(err)
		}
		body = b
		return nil
	}
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) getOnce(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &fetch.TransientError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, &fetch.TransientError{Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &fetch.TransientError{StatusCode: resp.StatusCode, Err: errors.New(resp.Status)}
	default:
		return nil, fmt.Errorf("imagery: unexpected status %s", resp.Status)
	}
}
