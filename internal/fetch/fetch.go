// Package fetch downloads elevation tiles from WCS and OpenTopography
// endpoints with typed errors, bounded retries and request metrics.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/config"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/logging"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/raster"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/sources"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/tiling"
)

// response bodies are elevation rasters; cap reads well above any
// plausible tile so a misbehaving server cannot exhaust memory
const maxBodyBytes = 512 << 20

// Client fetches elevation tiles. Transient failures retry with
// exponential backoff up to Retries attempts; every other failure
// returns immediately with a typed error.
type Client struct {
	HTTP        *http.Client
	Retries     uint
	BackoffBase time.Duration
	Creds       config.Credentials
	Log         logging.Logger
}

// NewClient builds a tile client from process configuration.
func NewClient(cfg *config.Config, log logging.Logger) *Client {
	if log == nil {
		log = logging.Noop()
	}
	return &Client{
		HTTP:        &http.Client{Timeout: cfg.FetchTimeout},
		Retries:     cfg.FetchRetries,
		BackoffBase: 5 * time.Second,
		Creds:       cfg.Credentials,
		Log:         log,
	}
}

// FetchTile downloads and decodes one tile from src. Sources that
// require credentials we do not hold fail up front with an
// UnauthorizedError, before any network traffic.
func (c *Client) FetchTile(ctx context.Context, src sources.Source, tile tiling.Tile) (*raster.Grid, error) {
	if !src.HasCredentials(c.Creds) {
		return nil, &UnauthorizedError{SourceID: src.ID, MissingCredential: true}
	}

	rawURL, err := tileURL(src, tile, c.Creds)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	body, err := c.getWithRetry(ctx, src, rawURL)
	tileRequestDuration.WithLabelValues(src.ID).Observe(time.Since(start).Seconds())
	if err != nil {
		tileRequests.WithLabelValues(src.ID, "error").Inc()
		return nil, err
	}
	tileRequests.WithLabelValues(src.ID, "ok").Inc()
	tileBytes.WithLabelValues(src.ID).Add(float64(len(body)))

	grid, err := c.decode(src, tile, body)
	if err != nil {
		return nil, fmt.Errorf("source %s tile %d: %w", src.ID, tile.Index, err)
	}
	return grid, nil
}

func (c *Client) getWithRetry(ctx context.Context, src sources.Source, rawURL string) ([]byte, error) {
	policy := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(c.BackoffBase),
			backoff.WithMaxElapsedTime(0),
		), uint64(c.Retries)), ctx)

	var body []byte
	op := func() error {
		b, err := c.getOnce(ctx, src, rawURL)
		if err != nil {
			var transient *TransientError
			if errors.As(err, &transient) {
				c.Log.Warn(ctx, "transient fetch failure, backing off",
					logging.String("source", src.ID),
					logging.String("url", SanitizeURL(rawURL)),
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

func (c *Client) getOnce(ctx context.Context, src sources.Source, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if src.Auth == sources.AuthBasic {
		req.SetBasicAuth(c.Creds.LantmaterietUsername, c.Creds.LantmaterietPassword)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransientError{Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &UnauthorizedError{SourceID: src.ID, StatusCode: resp.StatusCode}
	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		return nil, &AreaTooLargeError{SourceID: src.ID, Detail: resp.Status}
	case retryableStatus(resp.StatusCode):
		return nil, &TransientError{StatusCode: resp.StatusCode, Err: errors.New(resp.Status)}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("source %s: unexpected status %s", src.ID, resp.Status)
	}

	// some WCS servers report errors as XML with status 200
	if looksLikeServiceException(body) {
		if exceptionIndicatesAreaTooLarge(body) {
			return nil, &AreaTooLargeError{SourceID: src.ID, Detail: exceptionSummary(body)}
		}
		return nil, fmt.Errorf("source %s: service exception: %s", src.ID, exceptionSummary(body))
	}

	return body, nil
}

func (c *Client) decode(src sources.Source, tile tiling.Tile, body []byte) (*raster.Grid, error) {
	if looksLikeTIFF(body) {
		return raster.ParseTIFFGrid(bytes.NewReader(body), tile.MinX, tile.MinY, src.ResolutionM)
	}
	// both the national AAIGrid responses and OpenTopography's are
	// georeferenced by their own header; global tiles stay in degrees
	// and get projected during mosaicking
	return raster.ParseASCIIGrid(bytes.NewReader(body))
}

func looksLikeTIFF(body []byte) bool {
	return len(body) >= 4 &&
		((body[0] == 'I' && body[1] == 'I' && body[2] == 42) ||
			(body[0] == 'M' && body[1] == 'M' && body[3] == 42))
}

func exceptionSummary(body []byte) string {
	s := string(body)
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
