package fetch

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/config"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/sources"
	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/tiling"
)

// epsgCode turns "epsg:3067" into "3067".
func epsgCode(crs string) string {
	if i := strings.IndexByte(crs, ':'); i >= 0 {
		return crs[i+1:]
	}
	return crs
}

// tileURL builds the GET URL for one tile against one source.
func tileURL(src sources.Source, tile tiling.Tile, creds config.Credentials) (string, error) {
	switch src.Kind {
	case sources.KindWCS100:
		return wcs100URL(src, tile, creds), nil
	case sources.KindWCS201:
		return wcs201URL(src, tile, creds), nil
	case sources.KindOpenTopo:
		return openTopoURL(src, tile, creds), nil
	}
	return "", fmt.Errorf("source %s: no URL builder for kind %s", src.ID, src.Kind)
}

func wcs100URL(src sources.Source, tile tiling.Tile, creds config.Credentials) string {
	q := url.Values{}
	q.Set("SERVICE", "WCS")
	q.Set("VERSION", "1.0.0")
	q.Set("REQUEST", "GetCoverage")
	q.Set("COVERAGE", src.CoverageID)
	q.Set("CRS", "EPSG:"+epsgCode(src.NativeCRS))
	q.Set("BBOX", fmt.Sprintf("%f,%f,%f,%f", tile.MinX, tile.MinY, tile.MaxX, tile.MaxY))
	q.Set("WIDTH", fmt.Sprintf("%d", tile.WidthPx))
	q.Set("HEIGHT", fmt.Sprintf("%d", tile.HeightPx))
	q.Set("FORMAT", src.Format)
	if src.Auth == sources.AuthToken && creds.DataforsyningenToken != "" {
		q.Set("token", creds.DataforsyningenToken)
	}
	return src.Endpoint + "?" + q.Encode()
}

func wcs201URL(src sources.Source, tile tiling.Tile, creds config.Credentials) string {
	q := url.Values{}
	q.Set("SERVICE", "WCS")
	q.Set("VERSION", "2.0.1")
	q.Set("REQUEST", "GetCoverage")
	q.Set("COVERAGEID", src.CoverageID)
	q.Set("FORMAT", src.Format)
	q.Set("SUBSETTINGCRS", "http://www.opengis.net/def/crs/EPSG/0/"+epsgCode(src.NativeCRS))
	q.Add("SUBSET", fmt.Sprintf("E(%f,%f)", tile.MinX, tile.MaxX))
	q.Add("SUBSET", fmt.Sprintf("N(%f,%f)", tile.MinY, tile.MaxY))
	q.Add("SCALESIZE", fmt.Sprintf("E(%d),N(%d)", tile.WidthPx, tile.HeightPx))
	if src.Auth == sources.AuthAPIKey && creds.NLSFinlandAPIKey != "" {
		q.Set("api-key", creds.NLSFinlandAPIKey)
	}
	return src.Endpoint + "?" + q.Encode()
}

// openTopoURL builds a global DEM request. OpenTopography only speaks
// WGS84, so the tile coordinates are degrees here.
func openTopoURL(src sources.Source, tile tiling.Tile, creds config.Credentials) string {
	q := url.Values{}
	q.Set("demtype", src.CoverageID)
	q.Set("west", fmt.Sprintf("%f", tile.MinX))
	q.Set("south", fmt.Sprintf("%f", tile.MinY))
	q.Set("east", fmt.Sprintf("%f", tile.MaxX))
	q.Set("north", fmt.Sprintf("%f", tile.MaxY))
	q.Set("outputFormat", "AAIGrid")
	q.Set("API_Key", creds.OpenTopographyAPIKey)
	return src.Endpoint + "?" + q.Encode()
}
