// Package sources is the catalog of elevation data providers: national
// WCS and STAC services plus the OpenTopography global fallbacks.
package sources

import (
	"sort"

	"github.com/tubalainen/arma-reforger-base-map-generator-ng/internal/config"
)

// Kind distinguishes the request protocol a source speaks.
type Kind string

const (
	KindWCS100   Kind = "wcs-1.0.0"
	KindWCS201   Kind = "wcs-2.0.1"
	KindSTAC     Kind = "stac"
	KindOpenTopo Kind = "opentopography"
)

// AuthType is how a source authenticates requests.
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthToken  AuthType = "token"   // token query parameter
	AuthAPIKey AuthType = "api_key" // api-key query parameter
	AuthBasic  AuthType = "basic"   // HTTP basic auth
)

// Source describes one elevation provider. National sources carry a
// projected CRS and per-request limits; global sources cover the whole
// planet at coarser resolution.
type Source struct {
	ID          string
	Name        string
	Country     string // empty for global sources
	Kind        Kind
	Endpoint    string
	CoverageID  string // WCS coverage / OpenTopography demtype
	NativeCRS   string
	ResolutionM float64
	Auth        AuthType

	// MaxRequestPx caps the raster width/height of a single request.
	MaxRequestPx int
	// MaxAreaM caps the ground extent per axis of a single request, in
	// metres. Zero means the pixel cap is the only limit.
	MaxAreaM float64
	// MaxLat bounds coverage for global datasets with limited latitude
	// range. Zero means no bound.
	MaxLat float64

	// Format is the raster format asked of the server. Esri ASCII grid
	// keeps the decode path dependency-free on every source that can
	// serve it.
	Format string
}

// HasCredentials reports whether creds satisfy the source's auth
// requirement. Sources missing credentials are skipped without a
// network round trip.
func (s Source) HasCredentials(creds config.Credentials) bool {
	switch s.Auth {
	case AuthNone:
		return true
	case AuthToken:
		return creds.DataforsyningenToken != ""
	case AuthAPIKey:
		switch s.Kind {
		case KindOpenTopo:
			return creds.OpenTopographyAPIKey != ""
		default:
			return creds.NLSFinlandAPIKey != ""
		}
	case AuthBasic:
		return creds.LantmaterietUsername != "" && creds.LantmaterietPassword != ""
	}
	return false
}

const openTopoEndpoint = "https://portal.opentopography.org/API/globaldem"

var national = map[string]Source{
	"NO": {
		ID: "geonorge_dtm", Name: "Norway Geonorge DTM", Country: "NO",
		Kind: KindWCS100, Endpoint: "https://wcs.geonorge.no/skwms1/wcs.hoyde-dtm-nhm-25833",
		CoverageID: "NHM_DTM_25833", NativeCRS: "epsg:25833", ResolutionM: 1.0,
		Auth: AuthNone, MaxRequestPx: 4096, Format: "AAIGrid",
	},
	"EE": {
		ID: "maaamet_dtm", Name: "Estonia Maa-amet DTM", Country: "EE",
		Kind: KindWCS201, Endpoint: "https://teenus.maaamet.ee/ows/wcs-dtm",
		CoverageID: "dtm-1", NativeCRS: "epsg:3301", ResolutionM: 1.0,
		Auth: AuthNone, MaxRequestPx: 4096, Format: "image/x-aaigrid",
	},
	"FI": {
		ID: "nls_korkeusmalli", Name: "Finland NLS elevation model", Country: "FI",
		Kind: KindWCS201, Endpoint: "https://avoin-karttakuva.maanmittauslaitos.fi/ortokuvat-ja-korkeusmallit/wcs/v2",
		CoverageID: "korkeusmalli_2m", NativeCRS: "epsg:3067", ResolutionM: 2.0,
		Auth: AuthAPIKey, MaxRequestPx: 5000, MaxAreaM: 10000, Format: "image/x-aaigrid",
	},
	"DK": {
		ID: "dataforsyningen_dhm", Name: "Denmark DHM terrain", Country: "DK",
		Kind: KindWCS100, Endpoint: "https://api.dataforsyningen.dk/dhm_wcs_DAF",
		CoverageID: "dhm_terraen", NativeCRS: "epsg:25832", ResolutionM: 0.4,
		Auth: AuthToken, MaxRequestPx: 8192, Format: "AAIGrid",
	},
	"SE": {
		ID: "lantmateriet_hojd", Name: "Sweden Lantmateriet elevation", Country: "SE",
		Kind: KindSTAC, Endpoint: "https://api.lantmateriet.se/stac-hojd/v1/",
		NativeCRS: "epsg:3006", ResolutionM: 1.0,
		Auth: AuthBasic, MaxRequestPx: 8192,
	},
	"PL": {
		ID: "geoportal_nmt", Name: "Poland Geoportal DTM", Country: "PL",
		Kind: KindWCS201, Endpoint: "https://mapy.geoportal.gov.pl/wss/service/PZGIK/NMT/GRID1/WCS/DigitalTerrainModelFormatTIFF",
		CoverageID: "DTM_PL-KRON86-NH_TIFF", NativeCRS: "epsg:2180", ResolutionM: 1.0,
		Auth: AuthNone, MaxRequestPx: 4096, MaxAreaM: 5000, Format: "image/x-aaigrid",
	},
}

// global fallbacks, in the order they are tried
var global = []Source{
	{
		ID: "opentopo_cop30", Name: "Copernicus GLO-30", Kind: KindOpenTopo,
		Endpoint: openTopoEndpoint, CoverageID: "COP30", NativeCRS: "epsg:4326",
		ResolutionM: 30, Auth: AuthAPIKey, MaxRequestPx: 8192, Format: "AAIGrid",
	},
	{
		ID: "opentopo_srtm", Name: "SRTM GL1", Kind: KindOpenTopo,
		Endpoint: openTopoEndpoint, CoverageID: "SRTMGL1", NativeCRS: "epsg:4326",
		ResolutionM: 30, Auth: AuthAPIKey, MaxRequestPx: 8192, MaxLat: 60, Format: "AAIGrid",
	},
	{
		ID: "opentopo_aw3d30", Name: "ALOS World 3D", Kind: KindOpenTopo,
		Endpoint: openTopoEndpoint, CoverageID: "AW3D30", NativeCRS: "epsg:4326",
		ResolutionM: 30, Auth: AuthAPIKey, MaxRequestPx: 8192, Format: "AAIGrid",
	},
}

// All returns every catalog entry, national sources sorted by country
// first and globals last.
func All() []Source {
	codes := make([]string, 0, len(national))
	for code := range national {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	out := make([]Source, 0, len(national)+len(global))
	for _, code := range codes {
		out = append(out, national[code])
	}
	return append(out, global...)
}

// ForCountry returns the national source for a country code, if one
// exists.
func ForCountry(code string) (Source, bool) {
	s, ok := national[code]
	return s, ok
}

// GlobalFallbacks returns the global sources applicable at the given
// centre latitude, in preference order.
func GlobalFallbacks(centerLat float64) []Source {
	out := make([]Source, 0, len(global))
	for _, s := range global {
		if s.MaxLat > 0 && (centerLat > s.MaxLat || centerLat < -s.MaxLat) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Chain assembles the full fallback chain for a set of detected
// countries: each country's national source (primary country first,
// then the rest in the given order), followed by the global fallbacks.
func Chain(primary string, codes []string, centerLat float64) []Source {
	var chain []Source
	if s, ok := national[primary]; ok {
		chain = append(chain, s)
	}
	for _, code := range codes {
		if code == primary {
			continue
		}
		if s, ok := national[code]; ok {
			chain = append(chain, s)
		}
	}
	return append(chain, GlobalFallbacks(centerLat)...)
}
