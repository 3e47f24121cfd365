// Package config holds the read-only process configuration.
//
// Everything here is loaded once at startup and never mutated afterwards,
// so concurrent reads from pipeline workers are safe without locking.
package config

import (
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Credentials holds per-source API credentials read from the environment.
// Absence of a credential is not an error: sources requiring it are skipped
// by the elevation resolver without a network call.
type Credentials struct {
	OpenTopographyAPIKey string
	NLSFinlandAPIKey     string
	DataforsyningenToken string
	LantmaterietUsername string
	LantmaterietPassword string
}

// Config is the full process configuration.
type Config struct {
	// MaxExtentM is the maximum AreaOfInterest extent per axis in metres.
	MaxExtentM float64
	// GridCellSizeM is the working grid resolution in metres.
	GridCellSizeM float64
	// SmoothingSigma is the final Gaussian smoothing sigma in cells.
	SmoothingSigma float64
	// TileOverlapM is the overlap margin between planned tiles in metres.
	TileOverlapM float64

	// FetchTimeout applies per network call, not per job.
	FetchTimeout time.Duration
	// FetchRetries bounds per-tile retry attempts for transient failures.
	FetchRetries uint
	// MirrorPasses is the number of full passes over a mirror pool.
	MirrorPasses int

	// IOWorkers bounds concurrent network fetches per job.
	IOWorkers int
	// CPUWorkers bounds concurrent raster operations per job.
	CPUWorkers int

	Credentials Credentials

	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment with MAPGEN_ prefixed
// variables (MAPGEN_MAX_EXTENT_M, MAPGEN_IO_WORKERS, ...). Credential
// variables keep their historical unprefixed names.
func Load() *Config {
	v := viper.New()
	v.SetEnvPrefix("MAPGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("max_extent_m", 20000.0)
	v.SetDefault("grid_cell_size_m", 2.0)
	v.SetDefault("smoothing_sigma", 0.5)
	v.SetDefault("tile_overlap_m", 40.0)
	v.SetDefault("fetch_timeout", "120s")
	v.SetDefault("fetch_retries", 3)
	v.SetDefault("mirror_passes", 2)
	v.SetDefault("io_workers", 8)
	v.SetDefault("cpu_workers", runtime.NumCPU())
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	creds := viper.New()
	creds.AutomaticEnv()

	return &Config{
		MaxExtentM:     v.GetFloat64("max_extent_m"),
		GridCellSizeM:  v.GetFloat64("grid_cell_size_m"),
		SmoothingSigma: v.GetFloat64("smoothing_sigma"),
		TileOverlapM:   v.GetFloat64("tile_overlap_m"),
		FetchTimeout:   v.GetDuration("fetch_timeout"),
		FetchRetries:   uint(v.GetInt("fetch_retries")),
		MirrorPasses:   v.GetInt("mirror_passes"),
		IOWorkers:      v.GetInt("io_workers"),
		CPUWorkers:     v.GetInt("cpu_workers"),
		Credentials: Credentials{
			OpenTopographyAPIKey: creds.GetString("OPENTOPOGRAPHY_API_KEY"),
			NLSFinlandAPIKey:     creds.GetString("NLS_FINLAND_API_KEY"),
			DataforsyningenToken: creds.GetString("DATAFORSYNINGEN_TOKEN"),
			LantmaterietUsername: creds.GetString("LANTMATERIET_USERNAME"),
			LantmaterietPassword: creds.GetString("LANTMATERIET_PASSWORD"),
		},
		LogLevel:  v.GetString("log_level"),
		LogFormat: v.GetString("log_format"),
	}
}
