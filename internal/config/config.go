// Package config provides configuration management for the scene chipper.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds the complete application configuration loaded from environment variables.
type Config struct {
	Catalog  CatalogConfig  `envPrefix:"CATALOG_"`
	Signer   SignerConfig   `envPrefix:"SIGNER_"`
	Search   SearchConfig   `envPrefix:"SEARCH_"`
	Extract  ExtractConfig  `envPrefix:"EXTRACT_"`
	Pipeline PipelineConfig `envPrefix:"PIPELINE_"`
	Output   OutputConfig   `envPrefix:"OUTPUT_"`
	Audit    AuditConfig    `envPrefix:"AUDIT_"`
	Server   ServerConfig   `envPrefix:"SERVER_"`
	Metrics  MetricsConfig  `envPrefix:"METRICS_"`
	Logging  LoggingConfig  `envPrefix:"LOG_"`

	// CollectionsDir holds JSON or YAML collection definitions. Empty uses the built-in set.
	CollectionsDir string `env:"COLLECTIONS_DIR" envDefault:""`
}

// CatalogConfig contains STAC API client configuration.
type CatalogConfig struct {
	BaseURL   string        `env:"BASE_URL" envDefault:"https://planetarycomputer.microsoft.com/api/stac/v1"`
	Timeout   time.Duration `env:"TIMEOUT" envDefault:"30s"`
	PageSize  int           `env:"PAGE_SIZE" envDefault:"100"`
	MaxPages  int           `env:"MAX_PAGES" envDefault:"10"`
	RateLimit float64       `env:"RATE_LIMIT" envDefault:"10"`
	RateBurst int           `env:"RATE_BURST" envDefault:"5"`
}

// SignerConfig contains asset URL signing configuration.
type SignerConfig struct {
	// Type is "token" for SAS token signing or "none".
	Type     string        `env:"TYPE" envDefault:"token"`
	TokenURL string        `env:"TOKEN_URL" envDefault:"https://planetarycomputer.microsoft.com/api/sas/v1/token"`
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

// SearchConfig contains the spatio-temporal search parameters.
type SearchConfig struct {
	RadiusMeters  float64  `env:"RADIUS_METERS" envDefault:"1000"`
	LookbackDays  int      `env:"LOOKBACK_DAYS" envDefault:"15"`
	Collections   []string `env:"COLLECTIONS" envDefault:"sentinel-2-l2a,landsat-c2-l2" envSeparator:","`
	Platforms     []string `env:"PLATFORMS" envDefault:"sentinel-2a,sentinel-2b,landsat-8" envSeparator:","`
	MaxCloudCover float64  `env:"MAX_CLOUD_COVER" envDefault:"100"`
}

// ExtractConfig contains pixel extraction configuration.
type ExtractConfig struct {
	RadiusMeters float64       `env:"RADIUS_METERS" envDefault:"1000"`
	ChipSize     int           `env:"CHIP_SIZE" envDefault:"256"`
	Timeout      time.Duration `env:"TIMEOUT" envDefault:"60s"`
	Resampling   string        `env:"RESAMPLING" envDefault:"bilinear"`
}

// PipelineConfig contains worker pool configuration.
type PipelineConfig struct {
	Workers int `env:"WORKERS" envDefault:"4"`
}

// OutputConfig contains output store configuration.
type OutputConfig struct {
	Dir string `env:"DIR" envDefault:"./chips"`
}

// AuditConfig contains run history configuration.
type AuditConfig struct {
	// DBPath is the SQLite database file. Empty disables the audit log.
	DBPath string `env:"DB_PATH" envDefault:""`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host            string        `env:"HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// MetricsConfig contains Prometheus export configuration for run and scrub.
type MetricsConfig struct {
	// PushgatewayURL is the Pushgateway base URL. Empty disables pushing.
	PushgatewayURL string        `env:"PUSHGATEWAY_URL" envDefault:""`
	Job            string        `env:"JOB" envDefault:"scene_chipper"`
	PushTimeout    time.Duration `env:"PUSH_TIMEOUT" envDefault:"10s"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// Load parses configuration from environment variables.
// It returns an error if required fields are missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}

	opts := env.Options{
		RequiredIfNoDef: true,
	}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	// Catalog
	if c.Catalog.BaseURL == "" {
		return fmt.Errorf("catalog base URL is required")
	}
	if c.Catalog.Timeout <= 0 {
		return fmt.Errorf("catalog timeout must be positive, got %s", c.Catalog.Timeout)
	}
	if c.Catalog.PageSize < 1 {
		return fmt.Errorf("catalog page size must be at least 1, got %d", c.Catalog.PageSize)
	}
	if c.Catalog.MaxPages < 1 {
		return fmt.Errorf("catalog max pages must be at least 1, got %d", c.Catalog.MaxPages)
	}

	// Signer
	switch c.Signer.Type {
	case "none":
	case "token":
		if c.Signer.TokenURL == "" {
			return fmt.Errorf("signer token URL is required for token signing")
		}
	default:
		return fmt.Errorf("signer type must be 'token' or 'none', got %q", c.Signer.Type)
	}

	// Search
	if c.Search.RadiusMeters <= 0 {
		return fmt.Errorf("search radius must be positive, got %v", c.Search.RadiusMeters)
	}
	if c.Search.LookbackDays < 0 {
		return fmt.Errorf("search lookback must not be negative, got %d", c.Search.LookbackDays)
	}
	if len(c.Search.Collections) == 0 {
		return fmt.Errorf("at least one search collection is required")
	}
	if c.Search.MaxCloudCover < 0 {
		return fmt.Errorf("max cloud cover must not be negative, got %v", c.Search.MaxCloudCover)
	}

	// Extract
	if c.Extract.RadiusMeters <= 0 {
		return fmt.Errorf("extract radius must be positive, got %v", c.Extract.RadiusMeters)
	}
	if c.Extract.ChipSize < 1 {
		return fmt.Errorf("chip size must be at least 1, got %d", c.Extract.ChipSize)
	}
	if c.Extract.Timeout <= 0 {
		return fmt.Errorf("extract timeout must be positive, got %s", c.Extract.Timeout)
	}

	// Pipeline and output
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline workers must be at least 1, got %d", c.Pipeline.Workers)
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output directory is required")
	}

	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive, got %s", c.Server.WriteTimeout)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server shutdown timeout must be positive, got %s", c.Server.ShutdownTimeout)
	}

	// Metrics
	if c.Metrics.PushgatewayURL != "" {
		if c.Metrics.Job == "" {
			return fmt.Errorf("metrics job is required when a pushgateway is configured")
		}
		if c.Metrics.PushTimeout <= 0 {
			return fmt.Errorf("metrics push timeout must be positive, got %s", c.Metrics.PushTimeout)
		}
	}

	// Logging
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, text", c.Logging.Format)
	}

	return nil
}

// Address returns the server listen address in the format "host:port".
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
