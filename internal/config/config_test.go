package config

import (
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Catalog.BaseURL != "https://planetarycomputer.microsoft.com/api/stac/v1" {
		t.Errorf("expected default catalog URL, got %s", cfg.Catalog.BaseURL)
	}
	if cfg.Catalog.Timeout != 30*time.Second {
		t.Errorf("expected default catalog timeout 30s, got %s", cfg.Catalog.Timeout)
	}
	if cfg.Search.RadiusMeters != 1000 || cfg.Extract.RadiusMeters != 1000 {
		t.Errorf("expected default radii 1000, got %v and %v", cfg.Search.RadiusMeters, cfg.Extract.RadiusMeters)
	}
	if cfg.Search.LookbackDays != 15 {
		t.Errorf("expected default lookback 15, got %d", cfg.Search.LookbackDays)
	}
	if len(cfg.Search.Collections) != 2 || cfg.Search.Collections[0] != "sentinel-2-l2a" || cfg.Search.Collections[1] != "landsat-c2-l2" {
		t.Errorf("unexpected default collections %v", cfg.Search.Collections)
	}
	if len(cfg.Search.Platforms) != 3 {
		t.Errorf("unexpected default platforms %v", cfg.Search.Platforms)
	}
	if cfg.Search.MaxCloudCover != 100 {
		t.Errorf("expected default max cloud cover 100, got %v", cfg.Search.MaxCloudCover)
	}
	if cfg.Extract.ChipSize != 256 {
		t.Errorf("expected default chip size 256, got %d", cfg.Extract.ChipSize)
	}
	if cfg.Pipeline.Workers != 4 {
		t.Errorf("expected default workers 4, got %d", cfg.Pipeline.Workers)
	}
	if cfg.Audit.DBPath != "" {
		t.Errorf("audit should be disabled by default, got %q", cfg.Audit.DBPath)
	}
	if cfg.Signer.Type != "token" {
		t.Errorf("expected default signer token, got %s", cfg.Signer.Type)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default log level info, got %s", cfg.Logging.Level)
	}
	if cfg.Metrics.PushgatewayURL != "" || cfg.Metrics.Job != "scene_chipper" {
		t.Errorf("expected pushing disabled with job scene_chipper, got %+v", cfg.Metrics)
	}
}

func TestLoadWithCustomValues(t *testing.T) {
	t.Setenv("CATALOG_BASE_URL", "http://localhost:9999")
	t.Setenv("CATALOG_TIMEOUT", "5s")
	t.Setenv("SEARCH_RADIUS_METERS", "2500")
	t.Setenv("SEARCH_LOOKBACK_DAYS", "0")
	t.Setenv("SEARCH_COLLECTIONS", "sentinel-2-l2a")
	t.Setenv("SEARCH_PLATFORMS", "sentinel-2a,sentinel-2b")
	t.Setenv("EXTRACT_RADIUS_METERS", "500")
	t.Setenv("EXTRACT_CHIP_SIZE", "128")
	t.Setenv("PIPELINE_WORKERS", "16")
	t.Setenv("OUTPUT_DIR", "/tmp/chips")
	t.Setenv("AUDIT_DB_PATH", "/tmp/audit.db")
	t.Setenv("SIGNER_TYPE", "none")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Catalog.BaseURL != "http://localhost:9999" || cfg.Catalog.Timeout != 5*time.Second {
		t.Errorf("unexpected catalog config %+v", cfg.Catalog)
	}
	if cfg.Search.RadiusMeters != 2500 || cfg.Search.LookbackDays != 0 {
		t.Errorf("unexpected search config %+v", cfg.Search)
	}
	if len(cfg.Search.Collections) != 1 || len(cfg.Search.Platforms) != 2 {
		t.Errorf("unexpected search lists %+v", cfg.Search)
	}
	if cfg.Extract.RadiusMeters != 500 || cfg.Extract.ChipSize != 128 {
		t.Errorf("unexpected extract config %+v", cfg.Extract)
	}
	if cfg.Pipeline.Workers != 16 || cfg.Output.Dir != "/tmp/chips" || cfg.Audit.DBPath != "/tmp/audit.db" {
		t.Errorf("unexpected pipeline/output/audit config")
	}
	if cfg.Signer.Type != "none" || cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("unexpected signer/logging config")
	}
}

func validConfig() *Config {
	return &Config{
		Catalog:  CatalogConfig{BaseURL: "http://x", Timeout: time.Second, PageSize: 10, MaxPages: 1},
		Signer:   SignerConfig{Type: "none"},
		Search:   SearchConfig{RadiusMeters: 1000, LookbackDays: 15, Collections: []string{"sentinel-2-l2a"}, MaxCloudCover: 100},
		Extract:  ExtractConfig{RadiusMeters: 1000, ChipSize: 256, Timeout: time.Second},
		Pipeline: PipelineConfig{Workers: 1},
		Output:   OutputConfig{Dir: "out"},
		Server:   ServerConfig{Port: 8080, ReadTimeout: time.Second, WriteTimeout: time.Second, ShutdownTimeout: time.Second},
		Metrics:  MetricsConfig{Job: "scene_chipper", PushTimeout: time.Second},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "zero lookback is valid", mutate: func(c *Config) { c.Search.LookbackDays = 0 }},
		{name: "empty catalog url", mutate: func(c *Config) { c.Catalog.BaseURL = "" }, wantErr: true},
		{name: "zero timeout", mutate: func(c *Config) { c.Catalog.Timeout = 0 }, wantErr: true},
		{name: "unknown signer", mutate: func(c *Config) { c.Signer.Type = "magic" }, wantErr: true},
		{name: "token signer without url", mutate: func(c *Config) { c.Signer = SignerConfig{Type: "token"} }, wantErr: true},
		{name: "zero search radius", mutate: func(c *Config) { c.Search.RadiusMeters = 0 }, wantErr: true},
		{name: "negative lookback", mutate: func(c *Config) { c.Search.LookbackDays = -1 }, wantErr: true},
		{name: "no collections", mutate: func(c *Config) { c.Search.Collections = nil }, wantErr: true},
		{name: "negative extract radius", mutate: func(c *Config) { c.Extract.RadiusMeters = -5 }, wantErr: true},
		{name: "zero chip size", mutate: func(c *Config) { c.Extract.ChipSize = 0 }, wantErr: true},
		{name: "zero workers", mutate: func(c *Config) { c.Pipeline.Workers = 0 }, wantErr: true},
		{name: "no output dir", mutate: func(c *Config) { c.Output.Dir = "" }, wantErr: true},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: true},
		{name: "pushgateway", mutate: func(c *Config) { c.Metrics.PushgatewayURL = "http://pushgateway:9091" }},
		{name: "pushgateway without job", mutate: func(c *Config) {
			c.Metrics.PushgatewayURL = "http://pushgateway:9091"
			c.Metrics.Job = ""
		}, wantErr: true},
		{name: "job without pushgateway", mutate: func(c *Config) { c.Metrics.Job = "" }},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "verbose" }, wantErr: true},
		{name: "bad log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestServerConfig_Address(t *testing.T) {
	s := &ServerConfig{Host: "localhost", Port: 9090}
	if got := s.Address(); got != "localhost:9090" {
		t.Errorf("Address() = %s, want localhost:9090", got)
	}
}
