// Package pipeline resolves, extracts and persists one scene chip per sample.
//
// Each sample moves through a small state machine:
//
//	Pending -> CacheHit                                              (Skipped)
//	Pending -> Querying -> Selecting -> Extracting -> Validating -> Persisted
//	any step                                                     -> Failed
//
// Samples run on a bounded worker pool. A single coordinator goroutine owns the run
// summary and receives every outcome over a channel.
package pipeline

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robert-malhotra/scene-chipper/internal/catalog"
	"github.com/robert-malhotra/scene-chipper/internal/errkind"
	"github.com/robert-malhotra/scene-chipper/internal/extract"
	"github.com/robert-malhotra/scene-chipper/internal/store"
)

// State names a step of per-sample processing.
type State string

const (
	StatePending    State = "pending"
	StateCacheHit   State = "cache-hit"
	StateQuerying   State = "querying"
	StateSelecting  State = "selecting"
	StateExtracting State = "extracting"
	StateValidating State = "validating"
	StatePersisted  State = "persisted"
	StateFailed     State = "failed"
)

// Deps are the collaborators a pipeline drives.
type Deps struct {
	Catalog   catalog.Client
	Extractor extract.Extractor
	Store     store.Store
}

// Config holds the search and extraction parameters shared by every sample.
type Config struct {
	SearchRadiusMeters  float64
	ExtractRadiusMeters float64
	LookbackDays        int
	Collections         []string
	Platforms           []string
	MaxCloudCover       float64
	PageSize            int
	Workers             int

	// ExtractTimeout bounds the extraction of a single sample. Zero means no limit.
	ExtractTimeout time.Duration
}

// DefaultConfig returns the defaults: 1000 m boxes, a 15 day lookback over Sentinel-2 L2A
// and Landsat Collection 2 L2, and four workers.
func DefaultConfig() Config {
	return Config{
		SearchRadiusMeters:  1000,
		ExtractRadiusMeters: 1000,
		LookbackDays:        15,
		Collections:         []string{"sentinel-2-l2a", "landsat-c2-l2"},
		Platforms:           []string{"sentinel-2a", "sentinel-2b", "landsat-8"},
		MaxCloudCover:       100,
		Workers:             4,
		ExtractTimeout:      2 * time.Minute,
	}
}

// Validate checks the configuration. Errors wrap errkind.ErrInvalidGeometry.
func (c Config) Validate() error {
	if !(c.SearchRadiusMeters > 0) {
		return fmt.Errorf("search radius %v must be positive: %w", c.SearchRadiusMeters, errkind.ErrInvalidGeometry)
	}
	if !(c.ExtractRadiusMeters > 0) {
		return fmt.Errorf("extract radius %v must be positive: %w", c.ExtractRadiusMeters, errkind.ErrInvalidGeometry)
	}
	if c.LookbackDays < 0 {
		return fmt.Errorf("lookback %d days must not be negative: %w", c.LookbackDays, errkind.ErrInvalidGeometry)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if len(c.Collections) == 0 {
		return fmt.Errorf("at least one collection is required")
	}
	return nil
}

// Pipeline runs acquisition over a batch of samples.
type Pipeline struct {
	deps      Deps
	cfg       Config
	observers []Observer
	newRunID  func() string
	now       func() time.Time
	logger    *slog.Logger
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithObserver registers an observer notified of run progress.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observers = append(p.observers, o) }
}

// WithRunIDFunc replaces the run id generator.
func WithRunIDFunc(f func() string) Option {
	return func(p *Pipeline) { p.newRunID = f }
}

// WithClock replaces the time source used for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a pipeline. It fails when a dependency is missing or the configuration is
// invalid; geometry errors wrap errkind.ErrInvalidGeometry.
func New(deps Deps, cfg Config, opts ...Option) (*Pipeline, error) {
	if deps.Catalog == nil || deps.Extractor == nil || deps.Store == nil {
		return nil, fmt.Errorf("pipeline requires a catalog, an extractor and a store")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline configuration: %w", err)
	}

	p := &Pipeline{
		deps:     deps,
		cfg:      cfg,
		newRunID: newRunID,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}
