package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robert-malhotra/scene-chipper/internal/catalog"
	"github.com/robert-malhotra/scene-chipper/internal/config"
	"github.com/robert-malhotra/scene-chipper/internal/extract"
	"github.com/robert-malhotra/scene-chipper/internal/metrics"
	"github.com/robert-malhotra/scene-chipper/internal/pipeline"
	"github.com/robert-malhotra/scene-chipper/internal/scene"
)

// app bundles what every subcommand needs.
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	collections *config.CollectionRegistry
	metrics     *metrics.Metrics
}

func loadApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return newApp(cfg)
}

func newApp(cfg *config.Config) (*app, error) {
	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)

	collections := config.DefaultCollections()
	if cfg.CollectionsDir != "" {
		loaded, err := config.LoadCollections(cfg.CollectionsDir)
		if err != nil {
			return nil, err
		}
		collections = loaded
	}
	for _, id := range cfg.Search.Collections {
		if !collections.Has(id) {
			return nil, fmt.Errorf("search collection %q is not defined", id)
		}
	}
	logger.Info("loaded collections", slog.Int("count", collections.Count()))

	return &app{
		cfg:         cfg,
		logger:      logger,
		collections: collections,
		metrics:     metrics.New(),
	}, nil
}

// newCatalog builds the signed, rate limited and instrumented catalog client.
func (a *app) newCatalog() catalog.Client {
	var signer catalog.Signer = catalog.NoopSigner{}
	if a.cfg.Signer.Type == "token" {
		signer = catalog.NewTokenSigner(a.cfg.Signer.TokenURL, a.cfg.Signer.Timeout).WithLogger(a.logger)
	}

	client := catalog.NewSTACClient(a.cfg.Catalog.BaseURL, a.cfg.Catalog.Timeout).
		WithLogger(a.logger).
		WithSigner(signer).
		WithRateLimit(a.cfg.Catalog.RateLimit, a.cfg.Catalog.RateBurst).
		WithMaxPages(a.cfg.Catalog.MaxPages)

	a.logger.Info("using STAC catalog",
		slog.String("base_url", a.cfg.Catalog.BaseURL),
		slog.String("signer", a.cfg.Signer.Type),
	)
	return a.metrics.InstrumentCatalog(client)
}

// newExtractor registers one extractor per family using the asset keys of the
// first configured collection of that family.
func (a *app) newExtractor(reader extract.BandReader) *extract.Registry {
	size := a.cfg.Extract.ChipSize
	reg := extract.NewRegistry(reader, size)

	if c := a.collections.ForFamily(scene.FamilyHighResolution); c != nil {
		reg.Register(scene.FamilyHighResolution, extract.NewHighResolution(reader, size).
			WithAssetKey(c.AssetKey(config.AssetVisual)).
			WithLogger(a.logger))
	}
	if c := a.collections.ForFamily(scene.FamilyModerateResolution); c != nil {
		reg.Register(scene.FamilyModerateResolution, extract.NewModerateResolution(reader, size).
			WithAssetKeys(c.AssetKey(config.AssetRed), c.AssetKey(config.AssetGreen), c.AssetKey(config.AssetBlue)).
			WithLogger(a.logger))
	}
	return reg
}

func (a *app) pipelineConfig() pipeline.Config {
	platforms := a.cfg.Search.Platforms
	if len(platforms) == 0 {
		platforms = a.collections.Platforms(a.cfg.Search.Collections)
	}
	return pipeline.Config{
		SearchRadiusMeters:  a.cfg.Search.RadiusMeters,
		ExtractRadiusMeters: a.cfg.Extract.RadiusMeters,
		LookbackDays:        a.cfg.Search.LookbackDays,
		Collections:         a.cfg.Search.Collections,
		Platforms:           platforms,
		MaxCloudCover:       a.cfg.Search.MaxCloudCover,
		PageSize:            a.cfg.Catalog.PageSize,
		Workers:             a.cfg.Pipeline.Workers,
		ExtractTimeout:      a.cfg.Extract.Timeout,
	}
}

// pushMetrics sends what the command recorded to the configured Pushgateway. A failed
// push is logged and does not fail the command.
func (a *app) pushMetrics(ctx context.Context, command string) {
	url := a.cfg.Metrics.PushgatewayURL
	if url == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Metrics.PushTimeout)
	defer cancel()

	if err := a.metrics.Push(ctx, url, a.cfg.Metrics.Job, command); err != nil {
		a.logger.WarnContext(ctx, "metrics push failed", slog.String("error", err.Error()))
		return
	}
	a.logger.DebugContext(ctx, "pushed metrics",
		slog.String("pushgateway", url),
		slog.String("command", command),
	)
}
