// Package scrub removes persisted rasters that carry no signal.
package scrub

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robert-malhotra/scene-chipper/internal/store"
)

// Report describes one scrub pass.
type Report struct {
	Scanned int      `json:"scanned"`
	Removed []string `json:"removed"`

	// Unreadable lists files that could not be decoded. They are left in place.
	Unreadable []string `json:"unreadable"`
	DryRun     bool     `json:"dry_run"`
}

// RemovedCount returns the number of degenerate rasters found.
func (r Report) RemovedCount() int {
	return len(r.Removed)
}

// Scrubber scans an output store for all-zero rasters.
type Scrubber struct {
	store  store.Store
	dryRun bool
	logger *slog.Logger
}

// New creates a scrubber over the given store.
func New(s store.Store) *Scrubber {
	return &Scrubber{store: s, logger: slog.Default()}
}

// WithDryRun reports degenerate rasters without deleting them.
func (s *Scrubber) WithDryRun(dryRun bool) *Scrubber {
	s.dryRun = dryRun
	return s
}

// WithLogger sets a custom logger.
func (s *Scrubber) WithLogger(logger *slog.Logger) *Scrubber {
	s.logger = logger
	return s
}

// Scrub decodes every persisted raster and deletes those whose pixel sum is zero.
// Running it twice removes nothing the second time.
func (s *Scrubber) Scrub(ctx context.Context) (Report, error) {
	report := Report{Removed: []string{}, Unreadable: []string{}, DryRun: s.dryRun}

	ids, err := s.store.List()
	if err != nil {
		return report, fmt.Errorf("failed to list persisted rasters: %w", err)
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++

		r, err := s.store.Load(id)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping unreadable raster",
				slog.String("id", id),
				slog.String("error", err.Error()),
			)
			report.Unreadable = append(report.Unreadable, id)
			continue
		}
		if r.Sum() != 0 {
			continue
		}

		if !s.dryRun {
			if err := s.store.Remove(id); err != nil {
				return report, err
			}
		}
		s.logger.InfoContext(ctx, "removed degenerate raster",
			slog.String("id", id),
			slog.Bool("dry_run", s.dryRun),
		)
		report.Removed = append(report.Removed, id)
	}

	s.logger.InfoContext(ctx, "scrub completed",
		slog.Int("scanned", report.Scanned),
		slog.Int("removed", len(report.Removed)),
		slog.Int("unreadable", len(report.Unreadable)),
	)
	return report, nil
}
