package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/robert-malhotra/scene-chipper/internal/catalog"
	"github.com/robert-malhotra/scene-chipper/internal/errkind"
	"github.com/robert-malhotra/scene-chipper/internal/geowindow"
	"github.com/robert-malhotra/scene-chipper/internal/samples"
	"github.com/robert-malhotra/scene-chipper/internal/scene"
)

// maxReportedInvalid caps how many invalid sample ids are listed in a startup error.
const maxReportedInvalid = 10

// job is a validated sample with its precomputed geometry.
type job struct {
	sample     samples.Sample
	searchBox  geowindow.BoundingBox
	extractBox geowindow.BoundingBox
	window     geowindow.SearchWindow
}

// Run processes every sample and returns the run summary.
//
// Sample coordinates are validated before any work starts; an invalid sample aborts the
// run with an error wrapping errkind.ErrInvalidGeometry. After that, every failure is
// recorded on its sample and Run returns a nil error.
//
// Cancelling ctx stops dispatch of new samples. Samples already started run to
// completion and are persisted; the summary is marked Interrupted and omits samples
// that never started.
func (p *Pipeline) Run(ctx context.Context, in []samples.Sample) (*Summary, error) {
	jobs, err := p.prepare(in)
	if err != nil {
		return nil, err
	}

	runID := p.newRunID()
	summary := newSummary(runID, len(jobs), p.now())
	logger := p.logger.With(slog.String("run_id", runID))

	logger.InfoContext(ctx, "acquisition run started",
		slog.Int("samples", len(jobs)),
		slog.Int("workers", p.cfg.Workers),
	)

	// Observers and the summary outlive cancellation of ctx.
	bg := context.WithoutCancel(ctx)
	for _, o := range p.observers {
		o.RunStarted(bg, runID, summary.Started, len(jobs))
	}

	results := make(chan Outcome)
	coordinatorDone := make(chan struct{})
	go func() {
		defer close(coordinatorDone)
		for o := range results {
			summary.record(o)
			for _, obs := range p.observers {
				obs.SampleFinished(bg, runID, o)
			}
		}
	}()

	var g errgroup.Group
	slots := make(chan struct{}, p.cfg.Workers)

	interrupted := false
dispatch:
	for _, j := range jobs {
		select {
		case <-ctx.Done():
			interrupted = true
			break dispatch
		case slots <- struct{}{}:
		}
		// Both cases may be ready at once; never start a sample after cancellation.
		if ctx.Err() != nil {
			<-slots
			interrupted = true
			break
		}
		j := j
		g.Go(func() error {
			defer func() { <-slots }()
			results <- p.process(bg, logger, j)
			return nil
		})
	}
	_ = g.Wait()
	close(results)
	<-coordinatorDone

	summary.finish(p.now(), interrupted)

	level := slog.LevelInfo
	if interrupted {
		level = slog.LevelWarn
	}
	logger.Log(bg, level, "acquisition run finished",
		slog.Int("persisted", summary.Persisted),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed", summary.Failed),
		slog.Bool("interrupted", interrupted),
		slog.Duration("duration", summary.Finished.Sub(summary.Started)),
	)
	if summary.Failed > 0 {
		logger.InfoContext(bg, "failed samples", slog.Any("sample_ids", summary.FailedIDs()))
	}

	for _, o := range p.observers {
		o.RunFinished(bg, summary)
	}
	return summary, nil
}

// prepare validates every sample and computes its search and extraction geometry.
func (p *Pipeline) prepare(in []samples.Sample) ([]job, error) {
	jobs := make([]job, 0, len(in))
	var invalid []string
	var firstErr error

	for _, s := range in {
		j, err := p.newJob(s)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			invalid = append(invalid, s.UID)
			continue
		}
		jobs = append(jobs, j)
	}

	if len(invalid) > 0 {
		listed := invalid
		if len(listed) > maxReportedInvalid {
			listed = listed[:maxReportedInvalid]
		}
		return nil, fmt.Errorf("%d samples have invalid geometry (%s): %w",
			len(invalid), strings.Join(listed, ", "), firstErr)
	}
	return jobs, nil
}

func (p *Pipeline) newJob(s samples.Sample) (job, error) {
	searchBox, err := geowindow.BoundingBoxAround(s.Latitude, s.Longitude, p.cfg.SearchRadiusMeters)
	if err != nil {
		return job{}, fmt.Errorf("sample %s: %w", s.UID, err)
	}
	extractBox, err := geowindow.BoundingBoxAround(s.Latitude, s.Longitude, p.cfg.ExtractRadiusMeters)
	if err != nil {
		return job{}, fmt.Errorf("sample %s: %w", s.UID, err)
	}
	window, err := geowindow.NewSearchWindow(s.Date, p.cfg.LookbackDays)
	if err != nil {
		return job{}, fmt.Errorf("sample %s: %w", s.UID, err)
	}
	return job{sample: s, searchBox: searchBox, extractBox: extractBox, window: window}, nil
}

// process runs the state machine for one sample. It never panics on sample errors and
// always returns a terminal outcome.
func (p *Pipeline) process(ctx context.Context, logger *slog.Logger, j job) (out Outcome) {
	s := j.sample
	start := time.Now()
	logger = logger.With(slog.String("sample", s.UID))
	state := func(st State) {
		logger.DebugContext(ctx, "sample state", slog.String("state", string(st)))
	}
	fail := func(err error) Outcome {
		state(StateFailed)
		kind := errkind.KindOf(err)
		logger.WarnContext(ctx, "sample failed",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		out.Status = StatusFailed
		out.Kind = kind
		out.Reason = err.Error()
		out.Err = err
		return out
	}
	defer func() {
		out.SampleID = s.UID
		out.Duration = time.Since(start)
	}()

	state(StatePending)
	exists, err := p.deps.Store.Exists(s.UID)
	if err != nil {
		return fail(fmt.Errorf("checking output store: %w", err))
	}
	if exists {
		state(StateCacheHit)
		out.Status = StatusSkipped
		out.Reason = SkipReasonExists
		out.Path = p.deps.Store.Path(s.UID)
		return out
	}

	state(StateQuerying)
	candidates, err := p.deps.Catalog.Search(ctx, catalog.Query{
		BBox:          j.searchBox,
		Window:        j.window,
		Collections:   p.cfg.Collections,
		Platforms:     p.cfg.Platforms,
		MaxCloudCover: p.cfg.MaxCloudCover,
		Limit:         p.cfg.PageSize,
	})
	if err != nil {
		if !errors.Is(err, errkind.ErrCatalogUnavailable) {
			err = fmt.Errorf("%w: %w", errkind.ErrCatalogUnavailable, err)
		}
		return fail(err)
	}

	state(StateSelecting)
	sel, ok := scene.Select(candidates, s.Longitude, s.Latitude, s.Date)
	if !ok {
		return fail(fmt.Errorf("none of %d candidates in %s contain the sample: %w",
			len(candidates), j.window, errkind.ErrNoScene))
	}
	out.SceneID = sel.ID
	out.Family = sel.Family.String()
	logger.DebugContext(ctx, "scene selected",
		slog.String("scene", sel.ID),
		slog.String("family", sel.Family.String()),
		slog.Time("captured", sel.Captured),
	)

	state(StateExtracting)
	extractCtx := ctx
	if p.cfg.ExtractTimeout > 0 {
		var cancel context.CancelFunc
		extractCtx, cancel = context.WithTimeout(ctx, p.cfg.ExtractTimeout)
		defer cancel()
	}
	r, err := p.deps.Extractor.Extract(extractCtx, sel, j.extractBox)
	if err != nil {
		if errkind.KindOf(err) == errkind.KindUnknown {
			err = fmt.Errorf("%w: %w", errkind.ErrExtractionFailed, err)
		}
		return fail(err)
	}

	state(StateValidating)
	if err := r.Validate(); err != nil {
		return fail(fmt.Errorf("%w: %w", errkind.ErrExtractionFailed, err))
	}
	if r.Degenerate() {
		return fail(fmt.Errorf("scene %s produced an all-zero raster: %w", sel.ID, errkind.ErrDegenerateRaster))
	}

	path, err := p.deps.Store.Save(s.UID, r)
	if err != nil {
		return fail(fmt.Errorf("persisting raster: %w", err))
	}
	state(StatePersisted)
	out.Status = StatusPersisted
	out.Path = path
	return out
}
