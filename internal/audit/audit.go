// Package audit records acquisition runs and per-sample outcomes in SQLite.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/robert-malhotra/scene-chipper/internal/pipeline"
)

// ErrRunNotFound is returned when a run id is not in the log.
var ErrRunNotFound = errors.New("run not found")

// Run is one recorded acquisition run.
type Run struct {
	ID          string     `gorm:"primaryKey;size:64" json:"id"`
	Started     time.Time  `gorm:"index" json:"started"`
	Finished    *time.Time `json:"finished,omitempty"`
	Total       int        `json:"total"`
	Persisted   int        `json:"persisted"`
	Skipped     int        `json:"skipped"`
	Failed      int        `json:"failed"`
	Interrupted bool       `json:"interrupted"`

	Outcomes []SampleOutcome `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE" json:"outcomes,omitempty"`
}

// SampleOutcome is the terminal result of one sample within a run.
type SampleOutcome struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	RunID      string    `gorm:"index:idx_outcomes_run_status;size:64;not null" json:"run_id"`
	SampleID   string    `gorm:"index" json:"sample_id"`
	Status     string    `gorm:"index:idx_outcomes_run_status;type:varchar(16)" json:"status"`
	Kind       string    `gorm:"type:varchar(32)" json:"kind,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	SceneID    string    `json:"scene_id,omitempty"`
	Family     string    `json:"family,omitempty"`
	Path       string    `json:"path,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Log persists run history. It implements pipeline.Observer.
type Log struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open opens or creates the SQLite database at path and migrates the schema.
func Open(path string) (*Log, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	return New(db)
}

// New wraps an open database and migrates the schema.
func New(db *gorm.DB) (*Log, error) {
	if err := db.AutoMigrate(&Run{}, &SampleOutcome{}); err != nil {
		return nil, fmt.Errorf("failed to migrate audit database: %w", err)
	}
	return &Log{db: db, logger: slog.Default()}, nil
}

// WithLogger sets a custom logger.
func (l *Log) WithLogger(logger *slog.Logger) *Log {
	l.logger = logger
	return l
}

// Close releases the underlying connection pool.
func (l *Log) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RunStarted implements pipeline.Observer.
func (l *Log) RunStarted(ctx context.Context, runID string, started time.Time, total int) {
	run := Run{ID: runID, Started: started.UTC(), Total: total}
	if err := l.db.WithContext(ctx).Create(&run).Error; err != nil {
		l.logger.ErrorContext(ctx, "failed to record run start",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)
	}
}

// SampleFinished implements pipeline.Observer.
func (l *Log) SampleFinished(ctx context.Context, runID string, o pipeline.Outcome) {
	row := SampleOutcome{
		RunID:      runID,
		SampleID:   o.SampleID,
		Status:     string(o.Status),
		Kind:       string(o.Kind),
		Reason:     o.Reason,
		SceneID:    o.SceneID,
		Family:     o.Family,
		Path:       o.Path,
		DurationMs: o.Duration.Milliseconds(),
	}
	if err := l.db.WithContext(ctx).Create(&row).Error; err != nil {
		l.logger.ErrorContext(ctx, "failed to record sample outcome",
			slog.String("run_id", runID),
			slog.String("sample", o.SampleID),
			slog.String("error", err.Error()),
		)
	}
}

// RunFinished implements pipeline.Observer.
func (l *Log) RunFinished(ctx context.Context, s *pipeline.Summary) {
	finished := s.Finished.UTC()
	err := l.db.WithContext(ctx).Model(&Run{ID: s.RunID}).Updates(map[string]any{
		"finished":    finished,
		"persisted":   s.Persisted,
		"skipped":     s.Skipped,
		"failed":      s.Failed,
		"interrupted": s.Interrupted,
	}).Error
	if err != nil {
		l.logger.ErrorContext(ctx, "failed to record run completion",
			slog.String("run_id", s.RunID),
			slog.String("error", err.Error()),
		)
	}
}

// ListRuns returns the most recent runs first. A limit of zero or less returns all runs.
func (l *Log) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	var runs []Run
	q := l.db.WithContext(ctx).Order("started DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// GetRun returns one run with all of its sample outcomes.
func (l *Log) GetRun(ctx context.Context, runID string) (*Run, error) {
	var run Run
	err := l.db.WithContext(ctx).
		Preload("Outcomes", func(db *gorm.DB) *gorm.DB { return db.Order("sample_id") }).
		First(&run, "id = ?", runID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	return &run, nil
}

// Failures returns the failed samples of a run ordered by sample id.
func (l *Log) Failures(ctx context.Context, runID string) ([]SampleOutcome, error) {
	if _, err := l.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	var rows []SampleOutcome
	err := l.db.WithContext(ctx).
		Where("run_id = ? AND status = ?", runID, string(pipeline.StatusFailed)).
		Order("sample_id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load failures for run %s: %w", runID, err)
	}
	return rows, nil
}
