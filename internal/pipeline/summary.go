package pipeline

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/robert-malhotra/scene-chipper/internal/errkind"
)

// Status is the terminal result of one sample.
type Status string

const (
	StatusPersisted Status = "persisted"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// SkipReasonExists is the reason recorded for cache hits.
const SkipReasonExists = "already-exists"

// Outcome is the result of processing one sample.
type Outcome struct {
	SampleID string        `json:"sample_id"`
	Status   Status        `json:"status"`
	Path     string        `json:"path,omitempty"`
	SceneID  string        `json:"scene_id,omitempty"`
	Family   string        `json:"family,omitempty"`
	Kind     errkind.Kind  `json:"kind,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	Duration time.Duration `json:"duration_ns"`
	Err      error         `json:"-"`
}

// Failure identifies a failed sample and why it failed.
type Failure struct {
	SampleID string       `json:"sample_id"`
	Kind     errkind.Kind `json:"kind"`
	Reason   string       `json:"reason"`
}

// Summary is the aggregate result of a run.
type Summary struct {
	RunID       string             `json:"run_id"`
	Started     time.Time          `json:"started"`
	Finished    time.Time          `json:"finished"`
	Total       int                `json:"total"`
	Persisted   int                `json:"persisted"`
	Skipped     int                `json:"skipped"`
	Failed      int                `json:"failed"`
	Interrupted bool               `json:"interrupted"`
	Failures    []Failure          `json:"failures"`
	Outcomes    map[string]Outcome `json:"outcomes"`
}

func newSummary(runID string, total int, started time.Time) *Summary {
	return &Summary{
		RunID:    runID,
		Started:  started,
		Total:    total,
		Failures: []Failure{},
		Outcomes: make(map[string]Outcome, total),
	}
}

// record folds one outcome into the summary. Only the coordinator calls it.
func (s *Summary) record(o Outcome) {
	s.Outcomes[o.SampleID] = o
	switch o.Status {
	case StatusPersisted:
		s.Persisted++
	case StatusSkipped:
		s.Skipped++
	case StatusFailed:
		s.Failed++
		s.Failures = append(s.Failures, Failure{SampleID: o.SampleID, Kind: o.Kind, Reason: o.Reason})
	}
}

func (s *Summary) finish(at time.Time, interrupted bool) {
	s.Finished = at
	s.Interrupted = interrupted
	sort.Slice(s.Failures, func(i, j int) bool { return s.Failures[i].SampleID < s.Failures[j].SampleID })
}

// FailedIDs returns the ids of failed samples in lexical order.
func (s *Summary) FailedIDs() []string {
	ids := make([]string, len(s.Failures))
	for i, f := range s.Failures {
		ids[i] = f.SampleID
	}
	return ids
}

// FailuresByKind counts failures per error kind.
func (s *Summary) FailuresByKind() map[errkind.Kind]int {
	out := make(map[errkind.Kind]int)
	for _, f := range s.Failures {
		out[f.Kind]++
	}
	return out
}

// Observer receives run progress. All calls for one run are made from a single
// goroutine, in order.
type Observer interface {
	RunStarted(ctx context.Context, runID string, started time.Time, total int)
	SampleFinished(ctx context.Context, runID string, o Outcome)
	RunFinished(ctx context.Context, s *Summary)
}

func newRunID() string {
	return uuid.NewString()
}
