// Package scoring computes the 0-100 lead quality score and persists changes.
package scoring

import (
	"context"
	"fmt"
	"time"

	"realty_crm_backend/internal/leads/domain"
	"realty_crm_backend/platform/logger"
	"realty_crm_backend/platform/metrics"

	"github.com/google/uuid"
)

// Store is the lead persistence the scorer reads from and writes to.
// UpdateScoreIfChanged must compare and write atomically.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	CountActivities(ctx context.Context, leadID uuid.UUID) (int, error)
	UpdateScoreIfChanged(ctx context.Context, leadID uuid.UUID, score int) (previous int, changed bool, err error)
	AddActivity(ctx context.Context, activity domain.NewActivity) (domain.Activity, error)
}

// Result reports the outcome of an UpdateScore call.
type Result struct {
	Previous int  `json:"previous"`
	Current  int  `json:"current"`
	Changed  bool `json:"changed"`
}

// Service recalculates and stores lead scores.
type Service struct {
	log     *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates a scoring service. m may be nil.
func New(log *logger.Logger, m *metrics.Metrics) *Service {
	return &Service{log: log, metrics: m, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	clone := *s
	clone.now = now
	return &clone
}

// Snapshot loads the inputs for a score computation in one place.
func (s *Service) Snapshot(ctx context.Context, store Store, leadID uuid.UUID) (Snapshot, error) {
	lead, err := store.GetByID(ctx, leadID)
	if err != nil {
		return Snapshot{}, err
	}
	count, err := store.CountActivities(ctx, leadID)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Lead: lead, ActivityCount: count}, nil
}

// Breakdown explains the current score of a lead.
func (s *Service) Breakdown(ctx context.Context, store Store, leadID uuid.UUID) (Breakdown, error) {
	snap, err := s.Snapshot(ctx, store, leadID)
	if err != nil {
		return Breakdown{}, err
	}
	return Explain(snap, s.now()), nil
}

// UpdateScore recomputes the score for leadID and writes it when it differs
// from the stored value. Changes of significantChange points or more are
// recorded on the lead timeline.
func (s *Service) UpdateScore(ctx context.Context, store Store, leadID uuid.UUID) (Result, error) {
	snap, err := s.Snapshot(ctx, store, leadID)
	if err != nil {
		return Result{}, err
	}

	score := Calculate(snap, s.now())
	previous, changed, err := store.UpdateScoreIfChanged(ctx, leadID, score)
	if err != nil {
		return Result{}, err
	}
	if !changed {
		return Result{Previous: score, Current: score}, nil
	}
	s.metrics.ScoreUpdated()

	delta := score - previous
	if abs(delta) >= significantChange {
		_, err := store.AddActivity(ctx, domain.NewActivity{
			LeadID:      leadID,
			Type:        domain.ActivityScoreUpdate,
			Title:       "Score updated",
			Description: fmt.Sprintf("Lead score changed from %d to %d", previous, score),
			Metadata: map[string]any{
				"old_score": previous,
				"new_score": score,
				"change":    delta,
			},
		})
		if err != nil {
			return Result{}, err
		}
	}

	s.log.Debug("lead score updated", "lead_id", leadID, "previous", previous, "current", score)
	return Result{Previous: previous, Current: score, Changed: true}, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
