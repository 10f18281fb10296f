package repository

import (
	"context"
	"time"

	"realty_crm_backend/internal/leads/domain"

	"github.com/google/uuid"
)

// =====================================
// Segregated Interfaces (Interface Segregation Principle)
// =====================================

// LeadReader provides read-only access to lead data.
type LeadReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	GetByExternalID(ctx context.Context, externalID string) (domain.Lead, error)
	List(ctx context.Context, params ListParams) ([]domain.Lead, int, error)
	ListForProcessing(ctx context.Context, filter ProcessingFilter) ([]domain.Lead, error)
	Stats(ctx context.Context) (Stats, error)
}

// LeadWriter provides write operations for lead management.
type LeadWriter interface {
	Create(ctx context.Context, params CreateLeadParams) (domain.Lead, error)
	Update(ctx context.Context, id uuid.UUID, params UpdateLeadParams) (domain.Lead, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status) (domain.Status, error)
	AddTag(ctx context.Context, id uuid.UUID, tag string) (bool, error)
	TouchInteraction(ctx context.Context, id uuid.UUID, at time.Time) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

// ScoreWriter persists recomputed scores.
type ScoreWriter interface {
	UpdateScoreIfChanged(ctx context.Context, id uuid.UUID, score int) (int, bool, error)
}

// ActivityStore records and reads the lead timeline.
type ActivityStore interface {
	AddActivity(ctx context.Context, params domain.NewActivity) (domain.Activity, error)
	ListActivities(ctx context.Context, leadID uuid.UUID, limit int) ([]domain.Activity, error)
	CountActivities(ctx context.Context, leadID uuid.UUID) (int, error)
}

// LeadsRepository composes every lead persistence capability.
type LeadsRepository interface {
	LeadReader
	LeadWriter
	ScoreWriter
	ActivityStore
}

var _ LeadsRepository = (*Repository)(nil)
