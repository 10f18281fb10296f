package service

import (
	"context"
	"time"

	leaddomain "realty_crm_backend/internal/leads/domain"
	"realty_crm_backend/internal/sequences/domain"
	"realty_crm_backend/internal/sequences/engine"
	"realty_crm_backend/internal/sequences/repository"
	"realty_crm_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Store is the sequence persistence used for authoring and enrollment
// management.
type Store interface {
	CreateSequence(ctx context.Context, params repository.CreateSequenceParams) (domain.Sequence, error)
	GetSequence(ctx context.Context, id uuid.UUID) (domain.Sequence, error)
	ListSequences(ctx context.Context, activeOnly bool) ([]domain.Sequence, error)
	UpdateSequence(ctx context.Context, id uuid.UUID, params repository.UpdateSequenceParams) (domain.Sequence, error)
	SoftDeleteSequence(ctx context.Context, id uuid.UUID) error

	CreateStep(ctx context.Context, params repository.CreateStepParams) (domain.Step, error)
	ListSteps(ctx context.Context, sequenceID uuid.UUID) ([]domain.Step, error)
	UpdateStep(ctx context.Context, sequenceID, stepID uuid.UUID, params repository.UpdateStepParams) (domain.Step, error)

	GetEnrollment(ctx context.Context, id uuid.UUID) (domain.Enrollment, error)
	ListEnrollmentsBySequence(ctx context.Context, sequenceID uuid.UUID, status *domain.EnrollmentStatus, limit int) ([]domain.Enrollment, error)
	ListEnrollmentsByLead(ctx context.Context, leadID uuid.UUID) ([]domain.Enrollment, error)
	TransitionEnrollment(ctx context.Context, id uuid.UUID, to domain.EnrollmentStatus, at time.Time) (domain.Enrollment, error)
	ListExecutionLogs(ctx context.Context, enrollmentID uuid.UUID, limit int) ([]domain.ExecutionLog, error)

	// InTx runs fn against a transaction-bound Store.
	InTx(ctx context.Context, fn func(Store) error) error
}

// LeadReader resolves leads for manual enrollment.
type LeadReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (leaddomain.Lead, error)
}

// Engine is the slice of the automation engine the service drives.
type Engine interface {
	Enroll(ctx context.Context, lead leaddomain.Lead, seq domain.Sequence) (*domain.Enrollment, error)
	ProcessReadyEnrollments(ctx context.Context, limit int) (engine.Result, error)
}

// PostgresStore is the Store backed by the sequences repository.
type PostgresStore struct {
	*repository.Repository
	conn db.DBTX
}

func NewPostgresStore(conn db.DBTX, repo *repository.Repository) *PostgresStore {
	return &PostgresStore{Repository: repo, conn: conn}
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(Store) error) error {
	return db.WithTx(ctx, s.conn, func(tx pgx.Tx) error {
		return fn(&PostgresStore{Repository: s.Repository.WithTx(tx), conn: tx})
	})
}

var _ Store = (*PostgresStore)(nil)
