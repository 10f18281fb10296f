package engine

import (
	"context"
	"time"

	leaddomain "realty_crm_backend/internal/leads/domain"
	"realty_crm_backend/internal/leads/scoring"
	"realty_crm_backend/internal/messaging"
	"realty_crm_backend/internal/sequences/domain"
	"realty_crm_backend/internal/sequences/repository"

	"github.com/google/uuid"
)

// LeadStore is the lead persistence the engine reads and mutates.
type LeadStore interface {
	scoring.Store
	UpdateStatus(ctx context.Context, id uuid.UUID, status leaddomain.Status) (leaddomain.Status, error)
	AddTag(ctx context.Context, id uuid.UUID, tag string) (bool, error)
}

// SequenceStore is the sequence and enrollment persistence.
type SequenceStore interface {
	ListActiveSequences(ctx context.Context, trigger domain.TriggerType) ([]domain.Sequence, error)
	GetSequence(ctx context.Context, id uuid.UUID) (domain.Sequence, error)
	ListSteps(ctx context.Context, sequenceID uuid.UUID) ([]domain.Step, error)
	GetEnrollment(ctx context.Context, id uuid.UUID) (domain.Enrollment, error)
	HasLiveEnrollment(ctx context.Context, leadID, sequenceID uuid.UUID) (bool, error)
	EnrolledSince(ctx context.Context, leadID, sequenceID uuid.UUID, since time.Time) (bool, error)
	CreateEnrollment(ctx context.Context, params repository.CreateEnrollmentParams) (domain.Enrollment, error)
	// ClaimDueEnrollments leases due enrollments to token until leaseUntil.
	ClaimDueEnrollments(ctx context.Context, now, leaseUntil time.Time, token uuid.UUID, limit int) ([]domain.Enrollment, error)
	// LockClaim row-locks the enrollment for the current transaction and
	// reports whether token still holds its claim.
	LockClaim(ctx context.Context, id, token uuid.UUID) (bool, error)
	ReleaseClaim(ctx context.Context, id, token uuid.UUID) error
	// ListInactivityCandidates pages, by id after the given one, through open
	// leads last touched before cutoff that some active inactivity sequence
	// has not enrolled since that touch.
	ListInactivityCandidates(ctx context.Context, before time.Time, after uuid.UUID, limit int) ([]uuid.UUID, error)
	MoveToStep(ctx context.Context, id, stepID uuid.UUID, nextActionAt time.Time) error
	CompleteEnrollment(ctx context.Context, id uuid.UUID, at time.Time) error
	RecordExecution(ctx context.Context, params repository.RecordExecutionParams) error
}

// Store groups both stores behind one transaction boundary.
type Store interface {
	Leads() LeadStore
	Sequences() SequenceStore
	// WithinTx runs fn against a transaction-bound Store. Calling it on a
	// store that is already transactional opens a savepoint.
	WithinTx(ctx context.Context, fn func(Store) error) error
}

// MessageGenerator drafts follow-up messages for send_message steps.
type MessageGenerator interface {
	GenerateFollowUp(ctx context.Context, lead leaddomain.Lead, opts messaging.Options) messaging.Result
}
