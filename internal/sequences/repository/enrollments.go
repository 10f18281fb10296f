package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"realty_crm_backend/internal/sequences/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	ErrEnrollmentNotFound = errors.New("enrollment not found")
	ErrAlreadyEnrolled    = errors.New("lead already has a live enrollment in this sequence")
)

const enrollmentColumns = `id, lead_id, sequence_id, current_step_id, status, enrolled_at, next_action_at,
	completed_at, metadata, created_at, updated_at`

func scanEnrollment(row pgx.Row) (domain.Enrollment, error) {
	var (
		e        domain.Enrollment
		status   string
		metadata []byte
	)
	err := row.Scan(&e.ID, &e.LeadID, &e.SequenceID, &e.CurrentStepID, &status, &e.EnrolledAt, &e.NextActionAt,
		&e.CompletedAt, &metadata, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Enrollment{}, ErrEnrollmentNotFound
		}
		return domain.Enrollment{}, err
	}
	e.Status = domain.EnrollmentStatus(status)
	e.Metadata = map[string]any{}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return domain.Enrollment{}, fmt.Errorf("decode enrollment metadata: %w", err)
		}
	}
	return e, nil
}

func (r *Repository) queryEnrollments(ctx context.Context, query string, args ...any) ([]domain.Enrollment, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Enrollment, 0)
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

type CreateEnrollmentParams struct {
	LeadID        uuid.UUID
	SequenceID    uuid.UUID
	CurrentStepID uuid.UUID
	EnrolledAt    time.Time
	NextActionAt  time.Time
	Metadata      map[string]any
}

// CreateEnrollment inserts an active enrollment. The partial unique index on
// live enrollments turns a concurrent duplicate into ErrAlreadyEnrolled.
func (r *Repository) CreateEnrollment(ctx context.Context, params CreateEnrollmentParams) (domain.Enrollment, error) {
	metadata := params.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return domain.Enrollment{}, err
	}

	e, err := scanEnrollment(r.db.QueryRow(ctx, `
		INSERT INTO lead_sequence_enrollments (lead_id, sequence_id, current_step_id, status, enrolled_at, next_action_at, metadata)
		VALUES ($1, $2, $3, 'active', $4, $5, $6)
		RETURNING `+enrollmentColumns,
		params.LeadID, params.SequenceID, params.CurrentStepID, params.EnrolledAt, params.NextActionAt, encoded,
	))
	if err != nil && isUniqueViolation(err) {
		return domain.Enrollment{}, ErrAlreadyEnrolled
	}
	return e, err
}

func (r *Repository) GetEnrollment(ctx context.Context, id uuid.UUID) (domain.Enrollment, error) {
	return scanEnrollment(r.db.QueryRow(ctx, `
		SELECT `+enrollmentColumns+`
		FROM lead_sequence_enrollments
		WHERE id = $1
	`, id))
}

// HasLiveEnrollment reports whether the pair has an active or paused
// enrollment.
func (r *Repository) HasLiveEnrollment(ctx context.Context, leadID, sequenceID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM lead_sequence_enrollments
			WHERE lead_id = $1 AND sequence_id = $2 AND status IN ('active', 'paused')
		)
	`, leadID, sequenceID).Scan(&exists)
	return exists, err
}

func (r *Repository) ListEnrollmentsBySequence(ctx context.Context, sequenceID uuid.UUID, status *domain.EnrollmentStatus, limit int) ([]domain.Enrollment, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var statusArg *string
	if status != nil {
		s := string(*status)
		statusArg = &s
	}
	return r.queryEnrollments(ctx, `
		SELECT `+enrollmentColumns+`
		FROM lead_sequence_enrollments
		WHERE sequence_id = $1 AND ($2::text IS NULL OR status = $2)
		ORDER BY enrolled_at DESC
		LIMIT $3
	`, sequenceID, statusArg, limit)
}

func (r *Repository) ListEnrollmentsByLead(ctx context.Context, leadID uuid.UUID) ([]domain.Enrollment, error) {
	return r.queryEnrollments(ctx, `
		SELECT `+enrollmentColumns+`
		FROM lead_sequence_enrollments
		WHERE lead_id = $1
		ORDER BY enrolled_at DESC
	`, leadID)
}

// ClaimDueEnrollments leases up to limit due enrollments to token until
// leaseUntil. Rows locked or leased by another tick are skipped, as are
// enrollments of tombstoned leads or sequences.
func (r *Repository) ClaimDueEnrollments(ctx context.Context, now, leaseUntil time.Time, token uuid.UUID, limit int) ([]domain.Enrollment, error) {
	return r.queryEnrollments(ctx, `
		WITH due AS (
			SELECT e.id
			FROM lead_sequence_enrollments e
			JOIN leads l ON l.id = e.lead_id AND l.deleted_at IS NULL
			JOIN sequences s ON s.id = e.sequence_id AND s.deleted_at IS NULL
			WHERE e.status = 'active'
				AND e.next_action_at IS NOT NULL
				AND e.next_action_at <= $1
				AND (e.claimed_until IS NULL OR e.claimed_until < $1)
			ORDER BY e.next_action_at ASC
			LIMIT $4
			FOR UPDATE OF e SKIP LOCKED
		)
		UPDATE lead_sequence_enrollments e
		SET claimed_until = $2, claim_token = $3, updated_at = now()
		FROM due
		WHERE e.id = due.id
		RETURNING `+prefixed("e", enrollmentColumns),
		now, leaseUntil, token, limit)
}

// LockClaim takes the enrollment's row lock for the rest of the transaction
// and reports whether token still owns the claim. A tick that re-claimed an
// expired lease has replaced the token.
func (r *Repository) LockClaim(ctx context.Context, id, token uuid.UUID) (bool, error) {
	var held bool
	err := r.db.QueryRow(ctx, `
		SELECT status = 'active' AND claim_token IS NOT DISTINCT FROM $2
		FROM lead_sequence_enrollments
		WHERE id = $1
		FOR UPDATE
	`, id, token).Scan(&held)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return held, err
}

// ReleaseClaim drops token's lease without other changes. A claim already
// taken over by another token is left alone.
func (r *Repository) ReleaseClaim(ctx context.Context, id, token uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		UPDATE lead_sequence_enrollments
		SET claimed_until = NULL, claim_token = NULL
		WHERE id = $1 AND claim_token = $2
	`, id, token)
	return err
}

// ListInactivityCandidates returns ids of open, live leads last touched
// before cutoff for which at least one active inactivity sequence has neither
// a live enrollment nor one made since that touch. Ordered by id for keyset
// paging.
func (r *Repository) ListInactivityCandidates(ctx context.Context, before time.Time, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		SELECT l.id
		FROM leads l
		WHERE l.deleted_at IS NULL
			AND l.status NOT IN ('won', 'lost')
			AND COALESCE(l.last_interaction_at, l.created_at) < $1
			AND l.id > $2
			AND EXISTS (
				SELECT 1 FROM sequences s
				WHERE s.trigger_type = 'inactivity' AND s.is_active AND s.deleted_at IS NULL
					AND NOT EXISTS (
						SELECT 1 FROM lead_sequence_enrollments e
						WHERE e.lead_id = l.id AND e.sequence_id = s.id
							AND (e.status IN ('active', 'paused')
								OR e.enrolled_at >= COALESCE(l.last_interaction_at, l.created_at))
					)
			)
		ORDER BY l.id
		LIMIT $3
	`, before, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MoveToStep points an active enrollment at stepID and schedules it.
func (r *Repository) MoveToStep(ctx context.Context, id, stepID uuid.UUID, nextActionAt time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE lead_sequence_enrollments
		SET current_step_id = $2, next_action_at = $3, claimed_until = NULL, claim_token = NULL, updated_at = now()
		WHERE id = $1 AND status = 'active'
	`, id, stepID, nextActionAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEnrollmentNotFound
	}
	return nil
}

// CompleteEnrollment finishes an active enrollment.
func (r *Repository) CompleteEnrollment(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE lead_sequence_enrollments
		SET status = 'completed', completed_at = $2, next_action_at = NULL, claimed_until = NULL, claim_token = NULL, updated_at = now()
		WHERE id = $1 AND status = 'active'
	`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEnrollmentNotFound
	}
	return nil
}

// TransitionEnrollment applies a manual status change. It returns
// domain.ErrInvalidTransition when the current status does not allow it.
func (r *Repository) TransitionEnrollment(ctx context.Context, id uuid.UUID, to domain.EnrollmentStatus, at time.Time) (domain.Enrollment, error) {
	current, err := scanEnrollment(r.db.QueryRow(ctx, `
		SELECT `+enrollmentColumns+`
		FROM lead_sequence_enrollments
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		return domain.Enrollment{}, err
	}
	if !domain.CanTransition(current.Status, to) {
		return domain.Enrollment{}, domain.ErrInvalidTransition
	}

	var completedAt *time.Time
	if to == domain.EnrollmentCancelled || to == domain.EnrollmentCompleted {
		completedAt = &at
	}
	return scanEnrollment(r.db.QueryRow(ctx, `
		UPDATE lead_sequence_enrollments
		SET status = $2,
			completed_at = COALESCE($3, completed_at),
			next_action_at = CASE WHEN $2 IN ('cancelled', 'completed') THEN NULL ELSE next_action_at END,
			claimed_until = NULL,
			claim_token = NULL,
			updated_at = now()
		WHERE id = $1
		RETURNING `+enrollmentColumns,
		id, string(to), completedAt,
	))
}

type RecordExecutionParams struct {
	EnrollmentID uuid.UUID
	StepID       *uuid.UUID
	Status       domain.ExecutionStatus
	Result       string
	ScheduledAt  *time.Time
	ExecutedAt   time.Time
}

func (r *Repository) RecordExecution(ctx context.Context, params RecordExecutionParams) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO sequence_execution_logs (enrollment_id, step_id, status, result, scheduled_at, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, params.EnrollmentID, params.StepID, string(params.Status), params.Result, params.ScheduledAt, params.ExecutedAt)
	return err
}

func (r *Repository) ListExecutionLogs(ctx context.Context, enrollmentID uuid.UUID, limit int) ([]domain.ExecutionLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, enrollment_id, step_id, status, COALESCE(result, ''), scheduled_at, executed_at, created_at
		FROM sequence_execution_logs
		WHERE enrollment_id = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, enrollmentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.ExecutionLog, 0)
	for rows.Next() {
		var (
			l      domain.ExecutionLog
			status string
		)
		if err := rows.Scan(&l.ID, &l.EnrollmentID, &l.StepID, &status, &l.Result, &l.ScheduledAt, &l.ExecutedAt, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.Status = domain.ExecutionStatus(status)
		items = append(items, l)
	}
	return items, rows.Err()
}

// EnrolledSince reports whether the pair was enrolled at or after since,
// whatever the enrollment's current status.
func (r *Repository) EnrolledSince(ctx context.Context, leadID, sequenceID uuid.UUID, since time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM lead_sequence_enrollments
			WHERE lead_id = $1 AND sequence_id = $2 AND enrolled_at >= $3
		)
	`, leadID, sequenceID, since).Scan(&exists)
	return exists, err
}
