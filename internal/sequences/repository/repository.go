package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"realty_crm_backend/internal/sequences/domain"
	"realty_crm_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrSequenceNotFound   = errors.New("sequence not found")
	ErrStepNotFound       = errors.New("sequence step not found")
	ErrDuplicateStepOrder = errors.New("a step with this order already exists")
)

const uniqueViolation = "23505"

type Repository struct {
	db db.DBTX
}

func New(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx pgx.Tx) *Repository {
	return &Repository{db: tx}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

const sequenceColumns = `id, name, description, trigger_type, trigger_conditions, is_active, priority, created_at, updated_at`

func scanSequence(row pgx.Row) (domain.Sequence, error) {
	var (
		s          domain.Sequence
		trigger    string
		conditions []byte
	)
	err := row.Scan(&s.ID, &s.Name, &s.Description, &trigger, &conditions, &s.IsActive, &s.Priority, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Sequence{}, ErrSequenceNotFound
		}
		return domain.Sequence{}, err
	}
	s.TriggerType = domain.TriggerType(trigger)
	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &s.TriggerConditions); err != nil {
			return domain.Sequence{}, fmt.Errorf("decode trigger conditions: %w", err)
		}
	}
	return s, nil
}

type CreateSequenceParams struct {
	Name              string
	Description       *string
	TriggerType       domain.TriggerType
	TriggerConditions domain.TriggerConditions
	IsActive          bool
	Priority          int
}

func (r *Repository) CreateSequence(ctx context.Context, params CreateSequenceParams) (domain.Sequence, error) {
	conditions, err := json.Marshal(params.TriggerConditions)
	if err != nil {
		return domain.Sequence{}, err
	}
	return scanSequence(r.db.QueryRow(ctx, `
		INSERT INTO sequences (name, description, trigger_type, trigger_conditions, is_active, priority)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+sequenceColumns,
		params.Name, params.Description, string(params.TriggerType), conditions, params.IsActive, params.Priority,
	))
}

func (r *Repository) GetSequence(ctx context.Context, id uuid.UUID) (domain.Sequence, error) {
	return scanSequence(r.db.QueryRow(ctx, `
		SELECT `+sequenceColumns+`
		FROM sequences
		WHERE id = $1 AND deleted_at IS NULL
	`, id))
}

// ListSequences returns live sequences, highest priority first.
func (r *Repository) ListSequences(ctx context.Context, activeOnly bool) ([]domain.Sequence, error) {
	return r.querySequences(ctx, `
		SELECT `+sequenceColumns+`
		FROM sequences
		WHERE deleted_at IS NULL AND (is_active OR NOT $1)
		ORDER BY priority DESC, created_at ASC
	`, activeOnly)
}

// ListActiveSequences returns the live, active sequences for trigger,
// highest priority first.
func (r *Repository) ListActiveSequences(ctx context.Context, trigger domain.TriggerType) ([]domain.Sequence, error) {
	return r.querySequences(ctx, `
		SELECT `+sequenceColumns+`
		FROM sequences
		WHERE trigger_type = $1 AND is_active AND deleted_at IS NULL
		ORDER BY priority DESC, created_at ASC
	`, string(trigger))
}

func (r *Repository) querySequences(ctx context.Context, query string, args ...any) ([]domain.Sequence, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Sequence, 0)
	for rows.Next() {
		s, err := scanSequence(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

type UpdateSequenceParams struct {
	Name              *string
	Description       *string
	IsActive          *bool
	Priority          *int
	TriggerConditions *domain.TriggerConditions
}

// UpdateSequence applies the non-nil fields of params.
func (r *Repository) UpdateSequence(ctx context.Context, id uuid.UUID, params UpdateSequenceParams) (domain.Sequence, error) {
	var conditions []byte
	if params.TriggerConditions != nil {
		encoded, err := json.Marshal(params.TriggerConditions)
		if err != nil {
			return domain.Sequence{}, err
		}
		conditions = encoded
	}

	return scanSequence(r.db.QueryRow(ctx, `
		UPDATE sequences SET
			name = COALESCE($2, name),
			description = COALESCE($3, description),
			is_active = COALESCE($4, is_active),
			priority = COALESCE($5, priority),
			trigger_conditions = COALESCE($6::jsonb, trigger_conditions),
			updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+sequenceColumns,
		id, params.Name, params.Description, params.IsActive, params.Priority, conditions,
	))
}

func (r *Repository) SoftDeleteSequence(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE sequences SET deleted_at = now(), is_active = false, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSequenceNotFound
	}
	return nil
}
