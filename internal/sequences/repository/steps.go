package repository

import (
	"context"
	"encoding/json"
	"errors"

	"realty_crm_backend/internal/sequences/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const stepColumns = `id, sequence_id, step_order, action_type, action_config, delay_hours, is_active, created_at`

// scanStep leaves Action nil when the stored action type is unknown so the
// executor can report it instead of the whole query failing.
func scanStep(row pgx.Row) (domain.Step, error) {
	var (
		s          domain.Step
		actionType string
		config     []byte
	)
	err := row.Scan(&s.ID, &s.SequenceID, &s.Order, &actionType, &config, &s.DelayHours, &s.IsActive, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Step{}, ErrStepNotFound
		}
		return domain.Step{}, err
	}
	s.ActionType = domain.ActionType(actionType)
	if action, err := domain.DecodeAction(s.ActionType, config); err == nil {
		s.Action = action
	}
	return s, nil
}

type CreateStepParams struct {
	SequenceID uuid.UUID
	Order      int
	Action     domain.Action
	DelayHours int
	IsActive   bool
}

func (r *Repository) CreateStep(ctx context.Context, params CreateStepParams) (domain.Step, error) {
	config, err := json.Marshal(params.Action)
	if err != nil {
		return domain.Step{}, err
	}
	step, err := scanStep(r.db.QueryRow(ctx, `
		INSERT INTO sequence_steps (sequence_id, step_order, action_type, action_config, delay_hours, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+stepColumns,
		params.SequenceID, params.Order, string(params.Action.Type()), config, params.DelayHours, params.IsActive,
	))
	if err != nil && isUniqueViolation(err) {
		return domain.Step{}, ErrDuplicateStepOrder
	}
	return step, err
}

// ListSteps returns every step of a sequence, inactive ones included, in
// order.
func (r *Repository) ListSteps(ctx context.Context, sequenceID uuid.UUID) ([]domain.Step, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+stepColumns+`
		FROM sequence_steps
		WHERE sequence_id = $1
		ORDER BY step_order ASC
	`, sequenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Step, 0)
	for rows.Next() {
		s, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

type UpdateStepParams struct {
	DelayHours *int
	IsActive   *bool
	Action     domain.Action
}

func (r *Repository) UpdateStep(ctx context.Context, sequenceID, stepID uuid.UUID, params UpdateStepParams) (domain.Step, error) {
	var (
		actionType *string
		config     []byte
	)
	if params.Action != nil {
		encoded, err := json.Marshal(params.Action)
		if err != nil {
			return domain.Step{}, err
		}
		t := string(params.Action.Type())
		actionType, config = &t, encoded
	}

	return scanStep(r.db.QueryRow(ctx, `
		UPDATE sequence_steps SET
			delay_hours = COALESCE($3, delay_hours),
			is_active = COALESCE($4, is_active),
			action_type = COALESCE($5, action_type),
			action_config = COALESCE($6::jsonb, action_config),
			updated_at = now()
		WHERE id = $2 AND sequence_id = $1
		RETURNING `+stepColumns,
		sequenceID, stepID, params.DelayHours, params.IsActive, actionType, config,
	))
}
