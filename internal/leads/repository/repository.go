package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"realty_crm_backend/internal/leads/domain"
	"realty_crm_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound            = errors.New("lead not found")
	ErrDuplicateExternalID = errors.New("lead with this external id already exists")
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

const leadColumns = `id, external_id, name, email, phone, source, status, intent, score,
	budget_min, budget_max, currency, preferences, assigned_agent_id, tags, notes,
	last_interaction_at, created_at, updated_at`

func scanLead(row pgx.Row) (domain.Lead, error) {
	var (
		lead        domain.Lead
		source      string
		status      string
		intent      *string
		preferences []byte
	)
	err := row.Scan(
		&lead.ID, &lead.ExternalID, &lead.Name, &lead.Email, &lead.Phone, &source, &status, &intent, &lead.Score,
		&lead.BudgetMin, &lead.BudgetMax, &lead.Currency, &preferences, &lead.AssignedAgentID, &lead.Tags, &lead.Notes,
		&lead.LastInteractionAt, &lead.CreatedAt, &lead.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Lead{}, ErrNotFound
		}
		return domain.Lead{}, err
	}

	lead.Source = domain.Source(source)
	lead.Status = domain.Status(status)
	if intent != nil {
		i := domain.Intent(*intent)
		lead.Intent = &i
	}
	if len(preferences) > 0 {
		if err := json.Unmarshal(preferences, &lead.Preferences); err != nil {
			return domain.Lead{}, fmt.Errorf("decode preferences: %w", err)
		}
	}
	if lead.Tags == nil {
		lead.Tags = []string{}
	}
	return lead, nil
}

type CreateLeadParams struct {
	ExternalID      *string
	Name            string
	Email           *string
	Phone           *string
	Source          domain.Source
	Status          domain.Status
	Intent          *domain.Intent
	BudgetMin       *float64
	BudgetMax       *float64
	Currency        string
	Preferences     domain.Preferences
	AssignedAgentID *uuid.UUID
	Tags            []string
	Notes           *string
}

func (r *Repository) Create(ctx context.Context, params CreateLeadParams) (domain.Lead, error) {
	prefs, err := json.Marshal(params.Preferences)
	if err != nil {
		return domain.Lead{}, err
	}
	tags := params.Tags
	if tags == nil {
		tags = []string{}
	}
	status := params.Status
	if status == "" {
		status = domain.StatusNew
	}
	currency := params.Currency
	if currency == "" {
		currency = "USD"
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO leads (
			external_id, name, email, phone, source, status, intent,
			budget_min, budget_max, currency, preferences, assigned_agent_id, tags, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING `+leadColumns,
		params.ExternalID, params.Name, params.Email, params.Phone, string(params.Source), string(status), intentArg(params.Intent),
		params.BudgetMin, params.BudgetMax, currency, prefs, params.AssignedAgentID, tags, params.Notes,
	)

	lead, err := scanLead(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.Lead{}, ErrDuplicateExternalID
		}
		return domain.Lead{}, err
	}
	return lead, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	return scanLead(r.db.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE id = $1 AND deleted_at IS NULL
	`, id))
}

func (r *Repository) GetByExternalID(ctx context.Context, externalID string) (domain.Lead, error) {
	return scanLead(r.db.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE external_id = $1 AND deleted_at IS NULL
	`, externalID))
}

type UpdateLeadParams struct {
	Name            *string
	Email           *string
	Phone           *string
	Intent          *domain.Intent
	BudgetMin       *float64
	BudgetMax       *float64
	Currency        *string
	Preferences     *domain.Preferences
	AssignedAgentID *uuid.UUID
	Notes           *string
}

// Update applies the non-nil fields of params.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, params UpdateLeadParams) (domain.Lead, error) {
	var prefs []byte
	if params.Preferences != nil {
		encoded, err := json.Marshal(params.Preferences)
		if err != nil {
			return domain.Lead{}, err
		}
		prefs = encoded
	}

	return scanLead(r.db.QueryRow(ctx, `
		UPDATE leads SET
			name = COALESCE($2, name),
			email = COALESCE($3, email),
			phone = COALESCE($4, phone),
			intent = COALESCE($5, intent),
			budget_min = COALESCE($6, budget_min),
			budget_max = COALESCE($7, budget_max),
			currency = COALESCE($8, currency),
			preferences = COALESCE($9::jsonb, preferences),
			assigned_agent_id = COALESCE($10, assigned_agent_id),
			notes = COALESCE($11, notes),
			updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+leadColumns,
		id, params.Name, params.Email, params.Phone, intentArg(params.Intent), params.BudgetMin, params.BudgetMax,
		params.Currency, prefs, params.AssignedAgentID, params.Notes,
	))
}

// UpdateStatus sets the status and returns the value it replaced.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status) (domain.Status, error) {
	var previous string
	err := r.db.QueryRow(ctx, `
		UPDATE leads l
		SET status = $2, updated_at = now()
		FROM (SELECT id, status FROM leads WHERE id = $1 AND deleted_at IS NULL FOR UPDATE) prev
		WHERE l.id = prev.id
		RETURNING prev.status
	`, id, string(status)).Scan(&previous)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return domain.Status(previous), nil
}

// AddTag appends tag unless it is already present. added is false when the
// tag existed.
func (r *Repository) AddTag(ctx context.Context, id uuid.UUID, tag string) (bool, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE leads
		SET tags = array_append(tags, $2), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL AND NOT ($2 = ANY(tags))
	`, id, tag)
	if err != nil {
		return false, err
	}
	if result.RowsAffected() > 0 {
		return true, nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// TouchInteraction records that the lead was in contact at the given time.
func (r *Repository) TouchInteraction(ctx context.Context, id uuid.UUID, at time.Time) error {
	result, err := r.db.Exec(ctx, `
		UPDATE leads SET last_interaction_at = $2, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, id, at)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateScoreIfChanged writes score only when it differs from the stored
// value, locking the row so the comparison and write are atomic.
func (r *Repository) UpdateScoreIfChanged(ctx context.Context, id uuid.UUID, score int) (int, bool, error) {
	var previous int
	err := r.db.QueryRow(ctx, `
		UPDATE leads l
		SET score = $2, updated_at = now()
		FROM (SELECT id, score FROM leads WHERE id = $1 AND deleted_at IS NULL FOR UPDATE) prev
		WHERE l.id = prev.id AND prev.score <> $2
		RETURNING prev.score
	`, id, score).Scan(&previous)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return 0, false, getErr
		}
		return score, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return previous, true, nil
}

// SoftDelete tombstones the lead.
func (r *Repository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `
		UPDATE leads SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type ListParams struct {
	Status   *domain.Status
	Source   *domain.Source
	Intent   *domain.Intent
	MinScore *int
	Search   string
	Limit    int
	Offset   int
}

func (r *Repository) List(ctx context.Context, params ListParams) ([]domain.Lead, int, error) {
	where := []string{"deleted_at IS NULL"}
	args := make([]any, 0, 8)
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if params.Status != nil {
		add("status = $%d", string(*params.Status))
	}
	if params.Source != nil {
		add("source = $%d", string(*params.Source))
	}
	if params.Intent != nil {
		add("intent = $%d", string(*params.Intent))
	}
	if params.MinScore != nil {
		add("score >= $%d", *params.MinScore)
	}
	if s := strings.TrimSpace(params.Search); s != "" {
		add("(name ILIKE $%[1]d OR email ILIKE $%[1]d OR phone ILIKE $%[1]d)", "%"+s+"%")
	}
	whereSQL := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM leads WHERE "+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := params.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	args = append(args, limit, max(params.Offset, 0))
	query := fmt.Sprintf(`SELECT %s FROM leads WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		leadColumns, whereSQL, len(args)-1, len(args))

	leads, err := r.queryLeads(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return leads, total, nil
}

// ProcessingFilter selects leads for external automation passes.
type ProcessingFilter struct {
	Status         *domain.Status
	MinScore       *int
	InactiveBefore *time.Time
	ExcludeClosed  bool
	Limit          int
}

// ListForProcessing returns live leads matching filter, best score first.
// InactiveBefore compares against last interaction, or creation when the
// lead was never contacted.
func (r *Repository) ListForProcessing(ctx context.Context, filter ProcessingFilter) ([]domain.Lead, error) {
	where := []string{"deleted_at IS NULL"}
	args := make([]any, 0, 4)
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if filter.Status != nil {
		add("status = $%d", string(*filter.Status))
	}
	if filter.MinScore != nil {
		add("score >= $%d", *filter.MinScore)
	}
	if filter.InactiveBefore != nil {
		add("COALESCE(last_interaction_at, created_at) < $%d", *filter.InactiveBefore)
	}
	if filter.ExcludeClosed {
		where = append(where, "status NOT IN ('won', 'lost')")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT %s FROM leads WHERE %s ORDER BY score DESC, created_at ASC LIMIT $%d`,
		leadColumns, strings.Join(where, " AND "), len(args))

	return r.queryLeads(ctx, query, args...)
}

// Stats summarises the live pipeline.
type Stats struct {
	Total        int            `json:"total"`
	ByStatus     map[string]int `json:"byStatus"`
	BySource     map[string]int `json:"bySource"`
	AverageScore float64        `json:"averageScore"`
	HotLeads     int            `json:"hotLeads"`
}

func (r *Repository) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{ByStatus: map[string]int{}, BySource: map[string]int{}}
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(AVG(score), 0), COUNT(*) FILTER (WHERE score >= 70)
		FROM leads WHERE deleted_at IS NULL
	`).Scan(&stats.Total, &stats.AverageScore, &stats.HotLeads)
	if err != nil {
		return Stats{}, err
	}

	if err := r.countBy(ctx, "status", stats.ByStatus); err != nil {
		return Stats{}, err
	}
	if err := r.countBy(ctx, "source", stats.BySource); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

func (r *Repository) countBy(ctx context.Context, column string, into map[string]int) error {
	rows, err := r.db.Query(ctx, "SELECT "+column+", COUNT(*) FROM leads WHERE deleted_at IS NULL GROUP BY "+column)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		into[key] = count
	}
	return rows.Err()
}

func (r *Repository) queryLeads(ctx context.Context, query string, args ...any) ([]domain.Lead, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := make([]domain.Lead, 0)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return leads, nil
}

func intentArg(intent *domain.Intent) *string {
	if intent == nil {
		return nil
	}
	s := string(*intent)
	return &s
}
