package repository

import (
	"context"
	"encoding/json"

	"realty_crm_backend/internal/leads/domain"

	"github.com/google/uuid"
)

// AddActivity appends an immutable timeline entry.
func (r *Repository) AddActivity(ctx context.Context, params domain.NewActivity) (domain.Activity, error) {
	metadata := params.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return domain.Activity{}, err
	}

	var description *string
	if params.Description != "" {
		description = &params.Description
	}

	activity := domain.Activity{
		LeadID:      params.LeadID,
		Type:        params.Type,
		Title:       params.Title,
		Description: description,
		Metadata:    metadata,
		CreatedByID: params.CreatedByID,
	}
	err = r.db.QueryRow(ctx, `
		INSERT INTO lead_activities (lead_id, type, title, description, metadata, created_by_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, params.LeadID, string(params.Type), params.Title, description, encoded, params.CreatedByID).Scan(&activity.ID, &activity.CreatedAt)
	if err != nil {
		return domain.Activity{}, err
	}
	return activity, nil
}

// ListActivities returns the newest entries first.
func (r *Repository) ListActivities(ctx context.Context, leadID uuid.UUID, limit int) ([]domain.Activity, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, lead_id, type, title, description, metadata, created_by_id, created_at
		FROM lead_activities
		WHERE lead_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, leadID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	activities := make([]domain.Activity, 0)
	for rows.Next() {
		var (
			activity     domain.Activity
			activityType string
			metadata     []byte
		)
		if err := rows.Scan(&activity.ID, &activity.LeadID, &activityType, &activity.Title, &activity.Description,
			&metadata, &activity.CreatedByID, &activity.CreatedAt); err != nil {
			return nil, err
		}
		activity.Type = domain.ActivityType(activityType)
		activity.Metadata = map[string]any{}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &activity.Metadata); err != nil {
				return nil, err
			}
		}
		activities = append(activities, activity)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return activities, nil
}

// CountActivities returns the number of timeline entries for a lead.
func (r *Repository) CountActivities(ctx context.Context, leadID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM lead_activities WHERE lead_id = $1`, leadID).Scan(&count)
	return count, err
}
