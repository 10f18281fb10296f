// Package service implements lead intake and maintenance: creation with
// deduplication, status changes, timeline entries and score upkeep.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"realty_crm_backend/internal/events"
	"realty_crm_backend/internal/leads/domain"
	"realty_crm_backend/internal/leads/repository"
	"realty_crm_backend/internal/leads/scoring"
	"realty_crm_backend/internal/leads/transport"
	"realty_crm_backend/internal/messaging"
	"realty_crm_backend/platform/apperr"
	"realty_crm_backend/platform/logger"
	"realty_crm_backend/platform/phone"
	"realty_crm_backend/platform/sanitize"

	"github.com/google/uuid"
)

const (
	defaultPageSize       = 20
	defaultProcessingSize = 50
	maxProcessingSize     = 100
)

var (
	errLeadNotFound    = apperr.NotFound("lead not found")
	errDuplicateLead   = apperr.Conflict("a lead with this external id already exists")
	errBudgetRange     = apperr.Validation("budgetMax must not be lower than budgetMin")
	errUnknownActivity = apperr.Validation("unknown activity type")
)

type Service struct {
	repo      repository.LeadsRepository
	scorer    *scoring.Service
	bus       events.Bus
	generator *messaging.Generator
	region    string
	log       *logger.Logger
	now       func() time.Time
}

func New(repo repository.LeadsRepository, scorer *scoring.Service, bus events.Bus, generator *messaging.Generator, region string, log *logger.Logger) *Service {
	return &Service{
		repo:      repo,
		scorer:    scorer,
		bus:       bus,
		generator: generator,
		region:    region,
		log:       log,
		now:       time.Now,
	}
}

func mapNotFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return errLeadNotFound
	}
	return err
}

// Create persists a new lead, scores it and announces it.
func (s *Service) Create(ctx context.Context, req transport.CreateLeadRequest, origin string) (domain.Lead, error) {
	params, err := s.createParams(req)
	if err != nil {
		return domain.Lead{}, err
	}

	lead, err := s.repo.Create(ctx, params)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateExternalID) {
			return domain.Lead{}, errDuplicateLead
		}
		return domain.Lead{}, err
	}

	if _, err := s.repo.AddActivity(ctx, domain.NewActivity{
		LeadID: lead.ID,
		Type:   domain.ActivityNote,
		Title:  "Lead created",
		Metadata: map[string]any{
			"source": string(lead.Source),
			"origin": origin,
		},
	}); err != nil {
		return domain.Lead{}, err
	}

	lead, err = s.rescore(ctx, lead.ID)
	if err != nil {
		return domain.Lead{}, err
	}

	s.bus.Publish(ctx, events.LeadCreated{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    lead.ID,
		Source:    string(lead.Source),
		Origin:    origin,
	})
	return lead, nil
}

// Intake creates a lead from an automation tool. A lead that already carries
// the same external id is returned unchanged with created=false.
func (s *Service) Intake(ctx context.Context, req transport.CreateLeadRequest, origin string) (domain.Lead, bool, error) {
	if externalID := strings.TrimSpace(req.ExternalID); externalID != "" {
		existing, err := s.repo.GetByExternalID(ctx, externalID)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return domain.Lead{}, false, err
		}
	}

	lead, err := s.Create(ctx, req, origin)
	if err != nil {
		// Lost a race with a concurrent intake of the same external id.
		if errors.Is(err, errDuplicateLead) {
			existing, getErr := s.repo.GetByExternalID(ctx, strings.TrimSpace(req.ExternalID))
			if getErr == nil {
				return existing, false, nil
			}
		}
		return domain.Lead{}, false, err
	}
	return lead, true, nil
}

func (s *Service) createParams(req transport.CreateLeadRequest) (repository.CreateLeadParams, error) {
	if req.BudgetMin != nil && req.BudgetMax != nil && *req.BudgetMax < *req.BudgetMin {
		return repository.CreateLeadParams{}, errBudgetRange
	}

	params := repository.CreateLeadParams{
		Name:            sanitize.Line(req.Name),
		Source:          domain.NormalizeSource(req.Source),
		Status:          domain.StatusNew,
		BudgetMin:       req.BudgetMin,
		BudgetMax:       req.BudgetMax,
		Currency:        strings.ToUpper(req.Currency),
		Preferences:     req.Preferences,
		AssignedAgentID: req.AssignedAgentID,
		Tags:            req.Tags,
	}
	if v := strings.TrimSpace(req.ExternalID); v != "" {
		params.ExternalID = &v
	}
	if v := strings.ToLower(strings.TrimSpace(req.Email)); v != "" {
		params.Email = &v
	}
	if v := phone.NormalizeE164(req.Phone, s.region); v != "" {
		params.Phone = &v
	}
	if req.Intent != "" {
		intent := domain.Intent(req.Intent)
		params.Intent = &intent
	}
	if v := sanitize.Text(req.Notes); v != "" {
		params.Notes = &v
	}
	return params, nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	lead, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Lead{}, mapNotFound(err)
	}
	return lead, nil
}

func (s *Service) List(ctx context.Context, req transport.ListLeadsRequest) (transport.LeadListResponse, error) {
	page := max(req.Page, 1)
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	params := repository.ListParams{
		MinScore: req.MinScore,
		Search:   strings.TrimSpace(req.Search),
		Limit:    pageSize,
		Offset:   (page - 1) * pageSize,
	}
	if req.Status != "" {
		status := domain.Status(req.Status)
		params.Status = &status
	}
	if req.Source != "" {
		source := domain.Source(req.Source)
		params.Source = &source
	}
	if req.Intent != "" {
		intent := domain.Intent(req.Intent)
		params.Intent = &intent
	}

	items, total, err := s.repo.List(ctx, params)
	if err != nil {
		return transport.LeadListResponse{}, err
	}
	return transport.LeadListResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
	}, nil
}

// Update applies a partial update and rescoring, since most profile fields
// feed the score.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req transport.UpdateLeadRequest) (domain.Lead, error) {
	params := repository.UpdateLeadParams{
		BudgetMin:       req.BudgetMin,
		BudgetMax:       req.BudgetMax,
		Currency:        req.Currency,
		Preferences:     req.Preferences,
		AssignedAgentID: req.AssignedAgentID,
		Notes:           sanitize.TextPtr(req.Notes),
	}
	if req.Name != nil {
		name := sanitize.Line(*req.Name)
		params.Name = &name
	}
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		params.Email = &email
	}
	if req.Phone != nil {
		normalized := phone.NormalizeE164(*req.Phone, s.region)
		params.Phone = &normalized
	}
	if req.Intent != nil {
		intent := domain.Intent(*req.Intent)
		params.Intent = &intent
	}

	lead, err := s.repo.Update(ctx, id, params)
	if err != nil {
		return domain.Lead{}, mapNotFound(err)
	}
	return s.rescore(ctx, lead.ID)
}

// UpdateStatus moves the lead in the funnel. Setting the current status again
// is a no-op and publishes nothing.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, req transport.UpdateStatusRequest, origin string) (transport.StatusChangeResponse, error) {
	status := domain.Status(req.Status)
	if !status.Valid() {
		return transport.StatusChangeResponse{}, apperr.Validation("unknown status")
	}

	previous, err := s.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		return transport.StatusChangeResponse{}, mapNotFound(err)
	}

	if previous != status {
		description := fmt.Sprintf("Status changed from %s to %s", previous, status)
		if reason := strings.TrimSpace(req.Reason); reason != "" {
			description += ": " + reason
		}
		if _, err := s.repo.AddActivity(ctx, domain.NewActivity{
			LeadID:      id,
			Type:        domain.ActivityStatusChange,
			Title:       "Status updated",
			Description: description,
			Metadata: map[string]any{
				"old_status": string(previous),
				"new_status": string(status),
				"reason":     req.Reason,
				"source":     origin,
			},
		}); err != nil {
			return transport.StatusChangeResponse{}, err
		}
	}

	lead, err := s.rescore(ctx, id)
	if err != nil {
		return transport.StatusChangeResponse{}, err
	}

	if previous != status {
		s.bus.Publish(ctx, events.LeadStatusChanged{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    id,
			OldStatus: string(previous),
			NewStatus: string(status),
			Origin:    origin,
		})
	}
	return transport.StatusChangeResponse{Lead: lead, PreviousStatus: string(previous)}, nil
}

// LogActivity appends a timeline entry, marks the lead as touched and
// rescores it.
func (s *Service) LogActivity(ctx context.Context, id uuid.UUID, req transport.LogActivityRequest, actorID *uuid.UUID) (domain.Activity, error) {
	kind := domain.ActivityType(req.Type)
	if !kind.Valid() {
		return domain.Activity{}, errUnknownActivity
	}
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return domain.Activity{}, mapNotFound(err)
	}

	activity, err := s.repo.AddActivity(ctx, domain.NewActivity{
		LeadID:      id,
		Type:        kind,
		Title:       sanitize.Line(req.Title),
		Description: sanitize.Text(req.Description),
		Metadata:    req.Metadata,
		CreatedByID: actorID,
	})
	if err != nil {
		return domain.Activity{}, err
	}
	if err := s.repo.TouchInteraction(ctx, id, s.now()); err != nil {
		return domain.Activity{}, mapNotFound(err)
	}
	if _, err := s.scorer.UpdateScore(ctx, s.repo, id); err != nil {
		return domain.Activity{}, err
	}
	return activity, nil
}

func (s *Service) ListActivities(ctx context.Context, id uuid.UUID, limit int) (transport.ActivityListResponse, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return transport.ActivityListResponse{}, mapNotFound(err)
	}
	items, err := s.repo.ListActivities(ctx, id, limit)
	if err != nil {
		return transport.ActivityListResponse{}, err
	}
	return transport.ActivityListResponse{Items: items}, nil
}

// Delete tombstones the lead. Engine queries skip tombstoned leads.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return mapNotFound(s.repo.SoftDelete(ctx, id))
}

// ListForProcessing returns open leads for an automation pass, best score
// first.
func (s *Service) ListForProcessing(ctx context.Context, q transport.ProcessingQuery) (transport.ProcessingResponse, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultProcessingSize
	}
	limit = min(limit, maxProcessingSize)

	filter := repository.ProcessingFilter{
		MinScore:      q.MinScore,
		ExcludeClosed: q.Status == "",
		Limit:         limit,
	}
	if q.Status != "" {
		status := domain.Status(q.Status)
		filter.Status = &status
	}
	if q.DaysSinceContact != nil {
		cutoff := s.now().Add(-time.Duration(*q.DaysSinceContact) * 24 * time.Hour)
		filter.InactiveBefore = &cutoff
	}

	leads, err := s.repo.ListForProcessing(ctx, filter)
	if err != nil {
		return transport.ProcessingResponse{}, err
	}
	return transport.ProcessingResponse{Count: len(leads), Leads: leads}, nil
}

func (s *Service) ScoreBreakdown(ctx context.Context, id uuid.UUID) (scoring.Breakdown, error) {
	b, err := s.scorer.Breakdown(ctx, s.repo, id)
	if err != nil {
		return scoring.Breakdown{}, mapNotFound(err)
	}
	return b, nil
}

func (s *Service) RecalculateScore(ctx context.Context, id uuid.UUID) (transport.ScoreResponse, error) {
	res, err := s.scorer.UpdateScore(ctx, s.repo, id)
	if err != nil {
		return transport.ScoreResponse{}, mapNotFound(err)
	}
	return transport.ScoreResponse{
		LeadID:    id,
		Previous:  res.Previous,
		Current:   res.Current,
		Changed:   res.Changed,
		Evaluated: s.now(),
	}, nil
}

func (s *Service) Stats(ctx context.Context) (repository.Stats, error) {
	return s.repo.Stats(ctx)
}

// GenerateMessage drafts an outreach or follow-up message for the lead.
// Provider failures are reported inside the result.
func (s *Service) GenerateMessage(ctx context.Context, id uuid.UUID, req transport.GenerateMessageRequest) (messaging.Result, error) {
	lead, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return messaging.Result{}, mapNotFound(err)
	}

	opts := messaging.Options{
		Language:         req.Language,
		Tone:             req.Tone,
		Platform:         req.Platform,
		DaysSinceContact: req.DaysSinceContact,
		PreviousContext:  req.PreviousContext,
	}
	if opts.DaysSinceContact == 0 {
		opts.DaysSinceContact = int(s.now().Sub(lead.LastTouch()).Hours() / 24)
	}

	if req.Type == messaging.TypeOutreach {
		return s.generator.GenerateOutreach(ctx, lead, opts), nil
	}
	return s.generator.GenerateFollowUp(ctx, lead, opts), nil
}

func (s *Service) rescore(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	if _, err := s.scorer.UpdateScore(ctx, s.repo, id); err != nil {
		return domain.Lead{}, mapNotFound(err)
	}
	return s.GetByID(ctx, id)
}
