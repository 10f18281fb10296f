// Package service implements sequence authoring and enrollment management on
// top of the automation engine.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	leadsrepo "realty_crm_backend/internal/leads/repository"
	"realty_crm_backend/internal/sequences/domain"
	"realty_crm_backend/internal/sequences/repository"
	"realty_crm_backend/internal/sequences/transport"
	"realty_crm_backend/platform/apperr"
	"realty_crm_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	defaultEnrollmentLimit = 50
	defaultLogLimit        = 100
)

var (
	errSequenceNotFound   = apperr.NotFound("sequence not found")
	errStepNotFound       = apperr.NotFound("sequence step not found")
	errEnrollmentNotFound = apperr.NotFound("enrollment not found")
	errLeadNotFound       = apperr.NotFound("lead not found")
	errSequenceInactive   = apperr.Conflict("sequence is not active")
	errDuplicateStepOrder = apperr.Conflict("a step with this order already exists")
	errInvalidTransition  = apperr.Conflict("enrollment cannot make this status change")
)

type Service struct {
	store  Store
	leads  LeadReader
	engine Engine
	log    *logger.Logger
	now    func() time.Time
}

func New(store Store, leads LeadReader, eng Engine, log *logger.Logger) *Service {
	return &Service{store: store, leads: leads, engine: eng, log: log, now: time.Now}
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrSequenceNotFound):
		return errSequenceNotFound
	case errors.Is(err, repository.ErrStepNotFound):
		return errStepNotFound
	case errors.Is(err, repository.ErrEnrollmentNotFound):
		return errEnrollmentNotFound
	case errors.Is(err, repository.ErrDuplicateStepOrder):
		return errDuplicateStepOrder
	case errors.Is(err, domain.ErrInvalidTransition):
		return errInvalidTransition
	case errors.Is(err, leadsrepo.ErrNotFound):
		return errLeadNotFound
	}
	return err
}

// parseStep validates a step definition. Configuration problems are caught
// here so the executor never sees an incomplete config from this path.
func parseStep(req transport.StepRequest) (repository.CreateStepParams, error) {
	action, err := domain.ParseAction(domain.ActionType(req.ActionType), req.ActionConfig)
	if err != nil {
		return repository.CreateStepParams{}, apperr.Validation(err.Error()).
			WithDetails(map[string]any{"order": req.Order})
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return repository.CreateStepParams{
		Order:      req.Order,
		Action:     action,
		DelayHours: req.DelayHours,
		IsActive:   active,
	}, nil
}

func validateConditions(c domain.TriggerConditions) error {
	for _, s := range c.Sources {
		if !s.Valid() {
			return apperr.Validation(fmt.Sprintf("unknown source %q in trigger conditions", s))
		}
	}
	for _, i := range c.Intents {
		if !i.Valid() {
			return apperr.Validation(fmt.Sprintf("unknown intent %q in trigger conditions", i))
		}
	}
	for _, s := range c.Statuses {
		if !s.Valid() {
			return apperr.Validation(fmt.Sprintf("unknown status %q in trigger conditions", s))
		}
	}
	if c.MinScore != nil && (*c.MinScore < 0 || *c.MinScore > 100) {
		return apperr.Validation("min_score must be between 0 and 100")
	}
	return nil
}

// CreateSequence stores a sequence and all of its steps atomically.
func (s *Service) CreateSequence(ctx context.Context, req transport.CreateSequenceRequest) (transport.SequenceResponse, error) {
	trigger := domain.TriggerType(req.TriggerType)
	if !trigger.Valid() {
		return transport.SequenceResponse{}, apperr.Validation("unknown trigger type")
	}
	if err := validateConditions(req.TriggerConditions); err != nil {
		return transport.SequenceResponse{}, err
	}

	steps := make([]repository.CreateStepParams, 0, len(req.Steps))
	seen := make(map[int]bool, len(req.Steps))
	for _, sr := range req.Steps {
		if seen[sr.Order] {
			return transport.SequenceResponse{}, apperr.Conflict(errDuplicateStepOrder.Message).WithDetails(map[string]any{"order": sr.Order})
		}
		seen[sr.Order] = true
		params, err := parseStep(sr)
		if err != nil {
			return transport.SequenceResponse{}, err
		}
		steps = append(steps, params)
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	var out transport.SequenceResponse
	err := s.store.InTx(ctx, func(tx Store) error {
		seq, err := tx.CreateSequence(ctx, repository.CreateSequenceParams{
			Name:              strings.TrimSpace(req.Name),
			Description:       req.Description,
			TriggerType:       trigger,
			TriggerConditions: req.TriggerConditions,
			IsActive:          active,
			Priority:          req.Priority,
		})
		if err != nil {
			return err
		}

		out = transport.SequenceResponse{Sequence: seq, Steps: make([]domain.Step, 0, len(steps))}
		for _, params := range steps {
			params.SequenceID = seq.ID
			step, err := tx.CreateStep(ctx, params)
			if err != nil {
				return err
			}
			out.Steps = append(out.Steps, step)
		}
		return nil
	})
	if err != nil {
		return transport.SequenceResponse{}, mapErr(err)
	}

	s.log.Info("sequence created", "sequence_id", out.ID, "trigger", out.TriggerType, "steps", len(out.Steps))
	return out, nil
}

func (s *Service) ListSequences(ctx context.Context, activeOnly bool) (transport.SequenceListResponse, error) {
	items, err := s.store.ListSequences(ctx, activeOnly)
	if err != nil {
		return transport.SequenceListResponse{}, err
	}
	return transport.SequenceListResponse{Items: items}, nil
}

func (s *Service) GetSequence(ctx context.Context, id uuid.UUID) (transport.SequenceResponse, error) {
	seq, err := s.store.GetSequence(ctx, id)
	if err != nil {
		return transport.SequenceResponse{}, mapErr(err)
	}
	steps, err := s.store.ListSteps(ctx, id)
	if err != nil {
		return transport.SequenceResponse{}, err
	}
	return transport.SequenceResponse{Sequence: seq, Steps: steps}, nil
}

func (s *Service) UpdateSequence(ctx context.Context, id uuid.UUID, req transport.UpdateSequenceRequest) (domain.Sequence, error) {
	if req.TriggerConditions != nil {
		if err := validateConditions(*req.TriggerConditions); err != nil {
			return domain.Sequence{}, err
		}
	}
	params := repository.UpdateSequenceParams{
		Description:       req.Description,
		IsActive:          req.IsActive,
		Priority:          req.Priority,
		TriggerConditions: req.TriggerConditions,
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		params.Name = &name
	}

	seq, err := s.store.UpdateSequence(ctx, id, params)
	if err != nil {
		return domain.Sequence{}, mapErr(err)
	}
	return seq, nil
}

// DeleteSequence tombstones the sequence. Its live enrollments stop being
// claimed by the scheduler.
func (s *Service) DeleteSequence(ctx context.Context, id uuid.UUID) error {
	return mapErr(s.store.SoftDeleteSequence(ctx, id))
}

func (s *Service) AddStep(ctx context.Context, sequenceID uuid.UUID, req transport.StepRequest) (domain.Step, error) {
	if _, err := s.store.GetSequence(ctx, sequenceID); err != nil {
		return domain.Step{}, mapErr(err)
	}
	params, err := parseStep(req)
	if err != nil {
		return domain.Step{}, err
	}
	params.SequenceID = sequenceID

	step, err := s.store.CreateStep(ctx, params)
	if err != nil {
		return domain.Step{}, mapErr(err)
	}
	return step, nil
}

// UpdateStep changes delay, active flag or config. A new config is validated
// against the step's current action type.
func (s *Service) UpdateStep(ctx context.Context, sequenceID, stepID uuid.UUID, req transport.UpdateStepRequest) (domain.Step, error) {
	steps, err := s.store.ListSteps(ctx, sequenceID)
	if err != nil {
		return domain.Step{}, err
	}
	current, ok := domain.FindStep(steps, stepID)
	if !ok {
		return domain.Step{}, errStepNotFound
	}

	params := repository.UpdateStepParams{DelayHours: req.DelayHours, IsActive: req.IsActive}
	if len(req.ActionConfig) > 0 {
		action, err := domain.ParseAction(current.ActionType, req.ActionConfig)
		if err != nil {
			return domain.Step{}, apperr.Validation(err.Error())
		}
		params.Action = action
	}

	step, err := s.store.UpdateStep(ctx, sequenceID, stepID, params)
	if err != nil {
		return domain.Step{}, mapErr(err)
	}
	return step, nil
}

// Enroll puts a lead into a sequence on request. A rejection by the engine
// is reported as enrolled=false, not as an error.
func (s *Service) Enroll(ctx context.Context, sequenceID uuid.UUID, req transport.EnrollRequest) (transport.EnrollmentResponse, error) {
	seq, err := s.store.GetSequence(ctx, sequenceID)
	if err != nil {
		return transport.EnrollmentResponse{}, mapErr(err)
	}
	if !seq.IsActive {
		return transport.EnrollmentResponse{}, errSequenceInactive
	}

	lead, err := s.leads.GetByID(ctx, req.LeadID)
	if err != nil {
		return transport.EnrollmentResponse{}, mapErr(err)
	}

	en, err := s.engine.Enroll(ctx, lead, seq)
	if err != nil {
		return transport.EnrollmentResponse{}, err
	}
	return transport.EnrollmentResponse{Enrolled: en != nil, Enrollment: en}, nil
}

func (s *Service) Pause(ctx context.Context, enrollmentID uuid.UUID) (domain.Enrollment, error) {
	return s.transition(ctx, enrollmentID, domain.EnrollmentPaused)
}

func (s *Service) Resume(ctx context.Context, enrollmentID uuid.UUID) (domain.Enrollment, error) {
	return s.transition(ctx, enrollmentID, domain.EnrollmentActive)
}

func (s *Service) Cancel(ctx context.Context, enrollmentID uuid.UUID) (domain.Enrollment, error) {
	return s.transition(ctx, enrollmentID, domain.EnrollmentCancelled)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to domain.EnrollmentStatus) (domain.Enrollment, error) {
	en, err := s.store.TransitionEnrollment(ctx, id, to, s.now())
	if err != nil {
		return domain.Enrollment{}, mapErr(err)
	}
	s.log.Info("enrollment status changed", "enrollment_id", id, "status", to)
	return en, nil
}

func (s *Service) GetEnrollment(ctx context.Context, id uuid.UUID) (domain.Enrollment, error) {
	en, err := s.store.GetEnrollment(ctx, id)
	if err != nil {
		return domain.Enrollment{}, mapErr(err)
	}
	return en, nil
}

func (s *Service) ListEnrollments(ctx context.Context, sequenceID uuid.UUID, q transport.ListEnrollmentsQuery) (transport.EnrollmentListResponse, error) {
	if _, err := s.store.GetSequence(ctx, sequenceID); err != nil {
		return transport.EnrollmentListResponse{}, mapErr(err)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultEnrollmentLimit
	}
	var status *domain.EnrollmentStatus
	if q.Status != "" {
		st := domain.EnrollmentStatus(q.Status)
		status = &st
	}

	items, err := s.store.ListEnrollmentsBySequence(ctx, sequenceID, status, limit)
	if err != nil {
		return transport.EnrollmentListResponse{}, err
	}
	return transport.EnrollmentListResponse{Items: items}, nil
}

func (s *Service) ListLeadEnrollments(ctx context.Context, leadID uuid.UUID) (transport.EnrollmentListResponse, error) {
	if _, err := s.leads.GetByID(ctx, leadID); err != nil {
		return transport.EnrollmentListResponse{}, mapErr(err)
	}
	items, err := s.store.ListEnrollmentsByLead(ctx, leadID)
	if err != nil {
		return transport.EnrollmentListResponse{}, err
	}
	return transport.EnrollmentListResponse{Items: items}, nil
}

func (s *Service) ListExecutionLogs(ctx context.Context, enrollmentID uuid.UUID) (transport.ExecutionLogListResponse, error) {
	if _, err := s.store.GetEnrollment(ctx, enrollmentID); err != nil {
		return transport.ExecutionLogListResponse{}, mapErr(err)
	}
	items, err := s.store.ListExecutionLogs(ctx, enrollmentID, defaultLogLimit)
	if err != nil {
		return transport.ExecutionLogListResponse{}, err
	}
	return transport.ExecutionLogListResponse{Items: items}, nil
}

// ProcessNow runs one scheduler pass on demand.
func (s *Service) ProcessNow(ctx context.Context, req transport.ProcessRequest) (transport.ProcessResponse, error) {
	res, err := s.engine.ProcessReadyEnrollments(ctx, req.Limit)
	if err != nil {
		return transport.ProcessResponse{}, err
	}
	return transport.ProcessResponse{Result: res}, nil
}
