// Package transport holds the request and response shapes of the sequences
// HTTP API.
package transport

import (
	"encoding/json"

	"realty_crm_backend/internal/sequences/domain"
	"realty_crm_backend/internal/sequences/engine"

	"github.com/google/uuid"
)

// StepRequest describes one step when authoring a sequence.
type StepRequest struct {
	Order        int             `json:"order" validate:"min=1"`
	ActionType   string          `json:"actionType" validate:"required,oneof=send_message update_status wait notify_agent add_tag webhook"`
	ActionConfig json.RawMessage `json:"actionConfig"`
	DelayHours   int             `json:"delayHours" validate:"min=0,max=8760"`
	IsActive     *bool           `json:"isActive"`
}

type CreateSequenceRequest struct {
	Name              string                   `json:"name" validate:"required,notblank,max=255"`
	Description       *string                  `json:"description" validate:"omitempty,max=2000"`
	TriggerType       string                   `json:"triggerType" validate:"required,oneof=new_lead status_change inactivity scheduled manual"`
	TriggerConditions domain.TriggerConditions `json:"triggerConditions"`
	IsActive          *bool                    `json:"isActive"`
	Priority          int                      `json:"priority" validate:"min=0,max=1000"`
	Steps             []StepRequest            `json:"steps" validate:"required,min=1,max=50,dive"`
}

type UpdateSequenceRequest struct {
	Name              *string                   `json:"name" validate:"omitempty,notblank,max=255"`
	Description       *string                   `json:"description" validate:"omitempty,max=2000"`
	IsActive          *bool                     `json:"isActive"`
	Priority          *int                      `json:"priority" validate:"omitempty,min=0,max=1000"`
	TriggerConditions *domain.TriggerConditions `json:"triggerConditions"`
}

// UpdateStepRequest changes a step in place. ActionConfig replaces the whole
// config of the step's existing action type.
type UpdateStepRequest struct {
	DelayHours   *int            `json:"delayHours" validate:"omitempty,min=0,max=8760"`
	IsActive     *bool           `json:"isActive"`
	ActionConfig json.RawMessage `json:"actionConfig"`
}

type EnrollRequest struct {
	LeadID uuid.UUID `json:"leadId" validate:"required"`
}

type ListEnrollmentsQuery struct {
	Status string `form:"status" validate:"omitempty,oneof=active paused completed cancelled"`
	Limit  int    `form:"limit" validate:"omitempty,min=1,max=200"`
}

type ListSequencesQuery struct {
	ActiveOnly bool `form:"active"`
}

type ProcessRequest struct {
	Limit int `json:"limit" validate:"omitempty,min=1,max=1000"`
}

type SequenceResponse struct {
	domain.Sequence
	Steps []domain.Step `json:"steps"`
}

type SequenceListResponse struct {
	Items []domain.Sequence `json:"items"`
}

type EnrollmentResponse struct {
	Enrolled   bool               `json:"enrolled"`
	Enrollment *domain.Enrollment `json:"enrollment,omitempty"`
}

type EnrollmentListResponse struct {
	Items []domain.Enrollment `json:"items"`
}

type ExecutionLogListResponse struct {
	Items []domain.ExecutionLog `json:"items"`
}

type ProcessResponse struct {
	engine.Result
}
