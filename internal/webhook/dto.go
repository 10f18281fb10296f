package webhook

import (
	"strings"

	leaddomain "realty_crm_backend/internal/leads/domain"
	"realty_crm_backend/internal/leads/transport"
)

// n8n workflows post snake_case payloads.

type CreateLeadPayload struct {
	Name        string                 `json:"name" validate:"required,notblank,max=200"`
	Email       string                 `json:"email" validate:"omitempty,email,max=255"`
	Phone       string                 `json:"phone" validate:"omitempty,min=5,max=30"`
	Source      string                 `json:"source" validate:"required,notblank,max=50"`
	Intent      string                 `json:"intent" validate:"omitempty,oneof=investor end_buyer renter developer"`
	BudgetMin   *float64               `json:"budget_min" validate:"omitempty,gte=0"`
	BudgetMax   *float64               `json:"budget_max" validate:"omitempty,gte=0"`
	Notes       string                 `json:"notes" validate:"omitempty,max=5000"`
	Tags        []string               `json:"tags" validate:"omitempty,max=20,dive,notblank,max=50"`
	Preferences leaddomain.Preferences `json:"preferences"`
	ExternalID  string                 `json:"external_id" validate:"omitempty,max=255"`
	WorkflowID  string                 `json:"workflow_id" validate:"omitempty,max=100"`
}

type StatusPayload struct {
	Status     string `json:"status" validate:"required,oneof=new contacted qualified negotiation won lost"`
	Reason     string `json:"reason" validate:"omitempty,max=500"`
	WorkflowID string `json:"workflow_id" validate:"omitempty,max=100"`
}

type ActivityPayload struct {
	Type        string         `json:"type" validate:"required,oneof=note email call message property_viewed"`
	Title       string         `json:"title" validate:"required,notblank,max=200"`
	Description string         `json:"description" validate:"omitempty,max=5000"`
	Metadata    map[string]any `json:"metadata"`
	WorkflowID  string         `json:"workflow_id" validate:"omitempty,max=100"`
}

// Envelope is the response shape n8n workflows read.
type Envelope struct {
	Message string `json:"message,omitempty"`
	Data    any    `json:"data"`
	Count   *int   `json:"count,omitempty"`
}

func (p CreateLeadPayload) toRequest() transport.CreateLeadRequest {
	notes := strings.TrimSpace(p.Notes)
	if p.WorkflowID != "" {
		if notes != "" {
			notes += "\n"
		}
		notes += "workflow:" + p.WorkflowID
	}
	return transport.CreateLeadRequest{
		ExternalID:  p.ExternalID,
		Name:        p.Name,
		Email:       p.Email,
		Phone:       p.Phone,
		Source:      p.Source,
		Intent:      p.Intent,
		BudgetMin:   p.BudgetMin,
		BudgetMax:   p.BudgetMax,
		Preferences: p.Preferences,
		Tags:        p.Tags,
		Notes:       notes,
	}
}

func (p ActivityPayload) toRequest() transport.LogActivityRequest {
	metadata := make(map[string]any, len(p.Metadata)+2)
	for k, v := range p.Metadata {
		metadata[k] = v
	}
	metadata["source"] = "n8n_webhook"
	if p.WorkflowID != "" {
		metadata["workflow_id"] = p.WorkflowID
	}
	return transport.LogActivityRequest{
		Type:        p.Type,
		Title:       p.Title,
		Description: p.Description,
		Metadata:    metadata,
	}
}
