package transport

import (
	"time"

	"realty_crm_backend/internal/leads/domain"

	"github.com/google/uuid"
)

// Origin values recorded on lead events and timeline metadata.
const (
	OriginAPI      = "api"
	OriginN8N      = "n8n"
	OriginSequence = "sequence"
)

// Request DTOs
type CreateLeadRequest struct {
	ExternalID      string             `json:"externalId,omitempty" validate:"omitempty,max=255"`
	Name            string             `json:"name" validate:"required,notblank,max=200"`
	Email           string             `json:"email,omitempty" validate:"omitempty,email,max=255"`
	Phone           string             `json:"phone,omitempty" validate:"omitempty,min=5,max=30"`
	Source          string             `json:"source,omitempty" validate:"omitempty,max=50"`
	Intent          string             `json:"intent,omitempty" validate:"omitempty,oneof=investor end_buyer renter developer"`
	BudgetMin       *float64           `json:"budgetMin,omitempty" validate:"omitempty,gte=0"`
	BudgetMax       *float64           `json:"budgetMax,omitempty" validate:"omitempty,gte=0"`
	Currency        string             `json:"currency,omitempty" validate:"omitempty,len=3"`
	Preferences     domain.Preferences `json:"preferences"`
	AssignedAgentID *uuid.UUID         `json:"assignedAgentId,omitempty"`
	Tags            []string           `json:"tags,omitempty" validate:"omitempty,max=20,dive,notblank,max=50"`
	Notes           string             `json:"notes,omitempty" validate:"omitempty,max=5000"`
}

type UpdateLeadRequest struct {
	Name            *string             `json:"name,omitempty" validate:"omitempty,notblank,max=200"`
	Email           *string             `json:"email,omitempty" validate:"omitempty,email,max=255"`
	Phone           *string             `json:"phone,omitempty" validate:"omitempty,min=5,max=30"`
	Intent          *string             `json:"intent,omitempty" validate:"omitempty,oneof=investor end_buyer renter developer"`
	BudgetMin       *float64            `json:"budgetMin,omitempty" validate:"omitempty,gte=0"`
	BudgetMax       *float64            `json:"budgetMax,omitempty" validate:"omitempty,gte=0"`
	Currency        *string             `json:"currency,omitempty" validate:"omitempty,len=3"`
	Preferences     *domain.Preferences `json:"preferences,omitempty"`
	AssignedAgentID *uuid.UUID          `json:"assignedAgentId,omitempty"`
	Notes           *string             `json:"notes,omitempty" validate:"omitempty,max=5000"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=new contacted qualified negotiation won lost"`
	Reason string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

type LogActivityRequest struct {
	Type        string         `json:"type" validate:"required,oneof=note email call meeting message property_viewed"`
	Title       string         `json:"title" validate:"required,notblank,max=200"`
	Description string         `json:"description,omitempty" validate:"omitempty,max=5000"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type ListLeadsRequest struct {
	Status   string `form:"status" validate:"omitempty,oneof=new contacted qualified negotiation won lost"`
	Source   string `form:"source" validate:"omitempty,oneof=whatsapp instagram tiktok facebook website referral portal cold_outreach"`
	Intent   string `form:"intent" validate:"omitempty,oneof=investor end_buyer renter developer"`
	MinScore *int   `form:"minScore" validate:"omitempty,min=0,max=100"`
	Search   string `form:"search" validate:"omitempty,max=100"`
	Page     int    `form:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"pageSize" validate:"omitempty,min=1,max=100"`
}

// ProcessingQuery selects leads for an external automation pass.
type ProcessingQuery struct {
	Status           string `form:"status" validate:"omitempty,oneof=new contacted qualified negotiation won lost"`
	MinScore         *int   `form:"min_score" validate:"omitempty,min=0,max=100"`
	DaysSinceContact *int   `form:"days_since_contact" validate:"omitempty,min=0"`
	Limit            int    `form:"limit" validate:"omitempty,min=1,max=100"`
}

type GenerateMessageRequest struct {
	Type             string `json:"type" validate:"omitempty,oneof=follow_up outreach"`
	Language         string `json:"language,omitempty" validate:"omitempty,max=30"`
	Tone             string `json:"tone,omitempty" validate:"omitempty,max=30"`
	Platform         string `json:"platform,omitempty" validate:"omitempty,oneof=whatsapp instagram email sms"`
	DaysSinceContact int    `json:"daysSinceContact,omitempty" validate:"omitempty,min=0,max=365"`
	PreviousContext  string `json:"previousContext,omitempty" validate:"omitempty,max=2000"`
}

// Response DTOs
type LeadListResponse struct {
	Items      []domain.Lead `json:"items"`
	Total      int           `json:"total"`
	Page       int           `json:"page"`
	PageSize   int           `json:"pageSize"`
	TotalPages int           `json:"totalPages"`
}

type ProcessingResponse struct {
	Count int           `json:"count"`
	Leads []domain.Lead `json:"leads"`
}

type IntakeResponse struct {
	Lead    domain.Lead `json:"lead"`
	Created bool        `json:"created"`
}

type StatusChangeResponse struct {
	Lead           domain.Lead `json:"lead"`
	PreviousStatus string      `json:"previousStatus"`
}

type ActivityListResponse struct {
	Items []domain.Activity `json:"items"`
}

type ScoreResponse struct {
	LeadID    uuid.UUID `json:"leadId"`
	Previous  int       `json:"previous"`
	Current   int       `json:"current"`
	Changed   bool      `json:"changed"`
	Evaluated time.Time `json:"evaluatedAt"`
}
