// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"realty_crm_backend/platform/events"
	"realty_crm_backend/platform/logger"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

// Re-export platform functions
var (
	NewBaseEvent   = events.NewBaseEvent
	NewBaseEventAt = events.NewBaseEventAt
)

// NewInMemoryBus creates the process-local event bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return events.NewInMemoryBus(log)
}

// =============================================================================
// Leads Domain Events
// =============================================================================

// LeadCreated is published after a lead is persisted and scored.
type LeadCreated struct {
	BaseEvent
	LeadID uuid.UUID `json:"leadId"`
	Source string    `json:"source"`
	Origin string    `json:"origin"` // api, n8n
}

func (e LeadCreated) EventName() string { return "leads.lead.created" }

// LeadStatusChanged is published whenever a lead moves in the funnel.
type LeadStatusChanged struct {
	BaseEvent
	LeadID    uuid.UUID `json:"leadId"`
	OldStatus string    `json:"oldStatus"`
	NewStatus string    `json:"newStatus"`
	Origin    string    `json:"origin"` // api, n8n, sequence
}

func (e LeadStatusChanged) EventName() string { return "leads.lead.status_changed" }

// =============================================================================
// Sequences Domain Events
// =============================================================================

// LeadEnrolled is published after an enrollment row is created.
type LeadEnrolled struct {
	BaseEvent
	EnrollmentID uuid.UUID `json:"enrollmentId"`
	LeadID       uuid.UUID `json:"leadId"`
	SequenceID   uuid.UUID `json:"sequenceId"`
	SequenceName string    `json:"sequenceName"`
}

func (e LeadEnrolled) EventName() string { return "sequences.lead.enrolled" }

// EnrollmentCompleted is published when an enrollment runs out of steps.
type EnrollmentCompleted struct {
	BaseEvent
	EnrollmentID uuid.UUID `json:"enrollmentId"`
	LeadID       uuid.UUID `json:"leadId"`
	SequenceID   uuid.UUID `json:"sequenceId"`
}

func (e EnrollmentCompleted) EventName() string { return "sequences.enrollment.completed" }
