// Package domain holds sequences, their steps and the enrollments that move
// leads through them.
package domain

import (
	"slices"
	"time"

	leaddomain "realty_crm_backend/internal/leads/domain"

	"github.com/google/uuid"
)

// TriggerType is the event class that offers a lead to a sequence.
type TriggerType string

const (
	TriggerNewLead      TriggerType = "new_lead"
	TriggerStatusChange TriggerType = "status_change"
	TriggerInactivity   TriggerType = "inactivity"
	TriggerScheduled    TriggerType = "scheduled"
	TriggerManual       TriggerType = "manual"
)

func (t TriggerType) Valid() bool {
	switch t {
	case TriggerNewLead, TriggerStatusChange, TriggerInactivity, TriggerScheduled, TriggerManual:
		return true
	}
	return false
}

// TriggerConditions restrict which leads a sequence accepts. Every category
// that is set must hold; within a category any listed value is enough.
type TriggerConditions struct {
	Sources  []leaddomain.Source `json:"sources,omitempty"`
	Intents  []leaddomain.Intent `json:"intents,omitempty"`
	Statuses []leaddomain.Status `json:"statuses,omitempty"`
	MinScore *int                `json:"min_score,omitempty"`
}

// IsEmpty reports whether no condition is set.
func (c TriggerConditions) IsEmpty() bool {
	return len(c.Sources) == 0 && len(c.Intents) == 0 && len(c.Statuses) == 0 && c.MinScore == nil
}

// Matches reports whether lead satisfies every configured condition.
func (c TriggerConditions) Matches(lead leaddomain.Lead) bool {
	if len(c.Sources) > 0 && !slices.Contains(c.Sources, lead.Source) {
		return false
	}
	if len(c.Intents) > 0 && (lead.Intent == nil || !slices.Contains(c.Intents, *lead.Intent)) {
		return false
	}
	if c.MinScore != nil && lead.Score < *c.MinScore {
		return false
	}
	if len(c.Statuses) > 0 && !slices.Contains(c.Statuses, lead.Status) {
		return false
	}
	return true
}

// Sequence is a reusable automation template.
type Sequence struct {
	ID                uuid.UUID         `json:"id"`
	Name              string            `json:"name"`
	Description       *string           `json:"description,omitempty"`
	TriggerType       TriggerType       `json:"triggerType"`
	TriggerConditions TriggerConditions `json:"triggerConditions"`
	IsActive          bool              `json:"isActive"`
	Priority          int               `json:"priority"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

// Matches reports whether lead passes the sequence's trigger conditions.
func (s Sequence) Matches(lead leaddomain.Lead) bool {
	return s.TriggerConditions.Matches(lead)
}

// Step is one action within a sequence. Action is nil when the stored
// action type is not recognised.
type Step struct {
	ID         uuid.UUID  `json:"id"`
	SequenceID uuid.UUID  `json:"sequenceId"`
	Order      int        `json:"order"`
	ActionType ActionType `json:"actionType"`
	Action     Action     `json:"actionConfig"`
	DelayHours int        `json:"delayHours"`
	IsActive   bool       `json:"isActive"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Delay is the wait after this step fires before the next one is due.
func (s Step) Delay() time.Duration {
	return time.Duration(s.DelayHours) * time.Hour
}

// FirstActiveStep returns the lowest-order active step.
func FirstActiveStep(steps []Step) (Step, bool) {
	var (
		first Step
		found bool
	)
	for _, s := range steps {
		if s.IsActive && (!found || s.Order < first.Order) {
			first, found = s, true
		}
	}
	return first, found
}

// NextActiveStep returns the lowest-order active step strictly after order.
func NextActiveStep(steps []Step, order int) (Step, bool) {
	var (
		next  Step
		found bool
	)
	for _, s := range steps {
		if s.IsActive && s.Order > order && (!found || s.Order < next.Order) {
			next, found = s, true
		}
	}
	return next, found
}

// FindStep looks a step up by id, active or not.
func FindStep(steps []Step, id uuid.UUID) (Step, bool) {
	for _, s := range steps {
		if s.ID == id {
			return s, true
		}
	}
	return Step{}, false
}
