// Package domain holds the lead aggregate and its value types.
package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Source is the channel a lead arrived through.
type Source string

const (
	SourceWhatsApp     Source = "whatsapp"
	SourceInstagram    Source = "instagram"
	SourceTikTok       Source = "tiktok"
	SourceFacebook     Source = "facebook"
	SourceWebsite      Source = "website"
	SourceReferral     Source = "referral"
	SourcePortal       Source = "portal"
	SourceColdOutreach Source = "cold_outreach"
)

var sourceAliases = map[string]Source{
	"ig":  SourceInstagram,
	"tt":  SourceTikTok,
	"fb":  SourceFacebook,
	"wa":  SourceWhatsApp,
	"web": SourceWebsite,
}

// Valid reports whether s is one of the known sources.
func (s Source) Valid() bool {
	switch s {
	case SourceWhatsApp, SourceInstagram, SourceTikTok, SourceFacebook,
		SourceWebsite, SourceReferral, SourcePortal, SourceColdOutreach:
		return true
	}
	return false
}

// NormalizeSource maps free-form channel names coming from automation tools
// onto a known Source. Unknown values fall back to cold_outreach.
func NormalizeSource(raw string) Source {
	key := strings.ToLower(strings.TrimSpace(raw))
	if alias, ok := sourceAliases[key]; ok {
		return alias
	}
	if s := Source(key); s.Valid() {
		return s
	}
	return SourceColdOutreach
}

// Status is the funnel position of a lead.
type Status string

const (
	StatusNew         Status = "new"
	StatusContacted   Status = "contacted"
	StatusQualified   Status = "qualified"
	StatusNegotiation Status = "negotiation"
	StatusWon         Status = "won"
	StatusLost        Status = "lost"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusContacted, StatusQualified, StatusNegotiation, StatusWon, StatusLost:
		return true
	}
	return false
}

// IsClosed reports whether the lead has left the funnel.
func (s Status) IsClosed() bool {
	return s == StatusWon || s == StatusLost
}

// Intent describes what the lead wants to do.
type Intent string

const (
	IntentInvestor  Intent = "investor"
	IntentEndBuyer  Intent = "end_buyer"
	IntentRenter    Intent = "renter"
	IntentDeveloper Intent = "developer"
)

// Valid reports whether i is a known intent.
func (i Intent) Valid() bool {
	switch i {
	case IntentInvestor, IntentEndBuyer, IntentRenter, IntentDeveloper:
		return true
	}
	return false
}

// Preferences is the structured wish list captured for a lead.
type Preferences struct {
	Locations     []string `json:"locations,omitempty"`
	BedroomsMin   *int     `json:"bedroomsMin,omitempty"`
	BedroomsMax   *int     `json:"bedroomsMax,omitempty"`
	PropertyTypes []string `json:"propertyTypes,omitempty"`
}

// IsEmpty reports whether no preference has been captured.
func (p Preferences) IsEmpty() bool {
	return len(p.Locations) == 0 && p.BedroomsMin == nil && p.BedroomsMax == nil && len(p.PropertyTypes) == 0
}

// Lead is a prospect tracked through the sales funnel.
type Lead struct {
	ID                uuid.UUID   `json:"id"`
	ExternalID        *string     `json:"externalId,omitempty"`
	Name              string      `json:"name"`
	Email             *string     `json:"email,omitempty"`
	Phone             *string     `json:"phone,omitempty"`
	Source            Source      `json:"source"`
	Status            Status      `json:"status"`
	Intent            *Intent     `json:"intent,omitempty"`
	Score             int         `json:"score"`
	BudgetMin         *float64    `json:"budgetMin,omitempty"`
	BudgetMax         *float64    `json:"budgetMax,omitempty"`
	Currency          string      `json:"currency"`
	Preferences       Preferences `json:"preferences"`
	AssignedAgentID   *uuid.UUID  `json:"assignedAgentId,omitempty"`
	Tags              []string    `json:"tags"`
	Notes             *string     `json:"notes,omitempty"`
	LastInteractionAt *time.Time  `json:"lastInteractionAt,omitempty"`
	CreatedAt         time.Time   `json:"createdAt"`
	UpdatedAt         time.Time   `json:"updatedAt"`
}

// HasTag reports whether tag is already on the lead.
func (l Lead) HasTag(tag string) bool {
	return slices.Contains(l.Tags, tag)
}

// LastTouch returns the last interaction time, falling back to creation.
func (l Lead) LastTouch() time.Time {
	if l.LastInteractionAt != nil {
		return *l.LastInteractionAt
	}
	return l.CreatedAt
}

// FirstName returns the first word of the lead's name.
func (l Lead) FirstName() string {
	fields := strings.Fields(l.Name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// ActivityType classifies a timeline entry.
type ActivityType string

const (
	ActivityNote           ActivityType = "note"
	ActivityEmail          ActivityType = "email"
	ActivityCall           ActivityType = "call"
	ActivityMeeting        ActivityType = "meeting"
	ActivityMessage        ActivityType = "message"
	ActivityStatusChange   ActivityType = "status_change"
	ActivityPropertyViewed ActivityType = "property_viewed"
	ActivityScoreUpdate    ActivityType = "score_update"
)

// Valid reports whether t is a known activity type.
func (t ActivityType) Valid() bool {
	switch t {
	case ActivityNote, ActivityEmail, ActivityCall, ActivityMeeting, ActivityMessage,
		ActivityStatusChange, ActivityPropertyViewed, ActivityScoreUpdate:
		return true
	}
	return false
}

// Activity is an immutable timeline entry attached to a lead.
type Activity struct {
	ID          uuid.UUID      `json:"id"`
	LeadID      uuid.UUID      `json:"leadId"`
	Type        ActivityType   `json:"type"`
	Title       string         `json:"title"`
	Description *string        `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata"`
	CreatedByID *uuid.UUID     `json:"createdById,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// NewActivity is the input for appending a timeline entry.
type NewActivity struct {
	LeadID      uuid.UUID
	Type        ActivityType
	Title       string
	Description string
	Metadata    map[string]any
	CreatedByID *uuid.UUID
}
