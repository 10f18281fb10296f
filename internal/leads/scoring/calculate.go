package scoring

import (
	"math"
	"time"

	"realty_crm_backend/internal/leads/domain"
)

const (
	maxEngagement   = 25
	maxBudget       = 20
	maxIntent       = 15
	maxRecency      = 20
	maxCompleteness = 10
	maxSource       = 10

	minScore = 0
	maxScore = 100

	// Score changes at least this large are written to the lead timeline.
	significantChange = 10
)

type budgetTier struct {
	floor  float64
	points int
}

// Ordered from highest to lowest floor; first match wins.
var budgetTiers = []budgetTier{
	{1_000_000, 20},
	{500_000, 16},
	{250_000, 12},
	{100_000, 8},
	{50_000, 4},
}

var intentPoints = map[domain.Intent]int{
	domain.IntentInvestor:  15,
	domain.IntentEndBuyer:  12,
	domain.IntentDeveloper: 10,
	domain.IntentRenter:    5,
}

var sourcePoints = map[domain.Source]int{
	domain.SourceReferral:     10,
	domain.SourceWebsite:      8,
	domain.SourceWhatsApp:     7,
	domain.SourceInstagram:    6,
	domain.SourceFacebook:     5,
	domain.SourceTikTok:       4,
	domain.SourcePortal:       3,
	domain.SourceColdOutreach: 2,
}

type recencyTier struct {
	maxDays int
	points  int
}

var recencyTiers = []recencyTier{
	{1, 20},
	{3, 16},
	{7, 12},
	{14, 8},
	{30, 4},
}

// Snapshot is everything the score depends on, captured up front.
type Snapshot struct {
	Lead          domain.Lead
	ActivityCount int
}

// Component is one capped contribution to the total score.
type Component struct {
	Label string `json:"label"`
	Score int    `json:"score"`
	Max   int    `json:"max"`
}

// Breakdown explains a score component by component.
type Breakdown struct {
	Engagement   Component `json:"engagement"`
	Budget       Component `json:"budget"`
	Intent       Component `json:"intent"`
	Recency      Component `json:"recency"`
	Completeness Component `json:"completeness"`
	Source       Component `json:"source"`
	Total        int       `json:"total"`
}

// Calculate returns the 0-100 quality score for s as of now.
func Calculate(s Snapshot, now time.Time) int {
	return Explain(s, now).Total
}

// Explain computes every component and the clamped total.
func Explain(s Snapshot, now time.Time) Breakdown {
	b := Breakdown{
		Engagement:   Component{Label: "Engagement", Score: engagementScore(s.ActivityCount), Max: maxEngagement},
		Budget:       Component{Label: "Budget", Score: budgetScore(s.Lead), Max: maxBudget},
		Intent:       Component{Label: "Intent", Score: intentScore(s.Lead), Max: maxIntent},
		Recency:      Component{Label: "Recency", Score: recencyScore(s.Lead, now), Max: maxRecency},
		Completeness: Component{Label: "Profile", Score: completenessScore(s.Lead), Max: maxCompleteness},
		Source:       Component{Label: "Source", Score: sourceScore(s.Lead), Max: maxSource},
	}

	sum := b.Engagement.Score + b.Budget.Score + b.Intent.Score + b.Recency.Score + b.Completeness.Score + b.Source.Score
	b.Total = clamp(sum, minScore, maxScore)
	return b
}

func engagementScore(activityCount int) int {
	if activityCount <= 0 {
		return 0
	}
	return min(maxEngagement, int(math.Floor(float64(activityCount)*1.25)))
}

func budgetScore(lead domain.Lead) int {
	budget := 0.0
	if lead.BudgetMax != nil {
		budget = math.Max(budget, *lead.BudgetMax)
	}
	if lead.BudgetMin != nil {
		budget = math.Max(budget, *lead.BudgetMin)
	}

	for _, tier := range budgetTiers {
		if budget >= tier.floor {
			return tier.points
		}
	}
	if budget > 0 {
		return 2
	}
	return 0
}

func intentScore(lead domain.Lead) int {
	if lead.Intent == nil {
		return 0
	}
	return intentPoints[*lead.Intent]
}

func recencyScore(lead domain.Lead, now time.Time) int {
	reference := lead.LastTouch()
	if reference.IsZero() {
		return 0
	}

	days := int(now.Sub(reference).Hours() / 24)
	for _, tier := range recencyTiers {
		if days <= tier.maxDays {
			return tier.points
		}
	}
	return 0
}

func completenessScore(lead domain.Lead) int {
	score := 0
	if lead.Name != "" {
		score++
	}
	if lead.Email != nil && *lead.Email != "" {
		score += 2
	}
	if lead.Phone != nil && *lead.Phone != "" {
		score += 2
	}
	if lead.Intent != nil && *lead.Intent != "" {
		score += 2
	}
	if lead.BudgetMin != nil {
		score++
	}
	if lead.BudgetMax != nil {
		score++
	}
	if !lead.Preferences.IsEmpty() {
		score++
	}
	return min(score, maxCompleteness)
}

func sourceScore(lead domain.Lead) int {
	return sourcePoints[lead.Source]
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
