package scoring

import (
	"testing"
	"time"

	"realty_crm_backend/internal/leads/domain"

	"github.com/brianvoe/gofakeit/v6"
)

var now = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func TestBudgetTiers(t *testing.T) {
	cases := []struct {
		min, max *float64
		want     int
	}{
		{nil, ptr(1_200_000.0), 20},
		{nil, ptr(1_000_000.0), 20},
		{nil, ptr(999_999.0), 16},
		{ptr(300_000.0), ptr(200_000.0), 12},
		{nil, ptr(100_000.0), 8},
		{nil, ptr(50_000.0), 4},
		{nil, ptr(40_000.0), 2},
		{nil, ptr(0.0), 0},
		{nil, nil, 0},
		{ptr(-5.0), nil, 0},
	}

	for _, tc := range cases {
		lead := domain.Lead{BudgetMin: tc.min, BudgetMax: tc.max}
		if got := budgetScore(lead); got != tc.want {
			t.Fatalf("budget min=%v max=%v: expected %d, got %d", tc.min, tc.max, tc.want, got)
		}
	}
}

func TestEngagementCapsAtTwentyFive(t *testing.T) {
	cases := map[int]int{0: 0, 1: 1, 3: 3, 4: 5, 19: 23, 20: 25, 200: 25}
	for count, want := range cases {
		if got := engagementScore(count); got != want {
			t.Fatalf("engagement(%d): expected %d, got %d", count, want, got)
		}
	}
}

func TestRecencyUsesWholeDaysAndFallsBackToCreation(t *testing.T) {
	cases := []struct {
		age  time.Duration
		want int
	}{
		{0, 20},
		{47 * time.Hour, 20},
		{3 * 24 * time.Hour, 16},
		{7 * 24 * time.Hour, 12},
		{14 * 24 * time.Hour, 8},
		{30 * 24 * time.Hour, 4},
		{31 * 24 * time.Hour, 0},
	}

	for _, tc := range cases {
		touched := now.Add(-tc.age)
		withInteraction := domain.Lead{LastInteractionAt: &touched, CreatedAt: now.Add(-365 * 24 * time.Hour)}
		if got := recencyScore(withInteraction, now); got != tc.want {
			t.Fatalf("recency age=%s: expected %d, got %d", tc.age, tc.want, got)
		}

		createdOnly := domain.Lead{CreatedAt: touched}
		if got := recencyScore(createdOnly, now); got != tc.want {
			t.Fatalf("recency fallback age=%s: expected %d, got %d", tc.age, tc.want, got)
		}
	}
}

func TestLookupTables(t *testing.T) {
	intents := map[domain.Intent]int{
		domain.IntentInvestor: 15, domain.IntentEndBuyer: 12, domain.IntentDeveloper: 10,
		domain.IntentRenter: 5, domain.Intent("tourist"): 0,
	}
	for intent, want := range intents {
		if got := intentScore(domain.Lead{Intent: ptr(intent)}); got != want {
			t.Fatalf("intent %s: expected %d, got %d", intent, want, got)
		}
	}
	if intentScore(domain.Lead{}) != 0 {
		t.Fatal("expected missing intent to score 0")
	}

	sources := map[domain.Source]int{
		domain.SourceReferral: 10, domain.SourceWebsite: 8, domain.SourceWhatsApp: 7,
		domain.SourceInstagram: 6, domain.SourceFacebook: 5, domain.SourceTikTok: 4,
		domain.SourcePortal: 3, domain.SourceColdOutreach: 2, domain.Source("radio"): 0,
	}
	for source, want := range sources {
		if got := sourceScore(domain.Lead{Source: source}); got != want {
			t.Fatalf("source %s: expected %d, got %d", source, want, got)
		}
	}
}

func TestCompletenessWeights(t *testing.T) {
	full := domain.Lead{
		Name:        "Ana López",
		Email:       ptr("ana@example.com"),
		Phone:       ptr("+529981234567"),
		Intent:      ptr(domain.IntentInvestor),
		BudgetMin:   ptr(100_000.0),
		BudgetMax:   ptr(300_000.0),
		Preferences: domain.Preferences{Locations: []string{"Tulum"}},
	}
	if got := completenessScore(full); got != 10 {
		t.Fatalf("expected full profile to score 10, got %d", got)
	}

	if got := completenessScore(domain.Lead{Name: "Ana", Email: ptr("")}); got != 1 {
		t.Fatalf("expected empty email to be ignored, got %d", got)
	}
}

func TestReferralInvestorScenario(t *testing.T) {
	lead := domain.Lead{
		Source:            domain.SourceReferral,
		Intent:            ptr(domain.IntentInvestor),
		BudgetMax:         ptr(1_500_000.0),
		LastInteractionAt: ptr(now),
		CreatedAt:         now.Add(-90 * 24 * time.Hour),
	}

	b := Explain(Snapshot{Lead: lead, ActivityCount: 0}, now)

	if b.Engagement.Score != 0 || b.Budget.Score != 20 || b.Intent.Score != 15 ||
		b.Recency.Score != 20 || b.Completeness.Score != 3 || b.Source.Score != 10 {
		t.Fatalf("unexpected breakdown: %+v", b)
	}
	if b.Total != 68 {
		t.Fatalf("expected total 68, got %d", b.Total)
	}
	if Calculate(Snapshot{Lead: lead}, now) != b.Total {
		t.Fatal("expected Calculate to agree with Explain")
	}
}

func TestScoreStaysWithinBounds(t *testing.T) {
	faker := gofakeit.New(42)
	sources := []string{"whatsapp", "instagram", "tiktok", "facebook", "website", "referral", "portal", "cold_outreach", "unknown"}
	intents := []string{"investor", "end_buyer", "renter", "developer", "other"}

	for i := 0; i < 500; i++ {
		lead := domain.Lead{
			Name:      faker.Name(),
			Source:    domain.Source(faker.RandomString(sources)),
			CreatedAt: faker.DateRange(now.AddDate(-2, 0, 0), now.AddDate(0, 0, 2)),
		}
		if faker.Bool() {
			lead.Email = ptr(faker.Email())
		}
		if faker.Bool() {
			lead.Phone = ptr(faker.Phone())
		}
		if faker.Bool() {
			lead.Intent = ptr(domain.Intent(faker.RandomString(intents)))
		}
		if faker.Bool() {
			lead.BudgetMin = ptr(faker.Float64Range(-10_000, 5_000_000))
		}
		if faker.Bool() {
			lead.BudgetMax = ptr(faker.Float64Range(-10_000, 5_000_000))
		}
		if faker.Bool() {
			lead.Preferences.Locations = []string{faker.City()}
		}
		if faker.Bool() {
			touched := faker.DateRange(now.AddDate(0, -3, 0), now.AddDate(0, 0, 1))
			lead.LastInteractionAt = &touched
		}

		snap := Snapshot{Lead: lead, ActivityCount: faker.IntRange(0, 400)}
		score := Calculate(snap, now)
		if score < 0 || score > 100 {
			t.Fatalf("score out of bounds: %d for %+v", score, snap)
		}
	}
}
