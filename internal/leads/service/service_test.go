package service

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"realty_crm_backend/internal/events"
	"realty_crm_backend/internal/leads/domain"
	"realty_crm_backend/internal/leads/repository"
	"realty_crm_backend/internal/leads/scoring"
	"realty_crm_backend/internal/leads/transport"
	"realty_crm_backend/platform/apperr"
	"realty_crm_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeRepo struct {
	mu         sync.Mutex
	leads      map[uuid.UUID]*domain.Lead
	activities map[uuid.UUID][]domain.Activity
	lastFilter repository.ProcessingFilter
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{leads: map[uuid.UUID]*domain.Lead{}, activities: map[uuid.UUID][]domain.Activity{}}
}

func (f *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (domain.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead, ok := f.leads[id]
	if !ok {
		return domain.Lead{}, repository.ErrNotFound
	}
	return *lead, nil
}

func (f *fakeRepo) GetByExternalID(_ context.Context, externalID string) (domain.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, lead := range f.leads {
		if lead.ExternalID != nil && *lead.ExternalID == externalID {
			return *lead, nil
		}
	}
	return domain.Lead{}, repository.ErrNotFound
}

func (f *fakeRepo) List(context.Context, repository.ListParams) ([]domain.Lead, int, error) {
	return nil, 0, nil
}

func (f *fakeRepo) ListForProcessing(_ context.Context, filter repository.ProcessingFilter) ([]domain.Lead, error) {
	f.lastFilter = filter
	return []domain.Lead{}, nil
}

func (f *fakeRepo) Stats(context.Context) (repository.Stats, error) {
	return repository.Stats{}, nil
}

func (f *fakeRepo) Create(_ context.Context, p repository.CreateLeadParams) (domain.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.ExternalID != nil {
		for _, lead := range f.leads {
			if lead.ExternalID != nil && *lead.ExternalID == *p.ExternalID {
				return domain.Lead{}, repository.ErrDuplicateExternalID
			}
		}
	}
	now := time.Now()
	lead := &domain.Lead{
		ID: uuid.New(), ExternalID: p.ExternalID, Name: p.Name, Email: p.Email, Phone: p.Phone,
		Source: p.Source, Status: p.Status, Intent: p.Intent, BudgetMin: p.BudgetMin, BudgetMax: p.BudgetMax,
		Currency: p.Currency, Preferences: p.Preferences, Tags: p.Tags, CreatedAt: now, UpdatedAt: now,
	}
	f.leads[lead.ID] = lead
	return *lead, nil
}

func (f *fakeRepo) Update(_ context.Context, id uuid.UUID, p repository.UpdateLeadParams) (domain.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead, ok := f.leads[id]
	if !ok {
		return domain.Lead{}, repository.ErrNotFound
	}
	if p.Name != nil {
		lead.Name = *p.Name
	}
	if p.Intent != nil {
		lead.Intent = p.Intent
	}
	if p.BudgetMax != nil {
		lead.BudgetMax = p.BudgetMax
	}
	return *lead, nil
}

func (f *fakeRepo) UpdateStatus(_ context.Context, id uuid.UUID, status domain.Status) (domain.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead, ok := f.leads[id]
	if !ok {
		return "", repository.ErrNotFound
	}
	previous := lead.Status
	lead.Status = status
	return previous, nil
}

func (f *fakeRepo) AddTag(_ context.Context, id uuid.UUID, tag string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead := f.leads[id]
	if slices.Contains(lead.Tags, tag) {
		return false, nil
	}
	lead.Tags = append(lead.Tags, tag)
	return true, nil
}

func (f *fakeRepo) TouchInteraction(_ context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead, ok := f.leads[id]
	if !ok {
		return repository.ErrNotFound
	}
	lead.LastInteractionAt = &at
	return nil
}

func (f *fakeRepo) SoftDelete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.leads[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.leads, id)
	return nil
}

func (f *fakeRepo) UpdateScoreIfChanged(_ context.Context, id uuid.UUID, score int) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lead, ok := f.leads[id]
	if !ok {
		return 0, false, repository.ErrNotFound
	}
	previous := lead.Score
	if previous == score {
		return previous, false, nil
	}
	lead.Score = score
	return previous, true, nil
}

func (f *fakeRepo) AddActivity(_ context.Context, p domain.NewActivity) (domain.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	activity := domain.Activity{ID: uuid.New(), LeadID: p.LeadID, Type: p.Type, Title: p.Title, Metadata: p.Metadata, CreatedAt: time.Now()}
	f.activities[p.LeadID] = append(f.activities[p.LeadID], activity)
	return activity, nil
}

func (f *fakeRepo) ListActivities(_ context.Context, leadID uuid.UUID, _ int) ([]domain.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.activities[leadID]), nil
}

func (f *fakeRepo) CountActivities(_ context.Context, leadID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.activities[leadID]), nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(_ context.Context, e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *recordingBus) PublishSync(ctx context.Context, e events.Event) error {
	b.Publish(ctx, e)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func newTestService() (*Service, *fakeRepo, *recordingBus) {
	repo := newFakeRepo()
	bus := &recordingBus{}
	svc := New(repo, scoring.New(logger.Nop(), nil), bus, nil, "MX", logger.Nop())
	return svc, repo, bus
}

func TestCreateScoresAndPublishes(t *testing.T) {
	svc, repo, bus := newTestService()
	budget := 1_200_000.0

	lead, err := svc.Create(context.Background(), transport.CreateLeadRequest{
		Name:      "Lucía Fernández",
		Email:     "Lucia@Example.com",
		Source:    "ig",
		Intent:    "investor",
		BudgetMax: &budget,
	}, transport.OriginAPI)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if lead.Source != domain.SourceInstagram {
		t.Fatalf("expected instagram source, got %s", lead.Source)
	}
	if lead.Email == nil || *lead.Email != "lucia@example.com" {
		t.Fatalf("expected normalised email, got %v", lead.Email)
	}
	if lead.Score == 0 {
		t.Fatal("expected an initial score")
	}
	if len(repo.activities[lead.ID]) == 0 || repo.activities[lead.ID][0].Title != "Lead created" {
		t.Fatalf("expected creation note, got %+v", repo.activities[lead.ID])
	}
	if len(bus.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(bus.events))
	}
	created, ok := bus.events[0].(events.LeadCreated)
	if !ok || created.LeadID != lead.ID || created.Origin != transport.OriginAPI {
		t.Fatalf("unexpected event %+v", bus.events[0])
	}
}

func TestCreateStripsMarkupFromName(t *testing.T) {
	svc, _, _ := newTestService()

	lead, err := svc.Create(context.Background(), transport.CreateLeadRequest{Name: "<b>Ana</b>\n  Ruiz", Source: "web"}, transport.OriginN8N)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lead.Name != "Ana Ruiz" {
		t.Fatalf("expected sanitized name, got %q", lead.Name)
	}
}

func TestCreateRejectsInvertedBudget(t *testing.T) {
	svc, _, _ := newTestService()
	lo, hi := 500_000.0, 100_000.0

	_, err := svc.Create(context.Background(), transport.CreateLeadRequest{Name: "x", BudgetMin: &lo, BudgetMax: &hi}, transport.OriginAPI)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestIntakeDeduplicatesByExternalID(t *testing.T) {
	svc, repo, bus := newTestService()
	req := transport.CreateLeadRequest{ExternalID: "n8n-42", Name: "Marco", Source: "wa"}

	first, created, err := svc.Intake(context.Background(), req, transport.OriginN8N)
	if err != nil || !created {
		t.Fatalf("expected created lead, got created=%v err=%v", created, err)
	}

	second, created, err := svc.Intake(context.Background(), req, transport.OriginN8N)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Fatal("expected duplicate intake to reuse the lead")
	}
	if second.ID != first.ID {
		t.Fatalf("expected same lead, got %s and %s", first.ID, second.ID)
	}
	if len(repo.leads) != 1 || len(bus.events) != 1 {
		t.Fatalf("expected one lead and one event, got %d and %d", len(repo.leads), len(bus.events))
	}
}

func TestUpdateStatusRecordsChange(t *testing.T) {
	svc, repo, bus := newTestService()
	lead, _ := svc.Create(context.Background(), transport.CreateLeadRequest{Name: "Ana"}, transport.OriginAPI)

	res, err := svc.UpdateStatus(context.Background(), lead.ID, transport.UpdateStatusRequest{Status: "qualified", Reason: "budget confirmed"}, transport.OriginN8N)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.PreviousStatus != "new" || res.Lead.Status != domain.StatusQualified {
		t.Fatalf("unexpected response %+v", res)
	}

	var found bool
	for _, a := range repo.activities[lead.ID] {
		if a.Type == domain.ActivityStatusChange && a.Metadata["new_status"] == "qualified" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a status_change activity")
	}

	changed, ok := bus.events[len(bus.events)-1].(events.LeadStatusChanged)
	if !ok || changed.OldStatus != "new" || changed.NewStatus != "qualified" {
		t.Fatalf("unexpected event %+v", bus.events[len(bus.events)-1])
	}
}

func TestUpdateStatusSameValuePublishesNothing(t *testing.T) {
	svc, _, bus := newTestService()
	lead, _ := svc.Create(context.Background(), transport.CreateLeadRequest{Name: "Ana"}, transport.OriginAPI)
	before := len(bus.events)

	if _, err := svc.UpdateStatus(context.Background(), lead.ID, transport.UpdateStatusRequest{Status: "new"}, transport.OriginAPI); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bus.events) != before {
		t.Fatalf("expected no new events, got %d", len(bus.events)-before)
	}
}

func TestLogActivityTouchesLead(t *testing.T) {
	svc, repo, _ := newTestService()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	lead, _ := svc.Create(context.Background(), transport.CreateLeadRequest{Name: "Ana"}, transport.OriginAPI)

	_, err := svc.LogActivity(context.Background(), lead.ID, transport.LogActivityRequest{Type: "call", Title: "Intro call"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored := repo.leads[lead.ID]
	if stored.LastInteractionAt == nil || !stored.LastInteractionAt.Equal(now) {
		t.Fatalf("expected last interaction %s, got %v", now, stored.LastInteractionAt)
	}
}

func TestMissingLeadIsNotFound(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.GetByID(context.Background(), uuid.New())
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := svc.Delete(context.Background(), uuid.New()); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found on delete, got %v", err)
	}
}

func TestListForProcessingClampsLimit(t *testing.T) {
	svc, repo, _ := newTestService()
	days := 7

	if _, err := svc.ListForProcessing(context.Background(), transport.ProcessingQuery{Limit: 500, DaysSinceContact: &days}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.lastFilter.Limit != 100 {
		t.Fatalf("expected limit 100, got %d", repo.lastFilter.Limit)
	}
	if !repo.lastFilter.ExcludeClosed || repo.lastFilter.InactiveBefore == nil {
		t.Fatalf("unexpected filter %+v", repo.lastFilter)
	}

	if _, err := svc.ListForProcessing(context.Background(), transport.ProcessingQuery{Status: "won"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.lastFilter.Limit != 50 || repo.lastFilter.ExcludeClosed {
		t.Fatalf("unexpected filter %+v", repo.lastFilter)
	}
}

func TestGenerateMessageWithoutProvider(t *testing.T) {
	svc, _, _ := newTestService()
	lead, _ := svc.Create(context.Background(), transport.CreateLeadRequest{Name: "Ana"}, transport.OriginAPI)

	res, err := svc.GenerateMessage(context.Background(), lead.ID, transport.GenerateMessageRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure without provider")
	}
	if errors.Is(err, errLeadNotFound) {
		t.Fatal("unexpected not found")
	}
}
