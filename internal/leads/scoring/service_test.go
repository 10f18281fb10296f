package scoring

import (
	"context"
	"testing"
	"time"

	"realty_crm_backend/internal/leads/domain"
	"realty_crm_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeStore struct {
	lead       domain.Lead
	activities int
	appended   []domain.NewActivity
	writes     int
}

func (f *fakeStore) GetByID(context.Context, uuid.UUID) (domain.Lead, error) {
	return f.lead, nil
}

func (f *fakeStore) CountActivities(context.Context, uuid.UUID) (int, error) {
	return f.activities, nil
}

func (f *fakeStore) UpdateScoreIfChanged(_ context.Context, _ uuid.UUID, score int) (int, bool, error) {
	previous := f.lead.Score
	if previous == score {
		return previous, false, nil
	}
	f.lead.Score = score
	f.writes++
	return previous, true, nil
}

func (f *fakeStore) AddActivity(_ context.Context, a domain.NewActivity) (domain.Activity, error) {
	f.appended = append(f.appended, a)
	return domain.Activity{ID: uuid.New(), LeadID: a.LeadID, Type: a.Type, Title: a.Title}, nil
}

func newTestService() *Service {
	return New(logger.Nop(), nil).WithClock(func() time.Time { return now })
}

func TestUpdateScoreLogsSignificantChange(t *testing.T) {
	store := &fakeStore{lead: domain.Lead{
		ID:                uuid.New(),
		Source:            domain.SourceReferral,
		LastInteractionAt: ptr(now),
	}}

	res, err := newTestService().UpdateScore(context.Background(), store, store.lead.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Changed || res.Previous != 0 || res.Current != 30 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(store.appended) != 1 || store.appended[0].Type != domain.ActivityScoreUpdate {
		t.Fatalf("expected one score_update activity, got %+v", store.appended)
	}
	if store.appended[0].Metadata["change"] != 30 {
		t.Fatalf("expected change metadata 30, got %v", store.appended[0].Metadata["change"])
	}
}

func TestUpdateScoreSkipsSmallChangeLog(t *testing.T) {
	store := &fakeStore{lead: domain.Lead{
		ID:                uuid.New(),
		Source:            domain.SourceReferral,
		LastInteractionAt: ptr(now),
		Score:             25,
	}}

	res, err := newTestService().UpdateScore(context.Background(), store, store.lead.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Changed || res.Current != 30 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(store.appended) != 0 {
		t.Fatalf("expected no activity for a 5 point change, got %d", len(store.appended))
	}
}

func TestUpdateScoreNoWriteWhenUnchanged(t *testing.T) {
	store := &fakeStore{lead: domain.Lead{
		ID:                uuid.New(),
		Source:            domain.SourceReferral,
		LastInteractionAt: ptr(now),
		Score:             30,
	}}

	res, err := newTestService().UpdateScore(context.Background(), store, store.lead.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Changed || store.writes != 0 {
		t.Fatalf("expected no write, got %+v writes=%d", res, store.writes)
	}
}
