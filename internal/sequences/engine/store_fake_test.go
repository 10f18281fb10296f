package engine

import (
	"bytes"
	"context"
	"errors"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	leaddomain "realty_crm_backend/internal/leads/domain"
	"realty_crm_backend/internal/sequences/domain"
	"realty_crm_backend/internal/sequences/repository"

	"github.com/google/uuid"
)

var errNotFound = errors.New("not found")

type fakeClaim struct {
	token uuid.UUID
	until time.Time
}

// memStore is an in-memory Store. WithinTx does not roll back; tests that
// need rollback behaviour assert on outcomes instead. Claims are the
// exception: a failed outermost WithinTx restores them, and it fails like a
// commit when ctx is cancelled. Row locks last until it returns.
type memStore struct {
	mu          sync.Mutex
	leads       map[uuid.UUID]*leaddomain.Lead
	activities  []leaddomain.NewActivity
	sequences   map[uuid.UUID]domain.Sequence
	steps       map[uuid.UUID][]domain.Step
	enrollments map[uuid.UUID]*domain.Enrollment
	logs        []repository.RecordExecutionParams
	claims      map[uuid.UUID]fakeClaim
	locked      map[uuid.UUID]bool
	txDepth     int
	released    []uuid.UUID

	panicOnTag string
}

func newMemStore() *memStore {
	return &memStore{
		leads:       map[uuid.UUID]*leaddomain.Lead{},
		sequences:   map[uuid.UUID]domain.Sequence{},
		steps:       map[uuid.UUID][]domain.Step{},
		enrollments: map[uuid.UUID]*domain.Enrollment{},
		claims:      map[uuid.UUID]fakeClaim{},
		locked:      map[uuid.UUID]bool{},
	}
}

func (s *memStore) Leads() LeadStore         { return s }
func (s *memStore) Sequences() SequenceStore { return s }

func (s *memStore) WithinTx(ctx context.Context, fn func(Store) error) error {
	s.mu.Lock()
	s.txDepth++
	var claims map[uuid.UUID]fakeClaim
	if s.txDepth == 1 {
		claims = maps.Clone(s.claims)
	}
	s.mu.Unlock()

	err := fn(s)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.txDepth--
	if s.txDepth > 0 {
		return err
	}
	clear(s.locked)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		s.claims = claims
	}
	return err
}

// stealClaims hands every unlocked claim to another token, as a tick that
// re-claimed expired leases would.
func (s *memStore) stealClaims() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.claims {
		if !s.locked[id] {
			c.token = uuid.New()
			s.claims[id] = c
		}
	}
}

func (s *memStore) addLead(l leaddomain.Lead) leaddomain.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.Status == "" {
		l.Status = leaddomain.StatusNew
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	s.leads[l.ID] = &l
	return l
}

func (s *memStore) addSequence(seq domain.Sequence, steps ...domain.Step) domain.Sequence {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq.ID == uuid.Nil {
		seq.ID = uuid.New()
	}
	seq.IsActive = true
	if seq.TriggerType == "" {
		seq.TriggerType = domain.TriggerManual
	}
	s.sequences[seq.ID] = seq
	for i := range steps {
		if steps[i].ID == uuid.Nil {
			steps[i].ID = uuid.New()
		}
		steps[i].SequenceID = seq.ID
		if steps[i].Action != nil {
			steps[i].ActionType = steps[i].Action.Type()
		}
	}
	s.steps[seq.ID] = steps
	return seq
}

func (s *memStore) enrollment(id uuid.UUID) domain.Enrollment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.enrollments[id]
}

func (s *memStore) lead(id uuid.UUID) leaddomain.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.leads[id]
}

func (s *memStore) activitiesOf(id uuid.UUID, t leaddomain.ActivityType) []leaddomain.NewActivity {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []leaddomain.NewActivity
	for _, a := range s.activities {
		if a.LeadID == id && a.Type == t {
			out = append(out, a)
		}
	}
	return out
}

func (s *memStore) GetByID(_ context.Context, id uuid.UUID) (leaddomain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok {
		return leaddomain.Lead{}, errNotFound
	}
	return *l, nil
}

func (s *memStore) CountActivities(_ context.Context, leadID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.activities {
		if a.LeadID == leadID {
			n++
		}
	}
	return n, nil
}

func (s *memStore) UpdateScoreIfChanged(_ context.Context, leadID uuid.UUID, score int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[leadID]
	if !ok {
		return 0, false, errNotFound
	}
	previous := l.Score
	if previous == score {
		return previous, false, nil
	}
	l.Score = score
	return previous, true, nil
}

func (s *memStore) AddActivity(_ context.Context, a leaddomain.NewActivity) (leaddomain.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities = append(s.activities, a)
	return leaddomain.Activity{ID: uuid.New(), LeadID: a.LeadID, Type: a.Type, Title: a.Title}, nil
}

func (s *memStore) UpdateStatus(_ context.Context, id uuid.UUID, status leaddomain.Status) (leaddomain.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok {
		return "", errNotFound
	}
	previous := l.Status
	l.Status = status
	return previous, nil
}

func (s *memStore) AddTag(_ context.Context, id uuid.UUID, tag string) (bool, error) {
	if s.panicOnTag != "" && tag == s.panicOnTag {
		panic("tag store exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok {
		return false, errNotFound
	}
	if l.HasTag(tag) {
		return false, nil
	}
	l.Tags = append(l.Tags, tag)
	return true, nil
}

// ListInactivityCandidates mirrors the SQL: open leads quiet since before,
// ordered by id, that some active inactivity sequence has not enrolled live
// or since their last touch.
func (s *memStore) ListInactivityCandidates(_ context.Context, before time.Time, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []uuid.UUID
	for id, l := range s.leads {
		if l.Status.IsClosed() || !l.LastTouch().Before(before) || bytes.Compare(id[:], after[:]) <= 0 {
			continue
		}
		if s.openInactivitySequence(*l) {
			out = append(out, id)
		}
	}
	slices.SortFunc(out, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) openInactivitySequence(l leaddomain.Lead) bool {
	for _, seq := range s.sequences {
		if !seq.IsActive || seq.TriggerType != domain.TriggerInactivity {
			continue
		}
		taken := false
		for _, en := range s.enrollments {
			if en.LeadID == l.ID && en.SequenceID == seq.ID && (en.Status.IsLive() || !en.EnrolledAt.Before(l.LastTouch())) {
				taken = true
				break
			}
		}
		if !taken {
			return true
		}
	}
	return false
}

func (s *memStore) ListActiveSequences(_ context.Context, trigger domain.TriggerType) ([]domain.Sequence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Sequence
	for _, seq := range s.sequences {
		if seq.IsActive && seq.TriggerType == trigger {
			out = append(out, seq)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

func (s *memStore) GetSequence(_ context.Context, id uuid.UUID) (domain.Sequence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.sequences[id]
	if !ok {
		return domain.Sequence{}, repository.ErrSequenceNotFound
	}
	return seq, nil
}

func (s *memStore) ListSteps(_ context.Context, sequenceID uuid.UUID) ([]domain.Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.steps[sequenceID]), nil
}

func (s *memStore) GetEnrollment(_ context.Context, id uuid.UUID) (domain.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	en, ok := s.enrollments[id]
	if !ok {
		return domain.Enrollment{}, repository.ErrEnrollmentNotFound
	}
	return *en, nil
}

func (s *memStore) HasLiveEnrollment(_ context.Context, leadID, sequenceID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasLive(leadID, sequenceID), nil
}

func (s *memStore) hasLive(leadID, sequenceID uuid.UUID) bool {
	for _, en := range s.enrollments {
		if en.LeadID == leadID && en.SequenceID == sequenceID && en.Status.IsLive() {
			return true
		}
	}
	return false
}

func (s *memStore) EnrolledSince(_ context.Context, leadID, sequenceID uuid.UUID, since time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, en := range s.enrollments {
		if en.LeadID == leadID && en.SequenceID == sequenceID && !en.EnrolledAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) CreateEnrollment(_ context.Context, p repository.CreateEnrollmentParams) (domain.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasLive(p.LeadID, p.SequenceID) {
		return domain.Enrollment{}, repository.ErrAlreadyEnrolled
	}
	stepID := p.CurrentStepID
	next := p.NextActionAt
	en := &domain.Enrollment{
		ID:            uuid.New(),
		LeadID:        p.LeadID,
		SequenceID:    p.SequenceID,
		CurrentStepID: &stepID,
		Status:        domain.EnrollmentActive,
		EnrolledAt:    p.EnrolledAt,
		NextActionAt:  &next,
		Metadata:      p.Metadata,
	}
	s.enrollments[en.ID] = en
	return *en, nil
}

func (s *memStore) ClaimDueEnrollments(_ context.Context, now, leaseUntil time.Time, token uuid.UUID, limit int) ([]domain.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*domain.Enrollment
	for id, en := range s.enrollments {
		if en.Status != domain.EnrollmentActive || en.NextActionAt == nil || en.NextActionAt.After(now) || s.locked[id] {
			continue
		}
		if c, ok := s.claims[id]; ok && !c.until.Before(now) {
			continue
		}
		due = append(due, en)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextActionAt.Before(*due[j].NextActionAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	out := make([]domain.Enrollment, 0, len(due))
	for _, en := range due {
		out = append(out, *en)
		s.claims[en.ID] = fakeClaim{token: token, until: leaseUntil}
	}
	return out, nil
}

func (s *memStore) LockClaim(_ context.Context, id, token uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	en, ok := s.enrollments[id]
	if !ok {
		return false, nil
	}
	s.locked[id] = true
	c, claimed := s.claims[id]
	return en.Status == domain.EnrollmentActive && claimed && c.token == token, nil
}

func (s *memStore) ReleaseClaim(_ context.Context, id, token uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.claims[id]; ok && c.token == token {
		delete(s.claims, id)
		s.released = append(s.released, id)
	}
	return nil
}

func (s *memStore) MoveToStep(_ context.Context, id, stepID uuid.UUID, nextActionAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	en, ok := s.enrollments[id]
	if !ok {
		return repository.ErrEnrollmentNotFound
	}
	en.CurrentStepID = &stepID
	en.NextActionAt = &nextActionAt
	delete(s.claims, id)
	return nil
}

func (s *memStore) CompleteEnrollment(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	en, ok := s.enrollments[id]
	if !ok {
		return repository.ErrEnrollmentNotFound
	}
	en.Status = domain.EnrollmentCompleted
	en.NextActionAt = nil
	en.CompletedAt = &at
	delete(s.claims, id)
	return nil
}

func (s *memStore) RecordExecution(_ context.Context, p repository.RecordExecutionParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, p)
	return nil
}
