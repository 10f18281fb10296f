// Package engine runs lead automation sequences: it matches leads against
// sequence triggers, enrolls them, executes due steps and advances each
// enrollment until its steps are exhausted.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"realty_crm_backend/internal/events"
	leaddomain "realty_crm_backend/internal/leads/domain"
	"realty_crm_backend/internal/leads/scoring"
	"realty_crm_backend/internal/sequences/domain"
	"realty_crm_backend/internal/sequences/repository"
	"realty_crm_backend/platform/logger"
	"realty_crm_backend/platform/metrics"

	"github.com/google/uuid"
)

const (
	defaultBatchLimit  = 100
	defaultClaimLease  = 5 * time.Minute
	defaultCallTimeout = 10 * time.Second
)

// Rejection reasons reported when a lead is not enrolled.
const (
	ReasonAlreadyEnrolled = "already_enrolled"
	ReasonConditionsUnmet = "conditions_unmet"
	ReasonNoActiveStep    = "no_active_step"
)

// Options tunes an Engine. Zero values fall back to defaults.
type Options struct {
	BatchLimit  int
	ClaimLease  time.Duration
	CallTimeout time.Duration
	HTTPClient  *http.Client
	Now         func() time.Time
}

// Engine drives enrollments through their sequences.
type Engine struct {
	store    Store
	scorer   *scoring.Service
	messages MessageGenerator
	bus      events.Bus
	metrics  *metrics.Metrics
	log      *logger.Logger

	http        *http.Client
	now         func() time.Time
	batchLimit  int
	claimLease  time.Duration
	callTimeout time.Duration
}

// New creates an engine. messages, bus and m may be nil.
func New(store Store, scorer *scoring.Service, messages MessageGenerator, bus events.Bus, m *metrics.Metrics, log *logger.Logger, opts Options) *Engine {
	e := &Engine{
		store:       store,
		scorer:      scorer,
		messages:    messages,
		bus:         bus,
		metrics:     m,
		log:         log,
		http:        opts.HTTPClient,
		now:         opts.Now,
		batchLimit:  opts.BatchLimit,
		claimLease:  opts.ClaimLease,
		callTimeout: opts.CallTimeout,
	}
	if e.http == nil {
		e.http = &http.Client{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.batchLimit <= 0 {
		e.batchLimit = defaultBatchLimit
	}
	if e.claimLease <= 0 {
		e.claimLease = defaultClaimLease
	}
	if e.callTimeout <= 0 {
		e.callTimeout = defaultCallTimeout
	}
	return e
}

func (e *Engine) publish(ctx context.Context, evts []events.Event) {
	if e.bus == nil {
		return
	}
	for _, evt := range evts {
		e.bus.Publish(ctx, evt)
	}
}

// Enroll binds lead to seq at the first active step. It returns nil without
// an error when the lead is rejected; the reason is logged.
func (e *Engine) Enroll(ctx context.Context, lead leaddomain.Lead, seq domain.Sequence) (*domain.Enrollment, error) {
	var created *domain.Enrollment
	err := e.store.WithinTx(ctx, func(tx Store) error {
		en, err := e.enroll(ctx, tx, lead, seq)
		created = en
		return err
	})
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, nil
	}

	e.metrics.EnrollmentCreated(string(seq.TriggerType))
	e.publish(ctx, []events.Event{events.LeadEnrolled{
		BaseEvent:    events.NewBaseEventAt(e.now()),
		EnrollmentID: created.ID,
		LeadID:       lead.ID,
		SequenceID:   seq.ID,
		SequenceName: seq.Name,
	}})
	return created, nil
}

func (e *Engine) enroll(ctx context.Context, tx Store, lead leaddomain.Lead, seq domain.Sequence) (*domain.Enrollment, error) {
	live, err := tx.Sequences().HasLiveEnrollment(ctx, lead.ID, seq.ID)
	if err != nil {
		return nil, err
	}
	if live {
		e.reject(lead, seq, ReasonAlreadyEnrolled)
		return nil, nil
	}
	if !seq.Matches(lead) {
		e.reject(lead, seq, ReasonConditionsUnmet)
		return nil, nil
	}

	steps, err := tx.Sequences().ListSteps(ctx, seq.ID)
	if err != nil {
		return nil, err
	}
	first, ok := domain.FirstActiveStep(steps)
	if !ok {
		e.reject(lead, seq, ReasonNoActiveStep)
		return nil, nil
	}

	now := e.now()
	var en domain.Enrollment
	// The savepoint keeps the transaction usable when a concurrent enroll
	// wins the unique index.
	err = tx.WithinTx(ctx, func(sp Store) error {
		var err error
		en, err = sp.Sequences().CreateEnrollment(ctx, repository.CreateEnrollmentParams{
			LeadID:        lead.ID,
			SequenceID:    seq.ID,
			CurrentStepID: first.ID,
			EnrolledAt:    now,
			NextActionAt:  now.Add(first.Delay()),
			Metadata:      map[string]any{"trigger": string(seq.TriggerType)},
		})
		return err
	})
	if errors.Is(err, repository.ErrAlreadyEnrolled) {
		e.reject(lead, seq, ReasonAlreadyEnrolled)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.Leads().AddActivity(ctx, leaddomain.NewActivity{
		LeadID:      lead.ID,
		Type:        leaddomain.ActivityNote,
		Title:       "Enrolled in sequence",
		Description: fmt.Sprintf("Lead enrolled in automation sequence: %s", seq.Name),
		Metadata: map[string]any{
			"sequence_id":   seq.ID.String(),
			"sequence_name": seq.Name,
		},
	}); err != nil {
		return nil, err
	}

	e.log.Info("lead enrolled in sequence",
		"lead_id", lead.ID, "sequence_id", seq.ID, "first_action_at", en.NextActionAt)
	return &en, nil
}

func (e *Engine) reject(lead leaddomain.Lead, seq domain.Sequence, reason string) {
	e.log.EnrollmentRejected(lead.ID.String(), seq.ID.String(), reason)
	e.metrics.EnrollmentRejected(reason)
}

// AutoEnrollForTrigger offers lead to every active sequence of trigger,
// highest priority first, and returns the names of the sequences it joined.
// A failure on one sequence does not stop the others.
func (e *Engine) AutoEnrollForTrigger(ctx context.Context, lead leaddomain.Lead, trigger domain.TriggerType) ([]string, error) {
	sequences, err := e.store.Sequences().ListActiveSequences(ctx, trigger)
	if err != nil {
		return nil, err
	}

	enrolled := make([]string, 0)
	var errs []error
	for _, seq := range sequences {
		en, err := e.Enroll(ctx, lead, seq)
		if err != nil {
			e.log.Error("auto enrollment failed", "lead_id", lead.ID, "sequence_id", seq.ID, "error", err)
			errs = append(errs, fmt.Errorf("sequence %s: %w", seq.ID, err))
			continue
		}
		if en != nil {
			enrolled = append(enrolled, seq.Name)
		}
	}
	return enrolled, errors.Join(errs...)
}

// AutoEnrollLead loads the lead and runs AutoEnrollForTrigger.
func (e *Engine) AutoEnrollLead(ctx context.Context, leadID uuid.UUID, trigger domain.TriggerType) ([]string, error) {
	lead, err := e.store.Leads().GetByID(ctx, leadID)
	if err != nil {
		return nil, err
	}
	return e.AutoEnrollForTrigger(ctx, lead, trigger)
}

// Advance moves the enrollment past its current step, completing it when no
// active step follows. It reports whether another step is scheduled.
func (e *Engine) Advance(ctx context.Context, en domain.Enrollment) (bool, error) {
	var advanced bool
	err := e.store.WithinTx(ctx, func(tx Store) error {
		steps, err := tx.Sequences().ListSteps(ctx, en.SequenceID)
		if err != nil {
			return err
		}
		advanced, err = e.advance(ctx, tx, en, steps)
		return err
	})
	if err != nil {
		return false, err
	}
	if !advanced {
		e.publish(ctx, []events.Event{e.completedEvent(en)})
	}
	return advanced, nil
}

// advance picks the next active step after the current one, or the first
// active step when the enrollment has not started. A current step that no
// longer exists completes the enrollment.
func (e *Engine) advance(ctx context.Context, tx Store, en domain.Enrollment, steps []domain.Step) (bool, error) {
	var (
		next domain.Step
		ok   bool
	)
	if en.CurrentStepID == nil {
		next, ok = domain.FirstActiveStep(steps)
	} else if current, found := domain.FindStep(steps, *en.CurrentStepID); found {
		next, ok = domain.NextActiveStep(steps, current.Order)
	}

	now := e.now()
	if !ok {
		return false, tx.Sequences().CompleteEnrollment(ctx, en.ID, now)
	}
	return true, tx.Sequences().MoveToStep(ctx, en.ID, next.ID, now.Add(next.Delay()))
}

func (e *Engine) completedEvent(en domain.Enrollment) events.Event {
	return events.EnrollmentCompleted{
		BaseEvent:    events.NewBaseEventAt(e.now()),
		EnrollmentID: en.ID,
		LeadID:       en.LeadID,
		SequenceID:   en.SequenceID,
	}
}
