package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"realty_crm_backend/internal/events"
	leaddomain "realty_crm_backend/internal/leads/domain"
	"realty_crm_backend/internal/sequences/domain"
	"realty_crm_backend/internal/sequences/repository"

	"github.com/google/uuid"
)

// Result tallies one ProcessReadyEnrollments pass. Failed and Completed are
// independent: an enrollment can fail its step and still complete.
type Result struct {
	Processed int `json:"processed"`
	Success   int `json:"success"`
	Failed    int `json:"failed"`
	Completed int `json:"completed"`
}

// ProcessReadyEnrollments claims up to limit due enrollments and runs each
// one's current step, then advances it. A step that fails or panics still
// advances so a broken step cannot wedge the lead. limit <= 0 uses the
// configured batch limit.
//
// Claims belong to this call's token. An enrollment whose claim was taken
// over by another tick is left alone, and the pass stops early enough that
// its last step finishes inside the lease.
func (e *Engine) ProcessReadyEnrollments(ctx context.Context, limit int) (Result, error) {
	if limit <= 0 {
		limit = e.batchLimit
	}
	start := time.Now()
	now := e.now()
	token := uuid.New()
	leaseUntil := now.Add(e.claimLease)
	deadline := leaseUntil.Add(-e.leaseMargin())

	claimed, err := e.store.Sequences().ClaimDueEnrollments(ctx, now, leaseUntil, token, limit)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for i, en := range claimed {
		if ctx.Err() != nil {
			e.releaseClaims(ctx, claimed[i:], token)
			break
		}
		if !e.now().Before(deadline) {
			e.log.WithContext(ctx).Warn("claim lease running out, handing back the rest of the batch",
				"remaining", len(claimed)-i)
			e.releaseClaims(ctx, claimed[i:], token)
			break
		}

		out, err := e.processOne(ctx, en, token)
		if err != nil {
			res.Processed++
			res.Failed++
			e.log.WithContext(ctx).Error("sequence enrollment processing failed",
				"enrollment_id", en.ID, "lead_id", en.LeadID, "error", err)
			if ctx.Err() != nil {
				e.releaseClaims(ctx, claimed[i:i+1], token)
			}
			continue
		}
		if out.lost {
			e.log.WithContext(ctx).Warn("enrollment claimed by another tick, skipping", "enrollment_id", en.ID)
			continue
		}
		res.Processed++
		if out.failed {
			res.Failed++
		}
		if out.success {
			res.Success++
		}
		if out.completed {
			res.Completed++
		}
	}

	e.metrics.TickFinished(time.Since(start), res.Success, res.Failed, res.Completed)
	if res.Processed > 0 {
		e.log.WithContext(ctx).Info("sequence enrollments processed",
			"processed", res.Processed, "success", res.Success, "failed", res.Failed, "completed", res.Completed)
	}
	return res, ctx.Err()
}

// leaseMargin is the time one enrollment may take, external call included.
func (e *Engine) leaseMargin() time.Duration {
	return min(e.callTimeout, e.claimLease/2)
}

// releaseClaims hands unprocessed enrollments back so the next tick does not
// wait for their lease to run out.
func (e *Engine) releaseClaims(ctx context.Context, pending []domain.Enrollment, token uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	for _, en := range pending {
		if err := e.store.Sequences().ReleaseClaim(ctx, en.ID, token); err != nil {
			e.log.WithContext(ctx).Warn("failed to release enrollment claim", "enrollment_id", en.ID, "error", err)
		}
	}
}

type processOutcome struct {
	success   bool
	failed    bool
	completed bool
	lost      bool
}

// processOne executes and advances one enrollment inside a single
// transaction that holds the enrollment's row lock. The step itself runs in a
// savepoint so a store error inside it rolls back only the step's writes.
func (e *Engine) processOne(ctx context.Context, en domain.Enrollment, token uuid.UUID) (_ processOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("enrollment %s panicked: %v", en.ID, r)
		}
	}()

	var (
		out     processOutcome
		pending []events.Event
	)

	err = e.store.WithinTx(ctx, func(tx Store) error {
		held, err := tx.Sequences().LockClaim(ctx, en.ID, token)
		if err != nil {
			return err
		}
		if !held {
			out.lost = true
			return nil
		}

		lead, err := tx.Leads().GetByID(ctx, en.LeadID)
		if err != nil {
			return err
		}
		steps, err := tx.Sequences().ListSteps(ctx, en.SequenceID)
		if err != nil {
			return err
		}

		var step *domain.Step
		if en.CurrentStepID != nil {
			if s, found := domain.FindStep(steps, *en.CurrentStepID); found {
				step = &s
			}
		}

		res, errored := e.runStep(ctx, tx, lead, step)
		out.success = res.ok
		out.failed = errored

		actionType := "none"
		if step != nil {
			actionType = string(step.ActionType)
		}
		e.metrics.StepExecuted(actionType, string(res.status))
		e.log.StepOutcome(en.ID.String(), actionType, res.ok, res.detail)

		var stepID *uuid.UUID
		if step != nil {
			stepID = &step.ID
		}
		if err := tx.Sequences().RecordExecution(ctx, repository.RecordExecutionParams{
			EnrollmentID: en.ID,
			StepID:       stepID,
			Status:       res.status,
			Result:       res.detail,
			ScheduledAt:  en.NextActionAt,
			ExecutedAt:   e.now(),
		}); err != nil {
			return err
		}

		advanced, err := e.advance(ctx, tx, en, steps)
		if err != nil {
			return err
		}
		if !advanced {
			out.completed = true
			pending = append(pending, e.completedEvent(en))
		}
		return nil
	})
	if err != nil {
		return processOutcome{}, err
	}

	e.publish(ctx, pending)
	return out, nil
}

// runStep executes step inside a savepoint of tx. Store errors and panics
// become a failed result with errored set; the savepoint is rolled back.
func (e *Engine) runStep(ctx context.Context, tx Store, lead leaddomain.Lead, step *domain.Step) (stepResult, bool) {
	switch {
	case step == nil:
		return skipped("no current step"), false
	case !step.IsActive:
		return skipped("step inactive"), false
	}

	var res stepResult
	err := tx.WithinTx(ctx, func(sp Store) error {
		var err error
		res, err = e.execute(ctx, sp, lead, *step)
		return err
	})
	if err != nil {
		return failed(err.Error()), true
	}
	return res, false
}

// Execute runs the enrollment's current step on its own, without advancing.
// It reports whether the action was performed.
func (e *Engine) Execute(ctx context.Context, en domain.Enrollment) (bool, error) {
	var ok bool
	err := e.store.WithinTx(ctx, func(tx Store) error {
		lead, err := tx.Leads().GetByID(ctx, en.LeadID)
		if err != nil {
			return err
		}
		steps, err := tx.Sequences().ListSteps(ctx, en.SequenceID)
		if err != nil {
			return err
		}
		var step *domain.Step
		if en.CurrentStepID != nil {
			if s, found := domain.FindStep(steps, *en.CurrentStepID); found {
				step = &s
			}
		}
		res, errored := e.runStep(ctx, tx, lead, step)
		if errored {
			e.log.Error("sequence step failed", "enrollment_id", en.ID, "error", res.detail)
		}
		ok = res.ok
		return nil
	})
	return ok, err
}

// SweepResult tallies one inactivity sweep.
type SweepResult struct {
	Scanned  int `json:"scanned"`
	Enrolled int `json:"enrolled"`
}

// InactivitySweep rescores open leads untouched for inactiveFor and offers
// them to inactivity sequences. Candidates are paged by id, pageSize at a
// time, and exclude leads every inactivity sequence has already enrolled
// since their last touch, so one pass reaches the whole backlog.
func (e *Engine) InactivitySweep(ctx context.Context, inactiveFor time.Duration, pageSize int) (SweepResult, error) {
	if pageSize <= 0 {
		pageSize = e.batchLimit
	}
	sequences, err := e.store.Sequences().ListActiveSequences(ctx, domain.TriggerInactivity)
	if err != nil {
		return SweepResult{}, err
	}
	if len(sequences) == 0 {
		return SweepResult{}, nil
	}

	cutoff := e.now().Add(-inactiveFor)
	var (
		res   SweepResult
		errs  []error
		after uuid.UUID
	)
	for ctx.Err() == nil {
		ids, err := e.store.Sequences().ListInactivityCandidates(ctx, cutoff, after, pageSize)
		if err != nil {
			errs = append(errs, err)
			break
		}
		for _, id := range ids {
			if ctx.Err() != nil {
				break
			}
			res.Scanned++
			n, err := e.offerInactive(ctx, id, sequences)
			res.Enrolled += n
			if err != nil {
				errs = append(errs, err)
			}
		}
		if len(ids) < pageSize {
			break
		}
		after = ids[len(ids)-1]
	}

	if res.Scanned > 0 {
		e.log.Info("inactivity sweep finished", "scanned", res.Scanned, "enrolled", res.Enrolled)
	}
	return res, errors.Join(errs...)
}

func (e *Engine) offerInactive(ctx context.Context, leadID uuid.UUID, sequences []domain.Sequence) (int, error) {
	if e.scorer != nil {
		if _, err := e.scorer.UpdateScore(ctx, e.store.Leads(), leadID); err != nil {
			return 0, err
		}
	}
	lead, err := e.store.Leads().GetByID(ctx, leadID)
	if err != nil {
		return 0, err
	}

	var (
		enrolled int
		errs     []error
	)
	for _, seq := range sequences {
		seen, err := e.store.Sequences().EnrolledSince(ctx, lead.ID, seq.ID, lead.LastTouch())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if seen {
			continue
		}
		en, err := e.Enroll(ctx, lead, seq)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if en != nil {
			enrolled++
		}
	}
	return enrolled, errors.Join(errs...)
}
