package scheduler

import (
	"context"
	"time"

	"realty_crm_backend/internal/sequences/engine"
	"realty_crm_backend/platform/config"
	"realty_crm_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	lockSequenceTick    = "sequences:tick"
	lockInactivitySweep = "sequences:inactivity_sweep"

	defaultSweepPageSize = 500
)

// SequenceEngine is the part of the sequence engine the scheduler drives.
type SequenceEngine interface {
	ProcessReadyEnrollments(ctx context.Context, limit int) (engine.Result, error)
	InactivitySweep(ctx context.Context, inactiveFor time.Duration, pageSize int) (engine.SweepResult, error)
}

// Locker guards a job against concurrent runs in other processes.
type Locker interface {
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (release func(), ok bool, err error)
}

// Jobs runs the periodic sequence work. Both the asynq worker and the
// cron runner call into it.
type Jobs struct {
	engine       SequenceEngine
	lock         Locker
	log          *logger.Logger
	tickLease    time.Duration
	sweepLease   time.Duration
	inactiveDays int
}

// NewJobs builds the job set. lock may be nil when Redis is not configured.
func NewJobs(eng SequenceEngine, lock Locker, cfg config.SequenceConfig, log *logger.Logger) *Jobs {
	tickLease := cfg.GetSequenceClaimLease()
	if tickLease <= 0 {
		tickLease = 5 * time.Minute
	}
	sweepLease := cfg.GetInactivitySweepInterval()
	if sweepLease <= 0 {
		sweepLease = time.Hour
	}
	days := cfg.GetInactivityDays()
	if days <= 0 {
		days = 7
	}
	return &Jobs{
		engine:       eng,
		lock:         lock,
		log:          log.WithComponent("scheduler"),
		tickLease:    tickLease,
		sweepLease:   sweepLease,
		inactiveDays: days,
	}
}

// RunTick processes due enrollments. It reports skipped=true when another
// process holds the tick lock.
func (j *Jobs) RunTick(ctx context.Context, limit int) (res engine.Result, skipped bool, err error) {
	ctx = withTickID(ctx)
	release, ok, err := j.acquire(ctx, lockSequenceTick, j.tickLease)
	if err != nil || !ok {
		return engine.Result{}, !ok && err == nil, err
	}
	defer release()

	res, err = j.engine.ProcessReadyEnrollments(ctx, limit)
	if err != nil {
		j.log.WithContext(ctx).Error("sequence tick failed", "error", err)
	}
	return res, false, err
}

// RunInactivitySweep offers every quiet lead to inactivity sequences, limit
// leads per page. inactiveDays <= 0 uses the configured window.
func (j *Jobs) RunInactivitySweep(ctx context.Context, inactiveDays, limit int) (res engine.SweepResult, skipped bool, err error) {
	ctx = withTickID(ctx)
	if inactiveDays <= 0 {
		inactiveDays = j.inactiveDays
	}
	if limit <= 0 {
		limit = defaultSweepPageSize
	}

	release, ok, err := j.acquire(ctx, lockInactivitySweep, j.sweepLease)
	if err != nil || !ok {
		return engine.SweepResult{}, !ok && err == nil, err
	}
	defer release()

	res, err = j.engine.InactivitySweep(ctx, time.Duration(inactiveDays)*24*time.Hour, limit)
	log := j.log.WithContext(ctx)
	if err != nil {
		log.Error("inactivity sweep finished with errors", "scanned", res.Scanned, "enrolled", res.Enrolled, "error", err)
	} else if res.Enrolled > 0 {
		log.Info("inactivity sweep finished", "scanned", res.Scanned, "enrolled", res.Enrolled)
	}
	return res, false, err
}

func (j *Jobs) acquire(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	if j.lock == nil {
		return func() {}, true, nil
	}
	release, ok, err := j.lock.TryAcquire(ctx, name, ttl)
	if err != nil {
		j.log.WithContext(ctx).Error("tick lock unavailable", "lock", name, "error", err)
		return nil, false, err
	}
	if !ok {
		j.log.WithContext(ctx).Debug("tick lock held elsewhere", "lock", name)
		return nil, false, nil
	}
	return release, true, nil
}

func withTickID(ctx context.Context) context.Context {
	if id, ok := ctx.Value(logger.TickIDKey).(string); ok && id != "" {
		return ctx
	}
	return context.WithValue(ctx, logger.TickIDKey, uuid.NewString())
}
