package scheduler

import (
	"context"
	"fmt"
	"time"

	"realty_crm_backend/platform/config"
	"realty_crm_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// WorkerConfig combines what the asynq worker reads.
type WorkerConfig interface {
	config.SchedulerConfig
	config.SequenceConfig
}

// Worker consumes sequence tasks from Redis and registers the periodic
// tick and sweep with an asynq scheduler.
type Worker struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	jobs      *Jobs
	log       *logger.Logger
}

func NewWorker(cfg WorkerConfig, jobs *Jobs, log *logger.Logger) (*Worker, error) {
	opt, queue, err := asynqOptions(cfg)
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	sched := asynq.NewScheduler(opt, &asynq.SchedulerOpts{Location: time.UTC})
	if err := registerPeriodic(sched, queue, cfg); err != nil {
		return nil, err
	}

	mux := asynq.NewServeMux()
	w := &Worker{
		server:    server,
		scheduler: sched,
		mux:       mux,
		jobs:      jobs,
		log:       log.WithComponent("scheduler-worker"),
	}

	mux.HandleFunc(TaskSequenceTick, w.handleSequenceTick)
	mux.HandleFunc(TaskInactivitySweep, w.handleInactivitySweep)

	return w, nil
}

func registerPeriodic(sched *asynq.Scheduler, queue string, cfg config.SequenceConfig) error {
	tick, err := NewSequenceTickTask(SequenceTickPayload{})
	if err != nil {
		return err
	}
	sweep, err := NewInactivitySweepTask(InactivitySweepPayload{})
	if err != nil {
		return err
	}

	tickEvery := interval(cfg.GetSequenceTickInterval(), 5*time.Minute)
	// Unique keeps a slow worker from piling up ticks behind the current one.
	if _, err := sched.Register("@every "+tickEvery.String(), tick, asynq.Queue(queue), asynq.Unique(tickEvery), asynq.MaxRetry(0)); err != nil {
		return fmt.Errorf("register sequence tick: %w", err)
	}
	sweepEvery := interval(cfg.GetInactivitySweepInterval(), time.Hour)
	if _, err := sched.Register("@every "+sweepEvery.String(), sweep, asynq.Queue(queue), asynq.MaxRetry(0)); err != nil {
		return fmt.Errorf("register inactivity sweep: %w", err)
	}
	return nil
}

func (w *Worker) handleSequenceTick(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseSequenceTickPayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	_, _, err = w.jobs.RunTick(ctx, payload.Limit)
	return err
}

func (w *Worker) handleInactivitySweep(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseInactivitySweepPayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	_, _, err = w.jobs.RunInactivitySweep(ctx, payload.InactiveDays, payload.Limit)
	return err
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.server == nil {
		return nil
	}

	if err := w.scheduler.Start(); err != nil {
		return fmt.Errorf("start asynq scheduler: %w", err)
	}
	defer w.scheduler.Shutdown()

	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	w.log.Info("scheduler worker started")

	<-ctx.Done()
	w.server.Shutdown()
	w.log.Info("scheduler worker stopped")
	return nil
}
