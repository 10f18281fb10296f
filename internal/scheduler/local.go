package scheduler

import (
	"context"
	"time"

	"realty_crm_backend/platform/config"
	"realty_crm_backend/platform/logger"

	"github.com/robfig/cron/v3"
)

// LocalRunner drives the jobs from an in-process cron when no Redis is
// configured. It is meant for a single scheduler instance.
type LocalRunner struct {
	ctx  context.Context
	cron *cron.Cron
	jobs *Jobs
	log  *logger.Logger
}

func NewLocalRunner(jobs *Jobs, cfg config.SequenceConfig, log *logger.Logger) *LocalRunner {
	log = log.WithComponent("scheduler-cron")
	cl := cronLogger{log: log}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	r := &LocalRunner{ctx: context.Background(), cron: c, jobs: jobs, log: log}
	c.Schedule(cron.Every(interval(cfg.GetSequenceTickInterval(), 5*time.Minute)), cron.FuncJob(r.tick))
	c.Schedule(cron.Every(interval(cfg.GetInactivitySweepInterval(), time.Hour)), cron.FuncJob(r.sweep))
	return r
}

func interval(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// Run runs one tick immediately, then blocks until ctx is cancelled and
// in-flight jobs finish.
func (r *LocalRunner) Run(ctx context.Context) error {
	r.ctx = ctx
	r.tick()
	r.cron.Start()
	r.log.Info("local scheduler started", "entries", len(r.cron.Entries()))

	<-ctx.Done()
	<-r.cron.Stop().Done()
	r.log.Info("local scheduler stopped")
	return nil
}

func (r *LocalRunner) tick() {
	_, _, _ = r.jobs.RunTick(r.ctx, 0)
}

func (r *LocalRunner) sweep() {
	_, _, _ = r.jobs.RunInactivitySweep(r.ctx, 0, 0)
}

// cronLogger adapts the structured logger to cron.Logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
