package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"realty_crm_backend/internal/events"
	"realty_crm_backend/internal/leads"
	"realty_crm_backend/internal/messaging"
	"realty_crm_backend/internal/scheduler"
	"realty_crm_backend/internal/sequences"
	"realty_crm_backend/platform/config"
	"realty_crm_backend/platform/db"
	"realty_crm_backend/platform/logger"
	"realty_crm_backend/platform/metrics"
	"realty_crm_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env, "redis", cfg.IsRedisEnabled())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)
	defer eventBus.Wait()

	m := metrics.New()

	generator, err := messaging.NewFromConfig(ctx, cfg, log.WithComponent("messaging"))
	if err != nil {
		log.Error("failed to initialize message generator", "error", err)
		panic("failed to initialize message generator: " + err.Error())
	}

	// Worker-side engine wiring (no HTTP handlers required).
	val := validator.New()
	leadsModule := leads.NewModule(pool, eventBus, val, generator, cfg, m, log)
	sequencesModule := sequences.NewModule(pool, leadsModule, eventBus, val, generator, cfg, m, log)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.IsRedisEnabled() {
		rdb, err := scheduler.NewRedisClient(cfg)
		if err != nil {
			log.Error("failed to initialize redis client", "error", err)
			panic("failed to initialize redis client: " + err.Error())
		}
		defer func() { _ = rdb.Close() }()

		jobs := scheduler.NewJobs(sequencesModule.Engine(), scheduler.NewTickLock(rdb), cfg, log)
		worker, err := scheduler.NewWorker(cfg, jobs, log)
		if err != nil {
			log.Error("failed to initialize scheduler worker", "error", err)
			panic("failed to initialize scheduler worker: " + err.Error())
		}
		g.Go(func() error { return worker.Run(gctx) })

		client, err := scheduler.NewClient(cfg)
		if err != nil {
			log.Error("failed to initialize scheduler client", "error", err)
			panic("failed to initialize scheduler client: " + err.Error())
		}
		defer func() { _ = client.Close() }()
		// Work that came due while the scheduler was down runs right away.
		if err := client.EnqueueTick(ctx, 0); err != nil {
			log.Warn("failed to enqueue startup tick", "error", err)
		}
	} else {
		log.Warn("REDIS_URL not configured; running in-process cron, do not scale beyond one instance")
		jobs := scheduler.NewJobs(sequencesModule.Engine(), nil, cfg, log)
		runner := scheduler.NewLocalRunner(jobs, cfg, log)
		g.Go(func() error { return runner.Run(gctx) })
	}

	metricsSrv := &http.Server{
		Addr:              cfg.GetMetricsAddr(),
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		log.Info("metrics listening", "addr", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("scheduler stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("scheduler stopped")
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return fmt.Errorf("%s: %w", name, lastErr)
}
