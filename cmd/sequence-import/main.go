// sequence-import creates sequences from a YAML definition file.
//
//	sequence-import -f sequences.yaml [--dry-run] [--tick]
//
// Every sequence in the file is validated before anything is written, so a
// typo in the last entry leaves the database untouched.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"realty_crm_backend/internal/events"
	"realty_crm_backend/internal/leads"
	"realty_crm_backend/internal/scheduler"
	"realty_crm_backend/internal/sequences"
	"realty_crm_backend/internal/sequences/loader"
	"realty_crm_backend/internal/sequences/transport"
	"realty_crm_backend/platform/config"
	"realty_crm_backend/platform/db"
	"realty_crm_backend/platform/logger"
	"realty_crm_backend/platform/validator"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		filePath string
		dryRun   bool
		tick     bool
	)

	flagSet := pflag.NewFlagSet("sequence-import", pflag.ContinueOnError)
	flagSet.StringVarP(&filePath, "file", "f", "", "path to the sequences YAML file")
	flagSet.BoolVar(&dryRun, "dry-run", false, "validate the file without writing")
	flagSet.BoolVar(&tick, "tick", false, "enqueue a scheduler tick after import (requires REDIS_URL)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if filePath == "" {
		flagSet.PrintDefaults()
		return errors.New("--file is required")
	}

	reqs, err := loader.Load(filePath)
	if err != nil {
		return err
	}

	val := validator.New()
	for i, req := range reqs {
		if err := val.Struct(req); err != nil {
			return fmt.Errorf("sequence %d (%s): %w", i+1, req.Name, err)
		}
	}
	if dryRun {
		for _, req := range reqs {
			fmt.Printf("ok  %-40s trigger=%-14s steps=%d\n", req.Name, req.TriggerType, len(req.Steps))
		}
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	bus := events.NewInMemoryBus(log)
	leadsModule := leads.NewModule(pool, bus, val, nil, cfg, nil, log)
	svc := sequences.NewModule(pool, leadsModule, bus, val, nil, cfg, nil, log).Service()

	created := make([]transport.SequenceResponse, 0, len(reqs))
	for _, req := range reqs {
		seq, err := svc.CreateSequence(ctx, req)
		if err != nil {
			return fmt.Errorf("create %q (after %d created): %w", req.Name, len(created), err)
		}
		created = append(created, seq)
		fmt.Printf("created %s  %s (%d steps)\n", seq.ID, seq.Name, len(seq.Steps))
	}
	log.Info("sequences imported", "file", filePath, "count", len(created))

	if tick {
		if !cfg.IsRedisEnabled() {
			return errors.New("--tick needs REDIS_URL")
		}
		client, err := scheduler.NewClient(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		if err := client.EnqueueTick(ctx, 0); err != nil {
			return fmt.Errorf("enqueue tick: %w", err)
		}
	}
	return nil
}
