package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/dhima/datman/internal/logging"
	"github.com/dhima/datman/internal/scheduler"
	"github.com/dhima/datman/pkg/clock"
	"github.com/dhima/datman/pkg/config"
	"github.com/dhima/datman/pkg/dataerr"
	"github.com/dhima/datman/pkg/sqldb"
	"github.com/dhima/datman/platform/events"
	"go.uber.org/zap"
)

func main() {
	once := flag.Bool("once", false, "run every job once and exit")
	timeout := flag.Duration("job-timeout", 30*time.Minute, "upper bound for a single job run")
	flag.Parse()

	if err := run(config.FromEnv(), *once, *timeout); err != nil {
		log.Fatalf("maintenance runner: %v", err)
	}
}

func run(cfg config.App, once bool, timeout time.Duration) error {
	if cfg.DedupeJobsFile == "" || cfg.DatabaseParams == "" {
		return errors.New("DEDUPE_JOBS_FILE and DATABASE_PARAMS are required")
	}

	logger, err := logging.NewLogger(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	zl := logging.Zap(logger).Named("maintenance")

	jobs, err := scheduler.LoadJobs(cfg.DedupeJobsFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := []sqldb.Option{sqldb.WithLogger(zl)}
	if len(cfg.KafkaBrokers) > 0 {
		publisher := events.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, zl.Named("events"))
		defer func() { _ = publisher.Close() }()
		opts = append(opts, sqldb.WithNotifier(publisher))
	}
	db := sqldb.New(opts...)
	defer func() { _ = db.Close() }()
	if err := db.Connect(ctx, cfg.DatabaseParams); err != nil {
		if errors.Is(err, dataerr.ErrInvalidArgument) {
			return fmt.Errorf("database parameters: %w", err)
		}
		zl.Warn("database unavailable at startup", zap.Error(err))
	}

	engine, err := scheduler.NewEngine(jobs, db, zl, clock.RealClock{}, timeout)
	if err != nil {
		return err
	}

	if once {
		total, err := engine.RunAll(ctx)
		if err != nil {
			return err
		}
		zl.Info("maintenance run finished", zap.Int64("rows_removed", total))
		return nil
	}

	zl.Info("scheduler started", zap.Int("jobs", len(jobs)))
	if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
