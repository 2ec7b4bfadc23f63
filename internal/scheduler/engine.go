// Package scheduler runs duplicate-row cleanups on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/dhima/datman/pkg/clock"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Engine runs each configured Job on its schedule. A job still running when its
// next slot comes up skips that slot.
type Engine struct {
	jobs    []Job
	deduper Deduper
	logger  *zap.Logger
	clock   clock.Clock
	timeout time.Duration
}

// NewEngine validates jobs and builds an engine. timeout bounds a single run; zero means none.
func NewEngine(jobs []Job, deduper Deduper, logger *zap.Logger, clk clock.Clock, timeout time.Duration) (*Engine, error) {
	if deduper == nil {
		return nil, fmt.Errorf("scheduler: deduper is required")
	}
	for _, j := range jobs {
		if err := j.validate(); err != nil {
			return nil, fmt.Errorf("scheduler: %w", err)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		jobs:    jobs,
		deduper: deduper,
		logger:  logger.Named("scheduler"),
		clock:   clock.OrReal(clk),
		timeout: timeout,
	}, nil
}

// Run schedules every job and blocks until ctx ends. Running jobs are allowed to finish.
func (e *Engine) Run(ctx context.Context) error {
	cl := cronLogger{e.logger.Sugar()}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	now := e.clock.Now()
	for _, j := range e.jobs {
		job := j
		if _, err := c.AddFunc(job.cronExpr(), func() { _, _ = e.RunOnce(ctx, job) }); err != nil {
			return fmt.Errorf("schedule %s: %w", job.Name, err)
		}
		next, _ := job.NextRun(now)
		e.logger.Info("job scheduled",
			zap.String("job", job.Name),
			zap.String("table", job.Table),
			zap.String("cron", job.Cron),
			zap.Time("next_run", next))
	}

	c.Start()
	<-ctx.Done()
	e.logger.Info("stopping scheduler")
	<-c.Stop().Done()
	return ctx.Err()
}

// RunOnce runs job immediately and returns the number of rows removed.
func (e *Engine) RunOnce(ctx context.Context, job Job) (int64, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := e.clock.Now()
	n, err := e.deduper.DeleteDuplicateRows(ctx, job.Table, job.Partition)
	if err != nil {
		e.logger.Error("dedupe job failed",
			zap.String("job", job.Name),
			zap.String("table", job.Table),
			zap.Error(err))
		return 0, err
	}
	e.logger.Info("dedupe job finished",
		zap.String("job", job.Name),
		zap.String("table", job.Table),
		zap.Int64("rows_removed", n),
		zap.Duration("took", e.clock.Now().Sub(start)))
	return n, nil
}

// RunAll runs every job once in order and stops at the first failure.
func (e *Engine) RunAll(ctx context.Context) (int64, error) {
	var total int64
	for _, j := range e.jobs {
		n, err := e.RunOnce(ctx, j)
		if err != nil {
			return total, fmt.Errorf("%s: %w", j.Name, err)
		}
		total += n
	}
	return total, nil
}

type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
