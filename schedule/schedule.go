// Package schedule runs the bot's periodic jobs: the expired CTF sweep and
// the timed notifications.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a unit of scheduled work. The context is cancelled when the
// scheduler is closed.
type Job func(ctx context.Context) error

// Scheduler runs jobs on fixed intervals or cron expressions. A job that is
// still running when its next tick fires is skipped for that tick.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc

	once    sync.Once
	started chan struct{}

	Logger *slog.Logger
}

// NewScheduler returns a new Scheduler evaluating cron expressions in loc.
func NewScheduler(loc *time.Location, logger *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}

	cl := cronLogger{logger: logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		started: make(chan struct{}),
		Logger:  logger,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Every registers job to run every interval.
func (s *Scheduler) Every(interval time.Duration, name string, job Job) error {
	if interval <= 0 {
		return fmt.Errorf("schedule %s: interval must be positive", name)
	}
	return s.add("@every "+interval.String(), name, job)
}

// Cron registers job on a standard five field cron expression.
func (s *Scheduler) Cron(spec, name string, job Job) error {
	return s.add(spec, name, job)
}

func (s *Scheduler) add(spec, name string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() { s.run(name, job) })
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	s.Logger.Debug("job scheduled", slog.String("job", name), slog.String("spec", spec))
	return nil
}

// run executes one tick of a job and logs its outcome.
func (s *Scheduler) run(name string, job Job) {
	if s.ctx.Err() != nil {
		return
	}

	start := time.Now()
	if err := job(s.ctx); err != nil {
		s.Logger.Error("job failed", slog.String("job", name), slog.Any("err", err))
		return
	}
	s.Logger.Debug("job finished", slog.String("job", name), slog.Duration("took", time.Since(start)))
}

// Open starts ticking once ready is closed. It returns immediately. A nil
// ready channel starts right away.
func (s *Scheduler) Open(ready <-chan struct{}) {
	go func() {
		if ready != nil {
			select {
			case <-ready:
			case <-s.ctx.Done():
				return
			}
		}
		s.once.Do(func() {
			s.cron.Start()
			close(s.started)
			s.Logger.Info("scheduler started", slog.Int("jobs", len(s.cron.Entries())))
		})
	}()
}

// Started is closed once the scheduler begins ticking.
func (s *Scheduler) Started() <-chan struct{} {
	return s.started
}

// Close cancels running jobs and waits for them to return or for ctx to
// expire, whichever comes first.
func (s *Scheduler) Close(ctx context.Context) error {
	s.cancel()

	var done context.Context
	s.once.Do(func() {}) // never start after Close
	select {
	case <-s.started:
		done = s.cron.Stop()
	default:
		return nil
	}

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
