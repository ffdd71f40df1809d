package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"wp_syncer/internal/domain"
	"wp_syncer/internal/metrics"
)

// ErrSyncInProgress is returned when a run is requested while another is in flight.
var ErrSyncInProgress = errors.New("sync already in progress")

// Syncer defines the interface for sync operations.
type Syncer interface {
	Sync(ctx context.Context) *domain.SyncRun
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	Running            bool       `json:"running"`
	InProgress         bool       `json:"inProgress"`
	Schedule           string     `json:"schedule"`
	NextRun            *time.Time `json:"nextRun"`
	NextRunDescription string     `json:"nextRunDescription"`
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Scheduler owns the cron job handle and the single in-flight guard shared
// by scheduled ticks and manual triggers.
type Scheduler struct {
	syncer     Syncer
	spec       string
	schedule   cron.Schedule
	runTimeout time.Duration
	logger     *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
	// stopped is done once every tick cron dispatched before Stop has returned.
	stopped context.Context

	inFlight atomic.Bool
	runs     sync.WaitGroup
	now      func() time.Time
}

func NewScheduler(syncer Syncer, spec string, runTimeout time.Duration, logger *slog.Logger) (*Scheduler, error) {
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}

	return &Scheduler{
		syncer:     syncer,
		spec:       spec,
		schedule:   schedule,
		runTimeout: runTimeout,
		logger:     logger.With("component", "scheduler"),
		now:        time.Now,
	}, nil
}

// Start registers the job and starts ticking. Starting twice is a no-op.
// Runs started by ticks inherit ctx values but not its cancellation.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		s.logger.Info("scheduler already started", "schedule", s.spec)
		return
	}

	cronLogger := newCronLogger(s.logger)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger)),
	)
	s.entryID = c.Schedule(s.schedule, cron.FuncJob(func() {
		s.tick(ctx)
	}))
	c.Start()
	s.cron = c

	s.logger.Info("scheduler started", "schedule", s.spec)
}

// Stop removes the job so no further ticks fire. A run already in flight
// keeps going; use Wait to block until it finishes.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return
	}

	s.cron.Remove(s.entryID)
	s.stopped = s.cron.Stop()
	s.cron = nil
	s.entryID = 0

	s.logger.Info("scheduler stopped")
}

// RunOnce runs a sync synchronously under the overlap guard.
func (s *Scheduler) RunOnce(ctx context.Context) (*domain.SyncRun, error) {
	if !s.begin() {
		metrics.RecordSkippedTrigger("manual")
		return nil, ErrSyncInProgress
	}
	s.runs.Add(1)
	defer s.runs.Done()
	defer s.end()

	return s.run(ctx), nil
}

// Trigger starts a sync in the background and returns its start time.
func (s *Scheduler) Trigger(ctx context.Context) (time.Time, error) {
	if !s.begin() {
		metrics.RecordSkippedTrigger("manual")
		return time.Time{}, ErrSyncInProgress
	}

	startedAt := s.now().UTC()
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		defer s.end()
		s.run(ctx)
	}()

	s.logger.Info("manual sync triggered")
	return startedAt, nil
}

// InProgress reports whether a run is in flight.
func (s *Scheduler) InProgress() bool {
	return s.inFlight.Load()
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{
		Running:    s.cron != nil,
		InProgress: s.inFlight.Load(),
		Schedule:   s.spec,
	}

	if s.cron == nil {
		status.NextRunDescription = "scheduler stopped"
		return status
	}

	next := s.cron.Entry(s.entryID).Next
	if next.IsZero() {
		next = s.schedule.Next(s.now())
	}
	status.NextRun = &next
	status.NextRunDescription = fmt.Sprintf("next run at %s (%s)", next.UTC().Format(time.RFC3339), s.spec)

	return status
}

// Wait blocks until in-flight runs have finished, including a tick cron
// dispatched just before Stop.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()

	if stopped != nil {
		<-stopped.Done()
	}
	s.runs.Wait()
}

func (s *Scheduler) tick(ctx context.Context) {
	s.runs.Add(1)
	defer s.runs.Done()

	if !s.begin() {
		metrics.RecordSkippedTrigger("schedule")
		s.logger.Warn("previous sync still running, skipping tick")
		return
	}
	defer s.end()

	s.run(ctx)
}

func (s *Scheduler) begin() bool {
	return s.inFlight.CompareAndSwap(false, true)
}

func (s *Scheduler) end() {
	s.inFlight.Store(false)
}

func (s *Scheduler) run(ctx context.Context) *domain.SyncRun {
	runCtx := context.WithoutCancel(ctx)
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, s.runTimeout)
		defer cancel()
	}

	run := s.syncer.Sync(runCtx)
	if !run.Success() {
		s.logger.Warn("sync finished with errors", "run_id", run.ID, "errors", len(run.Errors))
	}
	return run
}

// cronLogger routes cron's internal logging to slog.
type cronLogger struct {
	logger *slog.Logger
}

func newCronLogger(logger *slog.Logger) cronLogger {
	return cronLogger{logger: logger.With("component", "cron")}
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
