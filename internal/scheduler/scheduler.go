// Package scheduler drives periodic pipeline execution and exposes its
// observable status.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/terrasight/internal/model"
	"github.com/sells-group/terrasight/internal/resilience"
	"github.com/sells-group/terrasight/internal/store"
)

// ErrRunNotDue rejects an unforced trigger while the interval since the last
// run has not elapsed. Force bypasses this gate and only this gate.
var ErrRunNotDue = eris.New("scheduler: run not due yet")

// Runner executes one pipeline run using the pre-assigned run record.
type Runner interface {
	ExecuteRun(ctx context.Context, run *model.PipelineRun) error
}

// Options configures a Scheduler.
type Options struct {
	// Enabled arms the periodic timer. Manual triggers work either way.
	Enabled  bool
	Interval time.Duration
	// RunOnStart enqueues a scheduled run immediately after Start.
	RunOnStart bool
	// RunTimeout bounds each run; zero means no deadline.
	RunTimeout time.Duration
}

// Status is the observable scheduler state.
type Status struct {
	Enabled        bool       `json:"enabled"`
	Running        bool       `json:"running"`
	Interval       string     `json:"interval"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	LastRunStatus  string     `json:"last_run_status,omitempty"`
	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
	TotalRuns      int        `json:"total_runs"`
	SuccessfulRuns int        `json:"successful_runs"`
	FailedRuns     int        `json:"failed_runs"`
}

type request struct {
	run *model.PipelineRun
}

// Scheduler serializes pipeline runs on a single worker goroutine. A timer
// and manual triggers feed the same request channel, so a user-initiated run
// and a timer-initiated run can never execute simultaneously.
type Scheduler struct {
	runner Runner
	store  store.Store
	opts   Options

	requests chan request
	running  atomic.Bool

	mu            sync.Mutex
	lastRunAt     time.Time
	lastRunStatus model.RunStatus
	nextRunAt     time.Time
	total         int
	succeeded     int
	failed        int

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New creates a Scheduler. Counters are seeded from the store on Start so
// restarts keep cumulative totals.
func New(runner Runner, st store.Store, opts Options) *Scheduler {
	return &Scheduler{
		runner:   runner,
		store:    st,
		opts:     opts,
		requests: make(chan request, 1),
	}
}

// Start launches the worker and, when enabled, the timer. It returns
// immediately; Stop waits for an in-flight run to finish.
func (s *Scheduler) Start(ctx context.Context) error {
	total, succeeded, failed, err := s.store.RunCounters(ctx)
	if err != nil {
		return err
	}
	last, err := s.store.LatestRun(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.total, s.succeeded, s.failed = total, succeeded, failed
	if last != nil {
		s.lastRunAt = last.StartedAt
		s.lastRunStatus = last.Status
	}
	if s.opts.Enabled {
		s.nextRunAt = time.Now().Add(s.opts.Interval)
	}
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.worker(runCtx)

	if s.opts.Enabled {
		s.wg.Add(1)
		go s.timer(runCtx)
	}

	if s.opts.RunOnStart {
		if _, err := s.TriggerRun(true); err != nil {
			zap.L().Warn("scheduler: startup run not triggered", zap.Error(err))
		}
	}

	zap.L().Info("scheduler started",
		zap.Bool("enabled", s.opts.Enabled),
		zap.Duration("interval", s.opts.Interval),
		zap.Bool("run_on_start", s.opts.RunOnStart),
	)
	return nil
}

// Stop cancels the timer and worker and waits for an in-flight run to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	zap.L().Info("scheduler stopped")
}

// TriggerRun attempts to start a pipeline run and returns its pre-assigned
// ID. Unforced triggers are rejected with ErrRunNotDue inside the interval;
// force never bypasses the mutual-exclusion gate.
func (s *Scheduler) TriggerRun(force bool) (string, error) {
	return s.enqueue(model.TriggerManual, force)
}

func (s *Scheduler) enqueue(trigger model.RunTrigger, force bool) (string, error) {
	if s.running.Load() {
		return "", resilience.ErrAlreadyRunning
	}

	if !force {
		s.mu.Lock()
		due := s.lastRunAt.IsZero() || time.Since(s.lastRunAt) >= s.opts.Interval
		s.mu.Unlock()
		if !due {
			return "", ErrRunNotDue
		}
	}

	// Claim the guard before handing the run to the worker. Claiming it
	// there instead would leave a window where a second trigger enqueues a
	// run rather than getting ErrAlreadyRunning.
	if !s.running.CompareAndSwap(false, true) {
		return "", resilience.ErrAlreadyRunning
	}

	run := &model.PipelineRun{
		ID:      uuid.New().String(),
		Trigger: trigger,
	}
	select {
	case s.requests <- request{run: run}:
		return run.ID, nil
	default:
		s.running.Store(false)
		return "", resilience.ErrAlreadyRunning
	}
}

// Status reports the timer state and cumulative counters.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Enabled:        s.opts.Enabled,
		Running:        s.running.Load(),
		Interval:       s.opts.Interval.String(),
		TotalRuns:      s.total,
		SuccessfulRuns: s.succeeded,
		FailedRuns:     s.failed,
		LastRunStatus:  string(s.lastRunStatus),
	}
	if !s.lastRunAt.IsZero() {
		t := s.lastRunAt
		st.LastRunAt = &t
	}
	if s.opts.Enabled && !s.nextRunAt.IsZero() {
		t := s.nextRunAt
		st.NextRunAt = &t
	}
	return st
}

func (s *Scheduler) timer(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.enqueue(model.TriggerScheduled, true); err != nil {
				// A run in flight at tick time is normal; the next tick
				// will catch up.
				zap.L().Debug("scheduler: tick skipped", zap.Error(err))
			}
		}
	}
}

func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.requests:
			s.executeOne(ctx, req.run)
		}
	}
}

// executeOne runs one pipeline run with the in-process guard held. The guard
// was claimed in enqueue and is released on every exit path.
func (s *Scheduler) executeOne(ctx context.Context, run *model.PipelineRun) {
	defer s.running.Store(false)

	runCtx := ctx
	if s.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.opts.RunTimeout)
		defer cancel()
	}

	err := s.runner.ExecuteRun(runCtx, run)

	s.mu.Lock()
	s.lastRunAt = run.StartedAt
	if s.lastRunAt.IsZero() {
		s.lastRunAt = time.Now()
	}
	s.lastRunStatus = run.Status
	if s.opts.Enabled {
		s.nextRunAt = time.Now().Add(s.opts.Interval)
	}
	s.total++
	if err != nil || run.Status == model.RunStatusFailed {
		s.failed++
	} else {
		s.succeeded++
	}
	s.mu.Unlock()

	if err != nil {
		// A failed run never stops future scheduled runs.
		zap.L().Error("scheduler: run failed",
			zap.String("run_id", run.ID), zap.Error(err))
	}
}
