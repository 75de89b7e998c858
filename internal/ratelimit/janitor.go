package ratelimit

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/vyrodovalexey/usergw/internal/observability"
)

// DefaultSweepSchedule is the cron schedule used when none is configured.
const DefaultSweepSchedule = "@every 1m"

// Sweeper removes stale rate limit state.
type Sweeper interface {
	SweepNow() int
}

// Janitor periodically sweeps stale windows out of a limiter.
type Janitor struct {
	sweeper  Sweeper
	schedule string
	logger   observability.Logger
	onFault  func(error)

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// JanitorOption is a functional option for configuring a Janitor.
type JanitorOption func(*Janitor)

// WithFaultHandler receives panics recovered from sweep runs.
func WithFaultHandler(fn func(error)) JanitorOption {
	return func(j *Janitor) {
		j.onFault = fn
	}
}

// NewJanitor creates a janitor for the given sweeper.
func NewJanitor(s Sweeper, schedule string, logger observability.Logger, opts ...JanitorOption) *Janitor {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	j := &Janitor{
		sweeper:  s,
		schedule: schedule,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(j)
	}
	j.cron = cron.New(cron.WithChain(j.recoverJob))
	return j
}

// Start schedules the sweep. Calling Start on a running janitor is a no-op.
func (j *Janitor) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return nil
	}

	if _, err := cron.ParseStandard(j.schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", j.schedule, err)
	}
	if _, err := j.cron.AddFunc(j.schedule, j.runSweep); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	j.cron.Start()
	j.running = true

	j.logger.Debug("rate limit janitor started", observability.String("schedule", j.schedule))
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.running {
		return
	}
	<-j.cron.Stop().Done()
	j.running = false
}

// recoverJob turns a panicking sweep into an error for the fault handler.
func (j *Janitor) recoverJob(job cron.Job) cron.Job {
	return cron.FuncJob(func() {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			err := fmt.Errorf("rate limit sweep panicked: %v", rec)
			j.logger.Error("rate limit sweep panicked",
				observability.Error(err),
				observability.String("stack", string(debug.Stack())),
			)
			if j.onFault != nil {
				j.onFault(err)
			}
		}()
		job.Run()
	})
}

func (j *Janitor) runSweep() {
	if removed := j.sweeper.SweepNow(); removed > 0 {
		j.logger.Debug("swept stale rate limit windows", observability.Int("removed", removed))
	}
}
