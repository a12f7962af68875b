// Package sweeper implements the Background Sweepers of §4.J: interval
// tasks against an injectable clock, each with at most one in-flight run.
package sweeper

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/waitline/queuecoord/internal/clock"
)

// Task is one unit of sweeper work, run at most once concurrently.
type Task func(ctx context.Context)

// MetricsRecorder is the narrow metrics.Registry surface a sweeper
// reports its run duration through; nil-safe so tests and sweep-once
// don't need a Prometheus registry wired in.
type MetricsRecorder interface {
	ObserveSweepDuration(name string, d time.Duration)
	AddSweptEntries(name string, n int)
}

// Runner drives a single named sweeper on an injectable clock.
type Runner struct {
	name     string
	interval time.Duration
	clock    clock.Clock
	task     Task
	log      zerolog.Logger
	running  int32
	metrics  MetricsRecorder
}

// NewRunner builds a Runner for name, ticking every interval on clk,
// invoking task. The runner guarantees at-most-one-in-flight and logs a
// skipped tick if the previous run hasn't finished, per §5.
func NewRunner(name string, interval time.Duration, clk clock.Clock, task Task, log zerolog.Logger) *Runner {
	return &Runner{name: name, interval: interval, clock: clk, task: task, log: log}
}

// WithMetrics attaches a recorder observing each run's duration, and
// returns r for chaining.
func (r *Runner) WithMetrics(m MetricsRecorder) *Runner {
	r.metrics = m
	return r
}

// Start runs the sweeper at startup immediately, then on interval, until
// ctx is cancelled, per §4.J.
func (r *Runner) Start(ctx context.Context) {
	r.tick(ctx)

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			r.tick(ctx)
		}
	}
}

// RunOnce executes a single run outside of Start's ticking loop, for the
// sweep-once command.
func (r *Runner) RunOnce(ctx context.Context) {
	r.tick(ctx)
}

func (r *Runner) tick(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&r.running, 0, 1) {
		r.log.Warn().Str("sweeper", r.name).Msg("sweeper: previous run still in flight, skipping tick")
		return
	}
	defer atomic.StoreInt32(&r.running, 0)

	r.log.Debug().Str("sweeper", r.name).Msg("sweeper: run started")
	start := r.clock.Now()
	r.task(ctx)
	if r.metrics != nil {
		r.metrics.ObserveSweepDuration(r.name, r.clock.Now().Sub(start))
	}
	r.log.Debug().Str("sweeper", r.name).Msg("sweeper: run finished")
}
