// SPDX-License-Identifier: MIT

package refresh

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/renameio/v2"
	"github.com/mhartwig/tunerhub/internal/backend"
	xlog "github.com/mhartwig/tunerhub/internal/log"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// SchedulerOptions configure the refresh scheduler.
type SchedulerOptions struct {
	// Interval between unsolicited passes. 0 disables the periodic tick.
	Interval time.Duration
	// MinGap bounds how often triggered passes may run; triggers arriving
	// faster are collapsed into the pending pass.
	MinGap time.Duration
	// StatusPath, when set, receives the last pass status as JSON, written
	// atomically.
	StatusPath string
}

// Scheduler serialises refresh passes: whatever the trigger (periodic tick,
// backend data-source change, admin request), at most one pass runs at a
// time and bursts collapse into one.
type Scheduler struct {
	pipeline *Pipeline
	reg      *backend.Registry
	opts     SchedulerOptions
	limiter  *rate.Limiter
	triggerC chan struct{}
	last     atomic.Pointer[Status]
	log      zerolog.Logger
}

// NewScheduler creates a scheduler around the pipeline.
func NewScheduler(pipeline *Pipeline, reg *backend.Registry, opts SchedulerOptions) *Scheduler {
	minGap := opts.MinGap
	if minGap <= 0 {
		minGap = time.Minute
	}
	return &Scheduler{
		pipeline: pipeline,
		reg:      reg,
		opts:     opts,
		limiter:  rate.NewLimiter(rate.Every(minGap), 1),
		triggerC: make(chan struct{}, 1),
		log:      xlog.WithComponent("scheduler"),
	}
}

// Trigger requests a pass. Non-blocking; a pass already pending absorbs the
// request.
func (s *Scheduler) Trigger() {
	select {
	case s.triggerC <- struct{}{}:
	default:
	}
}

// Status returns the most recent pass status, or nil before the first pass.
func (s *Scheduler) Status() *Status {
	return s.last.Load()
}

// Run drives passes until ctx is cancelled. It is the single-flight guard
// the pipeline relies on: passes run on this goroutine only.
func (s *Scheduler) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if s.opts.Interval > 0 {
		ticker := time.NewTicker(s.opts.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	var pending <-chan time.Time
	for {
		reserved := false
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
		case <-s.triggerC:
		case name := <-s.reg.RefreshNeeded():
			s.log.Info().Str("event", "scheduler.datasource_changed").Str("backend", name).Msg("refresh requested by backend")
		case <-pending:
			// The deferred pass reserved its token when it was scheduled.
			pending = nil
			reserved = true
		}

		if !reserved && !s.limiter.Allow() {
			if pending == nil {
				delay := s.limiter.Reserve().Delay()
				pending = time.After(delay)
				s.log.Debug().Str("event", "scheduler.deferred").Dur("delay", delay).Msg("refresh deferred until min gap elapses")
			} else {
				s.log.Debug().Str("event", "scheduler.debounced").Msg("refresh trigger collapsed into pending pass")
			}
			continue
		}
		s.runOnce(ctx)
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	status, err := s.pipeline.Run(ctx)
	if err != nil {
		if backend.IsCancelled(err) {
			s.log.Info().Str("event", "scheduler.cancelled").Msg("refresh pass cancelled")
			return
		}
		status = &Status{LastRun: time.Now(), Error: err.Error()}
		s.log.Error().Err(err).Str("event", "scheduler.pass_failed").Msg("refresh pass failed")
	}
	s.last.Store(status)
	if s.opts.StatusPath != "" {
		if err := writeStatus(s.opts.StatusPath, status); err != nil {
			s.log.Error().Err(err).Str("event", "scheduler.status_write_failed").Str("path", s.opts.StatusPath).Msg("failed to write status file")
		}
	}
}

// writeStatus persists the status atomically so readers never observe a
// partial file.
func writeStatus(path string, status *Status) error {
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending status file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	enc := json.NewEncoder(pending)
	enc.SetIndent("", "  ")
	if err := enc.Encode(status); err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace status file: %w", err)
	}
	return nil
}
