// SPDX-License-Identifier: MIT

// Package refresh orchestrates the channel/program refresh pass across all
// registered backends and drives it from a single-flight scheduler.
package refresh

import (
	"context"
	"math"
	"time"

	"github.com/mhartwig/tunerhub/internal/backend"
	"github.com/mhartwig/tunerhub/internal/catalog"
	xlog "github.com/mhartwig/tunerhub/internal/log"
	"github.com/mhartwig/tunerhub/internal/metrics"
	"github.com/mhartwig/tunerhub/internal/reconcile"
	"github.com/rs/zerolog"
)

const (
	minGuideDays = 3
	maxGuideDays = 14

	// Program budget the derived guide window is sized against, assuming
	// half-hour slots per channel per day.
	programCeiling  = 24000
	slotsPerDay     = 48
	programLookback = time.Hour
)

// Options configure a pipeline.
type Options struct {
	// GuideDays pins the guide window; 0 derives it from the channel count.
	GuideDays int
	// Progress, when set, receives monotonically increasing percentages
	// ending at 100 for a completed pass.
	Progress func(pct float64)
}

// Status summarises the last completed pass.
type Status struct {
	LastRun  time.Time `json:"last_run"`
	Channels int       `json:"channels"`
	Programs int       `json:"programs"`
	Skipped  []string  `json:"skipped_backends,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Pipeline runs one refresh pass at a time. Concurrent runs are the
// scheduler's job to prevent; the pipeline itself holds no long-lived lock.
type Pipeline struct {
	reg  *backend.Registry
	rec  *reconcile.Reconciler
	opts Options
	log  zerolog.Logger
}

// New creates a pipeline over the given registry and reconciler.
func New(reg *backend.Registry, rec *reconcile.Reconciler, opts Options) *Pipeline {
	return &Pipeline{
		reg:  reg,
		rec:  rec,
		opts: opts,
		log:  xlog.WithComponent("refresh"),
	}
}

// guideWindow derives the forward guide window in days. A configured value
// wins; otherwise the window budgets programCeiling guide entries across the
// channel count, clamped to [minGuideDays, maxGuideDays].
func guideWindow(override, channelCount int) int {
	if override > 0 {
		return override
	}
	if channelCount <= 0 {
		return maxGuideDays
	}
	days := int(math.Round(programCeiling / float64(slotsPerDay*channelCount)))
	if days < minGuideDays {
		return minGuideDays
	}
	if days > maxGuideDays {
		return maxGuideDays
	}
	return days
}

type upserted struct {
	channel    *catalog.Channel
	externalID string
}

// Run executes one full pass: channels, then programs, then stale-entry
// reconciliation. Backend and per-item failures are isolated; only
// cancellation aborts the pass.
func (p *Pipeline) Run(ctx context.Context) (*Status, error) {
	started := time.Now()
	p.log.Info().Str("event", "refresh.start").Int("backends", p.reg.Count()).Msg("starting refresh pass")

	prog := &progressTracker{fn: p.opts.Progress}
	backends := p.reg.All()
	n := len(backends)

	liveChannels := map[string]struct{}{}
	livePrograms := map[string]struct{}{}
	status := &Status{}

	for i, be := range backends {
		base := float64(i) / float64(n)
		span := 1.0 / float64(n)
		logger := xlog.WithBackend("refresh", be.Name())

		channels, err := be.ListChannels(ctx)
		if err != nil {
			if backend.IsCancelled(err) {
				metrics.IncRefreshPass("cancelled")
				return nil, err
			}
			logger.Error().Err(err).Str("event", "refresh.backend_skipped").Msg("channel listing failed, backend skipped for this pass")
			metrics.IncRefreshBackendFailure(be.Name())
			status.Skipped = append(status.Skipped, be.Name())
			prog.report((base + span) * 100)
			continue
		}
		prog.report((base + 0.10*span) * 100)

		ups := make([]upserted, 0, len(channels))
		for j, info := range channels {
			ch, err := p.rec.UpsertChannel(ctx, be.Name(), info)
			if err != nil {
				if backend.IsCancelled(err) {
					metrics.IncRefreshPass("cancelled")
					return nil, err
				}
				logger.Warn().Err(err).Str("event", "refresh.channel_skipped").Str("external_id", info.ExternalID).Msg("channel upsert failed")
			} else {
				liveChannels[ch.ID] = struct{}{}
				ups = append(ups, upserted{channel: ch, externalID: info.ExternalID})
			}
			prog.report((base + (0.10+0.05*float64(j+1)/float64(len(channels)))*span) * 100)
		}
		status.Channels += len(ups)

		days := guideWindow(p.opts.GuideDays, len(channels))
		windowStart := time.Now().Add(-programLookback)
		windowEnd := time.Now().AddDate(0, 0, days)
		logger.Debug().
			Str("event", "refresh.guide_window").
			Int("days", days).
			Int("channels", len(channels)).
			Msg("guide window computed")

		for j, u := range ups {
			programs, err := be.ListPrograms(ctx, u.externalID, windowStart, windowEnd)
			if err != nil {
				if backend.IsCancelled(err) {
					metrics.IncRefreshPass("cancelled")
					return nil, err
				}
				logger.Warn().Err(err).Str("event", "refresh.programs_skipped").Str("channel", u.channel.ID).Msg("program listing failed for channel")
			}
			for _, info := range programs {
				pr, err := p.rec.UpsertProgram(ctx, be.Name(), u.channel.ID, u.channel.Type, info)
				if err != nil {
					if backend.IsCancelled(err) {
						metrics.IncRefreshPass("cancelled")
						return nil, err
					}
					logger.Warn().Err(err).Str("event", "refresh.program_skipped").Str("external_id", info.ExternalID).Msg("program upsert failed")
					continue
				}
				livePrograms[pr.ID] = struct{}{}
				status.Programs++
			}
			prog.report((base + (0.15+0.85*float64(j+1)/float64(len(ups)))*span) * 100)
		}
		prog.report((base + span) * 100)
	}

	// Stale reconciliation runs only after every backend had its chance to
	// report, never per backend.
	if err := p.rec.Reconcile(ctx, []catalog.Kind{catalog.KindChannel}, liveChannels); err != nil {
		return nil, err
	}
	if err := p.rec.Reconcile(ctx, []catalog.Kind{catalog.KindProgram}, livePrograms); err != nil {
		return nil, err
	}
	prog.report(100)

	status.LastRun = time.Now()
	metrics.SetChannelsUpserted(status.Channels)
	metrics.SetProgramsUpserted(status.Programs)
	metrics.ObserveRefreshPass(time.Since(started))
	metrics.IncRefreshPass("success")
	p.log.Info().
		Str("event", "refresh.success").
		Int("channels", status.Channels).
		Int("programs", status.Programs).
		Strs("skipped", status.Skipped).
		Dur("took", time.Since(started)).
		Msg("refresh pass completed")
	return status, nil
}

// progressTracker drops non-increasing reports so observers always see a
// monotonic sequence.
type progressTracker struct {
	last float64
	fn   func(float64)
}

func (t *progressTracker) report(pct float64) {
	if t.fn == nil {
		return
	}
	if pct > 100 {
		pct = 100
	}
	if pct <= t.last {
		return
	}
	t.last = pct
	t.fn(pct)
}
