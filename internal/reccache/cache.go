// SPDX-License-Identifier: MIT

// Package reccache keeps the recording catalog fresh behind a TTL. Refreshes
// fan out to every backend concurrently and are serialised so concurrent
// callers collapse into a single fetch.
package reccache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mhartwig/tunerhub/internal/backend"
	"github.com/mhartwig/tunerhub/internal/catalog"
	xlog "github.com/mhartwig/tunerhub/internal/log"
	"github.com/mhartwig/tunerhub/internal/metrics"
	"github.com/mhartwig/tunerhub/internal/reconcile"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultTTL is how long a completed refresh satisfies EnsureFresh.
const DefaultTTL = 5 * time.Minute

// Cache guards the recordings section of the catalog. Mutating operations
// elsewhere (timer/recording changes) call Invalidate so the next read
// refetches immediately.
type Cache struct {
	reg *backend.Registry
	rec *reconcile.Reconciler
	ttl time.Duration

	mu          sync.Mutex   // serialises refreshes
	lastRefresh atomic.Int64 // unix nanos of last completed refresh; 0 = always stale
	log         zerolog.Logger
}

// New creates a cache. ttl <= 0 selects DefaultTTL.
func New(reg *backend.Registry, rec *reconcile.Reconciler, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		reg: reg,
		rec: rec,
		ttl: ttl,
		log: xlog.WithComponent("reccache"),
	}
}

func (c *Cache) fresh() bool {
	last := c.lastRefresh.Load()
	return last > 0 && time.Since(time.Unix(0, last)) < c.ttl
}

// EnsureFresh refreshes the recording catalog unless a refresh completed
// within the TTL. The fast path takes no lock; under the lock the check is
// repeated so concurrent callers share one fetch.
func (c *Cache) EnsureFresh(ctx context.Context) error {
	if c.fresh() {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fresh() {
		return nil
	}

	trigger := "ttl"
	if c.lastRefresh.Load() == 0 {
		trigger = "invalidated"
	}

	backends := c.reg.All()
	results := make([][]backend.RecordingInfo, len(backends))

	// Backend failures degrade to an empty list; only cancellation aborts.
	g, gctx := errgroup.WithContext(ctx)
	for i, be := range backends {
		i, be := i, be
		g.Go(func() error {
			recs, err := be.ListRecordings(gctx)
			if err != nil {
				if backend.IsCancelled(err) {
					return err
				}
				c.log.Error().Err(err).
					Str("event", "reccache.backend_failed").
					Str("backend", be.Name()).
					Msg("recording listing failed, treated as empty")
				return nil
			}
			results[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	live := map[string]struct{}{}
	for i, be := range backends {
		for _, info := range results[i] {
			rec, err := c.rec.UpsertRecording(ctx, be.Name(), info)
			if err != nil {
				c.log.Warn().Err(err).
					Str("event", "reccache.recording_skipped").
					Str("backend", be.Name()).
					Str("external_id", info.ExternalID).
					Msg("recording upsert failed")
				continue
			}
			live[rec.ID] = struct{}{}
		}
	}

	if err := c.rec.Reconcile(ctx, catalog.RecordingKinds, live); err != nil {
		return err
	}

	c.lastRefresh.Store(time.Now().UnixNano())
	metrics.IncRecordingRefresh(trigger)
	c.log.Info().
		Str("event", "reccache.refreshed").
		Int("recordings", len(live)).
		Str("trigger", trigger).
		Msg("recording catalog refreshed")
	return nil
}

// Invalidate marks the cache permanently stale so the next EnsureFresh
// refetches regardless of TTL. Called after every mutating operation.
func (c *Cache) Invalidate() {
	c.lastRefresh.Store(0)
	metrics.IncRecordingInvalidation()
}
