// SPDX-License-Identifier: MIT

// Package metrics exposes prometheus collectors for the federation core.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Refresh pipeline
	refreshPassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tunerhub_refresh_pass_duration_seconds",
		Help:    "Duration of a full channel/program refresh pass",
		Buckets: prometheus.DefBuckets,
	})

	refreshPassTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tunerhub_refresh_pass_total",
		Help: "Refresh passes by outcome",
	}, []string{"outcome"}) // outcome=success|cancelled

	refreshBackendFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tunerhub_refresh_backend_failures_total",
		Help: "Backends skipped during a refresh pass, by backend",
	}, []string{"backend"})

	channelsUpserted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tunerhub_channels_upserted",
		Help: "Channels upserted in the last refresh pass",
	})

	programsUpserted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tunerhub_programs_upserted",
		Help: "Programs upserted in the last refresh pass",
	})

	reconcileDeletions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tunerhub_reconcile_deletions_total",
		Help: "Stale catalog entries removed, by kind",
	}, []string{"kind"})

	// Recording cache
	recordingRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tunerhub_recording_refresh_total",
		Help: "Recording cache refreshes by trigger",
	}, []string{"trigger"}) // trigger=ttl|invalidated

	recordingInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tunerhub_recording_invalidations_total",
		Help: "Recording cache invalidations caused by mutating operations",
	})

	// Live sessions
	openSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tunerhub_live_sessions_open",
		Help: "Currently open live sessions",
	})

	sessionOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tunerhub_live_session_ops_total",
		Help: "Live session operations by op and outcome",
	}, []string{"op", "outcome"}) // op=open|close outcome=success|failure
)

func ObserveRefreshPass(d time.Duration)  { refreshPassDuration.Observe(d.Seconds()) }
func IncRefreshPass(outcome string)       { refreshPassTotal.WithLabelValues(outcome).Inc() }
func IncRefreshBackendFailure(be string)  { refreshBackendFailures.WithLabelValues(be).Inc() }
func SetChannelsUpserted(n int)           { channelsUpserted.Set(float64(n)) }
func SetProgramsUpserted(n int)           { programsUpserted.Set(float64(n)) }
func AddReconcileDeletions(kind string, n int) {
	reconcileDeletions.WithLabelValues(kind).Add(float64(n))
}
func IncRecordingRefresh(trigger string) { recordingRefreshTotal.WithLabelValues(trigger).Inc() }
func IncRecordingInvalidation()          { recordingInvalidations.Inc() }
func SetOpenSessions(n int)              { openSessions.Set(float64(n)) }
func IncSessionOp(op, outcome string)    { sessionOpsTotal.WithLabelValues(op, outcome).Inc() }
