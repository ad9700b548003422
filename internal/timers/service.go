// SPDX-License-Identifier: MIT

// Package timers federates timer, series-timer and tuner operations across
// backends. Timers are ephemeral: nothing here is persisted, every query
// round-trips to the backends and internal ids are re-derived on the fly.
package timers

import (
	"context"

	"github.com/mhartwig/tunerhub/internal/backend"
	"github.com/mhartwig/tunerhub/internal/catalog"
	"github.com/mhartwig/tunerhub/internal/ident"
	xlog "github.com/mhartwig/tunerhub/internal/log"
	"github.com/mhartwig/tunerhub/internal/reccache"
	"github.com/rs/zerolog"
)

// Timer is a backend timer annotated with derived internal ids.
type Timer struct {
	ID            string
	Backend       string
	ChannelID     string
	ProgramID     string
	SeriesTimerID string
	Info          backend.TimerInfo
}

// SeriesTimer is a backend series timer annotated with derived internal ids.
type SeriesTimer struct {
	ID        string
	Backend   string
	ChannelID string
	ProgramID string
	Info      backend.SeriesTimerInfo
}

// Tuner is a backend tuner exposed under a composite id.
type Tuner struct {
	ID         string
	Name       string
	SourceType string
	Status     string
	ChannelID  string
	Clients    int
}

// BackendStatus is one backend's health report.
type BackendStatus struct {
	Backend   string
	Version   string
	Available bool
	Tuners    []Tuner
}

// Service federates timer and tuner operations. Listings degrade gracefully
// when a backend fails; mutations fail loudly and invalidate the recording
// cache so the next recording read refetches.
type Service struct {
	reg   *backend.Registry
	store catalog.Store
	cache *reccache.Cache
	log   zerolog.Logger
}

// New creates the service.
func New(reg *backend.Registry, store catalog.Store, cache *reccache.Cache) *Service {
	return &Service{
		reg:   reg,
		store: store,
		cache: cache,
		log:   xlog.WithComponent("timers"),
	}
}

// ListTimers fetches timers from every backend. A failing backend is logged
// and skipped; cancellation propagates.
func (s *Service) ListTimers(ctx context.Context) ([]Timer, error) {
	var out []Timer
	for _, be := range s.reg.All() {
		infos, err := be.ListTimers(ctx)
		if err != nil {
			if backend.IsCancelled(err) {
				return nil, err
			}
			s.log.Error().Err(err).
				Str("event", "timers.list_failed").
				Str("backend", be.Name()).
				Msg("timer listing failed, backend skipped")
			continue
		}
		for _, info := range infos {
			out = append(out, Timer{
				ID:            ident.DeriveID(ident.KindTimer, be.Name(), info.ExternalID),
				Backend:       be.Name(),
				ChannelID:     deriveOptional(ident.KindChannel, be.Name(), info.ChannelExternalID),
				ProgramID:     deriveOptional(ident.KindProgram, be.Name(), info.ProgramExternalID),
				SeriesTimerID: deriveOptional(ident.KindSeriesTimer, be.Name(), info.SeriesTimerExternalID),
				Info:          info,
			})
		}
	}
	return out, nil
}

// ListSeriesTimers fetches series timers from every backend, skipping
// backends that fail.
func (s *Service) ListSeriesTimers(ctx context.Context) ([]SeriesTimer, error) {
	var out []SeriesTimer
	for _, be := range s.reg.All() {
		infos, err := be.ListSeriesTimers(ctx)
		if err != nil {
			if backend.IsCancelled(err) {
				return nil, err
			}
			s.log.Error().Err(err).
				Str("event", "timers.list_series_failed").
				Str("backend", be.Name()).
				Msg("series timer listing failed, backend skipped")
			continue
		}
		for _, info := range infos {
			out = append(out, SeriesTimer{
				ID:        ident.DeriveID(ident.KindSeriesTimer, be.Name(), info.ExternalID),
				Backend:   be.Name(),
				ChannelID: deriveOptional(ident.KindChannel, be.Name(), info.ChannelExternalID),
				ProgramID: deriveOptional(ident.KindProgram, be.Name(), info.ProgramExternalID),
				Info:      info,
			})
		}
	}
	return out, nil
}

func (s *Service) mutate(backendName, op string, err error) error {
	if err != nil {
		return backend.WrapOp(backendName, op, err)
	}
	s.cache.Invalidate()
	return nil
}

// CreateTimer creates a timer on the named backend.
func (s *Service) CreateTimer(ctx context.Context, backendName string, info backend.TimerInfo) error {
	be, err := s.reg.ByName(backendName)
	if err != nil {
		return err
	}
	return s.mutate(backendName, "create_timer", be.CreateTimer(ctx, info))
}

// UpdateTimer updates a timer on the named backend.
func (s *Service) UpdateTimer(ctx context.Context, backendName string, info backend.TimerInfo) error {
	be, err := s.reg.ByName(backendName)
	if err != nil {
		return err
	}
	return s.mutate(backendName, "update_timer", be.UpdateTimer(ctx, info))
}

// CancelTimer cancels a timer on the named backend.
func (s *Service) CancelTimer(ctx context.Context, backendName, externalID string) error {
	be, err := s.reg.ByName(backendName)
	if err != nil {
		return err
	}
	return s.mutate(backendName, "cancel_timer", be.CancelTimer(ctx, externalID))
}

// CreateSeriesTimer creates a series timer on the named backend.
func (s *Service) CreateSeriesTimer(ctx context.Context, backendName string, info backend.SeriesTimerInfo) error {
	be, err := s.reg.ByName(backendName)
	if err != nil {
		return err
	}
	return s.mutate(backendName, "create_series_timer", be.CreateSeriesTimer(ctx, info))
}

// UpdateSeriesTimer updates a series timer on the named backend.
func (s *Service) UpdateSeriesTimer(ctx context.Context, backendName string, info backend.SeriesTimerInfo) error {
	be, err := s.reg.ByName(backendName)
	if err != nil {
		return err
	}
	return s.mutate(backendName, "update_series_timer", be.UpdateSeriesTimer(ctx, info))
}

// CancelSeriesTimer cancels a series timer on the named backend.
func (s *Service) CancelSeriesTimer(ctx context.Context, backendName, externalID string) error {
	be, err := s.reg.ByName(backendName)
	if err != nil {
		return err
	}
	return s.mutate(backendName, "cancel_series_timer", be.CancelSeriesTimer(ctx, externalID))
}

// DeleteRecording deletes the recording's upstream media and invalidates
// the cache; the catalog entry disappears on the next recording refresh.
func (s *Service) DeleteRecording(ctx context.Context, recordingID string) error {
	rec, err := s.store.Recording(ctx, recordingID)
	if catalog.IsNotFound(err) {
		return &backend.Error{Sentinel: backend.ErrTargetNotFound, Op: "delete_recording", Err: err}
	}
	if err != nil {
		return err
	}
	be, err := s.reg.ByName(rec.Backend)
	if err != nil {
		return err
	}
	return s.mutate(rec.Backend, "delete_recording", be.DeleteRecording(ctx, rec.ExternalID))
}

// NewTimerDefaults returns the named backend's suggested settings for a new
// timer, optionally tailored to a program.
func (s *Service) NewTimerDefaults(ctx context.Context, backendName string, program *backend.ProgramInfo) (*backend.TimerDefaults, error) {
	be, err := s.reg.ByName(backendName)
	if err != nil {
		return nil, err
	}
	defaults, err := be.NewTimerDefaults(ctx, program)
	if err != nil {
		return nil, backend.WrapOp(backendName, "new_timer_defaults", err)
	}
	return defaults, nil
}

// Status reports every backend's health. A failing backend yields an
// unavailable entry instead of an error.
func (s *Service) Status(ctx context.Context) ([]BackendStatus, error) {
	var out []BackendStatus
	for _, be := range s.reg.All() {
		info, err := be.Status(ctx)
		if err != nil {
			if backend.IsCancelled(err) {
				return nil, err
			}
			s.log.Error().Err(err).
				Str("event", "timers.status_failed").
				Str("backend", be.Name()).
				Msg("status query failed")
			out = append(out, BackendStatus{Backend: be.Name(), Available: false})
			continue
		}
		st := BackendStatus{
			Backend:   be.Name(),
			Version:   info.Version,
			Available: info.Available,
		}
		for _, tuner := range info.Tuners {
			st.Tuners = append(st.Tuners, Tuner{
				ID:         s.reg.ComposeSessionID(be, tuner.LocalID),
				Name:       tuner.Name,
				SourceType: tuner.SourceType,
				Status:     tuner.Status,
				ChannelID:  deriveOptional(ident.KindChannel, be.Name(), tuner.ChannelExternalID),
				Clients:    tuner.Clients,
			})
		}
		out = append(out, st)
	}
	return out, nil
}

// ResetTuner resets the tuner behind a composite tuner id.
func (s *Service) ResetTuner(ctx context.Context, compositeID string) error {
	be, localID, err := s.reg.ResolveSessionID(compositeID)
	if err != nil {
		return err
	}
	if err := be.ResetTuner(ctx, localID); err != nil {
		return backend.WrapOp(be.Name(), "reset_tuner", err)
	}
	return nil
}

func deriveOptional(kind ident.Kind, backendName, externalID string) string {
	if externalID == "" {
		return ""
	}
	return ident.DeriveID(kind, backendName, externalID)
}
