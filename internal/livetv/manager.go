// SPDX-License-Identifier: MIT

// Package livetv opens and closes live playback streams against backends
// and tracks the sessions in between.
package livetv

import (
	"context"
	"sync"
	"time"

	"github.com/mhartwig/tunerhub/internal/backend"
	"github.com/mhartwig/tunerhub/internal/catalog"
	xlog "github.com/mhartwig/tunerhub/internal/log"
	"github.com/mhartwig/tunerhub/internal/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Session is one open live or recording stream. In-memory only; destroyed
// on close or teardown.
type Session struct {
	Source    *backend.MediaSource
	TargetID  string
	IsChannel bool
	OpenedAt  time.Time
}

// Manager owns the open-session table. One mutex serialises every open and
// close across the whole manager: opens and closes are rare relative to
// playback duration, so the coarse lock buys simplicity at no practical
// throughput cost.
type Manager struct {
	reg   *backend.Registry
	store catalog.Store

	mu       sync.Mutex
	sessions map[string]*Session
	log      zerolog.Logger
}

// NewManager creates a session manager reading targets from store.
func NewManager(reg *backend.Registry, store catalog.Store) *Manager {
	return &Manager{
		reg:      reg,
		store:    store,
		sessions: map[string]*Session{},
		log:      xlog.WithComponent("livetv"),
	}
}

// OpenStream opens a live stream for a channel or recording, normalizes the
// returned descriptor and registers the session. Failures are logged and
// returned to the caller; no session is registered on failure.
func (m *Manager) OpenStream(ctx context.Context, targetID, mediaSourceID string, isChannel bool) (*backend.MediaSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, err := m.openLocked(ctx, targetID, mediaSourceID, isChannel)
	if err != nil {
		metrics.IncSessionOp("open", "failure")
		m.log.Error().Err(err).
			Str("event", "livetv.open_failed").
			Str("target", targetID).
			Bool("is_channel", isChannel).
			Msg("stream open failed")
		return nil, err
	}
	metrics.IncSessionOp("open", "success")
	metrics.SetOpenSessions(len(m.sessions))
	m.log.Info().
		Str("event", "livetv.opened").
		Str("target", targetID).
		Str("stream_id", sessionKey(src)).
		Msg("stream opened")
	return src, nil
}

func (m *Manager) openLocked(ctx context.Context, targetID, mediaSourceID string, isChannel bool) (*backend.MediaSource, error) {
	var (
		backendName string
		externalID  string
		isVideo     bool
	)
	if isChannel {
		ch, err := m.store.Channel(ctx, targetID)
		if catalog.IsNotFound(err) {
			return nil, &backend.Error{Sentinel: backend.ErrTargetNotFound, Op: "open_channel_stream", Err: err}
		}
		if err != nil {
			return nil, err
		}
		backendName, externalID = ch.Backend, ch.ExternalID
		isVideo = ch.Type != backend.ChannelRadio
	} else {
		rec, err := m.store.Recording(ctx, targetID)
		if catalog.IsNotFound(err) {
			return nil, &backend.Error{Sentinel: backend.ErrTargetNotFound, Op: "open_recording_stream", Err: err}
		}
		if err != nil {
			return nil, err
		}
		backendName, externalID = rec.Backend, rec.ExternalID
		isVideo = rec.Kind == catalog.KindVideoRecording
	}

	be, err := m.reg.ByName(backendName)
	if err != nil {
		return nil, err
	}

	var src *backend.MediaSource
	if isChannel {
		src, err = be.OpenChannelStream(ctx, externalID, mediaSourceID)
	} else {
		src, err = be.OpenRecordingStream(ctx, externalID)
	}
	if err != nil {
		return nil, backend.WrapOp(backendName, "open_stream", err)
	}

	if src.RequiresClosing {
		src.LiveStreamID = m.reg.ComposeSessionID(be, src.ID)
	}
	Normalize(src, isVideo)

	m.sessions[sessionKey(src)] = &Session{
		Source:    src,
		TargetID:  targetID,
		IsChannel: isChannel,
		OpenedAt:  time.Now(),
	}
	return src, nil
}

// sessionKey is the table key for a descriptor: the composite live stream
// id when the stream needs an explicit close, otherwise the backend-issued
// media source id.
func sessionKey(src *backend.MediaSource) string {
	if src.LiveStreamID != "" {
		return src.LiveStreamID
	}
	return src.ID
}

// CloseStream closes the stream behind a composite id. The session entry is
// removed before the backend call, so a failing backend close never leaves
// a stale table entry; the failure is still reported to the caller.
func (m *Manager) CloseStream(ctx context.Context, compositeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	be, localID, err := m.reg.ResolveSessionID(compositeID)
	if err != nil {
		metrics.IncSessionOp("close", "failure")
		return err
	}

	delete(m.sessions, compositeID)
	metrics.SetOpenSessions(len(m.sessions))

	if err := be.CloseStream(ctx, localID); err != nil {
		metrics.IncSessionOp("close", "failure")
		err = backend.WrapOp(be.Name(), "close_stream", err)
		m.log.Error().Err(err).
			Str("event", "livetv.close_failed").
			Str("stream_id", compositeID).
			Msg("backend close failed")
		return err
	}
	metrics.IncSessionOp("close", "success")
	m.log.Info().Str("event", "livetv.closed").Str("stream_id", compositeID).Msg("stream closed")
	return nil
}

// Sessions returns a snapshot of the open sessions.
func (m *Manager) Sessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Teardown synchronously closes every open session, one task per session,
// and clears the table. Individual failures are logged, never fatal: the
// loop must visit every session so backend resources are not leaked.
// Invoked exactly once at shutdown.
func (m *Manager) Teardown(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var g errgroup.Group
	for key := range m.sessions {
		be, localID, err := m.reg.ResolveSessionID(key)
		if err != nil {
			// Sessions that never required closing have no composite id.
			continue
		}
		key := key
		g.Go(func() error {
			if err := be.CloseStream(ctx, localID); err != nil {
				m.log.Error().Err(err).
					Str("event", "livetv.teardown_close_failed").
					Str("stream_id", key).
					Msg("session close failed during teardown")
			}
			return nil
		})
	}
	_ = g.Wait()

	n := len(m.sessions)
	m.sessions = map[string]*Session{}
	metrics.SetOpenSessions(0)
	m.log.Info().Str("event", "livetv.teardown").Int("sessions", n).Msg("all sessions closed")
}
