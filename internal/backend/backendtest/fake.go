// SPDX-License-Identifier: MIT

// Package backendtest provides a configurable in-memory backend client for
// tests.
package backendtest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mhartwig/tunerhub/internal/backend"
)

// Fake is a backend.Client whose responses are plain fields. Zero value is
// usable; set the fields a test cares about.
type Fake struct {
	BackendName string
	ImplKey     string

	Channels      []backend.ChannelInfo
	ChannelsErr   error
	Programs      map[string][]backend.ProgramInfo // keyed by channel external id
	ProgramsErr   map[string]error                 // per-channel listing failures
	Recordings    []backend.RecordingInfo
	RecordingsErr error

	Timers       []backend.TimerInfo
	SeriesTimers []backend.SeriesTimerInfo
	TimersErr    error

	OpenSource *backend.MediaSource
	OpenErr    error
	CloseErr   error
	MutateErr  error

	StatusInfo *backend.StatusInfo
	Defaults   *backend.TimerDefaults

	ListChannelsCalls   atomic.Int32
	ListRecordingsCalls atomic.Int32

	mu          sync.Mutex
	closedIDs   []string
	resetTuners []string
	mutations   []string
}

var _ backend.Client = (*Fake)(nil)

func (f *Fake) Name() string { return f.BackendName }

func (f *Fake) ImplementationKey() string {
	if f.ImplKey != "" {
		return f.ImplKey
	}
	return f.BackendName
}

func (f *Fake) ListChannels(ctx context.Context) ([]backend.ChannelInfo, error) {
	f.ListChannelsCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.ChannelsErr != nil {
		return nil, f.ChannelsErr
	}
	return f.Channels, nil
}

func (f *Fake) ListPrograms(ctx context.Context, channelExternalID string, start, end time.Time) ([]backend.ProgramInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.ProgramsErr[channelExternalID]; err != nil {
		return nil, err
	}
	return f.Programs[channelExternalID], nil
}

func (f *Fake) ListRecordings(ctx context.Context) ([]backend.RecordingInfo, error) {
	f.ListRecordingsCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.RecordingsErr != nil {
		return nil, f.RecordingsErr
	}
	return f.Recordings, nil
}

func (f *Fake) DeleteRecording(ctx context.Context, externalID string) error {
	return f.recordMutation("delete_recording:" + externalID)
}

func (f *Fake) ListTimers(ctx context.Context) ([]backend.TimerInfo, error) {
	if f.TimersErr != nil {
		return nil, f.TimersErr
	}
	return f.Timers, nil
}

func (f *Fake) CreateTimer(ctx context.Context, timer backend.TimerInfo) error {
	return f.recordMutation("create_timer:" + timer.ExternalID)
}

func (f *Fake) UpdateTimer(ctx context.Context, timer backend.TimerInfo) error {
	return f.recordMutation("update_timer:" + timer.ExternalID)
}

func (f *Fake) CancelTimer(ctx context.Context, externalID string) error {
	return f.recordMutation("cancel_timer:" + externalID)
}

func (f *Fake) ListSeriesTimers(ctx context.Context) ([]backend.SeriesTimerInfo, error) {
	if f.TimersErr != nil {
		return nil, f.TimersErr
	}
	return f.SeriesTimers, nil
}

func (f *Fake) CreateSeriesTimer(ctx context.Context, timer backend.SeriesTimerInfo) error {
	return f.recordMutation("create_series_timer:" + timer.ExternalID)
}

func (f *Fake) UpdateSeriesTimer(ctx context.Context, timer backend.SeriesTimerInfo) error {
	return f.recordMutation("update_series_timer:" + timer.ExternalID)
}

func (f *Fake) CancelSeriesTimer(ctx context.Context, externalID string) error {
	return f.recordMutation("cancel_series_timer:" + externalID)
}

func (f *Fake) OpenChannelStream(ctx context.Context, channelExternalID, mediaSourceHint string) (*backend.MediaSource, error) {
	return f.open(channelExternalID)
}

func (f *Fake) OpenRecordingStream(ctx context.Context, recordingExternalID string) (*backend.MediaSource, error) {
	return f.open(recordingExternalID)
}

func (f *Fake) open(externalID string) (*backend.MediaSource, error) {
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	if f.OpenSource != nil {
		src := *f.OpenSource
		src.Streams = append([]backend.MediaStream(nil), f.OpenSource.Streams...)
		return &src, nil
	}
	return &backend.MediaSource{ID: "local-" + externalID, RequiresClosing: true}, nil
}

func (f *Fake) CloseStream(ctx context.Context, localID string) error {
	f.mu.Lock()
	f.closedIDs = append(f.closedIDs, localID)
	f.mu.Unlock()
	return f.CloseErr
}

// ClosedIDs returns the local ids passed to CloseStream so far.
func (f *Fake) ClosedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.closedIDs...)
}

func (f *Fake) Status(ctx context.Context) (*backend.StatusInfo, error) {
	if f.StatusInfo != nil {
		return f.StatusInfo, nil
	}
	return &backend.StatusInfo{Available: true}, nil
}

func (f *Fake) ResetTuner(ctx context.Context, localID string) error {
	f.mu.Lock()
	f.resetTuners = append(f.resetTuners, localID)
	f.mu.Unlock()
	return f.MutateErr
}

// ResetTuners returns the local ids passed to ResetTuner so far.
func (f *Fake) ResetTuners() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.resetTuners...)
}

func (f *Fake) NewTimerDefaults(ctx context.Context, program *backend.ProgramInfo) (*backend.TimerDefaults, error) {
	if f.Defaults != nil {
		return f.Defaults, nil
	}
	return &backend.TimerDefaults{PrePadding: time.Minute, PostPadding: 2 * time.Minute}, nil
}

func (f *Fake) recordMutation(op string) error {
	f.mu.Lock()
	f.mutations = append(f.mutations, op)
	f.mu.Unlock()
	return f.MutateErr
}

// Mutations returns the mutating operations invoked so far, in order.
func (f *Fake) Mutations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.mutations...)
}
