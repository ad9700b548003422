// SPDX-License-Identifier: MIT

// Package backend defines the capability interface every TV backend client
// implements, the registry that federates registered clients, and the error
// taxonomy shared by all callers.
package backend

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Client is the capability set of one TV backend. One implementation exists
// per provider technology; instances are registered at startup and live for
// the whole process. All operations honour context cancellation.
type Client interface {
	// Name returns the unique, human-readable backend name.
	Name() string
	// ImplementationKey identifies the backend implementation, independent
	// of Name. It namespaces session and tuner ids.
	ImplementationKey() string

	ListChannels(ctx context.Context) ([]ChannelInfo, error)
	ListPrograms(ctx context.Context, channelExternalID string, start, end time.Time) ([]ProgramInfo, error)

	ListRecordings(ctx context.Context) ([]RecordingInfo, error)
	DeleteRecording(ctx context.Context, externalID string) error

	ListTimers(ctx context.Context) ([]TimerInfo, error)
	CreateTimer(ctx context.Context, timer TimerInfo) error
	UpdateTimer(ctx context.Context, timer TimerInfo) error
	CancelTimer(ctx context.Context, externalID string) error

	ListSeriesTimers(ctx context.Context) ([]SeriesTimerInfo, error)
	CreateSeriesTimer(ctx context.Context, timer SeriesTimerInfo) error
	UpdateSeriesTimer(ctx context.Context, timer SeriesTimerInfo) error
	CancelSeriesTimer(ctx context.Context, externalID string) error

	// OpenChannelStream opens a live stream for a channel. The hint names a
	// preferred media source and may be empty.
	OpenChannelStream(ctx context.Context, channelExternalID, mediaSourceHint string) (*MediaSource, error)
	OpenRecordingStream(ctx context.Context, recordingExternalID string) (*MediaSource, error)
	CloseStream(ctx context.Context, localID string) error

	Status(ctx context.Context) (*StatusInfo, error)
	ResetTuner(ctx context.Context, localID string) error

	// NewTimerDefaults returns suggested settings for a new timer, optionally
	// tailored to a program.
	NewTimerDefaults(ctx context.Context, program *ProgramInfo) (*TimerDefaults, error)
}

// Factory builds a backend client from its configured options.
type Factory func(name string, options map[string]string) (Client, error)

var (
	driversMu sync.RWMutex
	drivers   = map[string]Factory{}
)

// RegisterDriver makes a backend implementation available under a driver
// kind. Called from the driver package's init.
func RegisterDriver(kind string, f Factory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if _, dup := drivers[kind]; dup {
		panic(fmt.Sprintf("backend: driver %q registered twice", kind))
	}
	drivers[kind] = f
}

// NewClient instantiates a client for the given driver kind.
func NewClient(kind, name string, options map[string]string) (Client, error) {
	driversMu.RLock()
	f, ok := drivers[kind]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("backend: unknown driver %q", kind)
	}
	return f(name, options)
}
