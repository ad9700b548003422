// SPDX-License-Identifier: MIT

package backend

import "time"

// ChannelType distinguishes television from radio services.
type ChannelType string

const (
	ChannelTV    ChannelType = "TV"
	ChannelRadio ChannelType = "Radio"
)

// RecordingStatus is the lifecycle state a backend reports for a recording.
type RecordingStatus string

const (
	RecordingScheduled  RecordingStatus = "Scheduled"
	RecordingInProgress RecordingStatus = "InProgress"
	RecordingCompleted  RecordingStatus = "Completed"
	RecordingCancelled  RecordingStatus = "Cancelled"
	RecordingError      RecordingStatus = "Error"
)

// ChannelInfo is a channel as reported by a backend.
type ChannelInfo struct {
	ExternalID string
	Name       string
	Number     int
	Type       ChannelType
	ImageRef   string // provider image reference, opaque to the catalog
}

// ProgramFlags carries the boolean attributes shared by programs and
// recordings.
type ProgramFlags struct {
	IsLive     bool
	IsSeries   bool
	IsRepeat   bool
	IsMovie    bool
	IsNews     bool
	IsSports   bool
	IsKids     bool
	IsHD       bool
	IsPremiere bool
}

// ProgramInfo is a guide entry as reported by a backend.
type ProgramInfo struct {
	ExternalID      string
	Start           time.Time
	End             time.Time
	Name            string
	EpisodeTitle    string
	Overview        string
	Genres          []string
	CommunityRating float64 // 0 = not rated
	OfficialRating  string
	PremiereDate    *time.Time
	Flags           ProgramFlags
}

// RecordingInfo is a recording as reported by a backend.
type RecordingInfo struct {
	ExternalID            string
	ChannelExternalID     string // empty when the backend does not link recordings to channels
	ProgramExternalID     string
	SeriesTimerExternalID string
	ChannelType           ChannelType
	Status                RecordingStatus
	LocalPath             string // path on a filesystem this process can reach
	URL                   string // remote locator, used when LocalPath is empty
	Start                 time.Time
	End                   time.Time
	Name                  string
	EpisodeTitle          string
	Overview              string
	Genres                []string
	CommunityRating       float64
	OfficialRating        string
	PremiereDate          *time.Time
	Flags                 ProgramFlags
}

// TimerInfo is a single scheduled recording on a backend. Timers are never
// persisted locally; every query round-trips to the backend.
type TimerInfo struct {
	ExternalID            string
	ChannelExternalID     string
	ProgramExternalID     string
	SeriesTimerExternalID string
	Start                 time.Time
	End                   time.Time
	PrePadding            time.Duration
	PostPadding           time.Duration
	Status                RecordingStatus
	Name                  string
	Overview              string
}

// SeriesTimerInfo is a recurring recording rule on a backend.
type SeriesTimerInfo struct {
	ExternalID        string
	ChannelExternalID string
	ProgramExternalID string
	Start             time.Time
	End               time.Time
	Days              []time.Weekday
	RecordAnyChannel  bool
	RecordAnyTime     bool
	RecordNewOnly     bool
	PrePadding        time.Duration
	PostPadding       time.Duration
	Name              string
	Overview          string
}

// TimerDefaults are the backend's suggested settings for a new timer.
type TimerDefaults struct {
	PrePadding       time.Duration
	PostPadding      time.Duration
	RecordAnyChannel bool
	RecordAnyTime    bool
	RecordNewOnly    bool
}

// TunerInfo describes one tuner of a backend. LocalID is backend-scoped;
// callers compose it with the backend prefix before exposing it.
type TunerInfo struct {
	LocalID           string
	Name              string
	SourceType        string
	Status            string
	ChannelExternalID string // channel currently tuned, if any
	Clients           int
}

// StatusInfo is a backend health report.
type StatusInfo struct {
	Version   string
	Available bool
	Tuners    []TunerInfo
}

// MediaStreamType identifies the payload of a media stream.
type MediaStreamType string

const (
	StreamVideo MediaStreamType = "video"
	StreamAudio MediaStreamType = "audio"
)

// MediaStream describes one elementary stream inside a media source.
// Numeric fields use pointers so "unknown" is distinguishable from zero;
// provider-reported garbage is scrubbed to nil during normalization.
type MediaStream struct {
	Type             MediaStreamType
	Index            int // -1 means position unknown
	Codec            string
	Language         string
	Bitrate          *int
	Channels         *int
	SampleRate       *int
	Width            *int
	Height           *int
	AverageFrameRate *float64
	RealFrameRate    *float64
	Level            *float64
	IsInterlaced     bool
}

// MediaSource is the descriptor a backend returns when a stream is opened.
type MediaSource struct {
	ID              string // backend-local media source id
	LiveStreamID    string // composite id, assigned by the session manager
	Path            string
	Protocol        string
	RequiresClosing bool
	Bitrate         *int
	Streams         []MediaStream
}
