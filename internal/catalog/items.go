// SPDX-License-Identifier: MIT

// Package catalog defines the reconciled entity types and the store port
// they are persisted through. The reconciler is the only writer; listing
// and query surfaces read the same store.
package catalog

import (
	"time"

	"github.com/mhartwig/tunerhub/internal/backend"
)

// Kind partitions the store by entity type.
type Kind string

const (
	KindChannel        Kind = "channel"
	KindProgram        Kind = "program"
	KindVideoRecording Kind = "recording.video"
	KindAudioRecording Kind = "recording.audio"
)

// RecordingKinds are the store partitions recordings live in.
var RecordingKinds = []Kind{KindVideoRecording, KindAudioRecording}

// Channel is a reconciled channel. Identity (Backend, ExternalID and the id
// derived from them) is immutable once created; the remaining fields are
// refreshed on every pass.
type Channel struct {
	ID         string              `json:"id"`
	Backend    string              `json:"backend"`
	ExternalID string              `json:"externalId"`
	Type       backend.ChannelType `json:"type"`
	Number     int                 `json:"number"`
	Name       string              `json:"name"`
	ImageRef   string              `json:"imageRef,omitempty"`
}

// Program is a reconciled guide entry. ChannelID refers to a Channel.ID
// derived from the same backend.
type Program struct {
	ID              string               `json:"id"`
	ChannelID       string               `json:"channelId"`
	Backend         string               `json:"backend"`
	ExternalID      string               `json:"externalId"`
	Start           time.Time            `json:"start"`
	End             time.Time            `json:"end"`
	Duration        time.Duration        `json:"duration"`
	Name            string               `json:"name"`
	EpisodeTitle    string               `json:"episodeTitle,omitempty"`
	Overview        string               `json:"overview,omitempty"`
	Genres          []string             `json:"genres,omitempty"`
	CommunityRating float64              `json:"communityRating,omitempty"`
	OfficialRating  string               `json:"officialRating,omitempty"`
	PremiereDate    *time.Time           `json:"premiereDate,omitempty"`
	IsVideo         bool                 `json:"isVideo"`
	Flags           backend.ProgramFlags `json:"flags"`
}

// Recording is a reconciled recording. Kind (video vs audio) is fixed at
// creation from the channel type and never changes afterwards.
type Recording struct {
	ID              string                  `json:"id"`
	Kind            Kind                    `json:"kind"`
	Backend         string                  `json:"backend"`
	ExternalID      string                  `json:"externalId"`
	ChannelID       string                  `json:"channelId,omitempty"`
	ProgramID       string                  `json:"programId,omitempty"`
	SeriesTimerID   string                  `json:"seriesTimerId,omitempty"`
	Status          backend.RecordingStatus `json:"status"`
	Path            string                  `json:"path,omitempty"`
	PathIsLocal     bool                    `json:"pathIsLocal,omitempty"`
	Start           time.Time               `json:"start"`
	End             time.Time               `json:"end"`
	Name            string                  `json:"name"`
	EpisodeTitle    string                  `json:"episodeTitle,omitempty"`
	Overview        string                  `json:"overview,omitempty"`
	Genres          []string                `json:"genres,omitempty"`
	CommunityRating float64                 `json:"communityRating,omitempty"`
	OfficialRating  string                  `json:"officialRating,omitempty"`
	PremiereDate    *time.Time              `json:"premiereDate,omitempty"`
	Flags           backend.ProgramFlags    `json:"flags"`
}

// Recording group names for non-series recordings.
const (
	GroupKids   = "Kids"
	GroupMovies = "Movies"
	GroupNews   = "News"
	GroupSports = "Sports"
	GroupOthers = "Others"
)

// Group derives the display group of a recording. Series recordings group
// under their own name; everything else falls into exactly one flag bucket,
// first true flag wins.
func (r *Recording) Group() string {
	switch {
	case r.Flags.IsSeries:
		return r.Name
	case r.Flags.IsKids:
		return GroupKids
	case r.Flags.IsMovie:
		return GroupMovies
	case r.Flags.IsNews:
		return GroupNews
	case r.Flags.IsSports:
		return GroupSports
	default:
		return GroupOthers
	}
}

func cloneChannel(c *Channel) *Channel {
	out := *c
	return &out
}

func cloneProgram(p *Program) *Program {
	out := *p
	out.Genres = append([]string(nil), p.Genres...)
	return &out
}

func cloneRecording(r *Recording) *Recording {
	out := *r
	out.Genres = append([]string(nil), r.Genres...)
	return &out
}
