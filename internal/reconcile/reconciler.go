// SPDX-License-Identifier: MIT

// Package reconcile upserts backend-reported entities into the catalog and
// garbage-collects entries no backend reports anymore. It is the only writer
// of channels, programs and recordings.
package reconcile

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/mhartwig/tunerhub/internal/backend"
	"github.com/mhartwig/tunerhub/internal/catalog"
	"github.com/mhartwig/tunerhub/internal/ident"
	xlog "github.com/mhartwig/tunerhub/internal/log"
	"github.com/mhartwig/tunerhub/internal/metrics"
	"github.com/rs/zerolog"
)

// ImageSink receives a signal when a channel needs its primary image
// (re)fetched. Image I/O happens elsewhere.
type ImageSink interface {
	RefreshChannelImage(ctx context.Context, channelID, imageRef string)
}

// MetadataSink receives a signal when a program should get a deep metadata
// refresh. The fetch itself happens elsewhere.
type MetadataSink interface {
	EnqueueProgramRefresh(ctx context.Context, programID string)
}

type nopSinks struct{}

func (nopSinks) RefreshChannelImage(context.Context, string, string) {}
func (nopSinks) EnqueueProgramRefresh(context.Context, string)       {}

// Reconciler merges backend snapshots into the catalog store.
type Reconciler struct {
	store    catalog.Store
	images   ImageSink
	metadata MetadataSink
	log      zerolog.Logger
}

// New creates a reconciler. Nil sinks are replaced with no-ops.
func New(store catalog.Store, images ImageSink, metadata MetadataSink) *Reconciler {
	if images == nil {
		images = nopSinks{}
	}
	if metadata == nil {
		metadata = nopSinks{}
	}
	return &Reconciler{
		store:    store,
		images:   images,
		metadata: metadata,
		log:      xlog.WithComponent("reconcile"),
	}
}

// UpsertChannel creates or refreshes a channel. Identity is fixed at
// creation; type, external id and number are overwritten every pass, the
// name only when the stored one is empty. An image reference change signals
// the image sink instead of doing image I/O here.
func (r *Reconciler) UpsertChannel(ctx context.Context, backendName string, info backend.ChannelInfo) (*catalog.Channel, error) {
	id := ident.DeriveID(ident.KindChannel, backendName, info.ExternalID)

	existing, err := r.store.Channel(ctx, id)
	switch {
	case err == nil:
		existing.Type = info.Type
		existing.ExternalID = info.ExternalID
		existing.Number = info.Number
		if existing.Name == "" {
			existing.Name = info.Name
		}
		if existing.ImageRef != info.ImageRef {
			existing.ImageRef = info.ImageRef
			r.images.RefreshChannelImage(ctx, id, info.ImageRef)
		}
		if err := r.store.PutChannel(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil

	case catalog.IsNotFound(err):
		ch := &catalog.Channel{
			ID:         id,
			Backend:    backendName,
			ExternalID: info.ExternalID,
			Type:       info.Type,
			Number:     info.Number,
			Name:       info.Name,
			ImageRef:   info.ImageRef,
		}
		if err := r.store.PutChannel(ctx, ch); err != nil {
			return nil, err
		}
		r.images.RefreshChannelImage(ctx, id, info.ImageRef)
		return ch, nil

	default:
		return nil, err
	}
}

// UpsertProgram creates or refreshes a guide entry. Time window, flags,
// genres and titles are always taken from the source; community rating,
// official rating, overview and premiere date are only filled when not
// already set, so enriched metadata survives shallow guide refreshes.
func (r *Reconciler) UpsertProgram(ctx context.Context, backendName, channelID string, channelType backend.ChannelType, info backend.ProgramInfo) (*catalog.Program, error) {
	if !info.End.After(info.Start) {
		return nil, fmt.Errorf("reconcile: program %q has empty time window [%s, %s)", info.ExternalID, info.Start, info.End)
	}
	id := ident.DeriveID(ident.KindProgram, backendName, info.ExternalID)

	existing, err := r.store.Program(ctx, id)
	switch {
	case err == nil:
		existing.Start = info.Start
		existing.End = info.End
		existing.Duration = info.End.Sub(info.Start)
		existing.Name = info.Name
		existing.EpisodeTitle = info.EpisodeTitle
		existing.Genres = append([]string(nil), info.Genres...)
		existing.Flags = info.Flags
		existing.IsVideo = channelType != backend.ChannelRadio
		if existing.CommunityRating == 0 {
			existing.CommunityRating = info.CommunityRating
		}
		if existing.OfficialRating == "" {
			existing.OfficialRating = info.OfficialRating
		}
		if existing.Overview == "" {
			existing.Overview = info.Overview
		}
		if existing.PremiereDate == nil {
			existing.PremiereDate = info.PremiereDate
		}
		if err := r.store.PutProgram(ctx, existing); err != nil {
			return nil, err
		}
		r.metadata.EnqueueProgramRefresh(ctx, id)
		return existing, nil

	case catalog.IsNotFound(err):
		p := &catalog.Program{
			ID:              id,
			ChannelID:       channelID,
			Backend:         backendName,
			ExternalID:      info.ExternalID,
			Start:           info.Start,
			End:             info.End,
			Duration:        info.End.Sub(info.Start),
			Name:            info.Name,
			EpisodeTitle:    info.EpisodeTitle,
			Overview:        info.Overview,
			Genres:          append([]string(nil), info.Genres...),
			CommunityRating: info.CommunityRating,
			OfficialRating:  info.OfficialRating,
			PremiereDate:    info.PremiereDate,
			IsVideo:         channelType != backend.ChannelRadio,
			Flags:           info.Flags,
		}
		if err := r.store.PutProgram(ctx, p); err != nil {
			return nil, err
		}
		r.metadata.EnqueueProgramRefresh(ctx, id)
		return p, nil

	default:
		return nil, err
	}
}

// UpsertRecording creates or refreshes a recording. The video/audio subtype
// is fixed at creation. A local file path is preferred over a remote URL.
// The store write is skipped when nothing changed, so in-progress recordings
// whose only churn is the growing file are not rewritten every pass.
func (r *Reconciler) UpsertRecording(ctx context.Context, backendName string, info backend.RecordingInfo) (*catalog.Recording, error) {
	id := ident.DeriveID(ident.KindRecording, backendName, info.ExternalID)

	path, pathIsLocal := info.URL, false
	if info.LocalPath != "" {
		path, pathIsLocal = info.LocalPath, true
	}

	existing, err := r.store.Recording(ctx, id)
	switch {
	case err == nil:
		updated := *existing
		updated.ExternalID = info.ExternalID
		updated.ChannelID = deriveOptional(ident.KindChannel, backendName, info.ChannelExternalID)
		updated.ProgramID = deriveOptional(ident.KindProgram, backendName, info.ProgramExternalID)
		updated.SeriesTimerID = deriveOptional(ident.KindSeriesTimer, backendName, info.SeriesTimerExternalID)
		updated.Status = info.Status
		updated.Start = info.Start
		updated.End = info.End
		updated.Name = info.Name
		updated.EpisodeTitle = info.EpisodeTitle
		updated.Genres = append([]string(nil), info.Genres...)
		updated.Flags = info.Flags
		if updated.CommunityRating == 0 {
			updated.CommunityRating = info.CommunityRating
		}
		if updated.OfficialRating == "" {
			updated.OfficialRating = info.OfficialRating
		}
		if updated.Overview == "" {
			updated.Overview = info.Overview
		}
		if updated.PremiereDate == nil {
			updated.PremiereDate = info.PremiereDate
		}

		pathChanged := existing.Path != path || existing.PathIsLocal != pathIsLocal
		updated.Path = path
		updated.PathIsLocal = pathIsLocal

		if !pathChanged && !recordingChanged(existing, &updated) {
			return existing, nil
		}
		if err := r.store.PutRecording(ctx, &updated); err != nil {
			return nil, err
		}
		return &updated, nil

	case catalog.IsNotFound(err):
		kind := catalog.KindVideoRecording
		if info.ChannelType == backend.ChannelRadio {
			kind = catalog.KindAudioRecording
		}
		rec := &catalog.Recording{
			ID:              id,
			Kind:            kind,
			Backend:         backendName,
			ExternalID:      info.ExternalID,
			ChannelID:       deriveOptional(ident.KindChannel, backendName, info.ChannelExternalID),
			ProgramID:       deriveOptional(ident.KindProgram, backendName, info.ProgramExternalID),
			SeriesTimerID:   deriveOptional(ident.KindSeriesTimer, backendName, info.SeriesTimerExternalID),
			Status:          info.Status,
			Path:            path,
			PathIsLocal:     pathIsLocal,
			Start:           info.Start,
			End:             info.End,
			Name:            info.Name,
			EpisodeTitle:    info.EpisodeTitle,
			Overview:        info.Overview,
			Genres:          append([]string(nil), info.Genres...),
			CommunityRating: info.CommunityRating,
			OfficialRating:  info.OfficialRating,
			PremiereDate:    info.PremiereDate,
			Flags:           info.Flags,
		}
		if err := r.store.PutRecording(ctx, rec); err != nil {
			return nil, err
		}
		return rec, nil

	default:
		return nil, err
	}
}

// Reconcile removes every stored entry of the given kinds whose id is not in
// live. It runs only after all backends completed a pass, so a single
// backend's transient failure never deletes entries it still holds.
// Deletion is metadata only.
func (r *Reconciler) Reconcile(ctx context.Context, kinds []catalog.Kind, live map[string]struct{}) error {
	for _, kind := range kinds {
		ids, err := r.store.IDs(ctx, kind)
		if err != nil {
			return fmt.Errorf("reconcile: list %s ids: %w", kind, err)
		}
		removed := 0
		for _, id := range ids {
			if _, ok := live[id]; ok {
				continue
			}
			if err := r.store.Delete(ctx, kind, id); err != nil {
				return fmt.Errorf("reconcile: delete %s %s: %w", kind, id, err)
			}
			removed++
		}
		if removed > 0 {
			metrics.AddReconcileDeletions(string(kind), removed)
			r.log.Info().
				Str("event", "reconcile.gc").
				Str("kind", string(kind)).
				Int("removed", removed).
				Msg("stale catalog entries removed")
		}
	}
	return nil
}

func deriveOptional(kind ident.Kind, backendName, externalID string) string {
	if externalID == "" {
		return ""
	}
	return ident.DeriveID(kind, backendName, externalID)
}

// recordingChanged compares everything except the path fields, which the
// caller checks separately.
func recordingChanged(a, b *catalog.Recording) bool {
	switch {
	case a.ID != b.ID,
		a.Kind != b.Kind,
		a.Backend != b.Backend,
		a.ExternalID != b.ExternalID,
		a.ChannelID != b.ChannelID,
		a.ProgramID != b.ProgramID,
		a.SeriesTimerID != b.SeriesTimerID,
		a.Status != b.Status,
		!a.Start.Equal(b.Start),
		!a.End.Equal(b.End),
		a.Name != b.Name,
		a.EpisodeTitle != b.EpisodeTitle,
		a.Overview != b.Overview,
		a.CommunityRating != b.CommunityRating,
		a.OfficialRating != b.OfficialRating,
		a.Flags != b.Flags,
		!slices.Equal(a.Genres, b.Genres),
		!timePtrEqual(a.PremiereDate, b.PremiereDate):
		return true
	}
	return false
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
