// SPDX-License-Identifier: MIT

package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mhartwig/tunerhub/internal/backend"
	"github.com/mhartwig/tunerhub/internal/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sinkRecorder struct {
	images   []string
	metadata []string
}

func (s *sinkRecorder) RefreshChannelImage(_ context.Context, channelID, _ string) {
	s.images = append(s.images, channelID)
}

func (s *sinkRecorder) EnqueueProgramRefresh(_ context.Context, programID string) {
	s.metadata = append(s.metadata, programID)
}

func newReconciler(t *testing.T) (*Reconciler, *catalog.MemoryStore, *sinkRecorder) {
	t.Helper()
	store := catalog.NewMemoryStore()
	sinks := &sinkRecorder{}
	return New(store, sinks, sinks), store, sinks
}

func TestUpsertChannelCreateThenUpdate(t *testing.T) {
	ctx := context.Background()
	r, _, sinks := newReconciler(t)

	info := backend.ChannelInfo{ExternalID: "x1", Name: "One", Number: 1, Type: backend.ChannelTV, ImageRef: "img-a"}
	created, err := r.UpsertChannel(ctx, "sat", info)
	require.NoError(t, err)
	assert.Equal(t, "sat", created.Backend)
	assert.Len(t, sinks.images, 1, "creation triggers an image refetch")

	// Second pass: number moves, name is already set and must survive.
	info.Number = 7
	info.Name = "Renamed Upstream"
	updated, err := r.UpsertChannel(ctx, "sat", info)
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, 7, updated.Number)
	assert.Equal(t, "One", updated.Name, "non-empty name is preserved")
	assert.Len(t, sinks.images, 1, "unchanged image ref does not re-signal")
}

func TestUpsertChannelFillsEmptyName(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newReconciler(t)

	_, err := r.UpsertChannel(ctx, "sat", backend.ChannelInfo{ExternalID: "x1"})
	require.NoError(t, err)
	got, err := r.UpsertChannel(ctx, "sat", backend.ChannelInfo{ExternalID: "x1", Name: "Late Name"})
	require.NoError(t, err)
	assert.Equal(t, "Late Name", got.Name)
}

func TestUpsertChannelImageChangeSignalsSink(t *testing.T) {
	ctx := context.Background()
	r, _, sinks := newReconciler(t)

	_, err := r.UpsertChannel(ctx, "sat", backend.ChannelInfo{ExternalID: "x1", ImageRef: "a"})
	require.NoError(t, err)
	_, err = r.UpsertChannel(ctx, "sat", backend.ChannelInfo{ExternalID: "x1", ImageRef: "b"})
	require.NoError(t, err)
	assert.Len(t, sinks.images, 2)
}

func TestUpsertProgramPreservesEnrichedFields(t *testing.T) {
	ctx := context.Background()
	r, _, sinks := newReconciler(t)
	now := time.Now().UTC().Truncate(time.Second)

	info := backend.ProgramInfo{
		ExternalID:      "p1",
		Start:           now,
		End:             now.Add(time.Hour),
		Name:            "Show",
		Overview:        "first overview",
		CommunityRating: 7.5,
		OfficialRating:  "PG",
	}
	created, err := r.UpsertProgram(ctx, "sat", "chan-id", backend.ChannelTV, info)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, created.Duration)
	assert.True(t, created.IsVideo)

	// Refresh with a shifted window and blanked descriptive fields: the
	// window moves, the enriched fields stay.
	info.Start = now.Add(30 * time.Minute)
	info.End = now.Add(2 * time.Hour)
	info.Overview = ""
	info.CommunityRating = 0
	info.OfficialRating = ""
	updated, err := r.UpsertProgram(ctx, "sat", "chan-id", backend.ChannelTV, info)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, updated.Duration, "duration recomputed from new window")
	assert.Equal(t, "first overview", updated.Overview)
	assert.Equal(t, 7.5, updated.CommunityRating)
	assert.Equal(t, "PG", updated.OfficialRating)

	assert.Len(t, sinks.metadata, 2, "create and update both enqueue metadata refresh")
}

func TestUpsertProgramRejectsEmptyWindow(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newReconciler(t)
	now := time.Now()

	_, err := r.UpsertProgram(ctx, "sat", "c", backend.ChannelTV, backend.ProgramInfo{ExternalID: "p", Start: now, End: now})
	assert.Error(t, err)
}

func TestUpsertRecordingSubtypeFixedAtCreation(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newReconciler(t)

	info := backend.RecordingInfo{ExternalID: "r1", ChannelType: backend.ChannelRadio, Name: "cast"}
	created, err := r.UpsertRecording(ctx, "sat", info)
	require.NoError(t, err)
	assert.Equal(t, catalog.KindAudioRecording, created.Kind)

	// Backend later reports the channel as TV; the subtype must not flip.
	info.ChannelType = backend.ChannelTV
	info.Name = "cast 2"
	updated, err := r.UpsertRecording(ctx, "sat", info)
	require.NoError(t, err)
	assert.Equal(t, catalog.KindAudioRecording, updated.Kind)
	assert.Equal(t, "cast 2", updated.Name)
}

func TestUpsertRecordingPrefersLocalPath(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newReconciler(t)

	rec, err := r.UpsertRecording(ctx, "sat", backend.RecordingInfo{
		ExternalID: "r1",
		LocalPath:  "/srv/rec/file.ts",
		URL:        "http://host/rec/1",
	})
	require.NoError(t, err)
	assert.Equal(t, "/srv/rec/file.ts", rec.Path)
	assert.True(t, rec.PathIsLocal)

	rec, err = r.UpsertRecording(ctx, "sat", backend.RecordingInfo{ExternalID: "r2", URL: "http://host/rec/2"})
	require.NoError(t, err)
	assert.Equal(t, "http://host/rec/2", rec.Path)
	assert.False(t, rec.PathIsLocal)
}

func TestUpsertRecordingSkipsWriteWhenUnchanged(t *testing.T) {
	ctx := context.Background()
	store := catalog.NewMemoryStore()
	counting := &countingStore{Store: store}
	r := New(counting, nil, nil)

	info := backend.RecordingInfo{ExternalID: "r1", Status: backend.RecordingCompleted, Name: "done"}
	_, err := r.UpsertRecording(ctx, "sat", info)
	require.NoError(t, err)
	writes := counting.recordingWrites

	_, err = r.UpsertRecording(ctx, "sat", info)
	require.NoError(t, err)
	assert.Equal(t, writes, counting.recordingWrites, "identical snapshot must not rewrite")

	info.Status = backend.RecordingError
	_, err = r.UpsertRecording(ctx, "sat", info)
	require.NoError(t, err)
	assert.Equal(t, writes+1, counting.recordingWrites)
}

func TestUpsertRecordingChangeDetectionCoversAllFieldShapes(t *testing.T) {
	ctx := context.Background()
	store := catalog.NewMemoryStore()
	counting := &countingStore{Store: store}
	r := New(counting, nil, nil)

	premiere := time.Date(2020, 3, 1, 20, 0, 0, 0, time.UTC)
	info := backend.RecordingInfo{
		ExternalID:   "r1",
		Name:         "nature",
		Genres:       []string{"documentary", "nature"},
		PremiereDate: &premiere,
	}
	_, err := r.UpsertRecording(ctx, "sat", info)
	require.NoError(t, err)
	writes := counting.recordingWrites

	// Same snapshot with a fresh slice and pointer: still unchanged.
	resend := info
	resend.Genres = []string{"documentary", "nature"}
	resendPremiere := premiere
	resend.PremiereDate = &resendPremiere
	_, err = r.UpsertRecording(ctx, "sat", resend)
	require.NoError(t, err)
	assert.Equal(t, writes, counting.recordingWrites, "equal genres and premiere date must not rewrite")

	// A genre edit alone must be detected.
	resend.Genres = []string{"documentary"}
	_, err = r.UpsertRecording(ctx, "sat", resend)
	require.NoError(t, err)
	assert.Equal(t, writes+1, counting.recordingWrites)

	// So must a flag flip.
	resend.Flags = backend.ProgramFlags{IsRepeat: true}
	_, err = r.UpsertRecording(ctx, "sat", resend)
	require.NoError(t, err)
	assert.Equal(t, writes+2, counting.recordingWrites)
}

func TestUpsertRecordingIdentityFieldsAlwaysOverwritten(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newReconciler(t)

	created, err := r.UpsertRecording(ctx, "sat", backend.RecordingInfo{ExternalID: "r1"})
	require.NoError(t, err)
	assert.Empty(t, created.SeriesTimerID)

	updated, err := r.UpsertRecording(ctx, "sat", backend.RecordingInfo{
		ExternalID:            "r1",
		ProgramExternalID:     "p9",
		SeriesTimerExternalID: "st3",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, updated.ProgramID)
	assert.NotEmpty(t, updated.SeriesTimerID)

	if diff := cmp.Diff(created.ID, updated.ID); diff != "" {
		t.Errorf("identity drifted (-created +updated):\n%s", diff)
	}
}

func TestReconcileRemovesOnlyStaleEntries(t *testing.T) {
	ctx := context.Background()
	r, store, _ := newReconciler(t)

	a, err := r.UpsertChannel(ctx, "sat", backend.ChannelInfo{ExternalID: "keep"})
	require.NoError(t, err)
	_, err = r.UpsertChannel(ctx, "sat", backend.ChannelInfo{ExternalID: "stale"})
	require.NoError(t, err)

	live := map[string]struct{}{a.ID: {}}
	require.NoError(t, r.Reconcile(ctx, []catalog.Kind{catalog.KindChannel}, live))

	ids, err := store.IDs(ctx, catalog.KindChannel)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, ids)
}

// countingStore counts recording writes to observe skip-if-unchanged.
type countingStore struct {
	catalog.Store
	recordingWrites int
}

func (c *countingStore) PutRecording(ctx context.Context, r *catalog.Recording) error {
	c.recordingWrites++
	return c.Store.PutRecording(ctx, r)
}
