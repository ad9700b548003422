// SPDX-License-Identifier: MIT

package livetv

import (
	"context"
	"errors"
	"testing"

	"github.com/mhartwig/tunerhub/internal/backend"
	"github.com/mhartwig/tunerhub/internal/backend/backendtest"
	"github.com/mhartwig/tunerhub/internal/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func fixture(t *testing.T, fake *backendtest.Fake) (*Manager, *catalog.MemoryStore) {
	t.Helper()
	reg := backend.NewRegistry()
	require.NoError(t, reg.AddBackends(fake))
	store := catalog.NewMemoryStore()
	return NewManager(reg, store), store
}

func seedChannel(t *testing.T, store *catalog.MemoryStore, backendName string) *catalog.Channel {
	t.Helper()
	ch := &catalog.Channel{ID: "chan-1", Backend: backendName, ExternalID: "x1", Type: backend.ChannelTV}
	require.NoError(t, store.PutChannel(context.Background(), ch))
	return ch
}

func TestOpenCloseRoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := &backendtest.Fake{
		BackendName: "sat",
		ImplKey:     "satkey",
		OpenSource:  &backend.MediaSource{ID: "local-7", RequiresClosing: true},
	}
	m, store := fixture(t, fake)
	ch := seedChannel(t, store, "sat")

	src, err := m.OpenStream(ctx, ch.ID, "", true)
	require.NoError(t, err)
	require.NotEmpty(t, src.LiveStreamID)
	require.Len(t, m.Sessions(), 1)

	require.NoError(t, m.CloseStream(ctx, src.LiveStreamID))
	assert.Empty(t, m.Sessions())
	assert.Equal(t, []string{"local-7"}, fake.ClosedIDs())
}

func TestOpenStreamNormalizesDescriptor(t *testing.T) {
	ctx := context.Background()
	fake := &backendtest.Fake{
		BackendName: "sat",
		OpenSource:  &backend.MediaSource{ID: "s1", RequiresClosing: true},
	}
	m, store := fixture(t, fake)
	ch := seedChannel(t, store, "sat")

	src, err := m.OpenStream(ctx, ch.ID, "", true)
	require.NoError(t, err)
	require.Len(t, src.Streams, 2, "empty descriptor gets synthesized video+audio")
}

func TestOpenStreamUnknownTarget(t *testing.T) {
	ctx := context.Background()
	m, _ := fixture(t, &backendtest.Fake{BackendName: "sat"})

	_, err := m.OpenStream(ctx, "nope", "", true)
	assert.ErrorIs(t, err, backend.ErrTargetNotFound)
	assert.Empty(t, m.Sessions())
}

func TestOpenStreamBackendFailureNotRegistered(t *testing.T) {
	ctx := context.Background()
	fake := &backendtest.Fake{BackendName: "sat", OpenErr: errors.New("no free tuner")}
	m, store := fixture(t, fake)
	ch := seedChannel(t, store, "sat")

	_, err := m.OpenStream(ctx, ch.ID, "", true)
	assert.ErrorIs(t, err, backend.ErrOperationFailed)
	assert.Empty(t, m.Sessions())
}

func TestOpenStreamReplacesSessionUnderSameKey(t *testing.T) {
	ctx := context.Background()
	fake := &backendtest.Fake{
		BackendName: "sat",
		OpenSource:  &backend.MediaSource{ID: "same", RequiresClosing: true},
	}
	m, store := fixture(t, fake)
	ch := seedChannel(t, store, "sat")

	_, err := m.OpenStream(ctx, ch.ID, "", true)
	require.NoError(t, err)
	_, err = m.OpenStream(ctx, ch.ID, "", true)
	require.NoError(t, err)
	assert.Len(t, m.Sessions(), 1)
}

func TestOpenRecordingStream(t *testing.T) {
	ctx := context.Background()
	fake := &backendtest.Fake{
		BackendName: "sat",
		OpenSource:  &backend.MediaSource{ID: "rec-stream", RequiresClosing: true},
	}
	m, store := fixture(t, fake)
	rec := &catalog.Recording{ID: "rec-1", Kind: catalog.KindAudioRecording, Backend: "sat", ExternalID: "r9"}
	require.NoError(t, store.PutRecording(ctx, rec))

	src, err := m.OpenStream(ctx, rec.ID, "", false)
	require.NoError(t, err)
	require.Len(t, src.Streams, 1, "audio recording gets a single synthesized audio stream")
	require.Len(t, m.Sessions(), 1)
	assert.False(t, m.Sessions()[0].IsChannel)
}

func TestCloseStreamUnknownID(t *testing.T) {
	ctx := context.Background()
	fake := &backendtest.Fake{
		BackendName: "sat",
		OpenSource:  &backend.MediaSource{ID: "s1", RequiresClosing: true},
	}
	m, store := fixture(t, fake)
	ch := seedChannel(t, store, "sat")

	_, err := m.OpenStream(ctx, ch.ID, "", true)
	require.NoError(t, err)

	err = m.CloseStream(ctx, "deadbeef_x")
	assert.ErrorIs(t, err, backend.ErrBackendNotFound)
	assert.Len(t, m.Sessions(), 1, "failed resolve must leave the table unchanged")

	err = m.CloseStream(ctx, "noseparatorhere")
	assert.ErrorIs(t, err, backend.ErrInvalidIdentifier)
}

func TestCloseStreamRemovesEntryEvenWhenBackendFails(t *testing.T) {
	ctx := context.Background()
	fake := &backendtest.Fake{
		BackendName: "sat",
		OpenSource:  &backend.MediaSource{ID: "s1", RequiresClosing: true},
		CloseErr:    errors.New("already gone"),
	}
	m, store := fixture(t, fake)
	ch := seedChannel(t, store, "sat")

	src, err := m.OpenStream(ctx, ch.ID, "", true)
	require.NoError(t, err)

	err = m.CloseStream(ctx, src.LiveStreamID)
	assert.ErrorIs(t, err, backend.ErrOperationFailed, "backend failure is surfaced")
	assert.Empty(t, m.Sessions(), "entry is removed before the backend call")
}

func TestTeardownClosesAllSessions(t *testing.T) {
	ctx := context.Background()
	fake := &backendtest.Fake{BackendName: "sat"}
	m, store := fixture(t, fake)
	seedChannel(t, store, "sat")

	rec := &catalog.Recording{ID: "rec-1", Kind: catalog.KindVideoRecording, Backend: "sat", ExternalID: "r1"}
	require.NoError(t, store.PutRecording(ctx, rec))

	_, err := m.OpenStream(ctx, "chan-1", "", true)
	require.NoError(t, err)
	_, err = m.OpenStream(ctx, rec.ID, "", false)
	require.NoError(t, err)
	require.Len(t, m.Sessions(), 2)

	m.Teardown(ctx)
	assert.Empty(t, m.Sessions())
	assert.Len(t, fake.ClosedIDs(), 2)
}

func TestTeardownContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	fake := &backendtest.Fake{BackendName: "sat", CloseErr: errors.New("flaky")}
	m, store := fixture(t, fake)
	seedChannel(t, store, "sat")

	_, err := m.OpenStream(ctx, "chan-1", "", true)
	require.NoError(t, err)

	m.Teardown(ctx)
	assert.Empty(t, m.Sessions(), "table is cleared even when closes fail")
	assert.Len(t, fake.ClosedIDs(), 1)
}
