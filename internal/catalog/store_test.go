// SPDX-License-Identifier: MIT

package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mhartwig/tunerhub/internal/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeUnderTest runs the same contract against every Store implementation.
func storeUnderTest(t *testing.T, open func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("channel round trip", func(t *testing.T) {
		s := open(t)
		defer func() { _ = s.Close() }()

		ch := &Channel{ID: "c1", Backend: "sat", ExternalID: "x1", Type: backend.ChannelTV, Number: 3, Name: "One"}
		require.NoError(t, s.PutChannel(ctx, ch))

		got, err := s.Channel(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, ch, got)

		_, err = s.Channel(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("programs filter by channel", func(t *testing.T) {
		s := open(t)
		defer func() { _ = s.Close() }()

		now := time.Now().UTC().Truncate(time.Second)
		require.NoError(t, s.PutProgram(ctx, &Program{ID: "p1", ChannelID: "c1", Start: now, End: now.Add(time.Hour)}))
		require.NoError(t, s.PutProgram(ctx, &Program{ID: "p2", ChannelID: "c2", Start: now, End: now.Add(time.Hour)}))

		got, err := s.Programs(ctx, "c1")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "p1", got[0].ID)

		all, err := s.Programs(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("recording kinds partition ids", func(t *testing.T) {
		s := open(t)
		defer func() { _ = s.Close() }()

		require.NoError(t, s.PutRecording(ctx, &Recording{ID: "r1", Kind: KindVideoRecording, Name: "v"}))
		require.NoError(t, s.PutRecording(ctx, &Recording{ID: "r2", Kind: KindAudioRecording, Name: "a"}))

		video, err := s.IDs(ctx, KindVideoRecording)
		require.NoError(t, err)
		assert.Equal(t, []string{"r1"}, video)

		audio, err := s.IDs(ctx, KindAudioRecording)
		require.NoError(t, err)
		assert.Equal(t, []string{"r2"}, audio)

		got, err := s.Recording(ctx, "r2")
		require.NoError(t, err)
		assert.Equal(t, KindAudioRecording, got.Kind)
	})

	t.Run("delete is idempotent and metadata only", func(t *testing.T) {
		s := open(t)
		defer func() { _ = s.Close() }()

		require.NoError(t, s.PutChannel(ctx, &Channel{ID: "c1"}))
		require.NoError(t, s.Delete(ctx, KindChannel, "c1"))
		require.NoError(t, s.Delete(ctx, KindChannel, "c1"))

		_, err := s.Channel(ctx, "c1")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMemoryStore(t *testing.T) {
	storeUnderTest(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestSQLiteStore(t *testing.T) {
	storeUnderTest(t, func(t *testing.T) Store {
		s, err := OpenSQLite(filepath.Join(t.TempDir(), "catalog.db"))
		require.NoError(t, err)
		return s
	})
}

func TestRecordingGroup(t *testing.T) {
	tests := []struct {
		name  string
		rec   Recording
		group string
	}{
		{"series groups under own name", Recording{Name: "My Show", Flags: backend.ProgramFlags{IsSeries: true, IsMovie: true}}, "My Show"},
		{"kids wins over movie", Recording{Flags: backend.ProgramFlags{IsKids: true, IsMovie: true}}, GroupKids},
		{"movie wins over news", Recording{Flags: backend.ProgramFlags{IsMovie: true, IsNews: true}}, GroupMovies},
		{"news wins over sports", Recording{Flags: backend.ProgramFlags{IsNews: true, IsSports: true}}, GroupNews},
		{"sports", Recording{Flags: backend.ProgramFlags{IsSports: true}}, GroupSports},
		{"no flags", Recording{}, GroupOthers},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.group, tc.rec.Group())
		})
	}
}
