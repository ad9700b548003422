// SPDX-License-Identifier: MIT

package refresh

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mhartwig/tunerhub/internal/backend"
	"github.com/mhartwig/tunerhub/internal/backend/backendtest"
	"github.com/mhartwig/tunerhub/internal/catalog"
	"github.com/mhartwig/tunerhub/internal/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRunsTriggeredPassAndWritesStatus(t *testing.T) {
	statusPath := filepath.Join(t.TempDir(), "status.json")

	reg := backend.NewRegistry()
	fake := &backendtest.Fake{BackendName: "A", Channels: channelInfos("a1")}
	require.NoError(t, reg.AddBackends(fake))

	pipeline := New(reg, reconcile.New(catalog.NewMemoryStore(), nil, nil), Options{})
	sched := NewScheduler(pipeline, reg, SchedulerOptions{
		MinGap:     time.Millisecond,
		StatusPath: statusPath,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sched.Run(ctx)
	}()

	sched.Trigger()
	require.Eventually(t, func() bool { return sched.Status() != nil }, 5*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	st := sched.Status()
	assert.Equal(t, 1, st.Channels)

	raw, err := os.ReadFile(statusPath)
	require.NoError(t, err)
	var onDisk Status
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Equal(t, st.Channels, onDisk.Channels)
}

func TestSchedulerDefersTriggerInsideMinGap(t *testing.T) {
	reg := backend.NewRegistry()
	fake := &backendtest.Fake{BackendName: "A"}
	require.NoError(t, reg.AddBackends(fake))

	pipeline := New(reg, reconcile.New(catalog.NewMemoryStore(), nil, nil), Options{})
	sched := NewScheduler(pipeline, reg, SchedulerOptions{MinGap: 100 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sched.Run(ctx)
	}()

	sched.Trigger()
	require.Eventually(t, func() bool { return fake.ListChannelsCalls.Load() == 1 }, 5*time.Second, 10*time.Millisecond)

	// A trigger inside the gap must not be lost: it runs once the gap elapses.
	sched.Trigger()
	require.Eventually(t, func() bool { return fake.ListChannelsCalls.Load() == 2 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	<-done
}

func TestSchedulerCollapsesBursts(t *testing.T) {
	reg := backend.NewRegistry()
	fake := &backendtest.Fake{BackendName: "A"}
	require.NoError(t, reg.AddBackends(fake))

	pipeline := New(reg, reconcile.New(catalog.NewMemoryStore(), nil, nil), Options{})
	sched := NewScheduler(pipeline, reg, SchedulerOptions{MinGap: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sched.Run(ctx)
	}()

	// First trigger runs, the burst behind it is rate-collapsed.
	sched.Trigger()
	require.Eventually(t, func() bool { return fake.ListChannelsCalls.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
	for i := 0; i < 5; i++ {
		sched.Trigger()
	}
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, int32(1), fake.ListChannelsCalls.Load())
}
