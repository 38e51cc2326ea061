package updates_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/botgateway/internal/botapi"
	"github.com/hrygo/botgateway/internal/updates"
)

func TestAddAssignsMonotonicIDs(t *testing.T) {
	m := updates.New()
	first := m.Add(1, botapi.Update{})
	second := m.Add(1, botapi.Update{})
	require.Less(t, first.UpdateID, second.UpdateID)
}

func TestGetAcknowledgesOffset(t *testing.T) {
	m := updates.New()
	u1 := m.Add(1, botapi.Update{})
	m.Add(1, botapi.Update{})

	got := m.Get(1, u1.UpdateID+1, 10)
	require.Len(t, got, 1)

	// A later get with a smaller offset must never resurrect the
	// acknowledged update.
	got2 := m.Get(1, u1.UpdateID, 10)
	for _, u := range got2 {
		require.GreaterOrEqual(t, u.UpdateID, u1.UpdateID+1)
	}
}

func TestQueueCapBoundsLength(t *testing.T) {
	m := updates.New()
	for i := 0; i < updates.MaxQueueSize+50; i++ {
		m.Add(1, botapi.Update{})
	}
	got := m.Get(1, 0, updates.MaxQueueSize+50)
	require.LessOrEqual(t, len(got), updates.MaxQueueSize)
}

func TestBotsAreIndependent(t *testing.T) {
	m := updates.New()
	m.Add(1, botapi.Update{})
	got := m.Get(2, 0, 10)
	require.Empty(t, got)
}

func TestMarkMessageSeenDedups(t *testing.T) {
	m := updates.New()
	require.False(t, m.MarkMessageSeen(1, "42_7"))
	require.True(t, m.MarkMessageSeen(1, "42_7"))
}

func TestMarkCallbackSeenDedups(t *testing.T) {
	m := updates.New()
	require.False(t, m.MarkCallbackSeen(1, "cb_1_2_x"))
	require.True(t, m.MarkCallbackSeen(1, "cb_1_2_x"))
}

func TestHandlerRegistration(t *testing.T) {
	m := updates.New()
	require.False(t, m.IsHandlerRegistered(9))
	m.MarkHandlerRegistered(9)
	require.True(t, m.IsHandlerRegistered(9))
}

func TestWaitForUpdatesReturnsImmediatelyWhenDataPresent(t *testing.T) {
	m := updates.New()
	m.Add(1, botapi.Update{})
	start := time.Now()
	got := m.WaitForUpdates(context.Background(), 1, 0, 10, 2*time.Second)
	require.Len(t, got, 1)
	require.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestWaitForUpdatesDeliversConcurrentAdd(t *testing.T) {
	m := updates.New()
	go func() {
		time.Sleep(50 * time.Millisecond)
		m.Add(1, botapi.Update{})
	}()
	got := m.WaitForUpdates(context.Background(), 1, 0, 10, 3*time.Second)
	require.Len(t, got, 1)
}

func TestWaitForUpdatesEmptyWithZeroTimeout(t *testing.T) {
	m := updates.New()
	got := m.WaitForUpdates(context.Background(), 1, 0, 10, 0)
	require.Empty(t, got)
}
