// SPDX-License-Identifier: MIT
package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowlink/flowlink/internal/protocol"
)

func TestSweepExpiresDueSessionsExactlyOnce(t *testing.T) {
	h, clk := newTestHub(Config{SessionTTL: time.Hour})
	alice, bob, sid := twoDeviceSession(t, h)
	snap, _ := h.store.Get(sid, clk.Now())

	clk.Advance(61 * time.Minute)
	sw := NewSweeper(h, time.Minute, 30*time.Second)

	expired, purged := sw.SweepOnce(clk.Now())
	require.Equal(t, 1, expired)
	require.Equal(t, 0, purged) // both devices still hold connections

	for _, c := range []*fakeConn{alice, bob} {
		require.Equal(t, 1, c.countOfType(t, protocol.TypeSessionExpired))
		require.False(t, c.isClosed())
	}

	// A second pass is a no-op.
	expired, _ = sw.SweepOnce(clk.Now())
	require.Equal(t, 0, expired)
	require.Equal(t, 1, alice.countOfType(t, protocol.TypeSessionExpired))

	// The code is dead and the directory links are cleared.
	carol := openConn(h, "carol-conn")
	h.HandleMessage(carol, frame(t, protocol.TypeSessionJoin, "", "", protocol.JoinPayload{
		Code:            snap.Code,
		RegisterPayload: identity("carol-mini", "carol"),
	}))
	require.Equal(t, "Invalid session code", errorMessage(t, carol))
	for _, id := range []string{"alice-mbp", "bob-phone"} {
		entry, ok := h.dir.Get(id)
		require.True(t, ok)
		require.Empty(t, entry.SessionID)
	}
}

func TestSweepLeavesLiveSessionsAlone(t *testing.T) {
	h, clk := newTestHub(Config{SessionTTL: time.Hour})
	twoDeviceSession(t, h)

	clk.Advance(30 * time.Minute)
	expired, purged := NewSweeper(h, time.Minute, 30*time.Second).SweepOnce(clk.Now())

	require.Equal(t, 0, expired)
	require.Equal(t, 0, purged)
	require.Equal(t, 1, h.Stats().Sessions)
}

func TestSweepPurgesEntriesAfterGrace(t *testing.T) {
	h, clk := newTestHub(Config{})
	dave := openConn(h, "dave-conn")
	registerDevice(t, h, dave, "dave-tab", "dave")
	h.HandleDisconnect(dave)

	sw := NewSweeper(h, time.Minute, 30*time.Second)

	clk.Advance(29 * time.Second)
	_, purged := sw.SweepOnce(clk.Now())
	require.Equal(t, 0, purged)
	_, ok := h.dir.Get("dave-tab")
	require.True(t, ok)

	clk.Advance(2 * time.Second)
	_, purged = sw.SweepOnce(clk.Now())
	require.Equal(t, 1, purged)
	_, ok = h.dir.Get("dave-tab")
	require.False(t, ok)
}

func TestSweepNeverPurgesConnectedDevices(t *testing.T) {
	h, clk := newTestHub(Config{})
	dave := openConn(h, "dave-conn")
	registerDevice(t, h, dave, "dave-tab", "dave")

	clk.Advance(10 * time.Minute)
	_, purged := NewSweeper(h, time.Minute, 30*time.Second).SweepOnce(clk.Now())

	require.Equal(t, 0, purged)
	entry, ok := h.dir.Get("dave-tab")
	require.True(t, ok)
	require.True(t, entry.Online)
}

func TestSweeperDefaults(t *testing.T) {
	h, _ := newTestHub(Config{})
	sw := NewSweeper(h, 0, 0)
	require.Equal(t, time.Minute, sw.interval)
	require.Equal(t, 30*time.Second, sw.grace)
}

func TestSweeperRunStopsWhenContextEnds(t *testing.T) {
	h, _ := newTestHub(Config{})
	sw := NewSweeper(h, 10*time.Millisecond, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sw.Run(ctx) }()

	time.Sleep(35 * time.Millisecond) // let a few ticks fire
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
