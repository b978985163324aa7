package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSweeperReclaimsLeakedRooms(t *testing.T) {
	reg := New()
	reg.getOrCreate("leaked")
	reg.AddParticipant("live", "conn-a", "Alice")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go RunSweeper(ctx, reg, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		_, _, ok := reg.Snapshot("leaked")
		return !ok
	}, time.Second, 10*time.Millisecond)

	// 参加者のいるルームは回収されない
	_, _, ok := reg.Snapshot("live")
	assert.True(t, ok)
}

func TestRunSweeperStopsOnCancel(t *testing.T) {
	reg := New()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		RunSweeper(ctx, reg, 10*time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after context cancellation")
	}
}
