package guard

import (
	"context"
	"testing"
	"time"

	"yield-router-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_RejectsReentry(t *testing.T) {
	g := NewGuard()

	release, err := g.TryAcquire(PositionKey("alice", "USDC"))
	require.NoError(t, err)

	_, err = g.TryAcquire(PositionKey("alice", "USDC"))
	assert.ErrorIs(t, err, models.ErrReentrancy)

	other, err := g.TryAcquire(PositionKey("alice", "DAI"))
	require.NoError(t, err)
	other()

	release()
	release()

	again, err := g.TryAcquire(PositionKey("alice", "USDC"))
	require.NoError(t, err)
	again()
}

func TestPositionKey_Unambiguous(t *testing.T) {
	assert.NotEqual(t, PositionKey("a/b", "c"), PositionKey("a", "b/c"))
	assert.NotEqual(t, PositionKey(`a"/"b`, "c"), PositionKey("a", `b"/"c`))
	assert.Equal(t, PositionKey("alice", "USDC"), PositionKey("alice", "USDC"))

	g := NewGuard()
	release, err := g.TryAcquire(PositionKey("a/b", "c"))
	require.NoError(t, err)
	defer release()

	other, err := g.TryAcquire(PositionKey("a", "b/c"))
	require.NoError(t, err)
	other()
}

func TestLocks_CallerCancellationIsNotBusy(t *testing.T) {
	l := NewLocks(time.Second)

	hold, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer hold()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Lock(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, models.ErrSourceBusy)
}

func TestLocks_TimesOutWhenHeld(t *testing.T) {
	l := NewLocks(20 * time.Millisecond)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "b", "a")
	require.NoError(t, err)

	_, err = l.Lock(ctx, "a")
	assert.ErrorIs(t, err, models.ErrSourceBusy)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, models.ErrReentrancy)

	unlock()

	unlock2, err := l.Lock(ctx, "a", "a", "", "c")
	require.NoError(t, err)
	unlock2()
}

func TestLocks_PartialAcquireReleased(t *testing.T) {
	l := NewLocks(20 * time.Millisecond)
	ctx := context.Background()

	holdB, err := l.Lock(ctx, "b")
	require.NoError(t, err)

	// "a" is taken then released when "b" times out.
	_, err = l.Lock(ctx, "a", "b")
	require.Error(t, err)

	unlockA, err := l.Lock(ctx, "a")
	require.NoError(t, err)
	unlockA()
	holdB()
}
