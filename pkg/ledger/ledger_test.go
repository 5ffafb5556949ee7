package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/ordersync/internal/domain"
	"github.com/betbot/ordersync/internal/ports"
)

func update(strategy string, position, recency int64) domain.PositionUpdate {
	return domain.PositionUpdate{
		Symbol:     "ES",
		StrategyID: strategy,
		Position:   position,
		Recency:    recency,
		Time:       time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

// 两种实现共享的新鲜度语义
func exerciseRecencyGate(t *testing.T, l ports.PositionLedger) {
	ctx := context.Background()

	applied, err := l.UpdatePosition(ctx, update("s1", 1000, 5))
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = l.UpdatePosition(ctx, update("s1", 0, 5))
	require.NoError(t, err)
	assert.False(t, applied, "same recency is stale")

	applied, err = l.UpdatePosition(ctx, update("s1", 0, 3))
	require.NoError(t, err)
	assert.False(t, applied, "older recency is stale")

	applied, err = l.UpdatePosition(ctx, update("s1", -500, 6))
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = l.UpdatePosition(ctx, update("s2", 200, 1))
	require.NoError(t, err)
	assert.True(t, applied, "recency is tracked per strategy")
}

func TestMemory_RecencyGate(t *testing.T) {
	m := NewMemory()
	exerciseRecencyGate(t, m)

	e, ok := m.Position("ES", "s1")
	require.True(t, ok)
	assert.Equal(t, int64(-500), e.Position)
	assert.Equal(t, int64(6), e.Recency)

	entries, err := m.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "s1", entries[0].StrategyID)
	assert.Equal(t, "s2", entries[1].StrategyID)
}

func TestBadger_RecencyGateAndReopen(t *testing.T) {
	dir := t.TempDir()
	b, err := OpenBadger(dir)
	require.NoError(t, err)
	exerciseRecencyGate(t, b)
	require.NoError(t, b.Close())

	b, err = OpenBadger(dir)
	require.NoError(t, err)
	defer b.Close()

	e, ok, err := b.Position("ES", "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(-500), e.Position)
	assert.Equal(t, int64(6), e.Recency)

	applied, err := b.UpdatePosition(context.Background(), update("s1", 0, 6))
	require.NoError(t, err)
	assert.False(t, applied, "recency survives a reopen")

	_, ok, err = b.Position("ES", "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	entries, err := b.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(200), entries[1].Position)
}

func TestOpenBadger_EmptyPath(t *testing.T) {
	_, err := OpenBadger("  ")
	assert.Error(t, err)
}

func TestAsync_DeliversInOrderAndDrainsOnClose(t *testing.T) {
	mem := NewMemory()
	a := NewAsync(mem, 16)
	go a.Run(context.Background())

	ctx := context.Background()
	for i := int64(1); i <= 5; i++ {
		applied, err := a.UpdatePosition(ctx, update("s1", i*100, i))
		require.NoError(t, err)
		assert.True(t, applied)
	}
	require.NoError(t, a.Close(ctx))

	e, ok := mem.Position("ES", "s1")
	require.True(t, ok)
	assert.Equal(t, int64(500), e.Position)

	_, err := a.UpdatePosition(ctx, update("s1", 600, 6))
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, a.Close(ctx), "close is idempotent")
}

func TestAsync_QueueFull(t *testing.T) {
	a := NewAsync(NewMemory(), 1)
	ctx := context.Background()

	_, err := a.UpdatePosition(ctx, update("s1", 100, 1))
	require.NoError(t, err)
	_, err = a.UpdatePosition(ctx, update("s1", 200, 2))
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestAsync_DrainsToBadgerAfterCancel(t *testing.T) {
	b, err := OpenBadger(t.TempDir())
	require.NoError(t, err)
	defer b.Close()

	a := NewAsync(b, 4)
	applied, err := a.UpdatePosition(context.Background(), update("s1", 300, 1))
	require.NoError(t, err)
	require.True(t, applied)

	// 关闭流程中 root ctx 先于账本被取消
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	go a.Run(ctx)
	require.NoError(t, a.Close(context.Background()))

	e, ok, err := b.Position("ES", "s1")
	require.NoError(t, err)
	require.True(t, ok, "queued update is written after cancel")
	assert.Equal(t, int64(300), e.Position)
}

func TestBadger_RecencyContinuesAfterRestart(t *testing.T) {
	dir := t.TempDir()
	b, err := OpenBadger(dir)
	require.NoError(t, err)
	_, err = b.UpdatePosition(context.Background(), update("s1", 1000, 5))
	require.NoError(t, err)
	require.NoError(t, b.Close())

	b, err = OpenBadger(dir)
	require.NoError(t, err)
	defer b.Close()

	entries, err := b.Entries()
	require.NoError(t, err)
	floor := MaxRecency(entries)
	assert.Equal(t, int64(5), floor)

	applied, err := b.UpdatePosition(context.Background(), update("s1", 0, 1))
	require.NoError(t, err)
	assert.False(t, applied, "a counter restarting at 1 is stale")

	applied, err = b.UpdatePosition(context.Background(), update("s1", 0, floor+1))
	require.NoError(t, err)
	assert.True(t, applied)

	e, ok, err := b.Position("ES", "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(0), e.Position)
}

func TestMaxRecency(t *testing.T) {
	assert.Zero(t, MaxRecency(nil))
	assert.Equal(t, int64(9), MaxRecency([]Entry{{Recency: 3}, {Recency: 9}, {Recency: 4}}))
}
