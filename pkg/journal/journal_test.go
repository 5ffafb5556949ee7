package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/ordersync/internal/domain"
)

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "db", "fills.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func fill(symbol, order string, size int64, price string) domain.PhysicalFill {
	return domain.PhysicalFill{
		ID:                  "f-" + order,
		BrokerOrderID:       order,
		Symbol:              symbol,
		LogicalSerialNumber: 11,
		Size:                size,
		Price:               decimal.RequireFromString(price),
		Recency:             7,
		Time:                time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC),
	}
}

func TestJournal_InsertAndQuery(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()

	require.NoError(t, j.Insert(ctx, []Record{
		RecordFromFill(fill("ES", "o1", 1000, "234.12"), "s1"),
		RecordFromFill(fill("NQ", "o2", -500, "17000.5"), "s2"),
		RecordFromFill(fill("ES", "o3", -1000, "334.12"), "s1"),
	}))

	all, err := j.Fills(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "o3", all[0].BrokerOrderID, "newest first")

	es, err := j.Fills(ctx, "ES", 10)
	require.NoError(t, err)
	require.Len(t, es, 2)
	assert.Equal(t, int64(-1000), es[0].Size)
	assert.Equal(t, "334.12", es[0].Price)
	assert.Equal(t, "s1", es[0].StrategyID)
	assert.Equal(t, int64(11), es[0].SerialNumber)
	assert.True(t, es[0].FilledAt.Equal(time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)))

	limited, err := j.Fills(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestJournal_EmptyQueryReturnsEmptySlice(t *testing.T) {
	j := openTemp(t)
	out, err := j.Fills(context.Background(), "ES", 0)
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestWriter_DrainsOnClose(t *testing.T) {
	j := openTemp(t)
	w := NewWriter(j, 16)
	go w.Run(context.Background())

	ctx := context.Background()
	for i, id := range []string{"o1", "o2", "o3", "o4"} {
		require.NoError(t, w.RecordFill(ctx, fill("ES", id, int64(100*(i+1)), "1.5"), "s1"))
	}
	require.NoError(t, w.Close(ctx))

	out, err := j.Fills(ctx, "ES", 10)
	require.NoError(t, err)
	require.Len(t, out, 4)
	assert.Equal(t, "o4", out[0].BrokerOrderID)

	assert.ErrorIs(t, w.RecordFill(ctx, fill("ES", "o5", 1, "1"), "s1"), ErrWriterClosed)
}

func TestWriter_QueueFull(t *testing.T) {
	w := NewWriter(openTemp(t), 1)
	ctx := context.Background()
	require.NoError(t, w.RecordFill(ctx, fill("ES", "o1", 1, "1"), ""))
	assert.Error(t, w.RecordFill(ctx, fill("ES", "o2", 1, "1"), ""))
}
