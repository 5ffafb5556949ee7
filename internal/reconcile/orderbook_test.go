package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/ordersync/internal/domain"
)

func newTestOrder(id string, typ domain.OrderType, size int64) *domain.PhysicalOrder {
	return &domain.PhysicalOrder{
		BrokerOrderID: id,
		Action:        domain.ActionCreate,
		State:         domain.StateActive,
		Type:          typ,
		Side:          domain.SideBuy,
		Size:          size,
		Price:         dec("10"),
	}
}

func TestOrderBook_ChangeLinkage(t *testing.T) {
	b := newOrderBook()
	original := newTestOrder("a", domain.BuyLimit, 100)
	b.Add(original)

	change := original.Clone()
	change.BrokerOrderID = "b"
	change.Action = domain.ActionChange
	change.State = domain.StatePending
	b.Replace(original, change)

	assert.Equal(t, "b", original.ReplacedByID)
	assert.Equal(t, "a", change.OriginalID)
	_, tracked := b.Tracked("a")
	assert.False(t, tracked)
	got, ok := b.Get("a")
	require.True(t, ok)
	assert.Same(t, original, got)
	assert.Equal(t, 1, b.Len())

	assert.Equal(t, 2, b.RemoveChain("b"))
	assert.Equal(t, 0, b.RemoveChain("b"))
	assert.Equal(t, 0, b.RemoveChain("a"))
	_, ok = b.Get("a")
	assert.False(t, ok)
}

func TestOrderBook_ConfirmAndRestore(t *testing.T) {
	b := newOrderBook()
	original := newTestOrder("a", domain.BuyLimit, 100)
	b.Add(original)
	change := original.Clone()
	change.BrokerOrderID = "b"
	b.Replace(original, change)

	restored, ok := b.RestoreOriginal("b")
	require.True(t, ok)
	assert.Same(t, original, restored)
	assert.Empty(t, restored.ReplacedByID)
	_, ok = b.Tracked("a")
	assert.True(t, ok)
	_, ok = b.Get("b")
	assert.False(t, ok)

	change2 := original.Clone()
	change2.BrokerOrderID = "c"
	b.Replace(original, change2)
	b.ConfirmChange("c")
	_, ok = b.Get("a")
	assert.False(t, ok)
	_, ok = b.Tracked("c")
	assert.True(t, ok)
}

func TestOrderBook_OrderingAndAdjustments(t *testing.T) {
	b := newOrderBook()
	b.Add(newTestOrder("z", domain.BuyLimit, 1))
	b.Add(newTestOrder("m", domain.BuyMarket, 2))
	canceling := newTestOrder("a", domain.SellMarket, 3)
	canceling.Action = domain.ActionCancel
	canceling.State = domain.StatePending
	b.Add(canceling)

	all := b.All()
	require.Len(t, all, 3)
	assert.Equal(t, []string{"z", "m", "a"}, []string{all[0].BrokerOrderID, all[1].BrokerOrderID, all[2].BrokerOrderID})

	matchable := b.Matchable()
	assert.Len(t, matchable, 2)

	pending, inFlight := b.Adjustments()
	require.Len(t, pending, 1)
	assert.Equal(t, "m", pending[0].BrokerOrderID)
	assert.Equal(t, 1, inFlight)

	b.Reset([]*domain.PhysicalOrder{newTestOrder("q", domain.BuyStop, 4)})
	assert.Equal(t, 1, b.Len())
	assert.True(t, b.Remove("q"))
	assert.False(t, b.Remove("q"))
}
