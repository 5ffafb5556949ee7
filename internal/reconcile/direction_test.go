package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/betbot/ordersync/internal/domain"
)

func TestTarget_ReverseAndChangeQuadrants(t *testing.T) {
	tests := []struct {
		name      string
		direction domain.TradeDirection
		typ       domain.OrderType
		position  int64
		issuedAt  int64
		current   int64
		wantOK    bool
		wantSide  domain.OrderSide
		wantSize  int64
	}{
		{name: "reverse short to long", direction: domain.Reverse, typ: domain.BuyStop, position: 1000, current: -1000, wantOK: true, wantSide: domain.SideBuy, wantSize: 2000},
		{name: "reverse long to short sells the long first", direction: domain.Reverse, typ: domain.SellStop, position: 1000, current: 1000, wantOK: true, wantSide: domain.SideSell, wantSize: 1000},
		{name: "reverse from flat shorts", direction: domain.Reverse, typ: domain.SellStop, position: 1000, current: 0, wantOK: true, wantSide: domain.SideSellShort, wantSize: 1000},
		{name: "reverse from flat buys", direction: domain.Reverse, typ: domain.BuyStop, position: 1000, current: 0, wantOK: true, wantSide: domain.SideBuy, wantSize: 1000},
		{name: "reverse buy already long", direction: domain.Reverse, typ: domain.BuyStop, position: 1000, current: 1000},
		{name: "reverse sell already short", direction: domain.Reverse, typ: domain.SellStop, position: 1000, current: -1000},
		{name: "change adds to long", direction: domain.Change, typ: domain.BuyLimit, position: 500, issuedAt: 1000, current: 1000, wantOK: true, wantSide: domain.SideBuy, wantSize: 500},
		{name: "change reduces long", direction: domain.Change, typ: domain.SellLimit, position: 500, issuedAt: 1000, current: 1000, wantOK: true, wantSide: domain.SideSell, wantSize: 500},
		{name: "change through zero caps at the long", direction: domain.Change, typ: domain.SellLimit, position: 1500, issuedAt: 1000, current: 1000, wantOK: true, wantSide: domain.SideSell, wantSize: 1000},
		{name: "change adds to short", direction: domain.Change, typ: domain.SellLimit, position: 500, issuedAt: -1000, current: -1000, wantOK: true, wantSide: domain.SideSellShort, wantSize: 500},
		{name: "change reduces short", direction: domain.Change, typ: domain.BuyLimit, position: 500, issuedAt: -1000, current: -1000, wantOK: true, wantSide: domain.SideBuy, wantSize: 500},
		{name: "change partially filled", direction: domain.Change, typ: domain.BuyLimit, position: 500, issuedAt: 1000, current: 1200, wantOK: true, wantSide: domain.SideBuy, wantSize: 300},
		{name: "change already done", direction: domain.Change, typ: domain.BuyLimit, position: 500, issuedAt: 1000, current: 1500},
		{name: "change while flat", direction: domain.Change, typ: domain.BuyLimit, position: 500, issuedAt: 1000, current: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(t)
			e.strategyPositions["s1"] = tt.current
			e.actualPosition = tt.current
			l := &domain.LogicalOrder{
				ID: 1, StrategyID: "s1", Type: tt.typ, Direction: tt.direction,
				Price: dec("100"), Position: tt.position, StrategyPosition: tt.issuedAt,
			}

			got := e.target(l)
			assert.Equal(t, tt.wantOK, got.ok, got.reason)
			if tt.wantOK {
				assert.Equal(t, tt.wantSide, got.side)
				assert.Equal(t, tt.wantSize, got.size)
			}
		})
	}
}

func TestTarget_EntryAndExit(t *testing.T) {
	tests := []struct {
		name      string
		direction domain.TradeDirection
		typ       domain.OrderType
		current   int64
		actual    int64
		wantOK    bool
		wantSide  domain.OrderSide
		wantSize  int64
		wantKeep  bool
	}{
		{name: "entry flat", direction: domain.Entry, typ: domain.BuyLimit, wantOK: true, wantSide: domain.SideBuy, wantSize: 1000},
		{name: "entry partially filled", direction: domain.Entry, typ: domain.BuyLimit, current: 300, actual: 300, wantOK: true, wantSide: domain.SideBuy, wantSize: 700},
		{name: "entry against position keeps size", direction: domain.Entry, typ: domain.SellStop, current: 300, actual: 300, wantOK: true, wantSide: domain.SideSell, wantSize: 700, wantKeep: true},
		{name: "entry filled", direction: domain.Entry, typ: domain.BuyLimit, current: 1000, actual: 1000},
		{name: "short entry while account long sells", direction: domain.Entry, typ: domain.SellStop, actual: 50, wantOK: true, wantSide: domain.SideSell, wantSize: 1000},
		{name: "exit long", direction: domain.Exit, typ: domain.SellLimit, current: 400, actual: 400, wantOK: true, wantSide: domain.SideSell, wantSize: 400},
		{name: "exit short", direction: domain.ExitStrategy, typ: domain.BuyStop, current: -400, actual: -400, wantOK: true, wantSide: domain.SideBuy, wantSize: 400},
		{name: "exit flat", direction: domain.Exit, typ: domain.SellLimit},
		{name: "exit wrong side", direction: domain.Exit, typ: domain.BuyLimit, current: 400, actual: 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(t)
			e.strategyPositions["s1"] = tt.current
			e.actualPosition = tt.actual
			l := &domain.LogicalOrder{ID: 1, StrategyID: "s1", Type: tt.typ, Direction: tt.direction, Price: dec("100"), Position: 1000}

			got := e.target(l)
			assert.Equal(t, tt.wantOK, got.ok, got.reason)
			if tt.wantOK {
				assert.Equal(t, tt.wantSide, got.side)
				assert.Equal(t, tt.wantSize, got.size)
				assert.Equal(t, tt.wantKeep, got.keepSize)
			}
		})
	}
}

func TestIsLogicalComplete(t *testing.T) {
	entry := &domain.LogicalOrder{Type: domain.BuyLimit, Direction: domain.Entry, Position: 100}
	assert.False(t, isLogicalComplete(entry, 50))
	assert.True(t, isLogicalComplete(entry, 100))

	exit := &domain.LogicalOrder{Type: domain.SellLimit, Direction: domain.Exit}
	assert.False(t, isLogicalComplete(exit, 10))
	assert.True(t, isLogicalComplete(exit, 0))

	change := &domain.LogicalOrder{Type: domain.SellLimit, Direction: domain.Change, Position: 300, StrategyPosition: 1000}
	assert.False(t, isLogicalComplete(change, 800))
	assert.True(t, isLogicalComplete(change, 700))

	reverse := &domain.LogicalOrder{Type: domain.SellStop, Direction: domain.Reverse, Position: 1000}
	assert.False(t, isLogicalComplete(reverse, 0))
	assert.True(t, isLogicalComplete(reverse, -1000))
}
