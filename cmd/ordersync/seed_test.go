package main

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/ordersync/internal/domain"
	"github.com/betbot/ordersync/pkg/config"
)

func TestBuildSeeds(t *testing.T) {
	seeds, err := buildSeeds([]config.SymbolConfig{{
		Symbol:          "ES",
		DesiredPosition: 0,
		LastPrice:       "4500.25",
		Strategies: []config.StrategyConfig{{
			ID: "s1",
			Orders: []config.LogicalOrderConfig{
				{ID: 1, SerialNumber: 11, Type: "BuyLimit", Direction: "Entry", Price: "4490", Position: 2},
				{ID: 2, SerialNumber: 12, Type: "selllimit", Direction: "exit", Price: "4510",
					Position: 3, Levels: 2, LevelSize: 2, LevelIncrement: "0.25"},
			},
		}},
	}})
	require.NoError(t, err)
	require.Len(t, seeds, 1)

	s := seeds[0]
	assert.True(t, s.hasLastPrice)
	assert.True(t, s.lastPrice.Equal(decimal.RequireFromString("4500.25")))
	require.Len(t, s.strategies, 1)
	require.Len(t, s.strategies[0].orders, 2)

	ladder := s.strategies[0].orders[1]
	assert.Equal(t, domain.SellLimit, ladder.Type)
	assert.Equal(t, domain.Exit, ladder.Direction)
	assert.Equal(t, "ES", ladder.Symbol)
	assert.Equal(t, "s1", ladder.StrategyID)
	assert.True(t, ladder.LevelIncrement.Equal(decimal.RequireFromString("0.25")))
}

func TestBuildSeeds_Errors(t *testing.T) {
	tests := []struct {
		name  string
		order config.LogicalOrderConfig
	}{
		{"unknown type", config.LogicalOrderConfig{ID: 1, Type: "BuyIceberg", Direction: "Entry", Position: 1}},
		{"unknown direction", config.LogicalOrderConfig{ID: 1, Type: "BuyLimit", Direction: "Sideways", Position: 1}},
		{"bad price", config.LogicalOrderConfig{ID: 1, Type: "BuyLimit", Direction: "Entry", Price: "abc", Position: 1}},
		{"zero entry position", config.LogicalOrderConfig{ID: 1, Type: "BuyLimit", Direction: "Entry", Price: "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildSeeds([]config.SymbolConfig{{
				Symbol:     "ES",
				Strategies: []config.StrategyConfig{{ID: "s1", Orders: []config.LogicalOrderConfig{tt.order}}},
			}})
			assert.Error(t, err)
		})
	}
}
