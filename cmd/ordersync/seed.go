package main

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/betbot/ordersync/internal/domain"
	"github.com/betbot/ordersync/pkg/config"
)

// strategySeed 一个策略的初始逻辑订单
type strategySeed struct {
	id       string
	position int64
	orders   []*domain.LogicalOrder
}

// symbolSeed 一个标的的初始状态
type symbolSeed struct {
	symbol          string
	desiredPosition int64
	lastPrice       decimal.Decimal
	hasLastPrice    bool
	strategies      []strategySeed
}

// buildSeeds 把配置中的静态逻辑订单转换为领域对象
func buildSeeds(symbols []config.SymbolConfig) ([]symbolSeed, error) {
	out := make([]symbolSeed, 0, len(symbols))
	for _, sc := range symbols {
		seed := symbolSeed{symbol: sc.Symbol, desiredPosition: sc.DesiredPosition}
		if sc.LastPrice != "" {
			p, err := decimal.NewFromString(sc.LastPrice)
			if err != nil {
				return nil, fmt.Errorf("%s: last_price 无效: %w", sc.Symbol, err)
			}
			seed.lastPrice, seed.hasLastPrice = p, true
		}
		for _, st := range sc.Strategies {
			ss := strategySeed{id: st.ID, position: st.Position}
			for _, oc := range st.Orders {
				l, err := logicalFromConfig(sc.Symbol, st.ID, oc)
				if err != nil {
					return nil, fmt.Errorf("%s/%s: %w", sc.Symbol, st.ID, err)
				}
				ss.orders = append(ss.orders, l)
			}
			seed.strategies = append(seed.strategies, ss)
		}
		out = append(out, seed)
	}
	return out, nil
}

func logicalFromConfig(symbol, strategyID string, oc config.LogicalOrderConfig) (*domain.LogicalOrder, error) {
	typ, err := domain.ParseOrderType(oc.Type)
	if err != nil {
		return nil, err
	}
	dir, err := domain.ParseTradeDirection(oc.Direction)
	if err != nil {
		return nil, err
	}
	l := &domain.LogicalOrder{
		ID:           oc.ID,
		SerialNumber: oc.SerialNumber,
		Symbol:       symbol,
		StrategyID:   strategyID,
		Type:         typ,
		Direction:    dir,
		Position:     oc.Position,
		Levels:       oc.Levels,
		LevelSize:    oc.LevelSize,
	}
	if oc.Price != "" {
		if l.Price, err = decimal.NewFromString(oc.Price); err != nil {
			return nil, fmt.Errorf("逻辑订单 %d: price 无效: %w", oc.ID, err)
		}
	}
	if oc.LevelIncrement != "" {
		if l.LevelIncrement, err = decimal.NewFromString(oc.LevelIncrement); err != nil {
			return nil, fmt.Errorf("逻辑订单 %d: level_increment 无效: %w", oc.ID, err)
		}
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}
