package reconcile

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/betbot/ordersync/internal/domain"
)

// matchResult 一轮比较的匹配结果
type matchResult struct {
	logicals []*domain.LogicalOrder            // 按 ID 排序
	groups   map[int64][]*domain.PhysicalOrder // 逻辑订单 ID -> 物理订单（按创建顺序）
	extras   []*domain.PhysicalOrder           // 找不到逻辑订单的物理订单
}

// match 按逻辑订单 ID 分组可匹配的物理订单
func (e *Engine) match() matchResult {
	m := matchResult{
		logicals: e.sortedLogicals(),
		groups:   make(map[int64][]*domain.PhysicalOrder),
	}
	for _, o := range e.book.Matchable() {
		if _, ok := e.logicals[o.LogicalOrderID]; ok {
			m.groups[o.LogicalOrderID] = append(m.groups[o.LogicalOrderID], o)
			continue
		}
		// 仓位调整单由持仓同步负责
		if o.IsAdjustment() {
			continue
		}
		m.extras = append(m.extras, o)
	}
	return m
}

// level 单个价格档位的目标
type level struct {
	index int
	price decimal.Decimal
	size  int64
}

// ladderPrice 第 i 档价格：买入止损和卖出限价向上展开，买入限价和卖出止损向下展开
func ladderPrice(l *domain.LogicalOrder, i int) decimal.Decimal {
	step := l.LevelIncrement.Mul(decimal.NewFromInt(int64(i)))
	switch l.Type {
	case domain.BuyStop, domain.SellLimit:
		return l.Price.Add(step)
	default:
		return l.Price.Sub(step)
	}
}

// ladderLevels 把 remaining 分配到各档。
//
// 从第 0 档开始，每档取 min(剩余数量, LevelSize)，最后一档承担余数。
// 部分成交后远端档位先消失，数量为 0 的档位不返回。
func ladderLevels(l *domain.LogicalOrder, remaining int64) []level {
	if !l.IsLadder() {
		return []level{{index: 0, price: l.Price, size: remaining}}
	}
	n := l.LevelCount()
	levels := make([]level, 0, n)
	left := remaining
	for i := 0; i < n && left > 0; i++ {
		s := l.LevelSize
		if i == n-1 || s > left {
			s = left
		}
		levels = append(levels, level{index: i, price: ladderPrice(l, i), size: s})
		left -= s
	}
	return levels
}

type levelMatch struct {
	level level
	order *domain.PhysicalOrder
}

// matchLevels 按价格精确匹配档位与物理订单
func matchLevels(levels []level, orders []*domain.PhysicalOrder) (matched []levelMatch, missing []level, surplus []*domain.PhysicalOrder) {
	used := make([]bool, len(orders))
	for _, lv := range levels {
		found := -1
		for i, o := range orders {
			if !used[i] && o.Price.Equal(lv.price) {
				found = i
				break
			}
		}
		if found < 0 {
			missing = append(missing, lv)
			continue
		}
		used[found] = true
		matched = append(matched, levelMatch{level: lv, order: orders[found]})
	}
	for i, o := range orders {
		if !used[i] {
			surplus = append(surplus, o)
		}
	}
	return matched, missing, surplus
}

// reconcileLogical 对单个逻辑订单做匹配并发出必要的 create/change/cancel
func (e *Engine) reconcileLogical(ctx context.Context, l *domain.LogicalOrder, orders []*domain.PhysicalOrder) error {
	t := e.target(l)
	if l.IsLadder() {
		return e.reconcileLadder(ctx, l, orders, t)
	}

	switch {
	case len(orders) == 0:
		if t.ok && e.canCreate(l) {
			return e.createOrder(ctx, l, l.Type, t.side, l.Price, t.size)
		}
		return nil
	case len(orders) > 1:
		if l.Direction == domain.Reverse || l.Direction == domain.Change {
			return domain.Invariantf("logical order %s matched %d physical orders", l, len(orders))
		}
		// 保留最早的一个
		for _, o := range orders[1:] {
			if err := e.cancelOrder(ctx, o); err != nil {
				return err
			}
		}
	}

	o := orders[0]
	if !t.ok {
		e.log.Infof("逻辑订单 %d 不再需要 (%s)，撤销 %s", l.ID, t.reason, o.BrokerOrderID)
		return e.cancelOrder(ctx, o)
	}
	return e.reconcileLevel(ctx, l, o, level{price: l.Price, size: t.size}, t)
}

func (e *Engine) reconcileLadder(ctx context.Context, l *domain.LogicalOrder, orders []*domain.PhysicalOrder, t target) error {
	if !t.ok {
		for _, o := range orders {
			if err := e.cancelOrder(ctx, o); err != nil {
				return err
			}
		}
		return nil
	}

	matched, missing, surplus := matchLevels(ladderLevels(l, t.size), orders)
	for _, m := range matched {
		if err := e.reconcileLevel(ctx, l, m.order, m.level, t); err != nil {
			return err
		}
	}
	// 多余的订单优先改价填补缺失档位
	for len(missing) > 0 && len(surplus) > 0 {
		lv, o := missing[0], surplus[0]
		missing, surplus = missing[1:], surplus[1:]
		if err := e.reconcileLevel(ctx, l, o, lv, t); err != nil {
			return err
		}
	}
	for _, o := range surplus {
		if err := e.cancelOrder(ctx, o); err != nil {
			return err
		}
	}
	if !e.canCreate(l) {
		return nil
	}
	for _, lv := range missing {
		if err := e.createOrder(ctx, l, l.Type, t.side, lv.price, lv.size); err != nil {
			return err
		}
	}
	return nil
}

// reconcileLevel 单个物理订单与单个档位的比较
func (e *Engine) reconcileLevel(ctx context.Context, l *domain.LogicalOrder, o *domain.PhysicalOrder, lv level, t target) error {
	if t.keepSize && o.Size != lv.size {
		e.log.Infof("逻辑订单 %d 与持仓方向相反，不改量，撤销 %s", l.ID, o.BrokerOrderID)
		return e.cancelOrder(ctx, o)
	}
	if o.Side != t.side {
		return e.replaceOrder(ctx, l, o, t.side, lv)
	}
	if o.Size != lv.size || !o.Price.Equal(lv.price) {
		return e.changeOrder(ctx, o, lv.size, lv.price)
	}
	return nil
}

// matchLogical 立即为单个逻辑订单补齐物理订单（物理订单已成交但逻辑订单未完成时）
func (e *Engine) matchLogical(ctx context.Context, l *domain.LogicalOrder) error {
	if !e.synced {
		return nil
	}
	var orders []*domain.PhysicalOrder
	for _, o := range e.book.Matchable() {
		if o.LogicalOrderID == l.ID {
			orders = append(orders, o)
		}
	}
	return e.reconcileLogical(ctx, l, orders)
}
