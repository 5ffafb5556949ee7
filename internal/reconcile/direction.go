package reconcile

import (
	"github.com/betbot/ordersync/internal/domain"
)

// target 逻辑订单在当前策略持仓下的目标数量与方向。ok=false 表示应撤销。
type target struct {
	size   int64
	side   domain.OrderSide
	ok     bool
	reason string
	// keepSize 数量不一致时撤销而不是改量
	keepSize bool
}

func cancelTarget(reason string) target {
	return target{reason: reason}
}

func (e *Engine) strategyPosition(l *domain.LogicalOrder) int64 {
	return e.strategyPositions[l.StrategyID]
}

// target 按交易意图计算目标
func (e *Engine) target(l *domain.LogicalOrder) target {
	sp := e.strategyPosition(l)
	switch l.Direction {
	case domain.Entry:
		return e.entryTarget(l, sp)
	case domain.Exit, domain.ExitStrategy:
		return e.exitTarget(l, sp)
	case domain.Reverse:
		return e.reverseTarget(l, sp)
	case domain.Change:
		return e.changeTarget(l, sp)
	default:
		return cancelTarget("unknown direction")
	}
}

// entryTarget 开仓：只补足剩余数量。持有反向仓位时不允许改量，数量不符即撤销。
func (e *Engine) entryTarget(l *domain.LogicalOrder, sp int64) target {
	size := l.Position - domain.Abs(sp)
	if size <= 0 {
		return cancelTarget("entry already filled")
	}
	against := sp != 0 && domain.SignOf(sp) != domain.SignOf(l.SignedPosition())
	return target{size: size, side: e.verifySide(l.Type), ok: true, keepSize: against}
}

// exitTarget 平仓：数量等于当前持仓，空仓或方向不符时撤销
func (e *Engine) exitTarget(l *domain.LogicalOrder, sp int64) target {
	if sp == 0 {
		return cancelTarget("flat")
	}
	if l.Type.IsBuy() == (sp > 0) {
		return cancelTarget("exit on the wrong side of the position")
	}
	return target{size: domain.Abs(sp), side: e.verifySide(l.Type), ok: true}
}

// reverseTarget 反手：目标持仓为逻辑订单的带符号数量
func (e *Engine) reverseTarget(l *domain.LogicalOrder, sp int64) target {
	if (l.Type.IsBuy() && sp > 0) || (!l.Type.IsBuy() && sp < 0) {
		return cancelTarget("already reversed")
	}
	delta := l.SignedPosition() - sp
	if delta == 0 {
		return cancelTarget("no position change")
	}
	return crossingTarget(delta, sp)
}

// changeTarget 加减仓：目标持仓为下单时持仓加上逻辑订单的带符号数量
func (e *Engine) changeTarget(l *domain.LogicalOrder, sp int64) target {
	if sp == 0 {
		return cancelTarget("flat")
	}
	delta := l.SignedPosition() + l.StrategyPosition - sp
	if delta == 0 {
		return cancelTarget("no position change")
	}
	return crossingTarget(delta, sp)
}

// crossingTarget 可能穿越零轴的调整：卖出先平多（数量以多头持仓为上限），剩余部分留给下一步的卖空
func crossingTarget(delta, sp int64) target {
	switch {
	case delta > 0:
		return target{size: delta, side: domain.SideBuy, ok: true}
	case sp > 0:
		size := -delta
		if size > sp {
			size = sp
		}
		return target{size: size, side: domain.SideSell, ok: true}
	default:
		return target{size: -delta, side: domain.SideSellShort, ok: true}
	}
}

// canCreate 缺失的物理订单是否允许创建
func (e *Engine) canCreate(l *domain.LogicalOrder) bool {
	if l.Direction == domain.Entry {
		// 开仓单只在策略空仓时下单；部分成交后由剩余订单改量
		return e.strategyPosition(l) == 0
	}
	return true
}

// verifySide 卖单在账户持有多头时为平多（Sell），否则为卖空（SellShort）
func (e *Engine) verifySide(typ domain.OrderType) domain.OrderSide {
	if typ.IsBuy() {
		return domain.SideBuy
	}
	if e.actualPosition > 0 {
		return domain.SideSell
	}
	return domain.SideSellShort
}
