package reconcile

import (
	"context"

	"github.com/betbot/ordersync/internal/domain"
	"github.com/betbot/ordersync/internal/metrics"
)

// processFill 处理一笔成交
//
// 1. 实际持仓与物理订单剩余数量
// 2. 关联逻辑订单（序列号，其次物理订单上的逻辑订单 ID）
// 3. 策略持仓、目标持仓与完成判定
// 4. 发布策略持仓
// 5. 物理订单成交完但逻辑订单未完成时立即补单
func (e *Engine) processFill(ctx context.Context, fill domain.PhysicalFill) error {
	if fill.Size == 0 {
		e.log.Warnf("忽略数量为 0 的成交: %s", &fill)
		return nil
	}
	e.stats.Fills++
	metrics.CountFill(e.symbol)
	e.actualPosition += fill.Size

	phys, known := e.book.Get(fill.BrokerOrderID)
	physComplete := fill.IsComplete()
	if known {
		if physComplete {
			phys.State = domain.StateFilled
			e.book.RemoveChain(fill.BrokerOrderID)
		} else {
			phys.Size = fill.RemainingSize
		}
	}

	l := e.lookupLogical(fill, phys)
	strategyID := ""
	if l != nil {
		strategyID = l.StrategyID
	}
	e.recordFill(ctx, fill, strategyID)

	if l == nil {
		// 调整单或外部订单：只影响实际持仓，交给持仓同步处理
		if !known || !phys.IsAdjustment() {
			e.log.Infof("成交没有对应的逻辑订单: %s", &fill)
		}
		e.synced = false
		e.requestCompare()
		return nil
	}

	e.desiredPosition += fill.Size
	newSP := e.strategyPositions[l.StrategyID] + fill.Size
	e.strategyPositions[l.StrategyID] = newSP
	e.log.Infof("成交: %s 逻辑订单=%d 策略=%s 持仓=%d", &fill, l.ID, l.StrategyID, newSP)

	_, active := e.logicals[l.ID]
	complete := active && isLogicalComplete(l, newSP)
	if complete {
		e.retire(l)
		e.cleanupAfterFill(l)
	}
	if newSP == 0 {
		e.retireStrategyOrders(l.StrategyID, domain.Change)
	}

	e.publishPosition(ctx, l.StrategyID, newSP, fill)

	if active && !complete && physComplete {
		if err := e.matchLogical(ctx, l); err != nil {
			return err
		}
	}
	e.requestCompare()
	return nil
}

func (e *Engine) lookupLogical(fill domain.PhysicalFill, phys *domain.PhysicalOrder) *domain.LogicalOrder {
	if id, ok := e.serials[fill.LogicalSerialNumber]; ok && fill.LogicalSerialNumber != 0 {
		if l := e.logicalByID(id); l != nil {
			return l
		}
	}
	if phys != nil && phys.LogicalOrderID != 0 {
		return e.logicalByID(phys.LogicalOrderID)
	}
	return nil
}

func (e *Engine) logicalByID(id int64) *domain.LogicalOrder {
	if l, ok := e.logicals[id]; ok {
		return l
	}
	return e.retired[id]
}

// isLogicalComplete 成交后的策略持仓是否已达到逻辑订单的目标
func isLogicalComplete(l *domain.LogicalOrder, newSP int64) bool {
	buy := l.Type.IsBuy()
	switch l.Direction {
	case domain.Change:
		return newSP == l.SignedPosition()+l.StrategyPosition
	case domain.Exit, domain.ExitStrategy:
		if buy {
			return newSP >= 0
		}
		return newSP <= 0
	default:
		if buy {
			return newSP >= l.Position
		}
		return newSP <= -l.Position
	}
}

// retire 逻辑订单终止：不再参与匹配，同一 ID 的重新发布会被忽略
func (e *Engine) retire(l *domain.LogicalOrder) {
	delete(e.logicals, l.ID)
	e.retired[l.ID] = l
}

// cleanupAfterFill 逻辑订单完成后撤销同一策略中失去意义的逻辑订单
func (e *Engine) cleanupAfterFill(l *domain.LogicalOrder) {
	switch l.Direction {
	case domain.Entry:
		e.retireStrategyOrders(l.StrategyID, domain.Entry)
	case domain.Exit, domain.ExitStrategy:
		e.retireStrategyOrders(l.StrategyID, domain.Exit, domain.ExitStrategy, domain.Change)
	case domain.Reverse:
		e.retireStrategyOrders(l.StrategyID, domain.Reverse)
	}
}

func (e *Engine) retireStrategyOrders(strategyID string, directions ...domain.TradeDirection) {
	for _, l := range e.sortedLogicals() {
		if l.StrategyID != strategyID {
			continue
		}
		for _, d := range directions {
			if l.Direction == d {
				e.log.Infof("撤销逻辑订单: %s", l)
				e.retire(l)
				break
			}
		}
	}
}

// publishPosition 按新鲜度发布策略持仓；不比已发布值新的更新丢弃
func (e *Engine) publishPosition(ctx context.Context, strategyID string, position int64, fill domain.PhysicalFill) {
	recency := fill.Recency
	if recency == 0 {
		e.nextRecency++
		recency = e.nextRecency
	} else if recency > e.nextRecency {
		e.nextRecency = recency
	}
	update := domain.PositionUpdate{
		Symbol:     e.symbol,
		StrategyID: strategyID,
		Position:   position,
		Recency:    recency,
		Time:       fill.Time,
	}
	if update.Time.IsZero() {
		update.Time = e.now()
	}
	if !update.IsNewerThan(e.recency[strategyID]) {
		e.log.Debugf("丢弃过期的持仓更新: 策略=%s recency=%d", strategyID, recency)
		return
	}
	e.recency[strategyID] = recency
	if e.ledger == nil {
		return
	}
	if _, err := e.ledger.UpdatePosition(ctx, update); err != nil {
		e.log.WithError(err).Warnf("持仓账本更新失败: 策略=%s", strategyID)
	}
}

func (e *Engine) recordFill(ctx context.Context, fill domain.PhysicalFill, strategyID string) {
	if e.recorder == nil {
		return
	}
	if fill.Symbol == "" {
		fill.Symbol = e.symbol
	}
	if err := e.recorder.RecordFill(ctx, fill, strategyID); err != nil {
		e.log.WithError(err).Warn("成交记录失败")
	}
}
