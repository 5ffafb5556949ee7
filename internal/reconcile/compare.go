package reconcile

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/ordersync/internal/domain"
	"github.com/betbot/ordersync/internal/metrics"
)

// comparePass 一轮比较：逻辑订单集合 vs 跟踪中的物理订单集合
//
// 未对齐持仓时只做持仓同步；对齐后才做逐个逻辑订单的匹配。
// 返回的错误都是结构性错误，本轮中止并把引擎标记为未同步。
func (e *Engine) comparePass(ctx context.Context) (err error) {
	start := time.Now()
	e.stats.Passes++
	defer func() {
		e.cache.Clear()
		if err != nil {
			e.synced = false
			e.stats.Errors++
			e.log.WithError(err).Error("compare 中止，等待重新同步")
		}
		metrics.ObserveCompare(e.symbol, time.Since(start), err)
		metrics.SetPosition(e.symbol, e.actualPosition, e.desiredPosition, e.synced)
	}()

	if !e.synced {
		return e.trySyncPosition(ctx)
	}

	m := e.match()
	for _, l := range m.logicals {
		if err := e.reconcileLogical(ctx, l, m.groups[l.ID]); err != nil {
			return err
		}
	}
	for _, o := range m.extras {
		e.log.Infof("撤销没有逻辑订单的物理订单: %s", o)
		if err := e.cancelOrder(ctx, o); err != nil {
			return err
		}
	}
	return nil
}

// createOrder 发出新订单。l 为 nil 表示仓位调整单。
func (e *Engine) createOrder(ctx context.Context, l *domain.LogicalOrder, typ domain.OrderType, side domain.OrderSide, price decimal.Decimal, size int64) error {
	if size <= 0 {
		return domain.Invariantf("create %s %s with size %d", typ, side, size)
	}
	key := "sync|" + side.String()
	if l != nil {
		key = createKey(l.ID, price)
	}
	if err := e.cache.TryAcquire(key); err != nil {
		e.log.Debugf("跳过重复创建: %v", err)
		return nil
	}

	order := &domain.PhysicalOrder{
		BrokerOrderID: e.newID(),
		Symbol:        e.symbol,
		Action:        domain.ActionCreate,
		State:         domain.StatePending,
		Side:          side,
		Type:          typ,
		Price:         price,
		Size:          size,
		CreatedAt:     e.now(),
	}
	action := "create"
	if l != nil {
		order.LogicalOrderID = l.ID
		order.LogicalSerialNumber = l.SerialNumber
	} else {
		action = "sync"
	}
	e.book.Add(order)
	e.stats.Creates++
	metrics.CountOrderRequest(e.symbol, action)
	e.log.Infof("创建订单: %s", order)

	if err := e.transport.CreateOrder(ctx, order.Clone()); err != nil {
		e.book.Remove(order.BrokerOrderID)
		e.log.WithError(err).Warnf("创建订单发送失败: %s", order.BrokerOrderID)
	}
	return nil
}

// changeOrder 用新订单替换 original（新 ID，保留逻辑订单关联）
func (e *Engine) changeOrder(ctx context.Context, original *domain.PhysicalOrder, size int64, price decimal.Decimal) error {
	if size <= 0 {
		return domain.Invariantf("change %s to size %d", original.BrokerOrderID, size)
	}
	if err := e.cache.TryAcquire(changeKey(original.BrokerOrderID)); err != nil {
		e.log.Debugf("跳过重复修改: %v", err)
		return nil
	}

	change := original.Clone()
	change.BrokerOrderID = e.newID()
	change.Action = domain.ActionChange
	change.State = domain.StatePending
	change.Size = size
	change.Price = price
	change.ReplacedByID = ""
	change.CreatedAt = e.now()
	e.book.Replace(original, change)
	e.stats.Changes++
	metrics.CountOrderRequest(e.symbol, "change")
	e.log.Infof("修改订单: %s -> %d@%s (%s)", original.BrokerOrderID, size, price.String(), change.BrokerOrderID)

	if err := e.transport.ChangeOrder(ctx, change.Clone(), original.BrokerOrderID); err != nil {
		if domain.IsNotFound(err) {
			// 原订单已在券商侧消失：新旧都不再跟踪，下一轮重新推导
			e.book.RemoveChain(change.BrokerOrderID)
		} else {
			e.book.RestoreOriginal(change.BrokerOrderID)
		}
		e.log.WithError(err).Warnf("修改订单发送失败: %s", original.BrokerOrderID)
	}
	return nil
}

// cancelOrder 撤单（已在撤单中的订单跳过）
func (e *Engine) cancelOrder(ctx context.Context, o *domain.PhysicalOrder) error {
	if o.IsCancelPending() {
		return nil
	}
	if err := e.cache.TryAcquire(cancelKey(o.BrokerOrderID)); err != nil {
		e.log.Debugf("跳过重复撤单: %v", err)
		return nil
	}

	prevAction, prevState := o.Action, o.State
	o.Action = domain.ActionCancel
	o.State = domain.StatePending
	e.stats.Cancels++
	metrics.CountOrderRequest(e.symbol, "cancel")
	e.log.Infof("撤销订单: %s", o)

	if err := e.transport.CancelOrder(ctx, o.BrokerOrderID); err != nil {
		if domain.IsNotFound(err) {
			// 已成交或已撤销：本地吸收
			e.book.RemoveChain(o.BrokerOrderID)
			e.log.Debugf("撤单时订单已不存在: %s", o.BrokerOrderID)
			return nil
		}
		o.Action, o.State = prevAction, prevState
		e.log.WithError(err).Warnf("撤单发送失败: %s", o.BrokerOrderID)
	}
	return nil
}

// replaceOrder 方向不对的订单不能原地修改：撤销后按正确方向重建
func (e *Engine) replaceOrder(ctx context.Context, l *domain.LogicalOrder, o *domain.PhysicalOrder, side domain.OrderSide, lv level) error {
	e.log.Infof("订单方向需要修正: %s -> %s", o, side)
	if err := e.cancelOrder(ctx, o); err != nil {
		return err
	}
	return e.createOrder(ctx, l, l.Type, side, lv.price, lv.size)
}
