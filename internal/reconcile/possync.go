package reconcile

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/betbot/ordersync/internal/domain"
)

// trySyncPosition 对齐实际持仓与目标持仓
//
// 同一时间最多只有一个调整单在途；已有调整单不能覆盖剩余差额时全部撤销，
// 等撤单确认后重新计算。差额为 0 且没有在途调整单时标记为已同步并请求一次 compare。
func (e *Engine) trySyncPosition(ctx context.Context) error {
	delta := e.desiredPosition - e.actualPosition
	pending, canceling := e.book.Adjustments()
	if canceling > 0 {
		e.log.Debugf("等待 %d 个调整单撤单确认", canceling)
		return nil
	}

	var net int64
	for _, o := range pending {
		net += o.SignedSize()
	}
	if len(pending) > 1 || (len(pending) == 1 && net != delta) {
		e.log.Infof("调整单与差额不符 (pending=%d delta=%d)，撤销后重新计算", net, delta)
		for _, o := range pending {
			if err := e.cancelOrder(ctx, o); err != nil {
				return err
			}
		}
		return nil
	}

	residual := delta - net
	if residual == 0 {
		if net == 0 {
			e.synced = true
			e.log.Infof("持仓已同步: %d", e.actualPosition)
			e.requestCompare()
		}
		return nil
	}

	if residual > 0 {
		return e.createOrder(ctx, nil, domain.BuyMarket, domain.SideBuy, decimal.Zero, residual)
	}
	size := -residual
	side := domain.SideSellShort
	if e.actualPosition > 0 && size <= e.actualPosition {
		side = domain.SideSell
	}
	return e.createOrder(ctx, nil, domain.SellMarket, side, decimal.Zero, size)
}
