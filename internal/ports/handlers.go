package ports

import (
	"context"

	"github.com/betbot/ordersync/internal/domain"
)

// BrokerListener 接收券商通道的确认与成交回调
//
// 放在独立的 ports 包中，券商实现不需要依赖对账核心。
type BrokerListener interface {
	OnCreateBrokerOrder(ctx context.Context, order *domain.PhysicalOrder) error
	OnChangeBrokerOrder(ctx context.Context, order *domain.PhysicalOrder) error
	OnCancelBrokerOrder(ctx context.Context, brokerOrderID string) error
	OnRejectBrokerOrder(ctx context.Context, brokerOrderID string, reason string) error
	ProcessFill(ctx context.Context, fill domain.PhysicalFill) error
}

// PositionLedger 接收策略持仓更新。
// 同一 (标的, 策略) 上新鲜度不比已应用值新的更新必须丢弃。
type PositionLedger interface {
	UpdatePosition(ctx context.Context, update domain.PositionUpdate) (applied bool, err error)
}

// FillRecorder 成交落盘（审计用）
type FillRecorder interface {
	RecordFill(ctx context.Context, fill domain.PhysicalFill, strategyID string) error
}
