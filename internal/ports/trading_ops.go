package ports

import (
	"context"

	"github.com/betbot/ordersync/internal/domain"
)

// 对账核心与协作方之间共享的小接口。

// OrderCreator 向券商发送新的物理订单
type OrderCreator interface {
	CreateOrder(ctx context.Context, order *domain.PhysicalOrder) error
}

// OrderChanger 改单。新订单有自己的券商 ID，通过 OriginalID 指向原订单。
type OrderChanger interface {
	ChangeOrder(ctx context.Context, order *domain.PhysicalOrder, originalBrokerID string) error
}

// OrderCanceler 撤单。券商已不认识该订单时返回（可能被包装的）domain.ErrNotFound。
type OrderCanceler interface {
	CancelOrder(ctx context.Context, brokerOrderID string) error
}

// ActiveOrderGetter 查询券商当前持有的某个标的的订单
type ActiveOrderGetter interface {
	GetActiveOrders(ctx context.Context, symbol string) ([]*domain.PhysicalOrder, error)
}

// BrokerTransport 完整的券商订单通道
//
// 所有发送都是异步的：返回 nil 只表示请求已被接受，确认稍后通过 BrokerListener 到达。
type BrokerTransport interface {
	OrderCreator
	OrderChanger
	OrderCanceler
	ActiveOrderGetter
}
