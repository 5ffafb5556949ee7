package paper

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/ordersync/internal/domain"
	"github.com/betbot/ordersync/internal/ports"
	"github.com/betbot/ordersync/pkg/ratelimit"
)

var paperLog = logrus.WithField("component", "paper_broker")

// Router 按标的返回券商回调的接收方
type Router func(symbol string) ports.BrokerListener

// Config 纸交易券商配置
type Config struct {
	AckDelay  time.Duration // 每个回调之前的延迟
	RateLimit float64       // 每秒允许的请求数（0 表示不限制）
	Burst     int           // 令牌桶容量
	// FillMarketOrders 市价单确认后立即按最新价全部成交
	FillMarketOrders bool
	// RecencyFloor 成交新鲜度从该值之后开始编号（重启后接续持久化账本）
	RecencyFloor int64
}

type event struct {
	symbol  string
	name    string
	deliver func(ctx context.Context, l ports.BrokerListener) error
}

// Broker 进程内纸交易券商，实现 ports.BrokerTransport
//
// 请求同步记账，确认和成交通过 Run 中的单个分发 goroutine 按顺序异步回调。
// 不做撮合：成交由调用方通过 Fill 注入。
type Broker struct {
	cfg     Config
	limiter ratelimit.RateLimiter

	mu        sync.Mutex
	orders    map[string]*domain.PhysicalOrder
	lastPrice map[string]decimal.Decimal
	recency   int64
	router    Router
	newFillID func() string
	now       func() time.Time

	queueMu sync.Mutex
	queue   []event
	signal  chan struct{}
}

// New 创建纸交易券商
func New(cfg Config) *Broker {
	b := &Broker{
		cfg:       cfg,
		orders:    make(map[string]*domain.PhysicalOrder),
		lastPrice: make(map[string]decimal.Decimal),
		recency:   cfg.RecencyFloor,
		newFillID: uuid.NewString,
		now:       time.Now,
		signal:    make(chan struct{}, 1),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = int(cfg.RateLimit)
		}
		if burst < 1 {
			burst = 1
		}
		b.limiter = ratelimit.NewTokenBucket(burst, cfg.RateLimit)
	}
	return b
}

// SetRouter 设置回调路由（Run 之前调用）
func (b *Broker) SetRouter(r Router) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.router = r
}

// SetLastPrice 设置标的最新价（市价单成交价）
func (b *Broker) SetLastPrice(symbol string, price decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastPrice[symbol] = price
}

// Run 分发回调，直到 ctx 结束
func (b *Broker) Run(ctx context.Context) {
	paperLog.Info("纸交易券商启动")
	for {
		select {
		case <-ctx.Done():
			paperLog.Info("纸交易券商停止")
			return
		case <-b.signal:
		}
		for {
			ev, ok := b.pop()
			if !ok {
				break
			}
			if b.cfg.AckDelay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(b.cfg.AckDelay):
				}
			}
			b.dispatch(ctx, ev)
		}
	}
}

func (b *Broker) dispatch(ctx context.Context, ev event) {
	b.mu.Lock()
	router := b.router
	b.mu.Unlock()
	if router == nil {
		paperLog.Warnf("没有回调路由，丢弃 %s (%s)", ev.name, ev.symbol)
		return
	}
	listener := router(ev.symbol)
	if listener == nil {
		return
	}
	if err := ev.deliver(ctx, listener); err != nil {
		paperLog.WithError(err).Warnf("回调失败: %s (%s)", ev.name, ev.symbol)
	}
}

func (b *Broker) enqueue(ev event) {
	b.queueMu.Lock()
	b.queue = append(b.queue, ev)
	b.queueMu.Unlock()
	select {
	case b.signal <- struct{}{}:
	default:
	}
}

func (b *Broker) pop() (event, bool) {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	if len(b.queue) == 0 {
		return event{}, false
	}
	ev := b.queue[0]
	b.queue = b.queue[1:]
	return ev, true
}

// Pending 尚未分发的回调数量
func (b *Broker) Pending() int {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	return len(b.queue)
}

func (b *Broker) allow(symbol, id string) bool {
	if b.limiter == nil || b.limiter.Allow() {
		return true
	}
	paperLog.Warnf("请求超过速率限制，拒绝: %s", id)
	b.enqueue(event{symbol: symbol, name: "reject", deliver: func(ctx context.Context, l ports.BrokerListener) error {
		return l.OnRejectBrokerOrder(ctx, id, "rate limited")
	}})
	return false
}

// CreateOrder 下单
func (b *Broker) CreateOrder(ctx context.Context, order *domain.PhysicalOrder) error {
	if order == nil || order.BrokerOrderID == "" {
		return errors.New("paper: order without broker id")
	}
	if !b.allow(order.Symbol, order.BrokerOrderID) {
		return nil
	}
	if order.Size <= 0 {
		id := order.BrokerOrderID
		b.enqueue(event{symbol: order.Symbol, name: "reject", deliver: func(ctx context.Context, l ports.BrokerListener) error {
			return l.OnRejectBrokerOrder(ctx, id, "size must be positive")
		}})
		return nil
	}

	resting := order.Clone()
	resting.Action = domain.ActionCreate
	resting.State = domain.StateActive
	if resting.CreatedAt.IsZero() {
		resting.CreatedAt = b.now()
	}

	b.mu.Lock()
	if _, exists := b.orders[resting.BrokerOrderID]; exists {
		b.mu.Unlock()
		return errors.Errorf("paper: duplicate broker order id %s", resting.BrokerOrderID)
	}
	b.orders[resting.BrokerOrderID] = resting
	price := b.lastPrice[resting.Symbol]
	b.mu.Unlock()

	paperLog.Infof("📝 [纸交易] 下单: %s", resting)
	ack := resting.Clone()
	b.enqueue(event{symbol: ack.Symbol, name: "create_ack", deliver: func(ctx context.Context, l ports.BrokerListener) error {
		return l.OnCreateBrokerOrder(ctx, ack)
	}})

	if resting.Type.IsMarket() && b.cfg.FillMarketOrders {
		return b.Fill(ctx, resting.BrokerOrderID, resting.Size, price)
	}
	return nil
}

// ChangeOrder 改单：原订单被新 ID 的订单替换
func (b *Broker) ChangeOrder(ctx context.Context, order *domain.PhysicalOrder, originalBrokerID string) error {
	if order == nil {
		return errors.New("paper: nil change order")
	}
	if !b.allow(order.Symbol, order.BrokerOrderID) {
		return nil
	}

	b.mu.Lock()
	if _, ok := b.orders[originalBrokerID]; !ok {
		b.mu.Unlock()
		return domain.NotFoundf("paper: change of unknown order %s", originalBrokerID)
	}
	delete(b.orders, originalBrokerID)
	resting := order.Clone()
	resting.Action = domain.ActionChange
	resting.State = domain.StateActive
	resting.OriginalID = originalBrokerID
	b.orders[resting.BrokerOrderID] = resting
	b.mu.Unlock()

	paperLog.Infof("📝 [纸交易] 改单: %s -> %s", originalBrokerID, resting)
	ack := resting.Clone()
	b.enqueue(event{symbol: ack.Symbol, name: "change_ack", deliver: func(ctx context.Context, l ports.BrokerListener) error {
		return l.OnChangeBrokerOrder(ctx, ack)
	}})
	return nil
}

// CancelOrder 撤单
func (b *Broker) CancelOrder(ctx context.Context, brokerOrderID string) error {
	b.mu.Lock()
	o, ok := b.orders[brokerOrderID]
	if !ok {
		b.mu.Unlock()
		return domain.NotFoundf("paper: cancel of unknown order %s", brokerOrderID)
	}
	delete(b.orders, brokerOrderID)
	b.mu.Unlock()

	paperLog.Infof("📝 [纸交易] 撤单: %s", brokerOrderID)
	b.enqueue(event{symbol: o.Symbol, name: "cancel_ack", deliver: func(ctx context.Context, l ports.BrokerListener) error {
		return l.OnCancelBrokerOrder(ctx, brokerOrderID)
	}})
	return nil
}

// GetActiveOrders 返回标的的挂单（按创建时间排序）
func (b *Broker) GetActiveOrders(ctx context.Context, symbol string) ([]*domain.PhysicalOrder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*domain.PhysicalOrder, 0)
	for _, o := range b.orders {
		if o.Symbol == symbol {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].BrokerOrderID < out[j].BrokerOrderID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Fill 注入一笔成交：size 为本次成交数量（正数），不超过订单剩余数量
func (b *Broker) Fill(ctx context.Context, brokerOrderID string, size int64, price decimal.Decimal) error {
	b.mu.Lock()
	o, ok := b.orders[brokerOrderID]
	if !ok {
		b.mu.Unlock()
		return domain.NotFoundf("paper: fill of unknown order %s", brokerOrderID)
	}
	if size <= 0 || size > o.Size {
		b.mu.Unlock()
		return errors.Errorf("paper: fill size %d out of range for %s (remaining %d)", size, brokerOrderID, o.Size)
	}
	o.Size -= size
	if o.Size == 0 {
		o.State = domain.StateFilled
		delete(b.orders, brokerOrderID)
	}
	b.recency++
	signed := size
	if o.Side != domain.SideBuy {
		signed = -size
	}
	fill := domain.PhysicalFill{
		ID:                  b.newFillID(),
		BrokerOrderID:       brokerOrderID,
		Symbol:              o.Symbol,
		LogicalSerialNumber: o.LogicalSerialNumber,
		Size:                signed,
		Price:               price,
		RemainingSize:       o.Size,
		Recency:             b.recency,
		Time:                b.now(),
	}
	b.mu.Unlock()

	paperLog.Infof("📝 [纸交易] 成交: %s", &fill)
	b.enqueue(event{symbol: fill.Symbol, name: "fill", deliver: func(ctx context.Context, l ports.BrokerListener) error {
		return l.ProcessFill(ctx, fill)
	}})
	return nil
}

var _ ports.BrokerTransport = (*Broker)(nil)
