package reconcile

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/ordersync/internal/domain"
	"github.com/betbot/ordersync/internal/ports"
)

var reconcileLog = logrus.WithField("component", "reconcile")

// IDGenerator 生成券商订单 ID
type IDGenerator func() string

// Option 引擎选项
type Option func(*Engine)

// WithLedger 设置策略持仓账本
func WithLedger(ledger ports.PositionLedger) Option {
	return func(e *Engine) { e.ledger = ledger }
}

// WithFillRecorder 设置成交记录器
func WithFillRecorder(recorder ports.FillRecorder) Option {
	return func(e *Engine) { e.recorder = recorder }
}

// WithIDGenerator 设置券商订单 ID 生成器（默认 uuid）
func WithIDGenerator(gen IDGenerator) Option {
	return func(e *Engine) {
		if gen != nil {
			e.newID = gen
		}
	}
}

// WithRecencyFloor 持仓新鲜度从 floor 之后开始分配（通常为持久化账本中的最大值）
func WithRecencyFloor(floor int64) Option {
	return func(e *Engine) {
		if floor > e.nextRecency {
			e.nextRecency = floor
		}
	}
}

// WithClock 设置时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// EngineStats 引擎统计
type EngineStats struct {
	Passes  int64 // compare 轮数
	Errors  int64 // 中止的 compare 轮数
	Creates int64
	Changes int64
	Cancels int64
	Fills   int64
}

// Snapshot 引擎状态快照（只读副本）
type Snapshot struct {
	Symbol            string                 `json:"symbol"`
	ActualPosition    int64                  `json:"actual_position"`
	DesiredPosition   int64                  `json:"desired_position"`
	Synced            bool                   `json:"synced"`
	StrategyPositions map[string]int64       `json:"strategy_positions"`
	LogicalOrders     []domain.LogicalOrder  `json:"logical_orders"`
	PhysicalOrders    []domain.PhysicalOrder `json:"physical_orders"`
	Stats             EngineStats            `json:"stats"`
}

type deferredCall struct {
	name string
	fn   func(ctx context.Context) error
}

// Engine 单个标的的订单对账引擎
//
// 引擎本身不加锁：所有入口都必须由同一个 goroutine 调用（见 Worker）。
// 入口采用“运行至完成”语义：一次操作执行期间（包括它触发的券商回调）
// 到达的新操作会排队，等当前操作结束后依次执行；期间的 compare 请求合并为一次重跑。
type Engine struct {
	symbol    string
	transport ports.BrokerTransport
	ledger    ports.PositionLedger
	recorder  ports.FillRecorder
	newID     IDGenerator
	now       func() time.Time
	log       *logrus.Entry

	logicals          map[int64]*domain.LogicalOrder // 当前有效的逻辑订单
	retired           map[int64]*domain.LogicalOrder // 已成交/已撤销的逻辑订单（仍用于成交关联）
	serials           map[int64]int64                // 序列号 -> 逻辑订单 ID
	strategyPositions map[string]int64               // 策略当前持仓
	recency           map[string]int64               // 策略已发布的持仓新鲜度
	nextRecency       int64

	book  *orderBook
	cache *orderCache

	actualPosition  int64
	desiredPosition int64
	synced          bool

	busy             bool
	compareRequested bool
	deferred         []deferredCall

	stats EngineStats
}

// NewEngine 创建引擎
func NewEngine(symbol string, transport ports.BrokerTransport, opts ...Option) *Engine {
	e := &Engine{
		symbol:            symbol,
		transport:         transport,
		newID:             uuid.NewString,
		now:               time.Now,
		log:               reconcileLog.WithField("symbol", symbol),
		logicals:          make(map[int64]*domain.LogicalOrder),
		retired:           make(map[int64]*domain.LogicalOrder),
		serials:           make(map[int64]int64),
		strategyPositions: make(map[string]int64),
		recency:           make(map[string]int64),
		book:              newOrderBook(),
		cache:             newOrderCache(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Symbol 交易标的
func (e *Engine) Symbol() string {
	return e.symbol
}

// Synced 实际持仓是否已与目标持仓对齐
func (e *Engine) Synced() bool {
	return e.synced
}

// run 以运行至完成的方式执行 fn。
// 已有操作在执行时只排队并返回 nil；否则执行 fn 以及期间排队的操作和 compare 重跑，
// 返回第一个错误。
func (e *Engine) run(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if e.busy {
		e.deferred = append(e.deferred, deferredCall{name: name, fn: fn})
		return nil
	}
	e.busy = true
	defer func() { e.busy = false }()

	err := fn(ctx)
	if err != nil {
		e.log.WithError(err).Warnf("%s 失败", name)
	}
	if drainErr := e.drain(ctx); err == nil {
		err = drainErr
	}
	return err
}

func (e *Engine) drain(ctx context.Context) error {
	var first error
	for {
		if len(e.deferred) > 0 {
			call := e.deferred[0]
			e.deferred = e.deferred[1:]
			if err := call.fn(ctx); err != nil {
				e.log.WithError(err).Warnf("%s 失败", call.name)
				if first == nil {
					first = err
				}
			}
			continue
		}
		if e.compareRequested {
			e.compareRequested = false
			if err := e.comparePass(ctx); err != nil && first == nil {
				first = err
			}
			continue
		}
		return first
	}
}

func (e *Engine) requestCompare() {
	e.compareRequested = true
}

// Batch 在一次运行内执行 fn：fn 内调用的入口全部排队，结束后合并为一次 compare。
func (e *Engine) Batch(ctx context.Context, fn func(ctx context.Context) error) error {
	return e.run(ctx, "batch", fn)
}

// Compare 执行一轮比较
func (e *Engine) Compare(ctx context.Context) error {
	return e.run(ctx, "compare", func(ctx context.Context) error {
		e.requestCompare()
		return nil
	})
}

// TrySyncPosition 尝试用市价调整单对齐实际持仓与目标持仓
func (e *Engine) TrySyncPosition(ctx context.Context) error {
	return e.run(ctx, "sync", func(ctx context.Context) error {
		if e.synced {
			return nil
		}
		return e.trySyncPosition(ctx)
	})
}

// SetDesiredPosition 设置目标持仓（所有策略持仓之和）
func (e *Engine) SetDesiredPosition(ctx context.Context, position int64) error {
	return e.run(ctx, "set_desired_position", func(ctx context.Context) error {
		e.desiredPosition = position
		if e.desiredPosition != e.actualPosition {
			e.synced = false
		}
		e.requestCompare()
		return nil
	})
}

// SetActualPosition 设置券商报告的实际持仓（启动或重连时）
func (e *Engine) SetActualPosition(ctx context.Context, position int64) error {
	return e.run(ctx, "set_actual_position", func(ctx context.Context) error {
		e.actualPosition = position
		if e.desiredPosition != e.actualPosition {
			e.synced = false
		}
		e.requestCompare()
		return nil
	})
}

// SetLogicalOrders 整体替换某个策略的逻辑订单集合
//
// strategyPosition 为发布时策略的持仓快照。已成交或已撤销的逻辑订单 ID 不会复活。
func (e *Engine) SetLogicalOrders(ctx context.Context, strategyID string, strategyPosition int64, orders []*domain.LogicalOrder) error {
	for _, l := range orders {
		if err := l.Validate(); err != nil {
			return errors.Wrapf(err, "publish logical orders for strategy %s", strategyID)
		}
	}
	return e.run(ctx, "set_logical_orders", func(ctx context.Context) error {
		e.applyLogicalOrders(strategyID, strategyPosition, orders)
		e.requestCompare()
		return nil
	})
}

func (e *Engine) applyLogicalOrders(strategyID string, strategyPosition int64, orders []*domain.LogicalOrder) {
	published := make(map[int64]bool, len(orders))
	for _, l := range orders {
		published[l.ID] = true
	}

	for id, l := range e.logicals {
		if l.StrategyID == strategyID {
			delete(e.logicals, id)
			delete(e.serials, l.SerialNumber)
		}
	}
	// 终止集合只保留仍在发布的 ID
	for id, l := range e.retired {
		if l.StrategyID == strategyID && !published[id] {
			delete(e.retired, id)
			delete(e.serials, l.SerialNumber)
		}
	}

	e.strategyPositions[strategyID] = strategyPosition
	for _, src := range orders {
		if _, done := e.retired[src.ID]; done {
			e.log.Debugf("忽略已终止的逻辑订单: %d", src.ID)
			continue
		}
		l := src.Clone()
		l.Symbol = e.symbol
		l.StrategyID = strategyID
		l.StrategyPosition = strategyPosition
		e.logicals[l.ID] = l
		if l.SerialNumber != 0 {
			e.serials[l.SerialNumber] = l.ID
		}
	}
	e.log.Debugf("策略 %s 发布 %d 个逻辑订单，持仓=%d", strategyID, len(orders), strategyPosition)
}

// SetActiveOrders 用券商报告的活跃订单整体替换跟踪集合（启动或重连后的重新同步）
func (e *Engine) SetActiveOrders(ctx context.Context, orders []*domain.PhysicalOrder) error {
	return e.run(ctx, "set_active_orders", func(ctx context.Context) error {
		cloned := make([]*domain.PhysicalOrder, 0, len(orders))
		for _, o := range orders {
			if o == nil || o.Size <= 0 {
				continue
			}
			c := o.Clone()
			c.Symbol = e.symbol
			if c.State == 0 {
				c.State = domain.StateActive
			}
			if c.Action == 0 {
				c.Action = domain.ActionCreate
			}
			if c.LogicalOrderID == 0 && c.LogicalSerialNumber != 0 {
				c.LogicalOrderID = e.serials[c.LogicalSerialNumber]
			}
			cloned = append(cloned, c)
		}
		// 券商尚未确认的创建请求不在报告中，继续跟踪
		reported := make(map[string]bool, len(cloned))
		for _, o := range cloned {
			reported[o.BrokerOrderID] = true
		}
		for _, o := range e.book.All() {
			if o.Action == domain.ActionCreate && o.State == domain.StatePending && !reported[o.BrokerOrderID] {
				cloned = append(cloned, o)
			}
		}
		e.book.Reset(cloned)
		e.log.Infof("重新同步活跃订单: %d 个", len(cloned))
		e.requestCompare()
		return nil
	})
}

// OnCreateBrokerOrder 券商确认创建
func (e *Engine) OnCreateBrokerOrder(ctx context.Context, order *domain.PhysicalOrder) error {
	if order == nil {
		return nil
	}
	return e.run(ctx, "create_ack", func(ctx context.Context) error {
		o, ok := e.book.Tracked(order.BrokerOrderID)
		if !ok {
			// 券商有而本地没有：纳入跟踪，由 compare 决定去留
			c := order.Clone()
			c.Symbol = e.symbol
			c.Action = domain.ActionCreate
			c.State = domain.StateActive
			e.book.Add(c)
			e.log.Infof("纳入未知订单: %s", c)
		} else if o.Action == domain.ActionCreate {
			o.State = domain.StateActive
		}
		e.requestCompare()
		return nil
	})
}

// OnChangeBrokerOrder 券商确认 change
func (e *Engine) OnChangeBrokerOrder(ctx context.Context, order *domain.PhysicalOrder) error {
	if order == nil {
		return nil
	}
	return e.run(ctx, "change_ack", func(ctx context.Context) error {
		o, ok := e.book.Tracked(order.BrokerOrderID)
		if !ok {
			e.log.Debugf("change 确认的订单已不在跟踪中: %s", order.BrokerOrderID)
			e.requestCompare()
			return nil
		}
		e.book.ConfirmChange(o.BrokerOrderID)
		if o.Action == domain.ActionChange {
			o.State = domain.StateActive
		}
		e.requestCompare()
		return nil
	})
}

// OnCancelBrokerOrder 券商确认撤单
func (e *Engine) OnCancelBrokerOrder(ctx context.Context, brokerOrderID string) error {
	return e.run(ctx, "cancel_ack", func(ctx context.Context) error {
		if n := e.book.RemoveChain(brokerOrderID); n == 0 {
			e.log.Debugf("撤单确认的订单已不在跟踪中: %s", brokerOrderID)
		}
		e.requestCompare()
		return nil
	})
}

// OnRejectBrokerOrder 券商拒绝请求：撤销本地的乐观修改，不触发 compare
func (e *Engine) OnRejectBrokerOrder(ctx context.Context, brokerOrderID string, reason string) error {
	return e.run(ctx, "reject", func(ctx context.Context) error {
		o, ok := e.book.Tracked(brokerOrderID)
		if !ok {
			return nil
		}
		e.log.Warnf("券商拒绝 %s: %s", o, reason)
		switch o.Action {
		case domain.ActionCreate:
			e.book.Remove(brokerOrderID)
		case domain.ActionChange:
			e.book.RestoreOriginal(brokerOrderID)
		case domain.ActionCancel:
			o.Action = domain.ActionCreate
			o.State = domain.StateActive
		}
		return nil
	})
}

// ProcessFill 处理券商成交回报
func (e *Engine) ProcessFill(ctx context.Context, fill domain.PhysicalFill) error {
	return e.run(ctx, "fill", func(ctx context.Context) error {
		return e.processFill(ctx, fill)
	})
}

// Stats 返回统计副本
func (e *Engine) Stats() EngineStats {
	return e.stats
}

// Snapshot 返回当前状态的只读副本
func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		Symbol:            e.symbol,
		ActualPosition:    e.actualPosition,
		DesiredPosition:   e.desiredPosition,
		Synced:            e.synced,
		StrategyPositions: make(map[string]int64, len(e.strategyPositions)),
		Stats:             e.stats,
	}
	for k, v := range e.strategyPositions {
		s.StrategyPositions[k] = v
	}
	for _, l := range e.sortedLogicals() {
		s.LogicalOrders = append(s.LogicalOrders, *l)
	}
	for _, o := range e.book.All() {
		s.PhysicalOrders = append(s.PhysicalOrders, *o)
	}
	return s
}

func (e *Engine) sortedLogicals() []*domain.LogicalOrder {
	out := make([]*domain.LogicalOrder, 0, len(e.logicals))
	for _, l := range e.logicals {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
