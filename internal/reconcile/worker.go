package reconcile

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/ordersync/internal/domain"
	"github.com/betbot/ordersync/internal/risk"
	"github.com/betbot/ordersync/pkg/sigchan"
)

var workerLog = logrus.WithField("component", "reconcile_worker")

// ErrWorkerStopped worker 已停止，命令无法提交
var ErrWorkerStopped = errors.New("reconcile worker stopped")

// CommandType 命令类型
type CommandType string

const (
	CmdSetDesiredPosition CommandType = "set_desired_position"
	CmdSetActualPosition  CommandType = "set_actual_position"
	CmdPublishLogical     CommandType = "publish_logical_orders"
	CmdActiveOrders       CommandType = "active_orders"
	CmdCreateAck          CommandType = "create_ack"
	CmdChangeAck          CommandType = "change_ack"
	CmdCancelAck          CommandType = "cancel_ack"
	CmdReject             CommandType = "reject"
	CmdFill               CommandType = "fill"
	CmdSyncPosition       CommandType = "sync_position"
	CmdQuerySnapshot      CommandType = "query_snapshot" // 只读
)

// Command 发给 worker 的命令
type Command interface {
	CommandType() CommandType
}

type setDesiredPositionCommand struct{ position int64 }

func (c *setDesiredPositionCommand) CommandType() CommandType { return CmdSetDesiredPosition }

type setActualPositionCommand struct{ position int64 }

func (c *setActualPositionCommand) CommandType() CommandType { return CmdSetActualPosition }

type publishLogicalCommand struct {
	strategyID string
	position   int64
	orders     []*domain.LogicalOrder
}

func (c *publishLogicalCommand) CommandType() CommandType { return CmdPublishLogical }

type activeOrdersCommand struct{ orders []*domain.PhysicalOrder }

func (c *activeOrdersCommand) CommandType() CommandType { return CmdActiveOrders }

type createAckCommand struct{ order *domain.PhysicalOrder }

func (c *createAckCommand) CommandType() CommandType { return CmdCreateAck }

type changeAckCommand struct{ order *domain.PhysicalOrder }

func (c *changeAckCommand) CommandType() CommandType { return CmdChangeAck }

type cancelAckCommand struct{ brokerOrderID string }

func (c *cancelAckCommand) CommandType() CommandType { return CmdCancelAck }

type rejectCommand struct {
	brokerOrderID string
	reason        string
}

func (c *rejectCommand) CommandType() CommandType { return CmdReject }

type fillCommand struct{ fill domain.PhysicalFill }

func (c *fillCommand) CommandType() CommandType { return CmdFill }

type syncPositionCommand struct{}

func (c *syncPositionCommand) CommandType() CommandType { return CmdSyncPosition }

type querySnapshotCommand struct{ reply chan Snapshot }

func (c *querySnapshotCommand) CommandType() CommandType { return CmdQuerySnapshot }

// WorkerStats worker 统计
type WorkerStats struct {
	TotalCommands int64
	Batches       int64
	Errors        int64
}

// WorkerOption worker 选项
type WorkerOption func(*Worker)

// WithResyncInterval 周期性地从券商重新拉取活跃订单（0 表示只在启动时拉取）
func WithResyncInterval(d time.Duration) WorkerOption {
	return func(w *Worker) { w.resyncInterval = d }
}

// WithCircuitBreaker 连续对账失败达到阈值后暂停主动 compare 并全量同步
func WithCircuitBreaker(cb *risk.CircuitBreaker) WorkerOption {
	return func(w *Worker) { w.breaker = cb }
}

// WithCommandBuffer 命令通道缓冲大小
func WithCommandBuffer(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.cmdC = make(chan Command, n)
		}
	}
}

const maxBatchSize = 256

// Worker 单个标的的对账 actor
//
// 引擎的所有入口都在 Run 的 goroutine 中调用；其他 goroutine 通过命令通道提交事件。
// 同一时刻积压的命令合并为一次引擎运行（只做一次 compare）。
// Worker 实现 ports.BrokerListener，可以直接作为券商回调的接收方。
type Worker struct {
	engine         *Engine
	cmdC           chan Command
	trigger        *sigchan.Chan
	resyncC        *sigchan.Chan
	done           chan struct{}
	resyncInterval time.Duration
	breaker        *risk.CircuitBreaker
	log            *logrus.Entry

	stats WorkerStats
}

// NewWorker 创建 worker
func NewWorker(engine *Engine, opts ...WorkerOption) *Worker {
	w := &Worker{
		engine:  engine,
		cmdC:    make(chan Command, 1024),
		trigger: sigchan.New(),
		resyncC: sigchan.New(),
		done:    make(chan struct{}),
		log:     workerLog.WithField("symbol", engine.Symbol()),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Symbol 交易标的
func (w *Worker) Symbol() string {
	return w.engine.Symbol()
}

// Run 启动主循环（必须在独立 goroutine 中运行）
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	w.log.Info("对账 worker 启动")

	w.resync(ctx)
	w.Trigger()

	var tickC <-chan time.Time
	if w.resyncInterval > 0 {
		ticker := time.NewTicker(w.resyncInterval)
		defer ticker.Stop()
		tickC = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			w.log.Info("对账 worker 停止")
			return
		case cmd := <-w.cmdC:
			w.handleBatch(ctx, cmd)
		case <-w.trigger.C():
			if err := w.breaker.Allow(); err != nil {
				w.log.Debug("断路器打开，跳过 compare")
				continue
			}
			w.observe(w.engine.Compare(ctx))
		case <-w.resyncC.C():
			w.resync(ctx)
		case <-tickC:
			w.resync(ctx)
		}
	}
}

// Done worker 停止后关闭
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// handleBatch 把积压的命令合并到一次引擎运行中
func (w *Worker) handleBatch(ctx context.Context, first Command) {
	var queries []*querySnapshotCommand
	handle := func(ctx context.Context, cmd Command) {
		w.stats.TotalCommands++
		if q, ok := cmd.(*querySnapshotCommand); ok {
			queries = append(queries, q)
			return
		}
		w.handleCommand(ctx, cmd)
	}

	defer func() {
		if r := recover(); r != nil {
			w.stats.Errors++
			w.log.Errorf("批处理时发生 panic: %v", r)
		}
	}()

	err := w.engine.Batch(ctx, func(ctx context.Context) error {
		handle(ctx, first)
		for i := 1; i < maxBatchSize; i++ {
			select {
			case cmd := <-w.cmdC:
				handle(ctx, cmd)
			default:
				return nil
			}
		}
		return nil
	})
	w.stats.Batches++
	if err != nil {
		w.log.WithError(err).Warn("批处理出错")
	}
	w.observe(err)
	// compare 在批处理中已经执行，丢弃期间积累的触发信号
	w.trigger.Drain()

	if len(queries) > 0 {
		snap := w.engine.Snapshot()
		for _, q := range queries {
			q.reply <- snap
		}
	}
}

// observe 统计一次引擎运行的结果；连续失败触发熔断时请求全量同步
func (w *Worker) observe(err error) {
	if err == nil {
		w.breaker.OnSuccess()
		return
	}
	w.stats.Errors++
	if w.breaker.OnError() {
		w.log.WithError(err).Warnf("连续 %d 轮对账失败，暂停并从券商全量同步", w.breaker.ConsecutiveErrors())
		w.RequestResync()
	}
}

// handleCommand 处理命令（在 worker goroutine 中顺序执行）
func (w *Worker) handleCommand(ctx context.Context, cmd Command) {
	defer func() {
		if r := recover(); r != nil {
			w.stats.Errors++
			w.log.Errorf("处理命令时发生 panic: %v, 命令类型: %s", r, cmd.CommandType())
		}
	}()

	var err error
	switch c := cmd.(type) {
	case *setDesiredPositionCommand:
		err = w.engine.SetDesiredPosition(ctx, c.position)
	case *setActualPositionCommand:
		err = w.engine.SetActualPosition(ctx, c.position)
	case *publishLogicalCommand:
		err = w.engine.SetLogicalOrders(ctx, c.strategyID, c.position, c.orders)
	case *activeOrdersCommand:
		err = w.engine.SetActiveOrders(ctx, c.orders)
	case *createAckCommand:
		err = w.engine.OnCreateBrokerOrder(ctx, c.order)
	case *changeAckCommand:
		err = w.engine.OnChangeBrokerOrder(ctx, c.order)
	case *cancelAckCommand:
		err = w.engine.OnCancelBrokerOrder(ctx, c.brokerOrderID)
	case *rejectCommand:
		err = w.engine.OnRejectBrokerOrder(ctx, c.brokerOrderID, c.reason)
	case *fillCommand:
		err = w.engine.ProcessFill(ctx, c.fill)
	case *syncPositionCommand:
		err = w.engine.TrySyncPosition(ctx)
	default:
		w.log.Errorf("未知命令类型: %s", cmd.CommandType())
	}
	if err != nil {
		w.stats.Errors++
		w.log.WithError(err).Warnf("命令失败: %s", cmd.CommandType())
	}
}

// Submit 提交命令（线程安全）。通道满时阻塞，直到 ctx 结束或 worker 停止。
func (w *Worker) Submit(ctx context.Context, cmd Command) error {
	select {
	case <-w.done:
		return ErrWorkerStopped
	default:
	}
	select {
	case w.cmdC <- cmd:
		return nil
	case <-w.done:
		return ErrWorkerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Trigger 请求一次 compare（非阻塞，多次请求合并）
func (w *Worker) Trigger() {
	w.trigger.Emit()
}

// RequestResync 请求从券商重新拉取活跃订单（非阻塞）
func (w *Worker) RequestResync() {
	w.resyncC.Emit()
}

// resync 在 worker goroutine 中拉取活跃订单并整体替换跟踪集合
func (w *Worker) resync(ctx context.Context) {
	orders, err := w.engine.transport.GetActiveOrders(ctx, w.Symbol())
	if err != nil {
		w.stats.Errors++
		w.log.WithError(err).Warn("拉取活跃订单失败")
		return
	}
	if err := w.engine.SetActiveOrders(ctx, orders); err != nil {
		w.stats.Errors++
		return
	}
	if w.breaker.Halted() {
		w.log.Info("全量同步完成，断路器恢复")
		w.breaker.Resume()
		w.Trigger()
	}
}

// SetDesiredPosition 设置目标持仓
func (w *Worker) SetDesiredPosition(ctx context.Context, position int64) error {
	return w.Submit(ctx, &setDesiredPositionCommand{position: position})
}

// SetActualPosition 设置券商报告的实际持仓
func (w *Worker) SetActualPosition(ctx context.Context, position int64) error {
	return w.Submit(ctx, &setActualPositionCommand{position: position})
}

// PublishLogicalOrders 发布某个策略的逻辑订单集合
func (w *Worker) PublishLogicalOrders(ctx context.Context, strategyID string, strategyPosition int64, orders []*domain.LogicalOrder) error {
	cloned := make([]*domain.LogicalOrder, 0, len(orders))
	for _, l := range orders {
		cloned = append(cloned, l.Clone())
	}
	return w.Submit(ctx, &publishLogicalCommand{strategyID: strategyID, position: strategyPosition, orders: cloned})
}

// SetActiveOrders 用外部拉取的活跃订单整体替换跟踪集合
func (w *Worker) SetActiveOrders(ctx context.Context, orders []*domain.PhysicalOrder) error {
	cloned := make([]*domain.PhysicalOrder, 0, len(orders))
	for _, o := range orders {
		cloned = append(cloned, o.Clone())
	}
	return w.Submit(ctx, &activeOrdersCommand{orders: cloned})
}

// SyncPosition 请求一次持仓同步
func (w *Worker) SyncPosition(ctx context.Context) error {
	return w.Submit(ctx, &syncPositionCommand{})
}

// Snapshot 查询引擎快照（线程安全）
func (w *Worker) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if err := w.Submit(ctx, &querySnapshotCommand{reply: reply}); err != nil {
		return Snapshot{}, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-w.done:
		return Snapshot{}, ErrWorkerStopped
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// OnCreateBrokerOrder 实现 ports.BrokerListener
func (w *Worker) OnCreateBrokerOrder(ctx context.Context, order *domain.PhysicalOrder) error {
	return w.Submit(ctx, &createAckCommand{order: order.Clone()})
}

// OnChangeBrokerOrder 实现 ports.BrokerListener
func (w *Worker) OnChangeBrokerOrder(ctx context.Context, order *domain.PhysicalOrder) error {
	return w.Submit(ctx, &changeAckCommand{order: order.Clone()})
}

// OnCancelBrokerOrder 实现 ports.BrokerListener
func (w *Worker) OnCancelBrokerOrder(ctx context.Context, brokerOrderID string) error {
	return w.Submit(ctx, &cancelAckCommand{brokerOrderID: brokerOrderID})
}

// OnRejectBrokerOrder 实现 ports.BrokerListener
func (w *Worker) OnRejectBrokerOrder(ctx context.Context, brokerOrderID string, reason string) error {
	return w.Submit(ctx, &rejectCommand{brokerOrderID: brokerOrderID, reason: reason})
}

// ProcessFill 实现 ports.BrokerListener
func (w *Worker) ProcessFill(ctx context.Context, fill domain.PhysicalFill) error {
	return w.Submit(ctx, &fillCommand{fill: fill})
}
