package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/ordersync/internal/domain"
	"github.com/betbot/ordersync/internal/ports"
)

var asyncLog = logrus.WithField("component", "ledger_async")

var (
	// ErrQueueFull 发布队列已满（更新被丢弃，后续更新会覆盖它）
	ErrQueueFull = errors.New("ledger: publish queue full")
	// ErrClosed 发布器已关闭
	ErrClosed = errors.New("ledger: publisher closed")
)

// Async 把持仓更新从 worker goroutine 转到后台 goroutine 写入下游账本
//
// UpdatePosition 只入队，返回值 applied 表示已入队；下游的新鲜度过滤仍然生效。
type Async struct {
	next ports.PositionLedger
	ch   chan domain.PositionUpdate

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewAsync 创建异步发布器
func NewAsync(next ports.PositionLedger, buffer int) *Async {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Async{
		next: next,
		ch:   make(chan domain.PositionUpdate, buffer),
		done: make(chan struct{}),
	}
}

// UpdatePosition 实现 ports.PositionLedger（非阻塞）
func (a *Async) UpdatePosition(_ context.Context, update domain.PositionUpdate) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return false, ErrClosed
	}
	select {
	case a.ch <- update:
		return true, nil
	default:
		return false, ErrQueueFull
	}
}

// Run 写入循环，Close 后处理完剩余更新再返回
func (a *Async) Run(ctx context.Context) {
	defer close(a.done)
	for update := range a.ch {
		applied, err := a.write(ctx, update)
		if err != nil {
			asyncLog.WithError(err).Warnf("写入持仓失败: %s/%s", update.Symbol, update.StrategyID)
			continue
		}
		if !applied {
			asyncLog.Debugf("持仓更新已过期: %s/%s recency=%d", update.Symbol, update.StrategyID, update.Recency)
		}
	}
}

func (a *Async) write(ctx context.Context, update domain.PositionUpdate) (bool, error) {
	// ctx 取消后仍需写完队列中的更新
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return a.next.UpdatePosition(writeCtx, update)
}

// Close 停止接收并等待 Run 退出
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.ch)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
