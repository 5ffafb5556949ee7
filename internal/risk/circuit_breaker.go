package risk

import (
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// ErrCircuitBreakerOpen 表示断路器已打开，暂停主动 compare。
var ErrCircuitBreakerOpen = errors.New("circuit breaker open")

// CircuitBreakerConfig 断路器配置。
// 约定：阈值 <= 0 表示关闭对应限制。
type CircuitBreakerConfig struct {
	// MaxConsecutiveErrors 连续失败的 compare 上限，达到后熔断。
	MaxConsecutiveErrors int64

	// Cooldown 熔断后自动恢复的等待时间（0 表示只能通过 Resume 恢复）。
	Cooldown time.Duration
}

// CircuitBreaker 统计一个标的连续失败的对账轮次。
//
// 熔断后 worker 停止主动触发 compare 并从券商全量同步；同步成功后调用 Resume。
// 所有方法可并发调用，nil 接收者表示不启用。
type CircuitBreaker struct {
	halted            atomic.Bool
	consecutiveErrors atomic.Int64
	trips             atomic.Int64
	openedAt          atomic.Int64 // UnixNano

	maxConsecutiveErrors int64
	cooldown             time.Duration
	now                  func() time.Time
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		maxConsecutiveErrors: cfg.MaxConsecutiveErrors,
		cooldown:             cfg.Cooldown,
		now:                  time.Now,
	}
}

// Halt 手动熔断。
func (cb *CircuitBreaker) Halt() {
	if cb == nil {
		return
	}
	if cb.halted.CompareAndSwap(false, true) {
		cb.openedAt.Store(cb.now().UnixNano())
		cb.trips.Add(1)
	}
}

// Resume 恢复（会同时清空连续错误计数）。
func (cb *CircuitBreaker) Resume() {
	if cb == nil {
		return
	}
	cb.halted.Store(false)
	cb.consecutiveErrors.Store(0)
}

// Halted 是否处于熔断状态
func (cb *CircuitBreaker) Halted() bool {
	return cb != nil && cb.halted.Load()
}

// Allow 快路径检查是否允许主动 compare；冷却时间到达后自动恢复。
func (cb *CircuitBreaker) Allow() error {
	if cb == nil || !cb.halted.Load() {
		return nil
	}
	if cb.cooldown > 0 && cb.now().Sub(time.Unix(0, cb.openedAt.Load())) >= cb.cooldown {
		cb.Resume()
		return nil
	}
	return ErrCircuitBreakerOpen
}

// OnSuccess 一轮对账成功后调用，清空连续错误计数。
func (cb *CircuitBreaker) OnSuccess() {
	if cb == nil {
		return
	}
	cb.consecutiveErrors.Store(0)
}

// OnError 一轮对账失败后调用；本次调用导致熔断时返回 true。
func (cb *CircuitBreaker) OnError() bool {
	if cb == nil {
		return false
	}
	n := cb.consecutiveErrors.Add(1)
	if cb.maxConsecutiveErrors <= 0 || n < cb.maxConsecutiveErrors {
		return false
	}
	if !cb.halted.CompareAndSwap(false, true) {
		return false
	}
	cb.openedAt.Store(cb.now().UnixNano())
	cb.trips.Add(1)
	return true
}

// ConsecutiveErrors 当前连续错误数
func (cb *CircuitBreaker) ConsecutiveErrors() int64 {
	if cb == nil {
		return 0
	}
	return cb.consecutiveErrors.Load()
}

// Trips 累计熔断次数
func (cb *CircuitBreaker) Trips() int64 {
	if cb == nil {
		return 0
	}
	return cb.trips.Load()
}
