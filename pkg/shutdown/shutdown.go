package shutdown

import (
	"context"
	"sync"

	"github.com/betbot/ordersync/pkg/logger"
)

// Handler 关闭处理函数
type Handler func(ctx context.Context) error

type callback struct {
	name    string
	handler Handler
}

// Manager 优雅关闭管理器
//
// 回调按注册的相反顺序依次执行：先注册的依赖（账本、成交记录）最后关闭。
type Manager struct {
	callbacks []callback
	mu        sync.Mutex
	once      sync.Once
}

// NewManager 创建新的关闭管理器
func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown 注册关闭回调
func (m *Manager) OnShutdown(name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, callback{name: name, handler: handler})
}

// Shutdown 执行所有关闭回调（阻塞调用，只执行一次）
//
// ctx 应该带超时；超时后剩余的回调仍会被调用，由回调自己决定是否放弃。
// 返回失败的回调数量。
func (m *Manager) Shutdown(ctx context.Context) int {
	failed := 0
	m.once.Do(func() {
		m.mu.Lock()
		callbacks := append([]callback(nil), m.callbacks...)
		m.mu.Unlock()

		if len(callbacks) == 0 {
			logger.Info("没有注册的关闭回调")
			return
		}
		logger.Infof("开始优雅关闭，共 %d 个回调", len(callbacks))

		for i := len(callbacks) - 1; i >= 0; i-- {
			cb := callbacks[i]
			if err := cb.handler(ctx); err != nil {
				failed++
				logger.Errorf("关闭 %s 失败: %v", cb.name, err)
				continue
			}
			logger.Infof("已关闭: %s", cb.name)
		}

		if ctx.Err() != nil {
			logger.Warnf("关闭超时: %v", ctx.Err())
			return
		}
		logger.Info("所有关闭回调已完成")
	})
	return failed
}
