package syncgroup

import (
	"sync"
)

// SyncGroup 是 sync.WaitGroup 的包装器，自动管理 Add() 和 Done()
//
// 与 WaitGroup 不同，Wait() 开始后仍可以继续 Go()：
// 调用方按需增加长期运行的 goroutine（例如按标的懒加载的 worker）。
type SyncGroup struct {
	wg sync.WaitGroup

	mu      sync.Mutex
	running int
	closed  bool
}

// NewSyncGroup 创建新的 SyncGroup
func NewSyncGroup() *SyncGroup {
	return &SyncGroup{}
}

// Go 启动 goroutine；Close 之后返回 false 且不启动
func (w *SyncGroup) Go(fn func()) bool {
	if fn == nil {
		return false
	}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false
	}
	w.running++
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer func() {
			w.mu.Lock()
			w.running--
			w.mu.Unlock()
			w.wg.Done()
		}()
		fn()
	}()
	return true
}

// Running 当前运行中的 goroutine 数量
func (w *SyncGroup) Running() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Close 不再接受新的 goroutine
func (w *SyncGroup) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}

// Wait 等待所有 goroutine 完成
func (w *SyncGroup) Wait() {
	w.wg.Wait()
}
