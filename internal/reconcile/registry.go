package reconcile

import (
	"context"
	"sort"
	"sync"

	"github.com/betbot/ordersync/internal/ports"
	"github.com/betbot/ordersync/pkg/syncgroup"
)

var _ ports.BrokerListener = (*Worker)(nil)

// WorkerFactory 为标的创建 worker
type WorkerFactory func(symbol string) *Worker

// Registry 按标的管理 worker：每个标的一个引擎、一个 goroutine
type Registry struct {
	factory WorkerFactory

	mu      sync.Mutex
	workers map[string]*Worker
	ctx     context.Context // Start 之后非 nil
	sg      *syncgroup.SyncGroup
}

// NewRegistry 创建 registry
func NewRegistry(factory WorkerFactory) *Registry {
	return &Registry{
		factory: factory,
		workers: make(map[string]*Worker),
		sg:      syncgroup.NewSyncGroup(),
	}
}

// Worker 返回标的的 worker，不存在时创建；Start 之后创建的 worker 立即运行
func (r *Registry) Worker(symbol string) *Worker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.workers[symbol]; ok {
		return w
	}
	w := r.factory(symbol)
	r.workers[symbol] = w
	if r.ctx != nil {
		r.launch(w)
	}
	return w
}

// Lookup 查找已存在的 worker
func (r *Registry) Lookup(symbol string) (*Worker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[symbol]
	return w, ok
}

// Listener 返回标的的券商回调接收方（按需创建 worker）
func (r *Registry) Listener(symbol string) ports.BrokerListener {
	return r.Worker(symbol)
}

// Symbols 已注册的标的（排序）
func (r *Registry) Symbols() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.workers))
	for s := range r.workers {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Start 启动所有 worker
func (r *Registry) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctx != nil {
		return
	}
	r.ctx = ctx
	for _, w := range r.workers {
		r.launch(w)
	}
}

func (r *Registry) launch(w *Worker) {
	ctx := r.ctx
	r.sg.Go(func() { w.Run(ctx) })
}

// Wait 等待所有 worker 退出（ctx 取消后）
func (r *Registry) Wait() {
	r.sg.Wait()
}
