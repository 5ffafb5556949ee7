package reconcile

import (
	"sort"

	"github.com/betbot/ordersync/internal/domain"
)

// orderBook 单个标的的物理订单仓库（arena）
//
// 订单按券商订单 ID 寻址；change 产生的新旧订单之间只保存 ID 引用。
// 只在引擎的单写者上下文中访问，不加锁。
type orderBook struct {
	orders   map[string]*domain.PhysicalOrder // 跟踪中的订单
	replaced map[string]*domain.PhysicalOrder // 已被 change 替换、等待确认的原订单
	seq      map[string]int64                 // 插入顺序（保证遍历确定性）
	nextSeq  int64
}

func newOrderBook() *orderBook {
	return &orderBook{
		orders:   make(map[string]*domain.PhysicalOrder),
		replaced: make(map[string]*domain.PhysicalOrder),
		seq:      make(map[string]int64),
	}
}

// Add 添加（或覆盖）跟踪订单
func (b *orderBook) Add(order *domain.PhysicalOrder) {
	if order == nil || order.BrokerOrderID == "" {
		return
	}
	if _, ok := b.seq[order.BrokerOrderID]; !ok {
		b.nextSeq++
		b.seq[order.BrokerOrderID] = b.nextSeq
	}
	b.orders[order.BrokerOrderID] = order
}

// Get 查找订单（包括等待 change 确认的原订单）
func (b *orderBook) Get(id string) (*domain.PhysicalOrder, bool) {
	if o, ok := b.orders[id]; ok {
		return o, true
	}
	o, ok := b.replaced[id]
	return o, ok
}

// Tracked 只查找跟踪中的订单
func (b *orderBook) Tracked(id string) (*domain.PhysicalOrder, bool) {
	o, ok := b.orders[id]
	return o, ok
}

// Replace 用 change 订单替换原订单：原订单移出跟踪集合，但仍可通过 Get 找到
func (b *orderBook) Replace(original, change *domain.PhysicalOrder) {
	original.ReplacedByID = change.BrokerOrderID
	change.OriginalID = original.BrokerOrderID
	delete(b.orders, original.BrokerOrderID)
	b.replaced[original.BrokerOrderID] = original
	b.Add(change)
}

// ConfirmChange 券商确认 change 后丢弃原订单
func (b *orderBook) ConfirmChange(changeID string) {
	change, ok := b.orders[changeID]
	if !ok || change.OriginalID == "" {
		return
	}
	b.forget(change.OriginalID)
}

// RestoreOriginal change 被拒绝时恢复原订单
func (b *orderBook) RestoreOriginal(changeID string) (*domain.PhysicalOrder, bool) {
	change, ok := b.orders[changeID]
	if !ok {
		return nil, false
	}
	b.forget(changeID)
	original, ok := b.replaced[change.OriginalID]
	if !ok {
		return nil, false
	}
	delete(b.replaced, original.BrokerOrderID)
	original.ReplacedByID = ""
	b.orders[original.BrokerOrderID] = original
	return original, true
}

// Remove 移除单个订单，返回是否存在
func (b *orderBook) Remove(id string) bool {
	_, tracked := b.orders[id]
	_, replaced := b.replaced[id]
	b.forget(id)
	return tracked || replaced
}

// RemoveChain 移除订单以及与它有替换关系的订单，返回实际移除的数量。
// 重复调用是安全的：已经移除的订单不会再计数。
func (b *orderBook) RemoveChain(id string) int {
	removed := 0
	visited := make(map[string]bool)
	var walk func(id string)
	walk = func(id string) {
		if id == "" || visited[id] {
			return
		}
		visited[id] = true
		o, ok := b.Get(id)
		if !ok {
			return
		}
		b.forget(id)
		removed++
		walk(o.OriginalID)
		walk(o.ReplacedByID)
	}
	walk(id)
	return removed
}

func (b *orderBook) forget(id string) {
	delete(b.orders, id)
	delete(b.replaced, id)
	delete(b.seq, id)
}

// Reset 用券商重新发布的活跃订单整体替换
func (b *orderBook) Reset(orders []*domain.PhysicalOrder) {
	b.orders = make(map[string]*domain.PhysicalOrder, len(orders))
	b.replaced = make(map[string]*domain.PhysicalOrder)
	b.seq = make(map[string]int64, len(orders))
	for _, o := range orders {
		b.Add(o)
	}
}

// All 返回所有跟踪中的订单（按插入顺序）
func (b *orderBook) All() []*domain.PhysicalOrder {
	out := make([]*domain.PhysicalOrder, 0, len(b.orders))
	for _, o := range b.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		return b.seq[out[i].BrokerOrderID] < b.seq[out[j].BrokerOrderID]
	})
	return out
}

// Matchable 返回可参与匹配的订单
func (b *orderBook) Matchable() []*domain.PhysicalOrder {
	all := b.All()
	out := all[:0]
	for _, o := range all {
		if o.IsMatchable() {
			out = append(out, o)
		}
	}
	return out
}

// Adjustments 返回仓位调整单：pending 为仍有效的调整单，canceling 为撤单在途的数量
func (b *orderBook) Adjustments() (pending []*domain.PhysicalOrder, canceling int) {
	for _, o := range b.All() {
		if !o.IsAdjustment() || o.State == domain.StateFilled {
			continue
		}
		if o.IsCancelPending() {
			canceling++
			continue
		}
		pending = append(pending, o)
	}
	return pending, canceling
}

// Len 跟踪中的订单数量
func (b *orderBook) Len() int {
	return len(b.orders)
}
