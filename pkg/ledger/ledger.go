// Package ledger 保存各策略在各标的上的持仓。
//
// 所有实现都按新鲜度（recency）过滤：不比已应用值更新的更新被丢弃。
package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/betbot/ordersync/internal/domain"
)

// Entry 账本中的一条持仓记录
type Entry struct {
	Symbol     string    `json:"symbol"`
	StrategyID string    `json:"strategy_id"`
	Position   int64     `json:"position"`
	Recency    int64     `json:"recency"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func entryFromUpdate(u domain.PositionUpdate) Entry {
	return Entry{
		Symbol:     u.Symbol,
		StrategyID: u.StrategyID,
		Position:   u.Position,
		Recency:    u.Recency,
		UpdatedAt:  u.Time,
	}
}

type entryKey struct {
	symbol     string
	strategyID string
}

// Memory 进程内账本
type Memory struct {
	mu      sync.RWMutex
	entries map[entryKey]Entry
}

// NewMemory 创建内存账本
func NewMemory() *Memory {
	return &Memory{entries: make(map[entryKey]Entry)}
}

// UpdatePosition 实现 ports.PositionLedger
func (m *Memory) UpdatePosition(_ context.Context, update domain.PositionUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := entryKey{update.Symbol, update.StrategyID}
	if cur, ok := m.entries[k]; ok && !update.IsNewerThan(cur.Recency) {
		return false, nil
	}
	m.entries[k] = entryFromUpdate(update)
	return true, nil
}

// Position 查询策略持仓
func (m *Memory) Position(symbol, strategyID string) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[entryKey{symbol, strategyID}]
	return e, ok
}

// Entries 所有持仓记录（按标的、策略排序）
func (m *Memory) Entries() ([]Entry, error) {
	m.mu.RLock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	m.mu.RUnlock()
	sortEntries(out)
	return out, nil
}

// MaxRecency 账本中最大的新鲜度。
//
// 进程重启后新鲜度来源（引擎计数器、纸交易券商）从这里继续递增，
// 否则持久化账本会把新进程的更新全部当作过期丢弃。
func MaxRecency(entries []Entry) int64 {
	var top int64
	for _, e := range entries {
		if e.Recency > top {
			top = e.Recency
		}
	}
	return top
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Symbol != entries[j].Symbol {
			return entries[i].Symbol < entries[j].Symbol
		}
		return entries[i].StrategyID < entries[j].StrategyID
	})
}
