package domain

import (
	"time"
)

// PositionUpdate 发布给策略持仓账本的持仓更新
//
// Recency 单调递增；账本只接受比已应用值更新的更新。
type PositionUpdate struct {
	Symbol     string    // 交易标的
	StrategyID string    // 策略
	Position   int64     // 成交后的策略持仓
	Recency    int64     // 新鲜度
	Time       time.Time // 成交时间
}

// IsNewerThan 检查是否比给定的新鲜度更新
func (u PositionUpdate) IsNewerThan(recency int64) bool {
	return u.Recency > recency
}

// SignOf 返回 -1/0/1
func SignOf(v int64) int64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// Abs 返回绝对值
func Abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
