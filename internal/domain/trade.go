package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PhysicalFill 券商成交回报（可能是物理订单的部分成交）
type PhysicalFill struct {
	ID                  string          // 成交 ID（可选，由券商提供）
	BrokerOrderID       string          // 关联的物理订单 ID
	Symbol              string          // 交易标的
	LogicalSerialNumber int64           // 物理订单上携带的逻辑订单序列号
	Size                int64           // 带符号成交数量（买为正，卖为负）
	Price               decimal.Decimal // 成交价格
	RemainingSize       int64           // 本次成交后物理订单剩余数量
	Recency             int64           // 单调递增的新鲜度（0 表示由引擎分配）
	Time                time.Time       // 成交时间
}

// IsComplete 物理订单是否已经全部成交
func (f *PhysicalFill) IsComplete() bool {
	return f.RemainingSize <= 0
}

func (f *PhysicalFill) String() string {
	return fmt.Sprintf("fill %d@%s order=%s serial=%d remaining=%d recency=%d",
		f.Size, f.Price.String(), f.BrokerOrderID, f.LogicalSerialNumber, f.RemainingSize, f.Recency)
}
