package domain

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// TradeDirection 逻辑订单的交易意图
type TradeDirection int

const (
	Entry        TradeDirection = iota + 1 // 开仓
	Exit                                   // 平仓
	ExitStrategy                           // 策略级平仓（止盈/止损）
	Reverse                                // 反手
	Change                                 // 加减仓
)

func (d TradeDirection) String() string {
	switch d {
	case Entry:
		return "Entry"
	case Exit:
		return "Exit"
	case ExitStrategy:
		return "ExitStrategy"
	case Reverse:
		return "Reverse"
	case Change:
		return "Change"
	default:
		return fmt.Sprintf("TradeDirection(%d)", int(d))
	}
}

// IsExit Exit 与 ExitStrategy 的处理规则相同
func (d TradeDirection) IsExit() bool {
	return d == Exit || d == ExitStrategy
}

// ParseTradeDirection 从配置字符串解析交易意图
func ParseTradeDirection(s string) (TradeDirection, error) {
	for d := Entry; d <= Change; d++ {
		if strings.EqualFold(d.String(), strings.TrimSpace(s)) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown trade direction: %q", s)
}

// LogicalOrder 策略表达的订单意图（与具体券商订单无关）
//
// 策略每次重算都会整体替换逻辑订单集合，不会原地修改。
type LogicalOrder struct {
	ID               int64           // 逻辑订单 ID
	SerialNumber     int64           // 序列号（单调递增，用于成交关联）
	Symbol           string          // 交易标的
	StrategyID       string          // 所属策略
	Type             OrderType       // 订单类型
	Direction        TradeDirection  // 交易意图
	Price            decimal.Decimal // 价格（第一档）
	Position         int64           // 所有档位合计的目标数量
	Levels           int             // 档位数（1 表示不分档）
	LevelSize        int64           // 每档数量（Levels > 1 时有效）
	LevelIncrement   decimal.Decimal // 每档价格步长
	StrategyPosition int64           // 下单时策略的持仓
}

// LevelCount 档位数（未设置时视为 1）
func (l *LogicalOrder) LevelCount() int {
	if l.Levels < 1 {
		return 1
	}
	return l.Levels
}

// IsLadder 是否为分档订单
func (l *LogicalOrder) IsLadder() bool {
	return l.LevelCount() > 1
}

// SignedPosition 按订单方向带符号的数量（买为正，卖为负）
func (l *LogicalOrder) SignedPosition() int64 {
	if l.Type.IsBuy() {
		return l.Position
	}
	return -l.Position
}

// Validate 校验逻辑订单的结构约束
func (l *LogicalOrder) Validate() error {
	if l == nil {
		return errors.New("logical order is nil")
	}
	if l.ID <= 0 {
		return errors.Errorf("logical order id must be positive: %d", l.ID)
	}
	if l.Type < BuyLimit || l.Type > SellMarket {
		return errors.Errorf("logical order %d: invalid type %s", l.ID, l.Type)
	}
	if l.Direction < Entry || l.Direction > Change {
		return errors.Errorf("logical order %d: invalid direction %s", l.ID, l.Direction)
	}
	// 平仓单的数量取决于成交时的持仓，允许为 0
	if l.Position < 0 || (l.Position == 0 && !l.Direction.IsExit()) {
		return errors.Errorf("logical order %d: position must be positive: %d", l.ID, l.Position)
	}
	if !l.IsLadder() {
		return nil
	}
	if l.Type.IsMarket() {
		return errors.Errorf("logical order %d: market orders cannot be split into levels", l.ID)
	}
	if l.LevelSize <= 0 {
		return errors.Errorf("logical order %d: level size must be positive", l.ID)
	}
	// 最后一档可以是余数
	levels := int64(l.LevelCount())
	if l.Position == 0 {
		return nil
	}
	if l.Position > l.LevelSize*levels || l.Position <= l.LevelSize*(levels-1) {
		return errors.Errorf("logical order %d: position %d inconsistent with %d levels of %d",
			l.ID, l.Position, levels, l.LevelSize)
	}
	return nil
}

// Clone 返回副本
func (l *LogicalOrder) Clone() *LogicalOrder {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}

func (l *LogicalOrder) String() string {
	return fmt.Sprintf("#%d/%d %s %s %d@%s levels=%d strategy=%s",
		l.ID, l.SerialNumber, l.Direction, l.Type, l.Position, l.Price.String(), l.LevelCount(), l.StrategyID)
}
