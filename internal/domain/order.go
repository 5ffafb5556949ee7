package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderType 订单类型（逻辑订单与物理订单共用）
type OrderType int

const (
	BuyLimit OrderType = iota + 1
	SellLimit
	BuyStop
	SellStop
	BuyMarket
	SellMarket
)

func (t OrderType) String() string {
	switch t {
	case BuyLimit:
		return "BuyLimit"
	case SellLimit:
		return "SellLimit"
	case BuyStop:
		return "BuyStop"
	case SellStop:
		return "SellStop"
	case BuyMarket:
		return "BuyMarket"
	case SellMarket:
		return "SellMarket"
	default:
		return fmt.Sprintf("OrderType(%d)", int(t))
	}
}

// IsBuy 是否为买入类订单
func (t OrderType) IsBuy() bool {
	return t == BuyLimit || t == BuyStop || t == BuyMarket
}

// IsMarket 是否为市价单
func (t OrderType) IsMarket() bool {
	return t == BuyMarket || t == SellMarket
}

// IsStop 是否为止损（触发）单
func (t OrderType) IsStop() bool {
	return t == BuyStop || t == SellStop
}

// IsLimit 是否为限价单
func (t OrderType) IsLimit() bool {
	return t == BuyLimit || t == SellLimit
}

// ParseOrderType 从配置字符串解析订单类型（大小写不敏感）
func ParseOrderType(s string) (OrderType, error) {
	for t := BuyLimit; t <= SellMarket; t++ {
		if strings.EqualFold(t.String(), strings.TrimSpace(s)) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown order type: %q", s)
}

// OrderAction 物理订单动作
type OrderAction int

const (
	ActionCreate OrderAction = iota + 1
	ActionChange
	ActionCancel
)

func (a OrderAction) String() string {
	switch a {
	case ActionCreate:
		return "Create"
	case ActionChange:
		return "Change"
	case ActionCancel:
		return "Cancel"
	default:
		return fmt.Sprintf("OrderAction(%d)", int(a))
	}
}

// OrderState 物理订单生命周期状态
type OrderState int

const (
	StatePending   OrderState = iota + 1 // 请求已发出，等待券商确认
	StateActive                          // 券商已确认，挂单中
	StateFilled                          // 已完全成交
	StateSuspended                       // 暂停（不可修改）
)

func (s OrderState) String() string {
	switch s {
	case StatePending:
		return "Pending"
	case StateActive:
		return "Active"
	case StateFilled:
		return "Filled"
	case StateSuspended:
		return "Suspended"
	default:
		return fmt.Sprintf("OrderState(%d)", int(s))
	}
}

// OrderSide 物理订单方向
type OrderSide int

const (
	SideBuy OrderSide = iota + 1
	SideSell
	SideSellShort
)

func (s OrderSide) String() string {
	switch s {
	case SideBuy:
		return "Buy"
	case SideSell:
		return "Sell"
	case SideSellShort:
		return "SellShort"
	default:
		return fmt.Sprintf("OrderSide(%d)", int(s))
	}
}

// PhysicalOrder 面向券商的物理订单（create/change/cancel 指令）
//
// change 永远产生新的 PhysicalOrder，通过 OriginalID / ReplacedByID 与旧订单互相引用，
// 引用只保存券商订单 ID，不持有指针。
type PhysicalOrder struct {
	BrokerOrderID       string          // 券商订单 ID（创建时分配，全局唯一）
	Symbol              string          // 交易标的
	Action              OrderAction     // 动作
	State               OrderState      // 生命周期状态
	Side                OrderSide       // 方向
	Type                OrderType       // 订单类型
	Price               decimal.Decimal // 价格（市价单为零值）
	Size                int64           // 剩余数量（Active/Pending 时必须 > 0）
	LogicalOrderID      int64           // 来源逻辑订单 ID（0 表示仓位调整单或外部订单）
	LogicalSerialNumber int64           // 来源逻辑订单序列号（用于成交关联）
	OriginalID          string          // 被替换的订单 ID（change）
	ReplacedByID        string          // 替换本订单的新订单 ID
	CreatedAt           time.Time       // 创建时间
}

// SignedSize 返回带符号的数量（买为正，卖为负）
func (o *PhysicalOrder) SignedSize() int64 {
	if o.Side == SideBuy {
		return o.Size
	}
	return -o.Size
}

// IsAdjustment 是否为纯仓位调整单（没有逻辑订单的市价单）
func (o *PhysicalOrder) IsAdjustment() bool {
	return o.LogicalOrderID == 0 && o.Type.IsMarket()
}

// IsCancelPending 撤单请求是否在途
func (o *PhysicalOrder) IsCancelPending() bool {
	return o.Action == ActionCancel && o.State == StatePending
}

// IsMatchable 是否可以参与匹配（已成交/暂停/撤单中的订单不能再修改）
func (o *PhysicalOrder) IsMatchable() bool {
	if o.State == StateFilled || o.State == StateSuspended {
		return false
	}
	return !o.IsCancelPending()
}

// Clone 返回副本
func (o *PhysicalOrder) Clone() *PhysicalOrder {
	if o == nil {
		return nil
	}
	c := *o
	return &c
}

func (o *PhysicalOrder) String() string {
	return fmt.Sprintf("%s %s %s %s %d@%s id=%s logical=%d",
		o.Action, o.State, o.Side, o.Type, o.Size, o.Price.String(), o.BrokerOrderID, o.LogicalOrderID)
}
