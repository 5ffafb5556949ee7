package sigchan

import "sync/atomic"

// Chan 合并型信号 channel：多次 Emit 在被消费前只会留下一个待处理信号。
// 用于“有新事件，需要重新计算”这类通知，不传递数据。
type Chan struct {
	c       chan struct{}
	emitted atomic.Int64
}

// New 创建信号 channel
func New() *Chan {
	return &Chan{c: make(chan struct{}, 1)}
}

// Emit 发送信号（非阻塞，已有待处理信号时合并）
func (c *Chan) Emit() {
	c.emitted.Add(1)
	select {
	case c.c <- struct{}{}:
	default:
	}
}

// C 返回内部的 channel（用于 select）
func (c *Chan) C() <-chan struct{} {
	return c.c
}

// Pending 是否有尚未消费的信号
func (c *Chan) Pending() bool {
	return len(c.c) > 0
}

// Drain 丢弃待处理信号，返回是否存在
func (c *Chan) Drain() bool {
	select {
	case <-c.c:
		return true
	default:
		return false
	}
}

// Emitted 累计 Emit 次数
func (c *Chan) Emitted() int64 {
	return c.emitted.Load()
}
