package reconcile

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ErrDuplicateRequest 表示同一轮比较中已经针对同一目标发出过相同请求。
var ErrDuplicateRequest = errors.New("duplicate request in compare pass")

// orderCache 单轮比较内的请求去重。
//
// 与按时间窗口去重不同，这里的作用域严格等于一轮 compare：
// 每轮结束时 Clear，下一轮从券商确认后的订单集合重新推导。
type orderCache struct {
	keys map[string]struct{}
}

func newOrderCache() *orderCache {
	return &orderCache{keys: make(map[string]struct{})}
}

// TryAcquire 登记 key；本轮已登记过则返回 ErrDuplicateRequest。
func (c *orderCache) TryAcquire(key string) error {
	if key == "" {
		return nil
	}
	if _, ok := c.keys[key]; ok {
		return errors.Wrap(ErrDuplicateRequest, key)
	}
	c.keys[key] = struct{}{}
	return nil
}

// Has 检查 key 是否已登记
func (c *orderCache) Has(key string) bool {
	_, ok := c.keys[key]
	return ok
}

// Len 已登记数量
func (c *orderCache) Len() int {
	return len(c.keys)
}

// Clear 清空（每轮 compare 结束时调用）
func (c *orderCache) Clear() {
	for k := range c.keys {
		delete(c.keys, k)
	}
}

func createKey(logicalID int64, price decimal.Decimal) string {
	return fmt.Sprintf("create|%d|%s", logicalID, price.String())
}

func changeKey(brokerOrderID string) string {
	return "change|" + brokerOrderID
}

func cancelKey(brokerOrderID string) string {
	return "cancel|" + brokerOrderID
}
