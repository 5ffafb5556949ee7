package domain

import (
	"github.com/pkg/errors"
)

// ErrNotFound 订单不存在（券商已成交/已撤单导致的正常竞态，可在本地吸收）
var ErrNotFound = errors.New("order not found")

// ErrInvariant 跟踪状态与券商状态发生结构性偏离，必须中止本轮比较并上抛
var ErrInvariant = errors.New("reconciliation invariant violated")

// Invariantf 构造一个不变量错误
func Invariantf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvariant, format, args...)
}

// NotFoundf 构造一个 NotFound 错误
func NotFoundf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrNotFound, format, args...)
}

// IsInvariant 检查是否为不变量错误
func IsInvariant(err error) bool {
	return err != nil && errors.Cause(err) == ErrInvariant
}

// IsNotFound 检查是否为 NotFound 竞态
func IsNotFound(err error) bool {
	return err != nil && errors.Cause(err) == ErrNotFound
}
