package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidEvent 上报的切片事件不完整或格式错误，不应重试
	ErrInvalidEvent = errors.New("invalid slicing event")
	// ErrInvalidTransition 状态机不允许的迁移
	ErrInvalidTransition = errors.New("invalid inbox status transition")
	// ErrNotFound 收件箱条目或产品不存在
	ErrNotFound = errors.New("not found")
	// ErrProductSyncFailed 手动绑定时写入产品生产元数据失败
	ErrProductSyncFailed = errors.New("product sync failed")
	// ErrStorageUnavailable 存储基础设施故障，可重试
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrProductNotFound 产品存储中不存在该产品
	ErrProductNotFound = errors.New("product not found")
	// ErrDedupConflict 并发创建时去重占位冲突，调用方应重新读取
	ErrDedupConflict = errors.New("dedup claim conflict")
)

// transitionError 构造带上下文的非法迁移错误
func transitionError(from, to InboxStatus) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// Unavailable 将底层存储错误包装为 ErrStorageUnavailable
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}
