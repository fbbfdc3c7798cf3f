package domain

import (
	"context"
	"time"
)

// InboxStore 收件箱条目的存储端口。
//
// 实现约定：
//   - GetItem 找不到时返回 ErrNotFound
//   - UpdateItemStatus 是以 expected 为条件的比较并写入：条目不存在返回 ErrNotFound，
//     当前状态与 expected 不符返回 ErrInvalidTransition
//   - 基础设施故障一律包装为 ErrStorageUnavailable
type InboxStore interface {
	// CreatePending 原子地完成去重检查与写入。
	// 若同指纹的占位条目创建于 freshSince 之后，返回该条目且 created=false；
	// 否则释放过期占位并写入 item，返回 item 且 created=true。
	CreatePending(ctx context.Context, item *InboxItem, freshSince time.Time) (stored *InboxItem, created bool, err error)

	// CreateItem 直接写入条目（自动绑定路径，不参与去重）
	CreateItem(ctx context.Context, item *InboxItem) error

	// GetItem 根据 ID 获取条目
	GetItem(ctx context.Context, id string) (*InboxItem, error)

	// UpdateItemStatus 在当前状态等于 expected 时整体更新条目的生命周期字段
	UpdateItemStatus(ctx context.Context, item *InboxItem, expected InboxStatus) error

	// ListItemsByStatus 按状态列出条目：linked 按 linkedAt 倒序，其余按 createdAt 倒序
	ListItemsByStatus(ctx context.Context, status InboxStatus, limit int) ([]InboxItem, error)
}

// ProductStore 目录产品的生产元数据同步端口。
//
// 只允许整体替换 productionData 子文档，不得修改产品的其他字段。
type ProductStore interface {
	// WriteProductionMetadata 写入生产元数据；产品不存在返回 ErrProductNotFound
	WriteProductionMetadata(ctx context.Context, productID string, metadata ProductionMetadata) error
}

// InboxEventType 收件箱事件类型
type InboxEventType string

const (
	InboxEventCreated  InboxEventType = "inbox.created"
	InboxEventLinked   InboxEventType = "inbox.linked"
	InboxEventUnlinked InboxEventType = "inbox.unlinked"
	InboxEventIgnored  InboxEventType = "inbox.ignored"
)

// InboxEvent 收件箱状态变化通知
type InboxEvent struct {
	Type      InboxEventType `json:"type"`
	Item      InboxItem      `json:"item"`
	Timestamp time.Time      `json:"timestamp"`
}

// EventPublisher 收件箱事件发布端口（例如 WebSocket 推送）
type EventPublisher interface {
	Publish(event InboxEvent)
}
