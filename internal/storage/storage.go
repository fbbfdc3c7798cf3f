package storage

import (
	"context"
	"time"

	"slicinginbox/backend/internal/domain"
)

// InboxRepository 定义收件箱条目存取操作。
type InboxRepository interface {
	domain.InboxStore
}

// ProductRepository 定义目录产品生产元数据写入操作。
type ProductRepository interface {
	domain.ProductStore
}

// RateLimitRepository 定义限流计数操作。
type RateLimitRepository interface {
	IncrementRateLimit(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Store 定义完整的存储接口。
type Store interface {
	InboxRepository
	ProductRepository

	// 工具方法
	Close() error
	Health() error
}
