package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"slicinginbox/backend/internal/domain"
)

const keyPrefix = "slicer:"

// ErrCacheMiss 缓存未命中
var ErrCacheMiss = errors.New("cache miss")

func listKey(status domain.InboxStatus) string {
	return fmt.Sprintf("%sinbox:list:%s", keyPrefix, status)
}

// ========== 列表快照缓存 ==========

// GetListSnapshot 读取按状态缓存的列表快照。每个状态一个 hash，field 为 limit。
func (c *Client) GetListSnapshot(ctx context.Context, status domain.InboxStatus, limit int) ([]domain.InboxItem, error) {
	data, err := c.rdb.HGet(ctx, listKey(status), strconv.Itoa(limit)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}

	var items []domain.InboxItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// SetListSnapshot 缓存列表快照
func (c *Client) SetListSnapshot(ctx context.Context, status domain.InboxStatus, limit int, items []domain.InboxItem, ttl time.Duration) error {
	data, err := json.Marshal(items)
	if err != nil {
		return err
	}

	key := listKey(status)
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key, strconv.Itoa(limit), data)
	pipe.Expire(ctx, key, ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// InvalidateListSnapshots 删除所有状态的列表快照
func (c *Client) InvalidateListSnapshots(ctx context.Context) error {
	return c.rdb.Del(ctx,
		listKey(domain.InboxStatusPending),
		listKey(domain.InboxStatusLinked),
		listKey(domain.InboxStatusIgnored),
	).Err()
}

// ========== 限流计数 ==========

// IncrementRateLimit 固定窗口计数：首次计数时设置过期时间
func (c *Client) IncrementRateLimit(ctx context.Context, key string, window time.Duration) (int64, error) {
	fullKey := keyPrefix + "ratelimit:" + key

	pipe := c.rdb.TxPipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.ExpireNX(ctx, fullKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
