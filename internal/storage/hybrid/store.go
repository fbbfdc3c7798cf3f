package hybrid

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"slicinginbox/backend/internal/config"
	"slicinginbox/backend/internal/domain"
	"slicinginbox/backend/internal/monitoring"
	"slicinginbox/backend/internal/storage"
	"slicinginbox/backend/internal/storage/postgres"
	"slicinginbox/backend/internal/storage/redis"
)

// ListCache 列表快照缓存与限流计数
type ListCache interface {
	GetListSnapshot(ctx context.Context, status domain.InboxStatus, limit int) ([]domain.InboxItem, error)
	SetListSnapshot(ctx context.Context, status domain.InboxStatus, limit int, items []domain.InboxItem, ttl time.Duration) error
	InvalidateListSnapshots(ctx context.Context) error
	IncrementRateLimit(ctx context.Context, key string, window time.Duration) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// Store 混合存储实现：数据库为准，Redis 缓存列表快照并承担限流计数。
//
// 单条读取（状态迁移前的读取）总是走数据库，缓存只服务列表查询；
// 任何写入成功后都会清空列表快照。
type Store struct {
	primary storage.Store
	cache   ListCache
	ttl     time.Duration
	log     *zap.Logger
	metrics *monitoring.Metrics
}

// NewStore 组合主存储与缓存
func NewStore(primary storage.Store, cache ListCache, ttl time.Duration, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{primary: primary, cache: cache, ttl: ttl, log: log}
}

// Open 按配置创建数据库存储与 Redis 缓存
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Store, error) {
	var (
		dbStore *postgres.Store
		err     error
	)
	switch cfg.Database.Type {
	case "mysql":
		dbStore, err = postgres.NewMySQLStore(cfg.Database)
	case "postgres":
		dbStore, err = postgres.NewStore(cfg.Database)
	default:
		return nil, fmt.Errorf("unsupported database type: %s (supported: mysql, postgres)", cfg.Database.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	cache, err := redis.New(ctx, cfg.Redis, log)
	if err != nil {
		_ = dbStore.Close()
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	return NewStore(dbStore, cache, cfg.Redis.ListCacheTTL, log), nil
}

// SetMetrics 设置监控指标
func (s *Store) SetMetrics(metrics *monitoring.Metrics) {
	s.metrics = metrics
}

// ========== Inbox Repository ==========

// CreatePending 写入数据库，新建成功后清空列表快照
func (s *Store) CreatePending(ctx context.Context, item *domain.InboxItem, freshSince time.Time) (*domain.InboxItem, bool, error) {
	stored, created, err := s.primary.CreatePending(ctx, item, freshSince)
	if err != nil {
		return nil, false, err
	}
	if created {
		s.invalidate(ctx)
	}
	return stored, created, nil
}

// CreateItem 写入数据库并清空列表快照
func (s *Store) CreateItem(ctx context.Context, item *domain.InboxItem) error {
	if err := s.primary.CreateItem(ctx, item); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// GetItem 直接读取数据库
func (s *Store) GetItem(ctx context.Context, id string) (*domain.InboxItem, error) {
	return s.primary.GetItem(ctx, id)
}

// UpdateItemStatus 条件更新后清空列表快照
func (s *Store) UpdateItemStatus(ctx context.Context, item *domain.InboxItem, expected domain.InboxStatus) error {
	if err := s.primary.UpdateItemStatus(ctx, item, expected); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// ListItemsByStatus 先查缓存，未命中时读取数据库并回填
func (s *Store) ListItemsByStatus(ctx context.Context, status domain.InboxStatus, limit int) ([]domain.InboxItem, error) {
	items, err := s.cache.GetListSnapshot(ctx, status, limit)
	if err == nil {
		s.metrics.RecordListCache(true)
		return items, nil
	}
	if !errors.Is(err, redis.ErrCacheMiss) {
		s.log.Warn("list snapshot cache read failed", zap.String("status", string(status)), zap.Error(err))
	}
	s.metrics.RecordListCache(false)

	items, err = s.primary.ListItemsByStatus(ctx, status, limit)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetListSnapshot(ctx, status, limit, items, s.ttl); err != nil {
		s.log.Warn("list snapshot cache write failed", zap.String("status", string(status)), zap.Error(err))
	}
	return items, nil
}

// ========== Product Repository ==========

// WriteProductionMetadata 写入数据库
func (s *Store) WriteProductionMetadata(ctx context.Context, productID string, metadata domain.ProductionMetadata) error {
	return s.primary.WriteProductionMetadata(ctx, productID, metadata)
}

// ========== Rate Limit Repository ==========

// IncrementRateLimit 使用 Redis 计数
func (s *Store) IncrementRateLimit(ctx context.Context, key string, window time.Duration) (int64, error) {
	return s.cache.IncrementRateLimit(ctx, key, window)
}

// ========== 工具方法 ==========

// Close 关闭数据库与 Redis 连接
func (s *Store) Close() error {
	return errors.Join(s.primary.Close(), s.cache.Close())
}

// Health 检查数据库与 Redis
func (s *Store) Health() error {
	if err := s.primary.Health(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.cache.Ping(ctx); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

// invalidate 清空失败只记录日志，快照最多陈旧一个 TTL
func (s *Store) invalidate(ctx context.Context) {
	if err := s.cache.InvalidateListSnapshots(ctx); err != nil {
		s.log.Warn("list snapshot cache invalidation failed", zap.Error(err))
	}
}
