package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"slicinginbox/backend/internal/config"
	"slicinginbox/backend/internal/domain"
)

// Store 基于 GORM 的收件箱与目录产品存储，支持 PostgreSQL 和 MySQL。
type Store struct {
	db *gorm.DB
}

// NewStore 创建 PostgreSQL 存储实例
func NewStore(cfg config.DatabaseConfig) (*Store, error) {
	return NewStoreWithDialector(postgres.Open(cfg.DSN), cfg)
}

// NewMySQLStore 创建 MySQL 存储实例
func NewMySQLStore(cfg config.DatabaseConfig) (*Store, error) {
	return NewStoreWithDialector(mysql.Open(cfg.DSN), cfg)
}

// NewStoreWithDialector 使用指定的 GORM dialector 创建存储实例
func NewStoreWithDialector(dialector gorm.Dialector, cfg config.DatabaseConfig) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		// 唯一索引冲突翻译为 gorm.ErrDuplicatedKey
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// migrate 自动迁移数据库表结构
func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&domain.InboxItem{},
		&Product{},
	)
}

// ========== Inbox Repository ==========

// CreatePending 在一个事务内完成去重检查与写入。
//
// 唯一索引 uq_inbox_dedup_key 保证同一指纹至多一个占位者；并发写入落败时返回
// domain.ErrDedupConflict，由调用方重新读取胜出的条目。
func (s *Store) CreatePending(ctx context.Context, item *domain.InboxItem, freshSince time.Time) (*domain.InboxItem, bool, error) {
	var existing *domain.InboxItem

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var holder domain.InboxItem
		err := tx.Where("dedup_key = ?", item.Fingerprint).Take(&holder).Error
		switch {
		case err == nil:
			if holder.CreatedAt.After(freshSince) {
				existing = &holder
				return nil
			}
			// 过期占位：释放后由新条目接管
			release := tx.Model(&domain.InboxItem{}).
				Where("id = ? AND dedup_key = ?", holder.ID, item.Fingerprint).
				Update("dedup_key", nil)
			if release.Error != nil {
				return release.Error
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return err
		}

		key := item.Fingerprint
		item.DedupKey = &key
		return tx.Create(item).Error
	})
	if err != nil {
		item.DedupKey = nil
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, false, fmt.Errorf("%w: %s", domain.ErrDedupConflict, item.Fingerprint)
		}
		return nil, false, domain.Unavailable("create pending item", err)
	}
	if existing != nil {
		return existing, false, nil
	}
	return item, true, nil
}

// CreateItem 直接写入条目（不参与去重）
func (s *Store) CreateItem(ctx context.Context, item *domain.InboxItem) error {
	item.DedupKey = nil
	if err := s.db.WithContext(ctx).Create(item).Error; err != nil {
		return domain.Unavailable("create inbox item", err)
	}
	return nil
}

// GetItem 根据 ID 获取条目
func (s *Store) GetItem(ctx context.Context, id string) (*domain.InboxItem, error) {
	var item domain.InboxItem
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: inbox item %s", domain.ErrNotFound, id)
		}
		return nil, domain.Unavailable("get inbox item", err)
	}
	return &item, nil
}

// UpdateItemStatus 条件更新：WHERE id = ? AND status = expected
func (s *Store) UpdateItemStatus(ctx context.Context, item *domain.InboxItem, expected domain.InboxStatus) error {
	updates := map[string]interface{}{
		"status":            item.Status,
		"linked_product_id": item.LinkedProductID,
		"linked_at":         item.LinkedAt,
		"linked_by":         item.LinkedBy,
		"previous_status":   item.PreviousStatus,
	}
	if item.Status != domain.InboxStatusPending {
		updates["dedup_key"] = nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&domain.InboxItem{}).
			Where("id = ? AND status = ?", item.ID, expected).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errStatusChanged
		}
		if item.Status != domain.InboxStatusPending || expected == domain.InboxStatusPending {
			return nil
		}

		// 回到 pending 时尝试重新占位；并发创建者已抢到占位时保留对方
		err := tx.Transaction(func(sp *gorm.DB) error {
			return reclaim(sp, item)
		})
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil
		}
		return err
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errStatusChanged):
		current, getErr := s.GetItem(ctx, item.ID)
		if getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: inbox item %s is %s", domain.ErrInvalidTransition, item.ID, current.Status)
	default:
		return domain.Unavailable("update inbox item", err)
	}
}

var errStatusChanged = errors.New("inbox item status changed")

// reclaim 让回到 pending 的条目重新持有去重占位；占位始终属于同指纹最新的待处理条目
func reclaim(tx *gorm.DB, item *domain.InboxItem) error {
	var holder domain.InboxItem
	err := tx.Select("id", "created_at").Where("dedup_key = ?", item.Fingerprint).Take(&holder).Error
	switch {
	case err == nil:
		if holder.ID == item.ID || !holder.CreatedAt.Before(item.CreatedAt) {
			return nil
		}
		release := tx.Model(&domain.InboxItem{}).
			Where("id = ? AND dedup_key = ?", holder.ID, item.Fingerprint).
			Update("dedup_key", nil)
		if release.Error != nil {
			return release.Error
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return err
	}

	key := item.Fingerprint
	if err := tx.Model(&domain.InboxItem{}).Where("id = ?", item.ID).Update("dedup_key", key).Error; err != nil {
		return err
	}
	item.DedupKey = &key
	return nil
}

// ListItemsByStatus 按状态列出条目
func (s *Store) ListItemsByStatus(ctx context.Context, status domain.InboxStatus, limit int) ([]domain.InboxItem, error) {
	order := "created_at DESC"
	if status == domain.InboxStatusLinked {
		order = "linked_at DESC"
	}

	query := s.db.WithContext(ctx).Where("status = ?", status).Order(order)
	if limit > 0 {
		query = query.Limit(limit)
	}

	items := make([]domain.InboxItem, 0)
	if err := query.Find(&items).Error; err != nil {
		return nil, domain.Unavailable("list inbox items", err)
	}
	return items, nil
}

// ========== 工具方法 ==========

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 检查数据库连接
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}
