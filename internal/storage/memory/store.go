package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"slicinginbox/backend/internal/domain"
)

// Store 使用内存保存收件箱条目与产品生产元数据，主要用于开发验证和测试。
type Store struct {
	mu       sync.RWMutex
	items    map[string]*domain.InboxItem // itemID -> item
	claims   map[string]string            // fingerprint -> 持有去重占位的 itemID
	products map[string]*productRecord    // productID -> 产品

	// 速率限制相关
	rateLimits        map[string]*rateLimitEntry
	rateLimitsCleanup time.Time // 下次清理过期速率限制的时间
}

// productRecord 内存中的目录产品，仅保存本子系统写入的 productionData
type productRecord struct {
	ID             string
	ProductionData *domain.ProductionMetadata
}

// rateLimitEntry 速率限制条目
type rateLimitEntry struct {
	Count     int64
	ExpiresAt time.Time
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		items:             make(map[string]*domain.InboxItem),
		claims:            make(map[string]string),
		products:          make(map[string]*productRecord),
		rateLimits:        make(map[string]*rateLimitEntry),
		rateLimitsCleanup: time.Now().Add(5 * time.Minute),
	}
}

// ========== Inbox Repository ==========

// CreatePending 在同一把锁内完成去重检查与写入。
func (s *Store) CreatePending(ctx context.Context, item *domain.InboxItem, freshSince time.Time) (*domain.InboxItem, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, domain.Unavailable("create pending item", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if holderID, ok := s.claims[item.Fingerprint]; ok {
		if holder, exists := s.items[holderID]; exists && holder.Status == domain.InboxStatusPending {
			if holder.CreatedAt.After(freshSince) {
				return cloneItem(holder), false, nil
			}
			// 过期占位：释放后由新条目接管
			holder.DedupKey = nil
		}
		delete(s.claims, item.Fingerprint)
	}

	if _, exists := s.items[item.ID]; exists {
		return nil, false, fmt.Errorf("inbox item %s already exists", item.ID)
	}

	stored := cloneItem(item)
	key := stored.Fingerprint
	stored.DedupKey = &key
	s.items[stored.ID] = stored
	s.claims[stored.Fingerprint] = stored.ID
	return cloneItem(stored), true, nil
}

// CreateItem 直接写入条目（不参与去重）。
func (s *Store) CreateItem(ctx context.Context, item *domain.InboxItem) error {
	if err := ctx.Err(); err != nil {
		return domain.Unavailable("create inbox item", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[item.ID]; exists {
		return fmt.Errorf("inbox item %s already exists", item.ID)
	}
	stored := cloneItem(item)
	stored.DedupKey = nil
	s.items[stored.ID] = stored
	return nil
}

// GetItem 根据 ID 获取条目。
func (s *Store) GetItem(ctx context.Context, id string) (*domain.InboxItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Unavailable("get inbox item", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: inbox item %s", domain.ErrNotFound, id)
	}
	return cloneItem(item), nil
}

// UpdateItemStatus 以 expected 为条件更新生命周期字段。
func (s *Store) UpdateItemStatus(ctx context.Context, item *domain.InboxItem, expected domain.InboxStatus) error {
	if err := ctx.Err(); err != nil {
		return domain.Unavailable("update inbox item", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.items[item.ID]
	if !ok {
		return fmt.Errorf("%w: inbox item %s", domain.ErrNotFound, item.ID)
	}
	if current.Status != expected {
		return fmt.Errorf("%w: inbox item %s is %s", domain.ErrInvalidTransition, item.ID, current.Status)
	}

	current.Status = item.Status
	current.LinkedProductID = cloneString(item.LinkedProductID)
	current.LinkedAt = cloneTime(item.LinkedAt)
	current.LinkedBy = cloneString(item.LinkedBy)
	current.PreviousStatus = cloneStatus(item.PreviousStatus)

	switch {
	case current.Status != domain.InboxStatusPending && current.DedupKey != nil:
		// 离开 pending 即释放去重占位
		if s.claims[current.Fingerprint] == current.ID {
			delete(s.claims, current.Fingerprint)
		}
		current.DedupKey = nil
	case current.Status == domain.InboxStatusPending && expected != domain.InboxStatusPending:
		s.reclaim(current)
	}
	return nil
}

// reclaim 撤销绑定回到 pending 的条目重新持有去重占位；占位始终属于同指纹最新的待处理条目
func (s *Store) reclaim(item *domain.InboxItem) {
	if holderID, ok := s.claims[item.Fingerprint]; ok && holderID != item.ID {
		if holder, exists := s.items[holderID]; exists {
			if !holder.CreatedAt.Before(item.CreatedAt) {
				return
			}
			holder.DedupKey = nil
		}
	}
	key := item.Fingerprint
	item.DedupKey = &key
	s.claims[item.Fingerprint] = item.ID
}

// ListItemsByStatus 按状态列出条目。
func (s *Store) ListItemsByStatus(ctx context.Context, status domain.InboxStatus, limit int) ([]domain.InboxItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Unavailable("list inbox items", err)
	}

	s.mu.RLock()
	result := make([]domain.InboxItem, 0)
	for _, item := range s.items {
		if item.Status == status {
			result = append(result, *cloneItem(item))
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		if status == domain.InboxStatusLinked {
			return sortTime(result[i].LinkedAt, result[i].CreatedAt).After(sortTime(result[j].LinkedAt, result[j].CreatedAt))
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// CountItemsByFingerprint 统计指定指纹的条目数量（测试与诊断用）
func (s *Store) CountItemsByFingerprint(fingerprint string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, item := range s.items {
		if item.Fingerprint == fingerprint {
			count++
		}
	}
	return count
}

// ========== Product Repository ==========

// SaveProduct 登记一个目录产品（内存模式下的产品目录种子）
func (s *Store) SaveProduct(productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[productID]; !ok {
		s.products[productID] = &productRecord{ID: productID}
	}
}

// WriteProductionMetadata 整体替换产品的 productionData。
func (s *Store) WriteProductionMetadata(ctx context.Context, productID string, metadata domain.ProductionMetadata) error {
	if err := ctx.Err(); err != nil {
		return domain.Unavailable("write production metadata", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[productID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
	}
	meta := metadata
	product.ProductionData = &meta
	return nil
}

// GetProductionMetadata 读取产品当前的 productionData
func (s *Store) GetProductionMetadata(productID string) (*domain.ProductionMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[productID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
	}
	if product.ProductionData == nil {
		return nil, nil
	}
	meta := *product.ProductionData
	return &meta, nil
}

// ========== Rate Limit Repository ==========

// IncrementRateLimit 固定窗口计数
func (s *Store) IncrementRateLimit(ctx context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if now.After(s.rateLimitsCleanup) {
		for k, entry := range s.rateLimits {
			if now.After(entry.ExpiresAt) {
				delete(s.rateLimits, k)
			}
		}
		s.rateLimitsCleanup = now.Add(5 * time.Minute)
	}

	entry, ok := s.rateLimits[key]
	if !ok || now.After(entry.ExpiresAt) {
		entry = &rateLimitEntry{ExpiresAt: now.Add(window)}
		s.rateLimits[key] = entry
	}
	entry.Count++
	return entry.Count, nil
}

// ========== 工具方法 ==========

// Close 内存存储无需释放资源
func (s *Store) Close() error {
	return nil
}

// Health 内存存储始终健康
func (s *Store) Health() error {
	return nil
}

func sortTime(primary *time.Time, fallback time.Time) time.Time {
	if primary != nil {
		return *primary
	}
	return fallback
}

func cloneItem(item *domain.InboxItem) *domain.InboxItem {
	if item == nil {
		return nil
	}
	out := *item
	out.LinkedProductID = cloneString(item.LinkedProductID)
	out.LinkedAt = cloneTime(item.LinkedAt)
	out.LinkedBy = cloneString(item.LinkedBy)
	out.PreviousStatus = cloneStatus(item.PreviousStatus)
	out.DedupKey = cloneString(item.DedupKey)
	return &out
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneStatus(v *domain.InboxStatus) *domain.InboxStatus {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
