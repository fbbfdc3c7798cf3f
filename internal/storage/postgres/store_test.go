package postgres

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"slicinginbox/backend/internal/config"
	"slicinginbox/backend/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	store, err := NewStoreWithDialector(sqlite.Open(dsn), config.DatabaseConfig{MaxOpenConns: 1, MaxIdleConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func pendingItem(id, fingerprint string, createdAt time.Time) *domain.InboxItem {
	return &domain.InboxItem{
		ID:          id,
		Fingerprint: fingerprint,
		FileName:    "bracket.stl",
		Grams:       42,
		Time:        65,
		MachineType: domain.MachineTypeFDM,
		Source:      domain.SourceSlicerHook,
		Status:      domain.InboxStatusPending,
		CreatedAt:   createdAt,
	}
}

func TestStore_CreatePending(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	window := 30 * time.Minute

	first, created, err := store.CreatePending(ctx, pendingItem("a", "fp", now), now.Add(-window))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "a", first.ID)

	later := now.Add(5 * time.Minute)
	dup, created, err := store.CreatePending(ctx, pendingItem("b", "fp", later), later.Add(-window))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "a", dup.ID)

	muchLater := now.Add(45 * time.Minute)
	fresh, created, err := store.CreatePending(ctx, pendingItem("c", "fp", muchLater), muchLater.Add(-window))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "c", fresh.ID)

	old, err := store.GetItem(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, old.DedupKey)
	assert.Equal(t, domain.InboxStatusPending, old.Status)

	_, err = store.GetItem(ctx, "b")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_DedupKeyUnique(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()

	key := "fp"
	a := pendingItem("a", key, now)
	a.DedupKey = &key
	require.NoError(t, store.db.Create(a).Error)

	b := pendingItem("b", key, now)
	b.DedupKey = &key
	err := store.db.Create(b).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	// 未持有占位的条目不受唯一索引约束
	require.NoError(t, store.CreateItem(context.Background(), pendingItem("c", key, now)))
	require.NoError(t, store.CreateItem(context.Background(), pendingItem("d", key, now)))
}

func TestStore_UpdateItemStatus(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	_, _, err := store.CreatePending(ctx, pendingItem("a", "fp", now), now.Add(-time.Hour))
	require.NoError(t, err)

	item, err := store.GetItem(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, item.Link("prod-7", domain.LinkedByOperator, now))

	t.Run("按预期状态更新", func(t *testing.T) {
		require.NoError(t, store.UpdateItemStatus(ctx, item, domain.InboxStatusPending))

		stored, err := store.GetItem(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, domain.InboxStatusLinked, stored.Status)
		require.NotNil(t, stored.LinkedProductID)
		assert.Equal(t, "prod-7", *stored.LinkedProductID)
		require.NotNil(t, stored.PreviousStatus)
		assert.Equal(t, domain.InboxStatusPending, *stored.PreviousStatus)
		assert.Nil(t, stored.DedupKey)
	})

	t.Run("状态已变化", func(t *testing.T) {
		err := store.UpdateItemStatus(ctx, item, domain.InboxStatusPending)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("条目不存在", func(t *testing.T) {
		err := store.UpdateItemStatus(ctx, pendingItem("missing", "fp", now), domain.InboxStatusPending)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("撤销绑定清空绑定字段", func(t *testing.T) {
		require.NoError(t, item.Unlink())
		require.NoError(t, store.UpdateItemStatus(ctx, item, domain.InboxStatusLinked))

		stored, err := store.GetItem(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, domain.InboxStatusPending, stored.Status)
		assert.Nil(t, stored.LinkedProductID)
		assert.Nil(t, stored.LinkedAt)
		assert.Nil(t, stored.LinkedBy)
		assert.Nil(t, stored.PreviousStatus)
	})
}

func TestStore_UnlinkReclaimsDedupKey(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	window := 30 * time.Minute

	t.Run("绑定再撤销后重复提交返回原条目", func(t *testing.T) {
		store := newTestStore(t)
		_, _, err := store.CreatePending(ctx, pendingItem("a", "fp", now), now.Add(-window))
		require.NoError(t, err)

		item, err := store.GetItem(ctx, "a")
		require.NoError(t, err)
		require.NoError(t, item.Link("prod-7", domain.LinkedByOperator, now))
		require.NoError(t, store.UpdateItemStatus(ctx, item, domain.InboxStatusPending))
		require.NoError(t, item.Unlink())
		require.NoError(t, store.UpdateItemStatus(ctx, item, domain.InboxStatusLinked))

		stored, err := store.GetItem(ctx, "a")
		require.NoError(t, err)
		require.NotNil(t, stored.DedupKey)
		assert.Equal(t, "fp", *stored.DedupKey)

		later := now.Add(5 * time.Minute)
		dup, created, err := store.CreatePending(ctx, pendingItem("b", "fp", later), later.Add(-window))
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, "a", dup.ID)

		pending, err := store.ListItemsByStatus(ctx, domain.InboxStatusPending, 0)
		require.NoError(t, err)
		assert.Len(t, pending, 1)
	})

	t.Run("较新的待处理条目保留占位", func(t *testing.T) {
		store := newTestStore(t)
		_, _, err := store.CreatePending(ctx, pendingItem("a", "fp", now), now.Add(-window))
		require.NoError(t, err)

		item, err := store.GetItem(ctx, "a")
		require.NoError(t, err)
		require.NoError(t, item.Link("prod-7", domain.LinkedByOperator, now))
		require.NoError(t, store.UpdateItemStatus(ctx, item, domain.InboxStatusPending))

		later := now.Add(5 * time.Minute)
		_, created, err := store.CreatePending(ctx, pendingItem("b", "fp", later), later.Add(-window))
		require.NoError(t, err)
		require.True(t, created)

		require.NoError(t, item.Unlink())
		require.NoError(t, store.UpdateItemStatus(ctx, item, domain.InboxStatusLinked))

		stored, err := store.GetItem(ctx, "a")
		require.NoError(t, err)
		assert.Nil(t, stored.DedupKey)

		dup, created, err := store.CreatePending(ctx, pendingItem("c", "fp", later), later.Add(-window))
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, "b", dup.ID)
	})

	t.Run("撤销的条目比旧占位者新时接管占位", func(t *testing.T) {
		store := newTestStore(t)
		_, _, err := store.CreatePending(ctx, pendingItem("old", "fp", now.Add(-40*time.Minute)), now.Add(-time.Hour))
		require.NoError(t, err)

		auto := pendingItem("auto", "fp", now)
		require.NoError(t, auto.Link("prod-7", domain.LinkedByAutomated, now))
		require.NoError(t, store.CreateItem(ctx, auto))
		require.NoError(t, auto.Unlink())
		require.NoError(t, store.UpdateItemStatus(ctx, auto, domain.InboxStatusLinked))

		old, err := store.GetItem(ctx, "old")
		require.NoError(t, err)
		assert.Nil(t, old.DedupKey)

		later := now.Add(5 * time.Minute)
		dup, created, err := store.CreatePending(ctx, pendingItem("d", "fp", later), later.Add(-window))
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, "auto", dup.ID)
	})
}

func TestStore_ListItemsByStatus(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		item := pendingItem(fmt.Sprintf("p%d", i), fmt.Sprintf("fp-%d", i), base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, store.CreateItem(ctx, item))
	}

	first := pendingItem("l1", "fp-l1", base)
	require.NoError(t, first.Link("prod-1", domain.LinkedByOperator, base.Add(time.Hour)))
	require.NoError(t, store.CreateItem(ctx, first))

	second := pendingItem("l2", "fp-l2", base)
	require.NoError(t, second.Link("prod-2", domain.LinkedByAutomated, base.Add(2*time.Hour)))
	require.NoError(t, store.CreateItem(ctx, second))

	pending, err := store.ListItemsByStatus(ctx, domain.InboxStatusPending, 2)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "p2", pending[0].ID)
	assert.Equal(t, "p1", pending[1].ID)

	linked, err := store.ListItemsByStatus(ctx, domain.InboxStatusLinked, 20)
	require.NoError(t, err)
	require.Len(t, linked, 2)
	assert.Equal(t, "l2", linked[0].ID)
	assert.Equal(t, "l1", linked[1].ID)

	ignored, err := store.ListItemsByStatus(ctx, domain.InboxStatusIgnored, 20)
	require.NoError(t, err)
	assert.Empty(t, ignored)
}

func TestStore_WriteProductionMetadata(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.SaveProduct(ctx, "prod-7"))

	meta, err := store.GetProductionMetadata(ctx, "prod-7")
	require.NoError(t, err)
	assert.Nil(t, meta)

	layers := 120
	written := domain.ProductionMetadata{
		LastSliced:       time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
		Grams:            42,
		PrintTimeMinutes: 65,
		MachineType:      domain.MachineTypeFDM,
		FileName:         "bracket.stl",
		TotalLayers:      &layers,
	}
	require.NoError(t, store.WriteProductionMetadata(ctx, "prod-7", written))

	meta, err = store.GetProductionMetadata(ctx, "prod-7")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, 42.0, meta.Grams)
	assert.Equal(t, 65.0, meta.PrintTimeMinutes)
	require.NotNil(t, meta.TotalLayers)
	assert.Equal(t, 120, *meta.TotalLayers)

	err = store.WriteProductionMetadata(ctx, "missing", written)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}
