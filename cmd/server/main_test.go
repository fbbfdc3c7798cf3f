package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"slicinginbox/backend/internal/config"
	"slicinginbox/backend/internal/domain"
)

func TestInitializeStorage_MemorySeedProducts(t *testing.T) {
	cfg := &config.Config{
		Inbox: config.InboxConfig{SeedProducts: []string{"prod-1", "prod-2"}},
	}

	store, err := initializeStorage(testContext(t), cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	t.Run("预置产品可写入生产元数据", func(t *testing.T) {
		err := store.WriteProductionMetadata(testContext(t), "prod-2", domain.ProductionMetadata{Grams: 12})
		assert.NoError(t, err)
	})

	t.Run("未预置的产品不存在", func(t *testing.T) {
		err := store.WriteProductionMetadata(testContext(t), "prod-9", domain.ProductionMetadata{Grams: 12})
		assert.ErrorIs(t, err, domain.ErrProductNotFound)
	})
}
