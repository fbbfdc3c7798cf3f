package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingItem() *InboxItem {
	fp := "bracket.stl|42|65|FDM"
	return &InboxItem{
		ID:          "item-1",
		Fingerprint: fp,
		FileName:    "bracket.stl",
		Grams:       42,
		Time:        65,
		MachineType: MachineTypeFDM,
		Status:      InboxStatusPending,
		CreatedAt:   time.Now().UTC(),
		DedupKey:    &fp,
	}
}

func TestInboxItem_StateMachine(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("绑定后撤销恢复为待处理", func(t *testing.T) {
		item := pendingItem()

		require.NoError(t, item.Link("prod-7", LinkedByOperator, now))
		assert.Equal(t, InboxStatusLinked, item.Status)
		require.NotNil(t, item.LinkedProductID)
		assert.Equal(t, "prod-7", *item.LinkedProductID)
		require.NotNil(t, item.PreviousStatus)
		assert.Equal(t, InboxStatusPending, *item.PreviousStatus)
		assert.Nil(t, item.DedupKey)

		require.NoError(t, item.Unlink())
		assert.Equal(t, InboxStatusPending, item.Status)
		assert.Nil(t, item.LinkedProductID)
		assert.Nil(t, item.LinkedAt)
		assert.Nil(t, item.LinkedBy)
		assert.Nil(t, item.PreviousStatus)
	})

	t.Run("非法迁移", func(t *testing.T) {
		linked := pendingItem()
		require.NoError(t, linked.Link("prod-1", LinkedByOperator, now))
		assert.ErrorIs(t, linked.Link("prod-2", LinkedByOperator, now), ErrInvalidTransition)
		assert.ErrorIs(t, linked.Ignore(), ErrInvalidTransition)

		pending := pendingItem()
		assert.ErrorIs(t, pending.Unlink(), ErrInvalidTransition)

		ignored := pendingItem()
		require.NoError(t, ignored.Ignore())
		assert.ErrorIs(t, ignored.Link("prod-1", LinkedByOperator, now), ErrInvalidTransition)
		assert.ErrorIs(t, ignored.Unlink(), ErrInvalidTransition)
		assert.ErrorIs(t, ignored.Ignore(), ErrInvalidTransition)
	})

	t.Run("生产元数据默认换色次数为0", func(t *testing.T) {
		item := pendingItem()
		meta := item.ProductionMetadata(now)

		assert.Equal(t, 42.0, meta.Grams)
		assert.Equal(t, 65.0, meta.PrintTimeMinutes)
		assert.Equal(t, MachineTypeFDM, meta.MachineType)
		assert.Equal(t, "bracket.stl", meta.FileName)
		assert.Equal(t, 0, meta.MulticolorChanges)
		assert.Equal(t, now, meta.LastSliced)
	})
}
