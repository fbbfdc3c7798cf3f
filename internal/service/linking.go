package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"slicinginbox/backend/internal/domain"
	"slicinginbox/backend/internal/monitoring"
)

// LinkingService 负责收件箱条目的绑定、撤销绑定与忽略。
type LinkingService struct {
	inbox     domain.InboxStore
	products  domain.ProductStore
	log       *zap.Logger
	metrics   *monitoring.Metrics
	publisher domain.EventPublisher
	now       func() time.Time
}

// NewLinkingService 创建绑定服务。
func NewLinkingService(inbox domain.InboxStore, products domain.ProductStore, log *zap.Logger) *LinkingService {
	if log == nil {
		log = zap.NewNop()
	}
	return &LinkingService{
		inbox:    inbox,
		products: products,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetMetrics 设置监控指标
func (s *LinkingService) SetMetrics(metrics *monitoring.Metrics) {
	s.metrics = metrics
}

// SetPublisher 设置事件发布者
func (s *LinkingService) SetPublisher(publisher domain.EventPublisher) {
	s.publisher = publisher
}

// Link 将待处理条目绑定到目录产品。
//
// 先写产品生产元数据，成功后才迁移条目状态；写入失败时整个操作失败，条目保持 pending。
// 产品写入成功而状态迁移失败（并发操作抢先）时，产品元数据不会回滚。
func (s *LinkingService) Link(ctx context.Context, inboxID, productID string) (*domain.InboxItem, error) {
	if productID == "" {
		return nil, fmt.Errorf("%w: productId is required", domain.ErrInvalidEvent)
	}

	item, err := s.inbox.GetItem(ctx, inboxID)
	if err != nil {
		return nil, s.fail("link", err)
	}
	if item.Status != domain.InboxStatusPending {
		return nil, s.fail("link", fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, item.Status, domain.InboxStatusLinked))
	}

	now := s.now()
	if err := s.products.WriteProductionMetadata(ctx, productID, item.ProductionMetadata(now)); err != nil {
		s.metrics.RecordProductSyncError(domain.LinkedByOperator)
		s.log.Warn("production metadata sync failed",
			zap.String("inboxId", inboxID),
			zap.String("productId", productID),
			zap.Error(err),
		)
		if errors.Is(err, domain.ErrProductNotFound) {
			return nil, s.fail("link", fmt.Errorf("%w: %w", domain.ErrNotFound, err))
		}
		return nil, s.fail("link", fmt.Errorf("%w: %w", domain.ErrProductSyncFailed, err))
	}

	if err := item.Link(productID, domain.LinkedByOperator, now); err != nil {
		return nil, s.fail("link", err)
	}
	if err := s.inbox.UpdateItemStatus(ctx, item, domain.InboxStatusPending); err != nil {
		return nil, s.fail("link", err)
	}

	s.log.Info("inbox item linked",
		zap.String("inboxId", inboxID),
		zap.String("productId", productID),
	)
	s.done("link", domain.InboxEventLinked, item)
	return item, nil
}

// Unlink 撤销绑定，恢复到绑定前的状态。不修改产品的生产元数据。
func (s *LinkingService) Unlink(ctx context.Context, inboxID string) (*domain.InboxItem, error) {
	item, err := s.inbox.GetItem(ctx, inboxID)
	if err != nil {
		return nil, s.fail("unlink", err)
	}
	if err := item.Unlink(); err != nil {
		return nil, s.fail("unlink", err)
	}
	if err := s.inbox.UpdateItemStatus(ctx, item, domain.InboxStatusLinked); err != nil {
		return nil, s.fail("unlink", err)
	}

	s.log.Info("inbox item unlinked", zap.String("inboxId", inboxID))
	s.done("unlink", domain.InboxEventUnlinked, item)
	return item, nil
}

// Ignore 忽略待处理条目（终态）。
func (s *LinkingService) Ignore(ctx context.Context, inboxID string) (*domain.InboxItem, error) {
	item, err := s.inbox.GetItem(ctx, inboxID)
	if err != nil {
		return nil, s.fail("ignore", err)
	}
	if err := item.Ignore(); err != nil {
		return nil, s.fail("ignore", err)
	}
	if err := s.inbox.UpdateItemStatus(ctx, item, domain.InboxStatusPending); err != nil {
		return nil, s.fail("ignore", err)
	}

	s.log.Info("inbox item ignored", zap.String("inboxId", inboxID))
	s.done("ignore", domain.InboxEventIgnored, item)
	return item, nil
}

func (s *LinkingService) fail(action string, err error) error {
	s.metrics.RecordTransition(action, "error")
	return err
}

func (s *LinkingService) done(action string, eventType domain.InboxEventType, item *domain.InboxItem) {
	s.metrics.RecordTransition(action, "ok")
	if s.publisher != nil {
		s.publisher.Publish(domain.InboxEvent{Type: eventType, Item: *item, Timestamp: s.now()})
	}
}
