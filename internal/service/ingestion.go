package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"slicinginbox/backend/internal/config"
	"slicinginbox/backend/internal/domain"
	"slicinginbox/backend/internal/monitoring"
)

// maxCreateAttempts 并发创建撞上去重占位时的最大尝试次数
const maxCreateAttempts = 3

// IngestionService 接收切片事件，完成去重与初始状态判定。
type IngestionService struct {
	inbox     domain.InboxStore
	products  domain.ProductStore
	cfg       config.InboxConfig
	log       *zap.Logger
	metrics   *monitoring.Metrics
	publisher domain.EventPublisher
	now       func() time.Time
	newID     func() string
}

// NewIngestionService 创建摄取服务。
func NewIngestionService(inbox domain.InboxStore, products domain.ProductStore, cfg config.InboxConfig, log *zap.Logger) *IngestionService {
	if log == nil {
		log = zap.NewNop()
	}
	return &IngestionService{
		inbox:    inbox,
		products: products,
		cfg:      cfg,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// SetMetrics 设置监控指标
func (s *IngestionService) SetMetrics(metrics *monitoring.Metrics) {
	s.metrics = metrics
}

// SetPublisher 设置事件发布者（实时推送）
func (s *IngestionService) SetPublisher(publisher domain.EventPublisher) {
	s.publisher = publisher
}

// CreateResult 创建结果
type CreateResult struct {
	Item      *domain.InboxItem
	Duplicate bool
	// SyncWarning 自动绑定时写入生产元数据失败的原因，条目本身已经创建
	SyncWarning error
}

// CreateItem 接收一次切片事件。
//
// 未指定 LinkedProductID 时，去重窗口内已有同指纹的待处理条目则直接返回该条目；
// 指定了 LinkedProductID 时视为可信的自动绑定，跳过去重，直接以 linked 状态创建，
// 生产元数据写入失败只记录告警，不影响条目创建。
func (s *IngestionService) CreateItem(ctx context.Context, input *domain.CreateInboxItemInput) (*CreateResult, error) {
	start := time.Now()

	if err := domain.ValidateCreateInput(input); err != nil {
		s.metrics.RecordIngest("invalid", time.Since(start))
		return nil, err
	}
	fingerprint, err := domain.Fingerprint(input)
	if err != nil {
		s.metrics.RecordIngest("invalid", time.Since(start))
		return nil, err
	}

	var result *CreateResult
	if input.LinkedProductID != "" {
		result, err = s.createLinked(ctx, input, fingerprint)
	} else {
		result, err = s.createPending(ctx, input, fingerprint)
	}
	if err != nil {
		s.metrics.RecordIngest("error", time.Since(start))
		return nil, err
	}

	outcome := "created"
	switch {
	case result.Duplicate:
		outcome = "duplicate"
	case result.Item.Status == domain.InboxStatusLinked:
		outcome = "auto_linked"
	}
	s.metrics.RecordIngest(outcome, time.Since(start))

	if !result.Duplicate {
		s.publish(domain.InboxEventCreated, result.Item)
	}
	return result, nil
}

// createPending 走去重路径。并发创建者同时抢占占位时，落败者重新读取胜出者。
func (s *IngestionService) createPending(ctx context.Context, input *domain.CreateInboxItemInput, fingerprint string) (*CreateResult, error) {
	var lastErr error
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		now := s.now()
		item := s.newItem(input, fingerprint, now)

		stored, created, err := s.inbox.CreatePending(ctx, item, now.Add(-s.cfg.DedupWindow))
		if err == nil {
			if !created {
				s.log.Debug("duplicate slicing event within dedup window",
					zap.String("inboxId", stored.ID),
					zap.String("fingerprint", fingerprint),
				)
			}
			return &CreateResult{Item: stored, Duplicate: !created}, nil
		}
		if !errors.Is(err, domain.ErrDedupConflict) {
			return nil, err
		}
		lastErr = err
		s.metrics.RecordDedupRetry()
	}
	return nil, domain.Unavailable("create pending item", fmt.Errorf("gave up after %d attempts: %w", maxCreateAttempts, lastErr))
}

// createLinked 自动绑定路径：先尽力同步产品，再写入条目。
func (s *IngestionService) createLinked(ctx context.Context, input *domain.CreateInboxItemInput, fingerprint string) (*CreateResult, error) {
	now := s.now()
	item := s.newItem(input, fingerprint, now)
	if err := item.Link(input.LinkedProductID, domain.LinkedByAutomated, now); err != nil {
		return nil, err
	}

	result := &CreateResult{Item: item}
	if err := s.products.WriteProductionMetadata(ctx, input.LinkedProductID, item.ProductionMetadata(now)); err != nil {
		s.metrics.RecordProductSyncError(domain.LinkedByAutomated)
		s.log.Warn("auto-link production metadata sync failed",
			zap.String("inboxId", item.ID),
			zap.String("productId", input.LinkedProductID),
			zap.Error(err),
		)
		result.SyncWarning = fmt.Errorf("%w: %w", domain.ErrProductSyncFailed, err)
	}

	if err := s.inbox.CreateItem(ctx, item); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *IngestionService) newItem(input *domain.CreateInboxItemInput, fingerprint string, now time.Time) *domain.InboxItem {
	source := input.Source
	if source == "" {
		source = domain.SourceManual
	}
	name := input.Name
	if name == "" {
		name = input.FileName
	}
	return &domain.InboxItem{
		ID:                   s.newID(),
		Fingerprint:          fingerprint,
		Name:                 name,
		FileName:             input.FileName,
		Source:               source,
		ScriptVersion:        input.ScriptVersion,
		Grams:                *input.Grams,
		Time:                 *input.Time,
		MachineType:          input.MachineType,
		FilamentType:         input.FilamentType,
		QualityProfile:       input.QualityProfile,
		PrinterModel:         input.PrinterModel,
		NozzleDiameter:       input.NozzleDiameter,
		TotalLayers:          input.TotalLayers,
		FilamentLengthMeters: input.FilamentLengthMeters,
		MulticolorChanges:    input.MulticolorChanges,
		FileSize:             input.FileSize,
		FileTimestamp:        input.FileTimestamp,
		Status:               domain.InboxStatusPending,
		CreatedAt:            now,
	}
}

func (s *IngestionService) publish(eventType domain.InboxEventType, item *domain.InboxItem) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(domain.InboxEvent{Type: eventType, Item: *item, Timestamp: s.now()})
}
