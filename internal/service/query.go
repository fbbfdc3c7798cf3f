package service

import (
	"context"

	"slicinginbox/backend/internal/config"
	"slicinginbox/backend/internal/domain"
)

// QueryService 提供只读的收件箱列表查询。
type QueryService struct {
	inbox domain.InboxStore
	cfg   config.InboxConfig
}

// NewQueryService 创建查询服务。
func NewQueryService(inbox domain.InboxStore, cfg config.InboxConfig) *QueryService {
	return &QueryService{inbox: inbox, cfg: cfg}
}

// ListPending 按创建时间倒序列出待处理条目
func (s *QueryService) ListPending(ctx context.Context) ([]domain.InboxItem, error) {
	return s.inbox.ListItemsByStatus(ctx, domain.InboxStatusPending, s.cfg.PendingLimit)
}

// ListLinked 按绑定时间倒序列出已绑定条目
func (s *QueryService) ListLinked(ctx context.Context) ([]domain.InboxItem, error) {
	return s.inbox.ListItemsByStatus(ctx, domain.InboxStatusLinked, s.cfg.LinkedLimit)
}

// GetItem 获取单个条目详情
func (s *QueryService) GetItem(ctx context.Context, id string) (*domain.InboxItem, error) {
	return s.inbox.GetItem(ctx, id)
}
