package httptransport

import (
	"errors"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"slicinginbox/backend/internal/domain"
	"slicinginbox/backend/internal/service"
)

// InboxHandler 操作员收件箱接口
type InboxHandler struct {
	ingestion *service.IngestionService
	linking   *service.LinkingService
	query     *service.QueryService
	log       *zap.Logger
}

// NewInboxHandler 创建收件箱处理器
func NewInboxHandler(ingestion *service.IngestionService, linking *service.LinkingService, query *service.QueryService, log *zap.Logger) *InboxHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &InboxHandler{ingestion: ingestion, linking: linking, query: query, log: log}
}

// InboxListResponse 列表响应
type InboxListResponse struct {
	Items []domain.InboxItem `json:"items"`
	Count int                `json:"count"`
}

// LinkRequest 绑定请求
type LinkRequest struct {
	ProductID string `json:"productId"`
}

// CreateInboxResponse 手动录入结果
type CreateInboxResponse struct {
	Item        *domain.InboxItem `json:"item"`
	Duplicate   bool              `json:"duplicate"`
	SyncWarning string            `json:"syncWarning,omitempty"`
}

func listResponse(items []domain.InboxItem) InboxListResponse {
	if items == nil {
		items = []domain.InboxItem{}
	}
	return InboxListResponse{Items: items, Count: len(items)}
}

// ListPending 列出待处理条目
// @Summary 待处理条目
// @Tags Inbox
// @Produce json
// @Success 200 {object} Response{data=InboxListResponse}
// @Router /v1/inbox/pending [get]
func (h *InboxHandler) ListPending(c *gin.Context) {
	items, err := h.query.ListPending(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Success(c, listResponse(items))
}

// ListLinked 列出最近绑定的条目
// @Summary 最近绑定条目
// @Tags Inbox
// @Produce json
// @Success 200 {object} Response{data=InboxListResponse}
// @Router /v1/inbox/linked [get]
func (h *InboxHandler) ListLinked(c *gin.Context) {
	items, err := h.query.ListLinked(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Success(c, listResponse(items))
}

// GetItem 获取条目详情
// @Summary 条目详情
// @Tags Inbox
// @Produce json
// @Param id path string true "条目ID"
// @Success 200 {object} Response{data=domain.InboxItem}
// @Failure 404 {object} Response
// @Router /v1/inbox/{id} [get]
func (h *InboxHandler) GetItem(c *gin.Context) {
	item, err := h.query.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Success(c, item)
}

// Create 手动录入切片事件
// @Summary 手动录入
// @Tags Inbox
// @Accept json
// @Produce json
// @Param request body domain.CreateInboxItemInput true "切片事件"
// @Success 201 {object} Response{data=CreateInboxResponse}
// @Success 200 {object} Response{data=CreateInboxResponse} "去重窗口内的重复提交"
// @Failure 400 {object} Response
// @Router /v1/inbox [post]
func (h *InboxHandler) Create(c *gin.Context) {
	var input domain.CreateInboxItemInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, MsgInvalidJSON)
		return
	}
	if input.Source == "" {
		input.Source = domain.SourceManual
	}

	result, err := h.ingestion.CreateItem(c.Request.Context(), &input)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	resp := CreateInboxResponse{Item: result.Item, Duplicate: result.Duplicate}
	if result.SyncWarning != nil {
		resp.SyncWarning = result.SyncWarning.Error()
	}
	if result.Duplicate {
		SuccessWithMsg(c, "重复提交，返回已有条目", resp)
		return
	}
	Created(c, resp)
}

// Link 绑定到目录产品
// @Summary 绑定产品
// @Tags Inbox
// @Accept json
// @Produce json
// @Param id path string true "条目ID"
// @Param request body LinkRequest true "目标产品"
// @Success 200 {object} Response{data=domain.InboxItem}
// @Failure 404 {object} Response
// @Failure 409 {object} Response
// @Failure 502 {object} Response
// @Router /v1/inbox/{id}/link [post]
func (h *InboxHandler) Link(c *gin.Context) {
	var req LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(c, MsgInvalidJSON)
		return
	}
	productID := strings.TrimSpace(req.ProductID)
	if productID == "" {
		BadRequest(c, MsgProductIDMissing)
		return
	}

	item, err := h.linking.Link(c.Request.Context(), c.Param("id"), productID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	SuccessWithMsg(c, "绑定成功", item)
}

// Unlink 撤销绑定
// @Summary 撤销绑定
// @Tags Inbox
// @Produce json
// @Param id path string true "条目ID"
// @Success 200 {object} Response{data=domain.InboxItem}
// @Failure 404 {object} Response
// @Failure 409 {object} Response
// @Router /v1/inbox/{id}/unlink [post]
func (h *InboxHandler) Unlink(c *gin.Context) {
	item, err := h.linking.Unlink(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	SuccessWithMsg(c, "已撤销绑定", item)
}

// Ignore 忽略条目
// @Summary 忽略条目
// @Tags Inbox
// @Produce json
// @Param id path string true "条目ID"
// @Success 200 {object} Response{data=domain.InboxItem}
// @Failure 404 {object} Response
// @Failure 409 {object} Response
// @Router /v1/inbox/{id}/ignore [post]
func (h *InboxHandler) Ignore(c *gin.Context) {
	item, err := h.linking.Ignore(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	SuccessWithMsg(c, "已忽略", item)
}
