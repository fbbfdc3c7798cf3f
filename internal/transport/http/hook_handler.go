package httptransport

import (
	"bytes"
	"crypto/subtle"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"
	"golang.org/x/text/message"

	"slicinginbox/backend/internal/domain"
	"slicinginbox/backend/internal/monitoring"
	"slicinginbox/backend/internal/service"
)

// SlicerTokenHeader 上报令牌也可以放在请求头中
const SlicerTokenHeader = "X-Slicer-Token"

const hookSchemaURL = "slicer_hook.schema.json"

//go:embed slicer_hook.schema.json
var hookSchemaJSON []byte

// slicerHookRequest 切片脚本上报的请求体
type slicerHookRequest struct {
	SecretToken string `json:"secret_token"`
	Target      string `json:"target"`
	domain.CreateInboxItemInput
}

// HookResponse 上报结果
type HookResponse struct {
	ID        string `json:"id"`
	Duplicate bool   `json:"duplicate"`
}

// HookHandler 处理切片软件脚本的上报
type HookHandler struct {
	ingestion *service.IngestionService
	secret    []byte
	schema    *jsonschema.Schema
	printer   *message.Printer
	log       *zap.Logger
	metrics   *monitoring.Metrics
}

// NewHookHandler 创建上报处理器，编译内嵌的 JSON Schema
func NewHookHandler(ingestion *service.IngestionService, secret string, log *zap.Logger, metrics *monitoring.Metrics) (*HookHandler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	schema, err := compileHookSchema()
	if err != nil {
		return nil, err
	}
	printer, err := newSchemaPrinter()
	if err != nil {
		return nil, fmt.Errorf("failed to build schema message catalog: %w", err)
	}
	return &HookHandler{
		ingestion: ingestion,
		secret:    []byte(secret),
		schema:    schema,
		printer:   printer,
		log:       log,
		metrics:   metrics,
	}, nil
}

func compileHookSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(hookSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse hook schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(hookSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("failed to add hook schema: %w", err)
	}
	schema, err := compiler.Compile(hookSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile hook schema: %w", err)
	}
	return schema, nil
}

// Handle 接收切片事件
// @Summary 切片事件上报
// @Description 切片软件后处理脚本上报一次切片结果。令牌可放在 secret_token 字段或 X-Slicer-Token 请求头。
// @Tags SlicerHook
// @Accept json
// @Produce json
// @Param X-Slicer-Token header string false "上报令牌"
// @Success 200 {object} Response{data=HookResponse}
// @Failure 400 {object} Response{data=object{details=[]string}}
// @Failure 401 {object} Response
// @Failure 429 {object} Response
// @Router /v1/production/slicer-hook [post]
func (h *HookHandler) Handle(c *gin.Context) {
	start := time.Now()
	outcome := "error"
	var scriptVersion string
	defer func() {
		if scriptVersion == "" {
			scriptVersion = "N/A"
		}
		h.log.Info("slicer hook processed",
			zap.Duration("duration", time.Since(start)),
			zap.String("status", outcome),
			zap.Int("http_status", c.Writer.Status()),
			zap.String("user_agent", c.Request.UserAgent()),
			zap.String("script_version", scriptVersion),
		)
	}()

	body, err := c.GetRawData()
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			outcome = "rejected"
			h.metrics.RecordHookRejected("too_large")
			Error(c, http.StatusRequestEntityTooLarge, MsgRequestTooLarge)
			return
		}
		BadRequest(c, MsgInvalidRequest)
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		outcome = "rejected"
		h.metrics.RecordHookRejected("invalid_payload")
		BadRequest(c, MsgRequestBodyEmpty)
		return
	}

	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		outcome = "rejected"
		h.metrics.RecordHookRejected("invalid_payload")
		BadRequest(c, MsgInvalidJSON)
		return
	}

	var req slicerHookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		// 字段类型错误交给 Schema 给出明细
		if details := h.validate(instance); len(details) > 0 {
			outcome = "rejected"
			h.metrics.RecordHookRejected("invalid_payload")
			BadRequestWithDetails(c, MsgInvalidPayload, details)
			return
		}
		outcome = "rejected"
		h.metrics.RecordHookRejected("invalid_payload")
		BadRequest(c, MsgInvalidJSON)
		return
	}
	scriptVersion = req.ScriptVersion

	if !h.authorized(c, req.SecretToken) {
		outcome = "unauthorized"
		h.metrics.RecordHookRejected("unauthorized")
		Unauthorized(c, MsgUnauthorized)
		return
	}

	if details := h.validate(instance); len(details) > 0 {
		outcome = "rejected"
		h.metrics.RecordHookRejected("invalid_payload")
		BadRequestWithDetails(c, MsgInvalidPayload, details)
		return
	}

	input := req.CreateInboxItemInput
	input.Source = domain.SourceSlicerHook
	if input.MachineType == "" {
		input.MachineType = domain.MachineTypeFDM
	}

	result, err := h.ingestion.CreateItem(c.Request.Context(), &input)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidEvent) {
			outcome = "rejected"
			h.metrics.RecordHookRejected("invalid_payload")
			BadRequestWithDetails(c, MsgInvalidPayload, []string{err.Error()})
			return
		}
		respondError(c, h.log, err)
		return
	}

	switch {
	case result.Duplicate:
		outcome = "duplicate"
	case result.SyncWarning != nil:
		outcome = "saved_with_sync_warning"
	default:
		outcome = "saved"
	}
	Success(c, HookResponse{ID: result.Item.ID, Duplicate: result.Duplicate})
}

// authorized 常量时间比较上报令牌，请求体字段优先于请求头
func (h *HookHandler) authorized(c *gin.Context, bodyToken string) bool {
	token := bodyToken
	if token == "" {
		token = c.GetHeader(SlicerTokenHeader)
	}
	if token == "" || len(h.secret) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), h.secret) == 1
}

// validate 返回 Schema 校验失败的明细，格式为 "<实例位置>: <原因>"
func (h *HookHandler) validate(instance any) []string {
	err := h.schema.Validate(instance)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return []string{err.Error()}
	}

	var details []string
	collectLeaves(verr, func(leaf *jsonschema.ValidationError) {
		location := "/" + strings.Join(leaf.InstanceLocation, "/")
		details = append(details, location+": "+leaf.ErrorKind.LocalizedString(h.printer))
	})
	sort.Strings(details)
	return details
}

func collectLeaves(verr *jsonschema.ValidationError, visit func(*jsonschema.ValidationError)) {
	if len(verr.Causes) == 0 {
		visit(verr)
		return
	}
	for _, cause := range verr.Causes {
		collectLeaves(cause, visit)
	}
}
