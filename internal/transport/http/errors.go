package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"slicinginbox/backend/internal/domain"
)

// errorMapping 业务错误到 HTTP 状态码与中文消息的映射
type errorMapping struct {
	err    error
	status int
	msg    string
}

// 按顺序匹配：绑定时产品不存在的错误同时包装 ErrNotFound 与 ErrProductNotFound，产品映射需排在前面
var errorMappings = []errorMapping{
	{domain.ErrProductNotFound, http.StatusNotFound, "产品不存在"},
	{domain.ErrInvalidEvent, http.StatusBadRequest, "切片事件数据无效"},
	{domain.ErrInvalidTransition, http.StatusConflict, "当前状态不允许该操作"},
	{domain.ErrNotFound, http.StatusNotFound, "收件箱条目不存在"},
	{domain.ErrProductSyncFailed, http.StatusBadGateway, "同步产品生产数据失败，请稍后重试"},
	{domain.ErrStorageUnavailable, http.StatusServiceUnavailable, "存储暂不可用，请稍后重试"},
}

// 通用错误消息
const (
	MsgInvalidRequest   = "请求参数格式错误"
	MsgInvalidJSON      = "JSON格式错误"
	MsgInvalidPayload   = "上报数据未通过校验"
	MsgRequestBodyEmpty = "请求体不能为空"
	MsgRequestTooLarge  = "请求体过大"
	MsgUnauthorized     = "上报令牌无效"
	MsgProductIDMissing = "缺少产品ID"
	MsgInternalError    = "服务器内部错误，请稍后重试"
)

// GetErrorMessage 获取错误的 HTTP 状态码与中文消息
func GetErrorMessage(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.msg
		}
	}
	return http.StatusInternalServerError, MsgInternalError
}

// respondError 按业务错误写出响应，服务端错误记录日志
func respondError(c *gin.Context, log *zap.Logger, err error) {
	status, msg := GetErrorMessage(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	_ = c.Error(err)
	Error(c, status, msg)
}
