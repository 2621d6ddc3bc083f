package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rushteam/rescore/core"
)

// ErrorResponse 是统一的错误响应。
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// statusOf 把领域错误映射为 HTTP 状态码：配置与参数错误是调用方的问题。
func statusOf(err error) (int, string) {
	switch {
	case core.IsConfiguration(err):
		return http.StatusBadRequest, core.ErrorCodeConfiguration
	case core.IsInvalidInput(err):
		return http.StatusBadRequest, core.ErrorCodeInvalidInput
	case core.IsNotFound(err):
		return http.StatusNotFound, core.ErrorCodeNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	default:
		return http.StatusInternalServerError, core.ErrorCodeInternalError
	}
}

func abortWithError(c *gin.Context, err error) {
	status, code := statusOf(err)
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     err.Error(),
		Code:      code,
		RequestID: c.GetString(requestIDKey),
	})
}
