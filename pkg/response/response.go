// Package response 统一的 HTTP JSON 响应封装
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/riskassessment/pkg/logger"
)

// Response 响应体
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Detail  string `json:"detail,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// Success 200 并返回数据
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    data,
		TraceID: logger.TraceID(c.Request.Context()),
	})
}

// ErrorWithStatus 以指定 HTTP 状态码返回错误
func ErrorWithStatus(c *gin.Context, status int, message, detail string) {
	c.AbortWithStatusJSON(status, Response{
		Code:    status,
		Message: message,
		Detail:  detail,
		TraceID: logger.TraceID(c.Request.Context()),
	})
}
