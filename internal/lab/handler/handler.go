package handler

import (
	"errors"
	"strconv"

	"github.com/Async-Ng/ElecLab-sub001/internal/apperr"
	"github.com/Async-Ng/ElecLab-sub001/internal/identity"
	"github.com/Async-Ng/ElecLab-sub001/internal/lab/events"
	"github.com/Async-Ng/ElecLab-sub001/internal/lab/service"
	"github.com/Async-Ng/ElecLab-sub001/internal/middleware"
	"github.com/gin-gonic/gin"
)

// Handlers 处理器集合
type Handlers struct {
	Request *RequestHandler
	Catalog *CatalogHandler
	SSE     *SSEHandler
}

// NewHandlers 创建处理器集合
func NewHandlers(svc *service.Services, hub *events.Hub) *Handlers {
	return &Handlers{
		Request: NewRequestHandler(svc.Request),
		Catalog: NewCatalogHandler(svc.Catalog),
		SSE:     NewSSEHandler(hub),
	}
}

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Created 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

// BadRequest 参数错误响应
func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

// InternalError 服务器错误响应
func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// respondError maps a classified error onto the envelope. Persistence and
// unclassified errors are reported without their cause.
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	switch kind {
	case apperr.KindAuthentication, apperr.KindAuthorization, apperr.KindValidation, apperr.KindNotFound:
		var e *apperr.Error
		errors.As(err, &e)
		Error(c, apperr.Code(kind), e.Message)
	default:
		_ = c.Error(err)
		InternalError(c, "internal error")
	}
}

// GetIdentity 从上下文获取调用者
func GetIdentity(c *gin.Context) (identity.Identity, bool) {
	return middleware.GetIdentity(c)
}

// GetPagination 从请求获取分页参数
func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	return page, pageSize
}
