package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/John-Robertt/jianpian/internal/app/session"
	"github.com/John-Robertt/jianpian/internal/site"
)

// Response 统一API响应结构
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
	Success bool   `json:"success"`
}

// Success 返回成功响应
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
		Success: true,
	})
}

// Accepted 表示任务已在后台开始（进度通过 /api/events 推送）
func Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, Response{
		Code:    http.StatusAccepted,
		Message: "accepted",
		Data:    data,
		Success: true,
	})
}

// Error 返回错误响应
func Error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
		Data:    nil,
		Success: false,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

func NotFound(c *gin.Context, message string) {
	if message == "" {
		message = "资源不存在"
	}
	Error(c, http.StatusNotFound, message)
}

// Fail 按错误类型映射状态码：上游拦截 503，上游失败 502，前置条件不满足 409。
func Fail(c *gin.Context, err error) {
	var (
		be *site.BlockedError
		se *site.Error
	)
	switch {
	case errors.As(err, &be):
		Error(c, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &se):
		Error(c, http.StatusBadGateway, err.Error())
	case errors.Is(err, session.ErrNoCurrentMovie):
		Error(c, http.StatusConflict, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		Error(c, http.StatusRequestTimeout, err.Error())
	default:
		Error(c, http.StatusInternalServerError, err.Error())
	}
}
