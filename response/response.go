// Package response 提供统一的 HTTP 响应封装，按 xerrors 分类决定状态码与业务码。
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/segtree/xerrors"
)

// Body 统一响应体。
type Body struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Data   any    `json:"data,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Success 发送一个标准的成功响应：HTTP 200，业务码 0。
func Success(c *gin.Context, data any) {
	SuccessWithStatus(c, http.StatusOK, data)
}

// SuccessWithStatus 以指定 HTTP 状态码发送成功响应。
func SuccessWithStatus(c *gin.Context, status int, data any) {
	c.JSON(status, Body{Code: 0, Msg: "success", Data: data})
}

// SuccessWithRawData 发送原始数据 (不包装 code 和 msg)，用于健康检查等系统接口。
func SuccessWithRawData(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// Error 发送错误响应。
// 错误链上的 *xerrors.Error 决定状态码与业务码，其余一律 500。
// 5xx 只返回固定消息，不暴露内部细节。
func Error(c *gin.Context, err error) {
	if err == nil {
		Success(c, nil)
		return
	}

	if e, ok := xerrors.FromError(err); ok {
		httpStatus := e.HTTPStatus()
		msg := err.Error()
		if httpStatus >= http.StatusInternalServerError {
			msg = e.Message
		}
		c.JSON(httpStatus, Body{Code: e.Code, Msg: msg, Detail: e.Detail})
		return
	}

	ErrorWithStatus(c, http.StatusInternalServerError, "internal server error", "")
}

// ErrorWithStatus 发送一个带有指定 HTTP 状态码、消息和详情的错误响应。
func ErrorWithStatus(c *gin.Context, status int, msg string, detail string) {
	c.JSON(status, Body{Code: status, Msg: msg, Detail: detail})
}
