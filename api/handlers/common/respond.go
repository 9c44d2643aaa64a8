package common

import (
	"errors"
	"net/http"

	internal "gedvault/internal/common"

	"github.com/gin-gonic/gin"
)

// OK 200 成功响应
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, internal.SuccessResponse(data))
}

// Created 201 成功响应
func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, internal.SuccessResponse(data))
}

// Error 按错误类别映射 HTTP 状态码。业务错误透出消息，
// 其余错误一律 500 且不泄露内部细节。
func Error(c *gin.Context, err error) {
	kind := internal.KindOf(err)
	message := "内部错误"

	var be *internal.Error
	if errors.As(err, &be) {
		message = be.Message
	}

	c.JSON(internal.HTTPStatus(err), internal.ErrorResponseBody(kind, message))
}

// BadRequest 参数绑定失败响应
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, internal.ErrorResponseBody(internal.KindValidation, message))
}
