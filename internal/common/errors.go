package common

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind 错误类别，面向上层的稳定契约，API 层据此映射 HTTP 状态码
type ErrorKind string

const (
	// KindValidation 输入不合法（空评论、空审批人列表、非法权限类型等）
	KindValidation ErrorKind = "validation"
	// KindNotFound 引用的文档/用户/授权/审批实例/工作流不存在
	KindNotFound ErrorKind = "not_found"
	// KindPermissionDenied 无权执行授权/撤销/共享操作
	KindPermissionDenied ErrorKind = "permission_denied"
	// KindUnauthorizedApprover 非当前阶段审批人
	KindUnauthorizedApprover ErrorKind = "unauthorized_approver"
	// KindConflict 冲突（重复提交审批、工作流重名、终态实例再操作）
	KindConflict ErrorKind = "conflict"
	// KindInternal 内部错误
	KindInternal ErrorKind = "internal"
)

// Error 业务错误，携带类别与可选的底层原因
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error 实现 error 接口
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 支持 errors.Is / errors.As 链式匹配
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError 创建业务错误
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// NewErrorf 创建带格式化消息的业务错误
func NewErrorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError 包装底层错误
func WrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf 提取错误类别，非业务错误一律归为 Internal
func KindOf(err error) ErrorKind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindInternal
}

// IsKind 判断错误是否属于指定类别
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus 错误类别到 HTTP 状态码的映射
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindPermissionDenied, KindUnauthorizedApprover:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
