package common

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	require.Equal(t, KindNotFound, KindOf(NewError(KindNotFound, "缺失")))
	require.Equal(t, KindInternal, KindOf(errors.New("普通错误")))

	// 包装链上也能取到类别
	wrapped := fmt.Errorf("外层: %w", NewError(KindConflict, "冲突"))
	require.Equal(t, KindConflict, KindOf(wrapped))
	require.True(t, IsKind(wrapped, KindConflict))
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("底层故障")
	err := WrapError(KindInternal, "操作失败", cause)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "操作失败")
	require.Contains(t, err.Error(), "底层故障")
}

func TestHTTPStatus(t *testing.T) {
	cases := map[ErrorKind]int{
		KindValidation:           http.StatusBadRequest,
		KindNotFound:             http.StatusNotFound,
		KindPermissionDenied:     http.StatusForbidden,
		KindUnauthorizedApprover: http.StatusForbidden,
		KindConflict:             http.StatusConflict,
		KindInternal:             http.StatusInternalServerError,
	}
	for kind, want := range cases {
		require.Equal(t, want, HTTPStatus(NewError(kind, "x")), "kind=%s", kind)
	}
	require.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("其他")))
}
