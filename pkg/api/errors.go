package api

import (
	"errors"
	"net/http"

	"github.com/shouni/go-manga-press/pkg/domain"

	"github.com/gin-gonic/gin"
)

// エラー応答の code です。
const (
	CodeBadRequest     = "BAD_REQUEST"
	CodeNotFound       = "NOT_FOUND"
	CodeConflict       = "CONFLICT"
	CodeInvalidScript  = "INVALID_SCRIPT"
	CodeBackendError   = "BACKEND_ERROR"
	CodeBackendTimeout = "BACKEND_TIMEOUT"
	CodeCancelled      = "CANCELLED"
	CodeInternal       = "INTERNAL_ERROR"
)

// ErrorResponse はエラー応答の本文です。
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusFor はエラー種別を HTTP ステータスと code に変換します。
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, domain.ErrInvalidScript), errors.Is(err, domain.ErrLayoutOverflow):
		return http.StatusUnprocessableEntity, CodeInvalidScript
	case errors.Is(err, domain.ErrBackendTimeout):
		return http.StatusGatewayTimeout, CodeBackendTimeout
	case errors.Is(err, domain.ErrBackendError):
		return http.StatusBadGateway, CodeBackendError
	case errors.Is(err, domain.ErrContextUnavailable):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, domain.ErrCancellationRequested):
		return http.StatusServiceUnavailable, CodeCancelled
	}
	return http.StatusInternalServerError, CodeInternal
}

func writeError(c *gin.Context, err error) {
	status, code := statusFor(err)
	c.AbortWithStatusJSON(status, ErrorResponse{Code: code, Message: err.Error()})
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: CodeBadRequest, Message: message})
}
