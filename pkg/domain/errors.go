package domain

import (
	"errors"
	"fmt"
)

// パイプライン全体で判定に使うエラー種別です。errors.Is で判定してください。
var (
	ErrBackendTimeout           = errors.New("backend timeout")
	ErrBackendError             = errors.New("backend error")
	ErrBubbleAssignmentMismatch = errors.New("bubble assignment mismatch")
	ErrLayoutOverflow           = errors.New("layout overflow")
	ErrCancellationRequested    = errors.New("cancellation requested")

	ErrInvalidTransition  = errors.New("invalid stage transition")
	ErrInvalidScript      = errors.New("invalid script")
	ErrNotFound           = errors.New("not found")
	ErrContextUnavailable = errors.New("consistency context unavailable")
)

// BackendError は生成バックエンドから返された失敗を表します。
type BackendError struct {
	Op         string // 呼び出したエンドポイント
	StatusCode int    // HTTP ステータス。通信エラーの場合は 0
	Message    string
	Timeout    bool
	Err        error
}

func (e *BackendError) Error() string {
	kind := "backend error"
	if e.Timeout {
		kind = "backend timeout"
	}
	msg := fmt.Sprintf("%s: %s", kind, e.Op)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BackendError) Unwrap() error { return e.Err }

// Is はタイムアウトなら ErrBackendTimeout に、それ以外は ErrBackendError に一致します。
func (e *BackendError) Is(target error) bool {
	if e.Timeout {
		return target == ErrBackendTimeout
	}
	return target == ErrBackendError
}

// IsRetryable はバックオフ付きで再試行してよいエラーかどうかを返します。
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBackendTimeout)
}
