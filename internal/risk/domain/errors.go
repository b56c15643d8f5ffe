package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrReassessmentNotSupported 重新评估尚未支持
	ErrReassessmentNotSupported = errors.New("reassessment is not supported")
	// ErrInvalidApplication 申请数据不合法
	ErrInvalidApplication = errors.New("invalid application input")
)

// RemoteStatusError 远程接口返回非 2xx
type RemoteStatusError struct {
	StatusCode int
	Body       string
}

func (e *RemoteStatusError) Error() string {
	return fmt.Sprintf("credit bureau returned status %d: %s", e.StatusCode, e.Body)
}
