package matrixclient

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Standard protocol error codes.
const (
	ErrCodeForbidden     = "M_FORBIDDEN"
	ErrCodeUnknownToken  = "M_UNKNOWN_TOKEN"
	ErrCodeBadJSON       = "M_BAD_JSON"
	ErrCodeNotJSON       = "M_NOT_JSON"
	ErrCodeNotFound      = "M_NOT_FOUND"
	ErrCodeLimitExceeded = "M_LIMIT_EXCEEDED"
	ErrCodeUserInUse     = "M_USER_IN_USE"
	ErrCodeRoomInUse     = "M_ROOM_IN_USE"
	ErrCodeBadPagination = "M_BAD_PAGINATION"
	ErrCodeUnknown       = "M_UNKNOWN"
	ErrCodeUnrecognized  = "M_UNRECOGNIZED"
	ErrCodeUnauthorized  = "M_UNAUTHORIZED"
	ErrCodeInvalidParam  = "M_INVALID_PARAM"
	ErrCodeMissingParam  = "M_MISSING_PARAM"
	ErrCodeExclusive     = "M_EXCLUSIVE"
)

// MatrixError is the uniform error value for non-2xx protocol responses.
// Extract it with errors.As or test a specific code with IsCode.
type MatrixError struct {
	// Code is the protocol error code (e.g. "M_FORBIDDEN").
	Code string `json:"errcode"`
	// Message is the human-readable description from the server.
	Message string `json:"error"`
	// RetryAfterMS is set on M_LIMIT_EXCEEDED responses.
	RetryAfterMS int64 `json:"retry_after_ms,omitempty"`
	// StatusCode is the HTTP status of the response.
	StatusCode int `json:"-"`
}

func (e *MatrixError) Error() string {
	return fmt.Sprintf("matrix: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// RetryAfter returns the server-provided backoff, or zero when the server
// did not send one.
func (e *MatrixError) RetryAfter() time.Duration {
	return time.Duration(e.RetryAfterMS) * time.Millisecond
}

// IsCode reports whether err is a *MatrixError carrying the given code.
func IsCode(err error, code string) bool {
	var matrixErr *MatrixError
	if errors.As(err, &matrixErr) {
		return matrixErr.Code == code
	}
	return false
}

// Precondition and lifecycle errors.
var (
	// ErrSyncRunning is returned by StartSync when the polling loop is
	// already running.
	ErrSyncRunning = errors.New("matrixclient: sync loop already running")

	// ErrMembershipNotFound is returned by commands that need the
	// caller's own membership record in a room that has never observed a
	// join for them.
	ErrMembershipNotFound = errors.New("matrixclient: own membership record not found in room")
)
