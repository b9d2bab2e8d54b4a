package enterprise

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated = errors.New("missing/invalid key")
	ErrUnauthorized    = errors.New("missing permission")
	ErrQuotaExceeded   = errors.New("quota exceeded")
	// ErrNotFound is returned by repositories for unknown keys.
	ErrNotFound = errors.New("client not found")
)

// PermissionError names the capability a client lacks.
type PermissionError struct {
	Client     string
	Capability string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("missing permission: %s required", e.Capability)
}

func (e *PermissionError) Unwrap() error { return ErrUnauthorized }

// QuotaError reports an exhausted monthly quota.
type QuotaError struct {
	Client string
	Quota  int64
	Used   int64
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("quota exceeded: %d/%d operations used this month", e.Used, e.Quota)
}

func (e *QuotaError) Unwrap() error { return ErrQuotaExceeded }

// Remaining is always zero for an exhausted quota; kept for response payloads.
func (e *QuotaError) Remaining() int64 {
	if left := e.Quota - e.Used; left > 0 {
		return left
	}
	return 0
}
