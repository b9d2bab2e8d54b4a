package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/septivank/ledger-relay-gateway/internal/enterprise"
	"github.com/septivank/ledger-relay-gateway/internal/validator"
)

// ErrNotFound is returned by handlers for missing resources.
var ErrNotFound = errors.New("not_found")

type errorResponse struct {
	Success        bool                `json:"success"`
	Type           string              `json:"type"`
	Error          string              `json:"error"`
	Errors         []validator.Problem `json:"errors,omitempty"`
	QuotaRemaining *int64              `json:"quotaRemaining,omitempty"`
}

// ErrorHandlingMiddleware renders the last handler error when nothing was written.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, payload)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidBody(err error) error {
	return validator.Invalid("body", "invalid_json", err.Error())
}

func mapError(err error) (int, errorResponse) {
	var (
		verr *validator.Error
		qerr *enterprise.QuotaError
		perr *enterprise.PermissionError
	)
	resp := errorResponse{Success: false}

	switch {
	case errors.As(err, &verr):
		resp.Type = "validation_error"
		resp.Error = verr.Error()
		resp.Errors = verr.Problems
		return http.StatusBadRequest, resp
	case errors.Is(err, validator.ErrInvalid):
		resp.Type = "validation_error"
		resp.Error = err.Error()
		return http.StatusBadRequest, resp
	case errors.Is(err, enterprise.ErrUnauthenticated):
		resp.Type = "unauthenticated"
		resp.Error = err.Error()
		return http.StatusUnauthorized, resp
	case errors.As(err, &qerr):
		remaining := qerr.Remaining()
		resp.Type = "quota_exceeded"
		resp.Error = qerr.Error()
		resp.QuotaRemaining = &remaining
		return http.StatusForbidden, resp
	case errors.As(err, &perr), errors.Is(err, enterprise.ErrUnauthorized), errors.Is(err, enterprise.ErrQuotaExceeded):
		resp.Type = "forbidden"
		resp.Error = err.Error()
		return http.StatusForbidden, resp
	case errors.Is(err, ErrNotFound), errors.Is(err, enterprise.ErrNotFound):
		resp.Type = "not_found"
		resp.Error = err.Error()
		return http.StatusNotFound, resp
	}

	resp.Type = "internal_error"
	resp.Error = "internal server error"
	return http.StatusInternalServerError, resp
}
