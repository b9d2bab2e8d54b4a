package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/septivank/ledger-relay-gateway/internal/enterprise"
	"github.com/septivank/ledger-relay-gateway/internal/logging"
	"go.uber.org/zap"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderAPIKey    = "x-api-key"

	contextRequestIDKey = "request_id"
	contextClientKey    = "enterprise_client"
)

// RequestID propagates the caller's request id or generates one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(contextRequestIDKey, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// RequestLogger writes one structured line per request.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		reqLogger := logging.WithRequestID(logger, c.GetString(contextRequestIDKey))
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if err := c.Errors.Last(); err != nil {
			fields = append(fields, zap.Error(err.Err))
		}

		if c.Writer.Status() >= 500 {
			reqLogger.Error("request failed", fields...)
			return
		}
		reqLogger.Info("request handled", fields...)
	}
}

// APIKeyRequired reads the enterprise key from x-api-key or a Bearer token
// and resolves it before the handler binds the body, so an unknown key is
// reported ahead of any validation problem. Quota is charged later by the
// handler in a single repository step.
func APIKeyRequired(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := apiKeyFromRequest(c)
		if key == "" {
			AbortWithError(c, fmt.Errorf("%w: use the %s header", enterprise.ErrUnauthenticated, HeaderAPIKey))
			return
		}
		client, err := auth.Authenticate(c.Request.Context(), key)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.Set(contextClientKey, client)
		c.Next()
	}
}

func clientFromContext(c *gin.Context) enterprise.Client {
	client, _ := c.MustGet(contextClientKey).(enterprise.Client)
	return client
}

func apiKeyFromRequest(c *gin.Context) string {
	if key := strings.TrimSpace(c.GetHeader(HeaderAPIKey)); key != "" {
		return key
	}
	parts := strings.Fields(c.GetHeader("Authorization"))
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}
