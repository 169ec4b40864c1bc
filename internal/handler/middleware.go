package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const contextUserIDKey = "userID"

// AuthMiddleware parses the bearer access token and stores the caller's user
// ID in the request context.
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "Missing bearer token"})
			return
		}
		tokenString := strings.TrimPrefix(header, "Bearer ")

		userID, err := h.tokens.VerifyAccess(c.Request.Context(), tokenString)
		if err != nil {
			handleServiceError(c, err)
			return
		}
		c.Set(contextUserIDKey, userID)
		c.Next()
	}
}

// callerFromBearer resolves an optional bearer token on a public route to the
// user it belongs to. Missing or invalid tokens are not an error here.
func (h *Handler) callerFromBearer(c *gin.Context) (uuid.UUID, bool) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return uuid.Nil, false
	}
	userID, err := h.tokens.VerifyAccess(c.Request.Context(), strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		return uuid.Nil, false
	}
	return userID, true
}

// userIDFromContext returns the authenticated user ID set by AuthMiddleware.
func userIDFromContext(c *gin.Context) (uuid.UUID, bool) {
	val, ok := c.Get(contextUserIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := val.(uuid.UUID)
	return id, ok
}

// ZapLoggingMiddleware logs each request with zap, skipping the healthcheck
// and metrics endpoints.
func ZapLoggingMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		if path == "/health" || path == "/metrics" {
			c.Next()
			return
		}

		c.Next()

		latency := time.Since(start)
		if rawQuery := c.Request.URL.RawQuery; rawQuery != "" {
			path = path + "?" + rawQuery
		}

		fields := []zap.Field{
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", latency),
		}

		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
			c.Header("X-Request-ID", requestID)
		}
		fields = append(fields, zap.String("request_id", requestID))

		if len(c.Errors) > 0 {
			for _, ginErr := range c.Errors.ByType(gin.ErrorTypeAny) {
				log.Error("Request error", append(fields, zap.Error(ginErr.Err))...)
			}
			return
		}

		status := c.Writer.Status()
		switch {
		case status >= http.StatusInternalServerError:
			log.Error("Server error", fields...)
		case status >= http.StatusBadRequest:
			log.Warn("Client error", fields...)
		default:
			log.Info("Request completed", fields...)
		}
	}
}
