package api

import (
	stderrors "errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/squadlite/squadlite/internal/common/errors"
	"github.com/squadlite/squadlite/internal/common/logger"
)

// RequestLogger logs every request with a generated request id.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := uuid.New().String()
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		c.Next()

		log.Info("request completed",
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", requestID),
		)
	}
}

// ErrorHandler translates an AppError collected on the gin context into
// the flat {error, message, statusCode} JSON body every endpoint returns
// on failure.
func ErrorHandler(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		var appErr *errors.AppError
		if stderrors.As(err, &appErr) {
			log.Error("request error", zap.String("code", appErr.Code), zap.String("message", appErr.Message), zap.Int("status", appErr.HTTPStatus))
			c.JSON(appErr.HTTPStatus, gin.H{"error": appErr.Code, "message": appErr.Message, "statusCode": appErr.HTTPStatus})
			return
		}

		log.Error("internal server error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": errors.ErrCodeInternalError, "message": "an internal server error occurred", "statusCode": http.StatusInternalServerError})
	}
}

// Recovery recovers from panics in handlers and reports them as 500s.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered", zap.Any("panic", r), zap.String("path", c.Request.URL.Path), zap.String("method", c.Request.Method))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": errors.ErrCodeInternalError, "message": "an internal server error occurred", "statusCode": http.StatusInternalServerError})
			}
		}()
		c.Next()
	}
}

// CORS allows any origin to call the control plane, for the
// browser-facing dashboard.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID")
		c.Header("Access-Control-Expose-Headers", "X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RateLimit is a per-process token-bucket limiter guarding the control
// plane from a runaway agent hammering its own REST API.
func RateLimit(requestsPerSecond int) gin.HandlerFunc {
	var (
		mu       sync.Mutex
		tokens   = float64(requestsPerSecond)
		lastTime = time.Now()
	)

	return func(c *gin.Context) {
		mu.Lock()

		now := time.Now()
		elapsed := now.Sub(lastTime).Seconds()
		lastTime = now

		tokens += elapsed * float64(requestsPerSecond)
		if tokens > float64(requestsPerSecond) {
			tokens = float64(requestsPerSecond)
		}

		if tokens < 1 {
			mu.Unlock()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "RATE_LIMIT_EXCEEDED", "message": "too many requests, please try again later", "statusCode": http.StatusTooManyRequests})
			return
		}

		tokens--
		mu.Unlock()
		c.Next()
	}
}
