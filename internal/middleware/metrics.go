package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CacheHitKey is set to true by handlers that answered from in-memory
// screen state without touching the catalog
const CacheHitKey = "cache_hit"

// APIRecorder stores per-request metrics. Satisfied by *repository.Metrics.
type APIRecorder interface {
	RecordAPICall(ctx context.Context, path string, statusCode int, latencyMs float64, cacheHit bool) error
}

// Metrics returns a middleware that records API metrics
func Metrics(recorder APIRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		latency := float64(time.Since(start).Microseconds()) / 1000
		// 请求已结束，使用独立的 context 写入 Redis
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// errors are logged by the recorder
		_ = recorder.RecordAPICall(ctx, NormalizePath(c.Request.URL.Path), c.Writer.Status(), latency, c.GetBool(CacheHitKey))
	}
}

// NormalizePath folds ids out of API paths so that
// /api/v1/browse/<uuid>/watchlist/603 becomes /api/v1/browse/:sid/watchlist/:id
func NormalizePath(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		switch {
		case isNumeric(part):
			parts[i] = ":id"
		case len(part) == 36 && uuid.Validate(part) == nil:
			parts[i] = ":sid"
		}
	}
	return strings.Join(parts, "/")
}

// isNumeric checks if a string is purely numeric
func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
