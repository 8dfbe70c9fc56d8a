package diagnose

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"agriaid/logger"
)

// RequestLogger logs one line per request through the structured logger.
func RequestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ctx := c.Request.Context()
		if id := c.Param("id"); id != "" {
			ctx = logger.WithSession(ctx, id)
		}
		status := c.Writer.Status()
		switch {
		case status >= http.StatusInternalServerError:
			log.Errorf(ctx, "%s %s -> %d (%s)", c.Request.Method, c.FullPath(), status, time.Since(start))
		case status >= http.StatusBadRequest:
			log.Warnf(ctx, "%s %s -> %d (%s)", c.Request.Method, c.FullPath(), status, time.Since(start))
		default:
			log.Infof(ctx, "%s %s -> %d (%s)", c.Request.Method, c.FullPath(), status, time.Since(start))
		}
		if len(c.Errors) > 0 {
			log.Errorf(ctx, "request errors: %s", c.Errors.String())
		}
	}
}

// LimitBodySize caps request bodies; photos arrive in multipart uploads.
func LimitBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
