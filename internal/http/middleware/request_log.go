package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dx-junkyard/plura/internal/observability"
	"github.com/dx-junkyard/plura/internal/platform/logger"
)

func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m := observability.Current()
		m.ApiInflightInc()
		c.Next()
		m.ApiInflightDec()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := strings.ToUpper(c.Request.Method)
		dur := time.Since(start)

		m.ObserveAPI(method, c.FullPath(), strconv.Itoa(status), dur)

		if log == nil {
			return
		}

		fields := []interface{}{
			"method", method,
			"path", path,
			"status", status,
			"duration_ms", dur.Milliseconds(),
		}
		if userID, ok := UserID(c); ok {
			fields = append(fields, "user_id", userID.String())
		}

		switch {
		case status >= 500:
			log.Error("HTTP request", fields...)
		case status >= 400:
			log.Warn("HTTP request", fields...)
		default:
			log.Info("HTTP request", fields...)
		}
	}
}
