package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/pushkin/pkg/metrics"
)

// Metrics はHTTPリクエスト数を記録するGinミドルウェアを返す。
// ルートはパスではなくginのルートパターンで記録する。
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
