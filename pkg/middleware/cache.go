package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NoCache はレスポンスをキャッシュさせないGinミドルウェアを返す。
// CORSのプリフライト（OPTIONS）だけはキャッシュを許可する。
func NoCache() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodOptions {
			c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
		}
		c.Next()
	}
}
