package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nao1215/pushkin/pkg/logging"
)

// HeaderRequestID はリクエストIDを伝播するHTTPヘッダー。
const HeaderRequestID = "X-Request-ID"

// contextKeyRequestID はGinコンテキストにリクエストIDを格納するキー。
const contextKeyRequestID = "request_id"

// RequestLogger はリクエストごとにIDを割り当て、そのIDを付与したロガーを
// リクエストのコンテキストに格納するGinミドルウェアを返す。
// 受信したX-Request-IDヘッダーがあればそれを使用する。
// 処理後にメソッド、パス、ステータス、所要時間をログに出力する。
func RequestLogger(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(contextKeyRequestID, requestID)
		c.Header(HeaderRequestID, requestID)

		reqLogger := logger.With("request_id", requestID)
		c.Request = c.Request.WithContext(logging.WithLogger(c.Request.Context(), reqLogger))

		c.Next()

		reqLogger.Infow("リクエストを処理しました",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}

// GetRequestID はGinコンテキストからリクエストIDを取得する。
// RequestLoggerミドルウェアが事前に適用されている必要がある。
func GetRequestID(c *gin.Context) string {
	return c.GetString(contextKeyRequestID)
}

// requestLogger はリクエストのコンテキストに格納されたロガーを返す。
// 格納されていない場合はfallbackを返す。
func requestLogger(c *gin.Context, fallback *zap.SugaredLogger) *zap.SugaredLogger {
	if c.GetString(contextKeyRequestID) == "" {
		return fallback
	}
	return logging.FromContext(c.Request.Context())
}
