package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// KeyType はAPIキーの種類。
type KeyType int

const (
	// KeyTypeUser はクライアントアプリケーション向けのAPIキー。
	KeyTypeUser KeyType = iota
	// KeyTypeAdmin は管理操作向けのAPIキー。
	KeyTypeAdmin
)

// String はAPIキーの種類名を返す。
func (k KeyType) String() string {
	if k == KeyTypeAdmin {
		return "admin"
	}
	return "user"
}

// APIKey はAuthorizationヘッダーのAPIキーを検証するGinミドルウェアを返す。
// キーが無い場合、または一致しない場合は403を返す。
func APIKey(keyType KeyType, expected string, logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := requestLogger(c, logger)

		auth := c.GetHeader("Authorization")
		if auth == "" {
			log.Warnw("APIキーを指定せずにエンドポイントへアクセスされました", "path", c.Request.URL.Path, "key_type", keyType)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "AuthorizationヘッダーにAPIキーを指定してください",
			})
			return
		}

		if expected == "" || subtle.ConstantTimeCompare([]byte(auth), []byte(expected)) != 1 {
			log.Warnw("誤ったAPIキーでエンドポイントへアクセスされました", "path", c.Request.URL.Path, "key_type", keyType)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "この操作に対するAPIキーが正しくありません",
			})
			return
		}

		c.Next()
	}
}
