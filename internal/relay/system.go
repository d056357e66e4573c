package relay

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/pushkin/pkg/logging"
)

// handleVAPIDKey はWeb Push用のVAPID公開鍵をバイナリで返すハンドラ。
func (s *Server) handleVAPIDKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.VAPIDPublicKey == "" {
			respondError(c, &apiError{status: http.StatusNotFound, message: "VAPID公開鍵が設定されていません"}, "")
			return
		}
		key, err := decodeVAPIDKey(s.cfg.VAPIDPublicKey)
		if err != nil {
			respondError(c, err, "VAPID公開鍵のデコードに失敗しました")
			return
		}
		c.Data(http.StatusOK, "application/octet-stream", key)
	}
}

// decodeVAPIDKey はbase64（標準またはURLセーフ、パディング有無を問わない）の鍵をデコードする。
func decodeVAPIDKey(key string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(key); err == nil {
			return b, nil
		}
	}
	_, err := base64.StdEncoding.DecodeString(key)
	return nil, err
}

// handleHealthcheck はデータベースへの疎通を確認するハンドラ。
func (s *Server) handleHealthcheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := s.queries.Ping(c.Request.Context()); err != nil {
			logging.FromContext(c.Request.Context()).Errorw("ヘルスチェックに失敗しました", "error", err)
			c.String(http.StatusInternalServerError, err.Error())
			return
		}
		c.String(http.StatusOK, "OK")
	}
}
