package middleware

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/nao1215/pushkin/pkg/httpclient"
)

// HeaderIAPAssertion はIdentity-Aware Proxyが付与する署名付きJWTのヘッダー。
const HeaderIAPAssertion = "X-Goog-IAP-JWT-Assertion"

// Ginコンテキストに検証結果を格納するキー。
const (
	contextKeyIAPEmail   = "iap_email"
	contextKeyIAPSubject = "iap_sub"
)

// 検証をスキップした理由。ログに出力する。
const (
	iapReasonDisabled = "VERIFY_IAP NOT ACTIVATED"
	iapReasonEnv      = "APP_ENV DEV TEST"
	iapReasonIP       = "VERIFY_IAP IP"
	iapReasonVerified = "NO SKIP"
)

// KeySource はIAPの署名検証に使用する公開鍵を鍵IDから取得する。
type KeySource interface {
	PublicKey(ctx context.Context, kid string) (*ecdsa.PublicKey, error)
}

// IAPConfig はIAPミドルウェアの設定。
type IAPConfig struct {
	// Enabled がfalseの場合は検証を行わない。
	Enabled bool
	// Env は実行環境名。"development" と "test" では検証を行わない。
	Env string
	// Allowlist はアクセスを許可するメールアドレスと "@domain" の一覧。
	Allowlist []string
	// DisableLog がtrueの場合は検証結果をログに出力しない。
	DisableLog bool
	// Keys は署名検証用の公開鍵の取得元。
	Keys KeySource
	// Logger はリクエストロガーが無い場合に使用するロガー。
	Logger *zap.SugaredLogger
}

// iapClaims はIAPが署名するJWTのクレーム。
type iapClaims struct {
	jwt.RegisteredClaims
	// Email は認証済みユーザーのメールアドレス。
	Email string `json:"email"`
}

// IAP はIdentity-Aware Proxyの署名付きヘッダーを検証するGinミドルウェアを返す。
// ロードバランサーを経由しない内部ネットワークからのリクエストは検証しない。
// 署名が不正な場合やメールアドレスが許可されていない場合は403を返す。
func IAP(cfg IAPConfig) gin.HandlerFunc {
	skippedEnvs := map[string]bool{"development": true, "test": true}
	shouldLog := !cfg.DisableLog && cfg.Env != "development"

	return func(c *gin.Context) {
		log := requestLogger(c, cfg.Logger)
		logResult := func(status, email, reason string) {
			if !shouldLog {
				return
			}
			log.Infow("IAP検証",
				"status", status,
				"email", email,
				"ip", c.Request.RemoteAddr,
				"x_forwarded_for", c.GetHeader("X-Forwarded-For"),
				"path", c.Request.URL.Path,
				"reason", reason,
			)
		}

		switch {
		case !cfg.Enabled:
			logResult("ALLOWED", "", iapReasonDisabled)
			c.Next()
			return
		case skippedEnvs[cfg.Env]:
			logResult("ALLOWED", "", iapReasonEnv)
			c.Next()
			return
		case isInternalRequest(c.Request):
			logResult("ALLOWED", "", iapReasonIP)
			c.Next()
			return
		}

		claims, err := verifyIAPAssertion(c.Request.Context(), c.GetHeader(HeaderIAPAssertion), cfg.Keys)
		if err != nil {
			logResult("FORBIDDEN", "", "BAD JWT_TOKEN "+err.Error())
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "IAPの署名を検証できません: " + err.Error(),
			})
			return
		}

		if !emailAllowed(claims.Email, cfg.Allowlist) {
			logResult("FORBIDDEN", claims.Email, "EMAIL NOT PERMITTED")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "このメールアドレスにはアクセスが許可されていません。アプリケーションの管理者に連絡してください",
			})
			return
		}

		c.Set(contextKeyIAPEmail, claims.Email)
		c.Set(contextKeyIAPSubject, claims.Subject)
		logResult("ALLOWED", claims.Email, iapReasonVerified)
		c.Next()
	}
}

// GetVerifiedEmail はIAPで検証されたメールアドレスをGinコンテキストから取得する。
// 検証が行われていない場合は空文字列を返す。
func GetVerifiedEmail(c *gin.Context) string {
	return c.GetString(contextKeyIAPEmail)
}

// verifyIAPAssertion はIAPのJWTを検証してクレームを返す。
func verifyIAPAssertion(ctx context.Context, assertion string, keys KeySource) (*iapClaims, error) {
	if assertion == "" {
		return nil, errors.New(HeaderIAPAssertion + "ヘッダーがありません")
	}
	if keys == nil {
		return nil, errors.New("公開鍵の取得元が設定されていません")
	}

	claims := &iapClaims{}
	_, err := jwt.ParseWithClaims(assertion, claims, func(token *jwt.Token) (any, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, errors.New("鍵IDがありません")
		}
		return keys.PublicKey(ctx, kid)
	}, jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("JWTの検証に失敗: %w", err)
	}
	return claims, nil
}

// isInternalRequest はロードバランサーを経由しないループバックまたは10.0.0.0/8からのリクエストかを判定する。
func isInternalRequest(r *http.Request) bool {
	if r.Header.Get("X-Forwarded-For") != "" {
		return false
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	return addr.IsLoopback() || (addr.Is4() && addr.As4()[0] == 10)
}

// emailAllowed はメールアドレスが許可リストに含まれるかを判定する。
// "@" で始まる要素はドメイン全体を許可する。
func emailAllowed(email string, allowlist []string) bool {
	if email == "" {
		return false
	}
	domain := ""
	if i := strings.LastIndex(email, "@"); i >= 0 {
		domain = email[i:]
	}
	for _, allowed := range allowlist {
		if allowed == email || (strings.HasPrefix(allowed, "@") && allowed == domain) {
			return true
		}
	}
	return false
}

// keyCacheSize は公開鍵キャッシュの最大数。
const keyCacheSize = 64

// GoogleKeySource はGoogleが公開するIAPの公開鍵（鍵IDからPEMへのマップ）を取得する。
// 取得した鍵はキャッシュし、未知の鍵IDが来た場合のみ再取得する。
type GoogleKeySource struct {
	// client は公開鍵を配布するURLへの通信クライアント。
	client *httpclient.Client
	// cache は鍵IDごとの解析済み公開鍵。
	cache *lru.Cache[string, *ecdsa.PublicKey]
	// fetches は同時に発生した再取得を1回にまとめる。
	fetches singleflight.Group
}

// NewGoogleKeySource は新しいGoogleKeySourceを生成する。
// keysURLには公開鍵のURL（例: "https://www.gstatic.com/iap/verify/public_key"）を指定する。
func NewGoogleKeySource(keysURL string) *GoogleKeySource {
	cache, _ := lru.New[string, *ecdsa.PublicKey](keyCacheSize)
	return &GoogleKeySource{
		client: httpclient.New(keysURL),
		cache:  cache,
	}
}

// PublicKey はKeySourceインターフェースを実装する。
func (s *GoogleKeySource) PublicKey(ctx context.Context, kid string) (*ecdsa.PublicKey, error) {
	if key, ok := s.cache.Get(kid); ok {
		return key, nil
	}

	if _, err, _ := s.fetches.Do("keys", func() (any, error) {
		return nil, s.refresh(ctx)
	}); err != nil {
		return nil, err
	}

	if key, ok := s.cache.Get(kid); ok {
		return key, nil
	}
	return nil, fmt.Errorf("鍵ID %s の公開鍵が見つかりません", kid)
}

// refresh は公開鍵を取得し直してキャッシュに格納する。
func (s *GoogleKeySource) refresh(ctx context.Context) error {
	var pems map[string]string
	if err := s.client.GetJSON(ctx, "", &pems); err != nil {
		return fmt.Errorf("IAP公開鍵の取得に失敗: %w", err)
	}
	for kid, p := range pems {
		key, err := jwt.ParseECPublicKeyFromPEM([]byte(p))
		if err != nil {
			return fmt.Errorf("鍵ID %s の公開鍵の解析に失敗: %w", kid, err)
		}
		s.cache.Add(kid, key)
	}
	return nil
}
