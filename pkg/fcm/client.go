package fcm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	oauthjwt "golang.org/x/oauth2/jwt"

	"github.com/nao1215/pushkin/pkg/httpclient"
)

const (
	// DefaultIIDBaseURL はInstance ID APIのベースURL。
	DefaultIIDBaseURL = "https://iid.googleapis.com"
	// DefaultFCMBaseURL はFCM HTTP v1 APIのベースURL。
	DefaultFCMBaseURL = "https://fcm.googleapis.com"
	// googleTokenURL はサービスアカウントのアクセストークン発行エンドポイント。
	googleTokenURL = "https://oauth2.googleapis.com/token"
)

// messagingScopes はメッセージ送信に必要なOAuth2スコープ。
var messagingScopes = []string{
	"https://www.googleapis.com/auth/firebase.messaging",
	"https://www.googleapis.com/auth/cloud-platform",
}

var (
	// ErrInvalidToken はFCMがクライアントトークンを認識できなかったことを表す。
	ErrInvalidToken = errors.New("FCMがクライアントトークンを認識できません")
	// ErrNoCredentials はメッセージ送信用の認証情報が設定されていないことを表す。
	ErrNoCredentials = errors.New("メッセージ送信用の認証情報が設定されていません")
)

// APIError はFirebaseのAPIが返したエラー。
type APIError struct {
	// HTTPStatus はレスポンスのHTTPステータスコード。
	HTTPStatus int
	// Code はエラーボディに含まれるコード。
	Code int
	// Status はエラーの種別（例: "INVALID_ARGUMENT"）。
	Status string
	// Message はエラーメッセージ。
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("Firebase APIエラー: %s (code=%d, status=%s)", e.Message, e.Code, e.Status)
}

// errorDetail はFirebaseのエラーボディ {"error": {...}} の中身。
type errorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Client はFirebaseのAPIクライアント。
type Client struct {
	// iid はInstance ID APIへの通信クライアント。
	iid *httpclient.Client
	// messaging はFCM送信APIへの通信クライアント。tokenSourceが無い場合はnil。
	messaging *httpclient.Client
	// project はFCMのプロジェクトID。
	project string
}

// config はClientの生成時設定。
type config struct {
	iidBaseURL  string
	fcmBaseURL  string
	serverKey   string
	project     string
	tokenSource oauth2.TokenSource
	httpOptions []httpclient.Option
}

// Option はClientの設定を変更する関数。
type Option func(*config)

// WithIIDBaseURL はInstance ID APIのベースURLを変更する。
func WithIIDBaseURL(u string) Option {
	return func(c *config) { c.iidBaseURL = strings.TrimSuffix(u, "/") }
}

// WithFCMBaseURL はFCM送信APIのベースURLを変更する。
func WithFCMBaseURL(u string) Option {
	return func(c *config) { c.fcmBaseURL = strings.TrimSuffix(u, "/") }
}

// WithProject はFCMのプロジェクトIDを設定する。
func WithProject(project string) Option {
	return func(c *config) { c.project = project }
}

// WithTokenSource はメッセージ送信に使用するアクセストークンの取得元を設定する。
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *config) { c.tokenSource = ts }
}

// WithHTTPOptions は内部のHTTPクライアントに渡すオプションを追加する。
func WithHTTPOptions(opts ...httpclient.Option) Option {
	return func(c *config) { c.httpOptions = append(c.httpOptions, opts...) }
}

// New は新しいClientを生成する。serverKeyはInstance ID APIのサーバーキー。
func New(serverKey string, opts ...Option) *Client {
	cfg := &config{
		iidBaseURL: DefaultIIDBaseURL,
		fcmBaseURL: DefaultFCMBaseURL,
		serverKey:  serverKey,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	iidOpts := append([]httpclient.Option{
		httpclient.WithHeader("Authorization", "key="+cfg.serverKey),
	}, cfg.httpOptions...)

	c := &Client{
		iid:     httpclient.New(cfg.iidBaseURL, iidOpts...),
		project: cfg.project,
	}

	if cfg.tokenSource != nil {
		ts := cfg.tokenSource
		msgOpts := append([]httpclient.Option{
			httpclient.WithAuthorization(func(context.Context) (string, error) {
				tok, err := ts.Token()
				if err != nil {
					return "", fmt.Errorf("アクセストークンの取得に失敗: %w", err)
				}
				return tok.Type() + " " + tok.AccessToken, nil
			}),
		}, cfg.httpOptions...)
		c.messaging = httpclient.New(cfg.fcmBaseURL, msgOpts...)
	}
	return c
}

// ServiceAccountTokenSource はサービスアカウントの認証情報からアクセストークンの取得元を生成する。
// privateKeyはPEM形式。環境変数から読み込んだ "\n" のエスケープは呼び出し元で解除しておくこと。
func ServiceAccountTokenSource(ctx context.Context, email, privateKey string) oauth2.TokenSource {
	conf := &oauthjwt.Config{
		Email:      email,
		PrivateKey: []byte(privateKey),
		Scopes:     messagingScopes,
		TokenURL:   googleTokenURL,
	}
	return conf.TokenSource(ctx)
}

// decodeError はHTTPエラーのレスポンスボディをFirebaseのエラーとして解釈する。
// エラーボディは {"error": {...}} と {"error": "InvalidToken"} の2形式がある。
func decodeError(err error) error {
	var statusErr *httpclient.StatusError
	if !errors.As(err, &statusErr) {
		return err
	}

	var body struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(statusErr.Body, &body) != nil || len(body.Error) == 0 {
		return err
	}

	var detail errorDetail
	if json.Unmarshal(body.Error, &detail) == nil {
		return &APIError{
			HTTPStatus: statusErr.StatusCode,
			Code:       detail.Code,
			Status:     detail.Status,
			Message:    detail.Message,
		}
	}

	var reason string
	if json.Unmarshal(body.Error, &reason) == nil {
		if reason == "InvalidToken" {
			return ErrInvalidToken
		}
		return &APIError{
			HTTPStatus: statusErr.StatusCode,
			Code:       statusErr.StatusCode,
			Status:     reason,
			Message:    reason,
		}
	}
	return err
}

// IsClientError はエラーがFirebase側で4xxとして拒否されたものかを判定する。
func IsClientError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatus >= http.StatusBadRequest && apiErr.HTTPStatus < http.StatusInternalServerError
	}
	return errors.Is(err, ErrInvalidToken)
}
