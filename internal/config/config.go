// Package config は環境変数からpushkinの設定を読み込む。
package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

// 環境変数名。
const (
	KeyServerPort          = "SERVER_PORT"
	KeyAppEnv              = "APP_ENV"
	KeyDatabasePath        = "DATABASE_PATH"
	KeyFirebaseAuthKey     = "FIREBASE_AUTH_KEY"
	KeyUserAPIKey          = "USER_API_KEY"
	KeyAdminAPIKey         = "ADMIN_API_KEY"
	KeyTopicPrefix         = "TOPIC_PREFIX"
	KeyFCMProject          = "FCM_PROJECT"
	KeyFirebaseClientEmail = "FIREBASE_CLIENT_EMAIL"
	KeyFirebasePrivateKey  = "FIREBASE_PRIVATE_KEY"
	KeyVAPIDPublicKey      = "VAPID_PUBLIC_KEY"
	KeyAllowedOrigins      = "ALLOWED_ORIGINS"
	KeyPermittedIOSBundles = "PERMITTED_IOS_BUNDLES"
	KeyVerifyIAP           = "VERIFY_IAP"
	KeyIAPAllowlist        = "IAP_ALLOWLIST"
	KeyIAPDisableLog       = "IAP_DISABLE_LOG"
	KeyIIDBaseURL          = "IID_BASE_URL"
	KeyFCMBaseURL          = "FCM_BASE_URL"
	KeyIAPKeysURL          = "IAP_KEYS_URL"
)

// requiredKeys は必須の環境変数。
var requiredKeys = []string{
	KeyFirebaseAuthKey,
	KeyUserAPIKey,
	KeyAdminAPIKey,
	KeyTopicPrefix,
}

// Config はpushkinの設定。
type Config struct {
	// Port はHTTPサーバーのリッスンポート。
	Port string
	// Env は実行環境名。トピックの名前空間に使用する。
	Env string
	// DatabasePath はSQLiteデータベースファイルのパス。
	DatabasePath string
	// FirebaseAuthKey はInstance ID APIのサーバーキー。
	FirebaseAuthKey string
	// UserAPIKey はユーザー向けエンドポイントのAPIキー。
	UserAPIKey string
	// AdminAPIKey は管理者向けエンドポイントのAPIキー。
	AdminAPIKey string
	// TopicPrefix はトピック名に付与するプレフィックス。
	TopicPrefix string
	// FCMProject はFCMのプロジェクトID。
	FCMProject string
	// FirebaseClientEmail はサービスアカウントのメールアドレス。
	FirebaseClientEmail string
	// FirebasePrivateKey はサービスアカウントの秘密鍵（PEM）。
	FirebasePrivateKey string
	// VAPIDPublicKey はWeb Push用のVAPID公開鍵（base64）。
	VAPIDPublicKey string
	// AllowedOrigins はCORSで許可するオリジン。
	AllowedOrigins []string
	// PermittedIOSBundles は登録を許可するiOSバンドル名。空の場合はすべて許可する。
	PermittedIOSBundles []string
	// VerifyIAP はIdentity-Aware Proxyの署名を検証するかどうか。
	VerifyIAP bool
	// IAPAllowlist はIAP経由のアクセスを許可するメールアドレスと "@domain"。
	IAPAllowlist []string
	// IAPDisableLog はIAP検証のログを出力しないかどうか。
	IAPDisableLog bool
	// IIDBaseURL はInstance ID APIのベースURL。
	IIDBaseURL string
	// FCMBaseURL はFCM送信APIのベースURL。
	FCMBaseURL string
	// IAPKeysURL はIAPの公開鍵を取得するURL。
	IAPKeysURL string
}

// Load は環境変数から設定を読み込む。
// 必須の環境変数が欠けている場合は、欠けているものをすべてまとめたエラーを返す。
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	return load(v)
}

// load はvから設定を読み込む。
func load(v *viper.Viper) (*Config, error) {
	v.SetDefault(KeyServerPort, "3000")
	v.SetDefault(KeyAppEnv, "development")
	v.SetDefault(KeyDatabasePath, "/data/pushkin.db")
	v.SetDefault(KeyVerifyIAP, false)
	v.SetDefault(KeyIAPDisableLog, false)
	v.SetDefault(KeyIIDBaseURL, "https://iid.googleapis.com")
	v.SetDefault(KeyFCMBaseURL, "https://fcm.googleapis.com")
	v.SetDefault(KeyIAPKeysURL, "https://www.gstatic.com/iap/verify/public_key")

	var errs error
	for _, key := range requiredKeys {
		if strings.TrimSpace(v.GetString(key)) == "" {
			errs = multierr.Append(errs, fmt.Errorf("環境変数 %s が設定されていません", key))
		}
	}

	port := v.GetString(KeyServerPort)
	if _, err := strconv.Atoi(port); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("環境変数 %s が数値ではありません: %q", KeyServerPort, port))
	}

	if errs != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", errs)
	}

	// 環境変数では改行を "\n" と書くため、実際の改行に戻す
	privateKey := strings.ReplaceAll(v.GetString(KeyFirebasePrivateKey), `\n`, "\n")

	origins := splitList(v.GetString(KeyAllowedOrigins))
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return &Config{
		Port:                port,
		Env:                 v.GetString(KeyAppEnv),
		DatabasePath:        v.GetString(KeyDatabasePath),
		FirebaseAuthKey:     v.GetString(KeyFirebaseAuthKey),
		UserAPIKey:          v.GetString(KeyUserAPIKey),
		AdminAPIKey:         v.GetString(KeyAdminAPIKey),
		TopicPrefix:         v.GetString(KeyTopicPrefix),
		FCMProject:          v.GetString(KeyFCMProject),
		FirebaseClientEmail: v.GetString(KeyFirebaseClientEmail),
		FirebasePrivateKey:  privateKey,
		VAPIDPublicKey:      v.GetString(KeyVAPIDPublicKey),
		AllowedOrigins:      origins,
		PermittedIOSBundles: splitList(v.GetString(KeyPermittedIOSBundles)),
		VerifyIAP:           v.GetBool(KeyVerifyIAP),
		IAPAllowlist:        splitList(v.GetString(KeyIAPAllowlist)),
		IAPDisableLog:       v.GetBool(KeyIAPDisableLog),
		IIDBaseURL:          v.GetString(KeyIIDBaseURL),
		FCMBaseURL:          v.GetString(KeyFCMBaseURL),
		IAPKeysURL:          v.GetString(KeyIAPKeysURL),
	}, nil
}

// HasServiceAccount はメッセージ送信用のサービスアカウントが設定されているかを返す。
func (c *Config) HasServiceAccount() bool {
	return c.FirebaseClientEmail != "" && c.FirebasePrivateKey != ""
}

// IOSBundlePermitted はバンドル名の登録が許可されているかを返す。
func (c *Config) IOSBundlePermitted(bundle string) bool {
	if len(c.PermittedIOSBundles) == 0 {
		return true
	}
	return slices.Contains(c.PermittedIOSBundles, bundle)
}

// splitList はカンマ区切りの文字列を分割する。空の要素は除く。
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
