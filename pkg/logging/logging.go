// Package logging はzapによる構造化ロガーの生成とコンテキスト伝播を提供する。
package logging

import (
	"context"
	"os"

	"go.uber.org/zap"
)

// NewLogger は新しいzap.SugaredLoggerを生成する。
// 環境変数 DEBUG が "true" の場合は開発用設定、それ以外は本番用（JSON）設定を使用する。
func NewLogger() *zap.SugaredLogger {
	var config zap.Config
	if debug, ok := os.LookupEnv("DEBUG"); ok && debug == "true" {
		config = zap.NewDevelopmentConfig()
	} else {
		config = zap.NewProductionConfig()
	}
	config.OutputPaths = []string{"stdout"}
	logger, err := config.Build()
	if err != nil {
		panic(err)
	}
	return logger.Named("pushkin").Sugar()
}

// NewNop は何も出力しないロガーを返す。テストで使用する。
func NewNop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// loggerKey はコンテキストにロガーを格納するためのキー。
type loggerKey struct{}

// WithLogger はロガーを格納したコンテキストを返す。
func WithLogger(ctx context.Context, logger *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext はコンテキストからロガーを取り出す。
// 格納されていない場合は新しいロガーを生成して返す。
func FromContext(ctx context.Context) *zap.SugaredLogger {
	if logger, ok := ctx.Value(loggerKey{}).(*zap.SugaredLogger); ok {
		return logger
	}
	return NewLogger()
}
