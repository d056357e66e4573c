// プッシュ通知中継サービスのエントリポイント。
// Web PushとiOSの購読情報をFirebaseの登録トークンに変換し、
// 環境ごとに名前空間化したトピックへの購読とメッセージ送信を中継する。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/nao1215/pushkin/internal/config"
	"github.com/nao1215/pushkin/internal/relay"
	"github.com/nao1215/pushkin/pkg/fcm"
	"github.com/nao1215/pushkin/pkg/logging"
)

// drainTimeout は停止時に処理中の登録要求を待つ時間の上限。
const drainTimeout = 30 * time.Second

func main() {
	logger := logging.NewLogger()
	defer func() { _ = logger.Sync() }()

	if err := run(logger); err != nil {
		logger.Errorw("中継サービスが異常終了しました", "error", err)
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(logger *zap.SugaredLogger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sqlDB, err := relay.OpenDB(cfg.DatabasePath)
	if err != nil {
		return err
	}
	if err := relay.Migrate(ctx, sqlDB, logger); err != nil {
		_ = sqlDB.Close()
		return err
	}

	opts := []fcm.Option{
		fcm.WithIIDBaseURL(cfg.IIDBaseURL),
		fcm.WithFCMBaseURL(cfg.FCMBaseURL),
		fcm.WithProject(cfg.FCMProject),
	}
	if cfg.HasServiceAccount() {
		opts = append(opts, fcm.WithTokenSource(
			fcm.ServiceAccountTokenSource(context.Background(), cfg.FirebaseClientEmail, cfg.FirebasePrivateKey),
		))
	} else {
		logger.Warnw("サービスアカウントが設定されていないため、メッセージ送信は利用できません")
	}
	if !cfg.VerifyIAP && cfg.Env != "development" {
		logger.Warnw("IAPの署名検証が無効のまま起動します", "env", cfg.Env)
	}

	server := relay.NewServer(cfg, sqlDB, fcm.New(cfg.FirebaseAuthKey, opts...), logger)

	runErr := server.Run(ctx)

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := server.Close(drainCtx); err != nil {
		runErr = multierr.Append(runErr, fmt.Errorf("中継サービスの停止処理に失敗: %w", err))
	}
	if runErr == nil {
		logger.Infow("中継サービスを停止しました")
	}
	return runErr
}
