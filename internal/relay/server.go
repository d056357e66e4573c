package relay

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/nao1215/pushkin/internal/coalescer"
	"github.com/nao1215/pushkin/internal/config"
	relaydb "github.com/nao1215/pushkin/internal/relay/db"
	"github.com/nao1215/pushkin/pkg/fcm"
	"github.com/nao1215/pushkin/pkg/middleware"
	"github.com/nao1215/pushkin/pkg/namespace"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間の上限。
const shutdownTimeout = 10 * time.Second

// Server はプッシュ通知中継サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// cfg はサービスの設定。
	cfg *config.Config
	// queries はsqlcが生成したクエリ実行オブジェクト。
	queries *relaydb.Queries
	// db はSQLiteデータベース接続。
	db *sql.DB
	// firebase はFirebaseのAPIクライアント。
	firebase *fcm.Client
	// registrations はiOSの登録要求を一括呼び出しにまとめる。
	registrations *coalescer.Coalescer
	// ns はトピック名の名前空間。
	ns *namespace.Namespace
	// validate はバインド後に組み立てたメッセージの検証に使用する。
	validate *validator.Validate
	// iapKeys はIAPの署名検証に使用する公開鍵の取得元。
	iapKeys middleware.KeySource
	// logger はサーバー全体のロガー。
	logger *zap.SugaredLogger
}

// Option はServerの設定を変更する関数。
type Option func(*Server)

// WithIAPKeySource はIAPの署名検証に使用する公開鍵の取得元を差し替える。
func WithIAPKeySource(keys middleware.KeySource) Option {
	return func(s *Server) { s.iapKeys = keys }
}

// WithCoalescer はiOSの登録要求をまとめるCoalescerを差し替える。
func WithCoalescer(c *coalescer.Coalescer) Option {
	return func(s *Server) { s.registrations = c }
}

// NewServer は新しい中継サーバーを生成する。
// sqlDBにはMigrateを適用済みのデータベースを渡す。
func NewServer(cfg *config.Config, sqlDB *sql.DB, firebase *fcm.Client, logger *zap.SugaredLogger, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		queries:  relaydb.New(sqlDB),
		db:       sqlDB,
		firebase: firebase,
		ns:       namespace.New(cfg.TopicPrefix, cfg.Env),
		validate: newValidator(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registrations == nil {
		s.registrations = coalescer.New(&apnsRegistrar{importer: firebase}, coalescer.WithLogger(logger))
	}
	if s.iapKeys == nil && cfg.VerifyIAP {
		s.iapKeys = middleware.NewGoogleKeySource(cfg.IAPKeysURL)
	}

	router := gin.New()
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Metrics())
	router.Use(middleware.CORS(cfg.AllowedOrigins))
	router.Use(middleware.NoCache())
	s.router = router
	s.setupRoutes()

	return s
}

// Handler はサーバーのhttp.Handlerを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルシャットダウンする。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Infow("中継サービスを起動しました", "port", s.cfg.Port, "env", s.cfg.Env)

	select {
	case err := <-errCh:
		return fmt.Errorf("中継サービスの起動に失敗: %w", err)
	case <-ctx.Done():
	}

	s.logger.Infow("中継サービスを停止します")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTPサーバーの停止に失敗: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close は処理中の登録要求の完了を待ってからデータベース接続を閉じる。
func (s *Server) Close(ctx context.Context) error {
	var err error
	if waitErr := s.registrations.Wait(ctx); waitErr != nil {
		err = multierr.Append(err, fmt.Errorf("登録要求の完了待ちに失敗: %w", waitErr))
	}
	if closeErr := s.db.Close(); closeErr != nil {
		err = multierr.Append(err, fmt.Errorf("データベースのクローズに失敗: %w", closeErr))
	}
	return err
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	user := s.router.Group("")
	user.Use(middleware.APIKey(middleware.KeyTypeUser, s.cfg.UserAPIKey, s.logger))
	{
		// 購読情報から登録トークンを取得
		user.POST("/registrations", s.handleRegister())
		// 登録トークンが購読しているトピック一覧
		user.GET("/registrations/:registration_id/topics", s.handleRegistrationTopics())
		// トピックの購読と購読解除
		user.POST("/topics/:topic_name/subscribers/:registration_id", s.handleSubscribe())
		user.DELETE("/topics/:topic_name/subscribers/:registration_id", s.handleUnsubscribe())
		// Web Push用のVAPID公開鍵
		user.GET("/vapid-key", s.handleVAPIDKey())
	}

	admin := s.router.Group("")
	admin.Use(middleware.IAP(middleware.IAPConfig{
		Enabled:    s.cfg.VerifyIAP,
		Env:        s.cfg.Env,
		Allowlist:  s.cfg.IAPAllowlist,
		DisableLog: s.cfg.IAPDisableLog,
		Keys:       s.iapKeys,
		Logger:     s.logger,
	}))
	admin.Use(middleware.APIKey(middleware.KeyTypeAdmin, s.cfg.AdminAPIKey, s.logger))
	{
		// 一括購読と一括購読解除
		admin.POST("/topics/:topic_name/subscribers", s.handleBulkSubscribe())
		admin.DELETE("/topics/:topic_name/subscribers", s.handleBulkUnsubscribe())
		// トピックの購読者
		admin.GET("/topics/:topic_name/subscribers", s.handleTopicSubscribers())
		admin.GET("/topics/:topic_name", s.handleTopicDetails())
		// メッセージ送信
		admin.POST("/topics/:topic_name", s.handleSendToTopic())
		admin.POST("/send", s.handleSendToCondition())
		admin.POST("/registrations/:registration_id", s.handleSendToRegistration())
	}

	// ヘルスチェック
	s.router.GET("/healthcheck", s.handleHealthcheck())
	// Prometheusメトリクス
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
