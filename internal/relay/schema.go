package relay

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"go.uber.org/zap"

	"github.com/nao1215/pushkin/pkg/migration"
)

//go:embed migrations
var migrationsFS embed.FS

// Migrate は購読状態を記録するテーブルのマイグレーションを実行する。
// スキーマの内容は db/relay/schema.sql と同期すること。
func Migrate(ctx context.Context, sqlDB *sql.DB, logger *zap.SugaredLogger) error {
	applied, err := migration.Run(ctx, sqlDB, migrationsFS, "migrations", logger)
	if err != nil {
		return fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}
	if applied > 0 {
		logger.Infow("スキーマを更新しました", "applied", applied)
	}
	return nil
}

// OpenDB はSQLiteデータベースを開く。pathに ":memory:" を指定するとメモリ上に作成する。
func OpenDB(path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	if path == ":memory:" {
		// 接続ごとに別のデータベースになるため1接続に制限する
		sqlDB.SetMaxOpenConns(1)
	}
	return sqlDB, nil
}
