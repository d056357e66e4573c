// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// APIキーとIdentity-Aware Proxyによるアクセス制御、リクエストログ、
// パニックリカバリ、CORS、キャッシュ制御、リクエスト数のメトリクスなど、
// pushkinのすべてのルートで使用するミドルウェアを含む。
package middleware
