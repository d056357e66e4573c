// Package httpclient は外部APIとのJSON通信を行うHTTPクライアントを提供する。
//
// Firebase Instance ID APIやFCM送信APIの呼び出しに使用する。
// 固定ヘッダー（APIキー）やアクセストークンの付与、2xx以外のレスポンスの
// エラー化など、外部API呼び出しの共通処理をまとめる。
package httpclient
