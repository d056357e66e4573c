// Package relay はプッシュ通知中継サービスのHTTPサーバーを提供する。
//
// クライアントのWeb Push購読やiOSのAPNsトークンをFirebaseの登録トークンに変換し、
// 環境ごとに名前空間化したトピックへの購読と、メッセージ送信を中継する。
// iOSの登録要求はcoalescerで一括呼び出しにまとめてからFirebaseへ送る。
// 購読状態と購読履歴はSQLiteに記録する。
package relay
