// Package fcm はFirebase Instance ID APIとFirebase Cloud Messaging (HTTP v1) APIのクライアントを提供する。
//
// Instance ID APIはサーバーキー（Authorization: key=...）で認証し、
// デバイストークンの登録やトピック購読の管理に使用する。
// メッセージ送信はサービスアカウントのOAuth2アクセストークンで認証する。
package fcm
