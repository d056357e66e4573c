package coalescer

import (
	"errors"
	"fmt"
)

var (
	// ErrWindowClosed は送信を開始したウィンドウに項目を追加しようとした場合のエラー。
	ErrWindowClosed = errors.New("送信済みのウィンドウには項目を追加できません")
	// ErrNotSettled は結果が確定する前にFuture.Resultを呼び出した場合のエラー。
	ErrNotSettled = errors.New("結果がまだ確定していません")
	// errEmptyResult は一括呼び出しがエラーも結果も返さなかった場合のエラー。
	errEmptyResult = errors.New("一括登録の応答が空です")
)

// TransportError は一括呼び出しそのものが失敗したことを表す。
// 同じウィンドウのすべての項目に同一のインスタンスが届く。
type TransportError struct {
	// Key は失敗したウィンドウのKey。
	Key Key
	// Err は呼び出しが返した元のエラー。
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *TransportError) Error() string {
	return fmt.Sprintf("一括登録の呼び出しに失敗 (group=%s, sandbox=%t): %v", e.Key.Group, e.Key.Sandbox, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *TransportError) Unwrap() error {
	return e.Err
}

// OverallOperationError は一括呼び出し全体が拒否されたことを表す（例: 認証エラー）。
type OverallOperationError struct {
	// Code は外部APIが返したエラーコード。
	Code int
	// Status は外部APIが返したエラー種別。
	Status string
	// Message は外部APIが返したエラーメッセージ。
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *OverallOperationError) Error() string {
	return "一括登録が拒否されました: " + e.Message
}

// ItemNotFoundError は一括呼び出しの応答にこの項目の結果が含まれていなかったことを表す。
type ItemNotFoundError struct {
	ItemID string
}

// Error はerrorインターフェースを実装する。
func (e *ItemNotFoundError) Error() string {
	return "この項目の登録結果が返されませんでした: " + e.ItemID
}

// ItemStatusError は項目の結果が成功以外のステータスだったことを表す。
type ItemStatusError struct {
	ItemID string
	Status string
}

// Error はerrorインターフェースを実装する。
func (e *ItemStatusError) Error() string {
	return fmt.Sprintf("想定外の登録ステータスです: %s (item=%s)", e.Status, e.ItemID)
}

// ItemPayloadMissingError は成功ステータスなのに値が含まれていなかったことを表す。
type ItemPayloadMissingError struct {
	ItemID string
}

// Error はerrorインターフェースを実装する。
func (e *ItemPayloadMissingError) Error() string {
	return "成功が返されましたが、値が含まれていません: " + e.ItemID
}
