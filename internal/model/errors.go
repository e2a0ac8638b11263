// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// ダッシュボードAPIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, storage, system
	Action   string // 利用者向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidQuery      = "INVALID_QUERY"
	ErrCodeStoreUnconfigured = "STORE_UNCONFIGURED"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// NewInvalidQueryError は無効なクエリパラメータエラーを生成する。
func NewInvalidQueryError(param, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidQuery,
		Message:  fmt.Sprintf("クエリパラメータ %s が不正です: %s", param, reason),
		Category: "validation",
		Action:   "パラメータの形式と範囲を確認してください。",
	}
}

// NewStoreUnconfiguredError はストレージ未設定エラーを生成する。
// DATABASE_URLが未設定のままserveモードを起動した場合に返される。
func NewStoreUnconfiguredError() *APIError {
	return &APIError{
		Code:     ErrCodeStoreUnconfigured,
		Message:  "ストレージバックエンドが設定されていません。",
		Category: "storage",
		Action:   "DATABASE_URLを設定してからサーバーを再起動してください。",
	}
}
