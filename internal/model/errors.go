// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: network, validation, alert, config, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeNetwork        = "NETWORK_ERROR"
	ErrCodeRateLimited    = "RATE_LIMITED"
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeAlertNotFound  = "ALERT_NOT_FOUND"
	ErrCodeConfiguration  = "CONFIGURATION_ERROR"
	ErrCodeInvalidRequest = "INVALID_REQUEST"
)

// NewNetworkError は外部リクエスト失敗エラーを生成する。
// タイムアウト、DNS解決失敗、非2xxレスポンスなどが対象。
func NewNetworkError(url, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeNetwork,
		Message:  fmt.Sprintf("外部リクエストに失敗しました: %s: %s", url, reason),
		Category: "network",
		Action:   "対象サイトの状態を確認し、しばらく待ってから再度お試しください。",
	}
}

// NewRateLimitedError はバイパス手段がない状態でレート制限を受けた場合のエラーを生成する。
func NewRateLimitedError(url string) *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  fmt.Sprintf("レート制限を受けましたが、バイパス用のAPIキーが設定されていません: %s", url),
		Category: "network",
		Action:   "SCRAPER_API_KEYを設定するか、時間を置いてから再実行してください。",
	}
}

// NewValidationError は出品候補またはアラート入力の検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力値の検証に失敗しました: %s", reason),
		Category: "validation",
		Action:   "必須項目と値の形式を確認してください。",
	}
}

// NewAlertNotFoundError はアラートがユーザーIDとIDの組で見つからない場合のエラーを生成する。
func NewAlertNotFoundError(alertID string) *APIError {
	return &APIError{
		Code:     ErrCodeAlertNotFound,
		Message:  fmt.Sprintf("指定されたアラートが見つかりません: %s", alertID),
		Category: "alert",
		Action:   "アラートIDとユーザーIDを確認してください。",
	}
}

// NewConfigurationError は通知チャネルやバイパスプロバイダーの認証情報が
// 未設定の場合のエラーを生成する。
func NewConfigurationError(what string) *APIError {
	return &APIError{
		Code:     ErrCodeConfiguration,
		Message:  fmt.Sprintf("必要な認証情報が設定されていません: %s", what),
		Category: "config",
		Action:   "環境変数で該当の認証情報を設定してください。",
	}
}

// NewInvalidRequestError は不正なリクエストボディ・パラメータのエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("不正なリクエストです: %s", reason),
		Category: "validation",
		Action:   "リクエスト形式を確認してください。",
	}
}

// IsRateLimited はエラーがレート制限（バイパス不可）エラーかどうかを判定する。
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == ErrCodeRateLimited
}

// IsValidation はエラーが検証エラーかどうかを判定する。
func IsValidation(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == ErrCodeValidation
}
