// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, catalog, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeEmailNotVerified   = "EMAIL_NOT_VERIFIED"
	ErrCodeEmailInUse         = "EMAIL_IN_USE"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeInvalidToken       = "INVALID_TOKEN"
	ErrCodeReauthRequired     = "REAUTH_REQUIRED"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeToolNotFound       = "TOOL_NOT_FOUND"
	ErrCodeUploadIncomplete   = "UPLOAD_INCOMPLETE"
	ErrCodeAssetDeletePartial = "ASSET_DELETE_PARTIAL"
	ErrCodeProfileSyncFailed  = "PROFILE_SYNC_FAILED"
	ErrCodeInvalidVideoURL    = "INVALID_VIDEO_URL"
)

// NewInvalidCredentialsError は認証情報不一致エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewEmailNotVerifiedError はメール未確認エラーを生成する。
// 一般的な認証失敗とは区別可能なコードを持つ。
func NewEmailNotVerifiedError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailNotVerified,
		Message:  "メールアドレスが確認されていません。",
		Category: "auth",
		Action:   "受信箱の確認メールを開くか、確認メールを再送してください。",
	}
}

// NewEmailInUseError はメールアドレス重複エラーを生成する。
func NewEmailInUseError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailInUse,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "別のメールアドレスを使用するか、ログインしてください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "管理者アカウントでログインしてください。",
	}
}

// NewInvalidTokenError は無効トークンエラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "リンクが無効か、有効期限が切れています。",
		Category: "auth",
		Action:   "メールの再送をリクエストしてください。",
	}
}

// NewReauthRequiredError は再認証要求エラーを生成する。
func NewReauthRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeReauthRequired,
		Message:  "この変更には再認証が必要です。",
		Category: "auth",
		Action:   "現在のパスワードを入力して再認証してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewValidationError はフォーム入力の検証エラーを生成する。
// ネットワーク呼び出しの前に検出され、即座にユーザーへ返される。
func NewValidationError(fields ...string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("入力内容に誤りがあります: %s", strings.Join(fields, ", ")),
		Category: "validation",
		Action:   "指摘された項目を修正して再度お試しください。",
	}
}

// NewToolNotFoundError はツール未検出エラーを生成する。
func NewToolNotFoundError(toolID string) *APIError {
	return &APIError{
		Code:     ErrCodeToolNotFound,
		Message:  fmt.Sprintf("指定されたツールが見つかりません: %s", toolID),
		Category: "catalog",
		Action:   "ツールIDを確認してください。",
	}
}

// NewUploadIncompleteError は未完了アップロード参照エラーを生成する。
// アップロードが完了していないアセットを参照するレコードは書き込めない。
func NewUploadIncompleteError(path string) *APIError {
	return &APIError{
		Code:     ErrCodeUploadIncomplete,
		Message:  fmt.Sprintf("アップロードが完了していないアセットを参照しています: %s", path),
		Category: "catalog",
		Action:   "アセットのアップロード完了を待ってから保存してください。",
	}
}

// NewAssetDeletePartialError はアセット削除の部分失敗エラーを生成する。
// レコード自体は削除済みで、残されたアセットのパスを含む。
func NewAssetDeletePartialError(orphaned []string) *APIError {
	return &APIError{
		Code:     ErrCodeAssetDeletePartial,
		Message:  fmt.Sprintf("ツールは削除されましたが、一部のアセットを削除できませんでした: %s", strings.Join(orphaned, ", ")),
		Category: "catalog",
		Action:   "残されたアセットは手動でのクリーンアップが必要です。",
	}
}

// NewProfileSyncFailedError はプロファイルミラー同期失敗エラーを生成する。
// アイデンティティ側の更新は完了しており、ロールバックは行われない。
func NewProfileSyncFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeProfileSyncFailed,
		Message:  "プロファイルの同期に失敗しました。",
		Category: "system",
		Action:   "しばらく待ってからプロファイルを更新し直してください。",
	}
}

// NewInvalidVideoURLError は無効なデモ動画URLエラーを生成する。
func NewInvalidVideoURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidVideoURL,
		Message:  fmt.Sprintf("無効なデモ動画URLです: %s", reason),
		Category: "validation",
		Action:   "https:// で始まる公開URLを入力してください。",
	}
}
