package model

import (
	"fmt"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string   // エラーコード
	Message  string   // エラーメッセージ
	Category string   // カテゴリ: validation, workflow, sync, system
	Action   string   // ユーザー向け対処方法
	Allowed  []string // 遷移グラフ違反時のみ: 遷移可能なステータス一覧
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeApplicationNotFound = "APPLICATION_NOT_FOUND"
	ErrCodeJobNotFound         = "JOB_NOT_FOUND"
	ErrCodeInvalidStatus       = "INVALID_STATUS"
	ErrCodeNoOpTransition      = "NO_OP_TRANSITION"
	ErrCodeInvalidTransition   = "INVALID_TRANSITION"
	ErrCodeMissingNote         = "MISSING_JUSTIFICATION"
	ErrCodeConflict            = "CONCURRENT_MODIFICATION"
	ErrCodeSyncInProgress      = "SYNC_IN_PROGRESS"
	ErrCodeSyncDisabled        = "SYNC_DISABLED"
	ErrCodeSyncFailed          = "SYNC_FAILED"
)

// NewApplicationNotFoundError は応募未検出エラーを生成する。
func NewApplicationNotFoundError(applicationID string) *APIError {
	return &APIError{
		Code:     ErrCodeApplicationNotFound,
		Message:  fmt.Sprintf("指定された応募が見つかりません: %s", applicationID),
		Category: "validation",
		Action:   "応募IDを確認してください。",
	}
}

// NewJobNotFoundError は求人未検出エラーを生成する。
func NewJobNotFoundError(jobID string) *APIError {
	return &APIError{
		Code:     ErrCodeJobNotFound,
		Message:  fmt.Sprintf("指定された求人が見つかりません: %s", jobID),
		Category: "validation",
		Action:   "求人IDを確認してください。",
	}
}

// NewInvalidStatusError は未定義ステータスエラーを生成する。
func NewInvalidStatusError(status string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatus,
		Message:  fmt.Sprintf("無効な選考ステータスです: %s", status),
		Category: "validation",
		Action:   "定義済みの選考ステータスを指定してください。",
	}
}

// NewNoOpTransitionError は同一ステータスへの遷移エラーを生成する。
func NewNoOpTransitionError(status ApplicationStatus) *APIError {
	return &APIError{
		Code:     ErrCodeNoOpTransition,
		Message:  fmt.Sprintf("応募はすでにステータス %s です。", status),
		Category: "workflow",
		Action:   "現在と異なるステータスを指定してください。",
	}
}

// NewInvalidTransitionError は遷移グラフ違反エラーを生成する。
// 遷移可能なステータス一覧をメッセージに含める。
func NewInvalidTransitionError(from, to ApplicationStatus, allowed []ApplicationStatus) *APIError {
	names := make([]string, len(allowed))
	for i, s := range allowed {
		names[i] = string(s)
	}
	allowedStr := "なし（終端ステータス）"
	if len(names) > 0 {
		allowedStr = strings.Join(names, ", ")
	}
	return &APIError{
		Code:     ErrCodeInvalidTransition,
		Message:  fmt.Sprintf("%s から %s への遷移は許可されていません。", from, to),
		Category: "workflow",
		Action:   fmt.Sprintf("遷移可能なステータス: %s", allowedStr),
		Allowed:  names,
	}
}

// NewMissingNoteError は理由メモ未入力エラーを生成する。
func NewMissingNoteError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingNote,
		Message:  "ステータス変更には理由メモの入力が必須です。",
		Category: "validation",
		Action:   "変更理由を入力してから再度お試しください。",
	}
}

// NewConflictError は同時更新競合エラーを生成する。
func NewConflictError() *APIError {
	return &APIError{
		Code:     ErrCodeConflict,
		Message:  "応募が他の操作により更新されています。",
		Category: "workflow",
		Action:   "最新の状態を読み込み直してから再度お試しください。",
	}
}

// NewSyncInProgressError は同期実行中エラーを生成する。
func NewSyncInProgressError() *APIError {
	return &APIError{
		Code:     ErrCodeSyncInProgress,
		Message:  "面接同期はすでに実行中です。",
		Category: "sync",
		Action:   "実行中の同期が完了してから再度お試しください。",
	}
}

// NewSyncDisabledError は同期無効エラーを生成する。
func NewSyncDisabledError() *APIError {
	return &APIError{
		Code:     ErrCodeSyncDisabled,
		Message:  "スケジューリング連携が設定されていないため、面接同期は無効です。",
		Category: "sync",
		Action:   "管理画面で連携設定を完了してください。",
	}
}

// NewSyncFailedError は同期実行失敗エラーを生成する。
func NewSyncFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeSyncFailed,
		Message:  fmt.Sprintf("面接同期の実行に失敗しました: %s", reason),
		Category: "sync",
		Action:   "プロバイダとの接続設定を確認し、しばらく待ってから再度お試しください。",
	}
}
