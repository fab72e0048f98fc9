// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/hitoshi/hireman/internal/model"
)

// ErrConflict は楽観的排他制御による更新競合を表す。
// 比較対象のステータスがすでに他の操作で変更されていた場合に返される。
var ErrConflict = errors.New("更新競合: 応募はすでに他の操作により変更されています")

// ErrNotFound は更新対象の行が存在しない場合を表す。
// 参照系はnilを返す規約のため、このエラーは更新系メソッドのみが返す。
var ErrNotFound = errors.New("対象の行が見つかりません")

// ApplicationRepository は応募データの永続化インターフェース。
type ApplicationRepository interface {
	// FindByID は指定IDの応募を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Application, error)

	// FindLatestByEmail は候補者メールアドレスが完全一致（大文字小文字区別）する応募のうち、
	// created_atが最も新しい1件を返す。見つからない場合はnilを返す。
	FindLatestByEmail(ctx context.Context, email string) (*model.Application, error)

	// Create は応募を作成する。
	Create(ctx context.Context, app *model.Application) error

	// List は応募一覧をcreated_at降順で返す。
	List(ctx context.Context, limit int) ([]*model.Application, error)

	// UpdateStatus はステータスをcompare-and-setで更新し、同一トランザクションで
	// 監査履歴を追記する。fromが現在のステータスと一致しない場合はErrConflictを、
	// 行が存在しない場合はErrNotFoundを返す。
	UpdateStatus(ctx context.Context, change *model.StatusChange) error

	// ListStatusHistory は応募のステータス変更履歴をcreated_at降順で返す。
	ListStatusHistory(ctx context.Context, applicationID string) ([]*model.StatusChange, error)
}

// InterviewRepository は面接データの永続化インターフェース。
type InterviewRepository interface {
	// FindByExternalEventID は外部イベントIDで面接を検索する。
	// 重複排除チェックに使用する。見つからない場合はnilを返す。
	FindByExternalEventID(ctx context.Context, externalEventID string) (*model.Interview, error)

	// Create は面接を作成する。
	Create(ctx context.Context, interview *model.Interview) error

	// ListRecent は面接一覧をscheduled_at降順で返す。
	ListRecent(ctx context.Context, limit int) ([]*model.Interview, error)
}

// JobRepository は求人データの永続化インターフェース。
type JobRepository interface {
	// FindByID は指定IDの求人を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Job, error)

	// Create は求人を作成する。
	Create(ctx context.Context, job *model.Job) error

	// List は求人一覧をcreated_at降順で返す。
	List(ctx context.Context, limit int) ([]*model.Job, error)

	// Deactivate は求人の応募受付フラグをfalseにする。冪等であり、
	// すでに停止済みの場合も成功として扱う。行が存在しない場合はErrNotFoundを返す。
	Deactivate(ctx context.Context, id string) error
}

// SyncSettingsRepository は同期設定の読み取りインターフェース。
// 設定の作成・更新は管理画面のCRUD操作であり、このコアからは読み取り専用。
type SyncSettingsRepository interface {
	// Get は同期設定を取得する。未設定の場合はnilを返す。
	Get(ctx context.Context) (*model.SyncSettings, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
