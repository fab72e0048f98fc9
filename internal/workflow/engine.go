// Package workflow は応募ステータスのワークフローエンジンを提供する。
// 遷移グラフの検証、理由メモの強制、遷移成功後の副作用の発火を担う。
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/hireman/internal/model"
	"github.com/hitoshi/hireman/internal/notify"
	"github.com/hitoshi/hireman/internal/repository"
)

// ApplicationStore はエンジンが必要とする応募永続化のインターフェース。
type ApplicationStore interface {
	// FindByID は指定IDの応募を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Application, error)
	// UpdateStatus はステータスをcompare-and-setで更新し、監査履歴を追記する。
	UpdateStatus(ctx context.Context, change *model.StatusChange) error
}

// JobDeactivator は求人の応募受付停止のインターフェース。
type JobDeactivator interface {
	// Deactivate は求人の応募受付フラグをfalseにする。冪等。
	Deactivate(ctx context.Context, id string) error
}

// NoteSanitizer は理由メモのサニタイズのインターフェース。
type NoteSanitizer interface {
	Sanitize(raw string) string
}

// TransitionRecorder は遷移メトリクス記録のインターフェース。
type TransitionRecorder interface {
	RecordStatusTransition(to model.ApplicationStatus)
	RecordNotifyFailure()
}

// statusTemplates はステータスごとの通知テンプレートキー。
// ここにマッピングのないステータスへの遷移では通知を送らない（エラーではない）。
var statusTemplates = map[model.ApplicationStatus]string{
	model.StatusShortlisted: "application_shortlisted",
	model.StatusWaitingList: "application_waiting_list",
	model.StatusHired:       "application_hired",
	model.StatusRejected:    "application_rejected",
}

// Engine は応募ステータスのワークフローエンジン。
// 遷移の検証と永続化を行い、コミット済みの遷移に対してのみ副作用
// （候補者への通知、採用決定時の求人自動停止）を発火する。
// 副作用の失敗はログに記録するだけで、遷移自体を失敗させない。
type Engine struct {
	apps       ApplicationStore
	jobs       JobDeactivator
	dispatcher notify.Dispatcher
	sanitizer  NoteSanitizer
	logger     *slog.Logger
	recorder   TransitionRecorder
}

// NewEngine はEngineの新しいインスタンスを生成する。
// recorderがnilの場合はメトリクスを記録しない。
func NewEngine(
	apps ApplicationStore,
	jobs JobDeactivator,
	dispatcher notify.Dispatcher,
	sanitizer NoteSanitizer,
	logger *slog.Logger,
	recorder TransitionRecorder,
) *Engine {
	return &Engine{
		apps:       apps,
		jobs:       jobs,
		dispatcher: dispatcher,
		sanitizer:  sanitizer,
		logger:     logger,
		recorder:   recorder,
	}
}

// AttemptTransition は応募のステータス遷移を検証して適用する。
// 検証は次の順に行う:
//  1. 自己遷移 → ErrNoOpTransition
//  2. 遷移グラフの検証 → InvalidTransitionError（遷移可能な一覧を含む）
//  3. 理由メモの空チェック（前後の空白を除去後） → ErrMissingJustification
//
// 永続化は単一行のcompare-and-set更新であり、競合時はErrConcurrentModificationを返す。
// 成功時はappの内容を更新後の状態に書き換える。
func (e *Engine) AttemptTransition(ctx context.Context, app *model.Application, requested model.ApplicationStatus, note string) error {
	if requested == app.Status {
		return ErrNoOpTransition
	}

	if !model.CanTransition(app.Status, requested) {
		return &InvalidTransitionError{
			From:    app.Status,
			To:      requested,
			Allowed: model.AllowedNextStatuses(app.Status),
		}
	}

	// 理由メモはサニタイズ後にトリムして空チェックする。
	// タグのみのメモ（"<b></b>"等）も空として扱われる。
	cleanNote := strings.TrimSpace(e.sanitizer.Sanitize(note))
	if cleanNote == "" {
		return ErrMissingJustification
	}

	change := &model.StatusChange{
		ApplicationID: app.ID,
		FromStatus:    app.Status,
		ToStatus:      requested,
		Note:          cleanNote,
	}

	if err := e.apps.UpdateStatus(ctx, change); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return ErrConcurrentModification
		}
		if errors.Is(err, repository.ErrNotFound) {
			return ErrApplicationNotFound
		}
		return fmt.Errorf("ステータス遷移の永続化に失敗しました: %w", err)
	}

	app.Status = requested
	app.Notes = cleanNote
	app.UpdatedAt = time.Now()

	if e.recorder != nil {
		e.recorder.RecordStatusTransition(requested)
	}

	e.logger.Info("応募ステータスを変更しました",
		slog.String("application_id", app.ID),
		slog.String("from_status", string(change.FromStatus)),
		slog.String("to_status", string(requested)),
	)

	// コミット済みの遷移に対してのみ副作用を発火する
	e.fireSideEffects(ctx, app, change.FromStatus)

	return nil
}

// UpdateStatus は応募を読み込んで遷移を適用する。
// 更新競合が発生した場合は最新の状態を読み込み直して1回だけ再試行する。
// 再試行後の検証エラー（遷移済み等）はそのまま呼び出し元へ返す。
func (e *Engine) UpdateStatus(ctx context.Context, applicationID string, requested model.ApplicationStatus, note string) (*model.Application, error) {
	app, err := e.apps.FindByID(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("応募の取得に失敗しました: %w", err)
	}
	if app == nil {
		return nil, ErrApplicationNotFound
	}

	err = e.AttemptTransition(ctx, app, requested, note)
	if errors.Is(err, ErrConcurrentModification) {
		e.logger.Warn("更新競合が発生したため再試行します",
			slog.String("application_id", applicationID),
		)

		app, err = e.apps.FindByID(ctx, applicationID)
		if err != nil {
			return nil, fmt.Errorf("再試行時の応募の取得に失敗しました: %w", err)
		}
		if app == nil {
			return nil, ErrApplicationNotFound
		}
		err = e.AttemptTransition(ctx, app, requested, note)
	}
	if err != nil {
		return nil, err
	}

	return app, nil
}

// fireSideEffects はコミット済みの遷移に対する副作用を発火する。
// 通知送信と求人自動停止のいずれもベストエフォートであり、
// 失敗してもログに記録するだけで呼び出し元へは伝播しない。
func (e *Engine) fireSideEffects(ctx context.Context, app *model.Application, from model.ApplicationStatus) {
	// 1. ステータスに対応するテンプレートがあれば候補者へ通知する
	if templateKey, ok := statusTemplates[app.Status]; ok {
		vars := map[string]string{
			"candidate_name": app.CandidateName,
			"position":       app.Position,
			"status":         string(app.Status),
		}
		if err := e.dispatcher.Send(ctx, templateKey, app.CandidateEmail, vars); err != nil {
			if e.recorder != nil {
				e.recorder.RecordNotifyFailure()
			}
			e.logger.Error("ステータス変更通知の送信に失敗しました",
				slog.String("application_id", app.ID),
				slog.String("template", templateKey),
				slog.String("error", err.Error()),
			)
		}
	}

	// 2. 採用決定時は求人の応募受付を自動停止する（冪等）
	if app.Status == model.StatusHired && app.JobID != "" {
		if err := e.jobs.Deactivate(ctx, app.JobID); err != nil {
			e.logger.Error("求人の自動停止に失敗しました",
				slog.String("application_id", app.ID),
				slog.String("job_id", app.JobID),
				slog.String("error", err.Error()),
			)
		} else {
			e.logger.Info("採用決定に伴い求人の応募受付を停止しました",
				slog.String("application_id", app.ID),
				slog.String("job_id", app.JobID),
			)
		}
	}
}
