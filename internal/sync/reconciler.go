// Package sync はスケジューリングプロバイダとの面接データ同期機能を提供する。
// プロバイダ上の予約済みイベントをローカルの面接テーブルへ突き合わせる
// リコンサイラと、その定期実行を管理するオーケストレータを含む。
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/hireman/internal/model"
	"github.com/hitoshi/hireman/internal/scheduling"
)

// EventSource はリコンサイラが参照するプロバイダAPIのインターフェース。
type EventSource interface {
	ListOrganizationEvents(ctx context.Context, organizationURI string) ([]scheduling.Event, error)
	ListEventInvitees(ctx context.Context, eventURI string) ([]scheduling.Invitee, error)
}

// ApplicationFinder は候補者メールアドレスによる応募の検索インターフェース。
type ApplicationFinder interface {
	FindLatestByEmail(ctx context.Context, email string) (*model.Application, error)
}

// InterviewStore は面接レコードの永続化インターフェース。
type InterviewStore interface {
	FindByExternalEventID(ctx context.Context, externalEventID string) (*model.Interview, error)
	Create(ctx context.Context, interview *model.Interview) error
}

// URLValidator はミーティングURLの保存前検証のインターフェース。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// EventError は同期実行中に発生したイベント単位のエラーを表す。
// 1件のイベントの失敗は他のイベントの処理を妨げない。
type EventError struct {
	EventURI string `json:"event_uri"`
	Message  string `json:"message"`
}

// Report は1回の同期実行の結果を表す。
type Report struct {
	// Created は新規に作成された面接レコード数。
	Created int `json:"created"`
	// Skipped は処理対象外としてスキップされたイベント数。
	// 作成済み、招待者なし、応募とのマッチなしのいずれも含む。
	Skipped int `json:"skipped"`
	// Errors はイベント単位で回復されたエラーの一覧。
	Errors []EventError `json:"errors"`
}

// Reconciler はプロバイダ上のイベントとローカルの面接レコードを突き合わせる。
// 挿入専用の設計であり、一度作成された面接レコードを同期で更新・削除することはない。
// 同一入力に対して何度実行しても結果は変わらない（冪等）。
type Reconciler struct {
	source     EventSource
	apps       ApplicationFinder
	interviews InterviewStore
	urlGuard   URLValidator
	logger     *slog.Logger
}

// NewReconciler はReconcilerの新しいインスタンスを生成する。
func NewReconciler(
	source EventSource,
	apps ApplicationFinder,
	interviews InterviewStore,
	urlGuard URLValidator,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		source:     source,
		apps:       apps,
		interviews: interviews,
		urlGuard:   urlGuard,
		logger:     logger,
	}
}

// Reconcile は組織の予約済みイベント一覧を取得し、未登録のイベントを
// 面接レコードとして取り込む。イベント一覧の取得失敗のみが実行全体の
// エラーとなり、個々のイベントの処理失敗はReportのErrorsへ回復される。
func (r *Reconciler) Reconcile(ctx context.Context, organizationURI string) (*Report, error) {
	events, err := r.source.ListOrganizationEvents(ctx, organizationURI)
	if err != nil {
		return nil, fmt.Errorf("イベント一覧の取得に失敗したため同期を中断します: %w", err)
	}

	report := &Report{}
	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("同期が中断されました: %w", err)
		}
		r.reconcileEvent(ctx, event, report)
	}

	r.logger.Info("面接同期が完了しました",
		slog.Int("total_events", len(events)),
		slog.Int("created", report.Created),
		slog.Int("skipped", report.Skipped),
		slog.Int("errors", len(report.Errors)),
	)

	return report, nil
}

// reconcileEvent は1件のイベントを処理し、結果をreportへ集計する。
// エラーはreportへ記録するだけで呼び出し元へは伝播しない。
func (r *Reconciler) reconcileEvent(ctx context.Context, event scheduling.Event, report *Report) {
	externalID, err := externalEventID(event.URI)
	if err != nil {
		report.Errors = append(report.Errors, EventError{
			EventURI: event.URI,
			Message:  err.Error(),
		})
		return
	}

	// 重複排除: 同一の外部イベントIDを持つ面接がすでにあれば何もしない
	existing, err := r.interviews.FindByExternalEventID(ctx, externalID)
	if err != nil {
		report.Errors = append(report.Errors, EventError{
			EventURI: event.URI,
			Message:  fmt.Sprintf("面接レコードの検索に失敗しました: %v", err),
		})
		return
	}
	if existing != nil {
		report.Skipped++
		return
	}

	invitees, err := r.source.ListEventInvitees(ctx, event.URI)
	if err != nil {
		report.Errors = append(report.Errors, EventError{
			EventURI: event.URI,
			Message:  fmt.Sprintf("招待者一覧の取得に失敗しました: %v", err),
		})
		return
	}
	if len(invitees) == 0 {
		r.logger.Debug("招待者のいないイベントをスキップします",
			slog.String("event_uri", event.URI),
		)
		report.Skipped++
		return
	}

	// 先頭の招待者のメールアドレスで応募とマッチングする。
	// 同一メールの応募が複数ある場合はcreated_atが最新の1件が対象。
	invitee := invitees[0]
	app, err := r.apps.FindLatestByEmail(ctx, invitee.Email)
	if err != nil {
		report.Errors = append(report.Errors, EventError{
			EventURI: event.URI,
			Message:  fmt.Sprintf("応募の検索に失敗しました: %v", err),
		})
		return
	}
	if app == nil {
		r.logger.Debug("応募とマッチしないイベントをスキップします",
			slog.String("event_uri", event.URI),
			slog.String("invitee_email", invitee.Email),
		)
		report.Skipped++
		return
	}

	// ミーティングURLは保存前に検証し、危険なURLは空として保存する。
	// URLの問題で面接レコードそのものの取り込みを失敗させない。
	meetingURL := event.JoinURL
	if meetingURL != "" {
		if err := r.urlGuard.ValidateURL(meetingURL); err != nil {
			r.logger.Warn("ミーティングURLの検証に失敗したため空として保存します",
				slog.String("event_uri", event.URI),
				slog.String("error", err.Error()),
			)
			meetingURL = ""
		}
	}

	now := time.Now()
	interview := &model.Interview{
		ID:               uuid.NewString(),
		ApplicationID:    app.ID,
		ExternalEventID:  externalID,
		ExternalEventURI: event.URI,
		CandidateEmail:   app.CandidateEmail,
		ScheduledAt:      event.StartTime,
		MeetingURL:       meetingURL,
		Status:           model.MapProviderEventStatus(event.Status),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := r.interviews.Create(ctx, interview); err != nil {
		report.Errors = append(report.Errors, EventError{
			EventURI: event.URI,
			Message:  fmt.Sprintf("面接レコードの作成に失敗しました: %v", err),
		})
		return
	}

	r.logger.Info("面接レコードを作成しました",
		slog.String("interview_id", interview.ID),
		slog.String("application_id", app.ID),
		slog.String("external_event_id", externalID),
	)
	report.Created++
}

// externalEventID はイベントURIの末尾パスセグメントを外部イベントIDとして抽出する。
// 末尾のスラッシュは無視する。空のIDしか得られないURIは不正として扱う。
func externalEventID(eventURI string) (string, error) {
	trimmed := strings.TrimRight(eventURI, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 || idx == len(trimmed)-1 {
		return "", fmt.Errorf("イベントURIから外部イベントIDを抽出できません: %q", eventURI)
	}
	id := trimmed[idx+1:]
	if id == "" {
		return "", fmt.Errorf("イベントURIから外部イベントIDを抽出できません: %q", eventURI)
	}
	return id, nil
}
