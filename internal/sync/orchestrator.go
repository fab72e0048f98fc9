package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hitoshi/hireman/internal/model"
)

// ErrSyncInProgress は同期実行中の手動トリガー要求を表す。
var ErrSyncInProgress = errors.New("同期はすでに実行中です")

// ErrSyncDisabled は同期設定が未完了の状態での同期要求を表す。
var ErrSyncDisabled = errors.New("同期設定が未完了のため同期は無効です")

// EventReconciler はオーケストレータが実行するリコンサイラのインターフェース。
type EventReconciler interface {
	Reconcile(ctx context.Context, organizationURI string) (*Report, error)
}

// SettingsSource は同期設定の読み取りインターフェース。
type SettingsSource interface {
	Get(ctx context.Context) (*model.SyncSettings, error)
}

// RecentLister は直近の面接一覧の読み取りインターフェース。
type RecentLister interface {
	ListRecent(ctx context.Context, limit int) ([]*model.Interview, error)
}

// RunRecorder は同期実行メトリクスの記録インターフェース。
type RunRecorder interface {
	ObserveSyncRun(success bool, duration time.Duration)
	AddSyncResults(created, skipped, eventErrors int)
}

// OrchestratorConfig はOrchestratorの設定パラメータ。
type OrchestratorConfig struct {
	// StartupDelay は起動から最初の同期実行までの待機時間。
	// 起動直後のマイグレーションやヘルスチェックと競合しないよう遅延させる。
	StartupDelay time.Duration
	// Interval は定期同期の実行間隔。
	Interval time.Duration
	// RunTimeout は1回の同期実行に許容する最大時間。
	RunTimeout time.Duration
	// RecentLimit はステータスビューに保持する直近の面接件数。
	RecentLimit int
}

// StatusView は管理画面向けの同期ステータスのスナップショット。
type StatusView struct {
	Syncing          bool               `json:"syncing"`
	Enabled          bool               `json:"enabled"`
	LastRunAt        *time.Time         `json:"last_run_at,omitempty"`
	LastReport       *Report            `json:"last_report,omitempty"`
	LastError        string             `json:"last_error,omitempty"`
	RecentInterviews []*model.Interview `json:"recent_interviews"`
}

// Orchestrator は面接同期の実行を統括する。
// 定期実行と手動トリガーの両方を受け付け、busyフラグにより
// 同時に最大1つの同期しか実行されないことを保証する。
// 同期設定が未完了の場合はすべての同期要求を拒否する（設定ゲート）。
type Orchestrator struct {
	reconciler EventReconciler
	settings   SettingsSource
	interviews RecentLister
	logger     *slog.Logger
	recorder   RunRecorder
	config     OrchestratorConfig

	busy atomic.Bool

	mu         sync.Mutex
	lastRunAt  time.Time
	lastReport *Report
	lastError  string
	recent     []*model.Interview
}

// NewOrchestrator はOrchestratorの新しいインスタンスを生成する。
// recorderがnilの場合はメトリクスを記録しない。
// RecentLimitが0以下の場合はデフォルト値20を使用する。
func NewOrchestrator(
	reconciler EventReconciler,
	settings SettingsSource,
	interviews RecentLister,
	logger *slog.Logger,
	recorder RunRecorder,
	config OrchestratorConfig,
) *Orchestrator {
	if config.RecentLimit <= 0 {
		config.RecentLimit = 20
	}
	return &Orchestrator{
		reconciler: reconciler,
		settings:   settings,
		interviews: interviews,
		logger:     logger,
		recorder:   recorder,
		config:     config,
	}
}

// Start は起動遅延の後、定期間隔で同期を実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (o *Orchestrator) Start(ctx context.Context) {
	o.logger.Info("同期オーケストレータを開始しました",
		slog.Duration("startup_delay", o.config.StartupDelay),
		slog.Duration("interval", o.config.Interval),
	)

	// 起動直後の実行は遅延させる
	startupTimer := time.NewTimer(o.config.StartupDelay)
	defer startupTimer.Stop()
	select {
	case <-ctx.Done():
		o.logger.Info("同期オーケストレータを停止しました")
		return
	case <-startupTimer.C:
	}

	o.runScheduled(ctx)

	ticker := time.NewTicker(o.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("同期オーケストレータを停止しました")
			return
		case <-ticker.C:
			o.runScheduled(ctx)
		}
	}
}

// TriggerNow は同期を即時に実行し、実行結果のレポートを返す。
// すでに同期が実行中の場合はErrSyncInProgressを、
// 同期設定が未完了の場合はErrSyncDisabledを返す。
func (o *Orchestrator) TriggerNow(ctx context.Context) (*Report, error) {
	orgURI, err := o.organizationURI(ctx)
	if err != nil {
		return nil, err
	}

	if !o.busy.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer o.busy.Store(false)

	return o.run(ctx, orgURI)
}

// runScheduled は定期実行の1サイクルを処理する。
// 設定未完了や実行中はスキップし、エラーはログに記録するだけで伝播しない。
func (o *Orchestrator) runScheduled(ctx context.Context) {
	orgURI, err := o.organizationURI(ctx)
	if err != nil {
		if errors.Is(err, ErrSyncDisabled) {
			o.logger.Info("同期設定が未完了のため定期同期をスキップします")
		} else {
			o.logger.Error("同期設定の取得に失敗しました",
				slog.String("error", err.Error()),
			)
		}
		return
	}

	if !o.busy.CompareAndSwap(false, true) {
		o.logger.Info("同期が実行中のため定期同期をスキップします")
		return
	}
	defer o.busy.Store(false)

	if _, err := o.run(ctx, orgURI); err != nil {
		o.logger.Error("定期同期の実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// organizationURI は同期設定を読み取り、同期実行に必要な組織URIを返す。
// 設定が存在しないか不完全な場合はErrSyncDisabledを返す。
func (o *Orchestrator) organizationURI(ctx context.Context) (string, error) {
	settings, err := o.settings.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("同期設定の取得に失敗しました: %w", err)
	}
	if !settings.Complete() {
		return "", ErrSyncDisabled
	}
	return settings.OrganizationURI, nil
}

// run は1回の同期を実行し、結果をステータスビューとメトリクスへ記録する。
// 呼び出し元がbusyフラグを保持していることを前提とする。
// 1回の実行にはRunTimeoutの実行時間上限が適用される。
func (o *Orchestrator) run(ctx context.Context, organizationURI string) (*Report, error) {
	runCtx := ctx
	if o.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.config.RunTimeout)
		defer cancel()
	}

	start := time.Now()
	report, err := o.reconciler.Reconcile(runCtx, organizationURI)
	duration := time.Since(start)

	if o.recorder != nil {
		o.recorder.ObserveSyncRun(err == nil, duration)
		if report != nil {
			o.recorder.AddSyncResults(report.Created, report.Skipped, len(report.Errors))
		}
	}

	o.mu.Lock()
	o.lastRunAt = time.Now()
	o.lastReport = report
	if err != nil {
		o.lastError = err.Error()
	} else {
		o.lastError = ""
	}
	o.mu.Unlock()

	if err != nil {
		return report, err
	}

	// 取り込み結果を反映した直近の面接一覧を読み込み直す
	o.RefreshRecent(ctx)

	return report, nil
}

// RefreshRecent は直近の面接一覧のキャッシュを読み込み直す。
// 同期実行後のほか、面接テーブルの変更通知を受けた際にも呼ばれる。
// 読み込み失敗時は既存のキャッシュを保持する。
func (o *Orchestrator) RefreshRecent(ctx context.Context) {
	recent, err := o.interviews.ListRecent(ctx, o.config.RecentLimit)
	if err != nil {
		o.logger.Error("直近の面接一覧の読み込みに失敗しました",
			slog.String("error", err.Error()),
		)
		return
	}

	o.mu.Lock()
	o.recent = recent
	o.mu.Unlock()
}

// Status は同期ステータスのスナップショットを返す。
// 同期設定の読み取りエラーは無効（Enabled=false）として扱う。
func (o *Orchestrator) Status(ctx context.Context) StatusView {
	enabled := false
	if settings, err := o.settings.Get(ctx); err == nil && settings.Complete() {
		enabled = true
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	view := StatusView{
		Syncing:          o.busy.Load(),
		Enabled:          enabled,
		LastReport:       o.lastReport,
		LastError:        o.lastError,
		RecentInterviews: o.recent,
	}
	if !o.lastRunAt.IsZero() {
		t := o.lastRunAt
		view.LastRunAt = &t
	}
	if view.RecentInterviews == nil {
		view.RecentInterviews = []*model.Interview{}
	}
	return view
}
