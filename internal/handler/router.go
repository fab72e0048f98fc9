package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/hireman/internal/metrics"
	"github.com/hitoshi/hireman/internal/middleware"
	"github.com/hitoshi/hireman/internal/repository"
)

// HealthChecker はDB接続の生存確認を行うインターフェース。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// ヘルスチェック
	HealthChecker HealthChecker

	// リポジトリ
	ApplicationRepo repository.ApplicationRepository
	JobRepo         repository.JobRepository
	InterviewRepo   repository.InterviewRepository

	// サービス
	Engine       WorkflowEngineInterface
	Orchestrator SyncOrchestratorInterface
	Sanitizer    TextSanitizer

	// メトリクス公開用のレジストリ
	MetricsGatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → RateLimit(General)
//
// /healthと/metricsはレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	appHandler := NewApplicationHandler(deps.ApplicationRepo, deps.JobRepo, deps.Engine, deps.Sanitizer)
	jobHandler := NewJobHandler(deps.JobRepo, deps.Sanitizer)
	interviewHandler := NewInterviewHandler(deps.InterviewRepo)
	syncHandler := NewSyncHandler(deps.Orchestrator)

	// --- 運用エンドポイント（レート制限の外）---

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if deps.HealthChecker != nil {
			if err := deps.HealthChecker.PingContext(r.Context()); err != nil {
				deps.Logger.Error("ヘルスチェックでDB接続に失敗しました", slog.String("error", err.Error()))
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.Write([]byte(`{"status":"ok"}`))
	})

	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// --- APIルート ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 応募管理
		r.Route("/api/applications", func(r chi.Router) {
			r.Post("/", appHandler.Create)
			r.Get("/", appHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", appHandler.Get)
				r.Post("/status", appHandler.UpdateStatus)
			})
		})

		// 求人管理
		r.Route("/api/jobs", func(r chi.Router) {
			r.Post("/", jobHandler.Create)
			r.Get("/", jobHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", jobHandler.Get)
				r.Post("/deactivate", jobHandler.Deactivate)
			})
		})

		// 面接一覧
		r.Get("/api/interviews", interviewHandler.List)

		// 面接同期（手動トリガーにはより厳しいレート制限を追加）
		r.Route("/api/sync", func(r chi.Router) {
			r.With(deps.RateLimiter.SyncTriggerMiddleware()).Post("/reconcile", syncHandler.Reconcile)
			r.Get("/status", syncHandler.Status)
		})
	})

	return r
}
