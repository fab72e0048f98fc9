package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/hireman/internal/config"
	"github.com/hitoshi/hireman/internal/database"
	"github.com/hitoshi/hireman/internal/handler"
	"github.com/hitoshi/hireman/internal/logger"
	"github.com/hitoshi/hireman/internal/metrics"
	"github.com/hitoshi/hireman/internal/middleware"
	"github.com/hitoshi/hireman/internal/notify"
	"github.com/hitoshi/hireman/internal/repository"
	"github.com/hitoshi/hireman/internal/scheduling"
	"github.com/hitoshi/hireman/internal/security"
	syncpkg "github.com/hitoshi/hireman/internal/sync"
	"github.com/hitoshi/hireman/internal/workflow"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込み前にログを使えるようにする
	logger.SetupDefault(w)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// syncComponents は同期サブシステムの構成部品をまとめた構造体。
// serveとworkerの両モードで同じワイヤリングを共有する。
type syncComponents struct {
	orchestrator *syncpkg.Orchestrator
	listener     *syncpkg.ChangeListener
}

// buildSyncComponents はスケジューリングプロバイダクライアント、リコンサイラ、
// オーケストレータ、LISTEN/NOTIFYリスナーをワイヤリングする。
func buildSyncComponents(cfg *config.Config, db *sql.DB, collector *metrics.Collector) *syncComponents {
	appRepo := repository.NewPostgresApplicationRepo(db)
	interviewRepo := repository.NewPostgresInterviewRepo(db)
	settingsRepo := repository.NewPostgresSyncSettingsRepo(db)

	urlGuard := security.NewURLGuard()

	schedClient := scheduling.NewClient(
		urlGuard.NewSafeClient(cfg.ProviderTimeout),
		slog.Default(),
		scheduling.ClientConfig{
			BaseURL:     cfg.SchedulingBaseURL,
			Token:       cfg.SchedulingToken,
			PageSize:    cfg.SyncPageSize,
			PaginateAll: cfg.SyncPaginateAll,
		},
	)

	reconciler := syncpkg.NewReconciler(schedClient, appRepo, interviewRepo, urlGuard, slog.Default())

	orchestrator := syncpkg.NewOrchestrator(
		reconciler, settingsRepo, interviewRepo, slog.Default(), collector,
		syncpkg.OrchestratorConfig{
			StartupDelay: cfg.SyncStartupDelay,
			Interval:     cfg.SyncInterval,
			RunTimeout:   cfg.SyncRunTimeout,
		},
	)

	listener := syncpkg.NewChangeListener(cfg.DatabaseURL, orchestrator, slog.Default())

	return &syncComponents{
		orchestrator: orchestrator,
		listener:     listener,
	}
}

// newRateLimiter はconfigのreq/min単位の値をreq/secへ変換してRateLimiterを構築する。
func newRateLimiter(cfg *config.Config, log *slog.Logger) *middleware.RateLimiter {
	rlCfg := middleware.DefaultRateLimiterConfig()
	rlCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rlCfg.GeneralBurst = cfg.RateLimitGeneral
	rlCfg.SyncTriggerRate = rate.Limit(float64(cfg.RateLimitSyncTrigger) / 60.0)
	rlCfg.SyncTriggerBurst = cfg.RateLimitSyncTrigger
	return middleware.NewRateLimiter(rlCfg, log)
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// 同期オーケストレータとLISTEN/NOTIFYリスナーもプロセス内で起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// リポジトリの初期化
	appRepo := repository.NewPostgresApplicationRepo(db)
	jobRepo := repository.NewPostgresJobRepo(db)
	interviewRepo := repository.NewPostgresInterviewRepo(db)

	// セキュリティサービスの初期化
	sanitizer := security.NewTextSanitizer()

	// メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 通知ディスパッチャの初期化
	notifyClient := notify.NewClient(
		&http.Client{Timeout: 10 * time.Second},
		slog.Default(),
		cfg.NotifyAPIURL, cfg.NotifyAPIKey,
	)

	// ステータス遷移エンジンの初期化
	engine := workflow.NewEngine(appRepo, jobRepo, notifyClient, sanitizer, slog.Default(), collector)

	// 同期サブシステムの初期化
	syncc := buildSyncComponents(cfg, db, collector)

	// ルーターの構築
	rateLimiter := newRateLimiter(cfg, slog.Default())
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		HealthChecker:     db,

		ApplicationRepo: appRepo,
		JobRepo:         jobRepo,
		InterviewRepo:   interviewRepo,

		Engine:       engine,
		Orchestrator: syncc.orchestrator,
		Sanitizer:    sanitizer,

		MetricsGatherer: registry,
	}

	router := handler.NewRouter(deps)

	// バックグラウンド処理のライフサイクル管理
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go syncc.orchestrator.Start(ctx)
	go func() {
		if err := syncc.listener.Start(ctx); err != nil {
			slog.Error("change listener stopped", slog.String("error", err.Error()))
		}
	}()

	// HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker は同期ワーカーモードで起動する。
// HTTPサーバーを持たず、定期同期とLISTEN/NOTIFYリスナーのみを実行する。
// APIサーバーと分離してデプロイする場合に使用する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	syncc := buildSyncComponents(cfg, db, collector)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	go func() {
		if err := syncc.listener.Start(ctx); err != nil {
			slog.Error("change listener stopped", slog.String("error", err.Error()))
		}
	}()

	slog.Info("worker starting",
		slog.Duration("sync_interval", cfg.SyncInterval),
		slog.Duration("startup_delay", cfg.SyncStartupDelay),
	)

	// オーケストレータをメインgoroutineで実行（ブロッキング）
	syncc.orchestrator.Start(ctx)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
