// Package app はアプリケーションの起動モードと依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/hitoshi/trendsieve/internal/config"
	"github.com/hitoshi/trendsieve/internal/database"
	"github.com/hitoshi/trendsieve/internal/enrich"
	"github.com/hitoshi/trendsieve/internal/filter"
	"github.com/hitoshi/trendsieve/internal/handler"
	"github.com/hitoshi/trendsieve/internal/logger"
	"github.com/hitoshi/trendsieve/internal/metrics"
	"github.com/hitoshi/trendsieve/internal/middleware"
	"github.com/hitoshi/trendsieve/internal/model"
	"github.com/hitoshi/trendsieve/internal/notify"
	"github.com/hitoshi/trendsieve/internal/pipeline"
	"github.com/hitoshi/trendsieve/internal/repository"
	"github.com/hitoshi/trendsieve/internal/security"
	"github.com/hitoshi/trendsieve/internal/source"
	"github.com/hitoshi/trendsieve/internal/store"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		// ログレベル未確定のためデフォルトレベルでセットアップする
		logger.SetupDefault(w, "info")
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, cfg.LogLevel)

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
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runPipeline(cfg)
	}
}

// buildStore はDATABASE_URLの設定有無に応じてストアを構築する。
// 未設定の場合はnilリポジトリの縮退ストアを返す（何も永続化しない）。
// 戻り値のクローズ関数は呼び出し側がdeferで実行する。
func buildStore(cfg *config.Config) (*store.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL未設定のためストレージなしで動作する")
		return store.New(nil), func() {}, nil
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	repo := repository.NewPostgresTrendItemRepo(db)
	return store.New(repo), func() { db.Close() }, nil
}

// runPipeline はパイプラインを1回実行して終了する。
// どの外部バックエンドが未設定でも実行は最後まで完了する。
func runPipeline(cfg *config.Config) error {
	st, closeStore, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// セキュリティサービス
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewDescriptionSanitizer()

	// 収集元
	sources := []source.Source{
		source.NewGitHubTrendingSource(cfg.GitHubSince, cfg.GitHubLanguage, cfg.FetchTimeout, sanitizer),
		source.NewHackerNewsSource(cfg.FetchTimeout),
	}
	fetchLimits := map[model.Source]int{
		model.SourceGitHub:     cfg.GitHubFetchLimit,
		model.SourceHackerNews: cfg.HackerNewsFetchLimit,
	}

	// エンリッチメント・フィルタ・通知
	enricher := enrich.NewReadmeEnricher(ssrfGuard, cfg.FetchTimeout, cfg.EnrichMaxConcurrent, cfg.EnrichAPIRate)
	relevanceFilter := filter.NewRelevanceFilter(
		cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL,
		cfg.Interests, cfg.RelevanceThreshold,
	)
	notifier := notify.NewSlackNotifier(cfg.SlackWebhookURL, cfg.NotifyTimeout)

	if !relevanceFilter.Configured() {
		slog.Warn("OPENAI_API_KEY未設定のためフィルタリングなしで動作する")
	}
	if !notifier.Configured() {
		slog.Warn("SLACK_WEBHOOK_URL未設定のため通知なしで動作する")
	}

	// メトリクス
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	orchestrator := pipeline.NewOrchestrator(
		sources, fetchLimits, enricher, relevanceFilter, st, notifier, collector,
	)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.LLMTimeout+5*time.Minute)
	defer cancel()

	summary := orchestrator.RunOnce(ctx)

	slog.Info("run completed",
		slog.Int("fetched", summary.Fetched),
		slog.Int("filtered", summary.Filtered),
		slog.Int("new", summary.New),
		slog.Int("notified", summary.Notified),
	)

	return nil
}

// runServe はダッシュボードAPIサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	st, closeStore, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// メトリクスレジストリ（/metricsで公開される）
	reg := newServeRegistry()

	// レート制限（req/min -> req/sec に変換）
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.Rate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.Burst = cfg.RateLimitGeneral
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Store:             st,
		MetricsGatherer:   reg,
	})

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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// newServeRegistry はserveモード用のメトリクスレジストリを構築する。
// パイプラインカウンター（trendsieve_*）はrunモードのバッチプロセスが記録するため
// ここでは登録せず、serveモードの/metricsはサーバープロセス自身の
// ランタイムメトリクスのみを公開する。
func newServeRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("migrate requires DATABASE_URL to be set")
	}

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
