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
	"golang.org/x/time/rate"

	"github.com/hitoshi/qanda/internal/auth"
	"github.com/hitoshi/qanda/internal/config"
	"github.com/hitoshi/qanda/internal/content"
	"github.com/hitoshi/qanda/internal/database"
	"github.com/hitoshi/qanda/internal/handler"
	"github.com/hitoshi/qanda/internal/logger"
	"github.com/hitoshi/qanda/internal/metrics"
	"github.com/hitoshi/qanda/internal/middleware"
	"github.com/hitoshi/qanda/internal/repository"
	"github.com/hitoshi/qanda/internal/security"
	"github.com/hitoshi/qanda/internal/session"
	"github.com/hitoshi/qanda/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
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
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、コンテンツを全件取り込み、全依存関係をワイヤリングして
// HTTPサーバーを起動する。コンテンツ監視とセッション掃除はバックグラウンドで
// 動かす。SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. マイグレーション（未適用分のみ）
	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	// 3. メトリクスとストレージの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	repo := repository.NewPostgresRepository(db)
	sessionStore := session.NewPostgresStore(db)

	// 4. コンテンツパイプラインの初期化と起動時の全件取り込み。
	// リッスン開始前に完了させ、最初のリクエストから全文書を配信できるようにする。
	docStore := content.NewStore()
	pipeline := content.NewPipeline(repo, docStore, collector)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := pipeline.ScanAll(ctx, cfg.ContentDir); err != nil {
		return fmt.Errorf("initial content scan failed: %w", err)
	}
	slog.Info("initial content scan completed",
		slog.Int("documents", docStore.Count()),
		slog.String("content_dir", cfg.ContentDir),
	)

	// 5. コンテンツ監視をバックグラウンドで起動
	watcher, err := content.NewWatcher(pipeline, cfg.ContentDir)
	if err != nil {
		return fmt.Errorf("failed to start content watcher: %w", err)
	}
	go watcher.Run(ctx)

	// 6. 期限切れセッションの掃除ジョブをバックグラウンドで起動
	cleanupJob := cleanup.NewSessionCleanupJob(db, slog.Default())
	cleanupJob.MaxAge = cfg.SessionMaxAge
	go cleanupJob.RunPeriodic(ctx, cfg.CleanupInterval)

	// 7. 認証サービスの初期化
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	authService := auth.NewService(oauthProvider, repo)

	// 8. レートリミッターの初期化（configはreq/min単位、rate.Limitはreq/sec単位）
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.CommentRate = rate.Limit(float64(cfg.RateLimitComment) / 60.0)
	rateLimiterCfg.CommentBurst = cfg.RateLimitComment
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	// 9. ルーターの構築
	deps := &handler.RouterDeps{
		Logger:    slog.Default(),
		Collector: collector,

		SessionStore: sessionStore,
		SessionConfig: middleware.SessionConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
			MaxAge:       cfg.SessionMaxAge,
			Collector:    collector,
		},
		RateLimiter:       rateLimiter,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RequestTimeout:    cfg.RequestTimeout,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL: cfg.BaseURL,
		},

		Repo:          repo,
		DocumentStore: docStore,
		Sanitizer:     security.NewCommentSanitizer(),

		MetricsRegistry: registry,
	}

	router := handler.NewRouter(deps)

	// 10. HTTPサーバーの起動
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
	cancel() // 監視・掃除goroutineを停止

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
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
