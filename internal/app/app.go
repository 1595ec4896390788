// Package app はアプリケーションの起動と依存関係のワイヤリングを提供する。
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

	"github.com/hitoshi/marketscout/internal/alert"
	"github.com/hitoshi/marketscout/internal/config"
	"github.com/hitoshi/marketscout/internal/database"
	"github.com/hitoshi/marketscout/internal/handler"
	"github.com/hitoshi/marketscout/internal/listing"
	"github.com/hitoshi/marketscout/internal/logger"
	"github.com/hitoshi/marketscout/internal/metrics"
	"github.com/hitoshi/marketscout/internal/middleware"
	"github.com/hitoshi/marketscout/internal/model"
	"github.com/hitoshi/marketscout/internal/notify"
	"github.com/hitoshi/marketscout/internal/repository"
	"github.com/hitoshi/marketscout/internal/scrape"
	"github.com/hitoshi/marketscout/internal/security"
	retentionpkg "github.com/hitoshi/marketscout/internal/worker/retention"
	scrapeworker "github.com/hitoshi/marketscout/internal/worker/scrape"
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
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandScrape:
		return runScrapeOnce(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// pipeline はスクレイプと通知に必要な依存関係の束。
// serve・worker・scrapeの各モードで共通にワイヤリングされる。
type pipeline struct {
	listingRepo  repository.ListingRepository
	alertRepo    repository.AlertRepository
	upsertSvc    listing.UpsertService
	querySvc     listing.QueryService
	alertSvc     alert.Service
	orchestrator *scrape.Orchestrator
	collector    *metrics.Collector
	registry     *prometheus.Registry
}

// buildPipeline はDB接続の上に全サービスをワイヤリングする。
func buildPipeline(cfg *config.Config, listingRepo repository.ListingRepository, alertRepo repository.AlertRepository) *pipeline {
	// 1. メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 2. セキュリティサービス
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewDescriptionSanitizer()

	// 3. フェッチ層
	directClient := ssrfGuard.NewSafeClient(cfg.ScrapeTimeout, cfg.FetchMaxSize)
	relayClient := &http.Client{Timeout: cfg.RelayTimeout}
	fetchClient := scrape.NewClient(
		directClient, relayClient, cfg.ScraperAPIKey, cfg.FetchMaxSize,
		slog.Default(), collector,
	)

	// 4. 通知チャネル
	var telegramSender notify.TelegramSender
	if cfg.TelegramBotToken != "" {
		sender, err := notify.NewTelegramSender(cfg.TelegramBotToken)
		if err != nil {
			// 通知は劣化動作とし、起動自体は継続する
			slog.Warn("Telegram送信チャネルの初期化に失敗しました",
				slog.String("error", err.Error()),
			)
		} else {
			telegramSender = sender
		}
	}
	var whatsappSender notify.WhatsAppSender
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" && cfg.WhatsAppFromNumber != "" {
		whatsappSender = notify.NewWhatsAppSender(
			cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.WhatsAppFromNumber,
		)
	}
	dispatcher := notify.NewDispatcher(telegramSender, whatsappSender, slog.Default(), collector)

	// 5. ドメインサービス
	upsertSvc := listing.NewUpsertService(listingRepo, sanitizer, ssrfGuard, collector)
	querySvc := listing.NewQueryService(listingRepo)
	processor := alert.NewProcessor(alertRepo, dispatcher, slog.Default(), collector)
	alertSvc := alert.NewService(alertRepo, dispatcher, slog.Default())

	// 6. ソースアダプターとオーケストレーター
	// ページフェッチはプラットフォーム別のPacedFetcher経由にして、
	// 同一プラットフォームへの連続リクエストの間隔を空ける
	pacer := scrape.NewPacer()
	adapters := []scrape.SourceAdapter{
		scrape.NewCraigslistAdapter(
			scrape.NewPacedFetcher(fetchClient, pacer, model.PlatformCraigslist),
			slog.Default(), cfg.MaxResultsPerSearch),
		scrape.NewEbayAdapter(
			scrape.NewPacedFetcher(fetchClient, pacer, model.PlatformEbay),
			slog.Default(), cfg.MaxResultsPerSearch),
		scrape.NewOfferUpAdapter(
			scrape.NewPacedFetcher(fetchClient, pacer, model.PlatformOfferUp),
			slog.Default(), cfg.MaxResultsPerSearch),
	}
	orchestrator := scrape.NewOrchestrator(
		adapters, upsertSvc, processor,
		cfg.EnabledPlatforms, cfg.SearchLocations, cfg.SearchCategories,
		slog.Default(), collector,
	)

	return &pipeline{
		listingRepo:  listingRepo,
		alertRepo:    alertRepo,
		upsertSvc:    upsertSvc,
		querySvc:     querySvc,
		alertSvc:     alertSvc,
		orchestrator: orchestrator,
		collector:    collector,
		registry:     registry,
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
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

	// 2. 依存関係のワイヤリング
	listingRepo := repository.NewPostgresListingRepo(db)
	alertRepo := repository.NewPostgresAlertRepo(db)
	p := buildPipeline(cfg, listingRepo, alertRepo)

	// 3. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitTrigger),
	)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),
		HealthChecker:     db,
		Gatherer:          p.registry,
		ListingService:    p.querySvc,
		AlertService:      p.alertSvc,
		ScrapeRunner:      p.orchestrator,
	})

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // 手動トリガーは実行完了まで応答しない
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

// runWorker はワーカーモードで起動する。
// cronスケジューラと出品の保持期間ジョブを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. 依存関係のワイヤリング
	listingRepo := repository.NewPostgresListingRepo(db)
	alertRepo := repository.NewPostgresAlertRepo(db)
	p := buildPipeline(cfg, listingRepo, alertRepo)

	// 3. スケジューラと保持期間ジョブの初期化
	scheduler := scrapeworker.NewScheduler(p.orchestrator, cfg.ScrapeSchedule, slog.Default())
	retentionJob := retentionpkg.NewJob(listingRepo, slog.Default(), cfg.RetentionDays)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.String("schedule", cfg.ScrapeSchedule),
		slog.Int("retention_days", cfg.RetentionDays),
	)

	// 保持期間ジョブを日次でバックグラウンド実行
	go func() {
		// 起動直後に1回実行
		if err := retentionJob.Run(ctx); err != nil {
			slog.Error("retention job failed", slog.String("error", err.Error()))
		}

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := retentionJob.Run(ctx); err != nil {
					slog.Error("retention job failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	// スケジューラをメインgoroutineで実行（ブロッキング）
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("scheduler failed: %w", err)
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runScrapeOnce はスクレイプを1回だけ実行して終了する。
// CI・デバッグ・cron外の手動実行用。
func runScrapeOnce(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	listingRepo := repository.NewPostgresListingRepo(db)
	alertRepo := repository.NewPostgresAlertRepo(db)
	p := buildPipeline(cfg, listingRepo, alertRepo)

	summary := p.orchestrator.RunAll(context.Background())

	for platform, result := range summary.Results {
		if result.Err != "" {
			slog.Error("platform scrape failed",
				slog.String("platform", string(platform)),
				slog.String("error", result.Err),
			)
		}
	}
	slog.Info("scrape run finished",
		slog.Int("total_upserted", summary.Total),
		slog.Duration("duration", summary.Duration),
	)
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
