package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/marketscout/internal/alert"
	"github.com/hitoshi/marketscout/internal/listing"
	"github.com/hitoshi/marketscout/internal/metrics"
	"github.com/hitoshi/marketscout/internal/middleware"
)

// HealthChecker はDB接続の死活確認のインターフェース。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 死活確認・メトリクス
	HealthChecker HealthChecker
	Gatherer      prometheus.Gatherer

	// サービス
	ListingService listing.QueryService
	AlertService   alert.Service
	ScrapeRunner   ScrapeRunner
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → セキュリティヘッダー → ロギング → リカバリー → レート制限(General)
//
// /health と /metrics はレート制限の外に配置する（監視系からの高頻度アクセスを想定）。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewRecoveryMiddleware())

	listingHandler := NewListingHandler(deps.ListingService)
	alertHandler := NewAlertHandler(deps.AlertService)
	scrapeHandler := NewScrapeHandler(deps.ScrapeRunner)

	// --- 監視系ルート ---

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))

	// --- APIルート ---

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api/listings", func(r chi.Router) {
			r.Get("/search", listingHandler.Search)
			r.Get("/categories", listingHandler.Categories)
			r.Get("/stats", listingHandler.Stats)
		})

		// POST /api/scrape/trigger - 手動実行（トリガー専用レート制限を追加）
		r.With(deps.RateLimiter.TriggerMiddleware()).Post("/api/scrape/trigger", scrapeHandler.Trigger)

		r.Route("/api/alerts", func(r chi.Router) {
			r.Post("/", alertHandler.Create)

			r.Route("/{userId}", func(r chi.Router) {
				r.Get("/", alertHandler.List)

				r.Route("/{alertId}", func(r chi.Router) {
					r.Get("/", alertHandler.Get)
					r.Put("/", alertHandler.Update)
					r.Delete("/", alertHandler.Delete)
					r.Post("/test", alertHandler.Test)
				})
			})
		})
	})

	return r
}

// NewHealthHandler はヘルスチェックのハンドラーを返す。
// DB接続の死活確認に成功した場合のみ200を返す。
func NewHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := checker.PingContext(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
