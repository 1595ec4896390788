package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/marketscout/internal/middleware"
	"github.com/hitoshi/marketscout/internal/model"
	"github.com/hitoshi/marketscout/internal/scrape"
)

// stubHealthChecker はHealthCheckerのテスト用スタブ。
type stubHealthChecker struct {
	err error
}

func (c *stubHealthChecker) PingContext(ctx context.Context) error {
	return c.err
}

// stubRunner はScrapeRunnerのテスト用スタブ。
type stubRunner struct {
	summary *scrape.RunSummary
}

func (r *stubRunner) RunAll(ctx context.Context) *scrape.RunSummary {
	return r.summary
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
		wantBody   string
	}{
		{"DB接続正常", nil, http.StatusOK, "ok"},
		{"DB接続不可", errors.New("connection refused"), http.StatusServiceUnavailable, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(&stubHealthChecker{err: tt.pingErr})

			rec := httptest.NewRecorder()
			h(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("レスポンスのパースに失敗: %v", err)
			}
			if body["status"] != tt.wantBody {
				t.Errorf("status = %q, want %q", body["status"], tt.wantBody)
			}
		})
	}
}

func TestScrapeTrigger_AlwaysReturns200(t *testing.T) {
	// 一部のプラットフォームが失敗しても実行結果として200で返す
	runner := &stubRunner{summary: &scrape.RunSummary{
		StartedAt: time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC),
		Duration:  1500 * time.Millisecond,
		Total:     7,
		Results: map[model.Platform]scrape.PlatformResult{
			model.PlatformCraigslist: {Success: true, Upserted: 7, Skipped: 1},
			model.PlatformEbay:       {Err: "blocked"},
		},
	}}
	h := NewScrapeHandler(runner)

	rec := httptest.NewRecorder()
	h.Trigger(rec, httptest.NewRequest(http.MethodPost, "/api/scrape/trigger", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		DurationMs    int64 `json:"durationMs"`
		TotalUpserted int   `json:"totalUpserted"`
		Platforms     map[string]struct {
			Success  bool   `json:"success"`
			Upserted int    `json:"upserted"`
			Error    string `json:"error"`
		} `json:"platforms"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v", err)
	}
	if body.DurationMs != 1500 {
		t.Errorf("durationMs = %d, want 1500", body.DurationMs)
	}
	if body.TotalUpserted != 7 {
		t.Errorf("totalUpserted = %d, want 7", body.TotalUpserted)
	}
	if !body.Platforms["craigslist"].Success {
		t.Error("craigslist.success = false, want true")
	}
	if body.Platforms["ebay"].Error != "blocked" {
		t.Errorf("ebay.error = %q, want blocked", body.Platforms["ebay"].Error)
	}
}

// TestRouter_Routes はルーター全体を組んだ上で主要ルートの配線を確認する。
func TestRouter_Routes(t *testing.T) {
	rl := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(100, 10))
	defer rl.Stop()

	registry := prometheus.NewRegistry()
	logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))

	router := NewRouter(&RouterDeps{
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		Logger:            logger,
		HealthChecker:     &stubHealthChecker{},
		Gatherer:          registry,
		ListingService:    &mockQueryService{},
		AlertService:      &mockAlertService{alerts: []*model.SearchAlert{}},
		ScrapeRunner:      &stubRunner{summary: &scrape.RunSummary{Results: map[model.Platform]scrape.PlatformResult{}}},
	})

	tests := []struct {
		method     string
		path       string
		wantStatus int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/api/listings/search", http.StatusOK},
		{http.MethodGet, "/api/listings/categories", http.StatusOK},
		{http.MethodGet, "/api/listings/stats", http.StatusInternalServerError}, // statsモックはエラーを返す
		{http.MethodPost, "/api/scrape/trigger", http.StatusOK},
		{http.MethodGet, "/api/alerts/user-1", http.StatusOK},
		{http.MethodGet, "/api/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.RemoteAddr = "203.0.113.10:54321"
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
