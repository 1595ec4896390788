package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/marketscout/internal/scrape"
)

// ScrapeRunner は手動トリガーが必要とするオーケストレーターのインターフェース。
type ScrapeRunner interface {
	// RunAll は有効な全プラットフォームを巡回する。実行自体は常に完了する。
	RunAll(ctx context.Context) *scrape.RunSummary
}

// ScrapeHandler はスクレイプの手動トリガーのHTTPハンドラー。
type ScrapeHandler struct {
	runner ScrapeRunner
}

// NewScrapeHandler はScrapeHandlerを生成する。
func NewScrapeHandler(runner ScrapeRunner) *ScrapeHandler {
	return &ScrapeHandler{runner: runner}
}

// platformRunResponse は1プラットフォームの実行結果のレスポンス。
type platformRunResponse struct {
	Success  bool   `json:"success"`
	Upserted int    `json:"upserted"`
	Skipped  int    `json:"skipped"`
	Error    string `json:"error,omitempty"`
}

// triggerResponse は手動トリガーのレスポンス。
type triggerResponse struct {
	StartedAt     time.Time                      `json:"startedAt"`
	DurationMs    int64                          `json:"durationMs"`
	TotalUpserted int                            `json:"totalUpserted"`
	Platforms     map[string]platformRunResponse `json:"platforms"`
}

// Trigger はスクレイプの手動実行を処理する。
// 個々のプラットフォームの失敗は実行結果に含めて返し、ステータスは常に200。
// POST /api/scrape/trigger
func (h *ScrapeHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	summary := h.runner.RunAll(r.Context())

	platforms := make(map[string]platformRunResponse, len(summary.Results))
	for platform, result := range summary.Results {
		platforms[string(platform)] = platformRunResponse{
			Success:  result.Success,
			Upserted: result.Upserted,
			Skipped:  result.Skipped,
			Error:    result.Err,
		}
	}

	writeJSON(w, http.StatusOK, triggerResponse{
		StartedAt:     summary.StartedAt,
		DurationMs:    summary.Duration.Milliseconds(),
		TotalUpserted: summary.Total,
		Platforms:     platforms,
	})
}
