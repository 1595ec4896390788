package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/marketscout/internal/alert"
	"github.com/hitoshi/marketscout/internal/listing"
	"github.com/hitoshi/marketscout/internal/metrics"
	"github.com/hitoshi/marketscout/internal/model"
)

// PlatformResult は1プラットフォームの実行結果を表す。
type PlatformResult struct {
	Success  bool
	Upserted int
	Skipped  int
	Err      string
}

// RunSummary はスクレイプ実行全体の結果を表す。
type RunSummary struct {
	StartedAt time.Time
	Duration  time.Duration
	Results   map[model.Platform]PlatformResult
	Total     int // 全プラットフォーム合計のアップサート件数
}

// Orchestrator は登録された全アダプターを固定順で巡回する。
// 1プラットフォームの失敗やパニックが他のプラットフォームへ波及しないよう、
// プラットフォームごとに隔離して実行する。
type Orchestrator struct {
	adapters   map[model.Platform]SourceAdapter
	upserter   listing.UpsertService
	processor  alert.ProcessorService
	enabled    map[model.Platform]bool
	locations  []string
	categories []string
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
}

// NewOrchestrator はOrchestratorの新しいインスタンスを生成する。
func NewOrchestrator(
	adapters []SourceAdapter,
	upserter listing.UpsertService,
	processor alert.ProcessorService,
	enabled map[model.Platform]bool,
	locations, categories []string,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
) *Orchestrator {
	byPlatform := make(map[model.Platform]SourceAdapter, len(adapters))
	for _, adapter := range adapters {
		byPlatform[adapter.Platform()] = adapter
	}
	return &Orchestrator{
		adapters:   byPlatform,
		upserter:   upserter,
		processor:  processor,
		enabled:    enabled,
		locations:  locations,
		categories: categories,
		logger:     logger,
		metrics:    collector,
	}
}

// RunAll は有効な全プラットフォームをAllPlatformsの固定順で巡回する。
// 実行自体は常に完了し、個々の失敗はRunSummaryに記録される。
func (o *Orchestrator) RunAll(ctx context.Context) *RunSummary {
	summary := &RunSummary{
		StartedAt: time.Now(),
		Results:   make(map[model.Platform]PlatformResult),
	}

	o.logger.Info("スクレイプ実行を開始します",
		slog.Int("adapter_count", len(o.adapters)),
	)

	for _, platform := range model.AllPlatforms {
		adapter, ok := o.adapters[platform]
		if !ok {
			continue
		}
		if !o.enabled[platform] {
			o.logger.Info("プラットフォームは無効化されています",
				slog.String("platform", string(platform)),
			)
			continue
		}

		result := o.runPlatform(ctx, platform, adapter)
		summary.Results[platform] = result
		summary.Total += result.Upserted

		if result.Success {
			o.metrics.RecordScrapeSuccess(string(platform), result.Upserted)
		} else {
			o.metrics.RecordScrapeFailure(string(platform))
		}
	}

	summary.Duration = time.Since(summary.StartedAt)
	o.metrics.RecordRunDuration(summary.Duration)

	o.logger.Info("スクレイプ実行が完了しました",
		slog.Int("total_upserted", summary.Total),
		slog.Duration("duration", summary.Duration),
	)
	return summary
}

// runPlatform は1プラットフォームを隔離して実行する。
// アダプターのパニックはここで回収し、失敗として記録する。
func (o *Orchestrator) runPlatform(ctx context.Context, platform model.Platform, adapter SourceAdapter) (result PlatformResult) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("アダプターがパニックしました",
				slog.String("platform", string(platform)),
				slog.Any("panic", r),
			)
			result = PlatformResult{Err: fmt.Sprintf("panic: %v", r)}
		}
	}()

	items, err := adapter.Scrape(ctx, o.locations, o.categories)
	if err != nil {
		o.logger.Error("プラットフォームのスクレイプに失敗しました",
			slog.String("platform", string(platform)),
			slog.String("error", err.Error()),
		)
		return PlatformResult{Err: err.Error()}
	}

	stored := make([]*model.Listing, 0, len(items))
	skipped := 0
	for _, item := range items {
		if item.Candidate == nil {
			skipped++
			o.metrics.RecordItemSkipped(string(platform))
			o.logger.Warn("アイテムをスキップしました",
				slog.String("platform", string(platform)),
				slog.String("url", item.URL),
				slog.String("reason", item.Reason),
			)
			continue
		}

		saved, err := o.upserter.Upsert(ctx, item.Candidate)
		if err != nil {
			skipped++
			o.metrics.RecordItemSkipped(string(platform))
			o.logger.Warn("出品の保存に失敗しました",
				slog.String("platform", string(platform)),
				slog.String("url", item.Candidate.URL),
				slog.String("error", err.Error()),
			)
			continue
		}
		stored = append(stored, saved)
	}

	// マッチング処理の失敗は収集の成否に影響させない
	if len(stored) > 0 {
		processed := o.processor.ProcessNewListings(ctx, stored)
		o.logger.Info("アラート評価が完了しました",
			slog.String("platform", string(platform)),
			slog.Int("processed", processed.Processed),
			slog.Int("matched", processed.Matched),
			slog.Int("notified", processed.Notified),
		)
	}

	o.logger.Info("プラットフォームのスクレイプが完了しました",
		slog.String("platform", string(platform)),
		slog.Int("upserted", len(stored)),
		slog.Int("skipped", skipped),
	)
	return PlatformResult{Success: true, Upserted: len(stored), Skipped: skipped}
}
