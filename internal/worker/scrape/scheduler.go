// Package scrape はスクレイプ実行のスケジューラを提供する。
// cron書式のスケジュール（デフォルト: 毎日6時・12時・18時）に従って
// オーケストレーターを起動する。
package scrape

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/hitoshi/marketscout/internal/scrape"
)

// Runner はスケジューラが起動するオーケストレーターのインターフェース。
type Runner interface {
	RunAll(ctx context.Context) *scrape.RunSummary
}

// Scheduler はcronスケジュールに従ってスクレイプ実行を起動する。
// 同時に複数の実行が走らないようcron.SkipIfStillRunningを使用する。
type Scheduler struct {
	runner   Runner
	schedule string
	logger   *slog.Logger
	cron     *cron.Cron
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// scheduleは標準の5フィールドcron書式（例: "0 6,12,18 * * *"）。
func NewScheduler(runner Runner, schedule string, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		schedule: schedule,
		logger:   logger,
	}
}

// Start はスケジューラを起動する。
// コンテキストがキャンセルされるまでブロックし、キャンセル後は
// 実行中のジョブの完了を待ってから戻る。
func (s *Scheduler) Start(ctx context.Context) error {
	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
		cron.Recover(cron.DiscardLogger),
	))

	entryID, err := c.AddFunc(s.schedule, func() {
		s.logger.Info("スケジュールされたスクレイプ実行を開始します",
			slog.String("schedule", s.schedule),
		)
		summary := s.runner.RunAll(ctx)
		s.logger.Info("スケジュールされたスクレイプ実行が完了しました",
			slog.Int("total_upserted", summary.Total),
			slog.Duration("duration", summary.Duration),
		)
	})
	if err != nil {
		return fmt.Errorf("cronスケジュールの登録に失敗しました: %w", err)
	}

	s.cron = c
	c.Start()

	s.logger.Info("スクレイプスケジューラを起動しました",
		slog.String("schedule", s.schedule),
		slog.Time("next_run", c.Entry(entryID).Next),
	)

	<-ctx.Done()

	stopCtx := c.Stop()
	<-stopCtx.Done()

	s.logger.Info("スクレイプスケジューラを停止しました")
	return nil
}
