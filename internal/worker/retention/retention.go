// Package retention は古い出品の自動非アクティブ化ジョブを提供する。
// 保持期間（デフォルト14日）を超えて再観測されなかった出品を
// 日次バッチで非アクティブ化する。削除ではなくソフト無効化のため、
// 同じURLが再観測された場合はupsertで自動的にアクティブへ戻る。
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/marketscout/internal/repository"
)

// Job は保持期間を超過した出品の自動非アクティブ化ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等に動作する。
type Job struct {
	repo          repository.ListingRepository
	logger        *slog.Logger
	RetentionDays int // 出品の保持日数（デフォルト: 14）
	now           func() time.Time
}

// NewJob は新しいJobを生成する。
func NewJob(repo repository.ListingRepository, logger *slog.Logger, retentionDays int) *Job {
	if retentionDays <= 0 {
		retentionDays = 14
	}
	return &Job{
		repo:          repo,
		logger:        logger,
		RetentionDays: retentionDays,
		now:           time.Now,
	}
}

// Run はscraped_atが保持期間より古いアクティブな出品を非アクティブ化する。
// 冪等: 対象がない場合でもエラーにならない。
func (j *Job) Run(ctx context.Context) error {
	start := j.now()
	cutoff := start.AddDate(0, 0, -j.RetentionDays)

	deactivated, err := j.repo.DeactivateStale(ctx, cutoff)
	if err != nil {
		j.logger.Error("出品の保持期間ジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return err
	}

	j.logger.Info("出品の保持期間ジョブが完了しました",
		slog.Int64("deactivated_count", deactivated),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}
