// Package alert は検索アラートのマッチングとCRUDのサービス層を提供する。
package alert

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/marketscout/internal/metrics"
	"github.com/hitoshi/marketscout/internal/model"
	"github.com/hitoshi/marketscout/internal/notify"
	"github.com/hitoshi/marketscout/internal/repository"
)

// ProcessSummary は新規出品のアラート評価の結果を表す。
type ProcessSummary struct {
	Processed int // 評価対象になった出品数
	Matched   int // マッチした出品×アラートの組み合わせ数
	Notified  int // 1チャネル以上の送信に成功した組み合わせ数
}

// ProcessorService は新規観測出品のアラート評価のインターフェースを定義する。
// スクレイプオーケストレーターから利用される。
type ProcessorService interface {
	// ProcessNewListings は新規観測された出品をアクティブな全アラートに対して評価し、
	// マッチした組み合わせごとに通知を配信する。
	// 個々の配信失敗は処理を止めない。
	ProcessNewListings(ctx context.Context, listings []*model.Listing) ProcessSummary
}

// processor はProcessorServiceの実装。
type processor struct {
	alerts     repository.AlertRepository
	dispatcher notify.DispatcherService
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
	now        func() time.Time
}

// NewProcessor はProcessorServiceの新しいインスタンスを生成する。
func NewProcessor(alerts repository.AlertRepository, dispatcher notify.DispatcherService, logger *slog.Logger, collector metrics.MetricsCollector) *processor {
	return &processor{
		alerts:     alerts,
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    collector,
		now:        time.Now,
	}
}

// ProcessNewListings は新規観測された出品をアクティブな全アラートに対して評価する。
// マッチした組み合わせは通知を配信し、1チャネル以上の送信に成功した場合のみ
// アラートの配信記録（match_countとlast_notified_at）を更新する。
func (p *processor) ProcessNewListings(ctx context.Context, listings []*model.Listing) ProcessSummary {
	summary := ProcessSummary{}

	alerts, err := p.alerts.ListActive(ctx)
	if err != nil {
		p.logger.Error("アクティブなアラートの取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return summary
	}
	summary.Processed = len(listings)
	if len(alerts) == 0 {
		return summary
	}

	for _, listing := range listings {
		for _, alert := range alerts {
			if !Matches(alert, listing) {
				continue
			}

			summary.Matched++
			p.metrics.RecordAlertMatched()

			result := p.dispatcher.Dispatch(ctx, alert, listing)
			if !result.AnySent() {
				continue
			}

			summary.Notified++
			if err := p.alerts.RecordNotification(ctx, alert.ID, p.now()); err != nil {
				p.logger.Error("配信記録の更新に失敗しました",
					slog.String("alert_id", alert.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	return summary
}

// Matches は出品がアラートの全フィルタ条件を満たすかを判定する。
// 各フィルタはAND結合され、空のフィルタは「制約なし」として扱われる。
// キーワードのみリスト内OR（いずれか1つが含まれればよい）で評価する。
func Matches(alert *model.SearchAlert, listing *model.Listing) bool {
	if !alert.IsActive {
		return false
	}
	// 取り下げ済みの出品は評価対象外（テスト送信のサンプル出品にも適用される）
	if !listing.IsActive {
		return false
	}

	if len(alert.Platforms) > 0 && !containsPlatform(alert.Platforms, listing.Platform) {
		return false
	}
	if len(alert.Categories) > 0 && !containsCategory(alert.Categories, listing.Category) {
		return false
	}
	if len(alert.Locations) > 0 && !matchesLocation(alert.Locations, listing.Location) {
		return false
	}
	if !matchesKeywords(alert.Keywords, listing) {
		return false
	}
	// 下限は正の値が設定されている場合のみ有効（0は未設定扱い）
	if alert.PriceMin > 0 && listing.Price < alert.PriceMin {
		return false
	}
	// 上限は境界値を含む
	if alert.PriceMax != nil && listing.Price > *alert.PriceMax {
		return false
	}

	return true
}

// matchesKeywords はタイトルまたは説明文にいずれかのキーワードが
// 含まれるかを判定する。大文字小文字は区別しない。
func matchesKeywords(keywords []string, listing *model.Listing) bool {
	if len(keywords) == 0 {
		return false
	}

	haystack := strings.ToLower(listing.Title + " " + listing.Description)
	for _, keyword := range keywords {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword != "" && strings.Contains(haystack, keyword) {
			return true
		}
	}
	return false
}

// matchesLocation は出品のロケーションがいずれかの指定ロケーションを
// 含むかを判定する。大文字小文字は区別しない。
func matchesLocation(locations []string, listingLocation string) bool {
	haystack := strings.ToLower(listingLocation)
	for _, location := range locations {
		location = strings.ToLower(strings.TrimSpace(location))
		if location != "" && strings.Contains(haystack, location) {
			return true
		}
	}
	return false
}

func containsPlatform(platforms []model.Platform, target model.Platform) bool {
	for _, p := range platforms {
		if p == target {
			return true
		}
	}
	return false
}

func containsCategory(categories []model.Category, target model.Category) bool {
	for _, c := range categories {
		if c == target {
			return true
		}
	}
	return false
}

var _ ProcessorService = (*processor)(nil)
