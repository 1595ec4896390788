// Package listing は出品の正規化・保存と検索APIのサービス層を提供する。
package listing

import (
	"context"
	"strings"
	"time"

	"github.com/hitoshi/marketscout/internal/metrics"
	"github.com/hitoshi/marketscout/internal/model"
	"github.com/hitoshi/marketscout/internal/repository"
	"github.com/hitoshi/marketscout/internal/security"
)

// UpsertService は出品候補の正規化と保存のインターフェースを定義する。
// スクレイプオーケストレーターから利用される。
type UpsertService interface {
	// Upsert は出品候補を検証・正規化して保存する。
	// URLが同一の既存レコードは提供されたフィールドで上書きされる。
	// 検証エラーの場合はVALIDATION_ERRORを返す。
	Upsert(ctx context.Context, candidate *model.Candidate) (*model.Listing, error)
}

// upsertService はUpsertServiceの実装。
type upsertService struct {
	repo      repository.ListingRepository
	sanitizer security.DescriptionSanitizerService
	guard     security.SSRFGuardService
	metrics   metrics.MetricsCollector
	now       func() time.Time
}

// NewUpsertService はUpsertServiceの新しいインスタンスを生成する。
func NewUpsertService(
	repo repository.ListingRepository,
	sanitizer security.DescriptionSanitizerService,
	guard security.SSRFGuardService,
	collector metrics.MetricsCollector,
) *upsertService {
	return &upsertService{
		repo:      repo,
		sanitizer: sanitizer,
		guard:     guard,
		metrics:   collector,
		now:       time.Now,
	}
}

// Upsert は出品候補を検証・正規化して保存する。
// 正規化のルール:
//   - タイトルとURLは必須
//   - URLはスキーム・ホストの静的検証を通す
//   - 価格は負の値を拒否する
//   - 未知のプラットフォーム・カテゴリは"other"に落とす
//   - 通貨未指定はUSD
//   - 説明文はサニタイズしてプレーンテキスト化する
func (s *upsertService) Upsert(ctx context.Context, candidate *model.Candidate) (*model.Listing, error) {
	if strings.TrimSpace(candidate.Title) == "" {
		return nil, model.NewValidationError("タイトルは必須です")
	}
	if strings.TrimSpace(candidate.URL) == "" {
		return nil, model.NewValidationError("URLは必須です")
	}
	if err := s.guard.ValidateURL(candidate.URL); err != nil {
		return nil, model.NewValidationError("URLが不正です: " + err.Error())
	}
	if candidate.Price < 0 {
		return nil, model.NewValidationError("価格は0以上である必要があります")
	}

	listing := &model.Listing{
		Title:       strings.TrimSpace(candidate.Title),
		Description: s.sanitizer.Sanitize(candidate.Description),
		Platform:    candidate.Platform,
		Category:    candidate.Category,
		Price:       candidate.Price,
		Currency:    candidate.Currency,
		Location:    strings.TrimSpace(candidate.Location),
		Coordinates: candidate.Coordinates,
		URL:         candidate.URL,
		ImageURLs:   candidate.ImageURLs,
		Contact:     candidate.Contact,
		PostedAt:    candidate.PostedAt,
		ScrapedAt:   s.now(),
		IsActive:    true,
		Metadata:    candidate.Metadata,
	}

	if !listing.Platform.Valid() {
		listing.Platform = model.PlatformOther
	}
	if !listing.Category.Valid() {
		listing.Category = model.CategoryOther
	}
	if listing.Currency == "" {
		listing.Currency = "USD"
	}
	if listing.ImageURLs == nil {
		listing.ImageURLs = []string{}
	}
	if listing.Metadata == nil {
		listing.Metadata = map[string]string{}
	}

	stored, err := s.repo.Upsert(ctx, listing)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordListingsUpserted(1)
	return stored, nil
}

var _ UpsertService = (*upsertService)(nil)
