package listing

import (
	"context"
	"time"

	"github.com/hitoshi/marketscout/internal/model"
	"github.com/hitoshi/marketscout/internal/repository"
)

// DefaultSearchLimit は検索APIのデフォルトページサイズ。
const DefaultSearchLimit = 20

// MaxSearchLimit は検索APIの最大ページサイズ。
const MaxSearchLimit = 100

// Pagination は検索結果のページネーション情報。
type Pagination struct {
	Total   int
	Limit   int
	Skip    int
	HasMore bool
}

// SearchResult は検索APIの結果。
type SearchResult struct {
	Listings   []*model.Listing
	Pagination Pagination
}

// Stats は統計APIの結果。
type Stats struct {
	TotalListings  int
	RecentListings int
	LastScrapedAt  *time.Time
	Platforms      []repository.PlatformSummary
}

// QueryService は出品の検索・集計APIのインターフェースを定義する。
type QueryService interface {
	// Search はアクティブな出品をフィルタ・ページネーション付きで検索する。
	Search(ctx context.Context, q repository.ListingSearchQuery) (*SearchResult, error)

	// Categories はカテゴリ別の件数・平均価格の集計を返す。
	Categories(ctx context.Context) ([]repository.CategorySummary, error)

	// Stats は出品全体の統計とプラットフォーム別内訳を返す。
	Stats(ctx context.Context) (*Stats, error)
}

// queryService はQueryServiceの実装。
type queryService struct {
	repo repository.ListingRepository
}

// NewQueryService はQueryServiceの新しいインスタンスを生成する。
func NewQueryService(repo repository.ListingRepository) *queryService {
	return &queryService{repo: repo}
}

// Search はアクティブな出品を検索する。
// limitは1..MaxSearchLimitに丸め、説明文は表示用に切り詰める。
func (s *queryService) Search(ctx context.Context, q repository.ListingSearchQuery) (*SearchResult, error) {
	if q.Limit <= 0 {
		q.Limit = DefaultSearchLimit
	}
	if q.Limit > MaxSearchLimit {
		q.Limit = MaxSearchLimit
	}
	if q.Skip < 0 {
		q.Skip = 0
	}
	if q.SortBy == "" {
		q.SortBy = repository.ListingSortScrapedAt
		q.SortDesc = true
	}

	listings, total, err := s.repo.Search(ctx, q)
	if err != nil {
		return nil, err
	}

	for _, listing := range listings {
		listing.Description = TruncateDescription(listing.Description)
	}

	return &SearchResult{
		Listings: listings,
		Pagination: Pagination{
			Total:   total,
			Limit:   q.Limit,
			Skip:    q.Skip,
			HasMore: q.Skip+len(listings) < total,
		},
	}, nil
}

// Categories はカテゴリ別の集計を返す。
func (s *queryService) Categories(ctx context.Context) ([]repository.CategorySummary, error) {
	return s.repo.CategorySummaries(ctx)
}

// Stats は出品全体の統計とプラットフォーム別内訳を返す。
func (s *queryService) Stats(ctx context.Context) (*Stats, error) {
	base, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, err
	}
	platforms, err := s.repo.PlatformSummaries(ctx)
	if err != nil {
		return nil, err
	}

	return &Stats{
		TotalListings:  base.TotalListings,
		RecentListings: base.RecentListings,
		LastScrapedAt:  base.LastScrapedAt,
		Platforms:      platforms,
	}, nil
}

// TruncateDescription は一覧表示用に説明文を切り詰める。
// マルチバイト文字を壊さないようルーン単位で切る。
func TruncateDescription(description string) string {
	runes := []rune(description)
	if len(runes) <= model.DescriptionDisplayLimit {
		return description
	}
	return string(runes[:model.DescriptionDisplayLimit]) + "..."
}

var _ QueryService = (*queryService)(nil)
