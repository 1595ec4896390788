// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/marketscout/internal/model"
)

// ListingSortKey は出品検索のソートキーを表す。
type ListingSortKey string

const (
	// ListingSortScrapedAt は取り込み日時順ソート（デフォルト）。
	ListingSortScrapedAt ListingSortKey = "scrapedAt"
	// ListingSortPrice は価格順ソート。
	ListingSortPrice ListingSortKey = "price"
	// ListingSortPostedAt は投稿日時順ソート。
	ListingSortPostedAt ListingSortKey = "postedAt"
	// ListingSortTitle はタイトル順ソート。
	ListingSortTitle ListingSortKey = "title"
)

// ListingSearchQuery は出品検索の条件を表す。
// ゼロ値のフィルタは「制約なし」として扱われる。
type ListingSearchQuery struct {
	Category  model.Category // 空 = 全カテゴリ
	Platform  model.Platform // 空 = 全プラットフォーム
	Location  string         // 大文字小文字を区別しない部分一致
	Keyword   string         // タイトル・説明文に対する部分一致
	MinPrice  *float64
	MaxPrice  *float64
	Limit     int
	Skip      int
	SortBy    ListingSortKey
	SortDesc  bool
}

// CategorySummary はカテゴリごとの件数と平均価格の集計結果。
type CategorySummary struct {
	Name     string
	Count    int
	AvgPrice int // 四捨五入済み
}

// PlatformSummary はプラットフォームごとの件数の集計結果。
type PlatformSummary struct {
	Name  string
	Count int
}

// ListingStats は出品全体の統計情報。
type ListingStats struct {
	TotalListings   int
	RecentListings  int // 直近24時間に取り込まれた件数
	LastScrapedAt   *time.Time
}

// ListingRepository は出品データの永続化インターフェース。
// urlカラムの一意制約が重複排除の唯一の仕組みであり、
// Upsertは同時挿入の競合を呼び出し元に見えないエラーなしで解決する。
type ListingRepository interface {
	// Upsert は出品をurlをキーにINSERT-or-REPLACEする。
	// 既存レコードがある場合は提供された全フィールドで置き換え、scraped_atを更新する。
	// 保存後のレコード（id・created_at解決済み）を返す。
	Upsert(ctx context.Context, listing *model.Listing) (*model.Listing, error)

	// Search はアクティブな出品をフィルタ・ページネーション付きで検索する。
	// 戻り値は該当ページの出品と、フィルタ条件に合致する総件数。
	Search(ctx context.Context, q ListingSearchQuery) ([]*model.Listing, int, error)

	// CategorySummaries はアクティブな出品のカテゴリ別集計を件数降順で返す。
	CategorySummaries(ctx context.Context) ([]CategorySummary, error)

	// PlatformSummaries はアクティブな出品のプラットフォーム別集計を件数降順で返す。
	PlatformSummaries(ctx context.Context) ([]PlatformSummary, error)

	// Stats は出品全体の統計情報を返す。
	Stats(ctx context.Context) (*ListingStats, error)

	// DeactivateStale はcutoffより前に最後に観測された出品を非アクティブ化する。
	// ハードデリートは行わない。非アクティブ化した件数を返す。
	DeactivateStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// AlertRepository は検索アラートの永続化インターフェース。
type AlertRepository interface {
	// Create はアラートを作成する。
	Create(ctx context.Context, alert *model.SearchAlert) error

	// ListByUserID はユーザーのアラート一覧を作成日時降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.SearchAlert, error)

	// FindByIDAndUser はIDとユーザーIDの組でアラートを取得する。
	// 見つからない場合はnilを返す。
	FindByIDAndUser(ctx context.Context, id, userID string) (*model.SearchAlert, error)

	// ListActive はアクティブな全アラートを返す。マッチング評価時に使用する。
	ListActive(ctx context.Context) ([]*model.SearchAlert, error)

	// Update はアラートの定義フィールドを更新する。
	Update(ctx context.Context, alert *model.SearchAlert) error

	// Delete はIDとユーザーIDの組でアラートを削除する（ハードデリート）。
	// 削除した場合はtrueを返す。
	Delete(ctx context.Context, id, userID string) (bool, error)

	// RecordNotification は通知成功時の配信記録を原子的に更新する。
	// last_notified_atをatに設定し、match_countをちょうど1だけ加算する。
	RecordNotification(ctx context.Context, id string, at time.Time) error
}
