package scrape

import (
	"context"

	"github.com/hitoshi/marketscout/internal/model"
)

// ItemResult はアダプターがパースした1アイテムの結果を表す。
// パースに失敗したアイテムは黙って捨てず、Candidate=nilと失敗理由を残す。
type ItemResult struct {
	URL       string           // 判明している場合のみ設定される
	Candidate *model.Candidate // nilの場合はパース失敗
	Reason    string           // パース失敗の理由
}

// SourceAdapter はプラットフォーム固有の収集ロジックのインターフェース。
// 実装は検索条件（ロケーション×カテゴリ）を自プラットフォームの
// 検索リクエストに変換し、結果をパースして出品候補を返す。
type SourceAdapter interface {
	// Platform はこのアダプターが担当するプラットフォームを返す。
	Platform() model.Platform

	// Scrape は指定されたロケーションとカテゴリの組み合わせを検索し、
	// パース結果を返す。ページ取得自体の失敗はエラーとして返し、
	// 個別アイテムのパース失敗はItemResultのReasonとして報告する。
	Scrape(ctx context.Context, locations, categories []string) ([]ItemResult, error)
}
