package scrape

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hitoshi/marketscout/internal/model"
)

// OfferUpAdapter はOfferUpの検索結果ページから出品を収集する。
// OfferUpの検索結果はアイテム詳細へのリンク（/item/detail/...）の
// 集合としてレンダリングされるため、リンク単位でパースする。
type OfferUpAdapter struct {
	fetcher    Fetcher
	logger     *slog.Logger
	maxResults int
	baseURL    string // テスト用にURLを差し替え可能
}

// NewOfferUpAdapter はOfferUpAdapterの新しいインスタンスを生成する。
func NewOfferUpAdapter(fetcher Fetcher, logger *slog.Logger, maxResults int) *OfferUpAdapter {
	return &OfferUpAdapter{
		fetcher:    fetcher,
		logger:     logger,
		maxResults: maxResults,
		baseURL:    "https://offerup.com",
	}
}

// Platform はこのアダプターが担当するプラットフォームを返す。
func (a *OfferUpAdapter) Platform() model.Platform {
	return model.PlatformOfferUp
}

// Scrape はロケーション×カテゴリの各組み合わせの検索結果を取得してパースする。
func (a *OfferUpAdapter) Scrape(ctx context.Context, locations, categories []string) ([]ItemResult, error) {
	results := []ItemResult{}
	var lastErr error

	for _, location := range locations {
		for _, category := range categories {
			searchURL := a.buildSearchURL(location, category)
			items, err := a.scrapePage(ctx, searchURL, location, category)
			if err != nil {
				a.logger.Warn("OfferUp検索結果の取得に失敗しました",
					slog.String("url", searchURL),
					slog.String("error", err.Error()),
				)
				lastErr = err
				continue
			}
			results = append(results, items...)
		}
	}

	if len(results) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return results, nil
}

func (a *OfferUpAdapter) buildSearchURL(location, category string) string {
	params := url.Values{}
	params.Set("q", category)
	if location != "" {
		params.Set("location", location)
	}
	return fmt.Sprintf("%s/search?%s", a.baseURL, params.Encode())
}

// scrapePage は検索結果ページ1枚を取得してパースする。
func (a *OfferUpAdapter) scrapePage(ctx context.Context, searchURL, location, category string) ([]ItemResult, error) {
	resp, err := a.fetcher.Fetch(ctx, searchURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("HTMLのパースに失敗しました: %w", err)
	}

	results := []ItemResult{}
	seen := map[string]bool{}
	doc.Find(`a[href^="/item/detail/"]`).EachWithBreak(func(i int, sel *goquery.Selection) bool {
		if len(results) >= a.maxResults {
			return false
		}

		href, _ := sel.Attr("href")
		link := a.baseURL + strings.Split(href, "?")[0]
		// 同一アイテムへの複数リンク（画像とタイトル）を1件に畳む
		if seen[link] {
			return true
		}
		seen[link] = true

		results = append(results, a.parseItem(sel, link, location, category))
		return true
	})
	return results, nil
}

// parseItem は検索結果のアイテムリンク1件を出品候補に変換する。
// タイトルと価格はリンク内のテキストから復元する。
func (a *OfferUpAdapter) parseItem(sel *goquery.Selection, link, location, category string) ItemResult {
	text := strings.TrimSpace(sel.Text())
	if text == "" {
		if alt, ok := sel.Find("img").Attr("alt"); ok {
			text = strings.TrimSpace(alt)
		}
	}
	if text == "" {
		return ItemResult{URL: link, Reason: "missing item title"}
	}

	title := text
	var price float64
	if m := dollarAmount.FindStringIndex(text); m != nil {
		if parsed, err := parseDollarPrice(text[m[0]:]); err == nil {
			price = parsed
		}
		title = strings.TrimSpace(text[:m[0]])
		if title == "" {
			title = strings.TrimSpace(text[m[1]:])
		}
	}
	if title == "" {
		return ItemResult{URL: link, Reason: "missing item title"}
	}

	candidate := &model.Candidate{
		Title:    title,
		Platform: model.PlatformOfferUp,
		Category: model.Category(category),
		Price:    price,
		Currency: "USD",
		Location: location,
		URL:      link,
		Metadata: map[string]string{},
	}
	if img, ok := sel.Find("img").Attr("src"); ok && img != "" {
		candidate.ImageURLs = []string{img}
	}

	return ItemResult{URL: link, Candidate: candidate}
}

var _ SourceAdapter = (*OfferUpAdapter)(nil)
