package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/marketscout/internal/model"
)

// craigslistCategories はカテゴリをCraigslistの検索カテゴリコードに変換する。
var craigslistCategories = map[string]string{
	"furniture":   "fua",
	"apartments":  "apa",
	"motorcycles": "mca",
	"autos":       "cta",
}

// craigslistLocations はロケーション名をCraigslistのサブドメインに変換する。
// 既知のスラッグ（"sfbay"など）はそのまま通す。
var craigslistLocations = map[string]string{
	"new york":      "newyork",
	"los angeles":   "losangeles",
	"chicago":       "chicago",
	"san francisco": "sfbay",
	"seattle":       "seattle",
	"boston":        "boston",
}

// craigslistDefaultLocation は未知のロケーション名のフォールバック先。
const craigslistDefaultLocation = "newyork"

// priceInTitle はCraigslistのRSSタイトル末尾の価格表記を抽出する。
var priceInTitle = regexp.MustCompile(`\$([0-9][0-9,]*)`)

// locationInTitle はタイトル末尾の括弧書きロケーションを抽出する。
var locationInTitle = regexp.MustCompile(`\(([^()]+)\)\s*$`)

// CraigslistAdapter はCraigslistの検索RSSから出品を収集する。
// HTMLの検索結果ページと異なりRSSは構造が安定しており、
// 対ボット防御にかかりにくい。
type CraigslistAdapter struct {
	fetcher    Fetcher
	parser     *gofeed.Parser
	logger     *slog.Logger
	maxResults int
	baseDomain string // テスト用にドメインを差し替え可能
}

// NewCraigslistAdapter はCraigslistAdapterの新しいインスタンスを生成する。
func NewCraigslistAdapter(fetcher Fetcher, logger *slog.Logger, maxResults int) *CraigslistAdapter {
	return &CraigslistAdapter{
		fetcher:    fetcher,
		parser:     gofeed.NewParser(),
		logger:     logger,
		maxResults: maxResults,
		baseDomain: "craigslist.org",
	}
}

// Platform はこのアダプターが担当するプラットフォームを返す。
func (a *CraigslistAdapter) Platform() model.Platform {
	return model.PlatformCraigslist
}

// Scrape はロケーション×カテゴリの各組み合わせの検索RSSを取得してパースする。
// いずれかの組み合わせの取得に失敗した場合でも、残りの組み合わせは続行する。
func (a *CraigslistAdapter) Scrape(ctx context.Context, locations, categories []string) ([]ItemResult, error) {
	results := []ItemResult{}
	var lastErr error

	for _, location := range locations {
		subdomain := craigslistSubdomain(location)
		for _, category := range categories {
			code, ok := craigslistCategories[strings.ToLower(category)]
			if !ok {
				continue
			}

			feedURL := fmt.Sprintf("https://%s.%s/search/%s?format=rss", subdomain, a.baseDomain, code)
			items, err := a.scrapeFeed(ctx, feedURL, location, category)
			if err != nil {
				a.logger.Warn("Craigslist検索RSSの取得に失敗しました",
					slog.String("url", feedURL),
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

// scrapeFeed は1件の検索RSSを取得してパースする。
func (a *CraigslistAdapter) scrapeFeed(ctx context.Context, feedURL, location, category string) ([]ItemResult, error) {
	resp, err := a.fetcher.Fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	feed, err := a.parser.ParseString(string(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("RSSのパースに失敗しました: %w", err)
	}

	results := []ItemResult{}
	for i, item := range feed.Items {
		if i >= a.maxResults {
			break
		}
		results = append(results, a.parseItem(item, location, category))
	}
	return results, nil
}

// parseItem はRSSアイテム1件を出品候補に変換する。
func (a *CraigslistAdapter) parseItem(item *gofeed.Item, location, category string) ItemResult {
	link := strings.Split(item.Link, "?")[0]
	if link == "" {
		return ItemResult{Reason: "missing item link"}
	}
	if item.Title == "" {
		return ItemResult{URL: link, Reason: "missing item title"}
	}

	candidate := &model.Candidate{
		Title:       item.Title,
		Description: item.Description,
		Platform:    model.PlatformCraigslist,
		Category:    model.Category(category),
		Currency:    "USD",
		Location:    location,
		URL:         link,
		PostedAt:    item.PublishedParsed,
		Metadata:    map[string]string{"source": "search_rss"},
	}

	if m := priceInTitle.FindStringSubmatch(item.Title); m != nil {
		raw := strings.ReplaceAll(m[1], ",", "")
		if price, err := strconv.ParseFloat(raw, 64); err == nil {
			candidate.Price = price
		}
	}
	if m := locationInTitle.FindStringSubmatch(item.Title); m != nil {
		candidate.Location = strings.TrimSpace(m[1])
	}
	if len(item.Enclosures) > 0 && item.Enclosures[0].URL != "" {
		candidate.ImageURLs = []string{item.Enclosures[0].URL}
	}

	return ItemResult{URL: link, Candidate: candidate}
}

// craigslistSubdomain はロケーション名をサブドメインに解決する。
func craigslistSubdomain(location string) string {
	key := strings.ToLower(strings.TrimSpace(location))
	if sub, ok := craigslistLocations[key]; ok {
		return sub
	}
	// 空白を含まない文字列は既にスラッグとみなしてそのまま使う
	if key != "" && !strings.Contains(key, " ") {
		return key
	}
	return craigslistDefaultLocation
}

var _ SourceAdapter = (*CraigslistAdapter)(nil)
