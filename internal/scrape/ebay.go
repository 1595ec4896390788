package scrape

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hitoshi/marketscout/internal/model"
)

// ebayCategories はカテゴリをeBayのカテゴリIDに変換する。
var ebayCategories = map[string]string{
	"furniture":   "3197",
	"apartments":  "10542",
	"motorcycles": "6024",
	"autos":       "6001",
}

// EbayAdapter はeBayの検索結果ページから出品を収集する。
// eBayは全国一律の検索のためロケーションは検索条件に使わない。
type EbayAdapter struct {
	fetcher    Fetcher
	logger     *slog.Logger
	maxResults int
	baseURL    string // テスト用にURLを差し替え可能
}

// NewEbayAdapter はEbayAdapterの新しいインスタンスを生成する。
func NewEbayAdapter(fetcher Fetcher, logger *slog.Logger, maxResults int) *EbayAdapter {
	return &EbayAdapter{
		fetcher:    fetcher,
		logger:     logger,
		maxResults: maxResults,
		baseURL:    "https://www.ebay.com",
	}
}

// Platform はこのアダプターが担当するプラットフォームを返す。
func (a *EbayAdapter) Platform() model.Platform {
	return model.PlatformEbay
}

// Scrape はカテゴリごとの検索結果ページを取得してパースする。
func (a *EbayAdapter) Scrape(ctx context.Context, locations, categories []string) ([]ItemResult, error) {
	results := []ItemResult{}
	var lastErr error

	for _, category := range categories {
		categoryID, ok := ebayCategories[strings.ToLower(category)]
		if !ok {
			continue
		}

		searchURL := a.buildSearchURL(categoryID)
		items, err := a.scrapePage(ctx, searchURL, category)
		if err != nil {
			a.logger.Warn("eBay検索結果の取得に失敗しました",
				slog.String("url", searchURL),
				slog.String("error", err.Error()),
			)
			lastErr = err
			continue
		}
		results = append(results, items...)
	}

	if len(results) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return results, nil
}

// buildSearchURL は検索結果ページのURLを構築する。
// 中古品（LH_ItemCondition=3000）を新着順（_sop=10）で取得する。
func (a *EbayAdapter) buildSearchURL(categoryID string) string {
	params := url.Values{}
	params.Set("_nkw", "")
	params.Set("_sacat", categoryID)
	params.Set("LH_ItemCondition", "3000")
	params.Set("_sop", "10")
	params.Set("_ipg", strconv.Itoa(a.maxResults))
	return fmt.Sprintf("%s/sch/i.html?%s", a.baseURL, params.Encode())
}

// scrapePage は検索結果ページ1枚を取得してパースする。
func (a *EbayAdapter) scrapePage(ctx context.Context, searchURL, category string) ([]ItemResult, error) {
	resp, err := a.fetcher.Fetch(ctx, searchURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("HTMLのパースに失敗しました: %w", err)
	}

	results := []ItemResult{}
	doc.Find(".s-item").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		if len(results) >= a.maxResults {
			return false
		}
		result, ok := a.parseItem(sel, category)
		if ok {
			results = append(results, result)
		}
		return true
	})
	return results, nil
}

// parseItem は検索結果のカード1枚を出品候補に変換する。
// 戻り値のboolがfalseの場合はeBayのプレースホルダーカードであり、結果に含めない。
func (a *EbayAdapter) parseItem(sel *goquery.Selection, category string) (ItemResult, bool) {
	title := strings.TrimSpace(sel.Find(".s-item__title").Text())
	// 検索結果の先頭にはタイトルが"Shop on eBay"のプレースホルダーが入る
	if title == "" || title == "Shop on eBay" {
		return ItemResult{}, false
	}

	link, _ := sel.Find(".s-item__link").Attr("href")
	link = strings.Split(link, "?")[0]
	if link == "" {
		return ItemResult{Reason: "missing item link"}, true
	}

	priceText := strings.TrimSpace(sel.Find(".s-item__price").Text())
	price, err := parseDollarPrice(priceText)
	if err != nil {
		return ItemResult{URL: link, Reason: fmt.Sprintf("unparseable price %q", priceText)}, true
	}

	candidate := &model.Candidate{
		Title:    title,
		Platform: model.PlatformEbay,
		Category: model.Category(category),
		Price:    price,
		Currency: "USD",
		Location: strings.TrimSpace(sel.Find(".s-item__location").Text()),
		URL:      link,
		Metadata: map[string]string{},
	}

	if img, ok := sel.Find(".s-item__image-img").Attr("src"); ok && img != "" {
		candidate.ImageURLs = []string{img}
	}
	if shipping := strings.TrimSpace(sel.Find(".s-item__shipping").Text()); shipping != "" {
		candidate.Metadata["shipping"] = shipping
	}
	if condition := strings.TrimSpace(sel.Find(".SECONDARY_INFO").Text()); condition != "" {
		candidate.Metadata["condition"] = condition
	}

	return ItemResult{URL: link, Candidate: candidate}, true
}

// dollarAmount は"$1,234.56"形式の金額表記を抽出する。
var dollarAmount = regexp.MustCompile(`\$([0-9][0-9,]*(?:\.[0-9]{2})?)`)

// parseDollarPrice は価格文字列をパースする。
// "$10.00 to $25.00"のような範囲表記は下限を採用する。
func parseDollarPrice(text string) (float64, error) {
	m := dollarAmount.FindStringSubmatch(text)
	if m == nil {
		return 0, fmt.Errorf("no dollar amount in %q", text)
	}
	raw := strings.ReplaceAll(m[1], ",", "")
	return strconv.ParseFloat(raw, 64)
}

var _ SourceAdapter = (*EbayAdapter)(nil)
