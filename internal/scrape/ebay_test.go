package scrape

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/hitoshi/marketscout/internal/model"
)

const ebayPageFixture = `<html><body>
<ul>
<li class="s-item">
  <a class="s-item__link" href="https://www.ebay.com/itm/111"><div class="s-item__title">Shop on eBay</div></a>
</li>
<li class="s-item">
  <a class="s-item__link" href="https://www.ebay.com/itm/222?hash=abc"><div class="s-item__title">Mid Century Armchair</div></a>
  <span class="s-item__price">$1,250.00</span>
  <span class="s-item__location">from Portland, OR</span>
  <img class="s-item__image-img" src="https://i.ebayimg.com/armchair.jpg"/>
  <span class="s-item__shipping">Free shipping</span>
  <span class="SECONDARY_INFO">Pre-Owned</span>
</li>
<li class="s-item">
  <a class="s-item__link" href="https://www.ebay.com/itm/333"><div class="s-item__title">Couch No Price</div></a>
  <span class="s-item__price">Contact seller</span>
</li>
</ul>
</body></html>`

func newEbayAdapter(t *testing.T, fixture string) (*EbayAdapter, *stubFetcher) {
	t.Helper()
	adapter := NewEbayAdapter(nil, newTestLogger(), 60)
	fetcher := &stubFetcher{responses: map[string]string{
		adapter.buildSearchURL("3197"): fixture,
	}}
	adapter.fetcher = fetcher
	return adapter, fetcher
}

func TestEbayScrape_ParsesSearchResults(t *testing.T) {
	adapter, _ := newEbayAdapter(t, ebayPageFixture)

	results, err := adapter.Scrape(context.Background(), nil, []string{"furniture"})
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	// プレースホルダーカードは結果に含まれない
	if len(results) != 2 {
		t.Fatalf("結果件数 = %d, want 2", len(results))
	}

	item := results[0]
	if item.Candidate == nil {
		t.Fatalf("1件目が候補になっていない: reason = %s", item.Reason)
	}
	if item.Candidate.Title != "Mid Century Armchair" {
		t.Errorf("Title = %q", item.Candidate.Title)
	}
	if item.URL != "https://www.ebay.com/itm/222" {
		t.Errorf("URL = %q, want クエリ除去済みURL", item.URL)
	}
	if item.Candidate.Price != 1250 {
		t.Errorf("Price = %v, want 1250", item.Candidate.Price)
	}
	if item.Candidate.Location != "from Portland, OR" {
		t.Errorf("Location = %q", item.Candidate.Location)
	}
	if item.Candidate.Metadata["shipping"] != "Free shipping" {
		t.Errorf("Metadata[shipping] = %q", item.Candidate.Metadata["shipping"])
	}
	if item.Candidate.Metadata["condition"] != "Pre-Owned" {
		t.Errorf("Metadata[condition] = %q", item.Candidate.Metadata["condition"])
	}

	// 価格がパースできないアイテムは理由付きでスキップされる
	skipped := results[1]
	if skipped.Candidate != nil {
		t.Error("価格不明のアイテムが候補になった")
	}
	if !strings.Contains(skipped.Reason, "unparseable price") {
		t.Errorf("Reason = %q, want unparseable price", skipped.Reason)
	}
}

func TestEbayScrape_UnknownCategorySkipped(t *testing.T) {
	fetcher := &stubFetcher{responses: map[string]string{}}
	adapter := NewEbayAdapter(fetcher, newTestLogger(), 60)

	results, err := adapter.Scrape(context.Background(), nil, []string{"boats"})
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("結果件数 = %d, want 0", len(results))
	}
	if len(fetcher.fetched) != 0 {
		t.Errorf("未知のカテゴリでフェッチが行われた: %v", fetcher.fetched)
	}
}

func TestEbayBuildSearchURL(t *testing.T) {
	adapter := NewEbayAdapter(nil, newTestLogger(), 60)

	searchURL := adapter.buildSearchURL("3197")

	parsed, err := url.Parse(searchURL)
	if err != nil {
		t.Fatalf("URLのパースに失敗: %v", err)
	}
	if parsed.Path != "/sch/i.html" {
		t.Errorf("Path = %s, want /sch/i.html", parsed.Path)
	}

	q := parsed.Query()
	if q.Get("_sacat") != "3197" {
		t.Errorf("_sacat = %s, want 3197", q.Get("_sacat"))
	}
	if q.Get("LH_ItemCondition") != "3000" {
		t.Errorf("LH_ItemCondition = %s, want 3000（中古品）", q.Get("LH_ItemCondition"))
	}
	if q.Get("_sop") != "10" {
		t.Errorf("_sop = %s, want 10（新着順）", q.Get("_sop"))
	}
	if q.Get("_ipg") != "60" {
		t.Errorf("_ipg = %s, want 60", q.Get("_ipg"))
	}
}

func TestParseDollarPrice(t *testing.T) {
	tests := []struct {
		text    string
		want    float64
		wantErr bool
	}{
		{"$250.00", 250, false},
		{"$1,234.56", 1234.56, false},
		{"$99", 99, false},
		{"$10.00 to $25.00", 10, false}, // 範囲は下限を採用
		{"Contact seller", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := parseDollarPrice(tt.text)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseDollarPrice(%q) error = %v, wantErr %v", tt.text, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("parseDollarPrice(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestEbayPlatform(t *testing.T) {
	adapter := NewEbayAdapter(nil, newTestLogger(), 60)
	if adapter.Platform() != model.PlatformEbay {
		t.Errorf("Platform() = %s, want ebay", adapter.Platform())
	}
}
