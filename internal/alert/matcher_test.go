package alert

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/marketscout/internal/metrics"
	"github.com/hitoshi/marketscout/internal/model"
	"github.com/hitoshi/marketscout/internal/notify"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(&bytes.Buffer{}, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func floatPtr(v float64) *float64 {
	return &v
}

// baseAlert はテスト用の基本アラートを返す。
// フィルタを個別に上書きして使用する。
func baseAlert() *model.SearchAlert {
	return &model.SearchAlert{
		ID:       "alert-1",
		UserID:   "user-1",
		Name:     "Couch Watch",
		Keywords: []string{"couch"},
		IsActive: true,
	}
}

// baseListing はテスト用の基本出品を返す。
func baseListing() *model.Listing {
	return &model.Listing{
		ID:       "listing-1",
		Title:    "Vintage Leather Couch",
		Platform: model.PlatformCraigslist,
		Category: model.CategoryFurniture,
		Price:    200,
		Currency: "USD",
		Location: "Brooklyn, NY",
		URL:      "https://example.com/listing-1",
		IsActive: true,
	}
}

func TestMatches_KeywordOR(t *testing.T) {
	tests := []struct {
		name     string
		keywords []string
		title    string
		desc     string
		want     bool
	}{
		{"タイトルに一致", []string{"couch"}, "Vintage Couch", "", true},
		{"説明文に一致", []string{"couch"}, "Vintage Sofa", "a brown couch", true},
		{"大文字小文字を区別しない", []string{"COUCH"}, "vintage couch", "", true},
		{"いずれか1つで十分", []string{"table", "couch"}, "Vintage Couch", "", true},
		{"どれにも一致しない", []string{"table", "desk"}, "Vintage Couch", "", false},
		{"キーワードが空のアラートは一致しない", nil, "Vintage Couch", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alert := baseAlert()
			alert.Keywords = tt.keywords
			listing := baseListing()
			listing.Title = tt.title
			listing.Description = tt.desc

			if got := Matches(alert, listing); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatches_PriceBoundaries(t *testing.T) {
	tests := []struct {
		name     string
		priceMin float64
		priceMax *float64
		price    float64
		want     bool
	}{
		{"下限ちょうどは一致", 100, nil, 100, true},
		{"下限未満は不一致", 100, nil, 99.99, false},
		{"下限0は制約なし", 0, nil, 0, true},
		{"上限ちょうどは一致", 0, floatPtr(300), 300, true},
		{"上限超過は不一致", 0, floatPtr(300), 300.01, false},
		{"上限nilは制約なし", 0, nil, 1000000, true},
		{"上下限の範囲内", 100, floatPtr(300), 200, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alert := baseAlert()
			alert.PriceMin = tt.priceMin
			alert.PriceMax = tt.priceMax
			listing := baseListing()
			listing.Price = tt.price

			if got := Matches(alert, listing); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatches_Filters(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.SearchAlert)
		want   bool
	}{
		{"全フィルタ空は一致", func(a *model.SearchAlert) {}, true},
		{"プラットフォーム一致", func(a *model.SearchAlert) {
			a.Platforms = []model.Platform{model.PlatformCraigslist}
		}, true},
		{"プラットフォーム不一致", func(a *model.SearchAlert) {
			a.Platforms = []model.Platform{model.PlatformEbay}
		}, false},
		{"カテゴリ一致", func(a *model.SearchAlert) {
			a.Categories = []model.Category{model.CategoryFurniture}
		}, true},
		{"カテゴリ不一致", func(a *model.SearchAlert) {
			a.Categories = []model.Category{model.CategoryAutos}
		}, false},
		{"ロケーション部分一致", func(a *model.SearchAlert) {
			a.Locations = []string{"brooklyn"}
		}, true},
		{"ロケーション不一致", func(a *model.SearchAlert) {
			a.Locations = []string{"seattle"}
		}, false},
		{"非アクティブなアラートは一致しない", func(a *model.SearchAlert) {
			a.IsActive = false
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alert := baseAlert()
			tt.mutate(alert)

			if got := Matches(alert, baseListing()); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestMatches_FilterNarrowing はフィルタを追加するほどマッチ集合が狭まることを検証する。
func TestMatches_FilterNarrowing(t *testing.T) {
	listing := baseListing()

	loose := baseAlert()
	strict := baseAlert()
	strict.Platforms = []model.Platform{model.PlatformCraigslist}
	strict.Categories = []model.Category{model.CategoryFurniture}
	strict.Locations = []string{"brooklyn"}
	strict.PriceMin = 100
	strict.PriceMax = floatPtr(300)

	if !Matches(loose, listing) {
		t.Fatal("制約の緩いアラートが一致しなかった")
	}
	if !Matches(strict, listing) {
		t.Fatal("全条件を満たす出品が厳しいアラートに一致しなかった")
	}

	// 厳しいアラートに一致するなら、同条件を減らしたアラートにも必ず一致する
	strict.PriceMax = floatPtr(150)
	if Matches(strict, listing) {
		t.Error("上限を下回らない出品が一致した")
	}
	if !Matches(loose, listing) {
		t.Error("フィルタを狭めた影響が緩いアラートに波及した")
	}
}

func TestMatches_InactiveListing(t *testing.T) {
	listing := baseListing()
	listing.IsActive = false

	if Matches(baseAlert(), listing) {
		t.Error("取り下げ済みの出品がアラートに一致した")
	}
}

// --- ProcessNewListings のテスト ---

// mockAlertRepo はAlertRepositoryのテスト用モック。
type mockAlertRepo struct {
	active        []*model.SearchAlert
	activeErr     error
	recorded      []string // RecordNotificationされたアラートID
	recordErr     error
	recordedTimes []time.Time
}

func (m *mockAlertRepo) Create(ctx context.Context, alert *model.SearchAlert) error { return nil }
func (m *mockAlertRepo) ListByUserID(ctx context.Context, userID string) ([]*model.SearchAlert, error) {
	return nil, nil
}
func (m *mockAlertRepo) FindByIDAndUser(ctx context.Context, id, userID string) (*model.SearchAlert, error) {
	return nil, nil
}
func (m *mockAlertRepo) ListActive(ctx context.Context) ([]*model.SearchAlert, error) {
	return m.active, m.activeErr
}
func (m *mockAlertRepo) Update(ctx context.Context, alert *model.SearchAlert) error { return nil }
func (m *mockAlertRepo) Delete(ctx context.Context, id, userID string) (bool, error) {
	return false, nil
}
func (m *mockAlertRepo) RecordNotification(ctx context.Context, id string, at time.Time) error {
	if m.recordErr != nil {
		return m.recordErr
	}
	m.recorded = append(m.recorded, id)
	m.recordedTimes = append(m.recordedTimes, at)
	return nil
}

// mockDispatcher はDispatcherServiceのテスト用モック。
type mockDispatcher struct {
	results    map[string]notify.DispatchResult // アラートID -> 結果
	dispatched int
}

func (m *mockDispatcher) Dispatch(ctx context.Context, alert *model.SearchAlert, listing *model.Listing) notify.DispatchResult {
	m.dispatched++
	if result, ok := m.results[alert.ID]; ok {
		return result
	}
	return notify.DispatchResult{}
}

func sentResult() notify.DispatchResult {
	return notify.DispatchResult{
		Telegram: notify.ChannelResult{Attempted: true, Sent: true},
	}
}

func TestProcessNewListings_RecordsOncePerMatch(t *testing.T) {
	repo := &mockAlertRepo{active: []*model.SearchAlert{baseAlert()}}
	dispatcher := &mockDispatcher{
		results: map[string]notify.DispatchResult{"alert-1": sentResult()},
	}
	p := NewProcessor(repo, dispatcher, newTestLogger(), metrics.NopCollector{})

	summary := p.ProcessNewListings(context.Background(), []*model.Listing{baseListing()})

	if summary.Processed != 1 || summary.Matched != 1 || summary.Notified != 1 {
		t.Errorf("summary = %+v, want {1 1 1}", summary)
	}
	if len(repo.recorded) != 1 {
		t.Fatalf("RecordNotification 呼び出し回数 = %d, want 1", len(repo.recorded))
	}
	if repo.recorded[0] != "alert-1" {
		t.Errorf("記録されたアラートID = %s, want alert-1", repo.recorded[0])
	}
}

func TestProcessNewListings_NoRecordWhenAllChannelsFail(t *testing.T) {
	repo := &mockAlertRepo{active: []*model.SearchAlert{baseAlert()}}
	dispatcher := &mockDispatcher{
		results: map[string]notify.DispatchResult{
			"alert-1": {Telegram: notify.ChannelResult{Attempted: true, Reason: "送信失敗"}},
		},
	}
	p := NewProcessor(repo, dispatcher, newTestLogger(), metrics.NopCollector{})

	summary := p.ProcessNewListings(context.Background(), []*model.Listing{baseListing()})

	if summary.Matched != 1 {
		t.Errorf("Matched = %d, want 1", summary.Matched)
	}
	if summary.Notified != 0 {
		t.Errorf("Notified = %d, want 0", summary.Notified)
	}
	if len(repo.recorded) != 0 {
		t.Errorf("全チャネル失敗時にRecordNotificationが呼ばれた: %v", repo.recorded)
	}
}

func TestProcessNewListings_NonMatchingListingSkipsDispatch(t *testing.T) {
	repo := &mockAlertRepo{active: []*model.SearchAlert{baseAlert()}}
	dispatcher := &mockDispatcher{}
	p := NewProcessor(repo, dispatcher, newTestLogger(), metrics.NopCollector{})

	listing := baseListing()
	listing.Title = "Mountain Bike"

	summary := p.ProcessNewListings(context.Background(), []*model.Listing{listing})

	if summary.Matched != 0 {
		t.Errorf("Matched = %d, want 0", summary.Matched)
	}
	if dispatcher.dispatched != 0 {
		t.Errorf("不一致の出品でDispatchが呼ばれた: %d回", dispatcher.dispatched)
	}
}

func TestProcessNewListings_ContinuesAfterRecordError(t *testing.T) {
	alert1 := baseAlert()
	alert2 := baseAlert()
	alert2.ID = "alert-2"

	repo := &mockAlertRepo{
		active:    []*model.SearchAlert{alert1, alert2},
		recordErr: errors.New("db down"),
	}
	dispatcher := &mockDispatcher{
		results: map[string]notify.DispatchResult{
			"alert-1": sentResult(),
			"alert-2": sentResult(),
		},
	}
	p := NewProcessor(repo, dispatcher, newTestLogger(), metrics.NopCollector{})

	summary := p.ProcessNewListings(context.Background(), []*model.Listing{baseListing()})

	// 配信記録の失敗は通知自体の成功を取り消さない
	if summary.Notified != 2 {
		t.Errorf("Notified = %d, want 2", summary.Notified)
	}
	if dispatcher.dispatched != 2 {
		t.Errorf("Dispatch 呼び出し回数 = %d, want 2", dispatcher.dispatched)
	}
}

func TestProcessNewListings_ProcessedCountsListings(t *testing.T) {
	repo := &mockAlertRepo{active: []*model.SearchAlert{baseAlert()}}
	p := NewProcessor(repo, &mockDispatcher{}, newTestLogger(), metrics.NopCollector{})

	bike := baseListing()
	bike.ID = "listing-2"
	bike.Title = "Mountain Bike"

	summary := p.ProcessNewListings(context.Background(), []*model.Listing{baseListing(), bike})

	// Processedは組み合わせ数ではなく評価対象の出品数
	if summary.Processed != 2 {
		t.Errorf("Processed = %d, want 2", summary.Processed)
	}
	if summary.Matched != 1 {
		t.Errorf("Matched = %d, want 1", summary.Matched)
	}
}

func TestProcessNewListings_NoActiveAlertsStillCountsListings(t *testing.T) {
	repo := &mockAlertRepo{}
	dispatcher := &mockDispatcher{}
	p := NewProcessor(repo, dispatcher, newTestLogger(), metrics.NopCollector{})

	summary := p.ProcessNewListings(context.Background(), []*model.Listing{baseListing()})

	if summary.Processed != 1 {
		t.Errorf("Processed = %d, want 1", summary.Processed)
	}
	if dispatcher.dispatched != 0 {
		t.Errorf("アラートがないのにDispatchが呼ばれた: %d回", dispatcher.dispatched)
	}
}

func TestProcessNewListings_RepoErrorReturnsEmptySummary(t *testing.T) {
	repo := &mockAlertRepo{activeErr: errors.New("db down")}
	dispatcher := &mockDispatcher{}
	p := NewProcessor(repo, dispatcher, newTestLogger(), metrics.NopCollector{})

	summary := p.ProcessNewListings(context.Background(), []*model.Listing{baseListing()})

	if summary.Processed != 0 || summary.Matched != 0 || summary.Notified != 0 {
		t.Errorf("summary = %+v, want zero", summary)
	}
}
