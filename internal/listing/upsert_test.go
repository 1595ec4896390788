package listing

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/marketscout/internal/metrics"
	"github.com/hitoshi/marketscout/internal/model"
	"github.com/hitoshi/marketscout/internal/repository"
)

// mockListingRepo はListingRepositoryのテスト用モック。
type mockListingRepo struct {
	upserted  *model.Listing
	upsertErr error

	searchListings []*model.Listing
	searchTotal    int
	searchQuery    repository.ListingSearchQuery
}

func (m *mockListingRepo) Upsert(ctx context.Context, listing *model.Listing) (*model.Listing, error) {
	if m.upsertErr != nil {
		return nil, m.upsertErr
	}
	m.upserted = listing
	stored := *listing
	stored.ID = "stored-id"
	return &stored, nil
}

func (m *mockListingRepo) Search(ctx context.Context, q repository.ListingSearchQuery) ([]*model.Listing, int, error) {
	m.searchQuery = q
	return m.searchListings, m.searchTotal, nil
}

func (m *mockListingRepo) CategorySummaries(ctx context.Context) ([]repository.CategorySummary, error) {
	return nil, nil
}

func (m *mockListingRepo) PlatformSummaries(ctx context.Context) ([]repository.PlatformSummary, error) {
	return nil, nil
}

func (m *mockListingRepo) Stats(ctx context.Context) (*repository.ListingStats, error) {
	return &repository.ListingStats{}, nil
}

func (m *mockListingRepo) DeactivateStale(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

var _ repository.ListingRepository = (*mockListingRepo)(nil)

// mockSanitizer はサニタイズ済みであることを検証できるよう印を付ける。
type mockSanitizer struct{}

func (mockSanitizer) Sanitize(raw string) string {
	return "sanitized:" + raw
}

// mockGuard はSSRFGuardServiceのテスト用モック。
type mockGuard struct {
	validateErr error
}

func (g *mockGuard) NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client {
	return &http.Client{Timeout: timeout}
}

func (g *mockGuard) ValidateURL(rawURL string) error {
	return g.validateErr
}

func validCandidate() *model.Candidate {
	return &model.Candidate{
		Title:       "  Vintage Couch  ",
		Description: "<b>nice</b> couch",
		Platform:    model.PlatformCraigslist,
		Category:    model.CategoryFurniture,
		Price:       200,
		URL:         "https://newyork.craigslist.org/fua/123.html",
	}
}

func newUpsertService(repo *mockListingRepo, guard *mockGuard) *upsertService {
	if guard == nil {
		guard = &mockGuard{}
	}
	svc := NewUpsertService(repo, mockSanitizer{}, guard, metrics.NopCollector{})
	svc.now = func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	return svc
}

func TestUpsert_NormalizesCandidate(t *testing.T) {
	repo := &mockListingRepo{}
	svc := newUpsertService(repo, nil)

	stored, err := svc.Upsert(context.Background(), validCandidate())
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if stored.ID != "stored-id" {
		t.Errorf("保存後のレコードが返されていない: ID = %s", stored.ID)
	}

	saved := repo.upserted
	if saved.Title != "Vintage Couch" {
		t.Errorf("Title = %q, want 前後の空白を除去した %q", saved.Title, "Vintage Couch")
	}
	if !strings.HasPrefix(saved.Description, "sanitized:") {
		t.Errorf("説明文がサニタイズされていない: %q", saved.Description)
	}
	if saved.Currency != "USD" {
		t.Errorf("Currency = %s, want USD", saved.Currency)
	}
	if !saved.IsActive {
		t.Error("IsActive = false, want true")
	}
	if !saved.ScrapedAt.Equal(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("ScrapedAt = %v", saved.ScrapedAt)
	}
	if saved.ImageURLs == nil || saved.Metadata == nil {
		t.Error("ImageURLs / Metadata がnilのまま保存された")
	}
}

func TestUpsert_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.Candidate)
	}{
		{"タイトルなし", func(c *model.Candidate) { c.Title = "  " }},
		{"URLなし", func(c *model.Candidate) { c.URL = "" }},
		{"負の価格", func(c *model.Candidate) { c.Price = -1 }},
	}

	repo := &mockListingRepo{}
	svc := newUpsertService(repo, nil)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidate := validCandidate()
			tt.mutate(candidate)

			_, err := svc.Upsert(context.Background(), candidate)
			if !model.IsValidation(err) {
				t.Errorf("Upsert() error = %v, want VALIDATION_ERROR", err)
			}
		})
	}
	if repo.upserted != nil {
		t.Error("検証エラー時にリポジトリのUpsertが呼ばれた")
	}
}

func TestUpsert_RejectsUnsafeURL(t *testing.T) {
	svc := newUpsertService(&mockListingRepo{}, &mockGuard{
		validateErr: errors.New("private IP not allowed"),
	})

	candidate := validCandidate()
	candidate.URL = "http://169.254.169.254/latest/meta-data"

	_, err := svc.Upsert(context.Background(), candidate)
	if !model.IsValidation(err) {
		t.Errorf("Upsert() error = %v, want VALIDATION_ERROR", err)
	}
}

func TestUpsert_UnknownEnumsFallBackToOther(t *testing.T) {
	repo := &mockListingRepo{}
	svc := newUpsertService(repo, nil)

	candidate := validCandidate()
	candidate.Platform = "myspace"
	candidate.Category = "boats"

	if _, err := svc.Upsert(context.Background(), candidate); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if repo.upserted.Platform != model.PlatformOther {
		t.Errorf("Platform = %s, want other", repo.upserted.Platform)
	}
	if repo.upserted.Category != model.CategoryOther {
		t.Errorf("Category = %s, want other", repo.upserted.Category)
	}
}

func TestUpsert_PropagatesRepositoryError(t *testing.T) {
	repoErr := errors.New("db down")
	svc := newUpsertService(&mockListingRepo{upsertErr: repoErr}, nil)

	_, err := svc.Upsert(context.Background(), validCandidate())
	if !errors.Is(err, repoErr) {
		t.Errorf("Upsert() error = %v, want %v", err, repoErr)
	}
}
