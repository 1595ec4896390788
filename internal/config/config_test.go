package config

import (
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/marketscout/internal/model"
)

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	if err == nil {
		t.Fatal("DATABASE_URL未設定でerror = nil")
	}
	if !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Errorf("エラーメッセージに変数名が含まれない: %v", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/marketscout")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %s, want 8080", cfg.ServerPort)
	}
	if cfg.ScrapeTimeout != 15*time.Second {
		t.Errorf("ScrapeTimeout = %v, want 15s", cfg.ScrapeTimeout)
	}
	if cfg.RelayTimeout != 30*time.Second {
		t.Errorf("RelayTimeout = %v, want 30s", cfg.RelayTimeout)
	}
	if cfg.FetchMaxSize != 5242880 {
		t.Errorf("FetchMaxSize = %d, want 5MB", cfg.FetchMaxSize)
	}
	if cfg.MaxResultsPerSearch != 50 {
		t.Errorf("MaxResultsPerSearch = %d, want 50", cfg.MaxResultsPerSearch)
	}
	if cfg.ScrapeSchedule != "0 6,12,18 * * *" {
		t.Errorf("ScrapeSchedule = %q", cfg.ScrapeSchedule)
	}
	if cfg.RetentionDays != 14 {
		t.Errorf("RetentionDays = %d, want 14", cfg.RetentionDays)
	}
	if cfg.RateLimitGeneral != 120 || cfg.RateLimitTrigger != 10 {
		t.Errorf("RateLimit = %d/%d, want 120/10", cfg.RateLimitGeneral, cfg.RateLimitTrigger)
	}
	if len(cfg.SearchLocations) != 1 || cfg.SearchLocations[0] != "newyork" {
		t.Errorf("SearchLocations = %v", cfg.SearchLocations)
	}
	if len(cfg.SearchCategories) != 4 {
		t.Errorf("SearchCategories = %v", cfg.SearchCategories)
	}

	// デフォルトは全プラットフォーム有効
	for _, p := range model.AllPlatforms {
		if !cfg.EnabledPlatforms[p] {
			t.Errorf("EnabledPlatforms[%s] = false, want true", p)
		}
	}
}

func TestLoad_PlatformToggle(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/marketscout")
	t.Setenv("ENABLE_CRAIGSLIST", "false")
	t.Setenv("ENABLE_EBAY", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.EnabledPlatforms[model.PlatformCraigslist] {
		t.Error("ENABLE_CRAIGSLIST=falseが反映されていない")
	}
	if !cfg.EnabledPlatforms[model.PlatformEbay] {
		t.Error("EnabledPlatforms[ebay] = false, want true")
	}
	// 明示的に"false"以外はすべて有効
	if !cfg.EnabledPlatforms[model.PlatformOfferUp] {
		t.Error("未設定のプラットフォームが無効になった")
	}
}

func TestLoad_ListParsing(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/marketscout")
	t.Setenv("SEARCH_LOCATIONS", "new york, seattle , ,boston")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := []string{"new york", "seattle", "boston"}
	if len(cfg.SearchLocations) != len(want) {
		t.Fatalf("SearchLocations = %v, want %v", cfg.SearchLocations, want)
	}
	for i, loc := range want {
		if cfg.SearchLocations[i] != loc {
			t.Errorf("SearchLocations[%d] = %q, want %q", i, cfg.SearchLocations[i], loc)
		}
	}
}

func TestLoad_InvalidNumbersFallBackToDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/marketscout")
	t.Setenv("MAX_RESULTS_PER_SEARCH", "many")
	t.Setenv("SCRAPE_TIMEOUT", "fast")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MaxResultsPerSearch != 50 {
		t.Errorf("MaxResultsPerSearch = %d, want デフォルトの50", cfg.MaxResultsPerSearch)
	}
	if cfg.ScrapeTimeout != 15*time.Second {
		t.Errorf("ScrapeTimeout = %v, want デフォルトの15s", cfg.ScrapeTimeout)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/marketscout")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SCRAPER_API_KEY", "secret-key")
	t.Setenv("LISTING_RETENTION_DAYS", "30")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %s, want 9090", cfg.ServerPort)
	}
	if cfg.ScraperAPIKey != "secret-key" {
		t.Errorf("ScraperAPIKey = %s", cfg.ScraperAPIKey)
	}
	if cfg.RetentionDays != 30 {
		t.Errorf("RetentionDays = %d, want 30", cfg.RetentionDays)
	}
}
