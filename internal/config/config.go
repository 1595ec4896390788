package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/marketscout/internal/model"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
// コアロジックはこの構造体を受け取り、環境変数を直接参照しない。
type Config struct {
	// Database
	DatabaseURL string

	// Server
	ServerPort        string
	CORSAllowedOrigin string

	// Fetch
	ScrapeTimeout time.Duration // 直接リクエストのタイムアウト
	RelayTimeout  time.Duration // バイパスリレー経由のタイムアウト
	FetchMaxSize  int64

	// Bypass relay (ScraperAPI)
	ScraperAPIKey string

	// Notification providers
	TelegramBotToken   string
	TwilioAccountSID   string
	TwilioAuthToken    string
	WhatsAppFromNumber string

	// Scrape matrix
	SearchLocations     []string
	SearchCategories    []string
	MaxResultsPerSearch int
	EnabledPlatforms    map[model.Platform]bool

	// Scheduling
	ScrapeSchedule string // cron書式
	RetentionDays  int

	// Rate Limit
	RateLimitGeneral int // req/min
	RateLimitTrigger int // req/min（スクレイプトリガー専用）
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	cfg.ScrapeTimeout = getEnvDuration("SCRAPE_TIMEOUT", 15*time.Second)
	cfg.RelayTimeout = getEnvDuration("RELAY_TIMEOUT", 30*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)

	cfg.ScraperAPIKey = os.Getenv("SCRAPER_API_KEY")

	cfg.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.TwilioAccountSID = os.Getenv("WHATSAPP_ACCOUNT_SID")
	cfg.TwilioAuthToken = os.Getenv("WHATSAPP_AUTH_TOKEN")
	cfg.WhatsAppFromNumber = os.Getenv("WHATSAPP_FROM_NUMBER")

	cfg.SearchLocations = getEnvList("SEARCH_LOCATIONS", []string{"newyork"})
	cfg.SearchCategories = getEnvList("SEARCH_CATEGORIES",
		[]string{"furniture", "apartments", "motorcycles", "autos"})
	cfg.MaxResultsPerSearch = getEnvInt("MAX_RESULTS_PER_SEARCH", 50)
	cfg.EnabledPlatforms = loadEnabledPlatforms()

	cfg.ScrapeSchedule = getEnvString("SCRAPE_SCHEDULE", "0 6,12,18 * * *")
	cfg.RetentionDays = getEnvInt("LISTING_RETENTION_DAYS", 14)

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitTrigger = getEnvInt("RATE_LIMIT_TRIGGER", 10)

	return cfg, nil
}

// loadEnabledPlatforms はENABLE_<PLATFORM>トグルを読み込む。
// デフォルトは全プラットフォーム有効で、明示的に"false"を設定した場合のみ無効になる。
func loadEnabledPlatforms() map[model.Platform]bool {
	enabled := make(map[model.Platform]bool, len(model.AllPlatforms))
	for _, p := range model.AllPlatforms {
		key := "ENABLE_" + strings.ToUpper(string(p))
		enabled[p] = os.Getenv(key) != "false"
	}
	return enabled
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	if len(result) == 0 {
		return defaultVal
	}
	return result
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
