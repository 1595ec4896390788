package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // API全般のレート（req/sec）。120/60 = 2 req/sec
	GeneralBurst    int           // API全般のバーストサイズ
	TriggerRate     rate.Limit    // スクレイプトリガーのレート（req/sec）。10/60
	TriggerBurst    int           // スクレイプトリガーのバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// NewRateLimiterConfig はreq/min単位の設定からRateLimiterConfigを生成する。
func NewRateLimiterConfig(generalPerMin, triggerPerMin int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(float64(generalPerMin) / 60.0),
		GeneralBurst:    generalPerMin,
		TriggerRate:     rate.Limit(float64(triggerPerMin) / 60.0),
		TriggerBurst:    triggerPerMin,
		CleanupInterval: 5 * time.Minute,
	}
}

// clientLimiter はクライアントごとのレートリミッターとアクセス時刻を保持する。
type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter はクライアントIPごとのレート制限を管理する。
// API全般のレート制限とスクレイプトリガーのレート制限の2種類を提供する。
// 認証を持たないAPIのため、制限キーにはクライアントIPを使用する。
type RateLimiter struct {
	config RateLimiterConfig

	generalMu       sync.RWMutex
	generalLimiters map[string]*clientLimiter

	triggerMu       sync.RWMutex
	triggerLimiters map[string]*clientLimiter

	stopCh chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:          config,
		generalLimiters: make(map[string]*clientLimiter),
		triggerLimiters: make(map[string]*clientLimiter),
		stopCh:          make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := ClientIP(r)
			limiter := rl.getOrCreateGeneralLimiter(clientIP)

			if !limiter.Allow() {
				writeRateLimitResponse(w, rl.config.GeneralRate)
				slog.Warn("rate limit exceeded",
					slog.String("client_ip", clientIP),
					slog.String("limit_type", "general"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// TriggerMiddleware はスクレイプトリガー専用のレート制限ミドルウェアを返す。
// API全般のレート制限とは独立に動作する。
func (rl *RateLimiter) TriggerMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := ClientIP(r)
			limiter := rl.getOrCreateTriggerLimiter(clientIP)

			if !limiter.Allow() {
				writeRateLimitResponse(w, rl.config.TriggerRate)
				slog.Warn("rate limit exceeded",
					slog.String("client_ip", clientIP),
					slog.String("limit_type", "scrape_trigger"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GeneralLimiterCount は現在管理されているAPI全般リミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) GeneralLimiterCount() int {
	rl.generalMu.RLock()
	defer rl.generalMu.RUnlock()
	return len(rl.generalLimiters)
}

// TriggerLimiterCount は現在管理されているトリガーリミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) TriggerLimiterCount() int {
	rl.triggerMu.RLock()
	defer rl.triggerMu.RUnlock()
	return len(rl.triggerLimiters)
}

// getOrCreateGeneralLimiter はクライアントのAPI全般リミッターを取得または作成する。
func (rl *RateLimiter) getOrCreateGeneralLimiter(clientIP string) *rate.Limiter {
	rl.generalMu.RLock()
	cl, exists := rl.generalLimiters[clientIP]
	rl.generalMu.RUnlock()

	if exists {
		rl.generalMu.Lock()
		cl.lastAccess = time.Now()
		rl.generalMu.Unlock()
		return cl.limiter
	}

	rl.generalMu.Lock()
	defer rl.generalMu.Unlock()

	// ダブルチェック
	if cl, exists := rl.generalLimiters[clientIP]; exists {
		cl.lastAccess = time.Now()
		return cl.limiter
	}

	limiter := rate.NewLimiter(rl.config.GeneralRate, rl.config.GeneralBurst)
	rl.generalLimiters[clientIP] = &clientLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// getOrCreateTriggerLimiter はクライアントのトリガーリミッターを取得または作成する。
func (rl *RateLimiter) getOrCreateTriggerLimiter(clientIP string) *rate.Limiter {
	rl.triggerMu.RLock()
	cl, exists := rl.triggerLimiters[clientIP]
	rl.triggerMu.RUnlock()

	if exists {
		rl.triggerMu.Lock()
		cl.lastAccess = time.Now()
		rl.triggerMu.Unlock()
		return cl.limiter
	}

	rl.triggerMu.Lock()
	defer rl.triggerMu.Unlock()

	// ダブルチェック
	if cl, exists := rl.triggerLimiters[clientIP]; exists {
		cl.lastAccess = time.Now()
		return cl.limiter
	}

	limiter := rate.NewLimiter(rl.config.TriggerRate, rl.config.TriggerBurst)
	rl.triggerLimiters[clientIP] = &clientLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2

	now := time.Now()

	rl.generalMu.Lock()
	for clientIP, cl := range rl.generalLimiters {
		if now.Sub(cl.lastAccess) > ttl {
			delete(rl.generalLimiters, clientIP)
		}
	}
	rl.generalMu.Unlock()

	rl.triggerMu.Lock()
	for clientIP, cl := range rl.triggerLimiters {
		if now.Sub(cl.lastAccess) > ttl {
			delete(rl.triggerLimiters, clientIP)
		}
	}
	rl.triggerMu.Unlock()
}

// ClientIP はリクエストのクライアントIPを解決する。
// リバースプロキシ配下での運用を想定し、X-Forwarded-Forの先頭を優先する。
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	// Retry-Afterの算出: 1トークンが補充されるまでの秒数
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	json.NewEncoder(w).Encode(map[string]string{
		"code":     "rate_limit_exceeded",
		"message":  "Too many requests. Please try again later.",
		"category": "system",
		"action":   "Please wait and retry after the specified time.",
	})
}
