// Package scrape はマーケットプレイスからの出品収集を提供する。
// 対ボット防御を考慮したフェッチ層、プラットフォームごとのソースアダプター、
// 全プラットフォームを巡回するオーケストレーターを含む。
package scrape

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/marketscout/internal/metrics"
	"github.com/hitoshi/marketscout/internal/model"
)

// defaultRelayEndpoint はバイパスリレー（ScraperAPI）のエンドポイント。
const defaultRelayEndpoint = "http://api.scraperapi.com"

// browserHeaders は直接フェッチ時に付与するブラウザ相当のリクエストヘッダー。
// 素朴なUser-Agent判定によるブロックを回避する。
var browserHeaders = map[string]string{
	"User-Agent":                "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.5",
	"Connection":                "keep-alive",
	"Upgrade-Insecure-Requests": "1",
}

// FetchResponse はフェッチ結果を表す。
type FetchResponse struct {
	StatusCode int
	Body       []byte
	ViaRelay   bool // バイパスリレー経由で取得した場合true
}

// Fetcher はページフェッチのインターフェース。アダプターから利用する。
type Fetcher interface {
	// Fetch は指定URLのページを取得する。
	// 直接フェッチがブロック（429/403）された場合はバイパスリレーへ
	// フォールバックする。リレーが設定されていない場合はRATE_LIMITEDエラーを返す。
	Fetch(ctx context.Context, pageURL string) (*FetchResponse, error)
}

// Client はFetcherの実装。
// 直接フェッチとバイパスリレーの2段構成でページを取得する。
type Client struct {
	directClient  *http.Client
	relayClient   *http.Client
	relayAPIKey   string
	relayEndpoint string // テスト用にエンドポイントを差し替え可能
	maxBodySize   int64
	logger        *slog.Logger
	metrics       metrics.MetricsCollector
}

// NewClient はClientの新しいインスタンスを生成する。
// directClientにはSSRF防止機能付きのクライアントを渡すこと。
func NewClient(directClient, relayClient *http.Client, relayAPIKey string, maxBodySize int64, logger *slog.Logger, collector metrics.MetricsCollector) *Client {
	return &Client{
		directClient:  directClient,
		relayClient:   relayClient,
		relayAPIKey:   relayAPIKey,
		relayEndpoint: defaultRelayEndpoint,
		maxBodySize:   maxBodySize,
		logger:        logger,
		metrics:       collector,
	}
}

// Fetch は指定URLのページを取得する。
// 挙動は以下の順で決まる:
//  1. ブラウザ相当ヘッダー付きの直接GET
//  2. 429または403が返った場合はバイパスリレーへフォールバック
//  3. リレーのAPIキーが未設定の場合はRATE_LIMITEDエラー
//
// ネットワーク障害・タイムアウト・5xxはNETWORK_ERRORとして返し、
// 自動リトライは行わない（次回のスケジュール実行が再試行になる）。
func (c *Client) Fetch(ctx context.Context, pageURL string) (*FetchResponse, error) {
	start := time.Now()
	defer func() {
		c.metrics.RecordFetchLatency(time.Since(start))
	}()

	resp, err := c.fetchDirect(ctx, pageURL)
	if err != nil {
		c.logger.Warn("直接フェッチに失敗しました",
			slog.String("url", pageURL),
			slog.String("error", err.Error()),
		)
		return nil, model.NewNetworkError(pageURL, err.Error())
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden:
		return c.fetchViaRelay(ctx, pageURL, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, model.NewNetworkError(pageURL,
			fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}

	return resp, nil
}

// fetchDirect はブラウザ相当ヘッダー付きで直接GETする。
func (c *Client) fetchDirect(ctx context.Context, pageURL string) (*FetchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	for key, value := range browserHeaders {
		req.Header.Set(key, value)
	}

	resp, err := c.directClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	return &FetchResponse{StatusCode: resp.StatusCode, Body: body}, nil
}

// fetchViaRelay はバイパスリレー経由でページを取得する。
// blockedStatusは直接フェッチで返されたステータスコード（ログ用）。
func (c *Client) fetchViaRelay(ctx context.Context, pageURL string, blockedStatus int) (*FetchResponse, error) {
	if c.relayAPIKey == "" {
		c.logger.Warn("直接フェッチがブロックされましたがリレーが未設定です",
			slog.String("url", pageURL),
			slog.Int("http_status", blockedStatus),
		)
		return nil, model.NewRateLimitedError(pageURL)
	}

	c.logger.Info("バイパスリレー経由でフェッチします",
		slog.String("url", pageURL),
		slog.Int("http_status", blockedStatus),
	)

	relayURL, err := url.Parse(c.relayEndpoint)
	if err != nil {
		return nil, fmt.Errorf("リレーエンドポイントURLのパースに失敗しました: %w", err)
	}
	q := relayURL.Query()
	q.Set("api_key", c.relayAPIKey)
	q.Set("url", pageURL)
	q.Set("render", "false")
	q.Set("country_code", "us")
	relayURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, relayURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}

	resp, err := c.relayClient.Do(req)
	if err != nil {
		return nil, model.NewNetworkError(pageURL, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, model.NewNetworkError(pageURL,
			fmt.Sprintf("relay returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, model.NewNetworkError(pageURL, err.Error())
	}

	c.metrics.RecordRelayFetch()
	return &FetchResponse{StatusCode: resp.StatusCode, Body: body, ViaRelay: true}, nil
}

var _ Fetcher = (*Client)(nil)
