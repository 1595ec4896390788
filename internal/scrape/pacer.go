package scrape

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/hitoshi/marketscout/internal/model"
)

// requestsPerSecond はプラットフォームごとのリクエストレート。
// 連続リクエストの間隔がおよそ2秒になるよう抑える。
const requestsPerSecond = 0.5

// Pacer はプラットフォームごとにリクエスト間隔を空けるレートリミッター。
// 異なるプラットフォームへのリクエストは互いに影響しない。
type Pacer struct {
	mu       sync.Mutex
	limiters map[model.Platform]*rate.Limiter
}

// NewPacer はPacerの新しいインスタンスを生成する。
func NewPacer() *Pacer {
	return &Pacer{
		limiters: make(map[model.Platform]*rate.Limiter),
	}
}

// Wait はプラットフォームのレート制限枠が空くまでブロックする。
// コンテキストがキャンセルされた場合はエラーを返す。
func (p *Pacer) Wait(ctx context.Context, platform model.Platform) error {
	return p.limiterFor(platform).Wait(ctx)
}

func (p *Pacer) limiterFor(platform model.Platform) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	limiter, ok := p.limiters[platform]
	if !ok {
		// burst=1で最初のリクエストは待機なし、以降は間隔制御される
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
		p.limiters[platform] = limiter
	}
	return limiter
}

// PacedFetcher は同一プラットフォームへの連続リクエストの間隔を空けるFetcherラッパー。
// アダプターはロケーション×カテゴリの組み合わせごとにページをフェッチするため、
// ページ単位のフェッチすべてがここを通る。
type PacedFetcher struct {
	fetcher  Fetcher
	pacer    *Pacer
	platform model.Platform
}

// NewPacedFetcher は指定プラットフォームのレート制限付きFetcherを生成する。
func NewPacedFetcher(fetcher Fetcher, pacer *Pacer, platform model.Platform) *PacedFetcher {
	return &PacedFetcher{
		fetcher:  fetcher,
		pacer:    pacer,
		platform: platform,
	}
}

// Fetch はレート制限枠が空くのを待ってからページを取得する。
func (f *PacedFetcher) Fetch(ctx context.Context, pageURL string) (*FetchResponse, error) {
	if err := f.pacer.Wait(ctx, f.platform); err != nil {
		return nil, err
	}
	return f.fetcher.Fetch(ctx, pageURL)
}

var _ Fetcher = (*PacedFetcher)(nil)
