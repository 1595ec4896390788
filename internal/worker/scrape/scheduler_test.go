package scrape

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/marketscout/internal/scrape"
)

// stubRunner はRunnerのテスト用スタブ。
type stubRunner struct {
	runs int
}

func (r *stubRunner) RunAll(ctx context.Context) *scrape.RunSummary {
	r.runs++
	return &scrape.RunSummary{}
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
}

func TestStart_InvalidScheduleReturnsError(t *testing.T) {
	s := NewScheduler(&stubRunner{}, "not a cron spec", newTestLogger())

	err := s.Start(context.Background())
	if err == nil {
		t.Fatal("不正なcron書式でerror = nil")
	}
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	s := NewScheduler(&stubRunner{}, "0 6,12,18 * * *", newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- s.Start(ctx)
	}()

	// 起動が完了するのを少し待ってからキャンセルする
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("コンテキストのキャンセル後にStartが返らない")
	}
}
