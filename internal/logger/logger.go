// Package logger はJSON構造化ログのセットアップを提供する。
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Setup は指定レベルのJSON構造化ログ出力のslog.Loggerを生成して返す。
func Setup(w io.Writer, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler)
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// Config読み込み前に呼ばれるため、レベルはLOG_LEVEL環境変数から直接読む。
// writerがnilの場合はos.Stdoutに出力する。
func SetupDefault(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	logger := Setup(w, parseLevel(os.Getenv("LOG_LEVEL")))
	slog.SetDefault(logger)
}

// parseLevel はLOG_LEVELの文字列をslog.Levelに変換する。
// 未設定・未知の値はInfoにフォールバックする。
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
