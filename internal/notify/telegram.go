// Package notify はマッチした出品の通知配信を提供する。
// Telegram・WhatsAppの各チャネル実装と、アラート設定に従って
// 送信先へ振り分けるディスパッチャーを含む。
package notify

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSender はTelegramメッセージ送信のインターフェースを定義する。
type TelegramSender interface {
	// SendMessage は指定チャットへMarkdown書式のメッセージを送信する。
	SendMessage(ctx context.Context, chatID, text string) error
}

// telegramSender はBot API経由のTelegramSender実装。
type telegramSender struct {
	bot *tgbotapi.BotAPI
}

// NewTelegramSender はTelegramSenderの新しいインスタンスを生成する。
// トークンが不正な場合はエラーを返す（Bot APIのgetMeで検証される）。
func NewTelegramSender(token string) (*telegramSender, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("Telegram Botの初期化に失敗しました: %w", err)
	}
	return &telegramSender{bot: bot}, nil
}

// SendMessage は指定チャットへメッセージを送信する。
func (s *telegramSender) SendMessage(ctx context.Context, chatID, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("チャットIDが不正です: %w", err)
	}

	msg := tgbotapi.NewMessage(id, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = false

	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("Telegramメッセージの送信に失敗しました: %w", err)
	}
	return nil
}

var _ TelegramSender = (*telegramSender)(nil)
