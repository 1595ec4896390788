package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/marketscout/internal/metrics"
	"github.com/hitoshi/marketscout/internal/model"
)

// ChannelResult は1チャネルへの配信結果を表す。
type ChannelResult struct {
	Attempted bool   // 送信を試みた場合true。スキップした場合false
	Sent      bool   // 送信に成功した場合true
	Reason    string // スキップまたは失敗の理由
}

// DispatchResult は1件のマッチに対する全チャネルの配信結果を表す。
type DispatchResult struct {
	Telegram ChannelResult
	WhatsApp ChannelResult
}

// AnySent はいずれかのチャネルで送信に成功したかを返す。
func (r DispatchResult) AnySent() bool {
	return r.Telegram.Sent || r.WhatsApp.Sent
}

// DispatcherService は通知配信のインターフェースを定義する。
type DispatcherService interface {
	// Dispatch はアラートの設定に従って有効な全チャネルへ通知を送信する。
	// 1チャネルの失敗が他チャネルの送信を妨げることはなく、
	// リトライは行わない（1チャネルにつき1回だけ試行する）。
	Dispatch(ctx context.Context, alert *model.SearchAlert, listing *model.Listing) DispatchResult
}

// dispatcher はDispatcherServiceの実装。
// 各チャネルのsenderはnil許容で、nilのチャネルは未設定としてスキップされる。
type dispatcher struct {
	telegram TelegramSender
	whatsapp WhatsAppSender
	logger   *slog.Logger
	metrics  metrics.MetricsCollector
}

// NewDispatcher はDispatcherServiceの新しいインスタンスを生成する。
// プロバイダーの認証情報が未設定のチャネルはsenderにnilを渡す。
func NewDispatcher(telegram TelegramSender, whatsapp WhatsAppSender, logger *slog.Logger, collector metrics.MetricsCollector) *dispatcher {
	return &dispatcher{
		telegram: telegram,
		whatsapp: whatsapp,
		logger:   logger,
		metrics:  collector,
	}
}

// Dispatch はアラートの設定に従って有効な全チャネルへ通知を送信する。
func (d *dispatcher) Dispatch(ctx context.Context, alert *model.SearchAlert, listing *model.Listing) DispatchResult {
	text := FormatMessage(alert, listing)

	result := DispatchResult{
		Telegram: d.sendTelegram(ctx, alert, text),
		WhatsApp: d.sendWhatsApp(ctx, alert, text),
	}

	d.logger.Info("通知の配信が完了しました",
		slog.String("alert_id", alert.ID),
		slog.String("listing_url", listing.URL),
		slog.Bool("telegram_sent", result.Telegram.Sent),
		slog.Bool("whatsapp_sent", result.WhatsApp.Sent),
	)
	return result
}

func (d *dispatcher) sendTelegram(ctx context.Context, alert *model.SearchAlert, text string) ChannelResult {
	if !alert.Channels.Telegram.Enabled {
		return ChannelResult{Reason: "channel disabled"}
	}
	if alert.Channels.Telegram.ChatID == "" {
		return ChannelResult{Reason: "missing chat ID"}
	}
	if d.telegram == nil {
		return ChannelResult{Reason: "provider not configured"}
	}

	if err := d.telegram.SendMessage(ctx, alert.Channels.Telegram.ChatID, text); err != nil {
		d.logger.Error("Telegram通知の送信に失敗しました",
			slog.String("alert_id", alert.ID),
			slog.String("error", err.Error()),
		)
		d.metrics.RecordNotificationFailed("telegram")
		return ChannelResult{Attempted: true, Reason: err.Error()}
	}

	d.metrics.RecordNotificationSent("telegram")
	return ChannelResult{Attempted: true, Sent: true}
}

func (d *dispatcher) sendWhatsApp(ctx context.Context, alert *model.SearchAlert, text string) ChannelResult {
	if !alert.Channels.WhatsApp.Enabled {
		return ChannelResult{Reason: "channel disabled"}
	}
	if alert.Channels.WhatsApp.PhoneNumber == "" {
		return ChannelResult{Reason: "missing phone number"}
	}
	if d.whatsapp == nil {
		return ChannelResult{Reason: "provider not configured"}
	}

	if err := d.whatsapp.SendMessage(ctx, alert.Channels.WhatsApp.PhoneNumber, text); err != nil {
		d.logger.Error("WhatsApp通知の送信に失敗しました",
			slog.String("alert_id", alert.ID),
			slog.String("error", err.Error()),
		)
		d.metrics.RecordNotificationFailed("whatsapp")
		return ChannelResult{Attempted: true, Reason: err.Error()}
	}

	d.metrics.RecordNotificationSent("whatsapp")
	return ChannelResult{Attempted: true, Sent: true}
}

// FormatMessage はマッチした出品の通知本文を組み立てる。
// 全チャネル共通のテキスト書式を使用する。
func FormatMessage(alert *model.SearchAlert, listing *model.Listing) string {
	return fmt.Sprintf(
		"🔔 New Listing Alert: %s\n\n📌 %s\n💰 $%.2f\n📍 %s\n🛒 Platform: %s\n🔗 %s",
		alert.Name,
		listing.Title,
		listing.Price,
		listing.Location,
		listing.Platform,
		listing.URL,
	)
}

var _ DispatcherService = (*dispatcher)(nil)
