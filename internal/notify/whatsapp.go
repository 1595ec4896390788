package notify

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// WhatsAppSender はWhatsAppメッセージ送信のインターフェースを定義する。
type WhatsAppSender interface {
	// SendMessage は指定電話番号へメッセージを送信する。
	// 番号はE.164形式（"+14155550100"）で指定する。
	SendMessage(ctx context.Context, phoneNumber, text string) error
}

// whatsappSender はTwilio API経由のWhatsAppSender実装。
type whatsappSender struct {
	client     *twilio.RestClient
	fromNumber string
}

// NewWhatsAppSender はWhatsAppSenderの新しいインスタンスを生成する。
func NewWhatsAppSender(accountSID, authToken, fromNumber string) *whatsappSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &whatsappSender{
		client:     client,
		fromNumber: fromNumber,
	}
}

// SendMessage は指定電話番号へメッセージを送信する。
func (s *whatsappSender) SendMessage(ctx context.Context, phoneNumber, text string) error {
	params := &openapi.CreateMessageParams{}
	params.SetFrom("whatsapp:" + s.fromNumber)
	params.SetTo("whatsapp:" + phoneNumber)
	params.SetBody(text)

	if _, err := s.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("WhatsAppメッセージの送信に失敗しました: %w", err)
	}
	return nil
}

var _ WhatsAppSender = (*whatsappSender)(nil)
