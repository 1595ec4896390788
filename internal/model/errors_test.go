package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestAPIErrorCodes(t *testing.T) {
	tests := []struct {
		name         string
		err          *APIError
		wantCode     string
		wantCategory string
	}{
		{"ネットワーク", NewNetworkError("https://x", "timeout"), ErrCodeNetwork, "network"},
		{"レート制限", NewRateLimitedError("https://x"), ErrCodeRateLimited, "network"},
		{"検証", NewValidationError("bad input"), ErrCodeValidation, "validation"},
		{"アラート未発見", NewAlertNotFoundError("a-1"), ErrCodeAlertNotFound, "alert"},
		{"設定不備", NewConfigurationError("TELEGRAM_BOT_TOKEN"), ErrCodeConfiguration, "config"},
		{"不正リクエスト", NewInvalidRequestError("bad body"), ErrCodeInvalidRequest, "validation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("Code = %s, want %s", tt.err.Code, tt.wantCode)
			}
			if tt.err.Category != tt.wantCategory {
				t.Errorf("Category = %s, want %s", tt.err.Category, tt.wantCategory)
			}
			if tt.err.Action == "" {
				t.Error("Actionが空")
			}
		})
	}
}

func TestErrorHelpers_UnwrapThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("取得に失敗しました: %w", NewRateLimitedError("https://x"))

	if !IsRateLimited(wrapped) {
		t.Error("IsRateLimited(wrapped) = false, want true")
	}
	if IsValidation(wrapped) {
		t.Error("IsValidation(wrapped) = true, want false")
	}
	if IsRateLimited(errors.New("plain")) {
		t.Error("IsRateLimited(plain) = true, want false")
	}
}
