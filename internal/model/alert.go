// Package model はドメインモデルを定義する。
package model

import "time"

// DefaultAlertName はアラート名が未指定の場合のデフォルト名。
const DefaultAlertName = "My Alert"

// DefaultAlertCategories はカテゴリフィルタ未指定時のデフォルト。
var DefaultAlertCategories = []Category{CategoryFurniture}

// DefaultAlertPlatforms はプラットフォームフィルタ未指定時のデフォルト。
var DefaultAlertPlatforms = []Platform{PlatformFacebook, PlatformCraigslist}

// TelegramChannel はTelegram通知チャネルの設定を表す。
type TelegramChannel struct {
	Enabled bool
	ChatID  string
}

// WhatsAppChannel はWhatsApp通知チャネルの設定を表す。
type WhatsAppChannel struct {
	Enabled     bool
	PhoneNumber string
}

// NotificationChannels はアラートごとの通知チャネル設定を表す。
type NotificationChannels struct {
	Telegram TelegramChannel
	WhatsApp WhatsAppChannel
}

// SearchAlert はユーザー定義の検索アラートを表す。
// 新しく観測された出品はすべてアクティブなアラートに対して評価され、
// マッチした場合は設定されたチャネルへ通知が送信される。
type SearchAlert struct {
	ID             string
	UserID         string
	Name           string
	Keywords       []string // 必須・空不可。大文字小文字を区別しない部分一致（OR）
	Categories     []Category
	Locations      []string
	Platforms      []Platform
	PriceMin       float64
	PriceMax       *float64 // nil = 上限なし
	Channels       NotificationChannels
	IsActive       bool
	LastNotifiedAt *time.Time
	MatchCount     int // 単調非減少。1件の成功通知付きマッチにつき+1
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
