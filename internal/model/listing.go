// Package model はドメインモデルを定義する。
package model

import "time"

// Platform は出品元のマーケットプレイスを表す。
type Platform string

const (
	PlatformFacebook   Platform = "facebook"
	PlatformCraigslist Platform = "craigslist"
	PlatformOfferUp    Platform = "offerup"
	PlatformEbay       Platform = "ebay"
	PlatformNextdoor   Platform = "nextdoor"
	PlatformWalmart    Platform = "walmart"
	PlatformIkea       Platform = "ikea"
	PlatformWayfair    Platform = "wayfair"
	PlatformOverstock  Platform = "overstock"
	PlatformLetgo      Platform = "letgo"
	PlatformOther      Platform = "other"
)

// AllPlatforms は既知の全プラットフォームを固定順で返す。
// オーケストレーターの巡回順序はこの順序に従う。
var AllPlatforms = []Platform{
	PlatformFacebook,
	PlatformCraigslist,
	PlatformOfferUp,
	PlatformEbay,
	PlatformNextdoor,
	PlatformWalmart,
	PlatformIkea,
	PlatformWayfair,
	PlatformOverstock,
	PlatformLetgo,
	PlatformOther,
}

// Valid はプラットフォームが既知の値かどうかを返す。
func (p Platform) Valid() bool {
	for _, known := range AllPlatforms {
		if p == known {
			return true
		}
	}
	return false
}

// Category は出品物のカテゴリを表す。
type Category string

const (
	CategoryFurniture   Category = "furniture"
	CategoryApartments  Category = "apartments"
	CategoryMotorcycles Category = "motorcycles"
	CategoryAutos       Category = "autos"
	CategoryOther       Category = "other"
)

// AllCategories は既知の全カテゴリを返す。
var AllCategories = []Category{
	CategoryFurniture,
	CategoryApartments,
	CategoryMotorcycles,
	CategoryAutos,
	CategoryOther,
}

// Valid はカテゴリが既知の値かどうかを返す。
func (c Category) Valid() bool {
	for _, known := range AllCategories {
		if c == known {
			return true
		}
	}
	return false
}

// Coordinates は出品物の緯度・経度を表す。
type Coordinates struct {
	Lat float64
	Lng float64
}

// ContactInfo は出品者の連絡先情報を表す。
type ContactInfo struct {
	Name  string
	Phone string
	Email string
}

// DescriptionDisplayLimit は一覧表示などで説明文を切り詰める最大文字数。
const DescriptionDisplayLimit = 100

// Listing は観測されたマーケットプレイスの出品1件を表す。
// URLが唯一の同一性キーであり、同じURLの再観測は既存レコードの上書きになる。
type Listing struct {
	ID          string
	Title       string
	Description string // サニタイズ済みプレーンテキスト
	Platform    Platform
	Category    Category
	Price       float64
	Currency    string
	Location    string
	Coordinates *Coordinates
	URL         string // 重複排除キー（グローバル一意）
	ImageURLs   []string
	Contact     *ContactInfo
	PostedAt    *time.Time // 出品元が報告した投稿日時
	ScrapedAt   time.Time  // 最後に取り込みに成功した日時
	IsActive    bool
	Metadata    map[string]string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Candidate はソースアダプターがパースした未正規化の出品候補を表す。
// ListingUpsertServiceで正規化・検証された後に永続化される。
type Candidate struct {
	Title       string
	Description string // 未サニタイズ（スクレイプ由来のHTML断片を含みうる）
	Platform    Platform
	Category    Category
	Price       float64
	Currency    string
	Location    string
	Coordinates *Coordinates
	URL         string
	ImageURLs   []string
	Contact     *ContactInfo
	PostedAt    *time.Time
	Metadata    map[string]string
}
