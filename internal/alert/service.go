package alert

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/marketscout/internal/model"
	"github.com/hitoshi/marketscout/internal/notify"
	"github.com/hitoshi/marketscout/internal/repository"
)

// Input はアラートの作成・更新リクエストを表す。
type Input struct {
	Name       string
	Keywords   []string
	Categories []model.Category
	Locations  []string
	Platforms  []model.Platform
	PriceMin   float64
	PriceMax   *float64
	Channels   model.NotificationChannels
	IsActive   *bool // nilの場合は作成時true、更新時は現状維持
}

// Service は検索アラートのCRUDとテスト送信のインターフェースを定義する。
type Service interface {
	// Create はアラートを作成する。キーワードは必須。
	Create(ctx context.Context, userID string, input Input) (*model.SearchAlert, error)

	// List はユーザーのアラート一覧を作成日時降順で返す。
	List(ctx context.Context, userID string) ([]*model.SearchAlert, error)

	// Get はアラートを取得する。見つからない場合はALERT_NOT_FOUNDを返す。
	Get(ctx context.Context, userID, alertID string) (*model.SearchAlert, error)

	// Update はアラートの定義を更新する。配信記録は変更されない。
	Update(ctx context.Context, userID, alertID string, input Input) (*model.SearchAlert, error)

	// Delete はアラートを削除する。見つからない場合はALERT_NOT_FOUNDを返す。
	Delete(ctx context.Context, userID, alertID string) error

	// Test はサンプル出品をマッチング判定にかけ、マッチした場合のみ
	// 通知チャネルへテスト送信する。sampleがnilの場合は組み込みの
	// サンプル出品を使用する。配信記録は更新されない。
	Test(ctx context.Context, userID, alertID string, sample *model.Listing) (TestResult, error)
}

// TestResult はアラートのテスト実行結果を表す。
// Matchedがfalseの場合は送信を行わず、Dispatchはゼロ値のまま返る。
type TestResult struct {
	Matched  bool
	Dispatch notify.DispatchResult
}

// service はServiceの実装。
type service struct {
	repo       repository.AlertRepository
	dispatcher notify.DispatcherService
	logger     *slog.Logger
	now        func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.AlertRepository, dispatcher notify.DispatcherService, logger *slog.Logger) *service {
	return &service{
		repo:       repo,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

// Create はアラートを作成する。
func (s *service) Create(ctx context.Context, userID string, input Input) (*model.SearchAlert, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, model.NewValidationError("ユーザーIDは必須です")
	}
	normalized, err := normalizeInput(input)
	if err != nil {
		return nil, err
	}

	now := s.now()
	alert := &model.SearchAlert{
		ID:         uuid.NewString(),
		UserID:     userID,
		Name:       normalized.Name,
		Keywords:   normalized.Keywords,
		Categories: normalized.Categories,
		Locations:  normalized.Locations,
		Platforms:  normalized.Platforms,
		PriceMin:   normalized.PriceMin,
		PriceMax:   normalized.PriceMax,
		Channels:   normalized.Channels,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if normalized.IsActive != nil {
		alert.IsActive = *normalized.IsActive
	}

	if err := s.repo.Create(ctx, alert); err != nil {
		return nil, err
	}

	s.logger.Info("アラートを作成しました",
		slog.String("alert_id", alert.ID),
		slog.String("user_id", userID),
	)
	return alert, nil
}

// List はユーザーのアラート一覧を返す。
func (s *service) List(ctx context.Context, userID string) ([]*model.SearchAlert, error) {
	return s.repo.ListByUserID(ctx, userID)
}

// Get はアラートを取得する。
func (s *service) Get(ctx context.Context, userID, alertID string) (*model.SearchAlert, error) {
	alert, err := s.repo.FindByIDAndUser(ctx, alertID, userID)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, model.NewAlertNotFoundError(alertID)
	}
	return alert, nil
}

// Update はアラートの定義を更新する。
func (s *service) Update(ctx context.Context, userID, alertID string, input Input) (*model.SearchAlert, error) {
	existing, err := s.Get(ctx, userID, alertID)
	if err != nil {
		return nil, err
	}
	normalized, err := normalizeInput(input)
	if err != nil {
		return nil, err
	}

	existing.Name = normalized.Name
	existing.Keywords = normalized.Keywords
	existing.Categories = normalized.Categories
	existing.Locations = normalized.Locations
	existing.Platforms = normalized.Platforms
	existing.PriceMin = normalized.PriceMin
	existing.PriceMax = normalized.PriceMax
	existing.Channels = normalized.Channels
	if normalized.IsActive != nil {
		existing.IsActive = *normalized.IsActive
	}
	existing.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// Delete はアラートを削除する。
func (s *service) Delete(ctx context.Context, userID, alertID string) error {
	deleted, err := s.repo.Delete(ctx, alertID, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return model.NewAlertNotFoundError(alertID)
	}

	s.logger.Info("アラートを削除しました",
		slog.String("alert_id", alertID),
		slog.String("user_id", userID),
	)
	return nil
}

// Test はサンプル出品をマッチング判定にかけ、マッチした場合のみテスト送信する。
func (s *service) Test(ctx context.Context, userID, alertID string, sample *model.Listing) (TestResult, error) {
	alert, err := s.Get(ctx, userID, alertID)
	if err != nil {
		return TestResult{}, err
	}

	if sample == nil {
		sample = sampleListing(s.now())
	}

	if !Matches(alert, sample) {
		s.logger.Info("サンプル出品がアラートに一致しませんでした",
			slog.String("alert_id", alert.ID),
			slog.String("sample_title", sample.Title),
		)
		return TestResult{Matched: false}, nil
	}

	return TestResult{
		Matched:  true,
		Dispatch: s.dispatcher.Dispatch(ctx, alert, sample),
	}, nil
}

// sampleListing はテスト送信用の組み込みサンプル出品を生成する。
func sampleListing(now time.Time) *model.Listing {
	return &model.Listing{
		ID:          uuid.NewString(),
		Title:       "Test Listing - Vintage Couch",
		Description: "This is a test notification from Marketscout.",
		Platform:    model.PlatformCraigslist,
		Category:    model.CategoryFurniture,
		Price:       150,
		Currency:    "USD",
		Location:    "Brooklyn, NY",
		URL:         "https://example.com/test-listing",
		ScrapedAt:   now,
		IsActive:    true,
	}
}

// normalizeInput は入力を検証し、未指定フィールドにデフォルトを適用する。
func normalizeInput(input Input) (Input, error) {
	keywords := make([]string, 0, len(input.Keywords))
	for _, keyword := range input.Keywords {
		keyword = strings.TrimSpace(keyword)
		if keyword != "" {
			keywords = append(keywords, keyword)
		}
	}
	if len(keywords) == 0 {
		return Input{}, model.NewValidationError("キーワードは1つ以上指定してください")
	}
	input.Keywords = keywords

	if strings.TrimSpace(input.Name) == "" {
		input.Name = model.DefaultAlertName
	}
	if len(input.Categories) == 0 {
		input.Categories = append([]model.Category{}, model.DefaultAlertCategories...)
	}
	if len(input.Platforms) == 0 {
		input.Platforms = append([]model.Platform{}, model.DefaultAlertPlatforms...)
	}
	if input.Locations == nil {
		input.Locations = []string{}
	}

	for _, category := range input.Categories {
		if !category.Valid() {
			return Input{}, model.NewValidationError(fmt.Sprintf("未知のカテゴリです: %s", category))
		}
	}
	for _, platform := range input.Platforms {
		if !platform.Valid() {
			return Input{}, model.NewValidationError(fmt.Sprintf("未知のプラットフォームです: %s", platform))
		}
	}

	if input.PriceMin < 0 {
		return Input{}, model.NewValidationError("価格の下限は0以上である必要があります")
	}
	if input.PriceMax != nil {
		if *input.PriceMax < 0 {
			return Input{}, model.NewValidationError("価格の上限は0以上である必要があります")
		}
		if *input.PriceMax < input.PriceMin {
			return Input{}, model.NewValidationError("価格の上限は下限以上である必要があります")
		}
	}

	return input, nil
}

var _ Service = (*service)(nil)
