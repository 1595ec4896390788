package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/marketscout/internal/alert"
	"github.com/hitoshi/marketscout/internal/model"
)

// AlertHandler は検索アラート管理のHTTPハンドラー。
type AlertHandler struct {
	service alert.Service
}

// NewAlertHandler はAlertHandlerを生成する。
func NewAlertHandler(service alert.Service) *AlertHandler {
	return &AlertHandler{service: service}
}

// channelsRequest は通知チャネル設定のリクエスト・レスポンス表現。
type channelsRequest struct {
	Telegram struct {
		Enabled bool   `json:"enabled"`
		ChatID  string `json:"chatId"`
	} `json:"telegram"`
	WhatsApp struct {
		Enabled     bool   `json:"enabled"`
		PhoneNumber string `json:"phoneNumber"`
	} `json:"whatsapp"`
}

// alertRequest はアラート作成・更新リクエストのボディ。
type alertRequest struct {
	UserID     string          `json:"userId"` // 作成時のみ使用
	Name       string          `json:"name"`
	Keywords   []string        `json:"keywords"`
	Categories []string        `json:"categories"`
	Locations  []string        `json:"locations"`
	Platforms  []string        `json:"platforms"`
	PriceMin   float64         `json:"priceMin"`
	PriceMax   *float64        `json:"priceMax"`
	Channels   channelsRequest `json:"channels"`
	IsActive   *bool           `json:"isActive"`
}

// alertResponse はアラートのAPIレスポンス。
type alertResponse struct {
	ID             string          `json:"id"`
	UserID         string          `json:"userId"`
	Name           string          `json:"name"`
	Keywords       []string        `json:"keywords"`
	Categories     []string        `json:"categories"`
	Locations      []string        `json:"locations"`
	Platforms      []string        `json:"platforms"`
	PriceMin       float64         `json:"priceMin"`
	PriceMax       *float64        `json:"priceMax,omitempty"`
	Channels       channelsRequest `json:"channels"`
	IsActive       bool            `json:"isActive"`
	LastNotifiedAt *time.Time      `json:"lastNotifiedAt,omitempty"`
	MatchCount     int             `json:"matchCount"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// channelResultResponse は1チャネルのテスト送信結果のレスポンス。
type channelResultResponse struct {
	Attempted bool   `json:"attempted"`
	Sent      bool   `json:"sent"`
	Reason    string `json:"reason,omitempty"`
}

// testRequest はテスト送信リクエストのボディ。
// listingを省略した場合は組み込みのサンプル出品が使われる。
type testRequest struct {
	Listing *sampleListingRequest `json:"listing"`
}

// sampleListingRequest はテスト用サンプル出品のリクエスト表現。
type sampleListingRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Platform    string  `json:"platform"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
	Location    string  `json:"location"`
	URL         string  `json:"url"`
}

// testResponse はテスト送信のレスポンス。
// サンプルがアラートに一致しなかった場合、各チャネルは未送信のまま返る。
type testResponse struct {
	Matched  bool                  `json:"matched"`
	Telegram channelResultResponse `json:"telegram"`
	WhatsApp channelResultResponse `json:"whatsapp"`
}

// Create はアラート作成を処理する。
// POST /api/alerts
func (h *AlertHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req alertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}
	if req.UserID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("userIdは必須です"))
		return
	}

	created, err := h.service.Create(r.Context(), req.UserID, toAlertInput(req))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAlertResponse(created))
}

// List はユーザーのアラート一覧を返す。
// GET /api/alerts/:userId
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	alerts, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]alertResponse, 0, len(alerts))
	for _, a := range alerts {
		responses = append(responses, toAlertResponse(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": responses})
}

// Get はアラート詳細を返す。
// GET /api/alerts/:userId/:alertId
func (h *AlertHandler) Get(w http.ResponseWriter, r *http.Request) {
	found, err := h.service.Get(r.Context(), chi.URLParam(r, "userId"), chi.URLParam(r, "alertId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAlertResponse(found))
}

// Update はアラート更新を処理する。
// PUT /api/alerts/:userId/:alertId
func (h *AlertHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req alertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	updated, err := h.service.Update(r.Context(),
		chi.URLParam(r, "userId"), chi.URLParam(r, "alertId"), toAlertInput(req))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAlertResponse(updated))
}

// Delete はアラート削除を処理する。
// DELETE /api/alerts/:userId/:alertId
func (h *AlertHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.service.Delete(r.Context(), chi.URLParam(r, "userId"), chi.URLParam(r, "alertId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Test はアラートのテスト送信を処理する。
// POST /api/alerts/:userId/:alertId/test
// ボディのlistingでサンプル出品を指定できる。省略時は組み込みサンプルを使用し、
// サンプルがアラートに一致した場合のみ実際に送信される。
func (h *AlertHandler) Test(w http.ResponseWriter, r *http.Request) {
	var req testRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	result, err := h.service.Test(r.Context(),
		chi.URLParam(r, "userId"), chi.URLParam(r, "alertId"), toSampleListing(req.Listing))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, testResponse{
		Matched: result.Matched,
		Telegram: channelResultResponse{
			Attempted: result.Dispatch.Telegram.Attempted,
			Sent:      result.Dispatch.Telegram.Sent,
			Reason:    result.Dispatch.Telegram.Reason,
		},
		WhatsApp: channelResultResponse{
			Attempted: result.Dispatch.WhatsApp.Attempted,
			Sent:      result.Dispatch.WhatsApp.Sent,
			Reason:    result.Dispatch.WhatsApp.Reason,
		},
	})
}

// toSampleListing はリクエストのサンプル出品をmodel.Listingに変換する。
// nilの場合はnilを返し、サービス層の組み込みサンプルに委ねる。
func toSampleListing(req *sampleListingRequest) *model.Listing {
	if req == nil {
		return nil
	}
	return &model.Listing{
		Title:       req.Title,
		Description: req.Description,
		Platform:    model.Platform(req.Platform),
		Category:    model.Category(req.Category),
		Price:       req.Price,
		Location:    req.Location,
		URL:         req.URL,
		IsActive:    true,
	}
}

// toAlertInput はリクエストボディからサービス層の入力に変換する。
func toAlertInput(req alertRequest) alert.Input {
	categories := make([]model.Category, 0, len(req.Categories))
	for _, c := range req.Categories {
		categories = append(categories, model.Category(c))
	}
	platforms := make([]model.Platform, 0, len(req.Platforms))
	for _, p := range req.Platforms {
		platforms = append(platforms, model.Platform(p))
	}

	return alert.Input{
		Name:       req.Name,
		Keywords:   req.Keywords,
		Categories: categories,
		Locations:  req.Locations,
		Platforms:  platforms,
		PriceMin:   req.PriceMin,
		PriceMax:   req.PriceMax,
		Channels: model.NotificationChannels{
			Telegram: model.TelegramChannel{
				Enabled: req.Channels.Telegram.Enabled,
				ChatID:  req.Channels.Telegram.ChatID,
			},
			WhatsApp: model.WhatsAppChannel{
				Enabled:     req.Channels.WhatsApp.Enabled,
				PhoneNumber: req.Channels.WhatsApp.PhoneNumber,
			},
		},
		IsActive: req.IsActive,
	}
}

// toAlertResponse はmodel.SearchAlertからAPIレスポンスに変換する。
func toAlertResponse(a *model.SearchAlert) alertResponse {
	categories := make([]string, 0, len(a.Categories))
	for _, c := range a.Categories {
		categories = append(categories, string(c))
	}
	platforms := make([]string, 0, len(a.Platforms))
	for _, p := range a.Platforms {
		platforms = append(platforms, string(p))
	}

	resp := alertResponse{
		ID:             a.ID,
		UserID:         a.UserID,
		Name:           a.Name,
		Keywords:       a.Keywords,
		Categories:     categories,
		Locations:      a.Locations,
		Platforms:      platforms,
		PriceMin:       a.PriceMin,
		PriceMax:       a.PriceMax,
		IsActive:       a.IsActive,
		LastNotifiedAt: a.LastNotifiedAt,
		MatchCount:     a.MatchCount,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
	resp.Channels.Telegram.Enabled = a.Channels.Telegram.Enabled
	resp.Channels.Telegram.ChatID = a.Channels.Telegram.ChatID
	resp.Channels.WhatsApp.Enabled = a.Channels.WhatsApp.Enabled
	resp.Channels.WhatsApp.PhoneNumber = a.Channels.WhatsApp.PhoneNumber
	if resp.Locations == nil {
		resp.Locations = []string{}
	}
	return resp
}
