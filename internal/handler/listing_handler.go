// Package handler はHTTP APIのハンドラーとルーティングを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/marketscout/internal/listing"
	"github.com/hitoshi/marketscout/internal/model"
	"github.com/hitoshi/marketscout/internal/repository"
)

// ListingHandler は出品検索・集計APIのHTTPハンドラー。
type ListingHandler struct {
	service listing.QueryService
}

// NewListingHandler はListingHandlerを生成する。
func NewListingHandler(service listing.QueryService) *ListingHandler {
	return &ListingHandler{service: service}
}

// coordinatesResponse は座標のAPIレスポンス。
type coordinatesResponse struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// listingResponse は出品のAPIレスポンス。
type listingResponse struct {
	ID          string               `json:"id"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Platform    string               `json:"platform"`
	Category    string               `json:"category"`
	Price       float64              `json:"price"`
	Currency    string               `json:"currency"`
	Location    string               `json:"location"`
	Coordinates *coordinatesResponse `json:"coordinates,omitempty"`
	URL         string               `json:"url"`
	ImageURLs   []string             `json:"imageUrls"`
	PostedAt    *time.Time           `json:"postedAt,omitempty"`
	ScrapedAt   time.Time            `json:"scrapedAt"`
	Metadata    map[string]string    `json:"metadata,omitempty"`
}

// paginationResponse はページネーション情報のAPIレスポンス。
type paginationResponse struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Skip    int  `json:"skip"`
	HasMore bool `json:"hasMore"`
}

// searchResponse は検索APIのレスポンス。
type searchResponse struct {
	Listings   []listingResponse  `json:"listings"`
	Pagination paginationResponse `json:"pagination"`
}

// categoryResponse はカテゴリ集計のAPIレスポンス。
type categoryResponse struct {
	Name     string `json:"name"`
	Count    int    `json:"count"`
	AvgPrice int    `json:"avgPrice"`
}

// platformCountResponse はプラットフォーム集計のAPIレスポンス。
type platformCountResponse struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// statsResponse は統計APIのレスポンス。
type statsResponse struct {
	TotalListings  int                     `json:"totalListings"`
	RecentListings int                     `json:"recentListings"`
	LastScrapedAt  *time.Time              `json:"lastScrapedAt,omitempty"`
	Platforms      []platformCountResponse `json:"platforms"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// Search は出品の検索を処理する。
// GET /api/listings/search
func (h *ListingHandler) Search(w http.ResponseWriter, r *http.Request) {
	query, err := parseSearchQuery(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	result, err := h.service.Search(r.Context(), query)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	listings := make([]listingResponse, 0, len(result.Listings))
	for _, l := range result.Listings {
		listings = append(listings, toListingResponse(l))
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Listings: listings,
		Pagination: paginationResponse{
			Total:   result.Pagination.Total,
			Limit:   result.Pagination.Limit,
			Skip:    result.Pagination.Skip,
			HasMore: result.Pagination.HasMore,
		},
	})
}

// Categories はカテゴリ別の集計を返す。
// GET /api/listings/categories
func (h *ListingHandler) Categories(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.service.Categories(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	categories := make([]categoryResponse, 0, len(summaries))
	for _, s := range summaries {
		categories = append(categories, categoryResponse{
			Name:     s.Name,
			Count:    s.Count,
			AvgPrice: s.AvgPrice,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

// Stats は出品全体の統計を返す。
// GET /api/listings/stats
func (h *ListingHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	platforms := make([]platformCountResponse, 0, len(stats.Platforms))
	for _, p := range stats.Platforms {
		platforms = append(platforms, platformCountResponse{Name: p.Name, Count: p.Count})
	}

	writeJSON(w, http.StatusOK, statsResponse{
		TotalListings:  stats.TotalListings,
		RecentListings: stats.RecentListings,
		LastScrapedAt:  stats.LastScrapedAt,
		Platforms:      platforms,
	})
}

// parseSearchQuery はクエリパラメータから検索条件を組み立てる。
func parseSearchQuery(r *http.Request) (repository.ListingSearchQuery, error) {
	q := repository.ListingSearchQuery{
		Category: model.Category(r.URL.Query().Get("category")),
		Platform: model.Platform(r.URL.Query().Get("platform")),
		Location: r.URL.Query().Get("location"),
		Keyword:  r.URL.Query().Get("q"),
	}

	if q.Category != "" && !q.Category.Valid() {
		return q, model.NewInvalidRequestError("未知のカテゴリです: " + string(q.Category))
	}
	if q.Platform != "" && !q.Platform.Valid() {
		return q, model.NewInvalidRequestError("未知のプラットフォームです: " + string(q.Platform))
	}

	if raw := r.URL.Query().Get("minPrice"); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return q, model.NewInvalidRequestError("minPriceが数値ではありません")
		}
		q.MinPrice = &value
	}
	if raw := r.URL.Query().Get("maxPrice"); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return q, model.NewInvalidRequestError("maxPriceが数値ではありません")
		}
		q.MaxPrice = &value
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return q, model.NewInvalidRequestError("limitが数値ではありません")
		}
		q.Limit = value
	}
	if raw := r.URL.Query().Get("skip"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return q, model.NewInvalidRequestError("skipが数値ではありません")
		}
		q.Skip = value
	}

	switch sortBy := r.URL.Query().Get("sortBy"); sortBy {
	case "":
		// サービス層のデフォルト（取り込み日時降順）に任せる
	case "price":
		q.SortBy = repository.ListingSortPrice
	case "postedAt":
		q.SortBy = repository.ListingSortPostedAt
	case "title":
		q.SortBy = repository.ListingSortTitle
	case "scrapedAt":
		q.SortBy = repository.ListingSortScrapedAt
	default:
		return q, model.NewInvalidRequestError("未知のソートキーです: " + sortBy)
	}
	if q.SortBy != "" {
		q.SortDesc = r.URL.Query().Get("sortOrder") != "asc"
	}

	return q, nil
}

// toListingResponse はmodel.ListingからAPIレスポンスに変換する。
func toListingResponse(l *model.Listing) listingResponse {
	resp := listingResponse{
		ID:          l.ID,
		Title:       l.Title,
		Description: l.Description,
		Platform:    string(l.Platform),
		Category:    string(l.Category),
		Price:       l.Price,
		Currency:    l.Currency,
		Location:    l.Location,
		URL:         l.URL,
		ImageURLs:   l.ImageURLs,
		PostedAt:    l.PostedAt,
		ScrapedAt:   l.ScrapedAt,
		Metadata:    l.Metadata,
	}
	if resp.ImageURLs == nil {
		resp.ImageURLs = []string{}
	}
	if l.Coordinates != nil {
		resp.Coordinates = &coordinatesResponse{Lat: l.Coordinates.Lat, Lng: l.Coordinates.Lng}
	}
	return resp
}

// --- ヘルパー関数 ---

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	writeJSON(w, statusCode, apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidation, model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeAlertNotFound:
		return http.StatusNotFound
	case model.ErrCodeNetwork:
		return http.StatusBadGateway
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeConfiguration:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
