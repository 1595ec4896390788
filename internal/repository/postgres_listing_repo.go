package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/marketscout/internal/model"
)

// PostgresListingRepo はPostgreSQLを使用した出品リポジトリ。
type PostgresListingRepo struct {
	db *sql.DB
}

// NewPostgresListingRepo はPostgresListingRepoを生成する。
func NewPostgresListingRepo(db *sql.DB) *PostgresListingRepo {
	return &PostgresListingRepo{db: db}
}

const listingColumns = `id, title, description, platform, category, price, currency,
	        location, latitude, longitude, url, image_urls,
	        contact_name, contact_phone, contact_email,
	        posted_at, scraped_at, is_active, metadata, created_at, updated_at`

// Upsert は出品をurlをキーにINSERT-or-REPLACEする。
// ON CONFLICTによる単一文のupsertなので、同一URLの同時挿入は
// どちらかの行が残る形で競合なく解決される。
func (r *PostgresListingRepo) Upsert(ctx context.Context, listing *model.Listing) (*model.Listing, error) {
	metadataJSON, err := json.Marshal(listing.Metadata)
	if err != nil {
		return nil, fmt.Errorf("メタデータのシリアライズに失敗しました: %w", err)
	}

	var lat, lng sql.NullFloat64
	if listing.Coordinates != nil {
		lat = sql.NullFloat64{Float64: listing.Coordinates.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: listing.Coordinates.Lng, Valid: true}
	}
	var contactName, contactPhone, contactEmail sql.NullString
	if listing.Contact != nil {
		contactName = nullString(listing.Contact.Name)
		contactPhone = nullString(listing.Contact.Phone)
		contactEmail = nullString(listing.Contact.Email)
	}
	var postedAt sql.NullTime
	if listing.PostedAt != nil {
		postedAt = sql.NullTime{Time: *listing.PostedAt, Valid: true}
	}

	id := listing.ID
	if id == "" {
		id = uuid.NewString()
	}

	row := r.db.QueryRowContext(ctx,
		`INSERT INTO listings (id, title, description, platform, category, price, currency,
		                       location, latitude, longitude, url, image_urls,
		                       contact_name, contact_phone, contact_email,
		                       posted_at, scraped_at, is_active, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		         $13, $14, $15, $16, $17, $18, $19, now(), now())
		 ON CONFLICT (url) DO UPDATE SET
		    title = EXCLUDED.title,
		    description = EXCLUDED.description,
		    platform = EXCLUDED.platform,
		    category = EXCLUDED.category,
		    price = EXCLUDED.price,
		    currency = EXCLUDED.currency,
		    location = EXCLUDED.location,
		    latitude = EXCLUDED.latitude,
		    longitude = EXCLUDED.longitude,
		    image_urls = EXCLUDED.image_urls,
		    contact_name = EXCLUDED.contact_name,
		    contact_phone = EXCLUDED.contact_phone,
		    contact_email = EXCLUDED.contact_email,
		    posted_at = EXCLUDED.posted_at,
		    scraped_at = EXCLUDED.scraped_at,
		    is_active = EXCLUDED.is_active,
		    metadata = EXCLUDED.metadata,
		    updated_at = now()
		 RETURNING `+listingColumns,
		id, listing.Title, listing.Description, string(listing.Platform), string(listing.Category),
		listing.Price, listing.Currency, listing.Location, lat, lng,
		listing.URL, pq.Array(listing.ImageURLs),
		contactName, contactPhone, contactEmail,
		postedAt, listing.ScrapedAt, listing.IsActive, metadataJSON,
	)

	stored, err := scanListing(row)
	if err != nil {
		return nil, fmt.Errorf("出品のupsertに失敗しました: %w", err)
	}
	return stored, nil
}

// Search はアクティブな出品をフィルタ・ページネーション付きで検索する。
func (r *PostgresListingRepo) Search(ctx context.Context, q ListingSearchQuery) ([]*model.Listing, int, error) {
	conditions := []string{"is_active = true"}
	args := []any{}

	addCondition := func(cond string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if q.Category != "" {
		addCondition("category = $%d", string(q.Category))
	}
	if q.Platform != "" {
		addCondition("platform = $%d", string(q.Platform))
	}
	if q.Location != "" {
		addCondition("location ILIKE $%d", "%"+q.Location+"%")
	}
	if q.Keyword != "" {
		args = append(args, "%"+q.Keyword+"%")
		conditions = append(conditions,
			fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}
	if q.MinPrice != nil {
		addCondition("price >= $%d", *q.MinPrice)
	}
	if q.MaxPrice != nil {
		addCondition("price <= $%d", *q.MaxPrice)
	}

	where := strings.Join(conditions, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM listings WHERE `+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("出品件数の取得に失敗しました: %w", err)
	}

	orderBy := sortColumn(q.SortBy)
	direction := "ASC"
	if q.SortDesc {
		direction = "DESC"
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, q.Skip)

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE `+where+
			fmt.Sprintf(" ORDER BY %s %s LIMIT $%d OFFSET $%d", orderBy, direction, len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("出品の検索に失敗しました: %w", err)
	}
	defer rows.Close()

	listings := []*model.Listing{}
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("出品の読み取りに失敗しました: %w", err)
		}
		listings = append(listings, listing)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("出品の検索に失敗しました: %w", err)
	}

	return listings, total, nil
}

// sortColumn はソートキーをカラム名に変換する。
// 未知のキーはscraped_atにフォールバックし、SQL断片の注入を防ぐ。
func sortColumn(key ListingSortKey) string {
	switch key {
	case ListingSortPrice:
		return "price"
	case ListingSortPostedAt:
		return "posted_at"
	case ListingSortTitle:
		return "title"
	default:
		return "scraped_at"
	}
}

// CategorySummaries はアクティブな出品のカテゴリ別集計を件数降順で返す。
func (r *PostgresListingRepo) CategorySummaries(ctx context.Context) ([]CategorySummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT category, count(*), COALESCE(round(avg(price)), 0)
		 FROM listings WHERE is_active = true
		 GROUP BY category ORDER BY count(*) DESC`)
	if err != nil {
		return nil, fmt.Errorf("カテゴリ集計の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	summaries := []CategorySummary{}
	for rows.Next() {
		var s CategorySummary
		if err := rows.Scan(&s.Name, &s.Count, &s.AvgPrice); err != nil {
			return nil, fmt.Errorf("カテゴリ集計の読み取りに失敗しました: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("カテゴリ集計の取得に失敗しました: %w", err)
	}
	return summaries, nil
}

// PlatformSummaries はアクティブな出品のプラットフォーム別集計を件数降順で返す。
func (r *PostgresListingRepo) PlatformSummaries(ctx context.Context) ([]PlatformSummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT platform, count(*)
		 FROM listings WHERE is_active = true
		 GROUP BY platform ORDER BY count(*) DESC`)
	if err != nil {
		return nil, fmt.Errorf("プラットフォーム集計の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	summaries := []PlatformSummary{}
	for rows.Next() {
		var s PlatformSummary
		if err := rows.Scan(&s.Name, &s.Count); err != nil {
			return nil, fmt.Errorf("プラットフォーム集計の読み取りに失敗しました: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("プラットフォーム集計の取得に失敗しました: %w", err)
	}
	return summaries, nil
}

// Stats は出品全体の統計情報を返す。
func (r *PostgresListingRepo) Stats(ctx context.Context) (*ListingStats, error) {
	stats := &ListingStats{}
	var lastScrapedAt sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT count(*),
		        count(*) FILTER (WHERE scraped_at > now() - interval '24 hours'),
		        max(scraped_at)
		 FROM listings WHERE is_active = true`,
	).Scan(&stats.TotalListings, &stats.RecentListings, &lastScrapedAt)
	if err != nil {
		return nil, fmt.Errorf("統計情報の取得に失敗しました: %w", err)
	}

	if lastScrapedAt.Valid {
		stats.LastScrapedAt = &lastScrapedAt.Time
	}
	return stats, nil
}

// DeactivateStale はcutoffより前に最後に観測された出品を非アクティブ化する。
func (r *PostgresListingRepo) DeactivateStale(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE listings SET is_active = false, updated_at = now()
		 WHERE is_active = true AND scraped_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("古い出品の非アクティブ化に失敗しました: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("古い出品の非アクティブ化の件数取得に失敗しました: %w", err)
	}
	return count, nil
}

// rowScanner はsql.Rowとsql.Rowsの共通スキャンインターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanListing は1行分の出品レコードを読み取る。
func scanListing(row rowScanner) (*model.Listing, error) {
	listing := &model.Listing{}
	var platform, category string
	var lat, lng sql.NullFloat64
	var imageURLs pq.StringArray
	var contactName, contactPhone, contactEmail sql.NullString
	var postedAt sql.NullTime
	var metadataJSON []byte

	err := row.Scan(
		&listing.ID, &listing.Title, &listing.Description, &platform, &category,
		&listing.Price, &listing.Currency, &listing.Location, &lat, &lng,
		&listing.URL, &imageURLs,
		&contactName, &contactPhone, &contactEmail,
		&postedAt, &listing.ScrapedAt, &listing.IsActive, &metadataJSON,
		&listing.CreatedAt, &listing.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	listing.Platform = model.Platform(platform)
	listing.Category = model.Category(category)
	listing.ImageURLs = []string(imageURLs)
	if lat.Valid && lng.Valid {
		listing.Coordinates = &model.Coordinates{Lat: lat.Float64, Lng: lng.Float64}
	}
	if contactName.Valid || contactPhone.Valid || contactEmail.Valid {
		listing.Contact = &model.ContactInfo{
			Name:  nullStringValue(contactName),
			Phone: nullStringValue(contactPhone),
			Email: nullStringValue(contactEmail),
		}
	}
	if postedAt.Valid {
		listing.PostedAt = &postedAt.Time
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &listing.Metadata); err != nil {
			return nil, fmt.Errorf("メタデータのデシリアライズに失敗しました: %w", err)
		}
	}

	return listing, nil
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

var _ ListingRepository = (*PostgresListingRepo)(nil)
