package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/marketscout/internal/model"
)

// PostgresAlertRepo はPostgreSQLを使用した検索アラートリポジトリ。
type PostgresAlertRepo struct {
	db *sql.DB
}

// NewPostgresAlertRepo はPostgresAlertRepoを生成する。
func NewPostgresAlertRepo(db *sql.DB) *PostgresAlertRepo {
	return &PostgresAlertRepo{db: db}
}

const alertColumns = `id, user_id, name, keywords, categories, locations, platforms,
	        price_min, price_max,
	        telegram_enabled, telegram_chat_id, whatsapp_enabled, whatsapp_phone_number,
	        is_active, last_notified_at, match_count, created_at, updated_at`

// Create はアラートを作成する。
func (r *PostgresAlertRepo) Create(ctx context.Context, alert *model.SearchAlert) error {
	var priceMax sql.NullFloat64
	if alert.PriceMax != nil {
		priceMax = sql.NullFloat64{Float64: *alert.PriceMax, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO search_alerts (id, user_id, name, keywords, categories, locations, platforms,
		                            price_min, price_max,
		                            telegram_enabled, telegram_chat_id,
		                            whatsapp_enabled, whatsapp_phone_number,
		                            is_active, match_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		alert.ID, alert.UserID, alert.Name,
		pq.Array(alert.Keywords), pq.Array(categoryStrings(alert.Categories)),
		pq.Array(alert.Locations), pq.Array(platformStrings(alert.Platforms)),
		alert.PriceMin, priceMax,
		alert.Channels.Telegram.Enabled, nullString(alert.Channels.Telegram.ChatID),
		alert.Channels.WhatsApp.Enabled, nullString(alert.Channels.WhatsApp.PhoneNumber),
		alert.IsActive, alert.MatchCount, alert.CreatedAt, alert.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("アラートの作成に失敗しました: %w", err)
	}
	return nil
}

// ListByUserID はユーザーのアラート一覧を作成日時降順で返す。
func (r *PostgresAlertRepo) ListByUserID(ctx context.Context, userID string) ([]*model.SearchAlert, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+alertColumns+` FROM search_alerts WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("アラート一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

// FindByIDAndUser はIDとユーザーIDの組でアラートを取得する。見つからない場合はnilを返す。
func (r *PostgresAlertRepo) FindByIDAndUser(ctx context.Context, id, userID string) (*model.SearchAlert, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+alertColumns+` FROM search_alerts WHERE id = $1 AND user_id = $2`,
		id, userID,
	)

	alert, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アラートの取得に失敗しました: %w", err)
	}
	return alert, nil
}

// ListActive はアクティブな全アラートを返す。
func (r *PostgresAlertRepo) ListActive(ctx context.Context) ([]*model.SearchAlert, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+alertColumns+` FROM search_alerts WHERE is_active = true ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("アクティブなアラートの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

// Update はアラートの定義フィールドを更新する。
// 配信記録（match_count・last_notified_at）はRecordNotificationのみが更新する。
func (r *PostgresAlertRepo) Update(ctx context.Context, alert *model.SearchAlert) error {
	var priceMax sql.NullFloat64
	if alert.PriceMax != nil {
		priceMax = sql.NullFloat64{Float64: *alert.PriceMax, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`UPDATE search_alerts SET
		    name = $2, keywords = $3, categories = $4, locations = $5, platforms = $6,
		    price_min = $7, price_max = $8,
		    telegram_enabled = $9, telegram_chat_id = $10,
		    whatsapp_enabled = $11, whatsapp_phone_number = $12,
		    is_active = $13, updated_at = $14
		 WHERE id = $1`,
		alert.ID, alert.Name,
		pq.Array(alert.Keywords), pq.Array(categoryStrings(alert.Categories)),
		pq.Array(alert.Locations), pq.Array(platformStrings(alert.Platforms)),
		alert.PriceMin, priceMax,
		alert.Channels.Telegram.Enabled, nullString(alert.Channels.Telegram.ChatID),
		alert.Channels.WhatsApp.Enabled, nullString(alert.Channels.WhatsApp.PhoneNumber),
		alert.IsActive, alert.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("アラートの更新に失敗しました: %w", err)
	}
	return nil
}

// Delete はIDとユーザーIDの組でアラートを削除する。
func (r *PostgresAlertRepo) Delete(ctx context.Context, id, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM search_alerts WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("アラートの削除に失敗しました: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("アラートの削除の件数取得に失敗しました: %w", err)
	}
	return count > 0, nil
}

// RecordNotification は通知成功時の配信記録を単一のUPDATEで更新する。
// match_countの加算をSQL側で行うため、並行するマッチ処理があっても
// 1回の呼び出しにつきちょうど1だけ増える。
func (r *PostgresAlertRepo) RecordNotification(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE search_alerts SET
		    match_count = match_count + 1,
		    last_notified_at = $2,
		    updated_at = now()
		 WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("配信記録の更新に失敗しました: %w", err)
	}
	return nil
}

// collectAlerts は複数行の結果をすべて読み取る。
func collectAlerts(rows *sql.Rows) ([]*model.SearchAlert, error) {
	alerts := []*model.SearchAlert{}
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("アラートの読み取りに失敗しました: %w", err)
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("アラートの取得に失敗しました: %w", err)
	}
	return alerts, nil
}

// scanAlert は1行分のアラートレコードを読み取る。
func scanAlert(row rowScanner) (*model.SearchAlert, error) {
	alert := &model.SearchAlert{}
	var keywords, categories, locations, platforms pq.StringArray
	var priceMax sql.NullFloat64
	var telegramChatID, whatsappPhone sql.NullString
	var lastNotifiedAt sql.NullTime

	err := row.Scan(
		&alert.ID, &alert.UserID, &alert.Name,
		&keywords, &categories, &locations, &platforms,
		&alert.PriceMin, &priceMax,
		&alert.Channels.Telegram.Enabled, &telegramChatID,
		&alert.Channels.WhatsApp.Enabled, &whatsappPhone,
		&alert.IsActive, &lastNotifiedAt, &alert.MatchCount,
		&alert.CreatedAt, &alert.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	alert.Keywords = []string(keywords)
	alert.Categories = toCategories(categories)
	alert.Locations = []string(locations)
	alert.Platforms = toPlatforms(platforms)
	if priceMax.Valid {
		alert.PriceMax = &priceMax.Float64
	}
	alert.Channels.Telegram.ChatID = nullStringValue(telegramChatID)
	alert.Channels.WhatsApp.PhoneNumber = nullStringValue(whatsappPhone)
	if lastNotifiedAt.Valid {
		alert.LastNotifiedAt = &lastNotifiedAt.Time
	}

	return alert, nil
}

func categoryStrings(categories []model.Category) []string {
	out := make([]string, len(categories))
	for i, c := range categories {
		out[i] = string(c)
	}
	return out
}

func platformStrings(platforms []model.Platform) []string {
	out := make([]string, len(platforms))
	for i, p := range platforms {
		out[i] = string(p)
	}
	return out
}

func toCategories(values []string) []model.Category {
	out := make([]model.Category, len(values))
	for i, v := range values {
		out[i] = model.Category(v)
	}
	return out
}

func toPlatforms(values []string) []model.Platform {
	out := make([]model.Platform, len(values))
	for i, v := range values {
		out[i] = model.Platform(v)
	}
	return out
}

var _ AlertRepository = (*PostgresAlertRepo)(nil)
