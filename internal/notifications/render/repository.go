package render

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"academic360-notifications/internal/common/logger"
	"academic360-notifications/internal/models"

	"github.com/redis/go-redis/v9"
)

// ErrAlertNotFound is returned when an alert id does not exist.
var ErrAlertNotFound = errors.New("whatsapp alert not found")

// AlertRepository loads a WhatsApp alert together with its fields.
type AlertRepository interface {
	GetAlert(ctx context.Context, id int64) (*models.WhatsappAlert, error)
}

// PostgresAlertRepository reads alerts straight from Postgres.
type PostgresAlertRepository struct {
	db *sql.DB
}

func NewPostgresAlertRepository(db *sql.DB) *PostgresAlertRepository {
	return &PostgresAlertRepository{db: db}
}

func (r *PostgresAlertRepository) GetAlert(ctx context.Context, id int64) (*models.WhatsappAlert, error) {
	var a models.WhatsappAlert
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, template, preview_image, is_active, created_at, updated_at FROM whatsapp_alerts WHERE id = $1`, id,
	).Scan(&a.ID, &a.Name, &a.Template, &a.PreviewImage, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrAlertNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load whatsapp alert %d: %w", id, err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, whatsapp_alert_id, name, sequence, flag, frequency FROM whatsapp_fields WHERE whatsapp_alert_id = $1 ORDER BY sequence, id`, id)
	if err != nil {
		return nil, fmt.Errorf("load whatsapp fields of alert %d: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var f models.WhatsappField
		if err := rows.Scan(&f.ID, &f.WhatsappAlertID, &f.Name, &f.Sequence, &f.Flag, &f.Frequency); err != nil {
			return nil, fmt.Errorf("scan whatsapp field: %w", err)
		}
		a.Fields = append(a.Fields, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load whatsapp fields of alert %d: %w", id, err)
	}
	return &a, nil
}

// CachedAlertRepository is a read-through Redis cache in front of another
// repository. Redis failures degrade to uncached reads.
type CachedAlertRepository struct {
	next   AlertRepository
	redis  *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewCachedAlertRepository(next AlertRepository, rdb *redis.Client, ttl time.Duration, log logger.Logger) *CachedAlertRepository {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedAlertRepository{next: next, redis: rdb, ttl: ttl, logger: log}
}

func alertCacheKey(id int64) string {
	return "whatsapp:alert:" + strconv.FormatInt(id, 10)
}

func (r *CachedAlertRepository) GetAlert(ctx context.Context, id int64) (*models.WhatsappAlert, error) {
	key := alertCacheKey(id)

	val, err := r.redis.Get(ctx, key).Result()
	switch {
	case err == nil:
		var a models.WhatsappAlert
		if jsonErr := json.Unmarshal([]byte(val), &a); jsonErr == nil {
			return &a, nil
		}
		r.logger.Warn("discarding undecodable cached alert", map[string]interface{}{"key": key})
	case !errors.Is(err, redis.Nil):
		r.logger.Warn("alert cache read failed", map[string]interface{}{"key": key, "error": err})
	}

	a, err := r.next.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(a)
	if err == nil {
		if setErr := r.redis.Set(ctx, key, data, r.ttl).Err(); setErr != nil {
			r.logger.Warn("alert cache write failed", map[string]interface{}{"key": key, "error": setErr})
		}
	}
	return a, nil
}

// Invalidate drops the cached copy of an alert after it has been edited.
func (r *CachedAlertRepository) Invalidate(ctx context.Context, id int64) error {
	return r.redis.Del(ctx, alertCacheKey(id)).Err()
}
