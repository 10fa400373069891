// Package queue implements the notification_queue state machine on Postgres.
//
// A row is always in exactly one of four states: IDLE, IN_FLIGHT, DEAD or
// COMPLETED. Claims use FOR UPDATE SKIP LOCKED so that concurrent workers of
// the same type never hold the same row.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"academic360-notifications/internal/common/database"
	"academic360-notifications/internal/common/logger"
	"academic360-notifications/internal/models"
)

var (
	// ErrTerminal is returned when reporting on a row that is dead-lettered,
	// completed, missing or claimed by another worker.
	ErrTerminal = errors.New("queue item is terminal, not owned or does not exist")
	// ErrNotFound is returned by reads for a missing row.
	ErrNotFound = errors.New("queue item not found")
	// ErrUndeliverableType rejects enqueueing DEAD_LETTER_QUEUE or unknown types.
	ErrUndeliverableType = errors.New("queue type cannot be enqueued")
)

var itemColumns = []string{
	"id", "notification_id", "type", "retry_attempts", "is_processing", "is_dead_letter",
	"failed_reason", "dead_letter_at", "claimed_at", "claimed_by", "completed_at",
	"created_at", "updated_at",
}

var (
	selectColumns    = strings.Join(itemColumns, ", ")
	returningColumns = "q." + strings.Join(itemColumns, ", q.")
)

const (
	insertQuery = `INSERT INTO notification_queue (notification_id, type, retry_attempts, is_processing, is_dead_letter, created_at, updated_at)
VALUES ($1, $2, 0, false, false, now(), now())
RETURNING `

	idleFilter = `is_processing = false AND is_dead_letter = false AND completed_at IS NULL`

	succeedQuery = `UPDATE notification_queue
SET completed_at = now(), is_processing = false, claimed_at = NULL, claimed_by = NULL, updated_at = now()
WHERE id = $1 AND is_dead_letter = false AND completed_at IS NULL
  AND claimed_by IS NOT DISTINCT FROM $2
RETURNING notification_id`

	markSentQuery = `UPDATE notifications
SET status = 'SENT', sent_at = now(), failed_at = NULL, failed_reason = NULL, updated_at = now()
WHERE id = $1`

	failQuery = `UPDATE notification_queue
SET retry_attempts = retry_attempts + 1,
    failed_reason = $2,
    is_processing = false,
    is_dead_letter = (retry_attempts + 1 >= $3::int) OR $4::boolean,
    dead_letter_at = CASE WHEN (retry_attempts + 1 >= $3::int) OR $4::boolean THEN now() ELSE NULL END,
    claimed_at = NULL,
    claimed_by = NULL,
    updated_at = now()
WHERE id = $1 AND is_dead_letter = false AND completed_at IS NULL
  AND claimed_by IS NOT DISTINCT FROM $5
RETURNING notification_id, retry_attempts, is_dead_letter, dead_letter_at`

	touchQuery = `UPDATE notification_queue
SET claimed_at = now(), updated_at = now()
WHERE id = $1 AND claimed_by = $2 AND is_processing = true AND is_dead_letter = false AND completed_at IS NULL`

	markFailedQuery = `UPDATE notifications
SET status = 'FAILED', failed_at = now(), failed_reason = $2, sent_at = NULL, updated_at = now()
WHERE id = $1`

	requeueStaleQuery = `UPDATE notification_queue
SET is_processing = false, claimed_at = NULL, claimed_by = NULL, updated_at = now()
WHERE is_processing = true AND is_dead_letter = false AND completed_at IS NULL
  AND COALESCE(claimed_at, updated_at) < now() - ($1::int * interval '1 second')
RETURNING id`
)

var claimQuery = `WITH next AS (
  SELECT id FROM notification_queue
  WHERE type = $1 AND ` + idleFilter + `
  ORDER BY created_at, id
  LIMIT $2
  FOR UPDATE SKIP LOCKED
)
UPDATE notification_queue q
SET is_processing = true, claimed_at = now(), claimed_by = $3, updated_at = now()
FROM next
WHERE q.id = next.id AND q.is_processing = false
RETURNING ` + returningColumns

// Store is the Postgres-backed notification queue.
type Store struct {
	db     *sql.DB
	cfg    Config
	logger logger.Logger
}

func NewStore(db *sql.DB, cfg Config, log logger.Logger) *Store {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultConfig().StaleAfter
	}
	return &Store{
		db:     db,
		cfg:    cfg,
		logger: log.WithFields(map[string]interface{}{"component": "notification-queue"}),
	}
}

// Config returns the effective settings.
func (s *Store) Config() Config {
	return s.cfg
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(sc rowScanner) (*models.QueueItem, error) {
	var it models.QueueItem
	err := sc.Scan(
		&it.ID, &it.NotificationID, &it.Type, &it.RetryAttempts, &it.IsProcessing, &it.IsDeadLetter,
		&it.FailedReason, &it.DeadLetterAt, &it.ClaimedAt, &it.ClaimedBy, &it.CompletedAt,
		&it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// Enqueue inserts an IDLE row for the notification.
func (s *Store) Enqueue(ctx context.Context, notificationID int64, queueType models.QueueType) (*models.QueueItem, error) {
	return s.enqueue(ctx, s.db, notificationID, queueType)
}

// EnqueueTx is Enqueue inside the caller's transaction.
func (s *Store) EnqueueTx(ctx context.Context, tx *sql.Tx, notificationID int64, queueType models.QueueType) (*models.QueueItem, error) {
	return s.enqueue(ctx, tx, notificationID, queueType)
}

func (s *Store) enqueue(ctx context.Context, q rowQuerier, notificationID int64, queueType models.QueueType) (*models.QueueItem, error) {
	if !queueType.Deliverable() {
		return nil, fmt.Errorf("%w: %q", ErrUndeliverableType, queueType)
	}

	it, err := scanItem(q.QueryRowContext(ctx, insertQuery+selectColumns, notificationID, string(queueType)))
	if err != nil {
		return nil, fmt.Errorf("enqueue notification %d on %s: %w", notificationID, queueType, err)
	}
	return it, nil
}

// ClaimNext claims the oldest idle row of queueType for workerID. It returns
// nil, nil when nothing is eligible.
func (s *Store) ClaimNext(ctx context.Context, queueType models.QueueType, workerID string) (*models.QueueItem, error) {
	items, err := s.ClaimBatch(ctx, queueType, workerID, 1)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return items[0], nil
}

// ClaimBatch claims up to limit idle rows of queueType in one statement and
// returns them ordered by (created_at, id).
func (s *Store) ClaimBatch(ctx context.Context, queueType models.QueueType, workerID string, limit int) ([]*models.QueueItem, error) {
	if !queueType.Deliverable() {
		return nil, fmt.Errorf("%w: %q", ErrUndeliverableType, queueType)
	}
	if limit < 1 {
		limit = 1
	}

	rows, err := s.db.QueryContext(ctx, claimQuery, string(queueType), limit, workerID)
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", queueType, err)
	}
	defer rows.Close()

	var items []*models.QueueItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claimed row: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim %s: %w", queueType, err)
	}

	// UPDATE ... RETURNING does not preserve the CTE ordering.
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})

	if len(items) > 0 {
		s.logger.Debug("claimed queue items", map[string]interface{}{
			"queueType": string(queueType),
			"workerId":  workerID,
			"count":     len(items),
		})
	}
	return items, nil
}

// Touch restarts the staleness clock of a row claimed by workerID. It
// reports false when the row is no longer held by that worker.
func (s *Store) Touch(ctx context.Context, id int64, workerID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, touchQuery, id, workerID)
	if err != nil {
		return false, fmt.Errorf("touch queue item %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("touch queue item %d: %w", id, err)
	}
	return n == 1, nil
}

// owner maps an empty worker id to NULL so unclaimed IDLE rows can be
// reported on directly.
func owner(workerID string) sql.NullString {
	return sql.NullString{String: workerID, Valid: workerID != ""}
}

// ReportSuccess completes the row and marks its notification SENT. Only the
// worker holding the claim may report; an empty workerID matches an
// unclaimed row.
func (s *Store) ReportSuccess(ctx context.Context, id int64, workerID string) error {
	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var notificationID int64
		err := tx.QueryRowContext(ctx, succeedQuery, id, owner(workerID)).Scan(&notificationID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: id %d", ErrTerminal, id)
		}
		if err != nil {
			return fmt.Errorf("complete queue item %d: %w", id, err)
		}

		if _, err := tx.ExecContext(ctx, markSentQuery, notificationID); err != nil {
			return fmt.Errorf("mark notification %d sent: %w", notificationID, err)
		}
		return nil
	})
}

// ReportFailure records a failed attempt. The row returns to IDLE, or is
// dead-lettered once the retry ceiling is reached or the failure is not
// retryable; a dead-lettered row marks its notification FAILED.
func (s *Store) ReportFailure(ctx context.Context, id int64, workerID, reason string, retryable bool) (*models.FailureOutcome, error) {
	reason = truncateReason(reason)
	out := &models.FailureOutcome{QueueItemID: id, Reason: reason}

	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, failQuery, id, reason, s.cfg.MaxRetries, !retryable, owner(workerID)).
			Scan(&out.NotificationID, &out.RetryAttempts, &out.DeadLettered, &out.DeadLetterAt)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: id %d", ErrTerminal, id)
		}
		if err != nil {
			return fmt.Errorf("fail queue item %d: %w", id, err)
		}

		if !out.DeadLettered {
			return nil
		}
		if _, err := tx.ExecContext(ctx, markFailedQuery, out.NotificationID, reason); err != nil {
			return fmt.Errorf("mark notification %d failed: %w", out.NotificationID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out.DeadLettered {
		s.logger.Warn("queue item dead-lettered", map[string]interface{}{
			"queueItemId":    id,
			"notificationId": out.NotificationID,
			"retryAttempts":  out.RetryAttempts,
			"retryable":      retryable,
			"reason":         reason,
		})
	}
	return out, nil
}

// RequeueStale returns IN_FLIGHT rows claimed longer than StaleAfter ago to
// IDLE without touching retry_attempts.
func (s *Store) RequeueStale(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, requeueStaleQuery, int(s.cfg.StaleAfter.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("requeue stale: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan requeued id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("requeue stale: %w", err)
	}
	return ids, nil
}

// Get loads a single row.
func (s *Store) Get(ctx context.Context, id int64) (*models.QueueItem, error) {
	it, err := scanItem(s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM notification_queue WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get queue item %d: %w", id, err)
	}
	return it, nil
}

// ListByNotification returns every row of a notification in id order.
func (s *Store) ListByNotification(ctx context.Context, notificationID int64) ([]*models.QueueItem, error) {
	return s.list(ctx,
		`SELECT `+selectColumns+` FROM notification_queue WHERE notification_id = $1 ORDER BY id`,
		notificationID)
}

// ListDeadLetters returns dead-lettered rows, newest first. An empty
// queueType lists every channel.
func (s *Store) ListDeadLetters(ctx context.Context, queueType models.QueueType, limit int) ([]*models.QueueItem, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.list(ctx,
		`SELECT `+selectColumns+` FROM notification_queue
WHERE is_dead_letter = true AND ($1::text = '' OR type = $1)
ORDER BY dead_letter_at DESC, id DESC
LIMIT $2`,
		string(queueType), limit)
}

func (s *Store) list(ctx context.Context, query string, args ...interface{}) ([]*models.QueueItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list queue items: %w", err)
	}
	defer rows.Close()

	var items []*models.QueueItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func truncateReason(reason string) string {
	if utf8.RuneCountInString(reason) <= MaxReasonLength {
		return reason
	}
	r := []rune(reason)
	return string(r[:MaxReasonLength])
}
