package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	apperrors "academic360-notifications/internal/common/errors"
	"academic360-notifications/internal/models"
)

const (
	selectNotificationQuery = `SELECT id, application_form_id, user_id, notification_event_id, variant, type, message, status,
  sent_at, failed_at, failed_reason, created_at, updated_at
FROM notifications WHERE id = $1`

	selectContentsQuery = `SELECT id, notification_id, notification_event_id, email_template, whatsapp_field_id, content, created_at
FROM notification_contents WHERE notification_id = $1 ORDER BY id`

	selectUserQuery = `SELECT id, name, COALESCE(email, ''), COALESCE(phone, ''), COALESCE(whatsapp_number, ''), type,
  is_active, is_suspended, send_staging_notifications
FROM users WHERE id = $1`

	stagingRecipientsQuery = `SELECT id, name, COALESCE(email, ''), COALESCE(phone, ''), COALESCE(whatsapp_number, ''), type,
  is_active, is_suspended, send_staging_notifications
FROM users
WHERE type = 'STAFF' AND send_staging_notifications = true AND is_active = true AND is_suspended = false
ORDER BY id
LIMIT $1`
)

var errUserNotFound = errors.New("user not found")

// LoadJob resolves everything a channel handler needs for one claimed row.
func (s *Service) LoadJob(ctx context.Context, item *models.QueueItem) (*models.DeliveryJob, error) {
	n, err := s.getNotification(ctx, item.NotificationID)
	if err != nil {
		return nil, err
	}

	contents, err := s.getContents(ctx, n.ID)
	if err != nil {
		return nil, err
	}

	job := &models.DeliveryJob{Item: *item, Notification: *n, Contents: contents}

	if n.NotificationEventID != nil {
		ev, err := s.getEvent(ctx, *n.NotificationEventID)
		if err != nil && !errors.Is(err, ErrEventNotFound) {
			return nil, err
		}
		job.Event = ev

		if ev != nil && ev.WhatsappAlertID != nil {
			alert, err := s.alerts.GetAlert(ctx, *ev.WhatsappAlertID)
			if err != nil {
				return nil, fmt.Errorf("load alert of event %d: %w", ev.ID, err)
			}
			job.Alert = alert
		}
	}

	// A missing user only matters where the user is the recipient; the
	// router rejects such jobs in production.
	if n.UserID != nil {
		u, err := s.getUser(ctx, *n.UserID)
		switch {
		case errors.Is(err, errUserNotFound):
			s.logger.Warn("notification user not found", map[string]interface{}{
				"notificationId": n.ID,
				"userId":         *n.UserID,
			})
		case err != nil:
			return nil, err
		default:
			job.User = u
		}
	}
	return job, nil
}

// GetNotification returns a notification with its contents and queue rows.
func (s *Service) GetNotification(ctx context.Context, id int64) (*NotificationDetails, error) {
	n, err := s.getNotification(ctx, id)
	if err != nil {
		return nil, err
	}
	contents, err := s.getContents(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := s.queue.ListByNotification(ctx, id)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("notification_queue", err)
	}
	return &NotificationDetails{Notification: n, Contents: contents, QueueItems: items}, nil
}

// StagingRecipients lists active staff who opted into staging notifications.
func (s *Service) StagingRecipients(ctx context.Context, limit int) ([]models.User, error) {
	if limit < 1 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, stagingRecipientsQuery, limit)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("staging_recipients", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("staging_recipients", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("staging_recipients", err)
	}
	return users, nil
}

func (s *Service) getNotification(ctx context.Context, id int64) (*models.Notification, error) {
	var n models.Notification
	err := s.db.QueryRowContext(ctx, selectNotificationQuery, id).Scan(
		&n.ID, &n.ApplicationFormID, &n.UserID, &n.NotificationEventID, &n.Variant, &n.Type, &n.Message, &n.Status,
		&n.SentAt, &n.FailedAt, &n.FailedReason, &n.CreatedAt, &n.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrNotificationNotFound, id)
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("notification", err)
	}
	return &n, nil
}

func (s *Service) getContents(ctx context.Context, notificationID int64) ([]models.NotificationContent, error) {
	rows, err := s.db.QueryContext(ctx, selectContentsQuery, notificationID)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("notification_contents", err)
	}
	defer rows.Close()

	var out []models.NotificationContent
	for rows.Next() {
		var c models.NotificationContent
		if err := rows.Scan(&c.ID, &c.NotificationID, &c.NotificationEventID, &c.EmailTemplate,
			&c.WhatsappFieldID, &c.Content, &c.CreatedAt); err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("notification_contents", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("notification_contents", err)
	}
	return out, nil
}

func (s *Service) getUser(ctx context.Context, id int64) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, selectUserQuery, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", errUserNotFound, id)
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("user", err)
	}
	return u, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(sc scanner) (*models.User, error) {
	var u models.User
	if err := sc.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.WhatsappNumber, &u.Type,
		&u.IsActive, &u.IsSuspended, &u.SendStagingNotifications); err != nil {
		return nil, err
	}
	return &u, nil
}
