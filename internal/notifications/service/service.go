// Package service is the producer side of the notification pipeline: it
// validates and persists notifications and loads delivery jobs for workers.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"academic360-notifications/internal/common/database"
	apperrors "academic360-notifications/internal/common/errors"
	"academic360-notifications/internal/common/logger"
	"academic360-notifications/internal/common/metrics"
	"academic360-notifications/internal/common/validation"
	"academic360-notifications/internal/models"
	"academic360-notifications/internal/notifications/queue"
	"academic360-notifications/internal/notifications/render"
)

var (
	// ErrNotificationNotFound is returned by reads for a missing notification.
	ErrNotificationNotFound = errors.New("notification not found")
	ErrEventNotFound        = errors.New("notification event not found")
)

const (
	insertNotificationQuery = `INSERT INTO notifications
  (application_form_id, user_id, notification_event_id, variant, type, message, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, 'PENDING', now(), now())
RETURNING id`

	insertContentQuery = `INSERT INTO notification_contents
  (notification_id, notification_event_id, email_template, whatsapp_field_id, content, created_at)
VALUES ($1, $2, $3, $4, $5, now())
RETURNING id`

	selectEventQuery = `SELECT id, created_by_user_id, updated_by_user_id, email_template, whatsapp_alert_id, name, description, created_at, updated_at
FROM notification_events WHERE id = $1`
)

// Service creates notifications and resolves delivery jobs.
type Service struct {
	db     *sql.DB
	queue  *queue.Store
	alerts render.AlertRepository
	logger logger.Logger
}

func New(db *sql.DB, store *queue.Store, alerts render.AlertRepository, log logger.Logger) *Service {
	return &Service{
		db:     db,
		queue:  store,
		alerts: alerts,
		logger: log.WithFields(map[string]interface{}{"component": "notification-service"}),
	}
}

type contentRow struct {
	emailTemplate   *string
	whatsappFieldID *int64
	content         string
}

// CreateNotification validates the input, renders WhatsApp arguments and
// writes the notification, its contents and one queue row per target queue
// in a single transaction.
func (s *Service) CreateNotification(ctx context.Context, in CreateNotificationInput) (*CreateNotificationResult, error) {
	if err := validation.Struct(in); err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}
	if strings.TrimSpace(in.Message) == "" {
		return nil, apperrors.NewValidationError("Message is required")
	}

	channels := in.Channels
	if len(channels) == 0 {
		channels = []models.Variant{in.Variant}
	}

	var event *models.NotificationEvent
	if in.EventID != nil {
		ev, err := s.getEvent(ctx, *in.EventID)
		if errors.Is(err, ErrEventNotFound) {
			return nil, apperrors.NewValidationError(fmt.Sprintf("notification event %d does not exist", *in.EventID))
		}
		if err != nil {
			return nil, err
		}
		event = ev
	}

	rows, err := s.buildContents(ctx, in, channels, event)
	if err != nil {
		return nil, err
	}

	queueTypes := distinctQueueTypes(channels)
	result := &CreateNotificationResult{}

	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var eventID *int64
		if event != nil {
			eventID = &event.ID
		}

		if err := tx.QueryRowContext(ctx, insertNotificationQuery,
			in.ApplicationFormID, in.UserID, eventID, string(in.Variant), string(in.Type), in.Message,
		).Scan(&result.NotificationID); err != nil {
			return apperrors.NewDatabaseInsertFailedError(fmt.Errorf("insert notification: %w", err))
		}

		for _, r := range rows {
			var id int64
			if err := tx.QueryRowContext(ctx, insertContentQuery,
				result.NotificationID, eventID, r.emailTemplate, r.whatsappFieldID, r.content,
			).Scan(&id); err != nil {
				return apperrors.NewDatabaseInsertFailedError(fmt.Errorf("insert notification content: %w", err))
			}
			result.ContentIDs = append(result.ContentIDs, id)
		}

		for _, qt := range queueTypes {
			item, err := s.queue.EnqueueTx(ctx, tx, result.NotificationID, qt)
			if err != nil {
				return apperrors.NewDatabaseInsertFailedError(err)
			}
			result.QueueItems = append(result.QueueItems, QueueItemReference{ID: item.ID, Type: item.Type})
		}
		return nil
	})
	if err != nil {
		s.logger.Error("failed to create notification", map[string]interface{}{
			"variant": string(in.Variant),
			"type":    string(in.Type),
			"error":   err,
		})
		return nil, err
	}

	metrics.NotificationsCreated.WithLabelValues(string(in.Variant)).Inc()
	s.logger.Info("notification created", map[string]interface{}{
		"notificationId": result.NotificationID,
		"variant":        string(in.Variant),
		"type":           string(in.Type),
		"contents":       len(result.ContentIDs),
		"queueItems":     len(result.QueueItems),
	})
	return result, nil
}

func (s *Service) buildContents(ctx context.Context, in CreateNotificationInput, channels []models.Variant, event *models.NotificationEvent) ([]contentRow, error) {
	var eventTemplate *string
	if event != nil {
		eventTemplate = event.EmailTemplate
	}
	emailTargeted := hasChannel(channels, models.VariantEmail)
	whatsappTargeted := hasChannel(channels, models.VariantWhatsapp)

	var rows []contentRow
	var alert *models.WhatsappAlert

	// Field rows feed both the WhatsApp body and the email template data.
	if (whatsappTargeted || emailTargeted) && event != nil && event.WhatsappAlertID != nil {
		a, err := s.alerts.GetAlert(ctx, *event.WhatsappAlertID)
		if err != nil {
			if errors.Is(err, render.ErrAlertNotFound) {
				return nil, apperrors.NewWhatsappFieldConfigError(*event.WhatsappAlertID, err.Error())
			}
			return nil, err
		}
		alert = a
	}

	// An email-only notification renders field rows when values were given;
	// WhatsApp needs every flagged field filled.
	if alert != nil && (whatsappTargeted || len(in.FieldValues) > 0) {
		args, err := render.BuildArguments(alert.Fields, in.FieldValues)
		if err != nil {
			return nil, render.ConfigError(alert.ID, err)
		}
		for _, arg := range args {
			fieldID := arg.FieldID
			rows = append(rows, contentRow{whatsappFieldID: &fieldID, content: arg.Value})
		}
	}

	for _, c := range in.Contents {
		if c.WhatsappFieldID != nil {
			if alert == nil || !alertHasField(alert, *c.WhatsappFieldID) {
				alertID := int64(0)
				if alert != nil {
					alertID = alert.ID
				}
				return nil, render.ConfigError(alertID, fmt.Errorf("%w: content references field %d",
					render.ErrUnknownField, *c.WhatsappFieldID))
			}
		}

		tmpl := c.EmailTemplate
		if tmpl == nil && emailTargeted && c.WhatsappFieldID == nil {
			tmpl = eventTemplate
		}
		rows = append(rows, contentRow{emailTemplate: tmpl, whatsappFieldID: c.WhatsappFieldID, content: c.Content})
	}

	if len(rows) == 0 {
		var tmpl *string
		if emailTargeted {
			tmpl = eventTemplate
		}
		rows = append(rows, contentRow{emailTemplate: tmpl, content: in.Message})
	}
	return rows, nil
}

func (s *Service) getEvent(ctx context.Context, id int64) (*models.NotificationEvent, error) {
	var ev models.NotificationEvent
	err := s.db.QueryRowContext(ctx, selectEventQuery, id).Scan(
		&ev.ID, &ev.CreatedByUserID, &ev.UpdatedByUserID, &ev.EmailTemplate, &ev.WhatsappAlertID,
		&ev.Name, &ev.Description, &ev.CreatedAt, &ev.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrEventNotFound, id)
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("notification_event", err)
	}
	return &ev, nil
}

func distinctQueueTypes(channels []models.Variant) []models.QueueType {
	seen := make(map[models.QueueType]bool, len(channels))
	var out []models.QueueType
	for _, ch := range channels {
		qt := ch.QueueType()
		if seen[qt] {
			continue
		}
		seen[qt] = true
		out = append(out, qt)
	}
	return out
}

func hasChannel(channels []models.Variant, v models.Variant) bool {
	for _, ch := range channels {
		if ch == v {
			return true
		}
	}
	return false
}

func alertHasField(alert *models.WhatsappAlert, fieldID int64) bool {
	for _, f := range alert.Fields {
		if f.ID == fieldID {
			return true
		}
	}
	return false
}
