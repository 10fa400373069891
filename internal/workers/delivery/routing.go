// Package delivery holds the recipient routing shared by every channel
// handler.
package delivery

import (
	"context"
	"fmt"
	"time"

	"academic360-notifications/internal/common/config"
	apperrors "academic360-notifications/internal/common/errors"
	"academic360-notifications/internal/common/logger"
	"academic360-notifications/internal/models"
)

// StagingDirectory lists the staff who receive staging traffic.
type StagingDirectory interface {
	StagingRecipients(ctx context.Context, limit int) ([]models.User, error)
}

// ContactFunc picks the channel address of a user; empty means unusable.
type ContactFunc func(u models.User) string

func EmailContact(u models.User) string    { return u.Email }
func PhoneContact(u models.User) string    { return u.Phone }
func WhatsappContact(u models.User) string { return u.WhatsappContact() }

// Recipient is one resolved destination of a delivery.
type Recipient struct {
	UserID  int64
	Name    string
	Address string
}

type Router struct {
	environment  string
	developer    models.User
	staging      StagingDirectory
	stagingLimit int
	logger       logger.Logger
}

func NewRouter(cfg *config.Config, staging StagingDirectory, log logger.Logger) *Router {
	dev := cfg.Notifications.Developer
	return &Router{
		environment: cfg.App.Environment,
		developer: models.User{
			Name:           "developer",
			Email:          dev.Email,
			Phone:          dev.Phone,
			WhatsappNumber: dev.Phone,
		},
		staging:      staging,
		stagingLimit: cfg.Notifications.StagingRecipientLimit,
		logger:       log,
	}
}

func (r *Router) Environment() string { return r.environment }

// Recipients resolves where a job is delivered in the current environment.
// Development always targets the developer contact, staging fans out to
// opted-in staff and production targets the notification's user.
func (r *Router) Recipients(ctx context.Context, job *models.DeliveryJob, contact ContactFunc) ([]Recipient, error) {
	switch r.environment {
	case config.EnvProduction:
		if job.User == nil {
			if job.Notification.UserID != nil {
				return nil, apperrors.NewRecipientUnreachableError(
					fmt.Sprintf("user %d of notification %d does not exist", *job.Notification.UserID, job.Notification.ID))
			}
			return nil, apperrors.NewRecipientUnreachableError(
				fmt.Sprintf("notification %d has no user", job.Notification.ID))
		}
		addr := contact(*job.User)
		if addr == "" {
			return nil, apperrors.NewRecipientUnreachableError(
				fmt.Sprintf("user %d has no contact for %s", job.User.ID, job.Item.Type))
		}
		return []Recipient{{UserID: job.User.ID, Name: job.User.Name, Address: addr}}, nil

	case config.EnvStaging:
		users, err := r.staging.StagingRecipients(ctx, r.stagingLimit)
		if err != nil {
			return nil, err
		}
		var out []Recipient
		for _, u := range users {
			if addr := contact(u); addr != "" {
				out = append(out, Recipient{UserID: u.ID, Name: u.Name, Address: addr})
			}
		}
		if len(out) > 0 {
			return out, nil
		}
		r.logger.Warn("no staging recipients, falling back to developer contact", map[string]interface{}{
			"notificationId": job.Notification.ID,
			"queueType":      job.Item.Type,
		})
		return r.developerRecipient(job, contact)

	default:
		return r.developerRecipient(job, contact)
	}
}

func (r *Router) developerRecipient(job *models.DeliveryJob, contact ContactFunc) ([]Recipient, error) {
	addr := contact(r.developer)
	if addr == "" {
		return nil, apperrors.NewRecipientUnreachableError(
			fmt.Sprintf("developer contact not configured for %s", job.Item.Type))
	}
	return []Recipient{{Name: r.developer.Name, Address: addr}}, nil
}

// EnsureAlertActive rejects jobs whose linked WhatsApp alert was deactivated.
func EnsureAlertActive(job *models.DeliveryJob) error {
	if job.Alert != nil && !job.Alert.IsActive {
		return apperrors.NewNotificationMasterInactiveError(job.Alert.ID)
	}
	return nil
}

// FanOut sends to each recipient in order, pausing delay between sends.
// The first failure stops the fan-out.
func FanOut(ctx context.Context, recipients []Recipient, delay time.Duration, send func(ctx context.Context, to Recipient) error) error {
	for i, to := range recipients {
		if i > 0 && delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		if err := send(ctx, to); err != nil {
			return err
		}
	}
	return nil
}
