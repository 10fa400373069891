package inapppush

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	apperrors "academic360-notifications/internal/common/errors"
	"academic360-notifications/internal/common/logger"
	"academic360-notifications/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	TaskType = "inapp-push"
	// WebTaskType names the workers draining the web queue with this handler.
	WebTaskType = "web-push"
)

type Handler struct {
	config *Config
	redis  *redis.Client
	logger logger.Logger
}

func NewHandler(config *Config, redis *redis.Client, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		redis:  redis,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

// Channel returns the pub/sub channel a user's sessions subscribe to.
func (h *Handler) Channel(userID int64) string {
	return h.config.ChannelPrefix + strconv.FormatInt(userID, 10)
}

// Deliver publishes the notification to the user's channel. It serves both
// the in-app and the web queue.
func (h *Handler) Deliver(ctx context.Context, job *models.DeliveryJob) error {
	if job.Notification.UserID == nil {
		return apperrors.NewRecipientUnreachableError(
			fmt.Sprintf("notification %d has no user", job.Notification.ID))
	}
	userID := *job.Notification.UserID

	payload := Payload{
		NotificationID: job.Notification.ID,
		QueueItemID:    job.Item.ID,
		Variant:        string(job.Notification.Variant),
		Type:           string(job.Notification.Type),
		Message:        job.Notification.Message,
		CreatedAt:      job.Notification.CreatedAt,
	}
	for _, c := range job.Contents {
		if c.WhatsappFieldID == nil && c.Content != job.Notification.Message {
			payload.Contents = append(payload.Contents, c.Content)
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return apperrors.NewValidationError(fmt.Sprintf("encode payload: %v", err))
	}

	pubCtx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	receivers, err := h.redis.Publish(pubCtx, h.Channel(userID), data).Result()
	if err != nil {
		return apperrors.NewNotificationSendFailedError(string(job.Notification.Variant), err)
	}

	h.logger.Info("in-app notification published", map[string]interface{}{
		"notificationId": job.Notification.ID,
		"queueItemId":    job.Item.ID,
		"userId":         userID,
		"receivers":      receivers,
	})
	return nil
}
