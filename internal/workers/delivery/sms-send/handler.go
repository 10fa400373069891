package smssend

import (
	"context"
	"strings"

	apperrors "academic360-notifications/internal/common/errors"
	"academic360-notifications/internal/common/logger"
	"academic360-notifications/internal/models"
	"academic360-notifications/internal/workers/delivery"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

const TaskType = "sms-send"

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Handler struct {
	config *Config
	router *delivery.Router
	client SNSService
	logger logger.Logger
}

func NewHandler(cfg *Config, router *delivery.Router, client SNSService, log logger.Logger) *Handler {
	return &Handler{
		config: cfg,
		router: router,
		client: client,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

// Deliver publishes the notification message as an SMS to each recipient.
func (h *Handler) Deliver(ctx context.Context, job *models.DeliveryJob) error {
	if err := delivery.EnsureAlertActive(job); err != nil {
		return err
	}

	text := smsText(job, h.config.MaxLength)
	if text == "" {
		return apperrors.NewValidationError("sms message is empty")
	}

	recipients, err := h.router.Recipients(ctx, job, delivery.PhoneContact)
	if err != nil {
		return err
	}

	return delivery.FanOut(ctx, recipients, h.config.RateDelay, func(ctx context.Context, to delivery.Recipient) error {
		out, err := h.client.Publish(ctx, &sns.PublishInput{
			PhoneNumber: aws.String(to.Address),
			Message:     aws.String(text),
		})
		if err != nil {
			return apperrors.NewNotificationSendFailedError(string(models.VariantSMS), err)
		}
		h.logger.Info("sms sent", map[string]interface{}{
			"notificationId": job.Notification.ID,
			"queueItemId":    job.Item.ID,
			"messageId":      aws.ToString(out.MessageId),
		})
		return nil
	})
}

// smsText prefers a plain content row over the notification message.
func smsText(job *models.DeliveryJob, maxLen int) string {
	text := job.Notification.Message
	for _, c := range job.Contents {
		if c.WhatsappFieldID == nil && c.EmailTemplate == nil && strings.TrimSpace(c.Content) != "" {
			text = c.Content
			break
		}
	}
	text = strings.TrimSpace(text)
	if r := []rune(text); maxLen > 0 && len(r) > maxLen {
		text = string(r[:maxLen])
	}
	return text
}
