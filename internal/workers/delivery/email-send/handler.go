package emailsend

import (
	"context"
	"strings"

	apperrors "academic360-notifications/internal/common/errors"
	"academic360-notifications/internal/common/logger"
	"academic360-notifications/internal/common/validation"
	"academic360-notifications/internal/models"
	"academic360-notifications/internal/workers/delivery"
	"academic360-notifications/pkg/registry"
)

const TaskType = "email-send"

type Handler struct {
	config    *Config
	router    *delivery.Router
	templates *registry.TemplateRegistry
	sender    Sender
	logger    logger.Logger
}

func NewHandler(cfg *Config, router *delivery.Router, templates *registry.TemplateRegistry, sender Sender, log logger.Logger) *Handler {
	return &Handler{
		config:    cfg,
		router:    router,
		templates: templates,
		sender:    sender,
		logger:    log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

// Deliver renders the registry template for the job and mails every
// resolved recipient.
func (h *Handler) Deliver(ctx context.Context, job *models.DeliveryJob) error {
	if err := delivery.EnsureAlertActive(job); err != nil {
		return err
	}

	templateID := resolveTemplateID(job)
	tmpl, ok := h.templates.Lookup(templateID)
	if !ok {
		return apperrors.NewTemplateNotFoundError(templateID)
	}

	data := templateData(job)
	result, err := validation.ValidateAgainstSchema(tmpl.DataSchema, data)
	if err != nil {
		return apperrors.NewTemplateValidationFailedError(err.Error())
	}
	if !result.Valid {
		return apperrors.NewTemplateValidationFailedError(strings.Join(result.GetErrorMessages(), "; "))
	}

	subject := registry.Render(tmpl.Subject, data)
	body := registry.Render(tmpl.Body, data)

	recipients, err := h.router.Recipients(ctx, job, delivery.EmailContact)
	if err != nil {
		return err
	}

	return delivery.FanOut(ctx, recipients, h.config.RateDelay, func(ctx context.Context, to delivery.Recipient) error {
		err := h.sender.Send(ctx, &Message{
			From:    h.config.FromEmail,
			To:      to.Address,
			Subject: subject,
			Body:    body,
			IsHTML:  tmpl.IsHTML,
		})
		if err != nil {
			return apperrors.NewNotificationSendFailedError(string(models.VariantEmail), err)
		}
		h.logger.Info("email sent", map[string]interface{}{
			"notificationId": job.Notification.ID,
			"queueItemId":    job.Item.ID,
			"templateId":     templateID,
			"to":             to.Address,
		})
		return nil
	})
}

// resolveTemplateID prefers a content row's template over the event's.
func resolveTemplateID(job *models.DeliveryJob) string {
	for _, c := range job.Contents {
		if c.EmailTemplate != nil && *c.EmailTemplate != "" {
			return *c.EmailTemplate
		}
	}
	if job.Event != nil && job.Event.EmailTemplate != nil && *job.Event.EmailTemplate != "" {
		return *job.Event.EmailTemplate
	}
	return registry.DefaultTemplateID
}

func templateData(job *models.DeliveryJob) map[string]interface{} {
	data := map[string]interface{}{
		"message":        job.Notification.Message,
		"notificationId": job.Notification.ID,
		"type":           string(job.Notification.Type),
	}
	if job.User != nil && job.User.Name != "" {
		data["name"] = job.User.Name
	}

	names := map[int64]string{}
	if job.Alert != nil {
		for _, f := range job.Alert.Fields {
			if f.Flag {
				names[f.ID] = f.Name
			}
		}
	}

	for _, c := range job.Contents {
		if c.WhatsappFieldID == nil {
			if _, set := data["content"]; !set {
				data["content"] = c.Content
			}
			continue
		}
		if name, ok := names[*c.WhatsappFieldID]; ok {
			if _, set := data[name]; !set {
				data[name] = c.Content
			}
		}
	}
	return data
}
