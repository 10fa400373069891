package whatsappsend

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	apperrors "academic360-notifications/internal/common/errors"
	httpclient "academic360-notifications/internal/common/http"
	"academic360-notifications/internal/common/logger"
	"academic360-notifications/internal/models"
	"academic360-notifications/internal/notifications/render"
	"academic360-notifications/internal/workers/delivery"
)

const (
	TaskType = "whatsapp-send"
	provider = "interakt"
)

type HTTPPoster interface {
	PostJSON(ctx context.Context, url string, headers map[string]string, payload interface{}) (*httpclient.Response, error)
}

type Handler struct {
	config *Config
	router *delivery.Router
	client HTTPPoster
	logger logger.Logger
}

func NewHandler(cfg *Config, router *delivery.Router, client HTTPPoster, log logger.Logger) *Handler {
	return &Handler{
		config: cfg,
		router: router,
		client: client,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Deliver(ctx context.Context, job *models.DeliveryJob) error {
	if err := delivery.EnsureAlertActive(job); err != nil {
		return err
	}

	tmpl, err := h.buildTemplate(job)
	if err != nil {
		return err
	}

	recipients, err := h.router.Recipients(ctx, job, delivery.WhatsappContact)
	if err != nil {
		return err
	}

	return delivery.FanOut(ctx, recipients, h.config.RateDelay, func(ctx context.Context, to delivery.Recipient) error {
		if err := h.send(ctx, to.Address, tmpl); err != nil {
			return err
		}
		h.logger.Info("whatsapp message sent", map[string]interface{}{
			"notificationId": job.Notification.ID,
			"queueItemId":    job.Item.ID,
			"template":       tmpl.Name,
			"to":             to.Address,
		})
		return nil
	})
}

// buildTemplate resolves the template name and positional values. With a
// linked alert the values come from the stored content rows; otherwise the
// message may carry them as JSON.
func (h *Handler) buildTemplate(job *models.DeliveryJob) (TemplatePayload, error) {
	tmpl := TemplatePayload{
		Name:         DefaultTemplate,
		LanguageCode: h.config.LanguageCode,
		BodyValues:   []string{},
	}

	env := parseEnvelope(job.Notification.Message)
	if env.NotificationMaster.Template != "" {
		tmpl.Name = env.NotificationMaster.Template
	}
	if env.WhatsappHeaderMediaURL != "" {
		tmpl.HeaderValues = []string{env.WhatsappHeaderMediaURL}
	}

	if job.Alert != nil {
		tmpl.Name = job.Alert.Template
		values, err := render.BodyValues(job.Alert.Fields, job.Contents)
		if err != nil {
			return tmpl, render.ConfigError(job.Alert.ID, err)
		}
		if len(values) > 0 {
			tmpl.BodyValues = values
			return tmpl, nil
		}
	}

	for _, v := range env.BodyValues {
		tmpl.BodyValues = append(tmpl.BodyValues, fmt.Sprint(v))
	}
	return tmpl, nil
}

func parseEnvelope(message string) messageEnvelope {
	var env messageEnvelope
	trimmed := strings.TrimSpace(message)
	if strings.HasPrefix(trimmed, "{") {
		_ = json.Unmarshal([]byte(trimmed), &env)
	}
	return env
}

func (h *Handler) send(ctx context.Context, phone string, tmpl TemplatePayload) error {
	req := MessageRequest{
		CountryCode: h.config.CountryCode,
		PhoneNumber: nationalNumber(phone, h.config.CountryCode),
		Type:        "Template",
		Template:    tmpl,
	}
	headers := map[string]string{
		"Authorization": "Basic " + basicCredential(h.config.APIKey),
	}

	resp, err := h.client.PostJSON(ctx, h.config.messageURL(), headers, req)
	if err != nil {
		if ctx.Err() != nil {
			return apperrors.NewTimeoutError(provider, err)
		}
		return apperrors.NewNotificationSendFailedError(string(models.VariantWhatsapp), err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == 429 || resp.StatusCode >= 500:
		return apperrors.NewProviderUnavailableError(provider, resp.StatusCode, string(resp.Body))
	default:
		return apperrors.NewProviderRejectedError(provider, resp.StatusCode, string(resp.Body))
	}
}

// basicCredential accepts either a ready base64 key or a raw "key:" secret.
func basicCredential(apiKey string) string {
	if strings.Contains(apiKey, ":") {
		return base64.StdEncoding.EncodeToString([]byte(apiKey))
	}
	return apiKey
}

// nationalNumber strips formatting and a leading country code.
func nationalNumber(phone, countryCode string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)

	cc := strings.TrimPrefix(countryCode, "+")
	if cc != "" && len(digits) > 10 && strings.HasPrefix(digits, cc) {
		return digits[len(cc):]
	}
	return digits
}
