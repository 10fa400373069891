package service

import "academic360-notifications/internal/models"

// ChannelContent is one caller-supplied content row.
type ChannelContent struct {
	WhatsappFieldID *int64  `json:"whatsappFieldId,omitempty" validate:"omitempty,gt=0"`
	EmailTemplate   *string `json:"emailTemplate,omitempty"`
	Content         string  `json:"content" validate:"required"`
}

// CreateNotificationInput is the producer request for one notification.
type CreateNotificationInput struct {
	EventID           *int64                  `json:"eventId,omitempty" validate:"omitempty,gt=0"`
	UserID            *int64                  `json:"userId,omitempty" validate:"omitempty,gt=0"`
	ApplicationFormID *int64                  `json:"applicationFormId,omitempty" validate:"omitempty,gt=0"`
	Variant           models.Variant          `json:"variant" validate:"required,oneof=EMAIL WHATSAPP SMS WEB IN_APP OTHER"`
	Type              models.NotificationType `json:"type" validate:"required,oneof=UPLOAD EDIT UPDATE INFO FEE EVENT OTHER ADMISSION EXAM MINOR_PAPER_SELECTION SEMESTER_WISE_SUBJECT_SELECTION ALERT"`
	Message           string                  `json:"message" validate:"required"`
	Channels          []models.Variant        `json:"channels,omitempty" validate:"omitempty,dive,oneof=EMAIL WHATSAPP SMS WEB IN_APP OTHER"`
	Contents          []ChannelContent        `json:"contents,omitempty" validate:"omitempty,dive"`
	FieldValues       map[string][]string     `json:"fieldValues,omitempty"`
}

// CreateNotificationResult lists the ids written by CreateNotification.
type CreateNotificationResult struct {
	NotificationID int64                `json:"notificationId"`
	ContentIDs     []int64              `json:"contentIds"`
	QueueItems     []QueueItemReference `json:"queueItems"`
}

type QueueItemReference struct {
	ID   int64            `json:"id"`
	Type models.QueueType `json:"type"`
}

// NotificationDetails is the operator view of a notification.
type NotificationDetails struct {
	Notification *models.Notification         `json:"notification"`
	Contents     []models.NotificationContent `json:"contents"`
	QueueItems   []*models.QueueItem          `json:"queueItems"`
}
