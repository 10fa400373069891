package models

import "time"

// Variant is the primary delivery channel of a notification.
type Variant string

const (
	VariantEmail    Variant = "EMAIL"
	VariantWhatsapp Variant = "WHATSAPP"
	VariantSMS      Variant = "SMS"
	VariantWeb      Variant = "WEB"
	VariantInApp    Variant = "IN_APP"
	VariantOther    Variant = "OTHER"
)

// Valid reports whether v is a known variant.
func (v Variant) Valid() bool {
	switch v {
	case VariantEmail, VariantWhatsapp, VariantSMS, VariantWeb, VariantInApp, VariantOther:
		return true
	}
	return false
}

// QueueType maps a channel onto the queue its deliveries run on. Variants
// without a dedicated worker fall back to the in-app queue.
func (v Variant) QueueType() QueueType {
	switch v {
	case VariantWhatsapp:
		return QueueWhatsapp
	case VariantEmail:
		return QueueEmail
	case VariantWeb:
		return QueueWeb
	case VariantSMS:
		return QueueSMS
	default:
		return QueueInApp
	}
}

// NotificationType is the business category of a notification.
type NotificationType string

const (
	TypeUpload                       NotificationType = "UPLOAD"
	TypeEdit                         NotificationType = "EDIT"
	TypeUpdate                       NotificationType = "UPDATE"
	TypeInfo                         NotificationType = "INFO"
	TypeFee                          NotificationType = "FEE"
	TypeEvent                        NotificationType = "EVENT"
	TypeOther                        NotificationType = "OTHER"
	TypeAdmission                    NotificationType = "ADMISSION"
	TypeExam                         NotificationType = "EXAM"
	TypeMinorPaperSelection          NotificationType = "MINOR_PAPER_SELECTION"
	TypeSemesterWiseSubjectSelection NotificationType = "SEMESTER_WISE_SUBJECT_SELECTION"
	TypeAlert                        NotificationType = "ALERT"
)

type NotificationStatus string

const (
	StatusPending NotificationStatus = "PENDING"
	StatusSent    NotificationStatus = "SENT"
	StatusFailed  NotificationStatus = "FAILED"
)

// Notification is one firing of an event for a user or an application form.
// SentAt and FailedAt/FailedReason are never set at the same time.
type Notification struct {
	ID                  int64              `json:"id" gorm:"primaryKey"`
	ApplicationFormID   *int64             `json:"applicationFormId,omitempty" gorm:"index"`
	UserID              *int64             `json:"userId,omitempty" gorm:"index"`
	NotificationEventID *int64             `json:"notificationEventId,omitempty" gorm:"index"`
	Variant             Variant            `json:"variant" gorm:"type:varchar(20);not null"`
	Type                NotificationType   `json:"type" gorm:"type:varchar(40);not null"`
	Message             string             `json:"message" gorm:"type:text;not null"`
	Status              NotificationStatus `json:"status" gorm:"type:varchar(20);not null;default:PENDING;index"`
	SentAt              *time.Time         `json:"sentAt,omitempty"`
	FailedAt            *time.Time         `json:"failedAt,omitempty"`
	FailedReason        *string            `json:"failedReason,omitempty" gorm:"type:text"`
	CreatedAt           time.Time          `json:"createdAt"`
	UpdatedAt           time.Time          `json:"updatedAt"`
}

func (Notification) TableName() string { return "notifications" }

// NotificationContent is an immutable payload row of a notification: either a
// channel body or the value of one WhatsApp field slot.
type NotificationContent struct {
	ID                  int64     `json:"id" gorm:"primaryKey"`
	NotificationID      int64     `json:"notificationId" gorm:"not null;index"`
	NotificationEventID *int64    `json:"notificationEventId,omitempty"`
	EmailTemplate       *string   `json:"emailTemplate,omitempty" gorm:"type:varchar(255)"`
	WhatsappFieldID     *int64    `json:"whatsappFieldId,omitempty" gorm:"index"`
	Content             string    `json:"content" gorm:"type:text;not null"`
	CreatedAt           time.Time `json:"createdAt"`
}

func (NotificationContent) TableName() string { return "notification_contents" }

// NotificationEvent is reference data describing a named event type.
type NotificationEvent struct {
	ID              int64     `json:"id" gorm:"primaryKey"`
	CreatedByUserID *int64    `json:"createdByUserId,omitempty"`
	UpdatedByUserID *int64    `json:"updatedByUserId,omitempty"`
	EmailTemplate   *string   `json:"emailTemplate,omitempty" gorm:"type:varchar(255)"`
	WhatsappAlertID *int64    `json:"whatsappAlertId,omitempty" gorm:"index"`
	Name            string    `json:"name" gorm:"type:varchar(255);not null"`
	Description     *string   `json:"description,omitempty" gorm:"type:text"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func (NotificationEvent) TableName() string { return "notification_events" }
