package models

import "time"

type QueueType string

const (
	QueueEmail      QueueType = "EMAIL_QUEUE"
	QueueWhatsapp   QueueType = "WHATSAPP_QUEUE"
	QueueSMS        QueueType = "SMS_QUEUE"
	QueueWeb        QueueType = "WEB_QUEUE"
	QueueInApp      QueueType = "IN_APP_QUEUE"
	QueueDeadLetter QueueType = "DEAD_LETTER_QUEUE"
)

// Deliverable reports whether rows of this type can be enqueued and claimed.
// DEAD_LETTER_QUEUE exists only for compatibility with historical rows.
func (q QueueType) Deliverable() bool {
	switch q {
	case QueueEmail, QueueWhatsapp, QueueSMS, QueueWeb, QueueInApp:
		return true
	}
	return false
}

// QueueState is the derived lifecycle state of a queue row.
type QueueState string

const (
	StateIdle      QueueState = "IDLE"
	StateInFlight  QueueState = "IN_FLIGHT"
	StateDead      QueueState = "DEAD"
	StateCompleted QueueState = "COMPLETED"
)

// QueueItem is one delivery attempt-stream of a notification on one channel.
type QueueItem struct {
	ID             int64      `json:"id" gorm:"primaryKey"`
	NotificationID int64      `json:"notificationId" gorm:"not null;index"`
	Type           QueueType  `json:"type" gorm:"type:varchar(30);not null"`
	RetryAttempts  int        `json:"retryAttempts" gorm:"not null;default:0"`
	IsProcessing   bool       `json:"isProcessing" gorm:"not null;default:false"`
	IsDeadLetter   bool       `json:"isDeadLetter" gorm:"not null;default:false"`
	FailedReason   *string    `json:"failedReason,omitempty" gorm:"type:varchar(500)"`
	DeadLetterAt   *time.Time `json:"deadLetterAt,omitempty"`
	ClaimedAt      *time.Time `json:"claimedAt,omitempty"`
	ClaimedBy      *string    `json:"claimedBy,omitempty" gorm:"type:varchar(64)"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

func (QueueItem) TableName() string { return "notification_queue" }

func (q QueueItem) State() QueueState {
	switch {
	case q.IsDeadLetter:
		return StateDead
	case q.CompletedAt != nil:
		return StateCompleted
	case q.IsProcessing:
		return StateInFlight
	default:
		return StateIdle
	}
}

// FailureOutcome is the result of reporting a failed delivery attempt.
type FailureOutcome struct {
	QueueItemID    int64      `json:"queueItemId"`
	NotificationID int64      `json:"notificationId"`
	RetryAttempts  int        `json:"retryAttempts"`
	DeadLettered   bool       `json:"deadLettered"`
	DeadLetterAt   *time.Time `json:"deadLetterAt,omitempty"`
	Reason         string     `json:"reason"`
}

// Outcome names the result of one processed queue item.
type Outcome string

const (
	OutcomeSent       Outcome = "SENT"
	OutcomeRetry      Outcome = "RETRY"
	OutcomeDeadLetter Outcome = "DEAD_LETTER"
)

// DeliveryOutcome is handed to outcome listeners after a row was reported.
type DeliveryOutcome struct {
	EventID        string    `json:"eventId"`
	NotificationID int64     `json:"notificationId"`
	QueueItemID    int64     `json:"queueItemId"`
	QueueType      QueueType `json:"queueType"`
	Outcome        Outcome   `json:"outcome"`
	RetryAttempts  int       `json:"retryAttempts"`
	Reason         string    `json:"reason,omitempty"`
	ErrorCode      string    `json:"errorCode,omitempty"`
	WorkerID       string    `json:"workerId"`
	OccurredAt     time.Time `json:"occurredAt"`
}
