package inapppush

import "time"

// Payload is the message published on a user's notification channel.
type Payload struct {
	NotificationID int64     `json:"notificationId"`
	QueueItemID    int64     `json:"queueItemId"`
	Variant        string    `json:"variant"`
	Type           string    `json:"type"`
	Message        string    `json:"message"`
	Contents       []string  `json:"contents,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}
