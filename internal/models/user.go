package models

// User is the read model of an ERP user as seen by delivery routing. The
// users table is owned by the ERP and is never migrated here.
type User struct {
	ID                       int64  `json:"id"`
	Name                     string `json:"name"`
	Email                    string `json:"email,omitempty"`
	Phone                    string `json:"phone,omitempty"`
	WhatsappNumber           string `json:"whatsappNumber,omitempty"`
	Type                     string `json:"type,omitempty"`
	IsActive                 bool   `json:"isActive"`
	IsSuspended              bool   `json:"isSuspended"`
	SendStagingNotifications bool   `json:"sendStagingNotifications"`
}

// WhatsappContact prefers the dedicated WhatsApp number over the phone.
func (u User) WhatsappContact() string {
	if u.WhatsappNumber != "" {
		return u.WhatsappNumber
	}
	return u.Phone
}

// DeliveryJob is everything a channel handler needs to deliver one queue item.
type DeliveryJob struct {
	Item         QueueItem             `json:"item"`
	Notification Notification          `json:"notification"`
	Contents     []NotificationContent `json:"contents"`
	Event        *NotificationEvent    `json:"event,omitempty"`
	Alert        *WhatsappAlert        `json:"alert,omitempty"`
	User         *User                 `json:"user,omitempty"`
}
