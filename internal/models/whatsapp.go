package models

import "time"

// WhatsappAlert describes a provider-side WhatsApp template. Alerts are
// deactivated, never deleted.
type WhatsappAlert struct {
	ID           int64           `json:"id" gorm:"primaryKey"`
	Name         string          `json:"name" gorm:"type:varchar(255);not null;uniqueIndex"`
	Template     string          `json:"template" gorm:"type:varchar(255);not null;uniqueIndex"`
	PreviewImage *string         `json:"previewImage,omitempty" gorm:"type:text"`
	IsActive     bool            `json:"isActive" gorm:"not null;default:true"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	Fields       []WhatsappField `json:"fields,omitempty" gorm:"-"`
}

func (WhatsappAlert) TableName() string { return "whatsapp_alerts" }

// WhatsappField is one named, ordered placeholder of an alert's template.
// Only fields with Flag set contribute positional body values.
type WhatsappField struct {
	ID              int64  `json:"id" gorm:"primaryKey"`
	WhatsappAlertID int64  `json:"whatsappAlertId" gorm:"not null;uniqueIndex:uq_whatsapp_fields_alert_sequence,priority:1"`
	Name            string `json:"name" gorm:"type:varchar(255);not null"`
	Sequence        int    `json:"sequence" gorm:"not null;uniqueIndex:uq_whatsapp_fields_alert_sequence,priority:2"`
	Flag            bool   `json:"flag" gorm:"not null;default:false"`
	Frequency       int    `json:"frequency" gorm:"not null;default:1"`
}

func (WhatsappField) TableName() string { return "whatsapp_fields" }

// Slots returns how many body values the field contributes.
func (f WhatsappField) Slots() int {
	if f.Frequency < 1 {
		return 1
	}
	return f.Frequency
}
