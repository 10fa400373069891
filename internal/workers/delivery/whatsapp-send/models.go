package whatsappsend

// MessageRequest is the Interakt template message body.
type MessageRequest struct {
	CountryCode string          `json:"countryCode"`
	PhoneNumber string          `json:"phoneNumber"`
	Type        string          `json:"type"`
	Template    TemplatePayload `json:"template"`
}

type TemplatePayload struct {
	Name         string   `json:"name"`
	LanguageCode string   `json:"languageCode"`
	BodyValues   []string `json:"bodyValues"`
	HeaderValues []string `json:"headerValues,omitempty"`
}

// messageEnvelope is the optional JSON shape of a notification message sent
// without a linked alert.
type messageEnvelope struct {
	BodyValues             []interface{} `json:"bodyValues"`
	WhatsappHeaderMediaURL string        `json:"whatsappHeaderMediaUrl"`
	NotificationMaster     struct {
		Template string `json:"template"`
	} `json:"notificationMaster"`
}
