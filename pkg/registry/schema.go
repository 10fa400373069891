package registry

// TemplateRegistry is the on-disk catalogue of email templates keyed by
// the email_template names stored on events and content rows.
type TemplateRegistry struct {
	Version     string          `json:"version"`
	LastUpdated string          `json:"lastUpdated"`
	Templates   []EmailTemplate `json:"templates"`
}

type EmailTemplate struct {
	ID          string                 `json:"id"`
	DisplayName string                 `json:"displayName"`
	Description string                 `json:"description"`
	Subject     string                 `json:"subject"`
	Body        string                 `json:"body"`
	IsHTML      bool                   `json:"isHtml"`
	DataSchema  map[string]interface{} `json:"dataSchema,omitempty"`
	Tags        []string               `json:"tags"`
}
