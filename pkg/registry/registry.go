package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultTemplateID is used when neither the content row nor the event
// names a template.
const DefaultTemplateID = "default"

func LoadRegistry(path string) (*TemplateRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg TemplateRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}
	return &reg, nil
}

// Save writes the registry as indented JSON, creating parent directories.
func (r *TemplateRegistry) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}

func (r *TemplateRegistry) Lookup(id string) (*EmailTemplate, bool) {
	for i := range r.Templates {
		if r.Templates[i].ID == id {
			return &r.Templates[i], true
		}
	}
	return nil, false
}

// Validate checks ids are present and unique and that every template can
// produce a subject and a body.
func (r *TemplateRegistry) Validate() error {
	if len(r.Templates) == 0 {
		return fmt.Errorf("registry contains no templates")
	}

	ids := make(map[string]bool, len(r.Templates))
	for _, t := range r.Templates {
		if t.ID == "" {
			return fmt.Errorf("template missing required field: id")
		}
		if ids[t.ID] {
			return fmt.Errorf("duplicate template ID: %s", t.ID)
		}
		ids[t.ID] = true

		if strings.TrimSpace(t.Subject) == "" {
			return fmt.Errorf("template %s missing required field: subject", t.ID)
		}
		if strings.TrimSpace(t.Body) == "" {
			return fmt.Errorf("template %s missing required field: body", t.ID)
		}
	}
	return nil
}

// Render replaces {{key}} placeholders with values from data. Placeholders
// without a value are removed.
func Render(tmpl string, data map[string]interface{}) string {
	result := tmpl

	for k, v := range data {
		value := ""
		switch val := v.(type) {
		case string:
			value = val
		case nil:
		default:
			value = fmt.Sprintf("%v", val)
		}
		result = strings.ReplaceAll(result, "{{"+k+"}}", value)
	}

	for {
		start := strings.Index(result, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			break
		}
		end += start + 2
		result = result[:start] + result[end:]
	}

	return result
}
