package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRegistry() *TemplateRegistry {
	return &TemplateRegistry{
		Version: "1.0.0",
		Templates: []EmailTemplate{
			{ID: "default", DisplayName: "Default", Subject: "{{type}} notification", Body: "{{message}}"},
			{ID: "fee-reminder", DisplayName: "Fee reminder", Subject: "Fee due", Body: "Pay {{amount}} by {{dueDate}}", IsHTML: true},
		},
	}
}

// ==========================
// Lookup / Validate
// ==========================

func TestLookup(t *testing.T) {
	reg := sampleRegistry()

	tmpl, ok := reg.Lookup("fee-reminder")
	require.True(t, ok)
	assert.Equal(t, "Fee due", tmpl.Subject)
	assert.True(t, tmpl.IsHTML)

	_, ok = reg.Lookup("missing")
	assert.False(t, ok)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *TemplateRegistry)
		wantErr string
	}{
		{name: "valid", mutate: func(r *TemplateRegistry) {}},
		{name: "empty", mutate: func(r *TemplateRegistry) { r.Templates = nil }, wantErr: "no templates"},
		{name: "duplicate id", mutate: func(r *TemplateRegistry) { r.Templates[1].ID = "default" }, wantErr: "duplicate template ID: default"},
		{name: "missing id", mutate: func(r *TemplateRegistry) { r.Templates[0].ID = "" }, wantErr: "missing required field: id"},
		{name: "blank subject", mutate: func(r *TemplateRegistry) { r.Templates[1].Subject = "  " }, wantErr: "fee-reminder missing required field: subject"},
		{name: "blank body", mutate: func(r *TemplateRegistry) { r.Templates[0].Body = "" }, wantErr: "default missing required field: body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := sampleRegistry()
			tt.mutate(reg)
			err := reg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// ==========================
// Render
// ==========================

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		tmpl string
		data map[string]interface{}
		want string
	}{
		{
			name: "replaces known keys",
			tmpl: "Pay {{amount}} by {{dueDate}}",
			data: map[string]interface{}{"amount": "12500", "dueDate": "31 Mar"},
			want: "Pay 12500 by 31 Mar",
		},
		{
			name: "formats non-string values",
			tmpl: "Notification #{{notificationId}}",
			data: map[string]interface{}{"notificationId": int64(42)},
			want: "Notification #42",
		},
		{
			name: "drops unknown placeholders",
			tmpl: "Hello {{name}}, {{message}}",
			data: map[string]interface{}{"message": "results are out"},
			want: "Hello , results are out",
		},
		{
			name: "nil renders empty",
			tmpl: "[{{x}}]",
			data: map[string]interface{}{"x": nil},
			want: "[]",
		},
		{
			name: "unterminated placeholder is left alone",
			tmpl: "broken {{tail",
			data: nil,
			want: "broken {{tail",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.tmpl, tt.data))
		})
	}
}

// ==========================
// Load / Save
// ==========================

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "email-templates.json")

	require.NoError(t, sampleRegistry().Save(path))

	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.Len(t, reg.Templates, 2)
	assert.NoError(t, reg.Validate())
}

func TestLoadRegistry_Errors(t *testing.T) {
	_, err := LoadRegistry(filepath.Join(t.TempDir(), "absent.json"))
	assert.True(t, os.IsNotExist(err))

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0644))
	_, err = LoadRegistry(bad)
	assert.ErrorContains(t, err, "parse registry")
}

func TestShippedRegistryIsValid(t *testing.T) {
	reg, err := LoadRegistry(filepath.Join("..", "..", "configs", "email-templates.json"))
	require.NoError(t, err)
	require.NoError(t, reg.Validate())

	_, ok := reg.Lookup(DefaultTemplateID)
	assert.True(t, ok, "registry must ship a default template")
}
