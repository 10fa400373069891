// Package render turns WhatsApp alert field layouts and caller values into
// the positional body arguments sent to the provider.
package render

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	apperrors "academic360-notifications/internal/common/errors"
	"academic360-notifications/internal/models"
)

var (
	ErrDuplicateSequence = errors.New("duplicate whatsapp field sequence")
	ErrMissingField      = errors.New("missing whatsapp field value")
	ErrUnknownField      = errors.New("content references an unknown whatsapp field")
)

// Argument is one positional body value and the field slot it fills.
type Argument struct {
	FieldID  int64  `json:"fieldId"`
	Name     string `json:"name"`
	Sequence int    `json:"sequence"`
	Value    string `json:"value"`
}

// SortFields returns a copy of fields ordered by sequence. Two fields sharing
// a sequence make the layout ambiguous and are rejected.
func SortFields(fields []models.WhatsappField) ([]models.WhatsappField, error) {
	sorted := make([]models.WhatsappField, len(fields))
	copy(sorted, fields)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Sequence < sorted[j].Sequence
	})
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Sequence == sorted[i-1].Sequence {
			return nil, fmt.Errorf("%w: %d (fields %q and %q)",
				ErrDuplicateSequence, sorted[i].Sequence, sorted[i-1].Name, sorted[i].Name)
		}
	}
	return sorted, nil
}

// BuildArguments renders the argument list for an alert from named values.
// Fields without the flag are skipped; every flagged field must receive at
// least one non-blank value and contributes up to its frequency.
func BuildArguments(fields []models.WhatsappField, values map[string][]string) ([]Argument, error) {
	sorted, err := SortFields(fields)
	if err != nil {
		return nil, err
	}

	known := make(map[string]struct{}, len(sorted))
	for _, f := range sorted {
		known[f.Name] = struct{}{}
	}
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, ok := known[name]; !ok {
			return nil, fmt.Errorf("%w: %q is not defined on the alert", ErrMissingField, name)
		}
	}

	var args []Argument
	for _, f := range sorted {
		if !f.Flag {
			continue
		}
		vals := nonBlank(values[f.Name])
		if len(vals) == 0 {
			return nil, fmt.Errorf("%w: %q (sequence %d)", ErrMissingField, f.Name, f.Sequence)
		}
		if n := f.Slots(); len(vals) > n {
			vals = vals[:n]
		}
		for _, v := range vals {
			args = append(args, Argument{
				FieldID:  f.ID,
				Name:     f.Name,
				Sequence: f.Sequence,
				Value:    v,
			})
		}
	}
	return args, nil
}

// BodyValues rebuilds the positional list on the delivery side from stored
// content rows. Rows carrying a field id are consumed per field in row id
// order. Every flagged field must yield at least one non-blank value.
func BodyValues(fields []models.WhatsappField, contents []models.NotificationContent) ([]string, error) {
	sorted, err := SortFields(fields)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]models.WhatsappField, len(sorted))
	for _, f := range sorted {
		byID[f.ID] = f
	}

	rows := make([]models.NotificationContent, 0, len(contents))
	for _, c := range contents {
		if c.WhatsappFieldID == nil {
			continue
		}
		if _, ok := byID[*c.WhatsappFieldID]; !ok {
			return nil, fmt.Errorf("%w: content %d field %d", ErrUnknownField, c.ID, *c.WhatsappFieldID)
		}
		rows = append(rows, c)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })

	perField := make(map[int64][]string)
	for _, c := range rows {
		perField[*c.WhatsappFieldID] = append(perField[*c.WhatsappFieldID], c.Content)
	}

	var (
		out      []string
		expected int
		provided int
	)
	for _, f := range sorted {
		if !f.Flag {
			continue
		}
		expected++
		vals := perField[f.ID]
		if n := f.Slots(); len(vals) > n {
			vals = vals[:n]
		}
		if len(nonBlank(vals)) > 0 {
			provided++
		}
		out = append(out, vals...)
	}

	if expected > 0 && provided < expected {
		return nil, apperrors.NewMissingBodyValuesError(expected, provided)
	}
	return out, nil
}

// Values flattens arguments into the positional value list.
func Values(args []Argument) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = a.Value
	}
	return out
}

// ConfigError maps renderer errors onto the non-retryable field config error.
// Errors of any other kind are returned unchanged.
func ConfigError(alertID int64, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrDuplicateSequence) || errors.Is(err, ErrMissingField) || errors.Is(err, ErrUnknownField) {
		return apperrors.NewWhatsappFieldConfigError(alertID, err.Error())
	}
	return err
}

func nonBlank(vals []string) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
