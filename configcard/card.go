// Package configcard manages the admin configuration of a company: ConfigCard
// form definitions, departments and job titles.
package configcard

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// Security levels, categories, layouts and field types accepted in a card.
var (
	SecurityLevels = []string{"low", "medium", "high"}
	Categories     = []string{"admin", "user", "reporting", "compliance"}
	Layouts        = []string{"single-column", "two-column", "grid"}
	FieldTypes     = []string{"text", "number", "date", "select", "multiselect", "boolean", "textarea"}
)

// ErrInvalidDefinition reports a malformed card definition.
var ErrInvalidDefinition = errors.New("invalid configcard definition")

// Option is one choice of a select or multiselect field.
type Option struct {
	Value     string `json:"value"`
	Label     string `json:"label"`
	IsDefault bool   `json:"isDefault,omitempty"`
}

// Validation constrains a field value. Script is a JavaScript expression
// with the submitted value bound as `value`; it must evaluate to true.
type Validation struct {
	MinLength *int     `json:"minLength,omitempty"`
	MaxLength *int     `json:"maxLength,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
	Script    string   `json:"script,omitempty"`
}

// Field is one input of a card.
type Field struct {
	ID           string      `json:"id"`
	FieldKey     string      `json:"fieldKey"`
	Label        string      `json:"label"`
	Description  string      `json:"description,omitempty"`
	FieldType    string      `json:"fieldType"`
	Required     bool        `json:"required"`
	Options      []Option    `json:"options,omitempty"`
	DefaultValue any         `json:"defaultValue,omitempty"`
	Validation   *Validation `json:"validation,omitempty"`
	DisplayOrder int         `json:"displayOrder"`
}

// Card is a configurable form shown in the admin screens.
type Card struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	SecurityLevel string  `json:"securityLevel"`
	Category      string  `json:"category"`
	Layout        string  `json:"layout"`
	Enabled       bool    `json:"enabled"`
	Fields        []Field `json:"fields"`
}

// Field returns the field with the given key.
func (c Card) Field(key string) (Field, bool) {
	for _, f := range c.Fields {
		if f.FieldKey == key {
			return f, true
		}
	}
	return Field{}, false
}

// Validate checks a set of card definitions and returns every problem found,
// joined, each wrapping ErrInvalidDefinition.
func Validate(cards []Card) error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidDefinition, fmt.Sprintf(format, args...)))
	}
	ids := map[string]bool{}
	for i, c := range cards {
		where := fmt.Sprintf("card %d", i)
		if c.ID != "" {
			where = fmt.Sprintf("card %q", c.ID)
		}
		switch {
		case strings.TrimSpace(c.ID) == "":
			bad("%s: id is required", where)
		case ids[c.ID]:
			bad("%s: duplicate id", where)
		}
		ids[c.ID] = true
		if strings.TrimSpace(c.Name) == "" || strings.TrimSpace(c.Title) == "" {
			bad("%s: name and title are required", where)
		}
		if !slices.Contains(SecurityLevels, c.SecurityLevel) {
			bad("%s: security level %q", where, c.SecurityLevel)
		}
		if !slices.Contains(Categories, c.Category) {
			bad("%s: category %q", where, c.Category)
		}
		if !slices.Contains(Layouts, c.Layout) {
			bad("%s: layout %q", where, c.Layout)
		}
		keys := map[string]bool{}
		for _, f := range c.Fields {
			fw := fmt.Sprintf("%s field %q", where, f.FieldKey)
			switch {
			case strings.TrimSpace(f.FieldKey) == "":
				bad("%s: field key is required", where)
			case keys[f.FieldKey]:
				bad("%s: duplicate field key", fw)
			}
			keys[f.FieldKey] = true
			if !slices.Contains(FieldTypes, f.FieldType) {
				bad("%s: field type %q", fw, f.FieldType)
			}
			if (f.FieldType == "select" || f.FieldType == "multiselect") && len(f.Options) == 0 {
				bad("%s: options are required", fw)
			}
			if v := f.Validation; v != nil {
				if v.Pattern != "" {
					if _, err := regexp.Compile(v.Pattern); err != nil {
						bad("%s: pattern: %v", fw, err)
					}
				}
				if v.Min != nil && v.Max != nil && *v.Min > *v.Max {
					bad("%s: min above max", fw)
				}
				if v.MinLength != nil && v.MaxLength != nil && *v.MinLength > *v.MaxLength {
					bad("%s: minLength above maxLength", fw)
				}
			}
		}
	}
	return errors.Join(errs...)
}

// DefaultCards returns the cards a company starts with.
func DefaultCards() []Card {
	return []Card{
		{
			ID:            "user-profile",
			Name:          "User Profile Configuration",
			Title:         "User Profile Settings",
			Description:   "Configure user profile fields and requirements",
			SecurityLevel: "low",
			Category:      "user",
			Layout:        "two-column",
			Enabled:       true,
			Fields: []Field{
				{ID: "full_name", FieldKey: "full_name", Label: "Full Name", FieldType: "text", Required: true, DisplayOrder: 1,
					Validation: &Validation{MinLength: intPtr(2), MaxLength: intPtr(100)}},
				{ID: "phone", FieldKey: "phone", Label: "Phone Number", FieldType: "text", DisplayOrder: 2,
					Validation: &Validation{Pattern: `^[+]?[0-9\s\-()]+$`}},
				{ID: "department", FieldKey: "department", Label: "Department", FieldType: "select", Required: true, DisplayOrder: 3,
					Options: []Option{
						{Value: "kitchen", Label: "Kitchen", IsDefault: true},
						{Value: "front_of_house", Label: "Front of House"},
						{Value: "management", Label: "Management"},
						{Value: "cleaning", Label: "Cleaning"},
					}},
			},
		},
		{
			ID:            "delivery-processing",
			Name:          "Delivery Processing Configuration",
			Title:         "Delivery Processing Settings",
			Description:   "Configure delivery document processing and validation",
			SecurityLevel: "medium",
			Category:      "compliance",
			Layout:        "single-column",
			Enabled:       true,
			Fields: []Field{
				{ID: "temperature_threshold", FieldKey: "temperature_threshold", Label: "Temperature Threshold (°C)",
					FieldType: "number", Required: true, DefaultValue: float64(4), DisplayOrder: 1,
					Validation: &Validation{Min: floatPtr(-20), Max: floatPtr(10)}},
				{ID: "auto_approve", FieldKey: "auto_approve", Label: "Auto-approve compliant deliveries",
					FieldType: "boolean", DefaultValue: false, DisplayOrder: 2},
				{ID: "required_fields", FieldKey: "required_fields", Label: "Required Document Fields",
					FieldType: "multiselect", Required: true, DisplayOrder: 3,
					Options: []Option{
						{Value: "supplier_name", Label: "Supplier Name", IsDefault: true},
						{Value: "delivery_date", Label: "Delivery Date", IsDefault: true},
						{Value: "temperature", Label: "Temperature", IsDefault: true},
						{Value: "product_list", Label: "Product List"},
						{Value: "signature", Label: "Signature"},
					}},
			},
		},
		{
			ID:            "team-management",
			Name:          "Team Management Configuration",
			Title:         "Team Management Settings",
			Description:   "Configure team roles and permissions",
			SecurityLevel: "high",
			Category:      "admin",
			Layout:        "grid",
			Enabled:       true,
			Fields: []Field{
				{ID: "default_role", FieldKey: "default_role", Label: "Default Role for New Users",
					FieldType: "select", Required: true, DisplayOrder: 1,
					Options: []Option{
						{Value: "staff", Label: "Staff", IsDefault: true},
						{Value: "manager", Label: "Manager"},
						{Value: "admin", Label: "Admin"},
					}},
				{ID: "invitation_expiry", FieldKey: "invitation_expiry", Label: "Invitation Expiry (days)",
					FieldType: "number", Required: true, DefaultValue: float64(7), DisplayOrder: 2,
					Validation: &Validation{Min: floatPtr(1), Max: floatPtr(30)}},
			},
		},
	}
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }
