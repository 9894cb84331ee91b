package configcard

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/wudi/docketkit/scripting"
)

// FieldError is a problem with one submitted value.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string { return e.Field + ": " + e.Message }

// ValidateValues checks submitted values against the card. Keys the card does
// not declare are reported too. The returned slice is empty when every value
// is acceptable.
func ValidateValues(ctx context.Context, card Card, values map[string]any) []FieldError {
	var out []FieldError
	for _, f := range card.Fields {
		v, ok := values[f.FieldKey]
		if !ok || isBlank(v) {
			if f.Required {
				out = append(out, FieldError{f.FieldKey, "is required"})
			}
			continue
		}
		if msg := checkValue(ctx, f, v, values); msg != "" {
			out = append(out, FieldError{f.FieldKey, msg})
		}
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if _, ok := card.Field(k); !ok {
			out = append(out, FieldError{k, "unknown field"})
		}
	}
	return out
}

func checkValue(ctx context.Context, f Field, v any, values map[string]any) string {
	var rules Validation
	if f.Validation != nil {
		rules = *f.Validation
	}
	switch f.FieldType {
	case "text", "textarea":
		s, ok := v.(string)
		if !ok {
			return "must be a string"
		}
		n := utf8.RuneCountInString(s)
		if rules.MinLength != nil && n < *rules.MinLength {
			return fmt.Sprintf("must be at least %d characters", *rules.MinLength)
		}
		if rules.MaxLength != nil && n > *rules.MaxLength {
			return fmt.Sprintf("must be at most %d characters", *rules.MaxLength)
		}
		if rules.Pattern != "" {
			re, err := regexp.Compile(rules.Pattern)
			if err != nil || !re.MatchString(s) {
				return "has an invalid format"
			}
		}
	case "number":
		n, ok := number(v)
		if !ok {
			return "must be a number"
		}
		if rules.Min != nil && n < *rules.Min {
			return fmt.Sprintf("must be at least %g", *rules.Min)
		}
		if rules.Max != nil && n > *rules.Max {
			return fmt.Sprintf("must be at most %g", *rules.Max)
		}
	case "date":
		s, ok := v.(string)
		if !ok {
			return "must be a date"
		}
		if _, err := time.Parse(time.DateOnly, s); err != nil {
			return "must be a date in YYYY-MM-DD form"
		}
	case "boolean":
		if _, ok := v.(bool); !ok {
			return "must be true or false"
		}
	case "select":
		s, ok := v.(string)
		if !ok || !hasOption(f.Options, s) {
			return "is not one of the available options"
		}
	case "multiselect":
		list, ok := v.([]any)
		if !ok {
			return "must be a list"
		}
		for _, item := range list {
			s, ok := item.(string)
			if !ok || !hasOption(f.Options, s) {
				return fmt.Sprintf("option %v is not available", item)
			}
		}
	}
	if rules.Script != "" {
		ok, err := scripting.EvalBool(ctx, rules.Script, map[string]interface{}{"value": v, "values": values})
		if err != nil {
			return "validation script failed: " + err.Error()
		}
		if !ok {
			return "failed custom validation"
		}
	}
	return ""
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	}
	return false
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	}
	return 0, false
}

func hasOption(opts []Option, v string) bool {
	return slices.ContainsFunc(opts, func(o Option) bool { return o.Value == v })
}
