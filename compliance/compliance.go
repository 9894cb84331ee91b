// Package compliance checks delivery temperatures against food-safety
// thresholds and summarises supplier performance.
package compliance

import (
	"context"
	"fmt"
)

// Severity grades a single temperature reading.
type Severity string

const (
	SeverityNone     Severity = ""
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) rank() int {
	switch s {
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	}
	return 0
}

// AtLeast reports whether s is as severe as other.
func (s Severity) AtLeast(other Severity) bool { return s.rank() >= other.rank() }

// Thresholds are the lowest readings (°C) at which each severity applies.
type Thresholds struct {
	Medium   float64 `yaml:"medium"`
	High     float64 `yaml:"high"`
	Critical float64 `yaml:"critical"`
}

// Rules select thresholds by product type.
type Rules struct {
	Default   Thresholds            `yaml:"default"`
	ByProduct map[string]Thresholds `yaml:"by_product"`
}

// DefaultRules returns the thresholds for frozen, refrigerated and other
// goods.
func DefaultRules() Rules {
	return Rules{
		Default: Thresholds{Medium: 5, High: 10, Critical: 20},
		ByProduct: map[string]Thresholds{
			"frozen":       {Medium: -15, High: -10, Critical: 0},
			"refrigerated": {Medium: 5, High: 8, Critical: 15},
		},
	}
}

// For returns the thresholds applied to productType.
func (r Rules) For(productType string) Thresholds {
	if t, ok := r.ByProduct[productType]; ok {
		return t
	}
	return r.Default
}

// Classify grades one reading for productType.
func (r Rules) Classify(productType string, celsius float64) Severity {
	t := r.For(productType)
	switch {
	case celsius >= t.Critical:
		return SeverityCritical
	case celsius >= t.High:
		return SeverityHigh
	case celsius >= t.Medium:
		return SeverityMedium
	}
	return SeverityNone
}

// Violation represents one out-of-range reading.
type Violation struct {
	Code        string
	Description string
	Location    string
	Reading     float64
	Threshold   float64
	Severity    Severity
}

// Report details compliance status of one delivery.
type Report struct {
	Compliant   bool
	ProductType string
	Violations  []Violation
}

// Delivery is the part of a delivery record compliance looks at.
type Delivery struct {
	ProductType  string
	Temperatures []float64
}

// Validator checks a delivery against a rule set.
type Validator interface {
	Validate(ctx context.Context, d Delivery) (*Report, error)
}

// Evaluate returns a report with one violation per reading at medium
// severity or above. A delivery without readings is compliant.
func (r Rules) Evaluate(d Delivery) *Report {
	rep := &Report{Compliant: true, ProductType: d.ProductType}
	t := r.For(d.ProductType)
	for i, c := range d.Temperatures {
		sev := r.Classify(d.ProductType, c)
		if sev == SeverityNone {
			continue
		}
		threshold := t.Medium
		switch sev {
		case SeverityHigh:
			threshold = t.High
		case SeverityCritical:
			threshold = t.Critical
		}
		rep.Violations = append(rep.Violations, Violation{
			Code:        "temperature_" + string(sev),
			Description: fmt.Sprintf("temperature %.1f°C at or above %s limit %.1f°C", c, sev, threshold),
			Location:    fmt.Sprintf("reading %d", i+1),
			Reading:     c,
			Threshold:   threshold,
			Severity:    sev,
		})
	}
	rep.Compliant = len(rep.Violations) == 0
	return rep
}

// Validate implements Validator.
func (r Rules) Validate(ctx context.Context, d Delivery) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.Evaluate(d), nil
}
