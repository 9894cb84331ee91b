package extractor

import (
	"strings"
	"time"
)

// Supplier maps a case-insensitive substring of the docket text to the
// supplier name stored on the delivery record.
type Supplier struct {
	Match string `yaml:"match"`
	Name  string `yaml:"name"`
}

// Options tunes the heuristics applied to OCR text.
type Options struct {
	// Suppliers is checked in order; the first match wins.
	Suppliers []Supplier `yaml:"suppliers"`
	// DefaultSupplier is used when nothing matches or the text is too short
	// to trust.
	DefaultSupplier string `yaml:"default_supplier"`
	// MinTextLength below which the OCR result is considered unreliable for
	// supplier detection.
	MinTextLength int `yaml:"min_text_length"`
	// MinYear rejects dates read from stale or garbled text.
	MinYear int `yaml:"min_year"`
	// MaxItems caps the item count.
	MaxItems int `yaml:"max_items"`
	// ProductKeywords are counted when no product-code lines are found.
	ProductKeywords []string `yaml:"product_keywords"`
}

// DefaultOptions returns the heuristics tuned for the suppliers seen on
// hospitality dockets.
func DefaultOptions() Options {
	return Options{
		Suppliers: []Supplier{
			{Match: "SERVICE FOODS", Name: "SERVICE FOODS"},
			{Match: "GILMOUR", Name: "Gilmours"},
			{Match: "FRESH DIRECT", Name: "Fresh Direct"},
		},
		DefaultSupplier: "SERVICE FOODS",
		MinTextLength:   100,
		MinYear:         2020,
		MaxItems:        50,
		ProductKeywords: []string{"TOMATO", "LETTUCE", "MEAT", "MILK", "BREAD", "EGGS"},
	}
}

// Fields holds what could be read off a docket.
type Fields struct {
	Supplier     string
	DeliveryDate string // YYYY-MM-DD
	ItemCount    int
	Temperatures []float64
	DocketNumber string
	ProductType  string // frozen, refrigerated or empty
}

// Extractor applies Options to OCR text.
type Extractor struct {
	opts Options
}

// New returns an Extractor. Zero-valued options fall back to the defaults.
func New(opts Options) *Extractor {
	def := DefaultOptions()
	if len(opts.Suppliers) == 0 {
		opts.Suppliers = def.Suppliers
	}
	if opts.DefaultSupplier == "" {
		opts.DefaultSupplier = def.DefaultSupplier
	}
	if opts.MinTextLength == 0 {
		opts.MinTextLength = def.MinTextLength
	}
	if opts.MinYear == 0 {
		opts.MinYear = def.MinYear
	}
	if opts.MaxItems == 0 {
		opts.MaxItems = def.MaxItems
	}
	if len(opts.ProductKeywords) == 0 {
		opts.ProductKeywords = def.ProductKeywords
	}
	return &Extractor{opts: opts}
}

// Extract reads every field from text. now supplies the fallback delivery
// date.
func (e *Extractor) Extract(text string, now time.Time) Fields {
	return Fields{
		Supplier:     e.Supplier(text),
		DeliveryDate: e.DeliveryDate(text, now),
		ItemCount:    e.ItemCount(text),
		Temperatures: Temperatures(text),
		DocketNumber: DocketNumber(text),
		ProductType:  ProductType(text),
	}
}

// Extract runs the default heuristics.
func Extract(text string, now time.Time) Fields {
	return New(Options{}).Extract(text, now)
}

// Supplier returns the first configured supplier found in text.
func (e *Extractor) Supplier(text string) string {
	if len(text) < e.opts.MinTextLength {
		return e.opts.DefaultSupplier
	}
	upper := strings.ToUpper(text)
	for _, s := range e.opts.Suppliers {
		if s.Match != "" && strings.Contains(upper, strings.ToUpper(s.Match)) {
			return s.Name
		}
	}
	return e.opts.DefaultSupplier
}
