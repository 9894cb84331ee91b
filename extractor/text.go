package extractor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	dateRe        = regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{4})`)
	productCodeRe = regexp.MustCompile(`^[A-Z]{2,4}\d+`)
	temperatureRe = regexp.MustCompile(`(?i)(?:^|[^\w.])(-?\d+(?:\.\d+)?)\s*°?\s*C\b`)
	docketRe      = regexp.MustCompile(`(?i)\b(?:docket|invoice|inv)\s*(?:no\.?|#|number)?\s*[:.]?\s*([A-Z0-9-]*\d[A-Z0-9-]*)`)
)

// DeliveryDate returns the first d/m/yyyy token in text that is a real
// calendar date on or after MinYear, formatted YYYY-MM-DD. Without one it
// returns now's date in UTC.
func (e *Extractor) DeliveryDate(text string, now time.Time) string {
	for _, m := range dateRe.FindAllStringSubmatch(text, -1) {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if year < e.opts.MinYear || month < 1 || month > 12 || day < 1 {
			continue
		}
		t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		if t.Day() != day {
			continue
		}
		return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
	}
	return now.UTC().Format(time.DateOnly)
}

// ItemCount counts product lines: lines starting with a 2-4 letter product
// code followed by digits, or mentioning VEGF. When there are none it counts
// the product keywords that appear anywhere in text.
func (e *Extractor) ItemCount(text string) int {
	count := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.ToUpper(strings.TrimSpace(line))
		if productCodeRe.MatchString(line) || strings.Contains(line, "VEGF") {
			count++
		}
	}
	if count == 0 {
		upper := strings.ToUpper(text)
		for _, w := range e.opts.ProductKeywords {
			if strings.Contains(upper, strings.ToUpper(w)) {
				count++
			}
		}
	}
	return min(count, e.opts.MaxItems)
}

// Temperatures returns every Celsius reading in text in order of
// appearance.
func Temperatures(text string) []float64 {
	var out []float64
	for _, m := range temperatureRe.FindAllStringSubmatch(text, -1) {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

// DocketNumber returns the first docket or invoice reference in text.
func DocketNumber(text string) string {
	m := docketRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}

// ProductType classifies the delivery for temperature thresholds.
func ProductType(text string) string {
	upper := strings.ToUpper(text)
	switch {
	case strings.Contains(upper, "FROZEN"), strings.Contains(upper, "FREEZER"):
		return "frozen"
	case strings.Contains(upper, "CHILLED"), strings.Contains(upper, "REFRIGERATED"),
		strings.Contains(upper, "DAIRY"), strings.Contains(upper, "CHILLER"):
		return "refrigerated"
	}
	return ""
}
