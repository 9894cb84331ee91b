package compliance

import (
	"sort"
	"time"
)

// RiskLevel classifies a supplier.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Risk grades a supplier from its compliance rate (percent) and average
// delivery temperature.
func Risk(complianceRate, avgTemperature float64) RiskLevel {
	switch {
	case complianceRate < 80 || avgTemperature > 5:
		return RiskHigh
	case complianceRate < 90 || avgTemperature > 3:
		return RiskMedium
	}
	return RiskLow
}

// SupplierDelivery is one delivery attributed to a supplier.
type SupplierDelivery struct {
	Supplier     string
	DeliveredAt  time.Time
	Temperatures []float64
	Compliant    bool
}

// Performance aggregates a supplier's deliveries.
type Performance struct {
	Supplier       string    `json:"supplier"`
	Deliveries     int       `json:"deliveries"`
	ComplianceRate float64   `json:"complianceRate"`
	AvgTemperature float64   `json:"avgTemperature"`
	LastDelivery   time.Time `json:"lastDelivery"`
	Risk           RiskLevel `json:"riskLevel"`
}

// AnalyzeSuppliers groups deliveries by supplier, sorted by delivery count
// descending and then by name.
func AnalyzeSuppliers(deliveries []SupplierDelivery) []Performance {
	type acc struct {
		perf      Performance
		compliant int
		tempSum   float64
		readings  int
	}
	bySupplier := make(map[string]*acc)
	for _, d := range deliveries {
		a, ok := bySupplier[d.Supplier]
		if !ok {
			a = &acc{perf: Performance{Supplier: d.Supplier}}
			bySupplier[d.Supplier] = a
		}
		a.perf.Deliveries++
		if d.Compliant {
			a.compliant++
		}
		for _, c := range d.Temperatures {
			a.tempSum += c
			a.readings++
		}
		if d.DeliveredAt.After(a.perf.LastDelivery) {
			a.perf.LastDelivery = d.DeliveredAt
		}
	}

	out := make([]Performance, 0, len(bySupplier))
	for _, a := range bySupplier {
		p := a.perf
		p.ComplianceRate = 100 * float64(a.compliant) / float64(p.Deliveries)
		if a.readings > 0 {
			p.AvgTemperature = a.tempSum / float64(a.readings)
		}
		p.Risk = Risk(p.ComplianceRate, p.AvgTemperature)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Deliveries != out[j].Deliveries {
			return out[i].Deliveries > out[j].Deliveries
		}
		return out[i].Supplier < out[j].Supplier
	})
	return out
}
