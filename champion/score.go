// Package champion scores a champion's evaluation of the product and manages
// the incentives and owner hand-off that follow it.
package champion

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/wudi/docketkit/store"
)

// Maximum points of each score component.
const (
	MaxConfiguration = 40
	MaxValue         = 30
	MaxReadiness     = 30
)

// Inputs is everything the success score is computed from.
type Inputs struct {
	Departments int
	JobTitles   int
	Members     int
	// Invitation is the champion's latest owner invitation, if any.
	Invitation *store.OwnerInvitation
}

// Component is one scored part of the success score.
type Component struct {
	Score      int `json:"score"`
	MaxScore   int `json:"maxScore"`
	Percentage int `json:"percentage"`
}

func component(score, maxScore int) Component {
	return Component{Score: score, MaxScore: maxScore, Percentage: int(math.Round(float64(score) / float64(maxScore) * 100))}
}

// Breakdown splits the total score into its components.
type Breakdown struct {
	ConfigurationQuality Component `json:"configurationQuality"`
	ValueArticulation    Component `json:"valueArticulation"`
	ReadinessIndicators  Component `json:"readinessIndicators"`
}

// Score is a computed success score.
type Score struct {
	Total           int       `json:"score"`
	Breakdown       Breakdown `json:"breakdown"`
	Recommendations []string  `json:"recommendations"`
	Guidance        string    `json:"guidance"`
}

// Compute derives the success score from in.
func Compute(in Inputs) Score {
	cfg := configurationQuality(in)
	val := valueArticulation(in.Invitation)
	ready := readiness(in.Invitation)
	total := min(100, cfg+val+ready)
	recs := recommendations(cfg, val, ready)
	return Score{
		Total: total,
		Breakdown: Breakdown{
			ConfigurationQuality: component(cfg, MaxConfiguration),
			ValueArticulation:    component(val, MaxValue),
			ReadinessIndicators:  component(ready, MaxReadiness),
		},
		Recommendations: recs,
		Guidance:        guidance(total, recs),
	}
}

func configurationQuality(in Inputs) int {
	score := 0
	if in.Departments >= 3 {
		score += 10
	}
	if in.Departments >= 5 {
		score += 5
	}
	if in.JobTitles >= 4 {
		score += 10
	}
	if in.JobTitles >= 7 {
		score += 5
	}
	if in.Members >= 2 {
		score += 5
	}
	if in.Members >= 4 {
		score += 5
	}
	return min(MaxConfiguration, score)
}

func valueArticulation(inv *store.OwnerInvitation) int {
	if inv == nil {
		return 0
	}
	score := 0
	if len(strings.TrimSpace(inv.EvaluationMessage)) > 50 {
		score += 10
	}
	summary := decodeSummary(inv.EvaluationSummary)
	if inv.IncludeROIData && len(summary) > 0 {
		score += 10
	}
	if truthy(summary["configurationProgress"]) && truthy(summary["estimatedValue"]) && truthy(summary["readinessScore"]) {
		score += 10
	}
	return min(MaxValue, score)
}

func readiness(inv *store.OwnerInvitation) int {
	if inv == nil {
		return 0
	}
	score := 10
	if inv.OwnerName != "" && inv.Email != "" {
		score += 5
	}
	if strings.TrimSpace(inv.Timeline) != "" {
		score += 5
	}
	if inv.Status == store.InvitePending {
		score += 5
	}
	return min(MaxReadiness, score)
}

func decodeSummary(raw json.RawMessage) map[string]any {
	var m map[string]any
	if len(raw) == 0 || json.Unmarshal(raw, &m) != nil {
		return nil
	}
	return m
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	}
	return true
}

func recommendations(cfg, val, ready int) []string {
	recs := []string{}
	if cfg < 30 {
		if cfg < 15 {
			recs = append(recs, "Add more departments to better represent your business structure (+15pts)")
		}
		if cfg < 25 {
			recs = append(recs, "Define additional job titles and assign security levels (+10pts)")
		}
		recs = append(recs, "Invite more team members to demonstrate real-world usage (+5pts)")
	}
	if val < 25 {
		if val < 10 {
			recs = append(recs, "Write a personal evaluation message for the owner (+10pts)")
		}
		if val < 20 {
			recs = append(recs, "Enable ROI data in your owner invitation (+10pts)")
		}
		recs = append(recs, "Complete your business configuration to improve evaluation summary (+5pts)")
	}
	if ready < 25 {
		if ready < 10 {
			recs = append(recs, "Draft and send your owner invitation (+15pts)")
		}
		if ready < 20 {
			recs = append(recs, "Complete owner profile information (+5pts)")
		}
		recs = append(recs, "Set a decision timeline with your owner (+5pts)")
	}
	return recs
}

func guidance(total int, recs []string) string {
	switch {
	case total >= 90:
		return "Excellent setup! You're ready to invite the owner with confidence. Your configuration demonstrates clear value."
	case total >= 75:
		return "Almost ready! Your setup looks great. Complete the remaining items for maximum impact."
	case total >= 60:
		return fmt.Sprintf("Good progress! Your success score: %d/100. Focus on: %s", total, strings.Join(recs[:min(2, len(recs))], ", "))
	default:
		return fmt.Sprintf("Your success score: %d/100. Improve by: %s", total, strings.Join(recs[:min(3, len(recs))], ", "))
	}
}
