package champion

import (
	"time"

	"github.com/wudi/docketkit/store"
)

// Progress summarises how far a champion's evaluation has come.
type Progress struct {
	DepartmentsConfigured int  `json:"departmentsConfigured"`
	JobTitlesConfigured   int  `json:"jobTitlesConfigured"`
	TeamMembersAdded      int  `json:"teamMembersAdded"`
	ConfigurationComplete bool `json:"configurationComplete"`
	OwnerInvitationSent   bool `json:"ownerInvitationSent"`
	OwnerResponded        bool `json:"ownerResponded"`
	OwnerApproved         bool `json:"ownerApproved"`
	SuccessScore          int  `json:"successScore"`
	DaysActive            int  `json:"daysActive"`
}

// NewProgress derives progress metrics from in and the stored score.
func NewProgress(in Inputs, score int, now time.Time) Progress {
	p := Progress{
		DepartmentsConfigured: in.Departments,
		JobTitlesConfigured:   in.JobTitles,
		TeamMembersAdded:      in.Members,
		ConfigurationComplete: in.Departments >= 3 && in.JobTitles >= 4,
		SuccessScore:          score,
	}
	if inv := in.Invitation; inv != nil {
		p.OwnerInvitationSent = true
		p.OwnerResponded = inv.Status != store.InvitePending
		p.OwnerApproved = inv.Status == store.InviteAccepted
		p.DaysActive = int(now.Sub(inv.CreatedAt) / (24 * time.Hour))
	}
	return p
}

// Achievement is a milestone the champion has reached.
type Achievement struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	EarnedAt    time.Time `json:"earnedAt"`
	Value       string    `json:"value"`
}

// Achievements lists the milestones reached in p.
func Achievements(p Progress, now time.Time) []Achievement {
	out := []Achievement{}
	add := func(ok bool, id, title, desc, value string) {
		if ok {
			out = append(out, Achievement{ID: id, Title: title, Description: desc, EarnedAt: now, Value: value})
		}
	}
	add(p.DepartmentsConfigured >= 3, "departments_configured", "Department Architect", "Configured business departments", "Professional recognition")
	add(p.JobTitlesConfigured >= 4, "job_titles_configured", "Team Builder", "Defined job titles and roles", "Leadership credential")
	add(p.OwnerInvitationSent, "owner_invited", "Champion Advocate", "Successfully invited business owner", "$50 account credit")
	add(p.SuccessScore >= 90, "excellence_score", "Excellence Champion", "Achieved 90+ success score", "Priority support access")
	add(p.OwnerApproved, "successful_handoff", "Success Story", "Owner approved and activated", "$150 bonus + case study feature")
	return out
}

// Reward is something a champion can claim.
type Reward struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Value       any    `json:"value"`
	Claimable   bool   `json:"claimable"`
	Claimed     bool   `json:"claimed,omitempty"`
}

// Rewards lists the rewards p qualifies for. Rewards already in claimed are
// reported but not claimable.
func Rewards(p Progress, claimed map[string]time.Time) []Reward {
	out := []Reward{}
	add := func(ok bool, r Reward) {
		if !ok {
			return
		}
		_, r.Claimed = claimed[r.ID]
		r.Claimable = !r.Claimed
		out = append(out, r)
	}
	add(p.ConfigurationComplete && !p.OwnerInvitationSent, Reward{
		ID: "setup_complete_bonus", Title: "Setup Completion Bonus",
		Description: "$25 account credit for completing configuration", Type: "credit", Value: 25,
	})
	add(p.DaysActive <= 7 && p.SuccessScore >= 75, Reward{
		ID: "early_adopter", Title: "Early Adopter Badge",
		Description: "Completed high-quality setup within first week", Type: "badge", Value: "Professional recognition",
	})
	add(p.SuccessScore >= 95, Reward{
		ID: "perfection_bonus", Title: "Perfection Bonus",
		Description: "Achieved near-perfect evaluation setup", Type: "credit", Value: 50,
	})
	return out
}

// Incentives is the champion's incentive overview.
type Incentives struct {
	ImmediateValue   map[string]any `json:"immediateValue"`
	Achievements     []Achievement  `json:"achievements"`
	AvailableRewards []Reward       `json:"availableRewards"`
	PostHandoffValue map[string]any `json:"postHandoffValue"`
	ProgressMetrics  Progress       `json:"progressMetrics"`
}

func buildIncentives(p Progress, claimed map[string]time.Time, now time.Time) Incentives {
	pick := func(ok bool, yes, no string) string {
		if ok {
			return yes
		}
		return no
	}
	return Incentives{
		ImmediateValue: map[string]any{
			"earlyAccess":             true,
			"professionalDevelopment": pick(p.ConfigurationComplete, "Compliance Certification Credits Available", "Complete setup to unlock"),
			"personalBrand":           pick(p.OwnerApproved, "Featured Case Study Eligible", "Owner approval needed"),
		},
		Achievements:     Achievements(p, now),
		AvailableRewards: Rewards(p, claimed),
		PostHandoffValue: map[string]any{
			"retainedPrivileges": pick(p.OwnerApproved, "Power User Status Granted", "Available after handoff"),
			"prioritySupport":    "Direct Product Team Access",
		},
		ProgressMetrics: p,
	}
}
