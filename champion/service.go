package champion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/wudi/docketkit/account"
	"github.com/wudi/docketkit/audit"
	"github.com/wudi/docketkit/mail"
	"github.com/wudi/docketkit/observability"
	"github.com/wudi/docketkit/store"
)

// OwnerInvitationTTL is how long an owner invitation stays open.
const OwnerInvitationTTL = 14 * 24 * time.Hour

var (
	ErrOwnerExists        = errors.New("user with this email already exists in the system")
	ErrOwnerInvitePending = errors.New("owner invitation already sent and pending")
	ErrRewardUnavailable  = errors.New("reward not available or already claimed")
)

// EvaluationSummary is the snapshot of a company's setup attached to an owner
// invitation.
type EvaluationSummary struct {
	ConfigurationProgress ConfigurationProgress `json:"configurationProgress"`
	EstimatedValue        EstimatedValue        `json:"estimatedValue"`
	ReadinessScore        int                   `json:"readinessScore"`
	NextSteps             []string              `json:"nextSteps"`
}

type ConfigurationProgress struct {
	DepartmentsConfigured int `json:"departmentsConfigured"`
	JobTitlesConfigured   int `json:"jobTitlesConfigured"`
	TeamMembersAdded      int `json:"teamMembersAdded"`
	DocumentsUploaded     int `json:"documentsUploaded"`
}

type EstimatedValue struct {
	HoursSavedWeekly float64 `json:"timesSavedWeekly"`
}

// Summarize builds the evaluation summary from configuration counts.
func Summarize(in Inputs, documents int) EvaluationSummary {
	return EvaluationSummary{
		ConfigurationProgress: ConfigurationProgress{
			DepartmentsConfigured: in.Departments,
			JobTitlesConfigured:   in.JobTitles,
			TeamMembersAdded:      in.Members,
			DocumentsUploaded:     documents,
		},
		EstimatedValue: EstimatedValue{
			HoursSavedWeekly: math.Round(float64(in.Departments)*2.5 + float64(in.JobTitles)*1.5),
		},
		ReadinessScore: min(95, in.Departments*15+in.JobTitles*10+in.Members*5+30),
		NextSteps: []string{
			"Owner review and approval",
			"Finalize billing setup",
			"Complete team onboarding",
			"Launch full operations",
		},
	}
}

// Service implements the champion endpoints. Every call requires the actor
// to hold the champion role in the company.
type Service struct {
	store    *store.Store
	accounts *account.Service
	audit    audit.Writer
	mailer   mail.Sender
	mailCfg  mail.Config
	log      observability.Logger
}

func NewService(st *store.Store, accounts *account.Service, aw audit.Writer, mailer mail.Sender, mailCfg mail.Config, log observability.Logger) *Service {
	if aw == nil {
		aw = audit.Nop
	}
	log = observability.OrNop(log)
	if mailer == nil {
		mailer = mail.NewLogSender(log)
	}
	return &Service{store: st, accounts: accounts, audit: aw, mailer: mailer, mailCfg: mailCfg, log: log}
}

func (s *Service) inputs(ctx context.Context, actorID, companyID string) (Inputs, error) {
	if _, err := s.accounts.Authorize(ctx, companyID, actorID, account.RoleChampion); err != nil {
		return Inputs{}, err
	}
	var in Inputs
	var err error
	if in.Departments, in.JobTitles, err = s.store.CountActive(ctx, companyID); err != nil {
		return Inputs{}, err
	}
	if in.Members, err = s.store.CountActiveMembers(ctx, companyID); err != nil {
		return Inputs{}, err
	}
	inv, err := s.store.LatestOwnerInvitation(ctx, companyID, actorID)
	switch {
	case err == nil:
		in.Invitation = &inv
	case !errors.Is(err, store.ErrNotFound):
		return Inputs{}, err
	}
	return in, nil
}

// SuccessScore computes and stores the champion's success score.
func (s *Service) SuccessScore(ctx context.Context, actorID, companyID string) (Score, error) {
	in, err := s.inputs(ctx, actorID, companyID)
	if err != nil {
		return Score{}, err
	}
	sc := Compute(in)
	breakdown, err := json.Marshal(sc.Breakdown)
	if err != nil {
		return Score{}, err
	}
	if _, err := s.store.UpsertChampionScore(ctx, store.ChampionScore{
		ChampionID: actorID, CompanyID: companyID, Score: sc.Total, Breakdown: breakdown,
	}); err != nil {
		s.log.Warn("store success score failed", observability.String("company", companyID), observability.Err(err))
	}
	return sc, nil
}

func (s *Service) progress(ctx context.Context, actorID, companyID string) (Progress, map[string]time.Time, error) {
	in, err := s.inputs(ctx, actorID, companyID)
	if err != nil {
		return Progress{}, nil, err
	}
	score := 0
	sc, err := s.store.GetChampionScore(ctx, companyID, actorID)
	switch {
	case err == nil:
		score = sc.Score
	case !errors.Is(err, store.ErrNotFound):
		return Progress{}, nil, err
	}
	claimed, err := s.store.ClaimedRewards(ctx, companyID, actorID)
	if err != nil {
		return Progress{}, nil, err
	}
	return NewProgress(in, score, s.store.Now()), claimed, nil
}

// Incentives returns the champion's achievements and rewards.
func (s *Service) Incentives(ctx context.Context, actorID, companyID string) (Incentives, error) {
	p, claimed, err := s.progress(ctx, actorID, companyID)
	if err != nil {
		return Incentives{}, err
	}
	return buildIncentives(p, claimed, s.store.Now()), nil
}

// ClaimRequest is the payload of Claim.
type ClaimRequest struct {
	IncentiveType string `json:"incentiveType"`
	IncentiveID   string `json:"incentiveId"`
}

// Claim claims a reward that is currently available.
func (s *Service) Claim(ctx context.Context, actorID, companyID string, req ClaimRequest) (Reward, error) {
	p, claimed, err := s.progress(ctx, actorID, companyID)
	if err != nil {
		return Reward{}, err
	}
	var reward *Reward
	for _, r := range Rewards(p, claimed) {
		if r.ID == req.IncentiveID && r.Claimable {
			reward = &r
			break
		}
	}
	if reward == nil {
		return Reward{}, ErrRewardUnavailable
	}
	c, err := s.store.InsertIncentiveClaim(ctx, store.IncentiveClaim{ChampionID: actorID, CompanyID: companyID, RewardID: reward.ID})
	if errors.Is(err, store.ErrConflict) {
		return Reward{}, ErrRewardUnavailable
	}
	if err != nil {
		return Reward{}, err
	}
	s.record(ctx, audit.Entry{
		ClientID: companyID, UserID: actorID, Action: audit.ActionIncentiveClaimed,
		ResourceType: audit.ResourceIncentive, ResourceID: reward.ID,
		Details: map[string]any{"incentiveType": req.IncentiveType, "rewardValue": reward.Value, "claimedAt": c.ClaimedAt},
	})
	reward.Claimed, reward.Claimable = true, false
	return *reward, nil
}

// OwnerInviteRequest is the payload of InviteOwner.
type OwnerInviteRequest struct {
	OwnerName         string `json:"ownerName"`
	OwnerEmail        string `json:"ownerEmail"`
	OwnerPhone        string `json:"ownerPhone"`
	Relationship      string `json:"relationship"`
	PreferredContact  string `json:"preferredContact"`
	EvaluationMessage string `json:"evaluationMessage"`
	Timeline          string `json:"timeline"`
	IncludeROIData    bool   `json:"includeROIData"`
}

// InviteOwner asks the business owner to review the evaluation. It reports
// whether the email went out; a delivery failure keeps the invitation.
func (s *Service) InviteOwner(ctx context.Context, actorID, companyID string, req OwnerInviteRequest) (store.OwnerInvitation, bool, error) {
	in, err := s.inputs(ctx, actorID, companyID)
	if err != nil {
		return store.OwnerInvitation{}, false, err
	}
	name := strings.TrimSpace(req.OwnerName)
	if name == "" || strings.TrimSpace(req.OwnerEmail) == "" {
		return store.OwnerInvitation{}, false, fmt.Errorf("%w: owner name and email are required", account.ErrInvalidInput)
	}
	email, err := account.NormalizeEmail(req.OwnerEmail)
	if err != nil {
		return store.OwnerInvitation{}, false, err
	}
	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return store.OwnerInvitation{}, false, ErrOwnerExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return store.OwnerInvitation{}, false, err
	}
	pending, err := s.store.HasPendingOwnerInvitation(ctx, companyID, email)
	if err != nil {
		return store.OwnerInvitation{}, false, err
	}
	if pending {
		return store.OwnerInvitation{}, false, ErrOwnerInvitePending
	}

	documents, err := s.store.CountDeliveryRecords(ctx, companyID)
	if err != nil {
		return store.OwnerInvitation{}, false, err
	}
	summary := Summarize(in, documents)
	raw, err := json.Marshal(summary)
	if err != nil {
		return store.OwnerInvitation{}, false, err
	}
	inv, err := s.store.CreateOwnerInvitation(ctx, store.OwnerInvitation{
		CompanyID:         companyID,
		ChampionID:        actorID,
		OwnerName:         name,
		Email:             email,
		Phone:             strings.TrimSpace(req.OwnerPhone),
		Relationship:      orDefault(req.Relationship, "Business Owner"),
		PreferredContact:  orDefault(req.PreferredContact, "email"),
		EvaluationMessage: strings.TrimSpace(req.EvaluationMessage),
		Timeline:          strings.TrimSpace(req.Timeline),
		EvaluationSummary: raw,
		IncludeROIData:    req.IncludeROIData,
		ExpiresAt:         s.store.Now().Add(OwnerInvitationTTL),
	})
	if err != nil {
		return store.OwnerInvitation{}, false, err
	}

	sent := s.sendInvitation(ctx, inv, summary)
	timeline := inv.Timeline
	if timeline == "" {
		timeline = "Not specified"
	}
	s.record(ctx, audit.Entry{
		ClientID: companyID, UserID: actorID, Action: audit.ActionOwnerInvited,
		ResourceType: audit.ResourceOwnerInvitation, ResourceID: inv.ID,
		Details: map[string]any{
			"ownerEmail":      inv.Email,
			"relationship":    inv.Relationship,
			"timeline":        timeline,
			"evaluationStage": "champion_setup_complete",
			"emailSent":       sent,
		},
	})
	return inv, sent, nil
}

func (s *Service) sendInvitation(ctx context.Context, inv store.OwnerInvitation, summary EvaluationSummary) bool {
	champion, err := s.store.GetUser(ctx, inv.ChampionID)
	if err != nil {
		s.log.Warn("owner invitation email skipped", observability.Err(err))
		return false
	}
	company, err := s.store.GetCompany(ctx, inv.CompanyID)
	if err != nil {
		s.log.Warn("owner invitation email skipped", observability.Err(err))
		return false
	}
	m, err := mail.Render(mail.TemplateOwnerInvitation, mail.OwnerInvitationData{
		Product:          s.mailCfg.Product,
		OwnerName:        inv.OwnerName,
		ChampionName:     orDefault(champion.FullName, champion.Email),
		OrganizationName: company.Name,
		Message:          inv.EvaluationMessage,
		Departments:      summary.ConfigurationProgress.DepartmentsConfigured,
		JobTitles:        summary.ConfigurationProgress.JobTitlesConfigured,
		ReadinessScore:   summary.ReadinessScore,
		IncludeROI:       inv.IncludeROIData,
		HoursSavedWeekly: summary.EstimatedValue.HoursSavedWeekly,
		Timeline:         inv.Timeline,
		ReviewURL:        strings.TrimSuffix(s.mailCfg.BaseURL, "/") + "/owner/review/" + inv.Token,
		ExpiresAt:        inv.ExpiresAt,
	})
	if err == nil {
		m.To = inv.Email
		err = s.mailer.Send(ctx, m)
	}
	if err != nil {
		s.log.Warn("owner invitation email not delivered", observability.String("to", inv.Email), observability.Err(err))
		return false
	}
	return true
}

// OwnerStatus is the state of the champion's owner hand-off.
type OwnerStatus struct {
	Invitation               *store.OwnerInvitation `json:"invitation"`
	CurrentEvaluationSummary EvaluationSummary      `json:"currentEvaluationSummary"`
	CanInviteOwner           bool                   `json:"canInviteOwner"`
}

// OwnerInvitationStatus returns the latest owner invitation and a fresh
// evaluation summary.
func (s *Service) OwnerInvitationStatus(ctx context.Context, actorID, companyID string) (OwnerStatus, error) {
	in, err := s.inputs(ctx, actorID, companyID)
	if err != nil {
		return OwnerStatus{}, err
	}
	documents, err := s.store.CountDeliveryRecords(ctx, companyID)
	if err != nil {
		return OwnerStatus{}, err
	}
	return OwnerStatus{
		Invitation:               in.Invitation,
		CurrentEvaluationSummary: Summarize(in, documents),
		CanInviteOwner:           in.Invitation == nil || in.Invitation.Status != store.InvitePending,
	}, nil
}

func (s *Service) record(ctx context.Context, e audit.Entry) {
	if err := s.audit.Write(ctx, e); err != nil {
		s.log.Warn("audit write failed", observability.String("action", e.Action), observability.Err(err))
	}
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
