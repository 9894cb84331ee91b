package configcard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/wudi/docketkit/account"
	"github.com/wudi/docketkit/audit"
	"github.com/wudi/docketkit/observability"
	"github.com/wudi/docketkit/store"
)

// ErrCardNotFound reports a card id missing from the company's definitions.
var ErrCardNotFound = fmt.Errorf("configcard %w", store.ErrNotFound)

// Definitions is the stored card set of a company.
type Definitions struct {
	Cards     []Card    `json:"configCards"`
	Stored    bool      `json:"stored"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// Service exposes the admin configuration of a company.
type Service struct {
	store    *store.Store
	accounts *account.Service
	audit    audit.Writer
	log      observability.Logger
}

func NewService(st *store.Store, accounts *account.Service, aw audit.Writer, log observability.Logger) *Service {
	if aw == nil {
		aw = audit.Nop
	}
	return &Service{store: st, accounts: accounts, audit: aw, log: observability.OrNop(log)}
}

// Get returns the stored cards, or DefaultCards when nothing was saved yet.
func (s *Service) Get(ctx context.Context, actorID, companyID string) (Definitions, error) {
	if _, err := s.accounts.Authorize(ctx, companyID, actorID); err != nil {
		return Definitions{}, err
	}
	return s.load(ctx, companyID)
}

func (s *Service) load(ctx context.Context, companyID string) (Definitions, error) {
	doc, at, err := s.store.LoadConfigCards(ctx, companyID)
	if errors.Is(err, store.ErrNotFound) {
		return Definitions{Cards: DefaultCards()}, nil
	}
	if err != nil {
		return Definitions{}, err
	}
	var cards []Card
	if err := json.Unmarshal(doc, &cards); err != nil {
		return Definitions{}, fmt.Errorf("decode configcards of %s: %w", companyID, err)
	}
	return Definitions{Cards: cards, Stored: true, UpdatedAt: at}, nil
}

// Save replaces every card of the company. Owners and admins only.
func (s *Service) Save(ctx context.Context, actorID, companyID string, cards []Card) (Definitions, error) {
	if _, err := s.accounts.Authorize(ctx, companyID, actorID, account.RoleOwner, account.RoleAdmin); err != nil {
		return Definitions{}, err
	}
	if err := Validate(cards); err != nil {
		return Definitions{}, err
	}
	doc, err := json.Marshal(cards)
	if err != nil {
		return Definitions{}, fmt.Errorf("encode configcards: %w", err)
	}
	if err := s.store.SaveConfigCards(ctx, companyID, actorID, doc); err != nil {
		return Definitions{}, err
	}
	ids := make([]string, len(cards))
	for i, c := range cards {
		ids[i] = c.ID
	}
	s.record(ctx, audit.Entry{
		ClientID: companyID, UserID: actorID, Action: audit.ActionConfigCardsSaved,
		ResourceType: audit.ResourceConfigCards,
		Details:      map[string]any{"cardCount": len(cards), "cardIds": ids},
	})
	return s.load(ctx, companyID)
}

// ValidateValues checks a submission against one card of the company.
func (s *Service) ValidateValues(ctx context.Context, actorID, companyID, cardID string, values map[string]any) ([]FieldError, error) {
	defs, err := s.Get(ctx, actorID, companyID)
	if err != nil {
		return nil, err
	}
	i := slices.IndexFunc(defs.Cards, func(c Card) bool { return c.ID == cardID })
	if i < 0 {
		return nil, ErrCardNotFound
	}
	return ValidateValues(ctx, defs.Cards[i], values), nil
}

// Departments lists the active departments of the company.
func (s *Service) Departments(ctx context.Context, actorID, companyID string) ([]store.Department, error) {
	if _, err := s.accounts.Authorize(ctx, companyID, actorID); err != nil {
		return nil, err
	}
	return s.store.ListDepartments(ctx, companyID, false)
}

// CreateDepartment adds a department. A name already used in the company
// yields store.ErrConflict.
func (s *Service) CreateDepartment(ctx context.Context, actorID, companyID, name, description string) (store.Department, error) {
	if _, err := s.accounts.Authorize(ctx, companyID, actorID, account.RoleManager, account.RoleOwner, account.RoleAdmin); err != nil {
		return store.Department{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return store.Department{}, fmt.Errorf("%w: department name is required", account.ErrInvalidInput)
	}
	d, err := s.store.CreateDepartment(ctx, store.Department{CompanyID: companyID, Name: name, Description: strings.TrimSpace(description)})
	if errors.Is(err, store.ErrConflict) {
		return store.Department{}, fmt.Errorf("department %q already exists: %w", name, err)
	}
	return d, err
}

// DeactivateDepartment hides a department. Owners and admins only.
func (s *Service) DeactivateDepartment(ctx context.Context, actorID, companyID, id string) error {
	if _, err := s.accounts.Authorize(ctx, companyID, actorID, account.RoleOwner, account.RoleAdmin); err != nil {
		return err
	}
	return s.store.DeactivateDepartment(ctx, companyID, id)
}

// JobTitles lists the active job titles of the company.
func (s *Service) JobTitles(ctx context.Context, actorID, companyID string) ([]store.JobTitle, error) {
	if _, err := s.accounts.Authorize(ctx, companyID, actorID); err != nil {
		return nil, err
	}
	return s.store.ListJobTitles(ctx, companyID, false)
}

// JobTitleRequest is the payload of CreateJobTitle.
type JobTitleRequest struct {
	Title         string `json:"title"`
	DepartmentID  string `json:"departmentId"`
	SecurityLevel string `json:"securityLevel"`
}

// CreateJobTitle adds a job title. Managers, owners, admins and champions may
// create titles; only owners may grant the high security level.
func (s *Service) CreateJobTitle(ctx context.Context, actorID, companyID string, req JobTitleRequest) (store.JobTitle, error) {
	m, err := s.accounts.Authorize(ctx, companyID, actorID,
		account.RoleManager, account.RoleOwner, account.RoleAdmin, account.RoleChampion)
	if err != nil {
		return store.JobTitle{}, err
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return store.JobTitle{}, fmt.Errorf("%w: job title is required", account.ErrInvalidInput)
	}
	level := req.SecurityLevel
	if level == "" {
		level = "low"
	}
	if !slices.Contains(SecurityLevels, level) {
		return store.JobTitle{}, fmt.Errorf("%w: security level %q", account.ErrInvalidInput, level)
	}
	if level == "high" && m.Role != account.RoleOwner {
		return store.JobTitle{}, fmt.Errorf("%w: only owners can grant high security level", account.ErrForbidden)
	}
	if req.DepartmentID != "" {
		deps, err := s.store.ListDepartments(ctx, companyID, false)
		if err != nil {
			return store.JobTitle{}, err
		}
		if !slices.ContainsFunc(deps, func(d store.Department) bool { return d.ID == req.DepartmentID }) {
			return store.JobTitle{}, fmt.Errorf("%w: unknown department %s", account.ErrInvalidInput, req.DepartmentID)
		}
	}
	j, err := s.store.CreateJobTitle(ctx, store.JobTitle{CompanyID: companyID, Title: title, DepartmentID: req.DepartmentID, SecurityLevel: level})
	if errors.Is(err, store.ErrConflict) {
		return store.JobTitle{}, fmt.Errorf("job title %q already exists: %w", title, err)
	}
	return j, err
}

// DeactivateJobTitle hides a job title. Owners and admins only.
func (s *Service) DeactivateJobTitle(ctx context.Context, actorID, companyID, id string) error {
	if _, err := s.accounts.Authorize(ctx, companyID, actorID, account.RoleOwner, account.RoleAdmin); err != nil {
		return err
	}
	return s.store.DeactivateJobTitle(ctx, companyID, id)
}

func (s *Service) record(ctx context.Context, e audit.Entry) {
	if err := s.audit.Write(ctx, e); err != nil {
		s.log.Warn("audit write failed", observability.String("action", e.Action), observability.Err(err))
	}
}
