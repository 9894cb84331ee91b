// Package account manages companies, their users and login sessions.
package account

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"slices"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/wudi/docketkit/audit"
	"github.com/wudi/docketkit/observability"
	"github.com/wudi/docketkit/store"
)

// Roles a member can hold in a company.
const (
	RoleOwner    = "owner"
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleStaff    = "staff"
	RoleChampion = "champion"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthorized       = errors.New("invalid or expired session")
	ErrForbidden          = errors.New("you do not have access to this company")
	// ErrAccountExists reports a signup for a business already registered
	// with the same email.
	ErrAccountExists = errors.New("account already exists")
	// ErrDuplicateBusiness reports a business name registered by someone else.
	ErrDuplicateBusiness = errors.New("business name already registered")
)

// MinPasswordLength applies to signup and invitation acceptance.
const MinPasswordLength = 8

// Config holds session and hashing settings.
type Config struct {
	SessionTTL time.Duration `yaml:"session_ttl"`
	BcryptCost int           `yaml:"bcrypt_cost"`
}

func DefaultConfig() Config {
	return Config{SessionTTL: 30 * 24 * time.Hour, BcryptCost: bcrypt.DefaultCost}
}

// Service implements the account operations.
type Service struct {
	cfg   Config
	store *store.Store
	audit audit.Writer
	log   observability.Logger
}

func NewService(cfg Config, st *store.Store, aw audit.Writer, log observability.Logger) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultConfig().SessionTTL
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if aw == nil {
		aw = audit.Nop
	}
	return &Service{cfg: cfg, store: st, audit: aw, log: observability.OrNop(log)}
}

// HashPassword hashes a password with the configured bcrypt cost.
func (s *Service) HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, MinPasswordLength)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// NormalizeEmail trims, lowercases and validates an address.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email %q", ErrInvalidInput, email)
	}
	return email, nil
}

// Signup is the payload of company creation.
type Signup struct {
	BusinessName string `json:"businessName"`
	BusinessType string `json:"businessType"`
	Phone        string `json:"phone"`
	Address      string `json:"address"`
	Email        string `json:"email"`
	FullName     string `json:"fullName"`
	Password     string `json:"password"`
}

// CreateCompany registers a company with its owner.
func (s *Service) CreateCompany(ctx context.Context, in Signup) (store.Company, store.User, error) {
	name := strings.TrimSpace(in.BusinessName)
	if name == "" || strings.TrimSpace(in.BusinessType) == "" || in.Email == "" {
		return store.Company{}, store.User{}, fmt.Errorf("%w: missing required fields", ErrInvalidInput)
	}
	email, err := NormalizeEmail(in.Email)
	if err != nil {
		return store.Company{}, store.User{}, err
	}
	switch existing, err := s.store.FindCompanyByName(ctx, name); {
	case err == nil && strings.EqualFold(existing.Email, email):
		return store.Company{}, store.User{}, ErrAccountExists
	case err == nil:
		return store.Company{}, store.User{}, fmt.Errorf("%w: contact %s for access", ErrDuplicateBusiness, existing.Email)
	case !errors.Is(err, store.ErrNotFound):
		return store.Company{}, store.User{}, err
	}
	hash, err := s.HashPassword(in.Password)
	if err != nil {
		return store.Company{}, store.User{}, err
	}
	c, u, err := s.store.CreateCompanyWithOwner(ctx,
		store.Company{Name: name, BusinessType: strings.TrimSpace(in.BusinessType), Email: email, Phone: in.Phone, Address: in.Address},
		store.User{Email: email, FullName: strings.TrimSpace(in.FullName), PasswordHash: hash})
	if errors.Is(err, store.ErrConflict) {
		return store.Company{}, store.User{}, ErrAccountExists
	}
	if err != nil {
		return store.Company{}, store.User{}, err
	}
	s.record(ctx, audit.Entry{ClientID: c.ID, UserID: u.ID, Action: audit.ActionCompanyCreated,
		ResourceType: audit.ResourceCompany, ResourceID: c.ID, Details: map[string]any{"name": c.Name, "businessType": c.BusinessType}})
	s.log.Info("company created", observability.String("company", c.ID))
	return c, u, nil
}

// Login checks credentials and opens a session.
func (s *Service) Login(ctx context.Context, email, password string) (store.Session, store.User, error) {
	u, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return store.Session{}, store.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return store.Session{}, store.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return store.Session{}, store.User{}, ErrInvalidCredentials
	}
	sess, err := s.store.CreateSession(ctx, u.ID, s.cfg.SessionTTL)
	if err != nil {
		return store.Session{}, store.User{}, err
	}
	return sess, u, nil
}

// Resolve returns the user of a live session.
func (s *Service) Resolve(ctx context.Context, token string) (store.User, error) {
	if token == "" {
		return store.User{}, ErrUnauthorized
	}
	sess, err := s.store.GetSession(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, ErrUnauthorized
	}
	if err != nil {
		return store.User{}, err
	}
	if !s.store.Now().Before(sess.ExpiresAt) {
		return store.User{}, ErrUnauthorized
	}
	return s.store.GetUser(ctx, sess.UserID)
}

// Logout ends a session.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.store.DeleteSession(ctx, token)
}

// Authorize returns the active membership of userID in companyID. When roles
// are given the membership must hold one of them.
func (s *Service) Authorize(ctx context.Context, companyID, userID string, roles ...string) (store.Membership, error) {
	m, err := s.store.GetMembership(ctx, companyID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Membership{}, ErrForbidden
	}
	if err != nil {
		return store.Membership{}, err
	}
	if m.Status != "active" {
		return store.Membership{}, ErrForbidden
	}
	if len(roles) > 0 && !slices.Contains(roles, m.Role) {
		return store.Membership{}, fmt.Errorf("%w: role %s is not allowed", ErrForbidden, m.Role)
	}
	return m, nil
}

// Company returns a company the actor belongs to.
func (s *Service) Company(ctx context.Context, actorID, companyID string) (store.Company, error) {
	if _, err := s.Authorize(ctx, companyID, actorID); err != nil {
		return store.Company{}, err
	}
	return s.store.GetCompany(ctx, companyID)
}

// CompanyUpdate carries the editable company fields; nil fields are kept.
type CompanyUpdate struct {
	Name         *string `json:"name"`
	BusinessType *string `json:"businessType"`
	Email        *string `json:"email"`
	Phone        *string `json:"phone"`
	Address      *string `json:"address"`
}

// UpdateCompany applies u. Only owners and admins may edit.
func (s *Service) UpdateCompany(ctx context.Context, actorID, companyID string, u CompanyUpdate) (store.Company, error) {
	if _, err := s.Authorize(ctx, companyID, actorID, RoleOwner, RoleAdmin); err != nil {
		return store.Company{}, err
	}
	c, err := s.store.GetCompany(ctx, companyID)
	if err != nil {
		return store.Company{}, err
	}
	changed := map[string]any{}
	set := func(field string, dst *string, v *string) {
		if v != nil && strings.TrimSpace(*v) != *dst {
			*dst = strings.TrimSpace(*v)
			changed[field] = *dst
		}
	}
	set("name", &c.Name, u.Name)
	set("businessType", &c.BusinessType, u.BusinessType)
	set("phone", &c.Phone, u.Phone)
	set("address", &c.Address, u.Address)
	if u.Email != nil {
		email, err := NormalizeEmail(*u.Email)
		if err != nil {
			return store.Company{}, err
		}
		set("email", &c.Email, &email)
	}
	if c.Name == "" {
		return store.Company{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if len(changed) == 0 {
		return c, nil
	}
	c, err = s.store.UpdateCompany(ctx, c)
	if err != nil {
		return store.Company{}, err
	}
	s.record(ctx, audit.Entry{ClientID: c.ID, UserID: actorID, Action: audit.ActionCompanyUpdated,
		ResourceType: audit.ResourceCompany, ResourceID: c.ID, Details: changed})
	return c, nil
}

func (s *Service) record(ctx context.Context, e audit.Entry) {
	if err := s.audit.Write(ctx, e); err != nil {
		s.log.Warn("audit write failed", observability.String("action", e.Action), observability.Err(err))
	}
}
