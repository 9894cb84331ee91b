// Package team handles invitations of new members into a company.
package team

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/wudi/docketkit/account"
	"github.com/wudi/docketkit/audit"
	"github.com/wudi/docketkit/mail"
	"github.com/wudi/docketkit/observability"
	"github.com/wudi/docketkit/store"
)

// InvitationTTL is how long an invitation can be accepted.
const InvitationTTL = 7 * 24 * time.Hour

// InvitableRoles are the roles an invitation can grant.
var InvitableRoles = []string{account.RoleStaff, account.RoleManager, account.RoleAdmin, account.RoleOwner}

var (
	ErrInvalidRole       = errors.New("invalid role, must be one of: staff, manager, admin, owner")
	ErrAlreadyMember     = errors.New("user is already a member of this organization")
	ErrPendingInvitation = errors.New("there is already a pending invitation for this email")
	ErrNotPending        = errors.New("invitation is no longer pending")
	ErrExpired           = errors.New("invitation has expired")
)

var roleInfo = map[string][2]string{
	account.RoleStaff:   {"Staff Member", "upload documents and view your own records"},
	account.RoleManager: {"Manager", "access full operations and manage the team"},
	account.RoleAdmin:   {"Administrator", "configure the system and manage the team"},
	account.RoleOwner:   {"Owner", "access everything including billing and settings"},
}

// Service implements team invitations.
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

// InviteRequest is the payload of Invite.
type InviteRequest struct {
	CompanyID string `json:"clientId"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Message   string `json:"message"`
}

// Invite creates a pending invitation and emails it. The returned URL is
// the accept link sent in the email.
func (s *Service) Invite(ctx context.Context, actorID string, req InviteRequest) (store.Invitation, string, error) {
	if req.Email == "" || req.Role == "" || req.CompanyID == "" {
		return store.Invitation{}, "", fmt.Errorf("%w: missing required fields: email, role, clientId", account.ErrInvalidInput)
	}
	if !slices.Contains(InvitableRoles, req.Role) {
		return store.Invitation{}, "", ErrInvalidRole
	}
	if _, err := s.accounts.Authorize(ctx, req.CompanyID, actorID, account.RoleAdmin, account.RoleOwner); err != nil {
		return store.Invitation{}, "", err
	}
	email, err := account.NormalizeEmail(req.Email)
	if err != nil {
		return store.Invitation{}, "", err
	}
	switch member, err := s.store.IsMemberByEmail(ctx, req.CompanyID, email); {
	case err != nil:
		return store.Invitation{}, "", err
	case member:
		return store.Invitation{}, "", ErrAlreadyMember
	}
	switch pending, err := s.store.HasPendingInvitation(ctx, req.CompanyID, email); {
	case err != nil:
		return store.Invitation{}, "", err
	case pending:
		return store.Invitation{}, "", ErrPendingInvitation
	}
	company, err := s.store.GetCompany(ctx, req.CompanyID)
	if err != nil {
		return store.Invitation{}, "", err
	}
	inv, err := s.store.CreateInvitation(ctx, store.Invitation{
		CompanyID: req.CompanyID,
		Email:     email,
		Role:      req.Role,
		InvitedBy: actorID,
		ExpiresAt: s.store.Now().Add(InvitationTTL),
	})
	if err != nil {
		return store.Invitation{}, "", err
	}
	acceptURL := s.link("/accept-invitation", inv.Token)
	s.record(ctx, audit.Entry{
		ClientID: req.CompanyID, UserID: actorID, Action: audit.ActionInviteUser,
		ResourceType: audit.ResourceInvitation, ResourceID: inv.ID,
		Details: map[string]any{"invitedEmail": email, "role": req.Role},
	})

	inviter, err := s.store.GetUser(ctx, actorID)
	if err != nil {
		s.log.Warn("inviter lookup failed", observability.Err(err))
	}
	info := roleInfo[req.Role]
	s.send(ctx, email, mail.TemplateInvitation, mail.InvitationData{
		Product:          s.mailCfg.Product,
		InviteeName:      email,
		InviterName:      firstNonEmpty(inviter.FullName, inviter.Email, company.Name),
		OrganizationName: company.Name,
		RoleName:         info[0],
		RoleDescription:  info[1],
		PersonalMessage:  strings.TrimSpace(req.Message),
		AcceptURL:        acceptURL,
		ExpiresAt:        inv.ExpiresAt,
	})
	return inv, acceptURL, nil
}

// List returns the invitations of a company to any of its members. Pending
// invitations past their expiry are reported and stored as expired.
func (s *Service) List(ctx context.Context, actorID, companyID string) ([]store.Invitation, error) {
	if _, err := s.accounts.Authorize(ctx, companyID, actorID); err != nil {
		return nil, err
	}
	invs, err := s.store.ListInvitations(ctx, companyID)
	if err != nil {
		return nil, err
	}
	now := s.store.Now()
	for i, inv := range invs {
		if inv.Status == store.InvitePending && !now.Before(inv.ExpiresAt) {
			if err := s.store.SetInvitationStatus(ctx, inv.ID, store.InviteExpired); err != nil && !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
			invs[i].Status = store.InviteExpired
		}
	}
	return invs, nil
}

// Cancel withdraws a pending invitation.
func (s *Service) Cancel(ctx context.Context, actorID, companyID, id string) error {
	if _, err := s.accounts.Authorize(ctx, companyID, actorID, account.RoleAdmin, account.RoleOwner); err != nil {
		return err
	}
	inv, err := s.store.GetInvitation(ctx, companyID, id)
	if err != nil {
		return err
	}
	if err := s.store.SetInvitationStatus(ctx, inv.ID, store.InviteCancelled); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotPending
		}
		return err
	}
	s.record(ctx, audit.Entry{
		ClientID: companyID, UserID: actorID, Action: audit.ActionInvitationCancelled,
		ResourceType: audit.ResourceInvitation, ResourceID: inv.ID,
		Details: map[string]any{"email": inv.Email},
	})
	return nil
}

// AcceptRequest is the payload of Accept.
type AcceptRequest struct {
	Token    string `json:"token"`
	FullName string `json:"fullName"`
	Password string `json:"password"`
}

// Accept joins the invited email to the company and opens a session. A new
// user is created with the given password; an existing user must confirm
// theirs.
func (s *Service) Accept(ctx context.Context, req AcceptRequest) (store.User, store.Session, error) {
	inv, err := s.store.GetInvitationByToken(ctx, req.Token)
	if err != nil {
		return store.User{}, store.Session{}, err
	}
	if inv.Status != store.InvitePending {
		return store.User{}, store.Session{}, ErrNotPending
	}
	if !s.store.Now().Before(inv.ExpiresAt) {
		if err := s.store.SetInvitationStatus(ctx, inv.ID, store.InviteExpired); err != nil && !errors.Is(err, store.ErrNotFound) {
			return store.User{}, store.Session{}, err
		}
		return store.User{}, store.Session{}, ErrExpired
	}

	user, err := s.store.GetUserByEmail(ctx, inv.Email)
	switch {
	case err == nil:
		if _, _, err := s.accounts.Login(ctx, inv.Email, req.Password); err != nil {
			return store.User{}, store.Session{}, err
		}
	case errors.Is(err, store.ErrNotFound):
		hash, err := s.accounts.HashPassword(req.Password)
		if err != nil {
			return store.User{}, store.Session{}, err
		}
		user = store.User{Email: inv.Email, FullName: strings.TrimSpace(req.FullName), PasswordHash: hash}
	default:
		return store.User{}, store.Session{}, err
	}

	user, err = s.store.AcceptInvitation(ctx, inv, user)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.User{}, store.Session{}, ErrNotPending
		}
		return store.User{}, store.Session{}, err
	}
	sess, _, err := s.accounts.Login(ctx, inv.Email, req.Password)
	if err != nil {
		return store.User{}, store.Session{}, err
	}
	s.record(ctx, audit.Entry{
		ClientID: inv.CompanyID, UserID: user.ID, Action: audit.ActionInvitationAccepted,
		ResourceType: audit.ResourceInvitation, ResourceID: inv.ID,
		Details: map[string]any{"role": inv.Role},
	})
	if company, err := s.store.GetCompany(ctx, inv.CompanyID); err == nil {
		s.send(ctx, user.Email, mail.TemplateWelcome, mail.WelcomeData{
			Product:          s.mailCfg.Product,
			UserName:         firstNonEmpty(user.FullName, user.Email),
			OrganizationName: company.Name,
		})
	}
	return user, sess, nil
}

func (s *Service) link(path, token string) string {
	return strings.TrimSuffix(s.mailCfg.BaseURL, "/") + path + "?token=" + url.QueryEscape(token)
}

// send renders and delivers an email. Delivery problems are logged: the
// invitation stands and can be resent.
func (s *Service) send(ctx context.Context, to, tmpl string, data any) {
	m, err := mail.Render(tmpl, data)
	if err == nil {
		m.To = to
		err = s.mailer.Send(ctx, m)
	}
	if err != nil {
		s.log.Warn("email not delivered", observability.String("template", tmpl), observability.String("to", to), observability.Err(err))
	}
}

func (s *Service) record(ctx context.Context, e audit.Entry) {
	if err := s.audit.Write(ctx, e); err != nil {
		s.log.Warn("audit write failed", observability.String("action", e.Action), observability.Err(err))
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
