package team

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/wudi/docketkit/account"
	"github.com/wudi/docketkit/audit"
	"github.com/wudi/docketkit/mail"
	"github.com/wudi/docketkit/store"
)

type fixture struct {
	svc     *Service
	store   *store.Store
	outbox  *mail.Outbox
	company store.Company
	owner   store.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	aw := audit.NewStoreWriter(st)
	accounts := account.NewService(account.Config{SessionTTL: time.Hour, BcryptCost: bcrypt.MinCost}, st, aw, nil)
	c, owner, err := accounts.CreateCompany(ctx, account.Signup{
		BusinessName: "Harbour Cafe", BusinessType: "cafe", Email: "ana@harbour.test", FullName: "Ana Owner", Password: "owner-pass",
	})
	require.NoError(t, err)
	outbox := &mail.Outbox{}
	cfg := mail.DefaultConfig()
	cfg.BaseURL = "https://app.test/"
	return &fixture{
		svc:     NewService(st, accounts, aw, outbox, cfg, nil),
		store:   st,
		outbox:  outbox,
		company: c,
		owner:   owner,
	}
}

func (f *fixture) invite(t *testing.T, email, role string) (store.Invitation, string) {
	t.Helper()
	inv, link, err := f.svc.Invite(context.Background(), f.owner.ID, InviteRequest{CompanyID: f.company.ID, Email: email, Role: role, Message: "Welcome aboard"})
	require.NoError(t, err)
	return inv, link
}

func TestInviteSendsEmailAndAudits(t *testing.T) {
	f := newFixture(t)
	inv, link := f.invite(t, " Sam@Harbour.test ", account.RoleManager)

	assert.Equal(t, "sam@harbour.test", inv.Email)
	assert.Equal(t, store.InvitePending, inv.Status)
	assert.WithinDuration(t, time.Now().Add(InvitationTTL), inv.ExpiresAt, time.Minute)
	assert.Equal(t, "https://app.test/accept-invitation?token="+inv.Token, link)

	msgs := f.outbox.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "sam@harbour.test", msgs[0].To)
	assert.Contains(t, msgs[0].Subject, "Harbour Cafe")
	assert.Contains(t, msgs[0].Text, link)
	assert.Contains(t, msgs[0].Text, "Ana Owner has invited you")

	logs, err := f.store.ListAuditLogs(context.Background(), f.company.ID, audit.ActionInviteUser, 0)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestInviteRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.invite(t, "sam@harbour.test", account.RoleStaff)

	_, _, err := f.svc.Invite(ctx, f.owner.ID, InviteRequest{CompanyID: f.company.ID, Email: "sam@harbour.test", Role: account.RoleStaff})
	assert.ErrorIs(t, err, ErrPendingInvitation)

	_, _, err = f.svc.Invite(ctx, f.owner.ID, InviteRequest{CompanyID: f.company.ID, Email: "ana@harbour.test", Role: account.RoleStaff})
	assert.ErrorIs(t, err, ErrAlreadyMember)

	_, _, err = f.svc.Invite(ctx, f.owner.ID, InviteRequest{CompanyID: f.company.ID, Email: "x@harbour.test", Role: account.RoleChampion})
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, _, err = f.svc.Invite(ctx, f.owner.ID, InviteRequest{CompanyID: f.company.ID, Role: account.RoleStaff})
	assert.ErrorIs(t, err, account.ErrInvalidInput)

	staff, err := f.store.CreateUser(ctx, store.User{Email: "kim@harbour.test", PasswordHash: "x"})
	require.NoError(t, err)
	require.NoError(t, f.store.AddMembership(ctx, store.Membership{CompanyID: f.company.ID, UserID: staff.ID, Role: account.RoleStaff}))
	_, _, err = f.svc.Invite(ctx, staff.ID, InviteRequest{CompanyID: f.company.ID, Email: "x@harbour.test", Role: account.RoleStaff})
	assert.ErrorIs(t, err, account.ErrForbidden)
}

func TestAcceptCreatesMemberAndSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv, _ := f.invite(t, "sam@harbour.test", account.RoleManager)

	user, sess, err := f.svc.Accept(ctx, AcceptRequest{Token: inv.Token, FullName: "Sam Chef", Password: "sam-secret"})
	require.NoError(t, err)
	assert.Equal(t, "Sam Chef", user.FullName)
	assert.NotEmpty(t, sess.Token)

	m, err := f.store.GetMembership(ctx, f.company.ID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, account.RoleManager, m.Role)

	_, _, err = f.svc.Accept(ctx, AcceptRequest{Token: inv.Token, Password: "sam-secret"})
	assert.ErrorIs(t, err, ErrNotPending)

	msgs := f.outbox.Messages()
	require.Len(t, msgs, 2)
	assert.True(t, strings.HasPrefix(msgs[1].Subject, "Welcome to Harbour Cafe"))
}

func TestAcceptExistingUserNeedsPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := account.NewService(account.Config{BcryptCost: bcrypt.MinCost}, f.store, nil, nil).CreateCompany(ctx, account.Signup{
		BusinessName: "Dockside Deli", BusinessType: "deli", Email: "lee@dockside.test", Password: "lee-secret",
	})
	require.NoError(t, err)
	inv, _ := f.invite(t, "lee@dockside.test", account.RoleAdmin)

	_, _, err = f.svc.Accept(ctx, AcceptRequest{Token: inv.Token, Password: "wrong-secret"})
	assert.ErrorIs(t, err, account.ErrInvalidCredentials)

	user, _, err := f.svc.Accept(ctx, AcceptRequest{Token: inv.Token, Password: "lee-secret"})
	require.NoError(t, err)
	memberships, err := f.store.MembershipsForUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, memberships, 2)
}

func TestAcceptExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv, _ := f.invite(t, "sam@harbour.test", account.RoleStaff)

	f.store.SetClock(func() time.Time { return time.Now().Add(InvitationTTL + time.Hour) })
	_, _, err := f.svc.Accept(ctx, AcceptRequest{Token: inv.Token, Password: "sam-secret"})
	assert.ErrorIs(t, err, ErrExpired)

	invs, err := f.svc.List(ctx, f.owner.ID, f.company.ID)
	require.NoError(t, err)
	require.Len(t, invs, 1)
	assert.Equal(t, store.InviteExpired, invs[0].Status)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv, _ := f.invite(t, "sam@harbour.test", account.RoleStaff)

	require.NoError(t, f.svc.Cancel(ctx, f.owner.ID, f.company.ID, inv.ID))
	assert.ErrorIs(t, f.svc.Cancel(ctx, f.owner.ID, f.company.ID, inv.ID), ErrNotPending)

	_, _, err := f.svc.Accept(ctx, AcceptRequest{Token: inv.Token, Password: "sam-secret"})
	assert.ErrorIs(t, err, ErrNotPending)

	_, err = f.svc.List(ctx, "stranger", f.company.ID)
	assert.ErrorIs(t, err, account.ErrForbidden)
}
