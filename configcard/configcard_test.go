package configcard

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/wudi/docketkit/account"
	"github.com/wudi/docketkit/audit"
	"github.com/wudi/docketkit/store"
)

func TestDefaultCardsAreValid(t *testing.T) {
	if err := Validate(DefaultCards()); err != nil {
		t.Fatalf("default cards invalid: %v", err)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cards := DefaultCards()
	cards[1].ID = cards[0].ID
	cards[0].Layout = "carousel"
	cards[2].Fields = append(cards[2].Fields, Field{FieldKey: "default_role", FieldType: "select"})
	cards[0].Fields[1].Validation.Pattern = "("

	err := Validate(cards)
	if !errors.Is(err, ErrInvalidDefinition) {
		t.Fatalf("expected ErrInvalidDefinition, got %v", err)
	}
	msg := err.Error()
	for _, want := range []string{"duplicate id", `layout "carousel"`, "duplicate field key", "options are required", "pattern"} {
		assert.Contains(t, msg, want)
	}
}

func TestValidateValues(t *testing.T) {
	ctx := context.Background()
	card := DefaultCards()[0]
	card.Fields = append(card.Fields, Field{
		FieldKey: "start_date", FieldType: "date",
	}, Field{
		FieldKey: "shifts", FieldType: "number",
		Validation: &Validation{Script: "value % 2 === 0"},
	})

	cases := []struct {
		name   string
		values map[string]any
		want   []FieldError
	}{
		{"valid", map[string]any{"full_name": "Ana", "department": "kitchen", "phone": "+64 21 555-0100"}, nil},
		{"missing required", map[string]any{"full_name": "  "}, []FieldError{
			{"full_name", "is required"}, {"department", "is required"},
		}},
		{"too short", map[string]any{"full_name": "A", "department": "kitchen"}, []FieldError{
			{"full_name", "must be at least 2 characters"},
		}},
		{"bad pattern and option", map[string]any{"full_name": "Ana", "department": "bar", "phone": "call me"}, []FieldError{
			{"phone", "has an invalid format"}, {"department", "is not one of the available options"},
		}},
		{"bad date", map[string]any{"full_name": "Ana", "department": "kitchen", "start_date": "12/03/2024"}, []FieldError{
			{"start_date", "must be a date in YYYY-MM-DD form"},
		}},
		{"script rejects", map[string]any{"full_name": "Ana", "department": "kitchen", "shifts": float64(3)}, []FieldError{
			{"shifts", "failed custom validation"},
		}},
		{"script accepts", map[string]any{"full_name": "Ana", "department": "kitchen", "shifts": float64(4)}, nil},
		{"unknown key", map[string]any{"full_name": "Ana", "department": "kitchen", "nickname": "A"}, []FieldError{
			{"nickname", "unknown field"},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ValidateValues(ctx, card, tc.values)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestValidateValuesMultiselectAndNumbers(t *testing.T) {
	card := DefaultCards()[1]
	values := map[string]any{
		"temperature_threshold": json.Number("12"),
		"auto_approve":          "yes",
		"required_fields":       []any{"supplier_name", "barcode"},
	}
	got := ValidateValues(context.Background(), card, values)
	assert.Equal(t, []FieldError{
		{"temperature_threshold", "must be at most 10"},
		{"auto_approve", "must be true or false"},
		{"required_fields", "option barcode is not available"},
	}, got)
}

func TestValidateValuesScriptError(t *testing.T) {
	card := Card{Fields: []Field{{FieldKey: "x", FieldType: "text", Validation: &Validation{Script: "value.length"}}}}
	got := ValidateValues(context.Background(), card, map[string]any{"x": "abc"})
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Message, "validation script failed")
}

type fixture struct {
	svc     *Service
	store   *store.Store
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
	return &fixture{svc: NewService(st, accounts, aw, nil), store: st, company: c, owner: owner}
}

func (f *fixture) member(t *testing.T, email, role string) store.User {
	t.Helper()
	ctx := context.Background()
	u, err := f.store.CreateUser(ctx, store.User{Email: email, FullName: email})
	require.NoError(t, err)
	require.NoError(t, f.store.AddMembership(ctx, store.Membership{CompanyID: f.company.ID, UserID: u.ID, Role: role}))
	return u
}

func TestGetFallsBackToDefaults(t *testing.T) {
	f := newFixture(t)
	defs, err := f.svc.Get(context.Background(), f.owner.ID, f.company.ID)
	require.NoError(t, err)
	assert.False(t, defs.Stored)
	assert.Len(t, defs.Cards, 3)
}

func TestSaveReplacesCardsAndAudits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cards := DefaultCards()[:1]
	cards[0].Title = "Profile"

	defs, err := f.svc.Save(ctx, f.owner.ID, f.company.ID, cards)
	require.NoError(t, err)
	assert.True(t, defs.Stored)
	require.Len(t, defs.Cards, 1)
	assert.Equal(t, "Profile", defs.Cards[0].Title)
	assert.Equal(t, 100, *defs.Cards[0].Fields[0].Validation.MaxLength)

	logs, err := f.store.ListAuditLogs(ctx, f.company.ID, audit.ActionConfigCardsSaved, 0)
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	bad := DefaultCards()
	bad[0].SecurityLevel = "top"
	_, err = f.svc.Save(ctx, f.owner.ID, f.company.ID, bad)
	assert.ErrorIs(t, err, ErrInvalidDefinition)

	staff := f.member(t, "sam@harbour.test", account.RoleStaff)
	_, err = f.svc.Save(ctx, staff.ID, f.company.ID, cards)
	assert.ErrorIs(t, err, account.ErrForbidden)
}

func TestServiceValidateValues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	errs, err := f.svc.ValidateValues(ctx, f.owner.ID, f.company.ID, "team-management", map[string]any{
		"default_role": "staff", "invitation_expiry": float64(40),
	})
	require.NoError(t, err)
	assert.Equal(t, []FieldError{{"invitation_expiry", "must be at most 30"}}, errs)

	_, err = f.svc.ValidateValues(ctx, f.owner.ID, f.company.ID, "missing", nil)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDepartments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	manager := f.member(t, "mo@harbour.test", account.RoleManager)
	staff := f.member(t, "sam@harbour.test", account.RoleStaff)

	d, err := f.svc.CreateDepartment(ctx, manager.ID, f.company.ID, " Kitchen ", "Back of house")
	require.NoError(t, err)
	assert.Equal(t, "Kitchen", d.Name)

	_, err = f.svc.CreateDepartment(ctx, manager.ID, f.company.ID, "Kitchen", "")
	assert.ErrorIs(t, err, store.ErrConflict)
	_, err = f.svc.CreateDepartment(ctx, manager.ID, f.company.ID, "  ", "")
	assert.ErrorIs(t, err, account.ErrInvalidInput)
	_, err = f.svc.CreateDepartment(ctx, staff.ID, f.company.ID, "Bar", "")
	assert.ErrorIs(t, err, account.ErrForbidden)

	list, err := f.svc.Departments(ctx, staff.ID, f.company.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.ErrorIs(t, f.svc.DeactivateDepartment(ctx, manager.ID, f.company.ID, d.ID), account.ErrForbidden)
	require.NoError(t, f.svc.DeactivateDepartment(ctx, f.owner.ID, f.company.ID, d.ID))
	assert.ErrorIs(t, f.svc.DeactivateDepartment(ctx, f.owner.ID, f.company.ID, d.ID), store.ErrNotFound)
	list, err = f.svc.Departments(ctx, staff.ID, f.company.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestJobTitles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	champion := f.member(t, "cy@harbour.test", account.RoleChampion)
	d, err := f.svc.CreateDepartment(ctx, f.owner.ID, f.company.ID, "Kitchen", "")
	require.NoError(t, err)

	j, err := f.svc.CreateJobTitle(ctx, champion.ID, f.company.ID, JobTitleRequest{Title: "Chef", DepartmentID: d.ID})
	require.NoError(t, err)
	assert.Equal(t, "low", j.SecurityLevel)

	_, err = f.svc.CreateJobTitle(ctx, champion.ID, f.company.ID, JobTitleRequest{Title: "Head Chef", SecurityLevel: "high"})
	assert.ErrorIs(t, err, account.ErrForbidden)
	_, err = f.svc.CreateJobTitle(ctx, f.owner.ID, f.company.ID, JobTitleRequest{Title: "Head Chef", SecurityLevel: "high"})
	require.NoError(t, err)
	_, err = f.svc.CreateJobTitle(ctx, f.owner.ID, f.company.ID, JobTitleRequest{Title: "Chef"})
	assert.ErrorIs(t, err, store.ErrConflict)
	_, err = f.svc.CreateJobTitle(ctx, f.owner.ID, f.company.ID, JobTitleRequest{Title: "Porter", DepartmentID: "nope"})
	assert.ErrorIs(t, err, account.ErrInvalidInput)
	_, err = f.svc.CreateJobTitle(ctx, f.owner.ID, f.company.ID, JobTitleRequest{Title: "Porter", SecurityLevel: "secret"})
	assert.ErrorIs(t, err, account.ErrInvalidInput)

	titles, err := f.svc.JobTitles(ctx, champion.ID, f.company.ID)
	require.NoError(t, err)
	assert.Len(t, titles, 2)

	require.NoError(t, f.svc.DeactivateJobTitle(ctx, f.owner.ID, f.company.ID, j.ID))
	titles, err = f.svc.JobTitles(ctx, champion.ID, f.company.ID)
	require.NoError(t, err)
	assert.Len(t, titles, 1)
}
