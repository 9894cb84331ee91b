package stock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/wudi/docketkit/account"
	"github.com/wudi/docketkit/store"
)

var dollars = NewMoney(DefaultConfig())

func TestMoneyFormat(t *testing.T) {
	cases := map[float64]string{0: "$0", 12.4: "$12", 1234.5: "$1,235", 2500000: "$2,500,000"}
	for in, want := range cases {
		if got := dollars.Format(in); got != want {
			t.Fatalf("Format(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestMoneyFollowsLocale(t *testing.T) {
	euros := NewMoney(Config{Locale: "de-DE", Symbol: "€"})
	if got := euros.Format(1234.5); got != "€1.235" {
		t.Fatalf("Format = %q, want €1.235", got)
	}
	if got := NewMoney(Config{}).Format(1500); got != "$1,500" {
		t.Fatalf("zero config Format = %q, want $1,500", got)
	}
}

func TestSummarize(t *testing.T) {
	now := time.Date(2025, 3, 20, 9, 0, 0, 0, time.UTC)
	counted := now.Add(-2 * time.Hour)
	items := []store.ItemWithCount{
		{Item: store.InventoryItem{ID: "a", Name: "Milk", UnitCost: 2.5, ParLevelLow: 10}, Latest: &store.InventoryCount{Quantity: 4, CountedAt: counted}},
		{Item: store.InventoryItem{ID: "b", Name: "Flour", UnitCost: 1, ParLevelLow: 5}, Latest: &store.InventoryCount{Quantity: 20}},
		{Item: store.InventoryItem{ID: "c", Name: "Eggs", UnitCost: 0.5, ParLevelLow: 12}},
		{Item: store.InventoryItem{ID: "d", Name: "Salt", UnitCost: 3}},
	}
	batches := []store.InventoryBatch{
		{BatchNumber: "B1", ExpiryDate: time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)},
		{BatchNumber: "B2", ExpiryDate: time.Date(2025, 3, 23, 0, 0, 0, 0, time.UTC)},
	}
	d := summarize(items, batches, now, dollars)

	assert.Equal(t, 30.0, d.Metrics.TotalValue.Value)
	assert.Equal(t, "$30", d.Metrics.TotalValue.Formatted)
	require.Len(t, d.ItemsBelowPar, 2)
	assert.Equal(t, "Milk", d.ItemsBelowPar[0].ItemName)
	assert.Equal(t, &counted, d.ItemsBelowPar[0].CountDate)
	assert.Equal(t, "Eggs", d.ItemsBelowPar[1].ItemName)
	assert.Nil(t, d.ItemsBelowPar[1].CountDate)
	assert.Equal(t, "items need restocking", d.Metrics.ItemsBelowParCount.Subtitle)

	require.Len(t, d.ExpiringBatches, 2)
	assert.Equal(t, 0, d.ExpiringBatches[0].DaysUntilExpiry)
	assert.Equal(t, 3, d.ExpiringBatches[1].DaysUntilExpiry)
	assert.Equal(t, "batches expiring soon", d.Metrics.ExpiringCount.Subtitle)
}

func TestSummarizeCapsLists(t *testing.T) {
	var items []store.ItemWithCount
	for range 15 {
		items = append(items, store.ItemWithCount{Item: store.InventoryItem{ParLevelLow: 1}})
	}
	d := summarize(items, nil, time.Now(), dollars)
	assert.Len(t, d.ItemsBelowPar, MaxListed)
	assert.Equal(t, 15.0, d.Metrics.ItemsBelowParCount.Value)
	assert.Equal(t, "batches expiring soon", d.Metrics.ExpiringCount.Subtitle)
}

func TestServiceDashboard(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(ctx, ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	now := time.Date(2025, 3, 20, 9, 0, 0, 0, time.UTC)
	st.SetClock(func() time.Time { return now })
	accounts := account.NewService(account.Config{SessionTTL: time.Hour, BcryptCost: bcrypt.MinCost}, st, nil, nil)
	c, owner, err := accounts.CreateCompany(ctx, account.Signup{
		BusinessName: "Harbour Cafe", BusinessType: "cafe", Email: "ana@harbour.test", FullName: "Ana Owner", Password: "owner-pass",
	})
	require.NoError(t, err)
	staff, err := st.CreateUser(ctx, store.User{Email: "sam@harbour.test"})
	require.NoError(t, err)
	require.NoError(t, st.AddMembership(ctx, store.Membership{CompanyID: c.ID, UserID: staff.ID, Role: account.RoleStaff}))

	svc := NewService(st, accounts, DefaultConfig(), nil)
	_, err = svc.CreateItem(ctx, staff.ID, c.ID, ItemRequest{Name: "Milk"})
	assert.ErrorIs(t, err, account.ErrForbidden)
	_, err = svc.CreateItem(ctx, owner.ID, c.ID, ItemRequest{Name: " "})
	assert.ErrorIs(t, err, account.ErrInvalidInput)

	milk, err := svc.CreateItem(ctx, owner.ID, c.ID, ItemRequest{Name: "Milk", Unit: "L", UnitCost: 2, ParLevelLow: 10})
	require.NoError(t, err)
	_, err = svc.RecordCount(ctx, staff.ID, c.ID, CountRequest{ItemID: milk.ID, Quantity: 12, CountedAt: now.Add(-48 * time.Hour)})
	require.NoError(t, err)
	_, err = svc.RecordCount(ctx, staff.ID, c.ID, CountRequest{ItemID: milk.ID, Quantity: 6})
	require.NoError(t, err)
	_, err = svc.RecordCount(ctx, staff.ID, c.ID, CountRequest{ItemID: "missing", Quantity: 1})
	assert.ErrorIs(t, err, store.ErrNotFound)

	b, err := svc.AddBatch(ctx, owner.ID, c.ID, BatchRequest{ItemID: milk.ID, BatchNumber: "M-1", Quantity: 6, ExpiryDate: "2025-03-22"})
	require.NoError(t, err)
	assert.Equal(t, "Milk", b.ItemName)
	_, err = svc.AddBatch(ctx, owner.ID, c.ID, BatchRequest{ItemID: milk.ID, BatchNumber: "M-2", Quantity: 6, ExpiryDate: "2025-04-30"})
	require.NoError(t, err)
	_, err = svc.AddBatch(ctx, owner.ID, c.ID, BatchRequest{ItemID: milk.ID, BatchNumber: "M-3", Quantity: 6, ExpiryDate: "22/03/2025"})
	assert.ErrorIs(t, err, account.ErrInvalidInput)

	d, err := svc.Dashboard(ctx, staff.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 12.0, d.Metrics.TotalValue.Value)
	require.Len(t, d.ItemsBelowPar, 1)
	assert.Equal(t, 6.0, d.ItemsBelowPar[0].CurrentStock)
	require.Len(t, d.ExpiringBatches, 1)
	assert.Equal(t, "M-1", d.ExpiringBatches[0].BatchNumber)
	assert.Equal(t, 2, d.ExpiringBatches[0].DaysUntilExpiry)
	assert.Equal(t, "batch expiring soon", d.Metrics.ExpiringCount.Subtitle)
}
