package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cashbook/internal/core"
	"cashbook/internal/ledger"
	"cashbook/internal/recurring"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "cashbook-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	repo, err := NewSQLiteRepository(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func amount(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestMigrationVersion(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "v.db")
	if err := RunMigrations(dbPath); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	// A second run has nothing to do.
	if err := RunMigrations(dbPath); err != nil {
		t.Fatalf("RunMigrations again: %v", err)
	}
	v, dirty, err := MigrationVersion(dbPath)
	if err != nil {
		t.Fatalf("MigrationVersion: %v", err)
	}
	if v != 1 || dirty {
		t.Fatalf("version = %d dirty = %v", v, dirty)
	}
}

func TestProfilesAndFriends(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	alice, err := repo.UpsertProfile(ctx, core.Profile{ID: "alice", FullName: "Alice"})
	if err != nil {
		t.Fatalf("UpsertProfile: %v", err)
	}
	if alice.FullName != "Alice" {
		t.Fatalf("unexpected profile %+v", alice)
	}
	if _, err := repo.UpsertProfile(ctx, core.Profile{ID: "alice", FullName: "Alice B."}); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, err := repo.UpsertProfile(ctx, core.Profile{ID: "bob", FullName: "Bob"}); err != nil {
		t.Fatalf("UpsertProfile: %v", err)
	}

	if _, err := repo.GetProfile(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	first, err := repo.CreateFriendship(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("CreateFriendship: %v", err)
	}
	again, err := repo.CreateFriendship(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("CreateFriendship again: %v", err)
	}
	if first.ID != again.ID {
		t.Errorf("friendship stored twice: %s != %s", first.ID, again.ID)
	}

	friends, err := repo.ListFriends(ctx, "alice")
	if err != nil {
		t.Fatalf("ListFriends: %v", err)
	}
	if len(friends) != 1 || friends[0].ID != "bob" {
		t.Fatalf("friends = %+v", friends)
	}
	ok, err := repo.AreFriends(ctx, "alice", "bob")
	if err != nil || !ok {
		t.Fatalf("AreFriends = %v, %v", ok, err)
	}
	if _, err := repo.CreateFriendship(ctx, "alice", "alice"); !errors.Is(err, core.ErrSameParty) {
		t.Fatalf("expected ErrSameParty, got %v", err)
	}
}

func TestCashGroupsAndFlows(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	food, err := repo.CreateCashGroup(ctx, core.CashGroup{
		Name: "Food", Budget: decimal.NewNullDecimal(amount("300")), IsActive: true, Owner: "u1",
	})
	if err != nil {
		t.Fatalf("CreateCashGroup: %v", err)
	}
	old, err := repo.CreateCashGroup(ctx, core.CashGroup{Name: "Archive", Owner: "u1"})
	if err != nil {
		t.Fatalf("CreateCashGroup: %v", err)
	}

	all, err := repo.ListCashGroups(ctx, "u1", false)
	if err != nil || len(all) != 2 {
		t.Fatalf("ListCashGroups = %v, %v", all, err)
	}
	active, err := repo.ListCashGroups(ctx, "u1", true)
	if err != nil || len(active) != 1 || active[0].ID != food.ID {
		t.Fatalf("active groups = %v, %v", active, err)
	}
	if !active[0].Budgeted() {
		t.Errorf("budget lost: %+v", active[0].Budget)
	}

	old.IsActive = true
	old.Budget = decimal.NewNullDecimal(amount("12.5"))
	if err := repo.UpdateCashGroup(ctx, old); err != nil {
		t.Fatalf("UpdateCashGroup: %v", err)
	}
	got, err := repo.GetCashGroup(ctx, "u1", old.ID)
	if err != nil || !got.Budget.Decimal.Equal(amount("12.5")) || !got.IsActive {
		t.Fatalf("GetCashGroup = %+v, %v", got, err)
	}
	if _, err := repo.GetCashGroup(ctx, "u2", old.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("other owner must not see the group, got %v", err)
	}

	march := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	cf, err := repo.CreateCashFlow(ctx, core.CashFlow{
		Name: "Groceries", Amount: amount("42.10"), Date: march, CashGroupID: food.ID, Owner: "u1",
	})
	if err != nil {
		t.Fatalf("CreateCashFlow: %v", err)
	}
	if cf.CashGroup == nil || cf.CashGroup.Name != "Food" {
		t.Fatalf("cash group not joined: %+v", cf)
	}
	if _, err := repo.CreateCashFlow(ctx, core.CashFlow{
		Name: "Taxi", Amount: amount("9"), Date: march.AddDate(0, 1, 0), Owner: "u1",
	}); err != nil {
		t.Fatalf("CreateCashFlow: %v", err)
	}

	inMarch, err := repo.ListCashFlowsInMonth(ctx, "u1", core.NewMonth(2024, 3))
	if err != nil || len(inMarch) != 1 || inMarch[0].ID != cf.ID {
		t.Fatalf("ListCashFlowsInMonth = %v, %v", inMarch, err)
	}
	everything, err := repo.ListCashFlowsInRange(ctx, "u1", time.Time{}, time.Time{})
	if err != nil || len(everything) != 2 || everything[0].Name != "Taxi" {
		t.Fatalf("ListCashFlowsInRange = %v, %v", everything, err)
	}

	cf.Amount = amount("40")
	cf.CashGroupID = ""
	if err := repo.UpdateCashFlow(ctx, cf); err != nil {
		t.Fatalf("UpdateCashFlow: %v", err)
	}
	cf, err = repo.GetCashFlow(ctx, "u1", cf.ID)
	if err != nil || cf.CashGroup != nil || !cf.Amount.Equal(amount("40")) {
		t.Fatalf("GetCashFlow = %+v, %v", cf, err)
	}
	if err := repo.DeleteCashFlow(ctx, "u1", cf.ID); err != nil {
		t.Fatalf("DeleteCashFlow: %v", err)
	}
	if err := repo.DeleteCashFlow(ctx, "u1", cf.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecurringPlanRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	flow, err := repo.CreateRecurring(ctx, "u1", recurring.FlowForm{
		Name: "Rent",
		Timeframes: []recurring.TimeframeForm{
			{Amount: "100", Month: 1, Year: 2024},
			{Amount: "150", Month: 6, Year: 2024},
		},
	})
	if err != nil {
		t.Fatalf("CreateRecurring: %v", err)
	}
	if len(flow.Timeframes) != 2 || flow.Timeframes[0].Start != core.NewMonth(2024, 1) {
		t.Fatalf("timeframes = %+v", flow.Timeframes)
	}

	form := recurring.FormFromFlow(flow)
	// Newest first: drop June, change January, add a null September.
	form.Timeframes = []recurring.TimeframeForm{
		{ID: form.Timeframes[1].ID, Amount: "110", Month: 1, Year: 2024},
		{Amount: "", Month: 9, Year: 2024},
	}
	form.Name = "Rent (flat)"

	plan, err := recurring.Diff("u1", flow, form)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if err := repo.ApplyRecurringPlan(ctx, "u1", flow.ID, form, plan); err != nil {
		t.Fatalf("ApplyRecurringPlan: %v", err)
	}

	flows, err := repo.ListRecurring(ctx, "u1")
	if err != nil || len(flows) != 1 {
		t.Fatalf("ListRecurring = %v, %v", flows, err)
	}
	got := flows[0]
	if got.Name != "Rent (flat)" || len(got.Timeframes) != 2 {
		t.Fatalf("flow = %+v", got)
	}
	if !got.Timeframes[0].Amount.Decimal.Equal(amount("110")) {
		t.Errorf("january = %v", got.Timeframes[0].Amount)
	}
	if got.Timeframes[1].Amount.Valid {
		t.Errorf("september should be null, got %v", got.Timeframes[1].Amount)
	}

	// Applying the same form again is a no-op.
	again, err := recurring.Diff("u1", got, recurring.FormFromFlow(got))
	if err != nil || !again.Empty() {
		t.Fatalf("second diff = %+v, %v", again, err)
	}

	if err := repo.DeleteRecurring(ctx, "u1", flow.ID); err != nil {
		t.Fatalf("DeleteRecurring: %v", err)
	}
	if _, err := repo.GetRecurring(ctx, "u1", flow.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDebtLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	for _, p := range []core.Profile{{ID: "a", FullName: "Ann"}, {ID: "b", FullName: "Ben"}} {
		if _, err := repo.UpsertProfile(ctx, p); err != nil {
			t.Fatalf("UpsertProfile: %v", err)
		}
	}

	d, err := repo.CreateDebt(ctx, core.Debt{
		Name: "Dinner", Amount: amount("30"), Date: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		FromID: "a", ForID: "b", State: core.Accepted,
	})
	if err != nil {
		t.Fatalf("CreateDebt: %v", err)
	}
	if d.State != core.Pending || d.From == nil || d.From.FullName != "Ann" {
		t.Fatalf("created debt = %+v", d)
	}

	if err := repo.UpdateDebtState(ctx, d.ID, core.Pending, core.Accepted); err != nil {
		t.Fatalf("UpdateDebtState: %v", err)
	}
	if err := repo.UpdateDebtState(ctx, d.ID, core.Pending, core.Rejected); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	pending, err := repo.CreateDebt(ctx, core.Debt{
		Name: "Taxi", Amount: amount("10"), Date: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
		FromID: "b", ForID: "a",
	})
	if err != nil {
		t.Fatalf("CreateDebt: %v", err)
	}

	open, err := repo.ListOpenDebts(ctx, "a", "b")
	if err != nil || len(open) != 2 {
		t.Fatalf("ListOpenDebts = %v, %v", open, err)
	}

	id := uuid.New()
	if err := repo.SettleDebts(ctx, []string{d.ID, pending.ID}, id); !errors.Is(err, ErrConflict) {
		t.Fatalf("atomic settle with a pending debt must fail, got %v", err)
	}
	if got, _ := repo.GetDebt(ctx, d.ID); got.IsSettled() {
		t.Fatalf("failed atomic settle left %s settled", d.ID)
	}

	if err := repo.SetSettlementID(ctx, d.ID, id); err != nil {
		t.Fatalf("SetSettlementID: %v", err)
	}
	if err := repo.SetSettlementID(ctx, d.ID, uuid.New()); !errors.Is(err, ErrConflict) {
		t.Fatalf("settling twice must conflict, got %v", err)
	}

	batches, err := ledger.GroupSettled(ctx, repo, "b", 0)
	if err != nil {
		t.Fatalf("GroupSettled: %v", err)
	}
	if len(batches) != 1 || batches[0].SettlementID != id || len(batches[0].Debts) != 1 {
		t.Fatalf("batches = %+v", batches)
	}

	refs, err := repo.RecentSettlements(ctx, 10)
	if err != nil || len(refs) != 1 || refs[0].ID != id || refs[0].UserID != d.FromID {
		t.Fatalf("RecentSettlements = %+v, %v", refs, err)
	}

	if err := repo.DeleteDebt(ctx, d.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("settled debts cannot be deleted, got %v", err)
	}
	if err := repo.DeleteDebt(ctx, pending.ID); err != nil {
		t.Fatalf("DeleteDebt: %v", err)
	}
}
