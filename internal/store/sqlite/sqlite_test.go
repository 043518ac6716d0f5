package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"branchsettle/backend/internal/domain"
	"branchsettle/backend/internal/store"
)

var kst = time.FixedZone("KST", 9*60*60)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "settle.db"), kst)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if _, err := s.CreateBranch(context.Background(), domain.Branch{ID: "gangnam", Name: "강남점"}); err != nil {
		t.Fatalf("seed branch: %v", err)
	}
	return s
}

func TestSettlementUpsertKeepsIdentity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, kst)

	first, err := s.SaveSettlementRecord(ctx, domain.SettlementRecord{BranchID: "gangnam", Date: day, VaultDeposit: 1000})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	second, err := s.SaveSettlementRecord(ctx, domain.SettlementRecord{BranchID: "gangnam", Date: day, VaultDeposit: 2000})
	if err != nil {
		t.Fatalf("resave: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same id across upserts, got %s and %s", first.ID, second.ID)
	}
	if second.VaultDeposit != 2000 {
		t.Fatalf("expected last write to win, got %d", second.VaultDeposit)
	}
	if !second.Date.Equal(day) {
		t.Fatalf("expected date %s, got %s", day, second.Date)
	}

	if _, err := s.SaveSettlementRecord(ctx, domain.SettlementRecord{BranchID: "busan", Date: day}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected unknown branch to be not found, got %v", err)
	}
}

func TestFindLastSettlementBefore(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, d := range []int{1, 9, 20} {
		if _, err := s.SaveSettlementRecord(ctx, domain.SettlementRecord{BranchID: "gangnam", Date: time.Date(2024, 3, d, 0, 0, 0, 0, kst)}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	anchor, err := s.FindLastSettlementBefore(ctx, "gangnam", time.Date(2024, 3, 20, 0, 0, 0, 0, kst))
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if anchor.Date.Day() != 9 {
		t.Fatalf("expected the 9th as anchor, got %s", anchor.Date)
	}
	if _, err := s.FindLastSettlementBefore(ctx, "gangnam", time.Date(2024, 3, 1, 0, 0, 0, 0, kst)); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	records, err := s.ListSettlementRecords(ctx, "gangnam", time.Date(2024, 3, 2, 0, 0, 0, 0, kst), time.Time{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 || records[0].Date.Day() != 9 || records[1].Date.Day() != 20 {
		t.Fatalf("unexpected history %+v", records)
	}
}

func TestOrdersRoundTripAndRangeFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	second := int64(70000)
	orders := []domain.Order{
		{
			ID:         "split",
			BranchName: "강남점",
			OrderDate:  time.Date(2024, 1, 10, 9, 0, 0, 0, kst),
			Status:     domain.OrderStatusCompleted,
			Items:      []domain.OrderItem{{Name: "꽃다발", Quantity: 1, UnitPrice: 100000}},
			Summary:    domain.OrderSummary{Subtotal: 100000, Total: 100000},
			Payment: domain.SplitPayment{
				Status:       domain.PaymentStatusPaid,
				FirstMethod:  domain.PaymentMethodCard,
				FirstAmount:  30000,
				FirstPaidAt:  time.Date(2024, 1, 10, 9, 10, 0, 0, kst),
				SecondMethod: domain.PaymentMethodCash,
				SecondAmount: &second,
				SecondPaidAt: time.Date(2024, 1, 20, 14, 0, 0, 0, kst),
			},
			Transfer: domain.NoTransfer{},
		},
		{
			ID:         "old",
			BranchName: "강남점",
			OrderDate:  time.Date(2023, 12, 1, 9, 0, 0, 0, kst),
			Payment:    domain.SimplePayment{Method: domain.PaymentMethodCard, Status: domain.PaymentStatusPaid, CompletedAt: time.Date(2023, 12, 1, 10, 0, 0, 0, kst)},
		},
	}
	if n, err := s.UpsertOrders(ctx, orders); err != nil || n != 2 {
		t.Fatalf("upsert: n=%d err=%v", n, err)
	}
	// Re-importing the same id overwrites it.
	if _, err := s.UpsertOrders(ctx, orders[:1]); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	got, err := s.ListOrders(ctx, domain.OrderFilter{
		From: time.Date(2024, 1, 20, 0, 0, 0, 0, kst),
		To:   time.Date(2024, 1, 21, 0, 0, 0, 0, kst).Add(-time.Nanosecond),
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "split" {
		t.Fatalf("expected only the split order, got %+v", got)
	}
	split, ok := got[0].Payment.(domain.SplitPayment)
	if !ok {
		t.Fatalf("expected split payment, got %T", got[0].Payment)
	}
	if split.SecondAmountFor(100000) != 70000 || split.SecondPaidAt.Location() != kst {
		t.Fatalf("unexpected split payment %+v", split)
	}
	if len(got[0].Items) != 1 || got[0].Items[0].Name != "꽃다발" {
		t.Fatalf("expected items to round trip, got %+v", got[0].Items)
	}
	if _, ok := got[0].Transfer.(domain.NoTransfer); !ok {
		t.Fatalf("expected no transfer, got %T", got[0].Transfer)
	}
}

func TestExpensesFilterByBranchAndDay(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	noon := time.Date(2024, 1, 15, 12, 0, 0, 0, kst)
	if _, err := s.UpsertExpenses(ctx, []domain.Expense{
		{ID: "e-1", BranchID: "gangnam", Date: noon, Category: domain.ExpenseCategoryTransport, PaymentMethod: "cash", Amount: 5000},
		{ID: "e-2", BranchID: "seocho", Date: noon, Category: domain.ExpenseCategoryMaterial, Amount: 3000},
		{ID: "e-3", BranchID: "gangnam", Date: noon.AddDate(0, 0, 1), Category: domain.ExpenseCategoryOther, Amount: 1000},
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.ListExpenses(ctx, domain.ExpenseFilter{
		BranchID: "gangnam",
		From:     time.Date(2024, 1, 15, 0, 0, 0, 0, kst),
		To:       time.Date(2024, 1, 16, 0, 0, 0, 0, kst).Add(-time.Nanosecond),
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "e-1" || !got[0].Date.Equal(noon) {
		t.Fatalf("unexpected expenses %+v", got)
	}
}

func TestUsersAndBranches(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateBranch(ctx, domain.Branch{ID: "gangnam2", Name: "강남점"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected duplicate branch name conflict, got %v", err)
	}
	if err := s.CreateUser(ctx, domain.UserAccount{Username: "Kim", Password: "hash", Role: domain.RoleManager, BranchID: "gangnam"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := s.CreateUser(ctx, domain.UserAccount{Username: "kim", Password: "hash", Role: domain.RoleManager, BranchID: "gangnam"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected duplicate username conflict, got %v", err)
	}
	if err := s.UpdateUserPassword(ctx, "KIM", "new-hash"); err != nil {
		t.Fatalf("update password: %v", err)
	}
	users, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 1 || users[0].Username != "kim" || users[0].Password != "new-hash" || users[0].BranchID != "gangnam" {
		t.Fatalf("unexpected users %+v", users)
	}
	if err := s.UpdateUserPassword(ctx, "nobody", "x"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
