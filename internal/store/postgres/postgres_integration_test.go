package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"branchsettle/backend/internal/domain"
	"branchsettle/backend/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("BRANCHSETTLE_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set BRANCHSETTLE_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL, time.FixedZone("KST", 9*60*60))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestSettlementRecordUpsertAndAnchorLookup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	kst := s.cal.Location()

	branchID := fmt.Sprintf("it-branch-%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM settlement_records WHERE branch_id = $1`, branchID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM branches WHERE id = $1`, branchID)
	})
	if _, err := s.CreateBranch(ctx, domain.Branch{ID: branchID, Name: branchID}); err != nil {
		t.Fatalf("create branch: %v", err)
	}

	jan10 := time.Date(2024, 1, 10, 0, 0, 0, 0, kst)
	jan15 := time.Date(2024, 1, 15, 0, 0, 0, 0, kst)

	first, err := s.SaveSettlementRecord(ctx, domain.SettlementRecord{BranchID: branchID, Date: jan10, PreviousVaultBalance: 100000, VaultDeposit: 30000})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	again, err := s.SaveSettlementRecord(ctx, domain.SettlementRecord{BranchID: branchID, Date: jan10, PreviousVaultBalance: 100000, VaultDeposit: 40000})
	if err != nil {
		t.Fatalf("resave: %v", err)
	}
	if again.ID != first.ID || again.VaultDeposit != 40000 {
		t.Fatalf("expected upsert on (branch, date), got %+v", again)
	}

	anchor, err := s.FindLastSettlementBefore(ctx, branchID, jan15)
	if err != nil {
		t.Fatalf("find anchor: %v", err)
	}
	if s.cal.DayKey(anchor.Date) != "2024-01-10" {
		t.Fatalf("expected 2024-01-10 anchor, got %s", anchor.Date)
	}
	if _, err := s.GetSettlementRecord(ctx, branchID, jan15); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected missing record to be not found, got %v", err)
	}
	if _, err := s.SaveSettlementRecord(ctx, domain.SettlementRecord{BranchID: branchID + "-missing", Date: jan15}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected unknown branch to be not found, got %v", err)
	}
}

func TestOrderRoundTripKeepsPaymentShape(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	kst := s.cal.Location()

	orderID := fmt.Sprintf("it-order-%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	})

	second := int64(70000)
	order := domain.Order{
		ID:         orderID,
		BranchName: "강남점",
		OrderDate:  time.Date(2024, 1, 10, 9, 0, 0, 0, kst),
		Status:     domain.OrderStatusCompleted,
		Summary:    domain.OrderSummary{Total: 100000},
		Payment: domain.SplitPayment{
			Status:       domain.PaymentStatusPaid,
			FirstMethod:  domain.PaymentMethodCard,
			FirstAmount:  30000,
			FirstPaidAt:  time.Date(2024, 1, 10, 9, 10, 0, 0, kst),
			SecondMethod: domain.PaymentMethodCash,
			SecondAmount: &second,
			SecondPaidAt: time.Date(2024, 1, 20, 14, 0, 0, 0, kst),
		},
		Transfer: domain.Transferred{Status: domain.TransferStatusAccepted, ProcessBranchName: "서초점", Split: domain.AmountSplit{OrderBranchPercent: 70, ProcessBranchPercent: 30}},
	}
	if _, err := s.UpsertOrders(ctx, []domain.Order{order}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.ListOrders(ctx, domain.OrderFilter{
		From: time.Date(2024, 1, 20, 0, 0, 0, 0, kst),
		To:   time.Date(2024, 1, 20, 23, 59, 59, 0, kst),
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var found *domain.Order
	for i := range got {
		if got[i].ID == orderID {
			found = &got[i]
		}
	}
	if found == nil {
		t.Fatalf("expected order to match by second payment date")
	}
	split, ok := found.Payment.(domain.SplitPayment)
	if !ok {
		t.Fatalf("expected split payment, got %T", found.Payment)
	}
	if split.SecondAmountFor(100000) != 70000 || !split.FirstPaidAt.Equal(order.Payment.(domain.SplitPayment).FirstPaidAt) {
		t.Fatalf("unexpected split payment %+v", split)
	}
	if transfer, ok := found.Transfer.(domain.Transferred); !ok || !transfer.Valid() {
		t.Fatalf("expected accepted transfer, got %+v", found.Transfer)
	}
}
