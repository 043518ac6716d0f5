package settlement

//go:generate mockgen -destination=mocks/mock_ledger.go -package=mocks branchsettle/backend/internal/settlement LedgerSource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"branchsettle/backend/internal/datenorm"
	"branchsettle/backend/internal/domain"
	"branchsettle/backend/internal/store"
)

// MaxGapDays is the first gap length that is no longer bridged.
const MaxGapDays = 60

// LedgerSource is the read side the reconstructor replays from. Missing
// records are reported as store.ErrNotFound.
type LedgerSource interface {
	GetSettlementRecord(ctx context.Context, branchID string, date time.Time) (domain.SettlementRecord, error)
	FindLastSettlementBefore(ctx context.Context, branchID string, date time.Time) (domain.SettlementRecord, error)
	ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)
	ListExpenses(ctx context.Context, filter domain.ExpenseFilter) ([]domain.Expense, error)
}

type Reconstructor struct {
	source LedgerSource
	cal    datenorm.Calendar
}

func NewReconstructor(source LedgerSource, cal datenorm.Calendar) *Reconstructor {
	return &Reconstructor{source: source, cal: cal}
}

// Reconstruct returns the persisted record for date when there is one, and
// otherwise replays cash flow forward from the nearest earlier record.
func (r *Reconstructor) Reconstruct(ctx context.Context, branch domain.Branch, date time.Time) (domain.Reconstruction, error) {
	target := r.cal.StartOfDay(date)

	record, err := r.source.GetSettlementRecord(ctx, branch.ID, target)
	if err == nil {
		return domain.Reconstruction{Status: domain.ReconstructionPersisted, Record: &record}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.Reconstruction{}, err
	}

	anchor, err := r.source.FindLastSettlementBefore(ctx, branch.ID, target)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Reconstruction{Status: domain.ReconstructionNoAnchor}, nil
	}
	if err != nil {
		return domain.Reconstruction{}, err
	}
	return r.Replay(ctx, branch, anchor, target)
}

// Replay synthesizes the record for date from anchor without looking for a
// persisted record first. Deposits during the gap count as zero.
func (r *Reconstructor) Replay(ctx context.Context, branch domain.Branch, anchor domain.SettlementRecord, date time.Time) (domain.Reconstruction, error) {
	target := r.cal.StartOfDay(date)
	anchorDay := r.cal.StartOfDay(anchor.Date)
	gap := r.cal.DaysBetween(anchorDay, target)
	result := domain.Reconstruction{AnchorDate: r.cal.DayKey(anchorDay), GapDays: gap}

	if gap < 1 {
		result.Status = domain.ReconstructionNoAnchor
		return result, nil
	}
	if gap >= MaxGapDays {
		result.Status = domain.ReconstructionGapTooLarge
		return result, nil
	}

	first := r.cal.AddDays(anchorDay, 1)
	span := r.cal.RangeWindow(first, target)
	orders, err := r.source.ListOrders(ctx, domain.OrderFilter{From: span.From, To: span.To})
	if err != nil {
		return domain.Reconstruction{}, fmt.Errorf("list orders for replay: %w", err)
	}
	expenseFilter := domain.ExpenseFilter{BranchID: branch.ID, From: span.From, To: span.To}
	if branch.ID == domain.AllBranches {
		expenseFilter.BranchID = ""
	}
	expenses, err := r.source.ListExpenses(ctx, expenseFilter)
	if err != nil {
		return domain.Reconstruction{}, fmt.Errorf("list expenses for replay: %w", err)
	}
	index := newDayIndex(r.cal, orders, expenses)

	running := anchor.ClosingBalance()
	var last dayFlow
	for day := first; !day.After(target); day = r.cal.AddDays(day, 1) {
		key := r.cal.DayKey(day)
		last = replayDay(index.orders[key], index.expenses[key], branch, r.cal.DayWindow(day))
		if day.Equal(target) {
			break
		}
		running += last.cashSales - last.delivery - last.otherExpenses
	}

	key := r.cal.DayKey(target)
	result.Status = domain.ReconstructionReconstructed
	result.Record = &domain.SettlementRecord{
		ID:                    "virtual-" + branch.ID + "-" + key,
		BranchID:              branch.ID,
		Date:                  target,
		PreviousVaultBalance:  running,
		CashSalesToday:        last.cashSales,
		DeliveryCostCashToday: last.delivery,
		CashExpenseToday:      last.otherExpenses,
		Virtual:               true,
	}
	return result, nil
}

type dayFlow struct {
	cashSales     int64
	delivery      int64
	otherExpenses int64
}

func replayDay(orders []domain.Order, expenses []domain.Expense, branch domain.Branch, w datenorm.Window) dayFlow {
	name := targetName(branch)
	var flow dayFlow
	for _, order := range orders {
		if order.Status == domain.OrderStatusCanceled || roleOf(order, name) == RoleNone {
			continue
		}
		if !domain.PaymentStatusOf(order.Payment).Settled() {
			continue
		}
		for _, inst := range settledInstallments(order, w) {
			if inst.Method == domain.PaymentMethodCash {
				flow.cashSales += inst.Amount
			}
		}
	}
	flow.delivery = DeliveryCash(orders, expenses, branch, w).Applied
	flow.otherExpenses = OtherCashExpenses(expenses, branch, w)
	return flow
}

// dayIndex buckets prefetched facts by every business day they touch so the
// replay loop never rescans the full range.
type dayIndex struct {
	orders   map[string][]domain.Order
	expenses map[string][]domain.Expense
}

func newDayIndex(cal datenorm.Calendar, orders []domain.Order, expenses []domain.Expense) dayIndex {
	idx := dayIndex{
		orders:   make(map[string][]domain.Order),
		expenses: make(map[string][]domain.Expense),
	}
	for _, order := range orders {
		seen := make(map[string]bool, 4)
		for _, at := range order.Activity() {
			key := cal.DayKey(at)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			idx.orders[key] = append(idx.orders[key], order)
		}
	}
	for _, e := range expenses {
		if key := cal.DayKey(e.Date); key != "" {
			idx.expenses[key] = append(idx.expenses[key], e)
		}
	}
	return idx
}
