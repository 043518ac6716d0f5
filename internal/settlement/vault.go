package settlement

import (
	"strings"
	"time"

	"branchsettle/backend/internal/datenorm"
	"branchsettle/backend/internal/domain"
)

var cashMarkers = []string{"현금", "cash"}

// IsCashExpense reports whether an expense left the drawer in cash. The
// description is only consulted when no payment method was recorded.
func IsCashExpense(e domain.Expense) bool {
	method := strings.TrimSpace(e.PaymentMethod)
	if method != "" {
		return domain.NormalizePaymentMethod(method) == domain.PaymentMethodCash
	}
	desc := strings.ToLower(e.Description)
	for _, marker := range cashMarkers {
		if strings.Contains(desc, marker) {
			return true
		}
	}
	return false
}

// fulfilledBy reports whether branch delivered the order: the processing branch
// once a transfer is accepted, the originating branch otherwise.
func fulfilledBy(order domain.Order, branch domain.Branch) bool {
	if branch.ID == domain.AllBranches {
		return true
	}
	if t, ok := validTransfer(order); ok {
		return t.ProcessBranchName == branch.Name
	}
	return order.BranchName == branch.Name
}

func targetName(branch domain.Branch) string {
	if branch.ID == domain.AllBranches {
		return domain.AllBranches
	}
	return branch.Name
}

func expenseOf(e domain.Expense, branch domain.Branch) bool {
	return branch.ID == domain.AllBranches || e.BranchID == branch.ID
}

// DeliveryCash totals courier cash for the day from both sources and applies
// the larger one.
func DeliveryCash(orders []domain.Order, expenses []domain.Expense, branch domain.Branch, w datenorm.Window) domain.DeliveryCash {
	var out domain.DeliveryCash
	for _, order := range orders {
		if order.Status == domain.OrderStatusCanceled || !w.Contains(order.DeliveryDate) {
			continue
		}
		if fulfilledBy(order, branch) {
			out.FromOrders += order.ActualDeliveryCostCash
		}
	}
	for _, e := range expenses {
		if !expenseOf(e, branch) || !w.Contains(e.Date) {
			continue
		}
		if e.Category == domain.ExpenseCategoryTransport && IsCashExpense(e) {
			out.FromExpenses += e.Amount
		}
	}
	// TODO: confirm with operations which source should win instead of the larger one.
	out.Applied = max(out.FromOrders, out.FromExpenses)
	return out
}

func OtherCashExpenses(expenses []domain.Expense, branch domain.Branch, w datenorm.Window) int64 {
	var total int64
	for _, e := range expenses {
		if !expenseOf(e, branch) || !w.Contains(e.Date) {
			continue
		}
		if e.Category != domain.ExpenseCategoryTransport && IsCashExpense(e) {
			total += e.Amount
		}
	}
	return total
}

// PreviousBalance picks the opening balance: a non-zero manual value, then the
// persisted record of the previous day, then a reconstructed one, then zero.
func PreviousBalance(manual int64, persisted *domain.SettlementRecord, reconstructed *domain.SettlementRecord) (int64, string) {
	switch {
	case manual != 0:
		return manual, domain.BalanceSourceManual
	case persisted != nil:
		return persisted.ClosingBalance(), domain.BalanceSourcePersisted
	case reconstructed != nil:
		return reconstructed.ClosingBalance(), domain.BalanceSourceReconstructed
	default:
		return 0, domain.BalanceSourceNone
	}
}

// DayInput is everything ComputeView needs. The caller fetches it.
type DayInput struct {
	Branch         domain.Branch
	Date           time.Time
	Window         datenorm.Window
	Orders         []domain.Order
	Expenses       []domain.Expense
	ManualPrevious int64
	// ManualSource labels a non-zero ManualPrevious; empty means manual.
	ManualSource   string
	VaultDeposit   int64
	PriorRecord    *domain.SettlementRecord
	Reconstruction *domain.Reconstruction
}

// ComputeView is a pure function of its input; identical inputs give identical views.
func ComputeView(in DayInput) domain.SettlementView {
	sales := Bucketize(in.Orders, targetName(in.Branch), in.Window)
	delivery := DeliveryCash(in.Orders, in.Expenses, in.Branch, in.Window)
	other := OtherCashExpenses(in.Expenses, in.Branch, in.Window)

	var reconstructed *domain.SettlementRecord
	if in.Reconstruction != nil {
		reconstructed = in.Reconstruction.Record
	}
	previous, source := PreviousBalance(in.ManualPrevious, in.PriorRecord, reconstructed)
	if source == domain.BalanceSourceManual && in.ManualSource != "" {
		source = in.ManualSource
	}

	vault := domain.VaultCash{
		PreviousVaultBalance:  previous,
		PreviousBalanceSource: source,
		CashSalesToday:        sales.Buckets.Cash.Amount,
		VaultDeposit:          in.VaultDeposit,
		DeliveryCostCash:      delivery.Applied,
		OtherCashExpenses:     other,
	}
	vault.Remaining = vault.PreviousVaultBalance + vault.CashSalesToday - vault.VaultDeposit - vault.DeliveryCostCash - vault.OtherCashExpenses

	return domain.SettlementView{
		BranchID:       in.Branch.ID,
		BranchName:     in.Branch.Name,
		Date:           in.Date.Format(datenorm.DateLayout),
		Sales:          sales,
		Delivery:       delivery,
		Vault:          vault,
		Reconstruction: in.Reconstruction,
	}
}

// RecordFromView turns a computed view into the record persisted for it.
func RecordFromView(view domain.SettlementView, date time.Time) domain.SettlementRecord {
	return domain.SettlementRecord{
		BranchID:              view.BranchID,
		Date:                  date,
		PreviousVaultBalance:  view.Vault.PreviousVaultBalance,
		CashSalesToday:        view.Vault.CashSalesToday,
		VaultDeposit:          view.Vault.VaultDeposit,
		DeliveryCostCashToday: view.Vault.DeliveryCostCash,
		CashExpenseToday:      view.Vault.OtherCashExpenses,
	}
}
