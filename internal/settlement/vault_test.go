package settlement_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"branchsettle/backend/internal/domain"
	"branchsettle/backend/internal/settlement"
)

func TestIsCashExpense(t *testing.T) {
	tests := []struct {
		name    string
		expense domain.Expense
		want    bool
	}{
		{name: "explicit cash", expense: domain.Expense{PaymentMethod: "cash"}, want: true},
		{name: "korean label", expense: domain.Expense{PaymentMethod: "현금"}, want: true},
		{name: "card ignores description", expense: domain.Expense{PaymentMethod: "card", Description: "현금 영수증"}, want: false},
		{name: "description marker", expense: domain.Expense{Description: "퀵 기사 현금 지급"}, want: true},
		{name: "english marker", expense: domain.Expense{Description: "Paid in CASH"}, want: true},
		{name: "no marker", expense: domain.Expense{Description: "포장재"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, settlement.IsCashExpense(tt.expense))
		})
	}
}

func TestDeliveryCash_TakesLargerSource(t *testing.T) {
	w := day(2024, 1, 15)
	delivered := simpleOrder("o-1", gangnam.Name, 50000, domain.PaymentMethodCard, at(2024, 1, 14, 9, 0), at(2024, 1, 14, 9, 0))
	delivered.DeliveryDate = at(2024, 1, 15, 13, 0)
	delivered.ActualDeliveryCostCash = 8000

	elsewhere := delivered
	elsewhere.ID = "o-2"
	elsewhere.DeliveryDate = at(2024, 1, 16, 13, 0)

	expenses := []domain.Expense{
		{ID: "e-1", BranchID: gangnam.ID, Date: at(2024, 1, 15, 13, 0), Category: domain.ExpenseCategoryTransport, PaymentMethod: "cash", Amount: 5000},
		{ID: "e-2", BranchID: gangnam.ID, Date: at(2024, 1, 15, 14, 0), Category: domain.ExpenseCategoryTransport, PaymentMethod: "card", Amount: 9000},
		{ID: "e-3", BranchID: seocho.ID, Date: at(2024, 1, 15, 14, 0), Category: domain.ExpenseCategoryTransport, PaymentMethod: "cash", Amount: 9000},
	}

	got := settlement.DeliveryCash([]domain.Order{delivered, elsewhere}, expenses, gangnam, w)
	assert.Equal(t, domain.DeliveryCash{FromOrders: 8000, FromExpenses: 5000, Applied: 8000}, got)

	expenses[0].Amount = 12000
	got = settlement.DeliveryCash([]domain.Order{delivered}, expenses, gangnam, w)
	assert.Equal(t, int64(12000), got.Applied)
}

func TestDeliveryCash_FollowsAcceptedTransfer(t *testing.T) {
	order := transferred(
		simpleOrder("o-1", gangnam.Name, 50000, domain.PaymentMethodCard, at(2024, 1, 15, 9, 0), time.Time{}),
		seocho.Name, domain.TransferStatusAccepted, 70, 30,
	)
	order.DeliveryDate = at(2024, 1, 15, 17, 0)
	order.ActualDeliveryCostCash = 6000

	w := day(2024, 1, 15)
	assert.Zero(t, settlement.DeliveryCash([]domain.Order{order}, nil, gangnam, w).FromOrders)
	assert.Equal(t, int64(6000), settlement.DeliveryCash([]domain.Order{order}, nil, seocho, w).FromOrders)
}

func TestOtherCashExpenses(t *testing.T) {
	expenses := []domain.Expense{
		{ID: "e-1", BranchID: gangnam.ID, Date: at(2024, 1, 15, 9, 0), Category: domain.ExpenseCategoryMaterial, PaymentMethod: "cash", Amount: 3000},
		{ID: "e-2", BranchID: gangnam.ID, Date: at(2024, 1, 15, 9, 0), Category: domain.ExpenseCategoryOther, Description: "현금 지출", Amount: 2000},
		{ID: "e-3", BranchID: gangnam.ID, Date: at(2024, 1, 15, 9, 0), Category: domain.ExpenseCategoryTransport, PaymentMethod: "cash", Amount: 7000},
		{ID: "e-4", BranchID: gangnam.ID, Date: at(2024, 1, 16, 9, 0), Category: domain.ExpenseCategoryMaterial, PaymentMethod: "cash", Amount: 4000},
		{ID: "e-5", BranchID: gangnam.ID, Category: domain.ExpenseCategoryMaterial, PaymentMethod: "cash", Amount: 9999},
	}

	assert.Equal(t, int64(5000), settlement.OtherCashExpenses(expenses, gangnam, day(2024, 1, 15)))
}

func TestPreviousBalance_ResolutionOrder(t *testing.T) {
	persisted := &domain.SettlementRecord{PreviousVaultBalance: 100000, CashSalesToday: 20000, VaultDeposit: 50000}
	reconstructed := &domain.SettlementRecord{PreviousVaultBalance: 10000, Virtual: true}

	amount, source := settlement.PreviousBalance(42000, persisted, reconstructed)
	assert.Equal(t, int64(42000), amount)
	assert.Equal(t, domain.BalanceSourceManual, source)

	amount, source = settlement.PreviousBalance(0, persisted, reconstructed)
	assert.Equal(t, int64(70000), amount)
	assert.Equal(t, domain.BalanceSourcePersisted, source)

	amount, source = settlement.PreviousBalance(0, nil, reconstructed)
	assert.Equal(t, int64(10000), amount)
	assert.Equal(t, domain.BalanceSourceReconstructed, source)

	amount, source = settlement.PreviousBalance(0, nil, nil)
	assert.Zero(t, amount)
	assert.Equal(t, domain.BalanceSourceNone, source)
}

func TestComputeView_RemainingIsDeterministic(t *testing.T) {
	date := at(2024, 1, 15, 0, 0)
	delivered := simpleOrder("o-2", gangnam.Name, 30000, domain.PaymentMethodCard, at(2024, 1, 15, 11, 0), at(2024, 1, 15, 11, 0))
	delivered.DeliveryDate = at(2024, 1, 15, 15, 0)
	delivered.ActualDeliveryCostCash = 4000

	in := settlement.DayInput{
		Branch: gangnam,
		Date:   date,
		Window: cal.DayWindow(date),
		Orders: []domain.Order{
			simpleOrder("o-1", gangnam.Name, 45000, domain.PaymentMethodCash, at(2024, 1, 15, 10, 0), at(2024, 1, 15, 10, 30)),
			delivered,
		},
		Expenses: []domain.Expense{
			{ID: "e-1", BranchID: gangnam.ID, Date: at(2024, 1, 15, 12, 0), Category: domain.ExpenseCategoryMaterial, PaymentMethod: "cash", Amount: 6000},
		},
		VaultDeposit: 20000,
		PriorRecord:  &domain.SettlementRecord{PreviousVaultBalance: 100000},
	}

	first := settlement.ComputeView(in)
	second := settlement.ComputeView(in)

	// 100000 + 45000 - 20000 - 4000 - 6000
	assert.Equal(t, int64(115000), first.Vault.Remaining)
	assert.Equal(t, first, second)
	assert.Equal(t, "2024-01-15", first.Date)
	assert.Equal(t, domain.BalanceSourcePersisted, first.Vault.PreviousBalanceSource)

	record := settlement.RecordFromView(first, date)
	assert.Equal(t, first.Vault.Remaining, record.ClosingBalance())
}
