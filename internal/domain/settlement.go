package domain

import "time"

type SettlementRecord struct {
	ID                    string    `json:"id"`
	BranchID              string    `json:"branch_id"`
	Date                  time.Time `json:"date"`
	PreviousVaultBalance  int64     `json:"previous_vault_balance"`
	CashSalesToday        int64     `json:"cash_sales_today"`
	VaultDeposit          int64     `json:"vault_deposit"`
	DeliveryCostCashToday int64     `json:"delivery_cost_cash_today"`
	CashExpenseToday      int64     `json:"cash_expense_today"`
	Virtual               bool      `json:"virtual"`
	CreatedAt             time.Time `json:"created_at,omitzero"`
	UpdatedAt             time.Time `json:"updated_at,omitzero"`
}

func (r SettlementRecord) ClosingBalance() int64 {
	return r.PreviousVaultBalance + r.CashSalesToday - r.VaultDeposit - r.DeliveryCostCashToday - r.CashExpenseToday
}

type MethodTotal struct {
	Amount int64 `json:"amount"`
	Count  int   `json:"count"`
}

type PaymentBuckets struct {
	Card     MethodTotal `json:"card"`
	Cash     MethodTotal `json:"cash"`
	Transfer MethodTotal `json:"transfer"`
	Other    MethodTotal `json:"other"`
}

type PendingOrder struct {
	OrderID     string `json:"order_id"`
	BranchName  string `json:"branch_name"`
	Total       int64  `json:"total"`
	Outstanding int64  `json:"outstanding"`
	Share       int64  `json:"share"`
}

type DailySales struct {
	Buckets              PaymentBuckets `json:"buckets"`
	SettledTotal         int64          `json:"settled_total"`
	SettledCount         int            `json:"settled_count"`
	TodayOrdersAmount    int64          `json:"today_orders_amount"`
	TodayOrdersCount     int            `json:"today_orders_count"`
	CarriedForwardAmount int64          `json:"carried_forward_amount"`
	CarriedForwardCount  int            `json:"carried_forward_count"`
	Pending              []PendingOrder `json:"pending"`
	PendingTotal         int64          `json:"pending_total"`
}

type DeliveryCash struct {
	FromOrders   int64 `json:"from_orders"`
	FromExpenses int64 `json:"from_expenses"`
	Applied      int64 `json:"applied"`
}

const (
	BalanceSourceManual        = "manual"
	BalanceSourceSaved         = "saved"
	BalanceSourcePersisted     = "persisted"
	BalanceSourceReconstructed = "reconstructed"
	BalanceSourceNone          = "none"
)

type VaultCash struct {
	PreviousVaultBalance  int64  `json:"previous_vault_balance"`
	PreviousBalanceSource string `json:"previous_balance_source"`
	CashSalesToday        int64  `json:"cash_sales_today"`
	VaultDeposit          int64  `json:"vault_deposit"`
	DeliveryCostCash      int64  `json:"delivery_cost_cash"`
	OtherCashExpenses     int64  `json:"other_cash_expenses"`
	Remaining             int64  `json:"remaining"`
}

type ReconstructionStatus string

const (
	ReconstructionPersisted     ReconstructionStatus = "persisted"
	ReconstructionReconstructed ReconstructionStatus = "reconstructed"
	ReconstructionNoAnchor      ReconstructionStatus = "no_anchor"
	ReconstructionGapTooLarge   ReconstructionStatus = "gap_too_large"
)

// Reconstruction carries either a record or the reason none could be produced.
type Reconstruction struct {
	Status     ReconstructionStatus `json:"status"`
	Record     *SettlementRecord    `json:"record,omitempty"`
	AnchorDate string               `json:"anchor_date,omitempty"`
	GapDays    int                  `json:"gap_days,omitempty"`
}

func (r Reconstruction) Available() bool {
	return r.Record != nil
}

type SettlementView struct {
	BranchID       string            `json:"branch_id"`
	BranchName     string            `json:"branch_name"`
	Date           string            `json:"date"`
	Sales          DailySales        `json:"sales"`
	Delivery       DeliveryCash      `json:"delivery"`
	Vault          VaultCash         `json:"vault"`
	Reconstruction *Reconstruction   `json:"reconstruction,omitempty"`
	SavedRecord    *SettlementRecord `json:"saved_record,omitempty"`
	ComputedAt     time.Time         `json:"computed_at"`
}

// SettlementInput carries the manual inputs of a settlement view or save.
// Nil fields fall back to the saved record for the date, then zero.
type SettlementInput struct {
	BranchID             string `json:"branch_id"`
	Date                 string `json:"date"`
	VaultDeposit         *int64 `json:"vault_deposit,omitempty"`
	PreviousVaultBalance *int64 `json:"previous_vault_balance,omitempty"`
}

type SettlementSaveResponse struct {
	Saved  bool              `json:"saved"`
	Record *SettlementRecord `json:"record,omitempty"`
	View   *SettlementView   `json:"view,omitempty"`
	Error  string            `json:"error,omitempty"`
}

type SettlementHistoryEntry struct {
	Record         SettlementRecord `json:"record"`
	ClosingBalance int64            `json:"closing_balance"`
	ChainBreak     bool             `json:"chain_break"`
}

type SettlementHistoryResponse struct {
	BranchID string                   `json:"branch_id"`
	From     string                   `json:"from"`
	To       string                   `json:"to"`
	Entries  []SettlementHistoryEntry `json:"entries"`
}
