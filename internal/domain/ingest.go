package domain

// Raw* types mirror what the order-management side exports. Date fields are
// left untyped so strings, {seconds,nanoseconds} objects and epoch millis all
// decode; they are normalized once at ingestion.

type RawPayment struct {
	Method              string `json:"method"`
	Status              string `json:"status"`
	CompletedAt         any    `json:"completed_at"`
	IsSplitPayment      bool   `json:"is_split_payment"`
	FirstPaymentMethod  string `json:"first_payment_method"`
	FirstPaymentAmount  int64  `json:"first_payment_amount"`
	FirstPaymentDate    any    `json:"first_payment_date"`
	SecondPaymentMethod string `json:"second_payment_method"`
	SecondPaymentAmount *int64 `json:"second_payment_amount"`
	SecondPaymentDate   any    `json:"second_payment_date"`
}

type RawTransfer struct {
	Status             string      `json:"status"`
	ProcessBranchName  string      `json:"process_branch_name"`
	OriginalBranchName string      `json:"original_branch_name"`
	AmountSplit        AmountSplit `json:"amount_split"`
}

type RawOrder struct {
	ID                     string         `json:"id"`
	BranchName             string         `json:"branch_name"`
	OrderDate              any            `json:"order_date"`
	DeliveryDate           any            `json:"delivery_date"`
	Status                 string         `json:"status"`
	Items                  []OrderItem    `json:"items"`
	Summary                OrderSummary   `json:"summary"`
	Payment                RawPayment     `json:"payment"`
	Transfer               *RawTransfer   `json:"transfer"`
	ActualDeliveryCostCash int64          `json:"actual_delivery_cost_cash"`
	Outsource              *OutsourceInfo `json:"outsource"`
}

type RawExpense struct {
	ID             string `json:"id"`
	Date           any    `json:"date"`
	BranchID       string `json:"branch_id"`
	Category       string `json:"category"`
	PaymentMethod  string `json:"payment_method"`
	Description    string `json:"description"`
	Amount         int64  `json:"amount"`
	RelatedOrderID string `json:"related_order_id"`
}

type OrderImportRequest struct {
	Orders []RawOrder `json:"orders"`
}

type ExpenseImportRequest struct {
	Expenses []RawExpense `json:"expenses"`
}

type ImportResponse struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Warnings []string `json:"warnings,omitempty"`
}
