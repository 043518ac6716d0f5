package domain

import "time"

// AllBranches is the pseudo-branch that aggregates every branch at full share.
const AllBranches = "all"

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
)

type Branch struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type BranchCreateRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	BranchID    string `json:"branch_id,omitempty"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
	BranchID string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	BranchID  string
	Active    bool
	CreatedAt time.Time
}

type ManagerCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	BranchID string `json:"branch_id"`
}

type ManagerUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	BranchID  string    `json:"branch_id"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type OrderStatus string

const (
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCanceled   OrderStatus = "canceled"
)

type OrderItem struct {
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

type OrderSummary struct {
	Subtotal     int64 `json:"subtotal"`
	DeliveryFee  int64 `json:"delivery_fee"`
	PointsUsed   int64 `json:"points_used"`
	PointsEarned int64 `json:"points_earned"`
	Total        int64 `json:"total"`
}

type OutsourceInfo struct {
	Partner string `json:"partner"`
	Price   int64  `json:"price"`
	Profit  int64  `json:"profit"`
}

// Order is the normalized order fact consumed by the settlement engine.
// Zero instants mean the source date was missing or unparsable.
type Order struct {
	ID                     string
	BranchName             string
	OrderDate              time.Time
	DeliveryDate           time.Time
	Status                 OrderStatus
	Items                  []OrderItem
	Summary                OrderSummary
	Payment                PaymentMode
	Transfer               TransferState
	ActualDeliveryCostCash int64
	Outsource              *OutsourceInfo
	UpdatedAt              time.Time
}

type ExpenseCategory string

const (
	ExpenseCategoryTransport ExpenseCategory = "transport"
	ExpenseCategoryMaterial  ExpenseCategory = "material"
	ExpenseCategoryOther     ExpenseCategory = "other"
)

type Expense struct {
	ID             string
	Date           time.Time
	BranchID       string
	Category       ExpenseCategory
	PaymentMethod  string
	Description    string
	Amount         int64
	RelatedOrderID string
	UpdatedAt      time.Time
}

// OrderFilter selects orders whose order date, payment activity or delivery date
// falls inside [From, To].
type OrderFilter struct {
	From time.Time
	To   time.Time
}

type ExpenseFilter struct {
	BranchID string
	From     time.Time
	To       time.Time
}

// Activity lists every instant at which the order can move a day's figures.
// Zero instants are included and callers skip them.
func (o Order) Activity() []time.Time {
	out := []time.Time{o.OrderDate, o.DeliveryDate}
	switch p := o.Payment.(type) {
	case SimplePayment:
		out = append(out, p.CompletedAt)
	case SplitPayment:
		out = append(out, p.FirstPaidAt, p.EffectiveSecondPaidAt())
	}
	return out
}

// Match reports whether any activity instant of o falls inside the filter.
// A zero bound is open.
func (f OrderFilter) Match(o Order) bool {
	for _, at := range o.Activity() {
		if inRange(at, f.From, f.To) {
			return true
		}
	}
	return false
}

func (f ExpenseFilter) Match(e Expense) bool {
	if f.BranchID != "" && f.BranchID != AllBranches && e.BranchID != f.BranchID {
		return false
	}
	return inRange(e.Date, f.From, f.To)
}

func inRange(at time.Time, from time.Time, to time.Time) bool {
	if at.IsZero() {
		return false
	}
	if !from.IsZero() && at.Before(from) {
		return false
	}
	if !to.IsZero() && at.After(to) {
		return false
	}
	return true
}
