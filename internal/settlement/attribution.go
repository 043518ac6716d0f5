package settlement

import (
	"time"

	"github.com/shopspring/decimal"

	"branchsettle/backend/internal/datenorm"
	"branchsettle/backend/internal/domain"
)

type Role int

const (
	RoleNone Role = iota
	RoleOriginal
	RoleProcessing
)

func (r Role) String() string {
	switch r {
	case RoleOriginal:
		return "original"
	case RoleProcessing:
		return "processing"
	default:
		return "none"
	}
}

// Installment is one payment that landed inside the window. Amount is the gross
// money received; Share is the target branch's part of it.
type Installment struct {
	Method domain.PaymentMethod
	Amount int64
	Share  int64
}

type Attribution struct {
	Role         Role
	Ratio        decimal.Decimal
	Settled      int64
	Amount       int64
	Installments []Installment
	Pending      bool
	Outstanding  int64
	PendingShare int64
}

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Attribute computes what targetBranch received from order inside w and whether
// the order is still open at the end of w. Pending is only evaluated when the
// order was placed inside w.
func Attribute(order domain.Order, targetBranch string, w datenorm.Window) Attribution {
	if order.Status == domain.OrderStatusCanceled {
		return Attribution{Role: RoleNone, Ratio: decimal.Zero}
	}
	role := roleOf(order, targetBranch)
	if role == RoleNone {
		return Attribution{Role: RoleNone, Ratio: decimal.Zero}
	}
	ratio := shareRatio(order, targetBranch, role)

	result := Attribution{Role: role, Ratio: ratio}
	installments := settledInstallments(order, w)
	for _, inst := range installments {
		result.Settled += inst.Amount
	}
	result.Amount = applyRatio(result.Settled, ratio)

	// The last installment absorbs the rounding so shares add up to Amount.
	var allocated int64
	for i, inst := range installments {
		if i == len(installments)-1 {
			inst.Share = result.Amount - allocated
		} else {
			inst.Share = applyRatio(inst.Amount, ratio)
		}
		allocated += inst.Share
		result.Installments = append(result.Installments, inst)
	}

	if w.Contains(order.OrderDate) {
		pending, outstanding := pendingAsOf(order, w)
		if pending {
			result.Pending = true
			result.Outstanding = outstanding
			if role == RoleOriginal {
				result.PendingShare = applyRatio(outstanding, ratio)
			}
		}
	}
	return result
}

func roleOf(order domain.Order, targetBranch string) Role {
	if targetBranch == domain.AllBranches || order.BranchName == targetBranch {
		return RoleOriginal
	}
	if t, ok := validTransfer(order); ok && t.ProcessBranchName == targetBranch {
		return RoleProcessing
	}
	return RoleNone
}

func validTransfer(order domain.Order) (domain.Transferred, bool) {
	t, ok := order.Transfer.(domain.Transferred)
	if !ok || !t.Valid() {
		return domain.Transferred{}, false
	}
	return t, true
}

func shareRatio(order domain.Order, targetBranch string, role Role) decimal.Decimal {
	if targetBranch == domain.AllBranches {
		return one
	}
	t, ok := validTransfer(order)
	if !ok {
		return one
	}
	orderPct := t.Split.OrderBranchPercent
	processPct := t.Split.ProcessBranchPercent
	if orderPct == 0 && processPct == 0 {
		// Split never filled in: the originating branch keeps everything.
		orderPct = 100
	}
	switch role {
	case RoleOriginal:
		return decimal.NewFromFloat(orderPct).Div(hundred)
	case RoleProcessing:
		return decimal.NewFromFloat(processPct).Div(hundred)
	default:
		return decimal.Zero
	}
}

// applyRatio rounds half away from zero.
func applyRatio(amount int64, ratio decimal.Decimal) int64 {
	if amount == 0 {
		return 0
	}
	return decimal.NewFromInt(amount).Mul(ratio).Round(0).IntPart()
}

func settledInstallments(order domain.Order, w datenorm.Window) []Installment {
	total := order.Summary.Total
	switch p := order.Payment.(type) {
	case domain.SimplePayment:
		if w.Contains(p.CompletedAt) {
			return []Installment{{Method: domain.NormalizePaymentMethod(string(p.Method)), Amount: total}}
		}
	case domain.SplitPayment:
		var out []Installment
		if w.Contains(p.FirstPaidAt) {
			out = append(out, Installment{Method: domain.NormalizePaymentMethod(string(p.FirstMethod)), Amount: p.FirstAmount})
		}
		if p.Status.Settled() && w.Contains(p.EffectiveSecondPaidAt()) {
			out = append(out, Installment{Method: domain.NormalizePaymentMethod(string(p.SecondMethod)), Amount: p.SecondAmountFor(total)})
		}
		return out
	}
	return nil
}

// pendingAsOf reports whether order is not fully paid by w.To and how much is open.
func pendingAsOf(order domain.Order, w datenorm.Window) (bool, int64) {
	total := order.Summary.Total
	switch p := order.Payment.(type) {
	case domain.SimplePayment:
		if !p.Status.Settled() || p.CompletedAt.After(w.To) {
			return true, total
		}
		return false, 0
	case domain.SplitPayment:
		var paid int64
		if paidBy(p.FirstPaidAt, w) {
			paid += p.FirstAmount
		}
		if p.Status.Settled() && paidBy(p.EffectiveSecondPaidAt(), w) {
			paid += p.SecondAmountFor(total)
		}
		if paid >= total {
			return false, 0
		}
		return true, total - paid
	default:
		return true, total
	}
}

func paidBy(at time.Time, w datenorm.Window) bool {
	return !at.IsZero() && !at.After(w.To)
}
