package settlement

import (
	"slices"
	"strings"

	"branchsettle/backend/internal/datenorm"
	"branchsettle/backend/internal/domain"
)

// Bucketize sums what targetBranch collected inside w per payment method. An
// order counts once per bucket even when both installments land in it.
// Orders without a readable order date are skipped.
func Bucketize(orders []domain.Order, targetBranch string, w datenorm.Window) domain.DailySales {
	sales := domain.DailySales{Pending: []domain.PendingOrder{}}
	for _, order := range orders {
		if order.Status == domain.OrderStatusCanceled || order.OrderDate.IsZero() {
			continue
		}
		attr := Attribute(order, targetBranch, w)
		if attr.Role == RoleNone {
			continue
		}

		if len(attr.Installments) > 0 {
			seen := make(map[domain.PaymentMethod]bool, 2)
			for _, inst := range attr.Installments {
				bucket := bucketFor(&sales.Buckets, inst.Method)
				bucket.Amount += inst.Share
				if !seen[inst.Method] {
					bucket.Count++
					seen[inst.Method] = true
				}
			}
			sales.SettledTotal += attr.Amount
			sales.SettledCount++
			if w.Contains(order.OrderDate) {
				sales.TodayOrdersAmount += attr.Amount
				sales.TodayOrdersCount++
			} else {
				sales.CarriedForwardAmount += attr.Amount
				sales.CarriedForwardCount++
			}
		}

		if attr.Pending && attr.Role == RoleOriginal {
			sales.Pending = append(sales.Pending, domain.PendingOrder{
				OrderID:     order.ID,
				BranchName:  order.BranchName,
				Total:       order.Summary.Total,
				Outstanding: attr.Outstanding,
				Share:       attr.PendingShare,
			})
			sales.PendingTotal += attr.PendingShare
		}
	}

	slices.SortFunc(sales.Pending, func(a, b domain.PendingOrder) int {
		return strings.Compare(a.OrderID, b.OrderID)
	})
	return sales
}

func bucketFor(b *domain.PaymentBuckets, method domain.PaymentMethod) *domain.MethodTotal {
	switch method {
	case domain.PaymentMethodCard:
		return &b.Card
	case domain.PaymentMethodCash:
		return &b.Cash
	case domain.PaymentMethodTransfer:
		return &b.Transfer
	default:
		return &b.Other
	}
}
