package settlement_test

import (
	"time"

	"branchsettle/backend/internal/datenorm"
	"branchsettle/backend/internal/domain"
)

var (
	kst = time.FixedZone("KST", 9*60*60)
	cal = datenorm.NewCalendar(kst)

	gangnam = domain.Branch{ID: "gangnam", Name: "강남점", Active: true}
	seocho  = domain.Branch{ID: "seocho", Name: "서초점", Active: true}
)

func at(year int, month time.Month, day int, hour int, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, kst)
}

func day(year int, month time.Month, d int) datenorm.Window {
	return cal.DayWindow(at(year, month, d, 0, 0))
}

func simpleOrder(id string, branch string, total int64, method domain.PaymentMethod, orderedAt time.Time, completedAt time.Time) domain.Order {
	status := domain.PaymentStatusPending
	if !completedAt.IsZero() {
		status = domain.PaymentStatusPaid
	}
	return domain.Order{
		ID:         id,
		BranchName: branch,
		OrderDate:  orderedAt,
		Status:     domain.OrderStatusCompleted,
		Summary:    domain.OrderSummary{Subtotal: total, Total: total},
		Payment:    domain.SimplePayment{Method: method, Status: status, CompletedAt: completedAt},
		Transfer:   domain.NoTransfer{},
	}
}

func transferred(order domain.Order, to string, status domain.TransferStatus, orderPct float64, processPct float64) domain.Order {
	order.Transfer = domain.Transferred{
		Status:             status,
		ProcessBranchName:  to,
		OriginalBranchName: order.BranchName,
		Split:              domain.AmountSplit{OrderBranchPercent: orderPct, ProcessBranchPercent: processPct},
	}
	return order
}

func int64Ptr(v int64) *int64 {
	return &v
}
