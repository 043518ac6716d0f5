package store

import (
	"encoding/json"
	"fmt"
	"time"

	"branchsettle/backend/internal/domain"
)

// OrderColumns is the flattened form SQL backends persist. Payment and
// transfer keep their tagged JSON envelopes; the activity instants are copied
// out so range queries can use indexes. Nil times are unknown.
type OrderColumns struct {
	ID                     string
	BranchName             string
	OrderDate              *time.Time
	DeliveryDate           *time.Time
	Status                 string
	Items                  string
	Summary                string
	Payment                string
	Transfer               string
	CompletedAt            *time.Time
	FirstPaidAt            *time.Time
	SecondPaidAt           *time.Time
	ActualDeliveryCostCash int64
	Outsource              string
	UpdatedAt              time.Time
}

func EncodeOrder(order domain.Order) (OrderColumns, error) {
	items := order.Items
	if items == nil {
		items = []domain.OrderItem{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return OrderColumns{}, fmt.Errorf("encode items of %s: %w", order.ID, err)
	}
	summaryJSON, err := json.Marshal(order.Summary)
	if err != nil {
		return OrderColumns{}, fmt.Errorf("encode summary of %s: %w", order.ID, err)
	}
	payment, err := domain.EncodePayment(order.Payment)
	if err != nil {
		return OrderColumns{}, fmt.Errorf("encode payment of %s: %w", order.ID, err)
	}
	transfer, err := domain.EncodeTransfer(order.Transfer)
	if err != nil {
		return OrderColumns{}, fmt.Errorf("encode transfer of %s: %w", order.ID, err)
	}
	var outsource string
	if order.Outsource != nil {
		payload, err := json.Marshal(order.Outsource)
		if err != nil {
			return OrderColumns{}, fmt.Errorf("encode outsource of %s: %w", order.ID, err)
		}
		outsource = string(payload)
	}

	cols := OrderColumns{
		ID:                     order.ID,
		BranchName:             order.BranchName,
		OrderDate:              timePtr(order.OrderDate),
		DeliveryDate:           timePtr(order.DeliveryDate),
		Status:                 string(order.Status),
		Items:                  string(itemsJSON),
		Summary:                string(summaryJSON),
		Payment:                payment,
		Transfer:               transfer,
		ActualDeliveryCostCash: order.ActualDeliveryCostCash,
		Outsource:              outsource,
		UpdatedAt:              order.UpdatedAt,
	}
	switch p := order.Payment.(type) {
	case domain.SimplePayment:
		cols.CompletedAt = timePtr(p.CompletedAt)
	case domain.SplitPayment:
		cols.CompletedAt = timePtr(p.CompletedAt)
		cols.FirstPaidAt = timePtr(p.FirstPaidAt)
		cols.SecondPaidAt = timePtr(p.EffectiveSecondPaidAt())
	}
	return cols, nil
}

// DecodeOrder rebuilds an order; instants are moved into loc.
func DecodeOrder(cols OrderColumns, loc *time.Location) (domain.Order, error) {
	order := domain.Order{
		ID:                     cols.ID,
		BranchName:             cols.BranchName,
		OrderDate:              inLocation(cols.OrderDate, loc),
		DeliveryDate:           inLocation(cols.DeliveryDate, loc),
		Status:                 domain.OrderStatus(cols.Status),
		ActualDeliveryCostCash: cols.ActualDeliveryCostCash,
		UpdatedAt:              cols.UpdatedAt,
	}
	if cols.Items != "" {
		if err := json.Unmarshal([]byte(cols.Items), &order.Items); err != nil {
			return domain.Order{}, fmt.Errorf("decode items of %s: %w", cols.ID, err)
		}
	}
	if cols.Summary != "" {
		if err := json.Unmarshal([]byte(cols.Summary), &order.Summary); err != nil {
			return domain.Order{}, fmt.Errorf("decode summary of %s: %w", cols.ID, err)
		}
	}
	if cols.Outsource != "" {
		var outsource domain.OutsourceInfo
		if err := json.Unmarshal([]byte(cols.Outsource), &outsource); err != nil {
			return domain.Order{}, fmt.Errorf("decode outsource of %s: %w", cols.ID, err)
		}
		order.Outsource = &outsource
	}

	payment, err := domain.DecodePayment(cols.Payment)
	if err != nil {
		return domain.Order{}, fmt.Errorf("decode payment of %s: %w", cols.ID, err)
	}
	order.Payment = localizePayment(payment, loc)

	transfer, err := domain.DecodeTransfer(cols.Transfer)
	if err != nil {
		return domain.Order{}, fmt.Errorf("decode transfer of %s: %w", cols.ID, err)
	}
	order.Transfer = transfer
	return order, nil
}

func localizePayment(p domain.PaymentMode, loc *time.Location) domain.PaymentMode {
	switch v := p.(type) {
	case domain.SimplePayment:
		v.CompletedAt = localize(v.CompletedAt, loc)
		return v
	case domain.SplitPayment:
		v.CompletedAt = localize(v.CompletedAt, loc)
		v.FirstPaidAt = localize(v.FirstPaidAt, loc)
		v.SecondPaidAt = localize(v.SecondPaidAt, loc)
		return v
	default:
		return p
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func inLocation(t *time.Time, loc *time.Location) time.Time {
	if t == nil {
		return time.Time{}
	}
	return localize(*t, loc)
}

func localize(t time.Time, loc *time.Location) time.Time {
	if t.IsZero() || loc == nil {
		return t
	}
	return t.In(loc)
}
