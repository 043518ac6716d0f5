package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"branchsettle/backend/internal/domain"
	"branchsettle/backend/internal/store"
)

// ImportOrders normalizes exported orders and upserts them by id. Orders
// without an id are skipped; unreadable dates are kept as unknown so the
// engine leaves them out of every day.
func (s *Service) ImportOrders(ctx context.Context, req domain.OrderImportRequest) (domain.ImportResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.ImportResponse{}, ErrForbidden
	}
	if len(req.Orders) == 0 {
		return domain.ImportResponse{}, fmt.Errorf("no orders to import: %w", store.ErrInvalidInput)
	}

	var resp domain.ImportResponse
	now := s.now().UTC()
	orders := make([]domain.Order, 0, len(req.Orders))
	for i, raw := range req.Orders {
		order, warnings, ok := s.normalizeOrder(raw)
		resp.Warnings = append(resp.Warnings, warnings...)
		if !ok {
			resp.Skipped++
			resp.Warnings = append(resp.Warnings, fmt.Sprintf("orders[%d]: missing id, skipped", i))
			continue
		}
		order.UpdatedAt = now
		orders = append(orders, order)
	}

	n, err := s.repo.UpsertOrders(ctx, orders)
	if err != nil {
		return domain.ImportResponse{}, fmt.Errorf("upsert orders: %w", err)
	}
	resp.Imported = n
	if n > 0 {
		s.invalidateViews(ctx)
	}
	log.Printf("[ingest] orders imported=%d skipped=%d warnings=%d by=%s", resp.Imported, resp.Skipped, len(resp.Warnings), actor.Username)
	return resp, nil
}

// ImportExpenses upserts expense rows. Rows without an id or with an unknown
// branch are skipped.
func (s *Service) ImportExpenses(ctx context.Context, req domain.ExpenseImportRequest) (domain.ImportResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.ImportResponse{}, ErrForbidden
	}
	if len(req.Expenses) == 0 {
		return domain.ImportResponse{}, fmt.Errorf("no expenses to import: %w", store.ErrInvalidInput)
	}

	branches, err := s.repo.ListBranches(ctx)
	if err != nil {
		return domain.ImportResponse{}, err
	}
	known := make(map[string]bool, len(branches))
	for _, branch := range branches {
		known[branch.ID] = true
	}

	var resp domain.ImportResponse
	now := s.now().UTC()
	expenses := make([]domain.Expense, 0, len(req.Expenses))
	for i, raw := range req.Expenses {
		id := strings.TrimSpace(raw.ID)
		branchID := strings.TrimSpace(raw.BranchID)
		if id == "" {
			resp.Skipped++
			resp.Warnings = append(resp.Warnings, fmt.Sprintf("expenses[%d]: missing id, skipped", i))
			continue
		}
		if !known[branchID] {
			resp.Skipped++
			resp.Warnings = append(resp.Warnings, fmt.Sprintf("expense %s: unknown branch %q, skipped", id, branchID))
			continue
		}
		date, ok := s.cal.Parse(raw.Date)
		if !ok {
			resp.Warnings = append(resp.Warnings, fmt.Sprintf("expense %s: unreadable date", id))
		}
		expenses = append(expenses, domain.Expense{
			ID:             id,
			Date:           date,
			BranchID:       branchID,
			Category:       normalizeCategory(raw.Category),
			PaymentMethod:  strings.TrimSpace(raw.PaymentMethod),
			Description:    strings.TrimSpace(raw.Description),
			Amount:         raw.Amount,
			RelatedOrderID: strings.TrimSpace(raw.RelatedOrderID),
			UpdatedAt:      now,
		})
	}

	n, err := s.repo.UpsertExpenses(ctx, expenses)
	if err != nil {
		return domain.ImportResponse{}, fmt.Errorf("upsert expenses: %w", err)
	}
	resp.Imported = n
	if n > 0 {
		s.invalidateViews(ctx)
	}
	log.Printf("[ingest] expenses imported=%d skipped=%d warnings=%d by=%s", resp.Imported, resp.Skipped, len(resp.Warnings), actor.Username)
	return resp, nil
}

func (s *Service) normalizeOrder(raw domain.RawOrder) (domain.Order, []string, bool) {
	id := strings.TrimSpace(raw.ID)
	if id == "" {
		return domain.Order{}, nil, false
	}

	var warnings []string
	parse := func(field string, value any) time.Time {
		if value == nil {
			return time.Time{}
		}
		t, ok := s.cal.Parse(value)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("order %s: unreadable %s", id, field))
		}
		return t
	}

	order := domain.Order{
		ID:                     id,
		BranchName:             strings.TrimSpace(raw.BranchName),
		OrderDate:              parse("order_date", raw.OrderDate),
		DeliveryDate:           parse("delivery_date", raw.DeliveryDate),
		Status:                 normalizeOrderStatus(raw.Status),
		Items:                  raw.Items,
		Summary:                raw.Summary,
		ActualDeliveryCostCash: raw.ActualDeliveryCostCash,
		Outsource:              raw.Outsource,
		Transfer:               domain.NoTransfer{},
	}
	if order.OrderDate.IsZero() && raw.OrderDate == nil {
		warnings = append(warnings, fmt.Sprintf("order %s: missing order_date", id))
	}

	p := raw.Payment
	status := domain.PaymentStatus(strings.ToLower(strings.TrimSpace(p.Status)))
	if p.IsSplitPayment {
		order.Payment = domain.SplitPayment{
			Status:       status,
			CompletedAt:  parse("payment.completed_at", p.CompletedAt),
			FirstMethod:  domain.NormalizePaymentMethod(p.FirstPaymentMethod),
			FirstAmount:  p.FirstPaymentAmount,
			FirstPaidAt:  parse("payment.first_payment_date", p.FirstPaymentDate),
			SecondMethod: domain.NormalizePaymentMethod(p.SecondPaymentMethod),
			SecondAmount: p.SecondPaymentAmount,
			SecondPaidAt: parse("payment.second_payment_date", p.SecondPaymentDate),
		}
	} else {
		order.Payment = domain.SimplePayment{
			Method:      domain.NormalizePaymentMethod(p.Method),
			Status:      status,
			CompletedAt: parse("payment.completed_at", p.CompletedAt),
		}
	}

	if t := raw.Transfer; t != nil && strings.TrimSpace(t.ProcessBranchName) != "" {
		order.Transfer = domain.Transferred{
			Status:             domain.TransferStatus(strings.ToLower(strings.TrimSpace(t.Status))),
			ProcessBranchName:  strings.TrimSpace(t.ProcessBranchName),
			OriginalBranchName: strings.TrimSpace(t.OriginalBranchName),
			Split:              t.AmountSplit,
		}
	}
	return order, warnings, true
}

func normalizeOrderStatus(raw string) domain.OrderStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "canceled", "cancelled", "취소":
		return domain.OrderStatusCanceled
	case "completed", "complete", "done", "완료":
		return domain.OrderStatusCompleted
	default:
		return domain.OrderStatusProcessing
	}
}

func normalizeCategory(raw string) domain.ExpenseCategory {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "transport", "delivery", "운송비", "배송비", "퀵":
		return domain.ExpenseCategoryTransport
	case "material", "materials", "재료비", "자재비":
		return domain.ExpenseCategoryMaterial
	default:
		return domain.ExpenseCategoryOther
	}
}
