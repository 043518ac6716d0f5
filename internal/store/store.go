package store

import (
	"context"
	"errors"
	"time"

	"branchsettle/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
)

// Repository is the persistence boundary shared by the memory, postgres and
// sqlite backends. Settlement dates are business-day midnights; backends key
// them by calendar day.
type Repository interface {
	ListBranches(ctx context.Context) ([]domain.Branch, error)
	GetBranch(ctx context.Context, id string) (domain.Branch, error)
	CreateBranch(ctx context.Context, branch domain.Branch) (*domain.Branch, error)

	ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)
	UpsertOrders(ctx context.Context, orders []domain.Order) (int, error)
	ListExpenses(ctx context.Context, filter domain.ExpenseFilter) ([]domain.Expense, error)
	UpsertExpenses(ctx context.Context, expenses []domain.Expense) (int, error)

	GetSettlementRecord(ctx context.Context, branchID string, date time.Time) (domain.SettlementRecord, error)
	FindLastSettlementBefore(ctx context.Context, branchID string, date time.Time) (domain.SettlementRecord, error)
	// SaveSettlementRecord upserts by (branch, date). Concurrent saves are last-writer-wins.
	SaveSettlementRecord(ctx context.Context, record domain.SettlementRecord) (*domain.SettlementRecord, error)
	ListSettlementRecords(ctx context.Context, branchID string, from time.Time, to time.Time) ([]domain.SettlementRecord, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// ValidateSettlementRecord rejects records that must never be persisted.
func ValidateSettlementRecord(record domain.SettlementRecord) error {
	switch {
	case record.BranchID == "" || record.BranchID == domain.AllBranches:
		return ErrInvalidInput
	case record.Date.IsZero():
		return ErrInvalidInput
	case record.Virtual:
		return ErrInvalidInput
	}
	return nil
}
