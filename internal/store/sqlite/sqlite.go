package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlitedriver "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"branchsettle/backend/internal/datenorm"
	"branchsettle/backend/internal/domain"
	"branchsettle/backend/internal/store"
	"branchsettle/backend/internal/xid"
)

// Store is the single-file backend for branches running without a database
// server. Instants are kept as unix nanoseconds so range filters compare
// numerically; settlement dates are YYYY-MM-DD strings.
type Store struct {
	db  *gorm.DB
	cal datenorm.Calendar
}

type branchRow struct {
	ID        string `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex"`
	Active    bool
	CreatedAt time.Time
}

func (branchRow) TableName() string { return "branches" }

type userRow struct {
	Username  string `gorm:"primaryKey"`
	Password  string
	Role      string
	BranchID  string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (userRow) TableName() string { return "app_users" }

type orderRow struct {
	ID                     string `gorm:"primaryKey"`
	BranchName             string `gorm:"index"`
	OrderDate              *int64 `gorm:"index"`
	DeliveryDate           *int64 `gorm:"index"`
	Status                 string
	Items                  string
	Summary                string
	Payment                string
	Transfer               string
	CompletedAt            *int64 `gorm:"index"`
	FirstPaidAt            *int64 `gorm:"index"`
	SecondPaidAt           *int64 `gorm:"index"`
	ActualDeliveryCostCash int64
	Outsource              string
	UpdatedAt              time.Time
}

func (orderRow) TableName() string { return "orders" }

type expenseRow struct {
	ID             string `gorm:"primaryKey"`
	BranchID       string `gorm:"index:idx_expense_branch_date"`
	ExpenseDate    *int64 `gorm:"index:idx_expense_branch_date"`
	Category       string
	PaymentMethod  string
	Description    string
	Amount         int64
	RelatedOrderID string
	UpdatedAt      time.Time
}

func (expenseRow) TableName() string { return "expenses" }

type settlementRow struct {
	ID                    string `gorm:"primaryKey"`
	BranchID              string `gorm:"uniqueIndex:idx_settlement_branch_date"`
	SettlementDate        string `gorm:"uniqueIndex:idx_settlement_branch_date"`
	PreviousVaultBalance  int64
	CashSalesToday        int64
	VaultDeposit          int64
	DeliveryCostCashToday int64
	CashExpenseToday      int64
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (settlementRow) TableName() string { return "settlement_records" }

func Open(path string, loc *time.Location) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlitedriver.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// sqlite allows one writer; a single connection avoids SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&branchRow{}, &userRow{}, &orderRow{}, &expenseRow{}, &settlementRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &Store{db: db, cal: datenorm.NewCalendar(loc)}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	var rows []branchRow
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	branches := make([]domain.Branch, 0, len(rows))
	for _, row := range rows {
		branches = append(branches, row.toDomain())
	}
	return branches, nil
}

func (s *Store) GetBranch(ctx context.Context, id string) (domain.Branch, error) {
	var row branchRow
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Branch{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Branch{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) CreateBranch(ctx context.Context, branch domain.Branch) (*domain.Branch, error) {
	branch.ID = strings.TrimSpace(branch.ID)
	branch.Name = strings.TrimSpace(branch.Name)
	if branch.ID == "" || branch.Name == "" || branch.ID == domain.AllBranches {
		return nil, store.ErrInvalidInput
	}
	if branch.CreatedAt.IsZero() {
		branch.CreatedAt = time.Now().UTC()
	}
	branch.Active = true

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&branchRow{}).Where("id = ? OR name = ?", branch.ID, branch.Name).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return store.ErrConflict
		}
		return tx.Create(&branchRow{ID: branch.ID, Name: branch.Name, Active: true, CreatedAt: branch.CreatedAt}).Error
	})
	if err != nil {
		return nil, err
	}
	return &branch, nil
}

func (s *Store) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	from, to := int64(0), int64(1<<63-1)
	if !filter.From.IsZero() {
		from = filter.From.UnixNano()
	}
	if !filter.To.IsZero() {
		to = filter.To.UnixNano()
	}

	var rows []orderRow
	err := s.db.WithContext(ctx).
		Where(`order_date BETWEEN @from AND @to
			OR delivery_date BETWEEN @from AND @to
			OR completed_at BETWEEN @from AND @to
			OR first_paid_at BETWEEN @from AND @to
			OR second_paid_at BETWEEN @from AND @to`,
			map[string]any{"from": from, "to": to}).
		Order("order_date").Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(rows))
	for _, row := range rows {
		order, err := store.DecodeOrder(row.toColumns(), s.cal.Location())
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func (s *Store) UpsertOrders(ctx context.Context, orders []domain.Order) (int, error) {
	if len(orders) == 0 {
		return 0, nil
	}
	rows := make([]orderRow, 0, len(orders))
	for _, order := range orders {
		if strings.TrimSpace(order.ID) == "" {
			return 0, store.ErrInvalidInput
		}
		cols, err := store.EncodeOrder(order)
		if err != nil {
			return 0, err
		}
		rows = append(rows, orderRowFrom(cols))
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(&rows).Error
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (s *Store) ListExpenses(ctx context.Context, filter domain.ExpenseFilter) ([]domain.Expense, error) {
	q := s.db.WithContext(ctx).Model(&expenseRow{})
	if filter.BranchID != "" && filter.BranchID != domain.AllBranches {
		q = q.Where("branch_id = ?", filter.BranchID)
	}
	q = q.Where("expense_date IS NOT NULL")
	if !filter.From.IsZero() {
		q = q.Where("expense_date >= ?", filter.From.UnixNano())
	}
	if !filter.To.IsZero() {
		q = q.Where("expense_date <= ?", filter.To.UnixNano())
	}

	var rows []expenseRow
	if err := q.Order("expense_date").Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	expenses := make([]domain.Expense, 0, len(rows))
	for _, row := range rows {
		expenses = append(expenses, row.toDomain(s.cal.Location()))
	}
	return expenses, nil
}

func (s *Store) UpsertExpenses(ctx context.Context, expenses []domain.Expense) (int, error) {
	if len(expenses) == 0 {
		return 0, nil
	}
	rows := make([]expenseRow, 0, len(expenses))
	for _, e := range expenses {
		if strings.TrimSpace(e.ID) == "" || strings.TrimSpace(e.BranchID) == "" {
			return 0, store.ErrInvalidInput
		}
		rows = append(rows, expenseRow{
			ID:             e.ID,
			BranchID:       e.BranchID,
			ExpenseDate:    nanos(e.Date),
			Category:       string(e.Category),
			PaymentMethod:  e.PaymentMethod,
			Description:    e.Description,
			Amount:         e.Amount,
			RelatedOrderID: e.RelatedOrderID,
		})
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(&rows).Error
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (s *Store) GetSettlementRecord(ctx context.Context, branchID string, date time.Time) (domain.SettlementRecord, error) {
	var row settlementRow
	err := s.db.WithContext(ctx).
		Where("branch_id = ? AND settlement_date = ?", branchID, s.cal.DayKey(date)).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.SettlementRecord{}, store.ErrNotFound
	}
	if err != nil {
		return domain.SettlementRecord{}, err
	}
	return s.settlementFromRow(row), nil
}

func (s *Store) FindLastSettlementBefore(ctx context.Context, branchID string, date time.Time) (domain.SettlementRecord, error) {
	var row settlementRow
	err := s.db.WithContext(ctx).
		Where("branch_id = ? AND settlement_date < ?", branchID, s.cal.DayKey(date)).
		Order("settlement_date DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.SettlementRecord{}, store.ErrNotFound
	}
	if err != nil {
		return domain.SettlementRecord{}, err
	}
	return s.settlementFromRow(row), nil
}

func (s *Store) SaveSettlementRecord(ctx context.Context, record domain.SettlementRecord) (*domain.SettlementRecord, error) {
	if err := store.ValidateSettlementRecord(record); err != nil {
		return nil, err
	}
	if _, err := s.GetBranch(ctx, record.BranchID); err != nil {
		return nil, err
	}

	key := s.cal.DayKey(record.Date)
	row := settlementRow{
		ID:                    xid.New("set"),
		BranchID:              record.BranchID,
		SettlementDate:        key,
		PreviousVaultBalance:  record.PreviousVaultBalance,
		CashSalesToday:        record.CashSalesToday,
		VaultDeposit:          record.VaultDeposit,
		DeliveryCostCashToday: record.DeliveryCostCashToday,
		CashExpenseToday:      record.CashExpenseToday,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "branch_id"}, {Name: "settlement_date"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"previous_vault_balance", "cash_sales_today", "vault_deposit",
				"delivery_cost_cash_today", "cash_expense_today", "updated_at",
			}),
		}).
		Create(&row).Error
	if err != nil {
		return nil, err
	}

	saved, err := s.GetSettlementRecord(ctx, record.BranchID, record.Date)
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (s *Store) ListSettlementRecords(ctx context.Context, branchID string, from time.Time, to time.Time) ([]domain.SettlementRecord, error) {
	q := s.db.WithContext(ctx).Where("branch_id = ?", branchID)
	if key := s.cal.DayKey(from); key != "" {
		q = q.Where("settlement_date >= ?", key)
	}
	if key := s.cal.DayKey(to); key != "" {
		q = q.Where("settlement_date <= ?", key)
	}

	var rows []settlementRow
	if err := q.Order("settlement_date").Find(&rows).Error; err != nil {
		return nil, err
	}
	records := make([]domain.SettlementRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, s.settlementFromRow(row))
	}
	return records, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = domain.RoleManager
	}
	if user.Role == domain.RoleManager {
		if _, err := s.GetBranch(ctx, user.BranchID); err != nil {
			return store.ErrInvalidInput
		}
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&userRow{}).Where("username = ?", user.Username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return store.ErrConflict
		}
		return tx.Create(&userRow{
			Username:  user.Username,
			Password:  user.Password,
			Role:      user.Role,
			BranchID:  user.BranchID,
			Active:    true,
			CreatedAt: user.CreatedAt,
		}).Error
	})
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	var rows []userRow
	if err := s.db.WithContext(ctx).Order("username ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	users := make([]domain.UserAccount, 0, len(rows))
	for _, row := range rows {
		users = append(users, domain.UserAccount{
			Username:  row.Username,
			Password:  row.Password,
			Role:      row.Role,
			BranchID:  row.BranchID,
			Active:    row.Active,
			CreatedAt: row.CreatedAt.UTC(),
		})
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	res := s.db.WithContext(ctx).Model(&userRow{}).Where("username = ?", username).Update("password", password)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r branchRow) toDomain() domain.Branch {
	return domain.Branch{ID: r.ID, Name: r.Name, Active: r.Active, CreatedAt: r.CreatedAt.UTC()}
}

func (r expenseRow) toDomain(loc *time.Location) domain.Expense {
	return domain.Expense{
		ID:             r.ID,
		Date:           fromNanos(r.ExpenseDate, loc),
		BranchID:       r.BranchID,
		Category:       domain.ExpenseCategory(r.Category),
		PaymentMethod:  r.PaymentMethod,
		Description:    r.Description,
		Amount:         r.Amount,
		RelatedOrderID: r.RelatedOrderID,
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

func (s *Store) settlementFromRow(r settlementRow) domain.SettlementRecord {
	date, _ := s.cal.ParseDay(r.SettlementDate)
	return domain.SettlementRecord{
		ID:                    r.ID,
		BranchID:              r.BranchID,
		Date:                  date,
		PreviousVaultBalance:  r.PreviousVaultBalance,
		CashSalesToday:        r.CashSalesToday,
		VaultDeposit:          r.VaultDeposit,
		DeliveryCostCashToday: r.DeliveryCostCashToday,
		CashExpenseToday:      r.CashExpenseToday,
		CreatedAt:             r.CreatedAt.UTC(),
		UpdatedAt:             r.UpdatedAt.UTC(),
	}
}

func orderRowFrom(cols store.OrderColumns) orderRow {
	return orderRow{
		ID:                     cols.ID,
		BranchName:             cols.BranchName,
		OrderDate:              nanosPtr(cols.OrderDate),
		DeliveryDate:           nanosPtr(cols.DeliveryDate),
		Status:                 cols.Status,
		Items:                  cols.Items,
		Summary:                cols.Summary,
		Payment:                cols.Payment,
		Transfer:               cols.Transfer,
		CompletedAt:            nanosPtr(cols.CompletedAt),
		FirstPaidAt:            nanosPtr(cols.FirstPaidAt),
		SecondPaidAt:           nanosPtr(cols.SecondPaidAt),
		ActualDeliveryCostCash: cols.ActualDeliveryCostCash,
		Outsource:              cols.Outsource,
	}
}

func (r orderRow) toColumns() store.OrderColumns {
	return store.OrderColumns{
		ID:                     r.ID,
		BranchName:             r.BranchName,
		OrderDate:              timePtr(r.OrderDate),
		DeliveryDate:           timePtr(r.DeliveryDate),
		Status:                 r.Status,
		Items:                  r.Items,
		Summary:                r.Summary,
		Payment:                r.Payment,
		Transfer:               r.Transfer,
		CompletedAt:            timePtr(r.CompletedAt),
		FirstPaidAt:            timePtr(r.FirstPaidAt),
		SecondPaidAt:           timePtr(r.SecondPaidAt),
		ActualDeliveryCostCash: r.ActualDeliveryCostCash,
		Outsource:              r.Outsource,
		UpdatedAt:              r.UpdatedAt.UTC(),
	}
}

func nanos(t time.Time) *int64 {
	if t.IsZero() {
		return nil
	}
	n := t.UnixNano()
	return &n
}

func nanosPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	return nanos(*t)
}

func timePtr(n *int64) *time.Time {
	if n == nil {
		return nil
	}
	t := time.Unix(0, *n).UTC()
	return &t
}

func fromNanos(n *int64, loc *time.Location) time.Time {
	if n == nil {
		return time.Time{}
	}
	return time.Unix(0, *n).In(loc)
}
