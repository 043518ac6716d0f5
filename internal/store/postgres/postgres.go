package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"branchsettle/backend/internal/datenorm"
	"branchsettle/backend/internal/domain"
	"branchsettle/backend/internal/store"
	"branchsettle/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

var (
	minTime = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	maxTime = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
)

type Store struct {
	db  *sql.DB
	cal datenorm.Calendar
}

func New(ctx context.Context, databaseURL string, loc *time.Location) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, cal: datenorm.NewCalendar(loc)}, nil
}

// Migrate creates missing tables. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, active, created_at
		FROM branches
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	branches := make([]domain.Branch, 0, 8)
	for rows.Next() {
		var b domain.Branch
		if err := rows.Scan(&b.ID, &b.Name, &b.Active, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.CreatedAt = b.CreatedAt.UTC()
		branches = append(branches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return branches, nil
}

func (s *Store) GetBranch(ctx context.Context, id string) (domain.Branch, error) {
	var b domain.Branch
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, active, created_at
		FROM branches
		WHERE id = $1
	`, id).Scan(&b.ID, &b.Name, &b.Active, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Branch{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Branch{}, err
	}
	b.CreatedAt = b.CreatedAt.UTC()
	return b, nil
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO branches (id, name, active, created_at)
		VALUES ($1,$2,$3,$4)
	`, branch.ID, branch.Name, branch.Active, branch.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	return &branch, nil
}

const orderColumns = `
	id, branch_name, order_date, delivery_date, status, items, summary, payment,
	COALESCE(transfer, ''), completed_at, first_paid_at, second_paid_at,
	actual_delivery_cost_cash, COALESCE(outsource, ''), updated_at
`

func (s *Store) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	from, to := filter.From, filter.To
	if from.IsZero() {
		from = minTime
	}
	if to.IsZero() {
		to = maxTime
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE order_date BETWEEN $1 AND $2
			OR delivery_date BETWEEN $1 AND $2
			OR completed_at BETWEEN $1 AND $2
			OR first_paid_at BETWEEN $1 AND $2
			OR second_paid_at BETWEEN $1 AND $2
		ORDER BY order_date NULLS FIRST, id
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, 64)
	for rows.Next() {
		var (
			cols                                   store.OrderColumns
			orderDate, deliveryDate                sql.NullTime
			completedAt, firstPaidAt, secondPaidAt sql.NullTime
		)
		if err := rows.Scan(
			&cols.ID, &cols.BranchName, &orderDate, &deliveryDate, &cols.Status,
			&cols.Items, &cols.Summary, &cols.Payment, &cols.Transfer,
			&completedAt, &firstPaidAt, &secondPaidAt,
			&cols.ActualDeliveryCostCash, &cols.Outsource, &cols.UpdatedAt,
		); err != nil {
			return nil, err
		}
		cols.OrderDate = nullTimePtr(orderDate)
		cols.DeliveryDate = nullTimePtr(deliveryDate)
		cols.CompletedAt = nullTimePtr(completedAt)
		cols.FirstPaidAt = nullTimePtr(firstPaidAt)
		cols.SecondPaidAt = nullTimePtr(secondPaidAt)
		order, err := store.DecodeOrder(cols, s.cal.Location())
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) UpsertOrders(ctx context.Context, orders []domain.Order) (int, error) {
	encoded := make([]store.OrderColumns, 0, len(orders))
	for _, order := range orders {
		if strings.TrimSpace(order.ID) == "" {
			return 0, store.ErrInvalidInput
		}
		cols, err := store.EncodeOrder(order)
		if err != nil {
			return 0, err
		}
		encoded = append(encoded, cols)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, cols := range encoded {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO orders (
				id, branch_name, order_date, delivery_date, status, items, summary, payment,
				transfer, completed_at, first_paid_at, second_paid_at,
				actual_delivery_cost_cash, outsource, updated_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,now())
			ON CONFLICT (id) DO UPDATE SET
				branch_name = EXCLUDED.branch_name,
				order_date = EXCLUDED.order_date,
				delivery_date = EXCLUDED.delivery_date,
				status = EXCLUDED.status,
				items = EXCLUDED.items,
				summary = EXCLUDED.summary,
				payment = EXCLUDED.payment,
				transfer = EXCLUDED.transfer,
				completed_at = EXCLUDED.completed_at,
				first_paid_at = EXCLUDED.first_paid_at,
				second_paid_at = EXCLUDED.second_paid_at,
				actual_delivery_cost_cash = EXCLUDED.actual_delivery_cost_cash,
				outsource = EXCLUDED.outsource,
				updated_at = now()
		`,
			cols.ID, cols.BranchName, nullTime(cols.OrderDate), nullTime(cols.DeliveryDate), cols.Status,
			cols.Items, cols.Summary, cols.Payment, nullIfEmpty(cols.Transfer),
			nullTime(cols.CompletedAt), nullTime(cols.FirstPaidAt), nullTime(cols.SecondPaidAt),
			cols.ActualDeliveryCostCash, nullIfEmpty(cols.Outsource),
		); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(encoded), nil
}

func (s *Store) ListExpenses(ctx context.Context, filter domain.ExpenseFilter) ([]domain.Expense, error) {
	from, to := filter.From, filter.To
	if from.IsZero() {
		from = minTime
	}
	if to.IsZero() {
		to = maxTime
	}
	branchID := filter.BranchID
	if branchID == domain.AllBranches {
		branchID = ""
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, branch_id, expense_date, category, payment_method, description, amount,
			COALESCE(related_order_id, ''), updated_at
		FROM expenses
		WHERE ($1 = '' OR branch_id = $1)
			AND expense_date BETWEEN $2 AND $3
		ORDER BY expense_date, id
	`, branchID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0, 32)
	for rows.Next() {
		var (
			e        domain.Expense
			category string
			date     sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.BranchID, &date, &category, &e.PaymentMethod, &e.Description, &e.Amount, &e.RelatedOrderID, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.Category = domain.ExpenseCategory(category)
		if date.Valid {
			e.Date = date.Time.In(s.cal.Location())
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return expenses, nil
}

func (s *Store) UpsertExpenses(ctx context.Context, expenses []domain.Expense) (int, error) {
	for _, e := range expenses {
		if strings.TrimSpace(e.ID) == "" || strings.TrimSpace(e.BranchID) == "" {
			return 0, store.ErrInvalidInput
		}
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range expenses {
		var date *time.Time
		if !e.Date.IsZero() {
			date = &e.Date
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO expenses (id, branch_id, expense_date, category, payment_method, description, amount, related_order_id, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
			ON CONFLICT (id) DO UPDATE SET
				branch_id = EXCLUDED.branch_id,
				expense_date = EXCLUDED.expense_date,
				category = EXCLUDED.category,
				payment_method = EXCLUDED.payment_method,
				description = EXCLUDED.description,
				amount = EXCLUDED.amount,
				related_order_id = EXCLUDED.related_order_id,
				updated_at = now()
		`, e.ID, e.BranchID, nullTime(date), string(e.Category), e.PaymentMethod, e.Description, e.Amount, nullIfEmpty(e.RelatedOrderID)); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(expenses), nil
}

const settlementColumns = `
	id, branch_id, settlement_date, previous_vault_balance, cash_sales_today,
	vault_deposit, delivery_cost_cash_today, cash_expense_today, created_at, updated_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanSettlement(row rowScanner) (domain.SettlementRecord, error) {
	var r domain.SettlementRecord
	if err := row.Scan(
		&r.ID, &r.BranchID, &r.Date, &r.PreviousVaultBalance, &r.CashSalesToday,
		&r.VaultDeposit, &r.DeliveryCostCashToday, &r.CashExpenseToday, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return domain.SettlementRecord{}, err
	}
	r.Date = s.cal.DateOf(r.Date)
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}

func (s *Store) GetSettlementRecord(ctx context.Context, branchID string, date time.Time) (domain.SettlementRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+settlementColumns+`
		FROM settlement_records
		WHERE branch_id = $1 AND settlement_date = $2::date
	`, branchID, s.cal.DayKey(date))
	record, err := s.scanSettlement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SettlementRecord{}, store.ErrNotFound
	}
	return record, err
}

func (s *Store) FindLastSettlementBefore(ctx context.Context, branchID string, date time.Time) (domain.SettlementRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+settlementColumns+`
		FROM settlement_records
		WHERE branch_id = $1 AND settlement_date < $2::date
		ORDER BY settlement_date DESC
		LIMIT 1
	`, branchID, s.cal.DayKey(date))
	record, err := s.scanSettlement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SettlementRecord{}, store.ErrNotFound
	}
	return record, err
}

func (s *Store) SaveSettlementRecord(ctx context.Context, record domain.SettlementRecord) (*domain.SettlementRecord, error) {
	if err := store.ValidateSettlementRecord(record); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO settlement_records (
			id, branch_id, settlement_date, previous_vault_balance, cash_sales_today,
			vault_deposit, delivery_cost_cash_today, cash_expense_today, created_at, updated_at
		)
		VALUES ($1,$2,$3::date,$4,$5,$6,$7,$8,now(),now())
		ON CONFLICT (branch_id, settlement_date) DO UPDATE SET
			previous_vault_balance = EXCLUDED.previous_vault_balance,
			cash_sales_today = EXCLUDED.cash_sales_today,
			vault_deposit = EXCLUDED.vault_deposit,
			delivery_cost_cash_today = EXCLUDED.delivery_cost_cash_today,
			cash_expense_today = EXCLUDED.cash_expense_today,
			updated_at = now()
		RETURNING `+settlementColumns,
		xid.New("set"), record.BranchID, s.cal.DayKey(record.Date), record.PreviousVaultBalance, record.CashSalesToday,
		record.VaultDeposit, record.DeliveryCostCashToday, record.CashExpenseToday,
	)
	saved, err := s.scanSettlement(row)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &saved, nil
}

func (s *Store) ListSettlementRecords(ctx context.Context, branchID string, from time.Time, to time.Time) ([]domain.SettlementRecord, error) {
	fromKey, toKey := s.cal.DayKey(from), s.cal.DayKey(to)
	if fromKey == "" {
		fromKey = minTime.Format(datenorm.DateLayout)
	}
	if toKey == "" {
		toKey = maxTime.Format(datenorm.DateLayout)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+settlementColumns+`
		FROM settlement_records
		WHERE branch_id = $1 AND settlement_date BETWEEN $2::date AND $3::date
		ORDER BY settlement_date
	`, branchID, fromKey, toKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.SettlementRecord, 0, 32)
	for rows.Next() {
		record, err := s.scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
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
	if user.Role == domain.RoleManager && strings.TrimSpace(user.BranchID) == "" {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, branch_id, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,true,$5,now())
	`, user.Username, user.Password, user.Role, nullIfEmpty(user.BranchID), user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		if isForeignKeyViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, COALESCE(branch_id, ''), active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.BranchID, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullTimePtr(val sql.NullTime) *time.Time {
	if !val.Valid {
		return nil
	}
	t := val.Time
	return &t
}
