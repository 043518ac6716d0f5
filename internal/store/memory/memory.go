package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"branchsettle/backend/internal/datenorm"
	"branchsettle/backend/internal/domain"
	"branchsettle/backend/internal/store"
	"branchsettle/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	branchesByID    map[string]domain.Branch
	ordersByID      map[string]domain.Order
	expensesByID    map[string]domain.Expense
	settlements     map[string]domain.SettlementRecord
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_MANAGER_PASSWORD; when
// unset, dev defaults are used with a warning.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	managerPwd := envOr("SEED_MANAGER_PASSWORD", "manager123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_MANAGER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_MANAGER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
		branchID string
	}{
		{"admin", adminPwd, domain.RoleAdmin, ""},
		{"gangnam", managerPwd, domain.RoleManager, "gangnam"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			BranchID:  u.branchID,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		branchesByID:    make(map[string]domain.Branch),
		ordersByID:      make(map[string]domain.Order),
		expensesByID:    make(map[string]domain.Expense),
		settlements:     make(map[string]domain.SettlementRecord),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store with demo branches and accounts.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	for _, b := range []domain.Branch{
		{ID: "gangnam", Name: "강남점"},
		{ID: "seocho", Name: "서초점"},
		{ID: "hongdae", Name: "홍대점"},
	} {
		b.Active = true
		b.CreatedAt = now
		s.branchesByID[b.ID] = b
	}
	s.usersByUsername = seedUsers()
	return s
}

func (s *Store) ListBranches(_ context.Context) ([]domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Branch, 0, len(s.branchesByID))
	for _, b := range s.branchesByID {
		out = append(out, b)
	}
	slices.SortFunc(out, func(a, b domain.Branch) int {
		return cmpString(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) GetBranch(_ context.Context, id string) (domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.branchesByID[id]
	if !ok {
		return domain.Branch{}, store.ErrNotFound
	}
	return b, nil
}

func (s *Store) CreateBranch(_ context.Context, branch domain.Branch) (*domain.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	branch.ID = strings.TrimSpace(branch.ID)
	branch.Name = strings.TrimSpace(branch.Name)
	if branch.ID == "" || branch.Name == "" || branch.ID == domain.AllBranches {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.branchesByID[branch.ID]; exists {
		return nil, store.ErrConflict
	}
	for _, existing := range s.branchesByID {
		if existing.Name == branch.Name {
			return nil, store.ErrConflict
		}
	}
	if branch.CreatedAt.IsZero() {
		branch.CreatedAt = time.Now().UTC()
	}
	branch.Active = true
	s.branchesByID[branch.ID] = branch
	return &branch, nil
}

func (s *Store) ListOrders(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Order, 0, 32)
	for _, order := range s.ordersByID {
		if filter.Match(order) {
			out = append(out, cloneOrder(order))
		}
	}
	slices.SortFunc(out, func(a, b domain.Order) int {
		if c := a.OrderDate.Compare(b.OrderDate); c != 0 {
			return c
		}
		return cmpString(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) UpsertOrders(_ context.Context, orders []domain.Order) (int, error) {
	for _, order := range orders {
		if strings.TrimSpace(order.ID) == "" {
			return 0, store.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, order := range orders {
		order = cloneOrder(order)
		order.UpdatedAt = now
		s.ordersByID[order.ID] = order
	}
	return len(orders), nil
}

func (s *Store) ListExpenses(_ context.Context, filter domain.ExpenseFilter) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Expense, 0, 32)
	for _, e := range s.expensesByID {
		if filter.Match(e) {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b domain.Expense) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return cmpString(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) UpsertExpenses(_ context.Context, expenses []domain.Expense) (int, error) {
	for _, e := range expenses {
		if strings.TrimSpace(e.ID) == "" || strings.TrimSpace(e.BranchID) == "" {
			return 0, store.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, e := range expenses {
		e.UpdatedAt = now
		s.expensesByID[e.ID] = e
	}
	return len(expenses), nil
}

func (s *Store) GetSettlementRecord(_ context.Context, branchID string, date time.Time) (domain.SettlementRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.settlements[settlementKey(branchID, date)]
	if !ok {
		return domain.SettlementRecord{}, store.ErrNotFound
	}
	return record, nil
}

func (s *Store) FindLastSettlementBefore(_ context.Context, branchID string, date time.Time) (domain.SettlementRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := dayKey(date)
	var (
		best  domain.SettlementRecord
		found bool
	)
	for _, record := range s.settlements {
		if record.BranchID != branchID {
			continue
		}
		key := dayKey(record.Date)
		if key >= cutoff {
			continue
		}
		if !found || key > dayKey(best.Date) {
			best = record
			found = true
		}
	}
	if !found {
		return domain.SettlementRecord{}, store.ErrNotFound
	}
	return best, nil
}

func (s *Store) SaveSettlementRecord(_ context.Context, record domain.SettlementRecord) (*domain.SettlementRecord, error) {
	if err := store.ValidateSettlementRecord(record); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.branchesByID[record.BranchID]; !ok {
		return nil, store.ErrNotFound
	}

	now := time.Now().UTC()
	key := settlementKey(record.BranchID, record.Date)
	if existing, ok := s.settlements[key]; ok {
		record.ID = existing.ID
		record.CreatedAt = existing.CreatedAt
	} else {
		record.ID = xid.New("set")
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	s.settlements[key] = record
	return &record, nil
}

func (s *Store) ListSettlementRecords(_ context.Context, branchID string, from time.Time, to time.Time) ([]domain.SettlementRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fromKey, toKey := dayKey(from), dayKey(to)
	out := make([]domain.SettlementRecord, 0, 16)
	for _, record := range s.settlements {
		if record.BranchID != branchID {
			continue
		}
		key := dayKey(record.Date)
		if (fromKey != "" && key < fromKey) || (toKey != "" && key > toKey) {
			continue
		}
		out = append(out, record)
	}
	slices.SortFunc(out, func(a, b domain.SettlementRecord) int {
		return cmpString(dayKey(a.Date), dayKey(b.Date))
	})
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleManager
	}
	if user.Role == domain.RoleManager {
		if _, ok := s.branchesByID[user.BranchID]; !ok {
			return store.ErrInvalidInput
		}
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

// dayKey keeps the calendar day the caller passed in; settlement dates arrive
// as business-day midnights.
func dayKey(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(datenorm.DateLayout)
}

func settlementKey(branchID string, date time.Time) string {
	return branchID + "|" + dayKey(date)
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneOrder(src domain.Order) domain.Order {
	dup := src
	dup.Items = slices.Clone(src.Items)
	if src.Outsource != nil {
		outsource := *src.Outsource
		dup.Outsource = &outsource
	}
	if split, ok := src.Payment.(domain.SplitPayment); ok && split.SecondAmount != nil {
		amount := *split.SecondAmount
		split.SecondAmount = &amount
		dup.Payment = split
	}
	return dup
}
