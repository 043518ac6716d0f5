package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"branchsettle/backend/internal/cache"
	"branchsettle/backend/internal/datenorm"
	"branchsettle/backend/internal/domain"
	"branchsettle/backend/internal/settlement"
	"branchsettle/backend/internal/store"
)

// ErrForbidden is returned when the actor may not see the requested branch.
var ErrForbidden = errors.New("branch access denied")

const defaultHistoryDays = 31

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo          store.Repository
	views         cache.ViewCache
	viewTTL       time.Duration
	cal           datenorm.Calendar
	reconstructor *settlement.Reconstructor
	now           func() time.Time
}

func New(repo store.Repository, views cache.ViewCache, viewTTL time.Duration, cal datenorm.Calendar) *Service {
	if views == nil {
		views = cache.NoopViewCache{}
	}
	if viewTTL <= 0 {
		viewTTL = time.Minute
	}

	return &Service{
		repo:          repo,
		views:         views,
		viewTTL:       viewTTL,
		cal:           cal,
		reconstructor: settlement.NewReconstructor(repo, cal),
		now:           time.Now,
	}
}

func (s *Service) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, ErrForbidden
	}
	branches, err := s.repo.ListBranches(ctx)
	if err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleAdmin {
		return branches, nil
	}
	visible := make([]domain.Branch, 0, 1)
	for _, branch := range branches {
		if branch.ID == actor.BranchID {
			visible = append(visible, branch)
		}
	}
	return visible, nil
}

func (s *Service) CreateBranch(ctx context.Context, req domain.BranchCreateRequest) (domain.Branch, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Branch{}, ErrForbidden
	}

	id := strings.ToLower(strings.TrimSpace(req.ID))
	name := strings.TrimSpace(req.Name)
	if id == "" || name == "" || id == domain.AllBranches || strings.ContainsAny(id, " \t\r\n|") {
		return domain.Branch{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateBranch(ctx, domain.Branch{ID: id, Name: name, Active: true})
	if err != nil {
		return domain.Branch{}, err
	}
	log.Printf("[service] branch created id=%s name=%s by=%s", created.ID, created.Name, actor.Username)
	return *created, nil
}

// SettlementView computes the daily view for a branch. Missing manual inputs
// are prefilled from the record already saved for that date.
func (s *Service) SettlementView(ctx context.Context, in domain.SettlementInput) (domain.SettlementView, error) {
	branch, err := s.resolveBranch(ctx, in.BranchID)
	if err != nil {
		return domain.SettlementView{}, err
	}
	day, err := s.parseDay(in.Date)
	if err != nil {
		return domain.SettlementView{}, err
	}

	saved, err := s.savedRecord(ctx, branch, day)
	if err != nil {
		return domain.SettlementView{}, err
	}
	deposit, previous, previousSource := manualInputs(in, saved)

	key := s.viewKey(ctx, branch.ID, day, deposit, previous, previousSource)
	if key != "" {
		cached, ok, err := s.views.Get(ctx, key)
		if err != nil {
			log.Printf("[cache] WARN: view lookup failed key=%s: %v", key, err)
		} else if ok {
			return *cached, nil
		}
	}

	view, err := s.computeView(ctx, branch, day, deposit, previous, previousSource)
	if err != nil {
		return domain.SettlementView{}, err
	}
	view.SavedRecord = saved

	if key != "" {
		if err := s.views.Set(ctx, key, &view, s.viewTTL); err != nil {
			log.Printf("[cache] WARN: view store failed key=%s: %v", key, err)
		}
	}
	return view, nil
}

// SaveSettlement recomputes the view with the submitted inputs and upserts the
// record. Persistence failures are reported in the response, not as an error.
func (s *Service) SaveSettlement(ctx context.Context, in domain.SettlementInput) (domain.SettlementSaveResponse, error) {
	branch, err := s.resolveBranch(ctx, in.BranchID)
	if err != nil {
		return domain.SettlementSaveResponse{}, err
	}
	if branch.ID == domain.AllBranches {
		return domain.SettlementSaveResponse{}, fmt.Errorf("the combined view cannot be saved: %w", store.ErrInvalidInput)
	}
	day, err := s.parseDay(in.Date)
	if err != nil {
		return domain.SettlementSaveResponse{}, err
	}

	saved, err := s.savedRecord(ctx, branch, day)
	if err != nil {
		return domain.SettlementSaveResponse{}, err
	}
	deposit, previous, previousSource := manualInputs(in, saved)
	if deposit < 0 {
		return domain.SettlementSaveResponse{}, fmt.Errorf("vault deposit must not be negative: %w", store.ErrInvalidInput)
	}

	view, err := s.computeView(ctx, branch, day, deposit, previous, previousSource)
	if err != nil {
		return domain.SettlementSaveResponse{}, err
	}

	record, err := s.repo.SaveSettlementRecord(ctx, settlement.RecordFromView(view, day))
	if err != nil {
		log.Printf("[service] WARN: settlement save failed branch=%s date=%s: %v", branch.ID, view.Date, err)
		return domain.SettlementSaveResponse{Saved: false, View: &view, Error: "settlement could not be saved"}, nil
	}
	s.invalidateViews(ctx)

	view.SavedRecord = record
	return domain.SettlementSaveResponse{Saved: true, Record: record, View: &view}, nil
}

// History lists saved records between from and to with their closing balances.
// A record whose opening balance differs from the previous day's closing
// balance is flagged, not corrected.
func (s *Service) History(ctx context.Context, branchID string, from string, to string) (domain.SettlementHistoryResponse, error) {
	branch, err := s.resolveBranch(ctx, branchID)
	if err != nil {
		return domain.SettlementHistoryResponse{}, err
	}
	if branch.ID == domain.AllBranches {
		return domain.SettlementHistoryResponse{}, fmt.Errorf("history needs a single branch: %w", store.ErrInvalidInput)
	}

	last, err := s.parseDay(to)
	if err != nil {
		return domain.SettlementHistoryResponse{}, err
	}
	first := s.cal.AddDays(last, -(defaultHistoryDays - 1))
	if strings.TrimSpace(from) != "" {
		if first, err = s.parseDay(from); err != nil {
			return domain.SettlementHistoryResponse{}, err
		}
	}
	if first.After(last) {
		return domain.SettlementHistoryResponse{}, fmt.Errorf("from is after to: %w", store.ErrInvalidInput)
	}

	records, err := s.repo.ListSettlementRecords(ctx, branch.ID, first, last)
	if err != nil {
		return domain.SettlementHistoryResponse{}, err
	}

	entries := make([]domain.SettlementHistoryEntry, 0, len(records))
	for i, record := range records {
		entry := domain.SettlementHistoryEntry{Record: record, ClosingBalance: record.ClosingBalance()}
		if i > 0 {
			prev := records[i-1]
			if s.cal.DaysBetween(prev.Date, record.Date) == 1 && prev.ClosingBalance() != record.PreviousVaultBalance {
				entry.ChainBreak = true
			}
		}
		entries = append(entries, entry)
	}

	return domain.SettlementHistoryResponse{
		BranchID: branch.ID,
		From:     s.cal.DayKey(first),
		To:       s.cal.DayKey(last),
		Entries:  entries,
	}, nil
}

func (s *Service) Reconstruct(ctx context.Context, branchID string, date string) (domain.Reconstruction, error) {
	branch, err := s.resolveBranch(ctx, branchID)
	if err != nil {
		return domain.Reconstruction{}, err
	}
	if branch.ID == domain.AllBranches {
		return domain.Reconstruction{}, fmt.Errorf("reconstruction needs a single branch: %w", store.ErrInvalidInput)
	}
	day, err := s.parseDay(date)
	if err != nil {
		return domain.Reconstruction{}, err
	}
	return s.reconstructor.Reconstruct(ctx, branch, day)
}

func (s *Service) computeView(ctx context.Context, branch domain.Branch, day time.Time, deposit int64, previous int64, previousSource string) (domain.SettlementView, error) {
	window := s.cal.DayWindow(day)

	orders, err := s.repo.ListOrders(ctx, domain.OrderFilter{From: window.From, To: window.To})
	if err != nil {
		return domain.SettlementView{}, fmt.Errorf("list orders: %w", err)
	}
	expenseBranch := branch.ID
	if expenseBranch == domain.AllBranches {
		expenseBranch = ""
	}
	expenses, err := s.repo.ListExpenses(ctx, domain.ExpenseFilter{BranchID: expenseBranch, From: window.From, To: window.To})
	if err != nil {
		return domain.SettlementView{}, fmt.Errorf("list expenses: %w", err)
	}

	input := settlement.DayInput{
		Branch:         branch,
		Date:           day,
		Window:         window,
		Orders:         orders,
		Expenses:       expenses,
		ManualPrevious: previous,
		ManualSource:   previousSource,
		VaultDeposit:   deposit,
	}
	if previous == 0 && branch.ID != domain.AllBranches {
		prior, err := s.reconstructor.Reconstruct(ctx, branch, s.cal.AddDays(day, -1))
		switch {
		case err != nil:
			log.Printf("[service] WARN: previous balance lookup failed branch=%s date=%s: %v", branch.ID, s.cal.DayKey(day), err)
		case prior.Status == domain.ReconstructionPersisted:
			input.PriorRecord = prior.Record
		default:
			input.Reconstruction = &prior
		}
	}

	view := settlement.ComputeView(input)
	view.ComputedAt = s.now().UTC()
	return view, nil
}

func (s *Service) savedRecord(ctx context.Context, branch domain.Branch, day time.Time) (*domain.SettlementRecord, error) {
	if branch.ID == domain.AllBranches {
		return nil, nil
	}
	record, err := s.repo.GetSettlementRecord(ctx, branch.ID, day)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// manualInputs merges request inputs over the saved record and reports where
// the previous balance came from.
func manualInputs(in domain.SettlementInput, saved *domain.SettlementRecord) (int64, int64, string) {
	var deposit, previous int64
	source := domain.BalanceSourceManual
	if saved != nil {
		deposit = saved.VaultDeposit
		previous = saved.PreviousVaultBalance
		source = domain.BalanceSourceSaved
	}
	if in.VaultDeposit != nil {
		deposit = *in.VaultDeposit
	}
	if in.PreviousVaultBalance != nil {
		previous = *in.PreviousVaultBalance
		source = domain.BalanceSourceManual
	}
	return deposit, previous, source
}

// resolveBranch applies branch scoping: managers are pinned to their own
// branch and may not request the combined view.
func (s *Service) resolveBranch(ctx context.Context, branchID string) (domain.Branch, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Branch{}, ErrForbidden
	}

	branchID = strings.TrimSpace(branchID)
	if branchID == "" && actor.Role == domain.RoleManager {
		branchID = actor.BranchID
	}
	if branchID == "" {
		return domain.Branch{}, fmt.Errorf("branch_id is required: %w", store.ErrInvalidInput)
	}

	switch actor.Role {
	case domain.RoleAdmin:
	case domain.RoleManager:
		if branchID != actor.BranchID {
			return domain.Branch{}, ErrForbidden
		}
	default:
		return domain.Branch{}, ErrForbidden
	}

	if branchID == domain.AllBranches {
		return domain.Branch{ID: domain.AllBranches, Name: "전체", Active: true}, nil
	}
	return s.repo.GetBranch(ctx, branchID)
}

func (s *Service) parseDay(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return s.cal.StartOfDay(s.now()), nil
	}
	day, ok := s.cal.ParseDay(raw)
	if !ok {
		return time.Time{}, fmt.Errorf("date must be YYYY-MM-DD: %w", store.ErrInvalidInput)
	}
	return day, nil
}

// viewKey returns "" when the cache generation is unavailable; the view is
// then computed without caching.
func (s *Service) viewKey(ctx context.Context, branchID string, day time.Time, deposit int64, previous int64, previousSource string) string {
	gen, err := s.views.Generation(ctx)
	if err != nil {
		log.Printf("[cache] WARN: generation lookup failed: %v", err)
		return ""
	}
	return fmt.Sprintf("settlement:view:%d:%s:%s:%d:%d:%s", gen, branchID, s.cal.DayKey(day), deposit, previous, previousSource)
}

func (s *Service) invalidateViews(ctx context.Context) {
	if err := s.views.Bump(ctx); err != nil {
		log.Printf("[cache] WARN: view invalidation failed: %v", err)
	}
}
