package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dhankosh/backend/internal/models"
	"github.com/dhankosh/backend/internal/repository"
)

// Store is the in-memory repository used by tests and by local runs without
// DATABASE_URL. Data resets on restart.
type Store struct {
	mu sync.RWMutex

	investments map[string]models.Investment
	byOwner     map[string][]string

	transactions map[string][]models.Transaction // by investment id
	lots         map[string][]models.Lot         // by investment id
	allocations  map[string][]models.SellAllocation
	overrides    map[string][]models.Override

	monthly  map[string]models.MonthlySnapshot // (investmentID, month) key
	networth map[string]models.NetWorthSnapshot

	goals           map[string]models.Goal
	goalInvestments map[string][]models.GoalInvestment // by goal id

	settings map[string]string
	prices   map[string][]models.PriceQuote // by symbol
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		investments:     make(map[string]models.Investment),
		byOwner:         make(map[string][]string),
		transactions:    make(map[string][]models.Transaction),
		lots:            make(map[string][]models.Lot),
		allocations:     make(map[string][]models.SellAllocation),
		overrides:       make(map[string][]models.Override),
		monthly:         make(map[string]models.MonthlySnapshot),
		networth:        make(map[string]models.NetWorthSnapshot),
		goals:           make(map[string]models.Goal),
		goalInvestments: make(map[string][]models.GoalInvestment),
		settings:        make(map[string]string),
		prices:          make(map[string][]models.PriceQuote),
	}
}

func (s *Store) GetInvestment(ctx context.Context, id string) (*models.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.investments[id]
	if !ok {
		return nil, repository.ErrInvestmentNotFound
	}
	cp := inv
	return &cp, nil
}

func (s *Store) ListInvestmentsByOwner(ctx context.Context, ownerID string) ([]models.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Investment{}
	for _, id := range s.byOwner[ownerID] {
		out = append(out, s.investments[id])
	}
	slices.SortFunc(out, func(a, b models.Investment) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

func (s *Store) SaveInvestment(ctx context.Context, inv models.Investment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.investments[inv.ID]; !exists {
		s.byOwner[inv.OwnerID] = append(s.byOwner[inv.OwnerID], inv.ID)
	}
	s.investments[inv.ID] = inv
	return nil
}

func (s *Store) CreateTransaction(ctx context.Context, tx models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[tx.InvestmentID] = append(s.transactions[tx.InvestmentID], tx)
	return nil
}

func sortTxs(txs []models.Transaction) {
	slices.SortStableFunc(txs, func(a, b models.Transaction) int {
		return a.Date.Compare(b.Date)
	})
}

func (s *Store) ListTransactions(ctx context.Context, investmentID string) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]models.Transaction(nil), s.transactions[investmentID]...)
	sortTxs(out)
	return out, nil
}

func (s *Store) ListTransactionsThrough(ctx context.Context, investmentID string, cutoff time.Time) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Transaction{}
	for _, tx := range s.transactions[investmentID] {
		if !tx.Date.After(cutoff) {
			out = append(out, tx)
		}
	}
	sortTxs(out)
	return out, nil
}

func (s *Store) ListSellsBetween(ctx context.Context, ownerID string, from, to time.Time) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Transaction{}
	for _, id := range s.byOwner[ownerID] {
		for _, tx := range s.transactions[id] {
			if tx.Type != models.TxSell {
				continue
			}
			if tx.Date.Before(from) || tx.Date.After(to) {
				continue
			}
			out = append(out, tx)
		}
	}
	sortTxs(out)
	return out, nil
}

func (s *Store) CreateLot(ctx context.Context, lot models.Lot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lots[lot.InvestmentID] = append(s.lots[lot.InvestmentID], lot)
	return nil
}

func (s *Store) ListLots(ctx context.Context, investmentID string) ([]models.Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]models.Lot(nil), s.lots[investmentID]...)
	slices.SortStableFunc(out, func(a, b models.Lot) int {
		return a.AcquiredAt.Compare(b.AcquiredAt)
	})
	return out, nil
}

func (s *Store) UpdateLotRemaining(ctx context.Context, lotID string, remaining decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for invID, lotList := range s.lots {
		for i := range lotList {
			if lotList[i].ID == lotID {
				s.lots[invID][i].UnitsRemaining = remaining
				return nil
			}
		}
	}
	return repository.ErrInvestmentNotFound
}

func (s *Store) CreateAllocations(ctx context.Context, allocs []models.SellAllocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range allocs {
		s.allocations[a.SellTxID] = append(s.allocations[a.SellTxID], a)
	}
	return nil
}

func (s *Store) ListAllocationsBySell(ctx context.Context, sellTxID string) ([]models.SellAllocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.SellAllocation(nil), s.allocations[sellTxID]...), nil
}

func (s *Store) SaveOverride(ctx context.Context, o models.Override) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[o.InvestmentID] = append(s.overrides[o.InvestmentID], o)
	return nil
}

func (s *Store) LatestOverride(ctx context.Context, investmentID string, asOf time.Time) (*models.Override, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *models.Override
	for _, o := range s.overrides[investmentID] {
		if o.AsOf.After(asOf) {
			continue
		}
		// Newest as-of wins; equal as-of dates resolve by creation time, the
		// same ordering the SQL store uses.
		if best == nil || o.AsOf.After(best.AsOf) ||
			(o.AsOf.Equal(best.AsOf) && o.CreatedAt.After(best.CreatedAt)) {
			cp := o
			best = &cp
		}
	}
	return best, nil
}

func monthlyKey(investmentID, month string) string { return investmentID + "::" + month }

func (s *Store) ReplaceMonthlySnapshot(ctx context.Context, snap models.MonthlySnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monthly[monthlyKey(snap.InvestmentID, snap.Month)] = snap
	return nil
}

func (s *Store) ListMonthlySnapshotsByMonth(ctx context.Context, month string) ([]models.MonthlySnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.MonthlySnapshot{}
	for _, snap := range s.monthly {
		if snap.Month == month {
			out = append(out, snap)
		}
	}
	slices.SortFunc(out, func(a, b models.MonthlySnapshot) int {
		if a.InvestmentID < b.InvestmentID {
			return -1
		}
		if a.InvestmentID > b.InvestmentID {
			return 1
		}
		return 0
	})
	return out, nil
}

func (s *Store) ListMonthlySnapshotsByInvestment(ctx context.Context, investmentID string) ([]models.MonthlySnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.MonthlySnapshot{}
	for _, snap := range s.monthly {
		if snap.InvestmentID == investmentID {
			out = append(out, snap)
		}
	}
	slices.SortFunc(out, func(a, b models.MonthlySnapshot) int {
		if a.Month < b.Month {
			return -1
		}
		if a.Month > b.Month {
			return 1
		}
		return 0
	})
	return out, nil
}

func (s *Store) ReplaceNetWorthSnapshot(ctx context.Context, snap models.NetWorthSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.networth[monthlyKey(snap.OwnerID, snap.Month)] = snap
	return nil
}

func (s *Store) ListNetWorthSnapshots(ctx context.Context, ownerID string) ([]models.NetWorthSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.NetWorthSnapshot{}
	for _, snap := range s.networth {
		if snap.OwnerID == ownerID {
			out = append(out, snap)
		}
	}
	slices.SortFunc(out, func(a, b models.NetWorthSnapshot) int {
		if a.Month < b.Month {
			return -1
		}
		if a.Month > b.Month {
			return 1
		}
		return 0
	})
	return out, nil
}

func (s *Store) GetGoal(ctx context.Context, id string) (*models.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.goals[id]
	if !ok {
		return nil, repository.ErrGoalNotFound
	}
	cp := g
	return &cp, nil
}

func (s *Store) ListGoalsByOwner(ctx context.Context, ownerID string) ([]models.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Goal{}
	for _, g := range s.goals {
		if g.OwnerID == ownerID {
			out = append(out, g)
		}
	}
	slices.SortFunc(out, func(a, b models.Goal) int { return a.Priority - b.Priority })
	return out, nil
}

func (s *Store) SaveGoal(ctx context.Context, g models.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.goals[g.ID] = g
	return nil
}

func (s *Store) CreateGoalInvestment(ctx context.Context, gi models.GoalInvestment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.goalInvestments[gi.GoalID] = append(s.goalInvestments[gi.GoalID], gi)
	return nil
}

func (s *Store) ListGoalInvestments(ctx context.Context, goalID string) ([]models.GoalInvestment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.GoalInvestment(nil), s.goalInvestments[goalID]...), nil
}

func (s *Store) FindGoalForInvestment(ctx context.Context, investmentID string) (*models.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for goalID, links := range s.goalInvestments {
		for _, gi := range links {
			if gi.InvestmentID == investmentID {
				g := s.goals[goalID]
				cp := g
				return &cp, nil
			}
		}
	}
	return nil, nil
}

// SetSetting seeds a settings entry; used by tests and local bootstrap.
func (s *Store) SetSetting(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
}

func (s *Store) GetSettings(ctx context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.settings))
	for k, v := range s.settings {
		out[k] = v
	}
	return out, nil
}

func (s *Store) SavePrices(ctx context.Context, quotes []models.PriceQuote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range quotes {
		s.prices[q.Symbol] = append(s.prices[q.Symbol], q)
	}
	return nil
}

// sourceRank returns the preference index of a source within the set, or -1
// when the source is excluded.
func sourceRank(src models.PriceSource, sources []models.PriceSource) int {
	for i, s := range sources {
		if s == src {
			return i
		}
	}
	return -1
}

func pickLatest(quotes []models.PriceQuote, sources []models.PriceSource, cutoff *time.Time) *models.PriceQuote {
	var best *models.PriceQuote
	bestRank := 0
	for i := range quotes {
		q := quotes[i]
		rank := sourceRank(q.Source, sources)
		if rank < 0 {
			continue
		}
		if cutoff != nil && q.Date.After(*cutoff) {
			continue
		}
		switch {
		case best == nil,
			q.Date.After(best.Date),
			q.Date.Equal(best.Date) && rank < bestRank:
			cp := q
			best = &cp
			bestRank = rank
		}
	}
	return best
}

func (s *Store) LatestPrice(ctx context.Context, symbol string, sources []models.PriceSource) (*models.PriceQuote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if best := pickLatest(s.prices[symbol], sources, nil); best != nil {
		return best, nil
	}
	return nil, repository.ErrNoPrice
}

func (s *Store) PriceOnOrBefore(ctx context.Context, symbol string, sources []models.PriceSource, cutoff time.Time) (*models.PriceQuote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if best := pickLatest(s.prices[symbol], sources, &cutoff); best != nil {
		return best, nil
	}
	return nil, repository.ErrNoPrice
}

func (s *Store) EarliestPrice(ctx context.Context, symbol string) (*models.PriceQuote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *models.PriceQuote
	for i := range s.prices[symbol] {
		q := s.prices[symbol][i]
		if best == nil || q.Date.Before(best.Date) {
			cp := q
			best = &cp
		}
	}
	if best == nil {
		return nil, repository.ErrNoPrice
	}
	return best, nil
}

func (s *Store) HasHistory(ctx context.Context, symbol string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.prices[symbol]) > 0, nil
}
