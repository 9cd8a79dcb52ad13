package store

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"portfolio-engine/internal/types"
)

// MemoryStore keeps everything in process memory. It backs tests and runs
// where persistence is switched off.
type MemoryStore struct {
	mu        sync.Mutex
	trades    []TradeRecord
	daily     map[string]types.DailyPerformance
	cash      decimal.Decimal
	realized  decimal.Decimal
	positions []types.Position
	saved     bool
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{daily: make(map[string]types.DailyPerformance)}
}

func (m *MemoryStore) SaveTrade(ctx context.Context, rec TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, rec)
	return nil
}

// Trades returns a copy of the stored trade history, oldest first.
func (m *MemoryStore) Trades() []TradeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TradeRecord, len(m.trades))
	copy(out, m.trades)
	return out
}

func (m *MemoryStore) SavePortfolio(ctx context.Context, cash, realized decimal.Decimal, positions []types.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cash = cash
	m.realized = realized
	m.positions = make([]types.Position, len(positions))
	copy(m.positions, positions)
	m.saved = true
	return nil
}

func (m *MemoryStore) LoadPortfolio(ctx context.Context) (decimal.Decimal, decimal.Decimal, []types.Position, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.saved {
		return decimal.Zero, decimal.Zero, nil, false, nil
	}
	positions := make([]types.Position, len(m.positions))
	copy(positions, m.positions)
	return m.cash, m.realized, positions, true, nil
}

func (m *MemoryStore) UpsertDailyPerformance(ctx context.Context, rec types.DailyPerformance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.daily[rec.Date] = rec
	return nil
}

func (m *MemoryStore) ListDailyPerformance(ctx context.Context, limit int) ([]types.DailyPerformance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]types.DailyPerformance, 0, len(m.daily))
	for _, rec := range m.daily {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
