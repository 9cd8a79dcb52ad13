// Package quotes provides quote sources for position valuation and stop-loss
// scanning.
package quotes

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"portfolio-engine/internal/interfaces"
)

// StaticSource serves quotes from an in-memory table. It backs simulated
// runs and tests; prices change only through Set.
type StaticSource struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

var _ interfaces.QuoteSource = (*StaticSource)(nil)

func NewStaticSource(initial map[string]float64) *StaticSource {
	s := &StaticSource{prices: make(map[string]decimal.Decimal, len(initial))}
	for ticker, price := range initial {
		s.prices[ticker] = decimal.NewFromFloat(price)
	}
	return s
}

func (s *StaticSource) Latest(ctx context.Context, ticker string) (decimal.Decimal, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	price, ok := s.prices[ticker]
	return price, ok, nil
}

// Set installs or replaces the quote for ticker.
func (s *StaticSource) Set(ticker string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[ticker] = price
}

// Remove drops the quote for ticker, making it unquotable.
func (s *StaticSource) Remove(ticker string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.prices, ticker)
}
