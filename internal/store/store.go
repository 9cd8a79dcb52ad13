// Package store holds the durable state behind the engine: executed trades,
// the portfolio checkpoint used to survive restarts, and the daily
// performance series. Configuration loading lives here too.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"portfolio-engine/internal/types"
)

// TradeRecord is one successfully executed trade as persisted.
type TradeRecord struct {
	Time        time.Time
	Ticker      string
	Action      string
	Shares      int64
	Price       decimal.Decimal
	RealizedPnL decimal.Decimal
	Source      string
	Reason      string
}

// Store is the persistence boundary. Implementations must be safe for
// concurrent use.
type Store interface {
	// SaveTrade appends one executed trade to the trade history.
	SaveTrade(ctx context.Context, rec TradeRecord) error

	// SavePortfolio replaces the portfolio checkpoint with the given cash,
	// cumulative realized P&L and open positions.
	SavePortfolio(ctx context.Context, cash, realized decimal.Decimal, positions []types.Position) error

	// LoadPortfolio returns the last checkpoint. ok is false when no
	// checkpoint has ever been written.
	LoadPortfolio(ctx context.Context) (cash, realized decimal.Decimal, positions []types.Position, ok bool, err error)

	// UpsertDailyPerformance writes the snapshot for its date, overwriting
	// any earlier snapshot for the same date.
	UpsertDailyPerformance(ctx context.Context, rec types.DailyPerformance) error

	// ListDailyPerformance returns up to limit records, most recent first.
	// A non-positive limit returns all records.
	ListDailyPerformance(ctx context.Context, limit int) ([]types.DailyPerformance, error)

	Close() error
}
