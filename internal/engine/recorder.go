package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"portfolio-engine/internal/logger"
	"portfolio-engine/internal/store"
	"portfolio-engine/internal/types"
)

// recorder keeps one equity snapshot per calendar date. The scheduler calls
// it at day rollover; it can also be invoked on demand. A second snapshot
// for the same date overwrites the first.
type recorder struct {
	store store.Store
}

func newRecorder(st store.Store) *recorder {
	return &recorder{store: st}
}

func (r *recorder) snapshot(ctx context.Context, date string, cash, portfolioValue decimal.Decimal) (types.DailyPerformance, error) {
	rec := types.DailyPerformance{
		Date:           date,
		Cash:           cash,
		PortfolioValue: portfolioValue,
		TotalEquity:    cash.Add(portfolioValue),
	}
	if err := r.store.UpsertDailyPerformance(ctx, rec); err != nil {
		return rec, err
	}
	logger.Info(ctx, "Daily performance recorded",
		"date", date,
		"total_equity", rec.TotalEquity.String(),
		"cash", cash.String(),
		"portfolio_value", portfolioValue.String(),
	)
	return rec, nil
}

// recent returns stored records most-recent-first.
func (r *recorder) recent(ctx context.Context, limit int) ([]types.DailyPerformance, error) {
	return r.store.ListDailyPerformance(ctx, limit)
}
