package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"portfolio-engine/internal/logger"
	"portfolio-engine/internal/types"
)

// stopMonitor scans positions for breached stop-loss thresholds and emits
// full-liquidation SELL candidates. It never mutates anything itself; the
// candidates still pass the gate and the executor like any other order.
type stopMonitor struct{}

// scan returns one SELL order per position whose quote is at or below its
// stop-loss. Positions without a stop are ignored; positions without a quote
// are treated as stale and skipped, never defaulted to zero.
func (sm *stopMonitor) scan(ctx context.Context, positions []types.Position, quotes map[string]decimal.Decimal) []types.Order {
	var candidates []types.Order
	for _, p := range positions {
		if p.StopLoss == nil {
			continue
		}
		price, ok := quotes[p.Ticker]
		if !ok {
			logger.Debug(ctx, "No quote for position, skipping stop check", "ticker", p.Ticker)
			continue
		}
		if price.GreaterThan(*p.StopLoss) {
			continue
		}

		unrealized := price.Sub(p.AvgCost).Mul(decimal.NewFromInt(p.Shares))
		logger.Warn(ctx, "Stop loss triggered",
			"ticker", p.Ticker,
			"event", "STOP_LOSS_TRIGGERED",
			"current_price", price.String(),
			"stop_price", p.StopLoss.String(),
			"position_shares", p.Shares,
			"position_avg", p.AvgCost.String(),
			"unrealized_loss", unrealized.String(),
		)

		candidates = append(candidates, types.Order{
			Action: types.ActionSell,
			Ticker: p.Ticker,
			Shares: p.Shares,
			Price:  price,
			Source: types.SourceStopLoss,
			Reason: "stop loss breached at " + p.StopLoss.String(),
		})
	}
	return candidates
}
