package engine

import (
	"context"
	"time"

	"portfolio-engine/internal/logger"
	"portfolio-engine/internal/store"
	"portfolio-engine/internal/tradelog"
	"portfolio-engine/internal/types"
)

// executor is the single funnel through which gate-approved orders reach the
// ledger. It journals every attempt and checkpoints the portfolio after each
// successful mutation. Callers hold the engine's mutation lock.
type executor struct {
	ledger *ledger
	store  store.Store
}

func newExecutor(l *ledger, st store.Store) *executor {
	return &executor{ledger: l, store: st}
}

// apply runs the order against the ledger. A non-nil error is an internal
// consistency fault; business failures are reported in the result with the
// ledger left untouched.
func (ex *executor) apply(ctx context.Context, o types.Order, now time.Time) (types.ExecutionResult, error) {
	res, err := ex.ledger.apply(o, now)
	if err != nil {
		logger.ErrorWithErr(ctx, "Ledger apply fault", err, "ticker", o.Ticker)
		return res, err
	}

	ex.journal(ctx, res)

	if res.Success {
		logger.Trade(ctx, o.Ticker, string(o.Action), o.Shares, o.Price.String(),
			"source", string(o.Source),
			"realized_pnl", res.RealizedPnL.String(),
			"cash", ex.ledger.cash.String(),
		)
		ex.checkpoint(ctx)
	} else {
		logger.Warn(ctx, "Order failed at ledger",
			"ticker", o.Ticker,
			"action", string(o.Action),
			"code", res.Code,
			"message", res.Message,
		)
	}

	return res, nil
}

// journal writes the attempt to the JSON-lines trade journal and the durable
// store. Journal failures are logged and swallowed; they must not fail the
// trade that already executed.
func (ex *executor) journal(ctx context.Context, res types.ExecutionResult) {
	if err := tradelog.Append(tradelog.Entry{
		Ticker:      res.Order.Ticker,
		Action:      string(res.Order.Action),
		Shares:      res.Order.Shares,
		Price:       res.Order.Price.String(),
		RealizedPnL: res.RealizedPnL.String(),
		Source:      string(res.Order.Source),
		Reason:      res.Order.Reason,
		Confidence:  res.Order.Confidence,
		Success:     res.Success,
		Code:        res.Code,
	}); err != nil {
		logger.Warn(ctx, "Trade journal append failed", "error", err)
	}

	if !res.Success {
		return
	}
	if err := ex.store.SaveTrade(ctx, store.TradeRecord{
		Time:        res.Time,
		Ticker:      res.Order.Ticker,
		Action:      string(res.Order.Action),
		Shares:      res.Order.Shares,
		Price:       res.Order.Price,
		RealizedPnL: res.RealizedPnL,
		Source:      string(res.Order.Source),
		Reason:      res.Order.Reason,
	}); err != nil {
		logger.Warn(ctx, "Trade store write failed", "error", err)
	}
}

// checkpoint persists cash and open positions so the portfolio survives a
// restart.
func (ex *executor) checkpoint(ctx context.Context) {
	err := ex.store.SavePortfolio(ctx, ex.ledger.cash, ex.ledger.realized, ex.ledger.snapshot())
	if err != nil {
		logger.Warn(ctx, "Portfolio checkpoint failed", "error", err)
	}
}
