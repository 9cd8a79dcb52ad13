package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"portfolio-engine/internal/types"
)

// ledger owns cash and positions. It has no lock of its own: every caller
// goes through the engine's single mutation lock, so no apply can be
// observed half-complete.
type ledger struct {
	cash      decimal.Decimal
	positions map[string]*types.Position
	realized  decimal.Decimal // cumulative realized P&L
}

func newLedger(cash decimal.Decimal) *ledger {
	return &ledger{
		cash:      cash,
		positions: make(map[string]*types.Position),
	}
}

// restore replaces the ledger state wholesale, used when reloading a
// checkpoint from the store at startup.
func (l *ledger) restore(cash, realized decimal.Decimal, positions []types.Position) {
	l.cash = cash
	l.realized = realized
	l.positions = make(map[string]*types.Position, len(positions))
	for i := range positions {
		p := positions[i]
		l.positions[p.Ticker] = &p
	}
}

// apply executes a single already-gated order. Business failures
// (insufficient funds/shares, unknown position) come back as an unsuccessful
// ExecutionResult with the ledger untouched. A non-nil error means the
// ledger itself is corrupt and the caller must abort.
func (l *ledger) apply(o types.Order, now time.Time) (types.ExecutionResult, error) {
	res := types.ExecutionResult{Order: o, Time: now}

	switch o.Action {
	case types.ActionBuy:
		l.buy(o, &res)
	case types.ActionSell:
		l.sell(o, &res)
	default:
		res.Code = CodeValidation
		res.Message = fmt.Sprintf("unsupported action %q", o.Action)
		return res, nil
	}

	if err := l.checkInvariants(); err != nil {
		return res, err
	}
	return res, nil
}

func (l *ledger) buy(o types.Order, res *types.ExecutionResult) {
	cost := o.Notional()
	if l.cash.LessThan(cost) {
		res.Code = CodeInsufficientFunds
		res.Message = fmt.Sprintf("insufficient funds: need %s, have %s", cost, l.cash)
		return
	}

	l.cash = l.cash.Sub(cost)

	p := l.positions[o.Ticker]
	if p == nil {
		p = &types.Position{Ticker: o.Ticker, Shares: o.Shares, AvgCost: o.Price}
		l.positions[o.Ticker] = p
	} else {
		// Shares-weighted mean of the prior holding and the new lot.
		total := p.CostBasis().Add(cost)
		p.Shares += o.Shares
		p.AvgCost = total.Div(decimal.NewFromInt(p.Shares))
	}
	if o.StopLoss != nil {
		sl := *o.StopLoss
		p.StopLoss = &sl
	}

	res.Success = true
	res.Code = CodeExecuted
	res.Message = fmt.Sprintf("bought %d %s @ %s", o.Shares, o.Ticker, o.Price)
	snap := *p
	res.Position = &snap
}

func (l *ledger) sell(o types.Order, res *types.ExecutionResult) {
	p := l.positions[o.Ticker]
	if p == nil {
		res.Code = CodeUnknownPosition
		res.Message = fmt.Sprintf("no position held in %s", o.Ticker)
		return
	}
	if o.Shares > p.Shares {
		res.Code = CodeInsufficientShares
		res.Message = fmt.Sprintf("insufficient shares: requested %d, held %d", o.Shares, p.Shares)
		return
	}

	proceeds := o.Notional()
	pnl := o.Price.Sub(p.AvgCost).Mul(decimal.NewFromInt(o.Shares))

	l.cash = l.cash.Add(proceeds)
	l.realized = l.realized.Add(pnl)
	p.Shares -= o.Shares

	res.Success = true
	res.Code = CodeExecuted
	res.RealizedPnL = pnl
	res.Message = fmt.Sprintf("sold %d %s @ %s (pnl %s)", o.Shares, o.Ticker, o.Price, pnl)

	if p.Shares == 0 {
		// Average cost and stop-loss are discarded with the position.
		delete(l.positions, o.Ticker)
	} else {
		snap := *p
		res.Position = &snap
	}
}

// checkInvariants catches states no sequence of valid applies should reach.
func (l *ledger) checkInvariants() error {
	if l.cash.IsNegative() {
		return fmt.Errorf("%w: cash %s is negative", ErrLedgerCorrupt, l.cash)
	}
	for t, p := range l.positions {
		if p.Shares <= 0 {
			return fmt.Errorf("%w: position %s has %d shares", ErrLedgerCorrupt, t, p.Shares)
		}
	}
	return nil
}

func (l *ledger) position(ticker string) (types.Position, bool) {
	p, ok := l.positions[ticker]
	if !ok {
		return types.Position{}, false
	}
	return *p, true
}

// snapshot returns all positions sorted by ticker.
func (l *ledger) snapshot() []types.Position {
	out := make([]types.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

// valuate computes per-position views against the supplied quotes. It works
// on a snapshot so quote lookups never happen under the mutation lock. A
// position whose ticker has no quote reports the quote-dependent fields as
// absent, never as zero.
func valuate(positions []types.Position, quotes map[string]decimal.Decimal) []types.PositionView {
	views := make([]types.PositionView, 0, len(positions))
	for _, p := range positions {
		v := types.PositionView{
			Ticker:   p.Ticker,
			Shares:   p.Shares,
			AvgCost:  p.AvgCost,
			StopLoss: p.StopLoss,
		}
		if price, ok := quotes[p.Ticker]; ok {
			shares := decimal.NewFromInt(p.Shares)
			value := price.Mul(shares)
			pnl := price.Sub(p.AvgCost).Mul(shares)
			v.CurrentPrice = &price
			v.CurrentValue = &value
			v.UnrealizedPnL = &pnl
			if basis := p.CostBasis(); basis.IsPositive() {
				pct := pnl.Div(basis).Mul(decimal.NewFromInt(100))
				v.PnLPercent = &pct
			}
		}
		views = append(views, v)
	}
	return views
}

// portfolioValue sums the current value of every quoted position. Positions
// without a quote contribute nothing.
func portfolioValue(positions []types.Position, quotes map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, p := range positions {
		if price, ok := quotes[p.Ticker]; ok {
			total = total.Add(price.Mul(decimal.NewFromInt(p.Shares)))
		}
	}
	return total
}
