package types

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Action is the order side.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Source records which path an order entered through.
type Source string

const (
	SourceManual   Source = "MANUAL"
	SourceAdvisor  Source = "ADVISOR"
	SourceStopLoss Source = "STOP_LOSS"
)

// Mode selects paper or real execution semantics. SIMULATED trades are not
// counted against the daily trade limit.
type Mode string

const (
	ModeSimulated Mode = "SIMULATED"
	ModeLive      Mode = "LIVE"
)

// Order is a validated trade request. StopLoss is only meaningful on BUY
// orders and Confidence only on advisor-originated ones.
type Order struct {
	Action     Action           `json:"action"`
	Ticker     string           `json:"ticker"`
	Shares     int64            `json:"shares"`
	Price      decimal.Decimal  `json:"price"`
	StopLoss   *decimal.Decimal `json:"stop_loss,omitempty"`
	Source     Source           `json:"source"`
	Confidence float64          `json:"confidence,omitempty"`
	Reason     string           `json:"reason,omitempty"`
}

var errBadAction = errors.New("action must be BUY or SELL")

// Validate rejects malformed orders at the boundary, before any gating or
// ledger logic can see them.
func (o Order) Validate() error {
	if o.Action != ActionBuy && o.Action != ActionSell {
		return errBadAction
	}
	if o.Ticker == "" {
		return errors.New("ticker is required")
	}
	if o.Shares <= 0 {
		return fmt.Errorf("shares must be positive, got %d", o.Shares)
	}
	if !o.Price.IsPositive() {
		return fmt.Errorf("price must be positive, got %s", o.Price)
	}
	if o.StopLoss != nil {
		if o.Action != ActionBuy {
			return errors.New("stop_loss is only valid on BUY orders")
		}
		if !o.StopLoss.IsPositive() {
			return fmt.Errorf("stop_loss must be positive, got %s", o.StopLoss)
		}
	}
	switch o.Source {
	case SourceManual, SourceAdvisor, SourceStopLoss:
	default:
		return fmt.Errorf("unknown order source %q", o.Source)
	}
	return nil
}

// Notional is the currency value of the order (shares * price).
func (o Order) Notional() decimal.Decimal {
	return o.Price.Mul(decimal.NewFromInt(o.Shares))
}

// Position is a holding in the ledger. Shares is always positive; a position
// is removed from the ledger when it reaches zero.
type Position struct {
	Ticker   string           `json:"ticker"`
	Shares   int64            `json:"shares"`
	AvgCost  decimal.Decimal  `json:"avg_cost"`
	StopLoss *decimal.Decimal `json:"stop_loss,omitempty"`
}

// CostBasis is shares * average cost.
func (p Position) CostBasis() decimal.Decimal {
	return p.AvgCost.Mul(decimal.NewFromInt(p.Shares))
}

// PositionView is a position enriched with quote-dependent fields. The
// pointer fields are nil when the ticker has no quote; callers must not
// conflate that with a zero value or a missing position.
type PositionView struct {
	Ticker        string           `json:"ticker"`
	Shares        int64            `json:"shares"`
	AvgCost       decimal.Decimal  `json:"avg_cost"`
	StopLoss      *decimal.Decimal `json:"stop_loss,omitempty"`
	CurrentPrice  *decimal.Decimal `json:"current_price,omitempty"`
	CurrentValue  *decimal.Decimal `json:"current_value,omitempty"`
	UnrealizedPnL *decimal.Decimal `json:"unrealized_pnl,omitempty"`
	PnLPercent    *decimal.Decimal `json:"pnl_percent,omitempty"`
}

// ExecutionResult reports the outcome of one order. Code is a stable reason
// code (EXECUTED, INSUFFICIENT_FUNDS, ENGINE_HALTED, ...) distinct enough for
// the caller to decide whether to resubmit, adjust limits, or alert.
type ExecutionResult struct {
	Order       Order           `json:"order"`
	Success     bool            `json:"success"`
	Code        string          `json:"code"`
	Message     string          `json:"message"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	Position    *Position       `json:"position,omitempty"`
	Simulated   bool            `json:"simulated"`
	Time        time.Time       `json:"time"`
}

// Proposal is a batch of proposed trades from the advisory service, executed
// in submission order.
type Proposal struct {
	Trades []Order `json:"proposed_trades"`
	DryRun bool    `json:"dry_run"`
}

// BatchReport summarizes one proposal run. Results preserves submission
// order; ExecutionRate is successful/total (0 for an empty batch).
type BatchReport struct {
	Total         int               `json:"total"`
	Successful    int               `json:"successful"`
	Failed        int               `json:"failed"`
	ExecutionRate float64           `json:"execution_rate"`
	DryRun        bool              `json:"dry_run"`
	Results       []ExecutionResult `json:"results"`
	Time          time.Time         `json:"time"`
}

// RiskLimits holds the gate thresholds. MaxPositionSize is a currency amount
// per order, not a fraction of equity.
type RiskLimits struct {
	MaxDailyTrades  int             `json:"max_daily_trades"`
	MaxPositionSize decimal.Decimal `json:"max_position_size"`
}

// LimitsUpdate is a partial RiskLimits change; nil fields are left untouched.
type LimitsUpdate struct {
	MaxDailyTrades  *int             `json:"max_daily_trades,omitempty"`
	MaxPositionSize *decimal.Decimal `json:"max_position_size,omitempty"`
	Mode            *Mode            `json:"mode,omitempty"`
}

// Settings is the effective risk configuration after an update.
type Settings struct {
	Mode            Mode            `json:"mode"`
	MaxDailyTrades  int             `json:"max_daily_trades"`
	MaxPositionSize decimal.Decimal `json:"max_position_size"`
	DailyTradeCount int             `json:"daily_trade_count"`
	DailyLimitHit   bool            `json:"daily_limit_reached"`
	Halted          bool            `json:"halted"`
}

// EngineStatus is the lifecycle view returned by start/stop/halt calls.
// Running and Halted are independent axes; all four combinations are
// reachable.
type EngineStatus struct {
	Running bool `json:"running"`
	Halted  bool `json:"halted"`
	Mode    Mode `json:"mode"`
}

// StatusReport extends EngineStatus with scheduling parameters.
type StatusReport struct {
	EngineStatus
	CheckInterval time.Duration `json:"check_interval"`
	MarketHours   MarketHours   `json:"market_hours"`
}

// DailyPerformance is one equity snapshot per calendar date. Repeated
// snapshots for the same date overwrite the stored record.
type DailyPerformance struct {
	Date           string          `json:"date"` // YYYY-MM-DD
	TotalEquity    decimal.Decimal `json:"total_equity"`
	Cash           decimal.Decimal `json:"cash"`
	PortfolioValue decimal.Decimal `json:"portfolio_value"`
}

// MarketHours is a half-open [Start, End) window within a trading day.
type MarketHours struct {
	Start string `json:"start" yaml:"start"` // HH:MM
	End   string `json:"end" yaml:"end"`     // HH:MM
}

// Contains reports whether t's clock time falls inside the window.
func (m MarketHours) Contains(t time.Time) bool {
	start, err1 := parseClock(m.Start)
	end, err2 := parseClock(m.End)
	if err1 != nil || err2 != nil {
		return false
	}
	minute := t.Hour()*60 + t.Minute()
	return minute >= start && minute < end
}

// Validate checks both bounds parse and the window is non-empty.
func (m MarketHours) Validate() error {
	start, err := parseClock(m.Start)
	if err != nil {
		return fmt.Errorf("market_hours.start: %w", err)
	}
	end, err := parseClock(m.End)
	if err != nil {
		return fmt.Errorf("market_hours.end: %w", err)
	}
	if start >= end {
		return fmt.Errorf("market_hours window %s-%s is empty", m.Start, m.End)
	}
	return nil
}

func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock time %q out of range", s)
	}
	return h*60 + m, nil
}
