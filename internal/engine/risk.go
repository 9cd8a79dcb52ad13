package engine

import (
	"context"
	"fmt"
	"time"

	"portfolio-engine/internal/logger"
	"portfolio-engine/internal/types"
)

// riskGovernor gates every order against the halt flag, the daily trade
// limit, and the per-order position size cap. It is guarded by the engine's
// mutation lock, so a halt set by emergencyStop is effective for the very
// next gate call even if that call was already queued behind the lock.
type riskGovernor struct {
	limits types.RiskLimits
	mode   types.Mode
	halted bool

	dailyCount int
	countDate  string // YYYY-MM-DD of the day dailyCount belongs to
}

func newRiskGovernor(limits types.RiskLimits, mode types.Mode) *riskGovernor {
	return &riskGovernor{limits: limits, mode: mode}
}

// rejection is a gate decision against an order; nil means Allow.
type rejection struct {
	code    string
	message string
}

// gate evaluates, in order: halt flag, daily limit (LIVE-mode counted calls
// only), position size. Evaluate-only calls run the same checks but never
// consume daily capacity.
func (g *riskGovernor) gate(ctx context.Context, o types.Order, now time.Time, evaluateOnly bool) *rejection {
	if g.halted {
		return &rejection{CodeEngineHalted, "engine halted by emergency stop"}
	}

	g.rollDate(now)
	if g.mode == types.ModeLive && !evaluateOnly && g.dailyCount >= g.limits.MaxDailyTrades {
		return &rejection{
			CodeDailyLimitReached,
			fmt.Sprintf("daily trade limit reached (%d/%d)", g.dailyCount, g.limits.MaxDailyTrades),
		}
	}

	if notional := o.Notional(); notional.GreaterThan(g.limits.MaxPositionSize) {
		logger.Risk(ctx, o.Ticker, "POSITION_TOO_LARGE",
			"notional", notional.String(),
			"max_position_size", g.limits.MaxPositionSize.String(),
		)
		return &rejection{
			CodePositionTooLarge,
			fmt.Sprintf("order notional %s exceeds position limit %s", notional, g.limits.MaxPositionSize),
		}
	}

	return nil
}

// recordExecution counts one completed trade. Only LIVE-mode, non-evaluate
// executions consume daily capacity.
func (g *riskGovernor) recordExecution(now time.Time) {
	if g.mode != types.ModeLive {
		return
	}
	g.rollDate(now)
	g.dailyCount++
}

// rollDate resets the daily counter exactly once when the calendar date
// advances past countDate.
func (g *riskGovernor) rollDate(now time.Time) {
	d := now.Format("2006-01-02")
	if g.countDate != d {
		g.dailyCount = 0
		g.countDate = d
	}
}

// emergencyStop flips the reject-all flag. It does not touch the run state
// and does not auto-clear on engine start or stop.
func (g *riskGovernor) emergencyStop() { g.halted = true }

func (g *riskGovernor) resumeFromHalt() { g.halted = false }

func (g *riskGovernor) settings() types.Settings {
	return types.Settings{
		Mode:            g.mode,
		MaxDailyTrades:  g.limits.MaxDailyTrades,
		MaxPositionSize: g.limits.MaxPositionSize,
		DailyTradeCount: g.dailyCount,
		DailyLimitHit:   g.dailyCount >= g.limits.MaxDailyTrades,
		Halted:          g.halted,
	}
}

// update applies a partial limits change and returns the effective settings.
func (g *riskGovernor) update(ctx context.Context, u types.LimitsUpdate) types.Settings {
	if u.MaxDailyTrades != nil {
		g.limits.MaxDailyTrades = *u.MaxDailyTrades
	}
	if u.MaxPositionSize != nil {
		g.limits.MaxPositionSize = *u.MaxPositionSize
	}
	if u.Mode != nil {
		g.setMode(ctx, *u.Mode)
	}
	return g.settings()
}

func (g *riskGovernor) setMode(ctx context.Context, mode types.Mode) {
	if g.mode == mode {
		return
	}
	old := g.mode
	g.mode = mode
	if mode == types.ModeLive {
		logger.Warn(ctx, "Trading mode switched to LIVE - orders will consume daily limit",
			"old_mode", string(old),
		)
	} else {
		logger.Info(ctx, "Trading mode changed", "old_mode", string(old), "new_mode", string(mode))
	}
}
