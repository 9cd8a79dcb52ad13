// Package engineobs decorates an Engine with tracing and timing logs so the
// core engine stays free of observability plumbing.
package engineobs

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"portfolio-engine/internal/interfaces"
	"portfolio-engine/internal/logger"
	"portfolio-engine/internal/trace"
	"portfolio-engine/internal/types"
)

type observableEngine struct {
	engine interfaces.Engine
}

var _ interfaces.Engine = (*observableEngine)(nil)

func Wrap(eng interfaces.Engine) interfaces.Engine {
	return &observableEngine{engine: eng}
}

func (oe *observableEngine) Start(ctx context.Context) types.EngineStatus {
	ctx, span := trace.StartSpan(ctx, "engine.Start")
	defer span.End()

	status := oe.engine.Start(ctx)
	logger.Info(ctx, "Engine start requested",
		"running", status.Running,
		"halted", status.Halted,
		"mode", string(status.Mode),
	)
	return status
}

func (oe *observableEngine) Stop(ctx context.Context) types.EngineStatus {
	ctx, span := trace.StartSpan(ctx, "engine.Stop")
	defer span.End()

	status := oe.engine.Stop(ctx)
	logger.Info(ctx, "Engine stop requested",
		"running", status.Running,
	)
	return status
}

func (oe *observableEngine) EmergencyStop(ctx context.Context) types.EngineStatus {
	ctx, span := trace.StartSpan(ctx, "engine.EmergencyStop")
	defer span.End()

	status := oe.engine.EmergencyStop(ctx)
	logger.Warn(ctx, "Emergency stop engaged",
		"running", status.Running,
		"halted", status.Halted,
	)
	return status
}

func (oe *observableEngine) ResumeFromHalt(ctx context.Context) types.EngineStatus {
	ctx, span := trace.StartSpan(ctx, "engine.ResumeFromHalt")
	defer span.End()

	status := oe.engine.ResumeFromHalt(ctx)
	logger.Info(ctx, "Halt cleared",
		"running", status.Running,
		"halted", status.Halted,
	)
	return status
}

func (oe *observableEngine) Status(ctx context.Context) types.StatusReport {
	return oe.engine.Status(ctx)
}

func (oe *observableEngine) SubmitManualOrder(ctx context.Context, order types.Order) types.ExecutionResult {
	ctx, span := trace.StartSpan(ctx, "engine.SubmitManualOrder")
	defer span.End()

	start := time.Now()
	res := oe.engine.SubmitManualOrder(ctx, order)
	logger.Info(ctx, "Manual order handled",
		"ticker", order.Ticker,
		"action", string(order.Action),
		"shares", order.Shares,
		"success", res.Success,
		"code", res.Code,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res
}

func (oe *observableEngine) SubmitAdvisorBatch(ctx context.Context, proposal types.Proposal) types.BatchReport {
	ctx, span := trace.StartSpan(ctx, "engine.SubmitAdvisorBatch")
	defer span.End()

	start := time.Now()
	report := oe.engine.SubmitAdvisorBatch(ctx, proposal)
	logger.Info(ctx, "Advisor batch handled",
		"total", report.Total,
		"successful", report.Successful,
		"failed", report.Failed,
		"dry_run", report.DryRun,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return report
}

func (oe *observableEngine) PortfolioSummary(ctx context.Context) []types.PositionView {
	ctx, span := trace.StartSpan(ctx, "engine.PortfolioSummary")
	defer span.End()
	return oe.engine.PortfolioSummary(ctx)
}

func (oe *observableEngine) CashBalance(ctx context.Context) decimal.Decimal {
	return oe.engine.CashBalance(ctx)
}

func (oe *observableEngine) DailyPerformance(ctx context.Context, limit int) ([]types.DailyPerformance, error) {
	ctx, span := trace.StartSpan(ctx, "engine.DailyPerformance")
	defer span.End()

	records, err := oe.engine.DailyPerformance(ctx, limit)
	if err != nil {
		logger.ErrorWithErr(ctx, "Daily performance read failed", err)
	}
	return records, err
}

func (oe *observableEngine) RecentBatches(ctx context.Context, limit int) []types.BatchReport {
	return oe.engine.RecentBatches(ctx, limit)
}

func (oe *observableEngine) SetMode(ctx context.Context, mode types.Mode) types.Settings {
	ctx, span := trace.StartSpan(ctx, "engine.SetMode")
	defer span.End()

	settings := oe.engine.SetMode(ctx, mode)
	logger.Info(ctx, "Mode updated", "mode", string(settings.Mode))
	return settings
}

func (oe *observableEngine) UpdateLimits(ctx context.Context, update types.LimitsUpdate) types.Settings {
	ctx, span := trace.StartSpan(ctx, "engine.UpdateLimits")
	defer span.End()

	settings := oe.engine.UpdateLimits(ctx, update)
	logger.Info(ctx, "Risk limits updated",
		"max_daily_trades", settings.MaxDailyTrades,
		"max_position_size", settings.MaxPositionSize.String(),
		"mode", string(settings.Mode),
	)
	return settings
}
