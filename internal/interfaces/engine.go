package interfaces

import (
	"context"

	"github.com/shopspring/decimal"

	"portfolio-engine/internal/types"
)

// Engine is the trading control plane. Lifecycle calls are idempotent;
// order-submitting calls block until the ledger mutation (or rejection)
// completes.
type Engine interface {
	Start(ctx context.Context) types.EngineStatus
	Stop(ctx context.Context) types.EngineStatus
	EmergencyStop(ctx context.Context) types.EngineStatus
	ResumeFromHalt(ctx context.Context) types.EngineStatus
	Status(ctx context.Context) types.StatusReport

	SubmitManualOrder(ctx context.Context, order types.Order) types.ExecutionResult
	SubmitAdvisorBatch(ctx context.Context, proposal types.Proposal) types.BatchReport

	PortfolioSummary(ctx context.Context) []types.PositionView
	CashBalance(ctx context.Context) decimal.Decimal
	DailyPerformance(ctx context.Context, limit int) ([]types.DailyPerformance, error)
	RecentBatches(ctx context.Context, limit int) []types.BatchReport

	SetMode(ctx context.Context, mode types.Mode) types.Settings
	UpdateLimits(ctx context.Context, update types.LimitsUpdate) types.Settings
}
