package engine

import (
	"context"

	"portfolio-engine/internal/logger"
	"portfolio-engine/internal/trace"
	"portfolio-engine/internal/types"
)

// SubmitAdvisorBatch runs a proposal batch. Dry-run proposals pass every
// trade through the gate in evaluate-only mode and never touch the ledger.
// Live proposals execute sequentially in submission order; each trade is
// independently all-or-nothing and a business failure on one trade does not
// stop the rest. Only an internal consistency fault aborts the remainder.
func (e *Engine) SubmitAdvisorBatch(ctx context.Context, proposal types.Proposal) types.BatchReport {
	ctx, span := trace.StartSpan(ctx, "engine.SubmitAdvisorBatch")
	defer span.End()

	report := types.BatchReport{
		Total:  len(proposal.Trades),
		DryRun: proposal.DryRun,
		Time:   e.now(),
	}

	logger.Info(ctx, "Advisor batch received",
		"trades", report.Total,
		"dry_run", proposal.DryRun,
	)

	for _, o := range proposal.Trades {
		o.Source = types.SourceAdvisor
		res, err := e.submit(ctx, o, proposal.DryRun)
		if err != nil {
			// Ledger corruption or similar: record the fault and abort the
			// remaining trades.
			res.Success = false
			res.Code = "SYSTEM_FAULT"
			res.Message = err.Error()
			report.Results = append(report.Results, res)
			logger.ErrorWithErr(ctx, "Advisor batch aborted", err,
				"executed", len(report.Results),
				"remaining", report.Total-len(report.Results),
			)
			break
		}
		report.Results = append(report.Results, res)
		if res.Success {
			report.Successful++
		}
	}

	report.Failed = report.Total - report.Successful
	if report.Total > 0 {
		report.ExecutionRate = float64(report.Successful) / float64(report.Total)
	}

	logger.Info(ctx, "Advisor batch finished",
		"total", report.Total,
		"successful", report.Successful,
		"failed", report.Failed,
		"execution_rate", report.ExecutionRate,
		"dry_run", proposal.DryRun,
	)

	e.mu.Lock()
	e.history = append(e.history, report)
	if len(e.history) > e.historyLimit {
		e.history = e.history[len(e.history)-e.historyLimit:]
	}
	e.mu.Unlock()

	return report
}

// RecentBatches returns up to limit batch reports, most recent first.
func (e *Engine) RecentBatches(ctx context.Context, limit int) []types.BatchReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	if limit <= 0 || limit > len(e.history) {
		limit = len(e.history)
	}
	out := make([]types.BatchReport, 0, limit)
	for i := len(e.history) - 1; i >= len(e.history)-limit; i-- {
		out = append(out, e.history[i])
	}
	return out
}
