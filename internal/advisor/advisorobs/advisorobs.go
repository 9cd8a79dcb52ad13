// Package advisorobs decorates an Advisor with tracing and timing logs.
package advisorobs

import (
	"context"
	"time"

	"portfolio-engine/internal/interfaces"
	"portfolio-engine/internal/logger"
	"portfolio-engine/internal/trace"
	"portfolio-engine/internal/types"
)

type observableAdvisor struct {
	advisor interfaces.Advisor
}

var _ interfaces.Advisor = (*observableAdvisor)(nil)

func Wrap(a interfaces.Advisor) interfaces.Advisor {
	return &observableAdvisor{advisor: a}
}

func (oa *observableAdvisor) Propose(ctx context.Context) (types.Proposal, error) {
	ctx, span := trace.StartSpan(ctx, "advisor.Propose")
	defer span.End()

	start := time.Now()
	proposal, err := oa.advisor.Propose(ctx)
	if err != nil {
		logger.ErrorWithErr(ctx, "Advisor proposal failed", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return proposal, err
	}

	logger.Info(ctx, "Advisor proposal received",
		"trades", len(proposal.Trades),
		"dry_run", proposal.DryRun,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return proposal, nil
}
