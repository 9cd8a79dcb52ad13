package interfaces

import (
	"context"

	"portfolio-engine/internal/types"
)

// Advisor produces proposal batches. The advisory service's reasoning is
// opaque to the engine; only the proposed orders and their metadata cross
// this boundary.
type Advisor interface {
	Propose(ctx context.Context) (types.Proposal, error)
}
