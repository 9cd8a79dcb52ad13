// Package advisor provides proposal sources the engine can poll.
package advisor

import (
	"context"
	"sync"

	"portfolio-engine/internal/interfaces"
	"portfolio-engine/internal/types"
)

// StaticAdvisor replays a fixed queue of proposals, one per Propose call,
// then returns empty proposals. It stands in for a live advisory service in
// simulated runs and tests.
type StaticAdvisor struct {
	mu     sync.Mutex
	queue  []types.Proposal
	dryRun bool
}

var _ interfaces.Advisor = (*StaticAdvisor)(nil)

func NewStaticAdvisor(dryRun bool, proposals ...types.Proposal) *StaticAdvisor {
	return &StaticAdvisor{queue: proposals, dryRun: dryRun}
}

func (a *StaticAdvisor) Propose(ctx context.Context) (types.Proposal, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.queue) == 0 {
		return types.Proposal{DryRun: a.dryRun}, nil
	}
	p := a.queue[0]
	a.queue = a.queue[1:]
	p.DryRun = p.DryRun || a.dryRun
	return p, nil
}

// Enqueue appends a proposal to the replay queue.
func (a *StaticAdvisor) Enqueue(p types.Proposal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queue = append(a.queue, p)
}

// NoopAdvisor never proposes anything.
type NoopAdvisor struct{}

var _ interfaces.Advisor = (*NoopAdvisor)(nil)

func NewNoopAdvisor() *NoopAdvisor { return &NoopAdvisor{} }

func (a *NoopAdvisor) Propose(ctx context.Context) (types.Proposal, error) {
	return types.Proposal{}, nil
}
