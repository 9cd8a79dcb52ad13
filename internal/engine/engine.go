// Package engine implements the trading control plane: the run/halt state
// machine, the risk gate, atomic order application against the portfolio
// ledger, timer-driven stop-loss scans, and daily performance snapshots.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"portfolio-engine/internal/interfaces"
	"portfolio-engine/internal/logger"
	"portfolio-engine/internal/store"
	"portfolio-engine/internal/trace"
	"portfolio-engine/internal/types"
)

// Options configures a new Engine.
type Options struct {
	InitialCash   decimal.Decimal
	Limits        types.RiskLimits
	Mode          types.Mode
	CheckInterval time.Duration
	MarketHours   types.MarketHours
	HistoryLimit  int // batch reports kept in memory, 0 uses a default

	// Clock is injectable for tests; nil means time.Now.
	Clock func() time.Time
}

const defaultHistoryLimit = 50

// Engine is an explicitly constructed engine context: created at process
// start, torn down at shutdown, passed to every entry point. There is no
// package-level instance.
type Engine struct {
	// mu is the single mutation lock. A manual order, an advisor-batch
	// trade, and a scheduler-triggered stop-loss order are mutually
	// exclusive under it.
	mu sync.Mutex

	ledger   *ledger
	governor *riskGovernor
	stops    *stopMonitor
	exec     *executor
	recorder *recorder

	quotes interfaces.QuoteSource

	checkInterval time.Duration
	marketHours   types.MarketHours
	now           func() time.Time

	// runMu guards the loop lifecycle. Lock order: runMu before mu.
	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}

	lastSnapshotDate string

	history      []types.BatchReport
	historyLimit int
}

var _ interfaces.Engine = (*Engine)(nil)

// New builds the engine and restores a portfolio checkpoint from the store
// when one exists.
func New(opts Options, quotes interfaces.QuoteSource, st store.Store) (*Engine, error) {
	if opts.CheckInterval <= 0 {
		return nil, fmt.Errorf("check interval must be positive, got %v", opts.CheckInterval)
	}
	if err := opts.MarketHours.Validate(); err != nil {
		return nil, err
	}
	if opts.Mode != types.ModeSimulated && opts.Mode != types.ModeLive {
		return nil, fmt.Errorf("unknown trading mode %q", opts.Mode)
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	histLimit := opts.HistoryLimit
	if histLimit <= 0 {
		histLimit = defaultHistoryLimit
	}

	l := newLedger(opts.InitialCash)
	if cash, realized, positions, ok, err := st.LoadPortfolio(context.Background()); err != nil {
		return nil, fmt.Errorf("restore portfolio: %w", err)
	} else if ok {
		l.restore(cash, realized, positions)
	}

	e := &Engine{
		ledger:           l,
		governor:         newRiskGovernor(opts.Limits, opts.Mode),
		stops:            &stopMonitor{},
		exec:             newExecutor(l, st),
		recorder:         newRecorder(st),
		quotes:           quotes,
		checkInterval:    opts.CheckInterval,
		marketHours:      opts.MarketHours,
		now:              clock,
		historyLimit:     histLimit,
		lastSnapshotDate: clock().Format("2006-01-02"),
	}
	return e, nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Start launches the background scheduling loop. Starting an already-running
// engine is a no-op returning the current status.
func (e *Engine) Start(ctx context.Context) types.EngineStatus {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.running {
		logger.Warn(ctx, "Engine already running")
		return e.statusLocked()
	}
	e.stopCh = make(chan struct{})
	e.done = make(chan struct{})
	e.running = true
	go e.run()
	logger.Info(ctx, "Engine started", "check_interval", e.checkInterval.String())
	return e.statusLocked()
}

// Stop signals the loop and waits for any in-flight tick to complete.
// Stopping a stopped engine is a no-op. The halt flag is not touched.
func (e *Engine) Stop(ctx context.Context) types.EngineStatus {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if !e.running {
		return e.statusLocked()
	}
	close(e.stopCh)
	<-e.done
	e.running = false
	logger.Info(ctx, "Engine stopped")
	return e.statusLocked()
}

// EmergencyStop sets the reject-all halt flag. It is effective for the very
// next gate call, including one already queued behind the mutation lock, and
// does not change the run state: a halted engine keeps ticking, but every
// resulting order is rejected at the gate.
func (e *Engine) EmergencyStop(ctx context.Context) types.EngineStatus {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	e.mu.Lock()
	e.governor.emergencyStop()
	e.mu.Unlock()
	logger.Warn(ctx, "EMERGENCY STOP - all orders will be rejected until resume")
	return e.statusLocked()
}

// ResumeFromHalt clears the halt flag. Halt never auto-clears on start/stop.
func (e *Engine) ResumeFromHalt(ctx context.Context) types.EngineStatus {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	e.mu.Lock()
	e.governor.resumeFromHalt()
	e.mu.Unlock()
	logger.Info(ctx, "Engine resumed from halt")
	return e.statusLocked()
}

// Status reports run state, halt state, mode, and scheduling parameters.
func (e *Engine) Status(ctx context.Context) types.StatusReport {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return types.StatusReport{
		EngineStatus:  e.statusLocked(),
		CheckInterval: e.checkInterval,
		MarketHours:   e.marketHours,
	}
}

// statusLocked requires runMu held.
func (e *Engine) statusLocked() types.EngineStatus {
	e.mu.Lock()
	s := e.governor.settings()
	e.mu.Unlock()
	return types.EngineStatus{Running: e.running, Halted: s.Halted, Mode: s.Mode}
}

// ---------------------------------------------------------------------------
// Scheduler loop
// ---------------------------------------------------------------------------

func (e *Engine) run() {
	defer close(e.done)
	ticker := time.NewTicker(e.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			// A stop that raced with this firing wins; no extra tick runs.
			select {
			case <-e.stopCh:
				return
			default:
			}
			e.tick(context.Background())
			// A firing that queued up while the tick ran is dropped, not
			// replayed; the breach is re-evaluated at the next interval.
			select {
			case <-ticker.C:
			default:
			}
		}
	}
}

// tick is one check-and-act cycle: day rollover bookkeeping, then (inside
// market hours) quote refresh, stop-loss scan, and gated liquidation of any
// candidates.
func (e *Engine) tick(ctx context.Context) {
	ctx, span := trace.StartSpan(ctx, "engine.tick")
	defer span.End()

	now := e.now()
	e.rollover(ctx, now)

	if !e.marketHours.Contains(now) {
		logger.Debug(ctx, "Outside market hours, scan skipped")
		return
	}

	e.mu.Lock()
	positions := e.ledger.snapshot()
	e.mu.Unlock()

	quotes, err := e.refreshQuotes(ctx, positions)
	if err != nil {
		// SystemFault: abandon this cycle, stay RUNNING, retry next interval.
		logger.ErrorWithErr(ctx, "Tick abandoned: quote refresh failed", err)
		return
	}

	for _, candidate := range e.stops.scan(ctx, positions, quotes) {
		res, err := e.submit(ctx, candidate, false)
		if err != nil {
			logger.ErrorWithErr(ctx, "Stop-loss liquidation fault", err, "ticker", candidate.Ticker)
			return
		}
		if !res.Success {
			// Not retried until the next tick re-evaluates the same breach.
			logger.Warn(ctx, "Stop-loss order rejected",
				"ticker", candidate.Ticker,
				"code", res.Code,
				"message", res.Message,
			)
		}
	}
}

// rollover records the completed day's performance snapshot the first time a
// tick sees a new calendar date. On quote-source failure the snapshot is
// retried at the next tick; the date does not advance until it succeeds.
func (e *Engine) rollover(ctx context.Context, now time.Time) {
	today := now.Format("2006-01-02")
	if today == e.lastSnapshotDate {
		return
	}

	e.mu.Lock()
	positions := e.ledger.snapshot()
	cash := e.ledger.cash
	e.mu.Unlock()

	quotes, err := e.refreshQuotes(ctx, positions)
	if err != nil {
		logger.Warn(ctx, "Day rollover snapshot deferred: quotes unavailable", "error", err)
		return
	}
	closed := e.lastSnapshotDate
	if _, err := e.recorder.snapshot(ctx, closed, cash, portfolioValue(positions, quotes)); err != nil {
		logger.ErrorWithErr(ctx, "Daily snapshot failed", err, "date", closed)
		return
	}
	e.lastSnapshotDate = today
}

// refreshQuotes pulls the latest price for each held ticker. Missing quotes
// are tolerated (the ticker is simply absent from the map); an unreachable
// source fails the whole refresh.
func (e *Engine) refreshQuotes(ctx context.Context, positions []types.Position) (map[string]decimal.Decimal, error) {
	quotes := make(map[string]decimal.Decimal, len(positions))
	for _, p := range positions {
		price, ok, err := e.quotes.Latest(ctx, p.Ticker)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrQuoteSource, p.Ticker, err)
		}
		if !ok {
			continue
		}
		quotes[p.Ticker] = price
	}
	return quotes, nil
}

// ---------------------------------------------------------------------------
// Order funnel
// ---------------------------------------------------------------------------

// submit runs one order through validation, the gate, and (unless
// evaluate-only) the executor, all under the mutation lock. The returned
// error is reserved for internal consistency faults.
func (e *Engine) submit(ctx context.Context, o types.Order, evaluateOnly bool) (types.ExecutionResult, error) {
	now := e.now()
	if err := o.Validate(); err != nil {
		return types.ExecutionResult{
			Order:     o,
			Code:      CodeValidation,
			Message:   err.Error(),
			Simulated: evaluateOnly,
			Time:      now,
		}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if rej := e.governor.gate(ctx, o, now, evaluateOnly); rej != nil {
		return types.ExecutionResult{
			Order:     o,
			Code:      rej.code,
			Message:   rej.message,
			Simulated: evaluateOnly,
			Time:      now,
		}, nil
	}

	if evaluateOnly {
		return types.ExecutionResult{
			Order:     o,
			Success:   true,
			Code:      CodeDryRun,
			Message:   fmt.Sprintf("would %s %d %s @ %s", o.Action, o.Shares, o.Ticker, o.Price),
			Simulated: true,
			Time:      now,
		}, nil
	}

	res, err := e.exec.apply(ctx, o, now)
	if err != nil {
		return res, err
	}
	if res.Success {
		e.governor.recordExecution(now)
	}
	return res, nil
}

// SubmitManualOrder executes a single operator-entered order, blocking until
// the ledger mutation (or rejection) completes.
func (e *Engine) SubmitManualOrder(ctx context.Context, o types.Order) types.ExecutionResult {
	ctx, span := trace.StartSpan(ctx, "engine.SubmitManualOrder")
	defer span.End()

	o.Source = types.SourceManual
	res, err := e.submit(ctx, o, false)
	if err != nil {
		res.Code = "SYSTEM_FAULT"
		res.Message = err.Error()
		res.Success = false
	}
	return res
}

// ---------------------------------------------------------------------------
// Queries and settings
// ---------------------------------------------------------------------------

// PortfolioSummary returns per-position views against the latest quotes,
// ordered by ticker. Quote lookups are read-only and run outside the
// mutation lock; staleness is tolerated by leaving fields absent.
func (e *Engine) PortfolioSummary(ctx context.Context) []types.PositionView {
	e.mu.Lock()
	positions := e.ledger.snapshot()
	e.mu.Unlock()

	quotes := make(map[string]decimal.Decimal, len(positions))
	for _, p := range positions {
		if price, ok, err := e.quotes.Latest(ctx, p.Ticker); err == nil && ok {
			quotes[p.Ticker] = price
		}
	}
	return valuate(positions, quotes)
}

func (e *Engine) CashBalance(ctx context.Context) decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.cash
}

// DailyPerformance returns stored snapshots, most recent first.
func (e *Engine) DailyPerformance(ctx context.Context, limit int) ([]types.DailyPerformance, error) {
	return e.recorder.recent(ctx, limit)
}

// RecordSnapshot takes an on-demand performance snapshot for today.
func (e *Engine) RecordSnapshot(ctx context.Context) (types.DailyPerformance, error) {
	now := e.now()
	e.mu.Lock()
	positions := e.ledger.snapshot()
	cash := e.ledger.cash
	e.mu.Unlock()

	quotes, err := e.refreshQuotes(ctx, positions)
	if err != nil {
		return types.DailyPerformance{}, err
	}
	return e.recorder.snapshot(ctx, now.Format("2006-01-02"), cash, portfolioValue(positions, quotes))
}

func (e *Engine) SetMode(ctx context.Context, mode types.Mode) types.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.governor.setMode(ctx, mode)
	return e.governor.settings()
}

func (e *Engine) UpdateLimits(ctx context.Context, update types.LimitsUpdate) types.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.governor.update(ctx, update)
}
