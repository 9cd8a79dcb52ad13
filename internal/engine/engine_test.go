package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"portfolio-engine/internal/store"
	"portfolio-engine/internal/types"
)

// mapQuotes is a mutable in-memory quote source for tests.
type mapQuotes struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
}

func newMapQuotes(prices map[string]string) *mapQuotes {
	m := &mapQuotes{prices: make(map[string]decimal.Decimal)}
	for k, v := range prices {
		m.prices[k] = d(v)
	}
	return m
}

func (m *mapQuotes) Latest(ctx context.Context, ticker string) (decimal.Decimal, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	price, ok := m.prices[ticker]
	return price, ok, nil
}

func (m *mapQuotes) set(ticker, price string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[ticker] = d(price)
}

// failingQuotes simulates an unreachable quote source.
type failingQuotes struct{}

func (failingQuotes) Latest(ctx context.Context, ticker string) (decimal.Decimal, bool, error) {
	return decimal.Zero, false, errors.New("quote source unreachable")
}

func testOptions(mode types.Mode) Options {
	return Options{
		InitialCash:   d("100000"),
		Limits:        types.RiskLimits{MaxDailyTrades: 10, MaxPositionSize: d("50000")},
		Mode:          mode,
		CheckInterval: 10 * time.Millisecond,
		MarketHours:   types.MarketHours{Start: "00:00", End: "23:59"},
	}
}

func newTestEngine(t *testing.T, mode types.Mode, quotes *mapQuotes) (*Engine, *store.MemoryStore) {
	t.Helper()
	t.Setenv("TRADE_JOURNAL_DIR", t.TempDir())
	st := store.NewMemoryStore()
	eng, err := New(testOptions(mode), quotes, st)
	if err != nil {
		t.Fatalf("engine construction failed: %v", err)
	}
	return eng, st
}

func TestManualOrderRoundTrip(t *testing.T) {
	eng, st := newTestEngine(t, types.ModeSimulated, newMapQuotes(nil))
	ctx := context.Background()

	res := eng.SubmitManualOrder(ctx, buyOrder("AAPL", 10, "100"))
	if !res.Success {
		t.Fatalf("buy failed: %s %s", res.Code, res.Message)
	}
	if !eng.CashBalance(ctx).Equal(d("99000")) {
		t.Errorf("expected cash 99000, got %s", eng.CashBalance(ctx))
	}

	res = eng.SubmitManualOrder(ctx, sellOrder("AAPL", 10, "120"))
	if !res.Success {
		t.Fatalf("sell failed: %s", res.Code)
	}
	if !res.RealizedPnL.Equal(d("200")) {
		t.Errorf("expected pnl 200, got %s", res.RealizedPnL)
	}

	trades := st.Trades()
	if len(trades) != 2 {
		t.Fatalf("expected 2 persisted trades, got %d", len(trades))
	}
	if trades[0].Source != string(types.SourceManual) {
		t.Errorf("expected MANUAL source, got %s", trades[0].Source)
	}
}

func TestManualOrderValidationRejected(t *testing.T) {
	eng, _ := newTestEngine(t, types.ModeSimulated, newMapQuotes(nil))

	o := buyOrder("AAPL", -5, "100")
	res := eng.SubmitManualOrder(context.Background(), o)
	if res.Success {
		t.Fatal("expected validation failure")
	}
	if res.Code != CodeValidation {
		t.Errorf("expected %s, got %s", CodeValidation, res.Code)
	}
}

func TestEmergencyStopBlocksUntilResume(t *testing.T) {
	eng, _ := newTestEngine(t, types.ModeSimulated, newMapQuotes(nil))
	ctx := context.Background()

	status := eng.EmergencyStop(ctx)
	if !status.Halted {
		t.Fatal("expected halted status")
	}

	res := eng.SubmitManualOrder(ctx, buyOrder("AAPL", 1, "100"))
	if res.Success || res.Code != CodeEngineHalted {
		t.Fatalf("expected %s while halted, got %s", CodeEngineHalted, res.Code)
	}

	status = eng.ResumeFromHalt(ctx)
	if status.Halted {
		t.Fatal("expected halt cleared")
	}
	if res := eng.SubmitManualOrder(ctx, buyOrder("AAPL", 1, "100")); !res.Success {
		t.Fatalf("expected success after resume, got %s", res.Code)
	}
}

func TestHaltSurvivesStopAndStart(t *testing.T) {
	eng, _ := newTestEngine(t, types.ModeSimulated, newMapQuotes(nil))
	ctx := context.Background()

	eng.EmergencyStop(ctx)
	eng.Start(ctx)
	eng.Stop(ctx)

	// Run state and halt state are independent; neither transition clears
	// the other.
	status := eng.Status(ctx)
	if status.Running {
		t.Error("expected stopped")
	}
	if !status.Halted {
		t.Error("halt flag cleared by stop/start")
	}
}

func TestStartStopIdempotent(t *testing.T) {
	eng, _ := newTestEngine(t, types.ModeSimulated, newMapQuotes(nil))
	ctx := context.Background()

	if s := eng.Start(ctx); !s.Running {
		t.Fatal("expected running after start")
	}
	if s := eng.Start(ctx); !s.Running {
		t.Fatal("second start changed state")
	}
	if s := eng.Stop(ctx); s.Running {
		t.Fatal("expected stopped after stop")
	}
	if s := eng.Stop(ctx); s.Running {
		t.Fatal("second stop changed state")
	}
	// The engine restarts cleanly after a full stop.
	if s := eng.Start(ctx); !s.Running {
		t.Fatal("restart failed")
	}
	eng.Stop(ctx)
}

func TestDailyLimitEnforcedInLiveMode(t *testing.T) {
	eng, _ := newTestEngine(t, types.ModeLive, newMapQuotes(nil))
	ctx := context.Background()

	two := 2
	eng.UpdateLimits(ctx, types.LimitsUpdate{MaxDailyTrades: &two})

	for i := 0; i < 2; i++ {
		if res := eng.SubmitManualOrder(ctx, buyOrder("AAPL", 1, "100")); !res.Success {
			t.Fatalf("trade %d failed: %s", i+1, res.Code)
		}
	}
	res := eng.SubmitManualOrder(ctx, buyOrder("AAPL", 1, "100"))
	if res.Success || res.Code != CodeDailyLimitReached {
		t.Fatalf("expected %s, got %s", CodeDailyLimitReached, res.Code)
	}
}

func TestTickLiquidatesBreachedStop(t *testing.T) {
	quotes := newMapQuotes(map[string]string{"AAPL": "100"})
	eng, _ := newTestEngine(t, types.ModeSimulated, quotes)
	ctx := context.Background()

	o := buyOrder("AAPL", 10, "100")
	stop := d("90")
	o.StopLoss = &stop
	if res := eng.SubmitManualOrder(ctx, o); !res.Success {
		t.Fatalf("setup buy failed: %s", res.Code)
	}

	eng.Start(ctx)
	defer eng.Stop(ctx)

	quotes.set("AAPL", "89")

	deadline := time.After(2 * time.Second)
	for {
		if len(eng.PortfolioSummary(ctx)) == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("stop-loss liquidation never happened")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// Proceeds at the quoted price: 100000 - 1000 + 890.
	if !eng.CashBalance(ctx).Equal(d("99890")) {
		t.Errorf("expected cash 99890, got %s", eng.CashBalance(ctx))
	}
}

func TestQuoteFailureAbandonsTick(t *testing.T) {
	t.Setenv("TRADE_JOURNAL_DIR", t.TempDir())
	st := store.NewMemoryStore()
	eng, err := New(testOptions(types.ModeSimulated), failingQuotes{}, st)
	if err != nil {
		t.Fatalf("engine construction failed: %v", err)
	}
	ctx := context.Background()

	o := buyOrder("AAPL", 10, "100")
	stop := d("90")
	o.StopLoss = &stop
	if res := eng.SubmitManualOrder(ctx, o); !res.Success {
		t.Fatalf("setup buy failed: %s", res.Code)
	}

	eng.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	status := eng.Stop(ctx)

	// Ticks were abandoned, never escalated: engine stayed RUNNING until the
	// explicit stop and the position was never touched.
	if status.Halted {
		t.Error("quote failure must not halt the engine")
	}
	if len(eng.PortfolioSummary(ctx)) != 1 {
		t.Error("position modified despite quote failures")
	}
}

// stallingQuotes answers every lookup after a fixed delay and tracks how many
// lookups run at once.
type stallingQuotes struct {
	mu        sync.Mutex
	stall     time.Duration
	active    int
	maxActive int
	calls     int
}

func (s *stallingQuotes) Latest(ctx context.Context, ticker string) (decimal.Decimal, bool, error) {
	s.mu.Lock()
	s.active++
	if s.active > s.maxActive {
		s.maxActive = s.active
	}
	s.calls++
	s.mu.Unlock()

	time.Sleep(s.stall)

	s.mu.Lock()
	s.active--
	s.mu.Unlock()
	return d("100"), true, nil
}

func (s *stallingQuotes) stats() (maxActive, calls int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxActive, s.calls
}

func TestTicksNeverOverlap(t *testing.T) {
	t.Setenv("TRADE_JOURNAL_DIR", t.TempDir())
	quotes := &stallingQuotes{stall: 50 * time.Millisecond}
	st := store.NewMemoryStore()
	opts := testOptions(types.ModeSimulated)
	opts.CheckInterval = 5 * time.Millisecond
	eng, err := New(opts, quotes, st)
	if err != nil {
		t.Fatalf("engine construction failed: %v", err)
	}
	ctx := context.Background()

	// One position so every tick refreshes a quote and stalls in it far
	// longer than the check interval.
	if res := eng.SubmitManualOrder(ctx, buyOrder("AAPL", 10, "100")); !res.Success {
		t.Fatalf("setup buy failed: %s", res.Code)
	}

	eng.Start(ctx)
	time.Sleep(300 * time.Millisecond)
	eng.Stop(ctx)

	maxActive, calls := quotes.stats()
	if maxActive != 1 {
		t.Errorf("expected at most 1 concurrent quote lookup, saw %d", maxActive)
	}
	// 300ms of 50ms ticks is ~6 cycles; anything close to 300/5 would mean
	// the firings that queued up during a stalled tick were replayed instead
	// of dropped.
	if calls > 10 {
		t.Errorf("expected queued firings to be dropped, saw %d ticks", calls)
	}
	if calls < 2 {
		t.Errorf("expected the loop to keep ticking, saw %d ticks", calls)
	}
}

func TestStopEndsTickingAtBoundary(t *testing.T) {
	t.Setenv("TRADE_JOURNAL_DIR", t.TempDir())
	quotes := &stallingQuotes{stall: 20 * time.Millisecond}
	st := store.NewMemoryStore()
	opts := testOptions(types.ModeSimulated)
	opts.CheckInterval = 5 * time.Millisecond
	eng, err := New(opts, quotes, st)
	if err != nil {
		t.Fatalf("engine construction failed: %v", err)
	}
	ctx := context.Background()

	if res := eng.SubmitManualOrder(ctx, buyOrder("AAPL", 10, "100")); !res.Success {
		t.Fatalf("setup buy failed: %s", res.Code)
	}

	eng.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	eng.Stop(ctx)

	// Stop waited for the in-flight tick; once it returns the loop is done
	// and a firing that raced the stop signal must not start another tick.
	_, calls := quotes.stats()
	time.Sleep(60 * time.Millisecond)
	if _, after := quotes.stats(); after != calls {
		t.Errorf("tick ran after Stop returned: %d -> %d lookups", calls, after)
	}
}

// flakyQuotes wraps a quote table with a switchable outage.
type flakyQuotes struct {
	mu    sync.Mutex
	fail  bool
	inner *mapQuotes
}

func (f *flakyQuotes) Latest(ctx context.Context, ticker string) (decimal.Decimal, bool, error) {
	f.mu.Lock()
	failing := f.fail
	f.mu.Unlock()
	if failing {
		return decimal.Zero, false, errors.New("quote source unreachable")
	}
	return f.inner.Latest(ctx, ticker)
}

func (f *flakyQuotes) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func TestRolloverSnapshotAndCounterReset(t *testing.T) {
	t.Setenv("TRADE_JOURNAL_DIR", t.TempDir())

	var clockMu sync.Mutex
	now := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)
	setClock := func(t time.Time) {
		clockMu.Lock()
		now = t
		clockMu.Unlock()
	}

	quotes := &flakyQuotes{inner: newMapQuotes(map[string]string{"AAPL": "110"})}
	st := store.NewMemoryStore()
	opts := testOptions(types.ModeLive)
	opts.Limits.MaxDailyTrades = 1
	opts.Clock = func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return now
	}
	eng, err := New(opts, quotes, st)
	if err != nil {
		t.Fatalf("engine construction failed: %v", err)
	}
	ctx := context.Background()

	if res := eng.SubmitManualOrder(ctx, buyOrder("AAPL", 10, "100")); !res.Success {
		t.Fatalf("setup buy failed: %s", res.Code)
	}
	if res := eng.SubmitManualOrder(ctx, buyOrder("AAPL", 1, "100")); res.Code != CodeDailyLimitReached {
		t.Fatalf("expected day-1 capacity spent, got %s", res.Code)
	}

	// Cross midnight with the quote source down: the rollover snapshot is
	// deferred, not skipped.
	quotes.setFail(true)
	setClock(time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC))
	eng.Start(ctx)
	defer eng.Stop(ctx)

	time.Sleep(50 * time.Millisecond)
	if records, _ := eng.DailyPerformance(ctx, 0); len(records) != 0 {
		t.Fatalf("snapshot recorded despite quote outage: %+v", records)
	}

	quotes.setFail(false)
	deadline := time.After(2 * time.Second)
	var records []types.DailyPerformance
	for {
		records, err = eng.DailyPerformance(ctx, 0)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(records) > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("rollover snapshot never recorded after quotes recovered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// The snapshot belongs to the completed day: cash 99000 + 10 AAPL @ 110.
	if len(records) != 1 {
		t.Fatalf("expected exactly 1 snapshot, got %d", len(records))
	}
	if records[0].Date != "2026-08-27" {
		t.Errorf("expected snapshot dated 2026-08-27, got %s", records[0].Date)
	}
	if !records[0].TotalEquity.Equal(d("100100")) {
		t.Errorf("expected equity 100100, got %s", records[0].TotalEquity)
	}

	// The date advanced exactly once; later ticks on the same day add nothing.
	time.Sleep(50 * time.Millisecond)
	if records, _ := eng.DailyPerformance(ctx, 0); len(records) != 1 {
		t.Errorf("rollover re-recorded on the same date: %d records", len(records))
	}

	// Day-2 capacity is fresh after the date change.
	if res := eng.SubmitManualOrder(ctx, buyOrder("AAPL", 1, "100")); !res.Success {
		t.Errorf("expected fresh daily capacity after rollover, got %s", res.Code)
	}
}

// countingQuotes records how many lookups the engine performs.
type countingQuotes struct {
	mu    sync.Mutex
	calls int
	inner *mapQuotes
}

func (c *countingQuotes) Latest(ctx context.Context, ticker string) (decimal.Decimal, bool, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.inner.Latest(ctx, ticker)
}

func (c *countingQuotes) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestHaltedEngineKeepsScanningButRejects(t *testing.T) {
	t.Setenv("TRADE_JOURNAL_DIR", t.TempDir())
	quotes := &countingQuotes{inner: newMapQuotes(map[string]string{"AAPL": "89"})}
	st := store.NewMemoryStore()
	eng, err := New(testOptions(types.ModeSimulated), quotes, st)
	if err != nil {
		t.Fatalf("engine construction failed: %v", err)
	}
	ctx := context.Background()

	o := buyOrder("AAPL", 10, "100")
	stop := d("90")
	o.StopLoss = &stop
	if res := eng.SubmitManualOrder(ctx, o); !res.Success {
		t.Fatalf("setup buy failed: %s", res.Code)
	}

	// HALTED + RUNNING: ticks and scans continue, every liquidation is
	// rejected at the gate.
	eng.EmergencyStop(ctx)
	eng.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	eng.Stop(ctx)

	if quotes.count() == 0 {
		t.Error("halted running engine performed no scans")
	}
	if len(eng.PortfolioSummary(ctx)) != 1 {
		t.Error("halted engine liquidated a position")
	}

	// STOPPED: no ticks at all.
	before := quotes.count()
	time.Sleep(50 * time.Millisecond)
	// PortfolioSummary itself consults quotes once per position; subtract it.
	eng.PortfolioSummary(ctx)
	if got := quotes.count(); got > before+1 {
		t.Errorf("stopped engine still scanning: %d extra lookups", got-before)
	}
}

func TestRestoreFromCheckpoint(t *testing.T) {
	t.Setenv("TRADE_JOURNAL_DIR", t.TempDir())
	st := store.NewMemoryStore()
	eng, err := New(testOptions(types.ModeSimulated), newMapQuotes(nil), st)
	if err != nil {
		t.Fatalf("engine construction failed: %v", err)
	}
	ctx := context.Background()

	if res := eng.SubmitManualOrder(ctx, buyOrder("AAPL", 10, "100")); !res.Success {
		t.Fatalf("setup buy failed: %s", res.Code)
	}

	restored, err := New(testOptions(types.ModeSimulated), newMapQuotes(nil), st)
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if !restored.CashBalance(ctx).Equal(d("99000")) {
		t.Errorf("expected restored cash 99000, got %s", restored.CashBalance(ctx))
	}
	views := restored.PortfolioSummary(ctx)
	if len(views) != 1 || views[0].Ticker != "AAPL" || views[0].Shares != 10 {
		t.Errorf("unexpected restored positions: %+v", views)
	}
}

func TestRecordSnapshotUpserts(t *testing.T) {
	quotes := newMapQuotes(map[string]string{"AAPL": "110"})
	eng, _ := newTestEngine(t, types.ModeSimulated, quotes)
	ctx := context.Background()

	if res := eng.SubmitManualOrder(ctx, buyOrder("AAPL", 10, "100")); !res.Success {
		t.Fatalf("setup buy failed: %s", res.Code)
	}

	rec, err := eng.RecordSnapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if !rec.TotalEquity.Equal(d("100100")) {
		t.Errorf("expected equity 100100, got %s", rec.TotalEquity)
	}

	// Same-date snapshot overwrites, never duplicates.
	quotes.set("AAPL", "120")
	if _, err := eng.RecordSnapshot(ctx); err != nil {
		t.Fatalf("second snapshot failed: %v", err)
	}
	records, err := eng.DailyPerformance(ctx, 0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if !records[0].TotalEquity.Equal(d("100200")) {
		t.Errorf("expected overwritten equity 100200, got %s", records[0].TotalEquity)
	}
}

func TestSetModeReflectedInStatus(t *testing.T) {
	eng, _ := newTestEngine(t, types.ModeSimulated, newMapQuotes(nil))
	ctx := context.Background()

	s := eng.SetMode(ctx, types.ModeLive)
	if s.Mode != types.ModeLive {
		t.Fatalf("expected LIVE, got %s", s.Mode)
	}
	if eng.Status(ctx).Mode != types.ModeLive {
		t.Error("status does not reflect mode change")
	}
}
