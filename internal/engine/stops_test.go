package engine

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"portfolio-engine/internal/types"
)

func stopPosition(ticker string, shares int64, avg, stop string) types.Position {
	s := d(stop)
	return types.Position{Ticker: ticker, Shares: shares, AvgCost: d(avg), StopLoss: &s}
}

func TestScanTriggersAtOrBelowStop(t *testing.T) {
	sm := &stopMonitor{}
	positions := []types.Position{stopPosition("AAPL", 10, "100", "90")}

	// Above the stop: no candidate.
	got := sm.scan(context.Background(), positions, map[string]decimal.Decimal{"AAPL": d("91")})
	if len(got) != 0 {
		t.Fatalf("expected no candidates above stop, got %d", len(got))
	}

	// Exactly at the stop triggers.
	got = sm.scan(context.Background(), positions, map[string]decimal.Decimal{"AAPL": d("90")})
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate at stop, got %d", len(got))
	}

	// Below the stop triggers a full liquidation at the quoted price.
	got = sm.scan(context.Background(), positions, map[string]decimal.Decimal{"AAPL": d("89")})
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate below stop, got %d", len(got))
	}
	o := got[0]
	if o.Action != types.ActionSell {
		t.Errorf("expected SELL, got %s", o.Action)
	}
	if o.Shares != 10 {
		t.Errorf("expected full quantity 10, got %d", o.Shares)
	}
	if !o.Price.Equal(d("89")) {
		t.Errorf("expected quoted price 89, got %s", o.Price)
	}
	if o.Source != types.SourceStopLoss {
		t.Errorf("expected source STOP_LOSS, got %s", o.Source)
	}
}

func TestScanSkipsUnquotedAndUnprotected(t *testing.T) {
	sm := &stopMonitor{}
	positions := []types.Position{
		stopPosition("AAPL", 10, "100", "90"),
		{Ticker: "MSFT", Shares: 5, AvgCost: d("200")},
	}

	// No quote for AAPL: a stale ticker must not be treated as price zero.
	got := sm.scan(context.Background(), positions, map[string]decimal.Decimal{"MSFT": d("1")})
	if len(got) != 0 {
		t.Fatalf("expected no candidates, got %d", len(got))
	}
}
