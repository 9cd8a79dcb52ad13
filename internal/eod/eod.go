// Package eod summarizes a day's trade journal into a per-ticker CSV after
// the market window closes.
package eod

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type journalLine struct {
	Ticker      string  `json:"ticker"`
	Action      string  `json:"action"`
	Shares      int64   `json:"shares"`
	Price       string  `json:"price"`
	RealizedPnL string  `json:"realized_pnl"`
	Source      string  `json:"source"`
	Confidence  float64 `json:"confidence"`
	Success     bool    `json:"success"`
	Code        string  `json:"code"`
}

type aggRow struct {
	Ticker      string
	BuyShares   int64
	BuyValue    decimal.Decimal
	SellShares  int64
	SellValue   decimal.Decimal
	RealizedPnL decimal.Decimal
}

func journalDir() string {
	if v := os.Getenv("TRADE_JOURNAL_DIR"); v != "" {
		return v
	}
	return "journal"
}

func journalFile(t time.Time) string {
	return filepath.Join(journalDir(), t.Format("2006-01-02")+".jsonl")
}

func csvPath(t time.Time) string {
	return filepath.Join(journalDir(), "eod", t.Format("2006-01-02")+".csv")
}

// SummarizeDay aggregates the day's successful trades per ticker and writes
// the CSV. It returns the output path, or "" when there is nothing to
// summarize.
func SummarizeDay(t time.Time) (string, error) {
	inPath := journalFile(t)
	if _, err := os.Stat(inPath); err != nil {
		return "", nil
	}
	f, err := os.Open(inPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	aggs := map[string]*aggRow{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var jl journalLine
		if err := json.Unmarshal(sc.Bytes(), &jl); err != nil {
			continue
		}
		if !jl.Success {
			continue
		}
		price, err := decimal.NewFromString(jl.Price)
		if err != nil {
			continue
		}
		row := aggs[jl.Ticker]
		if row == nil {
			row = &aggRow{Ticker: jl.Ticker}
			aggs[jl.Ticker] = row
		}
		value := price.Mul(decimal.NewFromInt(jl.Shares))
		switch jl.Action {
		case "BUY":
			row.BuyShares += jl.Shares
			row.BuyValue = row.BuyValue.Add(value)
		case "SELL":
			row.SellShares += jl.Shares
			row.SellValue = row.SellValue.Add(value)
			if pnl, err := decimal.NewFromString(jl.RealizedPnL); err == nil {
				row.RealizedPnL = row.RealizedPnL.Add(pnl)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	if len(aggs) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(aggs))
	for k := range aggs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	outPath := csvPath(t)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	w := csv.NewWriter(out)
	defer w.Flush()

	headers := []string{"ticker", "buy_shares", "buy_avg", "sell_shares", "sell_avg", "realized_pnl", "gross_buy_value", "gross_sell_value"}
	if err := w.Write(headers); err != nil {
		return "", err
	}

	totalBuy, totalSell, totalPnL := decimal.Zero, decimal.Zero, decimal.Zero
	for _, k := range keys {
		r := aggs[k]
		buyAvg, sellAvg := decimal.Zero, decimal.Zero
		if r.BuyShares > 0 {
			buyAvg = r.BuyValue.Div(decimal.NewFromInt(r.BuyShares))
		}
		if r.SellShares > 0 {
			sellAvg = r.SellValue.Div(decimal.NewFromInt(r.SellShares))
		}
		rec := []string{
			r.Ticker,
			strconv.FormatInt(r.BuyShares, 10),
			buyAvg.StringFixed(4),
			strconv.FormatInt(r.SellShares, 10),
			sellAvg.StringFixed(4),
			r.RealizedPnL.StringFixed(2),
			r.BuyValue.StringFixed(2),
			r.SellValue.StringFixed(2),
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
		totalBuy = totalBuy.Add(r.BuyValue)
		totalSell = totalSell.Add(r.SellValue)
		totalPnL = totalPnL.Add(r.RealizedPnL)
	}
	_ = w.Write([]string{"TOTAL", "", "", "", "", totalPnL.StringFixed(2), totalBuy.StringFixed(2), totalSell.StringFixed(2)})
	return outPath, nil
}

// SummarizeToday summarizes the current calendar day.
func SummarizeToday() (string, error) { return SummarizeDay(time.Now()) }

// ShouldRunNow reports whether the market window ending at marketEnd (HH:MM,
// local time) has closed today and the CSV has not been written yet.
func ShouldRunNow(now time.Time, marketEnd string) (bool, string) {
	outPath := csvPath(now)
	var h, m int
	if _, err := fmt.Sscanf(marketEnd, "%d:%d", &h, &m); err != nil {
		return false, outPath
	}
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, now.Location())
	if now.After(cutoff) {
		if _, err := os.Stat(outPath); errors.Is(err, os.ErrNotExist) {
			return true, outPath
		}
	}
	return false, outPath
}
