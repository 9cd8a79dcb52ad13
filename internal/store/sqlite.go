package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"portfolio-engine/internal/types"
)

// SQLiteStore persists engine state in a single SQLite file. Monetary values
// are stored as TEXT so decimal representations round-trip exactly.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	executed_at  TEXT NOT NULL,
	ticker       TEXT NOT NULL,
	action       TEXT NOT NULL,
	shares       INTEGER NOT NULL,
	price        TEXT NOT NULL,
	realized_pnl TEXT NOT NULL,
	source       TEXT NOT NULL,
	reason       TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS portfolio (
	id       INTEGER PRIMARY KEY CHECK (id = 1),
	cash     TEXT NOT NULL,
	realized TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
	ticker    TEXT PRIMARY KEY,
	shares    INTEGER NOT NULL,
	avg_cost  TEXT NOT NULL,
	stop_loss TEXT
);

CREATE TABLE IF NOT EXISTS daily_performance (
	date            TEXT PRIMARY KEY,
	total_equity    TEXT NOT NULL,
	cash            TEXT NOT NULL,
	portfolio_value TEXT NOT NULL
);
`

// OpenSQLite opens (creating if necessary) the database at path and applies
// the schema. Use ":memory:" for an ephemeral database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// The driver serializes access through a single connection; SQLite does
	// not tolerate concurrent writers on separate connections.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveTrade(ctx context.Context, rec TradeRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trades (executed_at, ticker, action, shares, price, realized_pnl, source, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Time.UTC().Format("2006-01-02 15:04:05"),
		rec.Ticker, rec.Action, rec.Shares,
		rec.Price.String(), rec.RealizedPnL.String(),
		rec.Source, rec.Reason,
	)
	if err != nil {
		return fmt.Errorf("save trade: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SavePortfolio(ctx context.Context, cash, realized decimal.Decimal, positions []types.Position) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save portfolio: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO portfolio (id, cash, realized) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET cash = excluded.cash, realized = excluded.realized`,
		cash.String(), realized.String(),
	)
	if err != nil {
		return fmt.Errorf("save portfolio: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM positions`); err != nil {
		return fmt.Errorf("save portfolio: %w", err)
	}
	for _, p := range positions {
		var stop any
		if p.StopLoss != nil {
			stop = p.StopLoss.String()
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO positions (ticker, shares, avg_cost, stop_loss) VALUES (?, ?, ?, ?)`,
			p.Ticker, p.Shares, p.AvgCost.String(), stop,
		)
		if err != nil {
			return fmt.Errorf("save position %s: %w", p.Ticker, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) LoadPortfolio(ctx context.Context) (decimal.Decimal, decimal.Decimal, []types.Position, bool, error) {
	var cashStr, realizedStr string
	err := s.db.QueryRowContext(ctx, `SELECT cash, realized FROM portfolio WHERE id = 1`).
		Scan(&cashStr, &realizedStr)
	if err == sql.ErrNoRows {
		return decimal.Zero, decimal.Zero, nil, false, nil
	}
	if err != nil {
		return decimal.Zero, decimal.Zero, nil, false, fmt.Errorf("load portfolio: %w", err)
	}

	cash, err := decimal.NewFromString(cashStr)
	if err != nil {
		return decimal.Zero, decimal.Zero, nil, false, fmt.Errorf("load portfolio cash: %w", err)
	}
	realized, err := decimal.NewFromString(realizedStr)
	if err != nil {
		return decimal.Zero, decimal.Zero, nil, false, fmt.Errorf("load portfolio realized: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT ticker, shares, avg_cost, stop_loss FROM positions ORDER BY ticker`)
	if err != nil {
		return decimal.Zero, decimal.Zero, nil, false, fmt.Errorf("load positions: %w", err)
	}
	defer rows.Close()

	var positions []types.Position
	for rows.Next() {
		var (
			p       types.Position
			costStr string
			stopStr sql.NullString
		)
		if err := rows.Scan(&p.Ticker, &p.Shares, &costStr, &stopStr); err != nil {
			return decimal.Zero, decimal.Zero, nil, false, fmt.Errorf("load positions: %w", err)
		}
		p.AvgCost, err = decimal.NewFromString(costStr)
		if err != nil {
			return decimal.Zero, decimal.Zero, nil, false, fmt.Errorf("load position %s: %w", p.Ticker, err)
		}
		if stopStr.Valid {
			stop, err := decimal.NewFromString(stopStr.String)
			if err != nil {
				return decimal.Zero, decimal.Zero, nil, false, fmt.Errorf("load position %s: %w", p.Ticker, err)
			}
			p.StopLoss = &stop
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, decimal.Zero, nil, false, fmt.Errorf("load positions: %w", err)
	}

	return cash, realized, positions, true, nil
}

func (s *SQLiteStore) UpsertDailyPerformance(ctx context.Context, rec types.DailyPerformance) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO daily_performance (date, total_equity, cash, portfolio_value)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(date) DO UPDATE SET
			total_equity = excluded.total_equity,
			cash = excluded.cash,
			portfolio_value = excluded.portfolio_value`,
		rec.Date, rec.TotalEquity.String(), rec.Cash.String(), rec.PortfolioValue.String(),
	)
	if err != nil {
		return fmt.Errorf("upsert daily performance: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListDailyPerformance(ctx context.Context, limit int) ([]types.DailyPerformance, error) {
	q := `SELECT date, total_equity, cash, portfolio_value FROM daily_performance ORDER BY date DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list daily performance: %w", err)
	}
	defer rows.Close()

	var out []types.DailyPerformance
	for rows.Next() {
		var (
			rec                         types.DailyPerformance
			equityStr, cashStr, pvStr string
		)
		if err := rows.Scan(&rec.Date, &equityStr, &cashStr, &pvStr); err != nil {
			return nil, fmt.Errorf("list daily performance: %w", err)
		}
		if rec.TotalEquity, err = decimal.NewFromString(equityStr); err != nil {
			return nil, fmt.Errorf("daily performance %s: %w", rec.Date, err)
		}
		if rec.Cash, err = decimal.NewFromString(cashStr); err != nil {
			return nil, fmt.Errorf("daily performance %s: %w", rec.Date, err)
		}
		if rec.PortfolioValue, err = decimal.NewFromString(pvStr); err != nil {
			return nil, fmt.Errorf("daily performance %s: %w", rec.Date, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
