package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"portfolio-engine/internal/advisor"
	"portfolio-engine/internal/advisor/advisorobs"
	"portfolio-engine/internal/engine"
	"portfolio-engine/internal/engine/engineobs"
	"portfolio-engine/internal/interfaces"
	"portfolio-engine/internal/logger"
	"portfolio-engine/internal/quotes"
	"portfolio-engine/internal/store"
	"portfolio-engine/internal/trace"
	"portfolio-engine/internal/tradelog"
	"portfolio-engine/internal/types"
)

// initializeSystem loads the environment and sets up logging and tracing.
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

func loadConfig(ctx context.Context) (*store.Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	return cfg, nil
}

// compressOldJournals gzips journal files past the configured retention.
func compressOldJournals(ctx context.Context, cfg *store.Config) {
	if err := tradelog.CompressOlder(cfg.Journal.RetentionDays); err != nil {
		logger.Warn(ctx, "Failed to compress old journals", "error", err)
	}
}

// initializeStore opens the durable store. Without a SQLite path everything
// stays in memory and is lost on exit.
func initializeStore(ctx context.Context, cfg *store.Config) (store.Store, error) {
	if cfg.Storage.SQLitePath == "" {
		logger.Warn(ctx, "No sqlite_path configured - state will not survive restarts")
		return store.NewMemoryStore(), nil
	}
	st, err := store.OpenSQLite(cfg.Storage.SQLitePath)
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "SQLite store opened", "path", cfg.Storage.SQLitePath)
	return st, nil
}

func initializeQuotes(ctx context.Context, cfg *store.Config) *quotes.StaticSource {
	src := quotes.NewStaticSource(cfg.Quotes.Static)
	logger.Info(ctx, "Static quote source loaded", "tickers", len(cfg.Quotes.Static))
	return src
}

func initializeAdvisor(ctx context.Context, cfg *store.Config) interfaces.Advisor {
	var adv interfaces.Advisor
	switch cfg.Advisor.Provider {
	case "STATIC":
		adv = advisor.NewStaticAdvisor(cfg.Advisor.DryRun)
	default:
		adv = advisor.NewNoopAdvisor()
		logger.Info(ctx, "No advisor configured - engine runs on manual orders and stop-losses only")
	}
	return advisorobs.Wrap(adv)
}

func initializeEngine(ctx context.Context, cfg *store.Config, src interfaces.QuoteSource, st store.Store) (interfaces.Engine, error) {
	eng, err := engine.New(engine.Options{
		InitialCash: decimal.NewFromFloat(cfg.Portfolio.InitialCash),
		Limits: types.RiskLimits{
			MaxDailyTrades:  cfg.Risk.MaxDailyTrades,
			MaxPositionSize: decimal.NewFromFloat(cfg.Risk.MaxPositionSize),
		},
		Mode:          types.Mode(cfg.Mode),
		CheckInterval: time.Duration(cfg.Engine.CheckIntervalSeconds) * time.Second,
		MarketHours: types.MarketHours{
			Start: cfg.Engine.MarketHours.Start,
			End:   cfg.Engine.MarketHours.End,
		},
	}, src, st)
	if err != nil {
		return nil, err
	}

	if cfg.Mode == "SIMULATED" {
		logger.Warn(ctx, "Running in SIMULATED mode - daily trade limits are not enforced")
	}

	return engineobs.Wrap(eng), nil
}
