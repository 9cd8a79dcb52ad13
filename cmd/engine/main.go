package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"portfolio-engine/internal/eod"
	"portfolio-engine/internal/logger"
	"portfolio-engine/internal/trace"
	"portfolio-engine/internal/tradelog"
)

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	must(initializeSystem())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := loadConfig(ctx)
	must(err)

	compressOldJournals(ctx, cfg)

	st, err := initializeStore(ctx, cfg)
	must(err)
	defer st.Close()

	src := initializeQuotes(ctx, cfg)
	adv := initializeAdvisor(ctx, cfg)

	eng, err := initializeEngine(ctx, cfg, src, st)
	must(err)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	eng.Start(ctx)

	advTick := time.NewTicker(time.Duration(cfg.Advisor.PollSeconds) * time.Second)
	defer advTick.Stop()
	eodTick := time.NewTicker(60 * time.Second)
	defer eodTick.Stop()

	logger.Info(ctx, "Engine running", "mode", cfg.Mode)
	for {
		select {
		case <-advTick.C:
			proposal, err := adv.Propose(ctx)
			if err != nil {
				logger.ErrorWithErr(ctx, "Advisor poll failed", err)
				continue
			}
			if len(proposal.Trades) == 0 {
				continue
			}
			eng.SubmitAdvisorBatch(ctx, proposal)
		case <-eodTick.C:
			if ok, _ := eod.ShouldRunNow(time.Now(), cfg.Engine.MarketHours.End); ok {
				if p, err := eod.SummarizeToday(); err == nil && p != "" {
					logger.Info(ctx, "EOD CSV written", "path", p)
				}
			}
		case <-sigc:
			logger.Info(ctx, "Shutting down")
			eng.Stop(ctx)
			if p, err := eod.SummarizeToday(); err == nil && p != "" {
				logger.Info(ctx, "EOD CSV written", "path", p)
			}
			_ = tradelog.Close()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = trace.Shutdown(shutdownCtx)
			shutdownCancel()
			return
		case <-ctx.Done():
			return
		}
	}
}
