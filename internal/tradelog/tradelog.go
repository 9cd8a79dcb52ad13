// Package tradelog maintains the on-disk trade journal: one JSON-lines file
// per calendar day, written through a zap core so entries are structured and
// cheap to append.
package tradelog

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu          sync.Mutex
	journal     *zap.Logger
	journalDay  string
	journalFile *os.File
)

// Entry is one journal line. Prices are recorded as strings to preserve the
// decimal representation exactly.
type Entry struct {
	Ticker      string
	Action      string
	Shares      int64
	Price       string
	RealizedPnL string
	Source      string
	Reason      string
	Confidence  float64
	Success     bool
	Code        string
}

func logDir() string {
	if v := os.Getenv("TRADE_JOURNAL_DIR"); v != "" {
		return v
	}
	return "journal"
}

func dailyFilepath(t time.Time) string {
	return filepath.Join(logDir(), t.Format("2006-01-02")+".jsonl")
}

// Append writes one entry to today's journal file, rotating the underlying
// zap core at the date boundary.
func Append(e Entry) error {
	mu.Lock()
	defer mu.Unlock()

	now := time.Now()
	if err := ensureJournal(now); err != nil {
		return err
	}

	journal.Info("trade",
		zap.String("ticker", e.Ticker),
		zap.String("action", e.Action),
		zap.Int64("shares", e.Shares),
		zap.String("price", e.Price),
		zap.String("realized_pnl", e.RealizedPnL),
		zap.String("source", e.Source),
		zap.String("reason", e.Reason),
		zap.Float64("confidence", e.Confidence),
		zap.Bool("success", e.Success),
		zap.String("code", e.Code),
	)
	return journal.Sync()
}

// ensureJournal opens (or rotates to) the file for now's date. Caller holds mu.
func ensureJournal(now time.Time) error {
	day := now.Format("2006-01-02")
	if journal != nil && journalDay == day {
		return nil
	}
	if journalFile != nil {
		_ = journal.Sync()
		_ = journalFile.Close()
	}

	p := dailyFilepath(now)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		MessageKey:     "event",
		LevelKey:       zapcore.OmitKey,
		CallerKey:      zapcore.OmitKey,
		StacktraceKey:  zapcore.OmitKey,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"),
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), zapcore.InfoLevel)

	journal = zap.New(core)
	journalDay = day
	journalFile = f
	return nil
}

// Close flushes and closes the current journal file.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if journal == nil {
		return nil
	}
	_ = journal.Sync()
	err := journalFile.Close()
	journal = nil
	journalFile = nil
	journalDay = ""
	return err
}

// CompressOlder gzips journal files older than retentionDays and removes the
// originals. A non-positive retention disables compression.
func CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	root := logDir()
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(p) != ".jsonl" {
			return nil
		}
		info, er := os.Stat(p)
		if er != nil || !info.ModTime().Before(cutoff) {
			return nil
		}

		gz := p + ".gz"
		if _, e2 := os.Stat(gz); e2 == nil {
			_ = os.Remove(p)
			return nil
		}

		in, e3 := os.Open(p)
		if e3 != nil {
			return nil
		}
		defer in.Close()

		out, e4 := os.OpenFile(gz, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if e4 != nil {
			return nil
		}
		gw := gzip.NewWriter(out)
		if _, e5 := io.Copy(gw, in); e5 == nil {
			_ = gw.Close()
			_ = out.Close()
			_ = os.Remove(p)
		} else {
			_ = gw.Close()
			_ = out.Close()
		}
		return nil
	})
}
