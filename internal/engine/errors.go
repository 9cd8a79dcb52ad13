package engine

import "errors"

// Reason codes carried on every ExecutionResult. Stable strings; callers and
// dashboards key off them.
const (
	CodeExecuted = "EXECUTED"
	CodeDryRun   = "DRY_RUN_OK"

	// Validation: caller must correct and resubmit.
	CodeValidation = "VALIDATION"

	// Risk rejections: ledger and counters untouched, not retried
	// automatically.
	CodeEngineHalted      = "ENGINE_HALTED"
	CodeDailyLimitReached = "DAILY_LIMIT_REACHED"
	CodePositionTooLarge  = "POSITION_TOO_LARGE"

	// Ledger failures: reported per order, the rest of a batch proceeds.
	CodeInsufficientFunds  = "INSUFFICIENT_FUNDS"
	CodeInsufficientShares = "INSUFFICIENT_SHARES"
	CodeUnknownPosition    = "UNKNOWN_POSITION"
)

var (
	// ErrLedgerCorrupt signals an internal consistency fault (negative cash
	// or share count observed). It is fatal to the remainder of a batch.
	ErrLedgerCorrupt = errors.New("ledger state corrupt")

	// ErrQuoteSource marks a tick abandoned because the quote source was
	// unreachable. The engine stays RUNNING and retries next interval.
	ErrQuoteSource = errors.New("quote source unreachable")
)
