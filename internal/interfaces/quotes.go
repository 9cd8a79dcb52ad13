package interfaces

import (
	"context"

	"github.com/shopspring/decimal"
)

// QuoteSource supplies last-traded prices. Latest returns ok=false when no
// quote is known for the ticker; that is a normal stale-data condition, not
// an error. A non-nil error means the source itself is unreachable.
type QuoteSource interface {
	Latest(ctx context.Context, ticker string) (price decimal.Decimal, ok bool, err error)
}
