package ledger

import (
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"
)

// amountScale matches the NUMERIC(19,2) money columns.
const amountScale = 2

// fitsScale reports whether d is stored without rounding.
func fitsScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(amountScale))
}

// validAmount reports whether d is a positive amount the ledger can store exactly.
func validAmount(d decimal.Decimal) bool {
	return d.IsPositive() && fitsScale(d)
}

func isKind(err, kind error) bool {
	return err != nil && errors.Is(err, kind)
}

func logOrDefault(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}
