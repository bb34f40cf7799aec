package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Cent rounding and installment splitting
// =============================================================================

// Round2 rounds to 2 decimal places, half away from zero.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// SplitEven divides amount into n installments, distributing the cent
// remainder one cent at a time across the leading parts so the parts always
// sum back to the original amount exactly and no part ever goes below the
// floor share. amount is expected to already be rounded to 2 decimals.
//
// SplitEven(100, 3) = [33.34, 33.33, 33.33]
func SplitEven(amount decimal.Decimal, n int) []decimal.Decimal {
	if n < 1 {
		return nil
	}
	cents := amount.Shift(2).IntPart()
	per := cents / int64(n)
	rem := cents - per*int64(n)
	parts := make([]decimal.Decimal, n)
	for i := range parts {
		c := per
		if int64(i) < rem {
			c++
		}
		parts[i] = decimal.New(c, -2)
	}
	return parts
}

// =============================================================================
// LOCALIZED PARSING - "R$ 1.234,56" and "DD/MM/YYYY"
// =============================================================================
// The UI collects amounts and dates as pt-BR formatted text. The engine takes
// parsed values; these helpers live at the input boundary.

// ParseAmount parses a localized currency string ("R$ 1.234,56", "1234,56")
// or a plain decimal ("1234.56") into a positive 2-decimal amount.
func ParseAmount(s string) (decimal.Decimal, error) {
	clean := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "R$"))
	if strings.Contains(clean, ",") {
		// pt-BR: dots are thousand separators, comma is the decimal mark.
		clean = strings.ReplaceAll(clean, ".", "")
		clean = strings.Replace(clean, ",", ".", 1)
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount %q", ErrInvalidInput, s)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	return Round2(d), nil
}

// MustParseAmount is ParseAmount for literals in tests and seeds.
func MustParseAmount(s string) decimal.Decimal {
	d, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return d
}

// ParseDate parses a "DD/MM/YYYY" date into a UTC calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation("02/01/2006", strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q (want DD/MM/YYYY)", ErrInvalidInput, s)
	}
	return t, nil
}

// FormatAmount renders an amount the way the UI shows it ("R$ 1234.56").
func FormatAmount(d decimal.Decimal) string {
	return "R$ " + d.StringFixed(2)
}
