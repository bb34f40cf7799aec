package ledger

import (
	"fmt"
	"time"
)

// =============================================================================
// MONTH KEY - The monthly invoice bucket
// =============================================================================

// MonthKey identifies one monthly invoice period as "YYYY-MM". It is used
// both for bucketing transactions and as part of the idempotency key for
// aggregated invoice documents.
type MonthKey string

// MonthKeyFor returns the key for the calendar month containing t.
func MonthKeyFor(t time.Time) MonthKey {
	return MonthKey(t.Format("2006-01"))
}

// Next returns the key for the following calendar month.
func (k MonthKey) Next() MonthKey {
	t, err := k.Time()
	if err != nil {
		return k
	}
	return MonthKeyFor(t.AddDate(0, 1, 0))
}

// Time returns the first day of the key's month.
func (k MonthKey) Time() (time.Time, error) {
	t, err := time.ParseInLocation("2006-01", string(k), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: month key %q", ErrInvalidInput, string(k))
	}
	return t, nil
}

func (k MonthKey) String() string { return string(k) }

// =============================================================================
// INVOICE PERIOD RESOLVER
// =============================================================================

// ResolveInvoicePeriod computes which monthly invoice a purchase belongs to.
//
// The closing day is clamped to the last valid day of the purchase's month
// (a closing day of 31 closes on Feb 28/29). A purchase strictly after the
// clamped closing day belongs to the NEXT month's invoice; a purchase on the
// closing day itself still belongs to the current one. An absent or invalid
// closing day means the period is simply the purchase month.
func ResolveInvoicePeriod(purchaseDate time.Time, closingDay int) MonthKey {
	if closingDay < 1 || closingDay > 31 {
		return MonthKeyFor(purchaseDate)
	}
	clamped := clampDayToMonth(purchaseDate.Year(), purchaseDate.Month(), closingDay)
	if purchaseDate.Day() > clamped {
		// Advance from the month start so a Jan 31 purchase lands in
		// February, not March via date normalization.
		start := time.Date(purchaseDate.Year(), purchaseDate.Month(), 1, 0, 0, 0, 0, time.UTC)
		return MonthKeyFor(start.AddDate(0, 1, 0))
	}
	return MonthKeyFor(purchaseDate)
}

// InvoiceClosingDate returns the clamped closing-day cutoff for the given
// month. The invoice is closed once "now" is after this date.
func InvoiceClosingDate(month MonthKey, closingDay int) (time.Time, error) {
	start, err := month.Time()
	if err != nil {
		return time.Time{}, err
	}
	day := clampDayToMonth(start.Year(), start.Month(), closingDay)
	if closingDay < 1 || closingDay > 31 {
		day = lastDayOfMonth(start.Year(), start.Month())
	}
	return time.Date(start.Year(), start.Month(), day, 0, 0, 0, 0, time.UTC), nil
}

func clampDayToMonth(year int, month time.Month, day int) int {
	if last := lastDayOfMonth(year, month); day > last {
		return last
	}
	return day
}

func lastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1).Day()
}

// SummaryDocID builds the idempotency key for an aggregated invoice
// document: userId_cardId_monthKey.
func SummaryDocID(userID string, cardID CardID, month MonthKey) string {
	return fmt.Sprintf("%s_%s_%s", userID, cardID, month)
}
