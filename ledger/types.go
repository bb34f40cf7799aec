/*
Package ledger provides the core credit-card ledger engine.

PURPOSE:
  This package contains the types and operations that keep three denormalized
  aggregates consistent: a card's available credit, a person's outstanding
  balance, and each transaction's paid state. Every operation runs as one
  atomic unit of work against a document store.

KEY CONCEPTS IN THIS FILE (types.go):
  - Card: A credit line with a total and currently-available limit
  - Person: A debtor whose running balance is tracked
  - Transaction: One purchase installment (amount, card, person, paid state)
  - Debtor: Tagged variant distinguishing the owner from a tracked person
  - MonthKey: The monthly invoice bucket a transaction belongs to

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point errors
  2. Type Safety: Strong typing for ids prevents mixing card/person ids
  3. Atomicity: Card, Person and Transaction writes always travel together
  4. The owner is a type, not a magic id: Debtor is Owner | TrackedPerson

USAGE:
  eng := ledger.NewEngine(store, ledger.SystemClock{}, userID)
  ids, err := eng.CreatePurchase(ctx, ledger.PurchaseInput{
      Description: "Groceries",
      Amount:      ledger.MustParseAmount("250,00"),
      CardID:      cardID,
      Debtor:      ledger.TrackedPerson(personID),
      Date:        purchaseDate,
  })

SEE ALSO:
  - engine.go: The ledger operations
  - period.go: Invoice period resolution
  - store.go: Document store contract
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// COLLECTIONS - Document store namespaces
// =============================================================================

const (
	CollectionCards        = "cards"
	CollectionPeople       = "people"
	CollectionTransactions = "transactions"
	CollectionPayments     = "payments"
	CollectionInvoices     = "invoices"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CardID string
type PersonID string
type TransactionID string
type PaymentID string

// =============================================================================
// DEBTOR - Owner | TrackedPerson
// =============================================================================

// Debtor identifies who a purchase is charged to. The account owner's own
// spending does not accrue a trackable debt and has no Person document, so
// the owner case is a distinct variant rather than a sentinel id.
type Debtor struct {
	personID PersonID
}

// Owner returns the debtor variant for the account owner.
func Owner() Debtor {
	return Debtor{}
}

// TrackedPerson returns the debtor variant for a tracked person.
func TrackedPerson(id PersonID) Debtor {
	return Debtor{personID: id}
}

func (d Debtor) IsOwner() bool { return d.personID == "" }

// PersonID returns the tracked person's id, or false for the owner.
func (d Debtor) PersonID() (PersonID, bool) {
	if d.personID == "" {
		return "", false
	}
	return d.personID, true
}

// =============================================================================
// CARD - A credit line
// =============================================================================

// Card is a tracked credit line.
//
// INVARIANT: 0 <= AvailableLimit <= TotalLimit, clamped on every mutation.
// AvailableLimit decreases when unpaid purchases are created and recovers on
// payment, deletion, or edits of unpaid purchases.
type Card struct {
	ID             CardID          `json:"id"`
	UserID         string          `json:"userId"`
	Name           string          `json:"name"`
	Bank           string          `json:"bank,omitempty"`
	Last4          string          `json:"last4,omitempty"`
	TotalLimit     decimal.Decimal `json:"totalLimit"`
	AvailableLimit decimal.Decimal `json:"availableLimit"`
	ClosingDay     int             `json:"closingDay"`
	DueDay         int             `json:"dueDay,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// ClampAvailable pins AvailableLimit back into [0, TotalLimit].
func (c *Card) ClampAvailable() {
	if c.AvailableLimit.IsNegative() {
		c.AvailableLimit = decimal.Zero
	}
	if c.AvailableLimit.GreaterThan(c.TotalLimit) {
		c.AvailableLimit = c.TotalLimit
	}
}

// =============================================================================
// PERSON - A debtor the user tracks
// =============================================================================

// Person is a debtor. CurrentBalance is signed: positive means the person
// owes money; a negative balance is credit owed to the person. The balance
// only changes as a side effect of a Transaction's paid state or amount
// changing, never directly.
type Person struct {
	ID             PersonID        `json:"id"`
	UserID         string          `json:"userId"`
	Name           string          `json:"name"`
	Note           string          `json:"note,omitempty"`
	CurrentBalance decimal.Decimal `json:"currentBalance"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// =============================================================================
// TRANSACTION - One purchase installment
// =============================================================================

// Origin distinguishes direct purchases from revolving rollovers.
type Origin string

const (
	OriginPurchase  Origin = "purchase"
	OriginRevolving Origin = "revolving" // unpaid remainder re-billed with interest
)

// Transaction is one purchase installment line. A multi-installment purchase
// materializes as N sibling transactions sharing an InstallmentGroupID, one
// per future invoice period.
//
// CardName and PersonName are best-effort display copies captured at write
// time; the ids are authoritative.
type Transaction struct {
	ID                 TransactionID   `json:"id"`
	UserID             string          `json:"userId"`
	Description        string          `json:"description"`
	Category           string          `json:"category,omitempty"`
	Amount             decimal.Decimal `json:"amount"`
	CardID             CardID          `json:"cardId"`
	CardName           string          `json:"cardName,omitempty"`
	PersonID           PersonID        `json:"personId,omitempty"` // empty = owner
	PersonName         string          `json:"personName,omitempty"`
	PostedAt           time.Time       `json:"postedAt"`
	InvoiceMonth       MonthKey        `json:"invoiceMonth"`
	Paid               bool            `json:"paid"`
	Origin             Origin          `json:"origin"`
	Installment        string          `json:"installment,omitempty"` // "i/N", empty when single
	InstallmentGroupID string          `json:"installmentGroupId,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
}

// Debtor returns the tagged debtor for this transaction.
func (t Transaction) Debtor() Debtor {
	if t.PersonID == "" {
		return Owner()
	}
	return TrackedPerson(t.PersonID)
}

// =============================================================================
// PAYMENT - Out-of-band settlement against a person's balance
// =============================================================================

// Payment records that a person's balance was reduced outside the
// invoice-pay flow. Append-only; never mutated.
type Payment struct {
	ID        PaymentID       `json:"id"`
	UserID    string          `json:"userId"`
	PersonID  PersonID        `json:"personId"`
	Amount    decimal.Decimal `json:"amount"`
	Date      time.Time       `json:"date"`
	Note      string          `json:"note,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// =============================================================================
// INVOICE SUMMARY - Derived per-card per-month aggregate (display only)
// =============================================================================

// InvoiceSummary is the aggregator's output for one card and month. It is
// recomputed from the transaction set and must never be treated as a source
// of truth for balances.
type InvoiceSummary struct {
	ID        string          `json:"id"` // userID_cardID_monthKey
	UserID    string          `json:"userId"`
	CardID    CardID          `json:"cardId"`
	Month     MonthKey        `json:"month"`
	Total     decimal.Decimal `json:"total"`
	Paid      decimal.Decimal `json:"paid"`
	Pending   decimal.Decimal `json:"pending"`
	Revolving decimal.Decimal `json:"revolving"`
	Closed    bool            `json:"closed"`
	UpdatedAt time.Time       `json:"updatedAt"`
}
