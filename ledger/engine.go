/*
engine.go - The ledger operations

PURPOSE:
  Implements the operations that keep the three denormalized aggregates
  consistent: CreatePurchase, EditPurchase, DeletePurchase, TogglePaid,
  PayInvoice, plus payment recording and guarded card/person deletion.

ATOMICITY:
  Every operation validates its input first (failing closed, no writes),
  then runs exactly one Store.RunAtomic section: read the Card, Person and
  Transaction snapshots, compute the new values, write them. The store
  retries the whole section on conflict; exhaustion surfaces as
  ErrTransientFailure and the caller retries or informs the user.

ORDERING:
  PayInvoice settles installments oldest-purchase-first. That ordering is a
  business rule (oldest debt is paid down first), not an implementation
  accident.

PARTIAL PAYMENTS:
  A transaction touched by any positive application is marked paid, even
  when only partially covered; the person's uncovered remainder is re-billed
  as one new revolving transaction (principal + 12% interest) in the next
  period. "Paid" here means "this period's line is closed", not "this debt
  is settled".

SEE ALSO:
  - store.go: The atomic section contract
  - period.go: Which invoice a purchase lands in
  - aggregate.go: Derived per-month summaries
*/
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RevolvingRate is the fixed interest applied to unpaid remainders rolled
// into the next period. Not configurable per card.
var RevolvingRate = decimal.New(12, -2) // 12%

// =============================================================================
// ENGINE
// =============================================================================

// Engine exposes the ledger operations for one user's private partition.
type Engine struct {
	store  Store
	clock  Clock
	userID string

	// OwnerName is the display name cached on transactions charged to the
	// owner. Best effort, like the other denormalized name copies.
	OwnerName string
}

// NewEngine creates an engine bound to one user id.
func NewEngine(store Store, clock Clock, userID string) *Engine {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Engine{store: store, clock: clock, userID: userID}
}

// UserID returns the owning user's id.
func (e *Engine) UserID() string { return e.userID }

// =============================================================================
// CREATE PURCHASE
// =============================================================================

// PurchaseInput is a validated, already-parsed purchase.
type PurchaseInput struct {
	Description  string
	Category     string
	Amount       decimal.Decimal
	CardID       CardID
	Debtor       Debtor
	Date         time.Time
	Installments int // 0 and 1 both mean a single charge
}

// CreatePurchase writes 1..N installment transactions, debits the card's
// available limit by the FULL amount once, and adds the full amount to the
// person's balance. The limit check runs against the total purchase amount,
// before splitting.
func (e *Engine) CreatePurchase(ctx context.Context, in PurchaseInput) ([]TransactionID, error) {
	n := in.Installments
	if n == 0 {
		n = 1
	}
	switch {
	case in.Description == "":
		return nil, fmt.Errorf("%w: description is required", ErrInvalidInput)
	case !in.Amount.IsPositive():
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	case in.CardID == "":
		return nil, fmt.Errorf("%w: no card selected", ErrInvalidInput)
	case in.Date.IsZero():
		return nil, fmt.Errorf("%w: purchase date is required", ErrInvalidInput)
	case n < 1:
		return nil, fmt.Errorf("%w: installment count must be >= 1", ErrInvalidInput)
	}
	amount := Round2(in.Amount)
	// Every installment must carry at least one cent.
	if int64(n) > amount.Shift(2).IntPart() {
		return nil, fmt.Errorf("%w: %s cannot be split into %d installments", ErrInvalidInput, amount.StringFixed(2), n)
	}

	var ids []TransactionID
	err := e.store.RunAtomic(ctx, func(tx Tx) error {
		ids = ids[:0]

		var card Card
		if err := tx.Get(ctx, CollectionCards, string(in.CardID), &card); err != nil {
			return err
		}
		if amount.GreaterThan(card.AvailableLimit) {
			return &InsufficientLimitError{CardID: card.ID, Available: card.AvailableLimit, Requested: amount}
		}

		person, personName, err := e.readDebtor(ctx, tx, in.Debtor)
		if err != nil {
			return err
		}

		now := e.clock.Now()
		parts := SplitEven(amount, n)
		groupID := ""
		if n > 1 {
			groupID = uuid.NewString()
		}
		for i, part := range parts {
			desc := in.Description
			label := ""
			if n > 1 {
				label = fmt.Sprintf("%d/%d", i+1, n)
				desc = fmt.Sprintf("%s (%s)", in.Description, label)
			}
			postedAt := in.Date.AddDate(0, i, 0)
			t := Transaction{
				ID:                 TransactionID(uuid.NewString()),
				UserID:             e.userID,
				Description:        desc,
				Category:           in.Category,
				Amount:             part,
				CardID:             card.ID,
				CardName:           card.Name,
				PersonID:           in.Debtor.personID,
				PersonName:         personName,
				PostedAt:           postedAt,
				InvoiceMonth:       ResolveInvoicePeriod(postedAt, card.ClosingDay),
				Paid:               false,
				Origin:             OriginPurchase,
				Installment:        label,
				InstallmentGroupID: groupID,
				CreatedAt:          now,
			}
			if err := tx.Set(CollectionTransactions, string(t.ID), t); err != nil {
				return err
			}
			ids = append(ids, t.ID)
		}

		card.AvailableLimit = card.AvailableLimit.Sub(amount)
		card.ClampAvailable()
		if err := tx.Update(CollectionCards, string(card.ID), card); err != nil {
			return err
		}

		if person != nil {
			person.CurrentBalance = person.CurrentBalance.Add(amount)
			return tx.Update(CollectionPeople, string(person.ID), *person)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// =============================================================================
// EDIT PURCHASE
// =============================================================================

// EditInput carries the new field values for an unpaid transaction.
type EditInput struct {
	TransactionID TransactionID
	Description   string
	Category      string
	Amount        decimal.Decimal
	Date          time.Time
	CardID        CardID
	Debtor        Debtor
}

// EditPurchase overwrites a transaction's fields with compensating card and
// person adjustments. Only unpaid transactions may have their financial
// fields edited; a paid one is rejected with ErrAlreadySettled.
func (e *Engine) EditPurchase(ctx context.Context, in EditInput) error {
	switch {
	case in.TransactionID == "":
		return fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
	case in.Description == "":
		return fmt.Errorf("%w: description is required", ErrInvalidInput)
	case !in.Amount.IsPositive():
		return fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	case in.CardID == "":
		return fmt.Errorf("%w: no card selected", ErrInvalidInput)
	case in.Date.IsZero():
		return fmt.Errorf("%w: purchase date is required", ErrInvalidInput)
	}
	newAmount := Round2(in.Amount)

	return e.store.RunAtomic(ctx, func(tx Tx) error {
		var old Transaction
		if err := tx.Get(ctx, CollectionTransactions, string(in.TransactionID), &old); err != nil {
			return err
		}
		if old.Paid {
			return fmt.Errorf("%w: %s", ErrAlreadySettled, old.ID)
		}

		var oldCard, newCard Card
		if err := tx.Get(ctx, CollectionCards, string(in.CardID), &newCard); err != nil {
			return err
		}
		sameCard := old.CardID == in.CardID
		if sameCard {
			oldCard = newCard
		} else if err := tx.Get(ctx, CollectionCards, string(old.CardID), &oldCard); err != nil {
			return err
		}

		oldPerson, _, err := e.readDebtor(ctx, tx, old.Debtor())
		if err != nil {
			return err
		}
		samePerson := old.Debtor() == in.Debtor
		newPerson := oldPerson
		newPersonName := old.PersonName
		if !samePerson {
			newPerson, newPersonName, err = e.readDebtor(ctx, tx, in.Debtor)
			if err != nil {
				return err
			}
		}

		// Card compensation.
		delta := newAmount.Sub(old.Amount)
		if sameCard {
			if delta.IsPositive() && delta.GreaterThan(newCard.AvailableLimit) {
				return &InsufficientLimitError{CardID: newCard.ID, Available: newCard.AvailableLimit, Requested: delta}
			}
			newCard.AvailableLimit = newCard.AvailableLimit.Sub(delta)
			newCard.ClampAvailable()
			if err := tx.Update(CollectionCards, string(newCard.ID), newCard); err != nil {
				return err
			}
		} else {
			if newAmount.GreaterThan(newCard.AvailableLimit) {
				return &InsufficientLimitError{CardID: newCard.ID, Available: newCard.AvailableLimit, Requested: newAmount}
			}
			oldCard.AvailableLimit = oldCard.AvailableLimit.Add(old.Amount)
			oldCard.ClampAvailable()
			newCard.AvailableLimit = newCard.AvailableLimit.Sub(newAmount)
			newCard.ClampAvailable()
			if err := tx.Update(CollectionCards, string(oldCard.ID), oldCard); err != nil {
				return err
			}
			if err := tx.Update(CollectionCards, string(newCard.ID), newCard); err != nil {
				return err
			}
		}

		// Person compensation. The transaction is unpaid here, so its amount
		// is currently counted in the old person's balance.
		if samePerson {
			if oldPerson != nil {
				oldPerson.CurrentBalance = oldPerson.CurrentBalance.Add(delta)
				if err := tx.Update(CollectionPeople, string(oldPerson.ID), *oldPerson); err != nil {
					return err
				}
			}
		} else {
			if oldPerson != nil {
				oldPerson.CurrentBalance = oldPerson.CurrentBalance.Sub(old.Amount)
				if err := tx.Update(CollectionPeople, string(oldPerson.ID), *oldPerson); err != nil {
					return err
				}
			}
			if newPerson != nil {
				newPerson.CurrentBalance = newPerson.CurrentBalance.Add(newAmount)
				if err := tx.Update(CollectionPeople, string(newPerson.ID), *newPerson); err != nil {
					return err
				}
			}
		}

		old.Description = in.Description
		old.Category = in.Category
		old.Amount = newAmount
		old.CardID = newCard.ID
		old.CardName = newCard.Name
		old.PersonID = in.Debtor.personID
		old.PersonName = newPersonName
		old.PostedAt = in.Date
		old.InvoiceMonth = ResolveInvoicePeriod(in.Date, newCard.ClosingDay)
		return tx.Update(CollectionTransactions, string(old.ID), old)
	})
}

// =============================================================================
// DELETE PURCHASE
// =============================================================================

// DeletePurchase removes a transaction. An unpaid one has its effect on the
// card and person reversed; a paid one only loses its historical record (the
// money already left the books at settlement time).
func (e *Engine) DeletePurchase(ctx context.Context, id TransactionID) error {
	if id == "" {
		return fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
	}
	return e.store.RunAtomic(ctx, func(tx Tx) error {
		var t Transaction
		if err := tx.Get(ctx, CollectionTransactions, string(id), &t); err != nil {
			return err
		}

		// The card or person may have been removed already; reversal is best
		// effort on whichever documents still exist.
		var card Card
		haveCard := true
		if err := tx.Get(ctx, CollectionCards, string(t.CardID), &card); err != nil {
			if !IsNotFound(err) {
				return err
			}
			haveCard = false
		}
		person, _, err := e.readDebtorTolerant(ctx, tx, t.Debtor())
		if err != nil {
			return err
		}

		if !t.Paid {
			if haveCard {
				card.AvailableLimit = card.AvailableLimit.Add(t.Amount)
				card.ClampAvailable()
				if err := tx.Update(CollectionCards, string(card.ID), card); err != nil {
					return err
				}
			}
			if person != nil {
				person.CurrentBalance = person.CurrentBalance.Sub(t.Amount)
				if err := tx.Update(CollectionPeople, string(person.ID), *person); err != nil {
					return err
				}
			}
		}
		return tx.Delete(CollectionTransactions, string(t.ID))
	})
}

// =============================================================================
// TOGGLE PAID
// =============================================================================

// TogglePaid flips a transaction's paid flag and applies the matching card
// and person deltas: marking paid restores card headroom and reduces the
// person's debt exactly like a payment would; unmarking reverses that.
// Returns the new paid state.
func (e *Engine) TogglePaid(ctx context.Context, id TransactionID) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
	}
	var nowPaid bool
	err := e.store.RunAtomic(ctx, func(tx Tx) error {
		var t Transaction
		if err := tx.Get(ctx, CollectionTransactions, string(id), &t); err != nil {
			return err
		}
		var card Card
		haveCard := true
		if err := tx.Get(ctx, CollectionCards, string(t.CardID), &card); err != nil {
			if !IsNotFound(err) {
				return err
			}
			haveCard = false
		}
		person, _, err := e.readDebtorTolerant(ctx, tx, t.Debtor())
		if err != nil {
			return err
		}

		t.Paid = !t.Paid
		nowPaid = t.Paid
		delta := t.Amount
		if !t.Paid {
			delta = delta.Neg()
		}
		if haveCard {
			card.AvailableLimit = card.AvailableLimit.Add(delta)
			card.ClampAvailable()
			if err := tx.Update(CollectionCards, string(card.ID), card); err != nil {
				return err
			}
		}
		if person != nil {
			person.CurrentBalance = person.CurrentBalance.Sub(delta)
			if err := tx.Update(CollectionPeople, string(person.ID), *person); err != nil {
				return err
			}
		}
		return tx.Update(CollectionTransactions, string(t.ID), t)
	})
	return nowPaid, err
}

// =============================================================================
// PAY INVOICE
// =============================================================================

// PayInvoiceResult reports what a payment did.
type PayInvoiceResult struct {
	SettledCount     int
	RolledOverAmount decimal.Decimal
}

// PayInvoice applies a payment to the card's pending transactions for the
// active period, oldest purchase first. A shortfall re-bills each affected
// person's uncovered remainder, plus RevolvingRate interest, as one new
// revolving transaction in the next period.
func (e *Engine) PayInvoice(ctx context.Context, cardID CardID, amount decimal.Decimal) (PayInvoiceResult, error) {
	if cardID == "" {
		return PayInvoiceResult{}, fmt.Errorf("%w: no card selected", ErrInvalidInput)
	}
	if !amount.IsPositive() {
		return PayInvoiceResult{}, fmt.Errorf("%w: payment must be positive", ErrInvalidInput)
	}
	amount = Round2(amount)

	var result PayInvoiceResult
	err := e.store.RunAtomic(ctx, func(tx Tx) error {
		result = PayInvoiceResult{RolledOverAmount: decimal.Zero}

		var card Card
		if err := tx.Get(ctx, CollectionCards, string(cardID), &card); err != nil {
			return err
		}

		now := e.clock.Now()
		period := ResolveInvoicePeriod(now, card.ClosingDay)
		due, err := e.transactions(ctx, tx, func(t Transaction) bool {
			return t.CardID == cardID && !t.Paid && t.InvoiceMonth == period
		})
		if err != nil {
			return err
		}
		// Oldest purchase first; insertion order breaks ties.
		sort.SliceStable(due, func(i, j int) bool {
			if !due[i].PostedAt.Equal(due[j].PostedAt) {
				return due[i].PostedAt.Before(due[j].PostedAt)
			}
			return due[i].CreatedAt.Before(due[j].CreatedAt)
		})

		totalDue := decimal.Zero
		for _, t := range due {
			totalDue = totalDue.Add(t.Amount)
		}
		if totalDue.IsZero() {
			return fmt.Errorf("%w: card %s, period %s", ErrNothingDue, cardID, period)
		}
		effectivePaid := decimal.Min(amount, totalDue)

		// Application plan: greedy walk, all computed before any write.
		type personDelta struct {
			applied   decimal.Decimal
			uncovered decimal.Decimal
		}
		deltas := map[Debtor]*personDelta{}
		deltaFor := func(d Debtor) *personDelta {
			pd, ok := deltas[d]
			if !ok {
				pd = &personDelta{applied: decimal.Zero, uncovered: decimal.Zero}
				deltas[d] = pd
			}
			return pd
		}
		remaining := effectivePaid
		var settled []Transaction
		for _, t := range due {
			applied := decimal.Min(remaining, t.Amount)
			if !applied.IsPositive() {
				break
			}
			remaining = remaining.Sub(applied)
			pd := deltaFor(t.Debtor())
			pd.applied = pd.applied.Add(applied)
			if uncovered := t.Amount.Sub(applied); uncovered.IsPositive() {
				pd.uncovered = pd.uncovered.Add(uncovered)
			}
			t.Paid = true
			settled = append(settled, t)
		}

		rollover := effectivePaid.LessThan(totalDue)
		nextMonth := period.Next()
		nextStart, err := nextMonth.Time()
		if err != nil {
			return err
		}

		// Read the affected people before the first write.
		people := map[Debtor]*Person{}
		names := map[Debtor]string{}
		for d := range deltas {
			p, name, err := e.readDebtor(ctx, tx, d)
			if err != nil {
				return err
			}
			people[d], names[d] = p, name
		}

		card.AvailableLimit = card.AvailableLimit.Add(effectivePaid)
		card.ClampAvailable()
		if err := tx.Update(CollectionCards, string(card.ID), card); err != nil {
			return err
		}
		for _, t := range settled {
			if err := tx.Update(CollectionTransactions, string(t.ID), t); err != nil {
				return err
			}
			result.SettledCount++
		}

		for d, pd := range deltas {
			interest := decimal.Zero
			if rollover && pd.uncovered.IsPositive() {
				interest = Round2(pd.uncovered.Mul(RevolvingRate))
				rolled := pd.uncovered.Add(interest)
				rt := Transaction{
					ID:           TransactionID(uuid.NewString()),
					UserID:       e.userID,
					Description:  "Revolving balance",
					Category:     "Revolving",
					Amount:       rolled,
					CardID:       card.ID,
					CardName:     card.Name,
					PersonID:     d.personID,
					PersonName:   names[d],
					PostedAt:     nextStart,
					InvoiceMonth: nextMonth,
					Paid:         false,
					Origin:       OriginRevolving,
					CreatedAt:    now,
				}
				if err := tx.Set(CollectionTransactions, string(rt.ID), rt); err != nil {
					return err
				}
				result.RolledOverAmount = result.RolledOverAmount.Add(rolled)
			}
			if p := people[d]; p != nil {
				p.CurrentBalance = p.CurrentBalance.Sub(pd.applied).Add(interest)
				if err := tx.Update(CollectionPeople, string(p.ID), *p); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return PayInvoiceResult{}, err
	}
	return result, nil
}

// =============================================================================
// RECORD PAYMENT - Out-of-band settlement against a person's balance
// =============================================================================

// RecordPayment appends an immutable Payment document and reduces the
// person's balance by the paid amount. The owner has no balance to settle.
func (e *Engine) RecordPayment(ctx context.Context, debtor Debtor, amount decimal.Decimal, date time.Time, note string) (PaymentID, error) {
	personID, ok := debtor.PersonID()
	if !ok {
		return "", fmt.Errorf("%w: payments are recorded against tracked people", ErrInvalidInput)
	}
	if !amount.IsPositive() {
		return "", fmt.Errorf("%w: payment must be positive", ErrInvalidInput)
	}
	if date.IsZero() {
		date = e.clock.Now()
	}

	var id PaymentID
	err := e.store.RunAtomic(ctx, func(tx Tx) error {
		var person Person
		if err := tx.Get(ctx, CollectionPeople, string(personID), &person); err != nil {
			return err
		}
		p := Payment{
			ID:        PaymentID(uuid.NewString()),
			UserID:    e.userID,
			PersonID:  personID,
			Amount:    Round2(amount),
			Date:      date,
			Note:      note,
			CreatedAt: e.clock.Now(),
		}
		if err := tx.Set(CollectionPayments, string(p.ID), p); err != nil {
			return err
		}
		id = p.ID
		person.CurrentBalance = person.CurrentBalance.Sub(p.Amount)
		return tx.Update(CollectionPeople, string(person.ID), person)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// =============================================================================
// CARD / PERSON LIFECYCLE
// =============================================================================

// CreateCard persists a new card with its available limit initialized to the
// total limit.
func (e *Engine) CreateCard(ctx context.Context, name, bank, last4 string, totalLimit decimal.Decimal, closingDay, dueDay int) (Card, error) {
	switch {
	case name == "":
		return Card{}, fmt.Errorf("%w: card name is required", ErrInvalidInput)
	case !totalLimit.IsPositive():
		return Card{}, fmt.Errorf("%w: total limit must be positive", ErrInvalidInput)
	case closingDay < 1 || closingDay > 31:
		return Card{}, fmt.Errorf("%w: closing day must be in 1..31", ErrInvalidInput)
	}
	card := Card{
		ID:             CardID(uuid.NewString()),
		UserID:         e.userID,
		Name:           name,
		Bank:           bank,
		Last4:          last4,
		TotalLimit:     Round2(totalLimit),
		AvailableLimit: Round2(totalLimit),
		ClosingDay:     closingDay,
		DueDay:         dueDay,
		CreatedAt:      e.clock.Now(),
	}
	err := e.store.RunAtomic(ctx, func(tx Tx) error {
		return tx.Set(CollectionCards, string(card.ID), card)
	})
	if err != nil {
		return Card{}, err
	}
	return card, nil
}

// CreatePerson persists a new tracked person with a zero balance.
func (e *Engine) CreatePerson(ctx context.Context, name, note string) (Person, error) {
	if name == "" {
		return Person{}, fmt.Errorf("%w: person name is required", ErrInvalidInput)
	}
	person := Person{
		ID:             PersonID(uuid.NewString()),
		UserID:         e.userID,
		Name:           name,
		Note:           note,
		CurrentBalance: decimal.Zero,
		CreatedAt:      e.clock.Now(),
	}
	err := e.store.RunAtomic(ctx, func(tx Tx) error {
		return tx.Set(CollectionPeople, string(person.ID), person)
	})
	if err != nil {
		return Person{}, err
	}
	return person, nil
}

// DeleteCard removes a card that no transaction references, along with its
// derived invoice summaries. The reference scan runs outside the atomic
// section; the guarantee is advisory, not a hard foreign-key constraint.
func (e *Engine) DeleteCard(ctx context.Context, id CardID) error {
	if id == "" {
		return fmt.Errorf("%w: card id is required", ErrInvalidInput)
	}
	refs, err := e.transactions(ctx, e.store, func(t Transaction) bool { return t.CardID == id })
	if err != nil {
		return err
	}
	if len(refs) > 0 {
		return fmt.Errorf("%w: card %s has %d transactions", ErrStillReferenced, id, len(refs))
	}
	return e.store.RunAtomic(ctx, func(tx Tx) error {
		var card Card
		if err := tx.Get(ctx, CollectionCards, string(id), &card); err != nil {
			return err
		}
		summaries, err := tx.List(ctx, CollectionInvoices)
		if err != nil {
			return err
		}
		if err := tx.Delete(CollectionCards, string(id)); err != nil {
			return err
		}
		for _, raw := range summaries {
			var s InvoiceSummary
			if err := json.Unmarshal(raw.Data, &s); err != nil {
				continue
			}
			if s.CardID == id {
				if err := tx.Delete(CollectionInvoices, raw.ID); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// DeletePerson removes a tracked person that no transaction references.
func (e *Engine) DeletePerson(ctx context.Context, id PersonID) error {
	if id == "" {
		return fmt.Errorf("%w: person id is required", ErrInvalidInput)
	}
	refs, err := e.transactions(ctx, e.store, func(t Transaction) bool { return t.PersonID == id })
	if err != nil {
		return err
	}
	if len(refs) > 0 {
		return fmt.Errorf("%w: person %s has %d transactions", ErrStillReferenced, id, len(refs))
	}
	return e.store.RunAtomic(ctx, func(tx Tx) error {
		var person Person
		if err := tx.Get(ctx, CollectionPeople, string(id), &person); err != nil {
			return err
		}
		return tx.Delete(CollectionPeople, string(id))
	})
}

// =============================================================================
// READS - Plain queries, outside any atomic section
// =============================================================================

// Cards returns every card, newest first.
func (e *Engine) Cards(ctx context.Context) ([]Card, error) {
	raws, err := e.store.List(ctx, CollectionCards)
	if err != nil {
		return nil, err
	}
	cards := make([]Card, 0, len(raws))
	for _, raw := range raws {
		var c Card
		if err := json.Unmarshal(raw.Data, &c); err != nil {
			return nil, fmt.Errorf("decode card %s: %w", raw.ID, err)
		}
		if c.UserID != e.userID {
			continue
		}
		cards = append(cards, c)
	}
	sort.Slice(cards, func(i, j int) bool { return cards[i].CreatedAt.After(cards[j].CreatedAt) })
	return cards, nil
}

// People returns every tracked person, sorted by name.
func (e *Engine) People(ctx context.Context) ([]Person, error) {
	raws, err := e.store.List(ctx, CollectionPeople)
	if err != nil {
		return nil, err
	}
	people := make([]Person, 0, len(raws))
	for _, raw := range raws {
		var p Person
		if err := json.Unmarshal(raw.Data, &p); err != nil {
			return nil, fmt.Errorf("decode person %s: %w", raw.ID, err)
		}
		if p.UserID != e.userID {
			continue
		}
		people = append(people, p)
	}
	sort.Slice(people, func(i, j int) bool { return people[i].Name < people[j].Name })
	return people, nil
}

// Transactions returns transactions matching the filter, newest first.
// A nil filter matches everything.
func (e *Engine) Transactions(ctx context.Context, filter func(Transaction) bool) ([]Transaction, error) {
	txs, err := e.transactions(ctx, e.store, filter)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].PostedAt.After(txs[j].PostedAt) })
	return txs, nil
}

// Payments returns a person's recorded payments, newest first.
func (e *Engine) Payments(ctx context.Context, personID PersonID) ([]Payment, error) {
	raws, err := e.store.List(ctx, CollectionPayments)
	if err != nil {
		return nil, err
	}
	var payments []Payment
	for _, raw := range raws {
		var p Payment
		if err := json.Unmarshal(raw.Data, &p); err != nil {
			return nil, fmt.Errorf("decode payment %s: %w", raw.ID, err)
		}
		if p.UserID != e.userID {
			continue
		}
		if personID == "" || p.PersonID == personID {
			payments = append(payments, p)
		}
	}
	sort.Slice(payments, func(i, j int) bool { return payments[i].Date.After(payments[j].Date) })
	return payments, nil
}

// =============================================================================
// INTERNAL
// =============================================================================

func (e *Engine) transactions(ctx context.Context, r Reader, filter func(Transaction) bool) ([]Transaction, error) {
	raws, err := r.List(ctx, CollectionTransactions)
	if err != nil {
		return nil, err
	}
	var txs []Transaction
	for _, raw := range raws {
		var t Transaction
		if err := json.Unmarshal(raw.Data, &t); err != nil {
			return nil, fmt.Errorf("decode transaction %s: %w", raw.ID, err)
		}
		if t.UserID != e.userID {
			continue
		}
		if filter == nil || filter(t) {
			txs = append(txs, t)
		}
	}
	return txs, nil
}

// readDebtor resolves a debtor to its Person document and display name.
// The owner resolves to (nil person, owner name).
func (e *Engine) readDebtor(ctx context.Context, tx Tx, d Debtor) (*Person, string, error) {
	personID, ok := d.PersonID()
	if !ok {
		return nil, e.OwnerName, nil
	}
	var person Person
	if err := tx.Get(ctx, CollectionPeople, string(personID), &person); err != nil {
		return nil, "", err
	}
	return &person, person.Name, nil
}

// readDebtorTolerant is readDebtor but a missing person document resolves to
// nil instead of failing, for best-effort reversals.
func (e *Engine) readDebtorTolerant(ctx context.Context, tx Tx, d Debtor) (*Person, string, error) {
	person, name, err := e.readDebtor(ctx, tx, d)
	if err != nil && IsNotFound(err) {
		return nil, "", nil
	}
	return person, name, err
}
