/*
engine_test.go - Behavior tests for the ledger operations

ORGANIZATION:
  1. Create purchase - limit check, installment split, owner handling
  2. Edit purchase - compensating card/person adjustments
  3. Delete purchase - reversal rules for unpaid vs paid
  4. Toggle paid - round-trip restores the books
  5. Pay invoice - oldest-first application and revolving rollover
  6. Payments and guarded deletion
  7. Store failure surfacing

READING THESE TESTS:
  Each test has GIVEN/WHEN/THEN comments explaining the scenario. After any
  operation, two invariants must hold: the card's available limit stays in
  [0, totalLimit], and every unpaid transaction's amount is counted exactly
  once in its person's balance.
*/
package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Caiozmartins/me-pague-App/ledger"
	"github.com/Caiozmartins/me-pague-App/ledger/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const testUser = "user-1"

// testNow pins the active invoice period: March 2025, before the closing
// day used by test cards.
var testNow = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*ledger.Engine, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	return ledger.NewEngine(mem, ledger.FixedClock{T: testNow}, testUser), mem
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newCard(t *testing.T, eng *ledger.Engine, name string, limit string, closingDay int) ledger.Card {
	t.Helper()
	card, err := eng.CreateCard(context.Background(), name, "", "", dec(limit), closingDay, closingDay+7)
	if err != nil {
		t.Fatalf("create card: %v", err)
	}
	return card
}

func newPerson(t *testing.T, eng *ledger.Engine, name string) ledger.Person {
	t.Helper()
	person, err := eng.CreatePerson(context.Background(), name, "")
	if err != nil {
		t.Fatalf("create person: %v", err)
	}
	return person
}

func getCard(t *testing.T, mem *store.Memory, id ledger.CardID) ledger.Card {
	t.Helper()
	var c ledger.Card
	if err := mem.Get(context.Background(), ledger.CollectionCards, string(id), &c); err != nil {
		t.Fatalf("get card: %v", err)
	}
	return c
}

func getPerson(t *testing.T, mem *store.Memory, id ledger.PersonID) ledger.Person {
	t.Helper()
	var p ledger.Person
	if err := mem.Get(context.Background(), ledger.CollectionPeople, string(id), &p); err != nil {
		t.Fatalf("get person: %v", err)
	}
	return p
}

func getTx(t *testing.T, mem *store.Memory, id ledger.TransactionID) ledger.Transaction {
	t.Helper()
	var tx ledger.Transaction
	if err := mem.Get(context.Background(), ledger.CollectionTransactions, string(id), &tx); err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	return tx
}

func assertAmount(t *testing.T, got decimal.Decimal, want string, label string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Errorf("%s: got %s, want %s", label, got.StringFixed(2), want)
	}
}

// assertCardInvariant checks 0 <= availableLimit <= totalLimit.
func assertCardInvariant(t *testing.T, mem *store.Memory, id ledger.CardID) {
	t.Helper()
	c := getCard(t, mem, id)
	if c.AvailableLimit.IsNegative() || c.AvailableLimit.GreaterThan(c.TotalLimit) {
		t.Errorf("card invariant violated: available %s, total %s",
			c.AvailableLimit.StringFixed(2), c.TotalLimit.StringFixed(2))
	}
}

func purchase(card ledger.Card, person ledger.Person, amount string) ledger.PurchaseInput {
	return ledger.PurchaseInput{
		Description: "Mercado",
		Category:    "Mercado",
		Amount:      dec(amount),
		CardID:      card.ID,
		Debtor:      ledger.TrackedPerson(person.ID),
		Date:        time.Date(2025, time.March, 5, 0, 0, 0, 0, time.UTC),
	}
}

// =============================================================================
// CREATE PURCHASE
// =============================================================================

func TestCreatePurchase_SingleInstallment(t *testing.T) {
	// GIVEN: Card(total=1000, available=1000) and a tracked person
	// WHEN: Creating a single 200 purchase
	// THEN: available=800, person balance=200, one unpaid purchase transaction
	eng, mem := newTestEngine(t)
	ctx := context.Background()
	card := newCard(t, eng, "Nubank", "1000", 15)
	person := newPerson(t, eng, "Mãe")

	ids, err := eng.CreatePurchase(ctx, purchase(card, person, "200"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(ids))
	}

	assertAmount(t, getCard(t, mem, card.ID).AvailableLimit, "800", "available limit")
	assertAmount(t, getPerson(t, mem, person.ID).CurrentBalance, "200", "person balance")
	assertCardInvariant(t, mem, card.ID)

	tx := getTx(t, mem, ids[0])
	if tx.Paid {
		t.Error("new purchase should be unpaid")
	}
	if tx.Origin != ledger.OriginPurchase {
		t.Errorf("origin: got %q, want %q", tx.Origin, ledger.OriginPurchase)
	}
	if tx.InvoiceMonth != "2025-03" {
		t.Errorf("invoice month: got %s, want 2025-03", tx.InvoiceMonth)
	}
}

func TestCreatePurchase_InstallmentSplit_SumsExactly(t *testing.T) {
	// GIVEN: A 100.00 purchase split into 3 installments
	// WHEN: Reading back the 3 sibling transactions
	// THEN: Amounts are 33.34+33.33+33.33, labeled i/3, in consecutive months
	eng, mem := newTestEngine(t)
	ctx := context.Background()
	card := newCard(t, eng, "Nubank", "1000", 15)
	person := newPerson(t, eng, "Mãe")

	in := purchase(card, person, "100")
	in.Installments = 3
	ids, err := eng.CreatePurchase(ctx, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(ids))
	}

	sum := decimal.Zero
	for i, id := range ids {
		tx := getTx(t, mem, id)
		sum = sum.Add(tx.Amount)
		if i == 0 {
			assertAmount(t, tx.Amount, "33.34", "first installment")
		} else {
			assertAmount(t, tx.Amount, "33.33", "installment")
		}
		wantMonth := ledger.MonthKeyFor(time.Date(2025, time.Month(3+i), 5, 0, 0, 0, 0, time.UTC))
		if tx.InvoiceMonth != wantMonth {
			t.Errorf("installment %d month: got %s, want %s", i+1, tx.InvoiceMonth, wantMonth)
		}
		if tx.InstallmentGroupID == "" {
			t.Error("installments should share a group id")
		}
	}
	assertAmount(t, sum, "100", "installment sum")

	// The full amount is debited once, not per installment.
	assertAmount(t, getCard(t, mem, card.ID).AvailableLimit, "900", "available limit")
	assertAmount(t, getPerson(t, mem, person.ID).CurrentBalance, "100", "person balance")
}

func TestCreatePurchase_InsufficientLimit_NoWrites(t *testing.T) {
	// GIVEN: Card with 500 available
	// WHEN: Creating a 600 purchase
	// THEN: ErrInsufficientLimit; nothing was written
	eng, mem := newTestEngine(t)
	ctx := context.Background()
	card := newCard(t, eng, "Inter", "500", 15)
	person := newPerson(t, eng, "João")

	_, err := eng.CreatePurchase(ctx, purchase(card, person, "600"))
	if !errors.Is(err, ledger.ErrInsufficientLimit) {
		t.Fatalf("expected ErrInsufficientLimit, got %v", err)
	}
	var detail *ledger.InsufficientLimitError
	if !errors.As(err, &detail) {
		t.Fatal("expected structured InsufficientLimitError")
	}
	assertAmount(t, detail.Available, "500", "error available")
	assertAmount(t, detail.Requested, "600", "error requested")

	assertAmount(t, getCard(t, mem, card.ID).AvailableLimit, "500", "available unchanged")
	assertAmount(t, getPerson(t, mem, person.ID).CurrentBalance, "0", "balance unchanged")
	txs, _ := mem.List(ctx, ledger.CollectionTransactions)
	if len(txs) != 0 {
		t.Errorf("expected no transactions, got %d", len(txs))
	}
}

func TestCreatePurchase_LimitCheckedAgainstTotal_NotPerInstallment(t *testing.T) {
	// GIVEN: Card with 500 available
	// WHEN: Creating a 600 purchase in 3 installments of 200
	// THEN: Rejected; the check runs against the total before splitting
	eng, _ := newTestEngine(t)
	card := newCard(t, eng, "Inter", "500", 15)
	person := newPerson(t, eng, "João")

	in := purchase(card, person, "600")
	in.Installments = 3
	_, err := eng.CreatePurchase(context.Background(), in)
	if !errors.Is(err, ledger.ErrInsufficientLimit) {
		t.Fatalf("expected ErrInsufficientLimit, got %v", err)
	}
}

func TestCreatePurchase_MoreInstallmentsThanCents_Rejected(t *testing.T) {
	// GIVEN: A 0.05 purchase split 7 ways
	// WHEN: Creating it
	// THEN: ErrInvalidInput; no sibling may carry less than one cent and
	//       none may go negative, so the split is refused up front
	eng, mem := newTestEngine(t)
	ctx := context.Background()
	card := newCard(t, eng, "Nubank", "1000", 15)
	person := newPerson(t, eng, "Mãe")

	in := purchase(card, person, "0.05")
	in.Installments = 7
	_, err := eng.CreatePurchase(ctx, in)
	if !errors.Is(err, ledger.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	txs, _ := mem.List(ctx, ledger.CollectionTransactions)
	if len(txs) != 0 {
		t.Errorf("expected no transactions, got %d", len(txs))
	}
	assertAmount(t, getCard(t, mem, card.ID).AvailableLimit, "1000", "available unchanged")
}

func TestCreatePurchase_InstallmentAmountsAllPositive(t *testing.T) {
	// GIVEN: The tightest legal split, one cent per installment
	// WHEN: Creating a 0.05 purchase in 5 installments
	// THEN: Every sibling carries a positive amount
	eng, mem := newTestEngine(t)
	card := newCard(t, eng, "Nubank", "1000", 15)
	person := newPerson(t, eng, "Mãe")

	in := purchase(card, person, "0.05")
	in.Installments = 5
	ids, err := eng.CreatePurchase(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, id := range ids {
		if tx := getTx(t, mem, id); !tx.Amount.IsPositive() {
			t.Errorf("installment %s has non-positive amount %s", id, tx.Amount)
		}
	}
}

func TestCreatePurchase_Owner_NoDebtTracked(t *testing.T) {
	// GIVEN: A purchase charged to the owner
	// WHEN: Creating it
	// THEN: The card is debited but no person balance exists or changes
	eng, mem := newTestEngine(t)
	ctx := context.Background()
	card := newCard(t, eng, "Nubank", "1000", 15)

	ids, err := eng.CreatePurchase(ctx, ledger.PurchaseInput{
		Description: "Assinatura",
		Amount:      dec("39.90"),
		CardID:      card.ID,
		Debtor:      ledger.Owner(),
		Date:        testNow,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertAmount(t, getCard(t, mem, card.ID).AvailableLimit, "960.10", "available limit")
	if tx := getTx(t, mem, ids[0]); tx.PersonID != "" {
		t.Errorf("owner purchase should have no person id, got %q", tx.PersonID)
	}
	people, _ := mem.List(ctx, ledger.CollectionPeople)
	if len(people) != 0 {
		t.Errorf("owner must never be persisted as a person document")
	}
}

func TestCreatePurchase_MissingCard_NotFound(t *testing.T) {
	eng, _ := newTestEngine(t)
	person := newPerson(t, eng, "Mãe")
	_, err := eng.CreatePurchase(context.Background(), ledger.PurchaseInput{
		Description: "x",
		Amount:      dec("10"),
		CardID:      "missing",
		Debtor:      ledger.TrackedPerson(person.ID),
		Date:        testNow,
	})
	if !ledger.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

// =============================================================================
// EDIT PURCHASE
// =============================================================================

func TestEditPurchase_AmountIncrease_SameCardAndPerson(t *testing.T) {
	// GIVEN: An unpaid 100 purchase (available=900, balance=100)
	// WHEN: Editing the amount to 150
	// THEN: available=850, balance=150
	eng, mem := newTestEngine(t)
	ctx := context.Background()
	card := newCard(t, eng, "Nubank", "1000", 15)
	person := newPerson(t, eng, "Mãe")
	ids, _ := eng.CreatePurchase(ctx, purchase(card, person, "100"))

	err := eng.EditPurchase(ctx, ledger.EditInput{
		TransactionID: ids[0],
		Description:   "Mercado",
		Amount:        dec("150"),
		Date:          time.Date(2025, time.March, 5, 0, 0, 0, 0, time.UTC),
		CardID:        card.ID,
		Debtor:        ledger.TrackedPerson(person.ID),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertAmount(t, getCard(t, mem, card.ID).AvailableLimit, "850", "available limit")
	assertAmount(t, getPerson(t, mem, person.ID).CurrentBalance, "150", "person balance")
	assertAmount(t, getTx(t, mem, ids[0]).Amount, "150", "transaction amount")
	assertCardInvariant(t, mem, card.ID)
}

func TestEditPurchase_MoveToOtherCardAndPerson(t *testing.T) {
	// GIVEN: An unpaid 100 purchase on card A owed by P1
	// WHEN: Editing it to 80 on card B owed by P2
	// THEN: A is fully restored, B debited 80, P1 reversed, P2 owes 80
	eng, mem := newTestEngine(t)
	ctx := context.Background()
	cardA := newCard(t, eng, "Nubank", "1000", 15)
	cardB := newCard(t, eng, "Inter", "500", 20)
	p1 := newPerson(t, eng, "Mãe")
	p2 := newPerson(t, eng, "João")
	ids, _ := eng.CreatePurchase(ctx, purchase(cardA, p1, "100"))

	err := eng.EditPurchase(ctx, ledger.EditInput{
		TransactionID: ids[0],
		Description:   "Mercado",
		Amount:        dec("80"),
		Date:          time.Date(2025, time.March, 5, 0, 0, 0, 0, time.UTC),
		CardID:        cardB.ID,
		Debtor:        ledger.TrackedPerson(p2.ID),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertAmount(t, getCard(t, mem, cardA.ID).AvailableLimit, "1000", "card A restored")
	assertAmount(t, getCard(t, mem, cardB.ID).AvailableLimit, "420", "card B debited")
	assertAmount(t, getPerson(t, mem, p1.ID).CurrentBalance, "0", "P1 reversed")
	assertAmount(t, getPerson(t, mem, p2.ID).CurrentBalance, "80", "P2 owes")

	tx := getTx(t, mem, ids[0])
	if tx.CardID != cardB.ID || tx.PersonID != p2.ID {
		t.Errorf("transaction not rewired: card %s person %s", tx.CardID, tx.PersonID)
	}
	if tx.CardName != "Inter" || tx.PersonName != "João" {
		t.Errorf("display copies stale: %q %q", tx.CardName, tx.PersonName)
	}
}

func TestEditPurchase_Paid_Rejected(t *testing.T) {
	// GIVEN: A purchase already marked paid
	// WHEN: Editing its amount
	// THEN: ErrAlreadySettled, nothing changes
	eng, mem := newTestEngine(t)
	ctx := context.Background()
	card := newCard(t, eng, "Nubank", "1000", 15)
	person := newPerson(t, eng, "Mãe")
	ids, _ := eng.CreatePurchase(ctx, purchase(card, person, "100"))
	if _, err := eng.TogglePaid(ctx, ids[0]); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	err := eng.EditPurchase(ctx, ledger.EditInput{
		TransactionID: ids[0],
		Description:   "Mercado",
		Amount:        dec("150"),
		Date:          testNow,
		CardID:        card.ID,
		Debtor:        ledger.TrackedPerson(person.ID),
	})
	if !errors.Is(err, ledger.ErrAlreadySettled) {
		t.Fatalf("expected ErrAlreadySettled, got %v", err)
	}
	assertAmount(t, getTx(t, mem, ids[0]).Amount, "100", "amount unchanged")
}

func TestEditPurchase_IncreaseBeyondLimit_Rejected(t *testing.T) {
	// GIVEN: Card with 0 left after a 500 purchase on a 500 card
	// WHEN: Editing the purchase up to 600
	// THEN: ErrInsufficientLimit (the 100 delta exceeds 0 available)
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	card := newCard(t, eng, "Inter", "500", 15)
	person := newPerson(t, eng, "João")
	ids, _ := eng.CreatePurchase(ctx, purchase(card, person, "500"))

	err := eng.EditPurchase(ctx, ledger.EditInput{
		TransactionID: ids[0],
		Description:   "Mercado",
		Amount:        dec("600"),
		Date:          testNow,
		CardID:        card.ID,
		Debtor:        ledger.TrackedPerson(person.ID),
	})
	if !errors.Is(err, ledger.ErrInsufficientLimit) {
		t.Fatalf("expected ErrInsufficientLimit, got %v", err)
	}
}

// =============================================================================
// DELETE PURCHASE
// =============================================================================

func TestDeletePurchase_Unpaid_RestoresBooks(t *testing.T) {
	// GIVEN: Card(1000) with an unpaid 200 purchase (available=800, balance=200)
	// WHEN: Deleting the purchase
	// THEN: available back to 1000, balance back to 0, document gone
	eng, mem := newTestEngine(t)
	ctx := context.Background()
	card := newCard(t, eng, "Nubank", "1000", 15)
	person := newPerson(t, eng, "Mãe")
	ids, _ := eng.CreatePurchase(ctx, purchase(card, person, "200"))

	if err := eng.DeletePurchase(ctx, ids[0]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertAmount(t, getCard(t, mem, card.ID).AvailableLimit, "1000", "available restored")
	assertAmount(t, getPerson(t, mem, person.ID).CurrentBalance, "0", "balance restored")
	var tx ledger.Transaction
	if err := mem.Get(ctx, ledger.CollectionTransactions, string(ids[0]), &tx); !ledger.IsNotFound(err) {
		t.Errorf("transaction should be gone, got %v", err)
	}
}

func TestDeletePurchase_Paid_NoReversal(t *testing.T) {
	// GIVEN: A purchase settled via toggle (available restored, debt cleared)
	// WHEN: Deleting it
	// THEN: Only the record disappears; card and person stay put
	eng, mem := newTestEngine(t)
	ctx := context.Background()
	card := newCard(t, eng, "Nubank", "1000", 15)
	person := newPerson(t, eng, "Mãe")
	ids, _ := eng.CreatePurchase(ctx, purchase(card, person, "200"))
	if _, err := eng.TogglePaid(ctx, ids[0]); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	if err := eng.DeletePurchase(ctx, ids[0]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertAmount(t, getCard(t, mem, card.ID).AvailableLimit, "1000", "available unchanged")
	assertAmount(t, getPerson(t, mem, person.ID).CurrentBalance, "0", "balance unchanged")
}

// =============================================================================
// TOGGLE PAID
// =============================================================================

func TestTogglePaid_RoundTrip(t *testing.T) {
	// GIVEN: An unpaid 200 purchase (available=800, balance=200)
	// WHEN: Toggling paid on, then off
	// THEN: Both card and person return to their original values
	eng, mem := newTestEngine(t)
	ctx := context.Background()
	card := newCard(t, eng, "Nubank", "1000", 15)
	person := newPerson(t, eng, "Mãe")
	ids, _ := eng.CreatePurchase(ctx, purchase(card, person, "200"))

	paid, err := eng.TogglePaid(ctx, ids[0])
	if err != nil || !paid {
		t.Fatalf("first toggle: paid=%v err=%v", paid, err)
	}
	assertAmount(t, getCard(t, mem, card.ID).AvailableLimit, "1000", "available after paid")
	assertAmount(t, getPerson(t, mem, person.ID).CurrentBalance, "0", "balance after paid")

	paid, err = eng.TogglePaid(ctx, ids[0])
	if err != nil || paid {
		t.Fatalf("second toggle: paid=%v err=%v", paid, err)
	}
	assertAmount(t, getCard(t, mem, card.ID).AvailableLimit, "800", "available restored")
	assertAmount(t, getPerson(t, mem, person.ID).CurrentBalance, "200", "balance restored")
	assertCardInvariant(t, mem, card.ID)
}

// =============================================================================
// PAY INVOICE
// =============================================================================

func payCardWithThree(t *testing.T, eng *ledger.Engine) (ledger.Card, ledger.Person, []ledger.TransactionID) {
	t.Helper()
	ctx := context.Background()
	card := newCard(t, eng, "Nubank", "1000", 15)
	person := newPerson(t, eng, "Mãe")
	var ids []ledger.TransactionID
	for day := 1; day <= 3; day++ {
		in := purchase(card, person, "100")
		in.Date = time.Date(2025, time.March, day, 0, 0, 0, 0, time.UTC)
		created, err := eng.CreatePurchase(ctx, in)
		if err != nil {
			t.Fatalf("create purchase: %v", err)
		}
		ids = append(ids, created[0])
	}
	return card, person, ids
}

func TestPayInvoice_FullPayment(t *testing.T) {
	// GIVEN: Three unpaid 100 transactions in the active period (available=700)
	// WHEN: Paying 300
	// THEN: All settled, no rollover, available=1000, balance=0
	eng, mem := newTestEngine(t)
	ctx := context.Background()
	card, person, ids := payCardWithThree(t, eng)

	result, err := eng.PayInvoice(ctx, card.ID, dec("300"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SettledCount != 3 {
		t.Errorf("settled: got %d, want 3", result.SettledCount)
	}
	assertAmount(t, result.RolledOverAmount, "0", "rolled over")
	assertAmount(t, getCard(t, mem, card.ID).AvailableLimit, "1000", "available")
	assertAmount(t, getPerson(t, mem, person.ID).CurrentBalance, "0", "balance")
	for _, id := range ids {
		if !getTx(t, mem, id).Paid {
			t.Errorf("transaction %s should be paid", id)
		}
	}
}

func TestPayInvoice_PartialPayment_RollsOverWithInterest(t *testing.T) {
	// GIVEN: Three unpaid 100 transactions, oldest first (available=700)
	// WHEN: Paying 150
	// THEN: The oldest two are marked paid (100 + 50 applied; the second is
	//       only half covered but still flips - the period line is closed),
	//       available=850, and the person's 50 shortfall is re-billed next
	//       period as a revolving 56.00 (50 * 1.12). Balance: 300-150+6=156.
	eng, mem := newTestEngine(t)
	ctx := context.Background()
	card, person, ids := payCardWithThree(t, eng)

	result, err := eng.PayInvoice(ctx, card.ID, dec("150"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SettledCount != 2 {
		t.Errorf("settled: got %d, want 2", result.SettledCount)
	}
	assertAmount(t, result.RolledOverAmount, "56.00", "rolled over")
	assertAmount(t, getCard(t, mem, card.ID).AvailableLimit, "850", "available")
	assertAmount(t, getPerson(t, mem, person.ID).CurrentBalance, "156", "balance")

	if !getTx(t, mem, ids[0]).Paid || !getTx(t, mem, ids[1]).Paid {
		t.Error("oldest two transactions should be paid")
	}
	if getTx(t, mem, ids[2]).Paid {
		t.Error("untouched transaction must stay unpaid")
	}

	// Exactly one revolving transaction for next period.
	all, err := eng.Transactions(ctx, func(tr ledger.Transaction) bool {
		return tr.Origin == ledger.OriginRevolving
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 revolving transaction, got %d", len(all))
	}
	rt := all[0]
	assertAmount(t, rt.Amount, "56.00", "revolving amount")
	if rt.InvoiceMonth != "2025-04" {
		t.Errorf("revolving month: got %s, want 2025-04", rt.InvoiceMonth)
	}
	if rt.Paid {
		t.Error("revolving transaction starts unpaid")
	}
	if rt.PersonID != person.ID || rt.CardID != card.ID {
		t.Error("revolving transaction must stay with the same person and card")
	}
}

func TestPayInvoice_RevolvingPostsInsideItsInvoiceMonth(t *testing.T) {
	// GIVEN: A partial payment made on January 31
	// WHEN: The 60 shortfall rolls into February
	// THEN: The revolving transaction posts on February 1, inside its own
	//       invoice month, instead of normalizing past February
	mem := store.NewMemory()
	clock := ledger.FixedClock{T: time.Date(2025, time.January, 31, 12, 0, 0, 0, time.UTC)}
	eng := ledger.NewEngine(mem, clock, testUser)
	ctx := context.Background()

	card, err := eng.CreateCard(ctx, "Nubank", "", "", dec("1000"), 31, 8)
	if err != nil {
		t.Fatalf("create card: %v", err)
	}
	person := newPerson(t, eng, "Mãe")
	if _, err := eng.CreatePurchase(ctx, ledger.PurchaseInput{
		Description: "Mercado",
		Amount:      dec("100"),
		CardID:      card.ID,
		Debtor:      ledger.TrackedPerson(person.ID),
		Date:        time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("create purchase: %v", err)
	}

	if _, err := eng.PayInvoice(ctx, card.ID, dec("40")); err != nil {
		t.Fatalf("pay invoice: %v", err)
	}

	revolving, err := eng.Transactions(ctx, func(tr ledger.Transaction) bool {
		return tr.Origin == ledger.OriginRevolving
	})
	if err != nil || len(revolving) != 1 {
		t.Fatalf("revolving transactions: %v (%d)", err, len(revolving))
	}
	rt := revolving[0]
	if rt.InvoiceMonth != "2025-02" {
		t.Errorf("invoice month: got %s, want 2025-02", rt.InvoiceMonth)
	}
	if got := ledger.MonthKeyFor(rt.PostedAt); got != rt.InvoiceMonth {
		t.Errorf("posted %s falls outside invoice month %s", got, rt.InvoiceMonth)
	}
	if want := time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC); !rt.PostedAt.Equal(want) {
		t.Errorf("posted at: got %v, want %v", rt.PostedAt, want)
	}
}

func TestPayInvoice_OverpaymentCappedAtTotalDue(t *testing.T) {
	// GIVEN: 300 due
	// WHEN: Paying 500
	// THEN: Only 300 is applied; available recovers by 300, not 500
	eng, mem := newTestEngine(t)
	card, person, _ := payCardWithThree(t, eng)

	result, err := eng.PayInvoice(context.Background(), card.ID, dec("500"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SettledCount != 3 {
		t.Errorf("settled: got %d, want 3", result.SettledCount)
	}
	assertAmount(t, getCard(t, mem, card.ID).AvailableLimit, "1000", "available")
	assertAmount(t, getPerson(t, mem, person.ID).CurrentBalance, "0", "balance")
	assertCardInvariant(t, mem, card.ID)
}

func TestPayInvoice_OldestFirst(t *testing.T) {
	// GIVEN: Purchases dated March 3, 1, 2 (created in that order)
	// WHEN: Paying exactly one installment's worth
	// THEN: The March 1 purchase settles, not the first-created one
	eng, mem := newTestEngine(t)
	ctx := context.Background()
	card := newCard(t, eng, "Nubank", "1000", 15)
	person := newPerson(t, eng, "Mãe")

	var ids []ledger.TransactionID
	for _, day := range []int{3, 1, 2} {
		in := purchase(card, person, "100")
		in.Date = time.Date(2025, time.March, day, 0, 0, 0, 0, time.UTC)
		created, err := eng.CreatePurchase(ctx, in)
		if err != nil {
			t.Fatalf("create purchase: %v", err)
		}
		ids = append(ids, created[0])
	}

	if _, err := eng.PayInvoice(ctx, card.ID, dec("100")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if getTx(t, mem, ids[0]).Paid {
		t.Error("March 3 purchase must not settle first")
	}
	if !getTx(t, mem, ids[1]).Paid {
		t.Error("March 1 purchase should settle first")
	}
}

func TestPayInvoice_NothingDue(t *testing.T) {
	eng, _ := newTestEngine(t)
	card := newCard(t, eng, "Nubank", "1000", 15)
	_, err := eng.PayInvoice(context.Background(), card.ID, dec("100"))
	if !errors.Is(err, ledger.ErrNothingDue) {
		t.Fatalf("expected ErrNothingDue, got %v", err)
	}
}

func TestPayInvoice_CardNotFound(t *testing.T) {
	eng, _ := newTestEngine(t)
	_, err := eng.PayInvoice(context.Background(), "missing", dec("100"))
	if !ledger.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPayInvoice_InvalidAmount(t *testing.T) {
	eng, _ := newTestEngine(t)
	card := newCard(t, eng, "Nubank", "1000", 15)
	for _, amount := range []string{"0", "-10"} {
		_, err := eng.PayInvoice(context.Background(), card.ID, dec(amount))
		if !errors.Is(err, ledger.ErrInvalidInput) {
			t.Errorf("amount %s: expected ErrInvalidInput, got %v", amount, err)
		}
	}
}

// =============================================================================
// PAYMENTS AND GUARDED DELETION
// =============================================================================

func TestRecordPayment_ReducesBalance(t *testing.T) {
	// GIVEN: A person owing 200
	// WHEN: Recording a 150 payment
	// THEN: Balance drops to 50 and an immutable Payment document exists
	eng, mem := newTestEngine(t)
	ctx := context.Background()
	card := newCard(t, eng, "Nubank", "1000", 15)
	person := newPerson(t, eng, "Mãe")
	if _, err := eng.CreatePurchase(ctx, purchase(card, person, "200")); err != nil {
		t.Fatalf("create purchase: %v", err)
	}

	id, err := eng.RecordPayment(ctx, ledger.TrackedPerson(person.ID), dec("150"), testNow, "pix")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Fatal("expected payment id")
	}
	assertAmount(t, getPerson(t, mem, person.ID).CurrentBalance, "50", "balance")

	payments, err := eng.Payments(ctx, person.ID)
	if err != nil || len(payments) != 1 {
		t.Fatalf("payments: %v (%d)", err, len(payments))
	}
	assertAmount(t, payments[0].Amount, "150", "payment amount")
}

func TestRecordPayment_Owner_Rejected(t *testing.T) {
	eng, _ := newTestEngine(t)
	_, err := eng.RecordPayment(context.Background(), ledger.Owner(), dec("10"), testNow, "")
	if !errors.Is(err, ledger.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDeleteCard_StillReferenced(t *testing.T) {
	// GIVEN: A card with one transaction
	// WHEN: Deleting the card
	// THEN: ErrStillReferenced; after deleting the transaction it succeeds
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	card := newCard(t, eng, "Nubank", "1000", 15)
	person := newPerson(t, eng, "Mãe")
	ids, _ := eng.CreatePurchase(ctx, purchase(card, person, "100"))

	if err := eng.DeleteCard(ctx, card.ID); !errors.Is(err, ledger.ErrStillReferenced) {
		t.Fatalf("expected ErrStillReferenced, got %v", err)
	}
	if err := eng.DeletePurchase(ctx, ids[0]); err != nil {
		t.Fatalf("delete purchase: %v", err)
	}
	if err := eng.DeleteCard(ctx, card.ID); err != nil {
		t.Fatalf("delete card: %v", err)
	}
}

func TestDeletePerson_StillReferenced(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	card := newCard(t, eng, "Nubank", "1000", 15)
	person := newPerson(t, eng, "Mãe")
	ids, _ := eng.CreatePurchase(ctx, purchase(card, person, "100"))

	if err := eng.DeletePerson(ctx, person.ID); !errors.Is(err, ledger.ErrStillReferenced) {
		t.Fatalf("expected ErrStillReferenced, got %v", err)
	}
	if err := eng.DeletePurchase(ctx, ids[0]); err != nil {
		t.Fatalf("delete purchase: %v", err)
	}
	if err := eng.DeletePerson(ctx, person.ID); err != nil {
		t.Fatalf("delete person: %v", err)
	}
}

// =============================================================================
// USER PARTITIONING
// =============================================================================

func TestReads_StayWithinUserPartition(t *testing.T) {
	// GIVEN: Two engines sharing one store under different user ids, each
	//        with its own card, person, purchase and recorded payment
	// WHEN: Listing through either engine
	// THEN: Only that user's documents are visible
	mem := store.NewMemory()
	clock := ledger.FixedClock{T: testNow}
	eng := ledger.NewEngine(mem, clock, testUser)
	other := ledger.NewEngine(mem, clock, "user-2")
	ctx := context.Background()

	card := newCard(t, eng, "Nubank", "1000", 15)
	person := newPerson(t, eng, "Mãe")
	if _, err := eng.CreatePurchase(ctx, purchase(card, person, "100")); err != nil {
		t.Fatalf("create purchase: %v", err)
	}
	if _, err := eng.RecordPayment(ctx, ledger.TrackedPerson(person.ID), dec("10"), testNow, ""); err != nil {
		t.Fatalf("record payment: %v", err)
	}

	otherCard, err := other.CreateCard(ctx, "Inter", "", "", dec("500"), 15, 22)
	if err != nil {
		t.Fatalf("create card: %v", err)
	}
	otherPerson, err := other.CreatePerson(ctx, "Ana", "")
	if err != nil {
		t.Fatalf("create person: %v", err)
	}
	if _, err := other.CreatePurchase(ctx, ledger.PurchaseInput{
		Description: "Café",
		Amount:      dec("20"),
		CardID:      otherCard.ID,
		Debtor:      ledger.TrackedPerson(otherPerson.ID),
		Date:        testNow,
	}); err != nil {
		t.Fatalf("create purchase: %v", err)
	}

	cards, err := eng.Cards(ctx)
	if err != nil || len(cards) != 1 || cards[0].ID != card.ID {
		t.Errorf("cards leaked across partitions: %v (%d)", err, len(cards))
	}
	people, err := eng.People(ctx)
	if err != nil || len(people) != 1 || people[0].ID != person.ID {
		t.Errorf("people leaked across partitions: %v (%d)", err, len(people))
	}
	txs, err := eng.Transactions(ctx, nil)
	if err != nil || len(txs) != 1 {
		t.Errorf("transactions leaked across partitions: %v (%d)", err, len(txs))
	}
	payments, err := eng.Payments(ctx, "")
	if err != nil || len(payments) != 1 {
		t.Errorf("payments leaked across partitions: %v (%d)", err, len(payments))
	}

	otherCards, err := other.Cards(ctx)
	if err != nil || len(otherCards) != 1 || otherCards[0].ID != otherCard.ID {
		t.Errorf("other user's cards wrong: %v (%d)", err, len(otherCards))
	}
}

// =============================================================================
// STORE FAILURE SURFACING
// =============================================================================

func TestTransientFailure_SurfacedAfterRetryExhaustion(t *testing.T) {
	// GIVEN: A store whose next attempts all conflict
	// WHEN: Creating a purchase
	// THEN: ErrTransientFailure; no partial application is observable
	eng, mem := newTestEngine(t)
	ctx := context.Background()
	card := newCard(t, eng, "Nubank", "1000", 15)
	person := newPerson(t, eng, "Mãe")

	mem.FailNextAttempts(100)
	_, err := eng.CreatePurchase(ctx, purchase(card, person, "200"))
	if !errors.Is(err, ledger.ErrTransientFailure) {
		t.Fatalf("expected ErrTransientFailure, got %v", err)
	}
	assertAmount(t, getCard(t, mem, card.ID).AvailableLimit, "1000", "available unchanged")
	assertAmount(t, getPerson(t, mem, person.ID).CurrentBalance, "0", "balance unchanged")
}

func TestConflictRetry_SucceedsWithinBudget(t *testing.T) {
	// GIVEN: A store that conflicts twice before letting an attempt through
	// WHEN: Creating a purchase
	// THEN: The retry loop absorbs the conflicts and the operation commits
	eng, mem := newTestEngine(t)
	ctx := context.Background()
	card := newCard(t, eng, "Nubank", "1000", 15)
	person := newPerson(t, eng, "Mãe")

	mem.FailNextAttempts(2)
	if _, err := eng.CreatePurchase(ctx, purchase(card, person, "200")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertAmount(t, getCard(t, mem, card.ID).AvailableLimit, "800", "available")
}
