/*
aggregate.go - Per-card per-month invoice summaries

PURPOSE:
  Recomputes derived invoice summaries (total/paid/pending/revolving, open
  or closed) from the transaction set. Display data only: the summaries are
  eventually consistent, idempotent to re-run, and never a source of truth
  for balances. They sit outside the engine's atomicity guarantees.
*/
package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Aggregator recomputes InvoiceSummary documents. Safe to re-run at any
// time; the summary doc id doubles as the idempotency key.
type Aggregator struct {
	store  Store
	clock  Clock
	userID string
}

// NewAggregator creates an aggregator over the same store as the engine.
func NewAggregator(store Store, clock Clock, userID string) *Aggregator {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Aggregator{store: store, clock: clock, userID: userID}
}

// Recompute rebuilds the summary for every known card in the given month.
func (a *Aggregator) Recompute(ctx context.Context, month MonthKey) error {
	cards, err := a.store.List(ctx, CollectionCards)
	if err != nil {
		return err
	}
	txs, err := a.store.List(ctx, CollectionTransactions)
	if err != nil {
		return err
	}

	now := a.clock.Now()
	summaries := make([]InvoiceSummary, 0, len(cards))
	for _, raw := range cards {
		var card Card
		if err := json.Unmarshal(raw.Data, &card); err != nil {
			return fmt.Errorf("decode card %s: %w", raw.ID, err)
		}
		if card.UserID != a.userID {
			continue
		}
		s := InvoiceSummary{
			ID:        SummaryDocID(a.userID, card.ID, month),
			UserID:    a.userID,
			CardID:    card.ID,
			Month:     month,
			Total:     decimal.Zero,
			Paid:      decimal.Zero,
			Pending:   decimal.Zero,
			Revolving: decimal.Zero,
			UpdatedAt: now,
		}
		for _, rawTx := range txs {
			var t Transaction
			if err := json.Unmarshal(rawTx.Data, &t); err != nil {
				return fmt.Errorf("decode transaction %s: %w", rawTx.ID, err)
			}
			if t.UserID != a.userID || t.CardID != card.ID || t.InvoiceMonth != month {
				continue
			}
			s.Total = s.Total.Add(t.Amount)
			if t.Paid {
				s.Paid = s.Paid.Add(t.Amount)
			} else {
				s.Pending = s.Pending.Add(t.Amount)
			}
			if t.Origin == OriginRevolving {
				s.Revolving = s.Revolving.Add(t.Amount)
			}
		}
		cutoff, err := InvoiceClosingDate(month, card.ClosingDay)
		if err != nil {
			return err
		}
		s.Closed = now.After(cutoff)
		summaries = append(summaries, s)
	}

	return a.store.RunAtomic(ctx, func(tx Tx) error {
		for _, s := range summaries {
			if err := tx.Set(CollectionInvoices, s.ID, s); err != nil {
				return err
			}
		}
		return nil
	})
}

// Summaries returns the stored summaries for a month.
func (a *Aggregator) Summaries(ctx context.Context, month MonthKey) ([]InvoiceSummary, error) {
	raws, err := a.store.List(ctx, CollectionInvoices)
	if err != nil {
		return nil, err
	}
	var out []InvoiceSummary
	for _, raw := range raws {
		var s InvoiceSummary
		if err := json.Unmarshal(raw.Data, &s); err != nil {
			return nil, fmt.Errorf("decode summary %s: %w", raw.ID, err)
		}
		if s.UserID == a.userID && s.Month == month {
			out = append(out, s)
		}
	}
	return out, nil
}
