package api

import (
	"context"
	"fmt"

	"github.com/Caiozmartins/me-pague-App/ledger"
)

// LoadDemoData seeds a small dataset for development runs: two cards, two
// tracked people, and a handful of purchases including an installment
// split. Idempotent enough for a dev database (it always creates fresh
// documents; run it against an empty store).
func LoadDemoData(ctx context.Context, eng *ledger.Engine) error {
	nubank, err := eng.CreateCard(ctx, "Nubank", "Nu Pagamentos", "4321", ledger.MustParseAmount("3.500,00"), 2, 10)
	if err != nil {
		return fmt.Errorf("seed card: %w", err)
	}
	inter, err := eng.CreateCard(ctx, "Inter", "Banco Inter", "8800", ledger.MustParseAmount("1.800,00"), 15, 22)
	if err != nil {
		return fmt.Errorf("seed card: %w", err)
	}

	mae, err := eng.CreatePerson(ctx, "Mãe", "")
	if err != nil {
		return fmt.Errorf("seed person: %w", err)
	}
	joao, err := eng.CreatePerson(ctx, "João", "colega do trabalho")
	if err != nil {
		return fmt.Errorf("seed person: %w", err)
	}

	now := ledger.SystemClock{}.Now()
	purchases := []ledger.PurchaseInput{
		{Description: "Mercado", Category: "Mercado", Amount: ledger.MustParseAmount("412,90"), CardID: nubank.ID, Debtor: ledger.Owner(), Date: now},
		{Description: "Farmácia", Category: "Saúde", Amount: ledger.MustParseAmount("86,50"), CardID: nubank.ID, Debtor: ledger.TrackedPerson(mae.ID), Date: now},
		{Description: "Tênis", Category: "Roupa", Amount: ledger.MustParseAmount("599,90"), CardID: inter.ID, Debtor: ledger.TrackedPerson(joao.ID), Date: now, Installments: 3},
	}
	for _, p := range purchases {
		if _, err := eng.CreatePurchase(ctx, p); err != nil {
			return fmt.Errorf("seed purchase %q: %w", p.Description, err)
		}
	}
	return nil
}
