/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for the HTTP surface. These types decouple the engine's
  domain model from the external API contract. Amounts and dates arrive as
  the localized text the app's forms produce ("1.234,56", "DD/MM/YYYY") and
  leave as fixed 2-decimal strings.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Parsing happens in the handlers; the engine receives already-parsed
  values. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/Caiozmartins/me-pague-App/ledger"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreateCardRequest creates a credit line.
type CreateCardRequest struct {
	Name       string `json:"name"`
	Bank       string `json:"bank"`
	Last4      string `json:"last4"`
	TotalLimit string `json:"total_limit"`
	ClosingDay int    `json:"closing_day"`
	DueDay     int    `json:"due_day"`
}

// CreatePersonRequest creates a tracked person.
type CreatePersonRequest struct {
	Name string `json:"name"`
	Note string `json:"note"`
}

// PurchaseRequest creates or edits a purchase. An empty person_id charges
// the owner. Installments <= 1 means a single charge.
type PurchaseRequest struct {
	Description  string `json:"description"`
	Category     string `json:"category"`
	Amount       string `json:"amount"`
	CardID       string `json:"card_id"`
	PersonID     string `json:"person_id"`
	Date         string `json:"date"`
	Installments int    `json:"installments"`
}

// PayInvoiceRequest pays toward a card's pending transactions.
type PayInvoiceRequest struct {
	Amount string `json:"amount"`
}

// RecordPaymentRequest records an out-of-band settlement by a person.
type RecordPaymentRequest struct {
	Amount string `json:"amount"`
	Date   string `json:"date"`
	Note   string `json:"note"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

type CardDTO struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Bank           string `json:"bank,omitempty"`
	Last4          string `json:"last4,omitempty"`
	TotalLimit     string `json:"total_limit"`
	AvailableLimit string `json:"available_limit"`
	ClosingDay     int    `json:"closing_day"`
	DueDay         int    `json:"due_day,omitempty"`
}

type PersonDTO struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Note           string `json:"note,omitempty"`
	CurrentBalance string `json:"current_balance"`
}

type TransactionDTO struct {
	ID           string `json:"id"`
	Description  string `json:"description"`
	Category     string `json:"category,omitempty"`
	Amount       string `json:"amount"`
	CardID       string `json:"card_id"`
	CardName     string `json:"card_name,omitempty"`
	PersonID     string `json:"person_id,omitempty"`
	PersonName   string `json:"person_name,omitempty"`
	Date         string `json:"date"`
	InvoiceMonth string `json:"invoice_month"`
	Paid         bool   `json:"paid"`
	Origin       string `json:"origin"`
	Installment  string `json:"installment,omitempty"`
}

type PaymentDTO struct {
	ID       string `json:"id"`
	PersonID string `json:"person_id"`
	Amount   string `json:"amount"`
	Date     string `json:"date"`
	Note     string `json:"note,omitempty"`
}

type InvoiceSummaryDTO struct {
	CardID    string `json:"card_id"`
	Month     string `json:"month"`
	Total     string `json:"total"`
	Paid      string `json:"paid"`
	Pending   string `json:"pending"`
	Revolving string `json:"revolving"`
	Closed    bool   `json:"closed"`
}

// CreatePurchaseResponse returns the ids of the created installments.
type CreatePurchaseResponse struct {
	TransactionIDs []string `json:"transaction_ids"`
}

// TogglePaidResponse returns the new paid state.
type TogglePaidResponse struct {
	Paid bool `json:"paid"`
}

// PayInvoiceResponse reports what the payment did.
type PayInvoiceResponse struct {
	SettledCount     int    `json:"settled_count"`
	RolledOverAmount string `json:"rolled_over_amount"`
}

// ErrorResponse is returned for every failure.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toCardDTO(c ledger.Card) CardDTO {
	return CardDTO{
		ID:             string(c.ID),
		Name:           c.Name,
		Bank:           c.Bank,
		Last4:          c.Last4,
		TotalLimit:     c.TotalLimit.StringFixed(2),
		AvailableLimit: c.AvailableLimit.StringFixed(2),
		ClosingDay:     c.ClosingDay,
		DueDay:         c.DueDay,
	}
}

func toPersonDTO(p ledger.Person) PersonDTO {
	return PersonDTO{
		ID:             string(p.ID),
		Name:           p.Name,
		Note:           p.Note,
		CurrentBalance: p.CurrentBalance.StringFixed(2),
	}
}

func toTransactionDTO(t ledger.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:           string(t.ID),
		Description:  t.Description,
		Category:     t.Category,
		Amount:       t.Amount.StringFixed(2),
		CardID:       string(t.CardID),
		CardName:     t.CardName,
		PersonID:     string(t.PersonID),
		PersonName:   t.PersonName,
		Date:         t.PostedAt.Format("02/01/2006"),
		InvoiceMonth: t.InvoiceMonth.String(),
		Paid:         t.Paid,
		Origin:       string(t.Origin),
		Installment:  t.Installment,
	}
}

func toPaymentDTO(p ledger.Payment) PaymentDTO {
	return PaymentDTO{
		ID:       string(p.ID),
		PersonID: string(p.PersonID),
		Amount:   p.Amount.StringFixed(2),
		Date:     p.Date.Format("02/01/2006"),
		Note:     p.Note,
	}
}

func toSummaryDTO(s ledger.InvoiceSummary) InvoiceSummaryDTO {
	return InvoiceSummaryDTO{
		CardID:    string(s.CardID),
		Month:     s.Month.String(),
		Total:     s.Total.StringFixed(2),
		Paid:      s.Paid.StringFixed(2),
		Pending:   s.Pending.StringFixed(2),
		Revolving: s.Revolving.StringFixed(2),
		Closed:    s.Closed,
	}
}
