/*
handlers.go - HTTP handlers for the ledger engine

PURPOSE:
  Exposes the ledger operations via REST. Handlers parse the localized form
  input, delegate to the engine, map the error taxonomy onto HTTP statuses,
  and kick the invoice aggregator after every mutation.

ENDPOINTS:
  Cards:
    GET    /api/cards                      List cards
    POST   /api/cards                      Create card
    DELETE /api/cards/{id}                 Delete card (if unreferenced)
    POST   /api/cards/{id}/pay             Pay toward the active invoice
    GET    /api/cards/{id}/invoices        Invoice summaries for a month

  People:
    GET    /api/people                     List people
    POST   /api/people                     Create person
    DELETE /api/people/{id}                Delete person (if unreferenced)
    GET    /api/people/{id}/payments       Recorded payments
    POST   /api/people/{id}/payments       Record an out-of-band payment

  Transactions:
    GET    /api/transactions               List (filter: month, card_id, person_id)
    POST   /api/transactions               Create purchase (with installments)
    PUT    /api/transactions/{id}          Edit purchase
    DELETE /api/transactions/{id}          Delete purchase
    POST   /api/transactions/{id}/paid     Toggle paid state

ERROR HANDLING:
  - 400: unparseable amount/date, missing selection
  - 404: card/person/transaction not found
  - 409: insufficient limit, already settled, nothing due, still referenced
  - 503: store transaction retries exhausted (safe to retry)
  - 500: everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Caiozmartins/me-pague-App/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine     *ledger.Engine
	Aggregator *ledger.Aggregator
	Clock      ledger.Clock
	Log        *slog.Logger
}

// NewHandler creates a handler around one user's engine.
func NewHandler(eng *ledger.Engine, agg *ledger.Aggregator, clock ledger.Clock, log *slog.Logger) *Handler {
	if clock == nil {
		clock = ledger.SystemClock{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{Engine: eng, Aggregator: agg, Clock: clock, Log: log}
}

// debtorFrom maps a request's person id onto the tagged Debtor variant.
// Empty or the owner's own user id both mean the owner.
func (h *Handler) debtorFrom(personID string) ledger.Debtor {
	if personID == "" || personID == h.Engine.UserID() {
		return ledger.Owner()
	}
	return ledger.TrackedPerson(ledger.PersonID(personID))
}

// refresh re-aggregates the active month and the next one (revolving
// rollovers land there). Aggregation is display-only; failures are logged,
// never surfaced to the caller whose mutation already committed.
func (h *Handler) refresh(r *http.Request) {
	month := ledger.MonthKeyFor(h.Clock.Now())
	for _, m := range []ledger.MonthKey{month, month.Next()} {
		if err := h.Aggregator.Recompute(r.Context(), m); err != nil {
			h.Log.Warn("invoice aggregation failed", "month", m, "err", err)
		}
	}
}

// =============================================================================
// CARD ENDPOINTS
// =============================================================================

// ListCards returns all cards.
// GET /api/cards
func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	cards, err := h.Engine.Cards(r.Context())
	if err != nil {
		h.writeFailure(w, "Failed to list cards", err)
		return
	}
	dtos := make([]CardDTO, 0, len(cards))
	for _, c := range cards {
		dtos = append(dtos, toCardDTO(c))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCard creates a card.
// POST /api/cards
func (h *Handler) CreateCard(w http.ResponseWriter, r *http.Request) {
	var req CreateCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	limit, err := ledger.ParseAmount(req.TotalLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid total_limit", err)
		return
	}
	card, err := h.Engine.CreateCard(r.Context(), req.Name, req.Bank, req.Last4, limit, req.ClosingDay, req.DueDay)
	if err != nil {
		h.writeFailure(w, "Failed to create card", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCardDTO(card))
}

// DeleteCard deletes a card with no referencing transactions.
// DELETE /api/cards/{id}
func (h *Handler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	id := ledger.CardID(chi.URLParam(r, "id"))
	if err := h.Engine.DeleteCard(r.Context(), id); err != nil {
		h.writeFailure(w, "Failed to delete card", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PayInvoice pays toward the card's active invoice.
// POST /api/cards/{id}/pay
func (h *Handler) PayInvoice(w http.ResponseWriter, r *http.Request) {
	id := ledger.CardID(chi.URLParam(r, "id"))
	var req PayInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	result, err := h.Engine.PayInvoice(r.Context(), id, amount)
	if err != nil {
		h.writeFailure(w, "Failed to pay invoice", err)
		return
	}
	h.refresh(r)
	writeJSON(w, http.StatusOK, PayInvoiceResponse{
		SettledCount:     result.SettledCount,
		RolledOverAmount: result.RolledOverAmount.StringFixed(2),
	})
}

// ListInvoices returns the stored invoice summaries for a month.
// GET /api/cards/{id}/invoices?month=YYYY-MM and GET /api/invoices?month=YYYY-MM
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	month := ledger.MonthKey(r.URL.Query().Get("month"))
	if month == "" {
		month = ledger.MonthKeyFor(h.Clock.Now())
	}
	summaries, err := h.Aggregator.Summaries(r.Context(), month)
	if err != nil {
		h.writeFailure(w, "Failed to list invoices", err)
		return
	}
	cardFilter := chi.URLParam(r, "id")
	dtos := make([]InvoiceSummaryDTO, 0, len(summaries))
	for _, s := range summaries {
		if cardFilter != "" && string(s.CardID) != cardFilter {
			continue
		}
		dtos = append(dtos, toSummaryDTO(s))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// PEOPLE ENDPOINTS
// =============================================================================

// ListPeople returns all tracked people.
// GET /api/people
func (h *Handler) ListPeople(w http.ResponseWriter, r *http.Request) {
	people, err := h.Engine.People(r.Context())
	if err != nil {
		h.writeFailure(w, "Failed to list people", err)
		return
	}
	dtos := make([]PersonDTO, 0, len(people))
	for _, p := range people {
		dtos = append(dtos, toPersonDTO(p))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePerson creates a tracked person.
// POST /api/people
func (h *Handler) CreatePerson(w http.ResponseWriter, r *http.Request) {
	var req CreatePersonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	person, err := h.Engine.CreatePerson(r.Context(), req.Name, req.Note)
	if err != nil {
		h.writeFailure(w, "Failed to create person", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPersonDTO(person))
}

// DeletePerson deletes a person with no referencing transactions.
// DELETE /api/people/{id}
func (h *Handler) DeletePerson(w http.ResponseWriter, r *http.Request) {
	id := ledger.PersonID(chi.URLParam(r, "id"))
	if err := h.Engine.DeletePerson(r.Context(), id); err != nil {
		h.writeFailure(w, "Failed to delete person", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListPayments returns a person's recorded payments.
// GET /api/people/{id}/payments
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	id := ledger.PersonID(chi.URLParam(r, "id"))
	payments, err := h.Engine.Payments(r.Context(), id)
	if err != nil {
		h.writeFailure(w, "Failed to list payments", err)
		return
	}
	dtos := make([]PaymentDTO, 0, len(payments))
	for _, p := range payments {
		dtos = append(dtos, toPaymentDTO(p))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RecordPayment records an out-of-band settlement by a person.
// POST /api/people/{id}/payments
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req RecordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	date := h.Clock.Now()
	if req.Date != "" {
		if date, err = ledger.ParseDate(req.Date); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date", err)
			return
		}
	}
	paymentID, err := h.Engine.RecordPayment(r.Context(), h.debtorFrom(id), amount, date, req.Note)
	if err != nil {
		h.writeFailure(w, "Failed to record payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": string(paymentID)})
}

// =============================================================================
// TRANSACTION ENDPOINTS
// =============================================================================

// ListTransactions returns transactions, optionally filtered by month,
// card or person.
// GET /api/transactions?month=YYYY-MM&card_id=&person_id=
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	month := ledger.MonthKey(q.Get("month"))
	cardID := ledger.CardID(q.Get("card_id"))
	personID := ledger.PersonID(q.Get("person_id"))

	txs, err := h.Engine.Transactions(r.Context(), func(t ledger.Transaction) bool {
		if month != "" && t.InvoiceMonth != month {
			return false
		}
		if cardID != "" && t.CardID != cardID {
			return false
		}
		if personID != "" && t.PersonID != personID {
			return false
		}
		return true
	})
	if err != nil {
		h.writeFailure(w, "Failed to list transactions", err)
		return
	}
	dtos := make([]TransactionDTO, 0, len(txs))
	for _, t := range txs {
		dtos = append(dtos, toTransactionDTO(t))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePurchase creates a purchase with optional installment split.
// POST /api/transactions
func (h *Handler) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	in, err := h.purchaseInput(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid purchase", err)
		return
	}
	ids, err := h.Engine.CreatePurchase(r.Context(), in)
	if err != nil {
		h.writeFailure(w, "Failed to create purchase", err)
		return
	}
	h.refresh(r)
	resp := CreatePurchaseResponse{TransactionIDs: make([]string, 0, len(ids))}
	for _, id := range ids {
		resp.TransactionIDs = append(resp.TransactionIDs, string(id))
	}
	writeJSON(w, http.StatusCreated, resp)
}

// EditPurchase edits an unpaid purchase.
// PUT /api/transactions/{id}
func (h *Handler) EditPurchase(w http.ResponseWriter, r *http.Request) {
	id := ledger.TransactionID(chi.URLParam(r, "id"))
	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	in, err := h.purchaseInput(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid purchase", err)
		return
	}
	err = h.Engine.EditPurchase(r.Context(), ledger.EditInput{
		TransactionID: id,
		Description:   in.Description,
		Category:      in.Category,
		Amount:        in.Amount,
		Date:          in.Date,
		CardID:        in.CardID,
		Debtor:        in.Debtor,
	})
	if err != nil {
		h.writeFailure(w, "Failed to edit purchase", err)
		return
	}
	h.refresh(r)
	w.WriteHeader(http.StatusNoContent)
}

// DeletePurchase deletes a purchase, reversing its effect when unpaid.
// DELETE /api/transactions/{id}
func (h *Handler) DeletePurchase(w http.ResponseWriter, r *http.Request) {
	id := ledger.TransactionID(chi.URLParam(r, "id"))
	if err := h.Engine.DeletePurchase(r.Context(), id); err != nil {
		h.writeFailure(w, "Failed to delete purchase", err)
		return
	}
	h.refresh(r)
	w.WriteHeader(http.StatusNoContent)
}

// TogglePaid flips a transaction's paid state.
// POST /api/transactions/{id}/paid
func (h *Handler) TogglePaid(w http.ResponseWriter, r *http.Request) {
	id := ledger.TransactionID(chi.URLParam(r, "id"))
	paid, err := h.Engine.TogglePaid(r.Context(), id)
	if err != nil {
		h.writeFailure(w, "Failed to toggle paid state", err)
		return
	}
	h.refresh(r)
	writeJSON(w, http.StatusOK, TogglePaidResponse{Paid: paid})
}

func (h *Handler) purchaseInput(req PurchaseRequest) (ledger.PurchaseInput, error) {
	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		return ledger.PurchaseInput{}, err
	}
	date, err := ledger.ParseDate(req.Date)
	if err != nil {
		return ledger.PurchaseInput{}, err
	}
	return ledger.PurchaseInput{
		Description:  req.Description,
		Category:     req.Category,
		Amount:       amount,
		CardID:       ledger.CardID(req.CardID),
		Debtor:       h.debtorFrom(req.PersonID),
		Date:         date,
		Installments: req.Installments,
	}, nil
}

// =============================================================================
// RESPONSES
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeFailure maps the engine's error taxonomy onto HTTP statuses.
func (h *Handler) writeFailure(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrInvalidInput):
		status = http.StatusBadRequest
	case ledger.IsNotFound(err):
		status = http.StatusNotFound
	case ledger.IsClientError(err):
		status = http.StatusConflict
	case errors.Is(err, ledger.ErrTransientFailure):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		h.Log.Error(message, "err", err)
	}
	writeError(w, status, message, err)
}
