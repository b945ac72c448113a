package api

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xard1993/komun-api/internal/auth"
	"github.com/xard1993/komun-api/internal/budget"
	"github.com/xard1993/komun-api/internal/models"
)

func (h *handler) balance(w http.ResponseWriter, r *http.Request) {
	buildingID, err := pathUUID(r, "buildingID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	financials, err := h.budgets.Balance(r.Context(), tenantSlug(r), buildingID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceToResponse(financials))
}

func (h *handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	buildingID, err := pathUUID(r, "buildingID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	txns, err := h.budgets.ListTransactions(r.Context(), tenantSlug(r), buildingID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]transactionResponse, 0, len(txns))
	for _, t := range txns {
		resp = append(resp, transactionResponse{
			ID:          t.ID,
			Kind:        string(t.Kind),
			Amount:      t.Amount,
			Description: t.Description,
			OccurredAt:  t.OccurredAt,
			ActorID:     t.ActorID,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type recordTransactionRequest struct {
	Kind        string          `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	OccurredAt  *time.Time      `json:"occurred_at"`
}

func (h *handler) recordTransaction(w http.ResponseWriter, r *http.Request) {
	buildingID, err := pathUUID(r, "buildingID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req recordTransactionRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	in := budget.NewTransaction{
		BuildingID:  buildingID,
		Kind:        models.TransactionKind(req.Kind),
		Amount:      req.Amount,
		Description: req.Description,
	}
	if req.OccurredAt != nil {
		in.OccurredAt = req.OccurredAt.UTC()
	}
	if principal := auth.PrincipalFromContext(r.Context()); principal != nil {
		in.ActorID = &principal.UserID
	}

	financials, err := h.budgets.RecordTransaction(r.Context(), tenantSlug(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, balanceToResponse(financials))
}
