package api

import (
	"net/http"

	"github.com/xard1993/komun-api/internal/budget"
)

type approvalRequest struct {
	Token  string `json:"token"`
	Reason string `json:"reason"`
}

// readApprovalRequest accepts the token from the JSON body or, as in the emailed link,
// from the query string.
func readApprovalRequest(w http.ResponseWriter, r *http.Request) (approvalRequest, error) {
	var req approvalRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		return req, err
	}
	if req.Token == "" {
		req.Token = r.URL.Query().Get("token")
	}
	return req, nil
}

func (h *handler) approveByToken(w http.ResponseWriter, r *http.Request) {
	periodID, err := pathUUID(r, "periodID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	req, err := readApprovalRequest(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.Token == "" {
		writeError(w, r, budget.ErrTokenNotFound)
		return
	}

	res, err := h.budgets.ApproveByToken(r.Context(), tenantSlug(r), periodID, req.Token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, approvalToResponse(res))
}

func (h *handler) rejectByToken(w http.ResponseWriter, r *http.Request) {
	periodID, err := pathUUID(r, "periodID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	req, err := readApprovalRequest(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.Token == "" {
		writeError(w, r, budget.ErrTokenNotFound)
		return
	}

	res, err := h.budgets.RejectByToken(r.Context(), tenantSlug(r), periodID, req.Token, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, approvalToResponse(res))
}
