package api

import (
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/xard1993/komun-api/internal/budget"
	"github.com/xard1993/komun-api/internal/models"
)

type createPeriodRequest struct {
	Name string `json:"name"`
	Year int    `json:"year"`
}

func (h *handler) createPeriod(w http.ResponseWriter, r *http.Request) {
	buildingID, err := pathUUID(r, "buildingID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req createPeriodRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	period, err := h.budgets.CreateBudgetPeriod(r.Context(), tenantSlug(r), buildingID, req.Name, req.Year)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, periodToResponse(period))
}

func (h *handler) listPeriods(w http.ResponseWriter, r *http.Request) {
	buildingID, err := pathUUID(r, "buildingID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	periods, err := h.budgets.ListPeriods(r.Context(), tenantSlug(r), buildingID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]periodResponse, 0, len(periods))
	for _, p := range periods {
		resp = append(resp, periodToResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) getPeriod(w http.ResponseWriter, r *http.Request) {
	periodID, err := pathUUID(r, "periodID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	period, err := h.budgets.GetPeriod(r.Context(), tenantSlug(r), periodID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, periodToResponse(period))
}

func (h *handler) sendForApproval(w http.ResponseWriter, r *http.Request) {
	periodID, err := pathUUID(r, "periodID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.budgets.SendForApproval(r.Context(), tenantSlug(r), periodID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sendResponse{
		Outcome:      res.Outcome,
		TokensIssued: res.TokensIssued,
		NoticesSent:  res.NoticesSent,
	})
}

func (h *handler) closePeriod(w http.ResponseWriter, r *http.Request) {
	periodID, err := pathUUID(r, "periodID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	period, err := h.budgets.ClosePeriod(r.Context(), tenantSlug(r), periodID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, periodToResponse(period))
}

func (h *handler) approvalSummary(w http.ResponseWriter, r *http.Request) {
	periodID, err := pathUUID(r, "periodID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	s, err := h.budgets.ApprovalSummary(r.Context(), tenantSlug(r), periodID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, summaryResponse{
		PeriodID:          s.PeriodID,
		Status:            string(s.Status),
		TotalUnits:        s.TotalUnits,
		Approved:          s.Approved,
		Rejected:          s.Rejected,
		Pending:           s.Pending,
		RequiredApprovals: s.RequiredApprovals,
	})
}

func (h *handler) listLines(w http.ResponseWriter, r *http.Request) {
	periodID, err := pathUUID(r, "periodID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	lines, err := h.budgets.ListBudgetLines(r.Context(), tenantSlug(r), periodID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]lineResponse, 0, len(lines))
	for _, l := range lines {
		resp = append(resp, lineToResponse(l))
	}
	writeJSON(w, http.StatusOK, resp)
}

type addLineRequest struct {
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

func (h *handler) addLine(w http.ResponseWriter, r *http.Request) {
	periodID, err := pathUUID(r, "periodID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req addLineRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	line, err := h.budgets.AddBudgetLine(r.Context(), tenantSlug(r), periodID, budget.NewLine{
		Category:    models.LineCategory(req.Category),
		Description: req.Description,
		Amount:      req.Amount,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, lineToResponse(line))
}

func (h *handler) listContributions(w http.ResponseWriter, r *http.Request) {
	periodID, err := pathUUID(r, "periodID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	contributions, err := h.budgets.ListContributions(r.Context(), tenantSlug(r), periodID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]contributionResponse, 0, len(contributions))
	for _, c := range contributions {
		resp = append(resp, contributionResponse{UnitID: c.UnitID, Amount: c.Amount})
	}
	writeJSON(w, http.StatusOK, resp)
}

type setContributionRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *handler) setContribution(w http.ResponseWriter, r *http.Request) {
	periodID, err := pathUUID(r, "periodID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	unitID, err := pathUUID(r, "unitID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req setContributionRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.budgets.SetUnitContribution(r.Context(), tenantSlug(r), periodID, unitID, req.Amount); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contributionResponse{UnitID: unitID, Amount: req.Amount})
}
