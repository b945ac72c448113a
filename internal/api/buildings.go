package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xard1993/komun-api/internal/buildings"
	"github.com/xard1993/komun-api/internal/models"
)

type createBuildingRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

func (h *handler) createBuilding(w http.ResponseWriter, r *http.Request) {
	var req createBuildingRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	building, err := h.buildings.CreateBuilding(r.Context(), tenantSlug(r), req.Name, req.Address)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, buildingToResponse(building))
}

func (h *handler) getBuilding(w http.ResponseWriter, r *http.Request) {
	buildingID, err := pathUUID(r, "buildingID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	building, err := h.buildings.GetBuilding(r.Context(), tenantSlug(r), buildingID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, buildingToResponse(building))
}

type createUnitRequest struct {
	Label string `json:"label"`
	Floor string `json:"floor"`
}

func (h *handler) createUnit(w http.ResponseWriter, r *http.Request) {
	buildingID, err := pathUUID(r, "buildingID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req createUnitRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	unit, err := h.buildings.CreateUnit(r.Context(), tenantSlug(r), buildingID, req.Label, req.Floor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, unitToResponse(unit))
}

func (h *handler) listUnits(w http.ResponseWriter, r *http.Request) {
	buildingID, err := pathUUID(r, "buildingID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	units, err := h.buildings.ListUnits(r.Context(), tenantSlug(r), buildingID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]unitResponse, 0, len(units))
	for _, u := range units {
		resp = append(resp, unitToResponse(u))
	}
	writeJSON(w, http.StatusOK, resp)
}

type addResidentRequest struct {
	UserID uuid.UUID `json:"user_id"`
	Role   string    `json:"role"`
}

func (h *handler) addResident(w http.ResponseWriter, r *http.Request) {
	unitID, err := pathUUID(r, "unitID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req addResidentRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	err = h.buildings.AddResident(r.Context(), tenantSlug(r), unitID, req.UserID, models.UnitMemberRole(req.Role))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createFeeTemplateRequest struct {
	BuildingID *uuid.UUID      `json:"building_id"`
	Name       string          `json:"name"`
	Amount     decimal.Decimal `json:"amount"`
	Frequency  string          `json:"frequency"`
}

func (h *handler) createFeeTemplate(w http.ResponseWriter, r *http.Request) {
	var req createFeeTemplateRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	fee, err := h.buildings.CreateFeeTemplate(r.Context(), tenantSlug(r), buildings.NewFeeTemplate{
		BuildingID: req.BuildingID,
		Name:       req.Name,
		Amount:     req.Amount,
		Frequency:  models.FeeFrequency(req.Frequency),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, feeTemplateResponse{
		ID:         fee.ID,
		BuildingID: fee.BuildingID,
		Name:       fee.Name,
		Amount:     fee.Amount,
		Frequency:  string(fee.Frequency),
		Active:     fee.Active,
	})
}
