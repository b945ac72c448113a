package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/xard1993/komun-api/internal/auth"
	"github.com/xard1993/komun-api/internal/budget"
	"github.com/xard1993/komun-api/internal/buildings"
	"github.com/xard1993/komun-api/internal/provisioning"
	"github.com/xard1993/komun-api/internal/storage"
	"github.com/xard1993/komun-api/internal/store"
	"github.com/xard1993/komun-api/internal/tenancy"
)

// maxJSONBody caps JSON request bodies.
const maxJSONBody = 1 << 20

var errMalformedRequest = errors.New("malformed request")

// APIError is the body of every error response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error APIError `json:"error"`
}

type errorClass struct {
	target error
	status int
	code   string
}

// errorClasses maps domain sentinels to HTTP status codes, first match wins.
var errorClasses = []errorClass{
	{errMalformedRequest, http.StatusBadRequest, "malformed_request"},
	{tenancy.ErrInvalidTenantIdentifier, http.StatusBadRequest, "invalid_tenant"},
	{budget.ErrInvalidArgument, http.StatusBadRequest, "invalid_argument"},
	{buildings.ErrInvalidArgument, http.StatusBadRequest, "invalid_argument"},
	{provisioning.ErrInvalidTenant, http.StatusBadRequest, "invalid_argument"},

	{auth.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
	{auth.ErrForbidden, http.StatusForbidden, "forbidden"},

	{budget.ErrTokenNotFound, http.StatusNotFound, "token_not_found"},
	{store.ErrTenantNotFound, http.StatusNotFound, "not_found"},
	{store.ErrUserNotFound, http.StatusNotFound, "not_found"},
	{store.ErrBuildingNotFound, http.StatusNotFound, "not_found"},
	{store.ErrUnitNotFound, http.StatusNotFound, "not_found"},
	{store.ErrPeriodNotFound, http.StatusNotFound, "not_found"},
	{store.ErrLineNotFound, http.StatusNotFound, "not_found"},
	{store.ErrApprovalNotFound, http.StatusNotFound, "not_found"},
	{store.ErrDocumentNotFound, http.StatusNotFound, "not_found"},
	{storage.ErrNotFound, http.StatusNotFound, "not_found"},

	{budget.ErrConflictingResponse, http.StatusConflict, "conflicting_response"},
	{budget.ErrInvalidStateTransition, http.StatusConflict, "invalid_state_transition"},
	{store.ErrPeriodAlreadyExists, http.StatusConflict, "already_exists"},
	{store.ErrTenantAlreadyExists, http.StatusConflict, "already_exists"},
	{store.ErrUserAlreadyExists, http.StatusConflict, "already_exists"},
}

func classify(err error) (int, string) {
	for _, c := range errorClasses {
		if errors.Is(err, c.target) {
			return c.status, c.code
		}
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge, "too_large"
	}
	return http.StatusInternalServerError, "internal"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// headers are gone, nothing left to tell the client
		log.Debug().Err(err).Msg("Failed to encode response")
	}
}

// writeError translates err to a status code. Server errors are logged with the request
// logger and their detail is not returned.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)

	message := err.Error()
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Request failed")
		message = "internal error"
		if errors.Is(err, provisioning.ErrProvisioningFailed) {
			message = "tenant provisioning did not complete, retry later"
		}
	} else {
		zerolog.Ctx(r.Context()).Debug().Err(err).Int("status", status).Msg("Request rejected")
	}

	writeJSON(w, status, errorResponse{Error: APIError{Code: code, Message: message}})
}

// decodeJSON reads a JSON body into v. An empty body is allowed when optional is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return err
		}
		return fmt.Errorf("%w: %w", errMalformedRequest, err)
	}
	return nil
}

// pathUUID parses a UUID route parameter.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s %q is not a valid id", errMalformedRequest, name, raw)
	}
	return id, nil
}
