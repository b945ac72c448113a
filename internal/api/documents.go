package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/xard1993/komun-api/internal/auth"
	"github.com/xard1993/komun-api/internal/budget"
)

// multipartMemory is the part of an upload kept in memory before spilling to disk.
const multipartMemory = 4 << 20

func (h *handler) listDocuments(w http.ResponseWriter, r *http.Request) {
	periodID, err := pathUUID(r, "periodID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	docs, err := h.budgets.ListDocuments(r.Context(), tenantSlug(r), periodID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		resp = append(resp, documentToResponse(d))
	}
	writeJSON(w, http.StatusOK, resp)
}

// attachDocument accepts a multipart upload with the content in the "file" field.
func (h *handler) attachDocument(w http.ResponseWriter, r *http.Request) {
	periodID, err := pathUUID(r, "periodID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, r, uploadError(err))
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Failed to remove multipart temp files")
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: file field is required", errMalformedRequest))
		return
	}
	defer file.Close()

	in := budget.NewDocument{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	}
	if principal := auth.PrincipalFromContext(r.Context()); principal != nil {
		in.UploadedBy = &principal.UserID
	}

	doc, err := h.budgets.AttachDocument(r.Context(), tenantSlug(r), periodID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, documentToResponse(doc))
}

func uploadError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return err
	}
	return fmt.Errorf("%w: %w", errMalformedRequest, err)
}

func (h *handler) downloadDocument(w http.ResponseWriter, r *http.Request) {
	periodID, err := pathUUID(r, "periodID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	documentID, err := pathUUID(r, "documentID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	doc, body, err := h.budgets.OpenDocument(r.Context(), tenantSlug(r), periodID, documentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Filename}))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, body); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Str("document_id", doc.ID.String()).Msg("Document download interrupted")
	}
}

func (h *handler) deleteDocument(w http.ResponseWriter, r *http.Request) {
	periodID, err := pathUUID(r, "periodID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	documentID, err := pathUUID(r, "documentID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.budgets.DeleteDocument(r.Context(), tenantSlug(r), periodID, documentID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
