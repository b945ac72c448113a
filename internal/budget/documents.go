package budget

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/xard1993/komun-api/internal/models"
	"github.com/xard1993/komun-api/internal/store"
)

// NewDocument describes a file to attach to a budget period.
type NewDocument struct {
	Filename    string
	ContentType string
	Body        io.Reader
	UploadedBy  *uuid.UUID
}

func documentKey(slug string, periodID, documentID uuid.UUID) string {
	return path.Join(slug, "budget-periods", periodID.String(), documentID.String())
}

// AttachDocument stores the file and records it against the period. If the record cannot
// be written the stored blob is removed again.
func (s *Service) AttachDocument(ctx context.Context, slug string, periodID uuid.UUID, in NewDocument) (*models.BudgetDocument, error) {
	if s.blobs == nil {
		return nil, fmt.Errorf("document storage is not configured")
	}
	if in.Filename == "" || in.Body == nil {
		return nil, fmt.Errorf("%w: filename and content are required", ErrInvalidArgument)
	}
	if in.ContentType == "" {
		in.ContentType = "application/octet-stream"
	}

	// fail fast before uploading
	if _, err := s.GetPeriod(ctx, slug, periodID); err != nil {
		return nil, err
	}

	doc := &models.BudgetDocument{
		ID:             uuid.Must(uuid.NewV7()),
		BudgetPeriodID: periodID,
		Filename:       path.Base(in.Filename),
		ContentType:    in.ContentType,
		UploadedBy:     in.UploadedBy,
		CreatedAt:      s.now(),
	}
	doc.StorageKey = documentKey(slug, periodID, doc.ID)

	size, err := s.blobs.Put(ctx, doc.StorageKey, in.Body, doc.ContentType)
	if err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}
	doc.Size = size

	err = s.tenants.InTenant(ctx, slug, func(ctx context.Context, bs store.BuildingStore) error {
		return bs.InsertDocument(ctx, doc)
	})
	if err != nil {
		if delErr := s.blobs.Delete(context.WithoutCancel(ctx), doc.StorageKey); delErr != nil {
			log.Warn().Err(delErr).Str("key", doc.StorageKey).Msg("Failed to remove orphaned document blob")
		}
		return nil, err
	}

	log.Info().
		Str("tenant", slug).
		Str("period_id", periodID.String()).
		Str("document_id", doc.ID.String()).
		Int64("size", doc.Size).
		Msg("Budget document attached")

	return doc, nil
}

// ListDocuments returns the documents attached to a period.
func (s *Service) ListDocuments(ctx context.Context, slug string, periodID uuid.UUID) ([]*models.BudgetDocument, error) {
	var docs []*models.BudgetDocument
	err := s.tenants.InTenant(ctx, slug, func(ctx context.Context, bs store.BuildingStore) error {
		if _, err := bs.GetPeriod(ctx, periodID); err != nil {
			return err
		}
		var err error
		docs, err = bs.ListDocuments(ctx, periodID)
		return err
	})
	return docs, err
}

// OpenDocument returns the document record and a reader over its content.
// The caller must close the reader.
func (s *Service) OpenDocument(ctx context.Context, slug string, periodID, documentID uuid.UUID) (*models.BudgetDocument, io.ReadCloser, error) {
	if s.blobs == nil {
		return nil, nil, fmt.Errorf("document storage is not configured")
	}

	doc, err := s.getDocument(ctx, slug, periodID, documentID)
	if err != nil {
		return nil, nil, err
	}

	rc, err := s.blobs.Get(ctx, doc.StorageKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open document: %w", err)
	}
	return doc, rc, nil
}

// DeleteDocument removes the record, then the blob. A failed blob delete is only logged.
func (s *Service) DeleteDocument(ctx context.Context, slug string, periodID, documentID uuid.UUID) error {
	var doc *models.BudgetDocument
	err := s.tenants.InTenant(ctx, slug, func(ctx context.Context, bs store.BuildingStore) error {
		var err error
		doc, err = bs.GetDocument(ctx, documentID)
		if err != nil {
			return err
		}
		if doc.BudgetPeriodID != periodID {
			return store.ErrDocumentNotFound
		}
		return bs.DeleteDocument(ctx, documentID)
	})
	if err != nil {
		return err
	}

	if s.blobs != nil {
		if err := s.blobs.Delete(ctx, doc.StorageKey); err != nil {
			log.Warn().Err(err).Str("key", doc.StorageKey).Msg("Failed to delete document blob")
		}
	}
	return nil
}

func (s *Service) getDocument(ctx context.Context, slug string, periodID, documentID uuid.UUID) (*models.BudgetDocument, error) {
	var doc *models.BudgetDocument
	err := s.tenants.InTenant(ctx, slug, func(ctx context.Context, bs store.BuildingStore) error {
		var err error
		doc, err = bs.GetDocument(ctx, documentID)
		if err != nil {
			return err
		}
		if doc.BudgetPeriodID != periodID {
			return store.ErrDocumentNotFound
		}
		return nil
	})
	return doc, err
}
