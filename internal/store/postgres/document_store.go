package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/xard1993/komun-api/internal/models"
	"github.com/xard1993/komun-api/internal/store"
)

const documentColumns = `budget_document_id, budget_period_id, filename, content_type, storage_key, size_bytes, uploaded_by, created_at`

// InsertDocument records a document attached to a budget period.
func (s *BuildingStore) InsertDocument(ctx context.Context, d *models.BudgetDocument) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO budget_documents (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, d.ID, d.BudgetPeriodID, d.Filename, d.ContentType, d.StorageKey, d.Size, d.UploadedBy, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", mapPostgresError(err))
	}
	return nil
}

// GetDocument retrieves a document record by ID.
func (s *BuildingStore) GetDocument(ctx context.Context, documentID uuid.UUID) (*models.BudgetDocument, error) {
	d, err := scanDocument(s.q.QueryRow(ctx, `SELECT `+documentColumns+` FROM budget_documents WHERE budget_document_id = $1`, documentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", mapPostgresError(err))
	}
	return d, nil
}

// ListDocuments returns the documents of a period, oldest first.
func (s *BuildingStore) ListDocuments(ctx context.Context, periodID uuid.UUID) ([]*models.BudgetDocument, error) {
	rows, err := s.q.Query(ctx, `SELECT `+documentColumns+` FROM budget_documents WHERE budget_period_id = $1 ORDER BY created_at`, periodID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var docs []*models.BudgetDocument
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}

	return docs, nil
}

// DeleteDocument removes a document record. The stored content is not touched.
func (s *BuildingStore) DeleteDocument(ctx context.Context, documentID uuid.UUID) error {
	result, err := s.q.Exec(ctx, `DELETE FROM budget_documents WHERE budget_document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", mapPostgresError(err))
	}
	if result.RowsAffected() == 0 {
		return store.ErrDocumentNotFound
	}
	return nil
}

func scanDocument(row pgx.Row) (*models.BudgetDocument, error) {
	var d models.BudgetDocument
	if err := row.Scan(
		&d.ID,
		&d.BudgetPeriodID,
		&d.Filename,
		&d.ContentType,
		&d.StorageKey,
		&d.Size,
		&d.UploadedBy,
		&d.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &d, nil
}
