package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xard1993/komun-api/internal/models"
	"github.com/xard1993/komun-api/internal/store"
)

// NewTransaction describes a ledger entry to record.
type NewTransaction struct {
	BuildingID  uuid.UUID
	Kind        models.TransactionKind
	Amount      decimal.Decimal
	Description string
	OccurredAt  time.Time
	ActorID     *uuid.UUID
}

// RecordTransaction appends a ledger entry and moves the building balance in the same
// transaction. Amounts are positive; Kind gives the direction.
func (s *Service) RecordTransaction(ctx context.Context, slug string, in NewTransaction) (*models.BuildingFinancials, error) {
	if in.Kind != models.TransactionIncome && in.Kind != models.TransactionExpense {
		return nil, fmt.Errorf("%w: unknown transaction kind %q", ErrInvalidArgument, in.Kind)
	}
	if !in.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidArgument)
	}

	now := s.now()
	if in.OccurredAt.IsZero() {
		in.OccurredAt = now
	}

	var financials *models.BuildingFinancials
	err := s.tenants.InTenant(ctx, slug, func(ctx context.Context, bs store.BuildingStore) error {
		if _, err := bs.GetBuilding(ctx, in.BuildingID); err != nil {
			return err
		}
		var err error
		financials, err = bs.InsertTransaction(ctx, &models.FinancialTransaction{
			ID:          uuid.Must(uuid.NewV7()),
			BuildingID:  in.BuildingID,
			Kind:        in.Kind,
			Amount:      in.Amount,
			Description: in.Description,
			OccurredAt:  in.OccurredAt,
			ActorID:     in.ActorID,
			CreatedAt:   now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return financials, nil
}

// Balance returns the running balance of a building, zero if nothing was recorded yet.
func (s *Service) Balance(ctx context.Context, slug string, buildingID uuid.UUID) (*models.BuildingFinancials, error) {
	var financials *models.BuildingFinancials
	err := s.tenants.InTenant(ctx, slug, func(ctx context.Context, bs store.BuildingStore) error {
		var err error
		financials, err = bs.EnsureFinancials(ctx, buildingID)
		return err
	})
	return financials, err
}

// ListTransactions returns the ledger entries of a building in occurrence order.
func (s *Service) ListTransactions(ctx context.Context, slug string, buildingID uuid.UUID) ([]*models.FinancialTransaction, error) {
	var txns []*models.FinancialTransaction
	err := s.tenants.InTenant(ctx, slug, func(ctx context.Context, bs store.BuildingStore) error {
		if _, err := bs.GetBuilding(ctx, buildingID); err != nil {
			return err
		}
		var err error
		txns, err = bs.ListTransactions(ctx, buildingID)
		return err
	})
	return txns, err
}
