package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionKind is the direction of a ledger entry.
type TransactionKind string

const (
	TransactionIncome  TransactionKind = "income"
	TransactionExpense TransactionKind = "expense"
)

// FinancialTransaction is an append-only ledger entry for a building.
type FinancialTransaction struct {
	ID          uuid.UUID
	BuildingID  uuid.UUID
	Kind        TransactionKind
	Amount      decimal.Decimal // always positive; Kind gives the sign
	Description string
	OccurredAt  time.Time
	ActorID     *uuid.UUID
	CreatedAt   time.Time
}

// Signed returns the amount with the sign applied to the running balance.
func (t *FinancialTransaction) Signed() decimal.Decimal {
	if t.Kind == TransactionExpense {
		return t.Amount.Neg()
	}
	return t.Amount
}

// BuildingFinancials is the denormalised running balance of a building.
type BuildingFinancials struct {
	BuildingID     uuid.UUID
	CurrentBalance decimal.Decimal
	UpdatedAt      time.Time
}
