package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BudgetStatus is the lifecycle state of a budget period.
type BudgetStatus string

const (
	BudgetDraft    BudgetStatus = "draft"
	BudgetProposed BudgetStatus = "proposed"
	BudgetApproved BudgetStatus = "approved"
	BudgetClosed   BudgetStatus = "closed"
)

// BudgetPeriod is one building's budget for a calendar year.
type BudgetPeriod struct {
	ID                uuid.UUID
	BuildingID        uuid.UUID
	Name              string
	Year              int
	Status            BudgetStatus
	OpeningBalance    decimal.Decimal
	StartDate         time.Time
	EndDate           time.Time
	SentForApprovalAt *time.Time
	ApprovedAt        *time.Time
	ClosedAt          *time.Time
	CreatedAt         time.Time
}

// LineCategory classifies a budget line.
type LineCategory string

const (
	LineOneTime   LineCategory = "one_time"
	LineRecurring LineCategory = "recurring"
	LineExtras    LineCategory = "extras"
)

// Valid reports whether c is a known category.
func (c LineCategory) Valid() bool {
	return c == LineOneTime || c == LineRecurring || c == LineExtras
}

const (
	// UnitContributionsDescription names the synthetic aggregate income line.
	UnitContributionsDescription = "Unit contributions"
	// UnitContributionsSortOrder keeps the synthetic line ahead of regular lines.
	UnitContributionsSortOrder = -1
)

// BudgetLine is one line item of a budget period.
type BudgetLine struct {
	ID             uuid.UUID
	BudgetPeriodID uuid.UUID
	Category       LineCategory
	Description    string
	Amount         decimal.Decimal
	SortOrder      int
	CreatedAt      time.Time
}

// IsUnitContributions reports whether l is the synthetic contributions line.
func (l *BudgetLine) IsUnitContributions() bool {
	return l.SortOrder == UnitContributionsSortOrder && l.Description == UnitContributionsDescription
}

// BudgetUnitContribution is a unit's yearly share for a period.
type BudgetUnitContribution struct {
	BudgetPeriodID uuid.UUID
	UnitID         uuid.UUID
	Amount         decimal.Decimal
}

// BudgetApproval is a unit's one-time approval capability and its response.
// ApprovedAt and RejectedAt are mutually exclusive and terminal.
type BudgetApproval struct {
	ID              uuid.UUID
	BudgetPeriodID  uuid.UUID
	UnitID          uuid.UUID
	Token           string
	ApprovedAt      *time.Time
	RejectedAt      *time.Time
	RejectionReason *string
	CreatedAt       time.Time
}

// Pending reports whether the unit has not responded yet.
func (a *BudgetApproval) Pending() bool {
	return a.ApprovedAt == nil && a.RejectedAt == nil
}

// BudgetDocument is a file attached to a budget period. Content lives in storage under StorageKey.
type BudgetDocument struct {
	ID             uuid.UUID
	BudgetPeriodID uuid.UUID
	Filename       string
	ContentType    string
	StorageKey     string
	Size           int64
	UploadedBy     *uuid.UUID
	CreatedAt      time.Time
}
