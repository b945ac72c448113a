package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xard1993/komun-api/internal/models"
)

// Sentinel errors for tenant scoped operations
var (
	ErrBuildingNotFound    = errors.New("building not found")
	ErrUnitNotFound        = errors.New("unit not found")
	ErrPeriodNotFound      = errors.New("budget period not found")
	ErrPeriodAlreadyExists = errors.New("budget period already exists for this year")
	ErrLineNotFound        = errors.New("budget line not found")
	ErrApprovalNotFound    = errors.New("budget approval not found")
	ErrDocumentNotFound    = errors.New("budget document not found")
)

// TenantScope runs work against one tenant's data inside a single transaction.
// The BuildingStore handed to fn is only valid until fn returns.
type TenantScope interface {
	InTenant(ctx context.Context, slug string, fn func(ctx context.Context, bs BuildingStore) error) error
}

// BuildingStore defines the tenant scoped storage operations. Implementations are bound to
// one tenant and one transaction.
type BuildingStore interface {
	// Buildings, units and residents
	CreateBuilding(ctx context.Context, building *models.Building) error
	GetBuilding(ctx context.Context, buildingID uuid.UUID) (*models.Building, error)
	CreateUnit(ctx context.Context, unit *models.Unit) error
	ListUnits(ctx context.Context, buildingID uuid.UUID) ([]*models.Unit, error)
	CountUnits(ctx context.Context, buildingID uuid.UUID) (int, error)
	AddUnitMember(ctx context.Context, member *models.UnitMember) error

	// ListRecipients resolves the members of every unit of a building to users in the
	// shared schema. Units without members contribute no rows.
	ListRecipients(ctx context.Context, buildingID uuid.UUID) ([]models.Recipient, error)

	// Fee templates
	CreateFeeTemplate(ctx context.Context, fee *models.FeeTemplate) error

	// ListFeeTemplates returns the active templates scoped to the building or to every building.
	ListFeeTemplates(ctx context.Context, buildingID uuid.UUID) ([]*models.FeeTemplate, error)

	// Ledger
	// EnsureFinancials returns the running balance of a building, creating a zero row if missing.
	EnsureFinancials(ctx context.Context, buildingID uuid.UUID) (*models.BuildingFinancials, error)

	// InsertTransaction appends a ledger entry and moves the running balance in the same transaction.
	InsertTransaction(ctx context.Context, txn *models.FinancialTransaction) (*models.BuildingFinancials, error)
	ListTransactions(ctx context.Context, buildingID uuid.UUID) ([]*models.FinancialTransaction, error)

	// Budget periods
	// CreatePeriod returns ErrPeriodAlreadyExists if the building already has a period for the year.
	CreatePeriod(ctx context.Context, period *models.BudgetPeriod) error
	GetPeriod(ctx context.Context, periodID uuid.UUID) (*models.BudgetPeriod, error)

	// LockPeriod reads a period and holds a row lock until the transaction ends.
	LockPeriod(ctx context.Context, periodID uuid.UUID) (*models.BudgetPeriod, error)

	// LatestPriorPeriod returns the most recent period of the building before year.
	// Returns ErrPeriodNotFound if there is none.
	LatestPriorPeriod(ctx context.Context, buildingID uuid.UUID, year int) (*models.BudgetPeriod, error)
	ListPeriods(ctx context.Context, buildingID uuid.UUID) ([]*models.BudgetPeriod, error)

	// UpdatePeriod persists status and lifecycle timestamps.
	UpdatePeriod(ctx context.Context, period *models.BudgetPeriod) error

	// Budget lines
	InsertLine(ctx context.Context, line *models.BudgetLine) error
	ListLines(ctx context.Context, periodID uuid.UUID) ([]*models.BudgetLine, error)
	UpdateLineAmount(ctx context.Context, lineID uuid.UUID, amount decimal.Decimal) error

	// Contributions
	UpsertContribution(ctx context.Context, c *models.BudgetUnitContribution) error
	ListContributions(ctx context.Context, periodID uuid.UUID) ([]*models.BudgetUnitContribution, error)

	// Approvals
	CountApprovals(ctx context.Context, periodID uuid.UUID) (int, error)
	InsertApproval(ctx context.Context, approval *models.BudgetApproval) error

	// GetApprovalByToken locks the approval row holding token.
	// Returns ErrApprovalNotFound if no row holds the token.
	GetApprovalByToken(ctx context.Context, token string) (*models.BudgetApproval, error)
	MarkApproved(ctx context.Context, approvalID uuid.UUID, at time.Time) error
	MarkRejected(ctx context.Context, approvalID uuid.UUID, at time.Time, reason string) error

	// CountApprovedUnits counts distinct units with an approval recorded for the period.
	CountApprovedUnits(ctx context.Context, periodID uuid.UUID) (int, error)
	ListApprovals(ctx context.Context, periodID uuid.UUID) ([]*models.BudgetApproval, error)

	// Documents
	InsertDocument(ctx context.Context, doc *models.BudgetDocument) error
	GetDocument(ctx context.Context, documentID uuid.UUID) (*models.BudgetDocument, error)
	ListDocuments(ctx context.Context, periodID uuid.UUID) ([]*models.BudgetDocument, error)
	DeleteDocument(ctx context.Context, documentID uuid.UUID) error
}
