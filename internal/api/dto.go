package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xard1993/komun-api/internal/budget"
	"github.com/xard1993/komun-api/internal/models"
)

type tenantResponse struct {
	ID       uuid.UUID `json:"id"`
	Slug     string    `json:"slug"`
	Name     string    `json:"name"`
	Logo     string    `json:"logo,omitempty"`
	Address  string    `json:"address,omitempty"`
	Currency string    `json:"currency"`
	State    string    `json:"state"`
}

func tenantToResponse(t *models.Tenant) tenantResponse {
	return tenantResponse{
		ID:       t.ID,
		Slug:     t.Slug,
		Name:     t.Name,
		Logo:     t.Logo,
		Address:  t.Address,
		Currency: t.Currency,
		State:    string(t.State),
	}
}

type membershipResponse struct {
	TenantID uuid.UUID `json:"tenant_id"`
	Tenant   string    `json:"tenant"`
	Role     string    `json:"role"`
}

type buildingResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func buildingToResponse(b *models.Building) buildingResponse {
	return buildingResponse{ID: b.ID, Name: b.Name, Address: b.Address, CreatedAt: b.CreatedAt}
}

type unitResponse struct {
	ID         uuid.UUID `json:"id"`
	BuildingID uuid.UUID `json:"building_id"`
	Label      string    `json:"label"`
	Floor      string    `json:"floor,omitempty"`
}

func unitToResponse(u *models.Unit) unitResponse {
	return unitResponse{ID: u.ID, BuildingID: u.BuildingID, Label: u.Label, Floor: u.Floor}
}

type feeTemplateResponse struct {
	ID         uuid.UUID       `json:"id"`
	BuildingID *uuid.UUID      `json:"building_id,omitempty"`
	Name       string          `json:"name"`
	Amount     decimal.Decimal `json:"amount"`
	Frequency  string          `json:"frequency"`
	Active     bool            `json:"active"`
}

type periodResponse struct {
	ID                uuid.UUID       `json:"id"`
	BuildingID        uuid.UUID       `json:"building_id"`
	Name              string          `json:"name"`
	Year              int             `json:"year"`
	Status            string          `json:"status"`
	OpeningBalance    decimal.Decimal `json:"opening_balance"`
	StartDate         string          `json:"start_date"`
	EndDate           string          `json:"end_date"`
	SentForApprovalAt *time.Time      `json:"sent_for_approval_at,omitempty"`
	ApprovedAt        *time.Time      `json:"approved_at,omitempty"`
	ClosedAt          *time.Time      `json:"closed_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

func periodToResponse(p *models.BudgetPeriod) periodResponse {
	return periodResponse{
		ID:                p.ID,
		BuildingID:        p.BuildingID,
		Name:              p.Name,
		Year:              p.Year,
		Status:            string(p.Status),
		OpeningBalance:    p.OpeningBalance,
		StartDate:         p.StartDate.Format(time.DateOnly),
		EndDate:           p.EndDate.Format(time.DateOnly),
		SentForApprovalAt: p.SentForApprovalAt,
		ApprovedAt:        p.ApprovedAt,
		ClosedAt:          p.ClosedAt,
		CreatedAt:         p.CreatedAt,
	}
}

type lineResponse struct {
	ID          uuid.UUID       `json:"id"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	SortOrder   int             `json:"sort_order"`
}

func lineToResponse(l *models.BudgetLine) lineResponse {
	return lineResponse{
		ID:          l.ID,
		Category:    string(l.Category),
		Description: l.Description,
		Amount:      l.Amount,
		SortOrder:   l.SortOrder,
	}
}

type contributionResponse struct {
	UnitID uuid.UUID       `json:"unit_id"`
	Amount decimal.Decimal `json:"amount"`
}

type sendResponse struct {
	Outcome      budget.Outcome `json:"outcome"`
	TokensIssued int            `json:"tokens_issued"`
	NoticesSent  int            `json:"notices_sent"`
}

type approvalResponse struct {
	Outcome           budget.Outcome `json:"outcome"`
	PeriodStatus      string         `json:"period_status"`
	ApprovedUnits     int            `json:"approved_units"`
	RequiredApprovals int            `json:"required_approvals"`
	TotalUnits        int            `json:"total_units"`
	QuorumReached     bool           `json:"quorum_reached"`
}

func approvalToResponse(res budget.ApprovalResult) approvalResponse {
	return approvalResponse{
		Outcome:           res.Outcome,
		PeriodStatus:      string(res.PeriodStatus),
		ApprovedUnits:     res.ApprovedUnits,
		RequiredApprovals: res.RequiredApprovals,
		TotalUnits:        res.TotalUnits,
		QuorumReached:     res.QuorumReached,
	}
}

type summaryResponse struct {
	PeriodID          uuid.UUID `json:"period_id"`
	Status            string    `json:"status"`
	TotalUnits        int       `json:"total_units"`
	Approved          int       `json:"approved"`
	Rejected          int       `json:"rejected"`
	Pending           int       `json:"pending"`
	RequiredApprovals int       `json:"required_approvals"`
}

type balanceResponse struct {
	BuildingID     uuid.UUID       `json:"building_id"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func balanceToResponse(f *models.BuildingFinancials) balanceResponse {
	return balanceResponse{BuildingID: f.BuildingID, CurrentBalance: f.CurrentBalance, UpdatedAt: f.UpdatedAt}
}

type transactionResponse struct {
	ID          uuid.UUID       `json:"id"`
	Kind        string          `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	OccurredAt  time.Time       `json:"occurred_at"`
	ActorID     *uuid.UUID      `json:"actor_id,omitempty"`
}

type documentResponse struct {
	ID          uuid.UUID  `json:"id"`
	Filename    string     `json:"filename"`
	ContentType string     `json:"content_type"`
	Size        int64      `json:"size"`
	UploadedBy  *uuid.UUID `json:"uploaded_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func documentToResponse(d *models.BudgetDocument) documentResponse {
	return documentResponse{
		ID:          d.ID,
		Filename:    d.Filename,
		ContentType: d.ContentType,
		Size:        d.Size,
		UploadedBy:  d.UploadedBy,
		CreatedAt:   d.CreatedAt,
	}
}
