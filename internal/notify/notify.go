package notify

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/xard1993/komun-api/internal/models"
)

// ErrInvalidRecipient is returned for notices that can never be delivered.
var ErrInvalidRecipient = errors.New("invalid notice recipient")

// PeriodMeta describes the budget period a notice refers to.
type PeriodMeta struct {
	ID           uuid.UUID
	Name         string
	Year         int
	BuildingName string
}

// Notice asks one unit member to approve or reject a budget.
type Notice struct {
	TenantSlug string
	Recipient  models.Recipient
	UnitLabel  string
	Token      string
	Period     PeriodMeta
	Share      decimal.Decimal
}

// Sender delivers approval notices.
type Sender interface {
	SendApprovalNotice(ctx context.Context, notice Notice) error
}

// ApprovalLink renders the public approval URL carried by a notice.
func ApprovalLink(baseURL string, n Notice) string {
	q := url.Values{}
	q.Set("token", n.Token)
	return fmt.Sprintf("%s/public/tenants/%s/budget-periods/%s/approval?%s",
		baseURL, url.PathEscape(n.TenantSlug), n.Period.ID, q.Encode())
}

// LogSender writes notices to the log instead of delivering them.
type LogSender struct {
	BaseURL string
}

var _ Sender = (*LogSender)(nil)

func (s *LogSender) SendApprovalNotice(ctx context.Context, n Notice) error {
	if n.Recipient.Email == "" {
		return ErrInvalidRecipient
	}

	log.Info().
		Str("tenant", n.TenantSlug).
		Str("email", n.Recipient.Email).
		Str("unit", n.UnitLabel).
		Str("period", n.Period.Name).
		Int("year", n.Period.Year).
		Str("share", n.Share.StringFixed(2)).
		Str("link", ApprovalLink(s.BaseURL, n)).
		Msg("Approval notice")

	return nil
}
