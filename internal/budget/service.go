package budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/xard1993/komun-api/internal/models"
	"github.com/xard1993/komun-api/internal/notify"
	"github.com/xard1993/komun-api/internal/storage"
	"github.com/xard1993/komun-api/internal/store"
	"github.com/xard1993/komun-api/internal/telemetry"
)

// Notifier delivers approval notices best-effort and reports how many went out.
type Notifier interface {
	Dispatch(ctx context.Context, notices []notify.Notice) int
}

// Outcome tells callers whether an operation changed state or found it already done.
type Outcome string

const (
	Applied     Outcome = "applied"
	AlreadyDone Outcome = "already_done"
)

// Service runs the budget period lifecycle for every tenant.
type Service struct {
	tenants  store.TenantScope
	notifier Notifier
	blobs    storage.Storage
	now      func() time.Time
}

// NewService creates a budget service. notifier and blobs may be nil when notices or
// documents are not needed.
func NewService(tenants store.TenantScope, notifier Notifier, blobs storage.Storage) *Service {
	return &Service{
		tenants:  tenants,
		notifier: notifier,
		blobs:    blobs,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateBudgetPeriod creates the draft budget of a building for year. It snapshots the
// building balance, seeds one contribution per unit from the active fee templates, adds the
// synthetic contributions line and carries forward the recurring lines of the latest prior
// period. Returns store.ErrPeriodAlreadyExists if the building already has a period for year.
func (s *Service) CreateBudgetPeriod(ctx context.Context, slug string, buildingID uuid.UUID, name string, year int) (*models.BudgetPeriod, error) {
	if year < 1900 || year > 9999 {
		return nil, fmt.Errorf("%w: year %d out of range", ErrInvalidArgument, year)
	}
	if name == "" {
		name = fmt.Sprintf("Budget %d", year)
	}

	var period *models.BudgetPeriod
	carried := 0

	err := s.tenants.InTenant(ctx, slug, func(ctx context.Context, bs store.BuildingStore) error {
		if _, err := bs.GetBuilding(ctx, buildingID); err != nil {
			return err
		}

		financials, err := bs.EnsureFinancials(ctx, buildingID)
		if err != nil {
			return err
		}

		now := s.now()
		period = &models.BudgetPeriod{
			ID:             uuid.Must(uuid.NewV7()),
			BuildingID:     buildingID,
			Name:           name,
			Year:           year,
			Status:         models.BudgetDraft,
			OpeningBalance: financials.CurrentBalance,
			StartDate:      time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
			EndDate:        time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC),
			CreatedAt:      now,
		}
		if err := bs.CreatePeriod(ctx, period); err != nil {
			return err
		}

		fees, err := bs.ListFeeTemplates(ctx, buildingID)
		if err != nil {
			return err
		}
		perUnit := YearlyPerUnit(fees, buildingID)

		units, err := bs.ListUnits(ctx, buildingID)
		if err != nil {
			return err
		}
		for _, u := range units {
			if err := bs.UpsertContribution(ctx, &models.BudgetUnitContribution{
				BudgetPeriodID: period.ID,
				UnitID:         u.ID,
				Amount:         perUnit,
			}); err != nil {
				return err
			}
		}

		total := perUnit.Mul(decimal.NewFromInt(int64(len(units))))
		if err := bs.InsertLine(ctx, unitContributionsLine(period.ID, total, now)); err != nil {
			return err
		}

		prior, err := bs.LatestPriorPeriod(ctx, buildingID, year)
		if errors.Is(err, store.ErrPeriodNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		priorLines, err := bs.ListLines(ctx, prior.ID)
		if err != nil {
			return err
		}
		for _, l := range CarryForward(priorLines, period.ID, now) {
			if err := bs.InsertLine(ctx, l); err != nil {
				return err
			}
			carried++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	telemetry.GetMetrics().BudgetPeriodsCreatedTotal.Add(ctx, 1)
	log.Info().
		Str("tenant", slug).
		Str("building_id", buildingID.String()).
		Str("period_id", period.ID.String()).
		Int("year", year).
		Int("carried_lines", carried).
		Msg("Budget period created")

	return period, nil
}

// SendResult reports what SendForApproval did.
type SendResult struct {
	Outcome      Outcome
	TokensIssued int
	NoticesSent  int
}

// SendForApproval issues one approval token per unit, moves the period to proposed and
// notifies every unit member. If tokens were already issued for the period nothing is
// generated or sent again and the outcome is AlreadyDone. Otherwise the period must be draft.
func (s *Service) SendForApproval(ctx context.Context, slug string, periodID uuid.UUID) (SendResult, error) {
	result := SendResult{Outcome: Applied}
	var notices []notify.Notice

	err := s.tenants.InTenant(ctx, slug, func(ctx context.Context, bs store.BuildingStore) error {
		period, err := bs.LockPeriod(ctx, periodID)
		if err != nil {
			return err
		}

		issued, err := bs.CountApprovals(ctx, periodID)
		if err != nil {
			return err
		}
		if issued > 0 {
			result.Outcome = AlreadyDone
			return nil
		}

		if period.Status != models.BudgetDraft {
			return fmt.Errorf("%w: cannot send a %s period for approval", ErrInvalidStateTransition, period.Status)
		}

		building, err := bs.GetBuilding(ctx, period.BuildingID)
		if err != nil {
			return err
		}

		units, err := bs.ListUnits(ctx, period.BuildingID)
		if err != nil {
			return err
		}

		shares, err := unitShares(ctx, bs, periodID, len(units))
		if err != nil {
			return err
		}

		now := s.now()
		tokens := make(map[uuid.UUID]string, len(units))
		labels := make(map[uuid.UUID]string, len(units))
		for _, u := range units {
			token, err := NewToken()
			if err != nil {
				return err
			}
			if err := bs.InsertApproval(ctx, &models.BudgetApproval{
				ID:             uuid.Must(uuid.NewV7()),
				BudgetPeriodID: periodID,
				UnitID:         u.ID,
				Token:          token,
				CreatedAt:      now,
			}); err != nil {
				return err
			}
			tokens[u.ID] = token
			labels[u.ID] = u.Label
		}
		result.TokensIssued = len(tokens)

		period.Status = models.BudgetProposed
		period.SentForApprovalAt = &now
		if err := bs.UpdatePeriod(ctx, period); err != nil {
			return err
		}

		recipients, err := bs.ListRecipients(ctx, period.BuildingID)
		if err != nil {
			return err
		}

		meta := notify.PeriodMeta{ID: period.ID, Name: period.Name, Year: period.Year, BuildingName: building.Name}
		for _, r := range recipients {
			token, ok := tokens[r.UnitID]
			if !ok {
				continue
			}
			notices = append(notices, notify.Notice{
				TenantSlug: slug,
				Recipient:  r,
				UnitLabel:  labels[r.UnitID],
				Token:      token,
				Period:     meta,
				Share:      shares.forUnit(r.UnitID),
			})
		}
		return nil
	})
	if err != nil {
		return SendResult{}, err
	}

	if result.Outcome == AlreadyDone {
		log.Debug().Str("tenant", slug).Str("period_id", periodID.String()).Msg("Approval tokens already issued")
		return result, nil
	}

	telemetry.GetMetrics().ApprovalTokensIssuedTotal.Add(ctx, int64(result.TokensIssued))

	if s.notifier != nil && len(notices) > 0 {
		result.NoticesSent = s.notifier.Dispatch(ctx, notices)
	}

	log.Info().
		Str("tenant", slug).
		Str("period_id", periodID.String()).
		Int("tokens", result.TokensIssued).
		Int("notices", result.NoticesSent).
		Msg("Budget sent for approval")

	return result, nil
}

type shareTable struct {
	perUnit map[uuid.UUID]decimal.Decimal
	flat    decimal.Decimal
}

func (t shareTable) forUnit(unitID uuid.UUID) decimal.Decimal {
	if amount, ok := t.perUnit[unitID]; ok {
		return amount
	}
	return t.flat
}

// unitShares loads the contribution of each unit, falling back to an even split of the
// synthetic contributions line.
func unitShares(ctx context.Context, bs store.BuildingStore, periodID uuid.UUID, units int) (shareTable, error) {
	t := shareTable{perUnit: make(map[uuid.UUID]decimal.Decimal), flat: decimal.Zero}

	contributions, err := bs.ListContributions(ctx, periodID)
	if err != nil {
		return t, err
	}
	for _, c := range contributions {
		t.perUnit[c.UnitID] = c.Amount
	}

	lines, err := bs.ListLines(ctx, periodID)
	if err != nil {
		return t, err
	}
	for _, l := range lines {
		if l.IsUnitContributions() {
			t.flat = FlatShare(l.Amount, units)
			break
		}
	}
	return t, nil
}

// GetPeriod returns one budget period.
func (s *Service) GetPeriod(ctx context.Context, slug string, periodID uuid.UUID) (*models.BudgetPeriod, error) {
	var period *models.BudgetPeriod
	err := s.tenants.InTenant(ctx, slug, func(ctx context.Context, bs store.BuildingStore) error {
		var err error
		period, err = bs.GetPeriod(ctx, periodID)
		return err
	})
	return period, err
}

// ListPeriods returns the periods of a building, newest year first.
func (s *Service) ListPeriods(ctx context.Context, slug string, buildingID uuid.UUID) ([]*models.BudgetPeriod, error) {
	var periods []*models.BudgetPeriod
	err := s.tenants.InTenant(ctx, slug, func(ctx context.Context, bs store.BuildingStore) error {
		if _, err := bs.GetBuilding(ctx, buildingID); err != nil {
			return err
		}
		var err error
		periods, err = bs.ListPeriods(ctx, buildingID)
		return err
	})
	return periods, err
}

// SetUnitContribution overrides one unit's yearly contribution on a draft period and
// recomputes the synthetic contributions line as the sum of all unit rows.
func (s *Service) SetUnitContribution(ctx context.Context, slug string, periodID, unitID uuid.UUID, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: contribution must not be negative", ErrInvalidArgument)
	}

	return s.tenants.InTenant(ctx, slug, func(ctx context.Context, bs store.BuildingStore) error {
		period, err := bs.LockPeriod(ctx, periodID)
		if err != nil {
			return err
		}
		if period.Status != models.BudgetDraft {
			return fmt.Errorf("%w: contributions are fixed once a period is %s", ErrInvalidStateTransition, period.Status)
		}

		units, err := bs.ListUnits(ctx, period.BuildingID)
		if err != nil {
			return err
		}
		found := false
		for _, u := range units {
			if u.ID == unitID {
				found = true
				break
			}
		}
		if !found {
			return store.ErrUnitNotFound
		}

		if err := bs.UpsertContribution(ctx, &models.BudgetUnitContribution{
			BudgetPeriodID: periodID,
			UnitID:         unitID,
			Amount:         amount,
		}); err != nil {
			return err
		}

		contributions, err := bs.ListContributions(ctx, periodID)
		if err != nil {
			return err
		}
		total := decimal.Zero
		for _, c := range contributions {
			total = total.Add(c.Amount)
		}

		lines, err := bs.ListLines(ctx, periodID)
		if err != nil {
			return err
		}
		for _, l := range lines {
			if l.IsUnitContributions() {
				return bs.UpdateLineAmount(ctx, l.ID, total)
			}
		}
		return bs.InsertLine(ctx, unitContributionsLine(periodID, total, s.now()))
	})
}

// ListContributions returns the per-unit contributions of a period.
func (s *Service) ListContributions(ctx context.Context, slug string, periodID uuid.UUID) ([]*models.BudgetUnitContribution, error) {
	var contributions []*models.BudgetUnitContribution
	err := s.tenants.InTenant(ctx, slug, func(ctx context.Context, bs store.BuildingStore) error {
		if _, err := bs.GetPeriod(ctx, periodID); err != nil {
			return err
		}
		var err error
		contributions, err = bs.ListContributions(ctx, periodID)
		return err
	})
	return contributions, err
}

// NewLine describes a manually added budget line.
type NewLine struct {
	Category    models.LineCategory
	Description string
	Amount      decimal.Decimal
}

// AddBudgetLine appends a line to a draft period after the existing lines.
func (s *Service) AddBudgetLine(ctx context.Context, slug string, periodID uuid.UUID, in NewLine) (*models.BudgetLine, error) {
	if !in.Category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidArgument, in.Category)
	}
	if in.Description == "" {
		return nil, fmt.Errorf("%w: description is required", ErrInvalidArgument)
	}
	if in.Description == models.UnitContributionsDescription {
		return nil, fmt.Errorf("%w: %q is maintained automatically", ErrInvalidArgument, in.Description)
	}

	var line *models.BudgetLine
	err := s.tenants.InTenant(ctx, slug, func(ctx context.Context, bs store.BuildingStore) error {
		period, err := bs.LockPeriod(ctx, periodID)
		if err != nil {
			return err
		}
		if period.Status != models.BudgetDraft {
			return fmt.Errorf("%w: lines are fixed once a period is %s", ErrInvalidStateTransition, period.Status)
		}

		lines, err := bs.ListLines(ctx, periodID)
		if err != nil {
			return err
		}
		next := 0
		for _, l := range lines {
			if l.SortOrder >= next {
				next = l.SortOrder + 1
			}
		}

		line = &models.BudgetLine{
			ID:             uuid.Must(uuid.NewV7()),
			BudgetPeriodID: periodID,
			Category:       in.Category,
			Description:    in.Description,
			Amount:         in.Amount,
			SortOrder:      next,
			CreatedAt:      s.now(),
		}
		return bs.InsertLine(ctx, line)
	})
	if err != nil {
		return nil, err
	}
	return line, nil
}

// ListBudgetLines returns the lines of a period ordered by sort order.
func (s *Service) ListBudgetLines(ctx context.Context, slug string, periodID uuid.UUID) ([]*models.BudgetLine, error) {
	var lines []*models.BudgetLine
	err := s.tenants.InTenant(ctx, slug, func(ctx context.Context, bs store.BuildingStore) error {
		if _, err := bs.GetPeriod(ctx, periodID); err != nil {
			return err
		}
		var err error
		lines, err = bs.ListLines(ctx, periodID)
		return err
	})
	return lines, err
}

// ClosePeriod moves an approved period to closed.
func (s *Service) ClosePeriod(ctx context.Context, slug string, periodID uuid.UUID) (*models.BudgetPeriod, error) {
	var period *models.BudgetPeriod
	err := s.tenants.InTenant(ctx, slug, func(ctx context.Context, bs store.BuildingStore) error {
		var err error
		period, err = bs.LockPeriod(ctx, periodID)
		if err != nil {
			return err
		}
		if period.Status != models.BudgetApproved {
			return fmt.Errorf("%w: only approved periods can be closed, period is %s", ErrInvalidStateTransition, period.Status)
		}

		now := s.now()
		period.Status = models.BudgetClosed
		period.ClosedAt = &now
		return bs.UpdatePeriod(ctx, period)
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("tenant", slug).Str("period_id", periodID.String()).Msg("Budget period closed")
	return period, nil
}
