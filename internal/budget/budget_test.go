package budget

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xard1993/komun-api/internal/models"
	"github.com/xard1993/komun-api/internal/notify"
	"github.com/xard1993/komun-api/internal/storage"
	"github.com/xard1993/komun-api/internal/store"
	"github.com/xard1993/komun-api/internal/store/memory"
	"github.com/xard1993/komun-api/internal/tenancy"
)

const testTenant = "acme"

type recordingNotifier struct {
	mu      sync.Mutex
	calls   int
	notices []notify.Notice
}

func (n *recordingNotifier) Dispatch(ctx context.Context, notices []notify.Notice) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	n.notices = append(n.notices, notices...)
	return len(notices)
}

type fixture struct {
	svc        *Service
	tenants    *memory.Tenants
	users      *memory.TenantStore
	notifier   *recordingNotifier
	blobs      *storage.Memory
	buildingID uuid.UUID
	units      []*models.Unit
	clock      time.Time
}

// newFixture creates a tenant with one building of unitCount units.
func newFixture(t *testing.T, unitCount int) *fixture {
	t.Helper()

	f := &fixture{
		users:      memory.NewTenantStore(),
		notifier:   &recordingNotifier{},
		blobs:      storage.NewMemory(),
		buildingID: uuid.Must(uuid.NewV7()),
		clock:      time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC),
	}
	f.tenants = memory.NewTenants(f.users)
	require.NoError(t, f.tenants.AddTenant(testTenant))

	f.svc = NewService(f.tenants, f.notifier, f.blobs)
	f.svc.now = func() time.Time { return f.clock }

	f.seed(t, func(ctx context.Context, bs store.BuildingStore) error {
		if err := bs.CreateBuilding(ctx, &models.Building{ID: f.buildingID, Name: "North Tower", CreatedAt: f.clock}); err != nil {
			return err
		}
		for i := 0; i < unitCount; i++ {
			u := &models.Unit{
				ID:         uuid.Must(uuid.NewV7()),
				BuildingID: f.buildingID,
				Label:      string(rune('A'+i)) + "1",
				CreatedAt:  f.clock,
			}
			if err := bs.CreateUnit(ctx, u); err != nil {
				return err
			}
			f.units = append(f.units, u)
		}
		return nil
	})

	return f
}

func (f *fixture) seed(t *testing.T, fn func(ctx context.Context, bs store.BuildingStore) error) {
	t.Helper()
	require.NoError(t, f.tenants.InTenant(context.Background(), testTenant, fn))
}

// addResident registers a user as the owner of a unit.
func (f *fixture) addResident(t *testing.T, unit *models.Unit, email string) uuid.UUID {
	t.Helper()
	userID := uuid.Must(uuid.NewV7())
	f.users.PutUser(&models.User{ID: userID, Email: email, Name: email})
	f.seed(t, func(ctx context.Context, bs store.BuildingStore) error {
		return bs.AddUnitMember(ctx, &models.UnitMember{UnitID: unit.ID, UserID: userID, Role: models.UnitMemberOwner})
	})
	return userID
}

func (f *fixture) addFee(t *testing.T, buildingID *uuid.UUID, amount string, freq models.FeeFrequency, active bool) {
	t.Helper()
	f.seed(t, func(ctx context.Context, bs store.BuildingStore) error {
		return bs.CreateFeeTemplate(ctx, &models.FeeTemplate{
			ID:         uuid.Must(uuid.NewV7()),
			BuildingID: buildingID,
			Name:       "fee " + amount,
			Amount:     decimal.RequireFromString(amount),
			Frequency:  freq,
			Active:     active,
			CreatedAt:  f.clock,
		})
	})
}

// tokens returns the issued approval token of every unit of a period.
func (f *fixture) tokens(t *testing.T, periodID uuid.UUID) map[uuid.UUID]string {
	t.Helper()
	tokens := map[uuid.UUID]string{}
	f.seed(t, func(ctx context.Context, bs store.BuildingStore) error {
		approvals, err := bs.ListApprovals(ctx, periodID)
		if err != nil {
			return err
		}
		for _, a := range approvals {
			tokens[a.UnitID] = a.Token
		}
		return nil
	})
	return tokens
}

func (f *fixture) approvals(t *testing.T, periodID uuid.UUID) []*models.BudgetApproval {
	t.Helper()
	var approvals []*models.BudgetApproval
	f.seed(t, func(ctx context.Context, bs store.BuildingStore) error {
		var err error
		approvals, err = bs.ListApprovals(ctx, periodID)
		return err
	})
	return approvals
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestCreateBudgetPeriod_Contributions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)

	f.addFee(t, &f.buildingID, "120.00", models.FeeYearly, true)
	f.addFee(t, nil, "10.00", models.FeeMonthly, true)
	f.addFee(t, nil, "999.00", models.FeeYearly, false)
	other := uuid.Must(uuid.NewV7())
	f.seed(t, func(ctx context.Context, bs store.BuildingStore) error {
		return bs.CreateBuilding(ctx, &models.Building{ID: other, Name: "South Tower"})
	})
	f.addFee(t, &other, "50.00", models.FeeMonthly, true)

	period, err := f.svc.CreateBudgetPeriod(ctx, testTenant, f.buildingID, "", 2026)
	require.NoError(t, err)
	require.Equal(t, models.BudgetDraft, period.Status)
	require.Equal(t, "Budget 2026", period.Name)
	require.Equal(t, time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC), period.StartDate)
	require.Equal(t, time.Date(2026, time.December, 31, 0, 0, 0, 0, time.UTC), period.EndDate)
	requireDecimal(t, "0", period.OpeningBalance)

	contributions, err := f.svc.ListContributions(ctx, testTenant, period.ID)
	require.NoError(t, err)
	require.Len(t, contributions, 3)
	for _, c := range contributions {
		requireDecimal(t, "240.00", c.Amount)
	}

	lines, err := f.svc.ListBudgetLines(ctx, testTenant, period.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.True(t, lines[0].IsUnitContributions())
	require.Equal(t, models.LineRecurring, lines[0].Category)
	requireDecimal(t, "720.00", lines[0].Amount)
}

func TestCreateBudgetPeriod_NoFeeTemplates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)

	period, err := f.svc.CreateBudgetPeriod(ctx, testTenant, f.buildingID, "Budget", 2026)
	require.NoError(t, err)

	contributions, err := f.svc.ListContributions(ctx, testTenant, period.ID)
	require.NoError(t, err)
	require.Len(t, contributions, 2)
	for _, c := range contributions {
		requireDecimal(t, "0", c.Amount)
	}

	lines, err := f.svc.ListBudgetLines(ctx, testTenant, period.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1, "the contributions line is present even when zero")
	requireDecimal(t, "0", lines[0].Amount)
}

func TestCreateBudgetPeriod_CarryForward(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	f.addFee(t, &f.buildingID, "120.00", models.FeeYearly, true)
	f.addFee(t, nil, "10.00", models.FeeMonthly, true)

	priorID := uuid.Must(uuid.NewV7())
	f.seed(t, func(ctx context.Context, bs store.BuildingStore) error {
		if err := bs.CreatePeriod(ctx, &models.BudgetPeriod{
			ID: priorID, BuildingID: f.buildingID, Name: "Budget 2025", Year: 2025, Status: models.BudgetClosed,
		}); err != nil {
			return err
		}
		lines := []*models.BudgetLine{
			{Description: models.UnitContributionsDescription, Category: models.LineRecurring, Amount: decimal.RequireFromString("900.00"), SortOrder: -1},
			{Description: "Elevator maintenance", Category: models.LineRecurring, Amount: decimal.RequireFromString("500.00"), SortOrder: 0},
			{Description: "Roof repair", Category: models.LineOneTime, Amount: decimal.RequireFromString("8000.00"), SortOrder: 1},
		}
		for _, l := range lines {
			l.ID = uuid.Must(uuid.NewV7())
			l.BudgetPeriodID = priorID
			if err := bs.InsertLine(ctx, l); err != nil {
				return err
			}
		}
		return nil
	})

	period, err := f.svc.CreateBudgetPeriod(ctx, testTenant, f.buildingID, "Budget 2026", 2026)
	require.NoError(t, err)

	lines, err := f.svc.ListBudgetLines(ctx, testTenant, period.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	require.True(t, lines[0].IsUnitContributions())
	requireDecimal(t, "720.00", lines[0].Amount)

	require.Equal(t, "Elevator maintenance", lines[1].Description)
	require.Equal(t, 0, lines[1].SortOrder)
	require.Equal(t, models.LineRecurring, lines[1].Category)
	requireDecimal(t, "500.00", lines[1].Amount)
}

func TestCreateBudgetPeriod_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)

	_, err := f.svc.CreateBudgetPeriod(ctx, testTenant, f.buildingID, "", 2026)
	require.NoError(t, err)

	t.Run("duplicate year", func(t *testing.T) {
		_, err := f.svc.CreateBudgetPeriod(ctx, testTenant, f.buildingID, "", 2026)
		require.ErrorIs(t, err, store.ErrPeriodAlreadyExists)

		periods, err := f.svc.ListPeriods(ctx, testTenant, f.buildingID)
		require.NoError(t, err)
		require.Len(t, periods, 1)
	})

	t.Run("unknown building", func(t *testing.T) {
		_, err := f.svc.CreateBudgetPeriod(ctx, testTenant, uuid.New(), "", 2026)
		require.ErrorIs(t, err, store.ErrBuildingNotFound)
	})

	t.Run("invalid year", func(t *testing.T) {
		_, err := f.svc.CreateBudgetPeriod(ctx, testTenant, f.buildingID, "", 0)
		require.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("invalid slug", func(t *testing.T) {
		_, err := f.svc.CreateBudgetPeriod(ctx, "Acme Corp", f.buildingID, "", 2027)
		require.ErrorIs(t, err, tenancy.ErrInvalidTenantIdentifier)
	})

	t.Run("unknown tenant", func(t *testing.T) {
		_, err := f.svc.CreateBudgetPeriod(ctx, "globex", f.buildingID, "", 2027)
		require.ErrorIs(t, err, store.ErrTenantNotFound)
	})
}

func TestCreateBudgetPeriod_SnapshotsBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)

	_, err := f.svc.RecordTransaction(ctx, testTenant, NewTransaction{
		BuildingID: f.buildingID, Kind: models.TransactionIncome, Amount: decimal.RequireFromString("1000.00"), Description: "Fees",
	})
	require.NoError(t, err)
	_, err = f.svc.RecordTransaction(ctx, testTenant, NewTransaction{
		BuildingID: f.buildingID, Kind: models.TransactionExpense, Amount: decimal.RequireFromString("250.50"), Description: "Cleaning",
	})
	require.NoError(t, err)

	period, err := f.svc.CreateBudgetPeriod(ctx, testTenant, f.buildingID, "", 2026)
	require.NoError(t, err)
	requireDecimal(t, "749.50", period.OpeningBalance)
}

func TestSendForApproval(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	f.addFee(t, &f.buildingID, "120.00", models.FeeYearly, true)
	f.addResident(t, f.units[0], "ana@example.com")
	f.addResident(t, f.units[0], "ben@example.com")
	f.addResident(t, f.units[1], "cleo@example.com")

	period, err := f.svc.CreateBudgetPeriod(ctx, testTenant, f.buildingID, "", 2026)
	require.NoError(t, err)

	first, err := f.svc.SendForApproval(ctx, testTenant, period.ID)
	require.NoError(t, err)
	require.Equal(t, Applied, first.Outcome)
	require.Equal(t, 3, first.TokensIssued)
	require.Equal(t, 3, first.NoticesSent, "one notice per member, the unit without members gets none")

	sent, err := f.svc.GetPeriod(ctx, testTenant, period.ID)
	require.NoError(t, err)
	require.Equal(t, models.BudgetProposed, sent.Status)
	require.NotNil(t, sent.SentForApprovalAt)
	require.Equal(t, f.clock, *sent.SentForApprovalAt)

	tokens := f.tokens(t, period.ID)
	require.Len(t, tokens, 3)
	for _, n := range f.notifier.notices {
		require.Equal(t, tokens[n.Recipient.UnitID], n.Token)
		require.Equal(t, testTenant, n.TenantSlug)
		require.Equal(t, "North Tower", n.Period.BuildingName)
		requireDecimal(t, "120.00", n.Share)
	}

	// second call is a no-op
	f.clock = f.clock.Add(time.Hour)
	second, err := f.svc.SendForApproval(ctx, testTenant, period.ID)
	require.NoError(t, err)
	require.Equal(t, AlreadyDone, second.Outcome)
	require.Zero(t, second.TokensIssued)
	require.Equal(t, 1, f.notifier.calls)
	require.Len(t, f.notifier.notices, 3)
	require.Equal(t, tokens, f.tokens(t, period.ID))

	again, err := f.svc.GetPeriod(ctx, testTenant, period.ID)
	require.NoError(t, err)
	require.Equal(t, *sent.SentForApprovalAt, *again.SentForApprovalAt)
}

func TestSendForApproval_FlatShareFallback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	f.addFee(t, nil, "100.00", models.FeeYearly, true)

	period, err := f.svc.CreateBudgetPeriod(ctx, testTenant, f.buildingID, "", 2026)
	require.NoError(t, err)

	// a unit added after the period was created has no contribution row
	late := &models.Unit{ID: uuid.Must(uuid.NewV7()), BuildingID: f.buildingID, Label: "Z9"}
	f.seed(t, func(ctx context.Context, bs store.BuildingStore) error {
		return bs.CreateUnit(ctx, late)
	})
	f.addResident(t, late, "late@example.com")

	_, err = f.svc.SendForApproval(ctx, testTenant, period.ID)
	require.NoError(t, err)
	require.Len(t, f.notifier.notices, 1)
	// 200 in the contributions line spread over 3 units
	requireDecimal(t, "66.67", f.notifier.notices[0].Share)
}

func TestSendForApproval_WrongState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)

	period, err := f.svc.CreateBudgetPeriod(ctx, testTenant, f.buildingID, "", 2026)
	require.NoError(t, err)

	res, err := f.svc.SendForApproval(ctx, testTenant, period.ID)
	require.NoError(t, err)
	require.Zero(t, res.TokensIssued)

	// no tokens exist, so the period status decides
	_, err = f.svc.SendForApproval(ctx, testTenant, period.ID)
	require.ErrorIs(t, err, ErrInvalidStateTransition)

	_, err = f.svc.SendForApproval(ctx, testTenant, uuid.New())
	require.ErrorIs(t, err, store.ErrPeriodNotFound)
}

// proposedPeriod creates and sends a period for a building of unitCount units.
func proposedPeriod(t *testing.T, unitCount int) (*fixture, *models.BudgetPeriod, map[uuid.UUID]string) {
	t.Helper()
	ctx := context.Background()
	f := newFixture(t, unitCount)

	period, err := f.svc.CreateBudgetPeriod(ctx, testTenant, f.buildingID, "", 2026)
	require.NoError(t, err)
	_, err = f.svc.SendForApproval(ctx, testTenant, period.ID)
	require.NoError(t, err)

	return f, period, f.tokens(t, period.ID)
}

func TestApproveByToken_Quorum(t *testing.T) {
	ctx := context.Background()
	f, period, tokens := proposedPeriod(t, 3)

	first, err := f.svc.ApproveByToken(ctx, testTenant, period.ID, tokens[f.units[0].ID])
	require.NoError(t, err)
	require.Equal(t, Applied, first.Outcome)
	require.Equal(t, 1, first.ApprovedUnits)
	require.Equal(t, 2, first.RequiredApprovals)
	require.Equal(t, 3, first.TotalUnits)
	require.False(t, first.QuorumReached)
	require.Equal(t, models.BudgetProposed, first.PeriodStatus)

	second, err := f.svc.ApproveByToken(ctx, testTenant, period.ID, tokens[f.units[1].ID])
	require.NoError(t, err)
	require.True(t, second.QuorumReached)
	require.Equal(t, models.BudgetApproved, second.PeriodStatus)

	approved, err := f.svc.GetPeriod(ctx, testTenant, period.ID)
	require.NoError(t, err)
	require.Equal(t, models.BudgetApproved, approved.Status)
	require.NotNil(t, approved.ApprovedAt)

	third, err := f.svc.ApproveByToken(ctx, testTenant, period.ID, tokens[f.units[2].ID])
	require.NoError(t, err)
	require.Equal(t, 3, third.ApprovedUnits)
	require.False(t, third.QuorumReached, "an approved period is not promoted again")
	require.Equal(t, models.BudgetApproved, third.PeriodStatus)
}

func TestApproveByToken_Idempotent(t *testing.T) {
	ctx := context.Background()
	f, period, tokens := proposedPeriod(t, 3)
	token := tokens[f.units[0].ID]

	res, err := f.svc.ApproveByToken(ctx, testTenant, period.ID, token)
	require.NoError(t, err)
	require.Equal(t, Applied, res.Outcome)

	res, err = f.svc.ApproveByToken(ctx, testTenant, period.ID, token)
	require.NoError(t, err)
	require.Equal(t, AlreadyDone, res.Outcome)
	require.Equal(t, models.BudgetProposed, res.PeriodStatus)

	summary, err := f.svc.ApprovalSummary(ctx, testTenant, period.ID)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Approved)
	require.Equal(t, 2, summary.Pending)
	require.Equal(t, 2, summary.RequiredApprovals)
}

func TestApprovalResponses_Conflict(t *testing.T) {
	ctx := context.Background()
	f, period, tokens := proposedPeriod(t, 3)

	t.Run("approve after reject", func(t *testing.T) {
		token := tokens[f.units[0].ID]
		_, err := f.svc.RejectByToken(ctx, testTenant, period.ID, token, "too expensive")
		require.NoError(t, err)

		_, err = f.svc.ApproveByToken(ctx, testTenant, period.ID, token)
		require.ErrorIs(t, err, ErrConflictingResponse)
	})

	t.Run("reject after approve", func(t *testing.T) {
		token := tokens[f.units[1].ID]
		_, err := f.svc.ApproveByToken(ctx, testTenant, period.ID, token)
		require.NoError(t, err)

		_, err = f.svc.RejectByToken(ctx, testTenant, period.ID, token, "changed my mind")
		require.ErrorIs(t, err, ErrConflictingResponse)
	})

	t.Run("reject twice", func(t *testing.T) {
		res, err := f.svc.RejectByToken(ctx, testTenant, period.ID, tokens[f.units[0].ID], "again")
		require.NoError(t, err)
		require.Equal(t, AlreadyDone, res.Outcome)
	})

	summary, err := f.svc.ApprovalSummary(ctx, testTenant, period.ID)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Approved)
	require.Equal(t, 1, summary.Rejected)
	require.Equal(t, 1, summary.Pending)
	require.Equal(t, models.BudgetProposed, summary.Status)

	for _, a := range f.approvals(t, period.ID) {
		if a.UnitID == f.units[0].ID {
			require.NotNil(t, a.RejectionReason)
			require.Equal(t, "too expensive", *a.RejectionReason, "the first response is kept")
			require.Nil(t, a.ApprovedAt)
		}
	}
}

func TestRejectByToken_TruncatesReason(t *testing.T) {
	ctx := context.Background()
	f, period, tokens := proposedPeriod(t, 1)

	long := make([]rune, MaxRejectionReasonLength+500)
	for i := range long {
		long[i] = 'é'
	}

	res, err := f.svc.RejectByToken(ctx, testTenant, period.ID, tokens[f.units[0].ID], string(long))
	require.NoError(t, err)
	require.Equal(t, models.BudgetProposed, res.PeriodStatus, "rejections never move the period")

	approvals := f.approvals(t, period.ID)
	require.Len(t, approvals, 1)
	require.Len(t, []rune(*approvals[0].RejectionReason), MaxRejectionReasonLength)
}

func TestApproveByToken_TokenNotFound(t *testing.T) {
	ctx := context.Background()
	f, period, tokens := proposedPeriod(t, 2)

	other, err := f.svc.CreateBudgetPeriod(ctx, testTenant, f.buildingID, "", 2027)
	require.NoError(t, err)

	unknown, err := NewToken()
	require.NoError(t, err)

	tests := []struct {
		name     string
		periodID uuid.UUID
		token    string
	}{
		{name: "unknown token", periodID: period.ID, token: unknown},
		{name: "malformed token", periodID: period.ID, token: "not-a-token"},
		{name: "empty token", periodID: period.ID, token: ""},
		{name: "token of another period", periodID: other.ID, token: tokens[f.units[0].ID]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.ApproveByToken(ctx, testTenant, tt.periodID, tt.token)
			require.ErrorIs(t, err, ErrTokenNotFound)

			_, err = f.svc.RejectByToken(ctx, testTenant, tt.periodID, tt.token, "")
			require.ErrorIs(t, err, ErrTokenNotFound)
		})
	}
}

func TestApproveByToken_InvalidTenantBeforeToken(t *testing.T) {
	ctx := context.Background()
	f, period, tokens := proposedPeriod(t, 2)

	for _, token := range []string{"", "not-a-token", tokens[f.units[0].ID]} {
		_, err := f.svc.ApproveByToken(ctx, "Bad Slug!", period.ID, token)
		require.ErrorIs(t, err, tenancy.ErrInvalidTenantIdentifier)
		require.NotErrorIs(t, err, ErrTokenNotFound)

		_, err = f.svc.RejectByToken(ctx, "Bad Slug!", period.ID, token, "")
		require.ErrorIs(t, err, tenancy.ErrInvalidTenantIdentifier)
	}
}

func TestApproveByToken_QuorumFollowsCurrentUnitCount(t *testing.T) {
	ctx := context.Background()
	f, period, tokens := proposedPeriod(t, 3)

	// two more units after sending raise the requirement from 2 to 4
	f.seed(t, func(ctx context.Context, bs store.BuildingStore) error {
		for _, label := range []string{"X1", "X2"} {
			if err := bs.CreateUnit(ctx, &models.Unit{ID: uuid.Must(uuid.NewV7()), BuildingID: f.buildingID, Label: label}); err != nil {
				return err
			}
		}
		return nil
	})

	_, err := f.svc.ApproveByToken(ctx, testTenant, period.ID, tokens[f.units[0].ID])
	require.NoError(t, err)
	res, err := f.svc.ApproveByToken(ctx, testTenant, period.ID, tokens[f.units[1].ID])
	require.NoError(t, err)
	require.Equal(t, 4, res.RequiredApprovals)
	require.False(t, res.QuorumReached)
	require.Equal(t, models.BudgetProposed, res.PeriodStatus)
}

func TestSetUnitContribution(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	f.addFee(t, nil, "20.00", models.FeeMonthly, true)

	period, err := f.svc.CreateBudgetPeriod(ctx, testTenant, f.buildingID, "", 2026)
	require.NoError(t, err)

	require.NoError(t, f.svc.SetUnitContribution(ctx, testTenant, period.ID, f.units[0].ID, decimal.RequireFromString("300.00")))

	lines, err := f.svc.ListBudgetLines(ctx, testTenant, period.ID)
	require.NoError(t, err)
	requireDecimal(t, "780.00", lines[0].Amount)

	err = f.svc.SetUnitContribution(ctx, testTenant, period.ID, f.units[0].ID, decimal.RequireFromString("-1"))
	require.ErrorIs(t, err, ErrInvalidArgument)

	err = f.svc.SetUnitContribution(ctx, testTenant, period.ID, uuid.New(), decimal.RequireFromString("1"))
	require.ErrorIs(t, err, store.ErrUnitNotFound)

	_, err = f.svc.SendForApproval(ctx, testTenant, period.ID)
	require.NoError(t, err)

	err = f.svc.SetUnitContribution(ctx, testTenant, period.ID, f.units[0].ID, decimal.RequireFromString("1"))
	require.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestAddBudgetLine(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)

	period, err := f.svc.CreateBudgetPeriod(ctx, testTenant, f.buildingID, "", 2026)
	require.NoError(t, err)

	first, err := f.svc.AddBudgetLine(ctx, testTenant, period.ID, NewLine{
		Category: models.LineRecurring, Description: "Cleaning", Amount: decimal.RequireFromString("1200"),
	})
	require.NoError(t, err)
	require.Equal(t, 0, first.SortOrder)

	second, err := f.svc.AddBudgetLine(ctx, testTenant, period.ID, NewLine{
		Category: models.LineExtras, Description: "Garden party", Amount: decimal.RequireFromString("300"),
	})
	require.NoError(t, err)
	require.Equal(t, 1, second.SortOrder)

	_, err = f.svc.AddBudgetLine(ctx, testTenant, period.ID, NewLine{Category: "misc", Description: "x"})
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = f.svc.AddBudgetLine(ctx, testTenant, period.ID, NewLine{Category: models.LineRecurring, Description: models.UnitContributionsDescription})
	require.ErrorIs(t, err, ErrInvalidArgument)

	lines, err := f.svc.ListBudgetLines(ctx, testTenant, period.ID)
	require.NoError(t, err)
	require.Len(t, lines, 3)
}

func TestClosePeriod(t *testing.T) {
	ctx := context.Background()
	f, period, tokens := proposedPeriod(t, 1)

	_, err := f.svc.ClosePeriod(ctx, testTenant, period.ID)
	require.ErrorIs(t, err, ErrInvalidStateTransition)

	res, err := f.svc.ApproveByToken(ctx, testTenant, period.ID, tokens[f.units[0].ID])
	require.NoError(t, err)
	require.True(t, res.QuorumReached)

	closed, err := f.svc.ClosePeriod(ctx, testTenant, period.ID)
	require.NoError(t, err)
	require.Equal(t, models.BudgetClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)

	_, err = f.svc.ClosePeriod(ctx, testTenant, period.ID)
	require.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestLedger(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)

	balance, err := f.svc.Balance(ctx, testTenant, f.buildingID)
	require.NoError(t, err)
	requireDecimal(t, "0", balance.CurrentBalance)

	_, err = f.svc.RecordTransaction(ctx, testTenant, NewTransaction{
		BuildingID: f.buildingID, Kind: models.TransactionIncome, Amount: decimal.RequireFromString("500"),
	})
	require.NoError(t, err)
	after, err := f.svc.RecordTransaction(ctx, testTenant, NewTransaction{
		BuildingID: f.buildingID, Kind: models.TransactionExpense, Amount: decimal.RequireFromString("120.25"),
	})
	require.NoError(t, err)
	requireDecimal(t, "379.75", after.CurrentBalance)

	txns, err := f.svc.ListTransactions(ctx, testTenant, f.buildingID)
	require.NoError(t, err)
	require.Len(t, txns, 2)

	_, err = f.svc.RecordTransaction(ctx, testTenant, NewTransaction{
		BuildingID: f.buildingID, Kind: models.TransactionIncome, Amount: decimal.Zero,
	})
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = f.svc.RecordTransaction(ctx, testTenant, NewTransaction{
		BuildingID: uuid.New(), Kind: models.TransactionIncome, Amount: decimal.RequireFromString("1"),
	})
	require.ErrorIs(t, err, store.ErrBuildingNotFound)
}
