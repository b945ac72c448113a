package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xard1993/komun-api/internal/models"
	"github.com/xard1993/komun-api/internal/store"
	"github.com/xard1993/komun-api/internal/tenancy"
)

// UserDirectory resolves platform users for recipient lookups.
type UserDirectory interface {
	Users() map[uuid.UUID]models.User
}

// Tenants implements store.TenantScope using in-memory storage.
// InTenant works on a copy of the tenant's data and only swaps it in when fn succeeds,
// so a failed unit of work leaves nothing behind. Work for one tenant is serialised.
// This implementation is for testing and development only - data is lost on restart.
type Tenants struct {
	mu      sync.Mutex
	tenants map[string]*tenantData
	users   UserDirectory
}

type tenantData struct {
	mu sync.Mutex
	ds *dataset
}

var _ store.TenantScope = (*Tenants)(nil)

// NewTenants creates an empty in-memory tenant scope. users may be nil.
func NewTenants(users UserDirectory) *Tenants {
	return &Tenants{
		tenants: make(map[string]*tenantData),
		users:   users,
	}
}

// AddTenant creates an empty dataset for slug, the in-memory counterpart of a migrated schema.
func (t *Tenants) AddTenant(slug string) error {
	if _, err := tenancy.Resolve(slug); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.tenants[slug]; !exists {
		t.tenants[slug] = &tenantData{ds: newDataset()}
	}
	return nil
}

// InTenant runs fn against a snapshot of the tenant's data and commits it on success.
func (t *Tenants) InTenant(ctx context.Context, slug string, fn func(ctx context.Context, bs store.BuildingStore) error) error {
	if _, err := tenancy.Resolve(slug); err != nil {
		return err
	}

	t.mu.Lock()
	td, exists := t.tenants[slug]
	t.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: %s", store.ErrTenantNotFound, slug)
	}

	td.mu.Lock()
	defer td.mu.Unlock()

	work := td.ds.clone()
	if err := fn(ctx, &buildingStore{ds: work, users: t.users}); err != nil {
		return err
	}

	td.ds = work
	return nil
}

type contributionKey struct {
	periodID uuid.UUID
	unitID   uuid.UUID
}

type dataset struct {
	buildings     map[uuid.UUID]models.Building
	units         []models.Unit
	members       []models.UnitMember
	fees          []models.FeeTemplate
	financials    map[uuid.UUID]models.BuildingFinancials
	transactions  []models.FinancialTransaction
	periods       map[uuid.UUID]models.BudgetPeriod
	lines         []models.BudgetLine
	contributions map[contributionKey]models.BudgetUnitContribution
	approvals     []models.BudgetApproval
	documents     []models.BudgetDocument
}

func newDataset() *dataset {
	return &dataset{
		buildings:     make(map[uuid.UUID]models.Building),
		financials:    make(map[uuid.UUID]models.BuildingFinancials),
		periods:       make(map[uuid.UUID]models.BudgetPeriod),
		contributions: make(map[contributionKey]models.BudgetUnitContribution),
	}
}

func (d *dataset) clone() *dataset {
	c := newDataset()
	for k, v := range d.buildings {
		c.buildings[k] = v
	}
	for k, v := range d.financials {
		c.financials[k] = v
	}
	for k, v := range d.periods {
		c.periods[k] = v
	}
	for k, v := range d.contributions {
		c.contributions[k] = v
	}
	c.units = slices.Clone(d.units)
	c.members = slices.Clone(d.members)
	c.fees = slices.Clone(d.fees)
	c.transactions = slices.Clone(d.transactions)
	c.lines = slices.Clone(d.lines)
	c.approvals = slices.Clone(d.approvals)
	c.documents = slices.Clone(d.documents)
	return c
}

// buildingStore implements store.BuildingStore over one dataset snapshot.
type buildingStore struct {
	ds    *dataset
	users UserDirectory
}

func (s *buildingStore) CreateBuilding(ctx context.Context, b *models.Building) error {
	s.ds.buildings[b.ID] = *b
	return nil
}

func (s *buildingStore) GetBuilding(ctx context.Context, buildingID uuid.UUID) (*models.Building, error) {
	b, exists := s.ds.buildings[buildingID]
	if !exists {
		return nil, store.ErrBuildingNotFound
	}
	return &b, nil
}

func (s *buildingStore) CreateUnit(ctx context.Context, u *models.Unit) error {
	if _, exists := s.ds.buildings[u.BuildingID]; !exists {
		return store.ErrBuildingNotFound
	}
	s.ds.units = append(s.ds.units, *u)
	return nil
}

func (s *buildingStore) ListUnits(ctx context.Context, buildingID uuid.UUID) ([]*models.Unit, error) {
	var units []*models.Unit
	for _, u := range s.ds.units {
		if u.BuildingID == buildingID {
			clone := u
			units = append(units, &clone)
		}
	}
	sort.SliceStable(units, func(i, j int) bool {
		return units[i].Label < units[j].Label
	})
	return units, nil
}

func (s *buildingStore) CountUnits(ctx context.Context, buildingID uuid.UUID) (int, error) {
	n := 0
	for _, u := range s.ds.units {
		if u.BuildingID == buildingID {
			n++
		}
	}
	return n, nil
}

func (s *buildingStore) unit(unitID uuid.UUID) (models.Unit, bool) {
	for _, u := range s.ds.units {
		if u.ID == unitID {
			return u, true
		}
	}
	return models.Unit{}, false
}

func (s *buildingStore) AddUnitMember(ctx context.Context, m *models.UnitMember) error {
	if _, ok := s.unit(m.UnitID); !ok {
		return store.ErrUnitNotFound
	}
	for _, existing := range s.ds.members {
		if existing.UnitID == m.UnitID && existing.UserID == m.UserID {
			return nil
		}
	}
	s.ds.members = append(s.ds.members, *m)
	return nil
}

func (s *buildingStore) ListRecipients(ctx context.Context, buildingID uuid.UUID) ([]models.Recipient, error) {
	if s.users == nil {
		return nil, nil
	}
	users := s.users.Users()

	type labelled struct {
		label string
		r     models.Recipient
	}
	var found []labelled
	for _, m := range s.ds.members {
		u, ok := s.unit(m.UnitID)
		if !ok || u.BuildingID != buildingID {
			continue
		}
		user, ok := users[m.UserID]
		if !ok {
			continue
		}
		found = append(found, labelled{
			label: u.Label,
			r:     models.Recipient{UnitID: m.UnitID, UserID: m.UserID, Email: user.Email, Name: user.Name},
		})
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].label != found[j].label {
			return found[i].label < found[j].label
		}
		return found[i].r.Email < found[j].r.Email
	})

	recipients := make([]models.Recipient, 0, len(found))
	for _, f := range found {
		recipients = append(recipients, f.r)
	}
	return recipients, nil
}

func (s *buildingStore) CreateFeeTemplate(ctx context.Context, f *models.FeeTemplate) error {
	if f.BuildingID != nil {
		if _, exists := s.ds.buildings[*f.BuildingID]; !exists {
			return store.ErrBuildingNotFound
		}
	}
	s.ds.fees = append(s.ds.fees, *f)
	return nil
}

func (s *buildingStore) ListFeeTemplates(ctx context.Context, buildingID uuid.UUID) ([]*models.FeeTemplate, error) {
	var fees []*models.FeeTemplate
	for _, f := range s.ds.fees {
		if f.Active && f.AppliesTo(buildingID) {
			clone := f
			fees = append(fees, &clone)
		}
	}
	return fees, nil
}

func (s *buildingStore) EnsureFinancials(ctx context.Context, buildingID uuid.UUID) (*models.BuildingFinancials, error) {
	if _, exists := s.ds.buildings[buildingID]; !exists {
		return nil, store.ErrBuildingNotFound
	}
	f, exists := s.ds.financials[buildingID]
	if !exists {
		f = models.BuildingFinancials{BuildingID: buildingID, CurrentBalance: decimal.Zero, UpdatedAt: time.Now()}
		s.ds.financials[buildingID] = f
	}
	return &f, nil
}

func (s *buildingStore) InsertTransaction(ctx context.Context, t *models.FinancialTransaction) (*models.BuildingFinancials, error) {
	current, err := s.EnsureFinancials(ctx, t.BuildingID)
	if err != nil {
		return nil, err
	}
	s.ds.transactions = append(s.ds.transactions, *t)

	f := models.BuildingFinancials{
		BuildingID:     t.BuildingID,
		CurrentBalance: current.CurrentBalance.Add(t.Signed()),
		UpdatedAt:      time.Now(),
	}
	s.ds.financials[t.BuildingID] = f
	return &f, nil
}

func (s *buildingStore) ListTransactions(ctx context.Context, buildingID uuid.UUID) ([]*models.FinancialTransaction, error) {
	var txns []*models.FinancialTransaction
	for _, t := range s.ds.transactions {
		if t.BuildingID == buildingID {
			clone := t
			txns = append(txns, &clone)
		}
	}
	sort.SliceStable(txns, func(i, j int) bool {
		return txns[i].OccurredAt.Before(txns[j].OccurredAt)
	})
	return txns, nil
}

func (s *buildingStore) CreatePeriod(ctx context.Context, p *models.BudgetPeriod) error {
	if _, exists := s.ds.buildings[p.BuildingID]; !exists {
		return store.ErrBuildingNotFound
	}
	for _, existing := range s.ds.periods {
		if existing.BuildingID == p.BuildingID && existing.Year == p.Year {
			return store.ErrPeriodAlreadyExists
		}
	}
	s.ds.periods[p.ID] = *p
	return nil
}

func (s *buildingStore) GetPeriod(ctx context.Context, periodID uuid.UUID) (*models.BudgetPeriod, error) {
	p, exists := s.ds.periods[periodID]
	if !exists {
		return nil, store.ErrPeriodNotFound
	}
	return &p, nil
}

func (s *buildingStore) LockPeriod(ctx context.Context, periodID uuid.UUID) (*models.BudgetPeriod, error) {
	// InTenant already serialises work per tenant
	return s.GetPeriod(ctx, periodID)
}

func (s *buildingStore) LatestPriorPeriod(ctx context.Context, buildingID uuid.UUID, year int) (*models.BudgetPeriod, error) {
	var latest *models.BudgetPeriod
	for _, p := range s.ds.periods {
		if p.BuildingID != buildingID || p.Year >= year {
			continue
		}
		if latest == nil || p.Year > latest.Year {
			clone := p
			latest = &clone
		}
	}
	if latest == nil {
		return nil, store.ErrPeriodNotFound
	}
	return latest, nil
}

func (s *buildingStore) ListPeriods(ctx context.Context, buildingID uuid.UUID) ([]*models.BudgetPeriod, error) {
	var periods []*models.BudgetPeriod
	for _, p := range s.ds.periods {
		if p.BuildingID == buildingID {
			clone := p
			periods = append(periods, &clone)
		}
	}
	sort.Slice(periods, func(i, j int) bool {
		return periods[i].Year > periods[j].Year
	})
	return periods, nil
}

func (s *buildingStore) UpdatePeriod(ctx context.Context, p *models.BudgetPeriod) error {
	existing, exists := s.ds.periods[p.ID]
	if !exists {
		return store.ErrPeriodNotFound
	}
	existing.Status = p.Status
	existing.SentForApprovalAt = p.SentForApprovalAt
	existing.ApprovedAt = p.ApprovedAt
	existing.ClosedAt = p.ClosedAt
	s.ds.periods[p.ID] = existing
	return nil
}

func (s *buildingStore) InsertLine(ctx context.Context, l *models.BudgetLine) error {
	if _, exists := s.ds.periods[l.BudgetPeriodID]; !exists {
		return store.ErrPeriodNotFound
	}
	s.ds.lines = append(s.ds.lines, *l)
	return nil
}

func (s *buildingStore) ListLines(ctx context.Context, periodID uuid.UUID) ([]*models.BudgetLine, error) {
	var lines []*models.BudgetLine
	for _, l := range s.ds.lines {
		if l.BudgetPeriodID == periodID {
			clone := l
			lines = append(lines, &clone)
		}
	}
	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].SortOrder < lines[j].SortOrder
	})
	return lines, nil
}

func (s *buildingStore) UpdateLineAmount(ctx context.Context, lineID uuid.UUID, amount decimal.Decimal) error {
	for i := range s.ds.lines {
		if s.ds.lines[i].ID == lineID {
			s.ds.lines[i].Amount = amount
			return nil
		}
	}
	return store.ErrLineNotFound
}

func (s *buildingStore) UpsertContribution(ctx context.Context, c *models.BudgetUnitContribution) error {
	if _, ok := s.unit(c.UnitID); !ok {
		return store.ErrUnitNotFound
	}
	s.ds.contributions[contributionKey{periodID: c.BudgetPeriodID, unitID: c.UnitID}] = *c
	return nil
}

func (s *buildingStore) ListContributions(ctx context.Context, periodID uuid.UUID) ([]*models.BudgetUnitContribution, error) {
	var contributions []*models.BudgetUnitContribution
	for k, c := range s.ds.contributions {
		if k.periodID == periodID {
			clone := c
			contributions = append(contributions, &clone)
		}
	}
	sort.Slice(contributions, func(i, j int) bool {
		return contributions[i].UnitID.String() < contributions[j].UnitID.String()
	})
	return contributions, nil
}

func (s *buildingStore) CountApprovals(ctx context.Context, periodID uuid.UUID) (int, error) {
	n := 0
	for _, a := range s.ds.approvals {
		if a.BudgetPeriodID == periodID {
			n++
		}
	}
	return n, nil
}

func (s *buildingStore) InsertApproval(ctx context.Context, a *models.BudgetApproval) error {
	for _, existing := range s.ds.approvals {
		if existing.Token == a.Token {
			return fmt.Errorf("unique constraint violation: budget_approvals_token_key")
		}
		if existing.BudgetPeriodID == a.BudgetPeriodID && existing.UnitID == a.UnitID {
			return fmt.Errorf("unique constraint violation: budget_approvals_period_unit_key")
		}
	}
	s.ds.approvals = append(s.ds.approvals, *a)
	return nil
}

func (s *buildingStore) GetApprovalByToken(ctx context.Context, token string) (*models.BudgetApproval, error) {
	for _, a := range s.ds.approvals {
		if a.Token == token {
			clone := a
			return &clone, nil
		}
	}
	return nil, store.ErrApprovalNotFound
}

func (s *buildingStore) MarkApproved(ctx context.Context, approvalID uuid.UUID, at time.Time) error {
	for i := range s.ds.approvals {
		a := &s.ds.approvals[i]
		if a.ID == approvalID && a.Pending() {
			a.ApprovedAt = &at
			return nil
		}
	}
	return store.ErrApprovalNotFound
}

func (s *buildingStore) MarkRejected(ctx context.Context, approvalID uuid.UUID, at time.Time, reason string) error {
	for i := range s.ds.approvals {
		a := &s.ds.approvals[i]
		if a.ID == approvalID && a.Pending() {
			a.RejectedAt = &at
			a.RejectionReason = &reason
			return nil
		}
	}
	return store.ErrApprovalNotFound
}

func (s *buildingStore) CountApprovedUnits(ctx context.Context, periodID uuid.UUID) (int, error) {
	units := make(map[uuid.UUID]struct{})
	for _, a := range s.ds.approvals {
		if a.BudgetPeriodID == periodID && a.ApprovedAt != nil {
			units[a.UnitID] = struct{}{}
		}
	}
	return len(units), nil
}

func (s *buildingStore) ListApprovals(ctx context.Context, periodID uuid.UUID) ([]*models.BudgetApproval, error) {
	var approvals []*models.BudgetApproval
	for _, a := range s.ds.approvals {
		if a.BudgetPeriodID == periodID {
			clone := a
			approvals = append(approvals, &clone)
		}
	}
	return approvals, nil
}

func (s *buildingStore) InsertDocument(ctx context.Context, d *models.BudgetDocument) error {
	if _, exists := s.ds.periods[d.BudgetPeriodID]; !exists {
		return store.ErrPeriodNotFound
	}
	s.ds.documents = append(s.ds.documents, *d)
	return nil
}

func (s *buildingStore) GetDocument(ctx context.Context, documentID uuid.UUID) (*models.BudgetDocument, error) {
	for _, d := range s.ds.documents {
		if d.ID == documentID {
			clone := d
			return &clone, nil
		}
	}
	return nil, store.ErrDocumentNotFound
}

func (s *buildingStore) ListDocuments(ctx context.Context, periodID uuid.UUID) ([]*models.BudgetDocument, error) {
	var docs []*models.BudgetDocument
	for _, d := range s.ds.documents {
		if d.BudgetPeriodID == periodID {
			clone := d
			docs = append(docs, &clone)
		}
	}
	return docs, nil
}

func (s *buildingStore) DeleteDocument(ctx context.Context, documentID uuid.UUID) error {
	for i, d := range s.ds.documents {
		if d.ID == documentID {
			s.ds.documents = slices.Delete(s.ds.documents, i, i+1)
			return nil
		}
	}
	return store.ErrDocumentNotFound
}
