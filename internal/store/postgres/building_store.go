package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/xard1993/komun-api/internal/models"
	"github.com/xard1993/komun-api/internal/store"
)

// BuildingStore implements store.BuildingStore on a tenant bound transaction.
// Table names are unqualified and resolve through the transaction's search_path,
// which WithTenant sets to the tenant schema followed by public.
type BuildingStore struct {
	q DBTX
}

var _ store.BuildingStore = (*BuildingStore)(nil)

// NewBuildingStore wraps q. q must come from WithTenant or TenantExecutor.
func NewBuildingStore(q DBTX) *BuildingStore {
	return &BuildingStore{q: q}
}

// CreateBuilding inserts a building.
func (s *BuildingStore) CreateBuilding(ctx context.Context, b *models.Building) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO buildings (building_id, name, address, created_at) VALUES ($1, $2, $3, $4)`,
		b.ID, b.Name, b.Address, b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create building: %w", mapPostgresError(err))
	}

	log.Debug().Str("building_id", b.ID.String()).Msg("Created building")
	return nil
}

// GetBuilding retrieves a building by ID.
func (s *BuildingStore) GetBuilding(ctx context.Context, buildingID uuid.UUID) (*models.Building, error) {
	var b models.Building
	err := s.q.QueryRow(ctx,
		`SELECT building_id, name, address, created_at FROM buildings WHERE building_id = $1`, buildingID,
	).Scan(&b.ID, &b.Name, &b.Address, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrBuildingNotFound
		}
		return nil, fmt.Errorf("failed to get building: %w", mapPostgresError(err))
	}
	return &b, nil
}

// CreateUnit inserts a unit.
func (s *BuildingStore) CreateUnit(ctx context.Context, u *models.Unit) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO units (unit_id, building_id, label, floor, created_at) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.BuildingID, u.Label, u.Floor, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create unit: %w", mapPostgresError(err))
	}
	return nil
}

// ListUnits returns the units of a building ordered by label.
func (s *BuildingStore) ListUnits(ctx context.Context, buildingID uuid.UUID) ([]*models.Unit, error) {
	rows, err := s.q.Query(ctx,
		`SELECT unit_id, building_id, label, floor, created_at FROM units WHERE building_id = $1 ORDER BY label`,
		buildingID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list units: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var units []*models.Unit
	for rows.Next() {
		var u models.Unit
		if err := rows.Scan(&u.ID, &u.BuildingID, &u.Label, &u.Floor, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan unit: %w", err)
		}
		units = append(units, &u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating units: %w", err)
	}

	return units, nil
}

// CountUnits returns the number of units of a building.
func (s *BuildingStore) CountUnits(ctx context.Context, buildingID uuid.UUID) (int, error) {
	var n int
	err := s.q.QueryRow(ctx, `SELECT COUNT(*) FROM units WHERE building_id = $1`, buildingID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count units: %w", mapPostgresError(err))
	}
	return n, nil
}

// AddUnitMember links a user to a unit. Adding an existing member is a no-op.
func (s *BuildingStore) AddUnitMember(ctx context.Context, m *models.UnitMember) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO unit_members (unit_id, user_id, role, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (unit_id, user_id) DO NOTHING
	`, m.UnitID, m.UserID, m.Role, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add unit member: %w", mapPostgresError(err))
	}
	return nil
}

// ListRecipients joins unit members with users from the shared schema.
func (s *BuildingStore) ListRecipients(ctx context.Context, buildingID uuid.UUID) ([]models.Recipient, error) {
	// users is not qualified: it resolves to public.users through the search_path
	rows, err := s.q.Query(ctx, `
		SELECT um.unit_id, um.user_id, u.email, u.name
		FROM unit_members um
		JOIN units un ON un.unit_id = um.unit_id
		JOIN users u ON u.user_id = um.user_id
		WHERE un.building_id = $1
		ORDER BY un.label, u.email
	`, buildingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipients: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var recipients []models.Recipient
	for rows.Next() {
		var r models.Recipient
		if err := rows.Scan(&r.UnitID, &r.UserID, &r.Email, &r.Name); err != nil {
			return nil, fmt.Errorf("failed to scan recipient: %w", err)
		}
		recipients = append(recipients, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recipients: %w", err)
	}

	return recipients, nil
}

// CreateFeeTemplate inserts a fee template.
func (s *BuildingStore) CreateFeeTemplate(ctx context.Context, f *models.FeeTemplate) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO fee_templates (fee_template_id, building_id, name, amount, frequency, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, f.ID, f.BuildingID, f.Name, f.Amount, f.Frequency, f.Active, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create fee template: %w", mapPostgresError(err))
	}
	return nil
}

// ListFeeTemplates returns active templates scoped to the building or building agnostic.
func (s *BuildingStore) ListFeeTemplates(ctx context.Context, buildingID uuid.UUID) ([]*models.FeeTemplate, error) {
	rows, err := s.q.Query(ctx, `
		SELECT fee_template_id, building_id, name, amount, frequency, active, created_at
		FROM fee_templates
		WHERE active AND (building_id = $1 OR building_id IS NULL)
		ORDER BY created_at
	`, buildingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list fee templates: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var fees []*models.FeeTemplate
	for rows.Next() {
		var f models.FeeTemplate
		if err := rows.Scan(&f.ID, &f.BuildingID, &f.Name, &f.Amount, &f.Frequency, &f.Active, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fee template: %w", err)
		}
		fees = append(fees, &f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fee templates: %w", err)
	}

	return fees, nil
}

// EnsureFinancials returns the building's running balance, creating a zero row if needed.
func (s *BuildingStore) EnsureFinancials(ctx context.Context, buildingID uuid.UUID) (*models.BuildingFinancials, error) {
	_, err := s.q.Exec(ctx, `
		INSERT INTO building_financials (building_id, current_balance, updated_at)
		VALUES ($1, 0, now())
		ON CONFLICT (building_id) DO NOTHING
	`, buildingID)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure building financials: %w", mapPostgresError(err))
	}

	f := models.BuildingFinancials{BuildingID: buildingID}
	err = s.q.QueryRow(ctx,
		`SELECT current_balance, updated_at FROM building_financials WHERE building_id = $1`, buildingID,
	).Scan(&f.CurrentBalance, &f.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to read building financials: %w", mapPostgresError(err))
	}
	return &f, nil
}

// InsertTransaction appends a ledger entry and applies it to the running balance.
func (s *BuildingStore) InsertTransaction(ctx context.Context, t *models.FinancialTransaction) (*models.BuildingFinancials, error) {
	_, err := s.q.Exec(ctx, `
		INSERT INTO financial_transactions (
			transaction_id, building_id, kind, amount, description, occurred_at, actor_id, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`, t.ID, t.BuildingID, t.Kind, t.Amount, t.Description, t.OccurredAt, t.ActorID, t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert transaction: %w", mapPostgresError(err))
	}

	f := models.BuildingFinancials{BuildingID: t.BuildingID}
	err = s.q.QueryRow(ctx, `
		INSERT INTO building_financials (building_id, current_balance, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (building_id) DO UPDATE
			SET current_balance = building_financials.current_balance + EXCLUDED.current_balance,
			    updated_at = EXCLUDED.updated_at
		RETURNING current_balance, updated_at
	`, t.BuildingID, t.Signed(), time.Now()).Scan(&f.CurrentBalance, &f.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update building balance: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("building_id", t.BuildingID.String()).
		Str("kind", string(t.Kind)).
		Str("amount", t.Amount.StringFixed(2)).
		Str("balance", f.CurrentBalance.StringFixed(2)).
		Msg("Recorded financial transaction")

	return &f, nil
}

// ListTransactions returns a building's ledger in occurrence order.
func (s *BuildingStore) ListTransactions(ctx context.Context, buildingID uuid.UUID) ([]*models.FinancialTransaction, error) {
	rows, err := s.q.Query(ctx, `
		SELECT transaction_id, building_id, kind, amount, description, occurred_at, actor_id, created_at
		FROM financial_transactions
		WHERE building_id = $1
		ORDER BY occurred_at, created_at
	`, buildingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var txns []*models.FinancialTransaction
	for rows.Next() {
		var t models.FinancialTransaction
		if err := rows.Scan(&t.ID, &t.BuildingID, &t.Kind, &t.Amount, &t.Description, &t.OccurredAt, &t.ActorID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return txns, nil
}
