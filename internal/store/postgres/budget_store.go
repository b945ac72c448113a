package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/xard1993/komun-api/internal/models"
	"github.com/xard1993/komun-api/internal/store"
)

const periodColumns = `budget_period_id, building_id, name, year, status, opening_balance,
	start_date, end_date, sent_for_approval_at, approved_at, closed_at, created_at`

// CreatePeriod inserts a budget period.
func (s *BuildingStore) CreatePeriod(ctx context.Context, p *models.BudgetPeriod) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO budget_periods (
			budget_period_id, building_id, name, year, status, opening_balance,
			start_date, end_date, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`, p.ID, p.BuildingID, p.Name, p.Year, p.Status, p.OpeningBalance, p.StartDate, p.EndDate, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create budget period: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("budget_period_id", p.ID.String()).
		Str("building_id", p.BuildingID.String()).
		Int("year", p.Year).
		Msg("Created budget period")

	return nil
}

// GetPeriod retrieves a budget period by ID.
func (s *BuildingStore) GetPeriod(ctx context.Context, periodID uuid.UUID) (*models.BudgetPeriod, error) {
	return scanPeriod(s.q.QueryRow(ctx, `SELECT `+periodColumns+` FROM budget_periods WHERE budget_period_id = $1`, periodID))
}

// LockPeriod retrieves a budget period and locks its row for the rest of the transaction.
func (s *BuildingStore) LockPeriod(ctx context.Context, periodID uuid.UUID) (*models.BudgetPeriod, error) {
	return scanPeriod(s.q.QueryRow(ctx, `SELECT `+periodColumns+` FROM budget_periods WHERE budget_period_id = $1 FOR UPDATE`, periodID))
}

// LatestPriorPeriod returns the building's most recent period before year.
func (s *BuildingStore) LatestPriorPeriod(ctx context.Context, buildingID uuid.UUID, year int) (*models.BudgetPeriod, error) {
	return scanPeriod(s.q.QueryRow(ctx, `
		SELECT `+periodColumns+`
		FROM budget_periods
		WHERE building_id = $1 AND year < $2
		ORDER BY year DESC
		LIMIT 1
	`, buildingID, year))
}

// ListPeriods returns a building's periods, newest year first.
func (s *BuildingStore) ListPeriods(ctx context.Context, buildingID uuid.UUID) ([]*models.BudgetPeriod, error) {
	rows, err := s.q.Query(ctx, `SELECT `+periodColumns+` FROM budget_periods WHERE building_id = $1 ORDER BY year DESC`, buildingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list budget periods: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var periods []*models.BudgetPeriod
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating budget periods: %w", err)
	}

	return periods, nil
}

// UpdatePeriod persists the status and lifecycle timestamps of a period.
func (s *BuildingStore) UpdatePeriod(ctx context.Context, p *models.BudgetPeriod) error {
	result, err := s.q.Exec(ctx, `
		UPDATE budget_periods SET
			status = $2,
			sent_for_approval_at = $3,
			approved_at = $4,
			closed_at = $5
		WHERE budget_period_id = $1
	`, p.ID, p.Status, p.SentForApprovalAt, p.ApprovedAt, p.ClosedAt)
	if err != nil {
		return fmt.Errorf("failed to update budget period: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrPeriodNotFound
	}

	log.Debug().
		Str("budget_period_id", p.ID.String()).
		Str("status", string(p.Status)).
		Msg("Updated budget period")

	return nil
}

// InsertLine inserts a budget line.
func (s *BuildingStore) InsertLine(ctx context.Context, l *models.BudgetLine) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO budget_lines (
			budget_line_id, budget_period_id, category, description, amount, sort_order, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
	`, l.ID, l.BudgetPeriodID, l.Category, l.Description, l.Amount, l.SortOrder, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert budget line: %w", mapPostgresError(err))
	}
	return nil
}

// ListLines returns a period's lines in sort order.
func (s *BuildingStore) ListLines(ctx context.Context, periodID uuid.UUID) ([]*models.BudgetLine, error) {
	rows, err := s.q.Query(ctx, `
		SELECT budget_line_id, budget_period_id, category, description, amount, sort_order, created_at
		FROM budget_lines
		WHERE budget_period_id = $1
		ORDER BY sort_order, created_at
	`, periodID)
	if err != nil {
		return nil, fmt.Errorf("failed to list budget lines: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var lines []*models.BudgetLine
	for rows.Next() {
		var l models.BudgetLine
		if err := rows.Scan(&l.ID, &l.BudgetPeriodID, &l.Category, &l.Description, &l.Amount, &l.SortOrder, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan budget line: %w", err)
		}
		lines = append(lines, &l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating budget lines: %w", err)
	}

	return lines, nil
}

// UpdateLineAmount sets the amount of a budget line.
func (s *BuildingStore) UpdateLineAmount(ctx context.Context, lineID uuid.UUID, amount decimal.Decimal) error {
	result, err := s.q.Exec(ctx, `UPDATE budget_lines SET amount = $2 WHERE budget_line_id = $1`, lineID, amount)
	if err != nil {
		return fmt.Errorf("failed to update budget line: %w", mapPostgresError(err))
	}
	if result.RowsAffected() == 0 {
		return store.ErrLineNotFound
	}
	return nil
}

// UpsertContribution sets a unit's contribution for a period.
func (s *BuildingStore) UpsertContribution(ctx context.Context, c *models.BudgetUnitContribution) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO budget_unit_contributions (budget_period_id, unit_id, amount)
		VALUES ($1, $2, $3)
		ON CONFLICT (budget_period_id, unit_id) DO UPDATE SET amount = EXCLUDED.amount
	`, c.BudgetPeriodID, c.UnitID, c.Amount)
	if err != nil {
		return fmt.Errorf("failed to upsert contribution: %w", mapPostgresError(err))
	}
	return nil
}

// ListContributions returns every unit contribution of a period.
func (s *BuildingStore) ListContributions(ctx context.Context, periodID uuid.UUID) ([]*models.BudgetUnitContribution, error) {
	rows, err := s.q.Query(ctx,
		`SELECT budget_period_id, unit_id, amount FROM budget_unit_contributions WHERE budget_period_id = $1`,
		periodID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list contributions: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var contributions []*models.BudgetUnitContribution
	for rows.Next() {
		var c models.BudgetUnitContribution
		if err := rows.Scan(&c.BudgetPeriodID, &c.UnitID, &c.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan contribution: %w", err)
		}
		contributions = append(contributions, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contributions: %w", err)
	}

	return contributions, nil
}

func scanPeriod(row pgx.Row) (*models.BudgetPeriod, error) {
	var p models.BudgetPeriod
	err := row.Scan(
		&p.ID,
		&p.BuildingID,
		&p.Name,
		&p.Year,
		&p.Status,
		&p.OpeningBalance,
		&p.StartDate,
		&p.EndDate,
		&p.SentForApprovalAt,
		&p.ApprovedAt,
		&p.ClosedAt,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrPeriodNotFound
		}
		return nil, fmt.Errorf("failed to scan budget period: %w", mapPostgresError(err))
	}
	return &p, nil
}

// CountApprovals returns the number of approval rows issued for a period.
func (s *BuildingStore) CountApprovals(ctx context.Context, periodID uuid.UUID) (int, error) {
	var n int
	err := s.q.QueryRow(ctx, `SELECT COUNT(*) FROM budget_approvals WHERE budget_period_id = $1`, periodID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count approvals: %w", mapPostgresError(err))
	}
	return n, nil
}

// InsertApproval inserts an approval capability for one unit.
func (s *BuildingStore) InsertApproval(ctx context.Context, a *models.BudgetApproval) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO budget_approvals (budget_approval_id, budget_period_id, unit_id, token, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, a.ID, a.BudgetPeriodID, a.UnitID, a.Token, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert approval: %w", mapPostgresError(err))
	}
	return nil
}

const approvalColumns = `budget_approval_id, budget_period_id, unit_id, token, approved_at, rejected_at, rejection_reason, created_at`

// GetApprovalByToken locks and returns the approval row holding token.
func (s *BuildingStore) GetApprovalByToken(ctx context.Context, token string) (*models.BudgetApproval, error) {
	row := s.q.QueryRow(ctx, `SELECT `+approvalColumns+` FROM budget_approvals WHERE token = $1 FOR UPDATE`, token)
	a, err := scanApproval(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrApprovalNotFound
		}
		return nil, fmt.Errorf("failed to get approval: %w", mapPostgresError(err))
	}
	return a, nil
}

// MarkApproved records an approval. Rows that already hold a response are left untouched.
func (s *BuildingStore) MarkApproved(ctx context.Context, approvalID uuid.UUID, at time.Time) error {
	result, err := s.q.Exec(ctx, `
		UPDATE budget_approvals SET approved_at = $2
		WHERE budget_approval_id = $1 AND approved_at IS NULL AND rejected_at IS NULL
	`, approvalID, at)
	if err != nil {
		return fmt.Errorf("failed to mark approval: %w", mapPostgresError(err))
	}
	if result.RowsAffected() == 0 {
		return store.ErrApprovalNotFound
	}
	return nil
}

// MarkRejected records a rejection. Rows that already hold a response are left untouched.
func (s *BuildingStore) MarkRejected(ctx context.Context, approvalID uuid.UUID, at time.Time, reason string) error {
	result, err := s.q.Exec(ctx, `
		UPDATE budget_approvals SET rejected_at = $2, rejection_reason = $3
		WHERE budget_approval_id = $1 AND approved_at IS NULL AND rejected_at IS NULL
	`, approvalID, at, reason)
	if err != nil {
		return fmt.Errorf("failed to mark rejection: %w", mapPostgresError(err))
	}
	if result.RowsAffected() == 0 {
		return store.ErrApprovalNotFound
	}
	return nil
}

// CountApprovedUnits counts distinct units that approved the period.
func (s *BuildingStore) CountApprovedUnits(ctx context.Context, periodID uuid.UUID) (int, error) {
	var n int
	err := s.q.QueryRow(ctx, `
		SELECT COUNT(DISTINCT unit_id) FROM budget_approvals
		WHERE budget_period_id = $1 AND approved_at IS NOT NULL
	`, periodID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count approved units: %w", mapPostgresError(err))
	}
	return n, nil
}

// ListApprovals returns every approval row of a period.
func (s *BuildingStore) ListApprovals(ctx context.Context, periodID uuid.UUID) ([]*models.BudgetApproval, error) {
	rows, err := s.q.Query(ctx, `SELECT `+approvalColumns+` FROM budget_approvals WHERE budget_period_id = $1 ORDER BY created_at`, periodID)
	if err != nil {
		return nil, fmt.Errorf("failed to list approvals: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var approvals []*models.BudgetApproval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		approvals = append(approvals, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating approvals: %w", err)
	}

	return approvals, nil
}

func scanApproval(row pgx.Row) (*models.BudgetApproval, error) {
	var a models.BudgetApproval
	if err := row.Scan(
		&a.ID,
		&a.BudgetPeriodID,
		&a.UnitID,
		&a.Token,
		&a.ApprovedAt,
		&a.RejectedAt,
		&a.RejectionReason,
		&a.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &a, nil
}
