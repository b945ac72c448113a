package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xard1993/komun-api/internal/store"
)

// constraint names declared in migrations/
const (
	constraintTenantSlug         = "tenants_slug_key"
	constraintUserEmail          = "users_email_key"
	constraintPeriodBuildingYear = "budget_periods_building_id_year_key"
	constraintApprovalToken      = "budget_approvals_token_key"
	constraintUnitBuilding       = "units_building_id_fkey"
	constraintPeriodBuilding     = "budget_periods_building_id_fkey"
	constraintTransactionBuild   = "financial_transactions_building_id_fkey"
	constraintMemberUnit         = "unit_members_unit_id_fkey"
	constraintContributionUnit   = "budget_unit_contributions_unit_id_fkey"
)

// mapPostgresError maps PostgreSQL-specific errors to sentinel errors.
// Returns the original error if it's not a PostgreSQL error or doesn't match known patterns.
func mapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		switch pgErr.ConstraintName {
		case constraintTenantSlug:
			return store.ErrTenantAlreadyExists
		case constraintUserEmail:
			return store.ErrUserAlreadyExists
		case constraintPeriodBuildingYear:
			return store.ErrPeriodAlreadyExists
		}
		return fmt.Errorf("unique constraint violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.ForeignKeyViolation:
		switch pgErr.ConstraintName {
		case constraintUnitBuilding, constraintPeriodBuilding, constraintTransactionBuild:
			return fmt.Errorf("%w: %s", store.ErrBuildingNotFound, pgErr.Detail)
		case constraintMemberUnit, constraintContributionUnit:
			return fmt.Errorf("%w: %s", store.ErrUnitNotFound, pgErr.Detail)
		}
		return fmt.Errorf("foreign key violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.DuplicateSchema:
		// long slugs can collide once postgres truncates the schema name
		return fmt.Errorf("%w: %s", store.ErrTenantAlreadyExists, pgErr.Message)

	case pgerrcode.CheckViolation:
		return fmt.Errorf("check constraint violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.InvalidSchemaName, pgerrcode.UndefinedTable:
		// tenant schema missing or not migrated
		return fmt.Errorf("%w: %s", store.ErrTenantNotFound, pgErr.Message)

	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
		return fmt.Errorf("transaction conflict (retryable): %w", err)

	case pgerrcode.ConnectionException,
		pgerrcode.ConnectionDoesNotExist,
		pgerrcode.ConnectionFailure,
		pgerrcode.CannotConnectNow,
		pgerrcode.SQLClientUnableToEstablishSQLConnection:
		return fmt.Errorf("database connection error: %w", err)

	case pgerrcode.AdminShutdown,
		pgerrcode.CrashShutdown:
		return fmt.Errorf("database server unavailable: %w", err)

	case pgerrcode.QueryCanceled:
		return fmt.Errorf("query canceled: %w", err)

	case pgerrcode.InsufficientResources,
		pgerrcode.DiskFull,
		pgerrcode.OutOfMemory,
		pgerrcode.TooManyConnections:
		return fmt.Errorf("database resource limit: %w", err)

	default:
		return fmt.Errorf("postgres error [%s]: %s (detail: %s, hint: %s): %w",
			pgErr.Code, pgErr.Message, pgErr.Detail, pgErr.Hint, err)
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
