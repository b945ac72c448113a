package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"github.com/xard1993/komun-api/internal/store"
)

func TestMapPostgresError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "duplicate tenant slug",
			err:  &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: constraintTenantSlug},
			want: store.ErrTenantAlreadyExists,
		},
		{
			name: "truncated schema name collides",
			err:  &pgconn.PgError{Code: pgerrcode.DuplicateSchema, Message: `schema "tenant_x" already exists`},
			want: store.ErrTenantAlreadyExists,
		},
		{
			name: "duplicate user email",
			err:  &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: constraintUserEmail},
			want: store.ErrUserAlreadyExists,
		},
		{
			name: "duplicate period year",
			err:  &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: constraintPeriodBuildingYear},
			want: store.ErrPeriodAlreadyExists,
		},
		{
			name: "unit of unknown building",
			err:  &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation, ConstraintName: constraintUnitBuilding},
			want: store.ErrBuildingNotFound,
		},
		{
			name: "missing tenant schema",
			err:  &pgconn.PgError{Code: pgerrcode.UndefinedTable},
			want: store.ErrTenantNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapPostgresError(fmt.Errorf("exec: %w", tt.err))
			require.ErrorIs(t, got, tt.want)
		})
	}
}

func TestMapPostgresError_passthrough(t *testing.T) {
	require.NoError(t, mapPostgresError(nil))

	plain := errors.New("boom")
	require.Equal(t, plain, mapPostgresError(plain))

	unknown := &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "other_key"}
	got := mapPostgresError(unknown)
	require.ErrorIs(t, got, unknown)
	require.NotErrorIs(t, got, store.ErrTenantAlreadyExists)
}
