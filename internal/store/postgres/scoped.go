package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
	"github.com/xard1993/komun-api/internal/store"
	"github.com/xard1993/komun-api/internal/telemetry"
	"github.com/xard1993/komun-api/internal/tenancy"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DBTX is the query surface shared by pools, connections and transactions.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxBeginner starts a transaction on a freshly acquired connection. *pgxpool.Pool
// satisfies it; the connection goes back to the pool when the transaction ends.
type TxBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// WithTenant runs fn inside one transaction whose search_path is bound to the tenant's
// schema, falling back to public. The binding is transaction local, so it disappears
// with the transaction and never leaks onto the pooled connection.
//
// An invalid slug fails with tenancy.ErrInvalidTenantIdentifier before any connection is
// acquired. If fn or any setup step fails the transaction is rolled back and the original
// error is returned; rollback failures are logged only. Nothing is retried.
//
// Calling WithTenant again from inside fn, for any tenant, begins an independent
// transaction on another connection.
func WithTenant[T any](ctx context.Context, db TxBeginner, slug string, fn func(ctx context.Context, q DBTX) (T, error)) (T, error) {
	return withTenant(ctx, db, &ExecutorConfig{}, slug, fn)
}

func withTenant[T any](ctx context.Context, db TxBeginner, cfg *ExecutorConfig, slug string, fn func(ctx context.Context, q DBTX) (T, error)) (result T, err error) {
	var zero T

	schema, err := tenancy.Resolve(slug)
	if err != nil {
		return zero, err
	}

	ctx, span := telemetry.Tracer().Start(ctx, "tenant.transaction")
	span.SetAttributes(attribute.String("tenant.schema", schema.Name()), attribute.Bool("tenant.read_only", cfg.ReadOnly))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	opts := pgx.TxOptions{}
	if cfg.ReadOnly {
		opts.AccessMode = pgx.ReadOnly
	}

	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return zero, fmt.Errorf("failed to begin tenant transaction: %w", mapPostgresError(err))
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		telemetry.GetMetrics().TenantTransactionRollbacks.Add(ctx, 1)
		// the caller's context may already be cancelled; rollback must still be attempted
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			log.Warn().Err(rbErr).Str("schema", schema.Name()).Msg("Failed to roll back tenant transaction")
		}
	}()

	if _, err = tx.Exec(ctx, schema.SearchPath()); err != nil {
		return zero, fmt.Errorf("failed to bind search path: %w", mapPostgresError(err))
	}

	if stmt := cfg.statementTimeoutSQL(); stmt != "" {
		if _, err = tx.Exec(ctx, stmt); err != nil {
			return zero, fmt.Errorf("failed to set statement timeout: %w", mapPostgresError(err))
		}
	}

	result, err = fn(ctx, tx)
	if err != nil {
		return zero, err
	}

	if err = tx.Commit(ctx); err != nil {
		return zero, fmt.Errorf("failed to commit tenant transaction: %w", mapPostgresError(err))
	}
	committed = true
	telemetry.GetMetrics().TenantTransactionsTotal.Add(ctx, 1)

	return result, nil
}

// TenantExecutor is the long lived handle used by services to reach tenant data.
// It wraps the shared pool and implements store.TenantScope.
type TenantExecutor struct {
	db  TxBeginner
	cfg *ExecutorConfig
}

var _ store.TenantScope = (*TenantExecutor)(nil)

// NewTenantExecutor creates an executor over db. A nil cfg uses the defaults.
func NewTenantExecutor(db TxBeginner, cfg *ExecutorConfig) (*TenantExecutor, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if cfg == nil {
		cfg = &ExecutorConfig{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid executor config: %w", err)
	}
	return &TenantExecutor{db: db, cfg: cfg}, nil
}

// Run executes fn in a transaction bound to the tenant's schema.
func (e *TenantExecutor) Run(ctx context.Context, slug string, fn func(ctx context.Context, q DBTX) error) error {
	_, err := withTenant(ctx, e.db, e.cfg, slug, func(ctx context.Context, q DBTX) (struct{}, error) {
		return struct{}{}, fn(ctx, q)
	})
	return err
}

// InTenant executes fn with a BuildingStore bound to the tenant transaction.
func (e *TenantExecutor) InTenant(ctx context.Context, slug string, fn func(ctx context.Context, bs store.BuildingStore) error) error {
	return e.Run(ctx, slug, func(ctx context.Context, q DBTX) error {
		return fn(ctx, NewBuildingStore(q))
	})
}
