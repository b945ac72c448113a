package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/xard1993/komun-api"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Tenant metrics
	TenantsProvisionedTotal    metric.Int64Counter
	ProvisioningFailuresTotal  metric.Int64Counter
	TenantMigrationsTotal      metric.Int64Counter
	TenantTransactionsTotal    metric.Int64Counter
	TenantTransactionRollbacks metric.Int64Counter

	// Budget metrics
	BudgetPeriodsCreatedTotal metric.Int64Counter
	ApprovalTokensIssuedTotal metric.Int64Counter
	ApprovalResponsesTotal    metric.Int64Counter
	QuorumReachedTotal        metric.Int64Counter

	// Notification metrics
	NotificationsSentTotal    metric.Int64Counter
	NotificationFailuresTotal metric.Int64Counter
	NotificationDuration      metric.Float64Histogram

	// Pool metrics
	PoolAcquiredConns metric.Int64Gauge
	PoolIdleConns     metric.Int64Gauge
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	// Tenant metrics
	m.TenantsProvisionedTotal, _ = meter.Int64Counter(
		"komun.tenants.provisioned.total",
		metric.WithDescription("Total number of tenants provisioned to the ready state"),
		metric.WithUnit("{tenant}"),
	)

	m.ProvisioningFailuresTotal, _ = meter.Int64Counter(
		"komun.tenants.provisioning.failures.total",
		metric.WithDescription("Total number of provisioning attempts that stopped before ready"),
		metric.WithUnit("{error}"),
	)

	m.TenantMigrationsTotal, _ = meter.Int64Counter(
		"komun.tenants.migrations.total",
		metric.WithDescription("Total number of migrations applied to tenant schemas"),
		metric.WithUnit("{migration}"),
	)

	m.TenantTransactionsTotal, _ = meter.Int64Counter(
		"komun.tenants.transactions.total",
		metric.WithDescription("Total number of tenant scoped transactions committed"),
		metric.WithUnit("{transaction}"),
	)

	m.TenantTransactionRollbacks, _ = meter.Int64Counter(
		"komun.tenants.transactions.rollbacks.total",
		metric.WithDescription("Total number of tenant scoped transactions rolled back"),
		metric.WithUnit("{transaction}"),
	)

	// Budget metrics
	m.BudgetPeriodsCreatedTotal, _ = meter.Int64Counter(
		"komun.budget.periods.created.total",
		metric.WithDescription("Total number of budget periods created"),
		metric.WithUnit("{period}"),
	)

	m.ApprovalTokensIssuedTotal, _ = meter.Int64Counter(
		"komun.budget.approval_tokens.issued.total",
		metric.WithDescription("Total number of approval tokens issued"),
		metric.WithUnit("{token}"),
	)

	m.ApprovalResponsesTotal, _ = meter.Int64Counter(
		"komun.budget.approval_responses.total",
		metric.WithDescription("Total number of approval responses recorded"),
		metric.WithUnit("{response}"),
	)

	m.QuorumReachedTotal, _ = meter.Int64Counter(
		"komun.budget.quorum.reached.total",
		metric.WithDescription("Total number of budget periods promoted to approved"),
		metric.WithUnit("{period}"),
	)

	// Notification metrics
	m.NotificationsSentTotal, _ = meter.Int64Counter(
		"komun.notifications.sent.total",
		metric.WithDescription("Total number of approval notices delivered"),
		metric.WithUnit("{notice}"),
	)

	m.NotificationFailuresTotal, _ = meter.Int64Counter(
		"komun.notifications.failures.total",
		metric.WithDescription("Total number of approval notices dropped after retries"),
		metric.WithUnit("{notice}"),
	)

	m.NotificationDuration, _ = meter.Float64Histogram(
		"komun.notifications.duration",
		metric.WithDescription("Duration of approval notice delivery including retries"),
		metric.WithUnit("ms"),
	)

	// Pool metrics
	m.PoolAcquiredConns, _ = meter.Int64Gauge(
		"komun.db.pool.acquired_conns",
		metric.WithDescription("Connections currently checked out of the pool"),
		metric.WithUnit("{connection}"),
	)

	m.PoolIdleConns, _ = meter.Int64Gauge(
		"komun.db.pool.idle_conns",
		metric.WithDescription("Idle connections held by the pool"),
		metric.WithUnit("{connection}"),
	)

	return m
}
