package metrics

import (
	"context"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AppMetrics holds the application's metric instruments.
type AppMetrics struct {
	LoginAttemptsTotal      metric.Int64Counter
	TokenVerificationsTotal metric.Int64Counter
	OAuthLinksTotal         metric.Int64Counter
	RoleChangesTotal        metric.Int64Counter
	DbQueryDurationSeconds  metric.Float64Histogram
}

var (
	appMetrics *AppMetrics
	once       sync.Once
)

// InitAppMetrics initializes the global metrics instruments ONLY ONCE.
// It gets the Meter from the globally configured MeterProvider.
func InitAppMetrics() {
	once.Do(func() {
		meter := otel.GetMeterProvider().Meter("go-account-service")
		var err error
		m := &AppMetrics{}

		m.LoginAttemptsTotal, err = meter.Int64Counter(
			"login_attempts_total",
			metric.WithDescription("Total number of credential login attempts, by outcome"),
			metric.WithUnit("{attempt}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create login_attempts_total: %v", err)
		}

		m.TokenVerificationsTotal, err = meter.Int64Counter(
			"token_verifications_total",
			metric.WithDescription("Total number of bearer token verifications, by outcome"),
			metric.WithUnit("{verification}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create token_verifications_total: %v", err)
		}

		m.OAuthLinksTotal, err = meter.Int64Counter(
			"oauth_links_total",
			metric.WithDescription("Total number of OAuth link-or-create operations, by result"),
			metric.WithUnit("{operation}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create oauth_links_total: %v", err)
		}

		m.RoleChangesTotal, err = meter.Int64Counter(
			"role_changes_total",
			metric.WithDescription("Total number of role change requests, by outcome"),
			metric.WithUnit("{request}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create role_changes_total: %v", err)
		}

		m.DbQueryDurationSeconds, err = meter.Float64Histogram(
			"db_query_duration_seconds",
			metric.WithDescription("Duration of database queries in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create db_query_duration_seconds: %v", err)
		}

		appMetrics = m
	})
}

// RecordDBQuery feeds the db query duration histogram for an operation that
// began at start. Intended use: defer m.RecordDBQuery(ctx, "GetUserByID", time.Now()).
func (m *AppMetrics) RecordDBQuery(ctx context.Context, operation string, start time.Time) {
	m.DbQueryDurationSeconds.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("db.operation", operation)))
}

// Get returns the globally initialized AppMetrics instance.
// Panics if InitAppMetrics was not called first.
func Get() *AppMetrics {
	if appMetrics == nil {
		panic("metrics instruments not initialized. Call metrics.InitAppMetrics() first.")
	}
	return appMetrics
}
