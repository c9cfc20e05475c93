package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "multisite"

// Metrics holds the resolution core's metric instruments. A nil *Metrics is
// valid and records nothing, which keeps tests free of telemetry wiring.
type Metrics struct {
	domainCacheHits   metric.Int64Counter
	domainCacheMisses metric.Int64Counter
	queryCacheHits    metric.Int64Counter
	queryCacheMisses  metric.Int64Counter
	storeQueries      metric.Int64Counter
	revalidations     metric.Int64Counter
	repairFailures    metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.domainCacheHits, err = meter.Int64Counter("multisite.domain_cache.hits",
		metric.WithDescription("Domain resolver cache hits"))
	if err != nil {
		return nil, err
	}

	m.domainCacheMisses, err = meter.Int64Counter("multisite.domain_cache.misses",
		metric.WithDescription("Domain resolver cache misses"))
	if err != nil {
		return nil, err
	}

	m.queryCacheHits, err = meter.Int64Counter("multisite.query_cache.hits",
		metric.WithDescription("Content store query cache hits"))
	if err != nil {
		return nil, err
	}

	m.queryCacheMisses, err = meter.Int64Counter("multisite.query_cache.misses",
		metric.WithDescription("Content store query cache misses"))
	if err != nil {
		return nil, err
	}

	m.storeQueries, err = meter.Int64Counter("multisite.store.queries",
		metric.WithDescription("Round trips to the external content store"))
	if err != nil {
		return nil, err
	}

	m.revalidations, err = meter.Int64Counter("multisite.revalidations",
		metric.WithDescription("Revalidation notifications dispatched"))
	if err != nil {
		return nil, err
	}

	m.repairFailures, err = meter.Int64Counter("multisite.repair.failures",
		metric.WithDescription("Dependent-record repair failures"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// DomainCacheHit records a domain resolver cache hit.
func (m *Metrics) DomainCacheHit(ctx context.Context) {
	if m == nil {
		return
	}
	m.domainCacheHits.Add(ctx, 1)
}

// DomainCacheMiss records a domain resolver cache miss.
func (m *Metrics) DomainCacheMiss(ctx context.Context) {
	if m == nil {
		return
	}
	m.domainCacheMisses.Add(ctx, 1)
}

// QueryCacheHit records a gateway query cache hit.
func (m *Metrics) QueryCacheHit(ctx context.Context) {
	if m == nil {
		return
	}
	m.queryCacheHits.Add(ctx, 1)
}

// QueryCacheMiss records a gateway query cache miss.
func (m *Metrics) QueryCacheMiss(ctx context.Context) {
	if m == nil {
		return
	}
	m.queryCacheMisses.Add(ctx, 1)
}

// StoreQuery records a round trip to the external store.
func (m *Metrics) StoreQuery(ctx context.Context) {
	if m == nil {
		return
	}
	m.storeQueries.Add(ctx, 1)
}

// Revalidation records one dispatched change notification.
func (m *Metrics) Revalidation(ctx context.Context) {
	if m == nil {
		return
	}
	m.revalidations.Add(ctx, 1)
}

// RepairFailure records one failed dependent-record patch.
func (m *Metrics) RepairFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.repairFailures.Add(ctx, 1)
}
