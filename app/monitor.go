// Package app provides application services that orchestrate domain logic.
package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/quotamon/domain/alert"
	"github.com/artpar/quotamon/domain/period"
	"github.com/artpar/quotamon/domain/quota"
	"github.com/artpar/quotamon/ports"
)

// Metric names published to the sink. The vocabulary is shared with the
// CloudWatch dashboards and alarms built on it, so renaming is a breaking
// change.
const (
	MetricCallCount    = "APICallCount"
	MetricCallStatus   = "APICallStatus"
	MetricQuotaUsage   = "QuotaUsage"
	MetricUsagePercent = "QuotaUsagePercentage"
	MetricAPIError     = "APIError"
)

// Outcome describes one completed call against a metered resource.
type Outcome struct {
	Operation    string // call kind label, e.g. "AutotagPDF"
	Succeeded    bool
	QuotaRelated bool // failure was the provider rejecting for quota
}

// Snapshot is a point-in-time usage view for one resource.
type Snapshot struct {
	Resource      string      `json:"resource"`
	Period        string      `json:"period"`
	Count         int64       `json:"count"`
	Limit         int64       `json:"limit"`
	Percent       float64     `json:"percent"`
	Level         quota.Level `json:"-"`
	LastUpdated   time.Time   `json:"last_updated"`
	LastOperation string      `json:"last_operation,omitempty"`
}

// Monitor meters calls against per-period quotas and gates new ones.
//
// Admission checks are advisory: nothing is reserved, and concurrent
// callers may overshoot the limit by their own count. Threshold alerts
// fire once per (resource, period) within this process; separate
// processes sharing a counter store each keep their own fired state.
type Monitor struct {
	store    ports.CounterStore
	metrics  ports.MetricSink
	notifier ports.Notifier
	clock    ports.Clock
	idGen    ports.IDGenerator
	periodFn func(time.Time) string
	logger   zerolog.Logger

	resources map[string]quota.Config
	failOpen  bool

	mu    sync.Mutex
	fired map[firedKey]quota.Level // highest level already notified
}

type firedKey struct {
	resource string
	period   string
}

// MonitorDeps contains dependencies for Monitor.
type MonitorDeps struct {
	Store    ports.CounterStore
	Metrics  ports.MetricSink
	Notifier ports.Notifier
	Clock    ports.Clock
	IDGen    ports.IDGenerator
	PeriodFn func(time.Time) string // defaults to period.Key
	Logger   zerolog.Logger
}

// MonitorConfig contains configuration for Monitor.
type MonitorConfig struct {
	// Resources maps resource names to their quotas. Calls against an
	// unconfigured resource are tracked but never gated.
	Resources map[string]quota.Config

	// FailOpen admits calls when the counter store cannot answer an
	// admission check. When false the check fails closed instead.
	FailOpen bool
}

// NewMonitor creates a new monitor service.
func NewMonitor(deps MonitorDeps, cfg MonitorConfig) *Monitor {
	periodFn := deps.PeriodFn
	if periodFn == nil {
		periodFn = period.Key
	}

	resources := make(map[string]quota.Config, len(cfg.Resources))
	for name, qc := range cfg.Resources {
		resources[name] = qc
	}

	return &Monitor{
		store:     deps.Store,
		metrics:   deps.Metrics,
		notifier:  deps.Notifier,
		clock:     deps.Clock,
		idGen:     deps.IDGen,
		periodFn:  periodFn,
		logger:    deps.Logger,
		resources: resources,
		failOpen:  cfg.FailOpen,
		fired:     make(map[firedKey]quota.Level),
	}
}

// Resources returns the configured resource names, sorted.
func (m *Monitor) Resources() []string {
	names := make([]string, 0, len(m.resources))
	for name := range m.resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Configured reports whether the resource has a quota declaration.
func (m *Monitor) Configured(resource string) bool {
	_, ok := m.resources[resource]
	return ok
}

// configFor returns the quota for resource, tracking-only when unconfigured.
func (m *Monitor) configFor(resource string) quota.Config {
	if cfg, ok := m.resources[resource]; ok {
		return cfg
	}
	return quota.DefaultConfig()
}

// CheckAvailable reports whether another call to resource should be made
// now. An unenforced quota (limit 0) is always available and performs no
// store read. A denial carries *quota.ExceededError; a store outage under
// the fail-closed policy carries *quota.UnavailableError.
func (m *Monitor) CheckAvailable(ctx context.Context, resource string) (quota.Decision, error) {
	cfg := m.configFor(resource)
	if !cfg.Enforced() {
		return quota.Decision{Allowed: true}, nil
	}

	p := m.periodFn(m.clock.Now())
	rec, err := m.store.Read(ctx, resource, p)
	if err != nil {
		if m.failOpen {
			m.logger.Warn().Err(err).
				Str("resource", resource).
				Str("period", p).
				Msg("counter store unavailable, admitting fail-open")
			return quota.Decision{Allowed: true, Limit: cfg.Limit}, nil
		}
		m.logger.Error().Err(err).
			Str("resource", resource).
			Str("period", p).
			Msg("counter store unavailable, denying fail-closed")
		return quota.Decision{Allowed: false, Limit: cfg.Limit},
			&quota.UnavailableError{Resource: resource, Err: err}
	}

	d := quota.Check(rec.Count, cfg)
	if !d.Allowed {
		return d, &quota.ExceededError{Resource: resource, Count: rec.Count, Limit: cfg.Limit}
	}
	return d, nil
}

// RecordCall records the outcome of one call against resource. It never
// returns an error: metering must not break the caller, so every store,
// sink and notifier failure inside is logged and swallowed.
func (m *Monitor) RecordCall(ctx context.Context, resource string, outcome Outcome) {
	cfg := m.configFor(resource)
	now := m.clock.Now()
	p := m.periodFn(now)

	status := "Success"
	if !outcome.Succeeded {
		status = "Failure"
	}
	m.publish(ctx,
		ports.Datum{
			Name:  MetricCallCount,
			Value: 1,
			Unit:  "Count",
			Dimensions: map[string]string{
				"Resource":  resource,
				"Operation": outcome.Operation,
			},
			At: now,
		},
		ports.Datum{
			Name:  MetricCallStatus,
			Value: 1,
			Unit:  "Count",
			Dimensions: map[string]string{
				"Resource":  resource,
				"Operation": outcome.Operation,
				"Status":    status,
			},
			At: now,
		},
	)

	if !outcome.Succeeded {
		m.recordFailure(ctx, resource, p, cfg, outcome, now)
		return
	}

	rec, err := m.store.Increment(ctx, resource, p, 1, outcome.Operation, now)
	if err != nil {
		m.logger.Error().Err(err).
			Str("resource", resource).
			Str("period", p).
			Msg("failed to increment usage counter")
		return
	}

	if !cfg.Enforced() {
		return
	}

	a := quota.Assess(rec.Count, cfg)
	m.publish(ctx,
		ports.Datum{
			Name:  MetricQuotaUsage,
			Value: float64(a.Count),
			Unit:  "Count",
			Dimensions: map[string]string{
				"Resource": resource,
				"Period":   p,
			},
			At: now,
		},
		ports.Datum{
			Name:  MetricUsagePercent,
			Value: a.Percent,
			Unit:  "Percent",
			Dimensions: map[string]string{
				"Resource": resource,
				"Period":   p,
			},
			At: now,
		},
	)

	if a.Level != quota.LevelNone {
		m.alertOnce(ctx, resource, p, a.Level, a, now)
	}
}

// recordFailure handles the failed-call branch of RecordCall. A failure
// the provider attributed to quota raises the exceeded alert immediately,
// whatever the local percentage says.
func (m *Monitor) recordFailure(ctx context.Context, resource, p string, cfg quota.Config, outcome Outcome, now time.Time) {
	if !outcome.QuotaRelated {
		return
	}

	m.publish(ctx, ports.Datum{
		Name:  MetricAPIError,
		Value: 1,
		Unit:  "Count",
		Dimensions: map[string]string{
			"Resource":  resource,
			"Operation": outcome.Operation,
			"ErrorType": "QuotaExceeded",
		},
		At: now,
	})

	// Best effort: the alert is more useful with the current count in it.
	rec, err := m.store.Read(ctx, resource, p)
	if err != nil {
		m.logger.Warn().Err(err).
			Str("resource", resource).
			Str("period", p).
			Msg("could not read counter for exceeded alert")
	}

	m.alertOnce(ctx, resource, p, quota.LevelExceeded, quota.Assess(rec.Count, cfg), now)
}

// Usage returns the current-period usage snapshot for resource.
func (m *Monitor) Usage(ctx context.Context, resource string) (Snapshot, error) {
	cfg := m.configFor(resource)
	p := m.periodFn(m.clock.Now())

	rec, err := m.store.Read(ctx, resource, p)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read usage for %s: %w", resource, err)
	}

	a := quota.Assess(rec.Count, cfg)
	return Snapshot{
		Resource:      resource,
		Period:        p,
		Count:         rec.Count,
		Limit:         cfg.Limit,
		Percent:       a.Percent,
		Level:         a.Level,
		LastUpdated:   rec.LastUpdated,
		LastOperation: rec.LastOperation,
	}, nil
}

// alertOnce sends the notification for level unless an equal or higher
// level was already notified for (resource, period) in this process. The
// level is claimed before sending so concurrent callers cannot duplicate
// it, and released again if delivery fails so a later call can retry.
func (m *Monitor) alertOnce(ctx context.Context, resource, p string, level quota.Level, a quota.Assessment, now time.Time) {
	key := firedKey{resource: resource, period: p}

	m.mu.Lock()
	prev := m.fired[key]
	if prev >= level {
		m.mu.Unlock()
		return
	}
	m.fired[key] = level
	m.pruneFiredLocked(p)
	m.mu.Unlock()

	al := alert.Alert{
		Severity: level,
		Resource: resource,
		Count:    a.Count,
		Limit:    a.Limit,
		Percent:  a.Percent,
		Period:   p,
		At:       now,
	}
	n := ports.Notification{
		ID:      m.idGen.New(),
		Subject: al.Subject(),
		Body:    al.Body(),
	}

	if err := m.notifier.Send(ctx, n); err != nil {
		m.logger.Error().Err(err).
			Str("resource", resource).
			Str("severity", level.String()).
			Str("alert_id", n.ID).
			Msg("failed to send quota alert")

		// Release the claim so the next crossing retries, unless a
		// higher level claimed it in the meantime.
		m.mu.Lock()
		if m.fired[key] == level {
			m.fired[key] = prev
		}
		m.mu.Unlock()
		return
	}

	m.logger.Info().
		Str("resource", resource).
		Str("severity", level.String()).
		Str("period", p).
		Int64("count", a.Count).
		Int64("limit", a.Limit).
		Str("alert_id", n.ID).
		Msg("quota alert sent")
}

// pruneFiredLocked drops fired state from earlier periods. Periods only
// move forward, so anything not in the current period is stale.
func (m *Monitor) pruneFiredLocked(current string) {
	for key := range m.fired {
		if key.period != current {
			delete(m.fired, key)
		}
	}
}

// publish sends datums to the metric sink, logging failures.
func (m *Monitor) publish(ctx context.Context, datums ...ports.Datum) {
	for _, d := range datums {
		if err := m.metrics.Publish(ctx, d); err != nil {
			m.logger.Warn().Err(err).
				Str("metric", d.Name).
				Msg("failed to publish metric datum")
		}
	}
}
