package observability

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ---------------------------------------------------------------------------
// Health monitoring — named component checks aggregated into one system
// status, served by the /health endpoint and refreshed on demand.
// ---------------------------------------------------------------------------

// ComponentStatus represents the health status of a component.
type ComponentStatus string

const (
	StatusHealthy   ComponentStatus = "healthy"
	StatusDegraded  ComponentStatus = "degraded"
	StatusUnhealthy ComponentStatus = "unhealthy"
)

// HealthCheck probes one component.
type HealthCheck func(ctx context.Context) ComponentHealth

// ComponentHealth is the health report for a single component.
type ComponentHealth struct {
	Name        string          `json:"name"`
	Status      ComponentStatus `json:"status"`
	Message     string          `json:"message,omitempty"`
	LastChecked time.Time       `json:"last_checked"`
	Latency     time.Duration   `json:"latency_ms"`
}

// SystemHealth is the aggregate health of the whole service. Status is the
// worst component status.
type SystemHealth struct {
	Status     ComponentStatus            `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  time.Time                  `json:"ts"`
	Uptime     time.Duration              `json:"uptime"`
}

// HealthMonitor runs registered checks and caches the latest results.
type HealthMonitor struct {
	mu        sync.RWMutex
	checks    map[string]HealthCheck
	results   map[string]ComponentHealth
	startTime time.Time
}

// NewHealthMonitor creates an empty monitor.
func NewHealthMonitor() *HealthMonitor {
	return &HealthMonitor{
		checks:    make(map[string]HealthCheck),
		results:   make(map[string]ComponentHealth),
		startTime: time.Now(),
	}
}

// Register adds a named health check.
func (m *HealthMonitor) Register(name string, check HealthCheck) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
}

// Check runs every registered check and returns the aggregate system health.
func (m *HealthMonitor) Check(ctx context.Context) SystemHealth {
	m.mu.RLock()
	checks := make(map[string]HealthCheck, len(m.checks))
	for name, fn := range m.checks {
		checks[name] = fn
	}
	m.mu.RUnlock()

	results := make(map[string]ComponentHealth, len(checks))
	worst := StatusHealthy
	for name, fn := range checks {
		start := time.Now()
		result := fn(ctx)
		result.Name = name
		result.LastChecked = time.Now()
		result.Latency = time.Since(start)
		results[name] = result
		if statusSeverity(result.Status) > statusSeverity(worst) {
			worst = result.Status
		}
	}

	m.mu.Lock()
	m.results = results
	m.mu.Unlock()

	return SystemHealth{
		Status:     worst,
		Components: results,
		Timestamp:  time.Now(),
		Uptime:     time.Since(m.startTime),
	}
}

// ComponentStatus returns the most recent result for a named component.
func (m *HealthMonitor) ComponentStatus(name string) (ComponentHealth, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.results[name]
	return h, ok
}

func statusSeverity(s ComponentStatus) int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	case StatusUnhealthy:
		return 2
	default:
		return -1
	}
}

// ---------------------------------------------------------------------------
// Standard pulse checks
// ---------------------------------------------------------------------------

// Pinger is anything that can confirm store reachability.
type Pinger interface {
	Get(ctx context.Context, key string) (string, error)
}

// StoreCheck probes the KV store with a throwaway read. A not-found result
// still proves the store answers.
func StoreCheck(kv Pinger, notFound error) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		_, err := kv.Get(ctx, "pulse:health:probe")
		if err != nil && err != notFound {
			return ComponentHealth{Status: StatusUnhealthy, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusHealthy}
	}
}

// ModelCheck reports whether the sentiment model is configured. Unconfigured
// is degraded, not unhealthy: the fallback scorer keeps the service useful.
func ModelCheck(configured func() bool) HealthCheck {
	return func(_ context.Context) ComponentHealth {
		if !configured() {
			return ComponentHealth{Status: StatusDegraded, Message: "sentiment model not configured, keyword fallback only"}
		}
		return ComponentHealth{Status: StatusHealthy}
	}
}

// LastRunCheck flags a stale scheduler. A service that has never run yet is
// degraded; one whose last run is older than maxAge is unhealthy.
func LastRunCheck(lastRunUnix func() int64, maxAge time.Duration) HealthCheck {
	return func(_ context.Context) ComponentHealth {
		ts := lastRunUnix()
		if ts == 0 {
			return ComponentHealth{Status: StatusDegraded, Message: "no run completed yet"}
		}
		age := time.Since(time.Unix(ts, 0))
		if age > maxAge {
			return ComponentHealth{
				Status:  StatusUnhealthy,
				Message: fmt.Sprintf("last run %s ago, max %s", age.Round(time.Second), maxAge),
			}
		}
		return ComponentHealth{Status: StatusHealthy}
	}
}
