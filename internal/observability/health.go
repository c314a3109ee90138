package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component
type HealthStatus int

const (
	HealthStatusUp HealthStatus = iota
	HealthStatusDegraded
	HealthStatusDown
)

var statusNames = map[HealthStatus]string{
	HealthStatusUp:       "UP",
	HealthStatusDegraded: "DEGRADED",
	HealthStatusDown:     "DOWN",
}

func (s HealthStatus) String() string {
	return statusNames[s]
}

// MarshalJSON renders the status by name
func (s HealthStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// HealthCheck represents a health check
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) HealthResult
}

// HealthResult represents the result of a health check
type HealthResult struct {
	Status  HealthStatus           `json:"status"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// HealthReport represents the overall health report
type HealthReport struct {
	Status     HealthStatus            `json:"status"`
	Timestamp  time.Time               `json:"timestamp"`
	Components map[string]HealthResult `json:"components"`
}

// CheckFunc adapts a function to HealthCheck
type CheckFunc struct {
	CheckName string
	Fn        func(ctx context.Context) HealthResult
}

func (c CheckFunc) Name() string { return c.CheckName }

func (c CheckFunc) Check(ctx context.Context) HealthResult { return c.Fn(ctx) }

// HealthManager runs registered checks and aggregates them
type HealthManager struct {
	mu      sync.RWMutex
	checks  map[string]HealthCheck
	timeout time.Duration
	logger  *Logger
}

// NewHealthManager creates a new health manager
func NewHealthManager(timeout time.Duration, logger *Logger) *HealthManager {
	if logger == nil {
		logger = GetDefaultLogger()
	}
	return &HealthManager{
		checks:  make(map[string]HealthCheck),
		timeout: timeout,
		logger:  logger,
	}
}

// RegisterCheck registers a health check, replacing one with the same name
func (hm *HealthManager) RegisterCheck(check HealthCheck) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checks[check.Name()] = check
}

// CheckHealth runs every check concurrently. The overall status is the worst
// component status.
func (hm *HealthManager) CheckHealth(ctx context.Context) HealthReport {
	hm.mu.RLock()
	names := make([]string, 0, len(hm.checks))
	for name := range hm.checks {
		names = append(names, name)
	}
	checks := make([]HealthCheck, len(names))
	sort.Strings(names)
	for i, name := range names {
		checks[i] = hm.checks[name]
	}
	hm.mu.RUnlock()

	if hm.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, hm.timeout)
		defer cancel()
	}

	results := make([]HealthResult, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(i int, check HealthCheck) {
			defer wg.Done()
			results[i] = check.Check(ctx)
		}(i, check)
	}
	wg.Wait()

	report := HealthReport{
		Status:     HealthStatusUp,
		Timestamp:  time.Now(),
		Components: make(map[string]HealthResult, len(checks)),
	}
	for i, name := range names {
		report.Components[name] = results[i]
		if results[i].Status > report.Status {
			report.Status = results[i].Status
		}
	}

	if report.Status != HealthStatusUp {
		hm.logger.WarnWithFields("Health check not up", map[string]interface{}{
			"status": report.Status.String(),
		})
	}
	return report
}

// HealthHandler serves the report as JSON. DOWN answers 503; DEGRADED still answers 200.
func (hm *HealthManager) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := hm.CheckHealth(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if report.Status == HealthStatusDown {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		_ = encoder.Encode(report)
	}
}
