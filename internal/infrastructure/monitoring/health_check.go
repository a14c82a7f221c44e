package monitoring

import (
	"context"
	"sync"
	"time"
)

// HealthChecker folds named liveness probes into the /healthz verdict.
// Probes run on demand when the endpoint is hit, so the report always
// reflects the current state of each dependency.
type HealthChecker struct {
	mu     sync.RWMutex
	probes []probe
}

type probe struct {
	name    string
	run     func(ctx context.Context) (bool, error)
	timeout time.Duration
}

// HealthStatus is the /healthz response body.
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{}
}

// AddCheck registers a probe. The probe gets at most timeout to answer;
// a slow probe counts as failed.
func (h *HealthChecker) AddCheck(name string, run func(ctx context.Context) (bool, error), timeout time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes = append(h.probes, probe{name: name, run: run, timeout: timeout})
}

// CheckAll runs every probe. One failing probe degrades the overall
// status; the per-probe map carries the failure detail.
func (h *HealthChecker) CheckAll(ctx context.Context) HealthStatus {
	h.mu.RLock()
	probes := make([]probe, len(h.probes))
	copy(probes, h.probes)
	h.mu.RUnlock()

	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Checks:    make(map[string]string, len(probes)),
	}

	for _, p := range probes {
		probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
		healthy, err := p.run(probeCtx)
		cancel()

		switch {
		case err != nil:
			status.Status = "unhealthy"
			status.Checks[p.name] = err.Error()
		case !healthy:
			status.Status = "unhealthy"
			status.Checks[p.name] = "check failed"
		default:
			status.Checks[p.name] = "healthy"
		}
	}

	return status
}
