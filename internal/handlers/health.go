package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"
)

// CheckFunc probes one dependency
type CheckFunc func(ctx context.Context) error

// HealthChecker handles liveness and readiness requests
type HealthChecker struct {
	checks  map[string]CheckFunc
	timeout time.Duration
}

// NewHealthChecker creates a new health checker. Dependencies added with
// AddCheck are probed by /readyz only.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{checks: make(map[string]CheckFunc), timeout: 5 * time.Second}
}

// AddCheck registers a readiness probe under name
func (h *HealthChecker) AddCheck(name string, check CheckFunc) {
	h.checks[name] = check
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// RegisterRoutes registers the probe routes
func (h *HealthChecker) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/readyz", h.ReadyCheck).Methods(http.MethodGet)
}

// HealthCheck handles /healthz. It only reports that the process is serving.
func (h *HealthChecker) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// ReadyCheck handles /readyz and returns 503 when any dependency fails
func (h *HealthChecker) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    make(map[string]string, len(h.checks)),
	}

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			response.Status = "unhealthy"
			response.Checks[name] = "unhealthy: " + err.Error()
			continue
		}
		response.Checks[name] = "healthy"
	}

	status := http.StatusOK
	if response.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, response)
}
