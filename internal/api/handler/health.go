package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hafedapp/entitlement/internal/api/middleware"
	"github.com/hafedapp/entitlement/internal/api/response"
)

// Pinger checks that a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

const healthCheckTimeout = 2 * time.Second

// HealthHandler handles the GET /health endpoint.
type HealthHandler struct {
	checks  map[string]Pinger
	version string
}

// NewHealthHandler creates a new HealthHandler. Nil checks are skipped.
func NewHealthHandler(checks map[string]Pinger, version string) *HealthHandler {
	c := make(map[string]Pinger, len(checks))
	for name, p := range checks {
		if p != nil {
			c[name] = p
		}
	}
	return &HealthHandler{checks: c, version: version}
}

type dependencyStatus struct {
	Connected bool    `json:"connected"`
	Error     *string `json:"error,omitempty"`
}

type healthData struct {
	Status       string                      `json:"status"`
	Version      string                      `json:"version"`
	Dependencies map[string]dependencyStatus `json:"dependencies"`
}

// ServeHTTP handles the health check request. Unreachable dependencies
// report "degraded" with status 200 so the process is not restarted for an
// outage elsewhere.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	data := healthData{
		Status:       "healthy",
		Version:      h.version,
		Dependencies: make(map[string]dependencyStatus, len(h.checks)),
	}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			msg := err.Error()
			data.Dependencies[name] = dependencyStatus{Error: &msg}
			data.Status = "degraded"
			continue
		}
		data.Dependencies[name] = dependencyStatus{Connected: true}
	}

	response.Success(w, http.StatusOK, data, requestID)
}
