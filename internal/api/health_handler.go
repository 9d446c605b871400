package api

import (
	"net/http"
	"time"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	units func() []string
}

// NewHealthHandler creates a new health handler. units lists the registered
// collection units.
func NewHealthHandler(units func() []string) *HealthHandler {
	return &HealthHandler{units: units}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Units     int       `json:"units"`
	Error     string    `json:"error,omitempty"`
}

// Health handles GET /health (liveness probe)
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
	})
}

// Ready handles GET /ready; the agent is ready once a unit is registered.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	n := len(h.units())
	if n == 0 {
		sendJSON(w, http.StatusServiceUnavailable, ReadinessResponse{
			Status:    "not_ready",
			Timestamp: time.Now(),
			Error:     "no collection units registered",
		})
		return
	}
	sendJSON(w, http.StatusOK, ReadinessResponse{
		Status:    "ready",
		Timestamp: time.Now(),
		Units:     n,
	})
}
