package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

// Pinger is anything the health check can probe: the user store and the
// summary cache both implement it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Clients int               `json:"clients"`
}

// HealthHandler reports whether the process and its dependencies are usable.
type HealthHandler struct {
	checks  map[string]Pinger
	clients func() int
	logger  *slog.Logger
}

// NewHealthHandler probes every entry of checks on each request. clients, if
// not nil, reports the number of open realtime connections.
func NewHealthHandler(checks map[string]Pinger, clients func() int, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		checks:  checks,
		clients: clients,
		logger:  logger,
	}
}

// HandleHealth answers 200 when every check passes and 503 otherwise.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	status := http.StatusOK

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := h.checks[name].Ping(ctx); err != nil {
			h.logger.Warn("health check failed", slog.String("check", name), slog.String("error", err.Error()))
			resp.Checks[name] = "unavailable"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	if h.clients != nil {
		resp.Clients = h.clients()
	}

	writeJSON(w, status, resp)
}
