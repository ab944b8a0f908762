// Package health exposes the /api/v1/health and /api/v1/ready HTTP handlers.
package health

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/d9705996/confera/internal/api/jsonapi"
	"github.com/d9705996/confera/internal/version"
)

// readyTimeout bounds each readiness check.
const readyTimeout = 3 * time.Second

// Checker is implemented by anything that can check a downstream dependency.
type Checker interface {
	Ping(ctx context.Context) error
}

// Check is a named readiness dependency.
type Check struct {
	Name    string
	Checker Checker
}

// Handler holds dependencies for the health and ready endpoints.
type Handler struct {
	checks    []Check
	log       *slog.Logger
	startTime time.Time
}

// New creates a Handler. With no checks /ready reports 503, since the
// service cannot work without its database.
func New(log *slog.Logger, checks ...Check) *Handler {
	return &Handler{checks: checks, log: log, startTime: time.Now()}
}

// healthAttrs is the JSON:API attributes payload for the health response.
type healthAttrs struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Commit        string `json:"commit"`
	BuildDate     string `json:"build_date"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// ServeHealth handles GET /api/v1/health.
func (h *Handler) ServeHealth(w http.ResponseWriter, _ *http.Request) {
	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type: "health",
		ID:   "1",
		Attributes: healthAttrs{
			Status:        "ok",
			Version:       version.Version,
			Commit:        version.Commit,
			BuildDate:     version.Date,
			UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		},
	})
}

// ServeReady handles GET /api/v1/ready.
// Returns 200 when every check passes; 503 otherwise. Failure causes are
// logged, only the failing check names are returned.
func (h *Handler) ServeReady(w http.ResponseWriter, r *http.Request) {
	if len(h.checks) == 0 {
		jsonapi.RenderError(w, http.StatusServiceUnavailable,
			"dependency_unavailable", "Service Unavailable",
			"no dependencies are initialised")
		return
	}

	status := make(map[string]string, len(h.checks))
	var failed []string
	for _, c := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		err := c.Checker.Ping(ctx)
		cancel()
		if err != nil {
			h.log.WarnContext(r.Context(), "readiness check failed", "check", c.Name, "err", err)
			status[c.Name] = "unavailable"
			failed = append(failed, c.Name)
			continue
		}
		status[c.Name] = "ok"
	}

	if len(failed) > 0 {
		jsonapi.RenderError(w, http.StatusServiceUnavailable,
			"dependency_unavailable", "Service Unavailable",
			"unavailable: "+strings.Join(failed, ", "))
		return
	}
	jsonapi.RenderOne(w, http.StatusOK, jsonapi.ResourceObject{
		Type:       "ready",
		ID:         "1",
		Attributes: map[string]any{"status": "ok", "checks": status},
	})
}
