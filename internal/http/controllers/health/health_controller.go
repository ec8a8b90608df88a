// Package health serves the liveness and readiness probes.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	httperrors "github.com/dropDatabas3/userauth/internal/http/errors"
	"github.com/dropDatabas3/userauth/internal/observability/logger"
)

// Pinger is anything with a connectivity check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Check is a named readiness dependency.
type Check struct {
	Name   string
	Pinger Pinger
}

// Response is the body of /readyz.
type Response struct {
	Status     string            `json:"status"` // ready|unavailable
	Version    string            `json:"version,omitempty"`
	Components map[string]string `json:"components,omitempty"`
}

// HealthController serves GET /healthz and GET /readyz.
type HealthController struct {
	checks  []Check
	version string
	timeout time.Duration
}

func NewHealthController(version string, checks ...Check) *HealthController {
	return &HealthController{checks: checks, version: version, timeout: 2 * time.Second}
}

// Healthz reports that the process is serving.
func (c *HealthController) Healthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, Response{Status: "ok", Version: c.version})
}

// Readyz pings every configured dependency.
func (c *HealthController) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("HealthController.Readyz"))

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
		return
	}

	resp := Response{Status: "ready", Version: c.version, Components: map[string]string{}}
	for _, chk := range c.checks {
		pctx, cancel := context.WithTimeout(ctx, c.timeout)
		err := chk.Pinger.Ping(pctx)
		cancel()
		if err != nil {
			log.Warn("readiness check failed", logger.Component(chk.Name), logger.Err(err))
			resp.Components[chk.Name] = "down"
			resp.Status = "unavailable"
			continue
		}
		resp.Components[chk.Name] = "up"
	}

	status := http.StatusOK
	if resp.Status != "ready" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
