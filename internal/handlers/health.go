package handlers

import (
	"context"
	"net/http"
	"time"
)

const version = "0.1.0"

type healthCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

type healthResponse struct {
	Status  string        `json:"status"`
	Version string        `json:"version"`
	Checks  []healthCheck `json:"checks"`
}

// Health reports liveness of the two stores the pipeline depends on.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := []healthCheck{
		runCheck(ctx, "sqlite", h.db.Ping),
		runCheck(ctx, "redis", h.activity.Ping),
	}

	status, code := "ok", http.StatusOK
	for _, c := range checks {
		if c.Status != "pass" {
			status, code = "degraded", http.StatusServiceUnavailable
			break
		}
	}

	h.JSON(w, code, healthResponse{
		Status:  status,
		Version: version,
		Checks:  checks,
	})
}

func runCheck(ctx context.Context, name string, ping func(context.Context) error) healthCheck {
	start := time.Now()
	if err := ping(ctx); err != nil {
		return healthCheck{Name: name, Status: "fail", Error: err.Error()}
	}
	return healthCheck{Name: name, Status: "pass", Latency: time.Since(start).String()}
}

// Root identifies the service.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, map[string]string{
		"name":    "feedscout",
		"version": version,
	})
}
