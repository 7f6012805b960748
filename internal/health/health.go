// Package health serves liveness and readiness probes for lumid.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// DefaultCheckTimeout bounds a single readiness probe.
const DefaultCheckTimeout = 5 * time.Second

// Check probes one dependency. It returns nil when the dependency is
// usable and must respect context cancellation.
type Check func(ctx context.Context) error

// Handler answers /healthz and /readyz. Liveness always succeeds while
// the process serves HTTP; readiness runs every registered check.
type Handler struct {
	checks map[string]Check
	order  []string
	limit  time.Duration
}

// NewHandler builds a Handler with no checks registered.
func NewHandler() *Handler {
	return &Handler{
		checks: make(map[string]Check),
		limit:  DefaultCheckTimeout,
	}
}

// AddCheck registers a named readiness check. Re-registering a name
// replaces the previous check. Not safe to call once serving started.
func (h *Handler) AddCheck(name string, c Check) {
	if _, ok := h.checks[name]; !ok {
		h.order = append(h.order, name)
	}
	h.checks[name] = c
}

type probeResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Healthz reports liveness. It always returns 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeProbe(w, http.StatusOK, probeResponse{Status: "ok"})
}

// Readyz runs every registered check in registration order and returns
// 503 when any of them fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	resp := probeResponse{Status: "ok", Checks: make(map[string]string, len(h.order))}
	status := http.StatusOK

	for _, name := range h.order {
		ctx, cancel := context.WithTimeout(r.Context(), h.limit)
		err := h.checks[name](ctx)
		cancel()
		if err != nil {
			resp.Checks[name] = "fail: " + err.Error()
			resp.Status = "fail"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	writeProbe(w, status, resp)
}

// Register mounts both probe routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeProbe(w http.ResponseWriter, status int, resp probeResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
