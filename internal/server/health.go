package server

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
)

// HealthChecker serves liveness and readiness probes for the metrics
// listener. Readiness reflects the explicit ready flag and the server
// context's shutdown state; the detailed endpoint additionally reports
// whether a credential record is currently resolvable.
type HealthChecker struct {
	ready         atomic.Bool
	serverContext *ServerContext
	startTime     time.Time
}

// NewHealthChecker creates a HealthChecker bound to the given server
// context. The server starts out ready.
func NewHealthChecker(sc *ServerContext) *HealthChecker {
	h := &HealthChecker{
		serverContext: sc,
		startTime:     time.Now(),
	}
	h.ready.Store(true)
	return h
}

// SetReady marks the server ready or not ready for traffic.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports the current readiness flag.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

func (h *HealthChecker) shuttingDown() bool {
	return h.serverContext != nil && h.serverContext.IsShutdown()
}

// HealthResponse is the JSON body of the probe endpoints.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse extends the probe body with uptime and the
// credential state.
type DetailedHealthResponse struct {
	Status      string `json:"status"`
	Uptime      string `json:"uptime"`
	Credentials string `json:"credentials,omitempty"`
}

// LivenessHandler serves /healthz. A live process always answers ok; the
// probe only establishes that the listener is up.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONStatus(w, http.StatusOK, HealthResponse{Status: healthStatusOK})
	})
}

// ReadinessHandler serves /readyz. The server is ready when the ready flag
// is set and shutdown has not started.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		checks := make(map[string]string)
		ok := true

		if h.ready.Load() {
			checks["ready"] = healthStatusOK
		} else {
			checks["ready"] = healthStatusNotReady
			ok = false
		}

		if h.shuttingDown() {
			checks["shutdown"] = healthStatusShuttingDown
			ok = false
		} else {
			checks["shutdown"] = healthStatusOK
		}

		resp := HealthResponse{Status: healthStatusOK, Checks: checks}
		code := http.StatusOK
		if !ok {
			resp.Status = healthStatusNotReady
			code = http.StatusServiceUnavailable
		}
		writeJSONStatus(w, code, resp)
	})
}

// DetailedHealthHandler serves /healthz/detailed with uptime and the source
// of the current credential record, if any. Resolution here is a local read
// (environment and credential files); it never contacts the provider.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		resp := DetailedHealthResponse{
			Status: healthStatusOK,
			Uptime: time.Since(h.startTime).Truncate(time.Second).String(),
		}
		resp.Credentials = h.credentialState()

		code := http.StatusOK
		switch {
		case !h.ready.Load():
			resp.Status = healthStatusNotReady
			code = http.StatusServiceUnavailable
		case h.shuttingDown():
			resp.Status = healthStatusShuttingDown
			code = http.StatusServiceUnavailable
		}
		writeJSONStatus(w, code, resp)
	})
}

func (h *HealthChecker) credentialState() string {
	if h.serverContext == nil {
		return ""
	}
	manager := h.serverContext.TokenManager()
	if manager == nil {
		return ""
	}
	_, source, err := manager.Resolve()
	if err != nil {
		return "not signed in"
	}
	return string(source)
}

// RegisterHealthEndpoints mounts the probe handlers on the given mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("/healthz", h.LivenessHandler())
	mux.Handle("/readyz", h.ReadinessHandler())
	mux.Handle("/healthz/detailed", h.DetailedHealthHandler())
}

func writeJSONStatus(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
