// Package httpapi provides the shared admin-HTTP-surface helpers used by all
// three chatdesk services (spec §6). Grounded on vanducng-goclaw's
// internal/http/agents.go route-registration + writeJSON style.
package httpapi

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// HealthStatus is the common shape returned by every service's /health.
type HealthStatus struct {
	Service string            `json:"service"`
	OK      bool              `json:"ok"`
	Deps    map[string]string `json:"deps"` // dependency name -> "ok" | error string
}

// DepCheck is one dependency liveness probe.
type DepCheck struct {
	Name  string
	Check func() error
}

// RegisterHealth registers GET /health on mux, running each check and
// reporting overall OK only if every dependency check passes.
func RegisterHealth(mux *http.ServeMux, service string, checks []DepCheck) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		status := HealthStatus{Service: service, OK: true, Deps: map[string]string{}}
		for _, c := range checks {
			if err := c.Check(); err != nil {
				status.OK = false
				status.Deps[c.Name] = err.Error()
			} else {
				status.Deps[c.Name] = "ok"
			}
		}
		code := http.StatusOK
		if !status.OK {
			code = http.StatusServiceUnavailable
		}
		WriteJSON(w, code, status)
	})
}

// RegisterStatus registers GET /status with a caller-supplied detail function.
func RegisterStatus(mux *http.ServeMux, detail func() interface{}) {
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, detail())
	})
}
