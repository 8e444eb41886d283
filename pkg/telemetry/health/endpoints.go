package health

import (
	"encoding/json"
	"net/http"
	"runtime"
)

// VersionInfo contains build and version information.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// NewVersionInfo fills in the Go version for the given build metadata.
func NewVersionInfo(version, commit, buildTime string) VersionInfo {
	return VersionInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
	}
}

// LivenessHandler returns the handler for the liveness probe. It always
// answers 200 while the process is serving.
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, c.CheckLiveness(r.Context()))
	}
}

// ReadinessHandler returns the handler for the readiness probe: 200 when
// every check passes, 503 otherwise.
//
//	{
//	    "status": "degraded",
//	    "checks": {
//	        "governance_db": {"status": "ok", "duration_ms": 0.4},
//	        "challenge_store": {"status": "unhealthy", "message": "dial tcp: connection refused", "duration_ms": 1.2}
//	    },
//	    "timestamp": "2026-03-02T10:30:00Z"
//	}
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := c.CheckReadiness(r.Context())
		code := http.StatusOK
		if status.Status != StatusReady {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, r, code, status)
	}
}

// VersionHandler returns a handler reporting build information.
func VersionHandler(info VersionInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, info)
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if r.Method != http.MethodHead {
		_ = json.NewEncoder(w).Encode(v)
	}
}
