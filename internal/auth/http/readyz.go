package http

import (
	"context"
	"net/http"
	"time"

	"github.com/aussiebroadwan/idp/pkg/httpx"
	"github.com/aussiebroadwan/idp/pkg/jwtx"
)

// Pinger is a dependency readiness depends on, such as a store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyzHandler reports 503 when any dependency fails its ping or the key
// manager has no active signing key.
func ReadyzHandler(startTime time.Time, version string, deps map[string]Pinger, keys *jwtx.KeyManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := make(map[string]string, len(deps)+1)
		status, code := "ok", http.StatusOK

		for name, dep := range deps {
			checks[name] = "ok"
			if err := dep.Ping(ctx); err != nil {
				checks[name] = "error: " + err.Error()
				status, code = "degraded", http.StatusServiceUnavailable
			}
		}

		checks["signer"] = "ok"
		if !keys.IsReady() {
			checks["signer"] = "error: no active signing key"
			status, code = "degraded", http.StatusServiceUnavailable
		}

		httpx.WriteJSON(w, code, HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}
