package metrics

import (
	"encoding/json"
	"net/http"

	"github.com/cardotrejos/babypeek-sub000/internal/health"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewServer returns the ops server: prometheus scrape endpoint plus
// liveness/readiness probes. Runs on a separate port from the API.
func NewServer(addr string, checker *health.Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, checker.Liveness(r.Context()))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		result := checker.Readiness(r.Context())
		if result.Status != "up" {
			writeHealthStatus(w, result, http.StatusServiceUnavailable)
			return
		}
		writeHealth(w, result)
	})

	return &http.Server{Addr: addr, Handler: mux}
}

func writeHealth(w http.ResponseWriter, result health.HealthResult) {
	writeHealthStatus(w, result, http.StatusOK)
}

func writeHealthStatus(w http.ResponseWriter, result health.HealthResult, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(result)
}
