package app

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (a *App) registerHTTP(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if a.storeKind == "memory" {
			if a.cfg.ReadinessRequireDB {
				http.Error(w, "durable store not configured", http.StatusServiceUnavailable)
				return
			}
		} else if err := a.durableStoreReady(r.Context()); err != nil {
			a.log.Info("readyz.store.not_ready", "err", err)
			http.Error(w, "store not ready", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	// Liveness text kept for clients that poll the original path.
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Server is live!"))
	})

	mux.Handle("/metrics", promhttp.Handler())

	a.auth.Register(mux)

	mux.HandleFunc("/ws", a.gateway.HandleWS)
}
