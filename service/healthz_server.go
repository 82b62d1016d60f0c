package service

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/rs/cors"
)

// Health is a point-in-time readiness report served by the healthz
// endpoint.
type Health struct {
	Healthy bool
	Status  string
}

// HealthzServer serves readiness drawn from a swappable status source,
// so the endpoint reflects the most recent scenario run instead of a
// constant body.
type HealthzServer struct {
	ctx    context.Context
	server *http.Server
	status atomic.Value // holds func() Health
}

// SetStatus swaps the readiness source. Until one is set the endpoint
// reports healthy with a plain OK body.
func (h *HealthzServer) SetStatus(fn func() Health) {
	if fn != nil {
		h.status.Store(fn)
	}
}

func (h *HealthzServer) Start(ctx context.Context, addr string) error {
	hdlr := http.NewServeMux()
	hdlr.HandleFunc("/healthz", h.Handle)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	server := &http.Server{
		Handler: c.Handler(hdlr),
		Addr:    addr,
	}
	h.server = server
	h.ctx = ctx
	return h.server.ListenAndServe()
}

func (h *HealthzServer) Shutdown() error {
	return h.server.Shutdown(h.ctx)
}

func (h *HealthzServer) Handle(w http.ResponseWriter, r *http.Request) {
	health := Health{Healthy: true, Status: "OK"}
	if fn, ok := h.status.Load().(func() Health); ok {
		health = fn()
	}
	if !health.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	w.Write([]byte(health.Status)) //nolint:errcheck
}
