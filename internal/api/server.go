// Package api implements §6.2, the HTTP/JSON control surface over the
// configuration store, readings ring, and the two engines. Grounded on
// darshan-rambhia/glint's internal/api (Server struct over a ServeMux,
// Go 1.22 method+pattern routing, render-to-buffer-then-write JSON
// responses), with the HTML/templ/swagger surface dropped — this domain has
// no rendered UI (Non-goal) — in favor of a JSON-only surface.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/kbralten/vxi-dash/internal/app/collector"
	"github.com/kbralten/vxi-dash/internal/app/statemachine"
	"github.com/kbralten/vxi-dash/internal/ports"
)

// Server is the HTTP control surface (§6.2).
type Server struct {
	store     ports.ConfigStore
	ring      ports.ReadingsRing
	transport ports.Transport
	obs       ports.Observability
	collector *collector.Collector
	statem    *statemachine.Engine

	mux        *http.ServeMux
	httpServer *http.Server
}

// NewServer wires the routes and middleware chain. metricsHandler is
// typically promhttp.HandlerFor bound to the same registry passed to
// observability.New.
func NewServer(addr string, store ports.ConfigStore, ring ports.ReadingsRing, transport ports.Transport, col *collector.Collector, sm *statemachine.Engine, obs ports.Observability, metricsHandler http.Handler) *Server {
	s := &Server{
		store:     store,
		ring:      ring,
		transport: transport,
		obs:       obs,
		collector: col,
		statem:    sm,
		mux:       http.NewServeMux(),
	}

	s.registerRoutes(metricsHandler)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      RecoveryMiddleware(LoggingMiddleware(obs, s.mux)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Run starts the HTTP server. It blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.obs.LogInfo("http server starting", ports.Field{Key: "addr", Value: s.httpServer.Addr})

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.obs.LogInfo("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes(metricsHandler http.Handler) {
	s.mux.HandleFunc("GET /instruments", s.handleListInstruments)
	s.mux.HandleFunc("POST /instruments", s.handleCreateInstrument)
	s.mux.HandleFunc("PUT /instruments/{id}", s.handleUpdateInstrument)
	s.mux.HandleFunc("DELETE /instruments/{id}", s.handleDeleteInstrument)
	s.mux.HandleFunc("POST /instruments/{id}/command", s.handleInstrumentCommand)

	s.mux.HandleFunc("GET /setups", s.handleListSetups)
	s.mux.HandleFunc("POST /setups", s.handleCreateSetup)
	s.mux.HandleFunc("PUT /setups/{id}", s.handleUpdateSetup)
	s.mux.HandleFunc("DELETE /setups/{id}", s.handleDeleteSetup)

	s.mux.HandleFunc("POST /collect/{id}/start", s.handleCollectStart)
	s.mux.HandleFunc("POST /collect/{id}/stop", s.handleCollectStop)
	s.mux.HandleFunc("POST /collect/{id}/once", s.handleCollectOnce)
	s.mux.HandleFunc("GET /collect/{id}/status", s.handleCollectStatus)

	s.mux.HandleFunc("POST /sm/{id}/start", s.handleSMStart)
	s.mux.HandleFunc("POST /sm/{id}/stop", s.handleSMStop)
	s.mux.HandleFunc("GET /sm/{id}/status", s.handleSMStatus)

	s.mux.HandleFunc("GET /readings", s.handleListReadings)
	s.mux.HandleFunc("GET /readings/export.csv", s.handleExportReadingsCSV)
	s.mux.HandleFunc("DELETE /readings", s.handleResetReadings)

	s.mux.HandleFunc("GET /dashboard/summary", s.handleDashboardSummary)

	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	if metricsHandler != nil {
		s.mux.Handle("GET /metrics", metricsHandler)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
