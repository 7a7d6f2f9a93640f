// Package controller contains the HTTP API for the control plane.
package controller

import (
	"context"
	"net/http"
	"time"

	"crmforge/internal/controller/handlers"
)

// Server is the HTTP server for the controller API.
type Server struct {
	httpServer *http.Server
}

// New creates a new controller server.
func New(addr string, store handlers.StoreFactory, metricsHandler http.Handler) *Server {
	h := handlers.New(store)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.Health)

	mux.HandleFunc("POST /datasets", h.CreateDataset)
	mux.HandleFunc("GET /datasets/{id}", h.GetDataset)
	mux.HandleFunc("POST /datasets/{id}/inject", h.InjectDataset)
	mux.HandleFunc("DELETE /datasets/{id}", h.CleanupDataset)

	mux.HandleFunc("GET /jobs/{id}", h.GetJob)
	mux.HandleFunc("POST /jobs/{id}/cancel", h.CancelJob)

	mux.HandleFunc("POST /snapshots", h.CreateSnapshot)
	mux.HandleFunc("GET /snapshots/{id}", h.GetSnapshot)
	mux.HandleFunc("POST /snapshots/{id}/golden", h.SetGoldenImage)
	mux.HandleFunc("POST /environments/{id}/reset", h.ResetEnvironment)

	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
