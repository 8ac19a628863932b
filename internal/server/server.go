package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"parking-facility/internal/logging"
	"parking-facility/internal/parking"
)

type Server struct {
	httpServer *http.Server
	handler    *Handler
}

func NewServer(port string, ledger *parking.InstrumentedLedger, store Pinger, serviceName string) *Server {
	handler := NewHandler(ledger, store, serviceName)

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      newRouter(handler, newHTTPMetrics(ledger)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		handler:    handler,
	}
}

func newRouter(handler *Handler, metrics *httpMetrics) http.Handler {
	r := chi.NewRouter()

	r.Use(RecoveryMiddleware)
	r.Use(RequestIDMiddleware)
	r.Use(TracingMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(metrics.Middleware)
	r.Use(CORSMiddleware)

	r.Get("/health", handler.HealthCheck)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/facility", func(r chi.Router) {
		r.Post("/vehicles", handler.RegisterVehicle)
		r.Get("/vehicles", handler.ListVehicles)
		r.Get("/vehicles/{plate}", handler.GetVehicle)
		r.Post("/dismiss", handler.DismissVehicle)
		r.Post("/park", handler.AssignSlot)
		r.Post("/release", handler.ReleaseSlot)
		r.Get("/slots", handler.ListSlots)
		r.Get("/slots/{number}", handler.GetSlot)
		r.Get("/tickets", handler.ListTickets)
		r.Get("/status", handler.GetStatus)
	})

	r.Route("/api/plates", func(r chi.Router) {
		r.Post("/generate", handler.GeneratePlate)
		r.Post("/validate", handler.ValidatePlate)
	})

	return r
}

func (s *Server) Start() error {
	logging.Info(context.Background()).Str("addr", s.httpServer.Addr).Msg("starting HTTP server")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info(ctx).Msg("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) GetAddress() string {
	return fmt.Sprintf("http://localhost%s", s.httpServer.Addr)
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
