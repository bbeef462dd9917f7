// Package server exposes the orchestrator over HTTP.
package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/chain"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/gateway"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/orchestrator"
	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/version"
	"github.com/sasaki2110/Morizo-aiv2-sub000/pkg/models"
)

// MenuLister lists a user's completed menus.
type MenuLister interface {
	ListMenus(ctx context.Context, userID string, limit int) ([]*models.Menu, error)
}

// EventSource streams a session's chain events.
type EventSource interface {
	Subscribe(ctx context.Context, sessionID string) (<-chan chain.Event, error)
}

// TaskHistory returns the recorded events of a chain.
type TaskHistory interface {
	ListTaskEvents(ctx context.Context, chainID string) ([]chain.Event, error)
}

// Option configures a Server.
type Option func(*Server)

// WithMenus enables GET /users/{id}/menus.
func WithMenus(m MenuLister) Option {
	return func(s *Server) { s.menus = m }
}

// WithEvents enables GET /sessions/{id}/events.
func WithEvents(e EventSource) Option {
	return func(s *Server) { s.events = e }
}

// WithTaskHistory enables GET /chains/{id}/events.
func WithTaskHistory(h TaskHistory) Option {
	return func(s *Server) { s.history = h }
}

// Server is the Morizo HTTP API.
type Server struct {
	addr       string
	orch       *orchestrator.Orchestrator
	turns      *gateway.Router
	menus      MenuLister
	events     EventSource
	history    TaskHistory
	router     *mux.Router
	httpServer *http.Server
	started    time.Time
}

// New creates a Server listening on addr.
func New(addr string, orch *orchestrator.Orchestrator, opts ...Option) *Server {
	s := &Server{
		addr:    addr,
		orch:    orch,
		turns:   gateway.NewRouter(orch),
		router:  mux.NewRouter(),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(corsMiddleware)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", s.healthCheck).Methods("GET")
	api.HandleFunc("/requests", s.submitRequest).Methods("POST")
	api.HandleFunc("/confirmations/{ref}", s.answerConfirmation).Methods("POST")
	api.HandleFunc("/sessions/{id}/messages", s.postMessage).Methods("POST")
	api.HandleFunc("/sessions/{id}/selection", s.selectStage).Methods("POST")
	api.HandleFunc("/sessions/{id}/rollback", s.rollbackStage).Methods("POST")
	api.HandleFunc("/sessions/{id}", s.getSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.cancelSession).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/events", s.streamEvents).Methods("GET")
	api.HandleFunc("/chains/{id}/events", s.chainEvents).Methods("GET")
	api.HandleFunc("/users/{id}/menus", s.listMenus).Methods("GET")
	api.PathPrefix("/").HandlerFunc(handleOptions).Methods("OPTIONS")
}

// Handler returns the routed handler, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			log.Printf("[server] shutdown: %v", err)
		}
	}()

	log.Printf("[server] Morizo %s listening on %s", version.Get(), s.addr)
	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	log.Println("[server] stopped")
	return nil
}

// Shutdown stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func handleOptions(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
