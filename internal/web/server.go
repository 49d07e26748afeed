package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/spend-intake/internal/debug"
	"github.com/spend-intake/internal/web/handlers"
	"github.com/spend-intake/internal/web/middleware"
)

// Server is the read-only supplier API.
type Server struct {
	config     Config
	logger     *zap.Logger
	router     *mux.Router
	handler    http.Handler
	httpServer *http.Server
}

// NewServer wires routes and middleware around source.
func NewServer(config Config, source handlers.Source, logger *zap.Logger) *Server {
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}
	s := &Server{config: config, logger: debug.OrNop(logger)}
	s.setupRoutes(source)

	s.httpServer = &http.Server{
		Addr:         config.Addr,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes(source handlers.Source) {
	s.router = mux.NewRouter()

	apiHandler := &handlers.APIHandler{Source: source, Order: s.config.Order, Logger: s.logger}

	s.router.HandleFunc("/healthz", apiHandler.Health).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/groups", apiHandler.ListGroups).Methods("GET")
	api.HandleFunc("/suppliers", apiHandler.ListSuppliers).Methods("GET")
	api.HandleFunc("/lookup", apiHandler.Lookup).Methods("GET")
	api.HandleFunc("/stats", apiHandler.GetStats).Methods("GET")
	api.Use(middleware.APIKey(s.config.APIKey))

	// CORS sits outside the router so preflight requests reach it.
	var h http.Handler = s.router
	h = middleware.CORS()(h)
	h = middleware.RequestLogging(s.logger)(h)
	h = middleware.Recover(s.logger)(h)
	s.handler = h
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", zap.String("addr", ln.Addr().String()))
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("Server stopped")
	return nil
}
