package http

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/custodia-labs/redis-studio/internal/core/ports/driving"
)

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	version    string
	logger     *slog.Logger

	// Services
	connections driving.ConnectionService
	keyspace    driving.KeyspaceService

	// Infrastructure
	metrics     *Metrics // optional
	corsOrigins []string
}

// Config holds server configuration
type Config struct {
	Host        string
	Port        int
	Version     string
	CORSOrigins []string
	Logger      *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:        "0.0.0.0",
		Port:        8080,
		Version:     "dev",
		CORSOrigins: []string{"http://localhost:4200"},
	}
}

// NewServer creates a new HTTP server
func NewServer(
	cfg Config,
	connections driving.ConnectionService,
	keyspace driving.KeyspaceService,
	metrics *Metrics, // can be nil
) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router:      http.NewServeMux(),
		version:     cfg.Version,
		logger:      logger,
		connections: connections,
		keyspace:    keyspace,
		metrics:     metrics,
		corsOrigins: cfg.CORSOrigins,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.setupRoutes()
	return s
}

// Handler returns the router wrapped in the global middleware chain
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	h = NewLoggingMiddleware(s.logger).Handler(h)
	h = NewCORSMiddleware(s.corsOrigins).Handler(h)
	h = NewRecoveryMiddleware(s.logger).Handler(h)
	return h
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	conn := NewConnectionMiddleware()

	// Health endpoints (no connection)
	s.handle("GET /health", http.HandlerFunc(s.handleHealth))
	s.handle("GET /version", http.HandlerFunc(s.handleVersion))
	if s.metrics != nil {
		s.router.Handle("GET /metrics", s.metrics.Handler())
	}

	// Connection lifecycle
	s.handle("POST /api/redis/connection/connect", http.HandlerFunc(s.handleConnect))
	s.handle("DELETE /api/redis/connection",
		conn.Require(http.HandlerFunc(s.handleDisconnect)))
	// Answers a bare boolean, so a missing header is false rather than 400
	s.handle("GET /api/redis/connection/testconnection", http.HandlerFunc(s.handleTestConnection))

	// Keys
	s.handle("GET /api/redis/keys",
		conn.Require(http.HandlerFunc(s.handleListKeys)))
	s.handle("POST /api/redis/keys",
		conn.Require(http.HandlerFunc(s.handleCreateKey)))
	s.handle("GET /api/redis/keys/{key...}",
		conn.Require(http.HandlerFunc(s.handleGetKey)))
	s.handle("PUT /api/redis/keys/{key...}",
		conn.Require(http.HandlerFunc(s.handleUpdateKey)))
	s.handle("DELETE /api/redis/keys/{key...}",
		conn.Require(http.HandlerFunc(s.handleDeleteKey)))

	// Server
	s.handle("GET /api/redis/server/info",
		conn.Require(http.HandlerFunc(s.handleServerInfo)))
}

func (s *Server) handle(pattern string, h http.Handler) {
	if s.metrics != nil {
		h = s.metrics.Instrument(pattern, h)
	}
	s.router.Handle(pattern, h)
}

// Start starts the HTTP server and blocks until SIGINT or SIGTERM, then
// shuts down gracefully
func (s *Server) Start() error {
	// Channel to listen for OS signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		log.Printf("Starting server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-stop
	log.Println("Shutting down server...")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Attempt graceful shutdown
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Println("Server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
