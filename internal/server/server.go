// Package server hosts the HTTP + WebSocket API over the market engine.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/helixlabs/helixmarket/internal/domain"
	"github.com/helixlabs/helixmarket/internal/server/handler"
	"github.com/helixlabs/helixmarket/internal/server/middleware"
	"github.com/helixlabs/helixmarket/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// DepositLimit caps faucet deposits per client IP within DepositWindow.
	// Zero disables the limit (and the limiter may be nil in that case).
	DepositLimit  int
	DepositWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Status    *handler.StatusHandler
	Proposals *handler.ProposalHandler
	Ledger    *handler.LedgerHandler
}

// Server is the HTTP + WebSocket API server for the market engine.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth) and attaches the WebSocket
// hub. The rate limiter is optional; when nil the deposit faucet is
// unlimited.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check and status (no auth required in the chain below; auth is
	// applied to the whole mux, matching the previous deployment shape).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Proposal lifecycle.
	mux.HandleFunc("POST /api/proposals", handlers.Proposals.CreateProposal)
	mux.HandleFunc("GET /api/proposals", handlers.Proposals.ListProposals)
	mux.HandleFunc("GET /api/proposals/{id}", handlers.Proposals.GetProposal)
	mux.HandleFunc("GET /api/proposals/{id}/history", handlers.Proposals.GetHistory)
	mux.HandleFunc("POST /api/proposals/{id}/data", handlers.Proposals.AnchorData)
	mux.HandleFunc("POST /api/proposals/{id}/ip", handlers.Proposals.MintIP)
	mux.HandleFunc("POST /api/proposals/{id}/buy", handlers.Proposals.Buy)
	mux.HandleFunc("POST /api/proposals/{id}/funding-check", handlers.Proposals.CheckFunding)
	mux.HandleFunc("POST /api/proposals/{id}/resolve", handlers.Proposals.Resolve)
	mux.HandleFunc("POST /api/proposals/{id}/claim", handlers.Proposals.Claim)

	// Ledger endpoints. The deposit faucet is rate limited per client IP.
	deposit := http.Handler(http.HandlerFunc(handlers.Ledger.Deposit))
	if limiter != nil && cfg.DepositLimit > 0 {
		deposit = middleware.RateLimit(limiter, cfg.DepositLimit, cfg.DepositWindow)(deposit)
	}
	mux.Handle("POST /api/ledger/deposit", deposit)
	mux.HandleFunc("GET /api/ledger/balances/{account}", handlers.Ledger.GetBalances)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
