// Package api is the ANCHOR engine's JSON-RPC 2.0 operational surface:
// health, the wallet's create-message path, lock management, and
// read-only lookups over the three kind-specific state machines, plus a
// websocket event feed. Grounded on the reference node's internal/rpc
// package: a single net/http server dispatching to a method-name-keyed
// handler map, not a REST router.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rawblock/anchor-engine/internal/bitcoin"
	"github.com/rawblock/anchor-engine/internal/db"
	"github.com/rawblock/anchor-engine/internal/lockmgr"
	"github.com/rawblock/anchor-engine/internal/wallet"
	"github.com/rawblock/anchor-engine/internal/walletlog"
)

var log = walletlog.New("api")

// Handler is a JSON-RPC method handler.
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id,omitempty"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Standard JSON-RPC 2.0 error codes.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
	Unauthorized   = -32001
	RateLimited    = -32002
)

// protectedMethods require a bearer token (if API_AUTH_TOKEN is set) and
// are subject to the per-IP rate limiter; read-only lookups are not.
var protectedMethods = map[string]bool{
	"message_create": true,
	"lock_create":    true,
	"lock_delete":    true,
}

// Server is the ANCHOR engine's JSON-RPC server.
type Server struct {
	store  *db.Store
	btc    *bitcoin.Client
	wallet *wallet.Service
	locks  *lockmgr.Manager
	wsHub  *Hub

	authToken string
	limiter   *RateLimiter

	httpServer *http.Server
	listener   net.Listener

	handlers map[string]Handler
	mu       sync.RWMutex
}

// NewServer constructs the JSON-RPC server and registers its handlers.
func NewServer(store *db.Store, btc *bitcoin.Client, walletSvc *wallet.Service, locks *lockmgr.Manager, wsHub *Hub) *Server {
	s := &Server{
		store:     store,
		btc:       btc,
		wallet:    walletSvc,
		locks:     locks,
		wsHub:     wsHub,
		authToken: os.Getenv("API_AUTH_TOKEN"),
		limiter:   NewRateLimiter(30, 5),
		handlers:  make(map[string]Handler),
	}
	s.registerHandlers()
	return s
}

func (s *Server) registerHandlers() {
	s.handlers["health"] = s.health
	s.handlers["message_create"] = s.messageCreate
	s.handlers["domain_get"] = s.domainGet
	s.handlers["token_get"] = s.tokenGet
	s.handlers["market_get"] = s.marketGet
	s.handlers["market_positions"] = s.marketPositions
	s.handlers["lock_list"] = s.lockList
	s.handlers["lock_create"] = s.lockCreate
	s.handlers["lock_delete"] = s.lockDelete
}

// Start listens on addr and serves JSON-RPC POSTs at "/" and a websocket
// event feed at "/ws".
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("api: listen on %s: %w", addr, err)
	}
	s.listener = listener

	go s.wsHub.Run()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /", s.handleRPC)
	mux.HandleFunc("OPTIONS /", s.handleCORS)
	mux.HandleFunc("GET /ws", s.handleWS)

	s.httpServer = &http.Server{
		Handler:      corsMiddleware(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("[api] server error: %v", err)
		}
	}()

	log.Printf("[api] listening on %s", addr)
	return nil
}

// Stop gracefully shuts down the JSON-RPC server.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// handleRPC dispatches one JSON-RPC 2.0 request to its registered handler,
// enforcing the bearer-token and rate-limit gates for protected methods.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, nil, ParseError, "parse error", nil)
		return
	}
	if req.JSONRPC != "2.0" {
		s.writeError(w, req.ID, InvalidRequest, "invalid request", nil)
		return
	}

	s.mu.RLock()
	handler, ok := s.handlers[req.Method]
	s.mu.RUnlock()
	if !ok {
		s.writeError(w, req.ID, MethodNotFound, "method not found", req.Method)
		return
	}

	if protectedMethods[req.Method] {
		if !s.checkAuth(r) {
			s.writeError(w, req.ID, Unauthorized, "missing or invalid bearer token", nil)
			return
		}
		if allowed, retryAfter := s.limiter.allow(clientIP(r)); !allowed {
			w.Header().Set("Retry-After", retryAfter.String())
			s.writeError(w, req.ID, RateLimited, "rate limit exceeded", retryAfter.String())
			return
		}
	}

	result, err := handler(r.Context(), req.Params)
	if err != nil {
		s.writeError(w, req.ID, InternalError, err.Error(), nil)
		return
	}
	s.writeResult(w, req.ID, result)
}

func (s *Server) writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(Response{JSONRPC: "2.0", Result: result, ID: id})
}

func (s *Server) writeError(w http.ResponseWriter, id interface{}, code int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(Response{JSONRPC: "2.0", Error: &Error{Code: code, Message: message, Data: data}, ID: id})
}

func (s *Server) handleCORS(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// corsMiddleware adds CORS headers, honoring ALLOWED_ORIGINS if set
// (comma-separated list), otherwise reflecting the request's own Origin.
func corsMiddleware(next http.Handler) http.Handler {
	allowed := os.Getenv("ALLOWED_ORIGINS")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case allowed == "" || allowed == "*":
			w.Header().Set("Access-Control-Allow-Origin", "*")
		default:
			for _, o := range strings.Split(allowed, ",") {
				if strings.TrimSpace(o) == origin {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
