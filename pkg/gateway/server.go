package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/zombinator/internal/observability"
	"github.com/harun/zombinator/internal/tracing"
	"github.com/harun/zombinator/pkg/agent"
	"github.com/harun/zombinator/pkg/maps"
	"github.com/harun/zombinator/pkg/session"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

const (
	// SessionCookie carries the chat session id.
	SessionCookie = "zombinator_session"

	defaultShutdownTimeout = 30 * time.Second
	maxRequestBody         = 64 << 10
)

// Sender delivers one user message to the agent and returns its reply.
type Sender interface {
	Send(ctx context.Context, sess *agent.Session, text string) (string, error)
}

// RoutePlanner answers the maps endpoints.
type RoutePlanner interface {
	Directions(ctx context.Context, origin, destination string) (json.RawMessage, error)
	PlanRoute(ctx context.Context, start, end string) (*maps.RoutePlan, error)
}

// Config holds server configuration. Maps is optional; without it the route
// endpoints report the service as not configured.
type Config struct {
	Host            string
	Port            int
	Store           *session.Store
	Agent           Sender
	Maps            RoutePlanner
	ShutdownTimeout time.Duration
	Logger          zerolog.Logger
}

// Server hosts the chat page, the JSON API and the WebSocket JSON-RPC
// endpoint.
type Server struct {
	addr            string
	shutdownTimeout time.Duration
	server          *http.Server
	listener        net.Listener
	upgrader        websocket.Upgrader
	clients         *ClientRegistry
	router          *RPCRouter
	broadcaster     *EventBroadcaster
	store           *session.Store
	agent           Sender
	maps            RoutePlanner
	logger          zerolog.Logger
	now             func() time.Time
	isShuttingDown  bool
	shutdownMu      sync.RWMutex
	inFlightReqs    sync.WaitGroup
}

// NewServer creates a new Gateway Server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port < 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.Agent == nil {
		return nil, fmt.Errorf("agent client is required")
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	observability.EnsureRegistered()

	clients := NewClientRegistry()
	s := &Server{
		addr:            net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		shutdownTimeout: cfg.ShutdownTimeout,
		clients:         clients,
		router:          NewRPCRouter(),
		broadcaster:     NewEventBroadcaster(clients, cfg.Logger),
		store:           cfg.Store,
		agent:           cfg.Agent,
		maps:            cfg.Maps,
		logger:          cfg.Logger,
		now:             time.Now,
		upgrader: websocket.Upgrader{
			CheckOrigin: sameOrigin,
		},
	}

	s.registerBuiltinMethods()

	return s, nil
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("POST /api/conversation", s.handleConversation)
	mux.HandleFunc("POST /api/route", s.handleRoute)
	mux.HandleFunc("POST /api/route/plan", s.handleRoutePlan)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("POST /rpc", s.handleRPC)
	mux.Handle("GET /metrics", observability.MetricsHandler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		conns := s.clients.Snapshot()
		idle := 0
		for _, c := range conns {
			if c.Idle {
				idle++
			}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":   "ok",
			"sessions": s.store.Len(),
			"clients":  len(conns),
			"idle":     idle,
		})
	})
	return s.track(mux)
}

// track rejects new requests during shutdown and counts the rest so Stop can
// wait for them.
func (s *Server) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.shutdownMu.RLock()
		if s.isShuttingDown {
			s.shutdownMu.RUnlock()
			writeError(w, http.StatusServiceUnavailable, msgUnavailable)
			return
		}
		s.inFlightReqs.Add(1)
		s.shutdownMu.RUnlock()
		defer s.inFlightReqs.Done()

		next.ServeHTTP(w, r)
	})
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting chat server")

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Chat server error")
		}
	}()

	return nil
}

// Addr returns the listening address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Stop waits for in-flight requests, closes sockets and shuts the listener.
func (s *Server) Stop(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down chat server")

	// Sockets are long-lived requests; close them first so the wait below
	// only covers real work.
	for _, client := range s.clients.All() {
		_ = client.WriteJSON(EventMessage{
			Type:      "event",
			Event:     "server.shutdown",
			Session:   client.SessionID,
			Timestamp: s.now().UnixMilli(),
		})
		_ = client.Conn.Close()
	}

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-time.After(s.shutdownTimeout):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	case <-ctx.Done():
		s.logger.Warn().Msg("Shutdown cancelled, forcing close")
	}

	if s.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info().Msg("Chat server stopped")
	return nil
}

// sessionFor returns the caller's session, creating one and setting the
// cookie when the request carries none or an expired one.
func (s *Server) sessionFor(w http.ResponseWriter, r *http.Request) (string, *agent.Session, error) {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		if sess, ok := s.store.Get(c.Value); ok {
			return c.Value, sess, nil
		}
	}

	id, sess, err := s.store.Create()
	if err != nil {
		return "", nil, err
	}
	http.SetCookie(w, sessionCookie(id))
	return id, sess, nil
}

func sessionCookie(id string) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// requestContext attaches a trace id (taken from X-Trace-Id when present) and
// the session id to ctx.
func requestContext(r *http.Request, sessionID string) context.Context {
	ctx := r.Context()
	if traceID := r.Header.Get("X-Trace-Id"); traceID != "" {
		ctx = tracing.WithTraceID(ctx, traceID)
	}
	ctx = tracing.NewRequestContext(ctx)
	if sessionID != "" {
		ctx = tracing.WithSessionID(ctx, sessionID)
	}
	return ctx
}

// handleWebSocket binds a socket to the caller's session and serves
// JSON-RPC over it.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	header := http.Header{}
	sessionID, _, err := s.sessionFor(headerRecorder{ResponseWriter: w, header: header}, r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, header)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID, _ := gonanoid.New()
	now := s.now()
	client := &Client{
		ID:           clientID,
		SessionID:    sessionID,
		Conn:         conn,
		ConnectedAt:  now,
		LastActivity: now,
		IPAddress:    r.RemoteAddr,
		Limiter:      NewClientRateLimiter(),
	}
	s.clients.Add(client)

	s.logger.Info().
		Str("client_id", clientID).
		Str("session_id", sessionID).
		Str("ip", r.RemoteAddr).
		Msg("Client connected")

	// The socket outlives r; its context ends when the read loop does.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	s.handleClient(withClient(ctx, client), client)
	cancel()
}

// handleClient reads requests until the socket closes. Each request runs in
// its own goroutine so a long chat.send does not block chat.history.
func (s *Server) handleClient(ctx context.Context, client *Client) {
	var pending sync.WaitGroup
	defer func() {
		_ = client.Conn.Close()
		s.clients.Remove(client.ID)
		pending.Wait()
		s.logger.Info().Str("client_id", client.ID).Msg("Client disconnected")
	}()

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Error().Err(err).Str("client_id", client.ID).Msg("WebSocket error")
			}
			return
		}

		s.clients.Touch(client.ID)

		req, err := s.router.ParseRequest(message)
		if err != nil {
			s.sendError(client, "", err)
			continue
		}

		ok, code, reason := client.Limiter.Acquire(s.now())
		if !ok {
			s.sendError(client, req.ID, &RPCError{Code: code, Message: reason})
			continue
		}

		pending.Add(1)
		go func() {
			defer pending.Done()
			defer client.Limiter.Release()

			reqCtx := tracing.WithSessionID(tracing.NewRequestContext(ctx), client.SessionID)
			response := s.router.RouteRequest(reqCtx, req)
			s.logResponse(reqCtx, req, response)
			if err := client.WriteJSON(response); err != nil {
				s.logger.Error().
					Err(err).
					Str("client_id", client.ID).
					Str("request_id", req.ID).
					Msg("Failed to send response")
			}
		}()
	}
}

// handleRPC serves single-shot JSON-RPC over HTTP with the cookie session.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	req, err := s.router.ParseRequest(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, RPCResponse{JSONRPC: "2.0", Error: toRPCError(err)})
		return
	}

	sessionID, _, err := s.sessionFor(w, r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	ctx := withSession(requestContext(r, sessionID), sessionID)
	resp := s.router.RouteRequest(ctx, req)
	s.logResponse(ctx, req, resp)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) logResponse(ctx context.Context, req *RPCRequest, resp *RPCResponse) {
	logger := tracing.LoggerFromContext(ctx, s.logger)
	event := logger.Debug()
	if resp.Error != nil {
		event = logger.Warn().Int("code", resp.Error.Code).Str("error", resp.Error.Message)
	}
	event.Str("request_id", req.ID).Str("method", req.Method).Msg("RPC request handled")
}

// sendError sends an error response to a client
func (s *Server) sendError(client *Client, requestID string, err error) {
	response := RPCResponse{
		ID:      requestID,
		JSONRPC: "2.0",
		Error:   toRPCError(err),
	}

	if err := client.WriteJSON(response); err != nil {
		s.logger.Error().
			Err(err).
			Str("client_id", client.ID).
			Msg("Failed to send error response")
	}
}

// RegisterMethod registers an RPC method handler
func (s *Server) RegisterMethod(name string, handler RequestHandler) error {
	return s.router.RegisterMethod(name, handler)
}

// Connections describes the open WebSocket connections, oldest first.
func (s *Server) Connections() []ClientInfo {
	return s.clients.Snapshot()
}

// sameOrigin accepts browsers on the serving host and non-browser clients
// that send no Origin.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}

// headerRecorder collects Set-Cookie so it can ride on the upgrade response.
type headerRecorder struct {
	http.ResponseWriter
	header http.Header
}

func (h headerRecorder) Header() http.Header {
	return h.header
}
