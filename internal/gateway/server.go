package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/danang/arunika/internal/metrics"
	"github.com/danang/arunika/pkg/agent"
	"github.com/danang/arunika/pkg/channels"
	"github.com/danang/arunika/pkg/escalation"
	"github.com/danang/arunika/pkg/knowledge"
	"github.com/danang/arunika/pkg/orchestrator"
)

const maxBodyBytes = 1 << 20

// Server is the HTTP ingress for all chat channels plus the admin surface
type Server struct {
	port           int
	apiKey         string
	agent          *agent.Agent
	orch           *orchestrator.Orchestrator
	channels       *channels.Registry
	escalations    escalation.Store
	knowledge      *knowledge.Client
	metrics        *metrics.Metrics
	limiter        *IPRateLimiter
	broadcaster    *EventBroadcaster
	upgrader       websocket.Upgrader
	server         *http.Server
	logger         zerolog.Logger
	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
}

// Config holds server configuration
type Config struct {
	Port              int
	APIKey            string
	RequestsPerMinute int
	Agent             *agent.Agent
	Channels          *channels.Registry
	Escalations       escalation.Store
	Knowledge         *knowledge.Client
	Metrics           *metrics.Metrics
	Broadcaster       *EventBroadcaster
	Logger            zerolog.Logger
}

// NewServer creates the gateway server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Agent == nil {
		return nil, fmt.Errorf("agent is required")
	}
	if cfg.Channels == nil {
		return nil, fmt.Errorf("channel registry is required")
	}
	if cfg.Escalations == nil {
		return nil, fmt.Errorf("escalation store is required")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewMetrics()
	}
	if cfg.Broadcaster == nil {
		cfg.Broadcaster = NewEventBroadcaster(cfg.Logger)
	}

	s := &Server{
		port:        cfg.Port,
		apiKey:      cfg.APIKey,
		agent:       cfg.Agent,
		orch:        orchestrator.New(cfg.Logger),
		channels:    cfg.Channels,
		escalations: cfg.Escalations,
		knowledge:   cfg.Knowledge,
		metrics:     cfg.Metrics,
		limiter:     NewIPRateLimiter(cfg.RequestsPerMinute),
		broadcaster: cfg.Broadcaster,
		logger:      cfg.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	return s, nil
}

// Broadcaster exposes the event broadcaster so the escalation store can
// be wired with it as a notifier.
func (s *Server) Broadcaster() *EventBroadcaster {
	return s.broadcaster
}

// Handler builds the HTTP routing table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat/{channel}", s.handleChat)
	mux.HandleFunc("GET /admin/escalations", s.requireAPIKey(s.handleListEscalations))
	mux.HandleFunc("POST /admin/escalations/{id}/status", s.requireAPIKey(s.handleUpdateEscalation))
	mux.HandleFunc("POST /admin/knowledge/documents", s.requireAPIKey(s.handleIngestDocument))
	mux.HandleFunc("GET /ws/escalations", s.handleEventStream)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// Start starts the gateway server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Int("port", s.port).Msg("Starting gateway server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()

	return nil
}

// Stop gracefully stops the gateway server
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down gateway server")

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight turns completed")
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	s.broadcaster.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}

	s.logger.Info().Msg("Gateway server stopped")
	return nil
}

// handleChat runs one conversation turn for the named channel
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}
	s.shutdownMu.RUnlock()

	channelName := r.PathValue("channel")
	adapter := s.channels.Get(channelName)
	if adapter == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown channel %q", channelName))
		return
	}

	if !s.limiter.Allow(clientAddr(r)) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	inbound, err := adapter.Parse(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.inFlightReqs.Add(1)
	defer s.inFlightReqs.Done()

	session := orchestrator.Session{}
	if threadID, ok := inbound.Metadata["thread_id"].(string); ok {
		session.ThreadID = threadID
	}

	start := time.Now()
	outbound := s.orch.Run(r.Context(), s.agent, inbound, session)
	s.observeTurn(inbound, outbound, time.Since(start))

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		adapter.Deliver(ctx, inbound, outbound)
		s.metrics.ChannelDeliveriesTotal.WithLabelValues(channelName).Inc()
	}()

	writeJSON(w, http.StatusOK, adapter.Present(outbound))
}

func (s *Server) observeTurn(in orchestrator.Inbound, out orchestrator.Outbound, elapsed time.Duration) {
	status := "ok"
	if _, failed := out.Metadata["error"]; failed {
		status = "error"
		s.metrics.TurnErrorsTotal.WithLabelValues(in.Channel).Inc()
	}
	s.metrics.TurnsTotal.WithLabelValues(in.Channel, status).Inc()
	s.metrics.TurnDuration.WithLabelValues(in.Channel).Observe(elapsed.Seconds())

	if stage, ok := out.Metadata["short_circuited_by"].(string); ok {
		s.metrics.ShortCircuitTotal.WithLabelValues(stage).Inc()
	}
}

// handleListEscalations returns pending escalations, most urgent first
func (s *Server) handleListEscalations(w http.ResponseWriter, r *http.Request) {
	pending := s.escalations.ListPending()
	escalation.SortPending(pending)

	s.metrics.EscalationsPending.Set(float64(len(pending)))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"escalations": pending,
		"count":       len(pending),
	})
}

// handleUpdateEscalation moves an escalation through its status lifecycle
func (s *Server) handleUpdateEscalation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var payload struct {
		Status     string `json:"status"`
		AssignedTo string `json:"assigned_to"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	status := escalation.Status(payload.Status)
	if !status.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid status %q", payload.Status))
		return
	}

	if !s.escalations.UpdateStatus(id, status, payload.AssignedTo) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("escalation %q not found", id))
		return
	}

	s.broadcaster.Broadcast("escalation.updated", map[string]interface{}{
		"escalation_id": id,
		"status":        string(status),
		"assigned_to":   payload.AssignedTo,
	})
	s.metrics.EscalationsPending.Set(float64(len(s.escalations.ListPending())))

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// handleIngestDocument pushes a document into the knowledge base
func (s *Server) handleIngestDocument(w http.ResponseWriter, r *http.Request) {
	if s.knowledge == nil {
		writeError(w, http.StatusNotImplemented, "knowledge base is not configured")
		return
	}

	var payload struct {
		Text        string `json:"text"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	if err := s.knowledge.InsertText(r.Context(), payload.Text, payload.Description); err != nil {
		s.logger.Error().Err(err).Msg("Knowledge ingestion failed")
		writeError(w, http.StatusBadGateway, "knowledge ingestion failed")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{"success": true})
}

// handleEventStream upgrades to a websocket and streams escalation events
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID, _ := gonanoid.New()
	s.broadcaster.Add(clientID, conn)
	s.logger.Info().Str("clientId", clientID).Str("ip", r.RemoteAddr).Msg("Subscriber connected")

	go func() {
		defer func() {
			conn.Close()
			s.broadcaster.Remove(clientID)
			s.logger.Info().Str("clientId", clientID).Msg("Subscriber disconnected")
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) requireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authorized(r) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

func (s *Server) authorized(r *http.Request) bool {
	key := r.Header.Get("X-API-Key")
	if key == "" {
		key = r.URL.Query().Get("api_key")
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) == 1
}

func clientAddr(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"error": message})
}
