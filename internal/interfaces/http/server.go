// Package http serves the operator control plane: engine start/stop,
// pool and participant management, withdrawals, health, Prometheus
// metrics, and a live websocket feed of completed cycles.
package http

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/poolmind/poolmind/internal/config"
	"github.com/poolmind/poolmind/internal/engine"
	"github.com/poolmind/poolmind/internal/infrastructure/state"
	"github.com/poolmind/poolmind/internal/ledger"
	"github.com/poolmind/poolmind/internal/metrics"
	"github.com/poolmind/poolmind/internal/persistence"
)

// requestTimeout bounds every JSON API request. The websocket feed is
// exempt; it lives as long as the client does.
const requestTimeout = 5 * time.Second

// EngineController is the slice of the trading engine the API drives.
// *engine.Engine satisfies it.
type EngineController interface {
	Start() error
	Stop(ctx context.Context) error
	IsRunning() bool
	RunOneCycle(ctx context.Context) (engine.CycleRecord, error)
	Status() engine.Status
	Subscribe(buffer int) (<-chan engine.CycleRecord, func())
}

// VenueHealthReporter exposes per-venue breaker states for /health.
// market.Source satisfies it.
type VenueHealthReporter interface {
	VenueHealth() map[string]string
}

// Config holds the server binding and timeouts.
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

func (c *Config) setDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 60 * time.Second
	}
}

// Deps wires the collaborators the handlers reach. Engine, Ledger, and
// AppConfig are required; the rest may be nil and degrade their
// endpoints gracefully.
type Deps struct {
	Engine    EngineController
	Ledger    *ledger.Ledger
	AppConfig *config.Config
	State     state.Store
	History   persistence.Store
	Source    VenueHealthReporter
	Metrics   *metrics.Metrics
}

// Server is the control API. Construct with New, run with Start, stop
// with Shutdown.
type Server struct {
	cfg    Config
	router *mux.Router
	srv    *http.Server

	engine  EngineController
	ledger  *ledger.Ledger
	appCfg  *config.Config
	state   state.Store
	history persistence.Store
	source  VenueHealthReporter
	metrics *metrics.Metrics
}

// New validates the wiring, checks the port, and builds the route table.
func New(cfg Config, deps Deps) (*Server, error) {
	cfg.setDefaults()
	switch {
	case deps.Engine == nil:
		return nil, fmt.Errorf("http server: engine is required")
	case deps.Ledger == nil:
		return nil, fmt.Errorf("http server: ledger is required")
	case deps.AppConfig == nil:
		return nil, fmt.Errorf("http server: app config is required")
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("port %d is busy or unavailable: %w", cfg.Port, err)
	}
	listener.Close()

	s := &Server{
		cfg:     cfg,
		router:  mux.NewRouter(),
		engine:  deps.Engine,
		ledger:  deps.Ledger,
		appCfg:  deps.AppConfig,
		state:   deps.State,
		history: deps.History,
		source:  deps.Source,
		metrics: deps.Metrics,
	}
	s.routes()

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s, nil
}

func (s *Server) routes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(timeoutMiddleware)
	api.Use(jsonContentType)

	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/engine/start", s.handleEngineStart).Methods(http.MethodPost)
	api.HandleFunc("/engine/stop", s.handleEngineStop).Methods(http.MethodPost)
	api.HandleFunc("/engine/cycle", s.handleRunCycle).Methods(http.MethodPost)
	api.HandleFunc("/pool/metrics", s.handlePoolMetrics).Methods(http.MethodGet)
	api.HandleFunc("/participants", s.handleListParticipants).Methods(http.MethodGet)
	api.HandleFunc("/participants", s.handleAddParticipant).Methods(http.MethodPost)
	api.HandleFunc("/participants/{id}", s.handleGetParticipant).Methods(http.MethodGet)
	api.HandleFunc("/withdrawals", s.handleRequestWithdrawal).Methods(http.MethodPost)
	api.HandleFunc("/withdrawals/process", s.handleProcessWithdrawals).Methods(http.MethodPost)
	api.HandleFunc("/config", s.handleConfig).Methods(http.MethodGet)

	s.router.Handle("/health",
		timeoutMiddleware(jsonContentType(http.HandlerFunc(s.handleHealth)))).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	s.router.HandleFunc("/ws/cycles", s.handleCycleStream).Methods(http.MethodGet)

	// Preflight requests must match a route for the middleware chain
	// (and so the CORS handler) to run.
	s.router.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	s.router.NotFoundHandler = s.requestIDMiddleware(http.HandlerFunc(s.handleNotFound))
}

// Start blocks serving requests until Shutdown or a listener error.
func (s *Server) Start() error {
	log.Info().Str("addr", s.srv.Addr).Msg("Starting control API")
	return s.srv.ListenAndServe()
}

// Shutdown drains in-flight requests. Live websocket feeds are hijacked
// connections and close when the process exits.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down control API")
	return s.srv.Shutdown(ctx)
}

// Addr returns the configured bind address.
func (s *Server) Addr() string {
	return s.srv.Addr
}

type contextKey string

const requestIDKey contextKey = "request_id"

func requestIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// requestIDMiddleware tags each request with a short correlation id.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		log.Info().
			Str("request_id", requestIDFrom(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.status).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("HTTP request")
	})
}

func timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// corsMiddleware allows browser dashboards served from localhost.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response code for the request log. It
// passes Hijack through so /ws/cycles stays upgradable behind it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return h.Hijack()
}
