// Package api provides the HTTP REST API and WebSocket server for the relay operator.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/privacylion/relay-operator/internal/history"
	"github.com/privacylion/relay-operator/internal/infrastructure/config"
	"github.com/privacylion/relay-operator/internal/infrastructure/logging"
	"github.com/privacylion/relay-operator/internal/relay"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// RelayController is the relay surface the API drives. *relay.Launcher
// implements it.
type RelayController interface {
	Start(ctx context.Context) (relay.Status, error)
	Stop(ctx context.Context) (relay.Status, error)
	Status(ctx context.Context) (relay.Status, error)
	Config() relay.Config
	UpdateConfig(ctx context.Context, cfg relay.Config) error
	OpenRelayURL(ctx context.Context) (string, error)
	HealthCheck(ctx context.Context) relay.HealthReport
}

// HealthChecker is a dependency reported by GET /api/v1/health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Connectivity reports the state of an optional broker client.
type Connectivity interface {
	IsConnected() bool
	SubscriptionCount() int
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Relay    RelayController
	History  history.Repository       // optional; /relay/events returns 503 without it
	Checks   map[string]HealthChecker // optional; keyed by component name
	DB       *sql.DB                  // optional; pool stats for /metrics
	MQTT     Connectivity             // optional; connection state for /metrics
	Hub      *Hub                     // If set, the server uses this hub instead of creating its own
	Version  string
}

// Server is the HTTP API server for the relay operator.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	relay     RelayController
	history   history.Repository
	checks    map[string]HealthChecker
	db        *sql.DB
	mqtt      Connectivity
	version   string
	startTime time.Time
	server    *http.Server
	listener  net.Listener
	hub       *Hub
	cancel    context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Relay == nil {
		return nil, fmt.Errorf("relay controller is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		relay:     deps.Relay,
		history:   deps.History,
		checks:    deps.Checks,
		db:        deps.DB,
		mqtt:      deps.MQTT,
		version:   deps.Version,
		startTime: time.Now(),
		hub:       deps.Hub,
	}
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It binds the listener synchronously so a port conflict is reported to the
// caller, then serves in a background goroutine. The hub and the periodic
// status push stop when Close() is called or ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.statusLoop(srvCtx)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
	}

	s.logger.Info("API server starting", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}

// statusLoop pushes the relay status to subscribed WebSocket clients every
// websocket.status_interval seconds while at least one client is connected.
func (s *Server) statusLoop(ctx context.Context) {
	if s.wsCfg.StatusInterval <= 0 {
		return
	}
	ticker := time.NewTicker(time.Duration(s.wsCfg.StatusInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pushStatus(ctx)
		}
	}
}

// pushStatus polls the relay once and broadcasts the result.
func (s *Server) pushStatus(ctx context.Context) {
	if s.hub.ClientCount() == 0 {
		return
	}
	st, err := s.relay.Status(ctx)
	if err != nil {
		s.logger.Debug("status poll failed", "error", err)
		return
	}
	s.hub.publishStatus(StatusPayload{Status: st})
}
