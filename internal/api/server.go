// Package api provides the HTTP REST API and WebSocket server for
// Mycelia Core.
//
// It exposes the farm hierarchy, device inventory, sensor readings,
// command dispatch, rule evaluation, and notifications to the
// management backend and dashboards, plus room- and farm-scoped
// real-time events over WebSocket.
//
// The server follows the same lifecycle pattern as the infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sporelab/mycelia-core/internal/command"
	"github.com/sporelab/mycelia-core/internal/device"
	"github.com/sporelab/mycelia-core/internal/farm"
	"github.com/sporelab/mycelia-core/internal/infrastructure/config"
	"github.com/sporelab/mycelia-core/internal/infrastructure/logging"
	"github.com/sporelab/mycelia-core/internal/notification"
	"github.com/sporelab/mycelia-core/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// CommandService issues commands and reads their lifecycle state.
// Satisfied by the command manager.
type CommandService interface {
	CreateAndIssue(ctx context.Context, deviceID, name string, params map[string]any, issuedBy string) (*command.Command, error)
	Get(ctx context.Context, id string) (*command.Command, error)
	ListByDevice(ctx context.Context, deviceID string, limit int) ([]command.Command, error)
}

// RoomEvaluator runs threshold rules for a room on demand. Satisfied by
// the automation evaluator.
type RoomEvaluator interface {
	EvaluateRoom(ctx context.Context, roomID string) (int, error)
}

// HealthChecker reports a dependency's health. Satisfied by the
// database and the MQTT transport.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger

	Farms         farm.Repository
	Devices       device.Repository
	Registry      *device.Registry
	Readings      telemetry.Repository
	Commands      CommandService
	Evaluator     RoomEvaluator
	Notifications notification.Repository

	// Health dependencies. Database is required; Transport optional.
	Database  HealthChecker
	Transport HealthChecker

	// ExternalHub lets the caller share one hub between the server and
	// the ingestion pipeline's broadcasters.
	ExternalHub *Hub

	AllowedOrigins []string
	Version        string
}

// Server is the HTTP API server for Mycelia Core.
type Server struct {
	cfg    config.APIConfig
	wsCfg  config.WebSocketConfig
	logger *logging.Logger

	farms         farm.Repository
	devices       device.Repository
	registry      *device.Registry
	readings      telemetry.Repository
	commands      CommandService
	evaluator     RoomEvaluator
	notifications notification.Repository

	db        HealthChecker
	transport HealthChecker

	jwtSecret      string
	allowedOrigins []string
	version        string

	server      *http.Server
	hub         *Hub
	externalHub bool
	cancel      context.CancelFunc
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil || deps.Devices == nil {
		return nil, fmt.Errorf("device registry and repository are required")
	}
	if deps.Security.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	s := &Server{
		cfg:            deps.Config,
		wsCfg:          deps.WS,
		logger:         deps.Logger,
		farms:          deps.Farms,
		devices:        deps.Devices,
		registry:       deps.Registry,
		readings:       deps.Readings,
		commands:       deps.Commands,
		evaluator:      deps.Evaluator,
		notifications:  deps.Notifications,
		db:             deps.Database,
		transport:      deps.Transport,
		jwtSecret:      deps.Security.JWT.Secret,
		allowedOrigins: deps.AllowedOrigins,
		version:        deps.Version,
	}

	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	}

	return s, nil
}

// Hub returns the server's WebSocket hub, creating it if needed. Call
// before Start when the ingestion pipeline needs the hub for its
// broadcasters.
func (s *Server) Hub() *Hub {
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, and launches the
// HTTP listener in a background goroutine. Stop with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.buildRouter(),
		ReadTimeout:  time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("api server listening", "addr", addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server failed", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts the server down, waiting for in-flight
// requests up to gracefulShutdownTimeout.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down api server: %w", err)
	}
	return nil
}
