package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/pesanet/scale-telemetry/internal/bridge"
	"github.com/pesanet/scale-telemetry/internal/infrastructure/config"
	"github.com/pesanet/scale-telemetry/internal/infrastructure/logging"
	"github.com/pesanet/scale-telemetry/internal/journal"
	"github.com/pesanet/scale-telemetry/internal/scale"
)

const (
	// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
	// to complete during shutdown.
	gracefulShutdownTimeout = 10 * time.Second

	// healthCheckTimeout bounds the dependency checks behind /health.
	healthCheckTimeout = 2 * time.Second
)

// DeviceSource reports device link state. *scale.Supervisor satisfies it.
type DeviceSource interface {
	Snapshot() []scale.DeviceStatus
	Status(id string) (scale.DeviceStatus, bool)
	Stats() scale.Stats
}

// RouterSource reports command routing state. *bridge.Router satisfies it.
type RouterSource interface {
	IsRegistered(deviceID string) bool
	Metrics() bridge.RouterMetrics
}

// EventSource lists journaled link events. *journal.SQLiteRepository satisfies it.
type EventSource interface {
	List(ctx context.Context, filter journal.Filter) (*journal.ListResult, error)
}

// BusStatus reports MQTT client state. *mqtt.Client satisfies it.
type BusStatus interface {
	IsConnected() bool
	HealthCheck(ctx context.Context) error
	SubscriptionCount() int
}

// JournalDB exposes the journal database's health and pool stats.
// *database.DB satisfies it.
type JournalDB interface {
	HealthCheck(ctx context.Context) error
	Stats() sql.DBStats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Devices DeviceSource
	Router  RouterSource
	Events  EventSource // optional: nil when the journal is disabled
	Bus     BusStatus   // optional
	DB      JournalDB   // optional
	Version string
}

// Server is the HTTP status server.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	devices   DeviceSource
	router    RouterSource
	events    EventSource
	bus       BusStatus
	db        JournalDB
	version   string
	startTime time.Time
	server    *http.Server
}

// New creates a server. It does not listen until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("device source is required")
	}
	if deps.Router == nil {
		return nil, fmt.Errorf("router is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		devices:   deps.Devices,
		router:    deps.Router,
		events:    deps.Events,
		bus:       deps.Bus,
		db:        deps.DB,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Start begins listening in a background goroutine. Stop it with Close.
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the server, waiting up to 10 seconds for
// in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
