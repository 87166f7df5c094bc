// Scale Telemetry - serial weighing scales on MQTT
//
// This is the main entry point for the scale telemetry service. It opens
// every configured scale, listens for commands on
// pesanet/devices/{id}/command and answers each read on
// pesanet/devices/{id}/response.
//
// Startup order: config, logger, device list, journal, MQTT, serial
// links, command router, health reporter, status API. Shutdown runs the
// other way round once SIGINT or SIGTERM arrives.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/pesanet/scale-telemetry/migrations"

	"github.com/pesanet/scale-telemetry/internal/api"
	"github.com/pesanet/scale-telemetry/internal/bridge"
	"github.com/pesanet/scale-telemetry/internal/infrastructure/config"
	"github.com/pesanet/scale-telemetry/internal/infrastructure/database"
	"github.com/pesanet/scale-telemetry/internal/infrastructure/logging"
	"github.com/pesanet/scale-telemetry/internal/infrastructure/mqtt"
	"github.com/pesanet/scale-telemetry/internal/journal"
	"github.com/pesanet/scale-telemetry/internal/scale"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on Ctrl+C or SIGTERM so run can drain and return.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting scale telemetry",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// .env may name the config file, so it is read before resolving it.
	config.LoadDotEnv()
	configPath, err := resolveConfigPath()
	if err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if configPath == "" {
		log.Info("no config file found, using defaults and environment", "path", defaultConfigPath)
	} else {
		log.Info("configuration loaded", "path", configPath)
	}

	// Reinitialise logger with config settings
	log, err = logging.New(cfg.Logging, version)
	if err != nil {
		return fmt.Errorf("initialising logger: %w", err)
	}
	defer log.Close() //nolint:errcheck // nothing left to report to
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
		"dir", cfg.Logging.Dir,
	)

	devices, err := scale.LoadDevices(cfg.Devices.ConfigPath)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}
	log.Info("device list loaded", "path", cfg.Devices.ConfigPath, "devices", len(devices))

	// Open the link-event journal (optional)
	var (
		db       *database.DB
		events   *journal.SQLiteRepository
		recorder scale.EventRecorder
	)
	if cfg.Journal.Enabled {
		db, err = openJournal(ctx, cfg.Journal)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing journal")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing journal", "error", closeErr)
			}
		}()
		events = journal.NewSQLiteRepository(db.DB)
		recorder = events
		log.Info("journal opened", "path", db.Path())
	} else {
		log.Info("journal disabled")
	}

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT, log.With("component", "mqtt"))
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", mqttClient.BrokerURL(),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	sup, err := scale.NewSupervisor(scale.Options{
		Devices:           devices,
		ReconnectInterval: cfg.GetReconnectInterval(),
		Logger:            log.With("component", "supervisor"),
		Recorder:          recorder,
	})
	if err != nil {
		return fmt.Errorf("creating supervisor: %w", err)
	}
	defer func() {
		log.Info("closing serial links")
		sup.Close()
	}()

	bus := &mqttBusAdapter{client: mqttClient}
	router, err := bridge.NewRouter(bridge.RouterOptions{
		Bus:           bus,
		PoolSize:      len(devices),
		ShutdownGrace: cfg.GetShutdownGrace(),
		Logger:        log.With("component", "router"),
	})
	if err != nil {
		return fmt.Errorf("creating router: %w", err)
	}
	mqttClient.SetOnConnect(router.OnConnect)
	mqttClient.SetOnDisconnect(router.OnDisconnect)

	// A device brought back by its reconnect task starts taking commands.
	sup.SetOnReconnect(func(desc scale.Descriptor) {
		router.RegisterDevice(desc, sup)
	})

	connected, failed := sup.ConnectAll(ctx)
	for _, desc := range connected {
		router.RegisterDevice(desc, sup)
	}
	for _, desc := range failed {
		sup.Supervise(desc.ID)
	}
	log.Info("serial links opened", "connected", len(connected), "failed", len(failed))

	if startErr := router.Start(ctx); startErr != nil {
		return fmt.Errorf("starting router: %w", startErr)
	}
	defer func() {
		log.Info("draining command router")
		router.Stop()
	}()

	health := bridge.NewHealthReporter(bridge.HealthReporterConfig{
		ClientID:  cfg.MQTT.Broker.ClientID,
		Version:   version,
		Interval:  cfg.GetHealthInterval(),
		Publisher: mqttClient,
		Devices:   sup,
		Logger:    log.With("component", "health"),
	})
	if pubErr := health.PublishStarting(); pubErr != nil {
		log.Warn("publishing starting health failed", "error", pubErr)
	}
	health.Start(ctx)
	defer health.Stop()

	// Start the status API (optional)
	if cfg.API.Enabled {
		apiServer, apiErr := startAPI(ctx, cfg.API, log, sup, router, events, mqttClient, db)
		if apiErr != nil {
			return apiErr
		}
		defer func() {
			log.Info("stopping API server")
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error stopping API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API server disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. API server (if enabled)
	// 2. Health reporter (publishes stopping)
	// 3. Router drain, bounded by shutdown_grace
	// 4. Serial links and reconnect tasks
	// 5. MQTT (publishes offline)
	// 6. Journal (if enabled)
	// 7. Log file

	log.Info("scale telemetry stopped")
	return nil
}

// resolveConfigPath returns the configuration file to load.
// SCALETELEMETRY_CONFIG wins when set, and must then exist. The default
// path is optional: "" is returned when it is absent so Load applies
// defaults and environment only.
func resolveConfigPath() (string, error) {
	if path := os.Getenv("SCALETELEMETRY_CONFIG"); path != "" {
		return path, nil
	}

	if _, err := os.Stat(defaultConfigPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("checking config file: %w", err)
	}
	return defaultConfigPath, nil
}

// openJournal opens the journal database and applies migrations.
func openJournal(ctx context.Context, cfg config.JournalConfig) (*database.DB, error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("running journal migrations: %w", err)
	}
	return db, nil
}

// startAPI builds and starts the status server. A nil journal or database
// leaves the matching endpoints reporting "not enabled".
func startAPI(
	ctx context.Context,
	cfg config.APIConfig,
	log *logging.Logger,
	sup *scale.Supervisor,
	router *bridge.Router,
	events *journal.SQLiteRepository,
	bus *mqtt.Client,
	db *database.DB,
) (*api.Server, error) {
	deps := api.Deps{
		Config:  cfg,
		Logger:  log.With("component", "api"),
		Devices: sup,
		Router:  router,
		Bus:     bus,
		Version: version,
	}
	// Assign only when set so the interfaces stay nil rather than typed nil.
	if events != nil {
		deps.Events = events
	}
	if db != nil {
		deps.DB = db
	}

	server, err := api.New(deps)
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting API server: %w", err)
	}
	log.Info("API server started", "host", cfg.Host, "port", cfg.Port)
	return server, nil
}

// mqttBusAdapter adapts the infrastructure MQTT client to bridge.Bus.
// The difference is the Subscribe handler signature:
//   - Infrastructure mqtt: func(topic, payload []byte) error
//   - bridge expects: func(topic, payload []byte)
type mqttBusAdapter struct {
	client *mqtt.Client
}

// Publish implements bridge.Bus.
func (a *mqttBusAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements bridge.Bus.
func (a *mqttBusAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	// The router answers every command itself, so there is no error to return.
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// Unsubscribe implements bridge.Bus.
func (a *mqttBusAdapter) Unsubscribe(topic string) error {
	return a.client.Unsubscribe(topic)
}

// IsConnected implements bridge.Bus.
func (a *mqttBusAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
