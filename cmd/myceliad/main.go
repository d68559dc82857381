// Mycelia Core - Mushroom Farm Telemetry and Control
//
// This is the main entry point for the Mycelia Core daemon. It wires the
// MQTT ingestion pipeline, device liveness tracking, threshold automation,
// and the REST/WebSocket API over a local SQLite store, with an optional
// InfluxDB mirror for time-series dashboards.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/sporelab/mycelia-core/migrations"

	"github.com/sporelab/mycelia-core/internal/api"
	"github.com/sporelab/mycelia-core/internal/automation"
	"github.com/sporelab/mycelia-core/internal/command"
	"github.com/sporelab/mycelia-core/internal/device"
	"github.com/sporelab/mycelia-core/internal/farm"
	"github.com/sporelab/mycelia-core/internal/infrastructure/config"
	"github.com/sporelab/mycelia-core/internal/infrastructure/database"
	"github.com/sporelab/mycelia-core/internal/infrastructure/influxdb"
	"github.com/sporelab/mycelia-core/internal/infrastructure/logging"
	"github.com/sporelab/mycelia-core/internal/infrastructure/mqtt"
	"github.com/sporelab/mycelia-core/internal/ingest"
	"github.com/sporelab/mycelia-core/internal/liveness"
	"github.com/sporelab/mycelia-core/internal/notification"
	"github.com/sporelab/mycelia-core/internal/telemetry"
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

// offlineMarkTimeout bounds the database write when the liveness sweep
// marks a silent device offline.
const offlineMarkTimeout = 5 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Mycelia Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Repositories
	farmRepo := farm.NewSQLiteRepository(db.DB)
	deviceRepo := device.NewSQLiteRepository(db.DB)
	readingRepo := telemetry.NewSQLiteRepository(db.DB)
	commandRepo := command.NewSQLiteRepository(db.DB)
	ruleRepo := automation.NewSQLiteRepository(db.DB)
	notificationRepo := notification.NewSQLiteRepository(db.DB)

	// Device registry with warm cache
	registry := device.NewRegistry(deviceRepo)
	if loadErr := registry.LoadAll(ctx); loadErr != nil {
		return fmt.Errorf("loading device registry: %w", loadErr)
	}
	log.Info("device registry initialised", "devices", registry.Count())

	// MQTT transport (real broker or in-process simulator per config)
	transport, err := mqtt.NewTransport(transportConfig(cfg))
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := transport.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT transport ready",
		"mode", cfg.MQTT.Mode,
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Handler errors and recovered panics surface through the service logger
	if l, ok := transport.(interface{ SetLogger(mqtt.Logger) }); ok {
		l.SetLogger(log.With("component", "mqtt"))
	}

	// Reconnect logging only applies to the broker-backed client
	if client, ok := transport.(*mqtt.Client); ok {
		client.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		client.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	}

	// Connect to InfluxDB (optional time-series mirror)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// The WebSocket hub is created up front and shared between the API
	// server and the ingestion pipeline's broadcasters.
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	// Domain wiring: notifications fan out over the hub, command failures
	// raise warnings, rule firings raise infos.
	emitter := notification.NewEmitter(notificationRepo,
		notification.WithBroadcaster(hub),
		notification.WithLogger(log),
	)

	commandManager := command.NewManager(commandRepo, registry, transport,
		command.WithNotifier(emitter),
		command.WithBroadcaster(hub),
		command.WithLogger(log),
		command.WithQoS(byte(cfg.MQTT.QoS)), // #nosec G115 -- validated 0..2
	)

	evaluator := automation.NewEvaluator(ruleRepo, readingRepo, commandManager,
		automation.WithNotifier(emitter),
		automation.WithLogger(log),
	)

	// Liveness tracking: silent devices go offline after the configured
	// threshold and the status change fans out like any other.
	tracker := liveness.NewTracker(cfg.OfflineThreshold(), cfg.SweepInterval(),
		liveness.WithLogger(log),
	)
	tracker.SetOnOffline(func(deviceID string, lastSeen time.Time) {
		offlineCtx, offlineCancel := context.WithTimeout(context.Background(), offlineMarkTimeout)
		defer offlineCancel()

		d, getErr := registry.Get(offlineCtx, deviceID)
		if getErr != nil {
			log.Error("offline sweep: device lookup failed", "device_id", deviceID, "error", getErr)
			return
		}
		if markErr := registry.MarkOffline(offlineCtx, deviceID); markErr != nil {
			log.Error("offline sweep: marking device offline failed", "device_id", deviceID, "error", markErr)
			return
		}
		log.Warn("device went offline", "device_id", deviceID, "last_seen", lastSeen)
		hub.DeviceStatus(deviceID, d.RoomID, d.FarmID, device.StatusOffline)
	})
	go tracker.Run(ctx)

	// Telemetry pipeline
	handlerOpts := []telemetry.HandlerOption{
		telemetry.WithLiveness(tracker),
		telemetry.WithEvaluator(evaluator),
		telemetry.WithBroadcaster(hub),
		telemetry.WithLogger(log),
	}
	if influxClient != nil {
		handlerOpts = append(handlerOpts, telemetry.WithMirror(influxClient))
	}
	telemetryHandler := telemetry.NewHandler(registry, readingRepo, handlerOpts...)

	statusProcessor := ingest.NewStatusProcessor(registry,
		ingest.WithAckHandler(commandManager),
		ingest.WithStatusLiveness(tracker),
		ingest.WithStatusNotifier(emitter),
		ingest.WithStatusBroadcaster(hub),
		ingest.WithStatusLogger(log),
	)

	router := ingest.NewRouter(transport, telemetryHandler, statusProcessor, commandManager,
		ingest.RouterConfig{
			QueueSize: cfg.Ingest.QueueSize,
			Workers:   cfg.Ingest.Workers,
			QoS:       byte(cfg.MQTT.QoS), // #nosec G115 -- validated 0..2
		},
		ingest.WithRouterLogger(log),
	)
	if startErr := router.Start(ctx); startErr != nil {
		return fmt.Errorf("starting ingest router: %w", startErr)
	}
	log.Info("ingest router started",
		"queue_size", cfg.Ingest.QueueSize,
		"workers", cfg.Ingest.Workers,
	)

	// HTTP API
	server, err := api.New(api.Deps{
		Config:        cfg.API,
		WS:            cfg.WebSocket,
		Security:      cfg.Security,
		Logger:        log,
		Farms:         farmRepo,
		Devices:       deviceRepo,
		Registry:      registry,
		Readings:      readingRepo,
		Commands:      commandManager,
		Evaluator:     evaluator,
		Notifications: notificationRepo,
		Database:      db,
		Transport:     transport,
		ExternalHub:   hub,
		Version:       version,
	})
	if err != nil {
		return fmt.Errorf("creating api server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting api server: %w", startErr)
	}
	defer func() {
		log.Info("stopping api server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing api server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, transport, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Let the ingest workers drain before the defer chain tears down the
	// transport and database.
	router.Wait()
	if dropped := router.Dropped(); dropped > 0 {
		log.Warn("messages dropped during run", "dropped", dropped, "malformed", router.Malformed())
	}

	log.Info("Mycelia Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses MYCELIA_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("MYCELIA_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// transportConfig maps the MQTT section of config.yaml to the transport
// package's config type.
func transportConfig(cfg *config.Config) mqtt.TransportConfig {
	return mqtt.TransportConfig{
		Mode:                  cfg.MQTT.Mode,
		Host:                  cfg.MQTT.Broker.Host,
		Port:                  cfg.MQTT.Broker.Port,
		TLS:                   cfg.MQTT.Broker.TLS,
		ClientID:              cfg.MQTT.Broker.ClientID,
		Username:              cfg.MQTT.Auth.Username,
		Password:              cfg.MQTT.Auth.Password,
		QoS:                   cfg.MQTT.QoS,
		ReconnectInitialDelay: cfg.MQTT.Reconnect.InitialDelay,
		ReconnectMaxDelay:     cfg.MQTT.Reconnect.MaxDelay,
	}
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - transport: MQTT transport to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, transport mqtt.Transport, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := transport.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
