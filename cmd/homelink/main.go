// HomeLink Core - Device Messaging Backbone
//
// This is the main entry point for the HomeLink Core application: an
// embedded MQTT broker with device state persistence, command
// processing, presence supervision and optional status telemetry.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/homelink-io/homelink-core/internal/broker"
	"github.com/homelink-io/homelink-core/internal/command"
	"github.com/homelink-io/homelink-core/internal/device"
	"github.com/homelink-io/homelink-core/internal/infrastructure/config"
	"github.com/homelink-io/homelink-core/internal/infrastructure/database"
	"github.com/homelink-io/homelink-core/internal/infrastructure/influxdb"
	"github.com/homelink-io/homelink-core/internal/infrastructure/logging"
	"github.com/homelink-io/homelink-core/internal/presence"
	"github.com/homelink-io/homelink-core/internal/publish"
	"github.com/homelink-io/homelink-core/internal/routing"
	"github.com/homelink-io/homelink-core/migrations"
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
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
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
	log.Info("starting HomeLink Core",
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
	db, err := database.Open(database.Config{
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
	if migrateErr := db.Migrate(ctx, migrations.FS()); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Device store
	deviceRepo := device.NewSQLiteRepository(db.DB)
	devices, err := deviceRepo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading device store: %w", err)
	}
	log.Info("device store initialised", "devices", len(devices))

	// Publisher; the broker transport is attached by the gateway
	publisher := publish.New(byte(cfg.Broker.QoS))

	// Connect to InfluxDB (optional)
	var telemetry routing.TelemetrySink
	if cfg.InfluxDB.Enabled {
		influxClient, connErr := influxdb.Connect(cfg.InfluxDB)
		if connErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", connErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		telemetry = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Presence supervision, command processing, topic routing
	registry := presence.NewRegistry(deviceRepo, publisher, cfg.Heartbeat, log)
	processor := command.NewProcessor(deviceRepo, publisher, registry, cfg.Site.Timezone, log)
	router := routing.NewRouter(deviceRepo, processor, publisher, telemetry, nil, log)

	// Embedded broker gateway
	gateway, err := broker.NewGateway(cfg.Broker, router, processor, publisher, log)
	if err != nil {
		return fmt.Errorf("constructing broker: %w", err)
	}

	// Serve the broker and the presence sweep until shutdown
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return gateway.Run(gctx)
	})
	g.Go(func() error {
		return registry.Run(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("shutdown complete")
	return nil
}

// getConfigPath returns the configuration file path, preferring the
// HOMELINK_CONFIG environment variable over the default.
func getConfigPath() string {
	if path := os.Getenv("HOMELINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
