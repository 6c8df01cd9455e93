// Beadle Core - Electronic Beadle Slip service for Campion College
//
// This is the main entry point. It loads configuration, opens and migrates
// the database, seeds the role catalog, connects the optional MQTT and
// InfluxDB outputs and serves the HTTP API until interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/campioncollege/beadle-core/migrations"

	"github.com/campioncollege/beadle-core/internal/api"
	"github.com/campioncollege/beadle-core/internal/audit"
	"github.com/campioncollege/beadle-core/internal/auth"
	"github.com/campioncollege/beadle-core/internal/infrastructure/config"
	"github.com/campioncollege/beadle-core/internal/infrastructure/database"
	"github.com/campioncollege/beadle-core/internal/infrastructure/influxdb"
	"github.com/campioncollege/beadle-core/internal/infrastructure/logging"
	"github.com/campioncollege/beadle-core/internal/infrastructure/mqtt"
	"github.com/campioncollege/beadle-core/internal/slip"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

const (
	// Default configuration file path
	defaultConfigPath = "configs/config.yaml"

	// configEnv overrides defaultConfigPath.
	configEnv = "BEADLE_CONFIG"

	// auditQueueSize bounds audit entries waiting to be written.
	auditQueueSize = 256

	// shutdownTimeout bounds draining the audit queue on exit.
	shutdownTimeout = 5 * time.Second
)

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
// It returns nil on clean shutdown.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Beadle Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(cfg.Database)
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Accounts and roles
	users := auth.NewUserRepository(db.DB)
	catalog := auth.NewRoleCatalog(db.DB)
	assignments := auth.NewAssignmentRepository(db.DB)
	sessions := auth.NewSessionRepository(db.DB)

	if seedErr := auth.SeedCatalog(ctx, catalog, log.Logger); seedErr != nil {
		return fmt.Errorf("seeding role catalog: %w", seedErr)
	}
	if _, seedErr := auth.SeedAdmin(ctx, users, assignments, cfg.Security.Seed.AdminEmail, log.Logger); seedErr != nil {
		return fmt.Errorf("seeding admin: %w", seedErr)
	}

	// Slips
	schedule, err := slip.NewSchedule(cfg.School)
	if err != nil {
		return fmt.Errorf("building bell schedule: %w", err)
	}
	slips := slip.NewService(slip.NewSQLiteRepository(db.DB), schedule)
	log.Info("bell schedule loaded",
		"periods", len(schedule.Periods()),
		"timezone", schedule.Location().String(),
	)

	// Audit trail
	auditRepo := audit.NewSQLiteRepository(db.DB)
	recorder := audit.NewRecorder(auditRepo, auditQueueSize, log.Logger)
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if closeErr := recorder.Close(drainCtx); closeErr != nil {
			log.Error("error draining audit queue", "error", closeErr)
		}
	}()

	mqttClient := connectMQTT(cfg.MQTT, log)
	if mqttClient != nil {
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	}

	influxClient := connectInfluxDB(cfg.InfluxDB, log)
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
	}

	server, err := api.New(api.Deps{
		Config:        cfg.API,
		WS:            cfg.WebSocket,
		Security:      cfg.Security,
		SchoolName:    cfg.School.Name,
		Logger:        log,
		DB:            db,
		Users:         users,
		Catalog:       catalog,
		Assignments:   assignments,
		Sessions:      sessions,
		Gate:          auth.NewGate(sessions, assignments, nil),
		Authenticator: auth.NewAuthenticator(users, sessions, cfg.SessionTTL()),
		RoleManager:   auth.NewRoleManager(assignments),
		Slips:         slips,
		AuditRepo:     auditRepo,
		Audit:         recorder,
		MQTT:          mqttClient,
		InfluxDB:      influxClient,
		Version:       version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient, server); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal",
		"school", cfg.School.Name,
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
	)

	<-ctx.Done()

	// Deferred Close() calls run in reverse order: API server, InfluxDB,
	// MQTT, audit queue, database.
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses BEADLE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return defaultConfigPath
}

// connectMQTT connects to the broker when enabled. A broker that cannot be
// reached is logged and skipped; events then only reach WebSocket clients.
func connectMQTT(cfg config.MQTTConfig, log *logging.Logger) *mqtt.Client {
	if !cfg.Enabled {
		log.Info("MQTT disabled")
		return nil
	}
	client, err := mqtt.Connect(cfg, log)
	if err != nil {
		log.Warn("MQTT unavailable, continuing without event publishing",
			"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
			"error", err,
		)
		return nil
	}
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
	)
	return client
}

// connectInfluxDB connects the telemetry writer when enabled. Failure is
// logged and skipped.
func connectInfluxDB(cfg config.InfluxDBConfig, log *logging.Logger) *influxdb.Client {
	client, err := influxdb.Connect(cfg)
	if err != nil {
		if errors.Is(err, influxdb.ErrDisabled) {
			log.Info("InfluxDB disabled")
		} else {
			log.Warn("InfluxDB unavailable, continuing without telemetry", "url", cfg.URL, "error", err)
		}
		return nil
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.URL,
		"org", cfg.Org,
		"bucket", cfg.Bucket,
	)
	return client
}

// healthCheck verifies the database, any connected outputs and the API
// server. The MQTT and InfluxDB clients may be nil.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, server *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	return nil
}
