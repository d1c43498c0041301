// Gray Logic Media - UPnP AV media server
//
// This is the main entry point of the media server. It publishes the
// media catalog to control points on the local network as a UPnP
// MediaServer device with ContentDirectory, ConnectionManager and
// MediaReceiverRegistrar services, and reports presence and catalog
// changes to the Gray Logic building bus.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/koron/go-ssdp"

	_ "github.com/nerrad567/gray-logic-media/migrations"

	"github.com/nerrad567/gray-logic-media/internal/catalog"
	"github.com/nerrad567/gray-logic-media/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-media/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-media/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-media/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-media/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-media/internal/server"
	"github.com/nerrad567/gray-logic-media/internal/services"
	"github.com/nerrad567/gray-logic-media/internal/upnp"
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
	log := logging.Default()
	log.Info("starting Gray Logic Media",
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
	ssdp.Logger = slog.NewLogLogger(log.Component("ssdp").Handler(), slog.LevelDebug)

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
	log.Info("database connected", "path", db.Path())

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	schemaVersion, err := db.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	log.Info("database migrations complete", "schema_version", schemaVersion)

	cache, err := catalog.NewCache(cfg.Cache.Size)
	if err != nil {
		return fmt.Errorf("creating catalog cache: %w", err)
	}
	store := catalog.NewStore(catalog.NewSQLiteRepository(db.DB), cache)
	store.SetLogger(log.Component("catalog"))

	cd := services.NewContentDirectory(store)
	cd.SetLogger(log.Component("content_directory"))
	content := services.NewContentHandler(store)
	content.SetLogger(log.Component("content"))

	var observer server.DispatchObserver
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB, cfg.Server.UDN)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
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
		observer = dispatchRecorder{client: influxClient}
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, mqtt.Device{
			UDN:          cfg.Server.UDN,
			FriendlyName: cfg.Server.FriendlyName,
		})
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	stack := upnp.NewHTTPStack(upnp.Options{ServerName: serverName()})
	stack.SetLogger(log.Component("upnp"))

	var ctrl *server.Controller
	var subsystems []server.Subsystem
	if mqttClient != nil {
		subsystems = append(subsystems, mqtt.NewPresence(mqttClient, func() string {
			return ctrl.PresentationURL()
		}))
	}

	ctrl, err = server.New(server.Deps{
		Config: cfg.Server,
		Stack:  stack,
		Services: server.Services{
			ContentDirectory:       cd,
			ConnectionManager:      services.NewConnectionManager(cfg.Server.ProtocolInfo),
			MediaReceiverRegistrar: services.NewMediaReceiverRegistrar(),
		},
		ContentHandler: content,
		Storage:        db,
		Observer:       observer,
		Subsystems:     subsystems,
		Logger:         log.Component("controller"),
	})
	if err != nil {
		return fmt.Errorf("creating controller: %w", err)
	}

	store.OnChange(catalogChanged(ctx, log, ctrl, cd, mqttClient, influxClient))

	if startErr := ctrl.Start(ctx); startErr != nil {
		if shutdownErr := ctrl.Shutdown(); shutdownErr != nil {
			log.Error("error releasing media server", "error", shutdownErr)
		}
		return fmt.Errorf("starting media server: %w", startErr)
	}
	defer func() {
		log.Info("stopping media server")
		if shutdownErr := ctrl.Shutdown(); shutdownErr != nil {
			log.Error("error stopping media server", "error", shutdownErr)
		}
	}()

	if hcErr := healthCheck(ctx, db, mqttClient, influxClient); hcErr != nil {
		log.Warn("startup health check failed", "error", hcErr)
	}

	log.Info("initialisation complete, waiting for shutdown signal",
		"udn", cfg.Server.UDN,
		"virtual_url", ctrl.VirtualURL(),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	logCatalogStats(log, db, store)
	return nil
}

// getConfigPath returns the configuration file path.
// Checks GRAYMEDIA_CONFIG environment variable first, then uses default.
func getConfigPath() string {
	if path := os.Getenv("GRAYMEDIA_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// serverName is the SERVER header value of HTTP responses and SSDP
// announcements.
func serverName() string {
	return fmt.Sprintf("%s/%s UPnP/1.0 GrayMedia/%s", runtime.GOOS, runtime.GOARCH, version)
}

// healthCheck verifies the backing services are reachable.
// Optional clients that are nil are skipped.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	var errs []error
	if err := db.HealthCheck(ctx); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mqtt: %w", err))
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("influxdb: %w", err))
		}
	}
	return errors.Join(errs...)
}

// logCatalogStats reports how the catalog was served over the process
// lifetime.
func logCatalogStats(log *logging.Logger, db *database.DB, store *catalog.Store) {
	stats := db.Stats()
	hits, misses := store.CacheStats()
	log.Info("catalog statistics",
		"cache_hits", hits,
		"cache_misses", misses,
		"db_open_connections", stats.OpenConnections,
		"db_wait_count", stats.WaitCount,
		"db_wait_duration", stats.WaitDuration.String(),
	)
}

// catalogChanged fans a committed catalog change out to UPnP subscribers,
// the building bus and telemetry.
func catalogChanged(
	ctx context.Context,
	log *logging.Logger,
	ctrl *server.Controller,
	cd *services.ContentDirectory,
	mqttClient *mqtt.Client,
	influxClient *influxdb.Client,
) func(catalog.Change) {
	return func(change catalog.Change) {
		vars := cd.ChangeVars(ctx, change)
		if err := ctrl.Notify(services.ContentDirectoryID, vars); err != nil && !errors.Is(err, server.ErrNotActive) {
			log.Warn("notifying catalog change", "error", err)
		}
		if mqttClient != nil {
			if err := mqttClient.PublishCatalogUpdate(change.SystemUpdateID, change.ContainerIDs); err != nil {
				log.Warn("publishing catalog change", "error", err)
			}
		}
		if influxClient != nil {
			influxClient.WriteCatalogChange(change.SystemUpdateID, len(change.ContainerIDs))
		}
	}
}

// dispatchRecorder writes every dispatched UPnP event to InfluxDB.
type dispatchRecorder struct {
	client *influxdb.Client
}

func (r dispatchRecorder) ObserveDispatch(d server.Dispatch) {
	var service string
	if d.ServiceID != "" {
		service = upnp.ShortName(d.ServiceID)
	}
	r.client.WriteDispatch(influxdb.DispatchRecord{
		Event:    d.EventType.String(),
		Service:  service,
		Action:   d.Action,
		Code:     d.Code,
		Duration: d.Duration,
	})
}
