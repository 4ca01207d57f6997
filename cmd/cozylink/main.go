// CozyLink - Local Smart Device Gateway
//
// This is the main entry point for the CozyLink daemon. CozyLink discovers
// CozyLife-family smart plugs and lights on the local network, keeps a TCP
// session to each one, and exposes them over MQTT and a REST API without
// touching the vendor cloud.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"

	_ "github.com/nerrad567/cozylink/migrations"

	"github.com/nerrad567/cozylink/internal/api"
	"github.com/nerrad567/cozylink/internal/catalog"
	"github.com/nerrad567/cozylink/internal/device"
	"github.com/nerrad567/cozylink/internal/discovery"
	"github.com/nerrad567/cozylink/internal/infrastructure/config"
	"github.com/nerrad567/cozylink/internal/infrastructure/database"
	"github.com/nerrad567/cozylink/internal/infrastructure/influxdb"
	"github.com/nerrad567/cozylink/internal/infrastructure/logging"
	"github.com/nerrad567/cozylink/internal/infrastructure/mqtt"
	"github.com/nerrad567/cozylink/internal/protocol"
	"github.com/nerrad567/cozylink/internal/reconciler"
	"github.com/nerrad567/cozylink/internal/session"
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

// commandTimeout bounds a single device control exchange triggered over MQTT.
const commandTimeout = 15 * time.Second

func main() {
	// Cancel on interrupt signals for graceful shutdown
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
	log.Info("starting CozyLink",
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
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Device identity store
	store := device.NewStore(db.DB)

	// Load the product catalog. Devices with unknown product ids still
	// work; they just stay uncategorised.
	var cat catalog.Catalog = catalog.Empty()
	if cfg.Catalog.Path != "" {
		file, loadErr := catalog.LoadFile(cfg.Catalog.Path)
		if loadErr != nil {
			log.Warn("product catalog unavailable, devices stay uncategorised",
				"path", cfg.Catalog.Path,
				"error", loadErr,
			)
		} else {
			cat = file
			log.Info("product catalog loaded", "path", cfg.Catalog.Path, "models", file.Len())
		}
	}

	// Live session registry
	registry := device.NewRegistry()
	registry.SetLogger(log)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = connectMQTT(ctx, cfg, log)
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
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
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

	// Discovery sources: broadcast, subnet sweep, static addresses,
	// plus last-known addresses from previous runs.
	staticHosts := append([]string{}, cfg.Discovery.StaticAddresses...)
	if known, knownErr := store.KnownHosts(ctx); knownErr != nil {
		log.Warn("loading known device addresses", "error", knownErr)
	} else {
		staticHosts = append(staticHosts, known...)
	}
	engine := discovery.NewEngine(buildDiscoveryConfig(cfg, staticHosts), log)

	// Session factory used for every discovered address
	factory := func(host string) device.Session {
		return session.New(session.Config{
			Host:           host,
			Port:           cfg.Session.Port,
			ConnectTimeout: cfg.Session.GetConnectTimeout(),
			RequestTimeout: cfg.Session.GetRequestTimeout(),
			RequestRetries: cfg.Session.RequestRetries,
		}, cat, log)
	}

	// Event fan-out to MQTT and InfluxDB
	notifier := &stateNotifier{
		mqtt:   mqttClient,
		influx: influxClient,
		log:    log,
	}

	// Reconciler owns the discovery loop and the registry contents
	rec := reconciler.New(
		reconciler.Config{Interval: cfg.GetScanInterval()},
		engine, factory, registry, notifier, store, log,
	)
	rec.Start(ctx)
	defer rec.Wait()
	log.Info("reconciler started", "scan_interval", cfg.GetScanInterval())

	// State poller keeps MQTT and InfluxDB fresh between commands
	var poller *reconciler.Poller
	if cfg.Poller.Enabled {
		poller = reconciler.NewPoller(registry, notifier, cfg.Poller.GetPollInterval(), log)
		poller.Start(ctx)
		defer poller.Wait()
		log.Info("state poller started", "interval", cfg.Poller.GetPollInterval())
	} else {
		log.Info("state poller disabled")
	}

	// MQTT command subscriptions
	if mqttClient != nil {
		if subErr := subscribeCommands(ctx, mqttClient, registry, rec, cfg, log); subErr != nil {
			return fmt.Errorf("subscribing to command topics: %w", subErr)
		}
	}

	// REST API (optional)
	if cfg.API.Enabled {
		apiServer, apiErr := api.New(api.Deps{
			Config:   cfg.API,
			Logger:   log,
			Registry: registry,
			Scanner:  rec,
			Version:  version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("REST API disabled")
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. API server
	// 2. Poller / reconciler wait (sessions disconnected, offline published)
	// 3. InfluxDB (if enabled)
	// 4. MQTT
	// 5. Database

	log.Info("CozyLink stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses COZYLINK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("COZYLINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// connectMQTT attempts the initial broker connection with exponential
// backoff. The paho client reconnects on its own after the first success;
// the retry loop only covers startup, when the broker may still be coming
// up alongside the daemon.
func connectMQTT(ctx context.Context, cfg *config.Config, log *logging.Logger) (*mqtt.Client, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Duration(cfg.MQTT.Reconnect.InitialDelay) * time.Second
	bo.MaxInterval = time.Duration(cfg.MQTT.Reconnect.MaxDelay) * time.Second
	bo.MaxElapsedTime = 0

	var policy backoff.BackOff = backoff.WithContext(bo, ctx)
	if cfg.MQTT.Reconnect.MaxAttempts > 0 {
		policy = backoff.WithMaxRetries(policy, uint64(cfg.MQTT.Reconnect.MaxAttempts))
	}

	var client *mqtt.Client
	operation := func() error {
		var connErr error
		client, connErr = mqtt.Connect(cfg.MQTT)
		return connErr
	}
	notify := func(err error, next time.Duration) {
		log.Warn("MQTT connection failed, retrying",
			"error", err,
			"retry_in", next,
		)
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, err
	}
	return client, nil
}

// buildDiscoveryConfig maps the YAML discovery section onto the engine's
// configuration.
func buildDiscoveryConfig(cfg *config.Config, staticHosts []string) discovery.Config {
	out := discovery.Config{
		Subnets:       cfg.Discovery.Subnets,
		SubnetPort:    cfg.Session.Port,
		SubnetTimeout: cfg.GetSubnetTimeout(),
		StaticHosts:   staticHosts,
	}

	if cfg.Discovery.Broadcast.Enabled {
		b := cfg.Discovery.Broadcast
		out.Broadcast = &discovery.BroadcastConfig{
			Address:            b.Address,
			Port:               b.Port,
			SendCount:          b.SendCount,
			SendInterval:       b.GetSendInterval(),
			FirstReplyAttempts: b.FirstReplyAttempts,
			ReplyTimeout:       b.GetReplyTimeout(),
			MaxReplies:         b.MaxReplies,
		}
	}

	return out
}

// subscribeCommands wires the MQTT command topics to the registry.
//
// Topics:
//   - cozylink/device/{id}/set: datapoint values to push, e.g. {"1": 255}
//   - cozylink/system/scan: trigger an immediate discovery pass
func subscribeCommands(ctx context.Context, client *mqtt.Client, registry *device.Registry, rec *reconciler.Reconciler, cfg *config.Config, log *logging.Logger) error {
	var topics mqtt.Topics
	qos := byte(cfg.MQTT.QoS)

	setHandler := func(topic string, payload []byte) error {
		id := mqtt.DeviceIDFromTopic(topic)
		if id == "" {
			return fmt.Errorf("no device id in topic %q", topic)
		}

		var values protocol.Values
		if err := json.Unmarshal(payload, &values); err != nil {
			return fmt.Errorf("decoding set payload for %s: %w", id, err)
		}

		sess, err := registry.Get(id)
		if err != nil {
			return fmt.Errorf("device %s: %w", id, err)
		}

		cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
		defer cancel()

		if err := sess.Control(cmdCtx, values); err != nil {
			return fmt.Errorf("controlling %s: %w", id, err)
		}
		log.Debug("MQTT set command applied", "device_id", id, "values", values)
		return nil
	}

	if err := client.Subscribe(topics.AllDeviceSets(), qos, setHandler); err != nil {
		return err
	}

	scanHandler := func(_ string, _ []byte) error {
		log.Info("scan requested over MQTT")
		rec.TriggerScan()
		return nil
	}

	return client.Subscribe(topics.SystemScan(), qos, scanHandler)
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
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

	return nil
}

// stateNotifier fans device lifecycle and state events out to MQTT and
// InfluxDB. Either sink may be nil when disabled.
type stateNotifier struct {
	mqtt   *mqtt.Client
	influx *influxdb.Client
	topics mqtt.Topics
	log    *logging.Logger
}

// availabilityPayload is the retained MQTT availability message.
type availabilityPayload struct {
	Status    string `json:"status"`
	Host      string `json:"host,omitempty"`
	ModelName string `json:"model_name,omitempty"`
}

// DeviceOnline implements reconciler.Notifier.
func (n *stateNotifier) DeviceOnline(dev device.Device) {
	if n.mqtt != nil {
		payload := availabilityPayload{Status: "online", Host: dev.Host, ModelName: dev.ModelName}
		if err := n.mqtt.PublishJSON(n.topics.DeviceAvailability(dev.ID), payload, true); err != nil {
			n.log.Warn("publishing availability", "device_id", dev.ID, "error", err)
		}
	}
	if n.influx != nil {
		n.influx.WriteAvailability(dev.ID, true)
		n.influx.WriteSignalStrength(dev.ID, dev.RSSI)
	}
}

// DeviceOffline implements reconciler.Notifier.
func (n *stateNotifier) DeviceOffline(dev device.Device) {
	if n.mqtt != nil {
		payload := availabilityPayload{Status: "offline", Host: dev.Host, ModelName: dev.ModelName}
		if err := n.mqtt.PublishJSON(n.topics.DeviceAvailability(dev.ID), payload, true); err != nil {
			n.log.Warn("publishing availability", "device_id", dev.ID, "error", err)
		}
	}
	if n.influx != nil {
		n.influx.WriteAvailability(dev.ID, false)
	}
}

// DeviceState implements reconciler.Notifier.
func (n *stateNotifier) DeviceState(dev device.Device, values protocol.Values) {
	if n.mqtt != nil {
		if err := n.mqtt.PublishJSON(n.topics.DeviceState(dev.ID), values, true); err != nil {
			n.log.Warn("publishing state", "device_id", dev.ID, "error", err)
		}
	}
	if n.influx != nil {
		for dpID, value := range values {
			n.influx.WriteDatapoint(dev.ID, dpID, value)
		}
	}
}
