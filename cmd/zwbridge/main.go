// Z-Wave Bridge - MQTT bridge for supervised Z-Wave devices.
//
// The bridge pairs a Z-Wave serial gateway with an MQTT broker: it
// executes capability commands arriving over MQTT, supervises
// command delivery with per-device session tracking, and publishes
// device state, acknowledgements, telemetry and health back out.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/boguslaw-wojcik/zwave-bridge/migrations"

	"github.com/boguslaw-wojcik/zwave-bridge/internal/api"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/bridge"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/device"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/drivers"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/infrastructure/config"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/infrastructure/database"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/infrastructure/influxdb"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/infrastructure/logging"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/infrastructure/mqtt"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/radio"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Z-Wave bridge",
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

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete")

	store := device.NewStore(db, log)
	if err := store.Seed(ctx, cfg.Devices); err != nil {
		return fmt.Errorf("seeding devices: %w", err)
	}
	log.Info("device store seeded", "devices", len(cfg.Devices))

	// The broker publishes the health-topic offline message if the
	// bridge dies without disconnecting.
	will, err := json.Marshal(bridge.NewLWTMessage(cfg.Bridge.ID))
	if err != nil {
		return fmt.Errorf("building last will: %w", err)
	}
	mqttClient, err := mqtt.Connect(cfg.MQTT, mqtt.WithWill(mqtt.Topics{}.Health(cfg.Bridge.ID), will))
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		mqttClient.Disconnect(250)
	}()
	mqttClient.SetLogger(log)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	var telemetry drivers.TelemetryWriter
	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			influxClient.Close()
		}()
		go func() {
			for writeErr := range influxClient.Errors() {
				log.Error("InfluxDB write error", "error", writeErr)
			}
		}()
		telemetry = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	gateway, err := radio.Connect(ctx, radio.Config{
		Connection:        cfg.Radio.Connection,
		ConnectTimeout:    cfg.Radio.GetConnectTimeout(),
		ReadTimeout:       cfg.Radio.GetReadTimeout(),
		ReconnectInterval: cfg.Radio.GetReconnectInterval(),
	})
	if err != nil {
		return fmt.Errorf("connecting to radio gateway: %w", err)
	}
	defer func() {
		log.Info("closing radio gateway connection")
		if closeErr := gateway.Close(); closeErr != nil {
			log.Error("error closing radio gateway", "error", closeErr)
		}
	}()
	gateway.SetLogger(log)
	log.Info("radio gateway connected", "connection", cfg.Radio.Connection)

	br, err := bridge.New(ctx, bridge.Options{
		Config:    cfg,
		MQTT:      mqttClient,
		Radio:     gateway,
		Store:     store,
		Logger:    log,
		Telemetry: telemetry,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("building bridge: %w", err)
	}
	if err := br.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		br.Stop()
	}()

	apiServer, err := api.New(api.Deps{
		Config:  cfg.API,
		Logger:  log,
		Bridge:  br,
		MQTT:    mqttClient,
		DB:      db,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("building API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: database: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses the ZWBRIDGE_CONFIG environment variable if set.
func getConfigPath() string {
	if path := os.Getenv("ZWBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
