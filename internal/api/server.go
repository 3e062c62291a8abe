// Package api exposes the bridge's HTTP surface: health, metrics and
// the managed device inventory. It is a read-only observer; device
// control happens exclusively over MQTT.
//
// The server follows the same lifecycle pattern as the other
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/boguslaw-wojcik/zwave-bridge/internal/bridge"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/device"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/infrastructure/config"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/infrastructure/database"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/infrastructure/logging"
)

// gracefulShutdownTimeout bounds the wait for in-flight requests
// during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// BridgeObserver is the bridge surface the API reads. *bridge.Bridge
// satisfies it.
type BridgeObserver interface {
	Devices() []*device.Device
	GetMetrics() bridge.Metrics
}

// BrokerObserver reports broker connectivity.
type BrokerObserver interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Bridge  BridgeObserver
	MQTT    BrokerObserver
	DB      *database.DB
	Version string
}

// Server is the bridge's HTTP server.
//
// All methods are safe for concurrent use.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	bridge    BridgeObserver
	mqtt      BrokerObserver
	db        *database.DB
	version   string
	startTime time.Time
	server    *http.Server
}

// New builds an API server. Call Start to begin listening.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("api: logger is required")
	}
	if deps.Bridge == nil {
		return nil, fmt.Errorf("api: bridge is required")
	}
	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger.With("component", "api"),
		bridge:    deps.Bridge,
		mqtt:      deps.MQTT,
		db:        deps.DB,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Start launches the HTTP listener in a background goroutine.
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server started", "address", s.server.Addr)
	return nil
}

// Close gracefully shuts down the server, waiting for in-flight
// requests up to the shutdown timeout.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	return nil
}
