package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/boguslaw-wojcik/zwave-bridge/internal/device"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Get("/{id}", s.handleGetDevice)
		})
	})

	return r
}

// handleHealth returns the server health status. The database check is
// included so orchestrators restart the bridge on storage failure.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if s.db != nil {
		if err := s.db.HealthCheck(r.Context()); err != nil {
			status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": s.version,
	})
}

// SystemMetrics is the metrics endpoint response.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	MQTT          MQTTMetrics    `json:"mqtt"`
	Bridge        BridgeMetrics  `json:"bridge"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// MQTTMetrics contains broker connection state.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// BridgeMetrics contains bridge and radio gateway statistics.
type BridgeMetrics struct {
	Connected       bool   `json:"connected"`
	DevicesManaged  int    `json:"devices_managed"`
	PendingSessions int    `json:"pending_supervised"`
	FramesSent      uint64 `json:"frames_sent"`
	FramesReceived  uint64 `json:"frames_received"`
	Reconnects      uint64 `json:"reconnects"`
}

// handleMetrics returns system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	bm := s.bridge.GetMetrics()

	mqttConnected := false
	if s.mqtt != nil {
		mqttConnected = s.mqtt.IsConnected()
	}

	writeJSON(w, http.StatusOK, SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		MQTT:   MQTTMetrics{Connected: mqttConnected},
		Bridge: BridgeMetrics{
			Connected:       bm.Connected,
			DevicesManaged:  bm.DevicesManaged,
			PendingSessions: bm.PendingTotal,
			FramesSent:      bm.Radio.FramesTx,
			FramesReceived:  bm.Radio.FramesRx,
			Reconnects:      bm.Radio.ReconnectsTotal,
		},
	})
}

// DeviceResponse is one device record on the inventory endpoints.
type DeviceResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	NodeID          byte   `json:"node_id"`
	Profile         string `json:"profile"`
	Endpoint        byte   `json:"endpoint"`
	Supervised      bool   `json:"supervised"`
	ManufacturerID  uint16 `json:"manufacturer_id,omitempty"`
	ProductTypeID   uint16 `json:"product_type_id,omitempty"`
	ProductID       uint16 `json:"product_id,omitempty"`
	FirmwareVersion string `json:"firmware_version,omitempty"`
}

func toDeviceResponse(d *device.Device) DeviceResponse {
	return DeviceResponse{
		ID:              d.ID,
		Name:            d.Name,
		NodeID:          d.NodeID,
		Profile:         d.Profile,
		Endpoint:        d.Endpoint,
		Supervised:      d.Supervised,
		ManufacturerID:  d.ManufacturerID,
		ProductTypeID:   d.ProductTypeID,
		ProductID:       d.ProductID,
		FirmwareVersion: d.FirmwareVersion,
	}
}

// handleListDevices returns the managed device inventory.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	records := s.bridge.Devices()
	out := make([]DeviceResponse, 0, len(records))
	for _, d := range records {
		out = append(out, toDeviceResponse(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": out,
		"total":   len(out),
	})
}

// handleGetDevice returns a single device record.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	for _, d := range s.bridge.Devices() {
		if d.ID == id {
			writeJSON(w, http.StatusOK, toDeviceResponse(d))
			return
		}
	}
	writeError(w, http.StatusNotFound, ErrCodeNotFound, "device not found: "+id)
}

// loggingMiddleware logs each request at debug level.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

// recoveryMiddleware converts handler panics into 500 responses.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("handler panic",
					"path", r.URL.Path,
					"panic", rec,
				)
				writeError(w, http.StatusInternalServerError, ErrCodeInternal, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// HealthCheck verifies the server responds on its own health endpoint.
func (s *Server) HealthCheck(ctx context.Context) error {
	if s.server == nil {
		return http.ErrServerClosed
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+s.server.Addr+"/api/v1/health", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}
