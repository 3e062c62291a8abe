package supervision

import (
	"context"
	"sync"
	"time"

	"github.com/boguslaw-wojcik/zwave-bridge/internal/infrastructure/logging"
	"github.com/boguslaw-wojcik/zwave-bridge/internal/zwave"
)

// sessionIDSpace is the size of the rotating session identifier space.
// Supervision session IDs occupy 6 bits on the wire.
const sessionIDSpace = 64

// Sender transmits finalized wire bytes toward a device. The bridge
// wires this to the radio gateway client.
type Sender interface {
	Send(ctx context.Context, deviceID string, payload []byte) error
}

// CounterStore persists the last-used session ID per device so an
// identifier still in flight before a restart is never reissued.
type CounterStore interface {
	LastSessionID(ctx context.Context, deviceID string) (byte, error)
	SaveSessionID(ctx context.Context, deviceID string, id byte) error
}

// Result is the typed outcome of a supervised send, delivered
// asynchronously through the callback registered with Send. Err is nil
// when a report arrived; Status then holds the terminal status byte.
type Result struct {
	DeviceID  string
	SessionID byte
	Status    byte
	Duration  byte
	Attempts  int
	Err       error
}

// Callback receives the outcome of a supervised send. It is invoked at
// most once per session, from either the report path or the retry
// timer goroutine.
type Callback func(Result)

// Config holds the retry tuning for supervised sends.
type Config struct {
	// Retries is the number of resends after the initial transmission.
	Retries int
	// BaseDelay is the minimum grace period before the first retry.
	BaseDelay time.Duration
	// RetryDelay is the fixed delay between subsequent retries.
	RetryDelay time.Duration
	// Margin is added on top of the computed first-attempt delay.
	Margin time.Duration
}

// perPendingDelay scales the first-attempt grace period with the
// number of packets already outstanding for the device.
const perPendingDelay = 500 * time.Millisecond

type pendingPacket struct {
	deviceID  string
	sessionID byte
	payload   []byte
	attempts  int
	timer     Timer
	callback  Callback
}

type deviceSessions struct {
	counter       byte
	counterLoaded bool
	pending       map[byte]*pendingPacket
}

// Manager tracks in-flight supervised packets across all devices. Each
// device has its own rotating 6-bit session counter and pending table;
// the tables share one lock because report routing and retry timers
// interleave across devices.
//
// The 64-slot rotation is assumed to exceed realistic in-flight
// concurrency for a single device. If more than 64 supervised commands
// are ever outstanding at once, a reissued ID would misattribute the
// older session's report. This is a documented limitation, not guarded
// against.
type Manager struct {
	cfg       Config
	sender    Sender
	store     CounterStore
	scheduler Scheduler
	enc       *zwave.Encapsulator
	logger    *logging.Logger

	mu      sync.Mutex
	devices map[string]*deviceSessions
	closed  bool
}

// NewManager builds a supervision manager. A nil scheduler selects the
// wall-clock timer scheduler and a nil logger the process default.
func NewManager(cfg Config, sender Sender, store CounterStore, scheduler Scheduler, logger *logging.Logger) *Manager {
	if scheduler == nil {
		scheduler = NewTimerScheduler()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{
		cfg:       cfg,
		sender:    sender,
		store:     store,
		scheduler: scheduler,
		enc:       &zwave.Encapsulator{},
		logger:    logger,
		devices:   make(map[string]*deviceSessions),
	}
}

// Send wraps cmd in a supervised envelope under a freshly allocated
// session ID, records the pending packet, arms the retry timer and
// transmits. The outcome arrives later through cb; Send itself fails
// only on encoding or transmission errors, in which case nothing is
// tracked.
func (m *Manager) Send(ctx context.Context, deviceID string, cmd zwave.Command, endpoint byte, secure bool, cb Callback) error {
	inner, err := cmd.MarshalBinary()
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	ds, err := m.deviceLocked(ctx, deviceID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	sessionID := (ds.counter + 1) % sessionIDSpace
	// Persist before transmission so a restart never reissues an ID
	// that may still be in flight.
	if err := m.store.SaveSessionID(ctx, deviceID, sessionID); err != nil {
		m.mu.Unlock()
		return err
	}
	ds.counter = sessionID
	m.mu.Unlock()

	sup := &zwave.SupervisionGet{
		SessionID:     sessionID,
		StatusUpdates: true,
		Encapsulated:  inner,
	}
	wire, err := m.enc.Encapsulate(sup, endpoint, secure)
	if err != nil {
		return err
	}

	m.mu.Lock()
	pkt := &pendingPacket{
		deviceID:  deviceID,
		sessionID: sessionID,
		payload:   wire,
		callback:  cb,
	}
	ds.pending[sessionID] = pkt
	delay := m.firstDelayLocked(ds)
	pkt.timer = m.scheduler.AfterFunc(delay, func() { m.retry(deviceID, sessionID) })
	m.mu.Unlock()

	if err := m.sender.Send(ctx, deviceID, wire); err != nil {
		m.remove(deviceID, sessionID)
		return err
	}

	m.logger.Debug("supervised command sent",
		"device_id", deviceID,
		"session_id", sessionID,
		"first_retry_in", delay,
	)
	return nil
}

// SendUnsupervised encapsulates and transmits without session
// tracking, for devices that never negotiated Supervision support.
func (m *Manager) SendUnsupervised(ctx context.Context, deviceID string, cmd zwave.Command, endpoint byte, secure bool) error {
	wire, err := m.enc.Encapsulate(cmd, endpoint, secure)
	if err != nil {
		return err
	}
	return m.sender.Send(ctx, deviceID, wire)
}

// HandleReport settles the session named by an inbound Supervision
// Report. Every terminal status removes the pending packet exactly
// once; a report for an unknown or already-settled session is a no-op
// and reports false.
func (m *Manager) HandleReport(deviceID string, rep *zwave.SupervisionReport) bool {
	m.mu.Lock()
	ds, ok := m.devices[deviceID]
	if !ok {
		m.mu.Unlock()
		return false
	}
	pkt, ok := ds.pending[rep.SessionID]
	if !ok {
		m.mu.Unlock()
		m.logger.Debug("supervision report for untracked session",
			"device_id", deviceID,
			"session_id", rep.SessionID,
			"status", rep.Status,
		)
		return false
	}
	delete(ds.pending, rep.SessionID)
	m.mu.Unlock()

	if pkt.timer != nil {
		pkt.timer.Stop()
	}

	switch rep.Status {
	case zwave.SupervisionStatusNoSupport, zwave.SupervisionStatusFail:
		m.logger.Warn("supervised command rejected",
			"device_id", deviceID,
			"session_id", rep.SessionID,
			"status", rep.Status,
		)
	default:
		m.logger.Debug("supervised command acknowledged",
			"device_id", deviceID,
			"session_id", rep.SessionID,
			"status", rep.Status,
			"duration", rep.Duration,
		)
	}

	if pkt.callback != nil {
		pkt.callback(Result{
			DeviceID:  deviceID,
			SessionID: rep.SessionID,
			Status:    rep.Status,
			Duration:  rep.Duration,
			Attempts:  pkt.attempts,
		})
	}
	return true
}

// PendingCount reports the number of in-flight supervised packets for
// a device.
func (m *Manager) PendingCount(deviceID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ds, ok := m.devices[deviceID]; ok {
		return len(ds.pending)
	}
	return 0
}

// Close stops all retry timers and rejects further sends. Packets
// still pending are dropped without callbacks.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for _, ds := range m.devices {
		for id, pkt := range ds.pending {
			if pkt.timer != nil {
				pkt.timer.Stop()
			}
			delete(ds.pending, id)
		}
	}
}

// retry fires from the scheduler. It resends the identical wire bytes
// while the retry budget lasts, then drops the packet and reports the
// loss through the callback.
func (m *Manager) retry(deviceID string, sessionID byte) {
	m.mu.Lock()
	ds, ok := m.devices[deviceID]
	if !ok {
		m.mu.Unlock()
		return
	}
	pkt, ok := ds.pending[sessionID]
	if !ok {
		// Settled between timer fire and lock acquisition.
		m.mu.Unlock()
		return
	}

	if pkt.attempts >= m.cfg.Retries {
		delete(ds.pending, sessionID)
		m.mu.Unlock()
		m.logger.Warn("supervised command presumed lost",
			"device_id", deviceID,
			"session_id", sessionID,
			"attempts", pkt.attempts,
		)
		if pkt.callback != nil {
			pkt.callback(Result{
				DeviceID:  deviceID,
				SessionID: sessionID,
				Attempts:  pkt.attempts,
				Err:       ErrRetriesExhausted,
			})
		}
		return
	}

	pkt.attempts++
	attempt := pkt.attempts
	pkt.timer = m.scheduler.AfterFunc(m.cfg.RetryDelay, func() { m.retry(deviceID, sessionID) })
	m.mu.Unlock()

	m.logger.Debug("resending supervised command",
		"device_id", deviceID,
		"session_id", sessionID,
		"attempt", attempt,
	)
	if err := m.sender.Send(context.Background(), deviceID, pkt.payload); err != nil {
		m.logger.Warn("supervised resend failed",
			"device_id", deviceID,
			"session_id", sessionID,
			"error", err,
		)
	}
}

func (m *Manager) remove(deviceID string, sessionID byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ds, ok := m.devices[deviceID]
	if !ok {
		return
	}
	if pkt, ok := ds.pending[sessionID]; ok {
		if pkt.timer != nil {
			pkt.timer.Stop()
		}
		delete(ds.pending, sessionID)
	}
}

// deviceLocked returns the per-device session state, loading the
// persisted counter on first use. Callers hold m.mu.
func (m *Manager) deviceLocked(ctx context.Context, deviceID string) (*deviceSessions, error) {
	ds, ok := m.devices[deviceID]
	if !ok {
		ds = &deviceSessions{pending: make(map[byte]*pendingPacket)}
		m.devices[deviceID] = ds
	}
	if !ds.counterLoaded {
		last, err := m.store.LastSessionID(ctx, deviceID)
		if err != nil {
			return nil, err
		}
		ds.counter = last % sessionIDSpace
		ds.counterLoaded = true
	}
	return ds, nil
}

// firstDelayLocked computes the back-pressure-aware grace period for a
// freshly sent packet. Callers hold m.mu.
func (m *Manager) firstDelayLocked(ds *deviceSessions) time.Duration {
	delay := time.Duration(len(ds.pending)) * perPendingDelay
	if delay < m.cfg.BaseDelay {
		delay = m.cfg.BaseDelay
	}
	return delay + m.cfg.Margin
}
