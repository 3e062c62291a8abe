package supervision

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/boguslaw-wojcik/zwave-bridge/internal/zwave"
)

type fakeSender struct {
	mu       sync.Mutex
	payloads [][]byte
	err      error
}

func (s *fakeSender) Send(_ context.Context, _ string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.payloads = append(s.payloads, payload)
	return nil
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payloads)
}

type fakeStore struct {
	mu   sync.Mutex
	last map[string]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{last: make(map[string]byte)}
}

func (s *fakeStore) LastSessionID(_ context.Context, deviceID string) (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.last[deviceID]; ok {
		return id, nil
	}
	return 63, nil
}

func (s *fakeStore) SaveSessionID(_ context.Context, deviceID string, id byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[deviceID] = id
	return nil
}

type fakeTimer struct {
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
	mu      sync.Mutex
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (t *fakeTimer) fire() {
	t.mu.Lock()
	if t.stopped || t.fired {
		t.mu.Unlock()
		return
	}
	t.fired = true
	f := t.f
	t.mu.Unlock()
	f()
}

type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{delay: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) timer(i int) *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= len(s.timers) {
		return nil
	}
	return s.timers[i]
}

func testConfig() Config {
	return Config{
		Retries:    2,
		BaseDelay:  1500 * time.Millisecond,
		RetryDelay: 1000 * time.Millisecond,
		Margin:     500 * time.Millisecond,
	}
}

// sessionIDOf extracts the session ID from a plain supervised payload.
func sessionIDOf(t *testing.T, payload []byte) byte {
	t.Helper()
	if len(payload) < 4 || payload[0] != zwave.ClassSupervision || payload[1] != zwave.SupervisionCmdGet {
		t.Fatalf("payload is not a supervision get: % X", payload)
	}
	return payload[2] & 0x3F
}

func TestSessionIDRotation(t *testing.T) {
	sender := &fakeSender{}
	sched := &fakeScheduler{}
	m := NewManager(testConfig(), sender, newFakeStore(), sched, nil)
	ctx := context.Background()

	for i := 0; i < 130; i++ {
		if err := m.Send(ctx, "gate", &zwave.SwitchMultilevelGet{}, 0, false, nil); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
		got := sessionIDOf(t, sender.payloads[i])
		want := byte(i % 64)
		if got != want {
			t.Fatalf("allocation %d: session id = %d, want %d", i, got, want)
		}
		// Settle each session so the pending table never grows.
		if !m.HandleReport("gate", &zwave.SupervisionReport{SessionID: got, Status: zwave.SupervisionStatusSuccess}) {
			t.Fatalf("allocation %d: report not matched", i)
		}
	}
}

func TestSessionCounterPersistence(t *testing.T) {
	store := newFakeStore()
	store.last["gate"] = 10
	sender := &fakeSender{}
	m := NewManager(testConfig(), sender, store, &fakeScheduler{}, nil)

	if err := m.Send(context.Background(), "gate", &zwave.SwitchMultilevelGet{}, 0, false, nil); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := sessionIDOf(t, sender.payloads[0]); got != 11 {
		t.Errorf("session id = %d, want 11", got)
	}
	if store.last["gate"] != 11 {
		t.Errorf("persisted counter = %d, want 11", store.last["gate"])
	}
}

func TestRetryBound(t *testing.T) {
	sender := &fakeSender{}
	sched := &fakeScheduler{}
	cfg := testConfig()
	m := NewManager(cfg, sender, newFakeStore(), sched, nil)

	var result Result
	var calls int
	cb := func(r Result) {
		result = r
		calls++
	}

	if err := m.Send(context.Background(), "gate", &zwave.SwitchMultilevelSet{Value: 99}, 0, false, cb); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	// First-attempt grace period: one pending packet, so the 500ms
	// scaling loses to the base delay.
	if got, want := sched.timer(0).delay, cfg.BaseDelay+cfg.Margin; got != want {
		t.Errorf("first delay = %v, want %v", got, want)
	}

	sched.timer(0).fire()
	if sender.count() != 2 {
		t.Fatalf("payloads after first retry = %d, want 2", sender.count())
	}
	if got := sched.timer(1).delay; got != cfg.RetryDelay {
		t.Errorf("retry delay = %v, want %v", got, cfg.RetryDelay)
	}

	sched.timer(1).fire()
	if sender.count() != 3 {
		t.Fatalf("payloads after second retry = %d, want 3", sender.count())
	}

	// Resends are byte-identical.
	for i := 1; i < 3; i++ {
		if string(sender.payloads[i]) != string(sender.payloads[0]) {
			t.Errorf("resend %d differs from original", i)
		}
	}

	// Budget exhausted: packet dropped, loss surfaced once.
	sched.timer(2).fire()
	if sender.count() != 3 {
		t.Errorf("payloads after exhaustion = %d, want 3", sender.count())
	}
	if calls != 1 {
		t.Fatalf("callback calls = %d, want 1", calls)
	}
	if !errors.Is(result.Err, ErrRetriesExhausted) {
		t.Errorf("result err = %v, want ErrRetriesExhausted", result.Err)
	}
	if result.Attempts != cfg.Retries {
		t.Errorf("attempts = %d, want %d", result.Attempts, cfg.Retries)
	}
	if m.PendingCount("gate") != 0 {
		t.Errorf("pending count = %d, want 0", m.PendingCount("gate"))
	}
}

func TestFirstDelayScalesWithPending(t *testing.T) {
	sender := &fakeSender{}
	sched := &fakeScheduler{}
	cfg := testConfig()
	m := NewManager(cfg, sender, newFakeStore(), sched, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := m.Send(ctx, "gate", &zwave.SwitchMultilevelGet{}, 0, false, nil); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}
	// Fifth packet: 5 pending, 2500ms beats the 1500ms base.
	if got, want := sched.timer(4).delay, 2500*time.Millisecond+cfg.Margin; got != want {
		t.Errorf("fifth delay = %v, want %v", got, want)
	}
}

func TestReportSettlesExactlyOnce(t *testing.T) {
	statuses := []byte{
		zwave.SupervisionStatusNoSupport,
		zwave.SupervisionStatusWorking,
		zwave.SupervisionStatusFail,
		zwave.SupervisionStatusSuccess,
	}

	for _, status := range statuses {
		sender := &fakeSender{}
		sched := &fakeScheduler{}
		m := NewManager(testConfig(), sender, newFakeStore(), sched, nil)

		var calls int
		var got Result
		cb := func(r Result) {
			got = r
			calls++
		}

		if err := m.Send(context.Background(), "gate", &zwave.SwitchMultilevelSet{Value: 0}, 0, false, cb); err != nil {
			t.Fatalf("status %#02x: Send() error = %v", status, err)
		}
		sid := sessionIDOf(t, sender.payloads[0])

		rep := &zwave.SupervisionReport{SessionID: sid, Status: status, Duration: 5}
		if !m.HandleReport("gate", rep) {
			t.Fatalf("status %#02x: report not matched", status)
		}
		if m.PendingCount("gate") != 0 {
			t.Errorf("status %#02x: pending count = %d after report", status, m.PendingCount("gate"))
		}
		if calls != 1 {
			t.Fatalf("status %#02x: callback calls = %d, want 1", status, calls)
		}
		if got.Status != status || got.Err != nil {
			t.Errorf("status %#02x: result = %+v", status, got)
		}

		// Duplicate report is a no-op.
		if m.HandleReport("gate", rep) {
			t.Errorf("status %#02x: duplicate report matched", status)
		}
		if calls != 1 {
			t.Errorf("status %#02x: duplicate invoked callback", status)
		}

		// The quieted retry timer resends nothing.
		sched.timer(0).fire()
		if sender.count() != 1 {
			t.Errorf("status %#02x: stale timer resent, payloads = %d", status, sender.count())
		}
	}
}

func TestReportForUnknownDevice(t *testing.T) {
	m := NewManager(testConfig(), &fakeSender{}, newFakeStore(), &fakeScheduler{}, nil)
	if m.HandleReport("ghost", &zwave.SupervisionReport{SessionID: 1, Status: zwave.SupervisionStatusSuccess}) {
		t.Error("report for unknown device matched")
	}
}

func TestSendUnsupervised(t *testing.T) {
	sender := &fakeSender{}
	m := NewManager(testConfig(), sender, newFakeStore(), &fakeScheduler{}, nil)

	if err := m.SendUnsupervised(context.Background(), "gate", &zwave.SwitchMultilevelGet{}, 0, false); err != nil {
		t.Fatalf("SendUnsupervised() error = %v", err)
	}
	if sender.count() != 1 {
		t.Fatalf("payloads = %d, want 1", sender.count())
	}
	if sender.payloads[0][0] == zwave.ClassSupervision {
		t.Error("unsupervised send carried a supervision envelope")
	}
	if m.PendingCount("gate") != 0 {
		t.Errorf("pending count = %d, want 0", m.PendingCount("gate"))
	}
}

func TestSendFailureUntracksPacket(t *testing.T) {
	sender := &fakeSender{err: errors.New("radio down")}
	m := NewManager(testConfig(), sender, newFakeStore(), &fakeScheduler{}, nil)

	if err := m.Send(context.Background(), "gate", &zwave.SwitchMultilevelGet{}, 0, false, nil); err == nil {
		t.Fatal("Send() succeeded despite sender failure")
	}
	if m.PendingCount("gate") != 0 {
		t.Errorf("pending count = %d, want 0", m.PendingCount("gate"))
	}
}

func TestClosedManagerRejectsSends(t *testing.T) {
	m := NewManager(testConfig(), &fakeSender{}, newFakeStore(), &fakeScheduler{}, nil)
	m.Close()
	err := m.Send(context.Background(), "gate", &zwave.SwitchMultilevelGet{}, 0, false, nil)
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Send() error = %v, want ErrClosed", err)
	}
}
