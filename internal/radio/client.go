package radio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"
)

// closeOnce wraps a channel with sync.Once to prevent double-close
// panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Default timeouts and intervals for gateway communication.
const (
	defaultConnectTimeout    = 10 * time.Second
	defaultReadTimeout       = 30 * time.Second
	defaultWriteTimeout      = 5 * time.Second
	defaultReconnectInterval = 5 * time.Second
	maxReconnectInterval     = 2 * time.Minute

	// readBufferSize bounds a single gateway message. Z-Wave
	// application frames top out well under this.
	readBufferSize = 256

	// callbackQueueSize buffers inbound frames between the receive
	// loop and the callback workers.
	callbackQueueSize = 100

	// callbackWorkerCount bounds concurrent frame callbacks.
	callbackWorkerCount = 4
)

// Config holds gateway connection configuration.
type Config struct {
	// Connection is the gateway socket URL: "unix:///run/zwgw" or
	// "tcp://localhost:4712".
	Connection string

	// ConnectTimeout bounds the initial connection and handshake.
	ConnectTimeout time.Duration

	// ReadTimeout is the per-read deadline on the socket.
	ReadTimeout time.Duration

	// ReconnectInterval is the initial backoff between reconnection
	// attempts.
	ReconnectInterval time.Duration
}

// Stats holds operational statistics.
type Stats struct {
	FramesTx        uint64
	FramesRx        uint64
	FramesDropped   uint64
	ErrorsTotal     uint64
	ReconnectsTotal uint64
	LastActivity    time.Time
	Connected       bool
	Reconnecting    bool
}

// Logger is an optional structured logger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Connector abstracts the gateway client for the bridge and its tests.
type Connector interface {
	Send(ctx context.Context, nodeID byte, payload []byte) error
	SetOnFrame(callback func(Frame))
	IsConnected() bool
	Stats() Stats
	Close() error
}

var _ Connector = (*Client)(nil)

// Client maintains the socket to the Z-Wave gateway daemon, which owns
// the radio hardware and the security layer. All methods are safe for
// concurrent use. Frame callbacks run on a bounded worker pool; a lost
// connection is re-established automatically with exponential backoff
// until Close is called.
type Client struct {
	cfg  Config
	conn net.Conn

	connMu    sync.RWMutex
	connected bool

	reconnecting   atomic.Bool
	reconnectCount atomic.Int32

	onFrame    func(Frame)
	callbackMu sync.RWMutex

	callbackQueue chan Frame

	done *closeOnce
	wg   sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex

	framesTx        atomic.Uint64
	framesRx        atomic.Uint64
	framesDropped   atomic.Uint64
	errorsTotal     atomic.Uint64
	reconnectsTotal atomic.Uint64
	lastActivity    atomic.Int64
}

// Connect dials the gateway, opens application frame mode and starts
// the receive loop.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}

	network, address, err := parseConnectionURL(cfg.Connection)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	connectCtx := ctx
	if connectCtx == nil {
		connectCtx = context.Background()
	}
	connectCtx, cancel := context.WithTimeout(connectCtx, cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(connectCtx, network, address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial failed: %w", ErrConnectionFailed, err)
	}

	client := &Client{
		cfg:           cfg,
		conn:          conn,
		done:          newCloseOnce(),
		callbackQueue: make(chan Frame, callbackQueueSize),
	}
	client.lastActivity.Store(time.Now().Unix())

	if err := client.openSession(connectCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: handshake failed: %w", ErrConnectionFailed, err)
	}

	client.connMu.Lock()
	client.connected = true
	client.connMu.Unlock()

	for range callbackWorkerCount {
		client.wg.Add(1)
		go client.callbackWorker()
	}

	client.wg.Add(1)
	go client.receiveLoop()

	return client, nil
}

func parseConnectionURL(connURL string) (network, address string, err error) {
	u, err := url.Parse(connURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "unix":
		return "unix", u.Path, nil
	case "tcp":
		host := u.Host
		if host == "" {
			host = "localhost:4712"
		}
		return "tcp", host, nil
	default:
		return "", "", fmt.Errorf("unsupported scheme %q (use unix or tcp)", u.Scheme)
	}
}

// openSession performs the application frame mode handshake. The
// gateway echoes the open-session message type on success.
func (c *Client) openSession(ctx context.Context) error {
	msg := EncodeMessage(MsgOpenSession, openSessionPayload)

	writeDeadline := time.Now().Add(defaultWriteTimeout)
	if deadline, ok := ctx.Deadline(); ok && deadline.Before(writeDeadline) {
		writeDeadline = deadline
	}
	if err := c.conn.SetWriteDeadline(writeDeadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	if _, err := c.conn.Write(msg); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	readDeadline := time.Now().Add(c.cfg.ReadTimeout)
	if deadline, ok := ctx.Deadline(); ok && deadline.Before(readDeadline) {
		readDeadline = deadline
	}
	if err := c.conn.SetReadDeadline(readDeadline); err != nil {
		return fmt.Errorf("set read deadline: %w", err)
	}

	sizeBytes := make([]byte, 2)
	if _, err := io.ReadFull(c.conn, sizeBytes); err != nil {
		return fmt.Errorf("read response size: %w", err)
	}
	msgSize := binary.BigEndian.Uint16(sizeBytes)
	if msgSize < 2 {
		return fmt.Errorf("invalid response size: %d", msgSize)
	}

	resp := make([]byte, 2+int(msgSize))
	copy(resp[:2], sizeBytes)
	if _, err := io.ReadFull(c.conn, resp[2:]); err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	msgType, _, err := ParseMessage(resp)
	if err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	if msgType != MsgOpenSession {
		return fmt.Errorf("unexpected response type: 0x%04X", msgType)
	}
	return nil
}

// receiveLoop reads frames until shutdown, reconnecting on connection
// loss.
func (c *Client) receiveLoop() {
	defer c.wg.Done()

	buf := make([]byte, readBufferSize)

	for {
		select {
		case <-c.done.Done():
			return
		default:
		}

		msgType, payload, err := c.readMessage(buf)
		if err != nil {
			if c.handleReadError(err) {
				if c.isClosed() {
					return
				}
				if !c.reconnect() {
					return
				}
				continue
			}
			continue
		}

		if msgType == MsgNodeFrame {
			c.handleNodeFrame(payload)
		}
	}
}

// readMessage reads one complete gateway message. An oversized message
// is fatal: the stream position can no longer be trusted, so the
// connection is dropped instead of guessing how much to skip.
func (c *Client) readMessage(buf []byte) (uint16, []byte, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
		c.logError("set read deadline failed", err)
		return 0, nil, fmt.Errorf("set deadline: %w", err)
	}

	if _, err := io.ReadFull(c.conn, buf[:2]); err != nil {
		return 0, nil, fmt.Errorf("read size: %w", err)
	}

	msgSize := binary.BigEndian.Uint16(buf[:2])
	if msgSize < 2 {
		c.errorsTotal.Add(1)
		return 0, nil, fmt.Errorf("invalid message size: %d", msgSize)
	}

	totalLen := 2 + int(msgSize)
	if totalLen > len(buf) {
		c.errorsTotal.Add(1)
		c.logError("oversized message, closing connection",
			fmt.Errorf("size %d exceeds buffer %d", totalLen, len(buf)))
		return 0, nil, ErrProtocolDesync
	}

	if _, err := io.ReadFull(c.conn, buf[2:totalLen]); err != nil {
		return 0, nil, fmt.Errorf("read message: %w", err)
	}

	msgType, payload, err := ParseMessage(buf[:totalLen])
	if err != nil {
		c.logError("parse message failed", err)
		c.errorsTotal.Add(1)
		return 0, nil, nil // recoverable
	}
	return msgType, payload, nil
}

// handleReadError reports whether the error is fatal for the current
// connection.
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}
	if c.isClosed() {
		return true
	}

	if errors.Is(err, ErrProtocolDesync) {
		c.logError("protocol desync detected, closing socket", err)
		if c.conn != nil {
			c.conn.Close()
		}
		c.handleDisconnect()
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return false
	}

	c.logError("read failed", err)
	c.errorsTotal.Add(1)
	c.handleDisconnect()
	return true
}

// handleNodeFrame queues an inbound frame for the callback workers,
// dropping on overflow rather than blocking the receive loop.
func (c *Client) handleNodeFrame(payload []byte) {
	frame, err := ParseFrame(payload)
	if err != nil {
		c.logError("parse frame failed", err)
		c.errorsTotal.Add(1)
		return
	}
	// The read buffer is reused; the frame must own its payload.
	frame.Payload = append([]byte(nil), frame.Payload...)

	c.framesRx.Add(1)
	c.lastActivity.Store(time.Now().Unix())

	c.callbackMu.RLock()
	hasCallback := c.onFrame != nil
	c.callbackMu.RUnlock()

	if hasCallback {
		select {
		case c.callbackQueue <- frame:
		default:
			c.logError("callback queue full, dropping frame", nil)
			c.framesDropped.Add(1)
			c.errorsTotal.Add(1)
		}
	}
}

// callbackWorker delivers queued frames, recovering callback panics.
func (c *Client) callbackWorker() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done.Done():
			c.drainCallbackQueue()
			return
		case frame := <-c.callbackQueue:
			c.callbackMu.RLock()
			callback := c.onFrame
			c.callbackMu.RUnlock()

			if callback != nil {
				func() {
					defer func() {
						if r := recover(); r != nil {
							c.logError("frame callback panic", fmt.Errorf("%v", r))
						}
					}()
					callback(frame)
				}()
			}
		}
	}
}

func (c *Client) handleDisconnect() {
	c.connMu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.connMu.Unlock()

	if wasConnected {
		c.logInfo("connection lost, will attempt reconnection")
	}
}

// reconnect re-establishes the gateway connection with exponential
// backoff. Returns false only when shutdown was signalled.
func (c *Client) reconnect() bool {
	if !c.reconnecting.CompareAndSwap(false, true) {
		return c.waitForReconnection()
	}
	defer c.reconnecting.Store(false)

	network, address, err := parseConnectionURL(c.cfg.Connection)
	if err != nil {
		c.logError("reconnect: invalid connection URL", err)
		return false
	}

	backoff := c.cfg.ReconnectInterval
	if backoff == 0 {
		backoff = defaultReconnectInterval
	}

	for {
		if c.isClosed() {
			return false
		}

		attempt := c.reconnectCount.Add(1)
		c.logInfo("attempting reconnection", "attempt", attempt, "backoff", backoff.String())

		c.closeOldConnection()

		conn, err := c.dialWithTimeout(network, address)
		if err != nil {
			backoff = c.handleReconnectFailure("dial failed", err, backoff)
			if backoff == 0 {
				return false
			}
			continue
		}

		if err := c.establishConnection(conn); err != nil {
			backoff = c.handleReconnectFailure("handshake failed", err, backoff)
			if backoff == 0 {
				return false
			}
			continue
		}

		c.finalizeReconnection()
		return true
	}
}

func (c *Client) waitForReconnection() bool {
	for c.reconnecting.Load() && !c.isClosed() {
		time.Sleep(100 * time.Millisecond)
	}
	return !c.isClosed() && c.IsConnected()
}

func (c *Client) closeOldConnection() {
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()
}

func (c *Client) dialWithTimeout(network, address string) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("dial %s://%s: %w", network, address, err)
	}
	return conn, nil
}

func (c *Client) establishConnection(conn net.Conn) error {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	defer cancel()

	if err := c.openSession(ctx); err != nil {
		conn.Close()
		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()
		return err
	}
	return nil
}

// handleReconnectFailure waits out the backoff and returns the next
// one, or 0 when shutdown was signalled.
func (c *Client) handleReconnectFailure(reason string, err error, backoff time.Duration) time.Duration {
	c.logError("reconnect: "+reason, err)
	c.errorsTotal.Add(1)

	select {
	case <-c.done.Done():
		return 0
	case <-time.After(backoff):
	}

	newBackoff := time.Duration(float64(backoff) * 1.5)
	if newBackoff > maxReconnectInterval {
		newBackoff = maxReconnectInterval
	}
	return newBackoff
}

func (c *Client) finalizeReconnection() {
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	c.reconnectCount.Store(0)
	c.reconnectsTotal.Add(1)
	c.lastActivity.Store(time.Now().Unix())

	c.logInfo("reconnection successful", "total_reconnects", c.reconnectsTotal.Load())
}

func (c *Client) drainCallbackQueue() {
	for {
		select {
		case <-c.callbackQueue:
		default:
			return
		}
	}
}

func (c *Client) isClosed() bool {
	select {
	case <-c.done.Done():
		return true
	default:
		return false
	}
}

// Close stops the receive loop, closes the socket and waits for the
// workers. Safe to call multiple times.
func (c *Client) Close() error {
	c.done.Close()

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	if c.conn != nil {
		c.conn.Close()
	}

	c.wg.Wait()

	c.logInfo("connection closed")
	return nil
}

// Send transmits one application payload to a node.
func (c *Client) Send(ctx context.Context, nodeID byte, payload []byte) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrSendFailed, ctx.Err())
	default:
	}

	frame := Frame{NodeID: nodeID, Payload: payload}
	msg := EncodeMessage(MsgNodeFrame, frame.Encode())

	deadline := time.Now().Add(defaultWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: set deadline: %w", ErrSendFailed, err)
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrSendFailed, ctx.Err())
	default:
	}

	if _, err := conn.Write(msg); err != nil {
		c.errorsTotal.Add(1)
		return fmt.Errorf("%w: write: %w", ErrSendFailed, err)
	}

	c.framesTx.Add(1)
	c.lastActivity.Store(time.Now().Unix())

	return nil
}

// SetOnFrame sets the callback for received frames. Callbacks run on
// the worker pool; panics are recovered and logged.
func (c *Client) SetOnFrame(callback func(Frame)) {
	c.callbackMu.Lock()
	c.onFrame = callback
	c.callbackMu.Unlock()
}

// SetLogger sets the optional logger.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// IsConnected reports whether the gateway session is up.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

// Stats returns current operational statistics.
func (c *Client) Stats() Stats {
	return Stats{
		FramesTx:        c.framesTx.Load(),
		FramesRx:        c.framesRx.Load(),
		FramesDropped:   c.framesDropped.Load(),
		ErrorsTotal:     c.errorsTotal.Load(),
		ReconnectsTotal: c.reconnectsTotal.Load(),
		LastActivity:    time.Unix(c.lastActivity.Load(), 0),
		Connected:       c.IsConnected(),
		Reconnecting:    c.reconnecting.Load(),
	}
}

// HealthCheck verifies the session state.
func (c *Client) HealthCheck(_ context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

func (c *Client) logInfo(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (c *Client) logError(msg string, err error) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
