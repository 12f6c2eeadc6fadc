package connection

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"

	"github.com/rickgao/parking-sync/internal/clock"
	"github.com/rickgao/parking-sync/internal/dispatch"
)

// Manager owns the feed transport, the outbound queue and the
// subscription registry. One Manager is created per application session.
//
// All sends happen while holding mu, so the flush and replay performed on
// open always reach the wire before any message issued afterwards.
type Manager struct {
	cfg    ManagerConfig
	events *dispatch.Dispatcher
	dialer Dialer
	clock  clock.Clock
	logger *zap.Logger

	queue    *Queue
	registry *Registry

	mu               sync.Mutex
	state            State
	conn             Conn
	gen              uint64 // bumped whenever the current transport is abandoned
	intentional      bool   // close was requested; suppress automatic reconnect
	exhausted        bool   // automatic reconnection gave up
	attempts         int
	dialCancel       context.CancelFunc
	reconnectTimer   clock.Timer
	reconnectSeq     uint64 // invalidates timers that fire after being cancelled
	heartbeatTimer   clock.Timer
	lastConnected    time.Time
	lastDisconnected time.Time
	totalErrors      int64
}

// Option configures a Manager.
type Option func(*Manager)

// WithDialer replaces the WebSocket dialer.
func WithDialer(d Dialer) Option {
	return func(m *Manager) {
		m.dialer = d
	}
}

// WithClock replaces the real clock.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a Connection Manager that emits on events.
func NewManager(cfg ManagerConfig, events *dispatch.Dispatcher, opts ...Option) *Manager {
	if cfg.ClientID == "" {
		cfg.ClientID = gonanoid.Must()
	}

	m := &Manager{
		cfg:      cfg,
		events:   events,
		clock:    clock.Real(),
		logger:   zap.NewNop(),
		queue:    NewQueue(cfg.MaxPendingMessages),
		registry: NewRegistry(),
		state:    StateClosed,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.dialer == nil {
		m.dialer = NewWebSocketDialer(cfg)
	}
	m.logger = m.logger.With(zap.String("client_id", cfg.ClientID))

	return m
}

// Init starts the manager. Equivalent to Connect.
func (m *Manager) Init() {
	m.Connect()
}

// Dispose tears the manager down. Equivalent to Disconnect.
func (m *Manager) Dispose() {
	m.Disconnect()
}

// Connect opens the transport unless one is already connecting or open.
// Completion is reported through the connected and error events.
func (m *Manager) Connect() {
	m.mu.Lock()
	m.stopReconnectLocked()
	m.exhausted = false
	ctx, gen, ok := m.beginConnectLocked()
	m.mu.Unlock()

	if ok {
		go m.dial(ctx, gen)
	}
}

// Disconnect closes the transport, forgets every subscription and queued
// message, cancels any pending reconnect and removes all event listeners.
// No automatic reconnection happens until Connect is called again.
func (m *Manager) Disconnect() {
	closed := m.teardown(true)
	if closed {
		m.events.Emit(dispatch.EventDisconnected, nil)
	}
	m.events.Clear()

	m.logger.Info("disconnected by request")
}

// ForceReconnect resets the attempt counter, drops the current transport
// and dials again after ForceReconnectDelay. Subscriptions and listeners
// are kept so the session resumes where it left off.
func (m *Manager) ForceReconnect() {
	m.mu.Lock()
	m.attempts = 0
	m.exhausted = false
	m.mu.Unlock()

	closed := m.teardown(false)

	m.mu.Lock()
	m.stopReconnectLocked()
	seq := m.reconnectSeq
	m.reconnectTimer = m.clock.AfterFunc(positive(m.cfg.ForceReconnectDelay), func() {
		m.fireReconnect(seq)
	})
	m.mu.Unlock()

	if closed {
		m.events.Emit(dispatch.EventDisconnected, nil)
	}

	m.logger.Info("forced reconnect scheduled",
		zap.Duration("delay", m.cfg.ForceReconnectDelay),
	)
}

// Subscribe adds topic to the registry and asks the server for it, now if
// open or on the next open otherwise. Failures are reported through the
// error event; Subscribe never panics.
func (m *Manager) Subscribe(topic string) {
	if err := ValidateTopic(topic); err != nil {
		m.recordError(err)
		return
	}

	err := m.guard("subscribe", func() error {
		m.mu.Lock()
		defer m.mu.Unlock()

		m.registry.Add(topic)
		payload := TopicPayload{Topic: topic}
		if m.state != StateOpen {
			m.enqueueLocked(KindSubscribe, payload)
			return nil
		}
		return m.sendLocked(KindSubscribe, payload)
	})
	if err != nil {
		m.recordError(err)
	}
}

// Unsubscribe removes topic from the registry. The unsubscribe frame is
// only sent while open; offline, any still-queued subscribe for the topic
// is dropped instead.
func (m *Manager) Unsubscribe(topic string) {
	err := m.guard("unsubscribe", func() error {
		m.mu.Lock()
		defer m.mu.Unlock()

		m.registry.Remove(topic)
		if m.state != StateOpen {
			m.queue.RemoveSubscribe(topic)
			return nil
		}
		return m.sendLocked(KindUnsubscribe, TopicPayload{Topic: topic})
	})
	if err != nil {
		m.recordError(err)
	}
}

// Send transmits an arbitrary message, queueing it while not open.
func (m *Manager) Send(kind string, payload any) {
	err := m.guard(kind, func() error {
		m.mu.Lock()
		defer m.mu.Unlock()

		if m.state != StateOpen {
			m.enqueueLocked(kind, payload)
			return nil
		}
		return m.sendLocked(kind, payload)
	})
	if err != nil {
		m.recordError(err)
	}
}

// State returns the current transport state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stats returns a snapshot of connection statistics.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Stats{
		Connected:            m.state == StateOpen,
		State:                m.state,
		ReconnectAttempts:    m.attempts,
		MaxReconnectAttempts: m.cfg.MaxReconnectAttempts,
		Exhausted:            m.exhausted,
		PendingMessages:      m.queue.Len(),
		Subscriptions:        m.registry.Topics(),
		LastConnected:        m.lastConnected,
		LastDisconnected:     m.lastDisconnected,
		TotalErrors:          m.totalErrors,
	}
}

// beginConnectLocked moves CLOSED to CONNECTING and returns the dial
// context and generation. Caller must hold mu.
func (m *Manager) beginConnectLocked() (context.Context, uint64, bool) {
	if m.state == StateConnecting || m.state == StateOpen {
		return nil, 0, false
	}

	m.intentional = false
	m.state = StateConnecting
	m.gen++

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.DialTimeout)
	m.dialCancel = cancel

	return ctx, m.gen, true
}

// dial runs in its own goroutine for every connection attempt.
func (m *Manager) dial(ctx context.Context, gen uint64) {
	m.logger.Debug("dialing feed", zap.String("url", m.cfg.URL))

	conn, err := m.dialer.Dial(ctx, m.cfg.URL)
	if err != nil {
		m.logger.Warn("connection failed", zap.Error(err))
		m.handleError(gen, err)
		m.handleClose(gen)
		return
	}

	if !m.handleOpen(gen, conn) {
		conn.Close()
		return
	}

	m.readLoop(gen, conn)
}

// handleOpen installs conn as the live transport, flushes the queue and
// replays subscriptions. Returns false if the attempt was abandoned.
func (m *Manager) handleOpen(gen uint64, conn Conn) bool {
	m.mu.Lock()
	if gen != m.gen || m.state != StateConnecting {
		m.mu.Unlock()
		return false
	}

	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}
	m.conn = conn
	m.state = StateOpen
	m.attempts = 0
	m.exhausted = false
	m.lastConnected = m.clock.Now()

	flushed, replayed, err := m.flushAndReplayLocked()
	m.startHeartbeatLocked(gen)
	m.mu.Unlock()

	m.logger.Info("connected",
		zap.String("url", m.cfg.URL),
		zap.Int("flushed", flushed),
		zap.Int("replayed", replayed),
	)

	if err != nil {
		m.recordError(err)
	}
	m.events.Emit(dispatch.EventConnected, nil)

	return true
}

// flushAndReplayLocked sends the queued backlog in FIFO order, then a
// subscribe for every registered topic the backlog did not already cover.
// The first send failure aborts the rest; the queue is not refilled.
func (m *Manager) flushAndReplayLocked() (flushed, replayed int, err error) {
	sent := make(map[string]struct{})

	for _, msg := range m.queue.Drain() {
		if err := m.sendLocked(msg.Kind, msg.Payload); err != nil {
			return flushed, replayed, fmt.Errorf("flush queued %s: %w", msg.Kind, err)
		}
		flushed++
		if p, ok := msg.Payload.(TopicPayload); ok && msg.Kind == KindSubscribe {
			sent[p.Topic] = struct{}{}
		}
	}

	for _, topic := range m.registry.Topics() {
		if _, ok := sent[topic]; ok {
			continue
		}
		if err := m.sendLocked(KindSubscribe, TopicPayload{Topic: topic}); err != nil {
			return flushed, replayed, fmt.Errorf("replay subscribe %q: %w", topic, err)
		}
		replayed++
	}

	return flushed, replayed, nil
}

// readLoop reads frames until the transport fails, then runs close handling.
func (m *Manager) readLoop(gen uint64, conn Conn) {
	for {
		data, err := conn.Receive()
		if err != nil {
			if !isNormalClose(err) {
				m.handleError(gen, err)
			}
			m.handleClose(gen)
			return
		}

		if !m.isCurrent(gen) {
			return
		}
		m.handleFrame(data)
	}
}

// handleFrame parses an envelope and emits its payload under its type.
// Malformed frames are dropped.
func (m *Manager) handleFrame(data []byte) {
	env, err := decodeEnvelope(data)
	if err != nil {
		m.logger.Debug("dropping frame", zap.Error(err), zap.Int("bytes", len(data)))
		return
	}

	m.events.Emit(dispatch.Event(env.Type), env.Payload)
}

// handleError reports a transport error for the current generation.
func (m *Manager) handleError(gen uint64, err error) {
	if !m.isCurrent(gen) {
		return
	}
	m.recordError(err)
}

// handleClose finalizes a transport that went away on its own and, unless
// the close was requested, starts the reconnection algorithm.
func (m *Manager) handleClose(gen uint64) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}

	m.conn = nil
	m.state = StateClosed
	m.lastDisconnected = m.clock.Now()
	m.stopHeartbeatLocked()
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}
	intentional := m.intentional
	m.mu.Unlock()

	m.logger.Info("disconnected", zap.Bool("intentional", intentional))
	m.events.Emit(dispatch.EventDisconnected, nil)

	if !intentional {
		m.scheduleReconnect()
	}
}

// scheduleReconnect arms the backoff timer, or emits
// max-reconnect-attempts once the attempt budget is spent.
func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	if m.intentional || m.state != StateClosed || m.reconnectTimer != nil {
		m.mu.Unlock()
		return
	}

	if m.attempts >= m.cfg.MaxReconnectAttempts {
		m.exhausted = true
		attempts := m.attempts
		m.mu.Unlock()

		m.logger.Error("giving up on reconnection", zap.Int("attempts", attempts))
		m.events.Emit(dispatch.EventMaxReconnectAttempts, attempts)
		return
	}

	delay := m.backoffLocked()
	m.attempts++
	info := ReconnectInfo{
		Attempt: m.attempts,
		Max:     m.cfg.MaxReconnectAttempts,
		Delay:   delay,
	}

	seq := m.reconnectSeq
	m.reconnectTimer = m.clock.AfterFunc(delay, func() {
		m.fireReconnect(seq)
	})
	m.mu.Unlock()

	m.logger.Info("reconnect scheduled",
		zap.Int("attempt", info.Attempt),
		zap.Int("max", info.Max),
		zap.Duration("delay", info.Delay),
	)
	m.events.Emit(dispatch.EventReconnecting, info)
}

// fireReconnect is the reconnect timer callback. Timers cancelled after
// they started firing are recognised by seq and ignored.
func (m *Manager) fireReconnect(seq uint64) {
	m.mu.Lock()
	if seq != m.reconnectSeq {
		m.mu.Unlock()
		return
	}
	m.reconnectTimer = nil
	ctx, gen, ok := m.beginConnectLocked()
	m.mu.Unlock()

	if ok {
		go m.dial(ctx, gen)
	}
}

// backoffLocked returns min(base * 2^attempts, max) plus optional jitter.
func (m *Manager) backoffLocked() time.Duration {
	delay := m.cfg.BaseReconnectInterval
	for i := 0; i < m.attempts && delay < m.cfg.MaxReconnectDelay; i++ {
		delay *= 2
	}
	if delay > m.cfg.MaxReconnectDelay {
		delay = m.cfg.MaxReconnectDelay
	}

	if m.cfg.ReconnectJitter > 0 {
		spread := int64(float64(delay) * m.cfg.ReconnectJitter)
		if spread > 0 {
			delay += time.Duration(rand.Int63n(spread))
		}
	}

	return positive(delay)
}

// teardown abandons the current transport. With final set, it also
// forgets subscriptions and queued messages and blocks automatic
// reconnection. Returns true if a live or connecting transport was closed.
func (m *Manager) teardown(final bool) bool {
	m.mu.Lock()
	m.intentional = true
	m.stopReconnectLocked()
	m.stopHeartbeatLocked()
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}

	wasLive := m.state == StateOpen || m.state == StateConnecting
	conn := m.conn
	m.conn = nil
	m.gen++
	gen := m.gen
	if conn != nil {
		m.state = StateClosing
	} else {
		m.state = StateClosed
	}
	if final {
		m.registry.Clear()
		m.queue.Clear()
	}
	m.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil && !errors.Is(err, ErrAlreadyClosed) {
			m.logger.Debug("close transport", zap.Error(err))
		}
	}

	m.mu.Lock()
	if gen == m.gen {
		m.state = StateClosed
	}
	if wasLive {
		m.lastDisconnected = m.clock.Now()
	}
	m.mu.Unlock()

	return wasLive
}

// startHeartbeatLocked schedules the next ping for generation gen.
func (m *Manager) startHeartbeatLocked(gen uint64) {
	m.stopHeartbeatLocked()
	m.heartbeatTimer = m.clock.AfterFunc(positive(m.cfg.HeartbeatInterval), func() {
		m.heartbeat(gen)
	})
}

func (m *Manager) heartbeat(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateOpen {
		m.mu.Unlock()
		return
	}
	err := m.sendLocked(KindPing, nil)
	m.startHeartbeatLocked(gen)
	m.mu.Unlock()

	if err != nil {
		m.recordError(fmt.Errorf("heartbeat: %w", err))
	}
}

func (m *Manager) stopHeartbeatLocked() {
	if m.heartbeatTimer != nil {
		m.heartbeatTimer.Stop()
		m.heartbeatTimer = nil
	}
}

func (m *Manager) stopReconnectLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.reconnectSeq++
}

// sendLocked writes one envelope to the live transport. Caller must hold mu.
func (m *Manager) sendLocked(kind string, payload any) error {
	if m.conn == nil {
		return ErrNotConnected
	}

	data, err := encodeEnvelope(kind, payload)
	if err != nil {
		return err
	}

	if err := m.conn.Send(data); err != nil {
		return fmt.Errorf("send %s: %w", kind, err)
	}
	return nil
}

func (m *Manager) enqueueLocked(kind string, payload any) {
	dropped := m.queue.Enqueue(QueuedMessage{
		Kind:       kind,
		Payload:    payload,
		EnqueuedAt: m.clock.Now(),
	})
	if dropped {
		m.logger.Warn("outbound queue full, dropped oldest message",
			zap.Int("capacity", m.cfg.MaxPendingMessages),
		)
	}
}

// guard runs fn and converts a panic into an error.
func (m *Manager) guard(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: recovered panic: %v", op, r)
		}
	}()
	return fn()
}

// recordError counts err and emits it on the error event.
func (m *Manager) recordError(err error) {
	m.mu.Lock()
	m.totalErrors++
	m.mu.Unlock()

	m.logger.Warn("connection error", zap.Error(err))
	m.events.Emit(dispatch.EventError, err)
}

func (m *Manager) isCurrent(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.gen
}

// positive clamps d to a minimum of one millisecond so a timer never fires
// synchronously inside the caller's critical section.
func positive(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Millisecond
	}
	return d
}
