package socket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"courtside/logger"
	"courtside/wire"
)

const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = time.Second
	DefaultPath        = "/ws/chat"
)

// ErrReconnectExhausted means automatic recovery gave up; only an explicit
// Connect brings the connection back.
var ErrReconnectExhausted = errors.New("connection lost: reconnect attempts exhausted")

// Status is the connection state published to status listeners.
type Status struct {
	Connected bool
	Attempts  int
	Delay     time.Duration
	Exhausted bool
}

type connState int

const (
	stateIdle connState = iota
	stateConnecting
	stateOpen
)

// Options configures a Manager. Zero values take the defaults above.
type Options struct {
	BaseURL     string
	Path        string
	Dialer      Dialer
	Scheduler   Scheduler
	MaxAttempts int
	BaseDelay   time.Duration
	// QueueLimit bounds the outbound queue while disconnected; the oldest
	// frame is dropped on overflow. Zero means unbounded.
	QueueLimit int
	Logger     *zap.Logger
	Metrics    *Metrics
}

type listener[T any] struct {
	id uint64
	fn func(T)
}

// Manager owns the single persistent connection of a session: dialing,
// reconnection with exponential backoff, the outbound queue and fan-out of
// inbound events.
type Manager struct {
	opts Options
	log  *zap.Logger

	mu         sync.Mutex
	token      string
	state      connState
	conn       Conn
	epoch      uint64
	attempts   int
	delay      time.Duration
	timer      Timer
	suppressed bool
	exhausted  bool
	queue      [][]byte

	nextID      uint64
	subscribers []listener[wire.Event]
	statusSubs  []listener[Status]

	// statuses waiting for delivery, in the order the state changed
	pending    []Status
	delivering bool
}

// New creates a Manager. Nothing is dialed until Connect.
func New(opts Options) *Manager {
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if opts.Dialer == nil {
		opts.Dialer = WebsocketDialer{}
	}
	if opts.Scheduler == nil {
		opts.Scheduler = realScheduler{}
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.Logger == nil {
		opts.Logger = logger.Log
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	return &Manager{
		opts:  opts,
		log:   opts.Logger.Named("socket"),
		delay: opts.BaseDelay,
	}
}

// Connect opens the connection for token. It is a no-op while already open
// or dialing with the same token. Any stale connection is torn down first and
// the reconnect budget starts over.
func (m *Manager) Connect(token string) error {
	m.mu.Lock()
	if token == m.token && m.state != stateIdle {
		m.mu.Unlock()
		return nil
	}

	wasOpen := m.state == stateOpen
	m.dropConnLocked()
	m.cancelTimerLocked()
	m.token = token
	m.attempts = 0
	m.delay = m.opts.BaseDelay
	m.suppressed = false
	m.exhausted = false
	epoch := m.beginDialLocked()
	if wasOpen {
		m.publishStatusLocked()
	}
	m.mu.Unlock()

	m.flushStatus()
	return m.dial(epoch)
}

// Disconnect closes the connection and suppresses automatic reconnection
// until the next Connect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	wasOpen := m.state == stateOpen
	m.suppressed = true
	m.cancelTimerLocked()
	m.dropConnLocked()
	m.attempts = 0
	m.delay = m.opts.BaseDelay
	if wasOpen {
		m.publishStatusLocked()
	}
	m.mu.Unlock()

	m.log.Info("disconnected")
	m.flushStatus()
}

// Send transmits cmd when the connection is open and queues it otherwise.
// Queued frames go out in order as soon as the connection opens, ahead of
// anything sent afterwards.
func (m *Manager) Send(cmd wire.Command) error {
	frame, err := wire.Encode(cmd)
	if err != nil {
		return fmt.Errorf("encode %s: %w", cmd.CommandType(), err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == stateOpen && m.conn != nil {
		err := m.conn.WriteMessage(websocket.TextMessage, frame)
		if err == nil {
			return nil
		}
		m.log.Warn("websocket write failed, queueing frame",
			zap.String("type", cmd.CommandType()), zap.Error(err))
	}

	m.enqueueLocked(frame)
	return nil
}

// Subscribe registers an inbound event handler. Handlers run on the reader
// goroutine, one event at a time, in delivery order.
func (m *Manager) Subscribe(fn func(wire.Event)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.subscribers = append(m.subscribers, listener[wire.Event]{id: id, fn: fn})
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.subscribers = removeListener(m.subscribers, id)
	}
}

// OnConnectionStatusChange registers a status listener and calls it right
// away with the current status.
func (m *Manager) OnConnectionStatusChange(fn func(Status)) (unsubscribe func()) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.statusSubs = append(m.statusSubs, listener[Status]{id: id, fn: fn})
	st := m.statusLocked()
	m.mu.Unlock()

	fn(st)

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.statusSubs = removeListener(m.statusSubs, id)
	}
}

// Status reports the current connection state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

// QueueLen reports how many frames wait for the connection.
func (m *Manager) QueueLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

func (m *Manager) dial(epoch uint64) error {
	m.mu.Lock()
	token := m.token
	m.mu.Unlock()

	url, err := wire.SocketURL(m.opts.BaseURL, m.opts.Path, token)
	if err != nil {
		m.mu.Lock()
		if m.epoch == epoch {
			m.state = stateIdle
		}
		m.mu.Unlock()
		return err
	}

	connID := uuid.NewString()
	m.log.Debug("dialing websocket", zap.String("conn_id", connID), zap.String("path", m.opts.Path))

	conn, err := m.opts.Dialer.Dial(context.Background(), url)
	if err != nil {
		m.log.Warn("websocket dial failed", zap.String("conn_id", connID), zap.Error(err))
		m.handleClose(epoch)
		return fmt.Errorf("dial: %w", err)
	}
	return m.open(epoch, connID, conn)
}

func (m *Manager) open(epoch uint64, connID string, conn Conn) error {
	m.mu.Lock()
	if epoch != m.epoch {
		// superseded by Disconnect or a Connect with another token
		m.mu.Unlock()
		conn.Close()
		return nil
	}

	m.conn = conn
	m.attempts = 0
	m.delay = m.opts.BaseDelay
	m.exhausted = false

	for len(m.queue) > 0 {
		if err := conn.WriteMessage(websocket.TextMessage, m.queue[0]); err != nil {
			m.opts.Metrics.QueueDepth.Set(float64(len(m.queue)))
			m.mu.Unlock()
			m.log.Warn("flushing outbound queue failed", zap.String("conn_id", connID), zap.Error(err))
			m.handleClose(epoch)
			return fmt.Errorf("flush queue: %w", err)
		}
		m.queue = m.queue[1:]
	}
	m.queue = nil
	m.opts.Metrics.QueueDepth.Set(0)

	m.state = stateOpen
	m.publishStatusLocked()
	m.mu.Unlock()

	m.opts.Metrics.Connected.Set(1)
	m.log.Info("websocket connected", zap.String("conn_id", connID))

	// The connected status goes out before the reader can observe a close or
	// deliver an event.
	m.flushStatus()
	go m.readLoop(epoch, connID, conn)
	return nil
}

func (m *Manager) readLoop(epoch uint64, connID string, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				m.log.Warn("websocket read failed", zap.String("conn_id", connID), zap.Error(err))
			} else {
				m.log.Debug("websocket closed", zap.String("conn_id", connID), zap.Error(err))
			}
			m.handleClose(epoch)
			return
		}

		ev, err := wire.Decode(data)
		if err != nil {
			m.opts.Metrics.Dropped.WithLabelValues("decode").Inc()
			m.log.Warn("dropping inbound frame", zap.String("conn_id", connID), zap.Error(err))
			continue
		}
		m.dispatch(ev)
	}
}

func (m *Manager) dispatch(ev wire.Event) {
	m.mu.Lock()
	subs := make([]listener[wire.Event], len(m.subscribers))
	copy(subs, m.subscribers)
	m.mu.Unlock()

	for _, s := range subs {
		s.fn(ev)
	}
}

// handleClose reacts to a connection that ended without Disconnect: either a
// failed dial or a drop after open.
func (m *Manager) handleClose(epoch uint64) {
	m.mu.Lock()
	if epoch != m.epoch || m.state == stateIdle {
		m.mu.Unlock()
		return
	}

	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.state = stateIdle
	m.opts.Metrics.Connected.Set(0)

	if m.suppressed {
		m.publishStatusLocked()
		m.mu.Unlock()
		m.flushStatus()
		return
	}

	if m.attempts < m.opts.MaxAttempts {
		m.attempts++
		m.delay = m.opts.BaseDelay * time.Duration(1<<(m.attempts-1))
		scheduled := m.epoch
		m.timer = m.opts.Scheduler.AfterFunc(m.delay, func() { m.reconnect(scheduled) })
		m.opts.Metrics.Reconnects.Inc()
		m.log.Info("scheduling reconnect",
			zap.Int("attempt", m.attempts),
			zap.Duration("delay", m.delay))
	} else {
		m.exhausted = true
		m.log.Error("giving up on reconnect", zap.Int("attempts", m.attempts), zap.Error(ErrReconnectExhausted))
	}

	m.publishStatusLocked()
	m.mu.Unlock()
	m.flushStatus()
}

func (m *Manager) reconnect(scheduled uint64) {
	m.mu.Lock()
	if scheduled != m.epoch || m.suppressed || m.state != stateIdle {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	epoch := m.beginDialLocked()
	m.mu.Unlock()

	_ = m.dial(epoch)
}

func (m *Manager) beginDialLocked() uint64 {
	m.epoch++
	m.state = stateConnecting
	return m.epoch
}

// dropConnLocked closes the current connection, if any, and invalidates its
// reader and any dial in flight.
func (m *Manager) dropConnLocked() {
	m.epoch++
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	if m.state == stateOpen {
		m.opts.Metrics.Connected.Set(0)
	}
	m.state = stateIdle
}

func (m *Manager) cancelTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) enqueueLocked(frame []byte) {
	if limit := m.opts.QueueLimit; limit > 0 && len(m.queue) >= limit {
		m.queue = m.queue[1:]
		m.opts.Metrics.Dropped.WithLabelValues("queue_overflow").Inc()
		m.log.Warn("outbound queue full, dropping oldest frame", zap.Int("limit", limit))
	}
	m.queue = append(m.queue, frame)
	m.opts.Metrics.QueueDepth.Set(float64(len(m.queue)))
}

func (m *Manager) statusLocked() Status {
	return Status{
		Connected: m.state == stateOpen,
		Attempts:  m.attempts,
		Delay:     m.delay,
		Exhausted: m.exhausted,
	}
}

// publishStatusLocked queues the current status for listeners. Callers
// follow up with flushStatus once m.mu is released.
func (m *Manager) publishStatusLocked() {
	m.pending = append(m.pending, m.statusLocked())
}

// flushStatus delivers queued statuses one at a time. If another goroutine
// is already delivering, it picks up whatever was queued here.
func (m *Manager) flushStatus() {
	m.mu.Lock()
	if m.delivering {
		m.mu.Unlock()
		return
	}
	m.delivering = true
	for len(m.pending) > 0 {
		st := m.pending[0]
		m.pending = m.pending[1:]
		subs := make([]listener[Status], len(m.statusSubs))
		copy(subs, m.statusSubs)
		m.mu.Unlock()

		for _, s := range subs {
			s.fn(st)
		}
		m.mu.Lock()
	}
	m.pending = nil
	m.delivering = false
	m.mu.Unlock()
}

func removeListener[T any](ls []listener[T], id uint64) []listener[T] {
	out := ls[:0:0]
	for _, l := range ls {
		if l.id != id {
			out = append(out, l)
		}
	}
	return out
}
