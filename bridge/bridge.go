package bridge

import (
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"courtside/logger"
	"courtside/socket"
	"courtside/wire"
)

// Connector is the part of the connection manager the bridge drives.
type Connector interface {
	Connect(token string) error
	Disconnect()
	Subscribe(fn func(wire.Event)) (unsubscribe func())
	OnConnectionStatusChange(fn func(socket.Status)) (unsubscribe func())
}

// Sink consumes what the connection delivers. *store.Store implements it and
// reads its own live snapshot on every call, so the bridge never has to
// re-register when state changes.
type Sink interface {
	HandleEvent(ev wire.Event)
	HandleStatus(st socket.Status)
}

// Bridge ties a connection to a sink for the lifetime of a session.
type Bridge struct {
	conn Connector
	log  *zap.Logger

	mu     sync.Mutex
	token  string
	closed bool
	// exhausted is set from status callbacks, which may run while mu is held.
	exhausted atomic.Bool

	unsubEvents func()
	unsubStatus func()
}

// New subscribes sink to conn. It does not connect; call SetToken for that.
func New(conn Connector, sink Sink) *Bridge {
	b := &Bridge{conn: conn, log: logger.Log.Named("bridge")}
	b.unsubEvents = conn.Subscribe(sink.HandleEvent)
	b.unsubStatus = conn.OnConnectionStatusChange(func(st socket.Status) {
		b.exhausted.Store(st.Exhausted)
		sink.HandleStatus(st)
	})
	return b
}

// ErrNoToken is returned by Reconnect before any token was set.
var ErrNoToken = errors.New("bridge: no token to reconnect with")

// SetToken reacts to the authentication token. An empty token disconnects,
// the first non-empty token connects. A different token while already
// connected is only recorded by the auth layer; the open connection keeps
// the token it was opened with. Setting the same token again after the
// connection gave up on reconnecting starts a fresh attempt.
func (b *Bridge) SetToken(token string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}

	switch {
	case token == "":
		if b.token != "" {
			b.token = ""
			b.conn.Disconnect()
		}
		return nil
	case b.token == "":
		b.token = token
		return b.conn.Connect(token)
	case token != b.token:
		b.log.Debug("token rotated while connected; keeping current connection")
	case b.exhausted.Load():
		return b.conn.Connect(token)
	}
	return nil
}

// Reconnect is the explicit retry after automatic reconnection was
// exhausted. It is a no-op after Close.
func (b *Bridge) Reconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	if b.token == "" {
		return ErrNoToken
	}
	return b.conn.Connect(b.token)
}

// Close tears the connection down and unsubscribes, so the sink sees the
// final disconnected status.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	if b.token != "" {
		b.token = ""
		b.conn.Disconnect()
	}
	b.unsubEvents()
	b.unsubStatus()
}
