package bridge

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courtside/socket"
	"courtside/wire"
)

type fakeConnector struct {
	calls      []string
	eventFns   []func(wire.Event)
	statusFns  []func(socket.Status)
	connectErr error
}

func (f *fakeConnector) Connect(token string) error {
	f.calls = append(f.calls, "connect:"+token)
	return f.connectErr
}

func (f *fakeConnector) Disconnect() { f.calls = append(f.calls, "disconnect") }

func (f *fakeConnector) Subscribe(fn func(wire.Event)) func() {
	f.calls = append(f.calls, "subscribe")
	f.eventFns = append(f.eventFns, fn)
	return func() { f.calls = append(f.calls, "unsubscribe") }
}

func (f *fakeConnector) OnConnectionStatusChange(fn func(socket.Status)) func() {
	f.calls = append(f.calls, "status")
	f.statusFns = append(f.statusFns, fn)
	fn(socket.Status{})
	return func() { f.calls = append(f.calls, "unstatus") }
}

type recordingSink struct {
	events   []wire.Event
	statuses []socket.Status
}

func (r *recordingSink) HandleEvent(ev wire.Event)     { r.events = append(r.events, ev) }
func (r *recordingSink) HandleStatus(st socket.Status) { r.statuses = append(r.statuses, st) }

func TestSubscribesBeforeConnecting(t *testing.T) {
	conn := &fakeConnector{}
	sink := &recordingSink{}
	b := New(conn, sink)

	require.NoError(t, b.SetToken("tok-1"))
	assert.Equal(t, []string{"subscribe", "status", "connect:tok-1"}, conn.calls)
	assert.Equal(t, []socket.Status{{}}, sink.statuses)

	conn.eventFns[0](wire.TypingStarted{UserID: 2, ConversationID: 1})
	assert.Equal(t, []wire.Event{wire.TypingStarted{UserID: 2, ConversationID: 1}}, sink.events)
}

func TestSetTokenTransitions(t *testing.T) {
	conn := &fakeConnector{}
	b := New(conn, &recordingSink{})

	require.NoError(t, b.SetToken(""))
	require.NoError(t, b.SetToken("tok-1"))
	require.NoError(t, b.SetToken("tok-1"))
	require.NoError(t, b.SetToken("tok-2"))
	require.NoError(t, b.SetToken(""))
	require.NoError(t, b.SetToken(""))
	require.NoError(t, b.SetToken("tok-3"))

	assert.Equal(t, []string{
		"subscribe", "status",
		"connect:tok-1",
		"disconnect",
		"connect:tok-3",
	}, conn.calls)
	assert.Len(t, conn.eventFns, 1)
	assert.Len(t, conn.statusFns, 1)
}

func TestSetTokenReturnsConnectError(t *testing.T) {
	conn := &fakeConnector{connectErr: errors.New("dial: refused")}
	b := New(conn, &recordingSink{})

	assert.EqualError(t, b.SetToken("tok-1"), "dial: refused")
	// The manager retries on its own; a repeat of the same token is not a new connect
	// until it reports that it gave up.
	require.NoError(t, b.SetToken("tok-1"))
	assert.Equal(t, []string{"subscribe", "status", "connect:tok-1"}, conn.calls)
}

func TestClose(t *testing.T) {
	conn := &fakeConnector{}
	b := New(conn, &recordingSink{})
	require.NoError(t, b.SetToken("tok-1"))

	b.Close()
	b.Close()
	require.NoError(t, b.SetToken("tok-2"))

	assert.Equal(t, []string{
		"subscribe", "status", "connect:tok-1",
		"disconnect", "unsubscribe", "unstatus",
	}, conn.calls)
}

func TestRetryAfterExhaustion(t *testing.T) {
	conn := &fakeConnector{connectErr: errors.New("dial: refused")}
	sink := &recordingSink{}
	b := New(conn, sink)

	assert.Error(t, b.SetToken("tok-1"))
	conn.statusFns[0](socket.Status{Attempts: 5, Exhausted: true})
	assert.True(t, sink.statuses[len(sink.statuses)-1].Exhausted)

	conn.connectErr = nil
	require.NoError(t, b.SetToken("tok-1"))
	conn.statusFns[0](socket.Status{Connected: true})
	require.NoError(t, b.SetToken("tok-1"))

	require.NoError(t, b.Reconnect())
	assert.Equal(t, []string{
		"subscribe", "status",
		"connect:tok-1",
		"connect:tok-1",
		"connect:tok-1",
	}, conn.calls)
}

func TestReconnectNeedsToken(t *testing.T) {
	conn := &fakeConnector{}
	b := New(conn, &recordingSink{})

	assert.ErrorIs(t, b.Reconnect(), ErrNoToken)
	b.Close()
	assert.NoError(t, b.Reconnect())
	assert.Equal(t, []string{"subscribe", "status", "unsubscribe", "unstatus"}, conn.calls)
}
