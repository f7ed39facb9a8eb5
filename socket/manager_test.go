package socket

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"courtside/wire"
)

func newTestManager(d Dialer, s Scheduler, limit int, metrics *Metrics) *Manager {
	return New(Options{
		BaseURL:    "http://chat.test",
		Dialer:     d,
		Scheduler:  s,
		QueueLimit: limit,
		Logger:     zap.NewNop(),
		Metrics:    metrics,
	})
}

type statusLog struct {
	mu  sync.Mutex
	all []Status
}

func (l *statusLog) record(s Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.all = append(l.all, s)
}

func (l *statusLog) last() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.all[len(l.all)-1]
}

func (l *statusLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.all)
}

func (l *statusLog) connectedSeq() []bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]bool, len(l.all))
	for i, s := range l.all {
		out[i] = s.Connected
	}
	return out
}

func contents(t *testing.T, frames [][]byte) []string {
	t.Helper()
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		cmd, err := wire.DecodeCommand(f)
		require.NoError(t, err)
		send, ok := cmd.(wire.SendMessage)
		require.True(t, ok, "unexpected command %T", cmd)
		out = append(out, send.Content)
	}
	return out
}

func TestReconnectBackoffSchedule(t *testing.T) {
	d := &fakeDialer{fail: true}
	s := &fakeScheduler{}
	m := newTestManager(d, s, 0, nil)

	statuses := &statusLog{}
	m.OnConnectionStatusChange(statuses.record)

	require.Error(t, m.Connect("tok"))

	for i := 0; i < 5; i++ {
		require.Equal(t, i+1, s.len(), "attempt %d not scheduled", i+1)
		s.fire(i)
	}

	assert.Equal(t, []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		16000 * time.Millisecond,
	}, s.delays())
	assert.Equal(t, 5, s.len(), "no sixth attempt")
	assert.Equal(t, 6, d.calls())

	st := m.Status()
	assert.False(t, st.Connected)
	assert.True(t, st.Exhausted)
	assert.True(t, statuses.last().Exhausted)
}

func TestExplicitConnectRecoversAfterExhaustion(t *testing.T) {
	d := &fakeDialer{fail: true}
	s := &fakeScheduler{}
	m := newTestManager(d, s, 0, nil)

	require.Error(t, m.Connect("tok"))
	for i := 0; i < 5; i++ {
		s.fire(i)
	}
	require.True(t, m.Status().Exhausted)

	c := newFakeConn()
	d.setConns(false, c)
	require.NoError(t, m.Connect("tok"))

	st := m.Status()
	assert.True(t, st.Connected)
	assert.False(t, st.Exhausted)
	assert.Equal(t, 0, st.Attempts)
	assert.Equal(t, time.Second, st.Delay)
	m.Disconnect()
}

func TestQueuedSendsFlushInOrder(t *testing.T) {
	c := newFakeConn()
	d := &fakeDialer{conns: []*fakeConn{c}}
	m := newTestManager(d, &fakeScheduler{}, 0, nil)

	require.NoError(t, m.Send(wire.SendMessage{ConversationID: 1, Content: "A"}))
	require.NoError(t, m.Send(wire.SendMessage{ConversationID: 1, Content: "B"}))
	assert.Equal(t, 2, m.QueueLen())
	assert.Empty(t, c.frames())

	require.NoError(t, m.Connect("tok"))
	require.NoError(t, m.Send(wire.SendMessage{ConversationID: 1, Content: "C"}))

	assert.Equal(t, []string{"A", "B", "C"}, contents(t, c.frames()))
	assert.Equal(t, 0, m.QueueLen())
	m.Disconnect()
}

func TestQueueSurvivesReconnect(t *testing.T) {
	c1, c2 := newFakeConn(), newFakeConn()
	d := &fakeDialer{conns: []*fakeConn{c1, c2}}
	s := &fakeScheduler{}
	m := newTestManager(d, s, 0, nil)

	require.NoError(t, m.Connect("tok"))
	c1.Close()
	require.Eventually(t, func() bool { return s.len() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, m.Send(wire.SendMessage{ConversationID: 2, Content: "while down"}))
	s.fire(0)
	require.NoError(t, m.Send(wire.SendMessage{ConversationID: 2, Content: "after"}))

	assert.Equal(t, []string{"while down", "after"}, contents(t, c2.frames()))
	m.Disconnect()
}

func TestQueueLimitDropsOldest(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	c := newFakeConn()
	d := &fakeDialer{conns: []*fakeConn{c}}
	m := newTestManager(d, &fakeScheduler{}, 2, metrics)

	for _, content := range []string{"A", "B", "C"} {
		require.NoError(t, m.Send(wire.SendMessage{ConversationID: 1, Content: content}))
	}
	assert.Equal(t, 2, m.QueueLen())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Dropped.WithLabelValues("queue_overflow")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.QueueDepth))

	require.NoError(t, m.Connect("tok"))
	assert.Equal(t, []string{"B", "C"}, contents(t, c.frames()))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.QueueDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Connected))
	m.Disconnect()
}

func TestConnectIsIdempotentPerToken(t *testing.T) {
	c1, c2 := newFakeConn(), newFakeConn()
	d := &fakeDialer{conns: []*fakeConn{c1, c2}}
	m := newTestManager(d, &fakeScheduler{}, 0, nil)

	require.NoError(t, m.Connect("tok"))
	require.NoError(t, m.Connect("tok"))
	assert.Equal(t, 1, d.calls())

	require.NoError(t, m.Connect("rotated"))
	assert.Equal(t, 2, d.calls())
	assert.True(t, c1.isClosed(), "stale connection torn down")
	assert.False(t, c2.isClosed())
	assert.Contains(t, d.urls[1], "ws://chat.test/ws/chat?token=rotated")
	m.Disconnect()
}

func TestDisconnectSuppressesReconnect(t *testing.T) {
	c := newFakeConn()
	d := &fakeDialer{conns: []*fakeConn{c}}
	s := &fakeScheduler{}
	m := newTestManager(d, s, 0, nil)

	statuses := &statusLog{}
	m.OnConnectionStatusChange(statuses.record)
	require.NoError(t, m.Connect("tok"))

	m.Disconnect()

	assert.True(t, c.isClosed())
	assert.False(t, m.Status().Connected)
	assert.Never(t, func() bool { return s.len() > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, []bool{false, true, false}, statuses.connectedSeq())
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	d := &fakeDialer{fail: true}
	s := &fakeScheduler{}
	m := newTestManager(d, s, 0, nil)

	require.Error(t, m.Connect("tok"))
	require.Equal(t, 1, s.len())

	m.Disconnect()
	assert.True(t, s.timer(0).stopped)

	// a timer that slipped past Stop must not redial
	s.fire(0)
	assert.Equal(t, 1, d.calls())
}

func TestUnexpectedCloseReconnects(t *testing.T) {
	c1, c2 := newFakeConn(), newFakeConn()
	d := &fakeDialer{conns: []*fakeConn{c1, c2}}
	s := &fakeScheduler{}
	m := newTestManager(d, s, 0, nil)

	statuses := &statusLog{}
	m.OnConnectionStatusChange(statuses.record)
	require.NoError(t, m.Connect("tok"))

	c1.Close()
	require.Eventually(t, func() bool { return statuses.count() == 3 }, time.Second, time.Millisecond)
	require.Equal(t, 1, s.len())
	assert.Equal(t, time.Second, s.delays()[0])

	st := m.Status()
	assert.False(t, st.Connected)
	assert.Equal(t, 1, st.Attempts)

	s.fire(0)
	st = m.Status()
	assert.True(t, st.Connected)
	assert.Equal(t, 0, st.Attempts)
	assert.Equal(t, []bool{false, true, false, true}, statuses.connectedSeq())
	m.Disconnect()
}

func TestSubscribersReceiveEventsInOrder(t *testing.T) {
	c := newFakeConn()
	d := &fakeDialer{conns: []*fakeConn{c}}
	m := newTestManager(d, &fakeScheduler{}, 0, nil)

	first := make(chan wire.Event, 8)
	second := make(chan wire.Event, 8)
	m.Subscribe(func(ev wire.Event) { first <- ev })
	unsubscribe := m.Subscribe(func(ev wire.Event) { second <- ev })

	require.NoError(t, m.Connect("tok"))

	c.inbound <- []byte(`{"type":"typing.start","user_id":4,"conversation_id":1}`)
	c.inbound <- []byte(`{"type":"typing.stop"`)
	c.inbound <- []byte(`{"type":"error","message":"slow down"}`)

	assert.Equal(t, wire.TypingStarted{UserID: 4, ConversationID: 1}, receive(t, first))
	assert.Equal(t, wire.ServerError{Message: "slow down"}, receive(t, first))
	assert.Equal(t, wire.TypingStarted{UserID: 4, ConversationID: 1}, receive(t, second))
	assert.Equal(t, wire.ServerError{Message: "slow down"}, receive(t, second))

	unsubscribe()
	c.inbound <- []byte(`{"type":"typing.stop","user_id":4,"conversation_id":1}`)
	assert.Equal(t, wire.TypingStopped{UserID: 4, ConversationID: 1}, receive(t, first))
	assert.Never(t, func() bool { return len(second) > 0 }, 30*time.Millisecond, 5*time.Millisecond)
	m.Disconnect()
}

func TestStatusListenerCalledImmediately(t *testing.T) {
	m := newTestManager(&fakeDialer{fail: true}, &fakeScheduler{}, 0, nil)

	statuses := &statusLog{}
	unsubscribe := m.OnConnectionStatusChange(statuses.record)
	require.Equal(t, []bool{false}, statuses.connectedSeq())

	unsubscribe()
	_ = m.Connect("tok")
	assert.Equal(t, []bool{false}, statuses.connectedSeq())
}

func receive(t *testing.T, ch <-chan wire.Event) wire.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestDropRightAfterOpenEndsDisconnected(t *testing.T) {
	for i := 0; i < 50; i++ {
		c := newFakeConn()
		c.Close()
		d := &fakeDialer{conns: []*fakeConn{c}}
		s := &fakeScheduler{}
		m := newTestManager(d, s, 0, nil)

		statuses := &statusLog{}
		m.OnConnectionStatusChange(func(st Status) {
			if st.Connected {
				// a slow listener must not let the close overtake it
				time.Sleep(50 * time.Microsecond)
			}
			statuses.record(st)
		})
		events := make(chan wire.Event, 1)
		m.Subscribe(func(ev wire.Event) { events <- ev })

		require.NoError(t, m.Connect("tok"))
		require.Eventually(t, func() bool { return s.len() == 1 }, time.Second, time.Millisecond)
		require.Eventually(t, func() bool { return statuses.count() == 3 }, time.Second, time.Millisecond)

		assert.Equal(t, []bool{false, true, false}, statuses.connectedSeq())
		assert.Equal(t, 1, statuses.last().Attempts)
		assert.False(t, m.Status().Connected)
		assert.Empty(t, events)
		m.Disconnect()
	}
}
