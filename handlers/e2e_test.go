package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"courtside/api"
	"courtside/bridge"
	"courtside/database"
	"courtside/socket"
	"courtside/store"
	"courtside/wire"
)

func TestClientStackAgainstRelay(t *testing.T) {
	r := newRelay(t, HubOptions{FrameRate: 1000, FrameBurst: 1000})
	aliceTok, aliceID := r.signup(t, "alice")
	bobTok, bobID := r.signup(t, "bob")
	ctx := context.Background()

	client := api.New(r.srv.URL, aliceTok)
	conv, err := client.CreateConversation(ctx, bobID)
	require.NoError(t, err)

	mgr := socket.New(socket.Options{BaseURL: r.srv.URL, Logger: zap.NewNop()})
	st := store.New(store.Options{API: client, Transport: mgr, UserID: aliceID, Logger: zap.NewNop()})
	b := bridge.New(mgr, st)
	t.Cleanup(b.Close)

	hasMessages := func(n int) func() bool {
		return func() bool { return len(st.Snapshot().MessagesByConversation[conv.ID]) == n }
	}

	require.NoError(t, st.FetchConversations(ctx))
	require.NoError(t, st.SelectConversation(ctx, conv.ID))

	// Queued before the connection exists; flushed on open.
	require.NoError(t, st.SendMessage(conv.ID, "queued tip-off", nil))
	assert.Equal(t, 1, mgr.QueueLen())
	require.NoError(t, b.SetToken(aliceTok))
	require.Eventually(t, func() bool { return st.Snapshot().IsConnected }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, hasMessages(1), 2*time.Second, 5*time.Millisecond)

	bob := r.dial(t, bobTok, bobID)
	require.NoError(t, st.SendMessage(conv.ID, "live jumper", nil))
	require.Eventually(t, hasMessages(2), 2*time.Second, 5*time.Millisecond)
	incoming, ok := next(t, bob).(wire.MessageNew)
	require.True(t, ok)
	assert.Equal(t, "live jumper", incoming.Message.Content)

	send(t, bob, wire.SendMessage{ConversationID: conv.ID, Content: "rebound"})
	_, ok = next(t, bob).(wire.MessageSent)
	require.True(t, ok)
	require.Eventually(t, hasMessages(3), 2*time.Second, 5*time.Millisecond)

	msgs := st.Snapshot().MessagesByConversation[conv.ID]
	assert.Equal(t, "queued tip-off", msgs[0].Content)
	assert.Equal(t, "live jumper", msgs[1].Content)
	reply := msgs[2]
	assert.Equal(t, bobID, reply.SenderID)

	c, ok := st.Snapshot().Conversation(conv.ID)
	require.True(t, ok)
	assert.Equal(t, 0, c.UnreadCount)
	assert.Equal(t, "rebound", c.LastMessage.Content)

	send(t, bob, wire.StartTyping{ConversationID: conv.ID})
	require.Eventually(t, func() bool {
		return len(st.Snapshot().TypingByConversation[conv.ID]) == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, st.MarkAsRead(conv.ID, reply.ID))
	read, ok := next(t, bob).(wire.MessageRead)
	require.True(t, ok)
	assert.Equal(t, reply.ID, read.MessageID)

	stored, err := database.GetMessageByID(reply.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsRead)

	b.Close()
	require.Eventually(t, func() bool { return !r.hub.IsUserOnline(aliceID) }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, st.Snapshot().IsConnected)
}
