package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/conversations/7/messages", r.URL.Path)
		assert.Equal(t, "30", r.URL.Query().Get("limit"))
		assert.Equal(t, "60", r.URL.Query().Get("offset"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"messages":[{"id":9007199254740993,"conversation_id":7,"sender_id":2,"content":"hi","created_at":"2026-03-01T12:00:00Z","is_read":false,"is_edited":false,"is_deleted":false}],"has_more":true}`)
	}))
	defer srv.Close()

	page, err := New(srv.URL, "tok").ListMessages(context.Background(), 7, 30, 60)
	require.NoError(t, err)
	assert.True(t, page.HasMore)
	require.Len(t, page.Messages, 1)
	m := page.Messages[0]
	assert.Equal(t, int64(9007199254740993), m.ID)
	assert.Equal(t, int64(7), m.ConversationID)
	assert.Equal(t, "hi", m.Content)
	assert.True(t, m.CreatedAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
}

func TestListConversations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"conversations":[{"id":3,"other_user":{"id":5,"username":"kobe","avatar":""},"last_message_at":"2026-03-01T12:00:00Z","unread_count":2}]}`)
	}))
	defer srv.Close()

	convs, err := New(srv.URL, "tok").ListConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, int64(3), convs[0].ID)
	assert.Equal(t, "kobe", convs[0].OtherUser.Username)
	assert.Equal(t, 2, convs[0].UnreadCount)
	require.NotNil(t, convs[0].LastMessageAt)
	assert.Nil(t, convs[0].LastMessage)
}

func TestCreateConversationSendsSnakeBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"other_user_id": float64(5)}, body)
		io.WriteString(w, `{"id":3,"other_user":{"id":5,"username":"kobe","avatar":""},"unread_count":0}`)
	}))
	defer srv.Close()

	conv, err := New(srv.URL, "tok").CreateConversation(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(3), conv.ID)
	assert.Equal(t, int64(5), conv.OtherUser.ID)
}

func TestLoginStoresToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			io.WriteString(w, `{"success":true,"token":"fresh","user":{"id":1,"username":"lebron","avatar":""}}`)
		case "/api/auth/me":
			if r.Header.Get("Authorization") != "Bearer fresh" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			io.WriteString(w, `{"id":1,"username":"lebron","avatar":""}`)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	res, err := c.Login(context.Background(), "lebron", "secret")
	require.NoError(t, err)
	assert.Equal(t, "fresh", res.Token)
	assert.Equal(t, int64(1), res.User.ID)

	me, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "lebron", me.Username)
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
		unauth bool
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"error": "Invalid session"}`, want: "list conversations: status 401: Invalid session", unauth: true},
		{name: "server_error", status: http.StatusInternalServerError, body: `{"error": "Failed to get conversations"}`, want: "list conversations: status 500: Failed to get conversations"},
		{name: "no_body", status: http.StatusBadGateway, want: "list conversations: status 502"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := New(srv.URL, "tok").ListConversations(context.Background())
			require.Error(t, err)
			assert.EqualError(t, err, tt.want)

			var reqErr *RequestError
			require.ErrorAs(t, err, &reqErr)
			assert.Equal(t, tt.status, reqErr.StatusCode)
			assert.Equal(t, tt.unauth, errors.Is(err, ErrUnauthorized))
		})
	}
}
