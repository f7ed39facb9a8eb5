package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSocketURL(t *testing.T) {
	tests := []struct {
		name string
		base string
		want string
	}{
		{"http", "http://localhost:8080", "ws://localhost:8080/ws/chat?token=t+1%2F2"},
		{"https_with_prefix", "https://api.example.com/v1/", "wss://api.example.com/v1/ws/chat?token=t+1%2F2"},
		{"already_ws", "ws://10.0.0.2:9000", "ws://10.0.0.2:9000/ws/chat?token=t+1%2F2"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := SocketURL(tc.base, "/ws/chat", "t 1/2")
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := SocketURL("ftp://example.com", "/ws/chat", "x")
	assert.Error(t, err)
}
