package cmd

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"strconv"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courtside/database"
	"courtside/handlers"
)

func TestRootCommandSubcommands(t *testing.T) {
	cmd := NewRootCommand()

	expected := []string{"relay", "user", "login", "watch", "send"}
	for _, name := range expected {
		found := false
		for _, sub := range cmd.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		assert.True(t, found, "expected subcommand %q not found", name)
	}

	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("log-level"))
}

func TestSubcommandFlags(t *testing.T) {
	cmd := NewRootCommand()

	tests := []struct {
		path []string
		flag string
	}{
		{[]string{"relay"}, "port"},
		{[]string{"relay"}, "db"},
		{[]string{"user", "add"}, "db"},
		{[]string{"watch"}, "conversation"},
		{[]string{"send"}, "image"},
		{[]string{"send"}, "timeout"},
	}
	for _, tt := range tests {
		sub, _, err := cmd.Find(tt.path)
		require.NoError(t, err)
		assert.NotNil(t, sub.Flags().Lookup(tt.flag), "%v --%s", tt.path, tt.flag)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestUserAddLoginAndSend(t *testing.T) {
	t.Setenv("COURTSIDE_TOKEN", "")
	t.Setenv("COURTSIDE_USER_ID", "0")
	dbPath := filepath.Join(t.TempDir(), "cli.db")

	out, err := run(t, "user", "add", "alice", "secret1", "--db", dbPath)
	require.NoError(t, err)
	assert.Equal(t, "created user alice (id 1)\n", out)
	_, err = run(t, "user", "add", "bob", "secret1", "--db", dbPath)
	require.NoError(t, err)

	_, err = run(t, "user", "add", "alice", "other12", "--db", dbPath)
	assert.ErrorIs(t, err, handlers.ErrUsernameTaken)

	require.NoError(t, database.Initialize(dbPath))
	t.Cleanup(func() { database.Close() })
	convID, err := database.GetOrCreateConversation(1, 2)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	hub := handlers.NewHub(handlers.HubOptions{Registerer: reg})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	srv := httptest.NewServer(handlers.NewRouter(hub, reg))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	t.Setenv("COURTSIDE_BASE_URL", srv.URL)

	_, err = run(t, "login", "alice", "wrong")
	assert.Error(t, err)

	out, err = run(t, "login", "alice", "secret1")
	require.NoError(t, err)
	m := regexp.MustCompile(`export COURTSIDE_TOKEN=(\S+)\nexport COURTSIDE_USER_ID=1\n`).FindStringSubmatch(out)
	require.Len(t, m, 2, out)

	_, err = run(t, "send", "1", "hello")
	assert.ErrorIs(t, err, errNoToken)

	t.Setenv("COURTSIDE_TOKEN", m[1])
	out, err = run(t, "send", "--timeout", "5s", strconv.FormatInt(convID, 10), "hello", "bob")
	require.NoError(t, err)
	assert.Equal(t, "sent message 1\n", out)

	msgs, _, err := database.GetMessages(convID, 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello bob", msgs[0].Content)
	assert.Equal(t, int64(1), msgs[0].SenderID)
}
