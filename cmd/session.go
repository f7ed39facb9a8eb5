package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"courtside/api"
	"courtside/bridge"
	"courtside/config"
	"courtside/models"
	"courtside/socket"
	"courtside/store"
	"courtside/wire"
)

var errNoToken = errors.New("no token: run `courtside login` or set COURTSIDE_TOKEN")

// clientSession is the client side composition root: one manager, one store
// and the bridge between them.
type clientSession struct {
	api    *api.Client
	mgr    *socket.Manager
	store  *store.Store
	bridge *bridge.Bridge
	userID int64
	token  string
}

func openSession(ctx context.Context, cfg *config.Config) (*clientSession, error) {
	if cfg.Token == "" {
		return nil, errNoToken
	}
	client := api.New(cfg.BaseURL, cfg.Token)

	userID := cfg.UserID
	if userID == 0 {
		me, err := client.Me(ctx)
		if err != nil {
			return nil, err
		}
		userID = me.ID
	}

	mgr := socket.New(socket.Options{
		BaseURL:     cfg.BaseURL,
		Path:        cfg.Socket.Path,
		MaxAttempts: cfg.Socket.MaxAttempts,
		BaseDelay:   cfg.Socket.BaseDelay,
		QueueLimit:  cfg.QueueLimit(),
	})
	st := store.New(store.Options{
		API:       client,
		Transport: mgr,
		UserID:    userID,
		PageSize:  cfg.PageSize,
	})

	return &clientSession{
		api:    client,
		mgr:    mgr,
		store:  st,
		bridge: bridge.New(mgr, st),
		userID: userID,
		token:  cfg.Token,
	}, nil
}

func (s *clientSession) connect() error {
	return s.bridge.SetToken(s.token)
}

func (s *clientSession) Close() {
	s.bridge.Close()
}

func printConversations(w io.Writer, convs []models.Conversation) {
	if len(convs) == 0 {
		fmt.Fprintln(w, "no conversations")
		return
	}
	for _, c := range convs {
		last := "-"
		if c.LastMessage != nil {
			last = c.LastMessage.Content
		}
		fmt.Fprintf(w, "#%d %s unread=%d last=%q\n", c.ID, c.OtherUser.Username, c.UnreadCount, last)
	}
}

func printMessages(w io.Writer, msgs []models.Message) {
	for _, m := range msgs {
		flags := ""
		if m.IsEdited {
			flags += " (edited)"
		}
		if m.IsRead {
			flags += " (read)"
		}
		fmt.Fprintf(w, "[%s] %d: %s%s\n", m.CreatedAt.Local().Format(time.Kitchen), m.SenderID, m.Content, flags)
	}
}

func printEvent(w io.Writer, ev wire.Event) {
	data, err := wire.EncodeEvent(ev)
	if err != nil {
		fmt.Fprintf(w, "%s (unprintable: %v)\n", ev.EventType(), err)
		return
	}
	fmt.Fprintln(w, string(data))
}

func printStatus(w io.Writer, st socket.Status) {
	switch {
	case st.Connected:
		fmt.Fprintln(w, "* connected")
	case st.Exhausted:
		fmt.Fprintln(w, "* disconnected, reconnect attempts exhausted")
	case st.Attempts > 0:
		fmt.Fprintf(w, "* disconnected, retry %d in %s\n", st.Attempts, st.Delay)
	default:
		fmt.Fprintln(w, "* disconnected")
	}
}
