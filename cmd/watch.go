package cmd

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"courtside/logger"
	"courtside/socket"
	"courtside/wire"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	ConversationID int64
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream conversation events",
		Long: `Connect with the configured token, print the conversation list and then
every event and connection change until interrupted.

Example:
  courtside watch --conversation 3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts)
		},
	}

	cmd.Flags().Int64Var(&opts.ConversationID, "conversation", 0, "conversation to open and mark read as messages arrive")
	return cmd
}

func runWatch(cmd *cobra.Command, opts *WatchOptions) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := openSession(ctx, opts.Config)
	if err != nil {
		return err
	}
	defer sess.Close()

	out := cmd.OutOrStdout()
	var outMu sync.Mutex
	unsubEvents := sess.mgr.Subscribe(func(ev wire.Event) {
		outMu.Lock()
		defer outMu.Unlock()
		printEvent(out, ev)
		if m, ok := ev.(wire.MessageNew); ok && m.Message.ConversationID == opts.ConversationID {
			if err := sess.store.MarkAsRead(m.Message.ConversationID, m.Message.ID); err != nil {
				logger.Log.Warn("mark read", zap.Error(err))
			}
		}
	})
	defer unsubEvents()
	unsubStatus := sess.mgr.OnConnectionStatusChange(func(st socket.Status) {
		outMu.Lock()
		defer outMu.Unlock()
		printStatus(out, st)
	})
	defer unsubStatus()

	if err := sess.connect(); err != nil {
		logger.Log.Warn("initial connect failed, retrying in background", zap.Error(err))
	}

	if err := sess.store.FetchConversations(ctx); err != nil {
		return err
	}
	outMu.Lock()
	printConversations(out, sess.store.Snapshot().Conversations)
	outMu.Unlock()

	if opts.ConversationID != 0 {
		if err := sess.store.SelectConversation(ctx, opts.ConversationID); err != nil {
			return err
		}
		outMu.Lock()
		printMessages(out, sess.store.Snapshot().MessagesByConversation[opts.ConversationID])
		outMu.Unlock()
	}

	<-ctx.Done()
	return nil
}
