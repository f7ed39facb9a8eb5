package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"courtside/wire"
)

// SendOptions holds flags for the send command.
type SendOptions struct {
	*RootOptions
	ImageURL string
	Timeout  time.Duration
}

// NewSendCommand creates the send command.
func NewSendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SendOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "send <conversation-id> <text>...",
		Short: "Send one message and wait for the server to confirm it",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			conversationID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid conversation id %q", args[0])
			}
			return runSend(cmd, opts, conversationID, strings.Join(args[1:], " "))
		},
	}

	cmd.Flags().StringVar(&opts.ImageURL, "image", "", "image URL to attach")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "how long to wait for the server echo")
	return cmd
}

func runSend(cmd *cobra.Command, opts *SendOptions, conversationID int64, text string) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, opts.Timeout)
	defer cancel()

	sess, err := openSession(ctx, opts.Config)
	if err != nil {
		return err
	}
	defer sess.Close()

	type outcome struct {
		id  int64
		err error
	}
	done := make(chan outcome, 1)
	unsubscribe := sess.mgr.Subscribe(func(ev wire.Event) {
		var o outcome
		switch ev := ev.(type) {
		case wire.MessageSent:
			if ev.Message.ConversationID != conversationID {
				return
			}
			o.id = ev.Message.ID
		case wire.ServerError:
			o.err = errors.New(ev.Message)
		default:
			return
		}
		select {
		case done <- o:
		default:
		}
	})
	defer unsubscribe()

	var imageURL *string
	if opts.ImageURL != "" {
		imageURL = &opts.ImageURL
	}
	if err := sess.store.SendMessage(conversationID, text, imageURL); err != nil {
		return err
	}
	if err := sess.connect(); err != nil {
		return err
	}

	select {
	case o := <-done:
		if o.err != nil {
			return fmt.Errorf("server refused message: %w", o.err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sent message %d\n", o.id)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("no confirmation from server: %w", ctx.Err())
	}
}
