package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"courtside/models"
	"courtside/wire"
)

// ErrEmptyMessage is returned by SendMessage when there is nothing to send.
var ErrEmptyMessage = errors.New("message has no content")

// FetchConversations replaces the conversation list with the server's.
func (s *Store) FetchConversations(ctx context.Context) error {
	s.Dispatch(SetLoading{Loading: true})
	convs, err := s.api.ListConversations(ctx)
	if err != nil {
		s.fail("list conversations", err, SetLoading{Loading: false})
		return err
	}
	s.Dispatch(ReplaceConversations{Conversations: convs}, SetLoading{Loading: false})
	return nil
}

// SelectConversation focuses a conversation, loading its first page unless
// its history was loaded before. Zero clears the focus.
func (s *Store) SelectConversation(ctx context.Context, conversationID int64) error {
	var loaded bool
	s.update(func(cur *State) []Action {
		// Live events can create messages without a cursor; only a page install
		// counts as loaded.
		_, loaded = cur.PaginationByConversation[conversationID]
		return []Action{SetActiveConversation{ConversationID: conversationID}}
	})
	if conversationID == 0 || loaded {
		return nil
	}
	return s.LoadMessages(ctx, conversationID)
}

// LoadMessages installs the newest page of a conversation. Only the most
// recently started load of a conversation is applied.
func (s *Store) LoadMessages(ctx context.Context, conversationID int64) error {
	var gen uint64
	s.update(func(*State) []Action {
		s.loadGen[conversationID]++
		gen = s.loadGen[conversationID]
		return []Action{SetLoading{Loading: true}}
	})

	page, err := s.api.ListMessages(ctx, conversationID, s.pageSize, 0)
	s.update(func(*State) []Action {
		if s.loadGen[conversationID] != gen {
			s.log.Debug("discarding stale history page", zap.Int64("conversation_id", conversationID))
			return nil
		}
		if err != nil {
			return []Action{SetLoading{Loading: false}, SetError{Message: err.Error()}}
		}
		return []Action{
			InstallMessagePage{ConversationID: conversationID, Messages: page.Messages, HasMore: page.HasMore},
			SetLoading{Loading: false},
		}
	})
	if err != nil {
		s.log.Warn("load messages failed", zap.Int64("conversation_id", conversationID), zap.Error(err))
		return fmt.Errorf("load messages: %w", err)
	}
	return nil
}

// LoadOlderMessages fetches the page before the loaded messages. It reports
// false without fetching when there is nothing more or a fetch is already in
// flight for the conversation.
func (s *Store) LoadOlderMessages(ctx context.Context, conversationID int64) (bool, error) {
	var (
		offset int
		gen    uint64
	)
	started := s.update(func(cur *State) []Action {
		cursor, ok := cur.PaginationByConversation[conversationID]
		if !ok || !cursor.HasMore || cursor.IsLoadingMore {
			return nil
		}
		offset, gen = cursor.Offset, s.loadGen[conversationID]
		return []Action{SetLoadingMore{ConversationID: conversationID, Loading: true}}
	})
	if !started {
		return false, nil
	}

	page, err := s.api.ListMessages(ctx, conversationID, s.pageSize, offset)
	s.update(func(*State) []Action {
		if s.loadGen[conversationID] != gen {
			// The conversation was reloaded from scratch; this offset is meaningless now.
			return []Action{SetLoadingMore{ConversationID: conversationID, Loading: false}}
		}
		if err != nil {
			return []Action{
				SetLoadingMore{ConversationID: conversationID, Loading: false},
				SetError{Message: err.Error()},
			}
		}
		return []Action{PrependOlderMessages{ConversationID: conversationID, Messages: page.Messages, HasMore: page.HasMore}}
	})
	if err != nil {
		s.log.Warn("load older messages failed", zap.Int64("conversation_id", conversationID), zap.Error(err))
		return true, fmt.Errorf("load older messages: %w", err)
	}
	return true, nil
}

// OpenConversation creates or fetches the conversation with another user and
// focuses it.
func (s *Store) OpenConversation(ctx context.Context, otherUserID int64) (models.Conversation, error) {
	conv, err := s.api.CreateConversation(ctx, otherUserID)
	if err != nil {
		s.fail("open conversation", err)
		return models.Conversation{}, err
	}
	s.Dispatch(UpsertConversation{Conversation: conv})
	return conv, s.SelectConversation(ctx, conv.ID)
}

// SendMessage hands the message to the transport. Nothing is added locally:
// the message shows up when the server echoes it as message.sent.
func (s *Store) SendMessage(conversationID int64, content string, imageURL *string) error {
	content = strings.TrimSpace(content)
	if content == "" && imageURL == nil {
		return ErrEmptyMessage
	}
	return s.transport.Send(wire.SendMessage{ConversationID: conversationID, Content: content, ImageURL: imageURL})
}

func (s *Store) EditMessage(messageID int64, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyMessage
	}
	return s.transport.Send(wire.EditMessage{MessageID: messageID, Content: content})
}

func (s *Store) DeleteMessage(messageID int64) error {
	return s.transport.Send(wire.DeleteMessage{MessageID: messageID})
}

// MarkAsRead marks an incoming message read locally and tells the server.
// The local change stays even if sending fails.
func (s *Store) MarkAsRead(conversationID, messageID int64) error {
	isRead, readAt := true, s.now().UTC()
	applied := s.update(func(cur *State) []Action {
		msg, ok := cur.Message(conversationID, messageID)
		if !ok || msg.IsRead || msg.SenderID == s.userID {
			return nil
		}
		return []Action{PatchMessage{
			ConversationID: conversationID,
			MessageID:      messageID,
			Patch:          models.MessagePatch{IsRead: &isRead, ReadAt: &readAt},
		}}
	})
	if !applied {
		return nil
	}
	if err := s.transport.Send(wire.MarkRead{MessageID: messageID}); err != nil {
		s.log.Warn("send read receipt failed", zap.Int64("message_id", messageID), zap.Error(err))
		return err
	}
	return nil
}

// SetTyping tells the other party whether the user is composing.
func (s *Store) SetTyping(conversationID int64, typing bool) error {
	if typing {
		return s.transport.Send(wire.StartTyping{ConversationID: conversationID})
	}
	return s.transport.Send(wire.StopTyping{ConversationID: conversationID})
}

func (s *Store) ClearError() {
	s.Dispatch(SetError{})
}

func (s *Store) fail(op string, err error, extra ...Action) {
	s.log.Warn(op+" failed", zap.Error(err))
	s.Dispatch(append(extra, SetError{Message: err.Error()})...)
}
