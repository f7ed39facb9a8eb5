package store

import (
	"slices"
	"time"

	"courtside/models"
)

// Action is a state transition. The set is closed to this package: every
// transition is a type here implementing apply.
type Action interface {
	apply(s *State)
}

// Reduce applies a to prev and returns the next state. prev is not modified.
func Reduce(prev State, a Action) State {
	next := prev
	a.apply(&next)
	return next
}

// ReplaceConversations swaps in a freshly fetched conversation list.
type ReplaceConversations struct {
	Conversations []models.Conversation
}

// SetActiveConversation changes focus only; loaded messages stay.
type SetActiveConversation struct {
	ConversationID int64
}

// InstallMessagePage sets the first history page of a conversation and
// resets its cursor. Loaded messages newer than the page are kept after it.
type InstallMessagePage struct {
	ConversationID int64
	Messages       []models.Message
	HasMore        bool
}

// PrependOlderMessages merges an older page in front of the loaded messages.
// Messages already present are skipped; the offset still advances by the
// full page length because it counts rows the server has handed out.
type PrependOlderMessages struct {
	ConversationID int64
	Messages       []models.Message
	HasMore        bool
}

// AppendMessage adds a message at the tail and bumps the conversation.
type AppendMessage struct {
	ConversationID int64
	Message        models.Message
}

// PatchMessage merges changed fields into one message.
type PatchMessage struct {
	ConversationID int64
	MessageID      int64
	Patch          models.MessagePatch
}

// SoftDeleteMessage tombstones a message in place.
type SoftDeleteMessage struct {
	ConversationID int64
	MessageID      int64
}

type SetTyping struct {
	ConversationID int64
	UserID         int64
	IsTyping       bool
}

type SetLoadingMore struct {
	ConversationID int64
	Loading        bool
}

// UpsertConversation adds or replaces one conversation, e.g. after create-or-get.
type UpsertConversation struct {
	Conversation models.Conversation
}

type IncrementUnread struct {
	ConversationID int64
}

type SetConnected struct {
	Connected bool
}

type SetLoading struct {
	Loading bool
}

// SetError sets the displayable error; an empty message clears it.
type SetError struct {
	Message string
}

func (a ReplaceConversations) apply(s *State) {
	convs := slices.Clone(a.Conversations)
	slices.SortStableFunc(convs, models.LastMessageBefore)
	s.Conversations = convs
}

func (a SetActiveConversation) apply(s *State) {
	s.ActiveConversationID = a.ConversationID
}

func (a InstallMessagePage) apply(s *State) {
	msgs := slices.Clone(a.Messages)
	var newest time.Time
	if n := len(msgs); n > 0 {
		newest = msgs[n-1].CreatedAt
	}
	// Live messages that arrived before the page keep their place after it.
	for _, m := range s.MessagesByConversation[a.ConversationID] {
		if m.CreatedAt.After(newest) && indexOfMessage(msgs, m.ID) < 0 {
			msgs = append(msgs, m)
		}
	}
	s.setMessages(a.ConversationID, msgs)
	s.setCursor(a.ConversationID, models.PaginationCursor{
		HasMore: a.HasMore,
		Offset:  len(a.Messages),
	})
}

func (a PrependOlderMessages) apply(s *State) {
	existing := s.MessagesByConversation[a.ConversationID]
	merged := make([]models.Message, 0, len(a.Messages)+len(existing))
	for _, m := range a.Messages {
		if indexOfMessage(existing, m.ID) < 0 && indexOfMessage(merged, m.ID) < 0 {
			merged = append(merged, m)
		}
	}
	merged = append(merged, existing...)
	s.setMessages(a.ConversationID, merged)

	cursor := s.PaginationByConversation[a.ConversationID]
	cursor.Offset += len(a.Messages)
	cursor.HasMore = a.HasMore
	cursor.IsLoadingMore = false
	s.setCursor(a.ConversationID, cursor)
}

func (a AppendMessage) apply(s *State) {
	msgs := slices.Clone(s.MessagesByConversation[a.ConversationID])
	atTail := true
	if i := indexOfMessage(msgs, a.Message.ID); i >= 0 {
		msgs[i] = a.Message
		atTail = i == len(msgs)-1
	} else {
		msgs = append(msgs, a.Message)
	}
	s.setMessages(a.ConversationID, msgs)

	if !atTail {
		return
	}
	last := a.Message
	s.updateConversation(a.ConversationID, func(c *models.Conversation) {
		c.LastMessage = &last
		at := last.CreatedAt
		c.LastMessageAt = &at
	})
}

func (a PatchMessage) apply(s *State) {
	msgs := s.MessagesByConversation[a.ConversationID]
	i := indexOfMessage(msgs, a.MessageID)
	if i < 0 {
		return
	}
	msgs = slices.Clone(msgs)
	becameRead := a.Patch.Apply(&msgs[i])
	s.setMessages(a.ConversationID, msgs)

	patched := msgs[i]
	s.updateConversation(a.ConversationID, func(c *models.Conversation) {
		if becameRead && c.UnreadCount > 0 {
			c.UnreadCount--
		}
		if c.LastMessage != nil && c.LastMessage.ID == patched.ID {
			c.LastMessage = &patched
		}
	})
}

func (a SoftDeleteMessage) apply(s *State) {
	msgs := s.MessagesByConversation[a.ConversationID]
	i := indexOfMessage(msgs, a.MessageID)
	if i < 0 {
		return
	}
	msgs = slices.Clone(msgs)
	msgs[i].IsDeleted = true
	msgs[i].Content = models.Tombstone
	s.setMessages(a.ConversationID, msgs)

	deleted := msgs[i]
	s.updateConversation(a.ConversationID, func(c *models.Conversation) {
		if c.LastMessage != nil && c.LastMessage.ID == deleted.ID {
			c.LastMessage = &deleted
		}
	})
}

func (a SetTyping) apply(s *State) {
	users := s.TypingByConversation[a.ConversationID]
	present := slices.Contains(users, a.UserID)
	switch {
	case a.IsTyping && !present:
		users = append(slices.Clone(users), a.UserID)
	case !a.IsTyping && present:
		users = slices.DeleteFunc(slices.Clone(users), func(id int64) bool { return id == a.UserID })
	default:
		return
	}
	s.TypingByConversation = withEntry(s.TypingByConversation, a.ConversationID, users)
}

func (a SetLoadingMore) apply(s *State) {
	cursor := s.PaginationByConversation[a.ConversationID]
	cursor.IsLoadingMore = a.Loading
	s.setCursor(a.ConversationID, cursor)
}

func (a UpsertConversation) apply(s *State) {
	convs := slices.Clone(s.Conversations)
	if i := slices.IndexFunc(convs, func(c models.Conversation) bool { return c.ID == a.Conversation.ID }); i >= 0 {
		convs[i] = a.Conversation
	} else {
		convs = append(convs, a.Conversation)
	}
	slices.SortStableFunc(convs, models.LastMessageBefore)
	s.Conversations = convs
}

func (a IncrementUnread) apply(s *State) {
	s.updateConversation(a.ConversationID, func(c *models.Conversation) {
		c.UnreadCount++
	})
}

func (a SetConnected) apply(s *State) { s.IsConnected = a.Connected }

func (a SetLoading) apply(s *State) { s.IsLoading = a.Loading }

func (a SetError) apply(s *State) { s.Error = a.Message }
