package store

import (
	"slices"

	"courtside/models"
)

// State is one immutable snapshot of the session. Snapshots handed out by
// the Store must not be modified; transitions copy whatever they change.
type State struct {
	Conversations []models.Conversation
	// ActiveConversationID is zero when no conversation is focused.
	ActiveConversationID     int64
	MessagesByConversation   map[int64][]models.Message
	IsConnected              bool
	IsLoading                bool
	Error                    string
	TypingByConversation     map[int64][]int64
	PaginationByConversation map[int64]models.PaginationCursor
}

func emptyState() *State {
	return &State{
		MessagesByConversation:   map[int64][]models.Message{},
		TypingByConversation:     map[int64][]int64{},
		PaginationByConversation: map[int64]models.PaginationCursor{},
	}
}

// Conversation returns the conversation with id, if listed.
func (s *State) Conversation(id int64) (models.Conversation, bool) {
	for _, c := range s.Conversations {
		if c.ID == id {
			return c, true
		}
	}
	return models.Conversation{}, false
}

// Message returns a loaded message of a conversation.
func (s *State) Message(conversationID, messageID int64) (models.Message, bool) {
	msgs := s.MessagesByConversation[conversationID]
	if i := indexOfMessage(msgs, messageID); i >= 0 {
		return msgs[i], true
	}
	return models.Message{}, false
}

// locateMessage finds the loaded conversation holding messageID.
func (s *State) locateMessage(messageID int64) (int64, bool) {
	for convID, msgs := range s.MessagesByConversation {
		if indexOfMessage(msgs, messageID) >= 0 {
			return convID, true
		}
	}
	return 0, false
}

func (s *State) setMessages(conversationID int64, msgs []models.Message) {
	s.MessagesByConversation = withEntry(s.MessagesByConversation, conversationID, msgs)
}

func (s *State) setCursor(conversationID int64, c models.PaginationCursor) {
	s.PaginationByConversation = withEntry(s.PaginationByConversation, conversationID, c)
}

// updateConversation copies the list, applies fn to the matching entry and
// restores the newest-first order.
func (s *State) updateConversation(id int64, fn func(*models.Conversation)) bool {
	i := slices.IndexFunc(s.Conversations, func(c models.Conversation) bool { return c.ID == id })
	if i < 0 {
		return false
	}
	convs := slices.Clone(s.Conversations)
	fn(&convs[i])
	slices.SortStableFunc(convs, models.LastMessageBefore)
	s.Conversations = convs
	return true
}

func indexOfMessage(msgs []models.Message, id int64) int {
	return slices.IndexFunc(msgs, func(m models.Message) bool { return m.ID == id })
}

func withEntry[K comparable, V any](m map[K]V, k K, v V) map[K]V {
	out := make(map[K]V, len(m)+1)
	for key, val := range m {
		out[key] = val
	}
	out[k] = v
	return out
}
