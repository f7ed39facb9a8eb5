package models

import "time"

// Tombstone replaces the content of a soft-deleted message.
const Tombstone = "This message was deleted"

// Message represents a chat message inside a conversation
type Message struct {
	ID             int64      `json:"id"`
	ConversationID int64      `json:"conversationId"`
	SenderID       int64      `json:"senderId"`
	Content        string     `json:"content"`
	ImageURL       *string    `json:"imageUrl,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	IsRead         bool       `json:"isRead"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
	IsEdited       bool       `json:"isEdited"`
	UpdatedAt      *time.Time `json:"updatedAt,omitempty"`
	IsDeleted      bool       `json:"isDeleted"`
}

// MessagePatch carries the fields of a message that changed. Nil fields are left alone.
type MessagePatch struct {
	Content   *string
	IsRead    *bool
	ReadAt    *time.Time
	IsEdited  *bool
	UpdatedAt *time.Time
}

// Apply merges the patch into m and reports whether IsRead went from false to true.
func (p MessagePatch) Apply(m *Message) (becameRead bool) {
	if p.Content != nil {
		m.Content = *p.Content
	}
	if p.IsRead != nil {
		becameRead = *p.IsRead && !m.IsRead
		m.IsRead = *p.IsRead
	}
	if p.ReadAt != nil {
		t := *p.ReadAt
		m.ReadAt = &t
	}
	if p.IsEdited != nil {
		m.IsEdited = *p.IsEdited
	}
	if p.UpdatedAt != nil {
		t := *p.UpdatedAt
		m.UpdatedAt = &t
	}
	return becameRead
}

// MessagePage is one offset/limit page of conversation history, oldest first.
type MessagePage struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"hasMore"`
}

// PaginationCursor tracks history paging for one conversation.
// Offset counts messages already fetched, it is not an opaque token.
type PaginationCursor struct {
	HasMore       bool `json:"hasMore"`
	IsLoadingMore bool `json:"isLoadingMore"`
	Offset        int  `json:"offset"`
}

// Conversation represents a chat thread with another user
type Conversation struct {
	ID            int64       `json:"id"`
	OtherUser     UserSummary `json:"otherUser"`
	LastMessage   *Message    `json:"lastMessage,omitempty"`
	LastMessageAt *time.Time  `json:"lastMessageAt,omitempty"`
	UnreadCount   int         `json:"unreadCount"`
}

// LastMessageBefore orders conversations newest first; conversations without
// any message sort after those that have one.
func LastMessageBefore(a, b Conversation) int {
	switch {
	case a.LastMessageAt == nil && b.LastMessageAt == nil:
		return 0
	case a.LastMessageAt == nil:
		return 1
	case b.LastMessageAt == nil:
		return -1
	}
	return b.LastMessageAt.Compare(*a.LastMessageAt)
}
