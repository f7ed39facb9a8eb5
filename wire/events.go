package wire

import (
	"time"

	"courtside/models"
)

// Inbound frame types. typing.start/typing.stop share their names with the
// outbound commands but carry the composing user.
const (
	TypeMessageSent    = "message.sent"
	TypeMessageNew     = "message.new"
	TypeMessageEdited  = "message.edited"
	TypeMessageDeleted = "message.deleted"
	TypeError          = "error"
)

// Event is a server frame after decoding. The set of events is closed:
// adding one means adding a method to Visitor, which breaks every consumer
// at compile time until it handles the new case.
type Event interface {
	EventType() string
	Visit(v Visitor)
}

// Visitor handles every inbound event kind.
type Visitor interface {
	VisitMessageSent(MessageSent)
	VisitMessageNew(MessageNew)
	VisitMessageRead(MessageRead)
	VisitMessageEdited(MessageEdited)
	VisitMessageDeleted(MessageDeleted)
	VisitTypingStarted(TypingStarted)
	VisitTypingStopped(TypingStopped)
	VisitServerError(ServerError)
}

// MessageSent echoes a message the current user sent.
type MessageSent struct {
	Message models.Message `json:"message"`
}

// MessageNew delivers a message from the other party.
type MessageNew struct {
	Message models.Message `json:"message"`
}

type MessageRead struct {
	MessageID      int64     `json:"messageId"`
	ConversationID int64     `json:"conversationId"`
	ReadAt         time.Time `json:"readAt"`
}

// MessageEdited may omit ConversationID (zero), in which case consumers have
// to locate the message by id.
type MessageEdited struct {
	MessageID      int64     `json:"messageId"`
	ConversationID int64     `json:"conversationId,omitempty"`
	Content        string    `json:"content"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type MessageDeleted struct {
	MessageID      int64     `json:"messageId"`
	ConversationID int64     `json:"conversationId,omitempty"`
	DeletedAt      time.Time `json:"deletedAt"`
}

type TypingStarted struct {
	UserID         int64 `json:"userId"`
	ConversationID int64 `json:"conversationId"`
}

type TypingStopped struct {
	UserID         int64 `json:"userId"`
	ConversationID int64 `json:"conversationId"`
}

// ServerError is an error reported by the server over an open connection.
type ServerError struct {
	Message string `json:"message"`
}

func (MessageSent) EventType() string    { return TypeMessageSent }
func (MessageNew) EventType() string     { return TypeMessageNew }
func (MessageRead) EventType() string    { return TypeMessageRead }
func (MessageEdited) EventType() string  { return TypeMessageEdited }
func (MessageDeleted) EventType() string { return TypeMessageDeleted }
func (TypingStarted) EventType() string  { return TypeTypingStart }
func (TypingStopped) EventType() string  { return TypeTypingStop }
func (ServerError) EventType() string    { return TypeError }

func (e MessageSent) Visit(v Visitor)    { v.VisitMessageSent(e) }
func (e MessageNew) Visit(v Visitor)     { v.VisitMessageNew(e) }
func (e MessageRead) Visit(v Visitor)    { v.VisitMessageRead(e) }
func (e MessageEdited) Visit(v Visitor)  { v.VisitMessageEdited(e) }
func (e MessageDeleted) Visit(v Visitor) { v.VisitMessageDeleted(e) }
func (e TypingStarted) Visit(v Visitor)  { v.VisitTypingStarted(e) }
func (e TypingStopped) Visit(v Visitor)  { v.VisitTypingStopped(e) }
func (e ServerError) Visit(v Visitor)    { v.VisitServerError(e) }
