package wire

// Outbound frame types.
const (
	TypeMessageSend   = "message.send"
	TypeMessageEdit   = "message.edit"
	TypeMessageDelete = "message.delete"
	TypeMessageRead   = "message.read"
	TypeTypingStart   = "typing.start"
	TypeTypingStop    = "typing.stop"
)

// Command is a client intent sent to the server.
type Command interface {
	CommandType() string
}

type SendMessage struct {
	ConversationID int64   `json:"conversationId"`
	Content        string  `json:"content"`
	ImageURL       *string `json:"imageUrl,omitempty"`
}

type EditMessage struct {
	MessageID int64  `json:"messageId"`
	Content   string `json:"content"`
}

type DeleteMessage struct {
	MessageID int64 `json:"messageId"`
}

type MarkRead struct {
	MessageID int64 `json:"messageId"`
}

type StartTyping struct {
	ConversationID int64 `json:"conversationId"`
}

type StopTyping struct {
	ConversationID int64 `json:"conversationId"`
}

func (SendMessage) CommandType() string   { return TypeMessageSend }
func (EditMessage) CommandType() string   { return TypeMessageEdit }
func (DeleteMessage) CommandType() string { return TypeMessageDelete }
func (MarkRead) CommandType() string      { return TypeMessageRead }
func (StartTyping) CommandType() string   { return TypeTypingStart }
func (StopTyping) CommandType() string    { return TypeTypingStop }
