package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"courtside/logger"
	"courtside/models"
	"courtside/socket"
	"courtside/wire"
)

//go:generate mockgen -destination=mock/history.go -package=mock courtside/store HistoryAPI

const defaultPageSize = 30

// HistoryAPI is the REST collaborator that owns conversation history.
type HistoryAPI interface {
	ListConversations(ctx context.Context) ([]models.Conversation, error)
	ListMessages(ctx context.Context, conversationID int64, limit, offset int) (models.MessagePage, error)
	CreateConversation(ctx context.Context, otherUserID int64) (models.Conversation, error)
}

// Transport carries outbound commands; *socket.Manager satisfies it.
type Transport interface {
	Send(cmd wire.Command) error
}

// Options configures a Store.
type Options struct {
	API       HistoryAPI
	Transport Transport
	// UserID is the signed-in user, used to tell own echoes from incoming messages.
	UserID   int64
	PageSize int
	Logger   *zap.Logger
	Now      func() time.Time
}

// Store is the single source of truth for one signed-in session. Transitions
// are applied one at a time under mu and published as immutable snapshots,
// so readers never take the lock.
type Store struct {
	api       HistoryAPI
	transport Transport
	userID    int64
	pageSize  int
	log       *zap.Logger
	now       func() time.Time

	mu       sync.Mutex
	snapshot atomic.Pointer[State]
	// loadGen fences history responses: only the latest initial load of a
	// conversation may install its page.
	loadGen map[int64]uint64
	// snapshots not yet handed to watchers, oldest first
	pending    []*State
	delivering bool

	watchMu  sync.Mutex
	watchID  uint64
	watchers map[uint64]func(*State)
}

// New creates an empty Store.
func New(opts Options) *Store {
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.Logger == nil {
		opts.Logger = logger.Log
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Store{
		api:       opts.API,
		transport: opts.Transport,
		userID:    opts.UserID,
		pageSize:  opts.PageSize,
		log:       opts.Logger.Named("store"),
		now:       opts.Now,
		loadGen:   map[int64]uint64{},
		watchers:  map[uint64]func(*State){},
	}
	s.snapshot.Store(emptyState())
	return s
}

// Snapshot returns the current state. Callers must treat it as read-only.
func (s *Store) Snapshot() *State {
	return s.snapshot.Load()
}

// Watch registers fn to be called with every new snapshot.
func (s *Store) Watch(fn func(*State)) (unwatch func()) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	s.watchID++
	id := s.watchID
	s.watchers[id] = fn
	return func() {
		s.watchMu.Lock()
		defer s.watchMu.Unlock()
		delete(s.watchers, id)
	}
}

// Dispatch applies actions in order as one step.
func (s *Store) Dispatch(actions ...Action) {
	s.update(func(*State) []Action { return actions })
}

// update computes actions from the current state and applies them without
// letting any other transition in between. It reports whether anything was
// applied.
func (s *Store) update(decide func(cur *State) []Action) bool {
	s.mu.Lock()
	cur := s.snapshot.Load()
	actions := decide(cur)
	if len(actions) == 0 {
		s.mu.Unlock()
		return false
	}
	next := *cur
	for _, a := range actions {
		next = Reduce(next, a)
	}
	s.snapshot.Store(&next)
	s.pending = append(s.pending, &next)
	s.mu.Unlock()

	s.notify()
	return true
}

// notify hands pending snapshots to watchers in the order they were stored.
// Only one goroutine delivers at a time; the others leave their snapshots to it.
func (s *Store) notify() {
	s.mu.Lock()
	if s.delivering {
		s.mu.Unlock()
		return
	}
	s.delivering = true
	for len(s.pending) > 0 {
		st := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()

		s.watchMu.Lock()
		fns := make([]func(*State), 0, len(s.watchers))
		for _, fn := range s.watchers {
			fns = append(fns, fn)
		}
		s.watchMu.Unlock()
		for _, fn := range fns {
			fn(st)
		}

		s.mu.Lock()
	}
	s.pending = nil
	s.delivering = false
	s.mu.Unlock()
}

// HandleEvent folds one inbound event into the state.
func (s *Store) HandleEvent(ev wire.Event) {
	ev.Visit(eventApplier{s})
}

// HandleStatus mirrors the connection status. Exhausted reconnection is
// surfaced as an error that asks the user to retry.
func (s *Store) HandleStatus(st socket.Status) {
	s.update(func(cur *State) []Action {
		actions := []Action{SetConnected{Connected: st.Connected}}
		switch {
		case st.Exhausted:
			actions = append(actions, SetError{Message: socket.ErrReconnectExhausted.Error()})
		case st.Connected && cur.Error == socket.ErrReconnectExhausted.Error():
			actions = append(actions, SetError{})
		}
		return actions
	})
}

type eventApplier struct {
	s *Store
}

func (a eventApplier) VisitMessageSent(e wire.MessageSent) {
	a.s.Dispatch(AppendMessage{ConversationID: e.Message.ConversationID, Message: e.Message})
}

func (a eventApplier) VisitMessageNew(e wire.MessageNew) {
	a.s.update(func(cur *State) []Action {
		convID := e.Message.ConversationID
		actions := []Action{AppendMessage{ConversationID: convID, Message: e.Message}}
		_, seen := cur.Message(convID, e.Message.ID)
		if !seen && e.Message.SenderID != a.s.userID && cur.ActiveConversationID != convID {
			actions = append(actions, IncrementUnread{ConversationID: convID})
		}
		return actions
	})
}

func (a eventApplier) VisitMessageRead(e wire.MessageRead) {
	isRead, readAt := true, e.ReadAt
	a.s.Dispatch(PatchMessage{
		ConversationID: e.ConversationID,
		MessageID:      e.MessageID,
		Patch:          models.MessagePatch{IsRead: &isRead, ReadAt: &readAt},
	})
}

func (a eventApplier) VisitMessageEdited(e wire.MessageEdited) {
	content, edited, updatedAt := e.Content, true, e.UpdatedAt
	a.s.update(func(cur *State) []Action {
		convID, ok := a.s.route(cur, e.ConversationID, e.MessageID)
		if !ok {
			a.s.log.Debug("edit for unknown message", zap.Int64("message_id", e.MessageID))
			return nil
		}
		return []Action{PatchMessage{
			ConversationID: convID,
			MessageID:      e.MessageID,
			Patch:          models.MessagePatch{Content: &content, IsEdited: &edited, UpdatedAt: &updatedAt},
		}}
	})
}

func (a eventApplier) VisitMessageDeleted(e wire.MessageDeleted) {
	a.s.update(func(cur *State) []Action {
		convID, ok := a.s.route(cur, e.ConversationID, e.MessageID)
		if !ok {
			a.s.log.Debug("delete for unknown message", zap.Int64("message_id", e.MessageID))
			return nil
		}
		return []Action{SoftDeleteMessage{ConversationID: convID, MessageID: e.MessageID}}
	})
}

func (a eventApplier) VisitTypingStarted(e wire.TypingStarted) {
	a.s.Dispatch(SetTyping{ConversationID: e.ConversationID, UserID: e.UserID, IsTyping: true})
}

func (a eventApplier) VisitTypingStopped(e wire.TypingStopped) {
	a.s.Dispatch(SetTyping{ConversationID: e.ConversationID, UserID: e.UserID, IsTyping: false})
}

func (a eventApplier) VisitServerError(e wire.ServerError) {
	a.s.log.Info("server reported error", zap.String("message", e.Message))
	a.s.Dispatch(SetError{Message: e.Message})
}

// route picks the conversation of a message-scoped event: the one the event
// names, or else whichever loaded conversation holds the message.
func (s *Store) route(cur *State, conversationID, messageID int64) (int64, bool) {
	if conversationID != 0 {
		_, ok := cur.Message(conversationID, messageID)
		return conversationID, ok
	}
	return cur.locateMessage(messageID)
}
