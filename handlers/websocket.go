package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"courtside/database"
	"courtside/logger"
	"courtside/middleware"
	"courtside/models"
	"courtside/wire"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// Errors reported back to the client as error frames.
var (
	errConversationNotFound = errors.New("conversation not found")
	errMessageNotFound      = errors.New("message not found")
	errEmptyContent         = errors.New("message content is required")
	errNotSender            = errors.New("only the sender can change a message")
	errNotRecipient         = errors.New("only the recipient can mark a message read")
	errMessageDeleted       = errors.New("message was deleted")
	errRateLimited          = errors.New("too many frames, slow down")
	errInvalidFrame         = errors.New("invalid frame")
	errInternal             = errors.New("internal error")
)

// Client represents a WebSocket client
type Client struct {
	hub     *Hub
	Conn    *websocket.Conn
	Send    chan []byte
	UserID  int64
	limiter *rate.Limiter
}

// Hub maintains the set of active clients, one per user
type Hub struct {
	clients    map[int64]*Client // userID -> client
	register   chan *Client
	unregister chan *Client
	broadcast  chan BroadcastPayload
	mutex      sync.RWMutex
	// quit is closed when Run returns so late pumps never block on it
	quit chan struct{}

	frameRate  rate.Limit
	frameBurst int
	metrics    *HubMetrics
	log        *zap.Logger
}

type BroadcastPayload struct {
	UserID  int64
	Message []byte
}

// HubOptions configures a Hub.
type HubOptions struct {
	// FrameRate and FrameBurst bound inbound frames per connection.
	FrameRate  float64
	FrameBurst int
	Registerer prometheus.Registerer
}

// HubMetrics instruments the relay socket hub.
type HubMetrics struct {
	Clients  prometheus.Gauge
	Frames   *prometheus.CounterVec
	Rejected *prometheus.CounterVec
}

func newHubMetrics(reg prometheus.Registerer) *HubMetrics {
	m := &HubMetrics{
		Clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "courtside",
			Subsystem: "relay",
			Name:      "clients",
			Help:      "Connected socket clients.",
		}),
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "courtside",
			Subsystem: "relay",
			Name:      "frames_total",
			Help:      "Inbound frames handled, by type.",
		}, []string{"type"}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "courtside",
			Subsystem: "relay",
			Name:      "frames_rejected_total",
			Help:      "Inbound frames answered with an error, by reason.",
		}, []string{"reason"}),
	}
	if reg != nil {
		reg.MustRegister(m.Clients, m.Frames, m.Rejected)
	}
	return m
}

// NewHub creates a hub; call Run to start it.
func NewHub(opts HubOptions) *Hub {
	if opts.FrameRate <= 0 {
		opts.FrameRate = 5
	}
	if opts.FrameBurst <= 0 {
		opts.FrameBurst = 10
	}
	return &Hub{
		clients:    make(map[int64]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan BroadcastPayload, 256),
		quit:       make(chan struct{}),
		frameRate:  rate.Limit(opts.FrameRate),
		frameBurst: opts.FrameBurst,
		metrics:    newHubMetrics(opts.Registerer),
		log:        logger.Log.Named("hub"),
	}
}

// Run serves registrations and deliveries until ctx is done
func (h *Hub) Run(ctx context.Context) {
	defer close(h.quit)
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for id, client := range h.clients {
				close(client.Send)
				delete(h.clients, id)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			if old, ok := h.clients[client.UserID]; ok {
				close(old.Send)
			}
			h.clients[client.UserID] = client
			h.metrics.Clients.Set(float64(len(h.clients)))
			h.mutex.Unlock()
			h.log.Info("client connected", zap.Int64("user_id", client.UserID))

		case client := <-h.unregister:
			h.mutex.Lock()
			if current, ok := h.clients[client.UserID]; ok && current == client {
				delete(h.clients, client.UserID)
				close(client.Send)
			}
			h.metrics.Clients.Set(float64(len(h.clients)))
			h.mutex.Unlock()
			h.log.Info("client disconnected", zap.Int64("user_id", client.UserID))

		case payload := <-h.broadcast:
			h.mutex.Lock()
			if client, ok := h.clients[payload.UserID]; ok {
				select {
				case client.Send <- payload.Message:
				default:
					close(client.Send)
					delete(h.clients, payload.UserID)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// IsUserOnline checks if a user is currently connected
func (h *Hub) IsUserOnline(userID int64) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// Emit sends an event to a specific user if they are connected
func (h *Hub) Emit(userID int64, ev wire.Event) {
	data, err := wire.EncodeEvent(ev)
	if err != nil {
		h.log.Error("encode event", zap.String("type", ev.EventType()), zap.Error(err))
		return
	}

	select {
	case h.broadcast <- BroadcastPayload{UserID: userID, Message: data}:
	case <-h.quit:
	}
}

// ServeWS upgrades an authenticated request to a socket connection
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)
	if user == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade", zap.Error(err))
		return
	}

	client := &Client{
		hub:     h,
		Conn:    conn,
		Send:    make(chan []byte, 256),
		UserID:  user.ID,
		limiter: rate.NewLimiter(h.frameRate, h.frameBurst),
	}

	select {
	case h.register <- client:
	case <-h.quit:
		conn.Close()
		return
	}

	// Start goroutines for reading and writing
	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.quit:
		}
		c.Conn.Close()
	}()

	for {
		_, frame, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Warn("websocket read", zap.Int64("user_id", c.UserID), zap.Error(err))
			}
			break
		}

		if !c.limiter.Allow() {
			c.reject("rate_limited", errRateLimited)
			continue
		}

		cmd, err := wire.DecodeCommand(frame)
		if err != nil {
			c.hub.log.Debug("undecodable frame", zap.Int64("user_id", c.UserID), zap.Error(err))
			c.reject("invalid", errInvalidFrame)
			continue
		}
		c.hub.metrics.Frames.WithLabelValues(cmd.CommandType()).Inc()

		if err := c.handle(cmd); err != nil {
			c.reject("refused", err)
		}
	}
}

func (c *Client) writePump() {
	defer c.Conn.Close()

	for message := range c.Send {
		if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (c *Client) reject(reason string, err error) {
	c.hub.metrics.Rejected.WithLabelValues(reason).Inc()
	c.hub.Emit(c.UserID, wire.ServerError{Message: err.Error()})
}

func (c *Client) handle(cmd wire.Command) error {
	switch cmd := cmd.(type) {
	case wire.SendMessage:
		return c.sendMessage(cmd)
	case wire.EditMessage:
		return c.editMessage(cmd)
	case wire.DeleteMessage:
		return c.deleteMessage(cmd)
	case wire.MarkRead:
		return c.markRead(cmd)
	case wire.StartTyping:
		return c.typing(cmd.ConversationID, true)
	case wire.StopTyping:
		return c.typing(cmd.ConversationID, false)
	}
	return errInvalidFrame
}

func (c *Client) sendMessage(cmd wire.SendMessage) error {
	peerID, err := c.peer(cmd.ConversationID)
	if err != nil {
		return err
	}
	content := strings.TrimSpace(cmd.Content)
	if content == "" && cmd.ImageURL == nil {
		return errEmptyContent
	}

	msg, err := database.CreateMessage(cmd.ConversationID, c.UserID, content, cmd.ImageURL)
	if err != nil {
		return c.internal("create message", err)
	}

	c.hub.Emit(c.UserID, wire.MessageSent{Message: *msg})
	c.hub.Emit(peerID, wire.MessageNew{Message: *msg})
	return nil
}

func (c *Client) editMessage(cmd wire.EditMessage) error {
	content := strings.TrimSpace(cmd.Content)
	if content == "" {
		return errEmptyContent
	}
	msg, peerID, err := c.ownMessage(cmd.MessageID)
	if err != nil {
		return err
	}
	if msg.IsDeleted {
		return errMessageDeleted
	}

	at := time.Now().UTC()
	if err := database.EditMessage(msg.ID, content, at); err != nil {
		return c.internal("edit message", err)
	}

	ev := wire.MessageEdited{MessageID: msg.ID, ConversationID: msg.ConversationID, Content: content, UpdatedAt: at}
	c.hub.Emit(c.UserID, ev)
	c.hub.Emit(peerID, ev)
	return nil
}

func (c *Client) deleteMessage(cmd wire.DeleteMessage) error {
	msg, peerID, err := c.ownMessage(cmd.MessageID)
	if err != nil {
		return err
	}
	if msg.IsDeleted {
		return nil
	}

	at := time.Now().UTC()
	if err := database.SoftDeleteMessage(msg.ID, at); err != nil {
		return c.internal("delete message", err)
	}

	ev := wire.MessageDeleted{MessageID: msg.ID, ConversationID: msg.ConversationID, DeletedAt: at}
	c.hub.Emit(c.UserID, ev)
	c.hub.Emit(peerID, ev)
	return nil
}

func (c *Client) markRead(cmd wire.MarkRead) error {
	msg, err := database.GetMessageByID(cmd.MessageID)
	if err != nil {
		return c.lookupError("get message", err, errMessageNotFound)
	}
	peerID, err := c.peer(msg.ConversationID)
	if err != nil {
		return err
	}
	if msg.SenderID == c.UserID {
		return errNotRecipient
	}

	at := time.Now().UTC()
	changed, err := database.MarkMessageRead(msg.ID, at)
	if err != nil {
		return c.internal("mark read", err)
	}
	if !changed {
		return nil
	}

	ev := wire.MessageRead{MessageID: msg.ID, ConversationID: msg.ConversationID, ReadAt: at}
	c.hub.Emit(c.UserID, ev)
	c.hub.Emit(peerID, ev)
	return nil
}

func (c *Client) typing(conversationID int64, typing bool) error {
	peerID, err := c.peer(conversationID)
	if err != nil {
		return err
	}
	if typing {
		c.hub.Emit(peerID, wire.TypingStarted{UserID: c.UserID, ConversationID: conversationID})
	} else {
		c.hub.Emit(peerID, wire.TypingStopped{UserID: c.UserID, ConversationID: conversationID})
	}
	return nil
}

func (c *Client) peer(conversationID int64) (int64, error) {
	peerID, err := database.ConversationPeer(conversationID, c.UserID)
	if errors.Is(err, database.ErrNotParticipant) {
		return 0, errConversationNotFound
	}
	if err != nil {
		return 0, c.lookupError("conversation peer", err, errConversationNotFound)
	}
	return peerID, nil
}

// ownMessage loads a message the client sent, with the other participant.
func (c *Client) ownMessage(messageID int64) (*models.Message, int64, error) {
	msg, err := database.GetMessageByID(messageID)
	if err != nil {
		return nil, 0, c.lookupError("get message", err, errMessageNotFound)
	}
	peerID, err := c.peer(msg.ConversationID)
	if err != nil {
		return nil, 0, err
	}
	if msg.SenderID != c.UserID {
		return nil, 0, errNotSender
	}
	return msg, peerID, nil
}

func (c *Client) lookupError(op string, err, notFound error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return c.internal(op, err)
}

func (c *Client) internal(op string, err error) error {
	c.hub.log.Error(op, zap.Int64("user_id", c.UserID), zap.Error(err))
	return errInternal
}
